package monitoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Not parallel: these tests swap the package-level logger.

func TestSetLoggerReplacesSink(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var got string
	SetLogger(func(format string, v ...interface{}) { got = format })
	Logf("connect lost")
	assert.Equal(t, "connect lost", got)
}

func TestSetLoggerNilMutes(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(string, ...interface{}) { called = true })
	Logf("x")
	require.True(t, called)

	called = false
	SetLogger(nil)
	Logf("x")
	assert.False(t, called)
}

func TestDefaultLoggerIsUsable(t *testing.T) {
	require.NotNil(t, Logf)
	assert.NotPanics(t, func() { Logf("probe %d", 1) })
}
