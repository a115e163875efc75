package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEmptyConfigFallsBackToDefaults(t *testing.T) {
	cfg := EmptyTuningConfig()

	if got := cfg.GetPositionBaseFactor(); got != 0.15 {
		t.Errorf("GetPositionBaseFactor() = %f, want 0.15", got)
	}
	if got := cfg.GetPositionMaxFactor(); got != 0.85 {
		t.Errorf("GetPositionMaxFactor() = %f, want 0.85", got)
	}
	if got := cfg.GetTrackWidth(); got != 10.0 {
		t.Errorf("GetTrackWidth() = %f, want 10.0", got)
	}
	if got := cfg.GetSurfaceSamples(); got != 600 {
		t.Errorf("GetSurfaceSamples() = %d, want 600", got)
	}
	if got := cfg.GetReconnectBaseDelay(); got != time.Second {
		t.Errorf("GetReconnectBaseDelay() = %v, want 1s", got)
	}
	if got := cfg.GetReconnectMaxDelay(); got != 30*time.Second {
		t.Errorf("GetReconnectMaxDelay() = %v, want 30s", got)
	}
	if got := cfg.GetBroadcastInterval(); got != 100*time.Millisecond {
		t.Errorf("GetBroadcastInterval() = %v, want 100ms", got)
	}
	if got := cfg.GetCarVerticalOffset(); got != 0.5 {
		t.Errorf("GetCarVerticalOffset() = %f, want 0.5", got)
	}
}

func TestLoadTuningConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.json")

	// Partial config: only names a few fields, the rest keep defaults.
	testJSON := `{
  "position_base_factor": 0.2,
  "track_width": 12.5,
  "surface_samples": 800,
  "reconnect_max_delay": "45s"
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.PositionBaseFactor == nil || *cfg.PositionBaseFactor != 0.2 {
		t.Errorf("Expected PositionBaseFactor 0.2, got %v", cfg.PositionBaseFactor)
	}
	if cfg.GetTrackWidth() != 12.5 {
		t.Errorf("GetTrackWidth() = %f, want 12.5", cfg.GetTrackWidth())
	}
	if cfg.GetSurfaceSamples() != 800 {
		t.Errorf("GetSurfaceSamples() = %d, want 800", cfg.GetSurfaceSamples())
	}
	if cfg.GetReconnectMaxDelay() != 45*time.Second {
		t.Errorf("GetReconnectMaxDelay() = %v, want 45s", cfg.GetReconnectMaxDelay())
	}

	// Unset fields fall back.
	if cfg.GetHeadingBaseFactor() != 0.12 {
		t.Errorf("GetHeadingBaseFactor() = %f, want default 0.12", cfg.GetHeadingBaseFactor())
	}
}

func TestLoadTuningConfigRejectsNonJSON(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("track_width: 5"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	if _, err := LoadTuningConfig(configPath); err == nil {
		t.Error("expected error for non-.json extension")
	}
}

func TestLoadTuningConfigMissingFile(t *testing.T) {
	if _, err := LoadTuningConfig("/nonexistent/tuning.json"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		cfg  *TuningConfig
	}{
		{"max factor at 1", &TuningConfig{PositionMaxFactor: ptrFloat64(1.0)}},
		{"max factor negative", &TuningConfig{PositionMaxFactor: ptrFloat64(-0.1)}},
		{"base above max", &TuningConfig{
			PositionBaseFactor: ptrFloat64(0.9),
			PositionMaxFactor:  ptrFloat64(0.5),
		}},
		{"heading max at 1", &TuningConfig{HeadingMaxFactor: ptrFloat64(1.0)}},
		{"zero track width", &TuningConfig{TrackWidth: ptrFloat64(0)}},
		{"too few samples", &TuningConfig{SurfaceSamples: ptrInt(2)}},
		{"zoom range inverted", &TuningConfig{
			ZoomMin: ptrFloat64(5.0),
			ZoomMax: ptrFloat64(1.0),
		}},
		{"bad duration", &TuningConfig{ReconnectBaseDelay: ptrString("soon")}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestValidateAcceptsDefaultsFile(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults file failed validation: %v", err)
	}

	// The shipped defaults must agree with the in-code fallbacks.
	if cfg.GetPositionBaseFactor() != EmptyTuningConfig().GetPositionBaseFactor() {
		t.Error("defaults file and in-code fallback disagree on position_base_factor")
	}
	if cfg.GetTrackWidth() != EmptyTuningConfig().GetTrackWidth() {
		t.Error("defaults file and in-code fallback disagree on track_width")
	}
}
