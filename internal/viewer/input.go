package viewer

import (
	"math"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
)

// clickSlop is the accumulated drag distance in pixels under which a
// press-release still counts as a click.
const clickSlop = 6.0

// pickRadius is the screen-space hit radius for selecting a car.
const pickRadius = 14.0

// wheelZoomStep is the zoom factor per wheel notch.
const wheelZoomStep = 1.12

// inputState is one tick's worth of polled input. Decoupled from ebiten
// so the handling logic can be driven directly in tests.
type inputState struct {
	cursorX, cursorY int
	wheelY           float64

	leftPressed     bool
	leftJustPressed bool

	resetView  bool // R
	startRace  bool // Space
	toggleView bool // V
	quit       bool // Escape
}

func readInput() inputState {
	var in inputState
	in.cursorX, in.cursorY = ebiten.CursorPosition()
	_, in.wheelY = ebiten.Wheel()
	in.leftPressed = ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft)
	in.leftJustPressed = inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft)
	in.resetView = inpututil.IsKeyJustPressed(ebiten.KeyR)
	in.startRace = inpututil.IsKeyJustPressed(ebiten.KeySpace)
	in.toggleView = inpututil.IsKeyJustPressed(ebiten.KeyV)
	in.quit = inpututil.IsKeyJustPressed(ebiten.KeyEscape)
	return in
}

// pointer tracks a press across ticks to tell a drag from a click.
type pointer struct {
	down  bool
	lastX int
	lastY int
	moved float64
}

// applyInput runs one tick of input handling against the camera and
// control client.
func (a *App) applyInput(in inputState) error {
	if in.quit {
		return ebiten.Termination
	}
	if in.resetView {
		a.cfg.Camera.ResetView()
	}
	if in.startRace {
		a.startRace()
	}
	if in.toggleView {
		if a.mode == modeTopDown {
			a.mode = modePerspective
		} else {
			a.mode = modeTopDown
		}
	}

	if in.wheelY != 0 {
		factor := math.Pow(wheelZoomStep, in.wheelY)
		if a.mode == modePerspective {
			// No cursor-anchored zoom in perspective; the eye just
			// moves along the view axis.
			a.cfg.Camera.ZoomBy(factor)
		} else {
			a.zoomAt(in.cursorX, in.cursorY, factor)
		}
	}

	switch {
	case in.leftJustPressed:
		a.pointer = pointer{down: true, lastX: in.cursorX, lastY: in.cursorY}
	case a.pointer.down && in.leftPressed:
		dx := in.cursorX - a.pointer.lastX
		dy := in.cursorY - a.pointer.lastY
		if dx != 0 || dy != 0 {
			a.pointer.moved += math.Abs(float64(dx)) + math.Abs(float64(dy))
			tr := a.transform()
			a.cfg.Camera.Pan(-float64(dx)/tr.scale, -float64(dy)/tr.scale)
			a.pointer.lastX = in.cursorX
			a.pointer.lastY = in.cursorY
		}
	case a.pointer.down:
		wasClick := a.pointer.moved <= clickSlop
		a.pointer = pointer{}
		if wasClick {
			if name, ok := a.carAt(in.cursorX, in.cursorY); ok {
				a.cfg.Camera.ToggleFollow(name)
			}
		}
	}
	return nil
}

// zoomAt zooms the camera keeping the world point under the cursor
// fixed on screen.
func (a *App) zoomAt(cursorX, cursorY int, factor float64) {
	sx, sy := float64(cursorX), float64(cursorY)
	before := a.transform()
	wx, wz := before.toWorld(sx, sy)
	a.cfg.Camera.ZoomBy(factor)
	after := a.transform()
	ax, az := after.toWorld(sx, sy)
	a.cfg.Camera.Pan(wx-ax, wz-az)
}

// carAt hit-tests the last frame's cars, nearest first.
func (a *App) carAt(cursorX, cursorY int) (string, bool) {
	if a.mode == modePerspective {
		return a.sceneCarAt(cursorX, cursorY)
	}
	if a.frame == nil {
		return "", false
	}
	tr := a.transform()
	bestName := ""
	bestDist := math.Inf(1)
	for i := range a.frame.Cars {
		car := &a.frame.Cars[i]
		sx, sy := tr.toScreen(car.Position.X, car.Position.Z)
		dx := sx - float64(cursorX)
		dy := sy - float64(cursorY)
		d := math.Hypot(dx, dy)
		if d <= pickRadius && d < bestDist {
			bestName = car.Name
			bestDist = d
		}
	}
	return bestName, bestName != ""
}

// sceneCarAt hit-tests the projected scene's markers, which already
// carry their perspective screen positions and sizes.
func (a *App) sceneCarAt(cursorX, cursorY int) (string, bool) {
	scene, ok := a.scene.Latest()
	if !ok {
		return "", false
	}
	bestName := ""
	bestDist := math.Inf(1)
	for i := range scene.Cars {
		sc := &scene.Cars[i]
		radius := sc.Size
		if radius < pickRadius {
			radius = pickRadius
		}
		d := math.Hypot(sc.X-float64(cursorX), sc.Y-float64(cursorY))
		if d <= radius && d < bestDist {
			bestName = sc.Name
			bestDist = d
		}
	}
	return bestName, bestName != ""
}
