package viewer

import (
	"fmt"
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"
	text "github.com/hajimehoshi/ebiten/v2/text/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"

	"github.com/Darshbir/toyota-gr-sim/internal/render"
	"github.com/Darshbir/toyota-gr-sim/internal/units"
)

var (
	hudTextColor  = color.RGBA{0xe8, 0xe8, 0xe8, 0xff}
	hudDimColor   = color.RGBA{0x8a, 0x8f, 0x98, 0xff}
	hudPanelColor = color.RGBA{0x10, 0x12, 0x16, 0xc0}
	liveColor     = color.RGBA{0x4c, 0xaf, 0x50, 0xff}
	offlineColor  = color.RGBA{0xff, 0x52, 0x52, 0xff}
	pitColor      = color.RGBA{0xff, 0x52, 0x52, 0xff}
	drsColor      = color.RGBA{0x69, 0xf0, 0xae, 0xff}
)

const hudRowHeight = 18.0

func (a *App) textWidth(s string) float64 {
	return text.Advance(s, a.face)
}

// drawLabel draws one line with its top-left corner at (x, y).
func (a *App) drawLabel(dst *ebiten.Image, s string, x, y float64, clr color.Color) {
	op := &text.DrawOptions{}
	op.GeoM.Translate(x, y)
	op.ColorScale.ScaleWithColor(clr)
	text.Draw(dst, s, a.face, op)
}

// drawCentered draws a horizontally centered line at the given scale.
func (a *App) drawCentered(dst *ebiten.Image, s string, y, scale float64, clr color.Color) {
	x := (float64(a.cfg.Width) - a.textWidth(s)*scale) / 2
	op := &text.DrawOptions{}
	op.GeoM.Scale(scale, scale)
	op.GeoM.Translate(x, y)
	op.ColorScale.ScaleWithColor(clr)
	text.Draw(dst, s, a.face, op)
}

func (a *App) paintHUD(screen *ebiten.Image, frame *render.Frame) {
	a.paintStatusBlock(screen, frame)
	a.paintLeaderboard(screen, frame)
	a.paintTicker(screen, frame)

	help := "drag pan | wheel zoom | click car follow | V view | R reset | Space start | Esc quit"
	a.drawLabel(screen, help, float64(a.cfg.Width)-a.textWidth(help)-16, float64(a.cfg.Height)-22, hudDimColor)

	if frame.RaceFinished {
		a.drawCentered(screen, "RACE FINISHED", float64(a.cfg.Height)/2-60, 4, selectionColor)
		if len(frame.Cars) > 0 {
			a.drawCentered(screen, "winner "+frame.Cars[0].Name, float64(a.cfg.Height)/2, 2, hudTextColor)
		}
	} else if !frame.RaceStarted {
		a.drawCentered(screen, "press Space to start the race", 40, 2, hudDimColor)
	}
}

func (a *App) paintStatusBlock(screen *ebiten.Image, frame *render.Frame) {
	const x, dotR = 16.0, 5.0
	y := 14.0

	dotColor, label := liveColor, "LIVE"
	if !frame.Connected {
		dotColor, label = offlineColor, "OFFLINE"
	}
	vector.DrawFilledCircle(screen, float32(x+dotR), float32(y+7), dotR, dotColor, true)
	a.drawLabel(screen, fmt.Sprintf("%s   t=%.1fs   lap %d/%d", label, frame.SimTime, maxLaps(frame), frame.TotalLaps), x+16, y, hudTextColor)
	y += hudRowHeight

	w := frame.Weather
	a.drawLabel(screen, fmt.Sprintf("rain %.0f%%   track %.0fC   wind %.0f m/s", w.Rain*100, w.TrackTemp, w.Wind), x, y, hudDimColor)
	y += hudRowHeight

	camera := "camera FREE"
	if frame.FollowedCar != "" {
		camera = "camera FOLLOW " + frame.FollowedCar
	}
	a.drawLabel(screen, camera+"  ["+a.mode.String()+"]", x, y, hudDimColor)
	y += hudRowHeight

	if line, ok := selectedCarLine(frame, a.cfg.SpeedUnit); ok {
		a.drawLabel(screen, line, x, y, selectionColor)
		y += hudRowHeight
	}

	if status, _ := a.status.Load().(string); status != "" {
		a.drawLabel(screen, status, x, y, hudDimColor)
	}
}

func (a *App) paintLeaderboard(screen *ebiten.Image, frame *render.Frame) {
	if len(frame.Cars) == 0 {
		return
	}
	const panelW = 330.0
	panelX := float64(a.cfg.Width) - panelW - 12
	panelH := float64(len(frame.Cars))*hudRowHeight + 30
	vector.DrawFilledRect(screen, float32(panelX), 12, panelW, float32(panelH), hudPanelColor, false)

	a.drawLabel(screen, "POS  DRIVER                TYRE    GAP", panelX+12, 18, hudDimColor)
	y := 18 + hudRowHeight
	for i := range frame.Cars {
		car := &frame.Cars[i]
		if car.Selected {
			vector.DrawFilledRect(screen, float32(panelX), float32(y-2), panelW, hudRowHeight, color.RGBA{0xff, 0xff, 0xff, 0x20}, false)
		}
		vector.DrawFilledRect(screen, float32(panelX+34), float32(y+2), 8, 8, parseHexColor(car.Color, defaultCarColor), false)

		rowColor := hudTextColor
		if car.OnPit {
			rowColor = pitColor
		}
		a.drawLabel(screen, fmt.Sprintf("P%-2d     %-18s %-6s %s", car.Rank, truncateName(car.Name, 18), car.Tyre, gapString(car)), panelX+12, y, rowColor)
		if car.DRSActive {
			a.drawLabel(screen, "DRS", panelX+panelW-40, y, drsColor)
		}
		y += hudRowHeight
	}
}

func (a *App) paintTicker(screen *ebiten.Image, frame *render.Frame) {
	if len(frame.Events) == 0 {
		return
	}
	y := float64(a.cfg.Height) - 22 - float64(len(frame.Events))*hudRowHeight
	for _, ev := range frame.Events {
		a.drawLabel(screen, fmt.Sprintf("* %s %s", ev.Type, ev.Car), 16, y, hudDimColor)
		y += hudRowHeight
	}
}

// selectedCarLine formats the detail row for the followed car.
func selectedCarLine(frame *render.Frame, speedUnit string) (string, bool) {
	for i := range frame.Cars {
		car := &frame.Cars[i]
		if !car.Selected {
			continue
		}
		line := fmt.Sprintf("P%d %s  %.0f %s  fuel %.0f%%  wear %.0f%%  lap %d",
			car.Rank, car.Name, units.ConvertSpeed(car.Speed, speedUnit), speedUnit,
			car.Fuel, car.Wear, car.Laps)
		if car.OnPit {
			line += "  PIT"
		}
		if car.DRSActive {
			line += "  DRS"
		}
		if car.Clamped {
			line += "  OFF TRACK"
		}
		return line, true
	}
	return "", false
}

func gapString(car *render.Car) string {
	if car.Rank == 1 {
		return "LEADER"
	}
	return fmt.Sprintf("+%.1fs", car.TimeInterval)
}

func truncateName(name string, max int) string {
	if len(name) <= max {
		return name
	}
	return name[:max-1] + "~"
}

func maxLaps(frame *render.Frame) int {
	laps := 0
	for _, car := range frame.Cars {
		if car.Laps > laps {
			laps = car.Laps
		}
	}
	return laps
}
