package viewer

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"

	"github.com/Darshbir/toyota-gr-sim/internal/render"
	"github.com/Darshbir/toyota-gr-sim/internal/trackgeom"
)

// Triangle fills sample the center pixel of a small white image, the
// usual source for untextured DrawTriangles geometry.
var (
	whiteImage    = ebiten.NewImage(3, 3)
	whiteSubImage = whiteImage.SubImage(image.Rect(1, 1, 2, 2)).(*ebiten.Image)
)

func init() {
	whiteImage.Fill(color.White)
}

var (
	backgroundColor = color.RGBA{0x14, 0x16, 0x1a, 0xff}
	selectionColor  = color.RGBA{0xff, 0xd5, 0x4f, 0xff}
	startGateColor  = color.RGBA{0xf5, 0xf5, 0xf5, 0xff}
	defaultCarColor = color.RGBA{0xc8, 0xc8, 0xc8, 0xff}
)

const carSizePx = 9.0

// meshBatch is one ribbon mesh with its per-vertex colors fixed at build
// time and a scratch vertex buffer reused every draw.
type meshBatch struct {
	world   []trackgeom.Vertex
	indices []uint16
	shades  [][3]float32
	vs      []ebiten.Vertex
}

func newMeshBatch(mesh *trackgeom.Mesh, base [3]float32, heightGain float32) *meshBatch {
	if len(mesh.Vertices) > math.MaxUint16 {
		// Would overflow the index type; the ribbon stays undrawn
		// rather than corrupted.
		return nil
	}
	batch := &meshBatch{
		world:   mesh.Vertices,
		indices: make([]uint16, len(mesh.Indices)),
		shades:  make([][3]float32, len(mesh.Vertices)),
		vs:      make([]ebiten.Vertex, len(mesh.Vertices)),
	}
	for i, idx := range mesh.Indices {
		batch.indices[i] = uint16(idx)
	}
	for i, v := range mesh.Vertices {
		// Elevation brightens the surface slightly, which reads as
		// depth on the crests.
		lift := float32(v.Y) * heightGain
		if lift > 0.12 {
			lift = 0.12
		}
		batch.shades[i] = [3]float32{base[0] + lift, base[1] + lift, base[2] + lift}
	}
	return batch
}

func (b *meshBatch) draw(dst *ebiten.Image, tr transform) {
	if b == nil {
		return
	}
	for i := range b.world {
		sx, sy := tr.toScreen(b.world[i].X, b.world[i].Z)
		b.vs[i] = ebiten.Vertex{
			DstX: float32(sx), DstY: float32(sy),
			SrcX: 1, SrcY: 1,
			ColorR: b.shades[i][0], ColorG: b.shades[i][1], ColorB: b.shades[i][2], ColorA: 1,
		}
	}
	dst.DrawTriangles(b.vs, b.indices, whiteSubImage, &ebiten.DrawTrianglesOptions{AntiAlias: true})
}

// trackBatch caches everything the track needs per draw: the surface
// ribbon, both boundary ribbons and the start gate segment.
type trackBatch struct {
	surface    *meshBatch
	boundaries [2]*meshBatch
	gate       [2][2]float64 // world endpoints across the track at ring zero
	hasGate    bool
}

func newTrackBatch(geom *trackgeom.Geometry) *trackBatch {
	t := &trackBatch{
		surface: newMeshBatch(geom.Surface(), [3]float32{0.23, 0.24, 0.27}, 0.03),
	}
	for i, boundary := range geom.Boundaries() {
		t.boundaries[i] = newMeshBatch(boundary, [3]float32{0.80, 0.80, 0.82}, 0)
	}
	if rings := geom.Surface().Rings; len(rings) > 0 {
		t.gate[0] = [2]float64{rings[0].Left.X, rings[0].Left.Z}
		t.gate[1] = [2]float64{rings[0].Right.X, rings[0].Right.Z}
		t.hasGate = true
	}
	return t
}

func (t *trackBatch) draw(dst *ebiten.Image, tr transform) {
	t.surface.draw(dst, tr)
	for _, b := range t.boundaries {
		b.draw(dst, tr)
	}
	if t.hasGate {
		x0, y0 := tr.toScreen(t.gate[0][0], t.gate[0][1])
		x1, y1 := tr.toScreen(t.gate[1][0], t.gate[1][1])
		vector.StrokeLine(dst, float32(x0), float32(y0), float32(x1), float32(y1), 3, startGateColor, true)
	}
}

func (a *App) paintCars(screen *ebiten.Image, tr transform, frame *render.Frame) {
	const offscreenMargin = 40
	for i := range frame.Cars {
		car := &frame.Cars[i]
		sx, sy := tr.toScreen(car.Position.X, car.Position.Z)
		if sx < -offscreenMargin || sx > float64(tr.w)+offscreenMargin ||
			sy < -offscreenMargin || sy > float64(tr.h)+offscreenMargin {
			continue
		}

		alpha := float32(1.0)
		if car.OnPit {
			alpha = 0.55
		}
		corners := carTriangle(sx, sy, car.Angle, carSizePx)
		drawTriangle(screen, corners, parseHexColor(car.Color, defaultCarColor), alpha)

		if car.Selected {
			vector.StrokeCircle(screen, float32(sx), float32(sy), carSizePx+5, 2, selectionColor, true)
			a.drawLabel(screen, car.Name, sx-a.textWidth(car.Name)/2, sy-carSizePx-22, selectionColor)
		}
	}
}

// carTriangle returns the screen corners of a car marker pointing along
// its render heading: tip first, then the two base corners. Render angle
// zero points down-screen (plane +Z), pi/2 points right (+X).
func carTriangle(sx, sy, angle, size float64) [3][2]float64 {
	return markerCorners(sx, sy, math.Sin(angle), math.Cos(angle), size)
}

// markerCorners shapes the marker from an explicit screen direction,
// which the perspective scene supplies directly.
func markerCorners(sx, sy, dirX, dirY, size float64) [3][2]float64 {
	perpX, perpY := dirY, -dirX
	return [3][2]float64{
		{sx + dirX*size, sy + dirY*size},
		{sx - dirX*size*0.7 + perpX*size*0.6, sy - dirY*size*0.7 + perpY*size*0.6},
		{sx - dirX*size*0.7 - perpX*size*0.6, sy - dirY*size*0.7 - perpY*size*0.6},
	}
}

// paintScene draws the perspective projection published by the scene
// painter: track triangles first (already back-to-front), then cars.
func (a *App) paintScene(screen *ebiten.Image) {
	scene, ok := a.scene.Latest()
	if !ok {
		return
	}

	for i := range scene.Triangles {
		tri := &scene.Triangles[i]
		var vs [3]ebiten.Vertex
		for j, v := range tri.V {
			vs[j] = ebiten.Vertex{
				DstX: float32(v.X), DstY: float32(v.Y),
				SrcX: 1, SrcY: 1,
				ColorR: tri.Shade[0], ColorG: tri.Shade[1], ColorB: tri.Shade[2], ColorA: 1,
			}
		}
		screen.DrawTriangles(vs[:], triangleIndices, whiteSubImage, &ebiten.DrawTrianglesOptions{AntiAlias: true})
	}

	for i := range scene.Cars {
		sc := &scene.Cars[i]
		size := sc.Size
		if size < 3 {
			size = 3 // distant cars stay visible
		}
		alpha := float32(1.0)
		if sc.OnPit {
			alpha = 0.55
		}
		corners := markerCorners(sc.X, sc.Y, sc.DirX, sc.DirY, size)
		drawTriangle(screen, corners, parseHexColor(sc.Color, defaultCarColor), alpha)

		if sc.Selected {
			vector.StrokeCircle(screen, float32(sc.X), float32(sc.Y), float32(size)+5, 2, selectionColor, true)
			a.drawLabel(screen, sc.Name, sc.X-a.textWidth(sc.Name)/2, sc.Y-size-22, selectionColor)
		}
	}
}

var triangleIndices = []uint16{0, 1, 2}

func drawTriangle(dst *ebiten.Image, corners [3][2]float64, clr color.RGBA, alpha float32) {
	var vs [3]ebiten.Vertex
	for i, c := range corners {
		vs[i] = ebiten.Vertex{
			DstX: float32(c[0]), DstY: float32(c[1]),
			SrcX: 1, SrcY: 1,
			ColorR: float32(clr.R) / 255,
			ColorG: float32(clr.G) / 255,
			ColorB: float32(clr.B) / 255,
			ColorA: alpha,
		}
	}
	dst.DrawTriangles(vs[:], triangleIndices, whiteSubImage, &ebiten.DrawTrianglesOptions{AntiAlias: true})
}

// parseHexColor reads a "#rrggbb" wire color, falling back when the
// string does not parse.
func parseHexColor(hex string, fallback color.RGBA) color.RGBA {
	var r, g, b uint8
	if _, err := fmt.Sscanf(hex, "#%02x%02x%02x", &r, &g, &b); err != nil {
		return fallback
	}
	return color.RGBA{R: r, G: g, B: b, A: 0xff}
}
