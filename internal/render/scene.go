package render

import (
	"math"
	"sort"
	"sync/atomic"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Darshbir/toyota-gr-sim/internal/trackgeom"
)

// SceneConfig tunes the perspective projection. Zero values select the
// defaults.
type SceneConfig struct {
	// Width and Height set the viewport in pixels. Default 1280x720.
	Width  int
	Height int

	// FOV is the vertical field of view in radians. Default 0.95.
	FOV float64

	// Pitch is the camera's look-down angle in radians. Default 0.60.
	Pitch float64

	// Distance is the eye-to-center distance in world meters at zoom 1;
	// zooming in moves the eye closer. Default 320.
	Distance float64

	// Near culls geometry closer to the eye than this. Default 2.
	Near float64

	// CarSize is the car marker's world radius. Default 3.
	CarSize float64
}

func (c *SceneConfig) applyDefaults() {
	if c.Width <= 0 {
		c.Width = 1280
	}
	if c.Height <= 0 {
		c.Height = 720
	}
	if c.FOV <= 0 || c.FOV >= math.Pi {
		c.FOV = 0.95
	}
	// Pitch must stay off straight-down or the view basis degenerates.
	if c.Pitch <= 0 || c.Pitch >= 1.45 {
		c.Pitch = 0.60
	}
	if c.Distance <= 0 {
		c.Distance = 320
	}
	if c.Near <= 0 {
		c.Near = 2
	}
	if c.CarSize <= 0 {
		c.CarSize = 3
	}
}

// SceneVertex is one projected triangle corner in screen pixels.
type SceneVertex struct {
	X float64
	Y float64
}

// SceneTriangle is one track triangle projected to the screen.
type SceneTriangle struct {
	V     [3]SceneVertex
	Depth float64 // centroid distance along the view axis
	Shade [3]float32
}

// SceneCar is one car marker projected to the screen. DirX/DirY is the
// unit on-screen heading; Size already accounts for perspective.
type SceneCar struct {
	Name     string
	Color    string
	Selected bool
	OnPit    bool

	X     float64
	Y     float64
	DirX  float64
	DirY  float64
	Size  float64
	Depth float64
}

// Scene is one fully projected perspective view. Triangles and Cars are
// ordered back to front for painter-style drawing. Scenes are immutable
// once published.
type Scene struct {
	FrameID   uint64
	Triangles []SceneTriangle
	Cars      []SceneCar
}

var (
	sceneSurfaceShade  = [3]float32{0.23, 0.24, 0.27}
	sceneBoundaryShade = [3]float32{0.80, 0.80, 0.82}
)

// ScenePainter projects frames through a tilted perspective camera that
// orbits the view center at a zoom-controlled distance. It implements
// Sink; Latest hands the projected scene to whatever draws it.
type ScenePainter struct {
	cfg   SceneConfig
	scene atomic.Pointer[Scene]
}

// NewScenePainter creates a painter for the given viewport.
func NewScenePainter(cfg SceneConfig) *ScenePainter {
	cfg.applyDefaults()
	return &ScenePainter{cfg: cfg}
}

// Consume projects the frame and publishes the result.
func (p *ScenePainter) Consume(frame *Frame) {
	p.scene.Store(p.project(frame))
}

// Latest returns the most recently published scene.
func (p *ScenePainter) Latest() (*Scene, bool) {
	s := p.scene.Load()
	return s, s != nil
}

func (p *ScenePainter) project(frame *Frame) *Scene {
	zoom := frame.Zoom
	if zoom <= 0 {
		zoom = 1
	}
	dist := p.cfg.Distance / zoom
	focus := r3.Vec{X: frame.CenterX, Z: frame.CenterZ}
	eye := r3.Add(focus, r3.Vec{
		Y: dist * math.Sin(p.cfg.Pitch),
		Z: dist * math.Cos(p.cfg.Pitch),
	})
	cam := newSceneCamera(eye, focus, p.cfg)

	scene := &Scene{FrameID: frame.ID}
	if frame.Geometry != nil {
		scene.Triangles = cam.projectMesh(scene.Triangles, frame.Geometry.Surface(), sceneSurfaceShade, 0.03)
		for _, boundary := range frame.Geometry.Boundaries() {
			scene.Triangles = cam.projectMesh(scene.Triangles, boundary, sceneBoundaryShade, 0)
		}
		sort.Slice(scene.Triangles, func(i, j int) bool {
			return scene.Triangles[i].Depth > scene.Triangles[j].Depth
		})
	}

	for i := range frame.Cars {
		if sc, ok := cam.projectCar(&frame.Cars[i], p.cfg.CarSize); ok {
			scene.Cars = append(scene.Cars, sc)
		}
	}
	sort.Slice(scene.Cars, func(i, j int) bool {
		return scene.Cars[i].Depth > scene.Cars[j].Depth
	})
	return scene
}

// sceneCamera is the per-projection view basis and viewport mapping.
type sceneCamera struct {
	eye     r3.Vec
	forward r3.Vec
	right   r3.Vec
	up      r3.Vec

	focal        float64
	halfW, halfH float64
	near         float64
}

func newSceneCamera(eye, focus r3.Vec, cfg SceneConfig) sceneCamera {
	forward := r3.Unit(r3.Sub(focus, eye))
	right := r3.Unit(r3.Cross(forward, r3.Vec{Y: 1}))
	return sceneCamera{
		eye:     eye,
		forward: forward,
		right:   right,
		up:      r3.Cross(right, forward),
		focal:   float64(cfg.Height) / 2 / math.Tan(cfg.FOV/2),
		halfW:   float64(cfg.Width) / 2,
		halfH:   float64(cfg.Height) / 2,
		near:    cfg.Near,
	}
}

// point projects one world position. ok is false behind the near plane.
func (c *sceneCamera) point(v r3.Vec) (sx, sy, depth float64, ok bool) {
	rel := r3.Sub(v, c.eye)
	z := r3.Dot(rel, c.forward)
	if z < c.near {
		return 0, 0, 0, false
	}
	s := c.focal / z
	return c.halfW + r3.Dot(rel, c.right)*s, c.halfH - r3.Dot(rel, c.up)*s, z, true
}

type projectedVertex struct {
	x, y, z float64
	ok      bool
}

// projectMesh appends the mesh's visible triangles to dst. Triangles
// with any corner behind the near plane are dropped whole; elevation
// brightens the shade the same way the top-down painter does.
func (c *sceneCamera) projectMesh(dst []SceneTriangle, mesh *trackgeom.Mesh, base [3]float32, heightGain float32) []SceneTriangle {
	projected := make([]projectedVertex, len(mesh.Vertices))
	for i, v := range mesh.Vertices {
		x, y, z, ok := c.point(r3.Vec{X: v.X, Y: v.Y, Z: v.Z})
		projected[i] = projectedVertex{x: x, y: y, z: z, ok: ok}
	}

	for i := 0; i+2 < len(mesh.Indices); i += 3 {
		ia, ib, ic := mesh.Indices[i], mesh.Indices[i+1], mesh.Indices[i+2]
		a, b, cc := projected[ia], projected[ib], projected[ic]
		if !a.ok || !b.ok || !cc.ok {
			continue
		}

		meanY := (mesh.Vertices[ia].Y + mesh.Vertices[ib].Y + mesh.Vertices[ic].Y) / 3
		lift := float32(meanY) * heightGain
		if lift > 0.12 {
			lift = 0.12
		}
		dst = append(dst, SceneTriangle{
			V: [3]SceneVertex{
				{X: a.x, Y: a.y},
				{X: b.x, Y: b.y},
				{X: cc.x, Y: cc.y},
			},
			Depth: (a.z + b.z + cc.z) / 3,
			Shade: [3]float32{base[0] + lift, base[1] + lift, base[2] + lift},
		})
	}
	return dst
}

// projectCar projects one car marker. The on-screen heading comes from
// projecting a second point one marker-length ahead of the car.
func (c *sceneCamera) projectCar(car *Car, worldSize float64) (SceneCar, bool) {
	pos := r3.Vec{X: car.Position.X, Y: car.Position.Y, Z: car.Position.Z}
	sx, sy, z, ok := c.point(pos)
	if !ok {
		return SceneCar{}, false
	}

	const offscreenMargin = 80
	if sx < -offscreenMargin || sx > 2*c.halfW+offscreenMargin ||
		sy < -offscreenMargin || sy > 2*c.halfH+offscreenMargin {
		return SceneCar{}, false
	}

	ahead := r3.Add(pos, r3.Vec{
		X: math.Sin(car.Angle) * worldSize,
		Z: math.Cos(car.Angle) * worldSize,
	})
	dirX, dirY := 0.0, -1.0
	if ax, ay, _, aok := c.point(ahead); aok {
		dx, dy := ax-sx, ay-sy
		if n := math.Hypot(dx, dy); n > 1e-9 {
			dirX, dirY = dx/n, dy/n
		}
	}

	return SceneCar{
		Name:     car.Name,
		Color:    car.Color,
		Selected: car.Selected,
		OnPit:    car.OnPit,
		X:        sx,
		Y:        sy,
		DirX:     dirX,
		DirY:     dirY,
		Size:     worldSize * c.focal / z,
		Depth:    z,
	}, true
}
