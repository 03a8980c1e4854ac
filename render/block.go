package render

import (
	"context"
	"hash/fnv"
	"image"
	"image/color"
	"image/draw"
	"math"
	"sort"
	"sync"

	"github.com/edaniels/golog"
	"github.com/fogleman/gg"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/RunnersNum40/Kubric-Pallets/camera"
	"github.com/RunnersNum40/Kubric-Pallets/scene"
	"github.com/RunnersNum40/Kubric-Pallets/spatial"
)

// BlockEngine is the built-in rasterizer: every object is drawn as its
// shaded oriented bounding box, with per-pixel depth and segmentation
// buffers. It exists so the pipeline runs end to end without an external
// photorealistic engine, and it honors the same session contract: one
// render in flight at a time, scene state scoped to one sample.
type BlockEngine struct {
	logger golog.Logger

	mu     sync.Mutex
	closed bool
}

// NewBlockEngine acquires a block rasterizer session.
func NewBlockEngine(logger golog.Logger) *BlockEngine {
	return &BlockEngine{logger: logger}
}

// NewScene returns an empty scene.
func (e *BlockEngine) NewScene(ctx context.Context) (SceneState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, errors.New("engine session is closed")
	}
	return &blockScene{engine: e}, nil
}

// Close releases the session.
func (e *BlockEngine) Close(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

type blockObject struct {
	id      string
	pose    spatial.Pose
	dims    r3.Vector
	texture string
}

type blockScene struct {
	engine *BlockEngine

	objects    []blockObject
	cam        *RealizedCamera
	lights     []scene.Light
	background string
	ambient    [3]float64
	closed     bool
}

func (s *blockScene) AddObject(spec ObjectSpec) (ObjectHandle, error) {
	if s.closed {
		return 0, errors.New("scene state is closed")
	}
	s.objects = append(s.objects, blockObject{
		id:      spec.ID,
		pose:    spec.Pose,
		dims:    spec.Dims,
		texture: spec.Texture,
	})
	return ObjectHandle(len(s.objects) - 1), nil
}

func (s *blockScene) SetCamera(pose spatial.Pose, intrinsics camera.Intrinsics) error {
	if s.closed {
		return errors.New("scene state is closed")
	}
	if err := intrinsics.CheckValid(); err != nil {
		return err
	}
	s.cam = &RealizedCamera{Pose: pose, Intrinsics: intrinsics}
	return nil
}

func (s *blockScene) AddLight(light scene.Light) error {
	if s.closed {
		return errors.New("scene state is closed")
	}
	s.lights = append(s.lights, light)
	return nil
}

func (s *blockScene) SetEnvironment(background string, ambient [3]float64) error {
	if s.closed {
		return errors.New("scene state is closed")
	}
	s.background = background
	s.ambient = ambient
	return nil
}

// Close destroys the scene state so nothing leaks into the next sample.
func (s *blockScene) Close() error {
	s.objects = nil
	s.cam = nil
	s.lights = nil
	s.closed = true
	return nil
}

// The four corners of each box face, as indices into the vertex sign table,
// wound counterclockwise seen from outside. Faces are +X, -X, +Y, -Y, +Z,
// -Z in the box's local frame.
var blockFaces = [6]struct {
	normal  r3.Vector
	corners [4]r3.Vector
}{
	{r3.Vector{X: 1}, [4]r3.Vector{{X: 1, Y: 1, Z: 1}, {X: 1, Y: -1, Z: 1}, {X: 1, Y: -1, Z: -1}, {X: 1, Y: 1, Z: -1}}},
	{r3.Vector{X: -1}, [4]r3.Vector{{X: -1, Y: 1, Z: 1}, {X: -1, Y: 1, Z: -1}, {X: -1, Y: -1, Z: -1}, {X: -1, Y: -1, Z: 1}}},
	{r3.Vector{Y: 1}, [4]r3.Vector{{X: 1, Y: 1, Z: 1}, {X: 1, Y: 1, Z: -1}, {X: -1, Y: 1, Z: -1}, {X: -1, Y: 1, Z: 1}}},
	{r3.Vector{Y: -1}, [4]r3.Vector{{X: 1, Y: -1, Z: 1}, {X: -1, Y: -1, Z: 1}, {X: -1, Y: -1, Z: -1}, {X: 1, Y: -1, Z: -1}}},
	{r3.Vector{Z: 1}, [4]r3.Vector{{X: 1, Y: 1, Z: 1}, {X: -1, Y: 1, Z: 1}, {X: -1, Y: -1, Z: 1}, {X: 1, Y: -1, Z: 1}}},
	{r3.Vector{Z: -1}, [4]r3.Vector{{X: 1, Y: 1, Z: -1}, {X: 1, Y: -1, Z: -1}, {X: -1, Y: -1, Z: -1}, {X: -1, Y: 1, Z: -1}}},
}

type rasterFace struct {
	pts    [4]r2.Point
	depth  float64
	shade  color.NRGBA
	object int
}

// Render rasterizes the scene with the painter's algorithm: faces sorted
// far to near, filled into the RGB image via gg and into the depth and
// segmentation buffers by point-in-polygon scanning.
func (s *blockScene) Render(ctx context.Context) (*Frame, error) {
	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, &RenderError{Cause: err}
	}
	if s.closed {
		return nil, &RenderError{Cause: errors.New("scene state is closed")}
	}
	if s.cam == nil {
		return nil, &RenderError{Cause: errors.New("no camera set")}
	}

	intr := s.cam.Intrinsics
	w, h := intr.Width, intr.Height
	camInv := s.cam.Pose.Invert()
	lightDir := s.lightDirection()

	var faces []rasterFace
	for objIdx, obj := range s.objects {
		base := objectColor(obj.id, obj.texture)
		half := obj.dims.Mul(0.5)
		for _, face := range blockFaces {
			var pts [4]r2.Point
			depthSum := 0.0
			visible := true
			for i, sign := range face.corners {
				local := r3.Vector{X: sign.X * half.X, Y: sign.Y * half.Y, Z: sign.Z * half.Z}
				camPt := camInv.TransformPoint(obj.pose.TransformPoint(local))
				u, v, ok := intr.PointToPixel(camPt)
				if !ok {
					visible = false
					break
				}
				pts[i] = r2.Point{X: u, Y: v}
				depthSum += -camPt.Z
			}
			if !visible {
				continue
			}
			normal := spatial.RotateVector(obj.pose.Rotation, face.normal)
			faces = append(faces, rasterFace{
				pts:    pts,
				depth:  depthSum / 4,
				shade:  shadeFace(base, normal, lightDir, s.ambient),
				object: objIdx,
			})
		}
	}
	sort.Slice(faces, func(i, j int) bool { return faces[i].depth > faces[j].depth })

	dc := gg.NewContext(w, h)
	bg := backgroundColor(s.background, s.ambient)
	dc.SetColor(bg)
	dc.Clear()

	depth := NewDepthMap(w, h)
	seg := NewSegmentMap(w, h)
	for _, face := range faces {
		dc.MoveTo(face.pts[0].X, face.pts[0].Y)
		for _, pt := range face.pts[1:] {
			dc.LineTo(pt.X, pt.Y)
		}
		dc.ClosePath()
		dc.SetColor(face.shade)
		dc.Fill()
		rasterizeFace(&face, depth, seg)
	}

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), dc.Image(), image.Point{}, draw.Src)
	s.engine.logger.Debugw("rendered scene", "objects", len(s.objects), "faces", len(faces))

	return &Frame{
		Image:        img,
		Depth:        depth,
		Segmentation: seg,
		Camera:       *s.cam,
	}, nil
}

// lightDirection returns the direction light travels from the scene's
// directional light, or straight down when no light was added.
func (s *blockScene) lightDirection() r3.Vector {
	for _, l := range s.lights {
		if !l.Directional {
			continue
		}
		d := l.AimedAt.Sub(l.Position)
		if d.Norm() > 0 {
			return d.Normalize()
		}
	}
	return r3.Vector{Z: -1}
}

// shadeFace applies Lambert shading to a base color.
func shadeFace(base color.NRGBA, normal, lightDir r3.Vector, ambient [3]float64) color.NRGBA {
	diffuse := math.Max(0, normal.Dot(lightDir.Mul(-1)))
	scale := func(c uint8, amb float64) uint8 {
		v := float64(c) * (0.35*amb + 0.65*diffuse)
		if v > 255 {
			v = 255
		}
		return uint8(v)
	}
	return color.NRGBA{
		R: scale(base.R, ambient[0]),
		G: scale(base.G, ambient[1]),
		B: scale(base.B, ambient[2]),
		A: 255,
	}
}

// rasterizeFace writes the face's depth and object id into the buffers for
// every pixel whose center is inside the projected quad. Faces arrive
// sorted far to near, so nearer faces overwrite.
func rasterizeFace(face *rasterFace, depth *DepthMap, seg *SegmentMap) {
	minX, minY := face.pts[0].X, face.pts[0].Y
	maxX, maxY := minX, minY
	for _, pt := range face.pts[1:] {
		minX = math.Min(minX, pt.X)
		minY = math.Min(minY, pt.Y)
		maxX = math.Max(maxX, pt.X)
		maxY = math.Max(maxY, pt.Y)
	}
	x0 := clampInt(int(math.Floor(minX)), 0, depth.Width()-1)
	x1 := clampInt(int(math.Ceil(maxX)), 0, depth.Width()-1)
	y0 := clampInt(int(math.Floor(minY)), 0, depth.Height()-1)
	y1 := clampInt(int(math.Ceil(maxY)), 0, depth.Height()-1)

	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			p := r2.Point{X: float64(x) + 0.5, Y: float64(y) + 0.5}
			if pointInQuad(p, &face.pts) {
				depth.Set(x, y, float32(face.depth))
				seg.Set(x, y, uint16(face.object+1))
			}
		}
	}
}

// pointInQuad tests whether p lies inside a convex quad by checking that
// the cross products against every edge share a sign.
func pointInQuad(p r2.Point, quad *[4]r2.Point) bool {
	sign := 0.0
	for i := 0; i < 4; i++ {
		a, b := quad[i], quad[(i+1)%4]
		cross := (b.X-a.X)*(p.Y-a.Y) - (b.Y-a.Y)*(p.X-a.X)
		if cross == 0 {
			continue
		}
		if sign == 0 {
			sign = cross
		} else if sign*cross < 0 {
			return false
		}
	}
	return true
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// objectColor derives a stable base color from the object's id and its
// texture: the block rasterizer renders a texture as a tint.
func objectColor(id, texture string) color.NRGBA {
	hash := fnv.New32a()
	//nolint:errcheck
	hash.Write([]byte(id))
	if texture != "" {
		//nolint:errcheck
		hash.Write([]byte{0})
		//nolint:errcheck
		hash.Write([]byte(texture))
	}
	hue := float64(hash.Sum32()%360) / 360
	r, g, b := hsvToRGB(hue, 0.55, 0.9)
	return color.NRGBA{R: r, G: g, B: b, A: 255}
}

// backgroundColor derives a stable backdrop color from the background name,
// tinted by the ambient illumination.
func backgroundColor(name string, ambient [3]float64) color.NRGBA {
	hash := fnv.New32a()
	//nolint:errcheck
	hash.Write([]byte(name))
	hue := float64(hash.Sum32()%360) / 360
	r, g, b := hsvToRGB(hue, 0.15, 0.35)
	return color.NRGBA{
		R: uint8(float64(r) * ambient[0]),
		G: uint8(float64(g) * ambient[1]),
		B: uint8(float64(b) * ambient[2]),
		A: 255,
	}
}

func hsvToRGB(h, s, v float64) (uint8, uint8, uint8) {
	i := int(h * 6)
	f := h*6 - float64(i)
	p := v * (1 - s)
	q := v * (1 - f*s)
	t := v * (1 - (1-f)*s)
	var r, g, b float64
	switch i % 6 {
	case 0:
		r, g, b = v, t, p
	case 1:
		r, g, b = q, v, p
	case 2:
		r, g, b = p, v, t
	case 3:
		r, g, b = p, q, v
	case 4:
		r, g, b = t, p, v
	default:
		r, g, b = v, p, q
	}
	return uint8(r * 255), uint8(g * 255), uint8(b * 255)
}
