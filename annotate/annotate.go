// Package annotate derives ground-truth labels from a sampled scene
// configuration and the camera parameters the renderer actually used: 6DOF
// pose in the camera frame, 2D projections, and visibility flags.
package annotate

import (
	"fmt"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/RunnersNum40/Kubric-Pallets/camera"
	"github.com/RunnersNum40/Kubric-Pallets/render"
	"github.com/RunnersNum40/Kubric-Pallets/scene"
	"github.com/RunnersNum40/Kubric-Pallets/spatial"
)

// Options tunes label derivation.
type Options struct {
	// VisibleAreaThreshold is the ratio of visible to full projected area
	// below which an object is flagged occluded.
	VisibleAreaThreshold float64
}

// Annotation is the ground-truth record for one placed object in one
// rendered frame.
type Annotation struct {
	// ObjectID distinguishes repeated assets within a scene.
	ObjectID string `json:"object_id"`
	AssetID  string `json:"asset_id"`
	Target   bool   `json:"target"`

	// PoseInCamera is the object's 6DOF pose in the camera frame, rotation
	// stored as a unit quaternion.
	PoseInCamera spatial.Pose `json:"pose_in_camera"`

	// Keypoints are the projected bounding-box corners that landed in
	// front of the camera, in pixel coordinates.
	Keypoints [][2]float64 `json:"keypoints_px"`
	// Polygon is the projected bounding polygon clipped to image bounds.
	Polygon [][2]float64 `json:"polygon_px"`
	// BoundingBox is x0, y0, x1, y1 of the clipped polygon.
	BoundingBox [4]float64 `json:"bounding_box_px"`

	// VisibleRatio compares the visible projected area to the full
	// projected area.
	VisibleRatio float64 `json:"visible_ratio"`
	// Visible is false when the object counts as occluded or truncated
	// below the configured threshold.
	Visible bool `json:"visible"`
	// Truncated is set when part of the object projects outside the image
	// or behind the camera.
	Truncated bool `json:"truncated"`
}

// Extract computes annotations for every placed object in the frame. The
// camera parameters come from the frame — the realized values reported by
// the engine — not from the sampled configuration, so labels stay
// consistent with pixels. Objects entirely outside the camera frustum are
// omitted.
func Extract(cfg *scene.Config, frame *render.Frame, opts Options) ([]Annotation, error) {
	if frame == nil {
		return nil, errors.New("no frame to annotate")
	}
	intr := frame.Camera.Intrinsics
	if err := intr.CheckValid(); err != nil {
		return nil, err
	}
	camInv := frame.Camera.Pose.Invert()
	w, h := float64(intr.Width), float64(intr.Height)

	annotations := make([]Annotation, 0, len(cfg.Placements))
	for i := range cfg.Placements {
		p := &cfg.Placements[i]
		poseInCam := spatial.Compose(camInv, p.Pose)

		box, err := p.Box()
		if err != nil {
			return nil, err
		}
		projected, truncated := projectVertices(box.Vertices(), camInv, &intr)
		if len(projected) == 0 {
			// Entirely behind the camera.
			continue
		}

		hull := convexHull(projected)
		fullArea := polygonArea(hull)
		clipped := clipToRect(hull, w, h)
		clippedArea := polygonArea(clipped)
		if len(clipped) == 0 || clippedArea == 0 {
			// In front of the camera but entirely outside the image.
			continue
		}
		if clippedArea < fullArea-1e-9 {
			truncated = true
		}

		ratio := visibleRatio(i, fullArea, clippedArea, frame.Segmentation)
		lo, hi := boundingRect(clipped)

		annotations = append(annotations, Annotation{
			ObjectID:     fmt.Sprintf("%s#%d", p.AssetID, i),
			AssetID:      p.AssetID,
			Target:       p.Target,
			PoseInCamera: poseInCam,
			Keypoints:    toPairs(projected),
			Polygon:      toPairs(clipped),
			BoundingBox:  [4]float64{lo.X, lo.Y, hi.X, hi.Y},
			VisibleRatio: ratio,
			Visible:      ratio >= opts.VisibleAreaThreshold,
			Truncated:    truncated,
		})
	}
	return annotations, nil
}

// projectVertices projects world-frame vertices to pixels, dropping the
// ones behind the camera. The boolean reports whether any vertex was
// dropped.
func projectVertices(verts []r3.Vector, camInv spatial.Pose, intr *camera.Intrinsics) ([]r2.Point, bool) {
	projected := make([]r2.Point, 0, len(verts))
	dropped := false
	for _, vert := range verts {
		u, v, ok := intr.PointToPixel(camInv.TransformPoint(vert))
		if !ok {
			dropped = true
			continue
		}
		projected = append(projected, r2.Point{X: u, Y: v})
	}
	return projected, dropped
}

// visibleRatio prefers the segmentation buffer when the engine produced
// one: the object's own pixel count against its full projected area
// accounts for occlusion by other objects. Without a buffer it falls back
// to the clipped-vs-full bounding polygon areas, which only accounts for
// truncation.
func visibleRatio(objectIndex int, fullArea, clippedArea float64, seg *render.SegmentMap) float64 {
	if fullArea <= 0 {
		return 0
	}
	if seg != nil {
		ratio := float64(seg.CountObject(objectIndex)) / fullArea
		if ratio > 1 {
			ratio = 1
		}
		return ratio
	}
	ratio := clippedArea / fullArea
	if ratio > 1 {
		ratio = 1
	}
	return ratio
}

func toPairs(pts []r2.Point) [][2]float64 {
	out := make([][2]float64, 0, len(pts))
	for _, p := range pts {
		out = append(out, [2]float64{p.X, p.Y})
	}
	return out
}
