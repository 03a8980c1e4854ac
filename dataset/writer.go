// Package dataset serializes rendered frames and their annotations into an
// append-only on-disk dataset: one directory per sample plus a run manifest
// and a line-delimited index.
package dataset

import (
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"time"

	"github.com/edaniels/golog"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
	"golang.org/x/image/tiff"

	"github.com/RunnersNum40/Kubric-Pallets/annotate"
	"github.com/RunnersNum40/Kubric-Pallets/render"
	"github.com/RunnersNum40/Kubric-Pallets/scene"
)

// Per-sample file names, matching the original generator's layout.
const (
	imageFileName        = "rgba.png"
	depthFileName        = "depth.tiff"
	segmentationFileName = "segmentation.png"
	annotationFileName   = "annotation.json"
	indexFileName        = "index.jsonl"
)

// maxStoredDepthM is the clip applied before quantizing depth to 16 bits,
// the same cap the original generator used for its normalized depth output.
const maxStoredDepthM = 100.0

// depthScale converts clipped meters to 16-bit depth values (millimeters).
const depthScale = 1000.0

// IOError marks a persistence failure. Unlike the per-sample error types it
// is fatal to the run: the output destination is unusable.
type IOError struct {
	Path  string
	Cause error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("dataset write to %s failed: %v", e.Path, e.Cause)
}

// Unwrap returns the underlying filesystem error.
func (e *IOError) Unwrap() error { return e.Cause }

// Options configures a writer's slice of the sample index space. Workers
// writing to the same dataset directory must use non-colliding slices:
// worker w of n uses Start=w, Stride=n.
type Options struct {
	Start  int
	Stride int
}

// Record describes one persisted sample.
type Record struct {
	Index     int       `json:"index"`
	Seed      int64     `json:"seed"`
	View      int       `json:"view"`
	Dir       string    `json:"dir"`
	RunID     string    `json:"run_id"`
	CreatedAt time.Time `json:"created_at"`
}

// annotationFile is the on-disk schema of a sample's annotation record. The
// stored seed makes every sample reproducible by re-running the sampler.
type annotationFile struct {
	Index       int                   `json:"index"`
	Seed        int64                 `json:"seed"`
	View        int                   `json:"view"`
	RunID       string                `json:"run_id"`
	Camera      render.RealizedCamera `json:"camera"`
	Background  string                `json:"background"`
	Objects     []annotate.Annotation `json:"objects"`
	ImageFile   string                `json:"image_file"`
	DepthFile   string                `json:"depth_file,omitempty"`
	SegmentFile string                `json:"segmentation_file,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
}

// Writer persists samples under a dataset directory. Existing sample
// directories are never overwritten; a collision is an IOError.
type Writer struct {
	dir    string
	runID  uuid.UUID
	next   int
	stride int
	logger golog.Logger
}

// NewWriter prepares a dataset directory and writes this run's manifest.
func NewWriter(dir string, opts Options, logger golog.Logger) (*Writer, error) {
	if opts.Stride < 1 {
		opts.Stride = 1
	}
	if opts.Start < 0 {
		return nil, errors.Errorf("start index %d must be non-negative", opts.Start)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &IOError{Path: dir, Cause: err}
	}
	w := &Writer{
		dir:    dir,
		runID:  uuid.New(),
		next:   opts.Start,
		stride: opts.Stride,
		logger: logger,
	}
	manifest := map[string]interface{}{
		"run_id":      w.runID.String(),
		"created_at":  time.Now().UTC(),
		"start_index": opts.Start,
		"stride":      opts.Stride,
	}
	manifestPath := filepath.Join(dir, fmt.Sprintf("run_%s.json", w.runID))
	if err := writeJSONExclusive(manifestPath, manifest); err != nil {
		return nil, err
	}
	return w, nil
}

// RunID identifies this writer's run in the manifest and every record.
func (w *Writer) RunID() string {
	return w.runID.String()
}

// Write persists one sample and advances the writer's index by its stride.
func (w *Writer) Write(frame *render.Frame, annotations []annotate.Annotation, cfg *scene.Config) (*Record, error) {
	index := w.next
	sampleDir := filepath.Join(w.dir, fmt.Sprintf("sample_%06d", index))
	// Mkdir, not MkdirAll: an existing directory means an index collision
	// and must not be overwritten.
	if err := os.Mkdir(sampleDir, 0o755); err != nil {
		return nil, &IOError{Path: sampleDir, Cause: err}
	}

	if err := w.writePNG(filepath.Join(sampleDir, imageFileName), frame.Image); err != nil {
		return nil, err
	}
	record := annotationFile{
		Index:      index,
		Seed:       cfg.Seed,
		View:       cfg.View,
		RunID:      w.runID.String(),
		Camera:     frame.Camera,
		Background: cfg.Background,
		Objects:    annotations,
		ImageFile:  imageFileName,
		CreatedAt:  time.Now().UTC(),
	}
	if frame.Depth != nil {
		if err := w.writeDepthTIFF(filepath.Join(sampleDir, depthFileName), frame.Depth); err != nil {
			return nil, err
		}
		record.DepthFile = depthFileName
	}
	if frame.Segmentation != nil {
		if err := w.writeSegmentationPNG(filepath.Join(sampleDir, segmentationFileName), frame.Segmentation); err != nil {
			return nil, err
		}
		record.SegmentFile = segmentationFileName
	}
	annotationPath := filepath.Join(sampleDir, annotationFileName)
	if err := writeJSONExclusive(annotationPath, record); err != nil {
		return nil, err
	}

	out := &Record{
		Index:     index,
		Seed:      cfg.Seed,
		View:      cfg.View,
		Dir:       sampleDir,
		RunID:     w.runID.String(),
		CreatedAt: record.CreatedAt,
	}
	if err := w.appendIndex(out); err != nil {
		return nil, err
	}
	w.next += w.stride
	w.logger.Debugw("wrote sample", "index", index, "seed", cfg.Seed, "objects", len(annotations))
	return out, nil
}

func (w *Writer) writePNG(path string, img image.Image) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return &IOError{Path: path, Cause: err}
	}
	if err := png.Encode(f, img); err != nil {
		return &IOError{Path: path, Cause: multierr.Append(err, f.Close())}
	}
	if err := f.Close(); err != nil {
		return &IOError{Path: path, Cause: err}
	}
	return nil
}

// writeDepthTIFF stores depth as 16-bit grayscale millimeters, clipped to
// maxStoredDepthM. Pixels with no geometry store zero.
func (w *Writer) writeDepthTIFF(path string, depth *render.DepthMap) error {
	img := image.NewGray16(image.Rect(0, 0, depth.Width(), depth.Height()))
	for y := 0; y < depth.Height(); y++ {
		for x := 0; x < depth.Width(); x++ {
			d := float64(depth.At(x, y))
			if d > maxStoredDepthM {
				continue
			}
			img.SetGray16(x, y, gray16(d*depthScale))
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return &IOError{Path: path, Cause: err}
	}
	if err := tiff.Encode(f, img, &tiff.Options{Compression: tiff.Deflate}); err != nil {
		return &IOError{Path: path, Cause: multierr.Append(err, f.Close())}
	}
	if err := f.Close(); err != nil {
		return &IOError{Path: path, Cause: err}
	}
	return nil
}

func (w *Writer) writeSegmentationPNG(path string, seg *render.SegmentMap) error {
	img := image.NewGray16(image.Rect(0, 0, seg.Width(), seg.Height()))
	for y := 0; y < seg.Height(); y++ {
		for x := 0; x < seg.Width(); x++ {
			img.SetGray16(x, y, gray16(float64(seg.At(x, y))))
		}
	}
	return w.writePNG(path, img)
}

// appendIndex adds one line to the dataset's shared index. Appends from
// workers with disjoint index slices interleave without colliding.
func (w *Writer) appendIndex(record *Record) error {
	path := filepath.Join(w.dir, indexFileName)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return &IOError{Path: path, Cause: err}
	}
	defer utils.UncheckedErrorFunc(f.Close)
	line, err := json.Marshal(record)
	if err != nil {
		return &IOError{Path: path, Cause: err}
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return &IOError{Path: path, Cause: err}
	}
	return nil
}

func writeJSONExclusive(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &IOError{Path: path, Cause: err}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return &IOError{Path: path, Cause: err}
	}
	if _, err := f.Write(data); err != nil {
		return &IOError{Path: path, Cause: multierr.Append(err, f.Close())}
	}
	if err := f.Close(); err != nil {
		return &IOError{Path: path, Cause: err}
	}
	return nil
}

func gray16(v float64) color.Gray16 {
	if v < 0 {
		v = 0
	}
	if v > 65535 {
		v = 65535
	}
	return color.Gray16{Y: uint16(v)}
}
