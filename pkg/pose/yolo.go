package pose

import (
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

// YOLOConfig holds the YOLOv8-pose model configuration
type YOLOConfig struct {
	ModelPath   string
	NMSThresh   float32
	InputWidth  int
	InputHeight int
	// TrackIoU is the minimum overlap with the previous box for a detection
	// to be accepted at TrackingConfidence instead of DetectionConfidence.
	TrackIoU float64
}

// DefaultYOLOConfig returns production defaults for YOLOv8n-pose
func DefaultYOLOConfig() YOLOConfig {
	return YOLOConfig{
		ModelPath:   "models/yolov8n-pose.onnx",
		NMSThresh:   0.45,
		InputWidth:  640,
		InputHeight: 640,
		TrackIoU:    0.3,
	}
}

// YOLOPose finds a single person's keypoints with a YOLOv8-pose ONNX model.
type YOLOPose struct {
	net    gocv.Net
	config YOLOConfig
	opts   Options
	mu     sync.Mutex
	closed bool

	inputSize image.Point
	// last is the box of the person tracked in the previous frame,
	// normalized to the input size. Empty when nobody is tracked.
	last image.Rectangle
}

// candidate is one decoded person from the model output
type candidate struct {
	box   image.Rectangle
	score float32
	col   int
}

// NewYOLOPose loads the pose model. The returned source owns the network
// until Close is called.
func NewYOLOPose(cfg YOLOConfig, opts Options) (*YOLOPose, error) {
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, cfg.ModelPath)
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("pose: failed to load model from %s", cfg.ModelPath)
	}

	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &YOLOPose{
		net:       net,
		config:    cfg,
		opts:      opts,
		inputSize: image.Pt(cfg.InputWidth, cfg.InputHeight),
	}, nil
}

// Detect runs the model on an RGB frame and returns the landmarks of the
// best scoring person.
func (y *YOLOPose) Detect(rgb gocv.Mat) (LandmarkSet, error) {
	y.mu.Lock()
	defer y.mu.Unlock()

	if y.closed {
		return nil, fmt.Errorf("pose: detector closed")
	}
	if rgb.Empty() {
		return nil, fmt.Errorf("pose: empty image")
	}

	// frame is already RGB, so no channel swap
	blob := gocv.BlobFromImage(rgb, 1.0/255.0, y.inputSize, gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	y.net.SetInput(blob, "")

	output := y.net.Forward("")
	defer output.Close()

	return y.parse(output)
}

// parse decodes the YOLOv8-pose output tensor.
// Output shape: [1, 56, N] - 56 = 4 bbox + 1 person score + 17 * (x, y, conf)
func (y *YOLOPose) parse(output gocv.Mat) (LandmarkSet, error) {
	dims := output.Size()
	if len(dims) != 3 || dims[1] != 5+3*int(NumRoles) {
		return nil, fmt.Errorf("pose: unexpected output shape %v", dims)
	}
	rows := dims[2]

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("pose: read output: %w", err)
	}

	// accept anything that could pass either gate, decide after NMS
	floor := float32(min(y.opts.DetectionConfidence, y.opts.TrackingConfidence))

	var cands []candidate
	var boxes []image.Rectangle
	var scores []float32

	for i := 0; i < rows; i++ {
		score := data[4*rows+i]
		if score < floor {
			continue
		}

		cx := data[0*rows+i]
		cy := data[1*rows+i]
		w := data[2*rows+i]
		h := data[3*rows+i]

		box := image.Rect(int(cx-w/2), int(cy-h/2), int(cx+w/2), int(cy+h/2))
		cands = append(cands, candidate{box: box, score: score, col: i})
		boxes = append(boxes, box)
		scores = append(scores, score)
	}

	if len(boxes) == 0 {
		y.last = image.Rectangle{}
		return LandmarkSet{}, nil
	}

	indices := gocv.NMSBoxes(boxes, scores, floor, y.config.NMSThresh)

	best := -1
	for _, idx := range indices {
		if !y.accept(cands[idx]) {
			continue
		}
		if best < 0 || cands[idx].score > cands[best].score {
			best = idx
		}
	}

	if best < 0 {
		y.last = image.Rectangle{}
		return LandmarkSet{}, nil
	}

	y.last = cands[best].box
	return y.keypoints(data, rows, cands[best].col), nil
}

// accept applies the detection or tracking gate to a candidate.
func (y *YOLOPose) accept(c candidate) bool {
	if float64(c.score) >= y.opts.DetectionConfidence {
		return true
	}
	if y.last.Empty() || float64(c.score) < y.opts.TrackingConfidence {
		return false
	}
	return iou(y.last, c.box) >= y.config.TrackIoU
}

// keypoints extracts and normalizes the 17 keypoints of one output column
func (y *YOLOPose) keypoints(data []float32, rows, col int) LandmarkSet {
	set := make(LandmarkSet, NumRoles)
	inW := float64(y.config.InputWidth)
	inH := float64(y.config.InputHeight)

	for r := Role(0); r < NumRoles; r++ {
		base := 5 + 3*int(r)
		set[r] = Landmark{
			X:          float64(data[(base+0)*rows+col]) / inW,
			Y:          float64(data[(base+1)*rows+col]) / inH,
			Visibility: float64(data[(base+2)*rows+col]),
		}
	}

	return set
}

// Close releases the detector resources. Safe to call more than once.
func (y *YOLOPose) Close() error {
	y.mu.Lock()
	defer y.mu.Unlock()

	if y.closed {
		return nil
	}
	y.closed = true
	return y.net.Close()
}

// iou returns the intersection over union of two boxes
func iou(a, b image.Rectangle) float64 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}
	ia := float64(inter.Dx() * inter.Dy())
	union := float64(a.Dx()*a.Dy()+b.Dx()*b.Dy()) - ia
	if union <= 0 {
		return 0
	}
	return ia / union
}
