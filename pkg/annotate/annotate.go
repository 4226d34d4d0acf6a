// Package annotate draws the fall overlay onto video frames.
package annotate

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/teslashibe/go-falldetect/pkg/fall"
	"github.com/teslashibe/go-falldetect/pkg/pose"
	"gocv.io/x/gocv"
)

// BannerText is drawn when a fall is detected
const BannerText = "FALL DETECTED!"

var (
	Red   = color.RGBA{R: 255, G: 0, B: 0, A: 255}
	Green = color.RGBA{R: 0, G: 255, B: 0, A: 255}

	// JointColor and LimbColor paint the skeleton
	JointColor = color.RGBA{R: 66, G: 117, B: 245, A: 255}
	LimbColor  = color.RGBA{R: 230, G: 66, B: 245, A: 255}
)

// Font defines the parameters for rendering a text label
type Font struct {
	Face      gocv.HersheyFont
	Scale     float64
	Color     color.RGBA
	Thickness int
	Origin    image.Point
}

// Style controls how the overlay is drawn
type Style struct {
	Timer  Font
	Banner Font

	LimbThickness int
	JointRadius   int
	// MinVisibility hides landmarks at or below this visibility
	MinVisibility float64
}

// DefaultStyle returns the default overlay style
func DefaultStyle() Style {
	return Style{
		Timer: Font{
			Face:      gocv.FontHersheySimplex,
			Scale:     1,
			Color:     Green,
			Thickness: 2,
			Origin:    image.Pt(10, 30),
		},
		Banner: Font{
			Face:      gocv.FontHersheySimplex,
			Scale:     1,
			Color:     Red,
			Thickness: 2,
			Origin:    image.Pt(10, 60),
		},
		LimbThickness: 2,
		JointRadius:   2,
		MinVisibility: 0.5,
	}
}

// Annotate returns a copy of frame with the skeleton, the elapsed time label
// and, for a fall, the banner. The input frame is not modified and the
// caller owns the returned Mat.
func Annotate(frame gocv.Mat, lms pose.LandmarkSet, res fall.Result, ts float64) gocv.Mat {
	return AnnotateWithStyle(frame, lms, res, ts, DefaultStyle())
}

// AnnotateWithStyle is Annotate with a custom style.
func AnnotateWithStyle(frame gocv.Mat, lms pose.LandmarkSet, res fall.Result, ts float64, st Style) gocv.Mat {
	out := frame.Clone()
	if out.Empty() {
		return out
	}

	if !lms.Empty() {
		drawSkeleton(&out, lms, st)
	}

	if res.Fallen {
		putText(&out, BannerText, st.Banner)
	}
	putText(&out, FormatElapsed(ts), st.Timer)

	return out
}

// drawSkeleton renders limbs between visible landmarks, then the joints
func drawSkeleton(img *gocv.Mat, lms pose.LandmarkSet, st Style) {
	w, h := img.Cols(), img.Rows()

	for _, pair := range pose.Skeleton {
		a, okA := lms.Visible(pair[0], st.MinVisibility)
		b, okB := lms.Visible(pair[1], st.MinVisibility)
		if !okA || !okB {
			continue
		}
		gocv.Line(img, toPixel(a, w, h), toPixel(b, w, h), LimbColor, st.LimbThickness)
	}

	for role := pose.Role(0); role < pose.NumRoles; role++ {
		lm, ok := lms.Visible(role, st.MinVisibility)
		if !ok {
			continue
		}
		gocv.Circle(img, toPixel(lm, w, h), st.JointRadius, JointColor, -1)
	}
}

func putText(img *gocv.Mat, text string, f Font) {
	gocv.PutText(img, text, f.Origin, f.Face, f.Scale, f.Color, f.Thickness)
}

// toPixel maps a normalized landmark onto the frame
func toPixel(lm pose.Landmark, w, h int) image.Point {
	return image.Pt(int(lm.X*float64(w)), int(lm.Y*float64(h)))
}

// FormatElapsed renders seconds as MM:SS.CC
func FormatElapsed(ts float64) string {
	if ts < 0 || math.IsNaN(ts) {
		ts = 0
	}
	minutes := int(ts / 60)
	seconds := int(math.Mod(ts, 60))
	centis := int(math.Mod(ts, 1) * 100)
	return fmt.Sprintf("%02d:%02d.%02d", minutes, seconds, centis)
}
