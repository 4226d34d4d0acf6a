// Package fall decides whether a body posture is a fall from its landmarks.
//
// Three geometric signals are OR-ed together; any one of them is a fall.
package fall

import (
	"math"

	"github.com/teslashibe/go-falldetect/pkg/pose"
)

const (
	// MinVisibility is the visibility a required landmark must exceed.
	MinVisibility = 0.5

	// TiltLimitDegrees is the spine tilt from upright that counts as a fall.
	TiltLimitDegrees = 60.0
)

// Required are the landmarks the classifier needs to say anything.
var Required = []pose.Role{
	pose.Nose,
	pose.LeftHip,
	pose.RightHip,
	pose.LeftShoulder,
	pose.RightShoulder,
}

// Thresholds are the per-session tuning knobs.
type Thresholds struct {
	// Fall is the minimum hip-minus-shoulder vertical displacement.
	Fall float64
	// Ground is the minimum average hip Y for the hips to be near the floor.
	Ground float64
}

// DefaultThresholds returns the default thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Fall:   0.3,
		Ground: 0.8,
	}
}

// Result is the outcome of one classification. The zero value is the
// neutral "no clear body signal" result.
type Result struct {
	Fallen bool `json:"fallen"`

	VerticalDisplacement float64 `json:"vertical_displacement"`
	NoseBelowHips        bool    `json:"nose_below_hips"`
	SpineAngle           float64 `json:"spine_angle_degrees"`

	// Individual signals
	Collapse bool `json:"collapse"`
	Inverted bool `json:"inverted"`
	Tilted   bool `json:"tilted"`
}

// Classify evaluates the landmarks of one frame.
func Classify(lms pose.LandmarkSet, th Thresholds) Result {
	pts := make(map[pose.Role]pose.Landmark, len(Required))
	for _, role := range Required {
		lm, ok := lms.Visible(role, MinVisibility)
		if !ok {
			return Result{}
		}
		pts[role] = lm
	}

	nose := pts[pose.Nose]
	lh, rh := pts[pose.LeftHip], pts[pose.RightHip]
	ls, rs := pts[pose.LeftShoulder], pts[pose.RightShoulder]

	var r Result

	// Y grows downward; positive when the hips are below the shoulders
	avgHip := (lh.Y + rh.Y) / 2
	avgShoulder := (ls.Y + rs.Y) / 2
	r.VerticalDisplacement = avgHip - avgShoulder
	r.Collapse = r.VerticalDisplacement > th.Fall && avgHip > th.Ground

	r.NoseBelowHips = nose.Y > lh.Y && nose.Y > rh.Y
	r.Inverted = r.NoseBelowHips

	// Left hip only.
	r.SpineAngle = SpineAngle(nose, lh)
	r.Tilted = r.SpineAngle > TiltLimitDegrees

	r.Fallen = r.Collapse || r.Inverted || r.Tilted
	return r
}

// SpineAngle returns the absolute angle in degrees between the hip-to-nose
// vector and the upright axis: 0 standing straight, 90 lying flat, 180
// upside down.
func SpineAngle(nose, hip pose.Landmark) float64 {
	dy := nose.Y - hip.Y
	dx := nose.X - hip.X
	if dx == 0 && dy == 0 {
		return 0
	}
	// upright points toward negative Y
	return math.Abs(math.Atan2(dx, -dy) * 180 / math.Pi)
}
