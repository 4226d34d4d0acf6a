package fall

import (
	"math"
	"testing"

	"github.com/teslashibe/go-falldetect/pkg/pose"
)

// standing returns an upright body in the middle of the frame.
func standing() pose.LandmarkSet {
	return pose.LandmarkSet{
		pose.Nose:          {X: 0.50, Y: 0.20, Visibility: 0.99},
		pose.LeftShoulder:  {X: 0.45, Y: 0.35, Visibility: 0.99},
		pose.RightShoulder: {X: 0.55, Y: 0.35, Visibility: 0.99},
		pose.LeftHip:       {X: 0.46, Y: 0.60, Visibility: 0.99},
		pose.RightHip:      {X: 0.54, Y: 0.60, Visibility: 0.99},
	}
}

func with(set pose.LandmarkSet, role pose.Role, lm pose.Landmark) pose.LandmarkSet {
	out := make(pose.LandmarkSet, len(set))
	for k, v := range set {
		out[k] = v
	}
	out[role] = lm
	return out
}

func TestClassify_Standing(t *testing.T) {
	r := Classify(standing(), DefaultThresholds())

	if r.Fallen {
		t.Errorf("upright pose classified as fallen: %+v", r)
	}
	if r.SpineAngle > 15 {
		t.Errorf("SpineAngle = %.1f, want near 0 for upright pose", r.SpineAngle)
	}
	if math.Abs(r.VerticalDisplacement-0.25) > 1e-9 {
		t.Errorf("VerticalDisplacement = %f, want 0.25", r.VerticalDisplacement)
	}
}

func TestClassify_MissingOrHiddenLandmarks(t *testing.T) {
	// Head below hips would be a fall if the body signal were clear
	fallen := with(standing(), pose.Nose, pose.Landmark{X: 0.5, Y: 0.9, Visibility: 0.99})

	for _, role := range Required {
		t.Run("missing "+role.String(), func(t *testing.T) {
			set := with(fallen, role, pose.Landmark{})
			delete(set, role)
			if r := Classify(set, DefaultThresholds()); r != (Result{}) {
				t.Errorf("expected neutral result, got %+v", r)
			}
		})

		t.Run("hidden "+role.String(), func(t *testing.T) {
			lm := fallen[role]
			lm.Visibility = MinVisibility
			set := with(fallen, role, lm)
			if r := Classify(set, DefaultThresholds()); r != (Result{}) {
				t.Errorf("expected neutral result at visibility %.1f, got %+v", MinVisibility, r)
			}
		})
	}

	if r := Classify(nil, DefaultThresholds()); r.Fallen {
		t.Error("nil landmark set must not be a fall")
	}
}

func TestClassify_Signals(t *testing.T) {
	tests := []struct {
		name     string
		set      pose.LandmarkSet
		collapse bool
		inverted bool
		tilted   bool
	}{
		{
			name: "collapse near the ground",
			set: pose.LandmarkSet{
				pose.Nose:          {X: 0.50, Y: 0.30, Visibility: 0.9},
				pose.LeftShoulder:  {X: 0.45, Y: 0.40, Visibility: 0.9},
				pose.RightShoulder: {X: 0.55, Y: 0.40, Visibility: 0.9},
				pose.LeftHip:       {X: 0.48, Y: 0.85, Visibility: 0.9},
				pose.RightHip:      {X: 0.52, Y: 0.85, Visibility: 0.9},
			},
			collapse: true,
		},
		{
			name: "large displacement but hips high",
			set: pose.LandmarkSet{
				pose.Nose:          {X: 0.50, Y: 0.05, Visibility: 0.9},
				pose.LeftShoulder:  {X: 0.45, Y: 0.10, Visibility: 0.9},
				pose.RightShoulder: {X: 0.55, Y: 0.10, Visibility: 0.9},
				pose.LeftHip:       {X: 0.48, Y: 0.50, Visibility: 0.9},
				pose.RightHip:      {X: 0.52, Y: 0.50, Visibility: 0.9},
			},
		},
		{
			name: "head below hips",
			set: pose.LandmarkSet{
				pose.Nose:          {X: 0.50, Y: 0.90, Visibility: 0.9},
				pose.LeftShoulder:  {X: 0.45, Y: 0.75, Visibility: 0.9},
				pose.RightShoulder: {X: 0.55, Y: 0.75, Visibility: 0.9},
				pose.LeftHip:       {X: 0.50, Y: 0.50, Visibility: 0.9},
				pose.RightHip:      {X: 0.50, Y: 0.50, Visibility: 0.9},
			},
			inverted: true,
			tilted:   true,
		},
		{
			name: "lying flat",
			set: pose.LandmarkSet{
				pose.Nose:          {X: 0.20, Y: 0.60, Visibility: 0.9},
				pose.LeftShoulder:  {X: 0.35, Y: 0.58, Visibility: 0.9},
				pose.RightShoulder: {X: 0.35, Y: 0.64, Visibility: 0.9},
				pose.LeftHip:       {X: 0.60, Y: 0.58, Visibility: 0.9},
				pose.RightHip:      {X: 0.60, Y: 0.64, Visibility: 0.9},
			},
			tilted: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := Classify(tc.set, DefaultThresholds())
			if r.Collapse != tc.collapse {
				t.Errorf("Collapse = %v, want %v (displacement %.2f)", r.Collapse, tc.collapse, r.VerticalDisplacement)
			}
			if r.Inverted != tc.inverted {
				t.Errorf("Inverted = %v, want %v", r.Inverted, tc.inverted)
			}
			if r.Tilted != tc.tilted {
				t.Errorf("Tilted = %v, want %v (angle %.1f)", r.Tilted, tc.tilted, r.SpineAngle)
			}
			want := tc.collapse || tc.inverted || tc.tilted
			if r.Fallen != want {
				t.Errorf("Fallen = %v, want %v", r.Fallen, want)
			}
		})
	}
}

func TestClassify_HeadBelowHipsScenario(t *testing.T) {
	set := with(standing(), pose.Nose, pose.Landmark{X: 0.5, Y: 0.9, Visibility: 0.99})
	set = with(set, pose.LeftHip, pose.Landmark{X: 0.46, Y: 0.5, Visibility: 0.99})
	set = with(set, pose.RightHip, pose.Landmark{X: 0.54, Y: 0.5, Visibility: 0.99})

	r := Classify(set, DefaultThresholds())
	if !r.Fallen || !r.NoseBelowHips {
		t.Errorf("nose below both hips should be a fall, got %+v", r)
	}
}

func TestClassify_ThresholdsArePerCall(t *testing.T) {
	set := pose.LandmarkSet{
		pose.Nose:          {X: 0.50, Y: 0.40, Visibility: 0.9},
		pose.LeftShoulder:  {X: 0.45, Y: 0.50, Visibility: 0.9},
		pose.RightShoulder: {X: 0.55, Y: 0.50, Visibility: 0.9},
		pose.LeftHip:       {X: 0.49, Y: 0.75, Visibility: 0.9},
		pose.RightHip:      {X: 0.51, Y: 0.75, Visibility: 0.9},
	}

	if Classify(set, DefaultThresholds()).Fallen {
		t.Error("default thresholds should not fire for displacement 0.25 at hip 0.75")
	}
	if !Classify(set, Thresholds{Fall: 0.2, Ground: 0.7}).Fallen {
		t.Error("lenient thresholds should fire for displacement 0.25 at hip 0.75")
	}
}

func TestSpineAngle(t *testing.T) {
	hip := pose.Landmark{X: 0.5, Y: 0.5}

	tests := []struct {
		name string
		nose pose.Landmark
		want float64
	}{
		{"upright", pose.Landmark{X: 0.5, Y: 0.1}, 0},
		{"lying right", pose.Landmark{X: 0.9, Y: 0.5}, 90},
		{"lying left", pose.Landmark{X: 0.1, Y: 0.5}, 90},
		{"upside down", pose.Landmark{X: 0.5, Y: 0.9}, 180},
		{"leaning 45", pose.Landmark{X: 0.7, Y: 0.3}, 45},
		{"same point", hip, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := SpineAngle(tc.nose, hip)
			if math.Abs(got-tc.want) > 1e-6 {
				t.Errorf("SpineAngle = %.3f, want %.3f", got, tc.want)
			}
		})
	}
}

func TestClassify_UsesLeftHipForTilt(t *testing.T) {
	set := standing()
	// Move only the right hip far to the side; tilt must not change
	before := Classify(set, DefaultThresholds()).SpineAngle
	set = with(set, pose.RightHip, pose.Landmark{X: 0.95, Y: 0.60, Visibility: 0.99})
	after := Classify(set, DefaultThresholds()).SpineAngle

	if before != after {
		t.Errorf("SpineAngle changed from %.2f to %.2f when only the right hip moved", before, after)
	}
}
