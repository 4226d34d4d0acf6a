// Package pose defines body landmarks and the landmark source contract.
package pose

import (
	"errors"

	"gocv.io/x/gocv"
)

// Role identifies a body keypoint. Values follow the COCO keypoint order.
type Role int

const (
	Nose Role = iota
	LeftEye
	RightEye
	LeftEar
	RightEar
	LeftShoulder
	RightShoulder
	LeftElbow
	RightElbow
	LeftWrist
	RightWrist
	LeftHip
	RightHip
	LeftKnee
	RightKnee
	LeftAnkle
	RightAnkle
	NumRoles
)

var roleNames = [NumRoles]string{
	"nose", "left_eye", "right_eye", "left_ear", "right_ear",
	"left_shoulder", "right_shoulder", "left_elbow", "right_elbow",
	"left_wrist", "right_wrist", "left_hip", "right_hip",
	"left_knee", "right_knee", "left_ankle", "right_ankle",
}

// String returns the snake_case name of the role.
func (r Role) String() string {
	if r < 0 || r >= NumRoles {
		return "unknown"
	}
	return roleNames[r]
}

// Landmark is a body keypoint. X and Y are normalized to the frame
// (0-1, Y grows downward). Z is zero for 2D sources.
type Landmark struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z,omitempty"`
	Visibility float64 `json:"visibility"`
}

// LandmarkSet holds the landmarks found in one frame. Empty means no body.
type LandmarkSet map[Role]Landmark

// Empty reports whether no body was detected.
func (s LandmarkSet) Empty() bool {
	return len(s) == 0
}

// Visible returns the landmark for role when it is present with a
// visibility strictly above min.
func (s LandmarkSet) Visible(role Role, min float64) (Landmark, bool) {
	lm, ok := s[role]
	if !ok || lm.Visibility <= min {
		return Landmark{}, false
	}
	return lm, true
}

// Skeleton lists the limb connections drawn between roles.
var Skeleton = [][2]Role{
	{LeftAnkle, LeftKnee}, {LeftKnee, LeftHip},
	{RightAnkle, RightKnee}, {RightKnee, RightHip},
	{LeftHip, RightHip},
	{LeftShoulder, LeftHip}, {RightShoulder, RightHip},
	{LeftShoulder, RightShoulder},
	{LeftShoulder, LeftElbow}, {RightShoulder, RightElbow},
	{LeftElbow, LeftWrist}, {RightElbow, RightWrist},
	{LeftEye, RightEye}, {Nose, LeftEye}, {Nose, RightEye},
	{LeftEye, LeftEar}, {RightEye, RightEar},
	{LeftEar, LeftShoulder}, {RightEar, RightShoulder},
}

// ErrModelNotFound is returned when the pose model file is missing.
var ErrModelNotFound = errors.New("pose: model file not found")

// Options carries the confidence thresholds a session hands to its source.
type Options struct {
	// DetectionConfidence is the minimum score to accept a new person.
	DetectionConfidence float64
	// TrackingConfidence is the minimum score to keep following the person
	// found in the previous frame.
	TrackingConfidence float64
}

// DefaultOptions returns the default confidence thresholds.
func DefaultOptions() Options {
	return Options{
		DetectionConfidence: 0.5,
		TrackingConfidence:  0.5,
	}
}

// Source finds body landmarks in a frame.
type Source interface {
	// Detect returns the landmarks of the tracked person in an RGB frame.
	// An empty set with a nil error means no body was found.
	Detect(rgb gocv.Mat) (LandmarkSet, error)

	// Close releases the model and any detector state.
	Close() error
}
