package monitor

import (
	"time"

	"github.com/teslashibe/facewatch/pkg/camera"
	"github.com/teslashibe/facewatch/pkg/presence"
)

// Availability reports which stage of the pipeline the monitor reached.
type Availability string

const (
	AvailabilityStarting          Availability = "starting"
	AvailabilityLoading           Availability = "loading"
	AvailabilityMonitoring        Availability = "monitoring"
	AvailabilityCameraUnavailable Availability = "camera_unavailable"
	AvailabilityModelUnavailable  Availability = "model_unavailable"
	AvailabilityStopped           Availability = "stopped"
)

// Monitoring reports whether presence is being decided from live results.
func (a Availability) Monitoring() bool {
	return a == AvailabilityMonitoring
}

// Snapshot is everything the overlay needs to render.
type Snapshot struct {
	Instance     string       `json:"instance"`
	Version      uint64       `json:"version"`
	Availability Availability `json:"availability"`

	// Presence is empty until monitoring starts. A monitor that can't
	// see never claims VISIBLE.
	Presence presence.State `json:"presence,omitempty"`
	Since    time.Time      `json:"since"`

	LastError       string  `json:"last_error,omitempty"`
	Confidence      float64 `json:"confidence"`
	Faces           int     `json:"faces"`
	Frames          uint64  `json:"frames"`
	InferenceErrors uint64  `json:"inference_errors"`

	Camera  string             `json:"camera,omitempty"`
	Width   int                `json:"width,omitempty"`
	Height  int                `json:"height,omitempty"`
	Preview camera.PreviewMode `json:"preview"`
	Mirror  bool               `json:"mirror"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Alerting reports whether the absence banner should be shown.
func (s Snapshot) Alerting() bool {
	return s.Availability.Monitoring() && s.Presence == presence.NotVisible
}

// EventSink receives monitor output. Calls are made in order from the
// monitor's goroutines and must not block or call back into the Monitor.
type EventSink interface {
	OnSnapshot(Snapshot)
	OnPreview(camera.Frame)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) OnSnapshot(Snapshot)    {}
func (NopSink) OnPreview(camera.Frame) {}
