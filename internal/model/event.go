package model

import "time"

// Relay channel names. Delivery on every channel is best-effort and
// at-most-once; subscribers joining after a publish miss it.
const (
	ChannelHealthUpdates = "health-updates"
	ChannelIncidents     = "incidents"
	ChannelAnalytics     = "analytics-updates"
	ChannelErrorLogs     = "error-logs"
)

// Event types published on the incident and analytics channels.
const (
	EventErrorDetected   = "error_detected"
	EventAnalyticsUpdate = "analytics_update"
)

// Event is the wire envelope for incident and analytics publications.
type Event struct {
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Source    string    `json:"source"`
}

// HealthUpdate is the wire shape published on the health-updates channel,
// once per service per monitor cycle, change or not.
type HealthUpdate struct {
	Service   string       `json:"service"`
	Status    HealthRecord `json:"status"`
	Timestamp time.Time    `json:"timestamp"`
}

// WebSocket frame types pushed to connected clients.
const (
	FrameInitialStatus           = "initial_status"
	FrameHealthUpdate            = "health_update"
	FrameIncidentUpdate          = "incident_update"
	FrameAnalyticsUpdate         = "analytics_update"
	FrameErrorLog                = "error_log"
	FramePong                    = "pong"
	FrameSubscriptionConfirmed   = "subscription_confirmed"
	FrameUnsubscriptionConfirmed = "unsubscription_confirmed"
)

// Frame is the envelope for every message sent to a WebSocket client.
type Frame struct {
	Type      string    `json:"type"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewFrame stamps a frame with the current time.
func NewFrame(frameType string, data any) Frame {
	return Frame{Type: frameType, Data: data, Timestamp: time.Now().UTC()}
}
