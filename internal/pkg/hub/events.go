package hub

import (
	"encoding/json"
	"time"
)

//EventType is the discriminator shared by every event sent to a device
type EventType string

const (
	TypeRefresh   EventType = "refresh"
	TypeAlert     EventType = "alert"
	TypeTest      EventType = "test"
	TypeConnected EventType = "connected"
)

//Event is one of Refresh, Alert, Test or Connected. The set is closed.
type Event interface {
	Type() EventType
	fill(env *envelope)
}

//Refresh asks a display to re-fetch its configuration and alerts
type Refresh struct{}

//Alert tells a display to show an alert immediately
type Alert struct {
	AlertID  string
	SlideID  string
	Priority string
}

//Test carries an arbitrary payload from the admin interface
type Test struct {
	Message string
	Payload json.RawMessage
}

//Connected acknowledges a freshly opened connection
type Connected struct {
	DeviceID string
}

func (Refresh) Type() EventType   { return TypeRefresh }
func (Alert) Type() EventType     { return TypeAlert }
func (Test) Type() EventType      { return TypeTest }
func (Connected) Type() EventType { return TypeConnected }

func (Refresh) fill(env *envelope) {}

func (e Alert) fill(env *envelope) {
	env.AlertID = e.AlertID
	env.SlideID = e.SlideID
	env.Priority = e.Priority
}

func (e Test) fill(env *envelope) {
	env.Message = e.Message
	if len(e.Payload) > 0 {
		env.TestData = e.Payload
	}
}

func (e Connected) fill(env *envelope) {
	if e.DeviceID != "" {
		env.DeviceID = e.DeviceID
	}
	env.Message = "SSE connection established"
}

type envelope struct {
	Type      EventType       `json:"type"`
	DeviceID  string          `json:"deviceId"`
	Timestamp int64           `json:"timestamp"`
	AlertID   string          `json:"alertId,omitempty"`
	SlideID   string          `json:"slideId,omitempty"`
	Priority  string          `json:"priority,omitempty"`
	Message   string          `json:"message,omitempty"`
	TestData  json.RawMessage `json:"testData,omitempty"`
}

//Encode serializes an event for one device, stamping it with the server time
func Encode(e Event, deviceID string, at time.Time) ([]byte, error) {
	env := envelope{
		Type:      e.Type(),
		DeviceID:  deviceID,
		Timestamp: at.UnixMilli(),
	}
	e.fill(&env)

	return json.Marshal(env)
}
