package application

import (
	"time"

	"github.com/iot-for-tillgenglighet/messaging-golang/pkg/messaging"
)

//MessagingContext is an interface that allows mocking of messaging.Context parameters
type MessagingContext interface {
	PublishOnTopic(message messaging.TopicMessage) error
}

//AlertChangedTopic is where alert lifecycle notifications are published
const AlertChangedTopic = "signage.alert.changed"

const (
	AlertCreated  = "created"
	AlertUpdated  = "updated"
	AlertDeleted  = "deleted"
	AlertToggled  = "toggled"
	AlertDeployed = "deployed"
)

//AlertChanged tells other services that an alert was changed or deployed
type AlertChanged struct {
	AlertID         string   `json:"alertId"`
	Action          string   `json:"action"`
	Buildings       []string `json:"buildings"`
	Active          bool     `json:"active"`
	DevicesNotified int      `json:"devicesNotified"`
	ChangedBy       string   `json:"changedBy,omitempty"`
	Timestamp       string   `json:"timestamp"`
}

func newAlertChanged(action, alertID string, buildings []string, active bool, notified int, changedBy string, at time.Time) *AlertChanged {
	if buildings == nil {
		buildings = []string{}
	}
	return &AlertChanged{
		AlertID:         alertID,
		Action:          action,
		Buildings:       buildings,
		Active:          active,
		DevicesNotified: notified,
		ChangedBy:       changedBy,
		Timestamp:       at.UTC().Format(time.RFC3339),
	}
}

//ContentType returns the content type of this message
func (m *AlertChanged) ContentType() string {
	return "application/json"
}

//TopicName returns the name of the topic this message should be posted to
func (m *AlertChanged) TopicName() string {
	return AlertChangedTopic
}
