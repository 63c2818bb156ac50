package targeting

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/access"
	"github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/hub"
	"github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/infrastructure/logging"
	"github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/models"
)

//ApplicableAlerts selects the alerts a device in building should display,
//highest priority first. Alerts of equal priority keep their stored order.
func ApplicableAlerts(alerts []models.Alert, building string, now time.Time) []models.Alert {
	result := []models.Alert{}
	if strings.TrimSpace(building) == "" {
		return result
	}

	for _, a := range alerts {
		if !a.Active || a.ExpiredAt(now) {
			continue
		}
		if a.IsGlobal() || contains(a.Buildings, building) {
			result = append(result, a)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Priority.Rank() > result[j].Priority.Rank()
	})

	return result
}

//AffectedDevices returns the ids of devices located in one of buildings.
//Global alerts are not expanded here; an empty building list affects nothing.
func AffectedDevices(buildings []string, devices []models.Device) []string {
	return access.DeviceIDs(access.DevicesInBuildings(devices, buildings))
}

//Union merges building sets keeping first-seen order
func Union(sets ...[]string) []string {
	seen := map[string]bool{}
	result := []string{}

	for _, set := range sets {
		for _, b := range set {
			if b == "" || seen[b] {
				continue
			}
			seen[b] = true
			result = append(result, b)
		}
	}

	return result
}

//Pusher fans an event out to a set of devices
type Pusher interface {
	PushToDevices(deviceIDs []string, e hub.Event) []hub.Result
}

//DeployReport summarises an alert deployment
type DeployReport struct {
	DevicesNotified int      `json:"devicesNotified"`
	Buildings       []string `json:"buildings"`
	AlertID         string   `json:"alertId"`
}

//Engine turns alert changes into pushes to the affected devices
type Engine struct {
	devices hub.DeviceLister
	pusher  Pusher
	log     logging.Logger
}

//NewEngine creates an engine resolving devices from devices and delivering through pusher
func NewEngine(devices hub.DeviceLister, pusher Pusher, log logging.Logger) *Engine {
	return &Engine{devices: devices, pusher: pusher, log: log}
}

//Refresh asks every device in the union of before and after to reload its content.
//A device leaving an alert's target set must drop it, one joining must pick it up.
func (e *Engine) Refresh(ctx context.Context, before, after []string) ([]hub.Result, error) {
	buildings := Union(before, after)
	if len(buildings) == 0 {
		return []hub.Result{}, nil
	}

	devices, err := e.devices.GetDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices for refresh: %w", err)
	}

	targets := AffectedDevices(buildings, devices)
	e.log.Infof("refreshing %d devices in %s", len(targets), strings.Join(buildings, ", "))

	return e.pusher.PushToDevices(targets, hub.Refresh{}), nil
}

//Deploy pushes alert to the devices in its target buildings immediately
func (e *Engine) Deploy(ctx context.Context, alert models.Alert) (DeployReport, error) {
	devices, err := e.devices.GetDevices(ctx)
	if err != nil {
		return DeployReport{}, fmt.Errorf("failed to list devices for deployment: %w", err)
	}

	targets := AffectedDevices(alert.Buildings, devices)
	results := e.pusher.PushToDevices(targets, hub.Alert{
		AlertID:  alert.AlertID,
		SlideID:  alert.SlideID,
		Priority: string(alert.Priority),
	})

	report := DeployReport{
		DevicesNotified: hub.Delivered(results),
		Buildings:       append([]string{}, alert.Buildings...),
		AlertID:         alert.AlertID,
	}
	e.log.Infof("deployed alert %s to %d/%d devices", alert.AlertID, report.DevicesNotified, len(targets))

	return report, nil
}

func contains(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
