package application

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/access"
	"github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/hub"
	"github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/models"
	"github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/slides"
	"github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/targeting"
)

//ConnectionStatus describes the live connections a user may see
type ConnectionStatus struct {
	ConnectedDevices []string                       `json:"connectedDevices"`
	TotalConnections int                            `json:"totalConnections"`
	ConnectionInfo   map[string]hub.ConnectionInfo `json:"connectionInfo"`
}

//Status reports the connections of the devices the user may access.
//District admins also see devices that are connected but not in the store.
func (s *Service) Status(ctx context.Context, user User) (ConnectionStatus, error) {
	snapshot := s.hub.Registry().Snapshot()

	if !user.Permission.IsDistrict() {
		allowed, err := s.accessibleDevices(ctx, user)
		if err != nil {
			return ConnectionStatus{}, err
		}
		for id := range snapshot {
			if !allowed[id] {
				delete(snapshot, id)
			}
		}
	}

	status := ConnectionStatus{
		ConnectedDevices: []string{},
		ConnectionInfo:   snapshot,
	}
	for _, id := range s.hub.Registry().ListConnected() {
		if _, ok := snapshot[id]; ok {
			status.ConnectedDevices = append(status.ConnectedDevices, id)
		}
	}
	status.TotalConnections = len(status.ConnectedDevices)

	return status, nil
}

//PushToDevice delivers e to one device the user may access
func (s *Service) PushToDevice(ctx context.Context, user User, deviceID string, e hub.Event) (bool, error) {
	if err := s.authorizeDevices(ctx, user, []string{deviceID}); err != nil {
		return false, err
	}
	return s.hub.PushToDevice(deviceID, e), nil
}

//PushToDevices delivers e to a list of devices, all of which the user must be allowed to reach
func (s *Service) PushToDevices(ctx context.Context, user User, deviceIDs []string, e hub.Event) ([]hub.Result, error) {
	if err := s.authorizeDevices(ctx, user, deviceIDs); err != nil {
		return nil, err
	}
	return s.hub.PushToDevices(deviceIDs, e), nil
}

//PushToConnected delivers e to every connected device the user may access
func (s *Service) PushToConnected(ctx context.Context, user User, e hub.Event) ([]hub.Result, error) {
	if user.Permission.IsDistrict() {
		return s.hub.PushToAll(e), nil
	}

	allowed, err := s.accessibleDevices(ctx, user)
	if err != nil {
		return nil, err
	}

	targets := []string{}
	for _, id := range s.hub.Registry().ListConnected() {
		if allowed[id] {
			targets = append(targets, id)
		}
	}

	return s.hub.PushToDevices(targets, e), nil
}

//PushToBuilding delivers e to every device in one of the user's buildings
func (s *Service) PushToBuilding(ctx context.Context, user User, building string, e hub.Event) ([]hub.Result, error) {
	if err := access.AuthorizeMutation(user.Permission, []string{building}); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return s.hub.PushToBuilding(ctx, building, e)
}

func (s *Service) accessibleDevices(ctx context.Context, user User) (map[string]bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	devices, err := s.store.GetDevices(ctx)
	if err != nil {
		return nil, err
	}

	allowed := map[string]bool{}
	for _, d := range access.FilterDevices(devices, user.Permission) {
		allowed[d.DeviceID] = true
	}
	return allowed, nil
}

//authorizeDevices refuses device ids that are unknown to the store or located
//outside the user's buildings. District admins may reach any connected device.
func (s *Service) authorizeDevices(ctx context.Context, user User, deviceIDs []string) error {
	if user.Permission.IsDistrict() {
		return nil
	}

	allowed, err := s.accessibleDevices(ctx, user)
	if err != nil {
		return err
	}

	denied := []string{}
	for _, id := range deviceIDs {
		if !allowed[id] {
			denied = append(denied, id)
		}
	}

	if len(denied) > 0 {
		return &models.AuthorizationError{Scope: models.ScopeTarget, Devices: denied}
	}
	return nil
}

//TestEvent wraps an arbitrary admin payload in a test event
func TestEvent(message string, payload []byte) hub.Event {
	e := hub.Test{Message: message}
	if len(payload) > 0 && json.Valid(payload) {
		e.Payload = json.RawMessage(payload)
	}
	return e
}

//DeviceConfig is what a display fetches on start and on every refresh
type DeviceConfig struct {
	models.Device
	Alerts      []models.Alert `json:"alerts"`
	LastUpdated string         `json:"lastUpdated"`
	Error       string         `json:"error,omitempty"`
}

//UnknownDeviceID is what displays report before they have been given an id
const UnknownDeviceID = "unknown"

//DeviceConfig returns the configuration and currently applicable alerts of a
//display. Unknown displays, and every display while the store is unavailable,
//get the default configuration without alerts.
func (s *Service) DeviceConfig(ctx context.Context, deviceID string) (DeviceConfig, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" || deviceID == UnknownDeviceID {
		return DeviceConfig{}, &models.ValidationError{Field: "deviceId", Message: "please provide a valid device id"}
	}

	now := s.now()
	cfg := DeviceConfig{
		Device: models.Device{
			DeviceID: deviceID,
			SlideID:  s.opts.DefaultSlideID,
			Location: s.opts.DefaultLocation,
		}.WithDefaults(),
		Alerts:      []models.Alert{},
		LastUpdated: now.UTC().Format(time.RFC3339),
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	device, err := s.store.GetDeviceFromID(ctx, deviceID)
	if err != nil {
		if !isNotFound(err) {
			s.log.Errorf("failed to load configuration for device %s: %s", deviceID, err.Error())
			cfg.Error = "failed to load configuration"
		} else {
			s.log.Infof("no configuration found for device %s, using defaults", deviceID)
		}
		return cfg, nil
	}

	alerts, err := s.store.GetAlerts(ctx)
	if err != nil {
		s.log.Errorf("failed to load alerts for device %s: %s", deviceID, err.Error())
		cfg.Error = "failed to load configuration"
		return cfg, nil
	}

	device.SlideID = slides.Normalize(device.SlideID, "")
	cfg.Device = device
	cfg.Alerts = targeting.ApplicableAlerts(alerts, device.Building, now)

	s.log.Debugf("device %s in building %s gets %d alerts", deviceID, device.Building, len(cfg.Alerts))

	return cfg, nil
}
