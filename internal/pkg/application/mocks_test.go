package application

import (
	"context"
	"sync"
	"time"

	"github.com/iot-for-tillgenglighet/messaging-golang/pkg/messaging"
	"github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/hub"
	"github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/infrastructure/logging"
	"github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/models"
)

type msgMock struct {
	mu       sync.Mutex
	messages []*AlertChanged
}

func (m *msgMock) PublishOnTopic(message messaging.TopicMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if changed, ok := message.(*AlertChanged); ok {
		m.messages = append(m.messages, changed)
	}
	return nil
}

func (m *msgMock) PublishCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

type storeMock struct {
	devices []models.Device
	alerts  []models.Alert
	err     error

	writes int
}

func (db *storeMock) GetDevices(ctx context.Context) ([]models.Device, error) {
	if db.err != nil {
		return nil, db.err
	}
	return append([]models.Device{}, db.devices...), nil
}

func (db *storeMock) GetDeviceFromID(ctx context.Context, deviceID string) (models.Device, error) {
	if db.err != nil {
		return models.Device{}, db.err
	}
	for _, d := range db.devices {
		if d.DeviceID == deviceID {
			return d, nil
		}
	}
	return models.Device{}, models.NotFoundf("device %s", deviceID)
}

func (db *storeMock) CreateDevice(ctx context.Context, device models.Device) (models.Device, error) {
	if db.err != nil {
		return models.Device{}, db.err
	}
	db.writes++
	db.devices = append(db.devices, device)
	return device, nil
}

func (db *storeMock) UpdateDevice(ctx context.Context, deviceID string, patch models.DevicePatch) (models.Device, error) {
	for i, d := range db.devices {
		if d.DeviceID == deviceID {
			db.writes++
			db.devices[i] = patch.Apply(d)
			return db.devices[i], nil
		}
	}
	return models.Device{}, models.NotFoundf("device %s", deviceID)
}

func (db *storeMock) DeleteDevice(ctx context.Context, deviceID string) error {
	for i, d := range db.devices {
		if d.DeviceID == deviceID {
			db.writes++
			db.devices = append(db.devices[:i], db.devices[i+1:]...)
			return nil
		}
	}
	return models.NotFoundf("device %s", deviceID)
}

func (db *storeMock) GetAlerts(ctx context.Context) ([]models.Alert, error) {
	if db.err != nil {
		return nil, db.err
	}
	return append([]models.Alert{}, db.alerts...), nil
}

func (db *storeMock) GetAlertFromID(ctx context.Context, alertID string) (models.Alert, error) {
	if db.err != nil {
		return models.Alert{}, db.err
	}
	for _, a := range db.alerts {
		if a.AlertID == alertID {
			return a, nil
		}
	}
	return models.Alert{}, models.NotFoundf("alert %s", alertID)
}

func (db *storeMock) CreateAlert(ctx context.Context, alert models.Alert) (models.Alert, error) {
	if db.err != nil {
		return models.Alert{}, db.err
	}
	db.writes++
	db.alerts = append(db.alerts, alert)
	return alert, nil
}

func (db *storeMock) UpdateAlert(ctx context.Context, alertID string, patch models.AlertPatch) (models.Alert, error) {
	for i, a := range db.alerts {
		if a.AlertID == alertID {
			db.writes++
			db.alerts[i] = patch.Apply(a)
			return db.alerts[i], nil
		}
	}
	return models.Alert{}, models.NotFoundf("alert %s", alertID)
}

func (db *storeMock) DeleteAlert(ctx context.Context, alertID string) error {
	for i, a := range db.alerts {
		if a.AlertID == alertID {
			db.writes++
			db.alerts = append(db.alerts[:i], db.alerts[i+1:]...)
			return nil
		}
	}
	return models.NotFoundf("alert %s", alertID)
}

type resolverMock struct {
	permissions map[string]models.Permission
	invalidated []string
}

func (r *resolverMock) Resolve(ctx context.Context, email string) models.Permission {
	if p, ok := r.permissions[email]; ok {
		return p
	}
	return models.NoAccess()
}

func (r *resolverMock) Invalidate(ctx context.Context, email string) {
	r.invalidated = append(r.invalidated, email)
}

type sinkMock struct {
	mu       sync.Mutex
	messages []string
}

func (s *sinkMock) Send(message []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, string(message))
	return nil
}

func (s *sinkMock) Close() {}

func (s *sinkMock) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

var (
	allBuildings = []string{"SE", "IS", "MS", "HS", "DC", "DO"}
	district     = User{Email: "super@orono.k12.mn.us", Permission: models.DistrictAccess(allBuildings)}
	msAdmin      = User{Email: "ms@orono.k12.mn.us", Permission: models.BuildingAccess([]string{"MS"})}
)

func testNow() time.Time {
	return time.Date(2024, 9, 2, 8, 0, 0, 0, time.UTC)
}

func fixtureStore() *storeMock {
	return &storeMock{
		devices: []models.Device{
			{DeviceID: "ms-hall", Name: "Hall", Building: "MS", Template: "standard", Theme: "default", RefreshInterval: 15, Active: true},
			{DeviceID: "ms-gym", Name: "Gym", Building: "MS", Template: "standard", Theme: "default", RefreshInterval: 15, Active: true},
			{DeviceID: "hs-cafe", Name: "Cafe", Building: "HS", Template: "standard", Theme: "default", RefreshInterval: 15, Active: true},
		},
		alerts: []models.Alert{
			{AlertID: "alert1", Name: "Drill", Type: models.AlertTypeCustom, Priority: models.PriorityLow, Buildings: []string{"MS"}, Active: true, Title: "Drill", Text: "at 10"},
			{AlertID: "alert2", Name: "Snow", Type: models.AlertTypeCustom, Priority: models.PriorityHigh, Buildings: []string{"HS"}, Active: true, Title: "Snow day", Text: "closed"},
		},
	}
}

//newServiceForTest connects a mock sink for every device id given
func newServiceForTest(store *storeMock, messenger MessagingContext, connected ...string) (*Service, map[string]*sinkMock) {
	log := logging.NewNopLogger()
	registry := hub.NewRegistry(log, hub.WithClock(testNow))
	h := hub.NewHub(registry, store, log)

	s := NewService(store, h, messenger, ServiceOptions{
		StoreTimeout:    time.Second,
		DefaultSlideID:  "default-deck",
		DefaultLocation: "Orono Public Schools",
	}, log)
	s.now = testNow

	sinks := map[string]*sinkMock{}
	for _, id := range connected {
		sinks[id] = &sinkMock{}
		registry.Register(id, sinks[id])
	}

	return s, sinks
}
