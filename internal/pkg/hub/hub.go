package hub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/access"
	"github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/infrastructure/logging"
	"github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/models"
)

//Result is the outcome of one delivery attempt
type Result struct {
	DeviceID  string `json:"deviceId"`
	Delivered bool   `json:"delivered"`
}

//Delivered counts the successful deliveries in results
func Delivered(results []Result) int {
	n := 0
	for _, r := range results {
		if r.Delivered {
			n++
		}
	}
	return n
}

//DeviceLister reads the current device set from the store
type DeviceLister interface {
	GetDevices(ctx context.Context) ([]models.Device, error)
}

//Hub pushes events to connected devices through the registry
type Hub struct {
	registry *Registry
	devices  DeviceLister
	log      logging.Logger
	now      func() time.Time
}

//NewHub creates a hub delivering through registry. devices is used to resolve building membership.
func NewHub(registry *Registry, devices DeviceLister, log logging.Logger) *Hub {
	return &Hub{
		registry: registry,
		devices:  devices,
		log:      log,
		now:      registry.now,
	}
}

//Registry returns the registry the hub delivers through
func (h *Hub) Registry() *Registry {
	return h.registry
}

//PushToDevice delivers e to deviceID. A failed send drops the connection.
func (h *Hub) PushToDevice(deviceID string, e Event) bool {
	conn, ok := h.registry.Get(deviceID)
	if !ok {
		h.log.Debugf("device %s not connected for push", deviceID)
		return false
	}

	message, err := Encode(e, deviceID, h.now())
	if err != nil {
		h.log.Errorf("failed to encode %s event for device %s: %s", e.Type(), deviceID, err.Error())
		return false
	}

	if err := conn.sink.Send(message); err != nil {
		h.log.Warnf("failed to push to device %s: %s", deviceID, err.Error())
		h.registry.Release(conn)
		return false
	}

	h.registry.touchConnection(conn)
	h.log.Debugf("pushed %s to device %s", e.Type(), deviceID)

	return true
}

//PushToDevices delivers e to each device independently and reports per device, in input order
func (h *Hub) PushToDevices(deviceIDs []string, e Event) []Result {
	results := make([]Result, len(deviceIDs))

	var wg sync.WaitGroup
	for i, id := range deviceIDs {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			results[i] = Result{DeviceID: id, Delivered: h.PushToDevice(id, e)}
		}(i, id)
	}
	wg.Wait()

	if len(deviceIDs) > 0 {
		h.log.Infof("pushed %s to %d/%d devices", e.Type(), Delivered(results), len(deviceIDs))
	}

	return results
}

//PushToAll delivers e to every device connected at the time of the call
func (h *Hub) PushToAll(e Event) []Result {
	return h.PushToDevices(h.registry.ListConnected(), e)
}

//PushToBuilding delivers e to every device the store places in building
func (h *Hub) PushToBuilding(ctx context.Context, building string, e Event) ([]Result, error) {
	devices, err := h.devices.GetDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices for building %s: %w", building, err)
	}

	targets := access.DeviceIDs(access.DevicesInBuildings(devices, []string{building}))
	if len(targets) == 0 {
		h.log.Infof("no devices found for building %s", building)
		return []Result{}, nil
	}

	return h.PushToDevices(targets, e), nil
}
