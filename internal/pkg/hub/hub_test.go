package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/infrastructure/logging"
	"github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sinkMock struct {
	mu       sync.Mutex
	messages [][]byte
	sendErr  error
	closed   bool
}

func (s *sinkMock) Send(message []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sendErr != nil {
		return s.sendErr
	}
	s.messages = append(s.messages, message)
	return nil
}

func (s *sinkMock) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *sinkMock) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

type devicesMock struct {
	devices []models.Device
	err     error
}

func (d *devicesMock) GetDevices(ctx context.Context) ([]models.Device, error) {
	return d.devices, d.err
}

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func newTestHub(devices DeviceLister) (*Hub, *clock) {
	c := &clock{now: time.Date(2024, 9, 2, 8, 0, 0, 0, time.UTC)}
	registry := NewRegistry(logging.NewNopLogger(), WithClock(c.Now))
	return NewHub(registry, devices, logging.NewNopLogger()), c
}

func TestThatRegisterReplacesExistingConnection(t *testing.T) {
	h, _ := newTestHub(nil)
	s1, s2 := &sinkMock{}, &sinkMock{}

	first := h.Registry().Register("ms-gym", s1)
	second := h.Registry().Register("ms-gym", s2)

	conn, ok := h.Registry().Get("ms-gym")
	require.True(t, ok)
	assert.Same(t, second, conn)
	assert.Same(t, s2, conn.Sink())
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 1, h.Registry().Count())

	assert.True(t, h.PushToDevice("ms-gym", Refresh{}))
	assert.Equal(t, 0, s1.count())
	assert.Equal(t, 1, s2.count())
	assert.False(t, s1.closed, "replaced sinks are not torn down by the registry")
}

func TestThatReleaseDoesNotEvictReplacement(t *testing.T) {
	h, _ := newTestHub(nil)

	old := h.Registry().Register("ms-gym", &sinkMock{})
	h.Registry().Register("ms-gym", &sinkMock{})

	assert.False(t, h.Registry().Release(old))
	_, ok := h.Registry().Get("ms-gym")
	assert.True(t, ok)
}

func TestThatUnregisterIsIdempotent(t *testing.T) {
	h, _ := newTestHub(nil)
	h.Registry().Register("ms-gym", &sinkMock{})

	h.Registry().Unregister("ms-gym")
	h.Registry().Unregister("ms-gym")
	h.Registry().Unregister("never-seen")

	assert.Empty(t, h.Registry().ListConnected())
}

func TestThatSweepStaleRemovesOnlyIdleConnections(t *testing.T) {
	h, c := newTestHub(nil)
	start := c.now

	tenMinutes := &sinkMock{}
	h.Registry().Register("idle-10m", tenMinutes)
	c.now = start.Add(9 * time.Minute)
	h.Registry().Register("idle-1m", &sinkMock{})
	c.now = start.Add(9*time.Minute + 30*time.Second)
	h.Registry().Register("idle-30s", &sinkMock{})
	c.now = start.Add(10 * time.Minute)

	removed := h.Registry().SweepStale(5 * time.Minute)

	assert.Equal(t, 1, removed)
	assert.Equal(t, []string{"idle-1m", "idle-30s"}, h.Registry().ListConnected())
	assert.True(t, tenMinutes.closed)
}

func TestThatSuccessfulPushTouchesConnection(t *testing.T) {
	h, c := newTestHub(nil)
	start := c.now
	h.Registry().Register("ms-gym", &sinkMock{})

	c.now = start.Add(4 * time.Minute)
	require.True(t, h.PushToDevice("ms-gym", Refresh{}))
	c.now = start.Add(8 * time.Minute)

	assert.Equal(t, 0, h.Registry().SweepStale(5*time.Minute))
	assert.Equal(t, start.Add(4*time.Minute), h.Registry().Snapshot()["ms-gym"].LastActivityAt)
}

func TestThatPushToDevicesReportsInInputOrder(t *testing.T) {
	h, _ := newTestHub(nil)
	a, c := &sinkMock{}, &sinkMock{}
	h.Registry().Register("a", a)
	h.Registry().Register("c", c)

	results := h.PushToDevices([]string{"a", "b", "c"}, Refresh{})

	assert.Equal(t, []Result{
		{DeviceID: "a", Delivered: true},
		{DeviceID: "b", Delivered: false},
		{DeviceID: "c", Delivered: true},
	}, results)
	assert.Equal(t, 2, Delivered(results))
}

func TestThatFailedSendUnregistersDevice(t *testing.T) {
	h, _ := newTestHub(nil)
	h.Registry().Register("broken", &sinkMock{sendErr: ErrSinkClosed})
	ok := &sinkMock{}
	h.Registry().Register("ok", ok)

	results := h.PushToAll(Test{Message: "hello"})

	assert.Equal(t, []Result{{DeviceID: "broken", Delivered: false}, {DeviceID: "ok", Delivered: true}}, results)
	assert.Equal(t, []string{"ok"}, h.Registry().ListConnected())
}

func TestThatPushToBuildingUsesStoreMembership(t *testing.T) {
	devices := &devicesMock{devices: []models.Device{
		{DeviceID: "ms-gym", Building: "MS"},
		{DeviceID: "ms-office", Building: "MS"},
		{DeviceID: "hs-commons", Building: "HS"},
	}}
	h, _ := newTestHub(devices)
	gym, commons := &sinkMock{}, &sinkMock{}
	h.Registry().Register("ms-gym", gym)
	h.Registry().Register("hs-commons", commons)

	results, err := h.PushToBuilding(context.Background(), "MS", Refresh{})

	require.NoError(t, err)
	assert.Equal(t, []Result{{DeviceID: "ms-gym", Delivered: true}, {DeviceID: "ms-office", Delivered: false}}, results)
	assert.Equal(t, 0, commons.count())
}

func TestThatPushToBuildingSurfacesStoreErrors(t *testing.T) {
	h, _ := newTestHub(&devicesMock{err: models.ErrStoreUnavailable})

	_, err := h.PushToBuilding(context.Background(), "MS", Refresh{})
	assert.True(t, errors.Is(err, models.ErrStoreUnavailable))
}

func TestThatEventsShareTheTypeDiscriminator(t *testing.T) {
	at := time.Date(2024, 9, 2, 8, 0, 0, 0, time.UTC)

	raw, err := Encode(Alert{AlertID: "alert1", SlideID: "slide", Priority: "high"}, "ms-gym", at)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "alert", decoded["type"])
	assert.Equal(t, "ms-gym", decoded["deviceId"])
	assert.Equal(t, "alert1", decoded["alertId"])
	assert.Equal(t, float64(at.UnixMilli()), decoded["timestamp"])

	raw, err = Encode(Test{Payload: json.RawMessage(`{"x":1}`)}, "ms-gym", at)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"test","deviceId":"ms-gym","timestamp":`+jsonNumber(at.UnixMilli())+`,"testData":{"x":1}}`, string(raw))
}

func jsonNumber(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

//blockingSink holds every Send until release is closed
type blockingSink struct {
	entered chan struct{}
	release chan struct{}
}

func (s *blockingSink) Send(message []byte) error {
	s.entered <- struct{}{}
	<-s.release
	return nil
}

func (s *blockingSink) Close() {}

func TestThatBlockedSinkDoesNotDelayOtherDevices(t *testing.T) {
	h, _ := newTestHub(nil)
	slow := &blockingSink{entered: make(chan struct{}, 1), release: make(chan struct{})}
	a, b := &sinkMock{}, &sinkMock{}
	h.Registry().Register("ms-slow", slow)
	h.Registry().Register("ms-gym", a)
	h.Registry().Register("ms-hall", b)

	done := make(chan []Result, 1)
	go func() {
		done <- h.PushToDevices([]string{"ms-slow", "ms-gym", "ms-hall"}, Refresh{})
	}()

	<-slow.entered
	assert.Eventually(t, func() bool { return a.count() == 1 && b.count() == 1 }, time.Second, 5*time.Millisecond)

	select {
	case <-done:
		t.Fatal("push returned before the blocked sink was released")
	default:
	}

	close(slow.release)
	results := <-done
	assert.Equal(t, []Result{{"ms-slow", true}, {"ms-gym", true}, {"ms-hall", true}}, results)
}

func TestThatRegistryToleratesConcurrentUse(t *testing.T) {
	h, c := newTestHub(nil)
	r := h.Registry()
	ids := []string{"ms-gym", "ms-hall", "hs-cafe", "se-lobby"}

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				id := ids[(w+i)%len(ids)]
				switch i % 6 {
				case 0:
					r.Register(id, &sinkMock{})
				case 1:
					h.PushToDevice(id, Refresh{})
				case 2:
					r.Touch(id)
				case 3:
					r.SweepStale(time.Minute)
				case 4:
					r.Snapshot()
					r.ListConnected()
				case 5:
					r.Unregister(id)
				}
			}
		}(w)
	}
	wg.Wait()

	snapshot := r.Snapshot()
	assert.LessOrEqual(t, len(snapshot), len(ids))
	assert.Equal(t, len(snapshot), r.Count())
	for _, info := range snapshot {
		assert.Equal(t, c.now, info.LastActivityAt)
	}
}
