package application

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/hub"
	"github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/infrastructure/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStreamServer(t *testing.T, heartbeat time.Duration) (*httptest.Server, *hub.Hub) {
	log := logging.NewNopLogger()
	registry := hub.NewRegistry(log)
	h := hub.NewHub(registry, nil, log)

	r := chi.NewRouter()
	r.Get("/api/device/{deviceId}/events", NewEventStreamHandler(registry, StreamOptions{Heartbeat: heartbeat, QueueSize: 4}, log))

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	return server, h
}

func openStream(t *testing.T, ctx context.Context, url string) (*bufio.Reader, *http.Response) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	return bufio.NewReader(resp.Body), resp
}

//nextData skips comments and blank lines and returns the payload of the next data line
func nextData(t *testing.T, reader *bufio.Reader) string {
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)

		if strings.HasPrefix(line, "data: ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		}
	}
}

func TestThatStreamGreetsAndDeliversPushes(t *testing.T) {
	server, h := newStreamServer(t, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader, resp := openStream(t, ctx, server.URL+"/api/device/ms-hall/events")
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	hello := nextData(t, reader)
	assert.Contains(t, hello, `"type":"connected"`)
	assert.Contains(t, hello, `"deviceId":"ms-hall"`)

	assert.True(t, h.PushToDevice("ms-hall", hub.Refresh{}))
	assert.Contains(t, nextData(t, reader), `"type":"refresh"`)

	cancel()
	assert.Eventually(t, func() bool { return h.Registry().Count() == 0 }, time.Second, 10*time.Millisecond)
}

func TestThatReplacedStreamIsClosedAtNextHeartbeat(t *testing.T) {
	server, h := newStreamServer(t, 20*time.Millisecond)

	first, _ := openStream(t, context.Background(), server.URL+"/api/device/ms-hall/events")
	nextData(t, first)

	second, _ := openStream(t, context.Background(), server.URL+"/api/device/ms-hall/events")
	nextData(t, second)

	// the first stream ends once it notices it has been replaced
	_, err := io.ReadAll(first)
	assert.NoError(t, err)

	assert.Equal(t, 1, h.Registry().Count())
	assert.True(t, h.PushToDevice("ms-hall", hub.Refresh{}))
	assert.Contains(t, nextData(t, second), `"type":"refresh"`)
}

func TestThatPlaceholderDeviceCannotOpenAStream(t *testing.T) {
	server, _ := newStreamServer(t, time.Minute)

	resp, err := http.Get(server.URL + "/api/device/unknown/events")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestThatFullQueueFailsTheSend(t *testing.T) {
	s := newSSESink(1)

	require.NoError(t, s.Send([]byte("1")))
	assert.ErrorIs(t, s.Send([]byte("2")), ErrQueueFull)

	s.Close()
	s.Close()
	assert.ErrorIs(t, s.Send([]byte("3")), hub.ErrSinkClosed)
}
