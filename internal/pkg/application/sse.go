package application

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi"
	"github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/hub"
	"github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/infrastructure/logging"
)

//ErrQueueFull is returned when a device is not reading its event stream fast enough
var ErrQueueFull = errors.New("event queue full")

type sseSink struct {
	queue chan []byte
	done  chan struct{}
	once  sync.Once
}

func newSSESink(size int) *sseSink {
	if size <= 0 {
		size = 16
	}
	return &sseSink{
		queue: make(chan []byte, size),
		done:  make(chan struct{}),
	}
}

func (s *sseSink) Send(message []byte) error {
	select {
	case <-s.done:
		return hub.ErrSinkClosed
	default:
	}

	select {
	case s.queue <- message:
		return nil
	case <-s.done:
		return hub.ErrSinkClosed
	default:
		return ErrQueueFull
	}
}

func (s *sseSink) Close() {
	s.once.Do(func() { close(s.done) })
}

//StreamOptions tunes the event stream handler
type StreamOptions struct {
	Heartbeat time.Duration
	QueueSize int
}

//NewEventStreamHandler keeps a server-sent event stream open for the device
//named in the path and registers it with the registry. A later
//connection for the same device takes over and this stream ends at its next
//heartbeat.
func NewEventStreamHandler(registry *hub.Registry, opts StreamOptions, log logging.Logger) http.HandlerFunc {
	heartbeat := opts.Heartbeat
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}

	return func(w http.ResponseWriter, r *http.Request) {
		deviceID := strings.TrimSpace(chi.URLParam(r, "deviceId"))
		if deviceID == "" || deviceID == UnknownDeviceID {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Please provide a valid deviceId"})
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Streaming unsupported"})
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)

		devLog := log.WithField("deviceId", deviceID)

		sink := newSSESink(opts.QueueSize)
		conn := registry.Register(deviceID, sink)
		defer func() {
			registry.Release(conn)
			sink.Close()
		}()

		hello, err := hub.Encode(hub.Connected{DeviceID: deviceID}, deviceID, time.Now())
		if err != nil {
			devLog.Errorf("failed to encode greeting: %s", err.Error())
			return
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", hello); err != nil {
			return
		}
		flusher.Flush()

		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-sink.done:
				return
			case message := <-sink.queue:
				if _, err := fmt.Fprintf(w, "data: %s\n\n", message); err != nil {
					devLog.Warnf("failed to write event: %s", err.Error())
					return
				}
				flusher.Flush()
			case <-ticker.C:
				if current, ok := registry.Get(deviceID); !ok || current != conn {
					devLog.Infof("event stream was replaced, closing")
					return
				}
				if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
					return
				}
				flusher.Flush()
				registry.Touch(deviceID)
			}
		}
	}
}
