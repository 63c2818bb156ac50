package hub

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/infrastructure/logging"
)

//ErrSinkClosed is returned by sinks that have been closed or whose peer went away
var ErrSinkClosed = errors.New("sink closed")

//Sink delivers encoded events to one connected device. Send must not block
//for long: slow consumers should fail rather than hold up the caller.
type Sink interface {
	Send(message []byte) error
	Close()
}

//Connection is one live device session
type Connection struct {
	DeviceID string
	ID       string

	connectedAt    time.Time
	lastActivityAt time.Time
	sink           Sink
}

//Sink returns the transport the connection delivers through
func (c *Connection) Sink() Sink {
	return c.sink
}

//ConnectionInfo is a point-in-time view of a connection for status reporting
type ConnectionInfo struct {
	ConnectionID   string        `json:"connectionId"`
	ConnectedAt    time.Time     `json:"connectedAt"`
	LastActivityAt time.Time     `json:"lastActivityAt"`
	ConnectedFor   time.Duration `json:"connectedFor"`
}

//Registry tracks at most one live connection per device id
type Registry struct {
	mu          sync.RWMutex
	connections map[string]*Connection
	now         func() time.Time
	log         logging.Logger
}

//RegistryOption customizes a Registry
type RegistryOption func(*Registry)

//WithClock replaces the wall clock, mainly for tests
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.now = now
	}
}

//NewRegistry creates an empty registry
func NewRegistry(log logging.Logger, opts ...RegistryOption) *Registry {
	r := &Registry{
		connections: map[string]*Connection{},
		now:         time.Now,
		log:         log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

//Register inserts or replaces the connection for deviceID. A replaced
//connection is forgotten; its transport is responsible for its own teardown.
func (r *Registry) Register(deviceID string, sink Sink) *Connection {
	now := r.now()
	conn := &Connection{
		DeviceID:       deviceID,
		ID:             uuid.NewString(),
		connectedAt:    now,
		lastActivityAt: now,
		sink:           sink,
	}

	r.mu.Lock()
	_, replaced := r.connections[deviceID]
	r.connections[deviceID] = conn
	total := len(r.connections)
	r.mu.Unlock()

	if replaced {
		r.log.Infof("device %s reconnected, replacing previous connection. total connections: %d", deviceID, total)
	} else {
		r.log.Infof("device %s connected. total connections: %d", deviceID, total)
	}

	return conn
}

//Unregister removes the connection for deviceID if there is one
func (r *Registry) Unregister(deviceID string) {
	r.mu.Lock()
	_, ok := r.connections[deviceID]
	delete(r.connections, deviceID)
	remaining := len(r.connections)
	r.mu.Unlock()

	if ok {
		r.log.Infof("device %s disconnected. remaining connections: %d", deviceID, remaining)
	}
}

//Release removes conn only if it is still the registered connection for its device
func (r *Registry) Release(conn *Connection) bool {
	if conn == nil {
		return false
	}

	r.mu.Lock()
	current, ok := r.connections[conn.DeviceID]
	released := ok && current == conn
	if released {
		delete(r.connections, conn.DeviceID)
	}
	remaining := len(r.connections)
	r.mu.Unlock()

	if released {
		r.log.Infof("device %s disconnected. remaining connections: %d", conn.DeviceID, remaining)
	}

	return released
}

//Touch records activity on the device's current connection
func (r *Registry) Touch(deviceID string) {
	now := r.now()

	r.mu.Lock()
	if conn, ok := r.connections[deviceID]; ok {
		conn.lastActivityAt = now
	}
	r.mu.Unlock()
}

func (r *Registry) touchConnection(conn *Connection) {
	now := r.now()

	r.mu.Lock()
	if current, ok := r.connections[conn.DeviceID]; ok && current == conn {
		conn.lastActivityAt = now
	}
	r.mu.Unlock()
}

//Get returns the live connection for deviceID
func (r *Registry) Get(deviceID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.connections[deviceID]
	return conn, ok
}

//ListConnected returns the ids of all connected devices in lexical order
func (r *Registry) ListConnected() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.connections))
	for id := range r.connections {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

//Count returns the number of live connections
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

//Snapshot returns connection details keyed by device id
func (r *Registry) Snapshot() map[string]ConnectionInfo {
	now := r.now()

	r.mu.RLock()
	defer r.mu.RUnlock()

	info := make(map[string]ConnectionInfo, len(r.connections))
	for id, conn := range r.connections {
		info[id] = ConnectionInfo{
			ConnectionID:   conn.ID,
			ConnectedAt:    conn.connectedAt,
			LastActivityAt: conn.lastActivityAt,
			ConnectedFor:   now.Sub(conn.connectedAt),
		}
	}
	return info
}

//SweepStale removes and closes every connection idle for longer than maxIdle
func (r *Registry) SweepStale(maxIdle time.Duration) int {
	now := r.now()
	stale := []*Connection{}

	r.mu.Lock()
	for id, conn := range r.connections {
		if now.Sub(conn.lastActivityAt) > maxIdle {
			stale = append(stale, conn)
			delete(r.connections, id)
		}
	}
	r.mu.Unlock()

	for _, conn := range stale {
		r.log.Infof("removing stale connection for device %s (idle since %s)", conn.DeviceID, conn.lastActivityAt.Format(time.RFC3339))
		conn.sink.Close()
	}

	return len(stale)
}

//Run sweeps stale connections every interval until ctx is cancelled
func (r *Registry) Run(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := r.SweepStale(maxIdle); removed > 0 {
				r.log.Infof("swept %d stale connection(s), %d remaining", removed, r.Count())
			}
		}
	}
}
