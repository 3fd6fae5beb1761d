package feed

import (
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"assetledger/pkg/registry"
)

const sendBuffer = 32

// Observer is one connected websocket watching registry events.
type Observer struct {
	ID string
	// Identity narrows the feed to events naming this identity; empty means all.
	Identity registry.Identity
	Conn     *websocket.Conn
	Send     chan any
	Done     chan struct{}
}

func (o *Observer) wants(e registry.Event) bool {
	if o.Identity == "" {
		return true
	}
	return e.Creator == o.Identity || e.Seller == o.Identity || e.Buyer == o.Identity
}

// ConnectionManager tracks every open observer connection.
type ConnectionManager struct {
	mu        sync.RWMutex
	observers map[string]*Observer
}

func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		observers: make(map[string]*Observer),
	}
}

func (cm *ConnectionManager) AddObserver(conn *websocket.Conn, identity registry.Identity) *Observer {
	o := &Observer{
		ID:       uuid.NewString(),
		Identity: identity,
		Conn:     conn,
		Send:     make(chan any, sendBuffer),
		Done:     make(chan struct{}),
	}

	cm.mu.Lock()
	cm.observers[o.ID] = o
	cm.mu.Unlock()
	return o
}

// RemoveObserver unregisters an observer and signals its loops to stop.
// Removing an unknown id is a no-op.
func (cm *ConnectionManager) RemoveObserver(id string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if o, ok := cm.observers[id]; ok {
		close(o.Done)
		delete(cm.observers, id)
	}
}

func (cm *ConnectionManager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.observers)
}

// Broadcast queues e for every interested observer. Observers whose queue is
// full miss the event rather than stall the feed.
func (cm *ConnectionManager) Broadcast(e registry.Event) (delivered, dropped int) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	for _, o := range cm.observers {
		if !o.wants(e) {
			continue
		}
		select {
		case o.Send <- e:
			delivered++
		default:
			dropped++
		}
	}
	return delivered, dropped
}

// CloseAll disconnects every observer.
func (cm *ConnectionManager) CloseAll() {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	for id, o := range cm.observers {
		close(o.Done)
		if o.Conn != nil {
			_ = o.Conn.Close()
		}
		delete(cm.observers, id)
	}
}
