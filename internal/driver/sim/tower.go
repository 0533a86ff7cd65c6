package sim

import (
	"errors"
	"sync"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"github.com/flightlink/copter-actor/internal/driver"
)

// ErrTowerNotConnected is returned when registering a drone before the tower is up.
var ErrTowerNotConnected = errors.New("tower not connected")

// Tower is a simulated driver.Tower. Listener callbacks run on their own goroutine.
type Tower struct {
	logger *zap.Logger

	mu        sync.Mutex
	connected bool
	listener  driver.TowerListener
	drones    map[driver.Drone]struct{}

	wg conc.WaitGroup
}

// NewTower returns a disconnected tower.
func NewTower(logger *zap.Logger) *Tower {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tower{
		logger: logger.With(zap.String("component", "sim-tower")),
		drones: make(map[driver.Drone]struct{}),
	}
}

// Connect brings the tower up and calls l.OnConnected asynchronously.
func (t *Tower) Connect(l driver.TowerListener) error {
	t.mu.Lock()
	if t.connected {
		t.mu.Unlock()
		return nil
	}
	t.connected = true
	t.listener = l
	t.mu.Unlock()

	t.logger.Debug("Tower connected")
	if l.OnConnected != nil {
		t.wg.Go(l.OnConnected)
	}
	return nil
}

// Disconnect drops every registration and calls OnDisconnected asynchronously.
func (t *Tower) Disconnect() error {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return nil
	}
	t.connected = false
	l := t.listener
	for d := range t.drones {
		detach(d)
		delete(t.drones, d)
	}
	t.mu.Unlock()

	t.logger.Debug("Tower disconnected")
	if l.OnDisconnected != nil {
		t.wg.Go(l.OnDisconnected)
	}
	return nil
}

// IsTowerConnected implements driver.Tower.
func (t *Tower) IsTowerConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// RegisterDrone attaches d so it may connect.
func (t *Tower) RegisterDrone(d driver.Drone) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return ErrTowerNotConnected
	}
	t.drones[d] = struct{}{}
	if sd, ok := d.(*Drone); ok {
		sd.registered.Store(true)
	}
	return nil
}

// UnregisterDrone detaches d.
func (t *Tower) UnregisterDrone(d driver.Drone) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.drones[d]; !ok {
		return nil
	}
	detach(d)
	delete(t.drones, d)
	return nil
}

// Wait blocks until pending listener callbacks have returned.
func (t *Tower) Wait() {
	t.wg.Wait()
}

func detach(d driver.Drone) {
	if sd, ok := d.(*Drone); ok {
		sd.registered.Store(false)
	}
}

var _ driver.Tower = (*Tower)(nil)
