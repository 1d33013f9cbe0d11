package blackboard

import (
	"sync"

	"github.com/srcful-labs/energygateway/pkg/gateway/device"
)

// DeviceListener is notified after a device registry mutation has
// committed. Notification happens outside the registry's lock, so a
// listener may safely call back into the registry (e.g. to inspect the
// current list) without deadlocking — but it must not assume it runs
// before other listeners have seen the same event.
type DeviceListener interface {
	DeviceAdded(d device.Device)
	DeviceRemoved(d device.Device)
}

// DeviceRegistry is the ordered set of active device sessions: unique
// identities, monotone absent→open→terminated transitions enforced by the
// caller (the registry itself only tracks membership), and post-commit
// listener notification.
type DeviceRegistry struct {
	mu        sync.Mutex
	byID      map[string]device.Device
	ordered   []device.Device
	listeners []DeviceListener
}

func newDeviceRegistry() *DeviceRegistry {
	return &DeviceRegistry{byID: make(map[string]device.Device)}
}

// Add registers d. If a device with the same ID is already registered,
// Add is a no-op and returns false — callers that mean to replace a
// session must Remove the old one first (this is what OpenDeviceTask
// does: terminate + remove every prior device before adding the new one).
func (r *DeviceRegistry) Add(d device.Device) bool {
	r.mu.Lock()
	if _, exists := r.byID[d.ID()]; exists {
		r.mu.Unlock()
		return false
	}
	r.byID[d.ID()] = d
	r.ordered = append(r.ordered, d)
	listeners := r.snapshotListenersLocked()
	r.mu.Unlock()

	for _, l := range listeners {
		l.DeviceAdded(d)
	}
	return true
}

// Remove unregisters d by identity. Remove does not close or terminate
// the device — callers are expected to have already done so.
func (r *DeviceRegistry) Remove(d device.Device) bool {
	r.mu.Lock()
	if _, exists := r.byID[d.ID()]; !exists {
		r.mu.Unlock()
		return false
	}
	delete(r.byID, d.ID())
	for i, existing := range r.ordered {
		if existing.ID() == d.ID() {
			r.ordered = append(r.ordered[:i], r.ordered[i+1:]...)
			break
		}
	}
	listeners := r.snapshotListenersLocked()
	r.mu.Unlock()

	for _, l := range listeners {
		l.DeviceRemoved(d)
	}
	return true
}

// List returns a snapshot of the currently registered devices, in
// insertion order.
func (r *DeviceRegistry) List() []device.Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]device.Device, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// AddListener registers l to be notified of future add/remove events. It
// does not replay past events.
func (r *DeviceRegistry) AddListener(l DeviceListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

func (r *DeviceRegistry) snapshotListenersLocked() []DeviceListener {
	out := make([]DeviceListener, len(r.listeners))
	copy(out, r.listeners)
	return out
}
