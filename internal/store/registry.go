package store

import (
	"errors"
	"sync"

	"github.com/wryfox/localsend-go/internal/models"
)

var ErrNoSuchDevice = errors.New("No such device")

// Registry is the set of known peers, keyed by fingerprint so that a
// device reaching us over multicast and over a subnet scan is stored once.
// Insertion is last-write-wins and there is no eviction within a run.
type Registry struct {
	mu        sync.RWMutex
	devices   map[string]models.DeviceInfo
	listeners []func(models.DeviceInfo)
}

func NewRegistry() *Registry {
	return &Registry{
		devices: make(map[string]models.DeviceInfo),
	}
}

// OnInsert registers a listener invoked on every Put, including overwrites
// of an already known fingerprint, so the host can refresh last-seen state.
func (reg *Registry) OnInsert(fn func(models.DeviceInfo)) {
	reg.mu.Lock()
	reg.listeners = append(reg.listeners, fn)
	reg.mu.Unlock()
}

// Put inserts or refreshes a peer. Listeners run outside the lock.
func (reg *Registry) Put(info models.DeviceInfo) {
	reg.mu.Lock()
	reg.devices[info.Fingerprint] = info
	listeners := reg.listeners
	reg.mu.Unlock()

	for _, fn := range listeners {
		fn(info)
	}
}

func (reg *Registry) Get(fingerprint string) (models.DeviceInfo, error) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	info, ok := reg.devices[fingerprint]
	if !ok {
		return models.DeviceInfo{}, ErrNoSuchDevice
	}

	return info, nil
}

func (reg *Registry) All() map[string]models.DeviceInfo {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	result := make(map[string]models.DeviceInfo, len(reg.devices))
	for k, v := range reg.devices {
		result[k] = v
	}
	return result
}

func (reg *Registry) Len() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	return len(reg.devices)
}
