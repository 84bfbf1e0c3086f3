package discovery

import (
	"fmt"

	"github.com/wryfox/localsend-go/internal/config"
	"github.com/wryfox/localsend-go/internal/localsend/client"
	"github.com/wryfox/localsend-go/internal/models"
	"github.com/wryfox/localsend-go/internal/store"
)

// PeerFunc is invoked once per observed peer message, after the registry
// was updated.
type PeerFunc func(models.DeviceInfo)

// Discoverer is one discovery channel. The node runs the multicast
// discoverer and the HTTP scanner side by side; both feed the same
// registry and deduplicate by fingerprint there.
type Discoverer interface {
	Start() error
	Stop() error
	OnPeer(fn PeerFunc)
}

// New selects a discovery mechanism by name.
func New(kind string, cfg *config.Config, registry *store.Registry, cl *client.Client) (Discoverer, error) {
	switch kind {
	case "multicast":
		return NewMulticast(cfg, registry, cl)
	case "scan":
		return NewScanner(cfg, registry, cl), nil
	default:
		return nil, fmt.Errorf("unknown discovery mechanism %q", kind)
	}
}
