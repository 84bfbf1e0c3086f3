package discovery

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wryfox/localsend-go/internal/config"
	"github.com/wryfox/localsend-go/internal/localsend/client"
	"github.com/wryfox/localsend-go/internal/store"
	"github.com/wryfox/localsend-go/internal/utils"
)

// Scanner is the fallback discovery channel for networks that filter
// multicast: it probes every host of each local /24 over HTTP.
type Scanner struct {
	cfg      *config.Config
	registry *store.Registry
	client   *client.Client

	onPeer   PeerFunc
	scanning atomic.Bool
	done     chan struct{}
	wg       sync.WaitGroup
}

func NewScanner(cfg *config.Config, registry *store.Registry, cl *client.Client) *Scanner {
	return &Scanner{
		cfg:      cfg,
		registry: registry,
		client:   cl,
		done:     make(chan struct{}),
	}
}

func (sc *Scanner) OnPeer(fn PeerFunc) {
	sc.onPeer = fn
}

func (sc *Scanner) Start() error {
	sc.wg.Add(1)
	go func() {
		defer sc.wg.Done()

		sc.Scan()

		ticker := time.NewTicker(time.Duration(sc.cfg.ScanIntervalSec) * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-sc.done:
				return
			case <-ticker.C:
				sc.Scan()
			}
		}
	}()

	return nil
}

func (sc *Scanner) Stop() error {
	select {
	case <-sc.done:
	default:
		close(sc.done)
	}
	sc.wg.Wait()

	return nil
}

// Scan probes each local subnet once. A scan already in flight swallows
// the trigger.
func (sc *Scanner) Scan() {
	if !sc.scanning.CompareAndSwap(false, true) {
		return
	}
	defer sc.scanning.Store(false)

	locals, err := utils.GetMyIPv4Addr()
	if err != nil {
		slog.Warn("Fail to enumerate local addresses", "error", err)
		return
	}

	if sc.cfg.DebugDiscovery {
		slog.Debug("Subnet scan start", "interfaces", len(locals))
	}

	candidates := make([]string, 0, 254*len(locals))
	for _, local := range locals {
		candidates = append(candidates, subnetCandidates(local)...)
	}

	sem := make(chan struct{}, sc.cfg.ScanConcurrency)
	var wg sync.WaitGroup

	for _, host := range candidates {
		select {
		case <-sc.done:
			wg.Wait()
			return
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(host string) {
			defer wg.Done()
			defer func() { <-sem }()

			sc.probe(host)
		}(host)
	}

	wg.Wait()
}

// subnetCandidates lists every probe target of the /24 around local,
// excluding the local address itself.
func subnetCandidates(local net.IP) []string {
	v4 := local.To4()
	if v4 == nil {
		return nil
	}

	hosts := make([]string, 0, 253)
	for last := 1; last <= 254; last++ {
		if int(v4[3]) == last {
			continue
		}
		hosts = append(hosts, fmt.Sprintf("%d.%d.%d.%d", v4[0], v4[1], v4[2], last))
	}
	return hosts
}

func (sc *Scanner) probe(host string) {
	info, err := sc.client.Info(host, sc.cfg.Port, sc.cfg.Protocol)
	if err != nil {
		// absence of a host is the normal case
		return
	}

	if info.Fingerprint == "" || info.Fingerprint == sc.cfg.Fingerprint {
		return
	}

	if sc.cfg.DebugDiscovery {
		slog.Debug("Scanner found peer", "remote", host, "alias", info.Alias)
	}

	sc.registry.Put(info)

	if sc.onPeer != nil {
		sc.onPeer(info)
	}
}

var _ Discoverer = (*Scanner)(nil)
