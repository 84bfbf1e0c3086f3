package discovery

import (
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/wryfox/localsend-go/internal/config"
	"github.com/wryfox/localsend-go/internal/localsend/client"
	"github.com/wryfox/localsend-go/internal/localsend/constants"
	"github.com/wryfox/localsend-go/internal/models"
	"github.com/wryfox/localsend-go/internal/store"
	"github.com/wryfox/localsend-go/internal/utils"
)

// announceSchedule staggers the presence burst so that a single lost
// datagram does not hide the node.
var announceSchedule = []time.Duration{
	100 * time.Millisecond,
	500 * time.Millisecond,
	2000 * time.Millisecond,
}

// Multicast listens on the LocalSend discovery group and answers
// solicitations. It joins the group on every non-loopback IPv4 interface
// and keeps running with partial coverage when some joins fail.
type Multicast struct {
	cfg      *config.Config
	self     models.DeviceInfo
	registry *store.Registry
	client   *client.Client

	conn   *net.UDPConn
	pconn  *ipv4.PacketConn
	ifaces []net.Interface

	// SetMulticastInterface is connection state, so sends serialize.
	sendMu sync.Mutex

	onPeer PeerFunc
	done   chan struct{}
	wg     sync.WaitGroup
}

func NewMulticast(cfg *config.Config, registry *store.Registry, cl *client.Client) (*Multicast, error) {
	return &Multicast{
		cfg:      cfg,
		self:     cfg.DeviceInfo(),
		registry: registry,
		client:   cl,
		done:     make(chan struct{}),
	}, nil
}

func (mc *Multicast) OnPeer(fn PeerFunc) {
	mc.onPeer = fn
}

func (mc *Multicast) Start() error {
	// ListenMulticastUDP sets SO_REUSEADDR so several nodes can share the
	// port on one host
	conn, err := net.ListenMulticastUDP("udp4", nil, constants.MulticastGroup)
	if err != nil {
		return err
	}
	mc.conn = conn
	mc.pconn = ipv4.NewPacketConn(conn)
	mc.pconn.SetMulticastTTL(1)

	mc.ifaces, err = utils.MulticastInterfaces()
	if err != nil || len(mc.ifaces) == 0 {
		slog.Warn("Interface enumeration failed, using default interface", "error", err)
		mc.ifaces = nil
	}

	group := &net.UDPAddr{IP: constants.MulticastGroup.IP}
	joined := 0
	for idx := range mc.ifaces {
		if err := mc.pconn.JoinGroup(&mc.ifaces[idx], group); err != nil {
			slog.Warn("Fail to join multicast group", "interface", mc.ifaces[idx].Name, "error", err)
			continue
		}
		joined++
	}
	if joined == 0 && len(mc.ifaces) > 0 {
		slog.Warn("No multicast membership established, relying on default join")
	}

	mc.wg.Add(1)
	go mc.readLoop()

	return nil
}

func (mc *Multicast) Stop() error {
	select {
	case <-mc.done:
	default:
		close(mc.done)
	}

	if mc.conn == nil {
		return nil
	}

	// closing the socket unblocks the read loop
	err := mc.conn.Close()
	mc.wg.Wait()

	return err
}

// AnnouncePresence sends the solicitation burst on every joined
// interface. It returns immediately; the burst runs in the background.
func (mc *Multicast) AnnouncePresence() {
	mc.wg.Add(1)
	go func() {
		defer mc.wg.Done()

		start := time.Now()
		for _, offset := range announceSchedule {
			select {
			case <-mc.done:
				return
			case <-time.After(offset - time.Since(start)):
			}

			if err := mc.sendAnnouncement(true); err != nil {
				slog.Warn("Fail to send announcement", "error", err)
			}
		}
	}()
}

func (mc *Multicast) sendAnnouncement(solicit bool) error {
	payload, err := models.EncodeAnnouncement(mc.self, solicit)
	if err != nil {
		return err
	}

	mc.sendMu.Lock()
	defer mc.sendMu.Unlock()

	if len(mc.ifaces) == 0 {
		_, err := mc.pconn.WriteTo(payload, nil, constants.MulticastGroup)
		return err
	}

	var lastErr error
	for idx := range mc.ifaces {
		if err := mc.pconn.SetMulticastInterface(&mc.ifaces[idx]); err != nil {
			lastErr = err
			continue
		}
		if _, err := mc.pconn.WriteTo(payload, nil, constants.MulticastGroup); err != nil {
			lastErr = err
		}
	}

	return lastErr
}

func (mc *Multicast) readLoop() {
	defer mc.wg.Done()

	buf := make([]byte, 2048)

	for {
		n, _, src, err := mc.pconn.ReadFrom(buf)
		if err != nil {
			select {
			case <-mc.done:
				return
			default:
			}
			slog.Warn("Multicast read error", "error", err)
			return
		}

		srcAddr, ok := src.(*net.UDPAddr)
		if !ok {
			continue
		}

		mc.handleDatagram(buf[:n], srcAddr)
	}
}

func (mc *Multicast) handleDatagram(raw []byte, src *net.UDPAddr) {
	anno, err := models.DecodeAnnouncement(raw)
	if err != nil {
		// lossy by design, drop silently
		return
	}

	// our own burst loops back on every joined interface
	if anno.Fingerprint == mc.self.Fingerprint {
		return
	}

	peer := anno.GetDeviceInfo()
	peer.IP = src.IP.To4().String()
	if peer.Port == 0 {
		peer.Port = constants.DefaultPort
	}

	if mc.cfg.DebugDiscovery {
		slog.Debug("Announcement received", "remote", peer.IP, "alias", peer.Alias, "solicit", anno.IsSolicitation())
	}

	if anno.IsSolicitation() {
		mc.wg.Add(1)
		go func() {
			defer mc.wg.Done()
			mc.respond(peer)
		}()
	}

	mc.registry.Put(peer)

	if mc.onPeer != nil {
		mc.onPeer(peer)
	}
}

// respond answers a solicitation, preferring the HTTP register round trip
// and falling back to a UDP response datagram when the peer's HTTP
// endpoint is unreachable.
func (mc *Multicast) respond(peer models.DeviceInfo) {
	if _, err := mc.client.Register(peer); err == nil {
		return
	}

	if err := mc.sendAnnouncement(false); err != nil {
		slog.Warn("Fail to send announcement response", "remote", peer.IP, "error", err)
	}
}
