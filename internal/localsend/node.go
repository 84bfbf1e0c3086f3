package localsend

import (
	"log/slog"

	"github.com/wryfox/localsend-go/internal/config"
	"github.com/wryfox/localsend-go/internal/localsend/client"
	"github.com/wryfox/localsend-go/internal/localsend/discovery"
	"github.com/wryfox/localsend-go/internal/localsend/recv"
	"github.com/wryfox/localsend-go/internal/store"
)

// Node bundles the inbound server, both discovery channels and the peer
// registry into one LocalSend instance.
type Node struct {
	cfg      *config.Config
	registry *store.Registry
	client   *client.Client
	receiver *recv.FileReceiver

	multicast *discovery.Multicast
	scanner   *discovery.Scanner
}

func NewNode(cfg *config.Config) *Node {
	registry := store.NewRegistry()

	return &Node{
		cfg:      cfg,
		registry: registry,
		receiver: recv.NewFileReceiver(cfg, registry),
	}
}

func (nd *Node) Registry() *store.Registry {
	return nd.registry
}

func (nd *Node) Receiver() *recv.FileReceiver {
	return nd.receiver
}

// Client is valid after Init.
func (nd *Node) Client() *client.Client {
	return nd.client
}

// Init prepares the identity (including the https certificate
// fingerprint) and builds the discovery channels around it.
func (nd *Node) Init() error {
	if err := nd.receiver.Init(); err != nil {
		return err
	}

	// the client advertises the post-Init identity in register and
	// prepare-upload bodies
	nd.client = client.New(nd.receiver.Identity(), nd.cfg.InsecureTLS)

	multicast, err := discovery.NewMulticast(nd.cfg, nd.registry, nd.client)
	if err != nil {
		return err
	}
	nd.multicast = multicast
	nd.scanner = discovery.NewScanner(nd.cfg, nd.registry, nd.client)

	return nil
}

// Start launches discovery and serves the protocol endpoints. It blocks
// until Stop.
func (nd *Node) Start() error {
	if err := nd.multicast.Start(); err != nil {
		// a filtered network without multicast still works via the scanner
		slog.Warn("Multicast discovery unavailable", "error", err)
	} else {
		nd.multicast.AnnouncePresence()
	}

	if err := nd.scanner.Start(); err != nil {
		slog.Warn("Subnet scanner unavailable", "error", err)
	}

	return nd.receiver.Start()
}

// AnnouncePresence triggers a fresh solicitation burst.
func (nd *Node) AnnouncePresence() {
	if nd.multicast != nil {
		nd.multicast.AnnouncePresence()
	}
}

// Stop shuts the node down: discovery first, then the listener, then
// every active session.
func (nd *Node) Stop() error {
	if nd.multicast != nil {
		nd.multicast.Stop()
	}
	if nd.scanner != nil {
		nd.scanner.Stop()
	}

	return nd.receiver.Stop()
}
