package constants

import (
	"net"
	"time"
)

const (
	InfoPath      = "/api/localsend/v2/info"
	RegisterPath  = "/api/localsend/v2/register"
	PreuploadPath = "/api/localsend/v2/prepare-upload"
	UploadPath    = "/api/localsend/v2/upload"
	CancelPath    = "/api/localsend/v2/cancel"
)

const (
	DefaultPort = 53317

	// Files above ChunkThreshold are sent as independent ranged requests
	// of ChunkSize bytes each.
	ChunkThreshold = 50 << 20
	ChunkSize      = 10 << 20

	// CopyBufferSize bounds the in-memory buffer while streaming a chunk
	// to disk; everything beyond rides on TCP backpressure.
	CopyBufferSize = 1 << 20

	// SessionIdleTTL expires sessions whose sender went away without
	// cancelling.
	SessionIdleTTL = 10 * time.Minute
)

const (
	InfoTimeout      = 1 * time.Second
	RegisterTimeout  = 2 * time.Second
	PreuploadTimeout = 5 * time.Second
	UploadTimeout    = 30 * time.Second
	CancelTimeout    = 5 * time.Second
	ProbeTimeout     = 1 * time.Second
)

var MulticastGroup = &net.UDPAddr{
	IP:   net.ParseIP("224.0.0.167"),
	Port: DefaultPort,
}
