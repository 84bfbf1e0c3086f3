package recv

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/wryfox/localsend-go/internal/config"
	"github.com/wryfox/localsend-go/internal/crypto"
	"github.com/wryfox/localsend-go/internal/localsend/constants"
	"github.com/wryfox/localsend-go/internal/localsend/session"
	lsutils "github.com/wryfox/localsend-go/internal/localsend/utils"
	"github.com/wryfox/localsend-go/internal/models"
	"github.com/wryfox/localsend-go/internal/store"
)

const shutdownTimeout = 5 * time.Second

// CompletionInfo accompanies the final progress event of a file.
type CompletionInfo struct {
	FilePath         string
	TotalTimeSeconds float64
	AverageSpeed     float64
}

// TransferProgressFunc is invoked periodically while a chunk streams and
// once with finished=true when the file is fully written. It runs on the
// request-handling goroutine and must not block for long.
type TransferProgressFunc func(fileId string, fileName string, received int64, total int64, bytesPerSec float64, finished bool, completion *CompletionInfo)

// FileReceiver serves the five protocol endpoints and owns the inbound
// half of the node.
type FileReceiver struct {
	cfg       *config.Config
	identity  models.DeviceInfo
	cert      tls.Certificate
	webServer *fiber.App
	sessman   *session.Manager
	registry  *store.Registry
	saveToDir string

	onProgress TransferProgressFunc
}

func NewFileReceiver(cfg *config.Config, registry *store.Registry) *FileReceiver {
	return &FileReceiver{
		cfg:       cfg,
		identity:  cfg.DeviceInfo(),
		webServer: lsutils.NewWebServer(int(cfg.MaxUploadBytes)),
		sessman:   session.NewManager(),
		registry:  registry,
		saveToDir: cfg.SaveDir,
	}
}

// OnTransferRequest installs the acceptance callback consulted for
// prepare-upload requests when no PIN is configured.
func (fr *FileReceiver) OnTransferRequest(fn session.TransferRequestFunc) {
	fr.sessman.OnTransferRequest(fn)
}

// OnTransferProgress installs the progress callback.
func (fr *FileReceiver) OnTransferProgress(fn TransferProgressFunc) {
	fr.onProgress = fn
}

// Identity returns the descriptor advertised by this node. Valid after
// Init.
func (fr *FileReceiver) Identity() models.DeviceInfo {
	return fr.identity
}

// Sessions exposes the session manager to the host for cancellation.
func (fr *FileReceiver) Sessions() *session.Manager {
	return fr.sessman
}

// Init prepares the TLS identity. In https mode the advertised
// fingerprint becomes the certificate's SHA-256 so that peers can pin it.
func (fr *FileReceiver) Init() error {
	if fr.cfg.Protocol == "https" {
		slog.Info("Generating https certificate")

		cert, err := crypto.GenTLScert()
		if err != nil {
			return err
		}
		fr.cert = cert

		fr.cfg.Fingerprint = crypto.SHA256ofCert(cert.Leaf)
		fr.identity = fr.cfg.DeviceInfo()
	}

	return nil
}

func (fr *FileReceiver) registerRoutes() {
	server := fr.webServer
	server.Get(constants.InfoPath, fr.infoHandler)
	server.Post(constants.RegisterPath, fr.registerHandler)
	server.Post(constants.PreuploadPath, fr.preUploadHandler)
	server.Post(constants.UploadPath, fr.uploadHandler)
	server.Post(constants.CancelPath, fr.cancelHandler)
}

// Start registers the routes and serves until Stop. It blocks.
func (fr *FileReceiver) Start() error {
	fr.registerRoutes()
	fr.sessman.Start()

	addr := fmt.Sprintf("0.0.0.0:%d", fr.cfg.Port)
	slog.Info("Serving", "addr", addr, "protocol", fr.cfg.Protocol, "alias", fr.identity.Alias)

	if fr.cfg.Protocol == "https" {
		return fr.webServer.ListenTLSWithCertificate(addr, fr.cert)
	}

	return fr.webServer.Listen(addr)
}

// Serve is Start on a caller-supplied listener; TLS wrapping is the
// caller's concern. Used by tests and embedders that pick the port.
func (fr *FileReceiver) Serve(ln net.Listener) error {
	fr.registerRoutes()
	fr.sessman.Start()

	return fr.webServer.Listener(ln)
}

// Stop drains in-flight handlers, then cancels every active session.
func (fr *FileReceiver) Stop() error {
	err := fr.webServer.ShutdownWithTimeout(shutdownTimeout)
	fr.sessman.Stop()

	return err
}
