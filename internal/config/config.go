package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"

	"github.com/wryfox/localsend-go/internal/crypto"
	"github.com/wryfox/localsend-go/internal/models"
)

var ErrInvalidConfig = errors.New("invalid-config")

const (
	DefaultPort            = 53317
	DefaultSaveDir         = "./received_files"
	DefaultScanIntervalSec = 30
	DefaultScanConcurrency = 50
	DefaultMaxUploadBytes  = 5 << 30
)

var validDeviceTypes = map[string]bool{
	"mobile":   true,
	"desktop":  true,
	"web":      true,
	"headless": true,
	"server":   true,
}

// Options are the caller-supplied knobs; zero values select defaults.
type Options struct {
	Alias             string
	Port              int
	Protocol          string
	DeviceType        string
	EnableDownloadAPI bool
	SaveDir           string
	PIN               string
	ScanIntervalSec   int
	ScanConcurrency   int
	MaxUploadBytes    int64
}

// envToggles are read once at startup, never again.
type envToggles struct {
	InsecureTLS    string `envconfig:"LOCALSEND_INSECURE_TLS" default:"1"`
	DebugDiscovery string `envconfig:"LOCALSEND_DEBUG_DISCOVERY" default:"0"`
}

// Config is the resolved node configuration plus the identity advertised
// to peers. The fingerprint is regenerated on every start.
type Config struct {
	Alias             string
	Port              int
	Protocol          string
	DeviceType        string
	EnableDownloadAPI bool
	SaveDir           string
	PIN               string
	ScanIntervalSec   int
	ScanConcurrency   int
	MaxUploadBytes    int64
	Fingerprint       string
	InsecureTLS       bool
	DebugDiscovery    bool
}

func New(opts Options) (*Config, error) {
	cfg := &Config{
		Alias:             opts.Alias,
		Port:              opts.Port,
		Protocol:          opts.Protocol,
		DeviceType:        opts.DeviceType,
		EnableDownloadAPI: opts.EnableDownloadAPI,
		SaveDir:           opts.SaveDir,
		PIN:               opts.PIN,
		ScanIntervalSec:   opts.ScanIntervalSec,
		ScanConcurrency:   opts.ScanConcurrency,
		MaxUploadBytes:    opts.MaxUploadBytes,
		Fingerprint:       crypto.NewFingerprint(),
	}

	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, cfg.Port)
	}

	switch cfg.Protocol {
	case "":
		cfg.Protocol = "http"
	case "http", "https":
	default:
		return nil, fmt.Errorf("%w: unknown protocol %q", ErrInvalidConfig, cfg.Protocol)
	}

	if cfg.DeviceType == "" {
		cfg.DeviceType = inferDeviceType()
	}
	if !validDeviceTypes[cfg.DeviceType] {
		return nil, fmt.Errorf("%w: unknown device type %q", ErrInvalidConfig, cfg.DeviceType)
	}

	if cfg.SaveDir == "" {
		cfg.SaveDir = DefaultSaveDir
	}
	if cfg.ScanIntervalSec <= 0 {
		cfg.ScanIntervalSec = DefaultScanIntervalSec
	}
	if cfg.ScanConcurrency <= 0 {
		cfg.ScanConcurrency = DefaultScanConcurrency
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}

	var env envToggles
	if err := envconfig.Process("", &env); err != nil {
		return nil, err
	}
	cfg.InsecureTLS = env.InsecureTLS != "0"
	cfg.DebugDiscovery = env.DebugDiscovery == "1"

	return cfg, nil
}

// DeviceInfo renders the descriptor this node advertises.
func (cfg *Config) DeviceInfo() models.DeviceInfo {
	return models.NewDeviceInfo(cfg.Alias, cfg.Fingerprint, cfg.Port, cfg.Protocol, cfg.DeviceType, cfg.EnableDownloadAPI)
}

func inferDeviceType() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "server"
	}
	if os.Getenv("SSH_CONNECTION") != "" || os.Getenv("SSH_TTY") != "" {
		return "headless"
	}
	return "desktop"
}
