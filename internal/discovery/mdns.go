package discovery

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"

	"github.com/hashicorp/mdns"
)

const ServiceType = "_scribble._tcp"

type Config struct {
	Instance string
	Port     int
	// Host is the advertised host name. Empty uses the OS host name.
	Host string
	// IPs overrides address detection.
	IPs []net.IP
}

// NewService builds the mDNS zone describing this server.
func NewService(cfg Config) (*mdns.MDNSService, error) {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("cannot advertise port %d", cfg.Port)
	}

	instance := cfg.Instance
	if instance == "" {
		host, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("could not get hostname: %w", err)
		}
		instance = host
	}

	host := cfg.Host
	if host != "" && !strings.HasSuffix(host, ".") {
		host += "."
	}

	info := []string{"scribble", "path=/ws"}
	service, err := mdns.NewMDNSService(instance, ServiceType, "", host, cfg.Port, cfg.IPs, info)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS service: %w", err)
	}
	return service, nil
}

// Advertiser answers mDNS queries for the server until Shutdown.
type Advertiser struct {
	server *mdns.Server
	logger *slog.Logger
}

func Advertise(cfg Config, logger *slog.Logger) (*Advertiser, error) {
	service, err := NewService(cfg)
	if err != nil {
		return nil, err
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("failed to start mDNS server: %w", err)
	}

	logger = logger.With("component", "discovery")
	logger.Info("advertising on mDNS", "service", ServiceType, "instance", service.Instance, "port", cfg.Port)
	return &Advertiser{server: server, logger: logger}, nil
}

func (a *Advertiser) Shutdown() error {
	if err := a.server.Shutdown(); err != nil {
		return fmt.Errorf("stop mDNS server: %w", err)
	}
	a.logger.Info("mDNS advertising stopped")
	return nil
}
