package w5500

import (
	"log/slog"
	"net"
	"net/netip"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by New to zero Config fields.
const (
	DefaultTimeout      = 200 * time.Millisecond
	DefaultDynamicPort  = 49152
	DefaultLeaseRetries = 3
)

// DefaultMAC is the hardware address used when none is configured.
var DefaultMAC = net.HardwareAddr{0xDE, 0xAD, 0xBE, 0xEF, 0xFE, 0xED}

// Config configures a Device.
type Config struct {
	MAC      net.HardwareAddr
	Hostname string
	// Static network configuration used by BeginConfig.
	Addr    netip.Addr
	Subnet  netip.Addr
	Gateway netip.Addr
	DNS     netip.Addr
	// Timeout is the chip's retransmission timeout.
	Timeout time.Duration
	// DynamicPort is the first port handed out to sockets opened on port 0
	// and the port the counter wraps back to.
	DynamicPort uint16
	// PollDelay is the pause between command completion polls.
	PollDelay time.Duration
	// PollLimit bounds polling loops, see Bus.PollLimit.
	PollLimit    int
	LeaseRetries int

	Logger   *slog.Logger
	Resolver Resolver
}

func (cfg *Config) setDefaults() {
	if len(cfg.MAC) != 6 {
		cfg.MAC = DefaultMAC
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.DynamicPort == 0 {
		cfg.DynamicPort = DefaultDynamicPort
	}
	if cfg.PollDelay <= 0 {
		cfg.PollDelay = DefaultPollDelay
	}
	if cfg.LeaseRetries <= 0 {
		cfg.LeaseRetries = DefaultLeaseRetries
	}
}

// configFile is the YAML form of Config.
type configFile struct {
	MAC          string        `yaml:"mac"`
	Hostname     string        `yaml:"hostname"`
	Addr         string        `yaml:"addr"`
	Subnet       string        `yaml:"subnet"`
	Gateway      string        `yaml:"gateway"`
	DNS          string        `yaml:"dns"`
	Timeout      time.Duration `yaml:"timeout"`
	DynamicPort  uint16        `yaml:"dynamic_port"`
	PollDelay    time.Duration `yaml:"poll_delay"`
	LeaseRetries int           `yaml:"lease_retries"`
}

// ParseConfig parses a YAML device configuration such as:
//
//	mac: de:ad:be:ef:fe:ed
//	addr: 192.168.1.50
//	subnet: 255.255.255.0
//	timeout: 200ms
//
// Omitted fields keep their defaults.
func ParseConfig(data []byte) (Config, error) {
	var f configFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Config{}, err
	}
	cfg := Config{
		Hostname:     f.Hostname,
		Timeout:      f.Timeout,
		DynamicPort:  f.DynamicPort,
		PollDelay:    f.PollDelay,
		LeaseRetries: f.LeaseRetries,
	}
	var err error
	if f.MAC != "" {
		if cfg.MAC, err = net.ParseMAC(f.MAC); err != nil {
			return Config{}, err
		}
	}
	for _, field := range []struct {
		s   string
		dst *netip.Addr
	}{
		{f.Addr, &cfg.Addr},
		{f.Subnet, &cfg.Subnet},
		{f.Gateway, &cfg.Gateway},
		{f.DNS, &cfg.DNS},
	} {
		if field.s == "" {
			continue
		}
		if *field.dst, err = netip.ParseAddr(field.s); err != nil {
			return Config{}, err
		}
	}
	cfg.setDefaults()
	return cfg, nil
}
