// Package config loads the node file of cspnode using viper.
package config

import (
	"strings"
	"time"

	"csp-stack/csp"
	"csp-stack/stack"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. CSP_NODE_ADDRESS.
const EnvPrefix = "CSP"

type Config struct {
	Node       NodeConfig        `mapstructure:"node"`
	Log        LogConfig         `mapstructure:"log"`
	Interfaces []InterfaceConfig `mapstructure:"interfaces"`
	Routes     []RouteConfig     `mapstructure:"routes"`
}

// NodeConfig holds the settings handed to csp.Config.
type NodeConfig struct {
	Address  uint16 `mapstructure:"address"`
	Hostname string `mapstructure:"hostname"`
	Model    string `mapstructure:"model"`
	Revision string `mapstructure:"revision"`

	ConnMax         int   `mapstructure:"conn_max"`
	ConnQueueLength int   `mapstructure:"conn_queue_length"`
	FifoLength      int   `mapstructure:"fifo_length"`
	PortMaxBind     uint8 `mapstructure:"port_max_bind"`
	RDPMaxWindow    int   `mapstructure:"rdp_max_window"`
	Buffers         int   `mapstructure:"buffers"`
	BufferDataSize  int   `mapstructure:"buffer_data_size"`
	Backlog         int   `mapstructure:"backlog"`

	SendTimeout    time.Duration `mapstructure:"send_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	ServiceTimeout time.Duration `mapstructure:"service_timeout"`
	AcceptPoll     time.Duration `mapstructure:"accept_poll"`

	// Debug lists enabled stack debug channels by name.
	Debug []string `mapstructure:"debug"`
}

type LogConfig struct {
	Level  string        `mapstructure:"level"`  // debug / info / warn / error
	Format string        `mapstructure:"format"` // json / text
	File   FileLogConfig `mapstructure:"file"`
}

// FileLogConfig adds a rotated log file next to stderr.
type FileLogConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// InterfaceConfig is a link to another node. Exactly one of Dial or Listen
// is set.
type InterfaceConfig struct {
	Name   string   `mapstructure:"name"`
	Type   string   `mapstructure:"type"`
	Dial   string   `mapstructure:"dial"`
	Listen string   `mapstructure:"listen"`
	Accept []uint16 `mapstructure:"accept"`
}

// RouteConfig routes Address/Netmask through the named interface. A missing
// netmask covers every bit; a missing via sends straight to the destination.
type RouteConfig struct {
	Address   uint16  `mapstructure:"address"`
	Netmask   *int    `mapstructure:"netmask"`
	Via       *uint16 `mapstructure:"via"`
	Interface string  `mapstructure:"interface"`
}

// Load reads the node file at path, which may be empty to use defaults and
// the environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, "reading config file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decoding config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "validating config")
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := csp.DefaultConfig()

	v.SetDefault("node.address", d.Address)
	v.SetDefault("node.hostname", d.Hostname)
	v.SetDefault("node.model", d.Model)
	v.SetDefault("node.revision", d.Revision)
	v.SetDefault("node.conn_max", d.ConnMax)
	v.SetDefault("node.conn_queue_length", d.ConnQueueLength)
	v.SetDefault("node.fifo_length", d.FifoLength)
	v.SetDefault("node.port_max_bind", d.PortMaxBind)
	v.SetDefault("node.rdp_max_window", d.RDPMaxWindow)
	v.SetDefault("node.buffers", d.Buffers)
	v.SetDefault("node.buffer_data_size", d.BufferDataSize)
	v.SetDefault("node.backlog", d.Backlog)
	v.SetDefault("node.send_timeout", d.SendTimeout)
	v.SetDefault("node.read_timeout", d.ReadTimeout)
	v.SetDefault("node.service_timeout", d.ServiceTimeout)
	v.SetDefault("node.accept_poll", d.AcceptPoll)
	v.SetDefault("node.debug", []string{stack.DebugError.String()})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file.enabled", false)
	v.SetDefault("log.file.max_size_mb", 100)
	v.SetDefault("log.file.max_age_days", 30)
	v.SetDefault("log.file.max_backups", 5)
	v.SetDefault("log.file.compress", true)
}

func (c *Config) Validate() error {
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return errors.Errorf("invalid log level: %s (must be debug/info/warn/error)", c.Log.Level)
	}
	if f := strings.ToLower(c.Log.Format); f != "json" && f != "text" {
		return errors.Errorf("invalid log format: %s (must be json/text)", c.Log.Format)
	}
	if c.Log.File.Enabled && c.Log.File.Path == "" {
		return errors.New("log.file.path is required when log.file.enabled=true")
	}

	node, err := c.Node.CSP()
	if err != nil {
		return err
	}
	if err := node.Validate(); err != nil {
		return errors.Wrap(err, "node")
	}

	names := make(map[string]bool, len(c.Interfaces))
	for i, iface := range c.Interfaces {
		if err := iface.validate(); err != nil {
			return errors.Wrapf(err, "interfaces[%d]", i)
		}
		if names[iface.Name] {
			return errors.Errorf("interfaces[%d]: duplicate name %q", i, iface.Name)
		}
		names[iface.Name] = true
	}

	for i, r := range c.Routes {
		if !names[r.Interface] {
			return errors.Errorf("routes[%d]: unknown interface %q", i, r.Interface)
		}
		if r.Netmask != nil && (*r.Netmask < -1 || *r.Netmask > 16) {
			return errors.Errorf("routes[%d]: netmask must be in -1..16, got %d", i, *r.Netmask)
		}
	}
	return nil
}

func (i InterfaceConfig) validate() error {
	if i.Name == "" {
		return errors.New("name is required")
	}
	if i.Type != "tcp" {
		return errors.Errorf("unsupported type %q (only 'tcp' supported)", i.Type)
	}
	if (i.Dial == "") == (i.Listen == "") {
		return errors.New("exactly one of dial or listen is required")
	}
	return nil
}

// CSP converts n into the configuration of a csp instance.
func (n NodeConfig) CSP() (csp.Config, error) {
	channels := make([]csp.DebugChannel, 0, len(n.Debug))
	for _, name := range n.Debug {
		ch, ok := stack.ParseDebugChannel(strings.ToLower(strings.TrimSpace(name)))
		if !ok {
			return csp.Config{}, errors.Errorf("unknown debug channel %q", name)
		}
		channels = append(channels, ch)
	}

	cfg := csp.DefaultConfig().
		WithAddress(n.Address).
		WithDetails(n.Hostname, n.Model, n.Revision).
		WithConnMax(n.ConnMax).
		WithConnQueueLength(n.ConnQueueLength).
		WithFifoLength(n.FifoLength).
		WithPortMaxBind(n.PortMaxBind).
		WithRDPMaxWindow(n.RDPMaxWindow).
		WithBuffers(n.Buffers).
		WithBufferDataSize(n.BufferDataSize).
		WithBacklog(n.Backlog).
		WithDebugChannels(channels...)

	cfg.SendTimeout = n.SendTimeout
	cfg.ReadTimeout = n.ReadTimeout
	cfg.ServiceTimeout = n.ServiceTimeout
	cfg.AcceptPoll = n.AcceptPoll
	return cfg, nil
}

// Route converts r into a csp route.
func (r RouteConfig) Route() csp.Route {
	route := csp.NewRoute(r.Address)
	if r.Netmask != nil {
		route = route.WithNetmask(*r.Netmask)
	}
	if r.Via != nil {
		route = route.WithVia(*r.Via)
	}
	return route
}
