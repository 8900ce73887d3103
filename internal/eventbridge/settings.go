package eventbridge

import (
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kingrea/layerdeck/internal/config"
)

const (
	// DefaultHost is the loopback interface used when no host override is provided.
	DefaultHost = "127.0.0.1"
	// DefaultPort is the default TCP port for the bridge server.
	DefaultPort = 8765
	// DefaultMaxBodyBytes limits request payloads to 1 MB.
	DefaultMaxBodyBytes int64 = 1 << 20
	// DefaultReadTimeout guards hung clients.
	DefaultReadTimeout = 15 * time.Second
	// DefaultWriteTimeout bounds handler writes. Streams clear it.
	DefaultWriteTimeout = 15 * time.Second
	// DefaultIdleTimeout bounds keep-alive connections.
	DefaultIdleTimeout = 60 * time.Second
	// DefaultKeepAlive is how often an idle event stream sends a comment line.
	DefaultKeepAlive = 20 * time.Second
)

// Settings captures runtime configuration for the HTTP event bridge server
// and the router behind its event stream.
type Settings struct {
	Enabled      bool
	Host         string
	Port         int
	MaxBodyBytes int64
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// StreamBuffer is the per-subscriber channel size; 0 keeps the router default.
	StreamBuffer int
	// StreamBacklog is how many events a topic holds before its first subscriber.
	StreamBacklog int
	// KeepAlive spaces comment lines on idle streams; negative disables them.
	KeepAlive time.Duration
}

// SettingsFromConfig builds Settings from the bridge block of the project
// config, then applies LAYERDECK_BRIDGE_* environment overrides.
func SettingsFromConfig(cfg *config.Config) Settings {
	settings := Settings{
		Enabled:      true,
		Host:         DefaultHost,
		Port:         DefaultPort,
		MaxBodyBytes: DefaultMaxBodyBytes,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
		IdleTimeout:  DefaultIdleTimeout,
		KeepAlive:    DefaultKeepAlive,
	}
	if cfg != nil {
		raw := cfg.Project.Bridge
		if raw.Enabled != nil {
			settings.Enabled = *raw.Enabled
		}
		if host := strings.TrimSpace(raw.Host); host != "" {
			settings.Host = host
		}
		if isValidPort(raw.Port) {
			settings.Port = raw.Port
		}
		if raw.StreamBuffer > 0 {
			settings.StreamBuffer = raw.StreamBuffer
		}
		if raw.KeepAliveMS != 0 {
			settings.KeepAlive = time.Duration(raw.KeepAliveMS) * time.Millisecond
		}
	}
	settings.applyEnvOverrides(os.LookupEnv)
	settings.normalize()
	return settings
}

// envOverrides maps each LAYERDECK_BRIDGE_* variable onto a setting. Values
// that do not parse are ignored.
var envOverrides = map[string]func(s *Settings, value string){
	"LAYERDECK_BRIDGE_ENABLED": func(s *Settings, value string) {
		if enabled, err := strconv.ParseBool(value); err == nil {
			s.Enabled = enabled
		}
	},
	"LAYERDECK_BRIDGE_HOST": func(s *Settings, value string) {
		s.Host = value
	},
	"LAYERDECK_BRIDGE_PORT": func(s *Settings, value string) {
		if port, err := strconv.Atoi(value); err == nil && isValidPort(port) {
			s.Port = port
		}
	},
	"LAYERDECK_BRIDGE_STREAM_BUFFER": func(s *Settings, value string) {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			s.StreamBuffer = n
		}
	},
	"LAYERDECK_BRIDGE_KEEPALIVE": func(s *Settings, value string) {
		if d, err := time.ParseDuration(value); err == nil {
			s.KeepAlive = d
		}
	},
}

func (s *Settings) applyEnvOverrides(lookup func(string) (string, bool)) {
	for name, apply := range envOverrides {
		if value, ok := lookup(name); ok {
			if value = strings.TrimSpace(value); value != "" {
				apply(s, value)
			}
		}
	}
}

func (s *Settings) normalize() {
	s.Host = strings.TrimSpace(s.Host)
	if s.Host == "" {
		s.Host = DefaultHost
	}
	if !isValidPort(s.Port) {
		s.Port = DefaultPort
	}
	if s.MaxBodyBytes <= 0 {
		s.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if s.ReadTimeout <= 0 {
		s.ReadTimeout = DefaultReadTimeout
	}
	if s.WriteTimeout <= 0 {
		s.WriteTimeout = DefaultWriteTimeout
	}
	if s.IdleTimeout <= 0 {
		s.IdleTimeout = DefaultIdleTimeout
	}
}

// RouterOptions sizes a router for these settings.
func (s Settings) RouterOptions(logger Logger) []RouterOption {
	opts := []RouterOption{RouterWithLogger(logger)}
	if s.StreamBuffer > 0 {
		opts = append(opts, RouterWithSubscriberCapacity(s.StreamBuffer))
	}
	if s.StreamBacklog > 0 {
		opts = append(opts, RouterWithBacklogLimit(s.StreamBacklog))
	}
	return opts
}

// Address returns the TCP bind address in host:port form.
func (s Settings) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// URL returns the HTTP base URL for the server.
func (s Settings) URL() string {
	return "http://" + s.Address()
}

func isValidPort(port int) bool {
	return port > 0 && port <= 65535
}
