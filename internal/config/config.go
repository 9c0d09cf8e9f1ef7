// Package config handles the parsing and validation of application
// configuration from command-line arguments and environment variables.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/wardenbot/warden/internal/game"
	"github.com/wardenbot/warden/internal/logger"
	"github.com/wardenbot/warden/internal/playtime"
	"github.com/wardenbot/warden/internal/vars"
)

// Config represents the complete application flags configuration.
type Config struct {
	// betteralign:ignore

	Servers   []string      `short:"s" long:"server" env:"WARDEN_SERVERS" env-delim:"," description:"Server profile spec: kind://:password@host:port?name=...&query=... (kind: minecraft, palworld, ark, source)"`
	API       API           `group:"API Options" namespace:"api" env-namespace:"WARDEN_API"`
	Monitor   Monitor       `group:"Monitor Options" namespace:"monitor" env-namespace:"WARDEN_MONITOR"`
	Storage   Storage       `group:"Storage Options" namespace:"db" env-namespace:"WARDEN_DB"`
	GeoIP     GeoIP         `group:"GeoIP Options" namespace:"geoip" env-namespace:"WARDEN_GEOIP"`
	RateLimit RateLimit     `group:"Rate Limit Options" namespace:"rate-limit" env-namespace:"WARDEN_RATE_LIMIT"`
	Query     Query         `group:"Source Query Options" namespace:"query" env-namespace:"WARDEN_QUERY"`
	Logger    logger.Config `group:"Logger Options" namespace:"log" env-namespace:"WARDEN_LOG"`

	Version bool `short:"v" long:"version" description:"Print version and build info"`
}

// API holds admin HTTP server configuration.
type API struct {
	// betteralign:ignore

	Address     string `short:"l" long:"address" env:"LISTEN_ADDRESS" description:"Admin API listen address" default:":8080"`
	AuthToken   string `short:"t" long:"auth-token" env:"AUTH_TOKEN" description:"Admin authentication token"`
	MaxBodySize int64  `long:"max-body-size" env:"MAX_BODY_SIZE" description:"Max body size for incoming requests" default:"4096"`
	TrustProxy  bool   `long:"trust-proxy" env:"TRUST_PROXY" description:"Trust X-Forwarded-For headers"`
}

// Monitor holds connection supervision and polling configuration.
type Monitor struct {
	// betteralign:ignore

	PollInterval     time.Duration `long:"poll-interval" env:"POLL_INTERVAL" description:"Roster poll interval" default:"30s"`
	HealthInterval   time.Duration `long:"health-interval" env:"HEALTH_INTERVAL" description:"Health check interval" default:"15s"`
	SaveInterval     time.Duration `long:"save-interval" env:"SAVE_INTERVAL" description:"Maintenance save interval" default:"1h"`
	RequestTimeout   time.Duration `long:"request-timeout" env:"REQUEST_TIMEOUT" description:"Per-request RCON timeout" default:"5s"`
	FailureThreshold int           `long:"failure-threshold" env:"FAILURE_THRESHOLD" description:"Consecutive health failures before forced disconnect" default:"3"`
	BackoffBase      time.Duration `long:"backoff-base" env:"BACKOFF_BASE" description:"Initial reconnect backoff" default:"1s"`
	BackoffCap       time.Duration `long:"backoff-cap" env:"BACKOFF_CAP" description:"Maximum reconnect backoff" default:"60s"`
	ShutdownGrace    time.Duration `long:"shutdown-grace" env:"SHUTDOWN_GRACE" description:"Grace period for in-flight work on shutdown" default:"10s"`
}

// Storage holds persistence configuration.
type Storage struct {
	// betteralign:ignore

	HistoryPath    string        `short:"d" long:"path" env:"PATH" description:"Path to SQLite session history database" default:"warden.db"`
	PlaytimePath   string        `long:"playtime-path" env:"PLAYTIME_PATH" description:"Path to the playtime mapping file" default:"playtime.json"`
	FlushInterval  time.Duration `long:"flush-interval" env:"FLUSH_INTERVAL" description:"Playtime flush interval" default:"5m"`
	RecoveryPolicy string        `long:"recovery-policy" env:"RECOVERY_POLICY" description:"What to do with a corrupt playtime file at startup" default:"quarantine" choice:"reset" choice:"quarantine" choice:"fail"`
}

// GeoIP holds MaxMind GeoIP configuration. An empty path disables country
// tagging.
type GeoIP struct {
	// betteralign:ignore

	Path     string        `short:"g" long:"path" env:"PATH" description:"Path to MMDB file (empty to disable)" default:"warden.mmdb"`
	URL      string        `long:"url" env:"URL" description:"URL to download MMDB" default:"https://git.io/GeoLite2-Country.mmdb"`
	Interval time.Duration `long:"interval" env:"INTERVAL" description:"Update interval check" default:"24h"`
}

// RateLimit holds API rate limiting configuration.
type RateLimit struct {
	// betteralign:ignore

	HardLimitCount int           `long:"hard-count" env:"HARD_COUNT" description:"Hard IP limit: requests count" default:"8"`
	HardLimitWin   time.Duration `long:"hard-window" env:"HARD_WINDOW" description:"Hard IP limit: window duration" default:"1m"`
}

// Query holds Source Query protocol configuration.
type Query struct {
	// betteralign:ignore

	Timeout    time.Duration `long:"timeout" env:"TIMEOUT" description:"Query timeout" default:"3s"`
	BufferSize uint16        `long:"buffer-size" env:"BUFFER_SIZE" description:"Response body buffer size" default:"1400"`
}

// Profile is one monitored game server, immutable after parsing.
type Profile struct {
	Name      string
	Kind      string
	Host      string
	Password  string
	Port      int
	QueryPort int
}

// Addr returns the host:port RCON endpoint.
func (p Profile) Addr() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

// Parse reads the configuration from flags and environment variables.
// It terminates the application if the configuration is invalid or if the
// help flag is invoked.
func Parse() *Config {
	var cfg Config
	parser := flags.NewParser(&cfg, flags.Default)
	parser.NamespaceDelimiter = "-"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}

	if cfg.Version {
		vars.Print()
		os.Exit(0)
	}

	if len(cfg.Servers) == 0 {
		fmt.Fprintln(os.Stderr,
			"At least one `-s, --server' profile or environment variable `WARDEN_SERVERS` must be specified!")
		os.Exit(1)
	}

	if cfg.API.AuthToken == "" {
		fmt.Fprintln(os.Stderr,
			"Required flag `-t, --api-auth-token' or environment variable `WARDEN_API_AUTH_TOKEN` was not specified!")
		os.Exit(1)
	}

	if _, err := playtime.ParsePolicy(cfg.Storage.RecoveryPolicy); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	return &cfg
}

// Profiles parses and validates the --server specs.
func (c *Config) Profiles() ([]Profile, error) {
	seen := make(map[string]struct{}, len(c.Servers))
	profiles := make([]Profile, 0, len(c.Servers))

	for _, spec := range c.Servers {
		p, err := ParseProfile(spec)
		if err != nil {
			return nil, err
		}

		if _, dup := seen[p.Name]; dup {
			return nil, fmt.Errorf("duplicate server profile name %q", p.Name)
		}
		seen[p.Name] = struct{}{}

		profiles = append(profiles, p)
	}

	return profiles, nil
}

// ParseProfile parses a single server spec of the form
// kind://:password@host:port?name=main&query=27016.
func ParseProfile(spec string) (Profile, error) {
	u, err := url.Parse(spec)
	if err != nil {
		return Profile{}, fmt.Errorf("invalid server spec %q: %w", spec, err)
	}

	if _, err := game.Lookup(u.Scheme); err != nil {
		return Profile{}, fmt.Errorf("server spec %q: %w", spec, err)
	}

	if u.User == nil {
		return Profile{}, fmt.Errorf("server spec %q: missing :password@ credential", spec)
	}
	password, ok := u.User.Password()
	if !ok {
		// Allow the password as the userinfo when no colon is present.
		password = u.User.Username()
	}
	if password == "" {
		return Profile{}, fmt.Errorf("server spec %q: empty RCON password", spec)
	}

	host := u.Hostname()
	if host == "" {
		return Profile{}, fmt.Errorf("server spec %q: missing host", spec)
	}

	port, err := strconv.Atoi(u.Port())
	if err != nil || port < 1 || port > 65535 {
		return Profile{}, fmt.Errorf("server spec %q: missing or invalid port", spec)
	}

	p := Profile{
		Kind:     u.Scheme,
		Host:     host,
		Port:     port,
		Password: password,
		Name:     u.Query().Get("name"),
	}
	if p.Name == "" {
		p.Name = fmt.Sprintf("%s-%s", p.Kind, net.JoinHostPort(host, u.Port()))
	}

	if q := u.Query().Get("query"); q != "" {
		qp, err := strconv.Atoi(q)
		if err != nil || qp < 1 || qp > 65535 {
			return Profile{}, fmt.Errorf("server spec %q: invalid query port %q", spec, q)
		}
		p.QueryPort = qp
	}

	return p, nil
}
