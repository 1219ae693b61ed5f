package config

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lcalzada-xor/wsensor/internal/core/domain"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "WSENSOR_"

// DefaultChannels is the scan list used when none is configured.
const DefaultChannels = "1,6,11,2,7,3,8,4,9,5,10,36,40,44,48"

// Config holds all sensor configuration.
type Config struct {
	Primary   string
	Secondary string
	Channels  string
	ScanList  []domain.ScanEntry

	Dwell        time.Duration
	MinDwell     time.Duration
	DwellStep    time.Duration
	Epoch        int
	High         float64
	Low          float64
	InitialState string
	Slots        int

	MinWorkers int
	MaxWorkers int
	Threshold  float64
	QueueSize  int

	DSN         string
	Persistence bool
	PcapDir     string
	PcapRollMB  int
	Record      bool

	ControlSocket string
	Addr          string
	TokenHash     string
	RateLimit     int
	GRPCPort      int

	Latitude  float64
	Longitude float64
	Altitude  float64

	RegDomain string
	SpoofMAC  string
	Debug     bool
	LogJSON   bool
	Trace     bool
}

// Load reads WSENSOR_* environment defaults and then the process flags.
// Flags take precedence over environment variables.
func Load() (*Config, error) {
	return LoadArgs(os.Args[1:], os.LookupEnv)
}

// LoadArgs is Load with explicit arguments and environment lookup.
func LoadArgs(args []string, lookup func(string) (string, bool)) (*Config, error) {
	env := envReader{lookup: lookup}
	cfg := &Config{}

	fs := flag.NewFlagSet("wsensor", flag.ContinueOnError)
	fs.StringVar(&cfg.Primary, "i", env.get("INTERFACE", "wlan0"), "Primary wireless interface")
	fs.StringVar(&cfg.Secondary, "i2", env.get("INTERFACE2", ""), "Secondary wireless interface (optional)")
	fs.StringVar(&cfg.Channels, "channels", env.get("CHANNELS", DefaultChannels), "Scan list, comma separated ch[:width]")

	dwell := fs.Int("dwell", env.getInt("DWELL", 250), "Channel dwell time in milliseconds")
	minDwell := fs.Int("min-dwell", env.getInt("MIN_DWELL", 100), "Minimum dwell time in milliseconds")
	dwellStep := fs.Int("dwell-step", env.getInt("DWELL_STEP", 50), "Dwell adjustment step in milliseconds")
	fs.IntVar(&cfg.Epoch, "epoch", env.getInt("EPOCH", 3), "Scan list traversals between dwell recomputes")
	fs.Float64Var(&cfg.High, "high", env.getFloat("HIGH", 0.10), "Traffic share above which an entry's dwell grows")
	fs.Float64Var(&cfg.Low, "low", env.getFloat("LOW", 0.05), "Traffic share below which an entry's dwell shrinks")
	fs.StringVar(&cfg.InitialState, "state", env.get("STATE", "scan"), "Initial scanner state (scan or pause)")
	fs.IntVar(&cfg.Slots, "slots", env.getInt("SLOTS", 512), "Frame ring slots per radio")

	fs.IntVar(&cfg.MinWorkers, "min-workers", env.getInt("MIN_WORKERS", 1), "Minimum decode workers")
	fs.IntVar(&cfg.MaxWorkers, "max-workers", env.getInt("MAX_WORKERS", 4), "Maximum decode workers")
	fs.Float64Var(&cfg.Threshold, "scale", env.getFloat("SCALE", 10), "Backlog per worker that adds a worker")
	fs.IntVar(&cfg.QueueSize, "queue", env.getInt("QUEUE", 4096), "Decode task queue size")

	fs.StringVar(&cfg.DSN, "db", env.get("DB", ""), "Database DSN: sqlite path, postgres://, mysql:// or clickhouse:// (default ~/.wsensor/wsensor.db)")
	fs.BoolVar(&cfg.Persistence, "persist", env.getBool("PERSIST", true), "Store decoded frames")
	fs.StringVar(&cfg.PcapDir, "pcap", env.get("PCAP", ""), "Directory for raw capture files (empty to disable)")
	fs.IntVar(&cfg.PcapRollMB, "pcap-roll", env.getInt("PCAP_ROLL", 64), "Capture file size in MiB before rolling")
	fs.BoolVar(&cfg.Record, "record", env.getBool("RECORD", false), "Write raw frames of every radio to capture files")

	fs.StringVar(&cfg.ControlSocket, "ctl", env.get("CTL", "/run/wsensor.sock"), "Control socket path (empty to disable)")
	fs.StringVar(&cfg.Addr, "api", env.get("API", ":8080"), "Status API address (empty to disable)")
	fs.StringVar(&cfg.TokenHash, "token-hash", env.get("TOKEN_HASH", ""), "bcrypt hash of the status API bearer token")
	fs.IntVar(&cfg.RateLimit, "rate", env.getInt("RATE", 120), "Status API requests per minute per client (0 for unlimited)")
	fs.IntVar(&cfg.GRPCPort, "grpc", env.getInt("GRPC", 9000), "gRPC health port (0 to disable)")

	fs.Float64Var(&cfg.Latitude, "lat", env.getFloat("LAT", 0), "Static latitude")
	fs.Float64Var(&cfg.Longitude, "lng", env.getFloat("LNG", 0), "Static longitude")
	fs.Float64Var(&cfg.Altitude, "alt", env.getFloat("ALT", 0), "Static altitude in meters")

	fs.StringVar(&cfg.RegDomain, "reg", env.get("REG", ""), "Regulatory domain to set (empty keeps the current)")
	fs.StringVar(&cfg.SpoofMAC, "spoof", env.get("SPOOF", ""), "MAC address to give the primary monitor interface")
	fs.BoolVar(&cfg.Debug, "debug", env.getBool("DEBUG", false), "Enable verbose debug logging")
	fs.BoolVar(&cfg.LogJSON, "log-json", env.getBool("LOG_JSON", false), "Log in JSON")
	fs.BoolVar(&cfg.Trace, "trace", env.getBool("TRACE", false), "Export trace spans to stdout")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg.Dwell = time.Duration(*dwell) * time.Millisecond
	cfg.MinDwell = time.Duration(*minDwell) * time.Millisecond
	cfg.DwellStep = time.Duration(*dwellStep) * time.Millisecond
	if cfg.DSN == "" {
		cfg.DSN = defaultDBPath()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration and fills ScanList.
func (c *Config) Validate() error {
	var errs []error
	if !domain.IsValidInterface(c.Primary) {
		errs = append(errs, fmt.Errorf("primary interface %q: %w", c.Primary, domain.ErrInvalidInterfaceName))
	}
	if c.Secondary != "" {
		if !domain.IsValidInterface(c.Secondary) {
			errs = append(errs, fmt.Errorf("secondary interface %q: %w", c.Secondary, domain.ErrInvalidInterfaceName))
		} else if c.Secondary == c.Primary {
			errs = append(errs, errors.New("secondary interface must differ from the primary"))
		}
	}

	list, err := domain.ParseScanList(c.Channels)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("channels: %w", err))
	case len(list) == 0:
		errs = append(errs, fmt.Errorf("channels: %w", domain.ErrEmptyScanList))
	default:
		c.ScanList = list
	}

	if c.MinWorkers < 1 {
		errs = append(errs, errors.New("min workers must be at least 1"))
	}
	if c.MaxWorkers < c.MinWorkers {
		errs = append(errs, fmt.Errorf("max workers %d below min workers %d", c.MaxWorkers, c.MinWorkers))
	}
	if c.Threshold <= 0 {
		errs = append(errs, errors.New("scale threshold must be positive"))
	}
	if c.Dwell <= 0 || c.MinDwell <= 0 || c.DwellStep <= 0 {
		errs = append(errs, errors.New("dwell times must be positive"))
	}
	if c.MinDwell > c.Dwell {
		errs = append(errs, fmt.Errorf("min dwell %s above dwell %s", c.MinDwell, c.Dwell))
	}
	if c.Low < 0 || c.High > 1 || c.Low > c.High {
		errs = append(errs, fmt.Errorf("thresholds must satisfy 0 <= low <= high <= 1, got %.2f/%.2f", c.Low, c.High))
	}
	if st, err := domain.ParseScanState(c.InitialState); err != nil || (st != domain.StateScan && st != domain.StatePause) {
		errs = append(errs, fmt.Errorf("initial state must be scan or pause, got %q", c.InitialState))
	}
	if c.SpoofMAC != "" && !domain.IsValidMAC(c.SpoofMAC) {
		errs = append(errs, fmt.Errorf("spoof mac %q: %w", c.SpoofMAC, domain.ErrInvalidMAC))
	}
	if c.GRPCPort < 0 || c.GRPCPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid gRPC port %d", c.GRPCPort))
	}
	return errors.Join(errs...)
}

// State returns the parsed initial scanner state.
func (c *Config) State() domain.ScanState {
	st, _ := domain.ParseScanState(c.InitialState)
	return st
}

// LogLevel returns the slog level selected by Debug.
func (c *Config) LogLevel() slog.Level {
	if c.Debug {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

type envReader struct {
	lookup func(string) (string, bool)
}

func (e envReader) get(key, fallback string) string {
	if value, ok := e.lookup(EnvPrefix + key); ok {
		return value
	}
	return fallback
}

func (e envReader) getInt(key string, fallback int) int {
	if value, ok := e.lookup(EnvPrefix + key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return n
		}
	}
	return fallback
}

func (e envReader) getFloat(key string, fallback float64) float64 {
	if value, ok := e.lookup(EnvPrefix + key); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return fallback
}

func (e envReader) getBool(key string, fallback bool) bool {
	if value, ok := e.lookup(EnvPrefix + key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

// defaultDBPath returns ~/.wsensor/wsensor.db, creating the directory.
func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		slog.Warn("Could not get user home directory, using current dir", "error", err)
		return "wsensor.db"
	}

	dir := filepath.Join(home, ".wsensor")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Warn("Could not create data directory, using current dir", "error", err)
		return "wsensor.db"
	}
	return filepath.Join(dir, "wsensor.db")
}
