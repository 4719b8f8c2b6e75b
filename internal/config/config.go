// Package config loads bridge settings.
//
// Values are layered: built-in defaults, then an optional YAML file, then a
// .env file, then SIGNBRIDGE_* environment variables. Command-line flags are
// applied last by the CLI.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ayusman/signbridge/internal/logging"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SIGNBRIDGE_"

// ErrInvalidConfig wraps validation failures.
var ErrInvalidConfig = errors.New("invalid config")

// UDP configures the landmark listener.
type UDP struct {
	Address    string `yaml:"address" validate:"required"`
	ReadBuffer int    `yaml:"read_buffer" validate:"gte=0"`
	// MaxDatagram rejects longer payloads as malformed; 0 accepts any size.
	MaxDatagram  int           `yaml:"max_datagram" validate:"gte=0,lte=65535"`
	PollInterval time.Duration `yaml:"poll_interval" validate:"gt=0"`
	// Scale divides incoming coordinates; 1000 for trackers sending milli-units.
	Scale float64 `yaml:"scale" validate:"gt=0"`
}

// Ingest configures the frame loop.
type Ingest struct {
	CadenceFPS int `yaml:"cadence_fps" validate:"gte=1,lte=240"`
	// MaxFrameAge compares producer timestamps with the local clock, so it
	// assumes the tracker runs on a synchronized host. Set 0 for remote
	// trackers with clock skew.
	MaxFrameAge          time.Duration `yaml:"max_frame_age" validate:"gte=0"`
	MalformedLogInterval time.Duration `yaml:"malformed_log_interval" validate:"gte=0"`
}

// Session configures the recognition session.
type Session struct {
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
}

// Matcher configures sign matching.
type Matcher struct {
	Threshold float64 `yaml:"threshold" validate:"gt=0,lte=1"`
	// Dynamic enables trajectory matching for dynamic signs.
	Dynamic          bool    `yaml:"dynamic"`
	DynamicThreshold float64 `yaml:"dynamic_threshold" validate:"gt=0,lte=1"`
	WindowSize       int     `yaml:"window_size" validate:"gte=2"`
	MinPoints        int     `yaml:"min_points" validate:"gte=2,ltefield=WindowSize"`
}

// Dispatch configures event delivery.
type Dispatch struct {
	QueueSize       int           `yaml:"queue_size" validate:"gte=1"`
	RetryDelay      time.Duration `yaml:"retry_delay" validate:"gte=0"`
	DeliveryTimeout time.Duration `yaml:"delivery_timeout" validate:"gt=0"`
	// WebsocketBuffer is the per-client event buffer of the recognition feed.
	WebsocketBuffer int `yaml:"websocket_buffer" validate:"gte=1"`
}

// HTTP configures the control surface.
type HTTP struct {
	// Address is empty to disable the control surface.
	Address   string `yaml:"address"`
	StaticDir string `yaml:"static_dir"`
}

// Store configures persistence.
type Store struct {
	// Path is empty to run without a database.
	Path string `yaml:"path"`
}

// Vocabulary selects where signs come from. A YAML file wins over the store;
// with neither, the built-in vocabulary is used.
type Vocabulary struct {
	File string `yaml:"file"`
}

// Plugins configures external consumers.
type Plugins struct {
	// Dir is empty to disable plugins.
	Dir     string        `yaml:"dir"`
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
	// DefaultPlugin and DefaultAction handle signs without a binding.
	DefaultPlugin string `yaml:"default_plugin"`
	DefaultAction string `yaml:"default_action" validate:"required_with=DefaultPlugin"`
}

// Config is the complete bridge configuration.
type Config struct {
	UDP        UDP            `yaml:"udp"`
	Ingest     Ingest         `yaml:"ingest"`
	Session    Session        `yaml:"session"`
	Matcher    Matcher        `yaml:"matcher"`
	Dispatch   Dispatch       `yaml:"dispatch"`
	HTTP       HTTP           `yaml:"http"`
	Store      Store          `yaml:"store"`
	Vocabulary Vocabulary     `yaml:"vocabulary"`
	Plugins    Plugins        `yaml:"plugins"`
	Log        logging.Config `yaml:"log"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		UDP: UDP{
			Address:      ":5052",
			ReadBuffer:   1 << 20,
			MaxDatagram:  65535,
			PollInterval: 100 * time.Millisecond,
			Scale:        1,
		},
		Ingest: Ingest{
			CadenceFPS:           30,
			MaxFrameAge:          time.Second,
			MalformedLogInterval: 5 * time.Second,
		},
		Session: Session{Timeout: 30 * time.Second},
		Matcher: Matcher{
			Threshold:        0.75,
			Dynamic:          true,
			DynamicThreshold: 0.8,
			WindowSize:       60,
			MinPoints:        10,
		},
		Dispatch: Dispatch{
			QueueSize:       64,
			RetryDelay:      50 * time.Millisecond,
			DeliveryTimeout: 2 * time.Second,
			WebsocketBuffer: 32,
		},
		HTTP:    HTTP{Address: "127.0.0.1:8080"},
		Plugins: Plugins{Timeout: 5 * time.Second},
		Log:     logging.Config{Level: "info", MaxSizeMB: 50, MaxAgeDays: 14, MaxBackups: 3},
	}
}

// Options selects the files Load reads.
type Options struct {
	// File is a YAML config file. Empty skips it.
	File string
	// EnvFile is a dotenv file. A missing file is not an error.
	EnvFile string
}

// Load builds the configuration from defaults, the YAML file, the dotenv
// file and the environment, then validates it.
func Load(opts Options) (Config, error) {
	cfg := Default()

	if opts.File != "" {
		data, err := os.ReadFile(opts.File)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := decodeYAML(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", opts.File, err)
		}
	}

	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("load env file: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field constraint.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %s", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// envBinding maps one environment variable onto a field.
type envBinding struct {
	name string
	set  func(c *Config, v string) error
}

func stringVar(field func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error { *field(c) = v; return nil }
}

func intVar(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func floatVar(field func(*Config) *float64) func(*Config, string) error {
	return func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*field(c) = f
		return nil
	}
}

func boolVar(field func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*field(c) = b
		return nil
	}
}

func durationVar(field func(*Config) *time.Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*field(c) = d
		return nil
	}
}

var envBindings = []envBinding{
	{"UDP_ADDRESS", stringVar(func(c *Config) *string { return &c.UDP.Address })},
	{"UDP_READ_BUFFER", intVar(func(c *Config) *int { return &c.UDP.ReadBuffer })},
	{"UDP_POLL_INTERVAL", durationVar(func(c *Config) *time.Duration { return &c.UDP.PollInterval })},
	{"UDP_SCALE", floatVar(func(c *Config) *float64 { return &c.UDP.Scale })},
	{"CADENCE_FPS", intVar(func(c *Config) *int { return &c.Ingest.CadenceFPS })},
	{"MAX_FRAME_AGE", durationVar(func(c *Config) *time.Duration { return &c.Ingest.MaxFrameAge })},
	{"SESSION_TIMEOUT", durationVar(func(c *Config) *time.Duration { return &c.Session.Timeout })},
	{"MATCH_THRESHOLD", floatVar(func(c *Config) *float64 { return &c.Matcher.Threshold })},
	{"MATCH_DYNAMIC", boolVar(func(c *Config) *bool { return &c.Matcher.Dynamic })},
	{"QUEUE_SIZE", intVar(func(c *Config) *int { return &c.Dispatch.QueueSize })},
	{"HTTP_ADDRESS", stringVar(func(c *Config) *string { return &c.HTTP.Address })},
	{"STATIC_DIR", stringVar(func(c *Config) *string { return &c.HTTP.StaticDir })},
	{"DB_PATH", stringVar(func(c *Config) *string { return &c.Store.Path })},
	{"VOCABULARY_FILE", stringVar(func(c *Config) *string { return &c.Vocabulary.File })},
	{"PLUGIN_DIR", stringVar(func(c *Config) *string { return &c.Plugins.Dir })},
	{"PLUGIN_TIMEOUT", durationVar(func(c *Config) *time.Duration { return &c.Plugins.Timeout })},
	{"DEFAULT_PLUGIN", stringVar(func(c *Config) *string { return &c.Plugins.DefaultPlugin })},
	{"DEFAULT_ACTION", stringVar(func(c *Config) *string { return &c.Plugins.DefaultAction })},
	{"LOG_LEVEL", stringVar(func(c *Config) *string { return &c.Log.Level })},
	{"LOG_FILE", stringVar(func(c *Config) *string { return &c.Log.File })},
	{"LOG_NO_COLOR", boolVar(func(c *Config) *bool { return &c.Log.NoColor })},
}

// EnvNames lists every recognized environment variable.
func EnvNames() []string {
	names := make([]string, len(envBindings))
	for i, b := range envBindings {
		names[i] = EnvPrefix + b.name
	}
	return names
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	for _, b := range envBindings {
		v, ok := lookup(EnvPrefix + b.name)
		if !ok || v == "" {
			continue
		}
		if err := b.set(c, v); err != nil {
			return fmt.Errorf("%s%s=%q: %w", EnvPrefix, b.name, v, err)
		}
	}
	return nil
}
