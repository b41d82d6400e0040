// Package config loads xtrace settings from XTRACE_* environment variables
// and an optional YAML file.
package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"

	"github.com/imattdu/xtrace/errorx"
	"github.com/imattdu/xtrace/logx"
	"github.com/imattdu/xtrace/metax"
	"github.com/imattdu/xtrace/reporter"
	"github.com/imattdu/xtrace/tracex"
)

// Prefix is prepended to every environment key.
const Prefix = "XTRACE"

// Config holds all xtrace configuration.
type Config struct {
	Reporter ReporterConfig `yaml:"reporter"`
	Trace    TraceConfig    `yaml:"trace"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
}

// ReporterConfig selects where instrumented programs send reports.
type ReporterConfig struct {
	Name      string `envconfig:"NAME" default:"udp" yaml:"name"`
	UDPDest   string `envconfig:"UDP_DEST" default:"127.0.0.1:7831" yaml:"udp_dest"`
	TCPDest   string `envconfig:"TCP_DEST" default:"127.0.0.1:7831" yaml:"tcp_dest"`
	HTTPDest  string `envconfig:"HTTP_DEST" default:"http://127.0.0.1:8080" yaml:"http_dest"`
	FileDest  string `envconfig:"FILE_DEST" default:"reports.log" yaml:"file_dest"`
	Topic     string `envconfig:"TOPIC" default:"xtrace.reports" yaml:"topic"`
	QueueSize int    `envconfig:"QUEUE_SIZE" default:"10000" yaml:"queue_size"`
}

// TraceConfig tunes the tracer.
type TraceConfig struct {
	OpIDLength        int    `envconfig:"OPID_LENGTH" default:"8" yaml:"opid_length"`
	SeverityThreshold string `envconfig:"SEVERITY_THRESHOLD" default:"NOTICE" yaml:"severity_threshold"`
	Host              string `envconfig:"HOST" yaml:"host"`
}

// ServerConfig holds the collector listeners and store.
type ServerConfig struct {
	HTTPAddr    string  `envconfig:"HTTP_ADDR" default:":8080" yaml:"http_addr"`
	UDPAddr     string  `envconfig:"UDP_ADDR" default:":7831" yaml:"udp_addr"`
	TCPAddr     string  `envconfig:"TCP_ADDR" default:":7831" yaml:"tcp_addr"`
	StorePath   string  `envconfig:"STORE_PATH" default:"xtrace.db" yaml:"store_path"`
	IngestRPS   float64 `envconfig:"INGEST_RPS" default:"0" yaml:"ingest_rps"`
	IngestBurst int     `envconfig:"INGEST_BURST" default:"1000" yaml:"ingest_burst"`

	// MaxIngestBytes caps one HTTP ingest body.
	MaxIngestBytes int64 `envconfig:"MAX_INGEST_BYTES" default:"33554432" yaml:"max_ingest_bytes"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Dir     string `envconfig:"DIR" default:"logs" yaml:"dir"`
	App     string `envconfig:"APP" default:"xtrace" yaml:"app"`
	Level   string `envconfig:"LEVEL" default:"info" yaml:"level"`
	Console bool   `envconfig:"CONSOLE" default:"false" yaml:"console"`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, errorx.Wrap(err, errorx.ErrConfig,
			errorx.WithService(errorx.ServiceConfig), errorx.WithMessage("failed to load config"))
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from the environment or returns the
// defaults.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// LoadFile loads the environment and then overlays the keys present in the
// YAML file at path. An empty path behaves like Load.
func LoadFile(path string) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return cfg, cfg.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errorx.Wrap(err, errorx.ErrConfig,
			errorx.WithService(errorx.ServiceConfig), errorx.WithField("path", path))
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errorx.Wrap(err, errorx.ErrConfig,
			errorx.WithService(errorx.ServiceConfig), errorx.WithField("path", path))
	}
	return cfg, cfg.Validate()
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Reporter: ReporterConfig{
			Name:      "udp",
			UDPDest:   "127.0.0.1:7831",
			TCPDest:   "127.0.0.1:7831",
			HTTPDest:  "http://127.0.0.1:8080",
			FileDest:  "reports.log",
			Topic:     reporter.DefaultTopic,
			QueueSize: reporter.DefaultQueueSize,
		},
		Trace: TraceConfig{
			OpIDLength:        8,
			SeverityThreshold: "NOTICE",
		},
		Server: ServerConfig{
			HTTPAddr:       ":8080",
			UDPAddr:        ":7831",
			TCPAddr:        ":7831",
			StorePath:      "xtrace.db",
			IngestBurst:    1000,
			MaxIngestBytes: 32 << 20,
		},
		Log: LogConfig{
			Dir:   "logs",
			App:   "xtrace",
			Level: "info",
		},
	}
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	if !metax.ValidOpIDLength(c.Trace.OpIDLength) {
		return errorx.New(errorx.ErrConfig, errorx.WithService(errorx.ServiceConfig),
			errorx.WithMessage(fmt.Sprintf("opid length must be 4 or 8, got %d", c.Trace.OpIDLength)))
	}
	if _, ok := metax.ParseSeverity(c.Trace.SeverityThreshold); !ok {
		return errorx.New(errorx.ErrConfig, errorx.WithService(errorx.ServiceConfig),
			errorx.WithMessage(fmt.Sprintf("unknown severity %q", c.Trace.SeverityThreshold)))
	}
	if !reporter.Has(c.Reporter.Name) {
		return errorx.New(errorx.ErrUnknownReporter, errorx.WithService(errorx.ServiceConfig),
			errorx.WithMessage(fmt.Sprintf("unknown reporter %q (registered: %v)", c.Reporter.Name, reporter.Names())))
	}
	if c.Server.MaxIngestBytes < 0 {
		return errorx.New(errorx.ErrConfig, errorx.WithService(errorx.ServiceConfig),
			errorx.WithMessage("max ingest bytes must not be negative"))
	}
	if c.Server.IngestRPS < 0 {
		return errorx.New(errorx.ErrConfig, errorx.WithService(errorx.ServiceConfig),
			errorx.WithMessage("ingest rps must not be negative"))
	}
	return nil
}

// ReporterOptions builds the reporter config. The pub/sub publisher is
// supplied by the caller since it lives in-process.
func (c *Config) ReporterOptions(logger logx.Logger) reporter.Config {
	return reporter.Config{
		Name:      c.Reporter.Name,
		UDPAddr:   c.Reporter.UDPDest,
		TCPAddr:   c.Reporter.TCPDest,
		HTTPURL:   c.Reporter.HTTPDest,
		FilePath:  c.Reporter.FileDest,
		Topic:     c.Reporter.Topic,
		QueueSize: c.Reporter.QueueSize,
		Logger:    logger,
	}
}

// LogOptions builds the logger config.
func (c *Config) LogOptions() logx.Config {
	return logx.Config{
		AppName:        c.Log.App,
		Level:          logx.ParseLevel(c.Log.Level),
		LogDir:         c.Log.Dir,
		ConsoleEnabled: c.Log.Console,
		Rotate:         logx.RotateHourly,
		MaxBackups:     72,
	}
}

// TracerOptions builds tracer options sending to sink.
func (c *Config) TracerOptions(sink tracex.Sink) []tracex.Option {
	opts := []tracex.Option{
		tracex.WithSink(sink),
		tracex.WithOpIDLength(c.Trace.OpIDLength),
	}
	if sev, ok := metax.ParseSeverity(c.Trace.SeverityThreshold); ok {
		opts = append(opts, tracex.WithSeverityThreshold(sev))
	}
	if c.Trace.Host != "" {
		opts = append(opts, tracex.WithHost(c.Trace.Host))
	}
	return opts
}
