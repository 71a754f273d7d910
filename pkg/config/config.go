package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Env names the environment variable selecting which configuration section
// to load, and DefaultEnv the section used when it is unset.
const (
	Env        = "UPTIME_ENV"
	DefaultEnv = "local"
)

// Backend names for Storage.Backend.
const (
	BackendMongo = "MongoStorage"
	BackendBolt  = "BoltStorage"
)

// Storage selects and parameterizes the persistence backend.
type Storage struct {
	Backend string `yaml:"backend"`
	URI     string `yaml:"uri"`
	DB      string `yaml:"db"`
	// DataDir is the directory holding the embedded database file; used by
	// BoltStorage only.
	DataDir string `yaml:"data_dir"`
}

// Server toggles the optional long-running workers.
type Server struct {
	WithConsolidation bool   `yaml:"with_consolidation"`
	MetricsAddr       string `yaml:"metrics_addr"`
}

// StatusConsolidation tunes the public-status refresh worker.
type StatusConsolidation struct {
	// FilterCategory narrows which services get a public status; empty
	// matches every service.
	FilterCategory string `yaml:"filter"`
	// DownSinceSeconds is the minimum continuous outage before FAIL is
	// surfaced publicly.
	DownSinceSeconds int `yaml:"down_since"`
	// WaitingSecondsBetweenBatch is the refresh cadence.
	WaitingSecondsBetweenBatch int `yaml:"waiting_seconds_between_batch"`
}

// SLAConsolidation tunes the SLA consolidation worker.
type SLAConsolidation struct {
	WaitingSecondsBetweenBatch int `yaml:"waiting_seconds_between_batch"`
}

// Consolidations groups both consolidation workers.
type Consolidations struct {
	SLA    SLAConsolidation    `yaml:"sla"`
	Status StatusConsolidation `yaml:"status"`
}

// Monitoring tunes the probe scheduler.
type Monitoring struct {
	MaxServices           int `yaml:"max_services"`
	CheckEverySeconds     int `yaml:"check_every_seconds"`
	FastRetryEverySeconds int `yaml:"fast_retry_every_seconds"`
	AttemptBeforeFail     int `yaml:"attempt_before_status_fail"`
}

// Instance tunes the single-active-instance heartbeat.
type Instance struct {
	AliveSeconds          int `yaml:"alive"`
	InactiveDuringSeconds int `yaml:"inactive_during"`
}

// StaticService declares a service monitored from configuration rather
// than discovered by a provider. Kind selects which fields apply.
type StaticService struct {
	Kind     string `yaml:"kind"` // http-ingress | database | cluster | search
	Name     string `yaml:"name"`
	Category string `yaml:"category"`

	// http-ingress / search
	URL       string            `yaml:"url"`
	Namespace string            `yaml:"ns"`
	Headers   map[string]string `yaml:"headers"`

	// database
	URI string `yaml:"uri"`

	// cluster
	Kubeconfig   string `yaml:"kubeconfig"`
	Context      string `yaml:"context"`
	Availability int    `yaml:"availability"`
}

// IngressProvider enables ingress-based service discovery.
type IngressProvider struct {
	Enabled    bool     `yaml:"enabled"`
	Kubeconfig string   `yaml:"kubeconfig"`
	Category   string   `yaml:"category"`
	Exclude    []string `yaml:"exclude"`
}

// Providers groups the dynamic service-discovery sources.
type Providers struct {
	Ingress IngressProvider `yaml:"ingress"`
}

// Config is one environment section of the configuration file.
type Config struct {
	Storage        Storage         `yaml:"storage"`
	Server         Server          `yaml:"server"`
	Consolidations Consolidations  `yaml:"consolidations"`
	Monitoring     Monitoring      `yaml:"monitoring"`
	Instance       Instance        `yaml:"instance"`
	Services       []StaticService `yaml:"services"`
	Providers      Providers       `yaml:"providers"`
}

// Error is a fatal configuration problem, reported at startup.
type Error struct {
	Reason string
}

func (e *Error) Error() string { return "config: " + e.Reason }

func applyDefaults(c *Config) {
	if c.Server.MetricsAddr == "" {
		c.Server.MetricsAddr = "127.0.0.1:9090"
	}
	if c.Monitoring.MaxServices <= 0 {
		c.Monitoring.MaxServices = 10
	}
	if c.Monitoring.CheckEverySeconds <= 0 {
		c.Monitoring.CheckEverySeconds = 60
	}
	if c.Monitoring.FastRetryEverySeconds <= 0 {
		c.Monitoring.FastRetryEverySeconds = 5
	}
	if c.Monitoring.AttemptBeforeFail <= 0 {
		c.Monitoring.AttemptBeforeFail = 3
	}
	if c.Consolidations.SLA.WaitingSecondsBetweenBatch <= 0 {
		c.Consolidations.SLA.WaitingSecondsBetweenBatch = 300
	}
	if c.Consolidations.Status.WaitingSecondsBetweenBatch <= 0 {
		c.Consolidations.Status.WaitingSecondsBetweenBatch = 60
	}
	if c.Consolidations.Status.DownSinceSeconds <= 0 {
		c.Consolidations.Status.DownSinceSeconds = 600
	}
	if c.Instance.AliveSeconds <= 0 {
		c.Instance.AliveSeconds = 60
	}
	if c.Instance.InactiveDuringSeconds <= 0 {
		c.Instance.InactiveDuringSeconds = 3 * c.Instance.AliveSeconds
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = BackendBolt
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "./uptimed-data"
	}
}

func validate(c *Config) error {
	switch c.Storage.Backend {
	case BackendMongo:
		if c.Storage.URI == "" || c.Storage.DB == "" {
			return &Error{Reason: "MongoStorage requires storage.uri and storage.db"}
		}
	case BackendBolt:
	default:
		return &Error{Reason: fmt.Sprintf("unknown storage backend %q", c.Storage.Backend)}
	}

	for _, svc := range c.Services {
		switch svc.Kind {
		case "http-ingress", "database", "cluster", "search":
		default:
			return &Error{Reason: fmt.Sprintf("unknown service kind %q for %q", svc.Kind, svc.Name)}
		}
	}
	return nil
}

// Parse decodes one environment section out of raw YAML. The file is a
// mapping of environment name to Config; env selects the section.
func Parse(raw []byte, env string) (*Config, error) {
	var envs map[string]*Config
	if err := yaml.Unmarshal(raw, &envs); err != nil {
		return nil, &Error{Reason: fmt.Sprintf("invalid yaml: %v", err)}
	}

	cfg, ok := envs[env]
	if !ok || cfg == nil {
		return nil, &Error{Reason: fmt.Sprintf("environment %q not found", env)}
	}

	applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads path and returns the section named by the UPTIME_ENV
// environment variable (default "local").
func Load(path string) (*Config, error) {
	env := os.Getenv(Env)
	if env == "" {
		env = DefaultEnv
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Reason: fmt.Sprintf("read %s: %v", path, err)}
	}
	return Parse(raw, env)
}

// CheckEvery and friends convert the integer-seconds tunables into
// durations at the call sites that need them.
func (m Monitoring) CheckEvery() time.Duration {
	return time.Duration(m.CheckEverySeconds) * time.Second
}

func (m Monitoring) FastRetryEvery() time.Duration {
	return time.Duration(m.FastRetryEverySeconds) * time.Second
}

func (s StatusConsolidation) DownSince() time.Duration {
	return time.Duration(s.DownSinceSeconds) * time.Second
}

func (s StatusConsolidation) WaitBetweenBatch() time.Duration {
	return time.Duration(s.WaitingSecondsBetweenBatch) * time.Second
}

func (s SLAConsolidation) WaitBetweenBatch() time.Duration {
	return time.Duration(s.WaitingSecondsBetweenBatch) * time.Second
}

func (i Instance) Alive() time.Duration {
	return time.Duration(i.AliveSeconds) * time.Second
}

func (i Instance) InactiveDuring() time.Duration {
	return time.Duration(i.InactiveDuringSeconds) * time.Second
}
