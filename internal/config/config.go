package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/springsim/internal/logger"
	"github.com/san-kum/springsim/internal/scheduler"
)

const (
	DefaultFrames    = 600
	DefaultFrameRate = 60.0
	DefaultRigSize   = 8
	DefaultPreset    = "hair"
	DefaultKind      = "chain"
	DefaultWind      = 2.0
)

type Config struct {
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Run       RunConfig       `yaml:"run"`
	Log       LogConfig       `yaml:"log"`
	Rigs      []RigConfig     `yaml:"rigs"`
}

type SchedulerConfig struct {
	Mode       string               `yaml:"mode"`
	MaxWorkers int                  `yaml:"max_workers"`
	Capacities scheduler.Capacities `yaml:"capacities"`
}

type RunConfig struct {
	Frames    int     `yaml:"frames"`
	FrameRate float64 `yaml:"frame_rate"`
	Seed      int64   `yaml:"seed"`
	// Motion names the host motion applied to every rig root.
	Motion string `yaml:"motion"`
	// Wind is the strength of a scene-wide wind provider. Zero disables it.
	Wind float64 `yaml:"wind"`
	// Push is the strength of a constant scene-wide push along +X. Zero
	// disables it.
	Push float64 `yaml:"push"`
}

type LogConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	Format  string `yaml:"format"`
}

// RigConfig describes one procedurally built rig.
type RigConfig struct {
	Name   string    `yaml:"name"`
	Kind   string    `yaml:"kind"`
	Preset string    `yaml:"preset"`
	Size   int       `yaml:"size"`
	Params Overrides `yaml:"params,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Scheduler: SchedulerConfig{
			Mode:       scheduler.Synchronous.String(),
			Capacities: scheduler.DefaultCapacities(),
		},
		Run: RunConfig{
			Frames:    DefaultFrames,
			FrameRate: DefaultFrameRate,
			Motion:    "sway",
			Wind:      DefaultWind,
		},
		Log: LogConfig{Level: "info", Format: "text"},
		Rigs: []RigConfig{
			{Name: "ponytail", Kind: DefaultKind, Preset: DefaultPreset, Size: DefaultRigSize},
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks every section and resolves each rig's preset.
func (c *Config) Validate() error {
	if _, err := scheduler.ParseMode(c.Scheduler.Mode); err != nil {
		return err
	}
	if c.Run.Frames < 0 {
		return fmt.Errorf("run.frames %d is negative", c.Run.Frames)
	}
	if c.Run.Wind < 0 {
		return fmt.Errorf("run.wind %v is negative", c.Run.Wind)
	}
	if c.Run.Push < 0 {
		return fmt.Errorf("run.push %v is negative", c.Run.Push)
	}
	if c.Run.FrameRate <= 0 {
		return fmt.Errorf("run.frame_rate %v must be positive", c.Run.FrameRate)
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	names := make(map[string]bool, len(c.Rigs))
	for i, r := range c.Rigs {
		if r.Name == "" {
			return fmt.Errorf("rigs[%d]: missing name", i)
		}
		if names[r.Name] {
			return fmt.Errorf("rigs[%d]: duplicate name %q", i, r.Name)
		}
		names[r.Name] = true
		if _, err := r.Resolve(); err != nil {
			return fmt.Errorf("rigs[%d] %q: %w", i, r.Name, err)
		}
	}
	return nil
}

// SchedulerOptions converts the scheduler section.
func (c *Config) SchedulerOptions() (scheduler.Config, error) {
	mode, err := scheduler.ParseMode(c.Scheduler.Mode)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		Capacities: c.Scheduler.Capacities,
		Mode:       mode,
		MaxWorkers: c.Scheduler.MaxWorkers,
		Seed:       c.Run.Seed,
	}, nil
}

// LoggerOptions converts the log section.
func (c *Config) LoggerOptions() logger.Options {
	return logger.Options{Enabled: c.Log.Enabled, Level: c.Log.Level, Format: c.Log.Format}
}

// Dt is the host frame delta.
func (c *Config) Dt() float64 {
	return 1 / c.Run.FrameRate
}
