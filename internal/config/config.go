// Package config loads and validates the YAML run configuration.
package config

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is one training run: network geometry plus training-loop settings.
type Config struct {
	Name     string   `yaml:"name"`
	Model    Model    `yaml:"model"`
	Training Training `yaml:"training"`
}

// Model is the network geometry.
type Model struct {
	Filters        int `yaml:"filters"`
	ResidualBlocks int `yaml:"residual_blocks"`
}

// Training configures the training loop.
type Training struct {
	Path                string    `yaml:"path"` // checkpoint/export directory
	BatchSize           int       `yaml:"batch_size"`
	TotalSteps          int       `yaml:"total_steps"`
	CheckpointSteps     int       `yaml:"checkpoint_steps"`
	TestSteps           int       `yaml:"test_steps"`
	TrainAvgReportSteps int       `yaml:"train_avg_report_steps"`
	TestBatches         int       `yaml:"test_batches"`
	PolicyLossWeight    float32   `yaml:"policy_loss_weight"`
	ValueLossWeight     float32   `yaml:"value_loss_weight"`
	Momentum            float32   `yaml:"momentum"`
	LRValues            []float32 `yaml:"lr_values"`
	LRBoundaries        []int     `yaml:"lr_boundaries"`
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "loading config")
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return nil, errors.Wrapf(err, "loading config from %s", path)
	}
	return cfg, nil
}

// Parse decodes and validates a configuration stream.
func Parse(r io.Reader) (*Config, error) {
	cfg := &Config{
		Training: Training{
			BatchSize:           512,
			TrainAvgReportSteps: 100,
			TestBatches:         10,
			PolicyLossWeight:    1,
			ValueLossWeight:     1,
			Momentum:            0.9,
		},
	}

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, errors.Wrap(err, "parsing YAML")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration before anything is built from it.
func (c *Config) Validate() error {
	if c.Name == "" {
		return errors.New("config: name is required")
	}
	if c.Model.Filters <= 0 {
		return errors.Errorf("config: model.filters must be positive, got %d", c.Model.Filters)
	}
	if c.Model.ResidualBlocks < 0 {
		return errors.Errorf("config: model.residual_blocks must not be negative, got %d", c.Model.ResidualBlocks)
	}
	if c.Training.BatchSize <= 0 {
		return errors.Errorf("config: training.batch_size must be positive, got %d", c.Training.BatchSize)
	}
	if c.Training.TotalSteps <= 0 {
		return errors.Errorf("config: training.total_steps must be positive, got %d", c.Training.TotalSteps)
	}
	if len(c.Training.LRValues) == 0 {
		return errors.New("config: training.lr_values must not be empty")
	}
	if len(c.Training.LRBoundaries) != len(c.Training.LRValues)-1 {
		return errors.Errorf("config: %d lr_values need %d lr_boundaries, got %d",
			len(c.Training.LRValues), len(c.Training.LRValues)-1, len(c.Training.LRBoundaries))
	}
	if c.Training.Momentum < 0 || c.Training.Momentum >= 1 {
		return errors.Errorf("config: training.momentum must be in [0, 1), got %g", c.Training.Momentum)
	}
	if c.Training.Path == "" {
		return errors.New("config: training.path is required")
	}
	return nil
}
