package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
name: test-64x6
model:
  filters: 64
  residual_blocks: 6
training:
  path: /tmp/nets
  batch_size: 256
  total_steps: 1000
  checkpoint_steps: 500
  test_steps: 100
  lr_values: [0.1, 0.01]
  lr_boundaries: [600]
`

func TestParseValid(t *testing.T) {
	cfg, err := Parse(strings.NewReader(validYAML))
	require.NoError(t, err)

	assert.Equal(t, "test-64x6", cfg.Name)
	assert.Equal(t, 64, cfg.Model.Filters)
	assert.Equal(t, 6, cfg.Model.ResidualBlocks)
	assert.Equal(t, 256, cfg.Training.BatchSize)
	assert.Equal(t, []float32{0.1, 0.01}, cfg.Training.LRValues)
	assert.Equal(t, []int{600}, cfg.Training.LRBoundaries)

	// Defaults fill what the file leaves out.
	assert.Equal(t, 100, cfg.Training.TrainAvgReportSteps)
	assert.Equal(t, float32(0.9), cfg.Training.Momentum)
	assert.Equal(t, float32(1), cfg.Training.PolicyLossWeight)
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse(strings.NewReader("name: x\nbogus_field: 1\n"))
	require.Error(t, err)
}

func TestValidateFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing name", func(c *Config) { c.Name = "" }},
		{"zero filters", func(c *Config) { c.Model.Filters = 0 }},
		{"negative blocks", func(c *Config) { c.Model.ResidualBlocks = -1 }},
		{"zero batch", func(c *Config) { c.Training.BatchSize = 0 }},
		{"zero steps", func(c *Config) { c.Training.TotalSteps = 0 }},
		{"no lr values", func(c *Config) { c.Training.LRValues = nil }},
		{"boundary mismatch", func(c *Config) { c.Training.LRBoundaries = []int{1, 2} }},
		{"bad momentum", func(c *Config) { c.Training.Momentum = 1 }},
		{"missing path", func(c *Config) { c.Training.Path = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse(strings.NewReader(validYAML))
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
