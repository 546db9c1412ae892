package tapalign

import (
	"github.com/beatlab/tapalign/internal/pipeline"
	"github.com/beatlab/tapalign/internal/stimulus"
	"github.com/beatlab/tapalign/pkg/logger"
)

type Config struct {
	DBPath   string // "" disables the durable descriptor cache
	TempDir  string
	PlotDir  string // "" disables diagnostic plots
	Logger   *logger.Logger
	Stimulus stimulus.Config
	Pipeline pipeline.Config
}

type Option func(*Config)

func WithDBPath(path string) Option {
	return func(c *Config) {
		c.DBPath = path
	}
}

func WithTempDir(dir string) Option {
	return func(c *Config) {
		c.TempDir = dir
	}
}

func WithPlotDir(dir string) Option {
	return func(c *Config) {
		c.PlotDir = dir
	}
}

func WithLogger(log *logger.Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

func WithSampleRate(rate int) Option {
	return func(c *Config) {
		c.Stimulus.SampleRate = rate
		c.Pipeline.SampleRate = rate
	}
}

// WithToleranceSec sets the symmetric match window around each expected
// beat onset.
func WithToleranceSec(tol float64) Option {
	return func(c *Config) {
		c.Pipeline.Align.ToleranceSec = tol
	}
}

// WithMinMatchRate sets the match rate below which a verdict fails.
func WithMinMatchRate(rate float64) Option {
	return func(c *Config) {
		c.Pipeline.Align.MinMatchRate = rate
	}
}

// WithRefractorySec sets the minimum spacing between accepted onsets, for
// both recording analysis and the beat-grid fallback during stimulus
// preparation.
func WithRefractorySec(sec float64) Option {
	return func(c *Config) {
		c.Pipeline.Onset.RefractorySec = sec
		c.Stimulus.Onset.RefractorySec = sec
	}
}

func defaultConfig() *Config {
	return &Config{
		DBPath:   "tapalign.sqlite3",
		TempDir:  "/tmp",
		Stimulus: stimulus.DefaultConfig(),
		Pipeline: pipeline.DefaultConfig(),
	}
}
