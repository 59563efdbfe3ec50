// Package config holds fbtool settings loaded from a TOML file and
// overridden by command-line flags.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/mrjoshuak/go-fbutil/checkpoint"
	"github.com/mrjoshuak/go-fbutil/compression"
	"github.com/mrjoshuak/go-fbutil/display"
	"github.com/mrjoshuak/go-fbutil/fb"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("config: invalid setting")

// Settings holds all configurable values.
type Settings struct {
	Quantize   Quantize   `toml:"quantize"`
	Checkpoint Checkpoint `toml:"checkpoint"`
	Parallel   Parallel   `toml:"parallel"`
	Export     Export     `toml:"export"`
}

// Quantize configures HDR to 8-bit conversion.
type Quantize struct {
	Exposure  float32 `toml:"exposure"`
	Gamma     float32 `toml:"gamma"`
	Dither    bool    `toml:"dither"`
	SkipAlpha bool    `toml:"skip_alpha"`
}

// Checkpoint configures envelope compression.
type Checkpoint struct {
	Codec string `toml:"codec"`
	Level int    `toml:"level"`
	Half  bool   `toml:"half"`
}

// Parallel configures the fb worker fan-out. Zero values keep fb defaults.
type Parallel struct {
	Workers   int `toml:"workers"`
	GrainSize int `toml:"grain_size"`
}

// Export configures image output.
type Export struct {
	Format string `toml:"format"`
	Alpha  bool   `toml:"alpha"`
}

// Default returns the built-in settings.
func Default() Settings {
	return Settings{
		Quantize:   Quantize{Gamma: 2.2},
		Checkpoint: Checkpoint{Codec: compression.ZSTD.String()},
		Parallel:   Parallel{GrainSize: fb.DefaultParallelConfig().GrainSize},
		Export:     Export{Format: display.PNG.String(), Alpha: true},
	}
}

// Load reads a TOML settings file. Keys missing from the file keep their
// Default values; unknown keys are an error.
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	s := Default()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return Settings{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return s, nil
}

// Marshal returns s as TOML.
func (s Settings) Marshal() ([]byte, error) {
	return toml.Marshal(s)
}

// Flags holds CLI flag values that override file settings. Nil pointers and
// zero values leave the setting alone.
type Flags struct {
	Exposure *float32
	Gamma    *float32
	Dither   bool
	NoAlpha  bool
	Codec    string
	Level    int
	Half     bool
	Workers  int
	Format   string
}

// Resolve applies flags on top of s. CLI flags take priority when set.
func (s *Settings) Resolve(flags Flags) {
	if flags.Exposure != nil {
		s.Quantize.Exposure = *flags.Exposure
	}
	if flags.Gamma != nil {
		s.Quantize.Gamma = *flags.Gamma
	}
	if flags.Dither {
		s.Quantize.Dither = true
	}
	if flags.NoAlpha {
		s.Export.Alpha = false
	}
	if flags.Codec != "" {
		s.Checkpoint.Codec = flags.Codec
	}
	if flags.Level != 0 {
		s.Checkpoint.Level = flags.Level
	}
	if flags.Half {
		s.Checkpoint.Half = true
	}
	if flags.Workers > 0 {
		s.Parallel.Workers = flags.Workers
	}
	if flags.Format != "" {
		s.Export.Format = flags.Format
	}
}

func finite(v float32) bool {
	return !math.IsNaN(float64(v)) && !math.IsInf(float64(v), 0)
}

// Validate reports the first invalid setting.
func (s *Settings) Validate() error {
	if !(s.Quantize.Gamma > 0) || !finite(s.Quantize.Gamma) {
		return fmt.Errorf("%w: quantize.gamma = %v, must be positive", ErrInvalid, s.Quantize.Gamma)
	}
	if !finite(s.Quantize.Exposure) {
		return fmt.Errorf("%w: quantize.exposure = %v", ErrInvalid, s.Quantize.Exposure)
	}
	if _, err := compression.ParseCodec(s.Checkpoint.Codec); err != nil {
		return fmt.Errorf("%w: checkpoint.codec: %w", ErrInvalid, err)
	}
	if _, err := display.ParseFormat(s.Export.Format); err != nil {
		return fmt.Errorf("%w: export.format: %w", ErrInvalid, err)
	}
	if s.Parallel.Workers < 0 || s.Parallel.GrainSize < 0 {
		return fmt.Errorf("%w: parallel workers=%d grain_size=%d", ErrInvalid,
			s.Parallel.Workers, s.Parallel.GrainSize)
	}
	return nil
}

// QuantizeOptions returns the fb option bits for the quantize settings.
func (s *Settings) QuantizeOptions() fb.QuantizeOptions {
	var opts fb.QuantizeOptions
	if s.Quantize.Dither {
		opts |= fb.QuantizeDither
	}
	if s.Quantize.SkipAlpha {
		opts |= fb.QuantizeSkipAlpha
	}
	return opts | fb.QuantizeParallel
}

// CheckpointOptions returns envelope write options.
func (s *Settings) CheckpointOptions() (checkpoint.Options, error) {
	codec, err := compression.ParseCodec(s.Checkpoint.Codec)
	if err != nil {
		return checkpoint.Options{}, err
	}
	return checkpoint.Options{
		Codec: codec,
		Level: compression.Level(s.Checkpoint.Level),
		Half:  s.Checkpoint.Half,
	}, nil
}

// ParallelConfig returns the fb parallel configuration.
func (s *Settings) ParallelConfig() fb.ParallelConfig {
	c := fb.DefaultParallelConfig()
	c.NumWorkers = s.Parallel.Workers
	if s.Parallel.GrainSize > 0 {
		c.GrainSize = s.Parallel.GrainSize
	}
	return c
}

// ExportFormat returns the configured image format.
func (s *Settings) ExportFormat() (display.Format, error) {
	return display.ParseFormat(s.Export.Format)
}
