package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrjoshuak/go-fbutil/compression"
	"github.com/mrjoshuak/go-fbutil/display"
	"github.com/mrjoshuak/go-fbutil/fb"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fbtool.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	s := Default()
	require.NoError(t, s.Validate())

	opts, err := s.CheckpointOptions()
	require.NoError(t, err)
	assert.Equal(t, compression.ZSTD, opts.Codec)

	f, err := s.ExportFormat()
	require.NoError(t, err)
	assert.Equal(t, display.PNG, f)
}

func TestLoad(t *testing.T) {
	path := writeFile(t, `
[quantize]
exposure = 1.5
dither = true

[checkpoint]
codec = "zip"
level = 9
half = true

[parallel]
workers = 3
`)

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, float32(1.5), s.Quantize.Exposure)
	assert.Equal(t, float32(2.2), s.Quantize.Gamma, "missing keys keep defaults")
	assert.True(t, s.Quantize.Dither)
	assert.Equal(t, "zip", s.Checkpoint.Codec)
	assert.Equal(t, 9, s.Checkpoint.Level)
	assert.Equal(t, 3, s.Parallel.Workers)
	assert.Equal(t, "png", s.Export.Format)
	require.NoError(t, s.Validate())

	opts, err := s.CheckpointOptions()
	require.NoError(t, err)
	assert.Equal(t, compression.ZIP, opts.Codec)
	assert.Equal(t, compression.Level(9), opts.Level)
	assert.True(t, opts.Half)

	pc := s.ParallelConfig()
	assert.Equal(t, 3, pc.NumWorkers)
	assert.Equal(t, fb.DefaultParallelConfig().GrainSize, pc.GrainSize)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Load(writeFile(t, "[quantize]\ngama = 2\n"))
	assert.Error(t, err, "unknown key")

	_, err = Load(writeFile(t, "[quantize\n"))
	assert.Error(t, err, "syntax")
}

func TestMarshalRoundTrip(t *testing.T) {
	s := Default()
	s.Quantize.Exposure = -0.5
	s.Export.Format = "webp"

	data, err := s.Marshal()
	require.NoError(t, err)

	got, err := Load(writeFile(t, string(data)))
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestResolve(t *testing.T) {
	s := Default()
	s.Quantize.Exposure = 2

	zero := float32(0)
	gamma := float32(1)
	s.Resolve(Flags{
		Exposure: &zero,
		Gamma:    &gamma,
		Dither:   true,
		NoAlpha:  true,
		Codec:    "none",
		Half:     true,
		Workers:  2,
		Format:   "tiff",
	})

	assert.Equal(t, float32(0), s.Quantize.Exposure)
	assert.Equal(t, float32(1), s.Quantize.Gamma)
	assert.True(t, s.Quantize.Dither)
	assert.False(t, s.Export.Alpha)
	assert.Equal(t, "none", s.Checkpoint.Codec)
	assert.True(t, s.Checkpoint.Half)
	assert.Equal(t, 2, s.Parallel.Workers)
	assert.Equal(t, "tiff", s.Export.Format)

	opts := s.QuantizeOptions()
	assert.True(t, opts.Has(fb.QuantizeDither|fb.QuantizeParallel))
	assert.False(t, opts.Has(fb.QuantizeSkipAlpha))

	// Unset flags leave settings alone.
	before := s
	s.Resolve(Flags{})
	assert.Equal(t, before, s)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *Settings)
	}{
		{"zero gamma", func(s *Settings) { s.Quantize.Gamma = 0 }},
		{"negative gamma", func(s *Settings) { s.Quantize.Gamma = -1 }},
		{"codec", func(s *Settings) { s.Checkpoint.Codec = "lz4" }},
		{"format", func(s *Settings) { s.Export.Format = "gif" }},
		{"workers", func(s *Settings) { s.Parallel.Workers = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Default()
			tt.mutate(&s)
			assert.ErrorIs(t, s.Validate(), ErrInvalid)
		})
	}
}
