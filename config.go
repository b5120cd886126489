// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package skylut

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/gogpu/gputypes"
	"github.com/pelletier/go-toml/v2"
)

// Config is a complete pipeline description loaded from TOML.
//
// Example file:
//
//	[atmosphere]
//	mie_phase_g = 0.8
//	density = 1.5
//
//	[lut]
//	format = "rgba16float"
//	scattering = { width = 32, height = 32, depth = 64 }
//
//	[pipeline]
//	scattering_orders = 4
//	ring_size = 3
//	cross_fade = true
//	splits = { single_scattering = 4, multi_scattering = 4 }
//
// Omitted keys keep the values of DefaultParams, DefaultLutConfig and the
// default options.
type Config struct {
	Atmosphere Params
	LUT        LutConfig
	Pipeline   PipelineConfig
}

// PipelineConfig holds the Updater and Ring options of a Config.
type PipelineConfig struct {
	ScatteringOrders int  `toml:"scattering_orders"`
	RingSize         int  `toml:"ring_size"`
	CrossFade        bool `toml:"cross_fade"`
	FadeTicks        int  `toml:"fade_ticks"`

	// Splits maps step kind names (see StepKind.String) to sub-range counts.
	Splits map[string]int `toml:"splits"`
}

// configFile is the on-disk layout.
type configFile struct {
	Atmosphere Params         `toml:"atmosphere"`
	LUT        lutFile        `toml:"lut"`
	Pipeline   PipelineConfig `toml:"pipeline"`
}

type lutFile struct {
	Transmittance Size2D `toml:"transmittance"`
	Scattering    Size3D `toml:"scattering"`
	Irradiance    Size2D `toml:"irradiance"`
	Format        string `toml:"format"`
}

// DefaultConfig returns the reference configuration.
func DefaultConfig() Config {
	lut := DefaultLutConfig()
	return Config{
		Atmosphere: DefaultParams(),
		LUT:        lut,
		Pipeline: PipelineConfig{
			ScatteringOrders: DefaultScatteringOrders,
			RingSize:         DefaultRingSize,
			FadeTicks:        DefaultFadeTicks,
		},
	}
}

// LoadConfig reads and validates a TOML config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("skylut: read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes and validates TOML config data. Unknown keys are errors.
func ParseConfig(data []byte) (Config, error) {
	def := DefaultConfig()
	f := configFile{
		Atmosphere: def.Atmosphere,
		LUT: lutFile{
			Transmittance: def.LUT.Transmittance,
			Scattering:    def.LUT.Scattering,
			Irradiance:    def.LUT.Irradiance,
			Format:        formatName(def.LUT.Format),
		},
		Pipeline: def.Pipeline,
	}

	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return Config{}, fmt.Errorf("skylut: decode config: %w", err)
	}

	format, err := parseFormat(f.LUT.Format)
	if err != nil {
		return Config{}, err
	}
	c := Config{
		Atmosphere: f.Atmosphere,
		LUT: LutConfig{
			Transmittance: f.LUT.Transmittance,
			Scattering:    f.LUT.Scattering,
			Irradiance:    f.LUT.Irradiance,
			Format:        format,
		},
		Pipeline: f.Pipeline,
	}
	if err := c.Atmosphere.Validate(); err != nil {
		return Config{}, err
	}
	if err := c.LUT.Validate(); err != nil {
		return Config{}, err
	}
	if _, err := c.Options(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Options converts the pipeline section to Options.
func (c Config) Options() ([]Option, error) {
	p := c.Pipeline
	opts := []Option{
		WithScatteringOrders(p.ScatteringOrders),
		WithRingSize(p.RingSize),
		WithCrossFade(p.CrossFade),
		WithFadeTicks(p.FadeTicks),
	}
	for name, parts := range p.Splits {
		kind, ok := parseStepKind(name)
		if !ok {
			return nil, fmt.Errorf("%w: unknown step kind %q in splits", ErrInvalidOption, name)
		}
		opts = append(opts, WithStepSplit(kind, parts))
	}
	if _, err := buildOptions(opts); err != nil {
		return nil, err
	}
	return opts, nil
}

func parseStepKind(name string) (StepKind, bool) {
	for k := StepKind(0); k < stepKindCount; k++ {
		if k.String() == name {
			return k, true
		}
	}
	return 0, false
}

func parseFormat(s string) (gputypes.TextureFormat, error) {
	switch strings.ToLower(s) {
	case "rgba32float":
		return gputypes.TextureFormatRGBA32Float, nil
	case "rgba16float":
		return gputypes.TextureFormatRGBA16Float, nil
	}
	return 0, fmt.Errorf("%w: unsupported format %q", ErrInvalidLutConfig, s)
}

func formatName(f gputypes.TextureFormat) string {
	return strings.ToLower(f.String())
}
