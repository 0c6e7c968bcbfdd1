// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Littrow Instruments

// Package simulator hosts software TCD1304 devices over TCP so the host
// tooling can be exercised without instrument hardware on the bench.
package simulator

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v2"

	"github.com/Littrow/czerny/pkg/tcd1304"
)

// Config is the complete simulator configuration.
type Config struct {
	Listen string       `yaml:"listen"`
	Seed   int64        `yaml:"seed"`
	Frame  FrameConfig  `yaml:"frame"`
	Limits LimitsConfig `yaml:"limits"`
	Faults FaultsConfig `yaml:"faults"`
}

// FrameConfig shapes the synthesized readouts.
type FrameConfig struct {
	IntegrationTime uint32       `yaml:"integrationTime"` // initial setting, µs
	Baseline        float64      `yaml:"baseline"`        // dark level, ADC counts
	Noise           float64      `yaml:"noise"`           // read noise sigma, ADC counts
	Peaks           []PeakConfig `yaml:"peaks"`
}

// PeakConfig is one Gaussian emission line on the signal region.
type PeakConfig struct {
	Center int     `yaml:"center"` // pixel index
	Width  float64 `yaml:"width"`  // sigma, pixels
	Height float64 `yaml:"height"` // ADC counts at the configured integration time
}

// LimitsConfig bounds what SET_INT_TIME will accept.
type LimitsConfig struct {
	MinIntegrationTime uint32 `yaml:"minIntegrationTime"`
	MaxIntegrationTime uint32 `yaml:"maxIntegrationTime"`
}

// FaultsConfig injects wire-level faults for exercising host-side error
// handling. Zero values disable injection.
type FaultsConfig struct {
	CorruptCRCEveryN int `yaml:"corruptCrcEveryN"` // trash the checksum of every Nth frame
	DropEveryN       int `yaml:"dropEveryN"`       // swallow every Nth frame entirely
}

// Load builds the configuration: defaults, then the YAML file at path if
// one is given, then environment overrides, then validation.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		// 7402 is the wire size of one frame.
		Listen: "127.0.0.1:7402",
		Seed:   1,
		Frame: FrameConfig{
			IntegrationTime: tcd1304.DefaultIntegrationTime,
			Baseline:        64,
			Noise:           4,
			Peaks: []PeakConfig{
				{Center: 1200, Width: 38, Height: 2600},
				{Center: 2450, Width: 22, Height: 1400},
			},
		},
		Limits: LimitsConfig{
			MinIntegrationTime: tcd1304.DefaultMinIntegrationTime,
			MaxIntegrationTime: tcd1304.DefaultMaxIntegrationTime,
		},
	}
}

func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func applyEnvOverrides(cfg *Config) {
	if listen := os.Getenv("CZERNY_SIM_LISTEN"); listen != "" {
		cfg.Listen = listen
	}
	if seed := os.Getenv("CZERNY_SIM_SEED"); seed != "" {
		if v, err := strconv.ParseInt(seed, 10, 64); err == nil {
			cfg.Seed = v
		}
	}
}

func validate(cfg *Config) error {
	if cfg.Listen == "" {
		return fmt.Errorf("listen address must not be empty")
	}

	min, max := cfg.Limits.MinIntegrationTime, cfg.Limits.MaxIntegrationTime
	if min == 0 || min > max {
		return fmt.Errorf("invalid integration limits: min=%d, max=%d", min, max)
	}
	if t := cfg.Frame.IntegrationTime; t < min || t > max {
		return fmt.Errorf("integration time %dµs is outside limits [%d, %d]", t, min, max)
	}

	if b := cfg.Frame.Baseline; b < 0 || b > tcd1304.ADCMax {
		return fmt.Errorf("baseline %.1f is outside the ADC range [0, %d]", b, tcd1304.ADCMax)
	}
	if cfg.Frame.Noise < 0 {
		return fmt.Errorf("noise sigma must not be negative")
	}

	for i, p := range cfg.Frame.Peaks {
		if p.Center < 0 || p.Center >= tcd1304.PixelCount {
			return fmt.Errorf("peak %d: center %d is outside the sensor (0-%d)", i, p.Center, tcd1304.PixelCount-1)
		}
		if p.Width <= 0 {
			return fmt.Errorf("peak %d: width must be positive", i)
		}
		if p.Height < 0 {
			return fmt.Errorf("peak %d: height must not be negative", i)
		}
	}

	if cfg.Faults.CorruptCRCEveryN < 0 || cfg.Faults.DropEveryN < 0 {
		return fmt.Errorf("fault cadence must not be negative")
	}

	return nil
}
