// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Littrow Instruments

package simulator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Littrow/czerny/pkg/tcd1304"
)

// ============================================================
// Helpers
// ============================================================

// clearEnv shields a test from simulator variables leaking in from the
// calling shell.
func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CZERNY_SIM_LISTEN", "")
	t.Setenv("CZERNY_SIM_SEED", "")
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sim.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// ============================================================
// Defaults
// ============================================================

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Listen != "127.0.0.1:7402" {
		t.Errorf("expected default listen address, got %q", cfg.Listen)
	}
	if cfg.Seed != 1 {
		t.Errorf("expected default seed 1, got %d", cfg.Seed)
	}
	if cfg.Frame.IntegrationTime != tcd1304.DefaultIntegrationTime {
		t.Errorf("expected default integration time %d, got %d",
			tcd1304.DefaultIntegrationTime, cfg.Frame.IntegrationTime)
	}
	if cfg.Limits.MinIntegrationTime != tcd1304.DefaultMinIntegrationTime ||
		cfg.Limits.MaxIntegrationTime != tcd1304.DefaultMaxIntegrationTime {
		t.Errorf("expected default limits, got min=%d max=%d",
			cfg.Limits.MinIntegrationTime, cfg.Limits.MaxIntegrationTime)
	}
	if len(cfg.Frame.Peaks) == 0 {
		t.Error("expected default config to carry at least one peak")
	}
	if cfg.Faults.CorruptCRCEveryN != 0 || cfg.Faults.DropEveryN != 0 {
		t.Error("expected fault injection disabled by default")
	}
}

// ============================================================
// File Loading
// ============================================================

func TestLoad_File(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, `
listen: "127.0.0.1:0"
seed: 7
frame:
  integrationTime: 5000
  baseline: 100
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Listen != "127.0.0.1:0" {
		t.Errorf("expected listen from file, got %q", cfg.Listen)
	}
	if cfg.Seed != 7 {
		t.Errorf("expected seed 7, got %d", cfg.Seed)
	}
	if cfg.Frame.IntegrationTime != 5000 {
		t.Errorf("expected integration time 5000, got %d", cfg.Frame.IntegrationTime)
	}
	if cfg.Frame.Baseline != 100 {
		t.Errorf("expected baseline 100, got %.1f", cfg.Frame.Baseline)
	}

	// Keys absent from the file keep their defaults.
	if cfg.Frame.Noise != 4 {
		t.Errorf("expected default noise to survive partial file, got %.1f", cfg.Frame.Noise)
	}
	if len(cfg.Frame.Peaks) != 2 {
		t.Errorf("expected default peaks to survive partial file, got %d", len(cfg.Frame.Peaks))
	}
}

func TestLoad_FileMissing(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoad_FileMalformed(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, "listen: [unterminated\n")
	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

// ============================================================
// Environment Overrides
// ============================================================

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "listen: \"10.0.0.1:9999\"\nseed: 7\n")

	t.Setenv("CZERNY_SIM_LISTEN", "127.0.0.1:0")
	t.Setenv("CZERNY_SIM_SEED", "99")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Listen != "127.0.0.1:0" {
		t.Errorf("expected environment to beat file, got listen %q", cfg.Listen)
	}
	if cfg.Seed != 99 {
		t.Errorf("expected environment to beat file, got seed %d", cfg.Seed)
	}
}

func TestLoad_BadEnvSeedIgnored(t *testing.T) {
	clearEnv(t)
	t.Setenv("CZERNY_SIM_SEED", "not-a-number")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Seed != 1 {
		t.Errorf("expected unparseable seed to be ignored, got %d", cfg.Seed)
	}
}

// ============================================================
// Validation
// ============================================================

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "empty listen",
			body:    "listen: \"\"\n",
			wantErr: "listen address",
		},
		{
			name:    "integration below min",
			body:    "frame:\n  integrationTime: 5\n",
			wantErr: "outside limits",
		},
		{
			name:    "min above max",
			body:    "limits:\n  minIntegrationTime: 100\n  maxIntegrationTime: 50\n",
			wantErr: "invalid integration limits",
		},
		{
			name:    "zero min",
			body:    "limits:\n  minIntegrationTime: 0\n",
			wantErr: "invalid integration limits",
		},
		{
			name:    "baseline above ADC range",
			body:    "frame:\n  baseline: 5000\n",
			wantErr: "outside the ADC range",
		},
		{
			name:    "negative noise",
			body:    "frame:\n  noise: -1\n",
			wantErr: "noise sigma",
		},
		{
			name:    "peak off the sensor",
			body:    "frame:\n  peaks:\n    - center: 9999\n      width: 10\n      height: 100\n",
			wantErr: "outside the sensor",
		},
		{
			name:    "peak zero width",
			body:    "frame:\n  peaks:\n    - center: 100\n      width: 0\n      height: 100\n",
			wantErr: "width must be positive",
		},
		{
			name:    "negative fault cadence",
			body:    "faults:\n  dropEveryN: -1\n",
			wantErr: "fault cadence",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			path := writeConfig(t, tt.body)

			_, err := Load(path)
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoad_IntegrationBoundsAccepted(t *testing.T) {
	clearEnv(t)

	for _, us := range []uint32{10, 10000000} {
		path := writeConfig(t, fmt.Sprintf("frame:\n  integrationTime: %d\n", us))
		if _, err := Load(path); err != nil {
			t.Errorf("expected %dµs to be accepted, got %v", us, err)
		}
	}
}
