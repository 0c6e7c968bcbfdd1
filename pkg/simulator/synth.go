// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Littrow Instruments

package simulator

import (
	"math"
	"math/rand"

	"github.com/Littrow/czerny/pkg/tcd1304"
)

// Synth produces synthetic CCD readouts: dummy pixels at the dark
// baseline, Gaussian emission lines across the signal region scaled by
// integration time, and seeded read noise. The same seed and settings
// always produce the same sequence of readouts.
type Synth struct {
	frame FrameConfig
	rng   *rand.Rand
	buf   []uint16
}

// NewSynth creates a generator for the given frame settings.
func NewSynth(frame FrameConfig, seed int64) *Synth {
	return &Synth{
		frame: frame,
		rng:   rand.New(rand.NewSource(seed)),
		buf:   make([]uint16, tcd1304.PixelCount),
	}
}

// Readout synthesizes one full readout at the given integration time.
// Peak heights are configured at the initial integration time, so a
// longer exposure brightens them proportionally until the ADC clips.
// The returned slice is reused by the next call.
func (s *Synth) Readout(integrationMicros uint32) []uint16 {
	exposure := float64(integrationMicros) / float64(s.frame.IntegrationTime)
	for i := range s.buf {
		level := s.frame.Baseline
		if i >= tcd1304.SignalStart && i <= tcd1304.SignalEnd {
			for _, p := range s.frame.Peaks {
				d := float64(i - p.Center)
				level += p.Height * exposure * math.Exp(-d*d/(2*p.Width*p.Width))
			}
		}
		if s.frame.Noise > 0 {
			level += s.rng.NormFloat64() * s.frame.Noise
		}
		s.buf[i] = clampADC(level)
	}
	return s.buf
}

func clampADC(v float64) uint16 {
	switch {
	case v < 0:
		return 0
	case v > tcd1304.ADCMax:
		return tcd1304.ADCMax
	}
	return uint16(v)
}
