// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Littrow Instruments
//
// Czerny - TCD1304 Spectrometer Console
//
// A CLI tool for acquiring, monitoring, and recording frame streams from
// TCD1304 linear CCD instruments.

package main

import (
	"os"

	"github.com/Littrow/czerny/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
