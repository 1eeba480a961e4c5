// Copyright 2026 The go-i2cm Authors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

//go:build linux

package i2cdev

import (
	"fmt"
	"time"

	i2cm "github.com/GaryOtt/go-i2cm"
	"github.com/warthog618/gpiod"
)

// recoverClocks is how many clock pulses free a peripheral stuck mid-byte:
// at most 8 data bits plus the acknowledge slot.
const recoverClocks = 9

// recoverHalfPeriod paces the recovery clock around 50 kHz, slow enough
// for any peripheral.
const recoverHalfPeriod = 10 * time.Microsecond

// Recover unsticks a bus whose peripheral holds SDA low by bit-banging the
// lines through the GPIO character device: nine clock pulses so the
// peripheral finishes the byte it thinks it is sending, then a manual stop
// condition. chip names the gpiochip; sclOffset and sdaOffset are line
// offsets on it.
//
// The controller must be uninstalled first so the adapter is not driving
// the lines, and recovery is never attempted automatically; deciding that
// a bus is wedged belongs to the caller.
func (p *Platform) Recover(c i2cm.Controller, chip string, sclOffset, sdaOffset int) error {
	if !p.validController(c) {
		return fmt.Errorf("controller %d out of range", c)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.files[c] != nil {
		return fmt.Errorf("uninstall controller %d before recovering its bus", c)
	}

	scl, err := gpiod.RequestLine(chip, sclOffset, gpiod.AsOutput(1))
	if err != nil {
		return fmt.Errorf("failed to request SCL line %s:%d: %w", chip, sclOffset, err)
	}
	defer func() { _ = scl.Close() }()

	sda, err := gpiod.RequestLine(chip, sdaOffset, gpiod.AsOutput(1))
	if err != nil {
		return fmt.Errorf("failed to request SDA line %s:%d: %w", chip, sdaOffset, err)
	}
	defer func() { _ = sda.Close() }()

	i2cm.Debugf("i2cdev: recovering %s via %s scl=%d sda=%d", p.paths[c], chip, sclOffset, sdaOffset)

	for clk := 0; clk < recoverClocks; clk++ {
		if err := scl.SetValue(0); err != nil {
			return fmt.Errorf("failed to drive SCL low: %w", err)
		}
		time.Sleep(recoverHalfPeriod)
		if err := scl.SetValue(1); err != nil {
			return fmt.Errorf("failed to release SCL: %w", err)
		}
		time.Sleep(recoverHalfPeriod)
	}

	// Stop condition: SDA rising while SCL is high
	if err := sda.SetValue(0); err != nil {
		return fmt.Errorf("failed to drive SDA low: %w", err)
	}
	time.Sleep(recoverHalfPeriod)
	if err := sda.SetValue(1); err != nil {
		return fmt.Errorf("failed to release SDA: %w", err)
	}
	time.Sleep(recoverHalfPeriod)

	return nil
}
