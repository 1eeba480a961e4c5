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

package testing

import (
	"context"

	i2cm "github.com/GaryOtt/go-i2cm"
	"github.com/GaryOtt/go-i2cm/internal/syncutil"
)

// simTickMillis is the simulated platform's tick length. Waits convert the
// way an RTOS scheduler would, so tests see real unit conversion rather
// than identity.
const simTickMillis = 10

// SimPlatform implements i2cm.Platform over one VirtualBus per controller.
// Unlike MockPlatform it behaves like real hardware: configurations are
// validated, traffic on a controller that is not installed is rejected,
// and waits convert to ticks of simTickMillis.
type SimPlatform struct {
	mu        syncutil.Mutex
	buses     []*VirtualBus
	configs   []i2cm.MasterConfig
	installed []bool
	lastWait  []i2cm.Ticks
	closed    bool
}

// NewSimPlatform creates a simulated platform with the given number of
// controllers, each on its own empty bus.
func NewSimPlatform(controllers int) *SimPlatform {
	if controllers < 1 {
		controllers = 1
	}
	buses := make([]*VirtualBus, controllers)
	for i := range buses {
		buses[i] = NewVirtualBus()
	}
	return &SimPlatform{
		buses:     buses,
		configs:   make([]i2cm.MasterConfig, controllers),
		installed: make([]bool, controllers),
		lastWait:  make([]i2cm.Ticks, controllers),
	}
}

// Bus returns the virtual bus behind a controller, for attaching
// peripherals and inspecting events.
func (s *SimPlatform) Bus(c i2cm.Controller) *VirtualBus {
	return s.buses[c]
}

// Config returns the last configuration applied to a controller.
func (s *SimPlatform) Config(c i2cm.Controller) i2cm.MasterConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.configs[c]
}

// InstalledCount returns how many controllers are currently installed.
func (s *SimPlatform) InstalledCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, inst := range s.installed {
		if inst {
			n++
		}
	}
	return n
}

// LastWait returns the wait bound of the most recent Execute on a
// controller.
func (s *SimPlatform) LastWait(c i2cm.Controller) i2cm.Ticks {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastWait[c]
}

// Closed reports whether Close was called.
func (s *SimPlatform) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Controllers implements i2cm.Platform.
func (s *SimPlatform) Controllers() int {
	return len(s.buses)
}

// Configure implements i2cm.Platform. Like a real controller it rejects
// unset pins and a zero clock.
func (s *SimPlatform) Configure(c i2cm.Controller, cfg i2cm.MasterConfig) i2cm.Status {
	if !s.validController(c) {
		return i2cm.StatusInvalidArg
	}
	if !cfg.SCL.IsValid() || !cfg.SDA.IsValid() {
		return i2cm.StatusInvalidArg
	}
	if cfg.ClockHz == 0 {
		return i2cm.StatusInvalidArg
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[c] = cfg
	return i2cm.StatusOK
}

// Install implements i2cm.Platform.
func (s *SimPlatform) Install(c i2cm.Controller, mode i2cm.Mode) i2cm.Status {
	if !s.validController(c) || mode != i2cm.ModeMaster {
		return i2cm.StatusInvalidArg
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.installed[c] = true
	return i2cm.StatusOK
}

// Uninstall implements i2cm.Platform.
func (s *SimPlatform) Uninstall(c i2cm.Controller) i2cm.Status {
	if !s.validController(c) {
		return i2cm.StatusInvalidArg
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.installed[c] = false
	return i2cm.StatusOK
}

// Execute implements i2cm.Platform.
func (s *SimPlatform) Execute(ctx context.Context, c i2cm.Controller, tx *i2cm.Transaction, wait i2cm.Ticks) i2cm.Status {
	if ctx.Err() != nil {
		return i2cm.StatusTimeout
	}
	if !s.validController(c) {
		return i2cm.StatusInvalidArg
	}

	s.mu.Lock()
	installed := s.installed[c]
	s.lastWait[c] = wait
	s.mu.Unlock()

	if !installed {
		// Traffic on a controller that was never installed, or was torn
		// down, is a caller error on real hardware too
		return i2cm.StatusInvalidArg
	}
	return s.buses[c].Run(tx)
}

// TicksFromMillis implements i2cm.Platform.
func (s *SimPlatform) TicksFromMillis(ms uint32) i2cm.Ticks {
	return i2cm.Ticks(ms / simTickMillis)
}

// Close implements i2cm.Platform.
func (s *SimPlatform) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *SimPlatform) validController(c i2cm.Controller) bool {
	return c >= 0 && int(c) < len(s.buses)
}

// Ensure SimPlatform implements the Platform interface
var _ i2cm.Platform = (*SimPlatform)(nil)
