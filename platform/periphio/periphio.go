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

// Package periphio backs the driver with periph.io host adapters, one bus
// name per controller. It is the portable backend: any bus periph.io can
// open (Linux i2c-dev, FT232H, and so on) works unchanged.
//
// The adapter speaks whole transfers, not bus events. A write queued
// without a stop condition is therefore held back and fused with the next
// transfer to the same address into a single write-then-read with repeated
// start, which is how register reads must reach the hardware. Held writes
// that are never continued are discarded on uninstall.
package periphio

import (
	"context"
	"errors"
	"fmt"
	"time"

	i2cm "github.com/GaryOtt/go-i2cm"
	"github.com/GaryOtt/go-i2cm/internal/syncutil"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// pendingWrite is a write segment held back for fusion with the next
// transfer on the same controller.
type pendingWrite struct {
	data  []byte
	addr  byte
	valid bool
}

// Platform implements the i2cm.Platform interface over periph.io buses.
type Platform struct {
	openBus func(name string) (i2c.BusCloser, error)
	names   []string
	buses   []i2c.BusCloser
	configs []i2cm.MasterConfig
	pending []pendingWrite
	mu      syncutil.Mutex
}

// New creates a platform backing one controller per bus name, in logical
// bus order. Names are whatever i2creg accepts: "/dev/i2c-1", "1", or a
// registered alias.
func New(busNames ...string) (*Platform, error) {
	if len(busNames) == 0 {
		return nil, errors.New("at least one bus name required")
	}
	if len(busNames) > i2cm.MaxBuses {
		return nil, fmt.Errorf("%d bus names exceed the %d logical buses", len(busNames), i2cm.MaxBuses)
	}

	// Initialize host
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	return &Platform{
		names:   busNames,
		buses:   make([]i2c.BusCloser, len(busNames)),
		configs: make([]i2cm.MasterConfig, len(busNames)),
		pending: make([]pendingWrite, len(busNames)),
		openBus: func(name string) (i2c.BusCloser, error) {
			return i2creg.Open(name)
		},
	}, nil
}

// Controllers implements i2cm.Platform.
func (p *Platform) Controllers() int {
	return len(p.names)
}

// Configure implements i2cm.Platform. Pin routing belongs to the host
// adapter here, so the configured pins are noted and otherwise ignored;
// the clock is applied at install time.
func (p *Platform) Configure(c i2cm.Controller, cfg i2cm.MasterConfig) i2cm.Status {
	if !p.validController(c) {
		return i2cm.StatusInvalidArg
	}
	if cfg.ClockHz == 0 {
		return i2cm.StatusInvalidArg
	}
	if cfg.SCL.IsValid() || cfg.SDA.IsValid() {
		i2cm.Debugf("periphio: pins scl=%s sda=%s are routed by the host adapter, not configurable here", cfg.SCL, cfg.SDA)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.configs[c] = cfg
	return i2cm.StatusOK
}

// Install implements i2cm.Platform. It opens the bus and applies the
// configured clock.
func (p *Platform) Install(c i2cm.Controller, mode i2cm.Mode) i2cm.Status {
	if !p.validController(c) || mode != i2cm.ModeMaster {
		return i2cm.StatusInvalidArg
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Release any previous descriptor so reinstall cannot leak it
	if p.buses[c] != nil {
		_ = p.buses[c].Close()
		p.buses[c] = nil
	}

	bus, err := p.openBus(p.names[c])
	if err != nil {
		i2cm.Debugf("periphio: open %s: %v", p.names[c], err)
		return i2cm.StatusInvalidArg
	}

	if hz := p.configs[c].ClockHz; hz != 0 {
		// Not every adapter can change speed; continue at its default
		if err := bus.SetSpeed(physic.Frequency(hz) * physic.Hertz); err != nil {
			i2cm.Debugf("periphio: set speed %dHz on %s: %v", hz, p.names[c], err)
		}
	}

	p.buses[c] = bus
	p.pending[c] = pendingWrite{}
	return i2cm.StatusOK
}

// Uninstall implements i2cm.Platform. A held write that was never continued
// is discarded; it never reached the wire.
func (p *Platform) Uninstall(c i2cm.Controller) i2cm.Status {
	if !p.validController(c) {
		return i2cm.StatusInvalidArg
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pending[c].valid {
		i2cm.Debugf("periphio: discarding held write to 0x%02X on %s", p.pending[c].addr, p.names[c])
		p.pending[c] = pendingWrite{}
	}
	if p.buses[c] == nil {
		return i2cm.StatusOK
	}
	err := p.buses[c].Close()
	p.buses[c] = nil
	if err != nil {
		return i2cm.StatusFromError(err)
	}
	return i2cm.StatusOK
}

// Execute implements i2cm.Platform. The wait bound and the context are
// checked between segments; the adapter cannot abort a transfer already
// handed to the kernel.
func (p *Platform) Execute(ctx context.Context, c i2cm.Controller, tx *i2cm.Transaction, wait i2cm.Ticks) i2cm.Status {
	if !p.validController(c) {
		return i2cm.StatusInvalidArg
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	bus := p.buses[c]
	if bus == nil {
		return i2cm.StatusInvalidArg
	}

	segments, err := tx.Segments()
	if err != nil {
		return i2cm.StatusInvalidArg
	}

	deadline := time.Now().Add(time.Duration(wait) * time.Millisecond)
	for _, seg := range segments {
		if ctx.Err() != nil || time.Now().After(deadline) {
			p.pending[c] = pendingWrite{}
			return i2cm.StatusTimeout
		}
		if st := p.executeSegment(c, bus, seg); st != i2cm.StatusOK {
			return st
		}
	}
	return i2cm.StatusOK
}

// executeSegment runs one address phase, folding in or holding back writes
// as the transfer model requires.
func (p *Platform) executeSegment(c i2cm.Controller, bus i2c.Bus, seg i2cm.Segment) i2cm.Status {
	pend := &p.pending[c]

	// A write without stop waits for its continuation
	if seg.R == nil && len(seg.W) > 0 && !seg.Stop {
		if pend.valid {
			if st := p.flushPending(c, bus); st != i2cm.StatusOK {
				return st
			}
		}
		*pend = pendingWrite{
			addr:  seg.Addr,
			data:  append([]byte(nil), seg.W...),
			valid: true,
		}
		return i2cm.StatusOK
	}

	w := seg.W
	if pend.valid {
		if seg.Addr == pend.addr && len(w) == 0 {
			// The continuation arrived: the held write becomes the first
			// phase of this transfer
			w = pend.data
			pend.valid = false
		} else if st := p.flushPending(c, bus); st != i2cm.StatusOK {
			return st
		}
	}

	r := seg.R
	if len(w) == 0 && len(r) == 0 {
		// Bare address probe. The adapter cannot issue an empty write, so
		// a one-byte read is the closest probe this transfer model has.
		var probe [1]byte
		r = probe[:]
	}

	if seg.R != nil && !seg.Stop {
		i2cm.Debugf("periphio: read without stop releases the bus on this adapter")
	}

	dev := i2c.Dev{Addr: uint16(seg.Addr), Bus: bus}
	if err := dev.Tx(w, r); err != nil {
		return i2cm.StatusFromError(err)
	}
	return i2cm.StatusOK
}

// flushPending writes out a held segment on its own. This only happens when
// a continuation never came; the repeated start it implied degrades to a
// stop and a fresh start.
func (p *Platform) flushPending(c i2cm.Controller, bus i2c.Bus) i2cm.Status {
	pend := &p.pending[c]
	dev := i2c.Dev{Addr: uint16(pend.addr), Bus: bus}
	data := pend.data
	*pend = pendingWrite{}
	if err := dev.Tx(data, nil); err != nil {
		return i2cm.StatusFromError(err)
	}
	return i2cm.StatusOK
}

// TicksFromMillis implements i2cm.Platform. The kernel adapter enforces its
// own per-transfer timing, so the wait stays in milliseconds and bounds the
// sequence at segment boundaries.
func (p *Platform) TicksFromMillis(ms uint32) i2cm.Ticks {
	return i2cm.Ticks(ms)
}

// Close implements i2cm.Platform. It releases every open bus descriptor;
// leaked descriptors can wedge a bus across rapid reopen cycles.
func (p *Platform) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for i, bus := range p.buses {
		if bus == nil {
			continue
		}
		if err := bus.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close I2C bus %s: %w", p.names[i], err)
		}
		p.buses[i] = nil
	}
	return firstErr
}

func (p *Platform) validController(c i2cm.Controller) bool {
	return c >= 0 && int(c) < len(p.names)
}

// Ensure Platform implements i2cm.Platform
var _ i2cm.Platform = (*Platform)(nil)
