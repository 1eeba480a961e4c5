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

// Package tinygodrv backs the driver with anything satisfying the TinyGo
// drivers I2C interface: machine.I2C on a microcontroller, or any adapter
// exposing Tx. The board owns the buses; this platform only borrows them,
// so Close releases nothing.
//
// Like every transfer-level adapter here, a write queued without a stop
// condition is held back and fused with the next transfer to the same
// address. Held writes that are never continued are discarded on
// uninstall.
package tinygodrv

import (
	"context"
	"errors"
	"fmt"
	"time"

	i2cm "github.com/GaryOtt/go-i2cm"
	"github.com/GaryOtt/go-i2cm/internal/syncutil"
	"tinygo.org/x/drivers"
)

// BusConfigurer is the optional frequency-setting side of a bus. machine.I2C
// implementations expose it through SetBaudRate.
type BusConfigurer interface {
	SetBaudRate(br uint32) error
}

// pendingWrite is a write segment held back for fusion with the next
// transfer on the same controller.
type pendingWrite struct {
	data  []byte
	addr  byte
	valid bool
}

// Platform implements the i2cm.Platform interface over TinyGo driver buses.
type Platform struct {
	buses     []drivers.I2C
	configs   []i2cm.MasterConfig
	installed []bool
	pending   []pendingWrite
	mu        syncutil.Mutex
}

// New creates a platform borrowing one bus per controller, in logical bus
// order.
func New(buses ...drivers.I2C) (*Platform, error) {
	if len(buses) == 0 {
		return nil, errors.New("at least one bus required")
	}
	if len(buses) > i2cm.MaxBuses {
		return nil, fmt.Errorf("%d buses exceed the %d logical buses", len(buses), i2cm.MaxBuses)
	}
	for i, bus := range buses {
		if bus == nil {
			return nil, fmt.Errorf("bus %d is nil", i)
		}
	}

	return &Platform{
		buses:     buses,
		configs:   make([]i2cm.MasterConfig, len(buses)),
		installed: make([]bool, len(buses)),
		pending:   make([]pendingWrite, len(buses)),
	}, nil
}

// Controllers implements i2cm.Platform.
func (p *Platform) Controllers() int {
	return len(p.buses)
}

// Configure implements i2cm.Platform. The clock is applied immediately when
// the bus can set it; pin muxing happened when the board set the bus up.
func (p *Platform) Configure(c i2cm.Controller, cfg i2cm.MasterConfig) i2cm.Status {
	if !p.validController(c) {
		return i2cm.StatusInvalidArg
	}
	if cfg.ClockHz == 0 {
		return i2cm.StatusInvalidArg
	}
	if cfg.SCL.IsValid() || cfg.SDA.IsValid() {
		i2cm.Debugf("tinygodrv: pins scl=%s sda=%s were muxed by the board, ignored", cfg.SCL, cfg.SDA)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if configurer, ok := p.buses[c].(BusConfigurer); ok {
		if err := configurer.SetBaudRate(cfg.ClockHz); err != nil {
			i2cm.Debugf("tinygodrv: set baud rate %dHz: %v", cfg.ClockHz, err)
			return i2cm.StatusInvalidArg
		}
	} else {
		i2cm.Debugf("tinygodrv: bus %d has no frequency control, %dHz ignored", c, cfg.ClockHz)
	}

	p.configs[c] = cfg
	return i2cm.StatusOK
}

// Install implements i2cm.Platform.
func (p *Platform) Install(c i2cm.Controller, mode i2cm.Mode) i2cm.Status {
	if !p.validController(c) || mode != i2cm.ModeMaster {
		return i2cm.StatusInvalidArg
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.installed[c] = true
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
		i2cm.Debugf("tinygodrv: discarding held write to 0x%02X on bus %d", p.pending[c].addr, c)
		p.pending[c] = pendingWrite{}
	}
	p.installed[c] = false
	return i2cm.StatusOK
}

// Execute implements i2cm.Platform. The wait bound and the context are
// checked between segments; a transfer already running on the bus cannot
// be interrupted.
func (p *Platform) Execute(ctx context.Context, c i2cm.Controller, tx *i2cm.Transaction, wait i2cm.Ticks) i2cm.Status {
	if !p.validController(c) {
		return i2cm.StatusInvalidArg
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.installed[c] {
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
		if st := p.executeSegment(c, seg); st != i2cm.StatusOK {
			return st
		}
	}
	return i2cm.StatusOK
}

// executeSegment runs one address phase, folding in or holding back writes
// as the transfer model requires.
func (p *Platform) executeSegment(c i2cm.Controller, seg i2cm.Segment) i2cm.Status {
	pend := &p.pending[c]

	if seg.R == nil && len(seg.W) > 0 && !seg.Stop {
		if pend.valid {
			if st := p.flushPending(c); st != i2cm.StatusOK {
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
		if seg.Addr == pend.addr && len(w) == 0 && seg.R != nil {
			w = pend.data
			pend.valid = false
		} else if st := p.flushPending(c); st != i2cm.StatusOK {
			return st
		}
	}

	if seg.R != nil && !seg.Stop {
		i2cm.Debugf("tinygodrv: read without stop releases the bus on this adapter")
	}

	r := seg.R
	if len(w) == 0 && r == nil {
		// Address-only probe. Tx needs at least one data phase, so read a
		// byte and throw it away.
		var probe [1]byte
		r = probe[:]
	}

	if err := p.buses[c].Tx(uint16(seg.Addr), w, r); err != nil {
		return i2cm.StatusFromError(err)
	}
	return i2cm.StatusOK
}

// flushPending writes out a held segment on its own; its repeated start
// degrades to a stop and a fresh start.
func (p *Platform) flushPending(c i2cm.Controller) i2cm.Status {
	pend := &p.pending[c]
	data := pend.data
	addr := pend.addr
	*pend = pendingWrite{}
	if err := p.buses[c].Tx(uint16(addr), data, nil); err != nil {
		return i2cm.StatusFromError(err)
	}
	return i2cm.StatusOK
}

// TicksFromMillis implements i2cm.Platform. These buses block per transfer
// with no programmable bound, so the wait stays in milliseconds and is
// enforced at segment boundaries.
func (p *Platform) TicksFromMillis(ms uint32) i2cm.Ticks {
	return i2cm.Ticks(ms)
}

// Close implements i2cm.Platform. The board owns the buses.
func (p *Platform) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.installed {
		p.installed[i] = false
	}
	return nil
}

func (p *Platform) validController(c i2cm.Controller) bool {
	return c >= 0 && int(c) < len(p.buses)
}

// Ensure Platform implements i2cm.Platform
var _ i2cm.Platform = (*Platform)(nil)
