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

// Package i2cdev backs the driver with the Linux i2c-dev character devices
// directly, one /dev/i2c-N node per controller. Transactions go through
// I2C_RDWR message vectors, so everything between two stop conditions runs
// as one kernel transfer with repeated starts between the messages; the
// driver's wait bound is applied through the adapter's I2C_TIMEOUT, which
// counts in 10ms units.
//
// A write queued without a stop condition as the last segment of a
// transaction is held back and joined into the next transaction's vector,
// preserving its repeated start across driver calls. Held writes that are
// never continued are discarded on uninstall.
package i2cdev

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	i2cm "github.com/GaryOtt/go-i2cm"
	"github.com/GaryOtt/go-i2cm/internal/syncutil"
)

// i2c-dev ioctl requests and flags, from the kernel's i2c-dev.h.
const (
	ioctlRetries = 0x0701 // I2C_RETRIES
	ioctlTimeout = 0x0702 // I2C_TIMEOUT, unit 10ms
	ioctlFuncs   = 0x0705 // I2C_FUNCS
	ioctlRdwr    = 0x0707 // I2C_RDWR

	funcPlainI2C = 0x00000001 // I2C_FUNC_I2C

	flagRead = 0x0001 // I2C_M_RD

	// Largest message vector one I2C_RDWR accepts.
	maxVectorMsgs = 42

	// I2C_TIMEOUT unit in milliseconds.
	timeoutUnitMillis = 10
)

// busMessage is one kernel message: a read or write run to one address
// within a stop-free chain.
type busMessage struct {
	buf  []byte
	addr byte
	read bool
}

// pendingWrite is a trailing no-stop write held for the next transaction.
type pendingWrite struct {
	data  []byte
	addr  byte
	valid bool
}

// Platform implements the i2cm.Platform interface over i2c-dev nodes.
type Platform struct {
	// Kernel access points, replaceable in tests.
	openFile func(path string) (*os.File, error)
	ioctl    func(fd, req, arg uintptr) error
	funcs    func(fd uintptr) (uint64, error)
	transfer func(fd uintptr, msgs []busMessage) error

	paths       []string
	files       []*os.File
	configs     []i2cm.MasterConfig
	pending     []pendingWrite
	lastTimeout []i2cm.Ticks
	mu          syncutil.Mutex
}

// New creates a platform backing one controller per device path, in
// logical bus order.
func New(paths ...string) (*Platform, error) {
	if len(paths) == 0 {
		return nil, errors.New("at least one device path required")
	}
	if len(paths) > i2cm.MaxBuses {
		return nil, fmt.Errorf("%d device paths exceed the %d logical buses", len(paths), i2cm.MaxBuses)
	}

	return &Platform{
		paths:       paths,
		files:       make([]*os.File, len(paths)),
		configs:     make([]i2cm.MasterConfig, len(paths)),
		pending:     make([]pendingWrite, len(paths)),
		lastTimeout: make([]i2cm.Ticks, len(paths)),
		openFile: func(path string) (*os.File, error) {
			return os.OpenFile(path, os.O_RDWR, 0) //nolint:gosec // device path comes from the platform's own configuration
		},
		ioctl:    rawIoctl,
		funcs:    rawFuncs,
		transfer: rawTransfer,
	}, nil
}

// Controllers implements i2cm.Platform.
func (p *Platform) Controllers() int {
	return len(p.paths)
}

// Configure implements i2cm.Platform. The kernel owns pin muxing and bus
// speed on these adapters, so the configuration is validated and noted;
// nothing is applied until install.
func (p *Platform) Configure(c i2cm.Controller, cfg i2cm.MasterConfig) i2cm.Status {
	if !p.validController(c) {
		return i2cm.StatusInvalidArg
	}
	if cfg.ClockHz == 0 {
		return i2cm.StatusInvalidArg
	}
	if cfg.SCL.IsValid() || cfg.SDA.IsValid() {
		i2cm.Debugf("i2cdev: pins scl=%s sda=%s are routed by the kernel, not configurable here", cfg.SCL, cfg.SDA)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.configs[c] = cfg
	return i2cm.StatusOK
}

// Install implements i2cm.Platform. It opens the device node, verifies the
// adapter speaks plain I2C and turns kernel-level retries off; retry policy
// belongs to callers.
func (p *Platform) Install(c i2cm.Controller, mode i2cm.Mode) i2cm.Status {
	if !p.validController(c) || mode != i2cm.ModeMaster {
		return i2cm.StatusInvalidArg
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.files[c] != nil {
		_ = p.files[c].Close()
		p.files[c] = nil
	}

	file, err := p.openFile(p.paths[c])
	if err != nil {
		i2cm.Debugf("i2cdev: open %s: %v", p.paths[c], err)
		return i2cm.StatusInvalidArg
	}

	caps, err := p.funcs(file.Fd())
	if err != nil {
		_ = file.Close()
		return i2cm.StatusFromError(err)
	}
	if caps&funcPlainI2C == 0 {
		// SMBus-only adapter; it cannot run arbitrary message vectors
		_ = file.Close()
		return i2cm.StatusNotSupported
	}

	if err := p.ioctl(file.Fd(), ioctlRetries, 0); err != nil {
		i2cm.Debugf("i2cdev: disable retries on %s: %v", p.paths[c], err)
	}

	p.files[c] = file
	p.pending[c] = pendingWrite{}
	p.lastTimeout[c] = 0
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
		i2cm.Debugf("i2cdev: discarding held write to 0x%02X on %s", p.pending[c].addr, p.paths[c])
		p.pending[c] = pendingWrite{}
	}
	if p.files[c] == nil {
		return i2cm.StatusOK
	}
	err := p.files[c].Close()
	p.files[c] = nil
	if err != nil {
		return i2cm.StatusFromError(err)
	}
	return i2cm.StatusOK
}

// Execute implements i2cm.Platform. Segments accumulate into one message
// vector per stop condition; each vector is a single kernel transfer.
func (p *Platform) Execute(ctx context.Context, c i2cm.Controller, tx *i2cm.Transaction, wait i2cm.Ticks) i2cm.Status {
	if !p.validController(c) {
		return i2cm.StatusInvalidArg
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	file := p.files[c]
	if file == nil {
		return i2cm.StatusInvalidArg
	}

	segments, err := tx.Segments()
	if err != nil {
		return i2cm.StatusInvalidArg
	}

	if st := p.applyTimeout(c, file, wait); st != i2cm.StatusOK {
		return st
	}

	var msgs []busMessage

	// A write held from the previous transaction joins the front of this
	// vector, keeping its promised repeated start.
	if p.pending[c].valid {
		msgs = append(msgs, busMessage{addr: p.pending[c].addr, buf: p.pending[c].data})
		p.pending[c] = pendingWrite{}
	}

	flush := func() i2cm.Status {
		if len(msgs) == 0 {
			return i2cm.StatusOK
		}
		st := p.runVector(file, msgs)
		msgs = nil
		return st
	}

	deadline := time.Now().Add(time.Duration(wait) * timeoutUnitMillis * time.Millisecond)
	for i, seg := range segments {
		if ctx.Err() != nil || time.Now().After(deadline) {
			return i2cm.StatusTimeout
		}

		// A trailing no-stop write with nothing queued before it waits
		// for its continuation in the next transaction
		if seg.R == nil && len(seg.W) > 0 && !seg.Stop && i == len(segments)-1 && len(msgs) == 0 {
			p.pending[c] = pendingWrite{
				addr:  seg.Addr,
				data:  append([]byte(nil), seg.W...),
				valid: true,
			}
			return i2cm.StatusOK
		}

		if len(seg.W) > 0 || seg.R == nil {
			// Write run; with neither data nor read this is a bare
			// address probe, a zero-length write message
			msgs = append(msgs, busMessage{addr: seg.Addr, buf: seg.W})
		}
		if seg.R != nil {
			msgs = append(msgs, busMessage{addr: seg.Addr, read: true, buf: seg.R})
		}

		if seg.Stop {
			if st := flush(); st != i2cm.StatusOK {
				return st
			}
		}
	}

	// A trailing read without stop still has to run; the kernel ends every
	// vector with a stop condition
	if len(msgs) > 0 {
		i2cm.Debugf("i2cdev: no-stop tail gets a stop condition from the kernel")
		return flush()
	}
	return i2cm.StatusOK
}

// runVector hands one stop-free chain to the kernel, splitting it only if
// it exceeds the ioctl's message limit.
func (p *Platform) runVector(file *os.File, msgs []busMessage) i2cm.Status {
	for len(msgs) > 0 {
		n := len(msgs)
		if n > maxVectorMsgs {
			n = maxVectorMsgs
		}
		if err := p.transfer(file.Fd(), msgs[:n]); err != nil {
			return i2cm.StatusFromError(err)
		}
		msgs = msgs[n:]
	}
	return i2cm.StatusOK
}

// applyTimeout programs the adapter's transfer timeout when the wait bound
// changed since the last transaction.
func (p *Platform) applyTimeout(c i2cm.Controller, file *os.File, wait i2cm.Ticks) i2cm.Status {
	if wait == 0 {
		wait = 1
	}
	if wait == p.lastTimeout[c] {
		return i2cm.StatusOK
	}
	if err := p.ioctl(file.Fd(), ioctlTimeout, uintptr(wait)); err != nil {
		return i2cm.StatusFromError(err)
	}
	p.lastTimeout[c] = wait
	return i2cm.StatusOK
}

// TicksFromMillis implements i2cm.Platform. The adapter timeout counts in
// 10ms units; anything shorter still needs one unit.
func (p *Platform) TicksFromMillis(ms uint32) i2cm.Ticks {
	ticks := ms / timeoutUnitMillis
	if ticks == 0 && ms > 0 {
		ticks = 1
	}
	return i2cm.Ticks(ticks)
}

// Close implements i2cm.Platform. It releases every open device node.
func (p *Platform) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for i, file := range p.files {
		if file == nil {
			continue
		}
		if err := file.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close %s: %w", p.paths[i], err)
		}
		p.files[i] = nil
	}
	return firstErr
}

func (p *Platform) validController(c i2cm.Controller) bool {
	return c >= 0 && int(c) < len(p.paths)
}

// Ensure Platform implements i2cm.Platform
var _ i2cm.Platform = (*Platform)(nil)
