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

// Package sc18im backs the driver with an SC18IM704 UART-to-I2C bridge on
// a serial port. The bridge exposes one controller; transactions become
// its ASCII-framed command stream ('S' address length data ... 'P'), and
// each transaction is followed by a read of the bridge's I2C status
// register to learn how the bus answered.
//
// The bridge executes a chain only when the 'P' terminator arrives, so a
// write queued without a stop condition is held back and joined with the
// next transaction's chain, preserving its repeated start. Held writes
// that are never continued are discarded on uninstall.
package sc18im

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	i2cm "github.com/GaryOtt/go-i2cm"
	"github.com/GaryOtt/go-i2cm/internal/bufpool"
	"github.com/GaryOtt/go-i2cm/internal/syncutil"
	"go.bug.st/serial"
)

// Bridge command characters.
const (
	cmdStart    = 'S' // begin an I2C transaction chain element
	cmdStop     = 'P' // terminate and execute the chain
	cmdReadReg  = 'R' // read internal register
	cmdWriteReg = 'W' // write internal register
)

// Bridge internal registers.
const (
	regI2CClkL = 0x07 // clock divisor, low half
	regI2CClkH = 0x08 // clock divisor, high half
	regI2CTO   = 0x09 // bridge-side bus timeout
	regI2CStat = 0x0A // transaction status
)

// I2CStat values.
const (
	statOK       = 0xF0
	statNackAddr = 0xF1
	statNackData = 0xF2
	statTimeout  = 0xF3
)

const (
	// crystalHz is the bridge's oscillator; the bus clock divides it.
	crystalHz = 7_372_800

	// minClkHalf is the smallest divisor half the bridge accepts per its
	// datasheet; it caps the bus clock near 400 kHz.
	minClkHalf = 5

	// defaultBaud is the bridge's power-on UART rate.
	defaultBaud = 9600

	// maxChainData is the longest read or write run per chain element; the
	// bridge length field is one byte.
	maxChainData = 255
)

// Port is the serial connection to the bridge. serial.Port satisfies it;
// tests substitute a scripted implementation.
type Port interface {
	io.ReadWriter
	SetReadTimeout(t time.Duration) error
	Close() error
}

// pendingWrite is a no-stop write held for the next transaction's chain.
type pendingWrite struct {
	data  []byte
	addr  byte
	valid bool
}

// Platform implements the i2cm.Platform interface over one bridge.
type Platform struct {
	port      Port
	portName  string
	config    i2cm.MasterConfig
	pending   pendingWrite
	installed bool
	mu        syncutil.Mutex
}

// New opens the bridge on a serial port at its power-on baud rate.
func New(portName string) (*Platform, error) {
	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: defaultBaud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open bridge port %s: %w", portName, err)
	}
	return NewWithPort(port, portName), nil
}

// NewWithPort wraps an already open connection, for custom transports and
// tests.
func NewWithPort(port Port, portName string) *Platform {
	return &Platform{
		port:     port,
		portName: portName,
	}
}

// Controllers implements i2cm.Platform. The bridge has a single bus.
func (p *Platform) Controllers() int {
	return 1
}

// clockDivisor splits the crystal divider for a requested bus clock into
// the two register halves. The bus clock is crystal / (2 * (low + high)).
func clockDivisor(clockHz uint32) (low, high byte, err error) {
	if clockHz == 0 {
		return 0, 0, errors.New("zero clock")
	}
	total := crystalHz / (2 * uint64(clockHz))
	if total < 2*minClkHalf {
		return 0, 0, fmt.Errorf("%dHz is above what the bridge can clock", clockHz)
	}
	if total > 2*0xFF {
		return 0, 0, fmt.Errorf("%dHz is below what the bridge can clock", clockHz)
	}
	half := total / 2
	return byte(half), byte(total - half), nil
}

// Configure implements i2cm.Platform. The bridge has fixed bus pins, so
// only the clock is configurable; the divisor is validated here and
// written at install time.
func (p *Platform) Configure(c i2cm.Controller, cfg i2cm.MasterConfig) i2cm.Status {
	if c != 0 {
		return i2cm.StatusInvalidArg
	}
	if _, _, err := clockDivisor(cfg.ClockHz); err != nil {
		i2cm.Debugf("sc18im: %v", err)
		return i2cm.StatusInvalidArg
	}
	if cfg.SCL.IsValid() || cfg.SDA.IsValid() {
		i2cm.Debugf("sc18im: bridge pins are fixed, scl=%s sda=%s ignored", cfg.SCL, cfg.SDA)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.config = cfg
	return i2cm.StatusOK
}

// Install implements i2cm.Platform. It programs the clock divisor into the
// bridge.
func (p *Platform) Install(c i2cm.Controller, mode i2cm.Mode) i2cm.Status {
	if c != 0 || mode != i2cm.ModeMaster {
		return i2cm.StatusInvalidArg
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	low, high, err := clockDivisor(p.config.ClockHz)
	if err != nil {
		return i2cm.StatusInvalidArg
	}

	// W <reg> <val> <reg> <val> P programs both halves in one frame
	frame := []byte{cmdWriteReg, regI2CClkL, low, regI2CClkH, high, cmdStop}
	if _, err := p.port.Write(frame); err != nil {
		return i2cm.StatusFromError(err)
	}

	i2cm.Debugf("sc18im: clock divisor %d/%d for %dHz", low, high, p.config.ClockHz)
	p.installed = true
	p.pending = pendingWrite{}
	return i2cm.StatusOK
}

// Uninstall implements i2cm.Platform. The bridge needs no teardown; the
// controller just stops accepting transactions. A held write is discarded.
func (p *Platform) Uninstall(c i2cm.Controller) i2cm.Status {
	if c != 0 {
		return i2cm.StatusInvalidArg
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pending.valid {
		i2cm.Debugf("sc18im: discarding held write to 0x%02X", p.pending.addr)
		p.pending = pendingWrite{}
	}
	p.installed = false
	return i2cm.StatusOK
}

// Execute implements i2cm.Platform. The wait bound becomes the serial read
// timeout, so a bridge that stays silent - bus held, bridge wedged -
// surfaces as the bounded-wait timeout.
func (p *Platform) Execute(ctx context.Context, c i2cm.Controller, tx *i2cm.Transaction, wait i2cm.Ticks) i2cm.Status {
	if ctx.Err() != nil {
		return i2cm.StatusTimeout
	}
	if c != 0 {
		return i2cm.StatusInvalidArg
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.installed {
		return i2cm.StatusInvalidArg
	}

	segments, err := tx.Segments()
	if err != nil {
		return i2cm.StatusInvalidArg
	}
	if len(segments) == 0 {
		return i2cm.StatusOK
	}

	// The last segment of a stop-less transaction waits for continuation
	if last := segments[len(segments)-1]; !last.Stop && last.R == nil && len(last.W) > 0 && len(segments) == 1 && !p.pending.valid {
		p.pending = pendingWrite{
			addr:  last.Addr,
			data:  append([]byte(nil), last.W...),
			valid: true,
		}
		return i2cm.StatusOK
	}

	if err := p.port.SetReadTimeout(time.Duration(wait) * time.Millisecond); err != nil {
		return i2cm.StatusFromError(err)
	}

	frame, reads, st := p.buildChain(segments)
	if st != i2cm.StatusOK {
		return st
	}
	defer bufpool.Put(frame)

	if _, err := p.port.Write(frame); err != nil {
		return i2cm.StatusFromError(err)
	}

	// The bridge returns read data in chain order once the stop executes
	for _, dst := range reads {
		if ctx.Err() != nil {
			return i2cm.StatusTimeout
		}
		if st := p.readFull(dst); st != i2cm.StatusOK {
			return st
		}
	}

	return p.pollStatus()
}

// buildChain frames the segments, prefixed by any held write, into one
// bridge command chain ending in 'P'. It returns the frame and the read
// destinations in chain order.
func (p *Platform) buildChain(segments []i2cm.Segment) (frame []byte, reads [][]byte, st i2cm.Status) {
	size := 1 // trailing 'P'
	if p.pending.valid {
		size += 3 + len(p.pending.data)
	}
	for _, seg := range segments {
		size += 3 + len(seg.W)
		if seg.R != nil {
			size += 3
		}
	}

	frame = bufpool.Get(size)[:0]
	if p.pending.valid {
		frame = appendWriteElement(frame, p.pending.addr, p.pending.data)
		p.pending = pendingWrite{}
	}
	for _, seg := range segments {
		if len(seg.W) > maxChainData || len(seg.R) > maxChainData {
			bufpool.Put(frame)
			return nil, nil, i2cm.StatusInvalidArg
		}
		if len(seg.W) > 0 || seg.R == nil {
			// Data write, or a bare address probe with length zero
			frame = appendWriteElement(frame, seg.Addr, seg.W)
		}
		if seg.R != nil {
			frame = append(frame, cmdStart, i2cm.AddressByte(seg.Addr, i2cm.DirRead), byte(len(seg.R)))
			reads = append(reads, seg.R)
		}
	}
	frame = append(frame, cmdStop)
	return frame, reads, i2cm.StatusOK
}

// appendWriteElement frames one write run: S <addr+W> <len> <data>.
func appendWriteElement(frame []byte, addr byte, data []byte) []byte {
	frame = append(frame, cmdStart, i2cm.AddressByte(addr, i2cm.DirWrite), byte(len(data)))
	return append(frame, data...)
}

// readFull fills dst from the port, treating a short read as the bounded
// wait expiring.
func (p *Platform) readFull(dst []byte) i2cm.Status {
	got := 0
	for got < len(dst) {
		n, err := p.port.Read(dst[got:])
		if err != nil {
			return i2cm.StatusFromError(err)
		}
		if n == 0 {
			// go.bug.st/serial signals a read timeout with a zero-length
			// read and no error
			return i2cm.StatusTimeout
		}
		got += n
	}
	return i2cm.StatusOK
}

// pollStatus asks the bridge how the bus answered the last chain and maps
// it to the status namespace. Unknown register values pass through raw.
func (p *Platform) pollStatus() i2cm.Status {
	if _, err := p.port.Write([]byte{cmdReadReg, regI2CStat, cmdStop}); err != nil {
		return i2cm.StatusFromError(err)
	}

	var stat [1]byte
	if st := p.readFull(stat[:]); st != i2cm.StatusOK {
		return st
	}

	switch stat[0] {
	case statOK:
		return i2cm.StatusOK
	case statNackAddr, statNackData:
		return i2cm.StatusFail
	case statTimeout:
		return i2cm.StatusTimeout
	default:
		i2cm.Debugf("sc18im: unexpected I2CStat 0x%02X", stat[0])
		return i2cm.Status(stat[0])
	}
}

// TicksFromMillis implements i2cm.Platform. The wait is enforced host-side
// through the serial read timeout, so ticks stay milliseconds.
func (p *Platform) TicksFromMillis(ms uint32) i2cm.Ticks {
	return i2cm.Ticks(ms)
}

// Close implements i2cm.Platform.
func (p *Platform) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.installed = false
	if p.port == nil {
		return nil
	}
	err := p.port.Close()
	p.port = nil
	if err != nil {
		return fmt.Errorf("failed to close bridge port %s: %w", p.portName, err)
	}
	return nil
}

// Ensure Platform implements i2cm.Platform
var _ i2cm.Platform = (*Platform)(nil)
