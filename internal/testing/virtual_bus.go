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

// Package testing provides test utilities including a wire-level I2C bus
// simulator.
//
// VirtualBus replays a queued transaction against simulated peripherals one
// bus event at a time: start and stop conditions, address bytes with their
// ACK or NACK, data bytes in both directions with the acknowledge level
// observed on the wire. Every event is recorded, so tests can assert the
// exact sequence a transaction put on the bus, not just its result.
package testing

import (
	"fmt"

	i2cm "github.com/GaryOtt/go-i2cm"
	"github.com/GaryOtt/go-i2cm/internal/syncutil"
)

// EventKind identifies one recorded bus event.
type EventKind int

// Bus event kinds.
const (
	EventStart EventKind = iota
	EventAddress
	EventWrite
	EventRead
	EventStop
)

// String returns the event name.
func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "START"
	case EventAddress:
		return "ADDRESS"
	case EventWrite:
		return "WRITE"
	case EventRead:
		return "READ"
	case EventStop:
		return "STOP"
	default:
		return fmt.Sprintf("EVENT(%d)", int(k))
	}
}

// BusEvent is one observed wire event. For address and write events Ack is
// the peripheral's answer; for read events it is the level the master drove
// after the byte (true = ACK, keep sending; false = NACK, final byte).
type BusEvent struct {
	Kind EventKind
	Byte byte
	Ack  bool
}

// String formats the event for failure messages.
func (e BusEvent) String() string {
	switch e.Kind {
	case EventStart, EventStop:
		return e.Kind.String()
	default:
		ack := "ACK"
		if !e.Ack {
			ack = "NACK"
		}
		return fmt.Sprintf("%s 0x%02X %s", e.Kind, e.Byte, ack)
	}
}

// Peripheral is a simulated device on a VirtualBus. The bus handles the
// address phase itself; peripherals only see their own data traffic.
type Peripheral interface {
	// BusWrite receives one data byte and returns the acknowledge answer.
	BusWrite(b byte) bool
	// BusRead supplies the next data byte. last is true when the master
	// NACKed, ending the transfer.
	BusRead(last bool) byte
	// BusStop signals a stop condition while this peripheral was addressed.
	BusStop()
}

// VirtualBus simulates one I2C bus with attached peripherals.
type VirtualBus struct {
	mu          syncutil.Mutex
	peripherals map[byte]Peripheral
	events      []BusEvent
	inject      i2cm.Status
	injectSet   bool
	busy        bool
}

// NewVirtualBus creates an empty bus.
func NewVirtualBus() *VirtualBus {
	return &VirtualBus{
		peripherals: make(map[byte]Peripheral),
	}
}

// AddPeripheral attaches a peripheral at a 7-bit address, replacing any
// previous occupant.
func (b *VirtualBus) AddPeripheral(addr byte, p Peripheral) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.peripherals[addr] = p
}

// RemovePeripheral detaches the peripheral at addr.
func (b *VirtualBus) RemovePeripheral(addr byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.peripherals, addr)
}

// SetBusy marks the bus as held by another master. Transactions then time
// out without producing events.
func (b *VirtualBus) SetBusy(busy bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.busy = busy
}

// InjectStatus makes the next transaction return the given raw status
// without running. One-shot.
func (b *VirtualBus) InjectStatus(st i2cm.Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inject = st
	b.injectSet = true
}

// Events returns a copy of the recorded event sequence.
func (b *VirtualBus) Events() []BusEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]BusEvent, len(b.events))
	copy(out, b.events)
	return out
}

// ClearEvents discards the recorded events.
func (b *VirtualBus) ClearEvents() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = nil
}

// Run replays a queued transaction on the bus. Events are recorded up to
// the point of failure, so a NACKed transfer still shows what led to it.
func (b *VirtualBus) Run(tx *i2cm.Transaction) i2cm.Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.injectSet {
		b.injectSet = false
		return b.inject
	}
	if b.busy {
		// Another master holds the bus; the bounded wait expires before
		// anything reaches the wire
		return i2cm.StatusTimeout
	}

	var (
		target      Peripheral
		dir         byte
		started     bool
		pendingAddr bool
	)

	for _, op := range tx.Operations() {
		switch op.Kind {
		case i2cm.OpStart:
			b.events = append(b.events, BusEvent{Kind: EventStart})
			started = true
			pendingAddr = true

		case i2cm.OpWrite:
			if !started {
				return i2cm.StatusInvalidArg
			}
			data := op.Data
			if pendingAddr {
				if len(data) == 0 {
					continue
				}
				addrByte := data[0]
				data = data[1:]
				pendingAddr = false
				dir = addrByte & 1
				target = b.peripherals[addrByte>>1]
				acked := target != nil
				b.events = append(b.events, BusEvent{Kind: EventAddress, Byte: addrByte, Ack: acked})
				if !acked && op.AckCheck {
					return i2cm.StatusFail
				}
			}
			if dir != i2cm.DirWrite && len(data) > 0 {
				return i2cm.StatusInvalidArg
			}
			for _, d := range data {
				acked := false
				if target != nil {
					acked = target.BusWrite(d)
				}
				b.events = append(b.events, BusEvent{Kind: EventWrite, Byte: d, Ack: acked})
				if !acked && op.AckCheck {
					return i2cm.StatusFail
				}
			}

		case i2cm.OpRead:
			if !started || pendingAddr || dir != i2cm.DirRead {
				return i2cm.StatusInvalidArg
			}
			masterAcks := op.Ack == i2cm.AckModeAck
			for i := range op.Dst {
				value := byte(0xFF)
				if target != nil {
					value = target.BusRead(!masterAcks)
				}
				op.Dst[i] = value
				b.events = append(b.events, BusEvent{Kind: EventRead, Byte: value, Ack: masterAcks})
			}

		case i2cm.OpStop:
			b.events = append(b.events, BusEvent{Kind: EventStop})
			if target != nil {
				target.BusStop()
			}
			target = nil
			started = false
			pendingAddr = false
		}
	}

	return i2cm.StatusOK
}
