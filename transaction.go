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

package i2cm

import (
	"errors"
	"fmt"

	"github.com/GaryOtt/go-i2cm/internal/bufpool"
)

// OpKind identifies one queued bus operation.
type OpKind uint8

// Queued operation kinds, in the order they appear on the wire.
const (
	OpStart OpKind = iota
	OpWrite
	OpRead
	OpStop
)

// String returns the operation name.
func (k OpKind) String() string {
	switch k {
	case OpStart:
		return "START"
	case OpWrite:
		return "WRITE"
	case OpRead:
		return "READ"
	case OpStop:
		return "STOP"
	default:
		return fmt.Sprintf("OP(%d)", int(k))
	}
}

// Operation is one queued step of a transaction. Write steps carry the bytes
// to clock out and whether each must be acknowledged; read steps carry the
// destination and the acknowledge level the master drives after every byte.
type Operation struct {
	Data     []byte  // Bytes to clock out (OpWrite)
	Dst      []byte  // Destination for clocked-in bytes (OpRead)
	Kind     OpKind  // Step type
	AckCheck bool    // OpWrite: fail the transaction on a missing ACK
	Ack      AckMode // OpRead: level driven after each received byte
}

// Transaction is a queued command sequence executed atomically by a
// platform: start and stop conditions, address and data writes, reads with
// explicit acknowledge levels. Build one with the queueing methods, hand it
// to Platform.Execute, then Release it. A transaction must not be reused
// after execution.
//
// Write data is copied into a pooled arena at queue time, so callers may
// reuse their slices immediately. Read destinations are not copied; they are
// filled during execution.
type Transaction struct {
	ops      []Operation
	arena    []byte
	released bool
}

// NewTransaction creates an empty transaction backed by a pooled buffer.
func NewTransaction() *Transaction {
	return &Transaction{
		ops:   make([]Operation, 0, 8),
		arena: bufpool.Get(bufpool.SmallSize)[:0],
	}
}

// Start queues a start condition. A start after queued traffic is a
// repeated start on the wire.
func (t *Transaction) Start() *Transaction {
	t.ops = append(t.ops, Operation{Kind: OpStart})
	return t
}

// WriteByte queues a single byte write. The first write after a start must
// be the address byte (see AddressByte).
func (t *Transaction) WriteByte(b byte, ackCheck bool) *Transaction {
	data := t.alloc(1)
	data[0] = b
	t.ops = append(t.ops, Operation{Kind: OpWrite, Data: data, AckCheck: ackCheck})
	return t
}

// Write queues a multi-byte write. The data is copied; queueing an empty
// slice is a no-op.
func (t *Transaction) Write(data []byte, ackCheck bool) *Transaction {
	if len(data) == 0 {
		return t
	}
	cp := t.alloc(len(data))
	copy(cp, data)
	t.ops = append(t.ops, Operation{Kind: OpWrite, Data: cp, AckCheck: ackCheck})
	return t
}

// Read queues a read into dst, driving the given acknowledge level after
// every received byte. Queueing an empty destination is a no-op.
func (t *Transaction) Read(dst []byte, ack AckMode) *Transaction {
	if len(dst) == 0 {
		return t
	}
	t.ops = append(t.ops, Operation{Kind: OpRead, Dst: dst, Ack: ack})
	return t
}

// Stop queues a stop condition.
func (t *Transaction) Stop() *Transaction {
	t.ops = append(t.ops, Operation{Kind: OpStop})
	return t
}

// Operations returns the queued steps in order. Wire-level platforms walk
// these directly; transfer-level platforms use Segments instead.
func (t *Transaction) Operations() []Operation {
	return t.ops
}

// Release returns the transaction's pooled storage. Safe to call more than
// once. The transaction and any Operation slices obtained from it must not
// be used afterwards.
func (t *Transaction) Release() {
	if t.released {
		return
	}
	t.released = true
	bufpool.Put(t.arena)
	t.arena = nil
	t.ops = nil
}

// alloc carves n bytes out of the arena, growing it when needed. Earlier
// carvings stay valid across growth because append abandons, never moves,
// the old backing array.
func (t *Transaction) alloc(n int) []byte {
	off := len(t.arena)
	if off+n <= cap(t.arena) {
		t.arena = t.arena[:off+n]
	} else {
		t.arena = append(t.arena, make([]byte, n)...)
	}
	return t.arena[off : off+n]
}

// Segment is one address phase of a transaction as transfer-level adapters
// see it: everything between a (repeated) start and the next start or stop,
// with the address byte decoded. A segment with both W and R is a combined
// write-then-read with a repeated start between the phases, which is how
// register reads look to adapters like the Linux i2c-dev ioctl.
type Segment struct {
	W    []byte // Bytes clocked out after the address
	R    []byte // Destination for bytes clocked in
	Addr byte   // 7-bit peripheral address
	Stop bool   // Stop condition terminates this segment
}

// Segment flattening errors. Transfer-level platforms report these as
// StatusInvalidArg.
var (
	errNoStart      = errors.New("operation queued before start condition")
	errNoAddress    = errors.New("start condition without address byte")
	errDirConflict  = errors.New("operation direction conflicts with address direction bit")
	errSplitRead    = errors.New("read destinations are not contiguous")
	errEmptySegment = errors.New("read segment without destination")
)

// Segments flattens the queued operations into address-phase segments for
// transfer-level platforms. Consecutive reads merge into one read phase, so
// their destinations must be contiguous slices of one buffer (the driver
// always builds them that way). Per-byte acknowledge levels are not carried
// over; transfer hardware ACKs all but the final byte of a read phase on
// its own, which matches what the queueing API expresses.
func (t *Transaction) Segments() ([]Segment, error) {
	segments := make([]Segment, 0, 2)
	var cur *Segment
	dir := DirWrite
	pendingAddr := false

	flush := func(stop bool) {
		if cur != nil {
			cur.Stop = stop
			segments = append(segments, *cur)
			cur = nil
		}
	}

	for _, op := range t.ops {
		switch op.Kind {
		case OpStart:
			if pendingAddr {
				return nil, errNoAddress
			}
			flush(false)
			pendingAddr = true

		case OpWrite:
			data := op.Data
			if pendingAddr {
				if len(data) == 0 {
					continue
				}
				addrByte := data[0]
				cur = &Segment{Addr: addrByte >> 1}
				dir = addrByte & 1
				pendingAddr = false
				data = data[1:]
			}
			if cur == nil {
				return nil, errNoStart
			}
			if len(data) == 0 {
				continue
			}
			if dir != DirWrite {
				return nil, errDirConflict
			}
			cur.W = append(cur.W, data...)

		case OpRead:
			if pendingAddr || cur == nil {
				return nil, errNoStart
			}
			if dir != DirRead {
				return nil, errDirConflict
			}
			if len(op.Dst) == 0 {
				return nil, errEmptySegment
			}
			if cur.R == nil {
				cur.R = op.Dst
			} else {
				merged, ok := extendSlice(cur.R, op.Dst)
				if !ok {
					return nil, errSplitRead
				}
				cur.R = merged
			}

		case OpStop:
			if pendingAddr {
				return nil, errNoAddress
			}
			flush(true)
		}
	}
	if pendingAddr {
		return nil, errNoAddress
	}
	flush(false)

	return fuseWriteRead(segments), nil
}

// extendSlice grows a to cover b when b starts exactly where a ends in the
// same backing array.
func extendSlice(a, b []byte) ([]byte, bool) {
	if cap(a) < len(a)+len(b) {
		return nil, false
	}
	ext := a[: len(a)+len(b) : len(a)+len(b)]
	if &ext[len(a)] != &b[0] {
		return nil, false
	}
	return ext, true
}

// fuseWriteRead combines a write segment without stop with an immediately
// following read segment to the same address into one write-then-read
// segment. That repeated-start pattern is a register read, and fusing it
// here means every transfer-level adapter expresses it as a single
// combined transfer.
func fuseWriteRead(segments []Segment) []Segment {
	fused := segments[:0]
	for i := 0; i < len(segments); i++ {
		seg := segments[i]
		if i+1 < len(segments) && !seg.Stop && seg.R == nil && len(seg.W) > 0 {
			next := segments[i+1]
			if next.Addr == seg.Addr && next.W == nil && next.R != nil {
				seg.R = next.R
				seg.Stop = next.Stop
				i++
			}
		}
		fused = append(fused, seg)
	}
	return fused
}
