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

// MemoryPeripheral simulates a pointer-addressed memory device, the shape
// of a 24-series EEPROM: the first byte written after a start sets the word
// pointer, further writes store at the pointer, reads return from it. The
// pointer survives a repeated start (register reads depend on that) and
// wraps at the end of the array; a stop arms pointer capture for the next
// write.
type MemoryPeripheral struct {
	mem        []byte
	ptr        int
	ptrPending bool
}

// NewMemoryPeripheral creates a memory device of the given size.
func NewMemoryPeripheral(size int) *MemoryPeripheral {
	return &MemoryPeripheral{
		mem:        make([]byte, size),
		ptrPending: true,
	}
}

// Load preloads data at offset.
func (p *MemoryPeripheral) Load(offset int, data []byte) {
	for i, b := range data {
		p.mem[(offset+i)%len(p.mem)] = b
	}
}

// Bytes returns the backing memory for inspection.
func (p *MemoryPeripheral) Bytes() []byte {
	return p.mem
}

// BusWrite implements Peripheral.
func (p *MemoryPeripheral) BusWrite(b byte) bool {
	if p.ptrPending {
		p.ptr = int(b) % len(p.mem)
		p.ptrPending = false
		return true
	}
	p.mem[p.ptr] = b
	p.ptr = (p.ptr + 1) % len(p.mem)
	return true
}

// BusRead implements Peripheral.
func (p *MemoryPeripheral) BusRead(_ bool) byte {
	b := p.mem[p.ptr]
	p.ptr = (p.ptr + 1) % len(p.mem)
	return b
}

// BusStop implements Peripheral.
func (p *MemoryPeripheral) BusStop() {
	p.ptrPending = true
}

// EchoPeripheral buffers written bytes and plays them back on read, oldest
// first. Reads past the buffered data return 0xFF, the idle bus level.
type EchoPeripheral struct {
	fifo []byte
}

// NewEchoPeripheral creates an empty echo device.
func NewEchoPeripheral() *EchoPeripheral {
	return &EchoPeripheral{}
}

// Pending returns how many buffered bytes remain.
func (p *EchoPeripheral) Pending() int {
	return len(p.fifo)
}

// BusWrite implements Peripheral.
func (p *EchoPeripheral) BusWrite(b byte) bool {
	p.fifo = append(p.fifo, b)
	return true
}

// BusRead implements Peripheral.
func (p *EchoPeripheral) BusRead(_ bool) byte {
	if len(p.fifo) == 0 {
		return 0xFF
	}
	b := p.fifo[0]
	p.fifo = p.fifo[1:]
	return b
}

// BusStop implements Peripheral.
func (*EchoPeripheral) BusStop() {}

// NackPeripheral acknowledges its address but refuses data after Limit
// bytes, the way a device mid write-cycle does. Limit zero refuses
// everything.
type NackPeripheral struct {
	Limit int
	seen  int
}

// BusWrite implements Peripheral.
func (p *NackPeripheral) BusWrite(_ byte) bool {
	p.seen++
	return p.seen <= p.Limit
}

// BusRead implements Peripheral.
func (*NackPeripheral) BusRead(_ bool) byte {
	return 0xFF
}

// BusStop implements Peripheral.
func (p *NackPeripheral) BusStop() {
	p.seen = 0
}
