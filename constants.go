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

// Direction bit carried in the low bit of the address byte on the wire.
const (
	DirWrite byte = 0
	DirRead  byte = 1
)

// AckMode selects the acknowledge level the master drives after each byte
// it receives. ACK tells the peripheral to keep sending, NACK marks the
// final byte of a read.
type AckMode byte

// Acknowledge levels as they appear on the wire (0 = ACK, 1 = NACK).
const (
	AckModeAck  AckMode = 0
	AckModeNack AckMode = 1
)

// String returns the conventional name for the acknowledge level.
func (m AckMode) String() string {
	if m == AckModeAck {
		return "ACK"
	}
	return "NACK"
}

const (
	// AddressMax is the highest valid 7-bit peripheral address.
	AddressMax byte = 0x7F

	// DefaultBitrate is used when a BusConfig leaves Bitrate zero
	// (100 kHz standard mode).
	DefaultBitrate uint32 = 100_000

	// DefaultCommandWaitMillis bounds how long a queued command sequence
	// may wait for the bus before the platform gives up.
	DefaultCommandWaitMillis uint32 = 1000
)

// AddressByte combines a 7-bit address with a direction bit into the byte
// sent on the wire after a start condition.
func AddressByte(addr, dir byte) byte {
	return addr<<1 | dir&1
}
