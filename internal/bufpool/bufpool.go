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

// Package bufpool provides pooled byte buffers for transaction payloads.
// Most I2C transfers are a handful of bytes (an address, a register, a few
// data bytes), so two small size classes cover the hot path without
// allocating per command.
package bufpool

import "sync"

// Buffer size classes. Small covers register pokes and probes, Transfer
// covers block reads and page writes.
const (
	SmallSize    = 32
	TransferSize = 256
)

var (
	smallPool = sync.Pool{
		New: func() any {
			buf := make([]byte, SmallSize)
			return &buf
		},
	}
	transferPool = sync.Pool{
		New: func() any {
			buf := make([]byte, TransferSize)
			return &buf
		},
	}
)

// Get returns a buffer with at least the requested length. Buffers within
// the size classes come from a pool; larger requests fall back to a plain
// allocation that Put will discard.
func Get(size int) []byte {
	switch {
	case size <= SmallSize:
		buf := *smallPool.Get().(*[]byte)
		return buf[:size]
	case size <= TransferSize:
		buf := *transferPool.Get().(*[]byte)
		return buf[:size]
	default:
		return make([]byte, size)
	}
}

// Put returns a buffer to its pool. Buffers that do not match a size class
// (including ones grown past their original capacity) are left for the GC.
func Put(buf []byte) {
	if buf == nil {
		return
	}
	full := buf[:cap(buf)]
	switch cap(buf) {
	case SmallSize:
		smallPool.Put(&full)
	case TransferSize:
		transferPool.Put(&full)
	}
}
