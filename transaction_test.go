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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransaction_BuilderQueuesInOrder(t *testing.T) {
	t.Parallel()

	dst := make([]byte, 2)
	tx := NewTransaction()
	defer tx.Release()

	ret := tx.Start().
		WriteByte(AddressByte(0x50, DirRead), true).
		Read(dst, AckModeAck).
		Stop()
	assert.Same(t, tx, ret, "builder methods must chain on the same transaction")

	ops := tx.Operations()
	require.Len(t, ops, 4)
	assert.Equal(t, OpStart, ops[0].Kind)
	assert.Equal(t, OpWrite, ops[1].Kind)
	assert.Equal(t, []byte{0xA1}, ops[1].Data)
	assert.True(t, ops[1].AckCheck)
	assert.Equal(t, OpRead, ops[2].Kind)
	assert.Equal(t, AckModeAck, ops[2].Ack)
	assert.Equal(t, OpStop, ops[3].Kind)
}

func TestTransaction_WriteCopiesData(t *testing.T) {
	t.Parallel()

	src := []byte{0x01, 0x02, 0x03}
	tx := NewTransaction()
	defer tx.Release()
	tx.Start().WriteByte(AddressByte(0x50, DirWrite), true).Write(src, true)

	// Caller may reuse its slice immediately
	src[0] = 0xEE
	src[2] = 0xEE

	ops := tx.Operations()
	require.Len(t, ops, 3)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, ops[2].Data)
}

func TestTransaction_EmptyWriteAndReadAreNoOps(t *testing.T) {
	t.Parallel()

	tx := NewTransaction()
	defer tx.Release()
	tx.Start().Write(nil, true).Write([]byte{}, true).Read(nil, AckModeAck)

	assert.Len(t, tx.Operations(), 1, "only the start should be queued")
}

func TestTransaction_ArenaGrowthKeepsEarlierData(t *testing.T) {
	t.Parallel()

	tx := NewTransaction()
	defer tx.Release()
	tx.Start().WriteByte(0xA0, true)

	// Overflow the initial arena so it has to grow
	big := make([]byte, 300)
	for i := range big {
		big[i] = byte(i)
	}
	tx.Write(big, true)

	ops := tx.Operations()
	require.Len(t, ops, 3)
	assert.Equal(t, []byte{0xA0}, ops[1].Data, "pre-growth data must survive arena growth")
	assert.Equal(t, big, ops[2].Data)
}

func TestTransaction_ReleaseIsIdempotent(t *testing.T) {
	t.Parallel()

	tx := NewTransaction()
	tx.Start().WriteByte(0xA0, true).Stop()

	tx.Release()
	tx.Release()
	assert.Nil(t, tx.Operations())
}

func TestSegments_SimpleWrite(t *testing.T) {
	t.Parallel()

	tx := NewTransaction()
	defer tx.Release()
	tx.Start().
		WriteByte(AddressByte(0x50, DirWrite), true).
		Write([]byte{0x10, 0x20}, true).
		Stop()

	segments, err := tx.Segments()
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.Equal(t, byte(0x50), segments[0].Addr)
	assert.Equal(t, []byte{0x10, 0x20}, segments[0].W)
	assert.Nil(t, segments[0].R)
	assert.True(t, segments[0].Stop)
}

func TestSegments_MergesContiguousReads(t *testing.T) {
	t.Parallel()

	dst := make([]byte, 3)
	tx := NewTransaction()
	defer tx.Release()
	tx.Start().
		WriteByte(AddressByte(0x50, DirRead), true).
		Read(dst[:2], AckModeAck).
		Read(dst[2:], AckModeNack).
		Stop()

	segments, err := tx.Segments()
	require.NoError(t, err)
	require.Len(t, segments, 1)

	seg := segments[0]
	assert.Equal(t, byte(0x50), seg.Addr)
	assert.Nil(t, seg.W)
	require.Len(t, seg.R, 3)
	assert.Same(t, &dst[0], &seg.R[0], "merged read must alias the caller's buffer")
	assert.True(t, seg.Stop)
}

func TestSegments_FusesWriteThenRead(t *testing.T) {
	t.Parallel()

	dst := make([]byte, 4)
	tx := NewTransaction()
	defer tx.Release()
	tx.Start().
		WriteByte(AddressByte(0x50, DirWrite), true).
		WriteByte(0x08, true).
		Start().
		WriteByte(AddressByte(0x50, DirRead), true).
		Read(dst, AckModeNack).
		Stop()

	segments, err := tx.Segments()
	require.NoError(t, err)
	require.Len(t, segments, 1, "register read must fuse into one combined segment")

	seg := segments[0]
	assert.Equal(t, byte(0x50), seg.Addr)
	assert.Equal(t, []byte{0x08}, seg.W)
	require.Len(t, seg.R, 4)
	assert.Same(t, &dst[0], &seg.R[0])
	assert.True(t, seg.Stop)
}

func TestSegments_DifferentAddressesStaySeparate(t *testing.T) {
	t.Parallel()

	tx := NewTransaction()
	defer tx.Release()
	tx.Start().
		WriteByte(AddressByte(0x50, DirWrite), true).
		WriteByte(0x01, true).
		Start().
		WriteByte(AddressByte(0x21, DirWrite), true).
		WriteByte(0x02, true).
		Stop()

	segments, err := tx.Segments()
	require.NoError(t, err)
	require.Len(t, segments, 2)

	assert.Equal(t, byte(0x50), segments[0].Addr)
	assert.Equal(t, []byte{0x01}, segments[0].W)
	assert.False(t, segments[0].Stop, "repeated start must not close the first segment")

	assert.Equal(t, byte(0x21), segments[1].Addr)
	assert.Equal(t, []byte{0x02}, segments[1].W)
	assert.True(t, segments[1].Stop)
}

func TestSegments_WriteWithoutStop(t *testing.T) {
	t.Parallel()

	tx := NewTransaction()
	defer tx.Release()
	tx.Start().WriteByte(AddressByte(0x24, DirWrite), true).WriteByte(0x55, true)

	segments, err := tx.Segments()
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.False(t, segments[0].Stop)
}

func TestSegments_AddressOnlyProbe(t *testing.T) {
	t.Parallel()

	tx := NewTransaction()
	defer tx.Release()
	tx.Start().WriteByte(AddressByte(0x3C, DirWrite), true).Stop()

	segments, err := tx.Segments()
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.Equal(t, byte(0x3C), segments[0].Addr)
	assert.Nil(t, segments[0].W)
	assert.Nil(t, segments[0].R)
	assert.True(t, segments[0].Stop)
}

func TestSegments_EmptyTransaction(t *testing.T) {
	t.Parallel()

	tx := NewTransaction()
	defer tx.Release()

	segments, err := tx.Segments()
	require.NoError(t, err)
	assert.Empty(t, segments)
}

func TestSegments_SplitReadRejected(t *testing.T) {
	t.Parallel()

	first := make([]byte, 2)
	second := make([]byte, 2)
	tx := NewTransaction()
	defer tx.Release()
	tx.Start().
		WriteByte(AddressByte(0x50, DirRead), true).
		Read(first, AckModeAck).
		Read(second, AckModeNack).
		Stop()

	_, err := tx.Segments()
	assert.ErrorIs(t, err, errSplitRead)
}

func TestSegments_MalformedSequences(t *testing.T) {
	t.Parallel()

	dst := make([]byte, 1)
	tests := []struct {
		build   func() *Transaction
		wantErr error
		name    string
	}{
		{
			name:    "write before start",
			build:   func() *Transaction { return NewTransaction().Write([]byte{1}, true) },
			wantErr: errNoStart,
		},
		{
			name:    "read before start",
			build:   func() *Transaction { return NewTransaction().Read(dst, AckModeAck) },
			wantErr: errNoStart,
		},
		{
			name:    "start then stop without address",
			build:   func() *Transaction { return NewTransaction().Start().Stop() },
			wantErr: errNoAddress,
		},
		{
			name:    "start then start",
			build:   func() *Transaction { return NewTransaction().Start().Start() },
			wantErr: errNoAddress,
		},
		{
			name: "trailing start",
			build: func() *Transaction {
				return NewTransaction().Start().WriteByte(0xA0, true).Start()
			},
			wantErr: errNoAddress,
		},
		{
			name: "read against write address",
			build: func() *Transaction {
				return NewTransaction().Start().WriteByte(AddressByte(0x50, DirWrite), true).Read(dst, AckModeNack)
			},
			wantErr: errDirConflict,
		},
		{
			name: "write against read address",
			build: func() *Transaction {
				return NewTransaction().Start().WriteByte(AddressByte(0x50, DirRead), true).WriteByte(0x01, true)
			},
			wantErr: errDirConflict,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tx := tt.build()
			defer tx.Release()
			_, err := tx.Segments()
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSegments_EmptyReadOperationRejected(t *testing.T) {
	t.Parallel()

	// The builder drops empty reads, so hand-build the malformed sequence a
	// platform could otherwise receive.
	tx := &Transaction{ops: []Operation{
		{Kind: OpStart},
		{Kind: OpWrite, Data: []byte{AddressByte(0x50, DirRead)}, AckCheck: true},
		{Kind: OpRead, Dst: nil, Ack: AckModeNack},
	}}

	_, err := tx.Segments()
	assert.ErrorIs(t, err, errEmptySegment)
}

func TestExtendSlice(t *testing.T) {
	t.Parallel()

	backing := make([]byte, 5)

	merged, ok := extendSlice(backing[:2], backing[2:4])
	require.True(t, ok)
	assert.Len(t, merged, 4)
	assert.Same(t, &backing[0], &merged[0])

	if _, ok := extendSlice(backing[:2], make([]byte, 2)); ok {
		t.Error("extendSlice merged slices from different arrays")
	}
}

func TestOpKind_String(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		want string
		kind OpKind
	}{
		{name: "start", kind: OpStart, want: "START"},
		{name: "write", kind: OpWrite, want: "WRITE"},
		{name: "read", kind: OpRead, want: "READ"},
		{name: "stop", kind: OpStop, want: "STOP"},
		{name: "unknown", kind: OpKind(9), want: "OP(9)"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.kind.String())
		})
	}
}
