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

package tinygodrv

import (
	"context"
	"errors"
	"testing"

	i2cm "github.com/GaryOtt/go-i2cm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTx is one transfer recorded by fakeBus.
type fakeTx struct {
	w    []byte
	addr uint16
	rLen int
}

// fakeBus satisfies drivers.I2C without frequency control.
type fakeBus struct {
	txErr error
	txs   []fakeTx
	reads [][]byte
}

func (b *fakeBus) Tx(addr uint16, w, r []byte) error {
	b.txs = append(b.txs, fakeTx{
		addr: addr,
		w:    append([]byte(nil), w...),
		rLen: len(r),
	})
	if b.txErr != nil {
		return b.txErr
	}
	if len(r) > 0 && len(b.reads) > 0 {
		copy(r, b.reads[0])
		b.reads = b.reads[1:]
	}
	return nil
}

// configurableBus adds the SetBaudRate side machine.I2C exposes.
type configurableBus struct {
	fakeBus
	baudErr error
	baud    uint32
}

func (b *configurableBus) SetBaudRate(br uint32) error {
	if b.baudErr != nil {
		return b.baudErr
	}
	b.baud = br
	return nil
}

func installed(t *testing.T, bus *fakeBus) *Platform {
	t.Helper()
	p, err := New(bus)
	require.NoError(t, err)
	require.Equal(t, i2cm.StatusOK, p.Configure(0, i2cm.MasterConfig{ClockHz: 100_000}))
	require.Equal(t, i2cm.StatusOK, p.Install(0, i2cm.ModeMaster))
	return p
}

func writeTx(addr byte, data []byte, stop bool) *i2cm.Transaction {
	tx := i2cm.NewTransaction()
	tx.Start()
	tx.WriteByte(i2cm.AddressByte(addr, i2cm.DirWrite), true)
	tx.Write(data, true)
	if stop {
		tx.Stop()
	}
	return tx
}

func readTx(addr byte, n int) (*i2cm.Transaction, []byte) {
	dst := make([]byte, n)
	tx := i2cm.NewTransaction()
	tx.Start()
	tx.WriteByte(i2cm.AddressByte(addr, i2cm.DirRead), true)
	if n > 1 {
		tx.Read(dst[:n-1], i2cm.AckModeAck)
	}
	tx.Read(dst[n-1:], i2cm.AckModeNack)
	tx.Stop()
	return tx, dst
}

func probeTx(addr byte) *i2cm.Transaction {
	tx := i2cm.NewTransaction()
	tx.Start()
	tx.WriteByte(i2cm.AddressByte(addr, i2cm.DirWrite), true)
	tx.Stop()
	return tx
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	_, err := New()
	assert.Error(t, err, "at least one bus is required")

	_, err = New(&fakeBus{}, &fakeBus{}, &fakeBus{})
	assert.Error(t, err, "more buses than logical buses")

	_, err = New(&fakeBus{}, nil)
	assert.Error(t, err, "nil buses must be rejected")

	p, err := New(&fakeBus{}, &fakeBus{})
	require.NoError(t, err)
	assert.Equal(t, 2, p.Controllers())
}

func TestConfigure_AppliesBaudRate(t *testing.T) {
	t.Parallel()

	bus := &configurableBus{}
	p, err := New(bus)
	require.NoError(t, err)

	require.Equal(t, i2cm.StatusOK, p.Configure(0, i2cm.MasterConfig{ClockHz: 400_000}))
	assert.Equal(t, uint32(400_000), bus.baud)
}

func TestConfigure_BaudRefusal(t *testing.T) {
	t.Parallel()

	bus := &configurableBus{baudErr: errors.New("clock out of range")}
	p, err := New(bus)
	require.NoError(t, err)

	assert.Equal(t, i2cm.StatusInvalidArg, p.Configure(0, i2cm.MasterConfig{ClockHz: 400_000}))
}

func TestConfigure_NoFrequencyControl(t *testing.T) {
	t.Parallel()

	// A bus without SetBaudRate runs at whatever the board set up
	p, err := New(&fakeBus{})
	require.NoError(t, err)

	assert.Equal(t, i2cm.StatusOK, p.Configure(0, i2cm.MasterConfig{ClockHz: 400_000}))
}

func TestConfigure_Validation(t *testing.T) {
	t.Parallel()

	p, err := New(&fakeBus{})
	require.NoError(t, err)

	assert.Equal(t, i2cm.StatusInvalidArg, p.Configure(0, i2cm.MasterConfig{}),
		"zero clock must be rejected")
	assert.Equal(t, i2cm.StatusInvalidArg, p.Configure(1, i2cm.MasterConfig{ClockHz: 100_000}))
}

func TestInstallLifecycle(t *testing.T) {
	t.Parallel()

	bus := &fakeBus{}
	p, err := New(bus)
	require.NoError(t, err)
	require.Equal(t, i2cm.StatusOK, p.Configure(0, i2cm.MasterConfig{ClockHz: 100_000}))

	tx := writeTx(0x50, []byte{0x01}, true)
	defer tx.Release()
	assert.Equal(t, i2cm.StatusInvalidArg, p.Execute(context.Background(), 0, tx, 1000),
		"traffic before install must be refused")

	assert.Equal(t, i2cm.StatusInvalidArg, p.Install(0, i2cm.Mode(1)))
	require.Equal(t, i2cm.StatusOK, p.Install(0, i2cm.ModeMaster))

	tx2 := writeTx(0x50, []byte{0x01}, true)
	defer tx2.Release()
	require.Equal(t, i2cm.StatusOK, p.Execute(context.Background(), 0, tx2, 1000))

	require.Equal(t, i2cm.StatusOK, p.Uninstall(0))
	tx3 := writeTx(0x50, []byte{0x01}, true)
	defer tx3.Release()
	assert.Equal(t, i2cm.StatusInvalidArg, p.Execute(context.Background(), 0, tx3, 1000))

	assert.Len(t, bus.txs, 1)
}

func TestExecute_Write(t *testing.T) {
	t.Parallel()

	bus := &fakeBus{}
	p := installed(t, bus)

	tx := writeTx(0x50, []byte{0x10, 0x20}, true)
	defer tx.Release()
	require.Equal(t, i2cm.StatusOK, p.Execute(context.Background(), 0, tx, 1000))

	require.Len(t, bus.txs, 1)
	assert.Equal(t, uint16(0x50), bus.txs[0].addr)
	assert.Equal(t, []byte{0x10, 0x20}, bus.txs[0].w)
	assert.Equal(t, 0, bus.txs[0].rLen)
}

func TestExecute_Read(t *testing.T) {
	t.Parallel()

	bus := &fakeBus{reads: [][]byte{{0xAA, 0xBB}}}
	p := installed(t, bus)

	tx, dst := readTx(0x68, 2)
	defer tx.Release()
	require.Equal(t, i2cm.StatusOK, p.Execute(context.Background(), 0, tx, 1000))

	assert.Equal(t, []byte{0xAA, 0xBB}, dst)
	require.Len(t, bus.txs, 1)
	assert.Empty(t, bus.txs[0].w)
}

func TestExecute_FusedRegisterRead(t *testing.T) {
	t.Parallel()

	bus := &fakeBus{reads: [][]byte{{0x7E}}}
	p := installed(t, bus)

	dst := make([]byte, 1)
	tx := i2cm.NewTransaction()
	defer tx.Release()
	tx.Start()
	tx.WriteByte(i2cm.AddressByte(0x50, i2cm.DirWrite), true)
	tx.Write([]byte{0x08}, true)
	tx.Start()
	tx.WriteByte(i2cm.AddressByte(0x50, i2cm.DirRead), true)
	tx.Read(dst, i2cm.AckModeNack)
	tx.Stop()

	require.Equal(t, i2cm.StatusOK, p.Execute(context.Background(), 0, tx, 1000))

	require.Len(t, bus.txs, 1)
	assert.Equal(t, []byte{0x08}, bus.txs[0].w)
	assert.Equal(t, 1, bus.txs[0].rLen)
	assert.Equal(t, []byte{0x7E}, dst)
}

func TestExecute_PendingHeldAcrossCalls(t *testing.T) {
	t.Parallel()

	bus := &fakeBus{reads: [][]byte{{0x11, 0x22}}}
	p := installed(t, bus)

	wtx := writeTx(0x50, []byte{0x04}, false)
	defer wtx.Release()
	require.Equal(t, i2cm.StatusOK, p.Execute(context.Background(), 0, wtx, 1000))
	assert.Empty(t, bus.txs, "a held write must not reach the wire yet")

	rtx, dst := readTx(0x50, 2)
	defer rtx.Release()
	require.Equal(t, i2cm.StatusOK, p.Execute(context.Background(), 0, rtx, 1000))

	require.Len(t, bus.txs, 1)
	assert.Equal(t, []byte{0x04}, bus.txs[0].w, "the held write must fuse into the read transfer")
	assert.Equal(t, []byte{0x11, 0x22}, dst)
}

func TestExecute_ProbeDoesNotConsumeHeldWrite(t *testing.T) {
	t.Parallel()

	// Only a read continues a held write; a probe to the same address
	// flushes it first
	bus := &fakeBus{}
	p := installed(t, bus)

	wtx := writeTx(0x50, []byte{0x04}, false)
	defer wtx.Release()
	require.Equal(t, i2cm.StatusOK, p.Execute(context.Background(), 0, wtx, 1000))

	ptx := probeTx(0x50)
	defer ptx.Release()
	require.Equal(t, i2cm.StatusOK, p.Execute(context.Background(), 0, ptx, 1000))

	require.Len(t, bus.txs, 2)
	assert.Equal(t, []byte{0x04}, bus.txs[0].w)
	assert.Equal(t, 0, bus.txs[0].rLen)
	assert.Empty(t, bus.txs[1].w)
	assert.Equal(t, 1, bus.txs[1].rLen)
}

func TestExecute_BareProbeReadsOneByte(t *testing.T) {
	t.Parallel()

	bus := &fakeBus{}
	p := installed(t, bus)

	tx := probeTx(0x3C)
	defer tx.Release()
	require.Equal(t, i2cm.StatusOK, p.Execute(context.Background(), 0, tx, 1000))

	require.Len(t, bus.txs, 1)
	assert.Equal(t, uint16(0x3C), bus.txs[0].addr)
	assert.Equal(t, 1, bus.txs[0].rLen, "the probe degrades to a one-byte read")
}

func TestExecute_BusErrorRefusesTransfer(t *testing.T) {
	t.Parallel()

	bus := &fakeBus{txErr: errors.New("nack")}
	p := installed(t, bus)

	tx := writeTx(0x50, []byte{0x01}, true)
	defer tx.Release()
	assert.Equal(t, i2cm.StatusFail, p.Execute(context.Background(), 0, tx, 1000))
}

func TestExecute_SpentContextClearsPending(t *testing.T) {
	t.Parallel()

	bus := &fakeBus{reads: [][]byte{{0xEE}}}
	p := installed(t, bus)

	wtx := writeTx(0x50, []byte{0x04}, false)
	defer wtx.Release()
	require.Equal(t, i2cm.StatusOK, p.Execute(context.Background(), 0, wtx, 1000))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rtx, _ := readTx(0x50, 1)
	defer rtx.Release()
	require.Equal(t, i2cm.StatusTimeout, p.Execute(ctx, 0, rtx, 1000))

	rtx2, _ := readTx(0x50, 1)
	defer rtx2.Release()
	require.Equal(t, i2cm.StatusOK, p.Execute(context.Background(), 0, rtx2, 1000))
	require.Len(t, bus.txs, 1)
	assert.Empty(t, bus.txs[0].w, "a cleared pending write must not resurface")
}

func TestExecute_MalformedTransaction(t *testing.T) {
	t.Parallel()

	bus := &fakeBus{}
	p := installed(t, bus)

	tx := i2cm.NewTransaction()
	defer tx.Release()
	tx.Write([]byte{0x01}, true) // no start

	assert.Equal(t, i2cm.StatusInvalidArg, p.Execute(context.Background(), 0, tx, 1000))
	assert.Empty(t, bus.txs)
}

func TestUninstall_DiscardsPending(t *testing.T) {
	t.Parallel()

	bus := &fakeBus{}
	p := installed(t, bus)

	wtx := writeTx(0x50, []byte{0x04}, false)
	defer wtx.Release()
	require.Equal(t, i2cm.StatusOK, p.Execute(context.Background(), 0, wtx, 1000))

	require.Equal(t, i2cm.StatusOK, p.Uninstall(0))
	assert.Empty(t, bus.txs, "a held write is discarded on uninstall, not flushed")
}

func TestClose_LeavesBusesToTheBoard(t *testing.T) {
	t.Parallel()

	bus := &fakeBus{}
	p := installed(t, bus)

	require.NoError(t, p.Close())

	tx := writeTx(0x50, []byte{0x01}, true)
	defer tx.Release()
	assert.Equal(t, i2cm.StatusInvalidArg, p.Execute(context.Background(), 0, tx, 1000))
	assert.Empty(t, bus.txs)
}

func TestTicksFromMillis(t *testing.T) {
	t.Parallel()

	p, err := New(&fakeBus{})
	require.NoError(t, err)
	assert.Equal(t, i2cm.Ticks(1000), p.TicksFromMillis(1000))
}
