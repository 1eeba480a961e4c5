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

package periphio

import (
	"context"
	"errors"
	"syscall"
	"testing"

	i2cm "github.com/GaryOtt/go-i2cm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// fakeTx is one transfer recorded by fakeBus.
type fakeTx struct {
	w    []byte
	addr uint16
	rLen int
}

// fakeBus is an in-memory i2c.BusCloser recording every transfer.
type fakeBus struct {
	txErr    error
	speedErr error
	txs      []fakeTx
	reads    [][]byte
	speed    physic.Frequency
	closed   bool
}

func (b *fakeBus) String() string { return "fake" }

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

func (b *fakeBus) SetSpeed(f physic.Frequency) error {
	if b.speedErr != nil {
		return b.speedErr
	}
	b.speed = f
	return nil
}

func (b *fakeBus) Close() error {
	b.closed = true
	return nil
}

// newFakePlatform builds a Platform whose controllers open fake buses,
// bypassing host init.
func newFakePlatform(buses ...*fakeBus) *Platform {
	names := make([]string, len(buses))
	for i := range names {
		names[i] = "fake"
	}
	next := 0
	return &Platform{
		names:   names,
		buses:   make([]i2c.BusCloser, len(buses)),
		configs: make([]i2cm.MasterConfig, len(buses)),
		pending: make([]pendingWrite, len(buses)),
		openBus: func(string) (i2c.BusCloser, error) {
			b := buses[next]
			next++
			return b, nil
		},
	}
}

func installed(t *testing.T, bus *fakeBus, clockHz uint32) *Platform {
	t.Helper()
	p := newFakePlatform(bus)
	require.Equal(t, i2cm.StatusOK, p.Configure(0, i2cm.MasterConfig{SCL: 22, SDA: 21, ClockHz: clockHz}))
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
	assert.Error(t, err, "at least one bus name is required")

	_, err = New("1", "2", "3")
	assert.Error(t, err, "more names than logical buses")
}

func TestConfigure(t *testing.T) {
	t.Parallel()

	p := newFakePlatform(&fakeBus{})

	assert.Equal(t, i2cm.StatusInvalidArg, p.Configure(0, i2cm.MasterConfig{SCL: 1, SDA: 2}),
		"zero clock must be rejected")
	assert.Equal(t, i2cm.StatusInvalidArg, p.Configure(1, i2cm.MasterConfig{ClockHz: 100_000}))
	assert.Equal(t, i2cm.StatusOK, p.Configure(0, i2cm.MasterConfig{SCL: 1, SDA: 2, ClockHz: 100_000}))
}

func TestInstall_AppliesClock(t *testing.T) {
	t.Parallel()

	bus := &fakeBus{}
	installed(t, bus, 400_000)

	assert.Equal(t, physic.Frequency(400_000)*physic.Hertz, bus.speed)
}

func TestInstall_SpeedRefusalIsTolerated(t *testing.T) {
	t.Parallel()

	bus := &fakeBus{speedErr: errors.New("fixed-speed adapter")}
	p := newFakePlatform(bus)
	require.Equal(t, i2cm.StatusOK, p.Configure(0, i2cm.MasterConfig{ClockHz: 400_000}))

	// Adapters that cannot change speed still run at their default
	assert.Equal(t, i2cm.StatusOK, p.Install(0, i2cm.ModeMaster))
}

func TestInstall_OpenFailure(t *testing.T) {
	t.Parallel()

	p := &Platform{
		names:   []string{"missing"},
		buses:   make([]i2c.BusCloser, 1),
		configs: make([]i2cm.MasterConfig, 1),
		pending: make([]pendingWrite, 1),
		openBus: func(string) (i2c.BusCloser, error) {
			return nil, errors.New("no such bus")
		},
	}
	require.Equal(t, i2cm.StatusOK, p.Configure(0, i2cm.MasterConfig{ClockHz: 100_000}))
	assert.Equal(t, i2cm.StatusInvalidArg, p.Install(0, i2cm.ModeMaster))
}

func TestInstall_BadMode(t *testing.T) {
	t.Parallel()

	p := newFakePlatform(&fakeBus{})
	assert.Equal(t, i2cm.StatusInvalidArg, p.Install(0, i2cm.Mode(2)))
}

func TestInstall_ReinstallClosesPrevious(t *testing.T) {
	t.Parallel()

	first := &fakeBus{}
	second := &fakeBus{}
	opened := []*fakeBus{first, second}
	next := 0
	p := &Platform{
		names:   []string{"fake"},
		buses:   make([]i2c.BusCloser, 1),
		configs: make([]i2cm.MasterConfig, 1),
		pending: make([]pendingWrite, 1),
		openBus: func(string) (i2c.BusCloser, error) {
			b := opened[next]
			next++
			return b, nil
		},
	}

	require.Equal(t, i2cm.StatusOK, p.Configure(0, i2cm.MasterConfig{ClockHz: 100_000}))
	require.Equal(t, i2cm.StatusOK, p.Install(0, i2cm.ModeMaster))
	require.Equal(t, i2cm.StatusOK, p.Install(0, i2cm.ModeMaster))

	assert.True(t, first.closed, "reinstall must not leak the previous descriptor")
	assert.False(t, second.closed)
}

func TestUninstall(t *testing.T) {
	t.Parallel()

	bus := &fakeBus{}
	p := installed(t, bus, 100_000)

	require.Equal(t, i2cm.StatusOK, p.Uninstall(0))
	assert.True(t, bus.closed)

	// Uninstalling an inactive controller is harmless
	assert.Equal(t, i2cm.StatusOK, p.Uninstall(0))
}

func TestExecute_Write(t *testing.T) {
	t.Parallel()

	bus := &fakeBus{}
	p := installed(t, bus, 100_000)

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

	bus := &fakeBus{reads: [][]byte{{0xAA, 0xBB, 0xCC}}}
	p := installed(t, bus, 100_000)

	tx, dst := readTx(0x68, 3)
	defer tx.Release()
	require.Equal(t, i2cm.StatusOK, p.Execute(context.Background(), 0, tx, 1000))

	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC}, dst)
	require.Len(t, bus.txs, 1)
	assert.Empty(t, bus.txs[0].w)
	assert.Equal(t, 3, bus.txs[0].rLen)
}

func TestExecute_FusedRegisterRead(t *testing.T) {
	t.Parallel()

	// Write-without-stop and the read in one transaction fuse into a single
	// write-then-read transfer
	bus := &fakeBus{reads: [][]byte{{0x7E}}}
	p := installed(t, bus, 100_000)

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
	p := installed(t, bus, 100_000)

	// The register pointer write travels in its own transaction, stopless
	wtx := writeTx(0x50, []byte{0x04}, false)
	defer wtx.Release()
	require.Equal(t, i2cm.StatusOK, p.Execute(context.Background(), 0, wtx, 1000))
	assert.Empty(t, bus.txs, "a held write must not reach the wire yet")

	rtx, dst := readTx(0x50, 2)
	defer rtx.Release()
	require.Equal(t, i2cm.StatusOK, p.Execute(context.Background(), 0, rtx, 1000))

	require.Len(t, bus.txs, 1)
	assert.Equal(t, []byte{0x04}, bus.txs[0].w, "the held write must fuse into the read transfer")
	assert.Equal(t, 2, bus.txs[0].rLen)
	assert.Equal(t, []byte{0x11, 0x22}, dst)
}

func TestExecute_PendingFlushedOnAddressMismatch(t *testing.T) {
	t.Parallel()

	bus := &fakeBus{}
	p := installed(t, bus, 100_000)

	wtx := writeTx(0x50, []byte{0x04}, false)
	defer wtx.Release()
	require.Equal(t, i2cm.StatusOK, p.Execute(context.Background(), 0, wtx, 1000))

	// A transfer to a different peripheral cannot continue the held write
	other := writeTx(0x51, []byte{0xFF}, true)
	defer other.Release()
	require.Equal(t, i2cm.StatusOK, p.Execute(context.Background(), 0, other, 1000))

	require.Len(t, bus.txs, 2)
	assert.Equal(t, uint16(0x50), bus.txs[0].addr)
	assert.Equal(t, []byte{0x04}, bus.txs[0].w)
	assert.Equal(t, uint16(0x51), bus.txs[1].addr)
}

func TestExecute_PendingFlushedBeforeNewWrite(t *testing.T) {
	t.Parallel()

	bus := &fakeBus{}
	p := installed(t, bus, 100_000)

	wtx := writeTx(0x50, []byte{0x04}, false)
	defer wtx.Release()
	require.Equal(t, i2cm.StatusOK, p.Execute(context.Background(), 0, wtx, 1000))

	// A fresh write to the same address is not a continuation either
	again := writeTx(0x50, []byte{0x05}, true)
	defer again.Release()
	require.Equal(t, i2cm.StatusOK, p.Execute(context.Background(), 0, again, 1000))

	require.Len(t, bus.txs, 2)
	assert.Equal(t, []byte{0x04}, bus.txs[0].w)
	assert.Equal(t, []byte{0x05}, bus.txs[1].w)
}

func TestExecute_BareProbeReadsOneByte(t *testing.T) {
	t.Parallel()

	bus := &fakeBus{}
	p := installed(t, bus, 100_000)

	tx := probeTx(0x3C)
	defer tx.Release()
	require.Equal(t, i2cm.StatusOK, p.Execute(context.Background(), 0, tx, 1000))

	require.Len(t, bus.txs, 1)
	assert.Empty(t, bus.txs[0].w)
	assert.Equal(t, 1, bus.txs[0].rLen, "the probe degrades to a one-byte read")
}

func TestExecute_ErrnoMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		name string
		want i2cm.Status
	}{
		{name: "remote io is a nack", err: syscall.Errno(121), want: i2cm.StatusFail},
		{name: "enxio is a nack", err: syscall.ENXIO, want: i2cm.StatusFail},
		{name: "einval", err: syscall.EINVAL, want: i2cm.StatusInvalidArg},
		{name: "etimedout", err: syscall.ETIMEDOUT, want: i2cm.StatusTimeout},
		{name: "plain error", err: errors.New("adapter exploded"), want: i2cm.StatusFail},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			bus := &fakeBus{txErr: tt.err}
			p := installed(t, bus, 100_000)

			tx := writeTx(0x50, []byte{0x01}, true)
			defer tx.Release()
			assert.Equal(t, tt.want, p.Execute(context.Background(), 0, tx, 1000))
		})
	}
}

func TestExecute_SpentContextClearsPending(t *testing.T) {
	t.Parallel()

	bus := &fakeBus{reads: [][]byte{{0xEE}}}
	p := installed(t, bus, 100_000)

	wtx := writeTx(0x50, []byte{0x04}, false)
	defer wtx.Release()
	require.Equal(t, i2cm.StatusOK, p.Execute(context.Background(), 0, wtx, 1000))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rtx, _ := readTx(0x50, 1)
	defer rtx.Release()
	require.Equal(t, i2cm.StatusTimeout, p.Execute(ctx, 0, rtx, 1000))

	// The held write died with the timed-out sequence
	rtx2, _ := readTx(0x50, 1)
	defer rtx2.Release()
	require.Equal(t, i2cm.StatusOK, p.Execute(context.Background(), 0, rtx2, 1000))
	require.Len(t, bus.txs, 1)
	assert.Empty(t, bus.txs[0].w, "a cleared pending write must not resurface")
}

func TestExecute_UninstalledController(t *testing.T) {
	t.Parallel()

	p := newFakePlatform(&fakeBus{})
	tx := writeTx(0x50, []byte{0x01}, true)
	defer tx.Release()

	assert.Equal(t, i2cm.StatusInvalidArg, p.Execute(context.Background(), 0, tx, 1000))
	assert.Equal(t, i2cm.StatusInvalidArg, p.Execute(context.Background(), 5, tx, 1000))
}

func TestExecute_MalformedTransaction(t *testing.T) {
	t.Parallel()

	bus := &fakeBus{}
	p := installed(t, bus, 100_000)

	tx := i2cm.NewTransaction()
	defer tx.Release()
	tx.Write([]byte{0x01}, true) // no start

	assert.Equal(t, i2cm.StatusInvalidArg, p.Execute(context.Background(), 0, tx, 1000))
	assert.Empty(t, bus.txs)
}

func TestUninstall_DiscardsPending(t *testing.T) {
	t.Parallel()

	bus := &fakeBus{}
	p := installed(t, bus, 100_000)

	wtx := writeTx(0x50, []byte{0x04}, false)
	defer wtx.Release()
	require.Equal(t, i2cm.StatusOK, p.Execute(context.Background(), 0, wtx, 1000))

	require.Equal(t, i2cm.StatusOK, p.Uninstall(0))
	assert.Empty(t, bus.txs, "a held write is discarded on uninstall, not flushed")
}

func TestClose(t *testing.T) {
	t.Parallel()

	first := &fakeBus{}
	second := &fakeBus{}
	p := newFakePlatform(first, second)
	require.Equal(t, i2cm.StatusOK, p.Configure(0, i2cm.MasterConfig{ClockHz: 100_000}))
	require.Equal(t, i2cm.StatusOK, p.Configure(1, i2cm.MasterConfig{ClockHz: 100_000}))
	require.Equal(t, i2cm.StatusOK, p.Install(0, i2cm.ModeMaster))
	require.Equal(t, i2cm.StatusOK, p.Install(1, i2cm.ModeMaster))

	require.NoError(t, p.Close())
	assert.True(t, first.closed)
	assert.True(t, second.closed)
}

func TestTicksFromMillis(t *testing.T) {
	t.Parallel()

	p := newFakePlatform(&fakeBus{})
	assert.Equal(t, i2cm.Ticks(1000), p.TicksFromMillis(1000))
}
