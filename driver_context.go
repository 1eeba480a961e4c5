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

import "context"

// WriteContext is Write with context support. The context bounds the
// transaction on top of the driver's command wait; expiry surfaces as
// ErrBusTimeout.
func (d *Driver) WriteContext(ctx context.Context, bus Bus, addr byte, data []byte, sendStop bool) error {
	if addr > AddressMax {
		return d.fail(opWrite, StatusInvalidArg)
	}
	controller, err := d.registry.Resolve(bus)
	if err != nil {
		return d.fail(opWrite, StatusNotSupported)
	}

	tx := NewTransaction()
	defer tx.Release()
	tx.Start()
	tx.WriteByte(AddressByte(addr, DirWrite), true)
	tx.Write(data, true)
	if sendStop {
		tx.Stop()
	}

	return d.run(ctx, opWrite, controller, tx)
}

// ReadContext is Read with context support.
func (d *Driver) ReadContext(ctx context.Context, bus Bus, addr byte, n int, sendStop bool) ([]byte, error) {
	// Nothing to transfer; resolved before any validation so a zero-length
	// read never fails
	if n <= 0 {
		return []byte{}, nil
	}
	if addr > AddressMax {
		return nil, d.fail(opRead, StatusInvalidArg)
	}
	controller, err := d.registry.Resolve(bus)
	if err != nil {
		return nil, d.fail(opRead, StatusNotSupported)
	}

	data := make([]byte, n)
	tx := NewTransaction()
	defer tx.Release()
	tx.Start()
	tx.WriteByte(AddressByte(addr, DirRead), true)
	if n > 1 {
		tx.Read(data[:n-1], AckModeAck)
	}
	tx.Read(data[n-1:], AckModeNack)
	if sendStop {
		tx.Stop()
	}

	if err := d.run(ctx, opRead, controller, tx); err != nil {
		return nil, err
	}
	return data, nil
}

// ProbeContext is Probe with context support.
func (d *Driver) ProbeContext(ctx context.Context, bus Bus, addr byte) (bool, error) {
	if addr > AddressMax {
		return false, d.fail(opProbe, StatusInvalidArg)
	}
	controller, err := d.registry.Resolve(bus)
	if err != nil {
		return false, d.fail(opProbe, StatusNotSupported)
	}

	tx := NewTransaction()
	defer tx.Release()
	tx.Start()
	tx.WriteByte(AddressByte(addr, DirWrite), true)
	tx.Stop()

	wait := d.platform.TicksFromMillis(d.waitMillis)
	st := d.platform.Execute(ctx, controller, tx, wait)
	switch st {
	case StatusOK:
		return true, nil
	case StatusFail:
		// Nobody home; an expected outcome, not a failure to report
		return false, nil
	default:
		return false, d.failTraced(opProbe, st, tx)
	}
}

// run executes a built transaction and translates the outcome. Failures
// carry a trace of the queued sequence for diagnosis.
func (d *Driver) run(ctx context.Context, op string, controller Controller, tx *Transaction) error {
	wait := d.platform.TicksFromMillis(d.waitMillis)
	st := d.platform.Execute(ctx, controller, tx, wait)
	if st == StatusOK {
		return nil
	}
	return d.failTraced(op, st, tx)
}

// failTraced is fail plus a trace of the queued operations attached to the
// returned error. The report to the sink stays the plain single line.
func (d *Driver) failTraced(op string, st Status, tx *Transaction) error {
	err := d.fail(op, st)
	return traceTransaction(tx, op).WrapError(err)
}

// traceTransaction records the queued sequence of a failed transaction into
// a bounded trace buffer. Read entries show the destination as it stands,
// which may be partially filled.
func traceTransaction(tx *Transaction, op string) *TraceBuffer {
	tb := NewTraceBuffer("i2cm", op, 0)
	for _, qop := range tx.Operations() {
		switch qop.Kind {
		case OpStart:
			tb.RecordTX(nil, "START")
		case OpWrite:
			note := "write"
			if !qop.AckCheck {
				note = "write, ack ignored"
			}
			tb.RecordTX(qop.Data, note)
		case OpRead:
			tb.RecordRX(qop.Dst, "read, "+qop.Ack.String())
		case OpStop:
			tb.RecordTX(nil, "STOP")
		}
	}
	return tb
}
