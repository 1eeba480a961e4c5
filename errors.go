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
	"context"
	"errors"
	"fmt"
	"syscall"
)

// Status is the raw result code a Platform returns from a controller
// operation. Zero means success; everything else is a failure the driver
// translates into one of the sentinel errors below. Platforms may pass
// through codes of their own (errnos, bridge status bytes), which surface
// as ErrUnknownStatus with the code preserved.
type Status int

// Well-known status codes. The named failure codes sit above 0x100 so that
// raw platform codes (Linux errnos top out well below that, bridge status
// bytes fit in a byte) can pass through without colliding.
const (
	StatusOK           Status = 0
	StatusFail         Status = -1
	StatusInvalidArg   Status = 0x102
	StatusNotSupported Status = 0x106
	StatusTimeout      Status = 0x107
)

// String returns a short name for the status, or the raw code in hex for
// codes the driver does not know.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusFail:
		return "fail"
	case StatusInvalidArg:
		return "invalid argument"
	case StatusNotSupported:
		return "not supported"
	case StatusTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("status 0x%X", int(s))
	}
}

// Failure categories for error handling
var (
	// Bus resolution errors - the logical bus has no controller behind it
	ErrBusNotSupported = errors.New("bus not supported on this platform")

	// Argument errors - rejected before or by the controller
	ErrInvalidArg = errors.New("parameter error")

	// Wire errors - the transaction ran and the peripheral refused it
	ErrNoAck = errors.New("slave doesn't ACK the transfer")

	// Contention errors - the bounded wait for the bus expired
	ErrBusTimeout = errors.New("operation timeout because the bus is busy")

	// Everything else - a platform code with no mapping
	ErrUnknownStatus = errors.New("unknown platform status")
)

// DriverError wraps a failed driver operation with the status code the
// platform returned. It unwraps to one of the sentinel errors, so callers
// can match with errors.Is while keeping the raw code for diagnostics.
type DriverError struct {
	Err    error  // Sentinel this status translates to
	Op     string // Operation that failed (Setup, Write, Read, Probe)
	Status Status // Raw platform status code
}

func (e *DriverError) Error() string {
	if errors.Is(e.Err, ErrUnknownStatus) {
		return fmt.Sprintf("%s: unknown error code %d", e.Op, int(e.Status))
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *DriverError) Unwrap() error {
	return e.Err
}

// translate maps a platform status to the error reported for op. It is the
// single point where raw codes become sentinel errors; StatusOK maps to nil.
func translate(op string, st Status) error {
	var sentinel error
	switch st {
	case StatusOK:
		return nil
	case StatusFail:
		sentinel = ErrNoAck
	case StatusInvalidArg:
		sentinel = ErrInvalidArg
	case StatusNotSupported:
		sentinel = ErrBusNotSupported
	case StatusTimeout:
		sentinel = ErrBusTimeout
	default:
		sentinel = ErrUnknownStatus
	}
	return &DriverError{Err: sentinel, Op: op, Status: st}
}

// IsTransient reports whether the error names a condition that can clear on
// its own: a missing ACK (device busy in a write cycle, or absent) or a bus
// that stayed busy past the wait bound. Argument and resolution errors are
// permanent until the caller changes something.
func IsTransient(err error) bool {
	return errors.Is(err, ErrNoAck) || errors.Is(err, ErrBusTimeout)
}

// StatusCode extracts the raw platform status from an error returned by the
// driver. The second result is false if the error did not come from a
// platform operation.
func StatusCode(err error) (Status, bool) {
	var de *DriverError
	if errors.As(err, &de) {
		return de.Status, true
	}
	return StatusOK, false
}

// errnoRemoteIO is how the Linux I2C stack reports a missing ACK. The
// constant only exists in the linux syscall tables, so it is spelled out
// here to keep this package portable.
const errnoRemoteIO = syscall.Errno(121)

// StatusFromErrno maps an errno from a kernel-backed controller to the
// status namespace. Codes with no mapping pass through raw and surface as
// ErrUnknownStatus after translation.
func StatusFromErrno(errno syscall.Errno) Status {
	switch errno {
	case 0:
		return StatusOK
	case syscall.EINVAL:
		return StatusInvalidArg
	case errnoRemoteIO, syscall.ENXIO, syscall.EIO, syscall.ENODEV:
		return StatusFail
	case syscall.ETIMEDOUT, syscall.EBUSY, syscall.EAGAIN:
		return StatusTimeout
	default:
		return Status(errno)
	}
}

// StatusFromError maps an arbitrary transfer error to the status namespace.
// Errnos go through StatusFromErrno, context expiry becomes the bounded-wait
// timeout, and anything else is reported as a refused transfer.
func StatusFromError(err error) Status {
	if err == nil {
		return StatusOK
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return StatusFromErrno(errno)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return StatusTimeout
	}
	return StatusFail
}
