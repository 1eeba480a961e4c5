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

//go:build linux

package i2cdev

import (
	"fmt"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

// i2cMsg mirrors the kernel's struct i2c_msg. The explicit padding keeps
// the buffer pointer aligned the way the kernel ABI lays it out.
type i2cMsg struct {
	addr    uint16
	flags   uint16
	len     uint16
	padding uint16
	buf     uintptr
}

// rdwrData mirrors the kernel's struct i2c_rdwr_ioctl_data.
type rdwrData struct {
	msgs  uintptr
	nmsgs uint32
}

// rawIoctl issues a value-argument ioctl.
func rawIoctl(fd, req, arg uintptr) error {
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, req, arg); errno != 0 {
		return fmt.Errorf("ioctl 0x%04X: %w", uint(req), errno)
	}
	return nil
}

// rawFuncs queries the adapter's functionality word.
func rawFuncs(fd uintptr) (uint64, error) {
	var caps uint64
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, ioctlFuncs, uintptr(unsafe.Pointer(&caps)))
	runtime.KeepAlive(&caps)
	if errno != 0 {
		return 0, fmt.Errorf("query adapter functionality: %w", errno)
	}
	return caps, nil
}

// rawTransfer runs one I2C_RDWR ioctl over the message vector. The msgs
// slice must not exceed maxVectorMsgs entries.
func rawTransfer(fd uintptr, msgs []busMessage) error {
	if len(msgs) == 0 {
		return nil
	}

	kmsgs := make([]i2cMsg, len(msgs))
	for i, m := range msgs {
		var flags uint16
		if m.read {
			flags = flagRead
		}
		kmsgs[i] = i2cMsg{
			addr:  uint16(m.addr),
			flags: flags,
			len:   uint16(len(m.buf)),
		}
		if len(m.buf) > 0 {
			kmsgs[i].buf = uintptr(unsafe.Pointer(&m.buf[0]))
		}
	}

	data := rdwrData{
		msgs:  uintptr(unsafe.Pointer(&kmsgs[0])),
		nmsgs: uint32(len(kmsgs)),
	}

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, ioctlRdwr, uintptr(unsafe.Pointer(&data)))

	// The kernel is done with the buffers once the syscall returns; keep
	// everything reachable until then.
	runtime.KeepAlive(kmsgs)
	runtime.KeepAlive(msgs)

	if errno != 0 {
		return fmt.Errorf("i2c transfer of %d messages: %w", len(msgs), errno)
	}
	return nil
}
