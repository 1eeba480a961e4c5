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

	"github.com/GaryOtt/go-i2cm/internal/bufpool"
)

// Dev binds a driver to one peripheral: a bus and a 7-bit address. It adds
// the register access patterns most devices speak, on top of the driver's
// raw transfers. All calls send a stop condition except the address phase
// of a register read, which uses a repeated start.
type Dev struct {
	driver *Driver
	bus    Bus
	addr   byte
}

// NewDev binds a peripheral at addr on bus.
func NewDev(driver *Driver, bus Bus, addr byte) *Dev {
	return &Dev{driver: driver, bus: bus, addr: addr}
}

// Bus returns the bound bus.
func (v *Dev) Bus() Bus {
	return v.bus
}

// Addr returns the bound address.
func (v *Dev) Addr() byte {
	return v.addr
}

// Write sends data to the peripheral.
func (v *Dev) Write(data []byte) error {
	return v.driver.WriteContext(context.Background(), v.bus, v.addr, data, true)
}

// Read receives n bytes from the peripheral.
func (v *Dev) Read(n int) ([]byte, error) {
	return v.driver.ReadContext(context.Background(), v.bus, v.addr, n, true)
}

// WriteReg writes data to a register: one transfer carrying the register
// number followed by the payload.
func (v *Dev) WriteReg(reg byte, data []byte) error {
	return v.WriteRegContext(context.Background(), reg, data)
}

// ReadReg reads n bytes from a register: the register number without a stop
// condition, then the read under a repeated start.
func (v *Dev) ReadReg(reg byte, n int) ([]byte, error) {
	return v.ReadRegContext(context.Background(), reg, n)
}

// WriteContext is Write with context support.
func (v *Dev) WriteContext(ctx context.Context, data []byte) error {
	return v.driver.WriteContext(ctx, v.bus, v.addr, data, true)
}

// ReadContext is Read with context support.
func (v *Dev) ReadContext(ctx context.Context, n int) ([]byte, error) {
	return v.driver.ReadContext(ctx, v.bus, v.addr, n, true)
}

// WriteRegContext is WriteReg with context support.
func (v *Dev) WriteRegContext(ctx context.Context, reg byte, data []byte) error {
	buf := bufpool.Get(1 + len(data))
	defer bufpool.Put(buf)
	buf[0] = reg
	copy(buf[1:], data)
	return v.driver.WriteContext(ctx, v.bus, v.addr, buf, true)
}

// ReadRegContext is ReadReg with context support.
func (v *Dev) ReadRegContext(ctx context.Context, reg byte, n int) ([]byte, error) {
	if err := v.driver.WriteContext(ctx, v.bus, v.addr, []byte{reg}, false); err != nil {
		return nil, err
	}
	return v.driver.ReadContext(ctx, v.bus, v.addr, n, true)
}
