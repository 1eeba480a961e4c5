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

import "strconv"

// Pin identifies a platform pin by number. PinNone marks an unset pin, which
// Setup will try to resolve through the driver's PinResolver before handing
// the configuration to the platform.
type Pin int

// PinNone is the unset pin value.
const PinNone Pin = -1

// IsValid reports whether the pin carries a real pin number.
func (p Pin) IsValid() bool {
	return p >= 0
}

// String returns the pin number, or "none" for an unset pin.
func (p Pin) String() string {
	if !p.IsValid() {
		return "none"
	}
	return strconv.Itoa(int(p))
}

// SignalRole names the two bus signals a pin can carry.
type SignalRole int

// Bus signal roles.
const (
	SignalSCL SignalRole = iota
	SignalSDA
)

// String returns the conventional signal name.
func (r SignalRole) String() string {
	if r == SignalSCL {
		return "SCL"
	}
	return "SDA"
}

// PinResolver supplies default pins for a bus when the caller leaves them
// unset. Returning PinNone means the resolver has no default either; the
// platform then rejects the configuration.
type PinResolver interface {
	FindPinForFunction(bus Bus, role SignalRole) Pin
}

// BusPins holds the pin pair for one bus.
type BusPins struct {
	SCL Pin
	SDA Pin
}

// StaticPinMap is a fixed table of default pins per bus, for boards whose
// routing is known at build time.
type StaticPinMap map[Bus]BusPins

// FindPinForFunction returns the mapped pin for the bus and role, or PinNone
// when the bus has no entry.
func (m StaticPinMap) FindPinForFunction(bus Bus, role SignalRole) Pin {
	pins, ok := m[bus]
	if !ok {
		return PinNone
	}
	if role == SignalSCL {
		return pins.SCL
	}
	return pins.SDA
}

var _ PinResolver = StaticPinMap(nil)
