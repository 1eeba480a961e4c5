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
	"fmt"

	"github.com/GaryOtt/go-i2cm/internal/syncutil"
)

// Bus is a logical bus label as callers name buses. Labels are stable across
// platforms; how many of them are actually backed by hardware depends on the
// platform behind the driver.
type Bus int

// Logical bus labels.
const (
	Bus1 Bus = 1 + iota
	Bus2
)

// MaxBuses is the size of the logical bus namespace.
const MaxBuses = 2

// String returns the conventional bus name.
func (b Bus) String() string {
	if b < Bus1 || b > Bus(MaxBuses) {
		return fmt.Sprintf("I2C?(%d)", int(b))
	}
	return fmt.Sprintf("I2C%d", int(b))
}

// Controller is a zero-based index into the platform's physical controllers.
type Controller int

// Registry maps logical bus labels onto the platform's controllers and
// tracks which buses are currently installed. Bus labels map in order:
// Bus1 to controller 0, Bus2 to controller 1. A label beyond the
// controller count resolves to nothing, deterministically.
//
// The mapping is fixed at construction; only the installed flags mutate,
// so Resolve never takes the lock.
type Registry struct {
	mu          syncutil.RWMutex
	initialized [MaxBuses]bool
	controllers int
}

// NewRegistry creates a registry for the given number of controllers,
// clamped to 1..MaxBuses.
func NewRegistry(controllers int) *Registry {
	if controllers < 1 {
		controllers = 1
	}
	if controllers > MaxBuses {
		controllers = MaxBuses
	}
	return &Registry{controllers: controllers}
}

// Controllers returns how many controllers the registry maps.
func (r *Registry) Controllers() int {
	return r.controllers
}

// Resolve maps a logical bus to its controller. Buses outside the backed
// range return ErrBusNotSupported.
func (r *Registry) Resolve(bus Bus) (Controller, error) {
	if bus < Bus1 || bus > Bus(r.controllers) {
		return Controller(-1), ErrBusNotSupported
	}
	return Controller(bus - Bus1), nil
}

// Buses returns the logical buses this registry backs, in label order.
func (r *Registry) Buses() []Bus {
	buses := make([]Bus, r.controllers)
	for i := range buses {
		buses[i] = Bus1 + Bus(i)
	}
	return buses
}

// IsInitialized reports whether the bus is currently installed. Unbacked
// buses are never initialized.
func (r *Registry) IsInitialized(bus Bus) bool {
	if bus < Bus1 || bus > Bus(r.controllers) {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.initialized[bus-Bus1]
}

// SetInitialized records the installed state for a bus. Out-of-range buses
// are ignored.
func (r *Registry) SetInitialized(bus Bus, initialized bool) {
	if bus < Bus1 || bus > Bus(r.controllers) {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.initialized[bus-Bus1] = initialized
}
