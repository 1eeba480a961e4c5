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
	"sync"
)

// Mode is the controller role. Only master mode is defined; the type exists
// so platforms reject anything else explicitly.
type Mode int

// ModeMaster is the only supported controller role.
const ModeMaster Mode = 0

// String returns the mode name.
func (m Mode) String() string {
	if m == ModeMaster {
		return "master"
	}
	return "unknown"
}

// ClockSource selects the clock feeding the controller. The default source
// is whatever the platform considers always available; it is carried
// explicitly so a platform never has to guess.
type ClockSource int

// ClockSourceDefault is the platform's always-available clock.
const ClockSourceDefault ClockSource = 0

// String returns the clock source name.
func (c ClockSource) String() string {
	if c == ClockSourceDefault {
		return "default"
	}
	return "unknown"
}

// Ticks is a wait bound in the platform's own time unit. The driver obtains
// it through TicksFromMillis so the conversion stays with the platform that
// defines the unit.
type Ticks uint32

// MasterConfig is the fully resolved controller configuration the driver
// hands to Configure: no unset pins, no zero clock, pullups and clock
// source stated explicitly.
type MasterConfig struct {
	SCL         Pin
	SDA         Pin
	SCLPullup   bool
	SDAPullup   bool
	ClockHz     uint32
	ClockSource ClockSource
}

// Platform abstracts one family of I2C controllers: an MCU peripheral
// block, the kernel's i2c-dev adapters, a UART bridge chip. Every method
// reports a Status rather than an error; the driver owns the translation
// to errors so all platforms fail in the same vocabulary.
//
// Execute runs a queued transaction against an installed controller,
// waiting at most wait ticks for the bus. A context that expires or is
// canceled surfaces as StatusTimeout, the bounded-wait outcome. Executing
// on a controller that is not installed returns StatusInvalidArg.
type Platform interface {
	// Controllers returns how many controllers this platform backs.
	Controllers() int
	// Configure applies a resolved configuration to a controller.
	Configure(c Controller, cfg MasterConfig) Status
	// Install activates a configured controller in the given mode.
	Install(c Controller, mode Mode) Status
	// Uninstall deactivates a controller. Uninstalling an inactive
	// controller is harmless.
	Uninstall(c Controller) Status
	// Execute runs a transaction on an installed controller.
	Execute(ctx context.Context, c Controller, tx *Transaction, wait Ticks) Status
	// TicksFromMillis converts milliseconds to the platform's wait unit.
	TicksFromMillis(ms uint32) Ticks
	// Close releases platform resources.
	Close() error
}

// Mock platform operation names, the keys for status injection and call
// counting.
const (
	MockOpConfigure = "Configure"
	MockOpInstall   = "Install"
	MockOpUninstall = "Uninstall"
	MockOpExecute   = "Execute"
)

// MockExecution is one recorded Execute call: the controller, the wait
// bound, and a deep copy of the flattened segments with read destinations
// captured after they were filled.
type MockExecution struct {
	Segments   []Segment
	Controller Controller
	Wait       Ticks
}

// MockPlatform provides a mock implementation of Platform for testing
type MockPlatform struct {
	statusMap   map[string]Status
	callCount   map[string]int
	configs     map[Controller]MasterConfig
	installed   map[Controller]bool
	readData    map[byte][]byte
	executions  []MockExecution
	controllers int
	tickDivisor uint32
	closed      bool
	mu          sync.RWMutex
}

// NewMockPlatform creates a mock platform backing the given number of
// controllers.
func NewMockPlatform(controllers int) *MockPlatform {
	return &MockPlatform{
		controllers: controllers,
		tickDivisor: 1,
		statusMap:   make(map[string]Status),
		callCount:   make(map[string]int),
		configs:     make(map[Controller]MasterConfig),
		installed:   make(map[Controller]bool),
		readData:    make(map[byte][]byte),
	}
}

// SetStatus injects a status for an operation. Operations without an
// injection succeed.
func (m *MockPlatform) SetStatus(op string, st Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusMap[op] = st
}

// ClearStatus removes an injected status.
func (m *MockPlatform) ClearStatus(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.statusMap, op)
}

// SetReadData configures the bytes returned to read segments addressed to
// addr. Successive reads consume the data in order; exhausted data reads
// as 0xFF.
func (m *MockPlatform) SetReadData(addr byte, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readData[addr] = append([]byte(nil), data...)
}

// SetTickDivisor makes TicksFromMillis divide by d, so tests can verify the
// wait bound goes through the platform's conversion.
func (m *MockPlatform) SetTickDivisor(d uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d == 0 {
		d = 1
	}
	m.tickDivisor = d
}

// CallCount returns how many times an operation ran.
func (m *MockPlatform) CallCount(op string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.callCount[op]
}

// LastConfig returns the most recent configuration applied to a controller.
func (m *MockPlatform) LastConfig(c Controller) (MasterConfig, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg, ok := m.configs[c]
	return cfg, ok
}

// Installed reports whether a controller is currently installed.
func (m *MockPlatform) Installed(c Controller) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.installed[c]
}

// Executions returns the recorded Execute calls.
func (m *MockPlatform) Executions() []MockExecution {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]MockExecution, len(m.executions))
	copy(out, m.executions)
	return out
}

// Closed reports whether Close was called.
func (m *MockPlatform) Closed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// Reset clears all injected statuses, counters and recordings.
func (m *MockPlatform) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusMap = make(map[string]Status)
	m.callCount = make(map[string]int)
	m.configs = make(map[Controller]MasterConfig)
	m.installed = make(map[Controller]bool)
	m.readData = make(map[byte][]byte)
	m.executions = nil
	m.closed = false
}

// Controllers implements Platform.
func (m *MockPlatform) Controllers() int {
	return m.controllers
}

// Configure implements Platform.
func (m *MockPlatform) Configure(c Controller, cfg MasterConfig) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount[MockOpConfigure]++
	if st, exists := m.statusMap[MockOpConfigure]; exists {
		return st
	}
	m.configs[c] = cfg
	return StatusOK
}

// Install implements Platform.
func (m *MockPlatform) Install(c Controller, _ Mode) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount[MockOpInstall]++
	if st, exists := m.statusMap[MockOpInstall]; exists {
		return st
	}
	m.installed[c] = true
	return StatusOK
}

// Uninstall implements Platform.
func (m *MockPlatform) Uninstall(c Controller) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount[MockOpUninstall]++
	if st, exists := m.statusMap[MockOpUninstall]; exists {
		return st
	}
	m.installed[c] = false
	return StatusOK
}

// Execute implements Platform. Reads are served from SetReadData; the call
// is recorded with segments snapshotted after the fill.
func (m *MockPlatform) Execute(ctx context.Context, c Controller, tx *Transaction, wait Ticks) Status {
	// A spent context is the bounded-wait outcome
	if ctx.Err() != nil {
		return StatusTimeout
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount[MockOpExecute]++
	if st, exists := m.statusMap[MockOpExecute]; exists {
		return st
	}

	segments, err := tx.Segments()
	if err != nil {
		return StatusInvalidArg
	}

	for _, seg := range segments {
		if seg.R == nil {
			continue
		}
		data := m.readData[seg.Addr]
		n := copy(seg.R, data)
		for i := n; i < len(seg.R); i++ {
			seg.R[i] = 0xFF
		}
		m.readData[seg.Addr] = data[n:]
	}

	m.executions = append(m.executions, MockExecution{
		Controller: c,
		Wait:       wait,
		Segments:   copySegments(segments),
	})
	return StatusOK
}

// TicksFromMillis implements Platform.
func (m *MockPlatform) TicksFromMillis(ms uint32) Ticks {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Ticks(ms / m.tickDivisor)
}

// Close implements Platform.
func (m *MockPlatform) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func copySegments(segments []Segment) []Segment {
	out := make([]Segment, len(segments))
	for i, seg := range segments {
		out[i] = Segment{
			Addr: seg.Addr,
			Stop: seg.Stop,
			W:    append([]byte(nil), seg.W...),
			R:    append([]byte(nil), seg.R...),
		}
	}
	return out
}

// Ensure MockPlatform implements the Platform interface
var _ Platform = (*MockPlatform)(nil)
