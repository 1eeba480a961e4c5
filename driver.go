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
)

// BusConfig is the caller-facing bus configuration for Setup. Unset pins
// (PinNone) are resolved through the driver's PinResolver; a zero Bitrate
// falls back to DefaultBitrate.
type BusConfig struct {
	SCL     Pin
	SDA     Pin
	Bitrate uint32
}

// Driver runs master-mode transactions over logical buses. It owns the
// bus-to-controller mapping, builds the command sequences, bounds every
// sequence with the platform's wait unit, and translates platform statuses
// into errors, reporting each failure once to the configured sink.
//
// Methods on a Driver are safe for concurrent use as long as the platform's
// Execute is; the registry serializes its own state. Concurrent Setup and
// traffic on the same bus is not coordinated, mirroring the underlying
// controllers.
type Driver struct {
	platform   Platform
	registry   *Registry
	pins       PinResolver
	reporter   Reporter
	waitMillis uint32
}

// Operation names used in errors and reports.
const (
	opSetup = "Setup"
	opWrite = "Write"
	opRead  = "Read"
	opProbe = "Probe"
)

// Option configures a Driver during New.
type Option func(*Driver) error

// WithRegistry replaces the registry built from the platform's controller
// count. Useful to expose fewer buses than the platform backs.
func WithRegistry(registry *Registry) Option {
	return func(d *Driver) error {
		if registry == nil {
			return errors.New("registry cannot be nil")
		}
		d.registry = registry
		return nil
	}
}

// WithPinResolver sets the resolver consulted for pins the caller leaves
// unset in BusConfig.
func WithPinResolver(resolver PinResolver) Option {
	return func(d *Driver) error {
		d.pins = resolver
		return nil
	}
}

// WithReporter sets the sink receiving one report per failed operation.
// The default sink discards reports.
func WithReporter(reporter Reporter) Option {
	return func(d *Driver) error {
		if reporter == nil {
			return errors.New("reporter cannot be nil")
		}
		d.reporter = reporter
		return nil
	}
}

// WithCommandWait overrides how long a queued command sequence may wait for
// the bus, in milliseconds.
func WithCommandWait(ms uint32) Option {
	return func(d *Driver) error {
		if ms == 0 {
			return errors.New("command wait must be positive")
		}
		d.waitMillis = ms
		return nil
	}
}

// New creates a driver on top of a platform. Without options the driver
// maps every platform controller to a logical bus, resolves no default
// pins, discards reports and bounds commands with DefaultCommandWaitMillis.
func New(platform Platform, opts ...Option) (*Driver, error) {
	if platform == nil {
		return nil, errors.New("platform cannot be nil")
	}

	driver := &Driver{
		platform:   platform,
		reporter:   NopReporter{},
		waitMillis: DefaultCommandWaitMillis,
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(driver); err != nil {
			return nil, err
		}
	}

	if driver.registry == nil {
		driver.registry = NewRegistry(platform.Controllers())
	}

	return driver, nil
}

// Registry returns the driver's bus registry.
func (d *Driver) Registry() *Registry {
	return d.registry
}

// Platform returns the platform behind the driver.
func (d *Driver) Platform() Platform {
	return d.platform
}

// Setup configures and installs a bus. Calling it on an installed bus tears
// the controller down first, so the call is idempotent and reconfiguration
// needs no separate teardown step.
//
// Unset pins are resolved through the PinResolver; the resolved
// configuration always carries explicit pullups, clock source and bitrate.
// A configuration the platform rejects leaves the bus uninstalled and is
// returned and reported as the platform's status, with no install attempt.
func (d *Driver) Setup(bus Bus, cfg BusConfig) error {
	controller, err := d.registry.Resolve(bus)
	if err != nil {
		return d.fail(opSetup, StatusNotSupported)
	}

	if d.registry.IsInitialized(bus) {
		// Mark uninstalled before touching the controller so a failed
		// reconfigure cannot leave a stale installed flag
		d.registry.SetInitialized(bus, false)
		if st := d.platform.Uninstall(controller); st != StatusOK {
			Debugf("Setup: uninstall of %s before reconfigure returned %v", bus, st)
		}
	}

	scl := cfg.SCL
	if !scl.IsValid() {
		scl = d.resolvePin(bus, SignalSCL)
	}
	sda := cfg.SDA
	if !sda.IsValid() {
		sda = d.resolvePin(bus, SignalSDA)
	}
	bitrate := cfg.Bitrate
	if bitrate == 0 {
		bitrate = DefaultBitrate
	}

	master := MasterConfig{
		SCL:         scl,
		SDA:         sda,
		SCLPullup:   true,
		SDAPullup:   true,
		ClockHz:     bitrate,
		ClockSource: ClockSourceDefault,
	}

	if st := d.platform.Configure(controller, master); st != StatusOK {
		// A rejected configuration ends the call; installing anyway would
		// activate a controller in an undefined state
		return d.fail(opSetup, st)
	}
	if st := d.platform.Install(controller, ModeMaster); st != StatusOK {
		return d.fail(opSetup, st)
	}

	d.registry.SetInitialized(bus, true)
	Debugf("Setup: %s installed, scl=%s sda=%s clock=%dHz", bus, scl, sda, bitrate)
	return nil
}

// Write sends data to the peripheral at addr on the given bus: start,
// address byte, data bytes, each requiring an ACK, then a stop condition if
// sendStop is set. An empty data slice addresses the peripheral without
// sending payload.
func (d *Driver) Write(bus Bus, addr byte, data []byte, sendStop bool) error {
	return d.WriteContext(context.Background(), bus, addr, data, sendStop)
}

// Read receives n bytes from the peripheral at addr on the given bus. The
// master ACKs every byte except the last, which it NACKs to end the
// transfer, then sends a stop condition if sendStop is set. Requesting zero
// or fewer bytes returns an empty slice without touching the bus.
func (d *Driver) Read(bus Bus, addr byte, n int, sendStop bool) ([]byte, error) {
	return d.ReadContext(context.Background(), bus, addr, n, sendStop)
}

// Probe checks whether a peripheral answers at addr: an address phase with
// no payload. A missing ACK means nobody is there and is not an error, and
// is not reported to the sink.
func (d *Driver) Probe(bus Bus, addr byte) (bool, error) {
	return d.ProbeContext(context.Background(), bus, addr)
}

// Reset uninstalls a bus if it is installed. Resetting an uninstalled or
// unbacked bus does nothing.
func (d *Driver) Reset(bus Bus) {
	controller, err := d.registry.Resolve(bus)
	if err != nil {
		return
	}
	if !d.registry.IsInitialized(bus) {
		return
	}
	d.registry.SetInitialized(bus, false)
	if st := d.platform.Uninstall(controller); st != StatusOK {
		Debugf("Reset: uninstall of %s returned %v", bus, st)
	}
}

// ResetAll uninstalls every installed bus.
func (d *Driver) ResetAll() {
	for _, bus := range d.registry.Buses() {
		d.Reset(bus)
	}
}

// Close resets all buses and releases the platform.
func (d *Driver) Close() error {
	d.ResetAll()
	if err := d.platform.Close(); err != nil {
		return fmt.Errorf("failed to close platform: %w", err)
	}
	return nil
}

// resolvePin consults the pin resolver for an unset pin.
func (d *Driver) resolvePin(bus Bus, role SignalRole) Pin {
	if d.pins == nil {
		return PinNone
	}
	pin := d.pins.FindPinForFunction(bus, role)
	Debugf("Setup: resolved %s pin for %s to %s", role, bus, pin)
	return pin
}

// fail translates a status, reports the failure once and returns the same
// error the caller gets.
func (d *Driver) fail(op string, st Status) error {
	err := translate(op, st)
	d.reporter.Report(SeverityError, "%s", err)
	return err
}
