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

// Package detect enumerates bus controllers a platform backend could
// drive: kernel i2c-dev nodes and serial ports that may carry a
// UART-to-I2C bridge. Enumeration is passive; nothing is opened or
// probed. Use Driver.Probe on a configured bus to check for devices.
package detect

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"go.bug.st/serial"
)

// Backend names reported in BusCandidate and accepted by
// Options.Backends.
const (
	// BackendPeriphIO drives kernel i2c-dev nodes through periph.io.
	BackendPeriphIO = "periphio"
	// BackendI2CDev drives kernel i2c-dev nodes directly over I2C_RDWR.
	BackendI2CDev = "i2cdev"
	// BackendSC18IM drives an SC18IM704-style bridge over a serial port.
	BackendSC18IM = "sc18im"
)

// Errors
var (
	// ErrNoBusesFound indicates enumeration ran but found nothing.
	ErrNoBusesFound = errors.New("no I2C buses found")
)

// BusCandidate is one enumerated controller.
type BusCandidate struct {
	// Backend that can drive this candidate.
	Backend string
	// Path is the device node or serial port (e.g. "/dev/i2c-1").
	Path string
	// Name is the short device name (e.g. "i2c-1", "ttyUSB0").
	Name string
}

// String returns a human-readable representation of the candidate.
func (c BusCandidate) String() string {
	return fmt.Sprintf("%s bus at %s", c.Backend, c.Path)
}

// Options configures enumeration.
type Options struct {
	// Backends filters which backends are enumerated (empty = all).
	Backends []string
	// IgnorePaths lists device paths to skip (e.g. ["/dev/ttyS0"]).
	IgnorePaths []string
}

// DefaultOptions returns options that enumerate every backend.
func DefaultOptions() Options {
	return Options{}
}

// Enumeration seams, replaced in tests.
var (
	globDevices = filepath.Glob
	listPorts   = serial.GetPortsList
	goos        = runtime.GOOS
)

// Candidates enumerates bus controllers available to the platform
// backends. Kernel i2c-dev nodes serve both the i2cdev and periphio
// backends; they are reported once, under i2cdev unless the filter asks
// for periphio alone. Returns ErrNoBusesFound when nothing matches.
func Candidates(ctx context.Context, opts Options) ([]BusCandidate, error) {
	var found []BusCandidate

	if backend, ok := kernelBackend(&opts); ok {
		nodes, err := kernelNodes(backend)
		if err != nil {
			return nil, err
		}
		found = append(found, nodes...)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("enumeration canceled: %w", err)
	}

	if opts.wantBackend(BackendSC18IM) {
		ports, err := bridgePorts()
		if err != nil {
			return nil, err
		}
		found = append(found, ports...)
	}

	found = filterIgnored(found, opts.IgnorePaths)
	if len(found) == 0 {
		return nil, ErrNoBusesFound
	}

	sort.Slice(found, func(i, j int) bool {
		if found[i].Backend != found[j].Backend {
			return found[i].Backend < found[j].Backend
		}
		return found[i].Path < found[j].Path
	})
	return found, nil
}

// kernelBackend picks which backend name kernel device nodes are
// reported under, honoring the filter.
func kernelBackend(opts *Options) (string, bool) {
	switch {
	case opts.wantBackend(BackendI2CDev):
		return BackendI2CDev, true
	case opts.wantBackend(BackendPeriphIO):
		return BackendPeriphIO, true
	default:
		return "", false
	}
}

// kernelNodes enumerates /dev/i2c-* device nodes. Only Linux exposes
// the i2c-dev character device.
func kernelNodes(backend string) ([]BusCandidate, error) {
	if goos != "linux" {
		return nil, nil
	}

	matches, err := globDevices("/dev/i2c-*")
	if err != nil {
		return nil, fmt.Errorf("failed to glob i2c device nodes: %w", err)
	}

	candidates := make([]BusCandidate, 0, len(matches))
	for _, path := range matches {
		candidates = append(candidates, BusCandidate{
			Backend: backend,
			Path:    path,
			Name:    filepath.Base(path),
		})
	}
	return candidates, nil
}

// bridgePorts enumerates serial ports that plausibly carry a
// UART-to-I2C bridge. Built-in UARTs and USB adapters qualify; virtual
// and modem ports are skipped.
func bridgePorts() ([]BusCandidate, error) {
	ports, err := listPorts()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	var candidates []BusCandidate
	for _, path := range ports {
		if !isLikelyBridgePort(path) {
			continue
		}
		candidates = append(candidates, BusCandidate{
			Backend: BackendSC18IM,
			Path:    path,
			Name:    filepath.Base(path),
		})
	}
	return candidates, nil
}

// isLikelyBridgePort checks whether a serial port path looks like
// something an SC18IM bridge could sit behind.
func isLikelyBridgePort(path string) bool {
	patterns := []string{
		"ttyusb",       // USB-serial adapters on Linux
		"ttyacm",       // CDC-ACM devices on Linux
		"ttyama",       // Pi built-in UART
		"cu.usbserial", // USB-serial adapters on macOS
		"cu.usbmodem",  // CDC-ACM devices on macOS
	}

	lowerPath := strings.ToLower(path)
	for _, pattern := range patterns {
		if strings.Contains(lowerPath, pattern) {
			return true
		}
	}

	// Windows serial ports carry no type information in the name.
	return strings.HasPrefix(strings.ToUpper(path), "COM")
}

// filterIgnored drops candidates whose path is on the ignore list.
func filterIgnored(candidates []BusCandidate, ignorePaths []string) []BusCandidate {
	if len(ignorePaths) == 0 {
		return candidates
	}

	filtered := candidates[:0]
	for _, c := range candidates {
		if isPathIgnored(c.Path, ignorePaths) {
			continue
		}
		filtered = append(filtered, c)
	}
	return filtered
}

// isPathIgnored checks a device path against the ignore list using
// normalized comparison.
func isPathIgnored(devicePath string, ignorePaths []string) bool {
	if devicePath == "" {
		return false
	}

	normalizedDevice := normalizedPath(devicePath)
	for _, ignorePath := range ignorePaths {
		if ignorePath == "" {
			continue
		}
		if devicePath == ignorePath || normalizedDevice == normalizedPath(ignorePath) {
			return true
		}
	}
	return false
}

// normalizedPath normalizes a device path for comparison
func normalizedPath(path string) string {
	// Lowercase for case-insensitive comparison on Windows
	return strings.ToLower(filepath.Clean(path))
}

func (o *Options) wantBackend(name string) bool {
	if len(o.Backends) == 0 {
		return true
	}
	for _, b := range o.Backends {
		if b == name {
			return true
		}
	}
	return false
}
