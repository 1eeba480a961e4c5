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

package main

import (
	"fmt"

	i2cm "github.com/GaryOtt/go-i2cm"
	"github.com/GaryOtt/go-i2cm/platform/i2cdev"
)

// openI2CDev opens the raw i2c-dev backend over the given device nodes.
func openI2CDev(paths []string) (i2cm.Platform, error) {
	platform, err := i2cdev.New(paths...)
	if err != nil {
		return nil, fmt.Errorf("failed to open i2cdev platform: %w", err)
	}
	return platform, nil
}

// recoverBus clocks a stuck bus free through the i2cdev backend's GPIO
// recovery. The device node stays closed while its lines are driven.
func recoverBus(path, chip string, sclOffset, sdaOffset int) error {
	platform, err := i2cdev.New(path)
	if err != nil {
		return fmt.Errorf("failed to open i2cdev platform: %w", err)
	}
	defer func() { _ = platform.Close() }()

	return platform.Recover(0, chip, sclOffset, sdaOffset)
}
