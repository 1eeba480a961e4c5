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

//go:build !linux

package main

import (
	"errors"

	i2cm "github.com/GaryOtt/go-i2cm"
)

// openI2CDev is a stub; the i2c-dev character device only exists on Linux.
func openI2CDev(_ []string) (i2cm.Platform, error) {
	return nil, errors.New("i2cdev backend is only available on Linux")
}

// recoverBus is a stub; GPIO bus recovery is only available on Linux.
func recoverBus(_, _ string, _, _ int) error {
	return errors.New("bus recovery is only available on Linux")
}
