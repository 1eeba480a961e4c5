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

/*
Package i2cm drives I2C buses in master mode through interchangeable
platform backends.

Callers name buses with stable logical labels (Bus1, Bus2); the driver maps
them onto whatever physical controllers the platform actually backs, builds
each transfer as an explicit command sequence (start, address, data, stop),
bounds it with a wait the platform expresses in its own time unit, and
translates every platform status into a small set of sentinel errors.

Basic Usage:

	import (
	    "github.com/GaryOtt/go-i2cm"
	    "github.com/GaryOtt/go-i2cm/platform/periphio"
	)

	platform, err := periphio.New("/dev/i2c-1")
	if err != nil {
	    log.Fatal(err)
	}

	driver, err := i2cm.New(platform)
	if err != nil {
	    log.Fatal(err)
	}
	defer driver.Close()

	if err := driver.Setup(i2cm.Bus1, i2cm.BusConfig{Bitrate: 400_000}); err != nil {
	    log.Fatal(err)
	}

	// Raw transfers
	if err := driver.Write(i2cm.Bus1, 0x50, []byte{0x00}, true); err != nil {
	    log.Fatal(err)
	}
	data, err := driver.Read(i2cm.Bus1, 0x50, 4, true)

	// Or bind a peripheral and speak registers
	dev := i2cm.NewDev(driver, i2cm.Bus1, 0x50)
	id, err := dev.ReadReg(0x0F, 1)

Platform Selection:

Backends live under platform/ and all satisfy the Platform interface:

  - periphio: portable access through periph.io host adapters
  - i2cdev: direct Linux i2c-dev ioctls, plus gpiod bus recovery
  - sc18im: an SC18IM704 UART-to-I2C bridge over a serial port
  - tinygodrv: anything satisfying the TinyGo drivers I2C interface

Error Handling:

All failures unwrap to sentinel errors and keep the raw platform status:

	if errors.Is(err, i2cm.ErrNoAck) {
	    // peripheral absent or busy
	}
	if st, ok := i2cm.StatusCode(err); ok {
	    log.Printf("platform status: %v", st)
	}

Failed operations are also reported, once each, to the Reporter configured
with WithReporter; the default reporter discards them.

Thread Safety:

Driver operations are safe for concurrent use when the platform's Execute
is. Setup racing traffic on the same bus is not coordinated.
*/
package i2cm
