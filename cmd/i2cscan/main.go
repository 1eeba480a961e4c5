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

// i2cscan probes I2C buses through the go-i2cm platform backends. With
// no mode flag it scans the address range and prints the classic
// 16-column grid; -read, -write, -list and -recover select other modes.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	i2cm "github.com/GaryOtt/go-i2cm"
	"github.com/GaryOtt/go-i2cm/detect"
	"github.com/GaryOtt/go-i2cm/platform/periphio"
	"github.com/GaryOtt/go-i2cm/platform/sc18im"
)

type config struct {
	backend     string
	path        string
	readSpec    string
	writeSpec   string
	recoverSpec string
	bus         i2cm.Bus
	scl         int
	sda         int
	freq        uint
	first       uint
	last        uint
	noStop      bool
	list        bool
	debug       bool
}

// Package-level flag variables
var (
	flagBackend string
	flagPath    string
	flagBus     int
	flagSCL     int
	flagSDA     int
	flagFreq    uint
	flagFirst   uint
	flagLast    uint
	flagRead    string
	flagWrite   string
	flagNoStop  bool
	flagList    bool
	flagRecover string
	flagDebug   bool
)

func init() {
	flag.StringVar(&flagBackend, "backend", detect.BackendPeriphIO, "Platform backend: periphio, i2cdev or sc18im")
	flag.StringVar(&flagPath, "path", "",
		"Device node or serial port, comma-separated for multiple buses (empty = host default bus for periphio)")
	flag.IntVar(&flagBus, "bus", 1, "Logical bus number")
	flag.IntVar(&flagSCL, "scl", -1, "SCL pin number (-1 = platform default)")
	flag.IntVar(&flagSDA, "sda", -1, "SDA pin number (-1 = platform default)")
	flag.UintVar(&flagFreq, "freq", 0, "Bus clock in Hz (0 = 100kHz)")
	flag.UintVar(&flagFirst, "first", 0x03, "First address of the scan range")
	flag.UintVar(&flagLast, "last", 0x77, "Last address of the scan range")
	flag.StringVar(&flagRead, "read", "", "Read bytes from a device, as addr:n (e.g. 0x50:4)")
	flag.StringVar(&flagWrite, "write", "", "Write hex bytes to a device, as addr:hex (e.g. 0x50:00a1)")
	flag.BoolVar(&flagNoStop, "no-stop", false,
		"Omit the stop condition after -write (register read pattern when combined with -read)")
	flag.BoolVar(&flagList, "list", false, "List candidate buses and exit")
	flag.StringVar(&flagRecover, "recover", "",
		"Recover a stuck bus via GPIO, as chip:scl:sda (e.g. gpiochip0:3:2; i2cdev, Linux only)")
	flag.BoolVar(&flagDebug, "debug", false, "Enable debug output and a session log file")
}

func parseConfig() (*config, error) {
	cfg := &config{
		backend:     strings.ToLower(flagBackend),
		path:        flagPath,
		bus:         i2cm.Bus(flagBus),
		scl:         flagSCL,
		sda:         flagSDA,
		freq:        flagFreq,
		first:       flagFirst,
		last:        flagLast,
		readSpec:    flagRead,
		writeSpec:   flagWrite,
		recoverSpec: flagRecover,
		noStop:      flagNoStop,
		list:        flagList,
		debug:       flagDebug,
	}

	if flagBus < 1 || flagBus > i2cm.MaxBuses {
		return nil, fmt.Errorf("bus %d out of range (1-%d)", flagBus, i2cm.MaxBuses)
	}
	if cfg.first > cfg.last || cfg.last > uint(i2cm.AddressMax) {
		return nil, fmt.Errorf("scan range 0x%02X-0x%02X invalid (want first <= last <= 0x7F)",
			cfg.first, cfg.last)
	}

	if cfg.debug {
		i2cm.SetDebugEnabled(true)
	}

	return cfg, nil
}

// openPlatform builds the platform the -backend flag selects. i2cdev is
// reached through a build-tagged constructor because it only exists on
// Linux.
func openPlatform(cfg *config) (i2cm.Platform, error) {
	switch cfg.backend {
	case detect.BackendPeriphIO:
		names := splitPaths(cfg.path)
		if len(names) == 0 {
			// An empty name opens the host's default bus.
			names = []string{""}
		}
		platform, err := periphio.New(names...)
		if err != nil {
			return nil, fmt.Errorf("failed to open periphio platform: %w", err)
		}
		return platform, nil

	case detect.BackendI2CDev:
		paths := splitPaths(cfg.path)
		if len(paths) == 0 {
			return nil, errors.New("i2cdev backend requires -path (e.g. /dev/i2c-1)")
		}
		return openI2CDev(paths)

	case detect.BackendSC18IM:
		if cfg.path == "" {
			return nil, errors.New("sc18im backend requires -path (e.g. /dev/ttyUSB0)")
		}
		platform, err := sc18im.New(cfg.path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sc18im platform: %w", err)
		}
		return platform, nil

	default:
		return nil, fmt.Errorf("unknown backend %q (want periphio, i2cdev or sc18im)", cfg.backend)
	}
}

// splitPaths splits a comma-separated -path value into clean entries.
func splitPaths(path string) []string {
	if path == "" {
		return nil
	}
	var paths []string
	for _, p := range strings.Split(path, ",") {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

func runList(ctx context.Context, _ *config) error {
	candidates, err := detect.Candidates(ctx, detect.DefaultOptions())
	if errors.Is(err, detect.ErrNoBusesFound) {
		_, _ = fmt.Println("No candidate buses found.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("bus enumeration failed: %w", err)
	}

	for _, candidate := range candidates {
		_, _ = fmt.Println(candidate)
	}
	return nil
}

func runRecover(cfg *config) error {
	chip, scl, sda, err := parseRecoverSpec(cfg.recoverSpec)
	if err != nil {
		return err
	}

	paths := splitPaths(cfg.path)
	if len(paths) == 0 {
		return errors.New("recovery requires -path naming the stuck bus")
	}

	if err := recoverBus(paths[0], chip, scl, sda); err != nil {
		return fmt.Errorf("bus recovery failed: %w", err)
	}
	_, _ = fmt.Printf("Recovered %s: clocked out the stuck transfer and issued a stop.\n", paths[0])
	return nil
}

func runScan(ctx context.Context, driver *i2cm.Driver, cfg *config) error {
	_, _ = fmt.Printf("Scanning %s addresses 0x%02X-0x%02X...\n", cfg.bus, cfg.first, cfg.last)
	_, _ = fmt.Println("     0  1  2  3  4  5  6  7  8  9  a  b  c  d  e  f")

	found := 0
	for row := 0; row < 8; row++ {
		var line strings.Builder
		_, _ = fmt.Fprintf(&line, "%02x:", row*16)
		for col := 0; col < 16; col++ {
			addr := byte(row*16 + col) //nolint:gosec // bounded by the 0x00-0x7F grid
			if uint(addr) < cfg.first || uint(addr) > cfg.last {
				line.WriteString("   ")
				continue
			}

			if err := ctx.Err(); err != nil {
				return fmt.Errorf("scan canceled: %w", err)
			}

			present, err := driver.ProbeContext(ctx, cfg.bus, addr)
			if err != nil {
				return fmt.Errorf("probe of 0x%02X failed: %w", addr, err)
			}
			if present {
				_, _ = fmt.Fprintf(&line, " %02x", addr)
				found++
			} else {
				line.WriteString(" --")
			}
		}
		_, _ = fmt.Println(line.String())
	}

	if found == 0 {
		_, _ = fmt.Println("No devices responded.")
	} else {
		_, _ = fmt.Printf("%d device(s) responded.\n", found)
	}
	return nil
}

func runWrite(ctx context.Context, driver *i2cm.Driver, cfg *config) error {
	addr, data, err := parseWriteSpec(cfg.writeSpec)
	if err != nil {
		return err
	}

	if err := driver.WriteContext(ctx, cfg.bus, addr, data, !cfg.noStop); err != nil {
		return fmt.Errorf("write to 0x%02X failed: %w", addr, err)
	}
	_, _ = fmt.Printf("0x%02X: wrote % X\n", addr, data)
	return nil
}

func runRead(ctx context.Context, driver *i2cm.Driver, cfg *config) error {
	addr, n, err := parseReadSpec(cfg.readSpec)
	if err != nil {
		return err
	}

	data, err := driver.ReadContext(ctx, cfg.bus, addr, n, true)
	if err != nil {
		return fmt.Errorf("read from 0x%02X failed: %w", addr, err)
	}
	_, _ = fmt.Printf("0x%02X: % X\n", addr, data)
	return nil
}

// parseAddr parses a 7-bit device address in decimal or 0x-prefixed hex.
func parseAddr(s string) (byte, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil || v > uint64(i2cm.AddressMax) {
		return 0, fmt.Errorf("invalid device address %q (want 0x00-0x7F)", s)
	}
	return byte(v), nil
}

// parseReadSpec parses "addr:n" (e.g. "0x50:4").
func parseReadSpec(spec string) (addr byte, n int, err error) {
	addrPart, countPart, ok := strings.Cut(spec, ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid read spec %q (want addr:n)", spec)
	}
	if addr, err = parseAddr(addrPart); err != nil {
		return 0, 0, err
	}
	n, err = strconv.Atoi(countPart)
	if err != nil || n <= 0 {
		return 0, 0, fmt.Errorf("invalid read count %q", countPart)
	}
	return addr, n, nil
}

// parseWriteSpec parses "addr:hex" (e.g. "0x50:00a1"). Spaces, commas
// and 0x prefixes in the hex part are tolerated.
func parseWriteSpec(spec string) (addr byte, data []byte, err error) {
	addrPart, hexPart, ok := strings.Cut(spec, ":")
	if !ok {
		return 0, nil, fmt.Errorf("invalid write spec %q (want addr:hex)", spec)
	}
	if addr, err = parseAddr(addrPart); err != nil {
		return 0, nil, err
	}

	cleaned := strings.NewReplacer(" ", "", ",", "", "0x", "").Replace(strings.ToLower(hexPart))
	data, err = hex.DecodeString(cleaned)
	if err != nil {
		return 0, nil, fmt.Errorf("invalid hex data %q: %w", hexPart, err)
	}
	if len(data) == 0 {
		return 0, nil, fmt.Errorf("empty write data in %q", spec)
	}
	return addr, data, nil
}

// parseRecoverSpec parses "chip:scl:sda" (e.g. "gpiochip0:3:2").
func parseRecoverSpec(spec string) (chip string, scl, sda int, err error) {
	parts := strings.Split(spec, ":")
	if len(parts) != 3 || parts[0] == "" {
		return "", 0, 0, fmt.Errorf("invalid recover spec %q (want chip:scl:sda)", spec)
	}
	if scl, err = strconv.Atoi(parts[1]); err != nil || scl < 0 {
		return "", 0, 0, fmt.Errorf("invalid SCL line offset %q", parts[1])
	}
	if sda, err = strconv.Atoi(parts[2]); err != nil || sda < 0 {
		return "", 0, 0, fmt.Errorf("invalid SDA line offset %q", parts[2])
	}
	return parts[0], scl, sda, nil
}

func run(ctx context.Context, cfg *config) error {
	if cfg.list {
		return runList(ctx, cfg)
	}
	if cfg.recoverSpec != "" {
		return runRecover(cfg)
	}

	platform, err := openPlatform(cfg)
	if err != nil {
		return err
	}

	driver, err := i2cm.New(platform, i2cm.WithReporter(i2cm.NewWriterReporter(os.Stderr)))
	if err != nil {
		_ = platform.Close()
		return fmt.Errorf("failed to create driver: %w", err)
	}
	defer func() {
		if closeErr := driver.Close(); closeErr != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Failed to close driver: %v\n", closeErr)
		}
	}()

	if err := driver.Setup(cfg.bus, i2cm.BusConfig{
		SCL:     i2cm.Pin(cfg.scl),
		SDA:     i2cm.Pin(cfg.sda),
		Bitrate: uint32(cfg.freq), //nolint:gosec // flag-bounded
	}); err != nil {
		return fmt.Errorf("failed to set up %s: %w", cfg.bus, err)
	}

	ran := false
	if cfg.writeSpec != "" {
		if err := runWrite(ctx, driver, cfg); err != nil {
			return err
		}
		ran = true
	}
	if cfg.readSpec != "" {
		if err := runRead(ctx, driver, cfg); err != nil {
			return err
		}
		ran = true
	}
	if ran {
		return nil
	}

	return runScan(ctx, driver, cfg)
}

func main() {
	flag.Parse()
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	cfg, err := parseConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	if cfg.debug {
		if path, logErr := i2cm.InitSessionLog(); logErr == nil {
			defer func() { _ = i2cm.CloseSessionLog() }()
			_, _ = fmt.Fprintf(os.Stderr, "Session log: %s\n", path)
		}
	}

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		_, _ = fmt.Print("\nShutting down...\n")
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		if errors.Is(err, context.Canceled) {
			return 0
		}
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
