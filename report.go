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
	"io"
	"sync"
)

// Severity classifies a reported condition.
type Severity int

// Report severities.
const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityInfo
)

// String returns the severity name.
func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	default:
		return "unknown"
	}
}

// Reporter receives driver failure reports. The driver reports each failed
// operation exactly once, with the same message the returned error carries,
// so callers that only watch the sink still see every failure.
type Reporter interface {
	Report(severity Severity, format string, args ...any)
}

// NopReporter discards all reports. It is the default sink.
type NopReporter struct{}

// Report implements Reporter.
func (NopReporter) Report(Severity, string, ...any) {}

// WriterReporter writes reports as single lines to an io.Writer, typically
// os.Stderr. Safe for concurrent use.
type WriterReporter struct {
	w  io.Writer
	mu sync.Mutex
}

// NewWriterReporter creates a reporter writing to w.
func NewWriterReporter(w io.Writer) *WriterReporter {
	return &WriterReporter{w: w}
}

// Report implements Reporter.
func (r *WriterReporter) Report(severity Severity, format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = fmt.Fprintf(r.w, "%s: %s\n", severity, fmt.Sprintf(format, args...))
}

// Ensure both reporters implement the Reporter interface
var (
	_ Reporter = NopReporter{}
	_ Reporter = (*WriterReporter)(nil)
)
