// Copyright 2026 The Kestrel Authors.
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

// Package kernelerr contains syscall error codes exported as error interface
// pointers. This allows for fast identity comparison and return operations,
// while the Errno method keeps the values convertible to the numbers the
// syscall layer reports to userspace.
package kernelerr

import (
	"golang.org/x/sys/unix"
)

// Error represents an internal kernel error with a corresponding errno.
//
// Error values are compared by identity; each errno used by the memory
// management subsystem has exactly one Error value.
type Error struct {
	errno   unix.Errno
	message string
}

// New creates a new Error. New is only exported for use by test doubles that
// need a distinguishable error; subsystem code returns the package-level
// values below.
func New(err unix.Errno, message string) *Error {
	return &Error{
		errno:   err,
		message: message,
	}
}

// Error implements error.Error.
func (e *Error) Error() string { return e.message }

// Errno returns the errno reported to userspace for this error.
func (e *Error) Errno() unix.Errno { return e.errno }

// The errors returned by the memory management subsystem. Semantics:
//
//   - EINVAL: misaligned or zero-length arguments, an mprotect range that
//     does not exactly match one mapping, or a CoW fault taken on a page that
//     is not marked copy-on-write.
//   - EFAULT: an address that is not covered by any mapping.
//   - ENOMEM: virtual window or physical frame exhaustion.
//   - EACCES: a first-touch fault on an already-backed page, or a write
//     fault on a mapping without write permission.
//   - ENOTSUP: a file-backed (non-anonymous) mapping request.
//   - ESRCH: a syscall or fault naming an address space the table does not
//     know.
var (
	ESRCH   = New(unix.ESRCH, "no such process")
	EINVAL  = New(unix.EINVAL, "invalid argument")
	EFAULT  = New(unix.EFAULT, "bad address")
	ENOMEM  = New(unix.ENOMEM, "out of memory")
	EACCES  = New(unix.EACCES, "permission denied")
	ENOTSUP = New(unix.ENOTSUP, "operation not supported")
)
