// Copyright 2025 The Halfmoon Authors.
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

// Package kernelerr contains the kernel's error values, exported as error
// interface pointers. Each error carries the errno-compatible code that the
// syscall layer reports to userspace. Errors are constructed once and
// compared by identity, allowing fast comparison and return operations.
package kernelerr

// Error is an internal error, usually mapping to an errno-style code for
// the syscall boundary.
type Error struct {
	code    int32
	message string
}

// New creates a new *Error. Errors are expected to be created once, at
// package initialization, and compared by identity thereafter.
func New(code int32, message string) *Error {
	if code <= 0 || code > 255 {
		panic("kernelerr: code outside the 1..255 syscall error range")
	}
	return &Error{code: code, message: message}
}

// Error implements error.Error.
func (e *Error) Error() string { return e.message }

// Code returns the positive errno-compatible code.
func (e *Error) Code() int32 { return e.code }

// The errno codes follow the conventional Unix numbering so that user
// programs built against a standard errno.h observe familiar values.
const (
	codeNoEntry    = 2  // ENOENT
	codeNoThread   = 3  // ESRCH
	codeBadFD      = 9  // EBADF
	codeNoMemory   = 12 // ENOMEM
	codeNoAccess   = 13 // EACCES
	codeBadAddress = 14 // EFAULT
	codeExists     = 17 // EEXIST
	codeInvalid    = 22 // EINVAL
)

var (
	// InvalidAddress indicates a null, kernel-half, or misaligned address.
	InvalidAddress = New(codeBadAddress, "invalid address")

	// Overlap indicates that a requested mapping collides with an existing
	// region or with the process image.
	Overlap = New(codeExists, "mapping overlaps an existing region")

	// BadDescriptor indicates an fd that is unknown or is one of the
	// standard streams, which may not back a mapping.
	BadDescriptor = New(codeBadFD, "bad file descriptor")

	// NotMapped indicates an operation on an address with no exact region,
	// such as munmap at an interior offset.
	NotMapped = New(codeNoEntry, "no mapping at address")

	// ResourceExhausted indicates that no frames or address-space memory
	// remain.
	ResourceExhausted = New(codeNoMemory, "out of memory")

	// PermissionDenied indicates an access beyond a region's permissions,
	// including zero-protection mapping requests.
	PermissionDenied = New(codeNoAccess, "permission denied")

	// InvalidArgument indicates a structurally invalid argument, such as an
	// unaligned length or offset.
	InvalidArgument = New(codeInvalid, "invalid argument")

	// NoSuchThread indicates a join on an unknown thread id.
	NoSuchThread = New(codeNoThread, "no such thread")
)

// Status converts an error into the signed status returned at the syscall
// boundary: 0 for nil, and a value in -1..-255 otherwise.
func Status(err error) int64 {
	if err == nil {
		return 0
	}
	if e, ok := err.(*Error); ok {
		return -int64(e.code)
	}
	// Unknown errors are reported as a generic fault rather than escaping
	// the documented range.
	return -int64(codeBadAddress)
}
