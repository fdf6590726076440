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

// Package hostarch defines the virtual machine's addressing model: the
// page geometry, the user/kernel address split, and the Addr and
// AccessType types used throughout the memory subsystem.
package hostarch

const (
	// PageShift is the binary log of the page size.
	PageShift = 12

	// PageSize is the size of a virtual page in bytes.
	PageSize = 1 << PageShift

	// PageMask masks the byte offset within a page.
	PageMask = PageSize - 1
)

// MaxUserAddr is the first address above the user half of the address
// space. Addresses at or above MaxUserAddr, including non-canonical
// addresses, are never valid for user mappings.
const MaxUserAddr Addr = 1 << 47

// KernelBase is the base of the canonical kernel half.
const KernelBase Addr = 0xffff_8000_0000_0000
