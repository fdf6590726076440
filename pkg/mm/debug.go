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

package mm

import (
	"github.com/halfmoon-os/halfmoon/pkg/hostarch"
	"github.com/halfmoon-os/halfmoon/pkg/kernelerr"
)

// Debug introspection modes for GetPhys.
const (
	// PhysModeFrame returns the physical address backing a virtual
	// address.
	PhysModeFrame = 0

	// PhysModeBits returns the raw permission-bit vector of the live PTE.
	PhysModeBits = 1
)

// GetPhys reports the live translation for addr. Mode PhysModeFrame
// returns the backing physical address (frame base plus page offset); mode
// PhysModeBits returns the raw permission bits of the current entry.
//
// The result reflects the true current PTE, not the owning region's
// nominal permissions; copy-on-write deliberately desynchronizes the two
// and the whole point of this query is to observe that.
func (as *AddressSpace) GetPhys(addr hostarch.Addr, mode uint64) (uint64, error) {
	if !addr.InUserHalf() {
		return 0, kernelerr.InvalidAddress
	}

	as.mu.Lock()
	defer as.mu.Unlock()
	e, ok := as.pt.Lookup(addr.RoundDown())
	if !ok {
		return 0, kernelerr.NotMapped
	}
	switch mode {
	case PhysModeFrame:
		return e.Frame.Base() | addr.PageOffset(), nil
	case PhysModeBits:
		return e.Bits(), nil
	default:
		return 0, kernelerr.InvalidArgument
	}
}
