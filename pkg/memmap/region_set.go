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

package memmap

import (
	"github.com/google/btree"

	"github.com/halfmoon-os/halfmoon/pkg/hostarch"
	"github.com/halfmoon-os/halfmoon/pkg/kernelerr"
)

// regionSetDegree is the btree degree for region sets. Address spaces
// rarely hold more than a few dozen regions.
const regionSetDegree = 8

// RegionSet is an ordered set of non-overlapping regions, keyed by base
// address. It is not synchronized; the owning address space serializes all
// access under its own mutex.
type RegionSet struct {
	tree *btree.BTreeG[*Region]
}

// NewRegionSet returns an empty RegionSet.
func NewRegionSet() *RegionSet {
	return &RegionSet{
		tree: btree.NewG(regionSetDegree, func(a, b *Region) bool {
			return a.Base < b.Base
		}),
	}
}

// Insert adds r to the set.
//
// Insert fails with kernelerr.InvalidAddress if the region is null-based,
// unaligned, or extends beyond the user half, and with kernelerr.Overlap if
// the region intersects any existing region (the executable image's
// segments included, since they are members of the set).
func (s *RegionSet) Insert(r *Region) error {
	if r.Base == 0 || !r.Base.IsPageAligned() || r.Length == 0 || r.Length%hostarch.PageSize != 0 {
		return kernelerr.InvalidAddress
	}
	end, ok := r.Base.AddLength(r.Length)
	if !ok || end > hostarch.MaxUserAddr {
		return kernelerr.InvalidAddress
	}

	ar := r.Range()

	// The only candidates for overlap are the rightmost region starting at
	// or below r.Base and the leftmost region starting above it.
	overlap := false
	s.tree.DescendLessOrEqual(r, func(prev *Region) bool {
		overlap = prev.Range().Overlaps(ar)
		return false
	})
	if !overlap {
		s.tree.AscendGreaterOrEqual(r, func(next *Region) bool {
			overlap = next.Range().Overlaps(ar)
			return false
		})
	}
	if overlap {
		return kernelerr.Overlap
	}

	s.tree.ReplaceOrInsert(r)
	return nil
}

// FindContaining returns the region containing addr, or nil.
func (s *RegionSet) FindContaining(addr hostarch.Addr) *Region {
	var found *Region
	s.tree.DescendLessOrEqual(&Region{Base: addr}, func(r *Region) bool {
		if r.Range().Contains(addr) {
			found = r
		}
		return false
	})
	return found
}

// RemoveExact removes and returns the region whose base address is exactly
// base. An address strictly inside a region is not its base and fails with
// kernelerr.NotMapped even though it is mapped; there is no partial unmap.
// Image regions are pinned for the life of the address space and also fail
// with kernelerr.NotMapped.
func (s *RegionSet) RemoveExact(base hostarch.Addr) (*Region, error) {
	r, ok := s.tree.Get(&Region{Base: base})
	if !ok || r.Image {
		return nil, kernelerr.NotMapped
	}
	s.tree.Delete(r)
	return r, nil
}

// ForEach calls f for every region in ascending base order until f returns
// false.
func (s *RegionSet) ForEach(f func(r *Region) bool) {
	s.tree.Ascend(f)
}

// Len returns the number of regions in the set.
func (s *RegionSet) Len() int {
	return s.tree.Len()
}
