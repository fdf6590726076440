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

package pagetable

import (
	"testing"

	"github.com/halfmoon-os/halfmoon/pkg/hostarch"
)

func TestEntryBits(t *testing.T) {
	for _, test := range []struct {
		name string
		e    Entry
		want uint64
	}{
		{
			name: "rw data page",
			e:    Entry{Present: true, Writable: true, User: true, NoExecute: true},
			want: BitPresent | BitWritable | BitUser | BitNoExecute,
		},
		{
			name: "text page",
			e:    Entry{Present: true, User: true},
			want: BitPresent | BitUser,
		},
		{
			name: "cow demoted page",
			e:    Entry{Present: true, User: true, NoExecute: true},
			want: BitPresent | BitUser | BitNoExecute,
		},
		{
			name: "empty",
			e:    Entry{},
			want: 0,
		},
	} {
		if got := test.e.Bits(); got != test.want {
			t.Errorf("%s: Bits() got %#x, wanted %#x", test.name, got, test.want)
		}
	}
}

func TestInstallLookupClear(t *testing.T) {
	pt := New()
	const va = hostarch.Addr(0x1000)

	if _, ok := pt.Lookup(va); ok {
		t.Fatal("Lookup on empty table succeeded")
	}

	e := Entry{Frame: 7, Present: true, Writable: true, User: true}
	pt.Install(va, e)
	if got, ok := pt.Lookup(va); !ok || got != e {
		t.Fatalf("Lookup: got (%+v, %t), wanted (%+v, true)", got, ok, e)
	}
	if got := pt.Len(); got != 1 {
		t.Errorf("Len: got %d, wanted 1", got)
	}

	cleared, ok := pt.Clear(va)
	if !ok || cleared != e {
		t.Fatalf("Clear: got (%+v, %t), wanted (%+v, true)", cleared, ok, e)
	}
	if _, ok := pt.Lookup(va); ok {
		t.Error("Lookup after Clear succeeded")
	}
	if _, ok := pt.Clear(va); ok {
		t.Error("second Clear succeeded")
	}
}

func TestSetWritable(t *testing.T) {
	pt := New()
	const va = hostarch.Addr(0x2000)

	if pt.SetWritable(va, false) {
		t.Error("SetWritable on missing entry returned true")
	}

	pt.Install(va, Entry{Frame: 1, Present: true, Writable: true, User: true, NoExecute: true})
	if !pt.SetWritable(va, false) {
		t.Fatal("SetWritable on present entry returned false")
	}
	e, _ := pt.Lookup(va)
	if e.Writable {
		t.Error("entry still writable after SetWritable(false)")
	}
	if !e.NoExecute {
		t.Error("SetWritable changed the no-execute bit")
	}
}

func TestUnalignedPanics(t *testing.T) {
	pt := New()
	defer func() {
		if recover() == nil {
			t.Error("Install at unaligned address did not panic")
		}
	}()
	pt.Install(0x1001, Entry{Present: true})
}
