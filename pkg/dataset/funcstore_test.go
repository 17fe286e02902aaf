package dataset

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/noperator/remnant/pkg/extract"
)

func TestFuncStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "funcache")

	store, err := OpenFuncStore(path, FuncStoreOptions{})
	if err != nil {
		t.Fatalf("OpenFuncStore() error = %v", err)
	}

	res := &extract.Result{
		Target: "mytarget",
		Funcs: map[string]*extract.FunctionRecord{
			"check##src@@buf.c": {
				Raw:  []string{"void check(void) {", "}"},
				Norm: []string{"voidcheck(void)"},
				Abst: []string{"voidcheck(void)"},
				Hash: "aaaa",
			},
			"parse##src@@parser.c": {
				Raw:  []string{"int parse(void) { return 0; }"},
				Norm: []string{"intparse(void)return0;"},
				Abst: []string{"intparse(void)return0;"},
				Hash: "bbbb",
			},
		},
		Files: 2,
	}
	if err := store.PutTarget(res); err != nil {
		t.Fatalf("PutTarget() error = %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := OpenFuncStore(path, FuncStoreOptions{ReadOnly: true})
	if err != nil {
		t.Fatalf("OpenFuncStore(ReadOnly) error = %v", err)
	}
	defer reopened.Close()

	if !reopened.HasTarget("mytarget") {
		t.Error("HasTarget(mytarget) = false after PutTarget")
	}
	if reopened.HasTarget("other") {
		t.Error("HasTarget(other) = true for an unknown target")
	}

	funcs, err := reopened.Functions("mytarget")
	if err != nil {
		t.Fatalf("Functions() error = %v", err)
	}
	if diff := cmp.Diff(res.Funcs, funcs); diff != "" {
		t.Errorf("Functions() mismatch (-want +got):\n%s", diff)
	}

	table, err := reopened.HashTable("mytarget")
	if err != nil {
		t.Fatalf("HashTable() error = %v", err)
	}
	want := map[string][]string{
		"aaaa": {"check##src@@buf.c"},
		"bbbb": {"parse##src@@parser.c"},
	}
	if diff := cmp.Diff(want, table); diff != "" {
		t.Errorf("HashTable() mismatch (-want +got):\n%s", diff)
	}
}

func TestOpenFuncStoreReadOnlyMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope")
	if _, err := OpenFuncStore(path, FuncStoreOptions{ReadOnly: true}); err == nil {
		t.Fatal("OpenFuncStore(ReadOnly) on a missing path succeeded")
	}
}
