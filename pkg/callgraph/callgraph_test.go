package callgraph

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeSource(t *testing.T, dir, name, src string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestBuildCallers(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "buf.c", `
static int check_len(int len) {
	return len >= 0;
}

void copy_data(char *dst, const char *src, int len) {
	if (!check_len(len))
		return;
	memcpy(dst, src, len);
}
`)
	writeSource(t, dir, "main.c", `
int main(void) {
	char buf[16];
	copy_data(buf, "hi", 2);
	copy_data(buf, "yo", 2);
	return 0;
}
`)

	cg, err := Build(dir, []string{".c"})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	for _, name := range []string{"check_len", "copy_data", "main"} {
		if !cg.Has(name) {
			t.Errorf("Has(%q) = false", name)
		}
	}
	// memcpy is called but never defined here; it must not be a vertex.
	if cg.Has("memcpy") {
		t.Error("external call became a vertex")
	}

	if diff := cmp.Diff([]string{"copy_data"}, cg.Callers("check_len")); diff != "" {
		t.Errorf("Callers(check_len) mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"main"}, cg.Callers("copy_data")); diff != "" {
		t.Errorf("Callers(copy_data) mismatch (-want +got):\n%s", diff)
	}
	if got := cg.Callers("main"); len(got) != 0 {
		t.Errorf("Callers(main) = %v, want none", got)
	}
}

func TestBuildSkipsUnrecognizedExtensions(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "notes.txt", "int fake(void) { return 0; }")

	cg, err := Build(dir, []string{".c"})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if cg.Has("fake") {
		t.Error("function from an unrecognized file was indexed")
	}
}
