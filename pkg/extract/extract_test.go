package extract

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/noperator/remnant/pkg/config"
	"github.com/noperator/remnant/pkg/tags"
)

// lineTagger tags every function announced by a marker line of the form
// "//fn NAME START END" so extraction tests do not depend on a real parser.
type lineTagger struct{}

func (lineTagger) Extract(ext string, src []byte) ([]tags.Tag, error) {
	var out []tags.Tag
	for _, line := range strings.Split(string(src), "\n") {
		fields := strings.Fields(line)
		if len(fields) != 4 || fields[0] != "//fn" {
			continue
		}
		start, _ := strconv.Atoi(fields[2])
		end, _ := strconv.Atoi(fields[3])
		out = append(out, tags.Tag{Name: fields[1], Kind: tags.KindFunction, Line: start, EndLine: end})
	}
	return out, nil
}

func TestFunctionKeyRoundTrip(t *testing.T) {
	key := FunctionKey{Name: "copy_data", Path: []string{"src", "util", "buf.c"}}
	s := key.String()
	if s != "copy_data##src@@util@@buf.c" {
		t.Fatalf("String() = %q", s)
	}
	parsed, err := ParseKey(s)
	if err != nil {
		t.Fatalf("ParseKey: %v", err)
	}
	if diff := cmp.Diff(key, parsed); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
	if got := key.Scope(); got != "src@@util" {
		t.Errorf("Scope() = %q, want src@@util", got)
	}
	if got := key.FilePath(); got != "src/util/buf.c" {
		t.Errorf("FilePath() = %q", got)
	}
}

func TestParseKeyMalformed(t *testing.T) {
	for _, s := range []string{"", "nokey", "##path"} {
		if _, err := ParseKey(s); err == nil {
			t.Errorf("ParseKey(%q) succeeded, want error", s)
		}
	}
}

func TestDecodeText(t *testing.T) {
	encodings := []string{"utf-8", "cp949", "euc-kr"}

	if text, ok := decodeText([]byte("int main(void) {}"), encodings); !ok || text != "int main(void) {}" {
		t.Errorf("utf-8 decode failed: %q %v", text, ok)
	}

	// 0xB0 0xA1 is HANGUL GA in EUC-KR and invalid UTF-8.
	text, ok := decodeText([]byte{0xB0, 0xA1, ';'}, encodings)
	if !ok {
		t.Fatalf("euc-kr bytes not decoded")
	}
	if text != "가;" {
		t.Errorf("euc-kr decode = %q, want %q", text, "가;")
	}

	if _, ok := decodeText([]byte{0xB0, 0xA1}, []string{"utf-8"}); ok {
		t.Errorf("invalid utf-8 decoded with utf-8 only")
	}

	// Bytes valid in no configured encoding must fail the whole cascade;
	// the EUC-KR decoder substitutes replacement runes instead of
	// erroring, which must not count as success.
	if text, ok := decodeText([]byte{0xFF, 0xFF, 0xFF, 0x00, 0xFE}, encodings); ok {
		t.Errorf("undecodable bytes reported as decoded: %q", text)
	}
}

func TestExtractAndArtifacts(t *testing.T) {
	root := t.TempDir()
	src := "//fn widget_init 2 4\n" +
		"static void widget_init(struct widget *w) { // setup\n" +
		"    w->count = 0;\n" +
		"}\n"
	if err := os.MkdirAll(filepath.Join(root, "lib"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "lib", "widget.c"), []byte(src), 0644); err != nil {
		t.Fatal(err)
	}
	// Not a recognized extension; must be ignored.
	if err := os.WriteFile(filepath.Join(root, "lib", "notes.txt"), []byte("//fn x 1 1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	opts := config.ExtractConfig{
		Extensions:  []string{".c", ".cc", ".cpp"},
		Encodings:   []string{"utf-8", "cp949", "euc-kr"},
		Concurrency: 2,
	}
	e := New(opts, lineTagger{})
	res, err := e.Extract(context.Background(), root)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if res.Files != 1 {
		t.Errorf("Files = %d, want 1", res.Files)
	}
	key := "widget_init##lib@@widget.c"
	rec, ok := res.Funcs[key]
	if !ok {
		t.Fatalf("missing %q in %v", key, keysOf(res.Funcs))
	}
	if len(rec.Raw) != 3 || len(rec.Norm) != 3 || len(rec.Abst) != 3 {
		t.Fatalf("representation lengths raw=%d norm=%d abst=%d, want 3 each",
			len(rec.Raw), len(rec.Norm), len(rec.Abst))
	}
	if rec.Norm[0] != "staticvoidwidget_init(structwidget*w)" {
		t.Errorf("Norm[0] = %q", rec.Norm[0])
	}
	if rec.Hash == "" {
		t.Errorf("missing content hash")
	}

	// Round-trip through the on-disk artifacts.
	artifactDir := t.TempDir()
	if err := WriteArtifacts(artifactDir, "demo", res); err != nil {
		t.Fatalf("WriteArtifacts: %v", err)
	}
	if !HasArtifacts(artifactDir, "demo") {
		t.Fatalf("artifacts reported missing after write")
	}

	funcs, err := ReadFunctions(artifactDir, "demo")
	if err != nil {
		t.Fatalf("ReadFunctions: %v", err)
	}
	if diff := cmp.Diff(res.Funcs[key].Norm, funcs[key].Norm); diff != "" {
		t.Errorf("norm lines mismatch after round trip (-want +got):\n%s", diff)
	}

	table, err := ReadHashTable(artifactDir, "demo")
	if err != nil {
		t.Fatalf("ReadHashTable: %v", err)
	}
	patterns, ok := table[rec.Hash]
	if !ok || len(patterns) != 1 || patterns[0] != key {
		t.Errorf("hash table entry = %v, want [%s]", patterns, key)
	}
}

func TestHasArtifactsMissing(t *testing.T) {
	if HasArtifacts(t.TempDir(), "absent") {
		t.Errorf("HasArtifacts reported artifacts in empty dir")
	}
}

func keysOf(m map[string]*FunctionRecord) []string {
	var out []string
	for k := range m {
		out = append(out, k)
	}
	return out
}
