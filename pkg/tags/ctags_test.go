package tags

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseCtagsOutput(t *testing.T) {
	out := "!_TAG_PROGRAM_NAME\tUniversal Ctags\t/ctags/\n" +
		"copy_data\ttmp.c\t/^int copy_data(char *dst, const char *src)$/;\"\tfunction\tline:3\tsignature:(char *dst,const char * src)\tend:12\n" +
		"dst\ttmp.c\t/^int copy_data(char *dst, const char *src)$/;\"\tparameter\tline:3\ttyperef:typename:char *\n" +
		"src\ttmp.c\t/^int copy_data(char *dst, const char *src)$/;\"\tparameter\tline:3\ttyperef:typename:const char *\n" +
		"len\ttmp.c\t/^    size_t len = strlen(src);$/;\"\tlocal\tline:4\ttyperef:typename:size_t\n" +
		"HELPER\ttmp.c\t/^#define HELPER 1$/;\"\tmacro\tline:1\n"

	// The "typename:" marker inside typeref values is dropped during
	// parsing; pointer suffixes survive until abstraction.
	want := []Tag{
		{Name: "copy_data", Kind: KindFunction, Line: 3, EndLine: 12},
		{Name: "dst", Kind: KindParameter, Line: 3, Typeref: "char *"},
		{Name: "src", Kind: KindParameter, Line: 3, Typeref: "const char *"},
		{Name: "len", Kind: KindLocal, Line: 4, Typeref: "size_t"},
	}

	got := parseCtagsOutput(out)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("parseCtagsOutput mismatch (-want +got):\n%s", diff)
	}
}

func TestParseCtagsOutputPatternWithTab(t *testing.T) {
	// Tag patterns can carry raw tabs; fields after ;" must still parse.
	out := "f\ttmp.c\t/^int\tf(void)$/;\"\tfunction\tline:1\tend:3\n"
	got := parseCtagsOutput(out)
	if len(got) != 1 {
		t.Fatalf("got %d tagList entries, want 1", len(got))
	}
	if got[0].Name != "f" || got[0].Line != 1 || got[0].EndLine != 3 {
		t.Errorf("unexpected tag: %+v", got[0])
	}
}

func TestParseCtagsOutputEmpty(t *testing.T) {
	if got := parseCtagsOutput(""); len(got) != 0 {
		t.Errorf("expected no tagList for empty output, got %+v", got)
	}
}
