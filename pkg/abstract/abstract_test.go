package abstract

import (
	"errors"
	"testing"

	"github.com/noperator/remnant/pkg/tags"
)

type stubTagger struct {
	tagList []tags.Tag
	err     error
}

func (s *stubTagger) Extract(ext string, src []byte) ([]tags.Tag, error) {
	return s.tagList, s.err
}

func TestAbstractReplacesIdentifiers(t *testing.T) {
	body := "int copy_data(char *dst, mybuf_t *buf) {\n" +
		"    mybuf_t local;\n" +
		"    int count = 0;\n" +
		"    count = fill(dst, buf, count);\n" +
		"    return count;\n" +
		"}"
	tagger := &stubTagger{tagList: []tags.Tag{
		{Name: "copy_data", Kind: tags.KindFunction, Line: 1, EndLine: 6},
		{Name: "dst", Kind: tags.KindParameter, Line: 1, Typeref: "char *"},
		{Name: "buf", Kind: tags.KindParameter, Line: 1, Typeref: "mybuf_t *"},
		{Name: "local", Kind: tags.KindLocal, Line: 2, Typeref: "mybuf_t"},
		{Name: "count", Kind: tags.KindLocal, Line: 3, Typeref: "int"},
	}}

	got := New(tagger).Abstract(body, "c")

	want := "DTYPE copy_data(DTYPE *FPARAM, DTYPE *FPARAM) {\n" +
		"    DTYPE LVAR;\n" +
		"    DTYPE LVAR = 0;\n" +
		"    LVAR = fill(FPARAM, FPARAM, LVAR);\n" +
		"    return LVAR;\n" +
		"}"
	if got != want {
		t.Errorf("Abstract mismatch:\ngot:  %q\nwant: %q", got, want)
	}
}

func TestAbstractWholeTokenOnly(t *testing.T) {
	body := "int f(int n) {\n    int new_n = n + total_n*2;\n    return counter(n);\n}"
	tagger := &stubTagger{tagList: []tags.Tag{
		{Name: "f", Kind: tags.KindFunction, Line: 1, EndLine: 4},
		{Name: "n", Kind: tags.KindParameter, Line: 1, Typeref: "int"},
	}}

	got := New(tagger).Abstract(body, "c")

	// new_n, total_n, and counter embed "n" but are distinct tokens.
	want := "DTYPE f(DTYPE FPARAM) {\n    DTYPE new_n = FPARAM + total_n*2;\n    return counter(FPARAM);\n}"
	if got != want {
		t.Errorf("Abstract mismatch:\ngot:  %q\nwant: %q", got, want)
	}
}

func TestAbstractOutsideSpanIgnored(t *testing.T) {
	body := "int f(void) {\n    return g_state;\n}"
	tagger := &stubTagger{tagList: []tags.Tag{
		{Name: "f", Kind: tags.KindFunction, Line: 1, EndLine: 3},
		// Declared outside the function's span; must not be abstracted.
		{Name: "g_state", Kind: tags.KindLocal, Line: 40, Typeref: "int"},
	}}

	got := New(tagger).Abstract(body, "c")
	if got != body {
		t.Errorf("out-of-span identifier was abstracted: %q", got)
	}
}

func TestAbstractTaggerFailureFallsBack(t *testing.T) {
	body := "int broken( {"
	tagger := &stubTagger{err: errors.New("unparsable fragment")}

	if got := New(tagger).Abstract(body, "c"); got != body {
		t.Errorf("Abstract on tagger failure = %q, want original body", got)
	}
}

func TestAbstractParameterBeforeVariable(t *testing.T) {
	// The same name declared as both parameter and local must take the
	// parameter token; parameters are substituted first.
	body := "void f(int x) {\n    x = 1;\n}"
	tagger := &stubTagger{tagList: []tags.Tag{
		{Name: "f", Kind: tags.KindFunction, Line: 1, EndLine: 3},
		{Name: "x", Kind: tags.KindParameter, Line: 1, Typeref: "int"},
		{Name: "x", Kind: tags.KindLocal, Line: 2, Typeref: "int"},
	}}

	got := New(tagger).Abstract(body, "c")
	if got != "void f(DTYPE FPARAM) {\n    FPARAM = 1;\n}" {
		t.Errorf("Abstract mismatch: %q", got)
	}
}
