package normalize

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"strings"
)

// Line normalization and comment stripping for C/C++ source. Comparisons
// elsewhere in the pipeline operate on these normalized forms, so two
// functions that differ only in formatting, case, or comments collapse to
// the same representation.

// commentRE matches, in order of preference: line comments and brace runs,
// block comments, and non-comment text. String and character literals are
// matched as non-comment text so that comment-like sequences inside them
// survive. An unterminated block comment simply fails the block-comment
// alternative and is consumed as ordinary text.
var commentRE = regexp.MustCompile(
	`(?sm)(?P<comment>//.*?$|[{}]+)|(?P<multilinecomment>/\*.*?\*/)|(?P<noncomment>'(\\.|[^\\'])*'|"(\\.|[^\\"])*"|.[^/'"]*)`)

var noncommentGroup = func() int {
	for i, name := range commentRE.SubexpNames() {
		if name == "noncomment" {
			return i
		}
	}
	panic("normalize: noncomment group missing")
}()

// Line removes carriage returns, tabs, and spaces and lower-cases the
// remainder. It is pure and idempotent.
func Line(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\t", "")
	s = strings.ReplaceAll(s, " ", "")
	return strings.ToLower(s)
}

// ForHash is Line with newlines and braces also removed, producing the
// single-string form that function content hashes are computed over.
func ForHash(s string) string {
	s = strings.ReplaceAll(s, "\n", "")
	s = strings.ReplaceAll(s, "{", "")
	s = strings.ReplaceAll(s, "}", "")
	return Line(s)
}

var braceReplacer = strings.NewReplacer("{", "", "}", "")

// RemoveComment strips // and /* */ comments and literal braces from text,
// keeping everything else byte for byte, including newlines and the
// contents of string and character literals. Braces inside string or
// character literals are preserved; line comparison downstream is
// brace-insensitive, so bare braces carry no signal.
func RemoveComment(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, m := range commentRE.FindAllStringSubmatchIndex(s, -1) {
		start, end := m[2*noncommentGroup], m[2*noncommentGroup+1]
		if start < 0 {
			continue
		}
		run := s[start:end]
		// The literal alternatives of the noncomment group always
		// start with a quote; only unquoted runs shed their braces.
		if run[0] == '\'' || run[0] == '"' {
			b.WriteString(run)
		} else {
			b.WriteString(braceReplacer.Replace(run))
		}
	}
	return b.String()
}

// HashBody computes the MD5 digest of the joined, hash-normalized body
// lines. The lines are expected to already be comment-stripped and
// line-normalized; ForHash additionally drops braces and newlines so that
// brace placement never affects the digest.
func HashBody(lines []string) string {
	sum := md5.Sum([]byte(ForHash(strings.Join(lines, ""))))
	return hex.EncodeToString(sum[:])
}
