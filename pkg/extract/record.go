package extract

import (
	"fmt"
	"strings"
)

// FunctionKey identifies one extracted function: its name plus the ordered
// path segments of the file it came from, relative to the scanned root.
// Keys serialize as "name##seg@@seg@@file.c"; the path part disambiguates
// same-named functions in different files.
type FunctionKey struct {
	Name string
	Path []string
}

func (k FunctionKey) String() string {
	return k.Name + "##" + strings.Join(k.Path, "@@")
}

// Scope is the key's path with the final segment dropped, the granularity
// at which the search-space reducer retains functions.
func (k FunctionKey) Scope() string {
	if len(k.Path) == 0 {
		return ""
	}
	return strings.Join(k.Path[:len(k.Path)-1], "@@")
}

// FilePath renders the key's path part with OS-agnostic forward slashes.
func (k FunctionKey) FilePath() string {
	return strings.Join(k.Path, "/")
}

// ParseKey parses the serialized "name##seg@@seg" form.
func ParseKey(s string) (FunctionKey, error) {
	name, rest, ok := strings.Cut(s, "##")
	if !ok || name == "" {
		return FunctionKey{}, fmt.Errorf("malformed function key %q", s)
	}
	return FunctionKey{Name: name, Path: strings.Split(rest, "@@")}, nil
}

// FunctionRecord holds the three parallel representations of one function
// body plus the content hash of its normalized form. The raw, normalized,
// and abstracted slices correspond line for line; the hash is computed only
// from the normalized lines.
type FunctionRecord struct {
	Raw  []string `json:"orig"`
	Norm []string `json:"norm"`
	Abst []string `json:"abst"`
	Hash string   `json:"-"`
}
