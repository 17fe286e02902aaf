package tags

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// CtagsTagger shells out to universal-ctags. It exists for C++ sources the
// C grammar mangles and for environments that already ship a tuned ctags;
// the tree-sitter tagger is the default.
type CtagsTagger struct {
	Bin string
}

// NewCtagsTagger resolves the ctags binary, falling back to PATH lookup
// when no explicit path is given.
func NewCtagsTagger(bin string) (*CtagsTagger, error) {
	if bin == "" {
		var err error
		bin, err = exec.LookPath("ctags")
		if err != nil {
			return nil, fmt.Errorf("ctags binary not found in PATH: %w", err)
		}
	}

	if _, err := os.Stat(bin); os.IsNotExist(err) {
		return nil, fmt.Errorf("ctags binary not found at path: %s", bin)
	}

	return &CtagsTagger{Bin: bin}, nil
}

func (c *CtagsTagger) Extract(ext string, src []byte) ([]Tag, error) {
	if ext == "" {
		ext = "c"
	}

	tmp, err := os.CreateTemp("", "remnant-*."+ext)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp source file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(src); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to write temp source file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to close temp source file: %w", err)
	}

	cmd := exec.Command(c.Bin, "-f", "-", "--kinds-C=*", "--fields=neKSt", tmp.Name())
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ctags failed: %w", err)
	}

	return parseCtagsOutput(string(output)), nil
}

// parseCtagsOutput converts ctags tab-separated tag lines into Tag records.
// Lines whose kind is not function/parameter/local, and pseudo-tags, are
// dropped.
func parseCtagsOutput(out string) []Tag {
	var tagList []Tag
	for _, line := range strings.Split(out, "\n") {
		if line == "" || strings.HasPrefix(line, "!_TAG") {
			continue
		}

		name, rest, ok := strings.Cut(line, "\t")
		if !ok {
			continue
		}

		// Extension fields follow the ;" pattern terminator. The search
		// pattern itself may contain tabs, so split only after it.
		_, fields, ok := strings.Cut(rest, ";\"")
		if !ok {
			continue
		}

		tag := Tag{Name: name}
		for _, field := range strings.Split(fields, "\t") {
			if field == "" {
				continue
			}
			key, value, hasValue := strings.Cut(field, ":")
			if !hasValue {
				tag.Kind = parseCtagsKind(key)
				continue
			}
			switch key {
			case "line":
				tag.Line, _ = strconv.Atoi(value)
			case "end":
				tag.EndLine, _ = strconv.Atoi(value)
			case "typeref":
				// Value has the form "typename:actual type".
				if _, typ, found := strings.Cut(value, ":"); found {
					tag.Typeref = typ
				} else {
					tag.Typeref = value
				}
			case "kind":
				tag.Kind = parseCtagsKind(value)
			}
		}

		if tag.Kind == KindUnknown {
			continue
		}
		tagList = append(tagList, tag)
	}
	return tagList
}

func parseCtagsKind(s string) Kind {
	switch s {
	case "function", "f":
		return KindFunction
	case "parameter", "z":
		return KindParameter
	case "local", "l":
		return KindLocal
	default:
		return KindUnknown
	}
}
