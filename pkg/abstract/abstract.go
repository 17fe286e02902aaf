package abstract

import (
	"log/slog"
	"regexp"

	"github.com/noperator/remnant/pkg/logging"
	"github.com/noperator/remnant/pkg/tags"
)

// Placeholder tokens substituted for project-specific identifiers.
const (
	ParamToken = "FPARAM"
	TypeToken  = "DTYPE"
	VarToken   = "LVAR"
)

var pointerSuffixRE = regexp.MustCompile(` \*$`)

// Abstractor rewrites a function body so that parameter names, resolved
// types, and local variable names become generic placeholders. Two copies
// of the same function that only renamed identifiers abstract to identical
// text.
type Abstractor struct {
	tagger tags.Tagger
	logger *slog.Logger
}

func New(tagger tags.Tagger) *Abstractor {
	return &Abstractor{
		tagger: tagger,
		logger: logging.NewLoggerFromEnv(),
	}
}

// Abstract returns the abstracted form of body. If the tagger cannot
// process the fragment the original body is returned unchanged; a failed
// abstraction must never fail the surrounding extraction.
func (a *Abstractor) Abstract(body, ext string) string {
	tagList, err := a.tagger.Extract(ext, []byte(body))
	if err != nil {
		a.logger.Debug("tagger failed, keeping unabstracted body",
			"component", "abstractor",
			"ext", ext,
			"error", err)
		return body
	}

	parameters, dataTypes, variables := collectIdentifiers(tagList)

	// Replacement order matters: parameters first so that a local variable
	// sharing a parameter's name cannot re-tag an already substituted
	// token, then types, then locals.
	out := body
	for _, param := range parameters {
		out = replaceToken(out, param, ParamToken)
	}
	for _, dtype := range dataTypes {
		out = replaceToken(out, dtype, TypeToken)
	}
	for _, lvar := range variables {
		out = replaceToken(out, lvar, VarToken)
	}
	return out
}

// collectIdentifiers partitions tags into parameter names, resolved types,
// and local variable names, keeping only declarations that fall inside a
// tagged function span. Types are collected from parameters first, then
// locals, with a single trailing pointer marker stripped.
func collectIdentifiers(tagList []tags.Tag) (parameters, dataTypes, variables []string) {
	var spans [][2]int
	for _, tag := range tagList {
		if tag.Kind == tags.KindFunction && tag.EndLine > 0 {
			spans = append(spans, [2]int{tag.Line, tag.EndLine})
		}
	}

	inSpan := func(line int) bool {
		for _, span := range spans {
			if span[0] <= line && line <= span[1] {
				return true
			}
		}
		return false
	}

	seenName := map[string]bool{}
	seenType := map[string]bool{}
	addType := func(typeref string) {
		if typeref == "" {
			return
		}
		typ := pointerSuffixRE.ReplaceAllString(typeref, "")
		if typ != "" && !seenType[typ] {
			seenType[typ] = true
			dataTypes = append(dataTypes, typ)
		}
	}

	for _, tag := range tagList {
		if tag.Kind != tags.KindParameter || tag.Name == "" || !inSpan(tag.Line) {
			continue
		}
		if !seenName[tag.Name] {
			seenName[tag.Name] = true
			parameters = append(parameters, tag.Name)
		}
		addType(tag.Typeref)
	}
	for _, tag := range tagList {
		if tag.Kind != tags.KindLocal || tag.Name == "" || !inSpan(tag.Line) {
			continue
		}
		if !seenName[tag.Name] {
			seenName[tag.Name] = true
			variables = append(variables, tag.Name)
		}
		addType(tag.Typeref)
	}
	return parameters, dataTypes, variables
}

// replaceToken substitutes whole-token occurrences of name with token.
// The pattern anchors on non-word context so that identifiers embedding
// name as a substring are left alone.
func replaceToken(body, name, token string) string {
	if name == "" {
		return body
	}
	pattern, err := regexp.Compile(`(^|\W)` + regexp.QuoteMeta(name) + `(\W)`)
	if err != nil {
		return body
	}
	return pattern.ReplaceAllString(body, "${1}"+token+"${2}")
}
