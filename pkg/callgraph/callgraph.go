package callgraph

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dominikbraun/graph"
	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_c "github.com/tree-sitter/tree-sitter-c/bindings/go"

	"github.com/noperator/remnant/pkg/logging"
)

// Graph is a name-level call graph of a target source tree. Functions are
// vertices, direct calls are edges. Same-named functions in different files
// collapse into one vertex; for annotating scan findings with who calls a
// flagged function, that coarseness is acceptable.
type Graph struct {
	g       graph.Graph[string, string]
	defined map[string]struct{}
	logger  *slog.Logger
}

// Build walks a source tree and assembles its call graph from every file
// with a recognized extension. Files that fail to read or parse are skipped.
func Build(root string, extensions []string) (*Graph, error) {
	cg := &Graph{
		g:       graph.New(graph.StringHash, graph.Directed()),
		defined: make(map[string]struct{}),
		logger:  logging.NewLoggerFromEnv(),
	}

	recognized := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		recognized[ext] = struct{}{}
	}

	type def struct {
		name    string
		callees []string
	}
	var defs []def

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := recognized[filepath.Ext(path)]; !ok {
			return nil
		}
		src, err := os.ReadFile(path)
		if err != nil {
			cg.logger.Warn("skipping unreadable file",
				"component", "callgraph",
				"path", path,
				"error", err)
			return nil
		}
		fileDefs, err := parseDefinitions(src)
		if err != nil {
			cg.logger.Warn("skipping unparseable file",
				"component", "callgraph",
				"path", path,
				"error", err)
			return nil
		}
		for name, callees := range fileDefs {
			defs = append(defs, def{name: name, callees: callees})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}

	for _, d := range defs {
		_ = cg.g.AddVertex(d.name)
		cg.defined[d.name] = struct{}{}
	}
	for _, d := range defs {
		for _, callee := range d.callees {
			// Only calls between functions defined in the tree become
			// edges; libc and external calls stay out of the graph.
			if _, ok := cg.defined[callee]; !ok {
				continue
			}
			_ = cg.g.AddEdge(d.name, callee)
		}
	}

	cg.logger.Debug("call graph built",
		"component", "callgraph",
		"root", root,
		"functions", len(cg.defined))
	return cg, nil
}

// Has reports whether the tree defines a function with this name.
func (cg *Graph) Has(name string) bool {
	_, ok := cg.defined[name]
	return ok
}

// Callers returns the sorted names of functions that directly call name.
func (cg *Graph) Callers(name string) []string {
	pred, err := cg.g.PredecessorMap()
	if err != nil {
		return nil
	}
	edges, ok := pred[name]
	if !ok {
		return nil
	}
	callers := make([]string, 0, len(edges))
	for caller := range edges {
		callers = append(callers, caller)
	}
	sort.Strings(callers)
	return callers
}

// parseDefinitions maps each function defined in one source buffer to the
// names it calls.
func parseDefinitions(src []byte) (map[string][]string, error) {
	parser := sitter.NewParser()
	defer parser.Close()

	language := sitter.NewLanguage(tree_sitter_c.Language())
	if err := parser.SetLanguage(language); err != nil {
		return nil, fmt.Errorf("failed to set language: %w", err)
	}

	tree := parser.Parse(src, nil)
	if tree == nil {
		return nil, fmt.Errorf("failed to parse buffer")
	}
	defer tree.Close()

	defs := make(map[string][]string)
	walkDefinitions(tree.RootNode(), src, defs)
	return defs, nil
}

func walkDefinitions(node *sitter.Node, src []byte, defs map[string][]string) {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child.Kind() == "function_definition" {
			if name := definitionName(child, src); name != "" {
				var callees []string
				collectCalls(child, src, &callees)
				defs[name] = callees
			}
		}
		walkDefinitions(child, src, defs)
	}
}

func definitionName(node *sitter.Node, src []byte) string {
	declarator := findFunctionDeclarator(node)
	if declarator == nil {
		return ""
	}
	for i := uint(0); i < declarator.ChildCount(); i++ {
		child := declarator.Child(i)
		if child.Kind() == "identifier" {
			return string(src[child.StartByte():child.EndByte()])
		}
	}
	return ""
}

func findFunctionDeclarator(node *sitter.Node) *sitter.Node {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		switch child.Kind() {
		case "function_declarator":
			return child
		case "pointer_declarator":
			if inner := findFunctionDeclarator(child); inner != nil {
				return inner
			}
		}
	}
	return nil
}

func collectCalls(node *sitter.Node, src []byte, out *[]string) {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child.Kind() == "call_expression" {
			if fn := child.Child(0); fn != nil && fn.Kind() == "identifier" {
				name := strings.TrimSpace(string(src[fn.StartByte():fn.EndByte()]))
				if name != "" {
					*out = append(*out, name)
				}
			}
		}
		collectCalls(child, src, out)
	}
}
