package tags

import (
	"fmt"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_c "github.com/tree-sitter/tree-sitter-c/bindings/go"
)

// TreeSitterTagger extracts structural tags in-process using the tree-sitter
// C grammar. The grammar tolerates most C++ function bodies well enough for
// span and declaration recovery, which is all the pipeline needs.
type TreeSitterTagger struct{}

func NewTreeSitterTagger() *TreeSitterTagger {
	return &TreeSitterTagger{}
}

func (t *TreeSitterTagger) Extract(ext string, src []byte) ([]Tag, error) {
	parser := sitter.NewParser()
	defer parser.Close()

	language := sitter.NewLanguage(tree_sitter_c.Language())
	if err := parser.SetLanguage(language); err != nil {
		return nil, fmt.Errorf("failed to set language: %w", err)
	}

	tree := parser.Parse(src, nil)
	if tree == nil {
		return nil, fmt.Errorf("failed to parse %q buffer", ext)
	}
	defer tree.Close()

	var out []Tag
	collectFunctions(tree.RootNode(), src, &out)
	return out, nil
}

func collectFunctions(node *sitter.Node, content []byte, out *[]Tag) {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child.Kind() == "function_definition" {
			tagFunctionDefinition(child, content, out)
		}
		collectFunctions(child, content, out)
	}
}

func tagFunctionDefinition(node *sitter.Node, content []byte, out *[]Tag) {
	declarator := findFunctionDeclarator(node)
	if declarator == nil {
		return
	}

	name := ""
	if identifier := findChildByKind(declarator, "identifier"); identifier != nil {
		name = nodeText(identifier, content)
	}
	if name == "" {
		return
	}

	*out = append(*out, Tag{
		Name:    name,
		Kind:    KindFunction,
		Line:    int(node.StartPosition().Row) + 1,
		EndLine: int(node.EndPosition().Row) + 1,
	})

	if paramList := findChildByKind(declarator, "parameter_list"); paramList != nil {
		tagParameters(paramList, content, out)
	}
	if body := findChildByKind(node, "compound_statement"); body != nil {
		tagLocals(body, content, out)
	}
}

// findFunctionDeclarator returns the function_declarator of a definition,
// descending through pointer declarators so that functions returning
// pointers are not missed.
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

func findChildByKind(node *sitter.Node, kind string) *sitter.Node {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child.Kind() == kind {
			return child
		}
	}
	return nil
}

func nodeText(node *sitter.Node, content []byte) string {
	return string(content[node.StartByte():node.EndByte()])
}

func tagParameters(paramList *sitter.Node, content []byte, out *[]Tag) {
	for i := uint(0); i < paramList.ChildCount(); i++ {
		child := paramList.Child(i)
		if child.Kind() != "parameter_declaration" {
			continue
		}
		name, typ := splitParameterDeclaration(strings.TrimSpace(nodeText(child, content)))
		if name == "" {
			continue
		}
		*out = append(*out, Tag{
			Name:    name,
			Kind:    KindParameter,
			Line:    int(child.StartPosition().Row) + 1,
			Typeref: typ,
		})
	}
}

// splitParameterDeclaration separates a parameter's declared name from its
// type text. The last word, stripped of pointer and reference markers, is
// the name; the markers migrate onto the type.
func splitParameterDeclaration(paramText string) (name, typ string) {
	words := strings.Fields(paramText)
	if len(words) == 0 {
		return "", ""
	}

	lastWord := words[len(words)-1]
	name = strings.TrimLeft(lastWord, "*&")

	if len(words) == 1 {
		// Single word: an unnamed parameter such as "void".
		return "", lastWord
	}

	typeWords := words[:len(words)-1]
	if markers := lastWord[:len(lastWord)-len(name)]; markers != "" {
		typeWords = append(typeWords, markers)
	}
	return name, strings.Join(typeWords, " ")
}

func tagLocals(node *sitter.Node, content []byte, out *[]Tag) {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child.Kind() == "declaration" {
			tagDeclaration(child, content, out)
		}
		tagLocals(child, content, out)
	}
}

func tagDeclaration(node *sitter.Node, content []byte, out *[]Tag) {
	var typeParts []string
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		switch child.Kind() {
		case "primitive_type", "type_identifier", "struct_specifier", "storage_class_specifier", "sized_type_specifier":
			typeParts = append(typeParts, nodeText(child, content))
		}
	}
	declaredType := strings.Join(typeParts, " ")

	line := int(node.StartPosition().Row) + 1
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		name := ""
		switch child.Kind() {
		case "identifier":
			name = nodeText(child, content)
		case "init_declarator", "pointer_declarator", "array_declarator":
			name = declaratorName(child, content)
		}
		if name != "" {
			*out = append(*out, Tag{
				Name:    name,
				Kind:    KindLocal,
				Line:    line,
				Typeref: declaredType,
			})
		}
	}
}

// declaratorName digs through nested declarators to the declared identifier.
func declaratorName(node *sitter.Node, content []byte) string {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		switch child.Kind() {
		case "identifier":
			return nodeText(child, content)
		case "pointer_declarator", "array_declarator", "init_declarator":
			if name := declaratorName(child, content); name != "" {
				return name
			}
		}
	}
	return ""
}
