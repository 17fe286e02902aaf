package tags

// Structural tag extraction for C/C++ source fragments. A Tag describes one
// named program element; the abstractor and the function extractor only need
// function spans plus parameter/local declarations with their resolved types.

// Kind classifies a structural tag.
type Kind int

const (
	KindUnknown Kind = iota
	KindFunction
	KindParameter
	KindLocal
)

func (k Kind) String() string {
	switch k {
	case KindFunction:
		return "function"
	case KindParameter:
		return "parameter"
	case KindLocal:
		return "local"
	default:
		return "unknown"
	}
}

// Tag is one structural tag record.
type Tag struct {
	Name    string `json:"name"`
	Kind    Kind   `json:"kind"`
	Line    int    `json:"line"`              // 1-based declaration line
	EndLine int    `json:"end,omitempty"`     // last line of span, functions only
	Typeref string `json:"typeref,omitempty"` // resolved type, parameters and locals
}

// Tagger produces structural tags for a buffer of source text. The ext hint
// is the file extension without the leading dot (c, cc, cpp) and lets
// implementations pick a matching grammar or temp-file suffix.
//
// Implementations must be safe for concurrent use; extraction runs one file
// per worker.
type Tagger interface {
	Extract(ext string, src []byte) ([]Tag, error)
}
