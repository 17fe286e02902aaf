package detect

import (
	"github.com/noperator/remnant/pkg/config"
	"github.com/noperator/remnant/pkg/dataset"
	"github.com/noperator/remnant/pkg/extract"
)

// Basis records which known body a match's similarity was measured against.
type Basis string

const (
	BasisVulnerable Basis = "vulnerable" // the disclosed vulnerable function
	BasisOldest     Basis = "oldest"     // the oldest known vulnerable version
)

// Match is one detected vulnerable clone in the target.
type Match struct {
	VulnIndex  string   `json:"idx"`
	Label      string   `json:"label"`
	Function   string   `json:"function"`
	Path       string   `json:"path"`
	Shape      string   `json:"shape"`
	Basis      Basis    `json:"basis"`
	Similarity float64  `json:"similarity"`
	Callers    []string `json:"callers,omitempty"`
}

// Matcher decides whether one target function is a (possibly modified)
// clone of one vulnerability's disclosed function.
type Matcher struct {
	threshold    float64
	minBodyLines int
}

func NewMatcher(cfg config.DetectorConfig) *Matcher {
	return &Matcher{
		threshold:    cfg.SimilarityThreshold,
		minBodyLines: cfg.MinBodyLines,
	}
}

// Match runs the full decision procedure for one signature against one
// target function and returns nil when the function is not a clone. The
// procedure is a gauntlet: every required line set must pass before the
// similarity ratio is even computed.
func (m *Matcher) Match(sig *dataset.Signature, keyStr string, rec *extract.FunctionRecord) *Match {
	x := dataset.NewSet(rec.Norm...)

	switch sig.Shape {
	case dataset.ShapeDeleteOnly, dataset.ShapeDeleteAdd:
		rep := x
		if sig.Abstracted {
			rep = dataset.NewSet(rec.Abst...)
		}

		// Every essential line the patch touched must survive verbatim.
		if !sig.EssentialLines().SubsetOf(rep) {
			return nil
		}

		// Dependency lines must co-occur. When the without-oldest set
		// fails, the oldest lineage's set gets one retry.
		withoutOld, withOld := sig.DependencyLines()
		if !withoutOld.SubsetOf(rep) {
			if withOld.Len() == 0 || !withOld.SubsetOf(rep) {
				return nil
			}
		}

		// Any patch-added line in the target means the fix was applied.
		if sig.Shape == dataset.ShapeDeleteAdd && !sig.PatchLines().Disjoint(rep) {
			return nil
		}

	case dataset.ShapeAddOnly:
		// With nothing deleted, patch absence is the only signal. The
		// abstracted patch lines carry it; without them there is nothing
		// to check.
		if sig.NewAbsPat.Len() == 0 {
			return nil
		}
		y := dataset.NewSet(rec.Abst...)
		if !sig.NewAbsPat.Disjoint(y) {
			return nil
		}

	default:
		return nil
	}

	// Tiny bodies match everything; refuse to score them.
	if sig.VulBody.Len() <= m.minBodyLines {
		return nil
	}

	// Residual similarity is containment of the known vulnerable body in
	// the target's normalized lines, measured against the known body's
	// size so trimmed-down clones still score.
	if ratio := similarity(sig.VulBody, x); ratio >= m.threshold {
		return m.match(sig, keyStr, BasisVulnerable, ratio)
	}
	if sig.OldBody.Len() > 0 {
		if ratio := similarity(sig.OldBody, x); ratio >= m.threshold {
			return m.match(sig, keyStr, BasisOldest, ratio)
		}
	}
	return nil
}

func similarity(known, target dataset.Set) float64 {
	return float64(known.IntersectionLen(target)) / float64(known.Len())
}

func (m *Matcher) match(sig *dataset.Signature, keyStr string, basis Basis, ratio float64) *Match {
	key, err := extract.ParseKey(keyStr)
	if err != nil {
		return nil
	}
	return &Match{
		VulnIndex:  sig.Index,
		Function:   key.Name,
		Path:       key.FilePath(),
		Shape:      sig.Shape.String(),
		Basis:      basis,
		Similarity: ratio,
	}
}
