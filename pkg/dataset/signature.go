package dataset

// Shape classifies a vulnerability signature by what its patch did. Exactly
// one shape holds per signature and decides which matching branch runs.
type Shape int

const (
	// ShapeDeleteOnly: the patch only removed lines; essential lines exist
	// and there are no patch-added lines.
	ShapeDeleteOnly Shape = iota + 1
	// ShapeDeleteAdd: the patch removed and added lines.
	ShapeDeleteAdd
	// ShapeAddOnly: the patch only added lines; no essential lines exist.
	ShapeAddOnly
)

func (s Shape) String() string {
	switch s {
	case ShapeDeleteOnly:
		return "delete-only"
	case ShapeDeleteAdd:
		return "delete-and-add"
	case ShapeAddOnly:
		return "add-only"
	default:
		return "unknown"
	}
}

// Signature is one vulnerability's compiled matching artifacts, read-only
// after load. All line sets hold normalized text; dependency lines are
// additionally comment-stripped.
type Signature struct {
	Index string
	Shape Shape

	// Abstracted selects the matching mode: when the abstracted essential
	// and patch line sets differ, renaming occurred between vulnerable and
	// patched code and matching must use the abstracted representations.
	// When they are identical, literal text is already discriminative.
	Abstracted bool

	// Essential lines that must all be present in a target for the
	// vulnerable pattern to be considered intact.
	CoreVul Set // original text
	CoreAbs Set // abstracted text

	// Patch-added lines not already present in the vulnerable body; any of
	// these appearing in a target means the patch was applied there.
	NewPat    Set
	NewAbsPat Set

	// Dependency lines that must co-occur with the essential lines. The
	// with-oldest variants describe the oldest known vulnerable lineage
	// and are retried only after the without-oldest check fails.
	AbsDeps    Set
	NorDeps    Set
	AbsOldDeps Set
	NorOldDeps Set

	// Full normalized bodies for residual similarity checks.
	VulBody Set
	OldBody Set
}

// EssentialLines reports the essential-line set for the signature's
// matching mode.
func (sig *Signature) EssentialLines() Set {
	if sig.Abstracted {
		return sig.CoreAbs
	}
	return sig.CoreVul
}

// DependencyLines reports the without-oldest and with-oldest dependency
// sets for the signature's matching mode.
func (sig *Signature) DependencyLines() (withoutOld, withOld Set) {
	if sig.Abstracted {
		return sig.AbsDeps, sig.AbsOldDeps
	}
	return sig.NorDeps, sig.NorOldDeps
}

// PatchLines reports the new-patch-line set for the signature's matching
// mode.
func (sig *Signature) PatchLines() Set {
	if sig.Abstracted {
		return sig.NewAbsPat
	}
	return sig.NewPat
}
