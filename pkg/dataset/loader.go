package dataset

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/noperator/remnant/pkg/config"
	"github.com/noperator/remnant/pkg/logging"
	"github.com/noperator/remnant/pkg/normalize"
)

// Store is the vulnerability feature store: every per-vulnerability
// signature plus the component and version indices, loaded once per run and
// never mutated afterward.
type Store struct {
	Signatures   map[string]*Signature
	OSSIndex     map[string][]string // component -> vulnerability indices
	IdxToVersion map[string]string   // vulnerability index -> CVE/version label
	VulHashes    map[string][]string // component -> signature content hashes
}

// On-disk record shapes produced by the offline patch-diffing pipeline.

type essLineDoc struct {
	VulBody string `json:"vul_body"`
	AbsBody string `json:"abs_body"`
}

type patLineDoc struct {
	PatBody string `json:"pat_body"`
	AbsBody string `json:"abs_body"`
}

type depLineDoc struct {
	AbsNormVul  string `json:"abs_norm_vul"`
	OrigNormVul string `json:"orig_norm_vul"`
}

type vulBodyDoc struct {
	VulBody []string `json:"vul_body"`
	OldBody []string `json:"old_body"`
}

// Load reads the entire feature store under the configured dataset root.
// Missing index files are fatal; a vulnerability with neither essential nor
// patch-added lines is skipped.
func Load(cfg config.DatasetConfig) (*Store, error) {
	logger := logging.NewLoggerFromEnv()

	store := &Store{
		Signatures: make(map[string]*Signature),
	}

	var err error
	if store.OSSIndex, err = readOSSIndex(cfg.OSSIndexPath()); err != nil {
		return nil, err
	}
	if store.IdxToVersion, err = readIdxToVersion(cfg.IdxToVersionPath()); err != nil {
		return nil, err
	}
	if store.VulHashes, err = readVulHashes(cfg.VulHashDir()); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(cfg.VulBodyDir())
	if err != nil {
		return nil, fmt.Errorf("failed to read vulnerable body dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		idx, _, ok := strings.Cut(entry.Name(), "_")
		if !ok {
			continue
		}
		sig, err := loadSignature(cfg, idx, filepath.Join(cfg.VulBodyDir(), entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to load signature %s: %w", idx, err)
		}
		if sig != nil {
			store.Signatures[idx] = sig
		}
	}

	logSummary(logger, store)
	return store, nil
}

func logSummary(logger *slog.Logger, store *Store) {
	shapes := map[Shape]int{}
	for _, sig := range store.Signatures {
		shapes[sig.Shape]++
	}
	logger.Info("feature store loaded",
		"component", "dataset",
		"signatures", len(store.Signatures),
		"components", len(store.OSSIndex),
		"delete_only", shapes[ShapeDeleteOnly],
		"delete_and_add", shapes[ShapeDeleteAdd],
		"add_only", shapes[ShapeAddOnly])
}

// loadSignature assembles one vulnerability's signature from its scattered
// dataset files and compiles the derived line sets the matcher consumes.
func loadSignature(cfg config.DatasetConfig, idx, bodyPath string) (*Signature, error) {
	var body vulBodyDoc
	if err := readJSON(bodyPath, &body); err != nil {
		return nil, err
	}

	var essLines []essLineDoc
	var depDoc map[string]json.RawMessage

	// Essential lines come from the oldest known vulnerable version when
	// one exists ("common" lines), otherwise from the lines the patch
	// deleted ("minus" lines).
	commonPath := filepath.Join(cfg.VulESSLineDir(), idx+"_common.txt")
	minusPath := filepath.Join(cfg.NoOldESSLineDir(), idx+"_minus.txt")
	switch {
	case fileExists(commonPath):
		if err := readJSON(commonPath, &essLines); err != nil {
			return nil, err
		}
		// Dependency lines are optional; a vulnerability without them
		// simply has an empty co-occurrence requirement.
		if err := readJSONIfExists(filepath.Join(cfg.VulDEPLineDir(), idx+"_depen.txt"), &depDoc); err != nil {
			return nil, err
		}
	case fileExists(minusPath):
		if err := readJSON(minusPath, &essLines); err != nil {
			return nil, err
		}
		if err := readJSONIfExists(filepath.Join(cfg.NoOldDEPLineDir(), idx+"_depen.txt"), &depDoc); err != nil {
			return nil, err
		}
	}

	var patLines []patLineDoc
	plusPath := filepath.Join(cfg.PatESSLineDir(), idx+"_plus.txt")
	if fileExists(plusPath) {
		if err := readJSON(plusPath, &patLines); err != nil {
			return nil, err
		}
	}

	if len(essLines) == 0 && len(patLines) == 0 {
		return nil, nil
	}

	return compileSignature(idx, body, essLines, patLines, depDoc)
}

func compileSignature(idx string, body vulBodyDoc, essLines []essLineDoc, patLines []patLineDoc, depDoc map[string]json.RawMessage) (*Signature, error) {
	sig := &Signature{
		Index:      idx,
		Abstracted: true,
		CoreVul:    NewSet(),
		CoreAbs:    NewSet(),
		NewPat:     NewSet(),
		NewAbsPat:  NewSet(),
		AbsDeps:    NewSet(),
		NorDeps:    NewSet(),
		AbsOldDeps: NewSet(),
		NorOldDeps: NewSet(),
		VulBody:    NewSet(body.VulBody...),
		OldBody:    NewSet(body.OldBody...),
	}

	for _, line := range essLines {
		sig.CoreVul.Add(normalize.Line(line.VulBody))
		sig.CoreAbs.Add(normalize.Line(line.AbsBody))
	}

	if len(patLines) > 0 {
		vulBodyLines := NewSet(body.VulBody...)
		patAbsAll := NewSet()
		for _, line := range patLines {
			pat := normalize.Line(line.PatBody)
			abs := normalize.Line(line.AbsBody)
			patAbsAll.Add(abs)
			// Only patch lines absent from the vulnerable body are
			// evidence of an applied patch; shared context lines are not.
			if !vulBodyLines.Contains(pat) {
				if pat != "{" && pat != "}" && pat != "" {
					sig.NewPat.Add(pat)
				}
				if abs != "{" && abs != "}" && abs != "" {
					sig.NewAbsPat.Add(abs)
				}
			}
		}

		if len(essLines) > 0 {
			// If abstraction changed nothing between the vulnerable and
			// patched essential lines, no renaming occurred and literal
			// comparison is already discriminative.
			sig.Abstracted = !patAbsAll.Equal(sig.CoreAbs)
		}
	}

	if err := compileDependencies(sig, depDoc); err != nil {
		return nil, err
	}

	switch {
	case len(essLines) > 0 && len(patLines) > 0:
		sig.Shape = ShapeDeleteAdd
	case len(essLines) > 0:
		sig.Shape = ShapeDeleteOnly
	default:
		sig.Shape = ShapeAddOnly
	}
	return sig, nil
}

// compileDependencies flattens a dependency document into the signature's
// four dependency sets. The document either nests per-lineage groups under
// "vul" and "old" keys or is itself the without-oldest group.
func compileDependencies(sig *Signature, depDoc map[string]json.RawMessage) error {
	if len(depDoc) == 0 {
		return nil
	}

	addGroup := func(raw json.RawMessage, absSet, norSet Set) error {
		var categories map[string][]depLineDoc
		if err := json.Unmarshal(raw, &categories); err != nil {
			return fmt.Errorf("malformed dependency group: %w", err)
		}
		for _, lines := range categories {
			for _, line := range lines {
				absSet.Add(normalize.RemoveComment(line.AbsNormVul))
				norSet.Add(normalize.RemoveComment(line.OrigNormVul))
			}
		}
		return nil
	}

	if vulRaw, ok := depDoc["vul"]; ok {
		if err := addGroup(vulRaw, sig.AbsDeps, sig.NorDeps); err != nil {
			return err
		}
		if oldRaw, ok := depDoc["old"]; ok {
			if err := addGroup(oldRaw, sig.AbsOldDeps, sig.NorOldDeps); err != nil {
				return err
			}
		}
		return nil
	}

	flat, err := json.Marshal(depDoc)
	if err != nil {
		return err
	}
	return addGroup(flat, sig.AbsDeps, sig.NorDeps)
}

func readOSSIndex(path string) (map[string][]string, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read OSS index: %w", err)
	}
	index := make(map[string][]string)
	for _, line := range strings.Split(strings.TrimSpace(string(body)), "\n") {
		oss, idx, ok := strings.Cut(line, "@@")
		if !ok {
			continue
		}
		index[oss] = append(index[oss], idx)
	}
	return index, nil
}

func readIdxToVersion(path string) (map[string]string, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read version index: %w", err)
	}
	idx2ver := make(map[string]string)
	for _, line := range strings.Split(strings.TrimSpace(string(body)), "\n") {
		idx, ver, ok := strings.Cut(line, "##")
		if !ok {
			continue
		}
		idx2ver[idx] = ver
	}
	return idx2ver, nil
}

func readVulHashes(dir string) (map[string][]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read vulnerability hash dir: %w", err)
	}
	hashes := make(map[string][]string)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), "_hash.txt") {
			continue
		}
		oss := strings.TrimSuffix(entry.Name(), "_hash.txt")
		body, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s hashes: %w", oss, err)
		}
		for _, line := range strings.Split(strings.TrimSpace(string(body)), "\n") {
			if line == "" {
				continue
			}
			hash, _, _ := strings.Cut(line, "\t")
			hashes[oss] = append(hashes[oss], hash)
		}
	}
	return hashes, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readJSONIfExists(path string, v any) error {
	if !fileExists(path) {
		return nil
	}
	return readJSON(path, v)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
