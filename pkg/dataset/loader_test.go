package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/noperator/remnant/pkg/config"
)

func datasetConfig(root string) config.DatasetConfig {
	return config.DatasetConfig{
		Root:          root,
		VulESSLines:   "ess_vul",
		VulDEPLines:   "dep_vul",
		NoOldESSLines: "ess_noold",
		NoOldDEPLines: "dep_noold",
		PatESSLines:   "ess_pat",
		VulBodySet:    "vul_body",
		VulHashes:     "hashes",
		TargetFuncs:   "targets",
		OSSIndex:      "oss_idx.txt",
		IdxToVersion:  "idx2cve.txt",
	}
}

func writeDatasetFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// newDatasetFixture lays out the index files every dataset needs.
func newDatasetFixture(t *testing.T) (string, config.DatasetConfig) {
	t.Helper()
	root := t.TempDir()
	cfg := datasetConfig(root)
	writeDatasetFile(t, root, "oss_idx.txt", "libwidget@@1\nlibwidget@@2\nlibgadget@@3\n")
	writeDatasetFile(t, root, "idx2cve.txt", "1##CVE-2021-1234_v1.2\n2##CVE-2022-5678_v3.0\n")
	writeDatasetFile(t, root, "hashes/libwidget_hash.txt",
		"d41d8cd98f00b204e9800998ecf8427e\tparse##src@@parser.c\n")
	for _, dir := range []string{"ess_vul", "dep_vul", "ess_noold", "dep_noold", "ess_pat", "vul_body", "targets"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	return root, cfg
}

func TestLoadIndices(t *testing.T) {
	_, cfg := newDatasetFixture(t)

	store, err := Load(cfg)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	wantOSS := map[string][]string{
		"libwidget": {"1", "2"},
		"libgadget": {"3"},
	}
	if diff := cmp.Diff(wantOSS, store.OSSIndex); diff != "" {
		t.Errorf("OSSIndex mismatch (-want +got):\n%s", diff)
	}

	wantVer := map[string]string{
		"1": "CVE-2021-1234_v1.2",
		"2": "CVE-2022-5678_v3.0",
	}
	if diff := cmp.Diff(wantVer, store.IdxToVersion); diff != "" {
		t.Errorf("IdxToVersion mismatch (-want +got):\n%s", diff)
	}

	if got := store.VulHashes["libwidget"]; len(got) != 1 || got[0] != "d41d8cd98f00b204e9800998ecf8427e" {
		t.Errorf("VulHashes[libwidget] = %v, want single md5", got)
	}
}

func TestLoadShapeClassification(t *testing.T) {
	root, cfg := newDatasetFixture(t)

	// Index 1: deleted and added lines.
	writeDatasetFile(t, root, "vul_body/1_vul.txt",
		`{"vul_body":["if (len < 0)","return -1;"],"old_body":[]}`)
	writeDatasetFile(t, root, "ess_vul/1_common.txt",
		`[{"vul_body":"if (len < 0)","abs_body":"if (LVAR < 0)"}]`)
	writeDatasetFile(t, root, "ess_pat/1_plus.txt",
		`[{"pat_body":"if (len <= 0)","abs_body":"if (LVAR <= 0)"}]`)

	// Index 2: deleted lines only, sourced from the patch diff.
	writeDatasetFile(t, root, "vul_body/2_vul.txt",
		`{"vul_body":["free(p);"],"old_body":["free(q);"]}`)
	writeDatasetFile(t, root, "ess_noold/2_minus.txt",
		`[{"vul_body":"free(p);","abs_body":"free(LVAR);"}]`)

	// Index 3: added lines only.
	writeDatasetFile(t, root, "vul_body/3_vul.txt",
		`{"vul_body":["memcpy(dst, src, n);"],"old_body":[]}`)
	writeDatasetFile(t, root, "ess_pat/3_plus.txt",
		`[{"pat_body":"if (n > cap) return;","abs_body":"if (LVAR > LVAR) return;"}]`)

	// Index 4: a body with no signature lines at all must be skipped.
	writeDatasetFile(t, root, "vul_body/4_vul.txt",
		`{"vul_body":["x = 1;"],"old_body":[]}`)

	store, err := Load(cfg)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	wantShapes := map[string]Shape{
		"1": ShapeDeleteAdd,
		"2": ShapeDeleteOnly,
		"3": ShapeAddOnly,
	}
	if len(store.Signatures) != len(wantShapes) {
		t.Fatalf("loaded %d signatures, want %d", len(store.Signatures), len(wantShapes))
	}
	for idx, want := range wantShapes {
		sig := store.Signatures[idx]
		if sig == nil {
			t.Fatalf("signature %s missing", idx)
		}
		if sig.Shape != want {
			t.Errorf("signature %s shape = %v, want %v", idx, sig.Shape, want)
		}
	}

	if sig := store.Signatures["1"]; !sig.CoreVul.Contains("if(len<0)") {
		t.Errorf("essential lines not normalized: %v", sig.CoreVul)
	}
}

func TestLoadPatchLineFiltering(t *testing.T) {
	root, cfg := newDatasetFixture(t)

	// One patch line matches the vulnerable body verbatim, one is only
	// punctuation after normalization, one is genuinely new.
	writeDatasetFile(t, root, "vul_body/1_vul.txt",
		`{"vul_body":["shared context;"],"old_body":[]}`)
	writeDatasetFile(t, root, "ess_pat/1_plus.txt", `[
		{"pat_body":"shared context;","abs_body":"shared context;"},
		{"pat_body":"{","abs_body":"{"},
		{"pat_body":"added_check(n);","abs_body":"added_check(LVAR);"}
	]`)

	store, err := Load(cfg)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	sig := store.Signatures["1"]
	if sig.NewPat.Len() != 1 || !sig.NewPat.Contains("added_check(n);") {
		t.Errorf("NewPat = %v, want only the genuinely added line", sig.NewPat)
	}
	if sig.NewAbsPat.Len() != 1 || !sig.NewAbsPat.Contains("added_check(lvar);") {
		t.Errorf("NewAbsPat = %v, want only the abstracted added line", sig.NewAbsPat)
	}
}

func TestLoadAbstractedFlag(t *testing.T) {
	root, cfg := newDatasetFixture(t)

	// Index 1: abstraction of the patched lines is identical to the
	// vulnerable essential lines, so abstraction is uninformative.
	writeDatasetFile(t, root, "vul_body/1_vul.txt",
		`{"vul_body":["a = b;"],"old_body":[]}`)
	writeDatasetFile(t, root, "ess_vul/1_common.txt",
		`[{"vul_body":"a = b;","abs_body":"LVAR = LVAR;"}]`)
	writeDatasetFile(t, root, "ess_pat/1_plus.txt",
		`[{"pat_body":"a = c;","abs_body":"LVAR = LVAR;"}]`)

	// Index 2: abstractions differ, keep abstracted matching.
	writeDatasetFile(t, root, "vul_body/2_vul.txt",
		`{"vul_body":["a = b;"],"old_body":[]}`)
	writeDatasetFile(t, root, "ess_vul/2_common.txt",
		`[{"vul_body":"a = b;","abs_body":"LVAR = LVAR;"}]`)
	writeDatasetFile(t, root, "ess_pat/2_plus.txt",
		`[{"pat_body":"a = check(b);","abs_body":"LVAR = check(LVAR);"}]`)

	store, err := Load(cfg)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if store.Signatures["1"].Abstracted {
		t.Error("signature 1: Abstracted = true, want false when abstraction adds nothing")
	}
	if !store.Signatures["2"].Abstracted {
		t.Error("signature 2: Abstracted = false, want true when abstractions differ")
	}
}

func TestLoadDependencies(t *testing.T) {
	root, cfg := newDatasetFixture(t)

	writeDatasetFile(t, root, "vul_body/1_vul.txt",
		`{"vul_body":["use(buf);"],"old_body":["use(old_buf);"]}`)
	writeDatasetFile(t, root, "ess_vul/1_common.txt",
		`[{"vul_body":"use(buf);","abs_body":"use(LVAR);"}]`)
	writeDatasetFile(t, root, "dep_vul/1_depen.txt", `{
		"vul": {"param": [{"abs_norm_vul":"char *FPARAM /* input */","orig_norm_vul":"char *buf"}]},
		"old": {"param": [{"abs_norm_vul":"char *FPARAM","orig_norm_vul":"char *old_buf"}]}
	}`)

	store, err := Load(cfg)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	sig := store.Signatures["1"]
	if !sig.AbsDeps.Contains("char *FPARAM ") {
		t.Errorf("AbsDeps = %v, want comment stripped from dependency line", sig.AbsDeps)
	}
	if !sig.NorDeps.Contains("char *buf") {
		t.Errorf("NorDeps = %v", sig.NorDeps)
	}
	if !sig.AbsOldDeps.Contains("char *FPARAM") || !sig.NorOldDeps.Contains("char *old_buf") {
		t.Errorf("old-lineage dependency sets not populated: %v / %v", sig.AbsOldDeps, sig.NorOldDeps)
	}
}

func TestLoadMissingIndexFatal(t *testing.T) {
	root := t.TempDir()
	cfg := datasetConfig(root)
	if _, err := Load(cfg); err == nil {
		t.Fatal("Load() with empty dataset root succeeded, want error")
	}
}
