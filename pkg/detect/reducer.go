package detect

import (
	"log/slog"

	"github.com/noperator/remnant/pkg/dataset"
	"github.com/noperator/remnant/pkg/extract"
)

// Reduction is the output of search-space reduction: the vulnerability
// indices worth matching against this target and the target functions worth
// matching them to.
type Reduction struct {
	Indices dataset.Set
	Funcs   map[string]*extract.FunctionRecord
}

// Reduce cuts the scan's search space with the content-hash index. A
// vulnerable function hash appearing verbatim in the target proves the
// target reuses that component; only the reused components' vulnerability
// indices are matched, and only functions from the directories where
// reused code was found are considered.
func Reduce(store *dataset.Store, funcs map[string]*extract.FunctionRecord, hashTable map[string][]string, logger *slog.Logger) *Reduction {
	indices := dataset.NewSet()
	scopes := dataset.NewSet()

	for oss, hashes := range store.VulHashes {
		idxs, ok := store.OSSIndex[oss]
		if !ok {
			continue
		}
		for _, hash := range hashes {
			patterns, ok := hashTable[hash]
			if !ok {
				continue
			}
			for _, idx := range idxs {
				indices.Add(idx)
			}
			for _, pattern := range patterns {
				key, err := extract.ParseKey(pattern)
				if err != nil {
					logger.Warn("skipping malformed hash pattern",
						"component", "reducer",
						"pattern", pattern,
						"error", err)
					continue
				}
				scopes.Add(key.Scope())
			}
		}
	}

	retained := make(map[string]*extract.FunctionRecord)
	for keyStr, rec := range funcs {
		key, err := extract.ParseKey(keyStr)
		if err != nil {
			continue
		}
		if scopes.Contains(key.Scope()) {
			retained[keyStr] = rec
		}
	}

	logger.Info("search space reduced",
		"component", "reducer",
		"candidate_indices", indices.Len(),
		"retained_scopes", scopes.Len(),
		"retained_functions", len(retained),
		"total_functions", len(funcs))

	return &Reduction{Indices: indices, Funcs: retained}
}
