package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/cockroachdb/pebble"

	"github.com/noperator/remnant/pkg/extract"
)

// Key prefixes simulate logical buckets in Pebble's flat key space.
// Format: prefix:target:key -> value
var (
	prefixFunc = []byte("func:") // func:TARGET:KEY -> JSON record
	prefixHash = []byte("hash:") // hash:TARGET:MD5:KEY -> hash pattern
	prefixMeta = []byte("meta:") // meta:TARGET -> JSON counters
)

// FuncStore caches extraction artifacts in a Pebble database so repeated
// scans of the same target skip re-extraction. The cache is a convenience
// beside the canonical text artifacts, not a replacement for them.
type FuncStore struct {
	db *pebble.DB
}

// FuncStoreOptions configures the FuncStore initialization.
type FuncStoreOptions struct {
	ReadOnly  bool  // open for scanning only
	CacheSize int64 // block cache size in bytes (default: 8MB)
}

type storedFunc struct {
	Orig []string `json:"orig"`
	Norm []string `json:"norm"`
	Abst []string `json:"abst"`
	Hash string   `json:"hash"`
}

type storedMeta struct {
	Files      int `json:"files"`
	Unreadable int `json:"unreadable"`
	Failed     int `json:"failed"`
}

// OpenFuncStore opens or creates a Pebble-backed extraction cache.
func OpenFuncStore(path string, opts FuncStoreOptions) (*FuncStore, error) {
	if opts.CacheSize == 0 {
		opts.CacheSize = 8 << 20
	}

	if opts.ReadOnly {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("function cache does not exist: %s", path)
		}
	}

	pebbleOpts := &pebble.Options{
		Cache: pebble.NewCache(opts.CacheSize),
	}
	if opts.ReadOnly {
		pebbleOpts.ReadOnly = true
	}

	db, err := pebble.Open(path, pebbleOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open function cache %q: %w", path, err)
	}
	return &FuncStore{db: db}, nil
}

// Close flushes pending writes and closes the database.
func (s *FuncStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// PutTarget atomically replaces the cached artifacts for one target.
func (s *FuncStore) PutTarget(res *extract.Result) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	for key, rec := range res.Funcs {
		data, err := json.Marshal(storedFunc{
			Orig: rec.Raw,
			Norm: rec.Norm,
			Abst: rec.Abst,
			Hash: rec.Hash,
		})
		if err != nil {
			return fmt.Errorf("marshal function %q: %w", key, err)
		}
		if err := batch.Set(buildFuncKey(res.Target, key), data, pebble.Sync); err != nil {
			return fmt.Errorf("store function %q: %w", key, err)
		}
		if err := batch.Set(buildHashKey(res.Target, rec.Hash, key), []byte(key), pebble.Sync); err != nil {
			return fmt.Errorf("index hash for %q: %w", key, err)
		}
	}

	meta, err := json.Marshal(storedMeta{
		Files:      res.Files,
		Unreadable: res.Unreadable,
		Failed:     res.Failed,
	})
	if err != nil {
		return fmt.Errorf("marshal target meta: %w", err)
	}
	if err := batch.Set(buildMetaKey(res.Target), meta, pebble.Sync); err != nil {
		return fmt.Errorf("store target meta: %w", err)
	}

	return batch.Commit(pebble.Sync)
}

// HasTarget reports whether the cache holds artifacts for a target.
func (s *FuncStore) HasTarget(target string) bool {
	_, closer, err := s.db.Get(buildMetaKey(target))
	if err != nil {
		return false
	}
	closer.Close()
	return true
}

// Functions loads a target's cached function map.
func (s *FuncStore) Functions(target string) (map[string]*extract.FunctionRecord, error) {
	prefix := buildFuncKey(target, "")
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("pebble iterator creation failed: %w", err)
	}
	defer iter.Close()

	funcs := make(map[string]*extract.FunctionRecord)
	for iter.First(); iter.Valid(); iter.Next() {
		key := strings.TrimPrefix(string(iter.Key()), string(prefix))
		var rec storedFunc
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, fmt.Errorf("malformed cached function %q: %w", key, err)
		}
		funcs[key] = &extract.FunctionRecord{
			Raw:  rec.Orig,
			Norm: rec.Norm,
			Abst: rec.Abst,
			Hash: rec.Hash,
		}
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("function cache scan failed: %w", err)
	}
	return funcs, nil
}

// HashTable loads the target's content-hash index in the same shape the
// text artifact reader produces.
func (s *FuncStore) HashTable(target string) (map[string][]string, error) {
	prefix := append(append([]byte(nil), prefixHash...), []byte(target+":")...)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("pebble iterator creation failed: %w", err)
	}
	defer iter.Close()

	table := make(map[string][]string)
	for iter.First(); iter.Valid(); iter.Next() {
		rest := strings.TrimPrefix(string(iter.Key()), string(prefix))
		hash, _, ok := strings.Cut(rest, ":")
		if !ok {
			continue
		}
		table[hash] = append(table[hash], string(iter.Value()))
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("hash cache scan failed: %w", err)
	}
	return table, nil
}

// -- KEY CONSTRUCTION HELPERS --

func buildFuncKey(target, key string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixFunc, target, key))
}

func buildHashKey(target, hash, key string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:%s", prefixHash, target, hash, key))
}

func buildMetaKey(target string) []byte {
	return []byte(fmt.Sprintf("%s%s", prefixMeta, target))
}

// keyUpperBound returns the smallest key greater than every key with the
// given prefix.
func keyUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
