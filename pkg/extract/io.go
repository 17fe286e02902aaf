package extract

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Artifact files per target, stored in the dataset's target-function
// directory: <target>_funcs.txt holds the JSON function map and
// <target>_hash.txt one "hash<TAB>key" line per function.

func funcsPath(dir, target string) string {
	return filepath.Join(dir, target+"_funcs.txt")
}

func hashPath(dir, target string) string {
	return filepath.Join(dir, target+"_hash.txt")
}

// WriteArtifacts persists a Result's function map and hash table. Output is
// key-sorted so repeated runs over the same tree produce identical files.
func WriteArtifacts(dir, target string, res *Result) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create artifact dir %s: %w", dir, err)
	}

	data, err := json.Marshal(res.Funcs)
	if err != nil {
		return fmt.Errorf("failed to marshal function map: %w", err)
	}
	if err := os.WriteFile(funcsPath(dir, target), data, 0644); err != nil {
		return fmt.Errorf("failed to write function artifact: %w", err)
	}

	keys := make([]string, 0, len(res.Funcs))
	for key := range res.Funcs {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, key := range keys {
		b.WriteString(res.Funcs[key].Hash)
		b.WriteByte('\t')
		b.WriteString(key)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(hashPath(dir, target), []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to write hash artifact: %w", err)
	}
	return nil
}

// HasArtifacts reports whether both artifact files for a target exist.
func HasArtifacts(dir, target string) bool {
	for _, path := range []string{funcsPath(dir, target), hashPath(dir, target)} {
		if _, err := os.Stat(path); err != nil {
			return false
		}
	}
	return true
}

// ReadFunctions loads a target's extracted function map.
func ReadFunctions(dir, target string) (map[string]*FunctionRecord, error) {
	data, err := os.ReadFile(funcsPath(dir, target))
	if err != nil {
		return nil, fmt.Errorf("failed to read function artifact: %w", err)
	}
	funcs := make(map[string]*FunctionRecord)
	if err := json.Unmarshal(data, &funcs); err != nil {
		return nil, fmt.Errorf("failed to parse function artifact: %w", err)
	}
	return funcs, nil
}

// ReadHashTable loads a target's hash table as a map from content hash to
// the hash patterns recorded for it. Several functions may share one hash.
func ReadHashTable(dir, target string) (map[string][]string, error) {
	f, err := os.Open(hashPath(dir, target))
	if err != nil {
		return nil, fmt.Errorf("failed to read hash artifact: %w", err)
	}
	defer f.Close()

	table := make(map[string][]string)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		hash, pattern, ok := strings.Cut(line, "\t")
		if !ok {
			continue
		}
		table[hash] = append(table[hash], pattern)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan hash artifact: %w", err)
	}
	return table, nil
}
