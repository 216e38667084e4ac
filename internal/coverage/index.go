package coverage

import (
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// MatchKind records how a path was resolved to a payload key.
type MatchKind string

const (
	MatchNone     MatchKind = "none"
	MatchAbsolute MatchKind = "absolute"
	MatchRelative MatchKind = "relative"
	MatchSuffix   MatchKind = "suffix"
)

// Match is the outcome of an Index lookup. Candidates holds every suffix
// match when more than one key qualified.
type Match struct {
	Key        string
	Kind       MatchKind
	Candidates []string
}

// Ambiguous reports whether the suffix step had to pick among several keys.
func (m Match) Ambiguous() bool {
	return len(m.Candidates) > 1
}

// Index resolves changed-file paths to payload keys. Keys are normalized to
// root-relative slash paths once, at construction.
type Index struct {
	root       string
	byAbs      map[string]string
	byRel      map[string]string
	normalized []indexEntry
}

type indexEntry struct {
	key  string
	norm string
}

// NewIndex builds an index over payload keys relative to root.
func NewIndex(payload Payload, root string) *Index {
	ix := &Index{
		root:  cleanRoot(root),
		byAbs: make(map[string]string, len(payload)),
		byRel: make(map[string]string, len(payload)),
	}
	for _, key := range payload.Keys() {
		if isAbs(key) {
			ix.byAbs[slashClean(key)] = key
		}
		norm := ix.Normalize(key)
		if _, ok := ix.byRel[norm]; !ok {
			ix.byRel[norm] = key
		}
		ix.normalized = append(ix.normalized, indexEntry{key: key, norm: norm})
	}
	return ix
}

// Normalize converts p to a root-relative slash path when it lies under the
// root, or to a cleaned absolute slash path when it does not.
func (ix *Index) Normalize(p string) string {
	p = slashClean(p)
	if isAbs(p) {
		if ix.root != "" {
			if rel, ok := relUnder(ix.root, p); ok {
				return rel
			}
		}
		return p
	}
	return strings.TrimPrefix(p, "./")
}

// Lookup resolves p: exact absolute key, then normalized relative key, then
// a suffix match on path-segment boundaries. Several suffix matches resolve
// to the longest common suffix, then the lexicographically smallest key.
func (ix *Index) Lookup(p string) Match {
	abs := slashClean(p)
	if !isAbs(abs) && ix.root != "" {
		abs = path.Join(ix.root, abs)
	}
	if key, ok := ix.byAbs[abs]; ok {
		return Match{Key: key, Kind: MatchAbsolute}
	}

	norm := ix.Normalize(p)
	if key, ok := ix.byRel[norm]; ok {
		return Match{Key: key, Kind: MatchRelative}
	}

	type candidate struct {
		key    string
		common int
	}
	var found []candidate
	for _, e := range ix.normalized {
		if segmentSuffix(e.norm, norm) || segmentSuffix(norm, e.norm) {
			found = append(found, candidate{key: e.key, common: commonSuffixSegments(e.norm, norm)})
		}
	}
	if len(found) == 0 {
		return Match{Kind: MatchNone}
	}

	sort.Slice(found, func(i, j int) bool {
		if found[i].common != found[j].common {
			return found[i].common > found[j].common
		}
		return found[i].key < found[j].key
	})

	m := Match{Key: found[0].key, Kind: MatchSuffix}
	if len(found) > 1 {
		m.Candidates = make([]string, len(found))
		for i, c := range found {
			m.Candidates[i] = c.key
		}
	}
	return m
}

// segmentSuffix reports whether long ends with short on a "/" boundary.
func segmentSuffix(long, short string) bool {
	short = strings.TrimPrefix(short, "/")
	if short == "" || len(short) >= len(long) {
		return false
	}
	return strings.HasSuffix(long, "/"+short)
}

func commonSuffixSegments(a, b string) int {
	as := strings.Split(strings.TrimPrefix(a, "/"), "/")
	bs := strings.Split(strings.TrimPrefix(b, "/"), "/")
	n := 0
	for i, j := len(as)-1, len(bs)-1; i >= 0 && j >= 0 && as[i] == bs[j]; i, j = i-1, j-1 {
		n++
	}
	return n
}

func relUnder(root, p string) (string, bool) {
	if p == root {
		return "", false
	}
	prefix := strings.TrimSuffix(root, "/") + "/"
	if !strings.HasPrefix(p, prefix) {
		return "", false
	}
	return strings.TrimPrefix(p, prefix), true
}

func cleanRoot(root string) string {
	if root == "" {
		return ""
	}
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return slashClean(root)
}

func slashClean(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	if p == "" {
		return p
	}
	return path.Clean(p)
}

// isAbs accepts POSIX absolute paths and Windows drive paths, since payloads
// produced on another OS may carry either.
func isAbs(p string) bool {
	if strings.HasPrefix(p, "/") {
		return true
	}
	return len(p) >= 3 && p[1] == ':' && (p[2] == '/' || p[2] == '\\')
}
