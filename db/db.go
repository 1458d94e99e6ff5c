// Package db implements C6: a salsa-style incremental, memoizing query
// database keyed by query name and argument. Input queries (file_text,
// all_files) are set from outside; derived queries are pure functions of
// other queries and are automatically invalidated when an input they
// transitively consulted changes.
package db

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/smeltsql/smelt/ast"
	"github.com/smeltsql/smelt/cst"
	"github.com/smeltsql/smelt/metadata"
)

// Database is a single shared incremental computation engine. The zero value
// is not usable; construct with New.
//
// Concurrency: cache hits with no in-flight recomputation above them on the
// call stack are served under a read lock, so steady-state queries run
// concurrently. Any cache miss, and every nested sub-query it consults while
// recomputing, runs under a single exclusive lock for the duration of that
// computation — derived queries are CPU-only and non-suspending (spec.md §5),
// so this never blocks on backend or editor I/O.
type Database struct {
	mu sync.RWMutex

	files map[string]string

	cache      map[string]any
	dependents map[string]map[string]struct{}
	stack      []string
}

// New returns an empty database with no known files.
func New() *Database {
	return &Database{
		files:      make(map[string]string),
		cache:      make(map[string]any),
		dependents: make(map[string]map[string]struct{}),
	}
}

// Model is one discovered logical model: a named SELECT and the file it
// came from.
type Model struct {
	Name string
	Path string
}

// RefLoc is one smelt.ref(...) occurrence, as returned by ModelRefs.
type RefLoc struct {
	Name  string
	Range [2]int
}

// Diagnostic is a user-facing problem located in a file, per spec.md §4.6.
type Diagnostic struct {
	Path     string
	Line     int
	Column   int
	Severity string // "error" | "warning"
	Message  string
}

// --- input queries ---------------------------------------------------

// SetFileText records path's source text, invalidating any derived value
// that transitively consulted it. Setting an input to an equal value is a
// no-op — it returns false and invalidates nothing, per spec.md §4.6.
func (db *Database) SetFileText(path, text string) bool {
	db.mu.Lock()
	defer db.mu.Unlock()

	old, existed := db.files[path]
	if existed && old == text {
		return false
	}
	db.files[path] = text
	db.invalidate(textKey(path))
	if !existed {
		db.invalidate(filesKey)
	}
	return true
}

// RemoveFile drops path from the known file set.
func (db *Database) RemoveFile(path string) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, existed := db.files[path]; !existed {
		return
	}
	delete(db.files, path)
	db.invalidate(textKey(path))
	db.invalidate(filesKey)
}

// FileText returns path's current source text.
func (db *Database) FileText(path string) (string, bool) {
	if v, ok := db.topLevelGet(textKey(path)); ok {
		s, has := v.(string)
		return s, has
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.fileTextLocked(path)
}

// AllFiles returns every known file path, sorted.
func (db *Database) AllFiles() []string {
	if v, ok := db.topLevelGet(filesKey); ok {
		return v.([]string)
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.allFilesLocked()
}

const filesKey = "all_files"

func textKey(path string) string { return "file_text:" + path }

func (db *Database) fileTextLocked(path string) (string, bool) {
	v := db.memo(textKey(path), func() any {
		text, ok := db.files[path]
		return fileTextResult{text, ok}
	})
	r := v.(fileTextResult)
	return r.text, r.ok
}

type fileTextResult struct {
	text string
	ok   bool
}

func (db *Database) allFilesLocked() []string {
	v := db.memo(filesKey, func() any {
		out := make([]string, 0, len(db.files))
		for p := range db.files {
			out = append(out, p)
		}
		sort.Strings(out)
		return out
	})
	return v.([]string)
}

// --- derived queries ---------------------------------------------------

// ParseFile lexes and parses path's current text.
func (db *Database) ParseFile(path string) cst.Result {
	key := "parse_file:" + path
	if v, ok := db.topLevelGet(key); ok {
		return v.(cst.Result)
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.parseFileLocked(path)
}

func (db *Database) parseFileLocked(path string) cst.Result {
	v := db.memo("parse_file:"+path, func() any {
		span := db.sqlSpanLocked(path)
		return parseSQL(span.text)
	})
	return v.(cst.Result)
}

// parseSQL is the parser entry point used by parseFileLocked, indirected
// through a package variable so tests can substitute a counting wrapper to
// verify incremental recomputation stays minimal (spec.md §8 invariants 4
// and 5) without reaching into the memo cache's internals.
var parseSQL = cst.Parse

// sqlSpanResult is the byte range of path's primary SQL body within its raw
// file text, with any frontmatter header excluded, plus the text itself.
type sqlSpanResult struct {
	text   string
	offset int
}

// sqlSpanLocked strips optional frontmatter (single- or multi-model) before
// the file is handed to the parser, since the parser only recognizes a bare
// SELECT/WITH statement (spec.md §4.2); offset lets callers translate
// positions within text back into the original file's coordinates.
func (db *Database) sqlSpanLocked(path string) sqlSpanResult {
	v := db.memo("sql_span:"+path, func() any {
		text, ok := db.fileTextLocked(path)
		if !ok {
			return sqlSpanResult{}
		}
		sections, err := metadata.Extract(text)
		if err != nil {
			return sqlSpanResult{text: text, offset: 0}
		}
		sec, ok := primarySection(sections, fileStem(path))
		if !ok {
			return sqlSpanResult{}
		}
		return sqlSpanResult{text: sec.SQL, offset: sec.SQLStart}
	})
	return v.(sqlSpanResult)
}

// ParseModel reports the logical model name for path, if it contains a
// top-level SELECT. Per the observed multi-model precedence rule (spec.md §9
// Open Questions), the section whose metadata name matches the file stem
// wins the file's primary model identity; for single-model files the
// frontmatter name is used if present, else the file stem.
func (db *Database) ParseModel(path string) (string, bool) {
	key := "parse_model:" + path
	if v, ok := db.topLevelGet(key); ok {
		r := v.(parseModelResult)
		return r.name, r.ok
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.parseModelLocked(path)
}

type parseModelResult struct {
	name string
	ok   bool
}

func (db *Database) parseModelLocked(path string) (string, bool) {
	v := db.memo("parse_model:"+path, func() any {
		text, ok := db.fileTextLocked(path)
		if !ok {
			return parseModelResult{}
		}
		res := db.parseFileLocked(path)
		if res.Root.FirstChildOfKind(cst.SelectStmt) == nil {
			return parseModelResult{}
		}

		sections, err := metadata.Extract(text)
		stem := fileStem(path)
		if err != nil {
			return parseModelResult{name: stem, ok: true}
		}
		name, ok := primaryName(sections, stem)
		return parseModelResult{name: name, ok: ok}
	})
	r := v.(parseModelResult)
	return r.name, r.ok
}

// primarySection implements the multi-model "matches the file stem" rule
// (spec.md §9 Open Questions): a single section is always primary; among
// multiple sections, the one whose name equals stem is primary. If none
// matches, the file has no primary section, so none of its sections is
// listed by AllModels or resolvable by ref.
func primarySection(sections []metadata.Section, stem string) (metadata.Section, bool) {
	if len(sections) == 1 {
		return sections[0], true
	}
	for _, s := range sections {
		if s.Metadata.Name == stem {
			return s, true
		}
	}
	return metadata.Section{}, false
}

// primaryName derives the primary section's logical model name: its
// frontmatter name if set, else the file stem.
func primaryName(sections []metadata.Section, stem string) (string, bool) {
	sec, ok := primarySection(sections, stem)
	if !ok {
		return "", false
	}
	if sec.Metadata.Name != "" {
		return sec.Metadata.Name, true
	}
	return stem, true
}

func fileStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ModelRefs returns every smelt.ref(...) call in path, in source order.
func (db *Database) ModelRefs(path string) []RefLoc {
	key := "model_refs:" + path
	if v, ok := db.topLevelGet(key); ok {
		return v.([]RefLoc)
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.modelRefsLocked(path)
}

func (db *Database) modelRefsLocked(path string) []RefLoc {
	v := db.memo("model_refs:"+path, func() any {
		span := db.sqlSpanLocked(path)
		if span.text == "" {
			return []RefLoc{}
		}
		res := db.parseFileLocked(path)
		file := ast.New(res.Root, span.text)
		refs := file.Refs()
		out := make([]RefLoc, 0, len(refs))
		for _, r := range refs {
			out = append(out, RefLoc{
				Name:  r.Model,
				Range: [2]int{r.NameRange[0] + span.offset, r.NameRange[1] + span.offset},
			})
		}
		return out
	})
	return v.([]RefLoc)
}

// AllModels returns every discovered model, keyed by source path.
func (db *Database) AllModels() map[string]string {
	key := "all_models"
	if v, ok := db.topLevelGet(key); ok {
		return v.(map[string]string)
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.allModelsLocked()
}

func (db *Database) allModelsLocked() map[string]string {
	v := db.memo("all_models", func() any {
		out := make(map[string]string)
		for _, path := range db.allFilesLocked() {
			if name, ok := db.parseModelLocked(path); ok {
				out[path] = name
			}
		}
		return out
	})
	return v.(map[string]string)
}

// ResolveRef looks up the source path for a model by name. Ambiguous names
// (more than one file claiming the same model name) resolve to the
// lexicographically first path, deterministically.
func (db *Database) ResolveRef(name string) (string, bool) {
	key := "resolve_ref:" + name
	if v, ok := db.topLevelGet(key); ok {
		r := v.(resolveRefResult)
		return r.path, r.ok
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.resolveRefLocked(name)
}

type resolveRefResult struct {
	path string
	ok   bool
}

func (db *Database) resolveRefLocked(name string) (string, bool) {
	v := db.memo("resolve_ref:"+name, func() any {
		models := db.allModelsLocked()
		var best string
		var found bool
		for path, modelName := range models {
			if modelName != name {
				continue
			}
			if !found || path < best {
				best = path
				found = true
			}
		}
		return resolveRefResult{path: best, ok: found}
	})
	r := v.(resolveRefResult)
	return r.path, r.ok
}

// --- memoization engine ------------------------------------------------

// topLevelGet is the fast path: a plain read-lock cache lookup, used only
// when there is no enclosing computation (so no dependency edge needs to be
// recorded). Public methods fall back to the exclusive path on a miss.
func (db *Database) topLevelGet(key string) (any, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if len(db.stack) != 0 {
		return nil, false
	}
	v, ok := db.cache[key]
	return v, ok
}

// memo must be called with db.mu held exclusively. It registers key as a
// dependency of whatever computation is currently on the stack, then returns
// the cached value for key, computing and caching it first if necessary.
func (db *Database) memo(key string, compute func() any) any {
	if len(db.stack) > 0 {
		parent := db.stack[len(db.stack)-1]
		if db.dependents[key] == nil {
			db.dependents[key] = make(map[string]struct{})
		}
		db.dependents[key][parent] = struct{}{}
	}
	if v, ok := db.cache[key]; ok {
		return v
	}
	db.stack = append(db.stack, key)
	v := compute()
	db.stack = db.stack[:len(db.stack)-1]
	db.cache[key] = v
	return v
}

// invalidate removes key and, transitively, everything that consulted it
// while it held its now-stale value. Must be called with db.mu held
// exclusively.
func (db *Database) invalidate(key string) {
	delete(db.cache, key)
	dependents := db.dependents[key]
	delete(db.dependents, key)
	for dep := range dependents {
		db.invalidate(dep)
	}
}
