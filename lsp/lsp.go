// Package lsp implements C13: a stateless translation layer between editor
// protocol requests and the incremental query database, per spec.md §4.13.
// The wire protocol itself (JSON-RPC framing, LSP transport) is out of
// scope; this package exposes a narrow Go interface that a transport layer
// can drive directly.
package lsp

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/smeltsql/smelt/db"
	"github.com/smeltsql/smelt/schema"
	"github.com/smeltsql/smelt/tokenizer"
)

// Server wraps a shared incremental database with editor-facing operations.
// The zero value is not usable; construct with New.
type Server struct {
	db *db.Database
}

// New returns a Server backed by a fresh database.
func New() *Server {
	return &Server{db: db.New()}
}

// Initialize scans each workspace folder's models/ subdirectory for .sql
// files and loads their contents as inputs, per spec.md §4.13.
func (s *Server) Initialize(workspaceFolders []string, readFile func(path string) (string, error)) error {
	for _, folder := range workspaceFolders {
		root := filepath.Join(folder, "models")
		paths, err := walkSQLFiles(root)
		if err != nil {
			continue
		}
		for _, p := range paths {
			text, err := readFile(p)
			if err != nil {
				return fmt.Errorf("lsp: reading %s: %w", p, err)
			}
			s.db.SetFileText(p, text)
		}
	}
	return nil
}

func walkSQLFiles(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && strings.HasSuffix(path, ".sql") {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

// DidOpen records a document's text and returns its current diagnostics.
func (s *Server) DidOpen(path, text string) []db.Diagnostic {
	s.db.SetFileText(path, text)
	return s.db.FileDiagnostics(path)
}

// DidChange re-records a document's text and returns its current
// diagnostics. Identical text is a no-op per the database's input-identity
// guarantee.
func (s *Server) DidChange(path, text string) []db.Diagnostic {
	s.db.SetFileText(path, text)
	return s.db.FileDiagnostics(path)
}

// Location is a target position for go-to-definition, always (0,0) since
// a model's definition is its file as a whole.
type Location struct {
	Path string
	Line int
	Col  int
}

// Definition resolves the smelt.ref(...) call, if any, enclosing offset in
// path's current text, per spec.md §4.13.
func (s *Server) Definition(path string, offset int) (Location, bool) {
	refs := s.db.ModelRefs(path)
	for _, r := range refs {
		if offset >= r.Range[0] && offset <= r.Range[1] {
			target, ok := s.db.ResolveRef(r.Name)
			if !ok {
				return Location{}, false
			}
			return Location{Path: target, Line: 0, Col: 0}, true
		}
	}
	return Location{}, false
}

// Hover returns a markdown block describing the upstream model referenced
// at offset, if the cursor is inside a ref call.
func (s *Server) Hover(path string, offset int) (string, bool) {
	refs := s.db.ModelRefs(path)
	for _, r := range refs {
		if offset < r.Range[0] || offset > r.Range[1] {
			continue
		}
		target, ok := s.db.ResolveRef(r.Name)
		if !ok {
			return fmt.Sprintf("**%s** (unresolved)", r.Name), true
		}
		cols := s.db.AvailableColumns(target)
		var b strings.Builder
		fmt.Fprintf(&b, "**%s**\n\n", r.Name)
		for _, c := range cols {
			fmt.Fprintf(&b, "- `%s` — %s\n", c.Name, describeSource(c.Source))
		}
		return b.String(), true
	}
	return "", false
}

func describeSource(src schema.Source) string {
	switch src.Kind {
	case schema.FromModel:
		return fmt.Sprintf("from `%s.%s`", src.Model, src.Column)
	case schema.Wildcard:
		return fmt.Sprintf("wildcard from `%s`", src.Model)
	case schema.ExternalTable:
		return fmt.Sprintf("from external table `%s`", src.Table)
	case schema.Computed:
		return "computed"
	default:
		return "unknown"
	}
}

// CompletionItem is a single candidate for editor-driven completion.
type CompletionItem struct {
	Label  string
	Detail string
}

// Completion recognizes two lookback contexts at offset within path's
// current text: inside a ref('… call (completes with model names), or
// after SELECT and before FROM (completes with available_columns(path)),
// per spec.md §4.13.
func (s *Server) Completion(path string, offset int) []CompletionItem {
	text, ok := s.db.FileText(path)
	if !ok || offset > len(text) {
		return nil
	}
	prefix := text[:offset]

	if inRefCall(prefix) {
		models := s.db.AllModels()
		out := make([]CompletionItem, 0, len(models))
		for _, name := range models {
			out = append(out, CompletionItem{Label: name})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
		return out
	}

	if afterSelectBeforeFrom(prefix) {
		cols := s.db.AvailableColumns(path)
		out := make([]CompletionItem, 0, len(cols))
		for _, c := range cols {
			out = append(out, CompletionItem{
				Label:  c.Name,
				Detail: fmt.Sprintf("%s (%s)", c.Expression, describeSource(c.Source)),
			})
		}
		return out
	}

	return nil
}

// inRefCall reports whether prefix ends inside an open ref('… call: the
// last "(" is unmatched, follows an identifier ending in "ref" (such as
// smelt.ref), and the quote that follows it, if any, is not yet closed.
func inRefCall(prefix string) bool {
	open := strings.LastIndexByte(prefix, '(')
	if open < 0 {
		return false
	}
	head := strings.ToLower(strings.TrimRight(prefix[:open], " \t\n"))
	if !strings.HasSuffix(head, "smelt.ref") && !strings.HasSuffix(head, "ref") {
		return false
	}
	tail := prefix[open+1:]
	if strings.Contains(tail, ")") {
		return false
	}
	n := strings.Count(tail, "'")
	return n == 0 || n%2 == 1
}

// afterSelectBeforeFrom does a case-insensitive lookback for the nearest
// SELECT keyword with no intervening FROM, using the tokenizer so string
// and comment contents never produce false matches.
func afterSelectBeforeFrom(prefix string) bool {
	toks := tokenizer.New(prefix).All()
	sawSelect := false
	for _, t := range toks {
		if tokenizer.IsTrivia(t.Kind) {
			continue
		}
		switch strings.ToUpper(t.Text(prefix)) {
		case "SELECT":
			sawSelect = true
		case "FROM":
			sawSelect = false
		}
	}
	return sawSelect
}
