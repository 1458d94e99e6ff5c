// Package build implements C11: the orchestrator that discovers model
// files, parses and validates them, orders them by dependency, and drives
// their execution against a configured backend, per spec.md §4.11.
package build

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/smeltsql/smelt/ast"
	"github.com/smeltsql/smelt/backend"
	"github.com/smeltsql/smelt/backend/sqlbackend"
	"github.com/smeltsql/smelt/config"
	"github.com/smeltsql/smelt/cst"
	"github.com/smeltsql/smelt/db"
	"github.com/smeltsql/smelt/graph"
	"github.com/smeltsql/smelt/inject"
	"github.com/smeltsql/smelt/metadata"
	"github.com/smeltsql/smelt/rewrite"
)

// ErrTargetNotFound means Options.Target does not name a configured target.
var ErrTargetNotFound = errors.New("build: target not found in configuration")

// ErrExternalSourceMissing means a declared external source could not be
// found by the backend.
var ErrExternalSourceMissing = errors.New("build: declared external source not found")

// Options controls one build run.
type Options struct {
	Target          string // key into config.Project.Targets; "" defaults to "dev"
	WantsPreview    bool
	DryRun          bool
	IncrementalFrom string // ISO-8601 date, required only when a model has incremental enabled
	IncrementalTo   string
}

// ModelResult reports the outcome of compiling and executing one model.
type ModelResult struct {
	Name            string
	Path            string
	Materialization backend.Materialization
	RowCount        int64
	Duration        time.Duration
	Preview         *backend.Batch
	Err             error
}

// Report is the full outcome of a build run.
type Report struct {
	ProjectRoot   string
	DiscoveredSQL []string
	Order         []string
	Results       []ModelResult
	Diagnostics   []db.Diagnostic
	DryRun        bool
	TotalDuration time.Duration
}

// Failed reports whether any diagnostic or model result carries an error.
func (r *Report) Failed() bool {
	for _, d := range r.Diagnostics {
		if d.Severity == "error" {
			return true
		}
	}
	for _, res := range r.Results {
		if res.Err != nil {
			return true
		}
	}
	return false
}

// Run executes the nine-step orchestration described in spec.md §4.11.
func Run(ctx context.Context, projectRoot string, project *config.Project, opts Options) (*Report, error) {
	start := time.Now()
	report := &Report{ProjectRoot: projectRoot, DryRun: opts.DryRun}

	database := db.New()

	files, err := discoverModelFiles(projectRoot, project.ModelPaths)
	if err != nil {
		return nil, fmt.Errorf("build: discover model files: %w", err)
	}
	sort.Strings(files)
	report.DiscoveredSQL = files

	// Reading each file and extracting its diagnostics are independent,
	// I/O- and CPU-bound per-file operations (spec.md §5: "backend I/O is
	// offloaded to worker threads"); run both phases across a worker group
	// and reassemble results in discovery order afterward so the report
	// stays deterministic regardless of completion order.
	var eg errgroup.Group
	for _, path := range files {
		path := path
		eg.Go(func() error {
			text, err := os.ReadFile(filepath.Join(projectRoot, path))
			if err != nil {
				return fmt.Errorf("build: read %s: %w", path, err)
			}
			database.SetFileText(path, string(text))
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	diagsByFile := make([][]db.Diagnostic, len(files))
	var dg errgroup.Group
	for i, path := range files {
		i, path := i, path
		dg.Go(func() error {
			diagsByFile[i] = database.FileDiagnostics(path)
			return nil
		})
	}
	_ = dg.Wait() // FileDiagnostics never errors; it returns diagnostics instead
	for _, diags := range diagsByFile {
		report.Diagnostics = append(report.Diagnostics, diags...)
	}
	if hasErrorDiagnostic(report.Diagnostics) {
		return report, nil
	}

	allModels := database.AllModels() // path -> name
	nameToPath := make(map[string]string, len(allModels))
	for path, name := range allModels {
		nameToPath[name] = path
	}

	graphModels := make([]graph.Model, 0, len(allModels))
	for path, name := range allModels {
		var deps []string
		seen := make(map[string]bool)
		for _, ref := range database.ModelRefs(path) {
			if seen[ref.Name] {
				continue
			}
			seen[ref.Name] = true
			deps = append(deps, ref.Name)
		}
		graphModels = append(graphModels, graph.Model{Name: name, DependsOn: deps})
	}
	sort.Slice(graphModels, func(i, j int) bool { return graphModels[i].Name < graphModels[j].Name })

	g, err := graph.New(graphModels, project.ExternalSources)
	if err != nil {
		return nil, fmt.Errorf("build: dependency graph: %w", err)
	}
	order, err := g.Order()
	if err != nil {
		return nil, fmt.Errorf("build: topological order: %w", err)
	}
	report.Order = order

	if opts.DryRun {
		report.TotalDuration = time.Since(start)
		return report, nil
	}

	targetName := opts.Target
	if targetName == "" {
		targetName = "dev"
	}
	target, ok := project.Targets[targetName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTargetNotFound, targetName)
	}
	be, err := sqlbackend.New(target)
	if err != nil {
		return nil, fmt.Errorf("build: construct backend: %w", err)
	}
	defer be.Close()

	schema := target.Schema
	if schema == "" {
		schema = "main"
	}
	if err := be.EnsureSchema(ctx, schema); err != nil {
		return nil, fmt.Errorf("build: ensure schema: %w", err)
	}

	if err := verifyExternalSources(ctx, be, schema, project.ExternalSources); err != nil {
		return nil, err
	}

	for _, name := range order {
		path := nameToPath[name]
		res := compileAndExecute(ctx, database, be, schema, path, name, project, opts)
		report.Results = append(report.Results, res)
		if res.Err != nil {
			report.TotalDuration = time.Since(start)
			return report, nil
		}
	}

	report.TotalDuration = time.Since(start)
	return report, nil
}

func hasErrorDiagnostic(diags []db.Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == "error" {
			return true
		}
	}
	return false
}

// discoverModelFiles walks every configured model-path root under
// projectRoot and returns project-root-relative paths of every `.sql` file
// found, per spec.md §4.11 step 3.
func discoverModelFiles(projectRoot string, modelPaths []string) ([]string, error) {
	var out []string
	for _, root := range modelPaths {
		absRoot := filepath.Join(projectRoot, root)
		err := filepath.WalkDir(absRoot, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				if os.IsNotExist(err) && p == absRoot {
					return nil
				}
				return err
			}
			if d.IsDir() || filepath.Ext(p) != ".sql" {
				return nil
			}
			rel, err := filepath.Rel(projectRoot, p)
			if err != nil {
				return err
			}
			out = append(out, filepath.ToSlash(rel))
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func verifyExternalSources(ctx context.Context, be backend.Backend, schema string, sources []string) error {
	for _, src := range sources {
		name := src
		sch := schema
		if idx := strings.LastIndexByte(src, '.'); idx >= 0 {
			sch, name = src[:idx], src[idx+1:]
		}
		exists, err := be.TableExists(ctx, sch, name)
		if err != nil {
			return fmt.Errorf("build: verify external source %q: %w", src, err)
		}
		if !exists {
			return fmt.Errorf("%w: %q", ErrExternalSourceMissing, src)
		}
	}
	return nil
}

// resolvedConfig is one model's effective compile-time settings, after
// applying the frontmatter > project config > defaults precedence rule
// (spec.md §4.5, §9 "Metadata precedence documented, not inferred").
type resolvedConfig struct {
	materialization backend.Materialization
	incremental     metadata.Incremental
}

func resolveModelConfig(name string, sections []metadata.Section, project *config.Project) resolvedConfig {
	var fm metadata.Metadata
	for _, s := range sections {
		if s.Metadata.Name == name || len(sections) == 1 {
			fm = s.Metadata
			break
		}
	}
	override := project.Models[name]

	cfg := resolvedConfig{
		materialization: project.DefaultMaterialization,
		incremental:     override.Incremental,
	}
	if override.Materialization != "" {
		cfg.materialization = override.Materialization
	}
	if fm.Materialization != metadata.MaterializationUnset {
		cfg.materialization = backend.Materialization(fm.Materialization)
	}
	if fm.Incremental.Enabled {
		cfg.incremental = fm.Incremental
	}
	return cfg
}

func compileAndExecute(ctx context.Context, database *db.Database, be backend.Backend, schema, path, name string, project *config.Project, opts Options) ModelResult {
	started := time.Now()
	res := ModelResult{Name: name, Path: path}

	text, ok := database.FileText(path)
	if !ok {
		res.Err = fmt.Errorf("build: %s: no source text", path)
		return res
	}
	sections, err := metadata.Extract(text)
	if err != nil {
		res.Err = fmt.Errorf("build: %s: extract metadata: %w", path, err)
		return res
	}
	cfg := resolveModelConfig(name, sections, project)
	res.Materialization = cfg.materialization

	sqlText := sectionSQL(sections, name, text)

	parsed := cst.Parse(sqlText)
	file := ast.New(parsed.Root, sqlText)
	refs := file.Refs()

	rewritten, err := rewrite.Rewrite(sqlText, refs, schema, path)
	if err != nil {
		res.Err = err
		return res
	}

	if cfg.incremental.Enabled {
		rewritten, err = inject.TimeFilter(rewritten, cfg.incremental.EventTimeColumn, opts.IncrementalFrom, opts.IncrementalTo)
		if err != nil {
			res.Err = fmt.Errorf("build: %s: inject time filter: %w", path, err)
			return res
		}
	}

	var execResult backend.Result
	if cfg.incremental.Enabled {
		part := backend.Partition{Column: cfg.incremental.PartitionColumn, Values: []string{opts.IncrementalFrom, opts.IncrementalTo}}
		execResult, err = backend.ExecuteModelIncremental(ctx, be, schema, name, rewritten, cfg.materialization, part, opts.WantsPreview)
	} else {
		execResult, err = backend.ExecuteModel(ctx, be, schema, name, rewritten, cfg.materialization, opts.WantsPreview)
	}
	if err != nil {
		res.Err = fmt.Errorf("build: %s: execute: %w", path, err)
		return res
	}

	res.RowCount = execResult.RowCount
	res.Preview = execResult.Preview
	res.Duration = time.Since(started)
	return res
}

func sectionSQL(sections []metadata.Section, name, fullText string) string {
	if len(sections) == 1 {
		return sections[0].SQL
	}
	for _, s := range sections {
		if s.Metadata.Name == name {
			return s.SQL
		}
	}
	return fullText
}
