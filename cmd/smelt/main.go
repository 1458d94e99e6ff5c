// Command smelt is the project CLI: discovers, compiles, and executes
// model builds against a configured target, per spec.md §6 and SPEC_FULL.md
// A2.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"
	"github.com/fatih/color"

	"github.com/smeltsql/smelt/build"
	"github.com/smeltsql/smelt/config"
)

// CLI is the root kong command set.
var CLI struct {
	ProjectDir string `help:"Project directory to search for the manifest" default:"." name:"project-dir"`

	Run     RunCmd     `cmd:"" help:"Discover, compile, and execute models"`
	Version VersionCmd `cmd:"" help:"Show version information"`
}

// Context carries global flags into each command's Run method.
type Context struct {
	ProjectDir string
}

// RunCmd implements the `smelt run` command.
type RunCmd struct {
	Database      string `help:"Override the active target's database path" name:"database"`
	Target        string `help:"Target name from the project manifest" default:"dev"`
	ShowResults   bool   `help:"Print a preview of each model's first rows" name:"show-results"`
	Verbose       bool   `help:"Enable verbose diagnostic output" short:"v"`
	DryRun        bool   `help:"Discover and order models without executing them" name:"dry-run"`
	Incremental   string `help:"Start date (ISO-8601) for an incremental run" name:"incremental-from"`
	IncrementalTo string `help:"End date (ISO-8601) for an incremental run" name:"incremental-to"`
}

// Run executes the build orchestration (spec.md §4.11).
func (cmd *RunCmd) Run(ctx *Context) error {
	root, err := config.FindProjectRoot(ctx.ProjectDir)
	if err != nil {
		return fmt.Errorf("smelt: %w", err)
	}
	if cmd.Verbose {
		color.Blue("Using project root %s", root)
	}

	project, err := config.LoadConfig(filepath.Join(root, config.ManifestName))
	if err != nil {
		return fmt.Errorf("smelt: %w", err)
	}

	if cmd.Database != "" {
		target := project.Targets[cmd.Target]
		target.Database = cmd.Database
		project.Targets[cmd.Target] = target
	}

	opts := build.Options{
		Target:          cmd.Target,
		WantsPreview:    cmd.ShowResults,
		DryRun:          cmd.DryRun,
		IncrementalFrom: cmd.Incremental,
		IncrementalTo:   cmd.IncrementalTo,
	}

	report, err := build.Run(context.Background(), root, project, opts)
	if err != nil {
		color.Red("smelt: %v", err)
		return err
	}

	printReport(report, cmd)

	if report.Failed() {
		return fmt.Errorf("smelt: build failed")
	}
	return nil
}

func printReport(report *build.Report, cmd *RunCmd) {
	if cmd.Verbose {
		color.Blue("Discovered %d model file(s) under %s", len(report.DiscoveredSQL), report.ProjectRoot)
	}

	for _, d := range report.Diagnostics {
		line := fmt.Sprintf("%s:%d:%d: %s", d.Path, d.Line, d.Column, d.Message)
		if d.Severity == "error" {
			color.Red(line)
		} else {
			color.Yellow(line)
		}
	}

	if report.DryRun {
		color.Blue("Execution order (%d model(s)): %v", len(report.Order), report.Order)
		return
	}

	for _, res := range report.Results {
		if res.Err != nil {
			color.Red("%s: %v", res.Name, res.Err)
			continue
		}
		color.Green("%s (%s): %d row(s) in %s", res.Name, res.Materialization, res.RowCount, res.Duration)
		if cmd.ShowResults && res.Preview != nil {
			for _, row := range res.Preview.Rows {
				fmt.Printf("  %v\n", row)
			}
		}
	}

	if report.Failed() {
		color.Red("Build failed")
	} else {
		color.Green("Build succeeded: %d model(s) in %s", len(report.Results), report.TotalDuration)
	}
}

// VersionCmd prints the CLI's version string.
type VersionCmd struct{}

// Run executes the version command.
func (cmd *VersionCmd) Run() error {
	fmt.Println("smelt v0.1.0")
	return nil
}

func main() {
	kctx := kong.Parse(&CLI)

	appCtx := &Context{ProjectDir: CLI.ProjectDir}
	err := kctx.Run(appCtx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
