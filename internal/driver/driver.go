// Package driver orchestrates the two-stage lowering pipeline: a
// configure-stage graph that produces build-script outputs, executed via
// an external file-level executor, followed by a build-stage graph that
// consumes them.
package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"golang.org/x/xerrors"

	"github.com/distr1/cargoninja/internal/cgerrors"
	"github.com/distr1/cargoninja/internal/graph"
	"github.com/distr1/cargoninja/internal/plan"
	"github.com/distr1/cargoninja/internal/scriptoutput"
)

const (
	configureNinja = "configure.ninja"
	buildNinja     = "build.ninja"
)

// Driver holds everything needed to run both stages end to end.
type Driver struct {
	BuildRoot   string
	CargoBin    string
	ManifestDir string
	Executor    string
	CargoArgs   []string
}

var isTerminal = isatty.IsTerminal(os.Stdout.Fd())

// statusf reports pipeline progress, but only when stdout is a terminal;
// piped/logged invocations get silence instead of line noise.
func statusf(format string, args ...interface{}) {
	if !isTerminal {
		return
	}
	fmt.Fprintf(os.Stdout, format+"\n", args...)
}

func (d *Driver) buildPlanArgs() []string {
	args := []string{"build", "--build-plan", "-Zunstable-options"}
	if d.ManifestDir != "" {
		args = append(args, "--manifest-path", d.ManifestDir)
	}
	args = append(args, d.CargoArgs...)
	return args
}

func (d *Driver) metadataArgs() []string {
	args := []string{"metadata", "--no-deps", "--format-version", "1"}
	if d.ManifestDir != "" {
		args = append(args, "--manifest-path", d.ManifestDir)
	}
	return args
}

// Run executes the full pipeline: acquire the plan, rewrite
// workspace-local paths, lower and run the configure stage, then lower
// and write the build stage.
func (d *Driver) Run(ctx context.Context) error {
	p, err := plan.Load(ctx, d.BuildRoot, d.CargoBin, d.buildPlanArgs()...)
	if err != nil {
		return err
	}
	p.SetWorkspaceProbe(func(ctx context.Context) (map[string]bool, error) {
		return d.workspaceMembers(ctx)
	})
	if err := p.RewriteWorkspacePaths(ctx); err != nil {
		return err
	}

	lowerer := &graph.Lowerer{Plan: p, BuildRoot: d.BuildRoot}

	statusf("cargoninja: lowering configure stage (%d invocations)", len(p.Invocations))
	configureGraph, err := lowerer.Lower(ctx, graph.IsRunCustomBuild, true)
	if err != nil {
		return xerrors.Errorf("lowering configure stage: %w", err)
	}
	configurePath := filepath.Join(d.BuildRoot, configureNinja)
	if err := configureGraph.WriteFile(configurePath); err != nil {
		return err
	}

	if len(configureGraph.Edges) > 0 {
		statusf("cargoninja: running %s against %s", d.Executor, configureNinja)
		if err := d.runExecutor(ctx, configurePath); err != nil {
			return &cgerrors.ExecutorFailureError{Program: d.Executor, Args: []string{"-f", configurePath}, Err: err}
		}
	}

	isWorkspaceBuild := func(inv *plan.Invocation) bool {
		ok, err := p.IsWorkspaceBuild(ctx, inv)
		return err == nil && ok
	}
	statusf("cargoninja: lowering build stage")
	buildGraph, err := lowerer.Lower(ctx, isWorkspaceBuild, false)
	if err != nil {
		return xerrors.Errorf("lowering build stage: %w", err)
	}
	selfCmd := fmt.Sprintf("%s build %s", os.Args[0], d.BuildRoot)
	buildGraph.AddRegenerationRule(selfCmd, buildNinja, p.Inputs)

	buildPath := filepath.Join(d.BuildRoot, buildNinja)
	return buildGraph.WriteFile(buildPath)
}

func (d *Driver) runExecutor(ctx context.Context, ninjaFile string) error {
	cmd := exec.CommandContext(ctx, d.Executor, "-f", ninjaFile)
	cmd.Dir = d.BuildRoot
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

type cargoMetadata struct {
	Packages []struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"packages"`
	WorkspaceMembers []string `json:"workspace_members"`
}

// workspaceMembers invokes the package manager's metadata command once
// and returns a "name@version" membership set, used by
// Plan.IsWorkspaceBuild.
func (d *Driver) workspaceMembers(ctx context.Context) (map[string]bool, error) {
	cmd := exec.CommandContext(ctx, d.CargoBin, d.metadataArgs()...)
	out, err := cmd.Output()
	if err != nil {
		return nil, &cgerrors.PlanAcquisitionError{Program: d.CargoBin, Args: d.metadataArgs(), Err: err}
	}
	var md cargoMetadata
	if err := json.Unmarshal(out, &md); err != nil {
		return nil, &cgerrors.PlanShapeError{Context: "cargo metadata", Err: err}
	}
	members := make(map[string]bool, len(md.Packages))
	for _, pkg := range md.Packages {
		members[pkg.Name+"@"+pkg.Version] = true
	}
	return members, nil
}

// ParseScriptOutputFile parses a single already-materialised script
// output file given its path, used by an auxiliary configure-runner
// invoked via the executor. Its result is discarded beyond validating
// that the file parses; the file itself remains the canonical artifact.
func ParseScriptOutputFile(path, pkgDescr string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return xerrors.Errorf("reading %s: %w", path, err)
	}
	if pkgDescr == "" {
		pkgDescr = path
	}
	_, err = scriptoutput.Parse(data, "build script of "+pkgDescr, scriptoutput.ParseOptions{PkgDescr: pkgDescr})
	return err
}
