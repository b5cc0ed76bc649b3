// Package plan provides the typed in-memory representation of a package
// manager's build plan: invocations, target kinds, compile modes, and the
// hard-link map, deserialised from the build-plan JSON document.
package plan

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"path/filepath"
	"sort"
	"sync"
	"unicode/utf8"

	"github.com/distr1/cargoninja/internal/cgerrors"
	"github.com/distr1/cargoninja/internal/rustcargs"
)

// Plan is the full typed build plan: the invocation vector plus the
// manifest input paths that produced it. Indices into Invocations are
// stable identifiers referenced by Invocation.Deps.
type Plan struct {
	Invocations []*Invocation
	Inputs      []string

	buildRoot string

	workspaceOnce sync.Once
	workspaceErr  error
	workspace     map[string]bool // "name@version" -> is workspace member
	workspaceFn   func(ctx context.Context) (map[string]bool, error)
}

type rawInvocation struct {
	PackageName    string            `json:"package_name"`
	PackageVersion string            `json:"package_version"`
	TargetKind     []string          `json:"target_kind"`
	CompileMode    string            `json:"compile_mode"`
	Deps           []int             `json:"deps"`
	Outputs        []string          `json:"outputs"`
	Links          map[string]string `json:"links"`
	Program        string            `json:"program"`
	Args           []string          `json:"args"`
	Env            map[string]string `json:"env"`
	Cwd            string            `json:"cwd"`
	Features       []string          `json:"features"`
}

type rawPlan struct {
	Invocations []rawInvocation `json:"invocations"`
	Inputs      []string        `json:"inputs"`
}

// Parse deserialises a build plan from its JSON representation. buildRoot
// is the directory RewriteWorkspacePaths makes workspace inputs relative
// to and sets as their cwd; it does not need to exist yet.
func Parse(data []byte, buildRoot string) (*Plan, error) {
	var raw rawPlan
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &cgerrors.PlanShapeError{Context: "<root>", Err: err}
	}
	p := &Plan{buildRoot: buildRoot}
	p.Inputs = raw.Inputs
	for _, path := range p.Inputs {
		if !utf8.ValidString(path) {
			return nil, &cgerrors.PathNonUTF8Error{Raw: []byte(path)}
		}
	}
	p.Invocations = make([]*Invocation, len(raw.Invocations))
	for i, ri := range raw.Invocations {
		inv, err := convertInvocation(i, ri)
		if err != nil {
			return nil, err
		}
		p.Invocations[i] = inv
	}
	for i, inv := range p.Invocations {
		for _, d := range inv.Deps {
			if d >= i {
				return nil, &cgerrors.PlanShapeError{
					Context: "invocations[" + itoa(i) + "].deps",
					Err:     errDepNotTopologicallyPrior,
				}
			}
		}
		for _, target := range inv.Links {
			if !containsString(ri2outputs(raw.Invocations[i]), target) {
				return nil, &cgerrors.PlanShapeError{
					Context: "invocations[" + itoa(i) + "].links",
					Err:     errLinkTargetNotInOutputs,
				}
			}
		}
	}
	return p, nil
}

func ri2outputs(ri rawInvocation) []string { return ri.Outputs }

func convertInvocation(index int, ri rawInvocation) (*Invocation, error) {
	ctxPrefix := "invocations[" + itoa(index) + "]"
	for _, s := range ri.Outputs {
		if !utf8.ValidString(s) {
			return nil, &cgerrors.PathNonUTF8Error{Raw: []byte(s)}
		}
	}
	for link, target := range ri.Links {
		if !utf8.ValidString(link) || !utf8.ValidString(target) {
			return nil, &cgerrors.PathNonUTF8Error{Raw: []byte(link)}
		}
	}
	tk, err := parseTargetKind(ri.TargetKind)
	if err != nil {
		return nil, &cgerrors.PlanShapeError{Context: ctxPrefix + ".target_kind", Err: err}
	}
	cm, err := parseCompileMode(ri.CompileMode)
	if err != nil {
		return nil, &cgerrors.PlanShapeError{Context: ctxPrefix + ".compile_mode", Err: err}
	}
	return &Invocation{
		PackageName:    ri.PackageName,
		PackageVersion: ri.PackageVersion,
		TargetKind:     tk,
		CompileMode:    cm,
		Deps:           ri.Deps,
		Program:        ri.Program,
		Args:           ri.Args,
		Env:            ri.Env,
		Cwd:            ri.Cwd,
		Links:          ri.Links,
		Features:       ri.Features,
		rawOutputs:     ri.Outputs,
		selfIndex:      index,
	}, nil
}

var (
	errDepNotTopologicallyPrior = plainError("dependency index is not strictly less than self index")
	errLinkTargetNotInOutputs   = plainError("link target is not among the invocation's outputs")
)

type plainError string

func (e plainError) Error() string { return string(e) }

func containsString(hay []string, needle string) bool {
	for _, h := range hay {
		if h == needle {
			return true
		}
	}
	return false
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

// Load runs the package manager's build-plan subcommand and parses its
// stdout. program/args typically look like ("cargo", "build",
// "--build-plan", "-Zunstable-options", ...).
func Load(ctx context.Context, buildRoot, program string, args ...string) (*Plan, error) {
	cmd := exec.CommandContext(ctx, program, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, &cgerrors.PlanAcquisitionError{Program: program, Args: args, Err: err}
	}
	if !utf8.Valid(stdout.Bytes()) {
		return nil, &cgerrors.PlanAcquisitionError{Program: program, Args: args, Err: errNonUTF8Stdout}
	}
	return Parse(stdout.Bytes(), buildRoot)
}

var errNonUTF8Stdout = plainError("package manager stdout is not valid UTF-8")

// SetWorkspaceProbe installs the function used to lazily determine
// workspace membership, invoked at most once via sync.Once. Tests and
// callers that already know membership can inject a canned map.
func (p *Plan) SetWorkspaceProbe(fn func(ctx context.Context) (map[string]bool, error)) {
	p.workspaceFn = fn
}

func (p *Plan) workspaceMembers(ctx context.Context) (map[string]bool, error) {
	p.workspaceOnce.Do(func() {
		if p.workspaceFn == nil {
			p.workspace = map[string]bool{}
			return
		}
		p.workspace, p.workspaceErr = p.workspaceFn(ctx)
	})
	return p.workspace, p.workspaceErr
}

// IsWorkspaceBuild reports whether inv is a package/version member of the
// hosting workspace and is neither the script binary itself nor its
// execution (CustomBuild target kind).
func (p *Plan) IsWorkspaceBuild(ctx context.Context, inv *Invocation) (bool, error) {
	if inv.TargetKind.IsCustomBuild() {
		return false, nil
	}
	members, err := p.workspaceMembers(ctx)
	if err != nil {
		return false, err
	}
	return members[inv.PackageName+"@"+inv.PackageVersion], nil
}

// RewriteWorkspacePaths applies the workspace-local path rewrite (spec
// §4.1) to every workspace invocation in the plan: the positional INPUT
// argument is made relative to buildRoot and cwd is overridden to
// buildRoot. Non-workspace invocations are left untouched. Must be called
// after workspace membership can be determined (i.e. after a probe is
// installed, if one is needed).
func (p *Plan) RewriteWorkspacePaths(ctx context.Context) error {
	for _, inv := range p.Invocations {
		isWs, err := p.IsWorkspaceBuild(ctx, inv)
		if err != nil {
			return err
		}
		if !isWs {
			continue
		}
		if err := rewriteInvocationPath(inv, p.buildRoot); err != nil {
			return err
		}
	}
	return nil
}

func rewriteInvocationPath(inv *Invocation, buildRoot string) error {
	idx, ok := rustcargs.LocateInput(inv.Args)
	if !ok {
		return nil
	}
	input := inv.Args[idx]
	abs := input
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(inv.Cwd, input)
	}
	rel, err := filepath.Rel(buildRoot, abs)
	if err != nil {
		return &cgerrors.PlanShapeError{Context: "workspace path rewrite", Err: err}
	}
	inv.Args[idx] = rel
	inv.Cwd = buildRoot
	return nil
}

// sortedOutputDirs returns the distinct parent directories of paths,
// sorted for deterministic iteration.
func sortedOutputDirs(paths []string) []string {
	seen := map[string]bool{}
	for _, p := range paths {
		seen[filepath.Dir(p)] = true
	}
	dirs := make([]string, 0, len(seen))
	for d := range seen {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	return dirs
}
