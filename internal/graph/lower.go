package graph

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/distr1/cargoninja/internal/cgerrors"
	"github.com/distr1/cargoninja/internal/plan"
	"github.com/distr1/cargoninja/internal/scriptoutput"
)

// Filter selects the "primary" invocations a lowering pass starts from.
type Filter func(inv *plan.Invocation) bool

// IsRunCustomBuild is the Filter used for the configure (stage A) pass.
func IsRunCustomBuild(inv *plan.Invocation) bool { return inv.CompileMode.IsRunCustomBuild() }

// Lowerer converts a resolved plan into one or more ninja build graphs. A
// single Lowerer may be used for both the configure and build passes; it
// caches parsed script outputs across calls so a script is never run or
// parsed twice.
type Lowerer struct {
	Plan      *plan.Plan
	BuildRoot string
	Windows   bool

	// ScriptOptions builds the ParseOptions used to parse/validate a
	// given RunCustomBuild invocation's captured output.
	ScriptOptions func(inv *plan.Invocation) scriptoutput.ParseOptions

	mu    sync.Mutex
	cache map[int]*scriptoutput.Output
}

func (l *Lowerer) scriptOpts(inv *plan.Invocation) scriptoutput.ParseOptions {
	if l.ScriptOptions != nil {
		return l.ScriptOptions(inv)
	}
	return scriptoutput.ParseOptions{PkgDescr: inv.PkgDescr(), PkgName: inv.PackageName}
}

// Lower runs the graph-lowering algorithm: select primaries via filter,
// compute their transitive closure over the dependency DAG (not
// descending through CustomBuild/RunCustomBuild nodes when
// includeCustomBuild is false), and emit one rule and a set of build
// edges per included invocation in plan order.
func (l *Lowerer) Lower(ctx context.Context, filter Filter, includeCustomBuild bool) (*Graph, error) {
	if err := l.validateDAG(); err != nil {
		return nil, err
	}

	var primaries []int
	for _, inv := range l.Plan.Invocations {
		if filter(inv) {
			primaries = append(primaries, inv.Index())
		}
	}
	included := l.computeIncluded(primaries, includeCustomBuild)

	if err := l.prefetchScriptOutputs(ctx, included); err != nil {
		return nil, err
	}

	g := newGraph()
	declareAuxiliaryRules(g, l.Windows)

	indices := sortedIntKeys(included)
	for _, i := range indices {
		inv := l.Plan.Invocations[i]
		if err := l.lowerOne(ctx, g, inv); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// validateDAG rejects a plan containing a cycle, defensively: the plan
// model's own invariant (deps[i] < self_index) already guarantees
// acyclicity, but a corrupted or hand-edited plan document could violate
// it, and gonum's cycle detector gives a precise diagnostic instead of
// producing a graph that silently diverges from the plan.
func (l *Lowerer) validateDAG() error {
	dg := simple.NewDirectedGraph()
	for _, inv := range l.Plan.Invocations {
		dg.AddNode(simpleNode(inv.Index()))
	}
	for _, inv := range l.Plan.Invocations {
		for _, d := range inv.Deps {
			dg.SetEdge(dg.NewEdge(simpleNode(d), simpleNode(inv.Index())))
		}
	}
	if _, err := topo.Sort(dg); err != nil {
		if uo, ok := err.(topo.Unorderable); ok {
			return xerrors.Errorf("build plan contains a dependency cycle: %v", uo)
		}
		return xerrors.Errorf("build plan is not a valid DAG: %w", err)
	}
	return nil
}

type simpleNode int64

func (n simpleNode) ID() int64 { return int64(n) }

// computeIncluded is the DFS of spec §4.4 step 2. CustomBuild and
// RunCustomBuild nodes are excluded from the result, and not descended
// past, whenever includeCustomBuild is false: their own outputs are
// folded into whichever downstream invocation consumes them rather than
// being emitted as a rule of their own.
func (l *Lowerer) computeIncluded(primaries []int, includeCustomBuild bool) map[int]bool {
	included := map[int]bool{}
	var visit func(i int)
	visit = func(i int) {
		inv := l.Plan.Invocations[i]
		if inv.TargetKind.IsCustomBuild() && !includeCustomBuild {
			return
		}
		if included[i] {
			return
		}
		included[i] = true
		for _, d := range inv.Deps {
			visit(d)
		}
	}
	for _, i := range primaries {
		visit(i)
	}
	return included
}

// prefetchScriptOutputs parses, with bounded concurrency, every
// RunCustomBuild invocation reachable (one hop) from an included
// invocation's deps — the set that lowerOne's explicit_deps gathering
// will need. The generator itself is single-threaded; this is the one
// place several independent blocking file reads can be overlapped.
func (l *Lowerer) prefetchScriptOutputs(ctx context.Context, included map[int]bool) error {
	need := map[int]bool{}
	for i := range included {
		for _, d := range l.Plan.Invocations[i].Deps {
			if l.Plan.Invocations[d].CompileMode.IsRunCustomBuild() {
				need[d] = true
			}
		}
	}
	if len(need) == 0 {
		return nil
	}
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(runtime.GOMAXPROCS(0))
	for idx := range need {
		idx := idx
		eg.Go(func() error {
			_, err := l.scriptOutput(ctx, idx)
			return err
		})
	}
	return eg.Wait()
}

// scriptOutput returns the parsed output of the RunCustomBuild invocation
// at index idx, running the script (if its captured stream is missing)
// and caching the result for the remainder of the process.
func (l *Lowerer) scriptOutput(ctx context.Context, idx int) (*scriptoutput.Output, error) {
	l.mu.Lock()
	if l.cache == nil {
		l.cache = map[int]*scriptoutput.Output{}
	}
	if out, ok := l.cache[idx]; ok {
		l.mu.Unlock()
		return out, nil
	}
	l.mu.Unlock()

	inv := l.Plan.Invocations[idx]
	outputs := inv.Outputs()
	if len(outputs) != 1 {
		return nil, &cgerrors.PlanShapeError{Context: fmt.Sprintf("invocations[%d]", idx), Err: xerrors.New("RunCustomBuild invocation has no canonical output")}
	}
	outPath := outputs[0]

	data, readErr := os.ReadFile(outPath)
	if readErr != nil {
		if err := l.runScript(ctx, inv, outPath); err != nil {
			return nil, err
		}
		data, readErr = os.ReadFile(outPath)
		if readErr != nil {
			return nil, &cgerrors.ExecutorFailureError{Program: inv.Program, Err: readErr}
		}
	}

	out, err := scriptoutput.Parse(data, "build script of "+inv.PkgDescr(), l.scriptOpts(inv))
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.cache[idx] = out
	l.mu.Unlock()
	return out, nil
}

func (l *Lowerer) runScript(ctx context.Context, inv *plan.Invocation, outPath string) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return xerrors.Errorf("creating script output directory: %w", err)
	}
	cmd := exec.CommandContext(ctx, inv.Program, inv.Args...)
	cmd.Dir = inv.Cwd
	cmd.Env = os.Environ()
	for k, v := range inv.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	data, err := cmd.Output()
	if err != nil {
		return &cgerrors.ExecutorFailureError{Program: inv.Program, Args: inv.Args, Err: err}
	}
	return os.WriteFile(outPath, data, 0o644)
}

func sortedIntKeys(m map[int]bool) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// lowerOne emits the rule and build edges for one included invocation:
// explicit-dep gathering over its predecessors (§4.4 step 3a), rule
// command construction — cwd, own environment, script-output applier,
// dep args — (3b/3c), the rule declaration itself (3d), per-output build
// edges with their directory-marker order-only dep (3e), the dep-info
// directive when one is computable (3f), and hard-link edges for the
// invocation's links (3g/h), each with their own directory marker.
func (l *Lowerer) lowerOne(ctx context.Context, g *Graph, inv *plan.Invocation) error {
	explicitDeps, customBuildOutput, err := l.explicitDeps(ctx, inv)
	if err != nil {
		return err
	}

	cb := scriptoutput.NewCommandBuilder()
	cb.Args = filterCompilerArgs(inv.Args)
	for k, v := range inv.Env {
		cb.Env[k] = v
	}
	if customBuildOutput != nil {
		scriptoutput.Apply(cb, customBuildOutput, producerPkg(l.Plan, inv), inv)
	}

	command := buildCommandLine(inv.Program, cb.Args, cb.Env, inv.Cwd)
	if inv.CompileMode.IsRunCustomBuild() {
		outputs := inv.Outputs()
		out := outputs[0]
		if inv.Cwd != "" {
			// The command above cd'd into inv.Cwd; $$OLDPWD (literal
			// $OLDPWD once ninja unescapes it for the shell) restores the
			// path to be relative to the build root again, matching
			// where the output path itself is rooted.
			out = "$$OLDPWD/" + out
		}
		command = command + " > " + out
	}

	ruleID := fmt.Sprintf("%d-%s-%s-%s-%s", inv.Index(), inv.PackageName, inv.PackageVersion, inv.TargetKind.String(), inv.CompileMode.String())
	rule := Rule{ID: ruleID, Command: command, Description: ruleID}
	if len(inv.Features) > 0 {
		rule.Description += " (features: " + strings.Join(inv.Features, ",") + ")"
	}
	if depInfo, err := inv.DepInfoPath(); err == nil {
		rule.Depfile = filepath.Join(l.BuildRoot, depInfo)
		rule.DepsGCC = true
	}
	g.addRule(rule)

	outputs := inv.Outputs()
	for _, o := range outputs {
		marker := filepath.Join(filepath.Dir(o), ".ninja_dir")
		g.addEdge(Edge{
			Outputs:       []string{o},
			RuleID:        ruleID,
			ExplicitDeps:  explicitDeps,
			OrderOnlyDeps: []string{marker},
		})
		l.addDirMarker(g, marker)
	}

	for link, target := range inv.LinkTargets() {
		ruleName := hardLinkRulePOSIX
		if l.Windows {
			ruleName = hardLinkRuleWindows
		}
		marker := filepath.Join(filepath.Dir(link), ".ninja_dir")
		g.addEdge(Edge{
			Outputs:       []string{link},
			RuleID:        ruleName,
			ExplicitDeps:  []string{target},
			OrderOnlyDeps: []string{marker},
		})
		l.addDirMarker(g, marker)
	}
	return nil
}

func (l *Lowerer) addDirMarker(g *Graph, marker string) {
	if g.markers[marker] {
		return
	}
	g.markers[marker] = true
	g.addEdge(Edge{Outputs: []string{marker}, RuleID: dirRule})
}

func producerPkg(p *plan.Plan, inv *plan.Invocation) string {
	for _, d := range inv.Deps {
		if p.Invocations[d].CompileMode.IsRunCustomBuild() {
			return p.Invocations[d].PackageName
		}
	}
	return inv.PackageName
}

// explicitDeps gathers the explicit dependency path list for inv, and the
// parsed script output of its RunCustomBuild predecessor (the last one in
// Deps order, if there are several) to fold into the rule command.
func (l *Lowerer) explicitDeps(ctx context.Context, inv *plan.Invocation) ([]string, *scriptoutput.Output, error) {
	var deps []string
	var customBuildOutput *scriptoutput.Output
	for _, d := range inv.Deps {
		pred := l.Plan.Invocations[d]
		if pred.CompileMode.IsRunCustomBuild() {
			out, err := l.scriptOutput(ctx, d)
			if err != nil {
				return nil, nil, err
			}
			customBuildOutput = out
			continue
		}
		deps = append(deps, pred.Outputs()...)
		for link := range pred.LinkTargets() {
			deps = append(deps, link)
		}
	}
	return deps, customBuildOutput, nil
}

// filterCompilerArgs drops --error-format=json and --json=* (both force
// machine-readable diagnostics the executor cannot consume), and appends
// --error-format=human at the end when --error-format=json was dropped.
func filterCompilerArgs(args []string) []string {
	out := make([]string, 0, len(args)+1)
	sawErrorFormat := false
	for _, a := range args {
		if a == "--error-format=json" {
			sawErrorFormat = true
			continue
		}
		if strings.HasPrefix(a, "--json=") {
			continue
		}
		out = append(out, a)
	}
	if sawErrorFormat {
		out = append(out, "--error-format=human")
	}
	return out
}

// buildCommandLine renders program/args/env as a single shell command
// line. When cwd is non-empty, it is prefixed as "cd <cwd> && ..." so the
// invocation resolves its (possibly cwd-relative) arguments against its
// own source-tree directory rather than the build root ninja runs in.
func buildCommandLine(program string, args []string, env map[string]string, cwd string) string {
	var b strings.Builder
	if cwd != "" {
		b.WriteString("cd ")
		b.WriteString(shellQuote(cwd))
		b.WriteString(" && ")
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sortStrings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s ", k, shellQuote(env[k]))
	}
	b.WriteString(shellQuote(program))
	for _, a := range args {
		b.WriteByte(' ')
		b.WriteString(shellQuote(a))
	}
	return b.String()
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n'\"$\\") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
