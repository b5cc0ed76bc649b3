package scriptoutput

import (
	"context"
	"os/exec"
	"strings"

	"github.com/distr1/cargoninja/internal/cgerrors"
	"github.com/distr1/cargoninja/internal/plan"
)

// CommandBuilder is the minimal mutable command representation the
// applier folds a parsed Output into: an argument vector plus an
// environment overlay, threaded through to the graph lowerer's rule
// construction.
type CommandBuilder struct {
	Args []string
	Env  map[string]string
}

func NewCommandBuilder() *CommandBuilder {
	return &CommandBuilder{Env: map[string]string{}}
}

func (c *CommandBuilder) push(args ...string) { c.Args = append(c.Args, args...) }

func (c *CommandBuilder) setEnv(key, value string) {
	if c.Env == nil {
		c.Env = map[string]string{}
	}
	c.Env[key] = value
}

// Apply folds a parsed build-script Output into cb, the command being
// assembled for the consuming invocation. A nil out leaves cb unchanged.
// producerPkg names the package whose build script produced out; each
// metadata entry becomes a DEP_<PKG>_<KEY> env var named after it (see
// envify).
func Apply(cb *CommandBuilder, out *Output, producerPkg string, consumer *plan.Invocation) *CommandBuilder {
	if out == nil {
		return cb
	}
	for _, c := range out.Cfgs {
		cb.push("--cfg", c)
	}
	for i, c := range out.CheckCfgs {
		if i == 0 {
			cb.push("-Zunstable-options")
		}
		cb.push("--check-cfg", c)
	}
	for _, e := range out.Env {
		cb.setEnv(e.Key, e.Value)
	}
	for _, p := range out.LibraryPaths {
		cb.push("-L", p)
	}
	if consumer.TargetKind.IsLib() {
		for _, l := range out.LibraryLinks {
			cb.push("-l", l)
		}
	}
	for _, la := range out.LinkerArgs {
		if appliesTo(la.Target, consumer) {
			cb.push("-C", "link-arg="+la.Flag)
		}
	}
	for _, m := range out.Metadata {
		cb.setEnv("DEP_"+envify(producerPkg)+"_"+envify(m.Key), m.Value)
	}
	return cb
}

// appliesTo reports whether a LinkArgTarget matches the consuming
// invocation. Known quirk (carried over faithfully, see the applier's
// design notes): only the Cdylib branch is actually wired; every other
// target predicate always returns false, so rustc-link-arg-bins/-tests/
// -benches/-examples/-bin/All directives are parsed but never applied.
func appliesTo(t LinkArgTarget, inv *plan.Invocation) bool {
	if t.kind == targetCdylib {
		return inv.TargetKind.IsCdylib()
	}
	return false
}

// envify uppercases s and replaces '-' with '_', the transform cargo
// applies to both package names and metadata keys when building
// DEP_<PKG>_<KEY> environment variable names.
func envify(s string) string {
	s = strings.ToUpper(s)
	return strings.ReplaceAll(s, "-", "_")
}

// Run executes a compiled build script and parses its captured stdout.
func Run(ctx context.Context, program string, opts ParseOptions) (*Output, error) {
	cmd := exec.CommandContext(ctx, program)
	data, err := cmd.Output()
	if err != nil {
		return nil, &cgerrors.ExecutorFailureError{Program: program, Err: err}
	}
	return Parse(data, "build script of "+opts.PkgDescr, opts)
}
