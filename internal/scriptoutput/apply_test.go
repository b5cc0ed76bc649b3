package scriptoutput

import (
	"strings"
	"testing"

	"github.com/distr1/cargoninja/internal/plan"
)

// TestApplyLinkArgBinsNotAppliedToLib covers scenario 2: a
// rustc-link-arg-bins directive must not produce a -C link-arg= flag on a
// Lib consumer, since only the Cdylib branch of appliesTo is wired.
func TestApplyLinkArgBinsNotAppliedToLib(t *testing.T) {
	out := &Output{LinkerArgs: []linkerArg{{Target: TargetBin(), Flag: "-Wl,--gc-sections"}}}
	consumer := &plan.Invocation{TargetKind: plan.Lib([]plan.CrateType{plan.CrateRlib})}

	cb := NewCommandBuilder()
	Apply(cb, out, "foo", consumer)

	if containsArg(cb.Args, "link-arg=-Wl,--gc-sections") {
		t.Errorf("Args = %v, want no link-arg flag for a non-Cdylib target selector", cb.Args)
	}
}

// TestApplyLinkArgCdylibApplied confirms the one wired branch still works:
// a rustc-link-arg-cdylib directive does reach a Cdylib consumer.
func TestApplyLinkArgCdylibApplied(t *testing.T) {
	out := &Output{LinkerArgs: []linkerArg{{Target: TargetCdylib(), Flag: "-Wl,--gc-sections"}}}
	consumer := &plan.Invocation{TargetKind: plan.Lib([]plan.CrateType{plan.CrateCdylib})}

	cb := NewCommandBuilder()
	Apply(cb, out, "foo", consumer)

	if !containsArg(cb.Args, "link-arg=-Wl,--gc-sections") {
		t.Errorf("Args = %v, want the cdylib link-arg flag applied", cb.Args)
	}
}

// TestApplyLibraryLinksGatedByIsLib covers invariant 6: a non-empty
// LibraryLinks must not add a -l flag to a non-library invocation. Gated
// on TargetKind.IsLib, not IsLinkable — a cdylib/staticlib-only Lib target
// is IsLib but not IsLinkable, and the original still passes it -l.
func TestApplyLibraryLinksGatedByIsLib(t *testing.T) {
	out := &Output{LibraryLinks: []string{"bar"}}
	consumer := &plan.Invocation{TargetKind: plan.CustomBuild(), CompileMode: plan.ModeRunCustomBuild()}

	cb := NewCommandBuilder()
	Apply(cb, out, "foo", consumer)

	for _, a := range cb.Args {
		if a == "bar" {
			t.Errorf("Args = %v, want no -l flag for a non-linkable consumer", cb.Args)
		}
	}
	if containsArg(cb.Args, "-l") {
		t.Errorf("Args = %v, want no -l flag for a non-linkable consumer", cb.Args)
	}
}

func TestApplyLibraryLinksAppliedToLinkableConsumer(t *testing.T) {
	out := &Output{LibraryLinks: []string{"bar"}}
	consumer := &plan.Invocation{TargetKind: plan.Lib([]plan.CrateType{plan.CrateRlib})}

	cb := NewCommandBuilder()
	Apply(cb, out, "foo", consumer)

	if !hasAdjacentPair(cb.Args, "-l", "bar") {
		t.Errorf("Args = %v, want -l bar applied for a linkable consumer", cb.Args)
	}
}

// TestApplyLibraryLinksAppliedToCdylibOnlyLib exercises the IsLib/IsLinkable
// divergence directly: a Lib target whose only crate type is cdylib is
// IsLib but not IsLinkable, and -l must still be applied.
func TestApplyLibraryLinksAppliedToCdylibOnlyLib(t *testing.T) {
	out := &Output{LibraryLinks: []string{"bar"}}
	consumer := &plan.Invocation{TargetKind: plan.Lib([]plan.CrateType{plan.CrateCdylib})}

	cb := NewCommandBuilder()
	Apply(cb, out, "foo", consumer)

	if !hasAdjacentPair(cb.Args, "-l", "bar") {
		t.Errorf("Args = %v, want -l bar applied to a cdylib-only Lib target", cb.Args)
	}
}

func TestApplyMetadataPropagationEnvVarNaming(t *testing.T) {
	out := &Output{Metadata: []kv{{Key: "include-path", Value: "/usr/include/foo"}}}
	consumer := &plan.Invocation{TargetKind: plan.Bin()}

	cb := NewCommandBuilder()
	Apply(cb, out, "my-pkg", consumer)

	if got, want := cb.Env["DEP_MY_PKG_INCLUDE_PATH"], "/usr/include/foo"; got != want {
		t.Errorf("Env[DEP_MY_PKG_INCLUDE_PATH] = %q, want %q", got, want)
	}
}

func TestApplyNilOutputLeavesCommandBuilderUnchanged(t *testing.T) {
	cb := NewCommandBuilder()
	cb.push("-C", "opt-level=2")
	got := Apply(cb, nil, "foo", &plan.Invocation{TargetKind: plan.Bin()})
	if len(got.Args) != 2 || got.Args[0] != "-C" || got.Args[1] != "opt-level=2" {
		t.Errorf("Args = %v, want unchanged by a nil Output", got.Args)
	}
}

func containsArg(args []string, substr string) bool {
	for _, a := range args {
		if strings.Contains(a, substr) {
			return true
		}
	}
	return false
}

func hasAdjacentPair(args []string, a, b string) bool {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == a && args[i+1] == b {
			return true
		}
	}
	return false
}
