package scriptoutput

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

var cmpUnexported = cmp.AllowUnexported(LinkArgTarget{}, linkerArg{}, kv{})

func TestParseRustcFlags(t *testing.T) {
	out, err := Parse([]byte("cargo::rustc-flags=-Lfoo -lbar\n"), "test", ParseOptions{DeclaredMSRV: "1.80.0"})
	if err != nil {
		t.Fatalf("Parse() = _, %v", err)
	}
	if diff := cmp.Diff([]string{"foo"}, out.LibraryPaths); diff != "" {
		t.Errorf("LibraryPaths mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"bar"}, out.LibraryLinks); diff != "" {
		t.Errorf("LibraryLinks mismatch (-want +got):\n%s", diff)
	}
}

func TestParseRustcFlagsRejectsUnknownToken(t *testing.T) {
	_, err := Parse([]byte("cargo:rustc-flags=--weird\n"), "test", ParseOptions{})
	if err == nil {
		t.Fatal("Parse() succeeded for an unknown rustc-flags token, want error")
	}
}

func TestParseMSRVGate(t *testing.T) {
	_, err := Parse([]byte("cargo::rustc-cfg=x\n"), "test", ParseOptions{PkgDescr: "foo v1.0.0", DeclaredMSRV: "1.70.0"})
	if err == nil {
		t.Fatal("Parse() succeeded despite MSRV below 1.77.0, want MSRVError")
	}
	if !strings.Contains(err.Error(), "1.77.0") {
		t.Errorf("error %v does not mention the required MSRV", err)
	}
}

func TestParseMSRVSatisfied(t *testing.T) {
	_, err := Parse([]byte("cargo::rustc-cfg=x\n"), "test", ParseOptions{PkgDescr: "foo v1.0.0", DeclaredMSRV: "1.80.0"})
	if err != nil {
		t.Fatalf("Parse() = _, %v, want success", err)
	}
}

func TestParseRustcBootstrapRejectedOnStable(t *testing.T) {
	_, err := Parse([]byte("cargo:rustc-env=RUSTC_BOOTSTRAP=1\n"), "test", ParseOptions{PkgName: "foo"})
	if err == nil {
		t.Fatal("Parse() succeeded for RUSTC_BOOTSTRAP on stable with no bypass, want error")
	}
}

func TestParseRustcBootstrapAllowedOnNightly(t *testing.T) {
	out, err := Parse([]byte("cargo:rustc-env=RUSTC_BOOTSTRAP=1\n"), "test", ParseOptions{PkgName: "foo", Nightly: true})
	if err != nil {
		t.Fatalf("Parse() = _, %v, want success", err)
	}
	if len(out.Warnings) != 1 {
		t.Errorf("len(Warnings) = %d, want 1", len(out.Warnings))
	}
}

func TestParseLinkArgBin(t *testing.T) {
	out, err := Parse([]byte("cargo:rustc-link-arg-bin=mybin=-Wl,foo\n"), "test", ParseOptions{})
	if err != nil {
		t.Fatalf("Parse() = _, %v", err)
	}
	want := []linkerArg{{Target: TargetSingleBin("mybin"), Flag: "-Wl,foo"}}
	if diff := cmp.Diff(want, out.LinkerArgs, cmpUnexported); diff != "" {
		t.Errorf("LinkerArgs mismatch (-want +got):\n%s", diff)
	}
}

func TestParseMetadataPropagation(t *testing.T) {
	out, err := Parse([]byte("cargo:links-name=foo\n"), "test", ParseOptions{})
	if err != nil {
		t.Fatalf("Parse() = _, %v", err)
	}
	want := []kv{{Key: "links-name", Value: "foo"}}
	if diff := cmp.Diff(want, out.Metadata, cmpUnexported); diff != "" {
		t.Errorf("Metadata mismatch (-want +got):\n%s", diff)
	}
}

func TestParsePathRemap(t *testing.T) {
	out, err := Parse([]byte("cargo:rustc-link-search=script_out_dir_when_generated/lib\n"), "test", ParseOptions{})
	if err != nil {
		t.Fatalf("Parse() = _, %v", err)
	}
	want := []string{"script_out_dir/lib"}
	if diff := cmp.Diff(want, out.LibraryPaths); diff != "" {
		t.Errorf("LibraryPaths mismatch (-want +got):\n%s", diff)
	}
}

func TestParseLegacyFreeFormKeyIsMetadata(t *testing.T) {
	out, err := Parse([]byte("cargo:totally-unknown-key=1\n"), "test", ParseOptions{})
	if err != nil {
		t.Fatalf("Parse() = _, %v, want legacy keys outside the typed prefixes routed to free-form metadata", err)
	}
	want := []kv{{Key: "totally-unknown-key", Value: "1"}}
	if diff := cmp.Diff(want, out.Metadata, cmpUnexported); diff != "" {
		t.Errorf("Metadata mismatch (-want +got):\n%s", diff)
	}
}

func TestParseNewSyntaxUnknownKeyIsHardError(t *testing.T) {
	_, err := Parse([]byte("cargo::totally-unknown-key=1\n"), "test", ParseOptions{DeclaredMSRV: "1.80.0"})
	if err == nil {
		t.Fatal("Parse() succeeded for a new-syntax key outside the dispatch table, want error")
	}
}

func TestParseCheckCfgGatedByOption(t *testing.T) {
	out, err := Parse([]byte("cargo:rustc-check-cfg=cfg(foo)\n"), "test", ParseOptions{ExtraCheckCfg: false})
	if err != nil {
		t.Fatalf("Parse() = _, %v", err)
	}
	if diff := cmp.Diff([]string(nil), out.CheckCfgs, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("CheckCfgs mismatch (-want +got):\n%s", diff)
	}
}
