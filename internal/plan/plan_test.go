package plan

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestParseTargetKind(t *testing.T) {
	cases := []struct {
		name string
		in   []string
		want TargetKind
	}{
		{"bin", []string{"bin"}, Bin()},
		{"example", []string{"example"}, ExampleBin()},
		{"test", []string{"test"}, Test()},
		{"bench", []string{"bench"}, Bench()},
		{"custom-build", []string{"custom-build"}, CustomBuild()},
		{"lib", []string{"lib"}, Lib([]CrateType{CrateLib})},
		{"rlib+dylib", []string{"rlib", "dylib"}, Lib([]CrateType{CrateRlib, CrateDylib})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseTargetKind(tc.in)
			if err != nil {
				t.Fatalf("parseTargetKind(%v) = _, %v", tc.in, err)
			}
			if diff := cmp.Diff(tc.want, got, cmp.AllowUnexported(TargetKind{}, CrateType{})); diff != "" {
				t.Errorf("parseTargetKind(%v) mismatch (-want +got):\n%s", tc.in, diff)
			}
		})
	}
}

func TestParseTargetKindEmpty(t *testing.T) {
	if _, err := parseTargetKind(nil); err != errEmptyTargetKind {
		t.Fatalf("parseTargetKind(nil) error = %v, want errEmptyTargetKind", err)
	}
}

func TestParseCompileModeUnknown(t *testing.T) {
	if _, err := parseCompileMode("frobnicate"); err == nil {
		t.Fatal("parseCompileMode(\"frobnicate\") succeeded, want error")
	}
}

func TestCrateTypeOther(t *testing.T) {
	ct := ParseCrateType("weird-future-crate-type")
	if ct.String() != "weird-future-crate-type" {
		t.Errorf("String() = %q, want original name", ct.String())
	}
	if ct.Linkable() {
		t.Error("Linkable() = true for an unrecognised crate type, want false")
	}
}

func TestInvocationOutputsFiltersDWP(t *testing.T) {
	inv := &Invocation{
		TargetKind: Lib([]CrateType{CrateRlib}),
		rawOutputs: []string{"libfoo.rlib", "libfoo.dwp"},
	}
	got := inv.Outputs()
	want := []string{"libfoo.rlib"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Outputs() mismatch (-want +got):\n%s", diff)
	}
}

func TestRunCustomBuildSyntheticOutput(t *testing.T) {
	inv := &Invocation{
		CompileMode: ModeRunCustomBuild(),
		Env:         map[string]string{"OUT_DIR": "/build/foo-abc/out"},
	}
	got := inv.Outputs()
	want := []string{"/build/foo-abc/output"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Outputs() mismatch (-want +got):\n%s", diff)
	}
}

func TestRunCustomBuildMissingOutDir(t *testing.T) {
	inv := &Invocation{CompileMode: ModeRunCustomBuild(), Env: map[string]string{}}
	if got := inv.Outputs(); got != nil {
		t.Errorf("Outputs() = %v, want nil when OUT_DIR is missing", got)
	}
}

func TestDepInfoPath(t *testing.T) {
	cases := []struct {
		name string
		inv  *Invocation
		want string
		err  error
	}{
		{
			name: "custom build script itself",
			inv:  &Invocation{PackageName: "foo", TargetKind: CustomBuild(), CompileMode: ModeBuild(), Args: []string{"-C", "extra-filename=-abc"}},
			want: "build/foo-abc/build_script_build-abc.d",
		},
		{
			name: "run custom build has no dep-info",
			inv:  &Invocation{PackageName: "foo", TargetKind: CustomBuild(), CompileMode: ModeRunCustomBuild()},
			err:  ErrNoDepInfo,
		},
		{
			name: "ordinary lib",
			inv:  &Invocation{PackageName: "my-crate", TargetKind: Lib([]CrateType{CrateRlib}), CompileMode: ModeBuild(), Args: []string{"extra-filename=-xyz"}},
			want: "deps/my_crate-xyz.d",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.inv.DepInfoPath()
			if tc.err != nil {
				if err != tc.err {
					t.Fatalf("DepInfoPath() error = %v, want %v", err, tc.err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DepInfoPath() = _, %v", err)
			}
			if got != tc.want {
				t.Errorf("DepInfoPath() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestParseInvariantDepIndex(t *testing.T) {
	data := []byte(`{
		"invocations": [
			{"package_name": "a", "package_version": "1.0.0", "target_kind": ["lib"], "compile_mode": "build", "deps": [1], "outputs": ["liba.rlib"], "links": {}, "program": "rustc", "args": [], "env": {}, "cwd": "/w"},
			{"package_name": "b", "package_version": "1.0.0", "target_kind": ["lib"], "compile_mode": "build", "deps": [], "outputs": ["libb.rlib"], "links": {}, "program": "rustc", "args": [], "env": {}, "cwd": "/w"}
		],
		"inputs": ["/w/Cargo.toml"]
	}`)
	if _, err := Parse(data, "/build"); err == nil {
		t.Fatal("Parse() succeeded for a plan violating deps[i] < self_index, want error")
	}
}

func TestParseRoundTrip(t *testing.T) {
	data := []byte(`{
		"invocations": [
			{"package_name": "b", "package_version": "1.0.0", "target_kind": ["lib"], "compile_mode": "build", "deps": [], "outputs": ["libb.rlib"], "links": {}, "program": "rustc", "args": ["src/lib.rs"], "env": {}, "cwd": "/w/b"},
			{"package_name": "a", "package_version": "1.0.0", "target_kind": ["bin"], "compile_mode": "build", "deps": [0], "outputs": ["a"], "links": {"a-link": "a"}, "program": "rustc", "args": ["src/main.rs"], "env": {}, "cwd": "/w/a"}
		],
		"inputs": ["/w/Cargo.toml"]
	}`)
	p, err := Parse(data, "/build")
	if err != nil {
		t.Fatalf("Parse() = _, %v", err)
	}
	if len(p.Invocations) != 2 {
		t.Fatalf("len(Invocations) = %d, want 2", len(p.Invocations))
	}
	if diff := cmp.Diff([]int{0}, p.Invocations[1].Deps, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("Invocations[1].Deps mismatch (-want +got):\n%s", diff)
	}
	if got := p.Invocations[1].LinkTargets(); got["a-link"] != "a" {
		t.Errorf("LinkTargets()[a-link] = %q, want \"a\"", got["a-link"])
	}
}
