package plan

import (
	"path/filepath"
	"strings"

	"github.com/distr1/cargoninja/internal/cgerrors"
)

// Invocation is one tool execution in the build plan: a compiler
// invocation, a build-script run, or a linker step. Invocations reference
// each other by integer index into the owning Plan's Invocations slice;
// the plan is a strict DAG and deps[i] always precede self_index.
type Invocation struct {
	PackageName    string
	PackageVersion string
	TargetKind     TargetKind
	CompileMode    CompileMode
	Deps           []int
	Program        string
	Args           []string
	Env            map[string]string
	Cwd            string
	Links          map[string]string // link_path -> target_path
	Features       []string          // surfaced in generated ninja description= fields

	rawOutputs []string // as read from the plan JSON, before dwp filtering
	selfIndex  int
}

// Index returns the invocation's position in the owning Plan's
// Invocations slice, the stable identifier its Deps entries reference.
func (inv *Invocation) Index() int { return inv.selfIndex }

// PkgDescr renders "name vversion" the way cargo diagnostics do, used in
// error messages and script-output "whence" strings.
func (inv *Invocation) PkgDescr() string {
	return inv.PackageName + " v" + inv.PackageVersion
}

// Outputs returns the invocation's canonical output paths: for a
// RunCustomBuild invocation, the single captured-instruction-stream path
// derived from OUT_DIR; for every other invocation, the raw outputs with
// any `dwp` extension entries filtered out.
func (inv *Invocation) Outputs() []string {
	if inv.CompileMode.IsRunCustomBuild() {
		out, err := inv.scriptOutputPath()
		if err != nil {
			return nil
		}
		return []string{out}
	}
	return filterDWP(inv.rawOutputs)
}

// scriptOutputPath derives parent(OUT_DIR)/output for a RunCustomBuild
// invocation. Returns cgerrors.MissingEnvError if OUT_DIR is unset.
func (inv *Invocation) scriptOutputPath() (string, error) {
	outDir, ok := inv.Env["OUT_DIR"]
	if !ok {
		return "", &cgerrors.MissingEnvError{Var: "OUT_DIR", PkgName: inv.PackageName}
	}
	return filepath.Join(filepath.Dir(outDir), "output"), nil
}

func filterDWP(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if strings.TrimPrefix(filepath.Ext(p), ".") == "dwp" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// LinkTargets returns inv.Links with any dwp-extension target filtered
// out, mirroring the filtering applied to Outputs.
func (inv *Invocation) LinkTargets() map[string]string {
	if len(inv.Links) == 0 {
		return inv.Links
	}
	out := make(map[string]string, len(inv.Links))
	for link, target := range inv.Links {
		if strings.TrimPrefix(filepath.Ext(target), ".") == "dwp" {
			continue
		}
		out[link] = target
	}
	return out
}

// pkgUnderscored returns the package name with '-' replaced by '_', as
// used in dep-info and build-script directory names.
func (inv *Invocation) pkgUnderscored() string {
	return strings.ReplaceAll(inv.PackageName, "-", "_")
}

// extraFilename returns the invocation's extra-filename disambiguator (the
// rustc metadata hash suffix), read off the -C extra-filename= argument
// when present, else empty.
func (inv *Invocation) extraFilename() string {
	for i, a := range inv.Args {
		if a == "-C" && i+1 < len(inv.Args) {
			if v, ok := strings.CutPrefix(inv.Args[i+1], "extra-filename="); ok {
				return v
			}
		}
		if v, ok := strings.CutPrefix(a, "extra-filename="); ok {
			return v
		}
	}
	return ""
}

// DepInfoPath derives the dep-info (.d) file rustc will write for this
// invocation, or cgerrors.MissingEnvError / a sentinel "no dep-info"
// condition for RunCustomBuild invocations, which never produce one.
func (inv *Invocation) DepInfoPath() (string, error) {
	if inv.TargetKind.IsCustomBuild() && inv.CompileMode.IsRunCustomBuild() {
		return "", ErrNoDepInfo
	}
	extra := inv.extraFilename()
	if extra == "" {
		return "", &cgerrors.MissingEnvError{Var: "extra-filename", PkgName: inv.PackageName}
	}
	base := inv.pkgUnderscored() + extra
	switch {
	case inv.TargetKind.IsCustomBuild():
		return filepath.Join("build", base, "build_script_build"+extra+".d"), nil
	default:
		return filepath.Join("deps", base+".d"), nil
	}
}

// ErrNoDepInfo is returned by DepInfoPath for RunCustomBuild invocations,
// which execute a compiled build script rather than compiling source and
// so never produce a compiler dep-info file. The lowerer treats this as a
// signal to omit the depfile directive, not a hard failure.
var ErrNoDepInfo = &noDepInfoError{}

type noDepInfoError struct{}

func (*noDepInfoError) Error() string {
	return "invocation produces no dep-info file"
}
