// Package cgerrors defines the structured error kinds surfaced by the
// plan, scriptoutput and graph packages. The kinds that have an underlying
// cause (PlanAcquisitionError, PlanShapeError, ExecutorFailureError) wrap
// it and expose it via Unwrap; the others carry only their own fields.
// None of them ever cause a panic or os.Exit;
// only cmd/cargoninja's main renders them and sets the process exit code.
package cgerrors

import "golang.org/x/xerrors"

const docsURL = "https://doc.rust-lang.org/cargo/reference/build-scripts.html"

// PlanAcquisitionError wraps a failure to obtain the build plan from the
// package manager: a non-zero exit, or stdout that is not valid UTF-8.
type PlanAcquisitionError struct {
	Program string
	Args    []string
	Err     error
}

func (e *PlanAcquisitionError) Error() string {
	return xerrors.Errorf("acquiring build plan (%s %v): %w", e.Program, e.Args, e.Err).Error()
}

func (e *PlanAcquisitionError) Unwrap() error { return e.Err }

// PlanShapeError wraps a JSON deserialisation failure, or an invalid
// target_kind/compile_mode discriminator in the plan document.
type PlanShapeError struct {
	Context string // e.g. "invocations[3].target_kind"
	Err     error
}

func (e *PlanShapeError) Error() string {
	return xerrors.Errorf("malformed build plan at %s: %w", e.Context, e.Err).Error()
}

func (e *PlanShapeError) Unwrap() error { return e.Err }

// ScriptOutputShapeError wraps a malformed build-script instruction line:
// an unknown key, a missing '=', an invalid rustc-flags token, or a
// disallowed RUSTC_BOOTSTRAP assignment.
type ScriptOutputShapeError struct {
	Whence string // "build script of <pkg_descr>"
	Line   string
	Reason string
}

func (e *ScriptOutputShapeError) Error() string {
	return xerrors.Errorf("%s: %s (line %q); see %s", e.Whence, e.Reason, e.Line, docsURL).Error()
}

// MSRVError is returned when a build script emits a cargo::-prefixed
// (new-syntax) instruction but the host package declares a
// minimum-supported-tool-version below the 1.77.0 floor required for that
// syntax.
type MSRVError struct {
	PkgDescr string // e.g. "foo v1.2.3"
	Declared string // the package's declared MSRV, e.g. "1.70.0"
	Required string // "1.77.0"
}

func (e *MSRVError) Error() string {
	return xerrors.Errorf("%s declares rust-version %s, but new-syntax cargo:: directives require >= %s", e.PkgDescr, e.Declared, e.Required).Error()
}

// PathNonUTF8Error is returned when a path observed in the plan (an input,
// output or link path) cannot be expressed as UTF-8; the generated
// build-graph syntax is UTF-8 only.
type PathNonUTF8Error struct {
	Raw []byte
}

func (e *PathNonUTF8Error) Error() string {
	return xerrors.Errorf("path is not valid UTF-8: %q", e.Raw).Error()
}

// MissingEnvError is returned when an invocation that requires a specific
// environment variable (OUT_DIR for a script invocation, extra-filename for
// a dep-info path request) does not have it set.
type MissingEnvError struct {
	Var     string
	PkgName string
}

func (e *MissingEnvError) Error() string {
	return xerrors.Errorf("invocation for package %s is missing required env var %s", e.PkgName, e.Var).Error()
}

// ExecutorFailureError wraps a non-zero exit from the external file-level
// build executor when it is invoked to run the script (configure) stage,
// or a failure to run a build script directly or read its captured output.
type ExecutorFailureError struct {
	Program string
	Args    []string
	Err     error
}

func (e *ExecutorFailureError) Error() string {
	return xerrors.Errorf("executor %s %v failed: %w", e.Program, e.Args, e.Err).Error()
}

func (e *ExecutorFailureError) Unwrap() error { return e.Err }
