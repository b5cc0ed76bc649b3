package scriptoutput

import (
	"bufio"
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/mod/semver"

	"github.com/distr1/cargoninja/internal/cgerrors"
)

// minNewSyntaxMSRV is the minimum-supported-tool-version required for a
// host package to use cargo::-prefixed (new-syntax) instructions.
const minNewSyntaxMSRV = "1.77.0"

// ParseOptions carries the context needed to resolve MSRV gating and the
// RUSTC_BOOTSTRAP stability bypass, both of which depend on information
// external to the instruction stream itself.
type ParseOptions struct {
	PkgDescr string // e.g. "foo v1.2.3", used in whence/error strings
	PkgName  string // library name, matched against an external bypass list

	// DeclaredMSRV is the host package's declared minimum-supported Rust
	// version (empty if the package declares none, which is treated as
	// satisfying any requirement).
	DeclaredMSRV string

	// Nightly reports whether the tool itself is running on a nightly
	// release channel, one of the two RUSTC_BOOTSTRAP escape hatches.
	Nightly bool

	// ExternalRustcBootstrap lists the library names the operator's own
	// RUSTC_BOOTSTRAP environment variable allows, the other escape
	// hatch (a comma-separated allowlist in the real environment
	// variable, already split by the caller).
	ExternalRustcBootstrap []string

	// ExtraCheckCfg enables retention of rustc-check-cfg directives,
	// mirroring cargo's -Zcheck-cfg unstable flag.
	ExtraCheckCfg bool
}

// legacyTypedPrefixes are the reserved keys recognised as typed
// directives under the legacy cargo: namespace; anything else falls
// through to free-form metadata.
var legacyTypedPrefixes = map[string]bool{
	"rustc-flags":            true,
	"rustc-link-lib":         true,
	"rustc-link-search":      true,
	"rustc-link-arg":         true,
	"rustc-link-arg-bins":    true,
	"rustc-link-arg-bin":     true,
	"rustc-link-arg-tests":   true,
	"rustc-link-arg-benches": true,
	"rustc-link-arg-examples": true,
	"rustc-cdylib-link-arg":  true,
	"rustc-link-arg-cdylib":  true,
	"rustc-cfg":               true,
	"rustc-check-cfg":         true,
	"rustc-env":               true,
	"warning":                 true,
	"rerun-if-changed":        true,
	"rerun-if-env-changed":    true,
}

// Parse parses the captured stdout of one pre-build script. whence names
// the caller for error messages, e.g. "build script of foo v1.2.3".
func Parse(data []byte, whence string, opts ParseOptions) (*Output, error) {
	out := &Output{}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		raw := scanner.Bytes()
		if !utf8.Valid(raw) {
			continue
		}
		line := strings.TrimRight(string(raw), " \t\r")
		if err := parseLine(line, whence, opts, out); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &cgerrors.ScriptOutputShapeError{Whence: whence, Line: "", Reason: err.Error()}
	}
	return out, nil
}

func parseLine(line, whence string, opts ParseOptions, out *Output) error {
	var rest string
	var newSyntax bool
	switch {
	case strings.HasPrefix(line, "cargo::"):
		rest = line[len("cargo::"):]
		newSyntax = true
	case strings.HasPrefix(line, "cargo:"):
		rest = line[len("cargo:"):]
	default:
		return nil // not a relevant line
	}

	if newSyntax {
		if !msrvSatisfies(opts.DeclaredMSRV, minNewSyntaxMSRV) {
			return &cgerrors.MSRVError{
				PkgDescr: opts.PkgDescr,
				Declared: opts.DeclaredMSRV,
				Required: minNewSyntaxMSRV,
			}
		}
	}

	key, value, ok := cutFirst(rest, '=')
	if !ok {
		return &cgerrors.ScriptOutputShapeError{Whence: whence, Line: line, Reason: "missing '=' separator"}
	}
	value = strings.ReplaceAll(value, "script_out_dir_when_generated", "script_out_dir")

	if newSyntax {
		return applyKey(key, value, line, whence, opts, out, true)
	}
	if legacyTypedPrefixes[key] {
		return applyKey(key, value, line, whence, opts, out, false)
	}
	// legacy free-form metadata namespace: any key not among the reserved
	// typed prefixes is a metadata assignment under its own key name.
	out.Metadata = append(out.Metadata, kv{Key: key, Value: value})
	return nil
}

func applyKey(key, value, line, whence string, opts ParseOptions, out *Output, newSyntax bool) error {
	switch key {
	case "rustc-flags":
		return applyRustcFlags(value, line, whence, out)
	case "rustc-link-lib":
		out.LibraryLinks = append(out.LibraryLinks, value)
	case "rustc-link-search":
		out.LibraryPaths = append(out.LibraryPaths, value)
	case "rustc-link-arg-cdylib", "rustc-cdylib-link-arg":
		out.LinkerArgs = append(out.LinkerArgs, linkerArg{Target: TargetCdylib(), Flag: value})
	case "rustc-link-arg-bins":
		out.LinkerArgs = append(out.LinkerArgs, linkerArg{Target: TargetBin(), Flag: value})
	case "rustc-link-arg-tests":
		out.LinkerArgs = append(out.LinkerArgs, linkerArg{Target: TargetTest(), Flag: value})
	case "rustc-link-arg-benches":
		out.LinkerArgs = append(out.LinkerArgs, linkerArg{Target: TargetBench(), Flag: value})
	case "rustc-link-arg-examples":
		out.LinkerArgs = append(out.LinkerArgs, linkerArg{Target: TargetExample(), Flag: value})
	case "rustc-link-arg-bin":
		name, arg, ok := cutFirst(value, '=')
		if !ok {
			return &cgerrors.ScriptOutputShapeError{Whence: whence, Line: line, Reason: "rustc-link-arg-bin requires name=arg"}
		}
		out.LinkerArgs = append(out.LinkerArgs, linkerArg{Target: TargetSingleBin(name), Flag: arg})
	case "rustc-link-arg":
		out.LinkerArgs = append(out.LinkerArgs, linkerArg{Target: TargetAll(), Flag: value})
	case "rustc-cfg":
		out.Cfgs = append(out.Cfgs, value)
	case "rustc-check-cfg":
		if opts.ExtraCheckCfg {
			out.CheckCfgs = append(out.CheckCfgs, value)
		}
	case "rustc-env":
		return applyRustcEnv(value, line, whence, opts, out)
	case "warning":
		out.Warnings = append(out.Warnings, value)
	case "rerun-if-changed":
		out.RerunIfChanged = append(out.RerunIfChanged, value)
	case "rerun-if-env-changed":
		out.RerunIfEnvChanged = append(out.RerunIfEnvChanged, value)
	case "metadata":
		k, v, ok := cutFirst(value, '=')
		if !ok {
			return &cgerrors.ScriptOutputShapeError{Whence: whence, Line: line, Reason: "metadata requires key=value"}
		}
		out.Metadata = append(out.Metadata, kv{Key: k, Value: v})
	default:
		return &cgerrors.ScriptOutputShapeError{Whence: whence, Line: line, Reason: "unrecognised key " + key}
	}
	return nil
}

func applyRustcFlags(value, line, whence string, out *Output) error {
	fields := strings.Fields(value)
	for i := 0; i < len(fields); i++ {
		tok := fields[i]
		switch {
		case tok == "-L":
			if i+1 >= len(fields) {
				return &cgerrors.ScriptOutputShapeError{Whence: whence, Line: line, Reason: "-L without a value"}
			}
			i++
			out.LibraryPaths = append(out.LibraryPaths, fields[i])
		case strings.HasPrefix(tok, "-L"):
			out.LibraryPaths = append(out.LibraryPaths, tok[2:])
		case tok == "-l":
			if i+1 >= len(fields) {
				return &cgerrors.ScriptOutputShapeError{Whence: whence, Line: line, Reason: "-l without a value"}
			}
			i++
			out.LibraryLinks = append(out.LibraryLinks, fields[i])
		case strings.HasPrefix(tok, "-l"):
			out.LibraryLinks = append(out.LibraryLinks, tok[2:])
		default:
			return &cgerrors.ScriptOutputShapeError{Whence: whence, Line: line, Reason: "rustc-flags token " + tok + " is not -L/-l"}
		}
	}
	return nil
}

func applyRustcEnv(value, line, whence string, opts ParseOptions, out *Output) error {
	key, v, ok := cutFirst(value, '=')
	if !ok {
		return &cgerrors.ScriptOutputShapeError{Whence: whence, Line: line, Reason: "rustc-env requires key=value"}
	}
	if key == "RUSTC_BOOTSTRAP" {
		if !(opts.Nightly || bootstrapAllows(opts.ExternalRustcBootstrap, opts.PkgName)) {
			return &cgerrors.ScriptOutputShapeError{
				Whence: whence,
				Line:   line,
				Reason: "setting RUSTC_BOOTSTRAP violates the stable-compiler stability guarantee; see rust-lang's policy on unstable feature opt-in",
			}
		}
		out.Warnings = append(out.Warnings, "build script of "+opts.PkgDescr+" set RUSTC_BOOTSTRAP="+v)
	}
	out.Env = append(out.Env, kv{Key: key, Value: v})
	return nil
}

func bootstrapAllows(allowed []string, name string) bool {
	for _, a := range allowed {
		if a == name {
			return true
		}
	}
	return false
}

func cutFirst(s string, sep byte) (before, after string, ok bool) {
	i := strings.IndexByte(s, sep)
	if i < 0 {
		return "", "", false
	}
	return s[:i], s[i+1:], true
}

// msrvSatisfies reports whether declared (possibly empty) is >= required.
// An empty declared MSRV is treated as satisfying any requirement, since
// the host package made no claim that would be violated.
func msrvSatisfies(declared, required string) bool {
	if declared == "" {
		return true
	}
	return semver.Compare("v"+normalizeSemver(declared), "v"+normalizeSemver(required)) >= 0
}

// normalizeSemver pads a two-component version (e.g. "1.77") to three
// components, since golang.org/x/mod/semver requires a full major.minor.patch.
func normalizeSemver(v string) string {
	if strings.Count(v, ".") == 1 {
		return v + ".0"
	}
	return v
}
