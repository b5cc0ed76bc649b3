// Package rustcargs implements a declarative grammar for the subset of
// rustc's command-line flag set needed to locate the compiler's positional
// INPUT argument. It does not attempt to understand the compiler's full
// argument surface; that is explicitly out of scope (spec's Non-goals).
package rustcargs

// flagArity describes how many argument-vector slots a recognised flag
// consumes beyond itself.
type flagArity int

const (
	arityNone       flagArity = iota // boolean flag, e.g. --test
	aritySpaceOrEq                   // -C opt=val, or "-C" "opt=val" as two tokens
	arityAlwaysNext                  // always consumes the next token, e.g. --crate-name foo
)

// multiValued is the set of rustc flags that take a value, either as
// "-flag value" (two argv slots) or "-flag=value" / "-flagvalue" (one
// slot). Long-form double-dash flags join with '='; short-form single-dash
// flags may or may not have a space.
var multiValued = map[string]flagArity{
	"-C":                  aritySpaceOrEq,
	"--cfg":                arityAlwaysNext,
	"--check-cfg":          arityAlwaysNext,
	"-L":                  aritySpaceOrEq,
	"-l":                  aritySpaceOrEq,
	"--extern":             arityAlwaysNext,
	"-Z":                  aritySpaceOrEq,
	"--emit":               arityAlwaysNext,
	"--crate-type":         arityAlwaysNext,
	"--crate-name":         arityAlwaysNext,
	"--edition":            arityAlwaysNext,
	"--error-format":       arityAlwaysNext,
	"--json":               arityAlwaysNext,
	"--remap-path-prefix":  arityAlwaysNext,
	"--target":             arityAlwaysNext,
	"--out-dir":            arityAlwaysNext,
	"--target-dir":         arityAlwaysNext,
	"-o":                   arityAlwaysNext,
	"--sysroot":            arityAlwaysNext,
}

// LocateInput returns the index within args of the positional compiler
// input path: the first token that is neither a recognised flag nor the
// value slot consumed by one. Returns ok=false if no such token exists.
func LocateInput(args []string) (idx int, ok bool) {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "" {
			continue
		}
		if a[0] != '-' {
			return i, true
		}
		name, hasInlineValue := splitFlag(a)
		arity, known := multiValued[name]
		if !known {
			// Unrecognised single-dash/double-dash flag: assume it takes
			// no separate value slot (boolean-style), consistent with
			// rustc's convention that unknown -Z/--cfg-like flags are
			// always joined with '=' rather than split across argv.
			continue
		}
		switch arity {
		case arityNone:
			continue
		case aritySpaceOrEq:
			if hasInlineValue {
				continue
			}
			i++ // skip the value token
		case arityAlwaysNext:
			if !hasInlineValue {
				i++
			}
		}
	}
	return 0, false
}

// splitFlag reports the flag name (up to '=' for long flags, or the whole
// token for short flags) and whether a value was joined inline.
func splitFlag(a string) (name string, hasInlineValue bool) {
	for i, r := range a {
		if r == '=' {
			return a[:i], true
		}
	}
	if len(a) > 2 && a[1] != '-' {
		// short flag with an inline value, e.g. "-Lfoo" or "-lbar"
		return a[:2], len(a) > 2
	}
	return a, false
}
