package plan

// crateKind is the closed set of crate-type tags; CrateType additionally
// carries the original wire name for the Other variant.
type crateKind int8

const (
	crateLib crateKind = iota
	crateRlib
	crateDylib
	crateCdylib
	crateStaticlib
	crateProcMacro
	crateBin
	crateOther
)

// CrateType is the linkage/artifact form a library invocation produces:
// Lib, Rlib, Dylib, Cdylib, Staticlib, ProcMacro, Bin, or Other(name).
type CrateType struct {
	kind  crateKind
	other string // populated only when kind == crateOther
}

var (
	CrateLib       = CrateType{kind: crateLib}
	CrateRlib      = CrateType{kind: crateRlib}
	CrateDylib     = CrateType{kind: crateDylib}
	CrateCdylib    = CrateType{kind: crateCdylib}
	CrateStaticlib = CrateType{kind: crateStaticlib}
	CrateProcMacro = CrateType{kind: crateProcMacro}
	CrateBin       = CrateType{kind: crateBin}
)

var crateTypeNames = map[string]CrateType{
	"lib":        CrateLib,
	"rlib":       CrateRlib,
	"dylib":      CrateDylib,
	"cdylib":     CrateCdylib,
	"staticlib":  CrateStaticlib,
	"proc-macro": CrateProcMacro,
	"bin":        CrateBin,
}

// ParseCrateType maps a target_kind string to a CrateType. Unrecognised
// names become CrateOther(name), carrying the original name through for
// diagnostics and RustcArg().
func ParseCrateType(name string) CrateType {
	if ct, ok := crateTypeNames[name]; ok {
		return ct
	}
	return CrateType{kind: crateOther, other: name}
}

// String returns the wire name rustc expects after --crate-type.
func (ct CrateType) String() string {
	if ct.kind == crateOther {
		return ct.other
	}
	for name, c := range crateTypeNames {
		if c.kind == ct.kind {
			return name
		}
	}
	return "other"
}

// Linkable reports whether artifacts of this crate type can be linked
// against by a downstream compilation (as opposed to merely executed).
func (ct CrateType) Linkable() bool {
	switch ct.kind {
	case crateLib, crateRlib, crateDylib, crateProcMacro:
		return true
	default:
		return false
	}
}

// RequiresUpstreamObjects reports whether producing this crate type
// requires upstream dependency object code to be linked in — true for
// everything except a pure rlib.
func (ct CrateType) RequiresUpstreamObjects() bool {
	return ct.kind != crateRlib
}

// RustcArg returns the string rustc expects as a --crate-type value.
func (ct CrateType) RustcArg() string {
	return ct.String()
}
