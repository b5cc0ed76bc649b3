package plan

// TargetKind is the kind of artifact an invocation produces. It is a
// closed sum type over Lib(crate types), Bin, Test, Bench, ExampleBin,
// ExampleLib(crate types) and CustomBuild, implemented as a tagged struct
// rather than an interface. The zero value TargetKind{} is Lib with no
// crate types.
type TargetKind struct {
	kind   targetKindTag
	crates []CrateType // populated for kindLib and kindExampleLib
}

type targetKindTag int8

const (
	kindLib targetKindTag = iota
	kindBin
	kindTest
	kindBench
	kindExampleBin
	kindExampleLib
	kindCustomBuild
)

func Lib(crates []CrateType) TargetKind        { return TargetKind{kind: kindLib, crates: crates} }
func Bin() TargetKind                          { return TargetKind{kind: kindBin} }
func Test() TargetKind                         { return TargetKind{kind: kindTest} }
func Bench() TargetKind                        { return TargetKind{kind: kindBench} }
func ExampleBin() TargetKind                   { return TargetKind{kind: kindExampleBin} }
func ExampleLib(crates []CrateType) TargetKind { return TargetKind{kind: kindExampleLib, crates: crates} }
func CustomBuild() TargetKind                  { return TargetKind{kind: kindCustomBuild} }

// CrateTypes returns the crate types for a Lib or ExampleLib target kind,
// or nil for any other kind.
func (t TargetKind) CrateTypes() []CrateType { return t.crates }

func (t TargetKind) IsLib() bool          { return t.kind == kindLib }
func (t TargetKind) IsBin() bool          { return t.kind == kindBin }
func (t TargetKind) IsTest() bool         { return t.kind == kindTest }
func (t TargetKind) IsBench() bool        { return t.kind == kindBench }
func (t TargetKind) IsExeExample() bool   { return t.kind == kindExampleBin }
func (t TargetKind) IsCustomBuild() bool  { return t.kind == kindCustomBuild }

// IsLinkable reports whether the target kind's crate types include at
// least one linkable crate type (Lib/ExampleLib only; Bin/Test/Bench/
// CustomBuild never are).
func (t TargetKind) IsLinkable() bool {
	for _, ct := range t.crates {
		if ct.Linkable() {
			return true
		}
	}
	return false
}

func (t TargetKind) isDylibLike(want crateKind) bool {
	for _, ct := range t.crates {
		if ct.kind == want {
			return true
		}
	}
	return false
}

func (t TargetKind) IsDylib() bool     { return t.isDylibLike(crateDylib) }
func (t TargetKind) IsCdylib() bool    { return t.isDylibLike(crateCdylib) }
func (t TargetKind) IsStaticlib() bool { return t.isDylibLike(crateStaticlib) }

// String renders a short, rule-ID-safe label for the target kind.
func (t TargetKind) String() string {
	switch t.kind {
	case kindLib:
		return "lib"
	case kindBin:
		return "bin"
	case kindTest:
		return "test"
	case kindBench:
		return "bench"
	case kindExampleBin:
		return "example"
	case kindExampleLib:
		return "example-lib"
	case kindCustomBuild:
		return "custom-build"
	default:
		return "unknown"
	}
}

// parseTargetKind deserialises the JSON target_kind array, e.g. ["bin"],
// ["example"], ["test"], ["bench"], ["custom-build"], or a crate-type list
// for a Lib target. An empty array is a hard error. Per spec, any shape
// not matching one of the single-element sentinels above is Lib(kinds);
// ExampleLib is never produced by deserialisation alone (cargo's
// build-plan JSON carries no separate discriminator distinguishing a
// library-shaped example from an ordinary library target) but remains
// constructible for callers that determine it another way, e.g. by
// cross-referencing the owning package's manifest.
func parseTargetKind(elems []string) (TargetKind, error) {
	if len(elems) == 0 {
		return TargetKind{}, errEmptyTargetKind
	}
	switch elems[0] {
	case "bin":
		return Bin(), nil
	case "example":
		return ExampleBin(), nil
	case "test":
		return Test(), nil
	case "bench":
		return Bench(), nil
	case "custom-build":
		return CustomBuild(), nil
	}
	crates := make([]CrateType, len(elems))
	for i, e := range elems {
		crates[i] = ParseCrateType(e)
	}
	return Lib(crates), nil
}
