package plan

// CompileMode is the role an invocation plays in the overall pipeline.
// Closed sum type over Build, Test, Check{as_test}, Bench, Doc{with_deps,
// json}, Doctest, Docscrape, RunCustomBuild.
type CompileMode struct {
	kind     compileModeTag
	asTest   bool // Check only
	withDeps bool // Doc only
	json     bool // Doc only
}

type compileModeTag int8

const (
	modeBuild compileModeTag = iota
	modeTest
	modeCheck
	modeBench
	modeDoc
	modeDoctest
	modeDocscrape
	modeRunCustomBuild
)

func ModeBuild() CompileMode         { return CompileMode{kind: modeBuild} }
func ModeTest() CompileMode          { return CompileMode{kind: modeTest} }
func ModeCheck(asTest bool) CompileMode {
	return CompileMode{kind: modeCheck, asTest: asTest}
}
func ModeBench() CompileMode { return CompileMode{kind: modeBench} }
func ModeDoc(withDeps, json bool) CompileMode {
	return CompileMode{kind: modeDoc, withDeps: withDeps, json: json}
}
func ModeDoctest() CompileMode       { return CompileMode{kind: modeDoctest} }
func ModeDocscrape() CompileMode     { return CompileMode{kind: modeDocscrape} }
func ModeRunCustomBuild() CompileMode { return CompileMode{kind: modeRunCustomBuild} }

func (m CompileMode) IsTest() bool          { return m.kind == modeTest }
func (m CompileMode) IsBench() bool         { return m.kind == modeBench }
func (m CompileMode) IsRunCustomBuild() bool { return m.kind == modeRunCustomBuild }
func (m CompileMode) IsCheckAsTest() bool   { return m.kind == modeCheck && m.asTest }

// compileModeNames mirrors the plan JSON's compile_mode string values.
var compileModeNames = map[string]CompileMode{
	"build":            ModeBuild(),
	"test":             ModeTest(),
	"check":            ModeCheck(false),
	"check-test":       ModeCheck(true),
	"bench":            ModeBench(),
	"doc":              ModeDoc(false, false),
	"doc-all":          ModeDoc(true, false),
	"doc-json":         ModeDoc(false, true),
	"doctest":          ModeDoctest(),
	"docscrape":        ModeDocscrape(),
	"run-custom-build": ModeRunCustomBuild(),
}

// parseCompileMode deserialises the JSON compile_mode string. Unknown
// values are a hard error — spec.md §4.1.
func parseCompileMode(s string) (CompileMode, error) {
	m, ok := compileModeNames[s]
	if !ok {
		return CompileMode{}, &unknownCompileModeError{Value: s}
	}
	return m, nil
}

// String renders a short, rule-ID-safe label for the compile mode.
func (m CompileMode) String() string {
	switch m.kind {
	case modeBuild:
		return "build"
	case modeTest:
		return "test"
	case modeCheck:
		if m.asTest {
			return "check-test"
		}
		return "check"
	case modeBench:
		return "bench"
	case modeDoc:
		switch {
		case m.withDeps:
			return "doc-all"
		case m.json:
			return "doc-json"
		default:
			return "doc"
		}
	case modeDoctest:
		return "doctest"
	case modeDocscrape:
		return "docscrape"
	case modeRunCustomBuild:
		return "run-custom-build"
	default:
		return "unknown"
	}
}

type unknownCompileModeError struct{ Value string }

func (e *unknownCompileModeError) Error() string {
	return "unknown compile_mode " + e.Value
}
