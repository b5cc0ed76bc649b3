// Command cargoninja translates a cargo build plan into a ninja-syntax
// build graph and drives the two-stage (configure, build) execution
// against an external file-level executor.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/xerrors"

	"github.com/distr1/cargoninja"
	"github.com/distr1/cargoninja/internal/driver"
)

var (
	debug       = flag.Bool("debug", false, "enable debug mode: format error messages with additional detail")
	executor    = flag.String("executor", "ninja", "file-level build executor binary to invoke for the configure stage")
	manifestDir = flag.String("manifest-path", "", "path to Cargo.toml to pass through to cargo")
	pkgManager  = flag.String("cargo", "cargo", "package manager binary to invoke")
)

// passthroughFlags are cargo selection flags forwarded verbatim to the
// package manager's build-plan invocation; see the driver's command-line
// surface.
var passthroughFlags = []string{
	"package", "workspace", "exclude", "lib", "bins", "bin", "examples",
	"example", "tests", "test", "benches", "bench", "all-targets",
	"features", "all-features", "no-default-features", "release",
	"profile", "target", "timings", "frozen", "locked", "offline",
}

type multiFlag []string

func (m *multiFlag) String() string { return fmt.Sprint([]string(*m)) }
func (m *multiFlag) Set(v string) error {
	*m = append(*m, v)
	return nil
}

func cmdBuild(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("build", flag.ContinueOnError)
	passthrough := map[string]*string{}
	for _, name := range passthroughFlags {
		passthrough[name] = fset.String(name, "", "forwarded to cargo build --build-plan")
	}
	zflags := multiFlag{}
	fset.Var(&zflags, "Z", "forwarded unstable cargo flag (repeatable)")
	if err := fset.Parse(args); err != nil {
		return err
	}

	rest := fset.Args()
	if len(rest) < 1 {
		return xerrors.New("usage: cargoninja build [flags] <build-dir>")
	}
	buildDir, err := filepath.Abs(rest[0])
	if err != nil {
		return xerrors.Errorf("resolving build directory: %w", err)
	}
	if err := os.MkdirAll(buildDir, 0o755); err != nil {
		return xerrors.Errorf("creating build directory: %w", err)
	}
	os.Setenv("CARGO_TARGET_DIR", buildDir)
	cargoninja.RegisterAtExit(func() error {
		os.Unsetenv("CARGO_TARGET_DIR")
		return nil
	})

	d := &driver.Driver{
		BuildRoot:   buildDir,
		CargoBin:    *pkgManager,
		ManifestDir: *manifestDir,
		Executor:    *executor,
		CargoArgs:   cargoArgsFrom(passthrough, zflags),
	}
	return d.Run(ctx)
}

func cmdConfigure(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("configure", flag.ContinueOnError)
	pkgDescr := fset.String("pkg", "", "package descriptor the script output belongs to, e.g. \"foo v1.2.3\"")
	if err := fset.Parse(args); err != nil {
		return err
	}
	rest := fset.Args()
	if len(rest) != 1 {
		return xerrors.New("usage: cargoninja configure [-pkg=name vversion] <script-output-file>")
	}
	return driver.ParseScriptOutputFile(rest[0], *pkgDescr)
}

func cargoArgsFrom(passthrough map[string]*string, zflags multiFlag) []string {
	var out []string
	for name, val := range passthrough {
		if *val != "" {
			out = append(out, "--"+name, *val)
		}
	}
	for _, z := range zflags {
		out = append(out, "-Z", z)
	}
	return out
}

func funcmain() error {
	flag.Parse()

	type cmd struct {
		fn func(ctx context.Context, args []string) error
	}
	verbs := map[string]cmd{
		"build":     {cmdBuild},
		"configure": {cmdConfigure},
	}

	args := flag.Args()
	verb := "build"
	if len(args) > 0 {
		verb, args = args[0], args[1:]
	}

	v, ok := verbs[verb]
	if !ok {
		return xerrors.Errorf("unknown command %q; syntax: cargoninja <build|configure> [options]", verb)
	}

	ctx, canc := cargoninja.InterruptibleContext()
	defer canc()

	runErr := v.fn(ctx, args)
	// RunAtExit fires regardless of outcome: a registered cleanup (undoing
	// a global mutation, removing a stale partial artifact) is just as
	// necessary on an interrupted or failed run as on a clean one.
	if err := cargoninja.RunAtExit(); err != nil && runErr == nil {
		runErr = err
	}
	if runErr != nil {
		if *debug {
			return fmt.Errorf("%s: %+v", verb, runErr)
		}
		return fmt.Errorf("%s: %v", verb, runErr)
	}
	return nil
}

func main() {
	if err := funcmain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
