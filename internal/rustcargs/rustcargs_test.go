package rustcargs

import "testing"

func TestLocateInputSkipsFlagsAndValues(t *testing.T) {
	args := []string{"--crate-name", "foo", "-C", "opt-level=2", "--edition", "2021", "src/lib.rs", "--emit", "link"}
	idx, ok := LocateInput(args)
	if !ok {
		t.Fatal("LocateInput() ok = false, want true")
	}
	if args[idx] != "src/lib.rs" {
		t.Errorf("LocateInput() = args[%d] = %q, want \"src/lib.rs\"", idx, args[idx])
	}
}

func TestLocateInputInlineValues(t *testing.T) {
	args := []string{"-Lfoo", "-lbar", "--crate-type=lib", "main.rs"}
	idx, ok := LocateInput(args)
	if !ok || args[idx] != "main.rs" {
		t.Errorf("LocateInput() = %d, %v, want index of main.rs", idx, ok)
	}
}

func TestLocateInputNoPositional(t *testing.T) {
	args := []string{"--crate-name", "foo", "-C", "opt-level=2"}
	if _, ok := LocateInput(args); ok {
		t.Error("LocateInput() ok = true, want false when no positional token exists")
	}
}

func TestLocateInputUnknownFlagTreatedAsBoolean(t *testing.T) {
	args := []string{"--some-unknown-flag", "src/main.rs"}
	idx, ok := LocateInput(args)
	if !ok || args[idx] != "src/main.rs" {
		t.Errorf("LocateInput() = %d, %v, want index of src/main.rs", idx, ok)
	}
}
