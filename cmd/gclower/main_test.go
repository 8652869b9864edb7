// main_test.go tests the gclower commands.
package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testModule = `declare ptr @gc.get_stack_top()
declare ptr @gc.new_frame(i32)
declare void @gc.push_frame(ptr, i32)
declare void @gc.pop_frame(ptr)
declare ptr @gc.get_frame_slot(ptr, i32)
declare ptr @gc.alloc_bytes(ptr, i64, ptr)
declare void @gc.safepoint(ptr)
declare void @gc.write_barrier_1(ptr)
declare void @gc_pin(ptr, i32)

define i64 @main(ptr %ctx, ptr %page, i64 %n) {
entry:
  %top = call ptr @gc.get_stack_top()
  %frame = call ptr @gc.new_frame(i32 1)
  call void @gc.push_frame(ptr %frame, i32 1)
  %obj = call ptr @gc.alloc_bytes(ptr %ctx, i64 48, ptr null)
  %s = call ptr @gc.get_frame_slot(ptr %frame, i32 0)
  store ptr %obj, ptr %s, align 8
  call void @gc_pin(ptr %obj, i32 9)
  call void @gc.safepoint(ptr %page)
  call void @gc.pop_frame(ptr %frame)
  %r = add i64 %n, 1
  ret i64 %r
}

define void @barrier(ptr %parent) {
entry:
  %top = call ptr @gc.get_stack_top()
  call void @gc.write_barrier_1(ptr %parent)
  ret void
}
`

// writeModule writes testModule to a temporary file.
func writeModule(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prog.gcir")
	if err := os.WriteFile(path, []byte(testModule), 0o644); err != nil {
		t.Fatalf("failed to write module: %v", err)
	}
	return path
}

// execute runs dispatch and returns the exit code and captured streams.
func execute(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := dispatch(args, strings.NewReader(stdin), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

// TestDispatch tests command selection and exit codes.
func TestDispatch(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		wantCode   int
		wantStdout string
		wantStderr string
	}{
		{"no command", nil, 1, "", "USAGE:"},
		{"unknown", []string{"build"}, 1, "", "Unknown command: build"},
		{"help", []string{"help"}, 0, "COMMANDS:", ""},
		{"version", []string{"version"}, 0, "gclower version " + version, ""},
		{"bad flag", []string{"lower", "-nope", "x.gcir"}, 2, "", "flag provided but not defined"},
		{"flag help", []string{"run", "-h"}, 0, "", "usage: gclower run"},
		{"missing file", []string{"lower", "does-not-exist.gcir"}, 1, "", "Error: failed to read module"},
		{"bad collector", []string{"lower", "-gc", "mark", "-"}, 1, "", `unknown collector "mark"`},
		{"no input", []string{"lower"}, 2, "", "usage: gclower lower"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, stdout, stderr := execute(t, "", tt.args...)
			if code != tt.wantCode {
				t.Errorf("exit code = %d, want %d (stderr %q)", code, tt.wantCode, stderr)
			}
			if !strings.Contains(stdout, tt.wantStdout) {
				t.Errorf("stdout = %q, want containing %q", stdout, tt.wantStdout)
			}
			if !strings.Contains(stderr, tt.wantStderr) {
				t.Errorf("stderr = %q, want containing %q", stderr, tt.wantStderr)
			}
		})
	}
}

// TestLowerCommand tests lowering to stdout and to a file.
func TestLowerCommand(t *testing.T) {
	path := writeModule(t)

	code, stdout, stderr := execute(t, "", "lower", "-gc", "cursor", "-v", path)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr:\n%s", code, stderr)
	}
	for _, want := range []string{"fastpath:", "slowpath:", "call void @gc_wb_1(ptr %parent)", "load volatile"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("output missing %q:\n%s", want, stdout)
		}
	}
	if !strings.Contains(stderr, "lowered 2 function(s), skipped 0") {
		t.Errorf("stats missing:\n%s", stderr)
	}
	if strings.Contains(stderr, "warning:") {
		t.Errorf("unexpected residual warning:\n%s", stderr)
	}

	out := filepath.Join(t.TempDir(), "out.gcir")
	code, stdout, stderr = execute(t, "", "lower", "-o", out, path)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr:\n%s", code, stderr)
	}
	if stdout != "" {
		t.Errorf("stdout = %q, want empty with -o", stdout)
	}
	if !strings.Contains(stderr, "warning: not lowered for the pool collector: @barrier: call void @gc.write_barrier_1") {
		t.Errorf("residual warning missing:\n%s", stderr)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("failed to read output: %v", err)
	}
	if !strings.Contains(string(data), "@gc_pool_alloc") {
		t.Errorf("pool output does not call gc_pool_alloc:\n%s", data)
	}
}

// TestLowerStdin tests reading the module from stdin with debug tracing.
func TestLowerStdin(t *testing.T) {
	code, stdout, stderr := execute(t, testModule, "lower", "-debug", "-")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr:\n%s", code, stderr)
	}
	if !strings.Contains(stdout, "define i64 @main") {
		t.Errorf("output missing @main:\n%s", stdout)
	}
	if !strings.Contains(stderr, `msg="processing function"`) {
		t.Errorf("debug trace missing:\n%s", stderr)
	}
}

// TestRunCommand tests executing a module.
func TestRunCommand(t *testing.T) {
	path := writeModule(t)

	tests := []struct {
		name       string
		args       []string
		wantStdout []string
		wantStderr []string
	}{
		{
			name:       "plain",
			args:       []string{"run", path, "41"},
			wantStdout: []string{"@main returned 42"},
		},
		{
			name:       "negative argument",
			args:       []string{"run", "-gc", "cursor", path, "-5"},
			wantStdout: []string{"@main returned -4"},
		},
		{
			name:       "safepoints",
			args:       []string{"run", "-safepoints", "-v", path, "0x10"},
			wantStdout: []string{"@main returned 17", "deepest shadow stack: 1 frame(s), 1 root(s)"},
			wantStderr: []string{"runtime: 1 pool"},
		},
		{
			name:       "pinlog",
			args:       []string{"run", "-pinlog", "-heap", "8MiB", "-region", "4KiB", path, "1"},
			wantStdout: []string{"@main returned 2"},
			wantStderr: []string{`"lineno": 9`, `"type": "pooled object"`, "========================="},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, stdout, stderr := execute(t, "", tt.args...)
			if code != 0 {
				t.Fatalf("exit code = %d, stderr:\n%s", code, stderr)
			}
			for _, want := range tt.wantStdout {
				if !strings.Contains(stdout, want) {
					t.Errorf("stdout = %q, want containing %q", stdout, want)
				}
			}
			for _, want := range tt.wantStderr {
				if !strings.Contains(stderr, want) {
					t.Errorf("stderr = %q, want containing %q", stderr, want)
				}
			}
		})
	}
}

// TestRunCommandErrors tests run failures.
func TestRunCommandErrors(t *testing.T) {
	path := writeModule(t)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"bad argument", []string{"run", path, "many"}, `invalid argument "many"`},
		{"bad heap", []string{"run", "-heap", "lots", path, "1"}, "invalid -heap"},
		{"missing argument", []string{"run", path}, "needs an argument for %n"},
		{"residual", []string{"run", "-entry", "barrier", path, "0"}, "intrinsic was not lowered"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := execute(t, "", tt.args...)
			if code != 1 {
				t.Errorf("exit code = %d, want 1", code)
			}
			if !strings.Contains(stderr, tt.wantErr) {
				t.Errorf("stderr = %q, want containing %q", stderr, tt.wantErr)
			}
		})
	}
}

// TestParseArg tests integer argument parsing.
func TestParseArg(t *testing.T) {
	tests := []struct {
		in      string
		want    uint64
		wantErr bool
	}{
		{"0", 0, false},
		{"42", 42, false},
		{"-1", ^uint64(0), false},
		{"0x10", 16, false},
		{"18446744073709551615", ^uint64(0), false},
		{"1.5", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseArg(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseArg(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseArg(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

// TestCatalogCommand tests the catalog listing for both pointer sizes.
func TestCatalogCommand(t *testing.T) {
	tests := []struct {
		ptr  string
		want []string
	}{
		{"8", []string{
			"declare ptr @gc.alloc_bytes(ptr, i64, ptr)",
			"declare ptr @gc_pool_alloc(ptr, i32, i32, ptr) noalias nonnull",
			"pools +64 stride 24",
			"big object header 32",
		}},
		{"4", []string{
			"declare ptr @gc.alloc_bytes(ptr, i32, ptr)",
			"pointer size 4, header 4",
			"big object header 16",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.ptr, func(t *testing.T) {
			code, stdout, stderr := execute(t, "", "catalog", "-ptr", tt.ptr)
			if code != 0 {
				t.Fatalf("exit code = %d, stderr:\n%s", code, stderr)
			}
			for _, want := range tt.want {
				if !strings.Contains(stdout, want) {
					t.Errorf("catalog missing %q:\n%s", want, stdout)
				}
			}
		})
	}
}
