package container

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func TestOpen(t *testing.T) {
	tmpDir := t.TempDir()
	dbDir := filepath.Join(tmpDir, "db")
	os.MkdirAll(dbDir, 0755)
	cvd := filepath.Join(tmpDir, "main.cvd")
	ndb := filepath.Join(tmpDir, "custom.ndb")
	os.WriteFile(cvd, []byte("ClamAV-VDB:"), 0644)
	os.WriteFile(ndb, []byte("Unix.A-1:0:*:aa\n"), 0644)

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"directory", dbDir, "*container.Directory"},
		{"signature file", ndb, "*container.Directory"},
		{"container", cvd, "*container.Sigtool"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex, err := Open(tt.input, Options{})
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			if got := fmt.Sprintf("%T", ex); got != tt.want {
				t.Errorf("Open() = %s, want %s", got, tt.want)
			}
			if ex.Source() != tt.input {
				t.Errorf("Source() = %q, want %q", ex.Source(), tt.input)
			}
		})
	}

	if _, err := Open(filepath.Join(tmpDir, "missing.cvd"), Options{}); err == nil {
		t.Error("Open() expected error for missing input")
	}
}

func TestDirectory_Extract(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	os.MkdirAll(filepath.Join(src, "extra"), 0755)
	os.WriteFile(filepath.Join(src, "main.ndb"), []byte("a\n"), 0644)
	os.WriteFile(filepath.Join(src, "extra", "local.hdb"), []byte("b\n"), 0644)

	d := &Directory{Path: src}
	if err := d.Extract(context.Background(), dst); err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	for rel, want := range map[string]string{"main.ndb": "a\n", filepath.Join("extra", "local.hdb"): "b\n"} {
		data, err := os.ReadFile(filepath.Join(dst, rel))
		if err != nil || string(data) != want {
			t.Errorf("%s = %q (%v), want %q", rel, data, err, want)
		}
	}
}

func TestDirectory_ExtractSingleFile(t *testing.T) {
	src := filepath.Join(t.TempDir(), "custom.ldb")
	dst := t.TempDir()
	os.WriteFile(src, []byte("Unix.A-1;Target:6;0;aa\n"), 0644)

	d := &Directory{Path: src}
	if err := d.Extract(context.Background(), dst); err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dst, "custom.ldb")); err != nil {
		t.Errorf("custom.ldb not copied: %v", err)
	}
}

func TestSigtool_Extract(t *testing.T) {
	defer replaceHooks(mockLookPath, mockHelperCommand)()

	dst := t.TempDir()
	s := NewSigtool("/data/main.cvd", "", nil)
	if err := s.Extract(context.Background(), dst); err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dst, "main.ndb"))
	if err != nil {
		t.Fatalf("helper did not unpack into working directory: %v", err)
	}
	if !strings.Contains(string(data), "/data/main.cvd") {
		t.Errorf("unpacked content = %q, want container path", data)
	}
}

func TestSigtool_ExtractFailure(t *testing.T) {
	defer replaceHooks(mockLookPath, mockHelperCommand)()

	s := NewSigtool("/data/broken.cvd", "", nil)
	err := s.Extract(context.Background(), t.TempDir())
	if err == nil {
		t.Fatal("Extract() error = nil, want failure")
	}
	if !strings.Contains(err.Error(), "Can't verify database integrity") {
		t.Errorf("Extract() error = %v, want sigtool stderr included", err)
	}
}

func TestSigtool_NotInstalled(t *testing.T) {
	defer replaceHooks(func(string) (string, error) { return "", exec.ErrNotFound }, mockHelperCommand)()

	err := NewSigtool("/data/main.cvd", "", nil).Extract(context.Background(), t.TempDir())
	if !errors.Is(err, exec.ErrNotFound) {
		t.Errorf("Extract() error = %v, want exec.ErrNotFound", err)
	}
}

// -- Test Helpers --

func replaceHooks(look func(string) (string, error), mock func(context.Context, string, ...string) *exec.Cmd) func() {
	origLook, origExec := lookPathFunc, execCmdFunc
	lookPathFunc, execCmdFunc = look, mock
	return func() {
		lookPathFunc, execCmdFunc = origLook, origExec
	}
}

func mockLookPath(file string) (string, error) {
	return "/usr/bin/" + file, nil
}

// mockHelperCommand re-runs the test binary as a fake sigtool
func mockHelperCommand(ctx context.Context, command string, args ...string) *exec.Cmd {
	cs := []string{"-test.run=TestHelperProcess", "--", command}
	cs = append(cs, args...)
	cmd := exec.CommandContext(ctx, os.Args[0], cs...)
	cmd.Env = []string{"GO_WANT_HELPER_PROCESS=1"}
	return cmd
}

// TestHelperProcess is not a real test. It behaves like "sigtool --unpack"
// by writing a database file into its working directory.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	args := os.Args
	for len(args) > 0 {
		if args[0] == "--" {
			args = args[1:]
			break
		}
		args = args[1:]
	}

	if len(args) != 3 || args[1] != "--unpack" {
		fmt.Fprintf(os.Stderr, "usage: sigtool --unpack <file>\n")
		os.Exit(2)
	}

	container := args[2]
	if strings.Contains(container, "broken") {
		fmt.Fprintf(os.Stderr, "ERROR: Can't verify database integrity\n")
		os.Exit(1)
	}

	content := "# unpacked from " + container + "\nUnix.A-1:0:*:aa\n"
	if err := os.WriteFile("main.ndb", []byte(content), 0644); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(0)
}
