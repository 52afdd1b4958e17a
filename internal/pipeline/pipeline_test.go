package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/IvanShishkin/clamjuice/internal/filter"
	"github.com/IvanShishkin/clamjuice/pkg/models"
)

func newPipeline(t *testing.T, opts filter.Options, popts Options) *Pipeline {
	t.Helper()
	policy, err := filter.NewPolicy(opts)
	if err != nil {
		t.Fatalf("NewPolicy() error = %v", err)
	}
	p, err := New(filter.NewEngine(nil), policy, popts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", path, err)
	}
	return string(data)
}

func TestNew_NilArguments(t *testing.T) {
	policy, _ := filter.NewPolicy(filter.Options{})
	if _, err := New(nil, policy, Options{}); err == nil {
		t.Error("New() with nil engine should fail")
	}
	if _, err := New(filter.NewEngine(nil), nil, Options{}); err == nil {
		t.Error("New() with nil policy should fail")
	}
}

func TestProcessFile_NDB(t *testing.T) {
	tmpDir := t.TempDir()
	src := filepath.Join(tmpDir, "in", "main.ndb")
	dst := filepath.Join(tmpDir, "main.ndb")
	writeFile(t, src, strings.Join([]string{
		"# header comment",
		"Win.Trojan.Agent-1:1:*:deadbeef",
		"Unix.Trojan.Mirai-1:6:*:7f454c46",
		"",
		"Unix.Trojan.Mirai-2:1:*:7f454c46",
		"Win.Test.EICAR_NDB-1:1:*:deadbeef",
		"broken-line",
		"Osx.Trojan.X-1:6:EP+0:aabb:51:255",
	}, "\n")+"\n")

	p := newPipeline(t, filter.Options{
		ExcludePlatforms: []string{"Win"},
		NDBTypes:         []int{0, 6},
		AlwaysKeep:       func(name string) bool { return strings.Contains(name, "EICAR") },
	}, Options{})

	outcome, err := p.ProcessFile(context.Background(), src, dst, models.FormatNDB)
	if err != nil {
		t.Fatalf("ProcessFile() error = %v", err)
	}

	want := strings.Join([]string{
		"# header comment",
		"Unix.Trojan.Mirai-1:6:*:7f454c46",
		"",
		"Win.Test.EICAR_NDB-1:1:*:deadbeef",
		"Osx.Trojan.X-1:6:EP+0:aabb:51:255",
	}, "\n") + "\n"
	if got := readFile(t, dst); got != want {
		t.Errorf("output =\n%s\nwant\n%s", got, want)
	}

	if outcome.Read != 6 {
		t.Errorf("Read = %d, want 6", outcome.Read)
	}
	if outcome.Kept != 3 {
		t.Errorf("Kept = %d, want 3", outcome.Kept)
	}
	if outcome.Passed != 2 {
		t.Errorf("Passed = %d, want 2", outcome.Passed)
	}
	wantDropped := models.DropCounts{Platform: 1, NDBType: 1, Malformed: 1}
	if outcome.Dropped != wantDropped {
		t.Errorf("Dropped = %+v, want %+v", outcome.Dropped, wantDropped)
	}
	if outcome.SizeAfter != int64(len(want)) {
		t.Errorf("SizeAfter = %d, want %d", outcome.SizeAfter, len(want))
	}
	if len(outcome.Malformed) != 1 || outcome.Malformed[0].Line != 7 {
		t.Errorf("Malformed = %+v, want one sample at line 7", outcome.Malformed)
	}
}

func TestProcessFile_MalformedLDB(t *testing.T) {
	tmpDir := t.TempDir()
	src := filepath.Join(tmpDir, "in", "daily.ldb")
	dst := filepath.Join(tmpDir, "daily.ldb")
	writeFile(t, src, "Win.Trojan.X-1;Target:1;0;aabb\nLinux.Trojan.Y-1;Target:6\nUnix.Trojan.Z-1;Target:6;0;ccdd\n")

	p := newPipeline(t, filter.Options{ExcludePlatforms: []string{"Win"}}, Options{})
	outcome, err := p.ProcessFile(context.Background(), src, dst, models.FormatLDB)
	if err != nil {
		t.Fatalf("ProcessFile() error = %v", err)
	}

	if outcome.Dropped.Malformed != 1 {
		t.Errorf("Dropped.Malformed = %d, want 1", outcome.Dropped.Malformed)
	}
	if got, want := readFile(t, dst), "Unix.Trojan.Z-1;Target:6;0;ccdd\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestProcessFile_MalformedSampleCap(t *testing.T) {
	tmpDir := t.TempDir()
	src := filepath.Join(tmpDir, "in", "main.hdb")
	dst := filepath.Join(tmpDir, "main.hdb")
	writeFile(t, src, strings.Repeat("bad\n", 10))

	p := newPipeline(t, filter.Options{}, Options{MalformedSamples: 3})
	outcome, err := p.ProcessFile(context.Background(), src, dst, models.FormatHDB)
	if err != nil {
		t.Fatalf("ProcessFile() error = %v", err)
	}
	if outcome.Dropped.Malformed != 10 {
		t.Errorf("Dropped.Malformed = %d, want 10", outcome.Dropped.Malformed)
	}
	if len(outcome.Malformed) != 3 {
		t.Errorf("len(Malformed) = %d, want 3", len(outcome.Malformed))
	}
}

func TestProcessFile_ExcludedFormat(t *testing.T) {
	tmpDir := t.TempDir()
	src := filepath.Join(tmpDir, "in", "main.mdb")
	dst := filepath.Join(tmpDir, "main.mdb")
	writeFile(t, src, "45056:3ea7d00dedd30bcdf46191358c36ffa4:Win.Test.EICAR_MDB-1\n")

	p := newPipeline(t, filter.Options{ExcludeTypes: []models.Format{models.FormatMDB}}, Options{})
	outcome, err := p.ProcessFile(context.Background(), src, dst, models.FormatMDB)
	if err != nil {
		t.Fatalf("ProcessFile() error = %v", err)
	}
	if !outcome.Skipped {
		t.Error("Skipped = false, want true")
	}
	if outcome.Read != 0 {
		t.Errorf("Read = %d, want 0 for an excluded format", outcome.Read)
	}
	if got, want := readFile(t, dst), "# MDB signatures excluded entirely\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestProcessFile_UnknownFormat(t *testing.T) {
	tmpDir := t.TempDir()
	p := newPipeline(t, filter.Options{}, Options{})

	_, err := p.ProcessFile(context.Background(), filepath.Join(tmpDir, "x"), filepath.Join(tmpDir, "y"), models.Format(42))
	if !errors.Is(err, models.ErrUnknownFormat) {
		t.Errorf("ProcessFile() error = %v, want ErrUnknownFormat", err)
	}
}

func TestProcessFile_ReadErrorKeepsDestination(t *testing.T) {
	tmpDir := t.TempDir()
	src := filepath.Join(tmpDir, "in", "main.ndb")
	dst := filepath.Join(tmpDir, "main.ndb")
	writeFile(t, dst, "previous\n")
	// a line longer than the scanner limit fails the read mid-file
	writeFile(t, src, "Unix.A-1:0:*:aa\n"+strings.Repeat("a", MaxLineSize+1)+"\n")

	p := newPipeline(t, filter.Options{}, Options{})
	if _, err := p.ProcessFile(context.Background(), src, dst, models.FormatNDB); err == nil {
		t.Fatal("ProcessFile() error = nil, want read error")
	}
	if got := readFile(t, dst); got != "previous\n" {
		t.Errorf("destination = %q after failure, want previous content", got)
	}

	entries, _ := os.ReadDir(tmpDir)
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Errorf("temporary file %s left behind", e.Name())
		}
	}
}

func TestProcessFile_RoundTripWithoutFilters(t *testing.T) {
	tmpDir := t.TempDir()
	content := "aa:10:Win.X-1\nbb:20:Unix.Y-1:51\n# trailing comment\n"
	src := filepath.Join(tmpDir, "in", "main.hsb")
	dst := filepath.Join(tmpDir, "main.hsb")
	writeFile(t, src, content)

	p := newPipeline(t, filter.Options{}, Options{})
	outcome, err := p.ProcessFile(context.Background(), src, dst, models.FormatHSB)
	if err != nil {
		t.Fatalf("ProcessFile() error = %v", err)
	}
	if got := readFile(t, dst); got != content {
		t.Errorf("output = %q, want %q", got, content)
	}
	if outcome.SizeBefore != outcome.SizeAfter {
		t.Errorf("SizeAfter = %d, want %d", outcome.SizeAfter, outcome.SizeBefore)
	}
}

func TestRun(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := filepath.Join(t.TempDir(), "out")

	writeFile(t, filepath.Join(srcDir, "main.ndb"), "Win.Trojan.Agent-1:1:*:deadbeef\nUnix.Trojan.Mirai-1:6:*:7f454c46\n")
	writeFile(t, filepath.Join(srcDir, "main.hdb"), "aa:1:Win.X-1\nbb:2:Linux.Y-1\n")
	writeFile(t, filepath.Join(srcDir, "daily.mdb"), "1:aa:Win.Z-1\n")
	writeFile(t, filepath.Join(srcDir, "main.info"), "ClamAV-VDB:info\n")
	writeFile(t, filepath.Join(srcDir, "COPYING"), "license\n")

	var calls int
	p := newPipeline(t,
		filter.Options{ExcludePlatforms: []string{"Win"}, ExcludeTypes: []models.Format{models.FormatMDB}},
		Options{Workers: 2, Progress: func(*models.FilterOutcome, int, int) { calls++ }},
	)

	results, err := p.Run(context.Background(), srcDir, dstDir)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if results.FilesProcessed != 2 {
		t.Errorf("FilesProcessed = %d, want 2", results.FilesProcessed)
	}
	if results.FilesSkipped != 1 {
		t.Errorf("FilesSkipped = %d, want 1", results.FilesSkipped)
	}
	if results.FilesCopied != 2 {
		t.Errorf("FilesCopied = %d, want 2", results.FilesCopied)
	}
	if results.TotalRead != 4 || results.TotalKept != 2 {
		t.Errorf("TotalRead/TotalKept = %d/%d, want 4/2", results.TotalRead, results.TotalKept)
	}
	if calls != 3 {
		t.Errorf("progress called %d times, want 3", calls)
	}
	if summary := results.ByFormat[models.FormatNDB]; summary == nil || summary.Dropped.Platform != 1 {
		t.Errorf("ByFormat[ndb] = %+v, want one platform drop", summary)
	}

	if got := readFile(t, filepath.Join(dstDir, "main.hdb")); got != "bb:2:Linux.Y-1\n" {
		t.Errorf("main.hdb = %q", got)
	}
	if got := readFile(t, filepath.Join(dstDir, "COPYING")); got != "license\n" {
		t.Errorf("COPYING = %q, want copied unchanged", got)
	}
	if got := readFile(t, filepath.Join(dstDir, "daily.mdb")); !strings.HasPrefix(got, "# MDB") {
		t.Errorf("daily.mdb = %q, want stub", got)
	}

	for i := 1; i < len(results.Files); i++ {
		if results.Files[i-1].Path > results.Files[i].Path {
			t.Errorf("Files not sorted: %s before %s", results.Files[i-1].Path, results.Files[i].Path)
		}
	}
}

func TestRun_Cancelled(t *testing.T) {
	srcDir := t.TempDir()
	writeFile(t, filepath.Join(srcDir, "main.ndb"), "Unix.A-1:0:*:aa\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newPipeline(t, filter.Options{}, Options{Workers: 1})
	if _, err := p.Run(ctx, srcDir, t.TempDir()); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}

func TestRun_MissingInput(t *testing.T) {
	p := newPipeline(t, filter.Options{}, Options{})
	if _, err := p.Run(context.Background(), "/nonexistent/db", t.TempDir()); err == nil {
		t.Error("Run() expected error for missing input directory")
	}
}
