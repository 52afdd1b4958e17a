package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestNew_WithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "clamjuice.log")

	l, err := New(Options{File: path})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	l.Debug("Filtered file", zap.String("file", "main.ndb"), zap.Int("kept", 3))
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	for _, want := range []string{`"msg":"Filtered file"`, `"file":"main.ndb"`, `"timestamp"`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("log file = %s, want it to contain %s", data, want)
		}
	}
}

func TestNew_Levels(t *testing.T) {
	tests := []struct {
		name      string
		verbose   bool
		wantDebug bool
	}{
		{"quiet", false, false},
		{"verbose", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(Options{Verbose: tt.verbose})
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			defer l.Close()

			if got := l.Core().Enabled(zap.DebugLevel); got != tt.wantDebug {
				t.Errorf("Core().Enabled(debug) = %v, want %v", got, tt.wantDebug)
			}
			if !l.Core().Enabled(zap.ErrorLevel) {
				t.Error("Core().Enabled(error) = false, want true")
			}
		})
	}
}
