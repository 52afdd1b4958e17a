package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	homedir "github.com/mitchellh/go-homedir"
)

func isolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	homedir.DisableCache = true
	t.Cleanup(func() { homedir.DisableCache = false })
	return home
}

func TestLoadConfig_Defaults(t *testing.T) {
	home := isolateHome(t)

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Workers <= 0 {
		t.Errorf("Workers = %d, want > 0", cfg.Workers)
	}
	if cfg.KeepMalformedSamples != 20 {
		t.Errorf("KeepMalformedSamples = %d, want 20", cfg.KeepMalformedSamples)
	}
	if !reflect.DeepEqual(cfg.AlwaysKeep, []string{"eicar"}) {
		t.Errorf("AlwaysKeep = %v, want [eicar]", cfg.AlwaysKeep)
	}
	if want := filepath.Join(home, ".clamjuice", "history.db"); cfg.HistoryDB != want {
		t.Errorf("HistoryDB = %q, want %q", cfg.HistoryDB, want)
	}
	if cfg.SigtoolPath != "sigtool" {
		t.Errorf("SigtoolPath = %q, want sigtool", cfg.SigtoolPath)
	}
	if cfg.ConfigFile != "" {
		t.Errorf("ConfigFile = %q, want empty", cfg.ConfigFile)
	}
}

func TestLoadConfig_HomeFile(t *testing.T) {
	home := isolateHome(t)
	content := "profile: linux-only\nexclude_types: [mdb, hsb]\nndb_types: [0, 6]\n"
	if err := os.WriteFile(filepath.Join(home, ".clamjuice.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create config: %v", err)
	}

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Profile != "linux-only" {
		t.Errorf("Profile = %q, want linux-only", cfg.Profile)
	}
	if !reflect.DeepEqual(cfg.ExcludeTypes, []string{"mdb", "hsb"}) {
		t.Errorf("ExcludeTypes = %v", cfg.ExcludeTypes)
	}
	if !reflect.DeepEqual(cfg.NDBTypes, []int{0, 6}) {
		t.Errorf("NDBTypes = %v", cfg.NDBTypes)
	}
	if cfg.ConfigFile == "" {
		t.Error("ConfigFile is empty, want path of the home config")
	}
}

func TestLoadConfig_ExplicitFileAndEnv(t *testing.T) {
	isolateHome(t)
	path := filepath.Join(t.TempDir(), "filter.yaml")
	content := "workers: 3\nreport_format: json\nhistory_db: ~/state/runs.db\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create config: %v", err)
	}
	t.Setenv("CLAMJUICE_WORKERS", "7")
	t.Setenv("CLAMJUICE_PROFILE", "embedded")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Workers != 7 {
		t.Errorf("Workers = %d, want env value 7", cfg.Workers)
	}
	if cfg.Profile != "embedded" {
		t.Errorf("Profile = %q, want embedded", cfg.Profile)
	}
	if cfg.ReportFormat != "json" {
		t.Errorf("ReportFormat = %q, want json", cfg.ReportFormat)
	}
	if filepath.Base(cfg.HistoryDB) != "runs.db" || cfg.HistoryDB[0] == '~' {
		t.Errorf("HistoryDB = %q, want expanded path", cfg.HistoryDB)
	}
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	isolateHome(t)
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadConfig() expected error for missing explicit config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", Config{Workers: 4, HistoryDB: "h.db"}, false},
		{"markdown report", Config{ReportFormat: "markdown"}, false},
		{"html report", Config{ReportFormat: "html"}, true},
		{"negative workers", Config{Workers: -1}, true},
		{"negative samples", Config{KeepMalformedSamples: -1}, true},
		{"skip without history", Config{SkipUnchanged: true}, true},
		{"skip with history", Config{SkipUnchanged: true, HistoryDB: "h.db"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
