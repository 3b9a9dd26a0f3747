package backend

import (
	"context"
	"path/filepath"
	"testing"

	"carbontrack/internal/config"
	"carbontrack/internal/core"
)

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Fatal("nil config should fail")
	}
	cfg, err := FromAppConfig(&config.Config{DataBackend: "memory", AuthBackend: "memory"})
	if err != nil {
		t.Fatalf("FromAppConfig: %v", err)
	}
	if cfg.Data != MemoryBackend || cfg.Auth != MemoryBackend {
		t.Fatalf("unexpected backends: %+v", cfg)
	}
	if _, err := FromAppConfig(&config.Config{DataBackend: "memory", AuthBackend: "sheets"}); err == nil {
		t.Fatal("sheets cannot store auth")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"memory", Config{Data: MemoryBackend, Auth: MemoryBackend}, false},
		{"unknown data", Config{Data: "supabase", Auth: MemoryBackend}, true},
		{"sqlite without path", Config{Data: SQLiteBackend, Auth: MemoryBackend}, true},
		{"sqlite auth without path", Config{Data: MemoryBackend, Auth: SQLiteBackend}, true},
		{"postgres without url", Config{Data: PostgresBackend, Auth: MemoryBackend}, true},
		{"sheets without credentials", Config{Data: SheetsBackend, Auth: MemoryBackend, GoogleSpreadsheetID: "x"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestUnknownDataBackendListsChoices(t *testing.T) {
	err := Config{Data: "supabase", Auth: MemoryBackend}.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	want := `invalid data backend "supabase": must be one of [memory sqlite postgres sheets]`
	if err.Error() != want {
		t.Errorf("Validate() = %q, want %q", err.Error(), want)
	}
	for _, b := range GetBackendTypes() {
		if !b.IsValid() {
			t.Errorf("%s should be valid", b)
		}
	}
}

func TestCreateMemoryBackendSharesStore(t *testing.T) {
	f := NewFactory(nil)
	res, err := f.CreateBackend(context.Background(), Config{
		Data:     MemoryBackend,
		Auth:     MemoryBackend,
		SeedFile: filepath.Join(t.TempDir(), "missing.yaml"),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer res.Cleanup()

	if res.Usage == nil || res.Auth == nil || res.Writer == nil {
		t.Fatalf("incomplete backend: %+v", res)
	}
	if _, err := res.Writer.InsertUsage(context.Background(), []core.UsageRecord{{Month: "2025-01-01T00:00:00Z"}}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	recs, err := res.Usage.FetchUsage(context.Background())
	if err != nil || len(recs) != 1 {
		t.Fatalf("writer and reader should share the store: %v err=%v", recs, err)
	}
	if err := res.Ready(context.Background()); err != nil {
		t.Fatalf("memory backend should be ready: %v", err)
	}
}

func TestCreateSQLiteBackend(t *testing.T) {
	f := NewFactory(nil)
	res, err := f.CreateBackend(context.Background(), Config{
		Data:         SQLiteBackend,
		Auth:         SQLiteBackend,
		SQLiteDBPath: filepath.Join(t.TempDir(), "db", "carbontrack.db"),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := res.Ready(context.Background()); err != nil {
		t.Fatalf("ready: %v", err)
	}
	if len(res.pingers) != 1 || len(res.cleanup) != 1 {
		t.Fatalf("sqlite repository should be opened once, got %d pingers", len(res.pingers))
	}
	if err := res.Cleanup(); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
}
