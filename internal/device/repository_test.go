package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()

	f, err := os.CreateTemp("", "device-test-*.db")
	if err != nil {
		t.Fatalf("creating temp db: %v", err)
	}
	dbPath := f.Name()
	f.Close()
	t.Cleanup(func() { os.Remove(dbPath) })

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
		CREATE TABLE devices (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			room TEXT,
			last_state TEXT,
			status TEXT NOT NULL DEFAULT 'offline',
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("applying test schema: %v", err)
	}
	return db
}

func TestRepositoryCreateAndGet(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))
	ctx := context.Background()

	dev := &Device{
		Name:     "Living Room Lamp",
		Type:     "light",
		Room:     "living-room",
		IsActive: true,
	}
	if err := repo.Create(ctx, dev); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if dev.ID == "" {
		t.Fatal("Create() did not generate an ID")
	}

	got, err := repo.GetByID(ctx, dev.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Name != "Living Room Lamp" || got.Type != "light" {
		t.Errorf("unexpected device: %+v", got)
	}
	if got.Status != StatusOffline {
		t.Errorf("status = %q, want offline default", got.Status)
	}

	if _, err := repo.GetByID(ctx, "dev-missing"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetByID(missing) error = %v, want ErrDeviceNotFound", err)
	}

	t.Run("duplicate id rejected", func(t *testing.T) {
		dup := &Device{ID: dev.ID, Name: "x", Type: "light"}
		if err := repo.Create(ctx, dup); !errors.Is(err, ErrDeviceExists) {
			t.Errorf("error = %v, want ErrDeviceExists", err)
		}
	})
}

func TestRepositoryListByRoom(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))
	ctx := context.Background()

	for _, d := range []*Device{
		{Name: "Lamp", Type: "light", Room: "living-room", IsActive: true},
		{Name: "Thermostat", Type: "climate", Room: "living-room", IsActive: true},
		{Name: "Door Sensor", Type: "sensor", Room: "hallway", IsActive: true},
	} {
		if err := repo.Create(ctx, d); err != nil {
			t.Fatalf("Create(%s) error = %v", d.Name, err)
		}
	}

	all, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("devices = %d, want 3", len(all))
	}

	living, err := repo.ListByRoom(ctx, "living-room")
	if err != nil {
		t.Fatalf("ListByRoom() error = %v", err)
	}
	if len(living) != 2 {
		t.Errorf("living room devices = %d, want 2", len(living))
	}

	empty, err := repo.ListByRoom(ctx, "attic")
	if err != nil {
		t.Fatalf("ListByRoom(attic) error = %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("attic devices = %d, want 0", len(empty))
	}
}

func TestRepositoryUpdateStateAndStatus(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))
	ctx := context.Background()

	dev := &Device{Name: "Lamp", Type: "light", IsActive: true}
	if err := repo.Create(ctx, dev); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	state := json.RawMessage(`{"power":"on","brightness":80}`)
	if err := repo.UpdateState(ctx, dev.ID, state); err != nil {
		t.Fatalf("UpdateState() error = %v", err)
	}
	if err := repo.UpdateStatus(ctx, dev.ID, StatusOnline); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}

	got, err := repo.GetByID(ctx, dev.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if string(got.LastState) != `{"power":"on","brightness":80}` {
		t.Errorf("last state = %s", got.LastState)
	}
	if got.Status != StatusOnline {
		t.Errorf("status = %q, want online", got.Status)
	}

	if err := repo.UpdateState(ctx, "dev-missing", state); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("UpdateState(missing) error = %v, want ErrDeviceNotFound", err)
	}
	if err := repo.UpdateStatus(ctx, "dev-missing", StatusOnline); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("UpdateStatus(missing) error = %v, want ErrDeviceNotFound", err)
	}
}

func TestRepositoryUpdateAndDelete(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))
	ctx := context.Background()

	dev := &Device{Name: "Lamp", Type: "light", Room: "study", IsActive: true}
	if err := repo.Create(ctx, dev); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	dev.Name = "Desk Lamp"
	dev.Room = "office"
	dev.IsActive = false
	if err := repo.Update(ctx, dev); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := repo.GetByID(ctx, dev.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Name != "Desk Lamp" || got.Room != "office" || got.IsActive {
		t.Errorf("update not persisted: %+v", got)
	}

	if err := repo.Delete(ctx, dev.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := repo.Delete(ctx, dev.ID); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Delete(again) error = %v, want ErrDeviceNotFound", err)
	}
}
