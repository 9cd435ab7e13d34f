package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/lumina-home/lumina-core/internal/device"
	"github.com/lumina-home/lumina-core/internal/infrastructure/logging"
	"github.com/lumina-home/lumina-core/internal/sensor"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()

	f, err := os.CreateTemp("", "ingest-test-*.db")
	if err != nil {
		t.Fatalf("creating temp db: %v", err)
	}
	dbPath := f.Name()
	f.Close()
	t.Cleanup(func() { os.Remove(dbPath) })

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
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
		CREATE TABLE sensor_snapshots (
			id TEXT PRIMARY KEY,
			device_id TEXT NOT NULL REFERENCES devices(id) ON DELETE CASCADE,
			metric TEXT NOT NULL,
			value REAL NOT NULL,
			recorded_at TEXT NOT NULL
		);
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("applying test schema: %v", err)
	}
	return db
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []string
}

func (b *recordingBroadcaster) Broadcast(event string, data any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *recordingBroadcaster) has(event string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range b.events {
		if e == event {
			return true
		}
	}
	return false
}

type recordingMailer struct {
	mu       sync.Mutex
	subjects []string
	fail     bool
}

func (m *recordingMailer) SendAlert(subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("relay down")
	}
	m.subjects = append(m.subjects, subject)
	return nil
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subjects)
}

type routerFixture struct {
	router    *Router
	devices   device.Repository
	snapshots sensor.Repository
	broadcast *recordingBroadcaster
	mailer    *recordingMailer
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()

	db := testDB(t)
	devices := device.NewSQLiteRepository(db)
	snapshots := sensor.NewSQLiteRepository(db)
	broadcast := &recordingBroadcaster{}
	mailer := &recordingMailer{}

	router := NewRouter(devices, snapshots, logging.Default(),
		WithBroadcaster(broadcast),
		WithMailer(mailer),
	)

	return &routerFixture{
		router:    router,
		devices:   devices,
		snapshots: snapshots,
		broadcast: broadcast,
		mailer:    mailer,
	}
}

func TestHandleDeviceRegister(t *testing.T) {
	fx := newRouterFixture(t)
	ctx := context.Background()

	payload := []byte(`{"id":"dev-a1b2c3d4","name":"Window Sensor","type":"sensor"}`)
	if err := fx.router.HandleDeviceRegister("kitchen/device-register", payload); err != nil {
		t.Fatalf("HandleDeviceRegister() error = %v", err)
	}

	dev, err := fx.devices.GetByID(ctx, "dev-a1b2c3d4")
	if err != nil {
		t.Fatalf("device not registered: %v", err)
	}
	if dev.Room != "kitchen" {
		t.Errorf("Room = %q, want kitchen", dev.Room)
	}
	if dev.Status != device.StatusOnline {
		t.Errorf("Status = %q, want online", dev.Status)
	}
	if !fx.broadcast.has("device_registered") {
		t.Error("expected device_registered broadcast")
	}

	t.Run("re-registration refreshes status", func(t *testing.T) {
		if err := fx.devices.UpdateStatus(ctx, dev.ID, device.StatusOffline); err != nil {
			t.Fatalf("forcing offline: %v", err)
		}
		if err := fx.router.HandleDeviceRegister("kitchen/device-register", payload); err != nil {
			t.Fatalf("HandleDeviceRegister() error = %v", err)
		}
		refreshed, err := fx.devices.GetByID(ctx, dev.ID)
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if refreshed.Status != device.StatusOnline {
			t.Errorf("Status = %q, want online after re-registration", refreshed.Status)
		}
	})

	t.Run("missing id rejected", func(t *testing.T) {
		err := fx.router.HandleDeviceRegister("kitchen/device-register", []byte(`{"name":"x"}`))
		if err == nil {
			t.Error("expected error for registration without id")
		}
	})

	t.Run("bad json rejected", func(t *testing.T) {
		err := fx.router.HandleDeviceRegister("kitchen/device-register", []byte(`{not json`))
		if err == nil {
			t.Error("expected error for malformed payload")
		}
	})
}

func TestHandleSensorReading(t *testing.T) {
	fx := newRouterFixture(t)
	ctx := context.Background()

	payload := []byte(`{"device_id":"dev-env1","temperature":21.5,"humidity":48.0,"gas":0}`)
	if err := fx.router.HandleSensorReading("living-room/sensor-device", payload); err != nil {
		t.Fatalf("HandleSensorReading() error = %v", err)
	}

	snap, err := fx.snapshots.Latest(ctx, "dev-env1", "temperature")
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if snap.Value != 21.5 {
		t.Errorf("temperature = %v, want 21.5", snap.Value)
	}

	if _, err := fx.snapshots.Latest(ctx, "dev-env1", "humidity"); err != nil {
		t.Errorf("humidity snapshot missing: %v", err)
	}

	// device auto-registered from the reading
	dev, err := fx.devices.GetByID(ctx, "dev-env1")
	if err != nil {
		t.Fatalf("device not auto-registered: %v", err)
	}
	if dev.Room != "living-room" {
		t.Errorf("Room = %q, want living-room", dev.Room)
	}

	if !fx.broadcast.has("sensor_reading") {
		t.Error("expected sensor_reading broadcast")
	}
	if fx.mailer.count() != 0 {
		t.Errorf("zero gas should not alert, got %d alerts", fx.mailer.count())
	}
}

func TestHandleSensorReadingGasAlert(t *testing.T) {
	fx := newRouterFixture(t)

	payload := []byte(`{"device_id":"dev-env1","gas":734.0}`)
	if err := fx.router.HandleSensorReading("kitchen/sensor-device", payload); err != nil {
		t.Fatalf("HandleSensorReading() error = %v", err)
	}

	if fx.mailer.count() != 1 {
		t.Fatalf("expected 1 gas alert, got %d", fx.mailer.count())
	}
	if !strings.Contains(fx.mailer.subjects[0], "kitchen") {
		t.Errorf("alert subject = %q, want room name", fx.mailer.subjects[0])
	}
}

func TestHandleSensorReadingNoDeviceID(t *testing.T) {
	fx := newRouterFixture(t)
	ctx := context.Background()

	payload := []byte(`{"temperature":19.0}`)
	if err := fx.router.HandleSensorReading("hall/sensor-device", payload); err != nil {
		t.Fatalf("HandleSensorReading() error = %v", err)
	}

	// falls back to the room-derived device
	if _, err := fx.devices.GetByID(ctx, "hall-sensor"); err != nil {
		t.Errorf("fallback device not registered: %v", err)
	}
	if _, err := fx.snapshots.Latest(ctx, "hall-sensor", "temperature"); err != nil {
		t.Errorf("snapshot missing for fallback device: %v", err)
	}
}

func TestHandleDeviceStatusActuator(t *testing.T) {
	fx := newRouterFixture(t)
	ctx := context.Background()

	if err := fx.router.HandleDeviceStatus("bedroom/device-status/light", []byte("ON")); err != nil {
		t.Fatalf("HandleDeviceStatus() error = %v", err)
	}

	dev, err := fx.devices.GetByID(ctx, "bedroom-light")
	if err != nil {
		t.Fatalf("actuator not registered: %v", err)
	}
	if dev.Type != "light" {
		t.Errorf("Type = %q, want light", dev.Type)
	}

	var state map[string]string
	if err := json.Unmarshal(dev.LastState, &state); err != nil {
		t.Fatalf("parsing last state: %v", err)
	}
	if state["state"] != "on" {
		t.Errorf("state = %q, want on", state["state"])
	}

	t.Run("door states", func(t *testing.T) {
		if err := fx.router.HandleDeviceStatus("bedroom/device-status/door", []byte("UNLOCKED")); err != nil {
			t.Fatalf("HandleDeviceStatus() error = %v", err)
		}
		door, err := fx.devices.GetByID(ctx, "bedroom-door")
		if err != nil {
			t.Fatalf("door not registered: %v", err)
		}
		if door.Type != "door" {
			t.Errorf("Type = %q, want door", door.Type)
		}
		var doorState map[string]string
		if err := json.Unmarshal(door.LastState, &doorState); err != nil {
			t.Fatalf("parsing door state: %v", err)
		}
		if doorState["state"] != "open" {
			t.Errorf("state = %q, want open", doorState["state"])
		}
	})
}

func TestHandleDeviceStatusConnectivity(t *testing.T) {
	fx := newRouterFixture(t)
	ctx := context.Background()

	// register first so connectivity has a device to act on
	if err := fx.router.HandleDeviceStatus("garage/device-status/light", []byte("ON")); err != nil {
		t.Fatalf("registering actuator: %v", err)
	}

	if err := fx.router.HandleDeviceStatus("garage/device-status/light", []byte("offline")); err != nil {
		t.Fatalf("HandleDeviceStatus() error = %v", err)
	}

	dev, err := fx.devices.GetByID(ctx, "garage-light")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if dev.Status != device.StatusOffline {
		t.Errorf("Status = %q, want offline", dev.Status)
	}
	if fx.mailer.count() != 1 {
		t.Errorf("expected offline alert, got %d alerts", fx.mailer.count())
	}

	t.Run("unknown device ignored", func(t *testing.T) {
		if err := fx.router.HandleDeviceStatus("garage/device-status/ghost", []byte("offline")); err != nil {
			t.Errorf("unknown device should not error, got %v", err)
		}
	})

	t.Run("unrecognised payload ignored", func(t *testing.T) {
		if err := fx.router.HandleDeviceStatus("garage/device-status/light", []byte("BANANA")); err != nil {
			t.Errorf("unrecognised payload should not error, got %v", err)
		}
	})
}

func TestRouterMailerFailureNonFatal(t *testing.T) {
	fx := newRouterFixture(t)
	fx.mailer.fail = true

	payload := []byte(`{"device_id":"dev-env1","gas":900.0}`)
	if err := fx.router.HandleSensorReading("kitchen/sensor-device", payload); err != nil {
		t.Fatalf("mailer failure must not fail ingest: %v", err)
	}
}

func TestTopicParsing(t *testing.T) {
	if room, ok := roomFromTopic("kitchen/sensor-device"); !ok || room != "kitchen" {
		t.Errorf("roomFromTopic = %q, %v", room, ok)
	}
	if _, ok := roomFromTopic("kitchen"); ok {
		t.Error("single-segment topic should not parse")
	}
	if _, ok := roomFromTopic("/sensor-device"); ok {
		t.Error("empty room should not parse")
	}

	room, name, ok := statusFromTopic("hall/device-status/light")
	if !ok || room != "hall" || name != "light" {
		t.Errorf("statusFromTopic = %q, %q, %v", room, name, ok)
	}
	if _, _, ok := statusFromTopic("hall/device-status"); ok {
		t.Error("two-segment status topic should not parse")
	}
}
