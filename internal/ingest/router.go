// Package ingest routes inbound MQTT traffic into the device registry,
// sensor snapshot store, and time-series history, and fans events out to
// connected WebSocket clients.
//
// Topics are room-prefixed: devices announce themselves on
// {room}/device-register, room nodes publish sensor readings on
// {room}/sensor-device, and actuators report state on
// {room}/device-status/{device}.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lumina-home/lumina-core/internal/device"
	"github.com/lumina-home/lumina-core/internal/infrastructure/influxdb"
	"github.com/lumina-home/lumina-core/internal/infrastructure/logging"
	"github.com/lumina-home/lumina-core/internal/infrastructure/mqtt"
	"github.com/lumina-home/lumina-core/internal/notify"
	"github.com/lumina-home/lumina-core/internal/sensor"
)

// Subscriber is the piece of the MQTT client the router needs.
type Subscriber interface {
	Subscribe(topic string, handler mqtt.MessageHandler) error
}

// Broadcaster pushes events to connected WebSocket clients.
type Broadcaster interface {
	Broadcast(event string, data any)
}

// Router dispatches MQTT messages to the appropriate stores and sinks.
type Router struct {
	devices   device.Repository
	snapshots sensor.Repository
	logger    *logging.Logger

	influx    *influxdb.Client
	broadcast Broadcaster
	mailer    notify.Mailer
}

// Option configures optional router sinks.
type Option func(*Router)

// WithInflux mirrors readings into InfluxDB for long-term history.
func WithInflux(c *influxdb.Client) Option {
	return func(r *Router) { r.influx = c }
}

// WithBroadcaster fans events out to WebSocket clients.
func WithBroadcaster(b Broadcaster) Option {
	return func(r *Router) { r.broadcast = b }
}

// WithMailer enables email alerts for gas leaks and device dropouts.
func WithMailer(m notify.Mailer) Option {
	return func(r *Router) { r.mailer = m }
}

// NewRouter creates a router over the device and snapshot repositories.
func NewRouter(devices device.Repository, snapshots sensor.Repository, logger *logging.Logger, opts ...Option) *Router {
	r := &Router{
		devices:   devices,
		snapshots: snapshots,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start subscribes the router's handlers on the MQTT client.
func (r *Router) Start(sub Subscriber) error {
	topics := mqtt.Topics{}

	if err := sub.Subscribe(topics.AllDeviceRegistrations(), r.HandleDeviceRegister); err != nil {
		return fmt.Errorf("subscribing to device registrations: %w", err)
	}
	if err := sub.Subscribe(topics.AllSensorReadings(), r.HandleSensorReading); err != nil {
		return fmt.Errorf("subscribing to sensor readings: %w", err)
	}
	if err := sub.Subscribe(topics.AllDeviceStatuses(), r.HandleDeviceStatus); err != nil {
		return fmt.Errorf("subscribing to device statuses: %w", err)
	}
	return nil
}

// registration is the payload a device publishes to announce itself.
type registration struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// HandleDeviceRegister processes {room}/device-register announcements,
// creating or refreshing the device record and marking it online.
func (r *Router) HandleDeviceRegister(topic string, payload []byte) error {
	room, ok := roomFromTopic(topic)
	if !ok {
		return fmt.Errorf("malformed registration topic %q", topic)
	}

	var reg registration
	if err := json.Unmarshal(payload, &reg); err != nil {
		return fmt.Errorf("parsing registration from %q: %w", topic, err)
	}
	if reg.ID == "" {
		return fmt.Errorf("registration from %q missing device id", topic)
	}
	if reg.Name == "" {
		reg.Name = reg.ID
	}
	if reg.Type == "" {
		reg.Type = "sensor"
	}

	ctx := context.Background()
	dev, err := r.upsertDevice(ctx, reg.ID, reg.Name, reg.Type, room)
	if err != nil {
		return err
	}

	r.logger.Info("device registered", "device_id", dev.ID, "room", room, "type", dev.Type)
	r.emit("device_registered", dev)
	return nil
}

// HandleSensorReading processes {room}/sensor-device payloads. Each
// numeric field becomes a snapshot and an InfluxDB point. A non-zero
// gas reading raises an email alert.
func (r *Router) HandleSensorReading(topic string, payload []byte) error {
	room, ok := roomFromTopic(topic)
	if !ok {
		return fmt.Errorf("malformed sensor topic %q", topic)
	}

	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		return fmt.Errorf("parsing sensor payload from %q: %w", topic, err)
	}

	deviceID, _ := fields["device_id"].(string)
	if deviceID == "" {
		deviceID = room + "-sensor"
	}

	ctx := context.Background()
	if _, err := r.upsertDevice(ctx, deviceID, deviceID, "sensor", room); err != nil {
		return err
	}

	readings := make(map[string]float64)
	for metric, raw := range fields {
		value, isNumber := raw.(float64)
		if !isNumber || metric == "timestamp" {
			continue
		}
		readings[metric] = value

		snap := &sensor.Snapshot{DeviceID: deviceID, Metric: metric, Value: value}
		if err := r.snapshots.Record(ctx, snap); err != nil {
			return fmt.Errorf("recording %s from %s: %w", metric, deviceID, err)
		}
		if r.influx != nil {
			r.influx.WriteSensorReading(deviceID, room, metric, value)
		}
	}

	if gas, found := readings["gas"]; found && gas > 0 {
		r.alert(
			fmt.Sprintf("Gas detected in %s", room),
			fmt.Sprintf("Device %s reported a gas level of %.1f. Check the area immediately.", deviceID, gas),
		)
	}

	r.emit("sensor_reading", map[string]any{
		"device_id": deviceID,
		"room":      room,
		"readings":  readings,
	})
	return nil
}

// HandleDeviceStatus processes {room}/device-status/{device} messages.
// Actuator states (ON, OFF, LOCKED, UNLOCKED) update the device's last
// state; connectivity transitions (online, offline) update its status.
func (r *Router) HandleDeviceStatus(topic string, payload []byte) error {
	room, name, ok := statusFromTopic(topic)
	if !ok {
		return fmt.Errorf("malformed status topic %q", topic)
	}

	text := strings.TrimSpace(string(payload))
	ctx := context.Background()

	switch strings.ToUpper(text) {
	case "ON", "OFF":
		return r.recordActuatorState(ctx, room, name, "light", mapState(text))
	case "LOCKED", "CLOSED":
		return r.recordActuatorState(ctx, room, name, "door", "closed")
	case "UNLOCKED", "OPEN":
		return r.recordActuatorState(ctx, room, name, "door", "open")
	case "ONLINE":
		return r.recordConnectivity(ctx, room, name, device.StatusOnline)
	case "OFFLINE":
		return r.recordConnectivity(ctx, room, name, device.StatusOffline)
	default:
		r.logger.Warn("unrecognised device status", "topic", topic, "payload", text)
		return nil
	}
}

func (r *Router) recordActuatorState(ctx context.Context, room, name, deviceType, state string) error {
	deviceID := room + "-" + name

	dev, err := r.upsertDevice(ctx, deviceID, room+" "+name, deviceType, room)
	if err != nil {
		return err
	}

	stateJSON, _ := json.Marshal(map[string]string{"state": state}) //nolint:errcheck // map of strings cannot fail
	if err := r.devices.UpdateState(ctx, dev.ID, stateJSON); err != nil {
		return fmt.Errorf("updating state for %s: %w", dev.ID, err)
	}

	dev.LastState = stateJSON
	r.emit("device_update", dev)
	return nil
}

func (r *Router) recordConnectivity(ctx context.Context, room, name string, status device.Status) error {
	deviceID := room + "-" + name

	dev, err := r.devices.GetByID(ctx, deviceID)
	if err != nil {
		r.logger.Warn("status for unknown device", "device_id", deviceID, "room", room)
		return nil
	}

	if err := r.devices.UpdateStatus(ctx, dev.ID, status); err != nil {
		return fmt.Errorf("updating status for %s: %w", dev.ID, err)
	}

	if r.influx != nil {
		r.influx.WriteDeviceStatus(dev.ID, room, string(status))
	}
	if status == device.StatusOffline {
		r.alert(
			fmt.Sprintf("Device offline: %s", dev.Name),
			fmt.Sprintf("Device %s in %s went offline.", dev.ID, room),
		)
	}

	dev.Status = status
	r.emit("device_update", dev)
	return nil
}

// upsertDevice fetches a device by ID, creating or refreshing it so
// inbound traffic always lands on a registered, online device.
func (r *Router) upsertDevice(ctx context.Context, id, name, deviceType, room string) (*device.Device, error) {
	existing, err := r.devices.GetByID(ctx, id)
	if err == nil {
		if err := r.devices.UpdateStatus(ctx, existing.ID, device.StatusOnline); err != nil {
			return nil, fmt.Errorf("marking %s online: %w", existing.ID, err)
		}
		existing.Status = device.StatusOnline
		return existing, nil
	}

	dev := &device.Device{
		ID:       id,
		Name:     name,
		Type:     deviceType,
		Room:     room,
		Status:   device.StatusOnline,
		IsActive: true,
	}
	if err := r.devices.Create(ctx, dev); err != nil {
		return nil, fmt.Errorf("registering device %s: %w", id, err)
	}
	return dev, nil
}

// alert sends an email alert when a mailer is configured. Delivery
// failures are logged, never propagated.
func (r *Router) alert(subject, body string) {
	if r.mailer == nil {
		return
	}
	if err := r.mailer.SendAlert(subject, body); err != nil {
		r.logger.Error("alert email failed", "subject", subject, "error", err)
	}
}

func (r *Router) emit(event string, data any) {
	if r.broadcast != nil {
		r.broadcast.Broadcast(event, data)
	}
}

func mapState(payload string) string {
	if strings.EqualFold(payload, "ON") {
		return "on"
	}
	return "off"
}

// roomFromTopic extracts the room from "{room}/..." topics.
func roomFromTopic(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 || parts[0] == "" {
		return "", false
	}
	return parts[0], true
}

// statusFromTopic extracts room and device name from
// "{room}/device-status/{device}".
func statusFromTopic(topic string) (room, name string, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[0], parts[2], true
}
