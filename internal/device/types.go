// Package device manages the registry of smart-home devices: their
// identity, room placement, connectivity status, and last reported state.
package device

import (
	"encoding/json"
	"errors"
	"time"
)

// Status describes a device's connectivity.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// Device represents a registered device. LastState holds the most recent
// payload the device reported, as opaque JSON.
type Device struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Type      string          `json:"type"`
	Room      string          `json:"room,omitempty"`
	LastState json.RawMessage `json:"last_state,omitempty"`
	Status    Status          `json:"status"`
	IsActive  bool            `json:"is_active"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Sentinel errors for device operations.
var (
	ErrDeviceNotFound = errors.New("device not found")
	ErrDeviceExists   = errors.New("device already exists")
)
