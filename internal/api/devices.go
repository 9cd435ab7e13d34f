package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lumina-home/lumina-core/internal/device"
	"github.com/lumina-home/lumina-core/internal/infrastructure/mqtt"
	"github.com/lumina-home/lumina-core/internal/sensor"
)

// createDeviceRequest is the request body for POST /devices.
type createDeviceRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
	Room string `json:"room"`
}

// updateDeviceRequest is the request body for PATCH /devices/{id}.
type updateDeviceRequest struct {
	Name     *string `json:"name"`
	Type     *string `json:"type"`
	Room     *string `json:"room"`
	IsActive *bool   `json:"is_active"`
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	var (
		devices []device.Device
		err     error
	)
	if room := r.URL.Query().Get("room"); room != "" {
		devices, err = s.devices.ListByRoom(r.Context(), room)
	} else {
		devices, err = s.devices.List(r.Context())
	}
	if err != nil {
		s.logger.Error("listing devices failed", "error", err)
		writeInternalError(w, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices})
}

func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var req createDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Name == "" || req.Type == "" {
		writeBadRequest(w, "name and type are required")
		return
	}

	dev := &device.Device{
		ID:       req.ID,
		Name:     req.Name,
		Type:     req.Type,
		Room:     req.Room,
		IsActive: true,
	}
	if err := s.devices.Create(r.Context(), dev); err != nil {
		if errors.Is(err, device.ErrDeviceExists) {
			writeConflict(w, "device already exists")
			return
		}
		s.logger.Error("creating device failed", "error", err)
		writeInternalError(w, "internal server error")
		return
	}
	writeJSON(w, http.StatusCreated, dev)
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	dev, err := s.devices.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	dev, err := s.devices.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDeviceError(w, err)
		return
	}

	var req updateDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if req.Name != nil {
		dev.Name = *req.Name
	}
	if req.Type != nil {
		dev.Type = *req.Type
	}
	if req.Room != nil {
		dev.Room = *req.Room
	}
	if req.IsActive != nil {
		dev.IsActive = *req.IsActive
	}

	if err := s.devices.Update(r.Context(), dev); err != nil {
		writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	if err := s.devices.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDeviceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// commandRequest is the request body for POST /devices/{id}/command.
type commandRequest struct {
	Action string `json:"action"`
}

// allowed command actions, matching what device firmware understands.
var commandActions = map[string]struct{}{
	"ON": {}, "OFF": {}, "LOCK": {}, "UNLOCK": {},
}

// handleDeviceCommand publishes a command to a device over MQTT.
func (s *Server) handleDeviceCommand(w http.ResponseWriter, r *http.Request) {
	if s.commands == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternal, "command transport unavailable")
		return
	}

	dev, err := s.devices.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDeviceError(w, err)
		return
	}

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	action := strings.ToUpper(strings.TrimSpace(req.Action))
	if _, ok := commandActions[action]; !ok {
		writeBadRequest(w, "action must be one of ON, OFF, LOCK, UNLOCK")
		return
	}
	if dev.Status == device.StatusOffline {
		writeConflict(w, "device is offline")
		return
	}

	topic := mqtt.Topics{}.DeviceCommand(dev.ID)
	if err := s.commands.Publish(topic, []byte(action)); err != nil {
		s.logger.Error("publishing command failed", "device_id", dev.ID, "error", err)
		writeError(w, http.StatusBadGateway, ErrCodeInternal, "command delivery failed")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"device_id": dev.ID,
		"action":    action,
	})
}

// defaultReadingsLimit caps GET /devices/{id}/readings when no limit is given.
const defaultReadingsLimit = 100

func (s *Server) handleDeviceReadings(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.devices.GetByID(r.Context(), id); err != nil {
		writeDeviceError(w, err)
		return
	}

	limit := defaultReadingsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	readings, err := s.snapshots.ListByDevice(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("listing readings failed", "device_id", id, "error", err)
		writeInternalError(w, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"readings": readings})
}

func (s *Server) handleLatestReading(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	metric := chi.URLParam(r, "metric")

	snap, err := s.snapshots.Latest(r.Context(), id, metric)
	if err != nil {
		if errors.Is(err, sensor.ErrSnapshotNotFound) {
			writeNotFound(w, "no reading for this metric")
			return
		}
		s.logger.Error("loading latest reading failed", "device_id", id, "error", err)
		writeInternalError(w, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func writeDeviceError(w http.ResponseWriter, err error) {
	if errors.Is(err, device.ErrDeviceNotFound) {
		writeNotFound(w, "device not found")
		return
	}
	writeInternalError(w, "internal server error")
}
