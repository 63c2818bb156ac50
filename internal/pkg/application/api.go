package application

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/hub"
	"github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/infrastructure/logging"
	"github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/models"
)

const maxBodySize = 1 << 20

type api struct {
	service  *Service
	resolver Resolver
	registry *hub.Registry
	started  time.Time
	log      logging.Logger
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func isNotFound(err error) bool {
	return errors.Is(err, models.ErrNotFound)
}

//writeError maps the error types returned by the service onto HTTP responses
func (a *api) writeError(w http.ResponseWriter, err error) {
	var denied *models.AuthorizationError
	var invalid *models.ValidationError

	switch {
	case errors.As(err, &denied):
		body := map[string]interface{}{
			"error":   "Access denied",
			"message": err.Error(),
		}
		if len(denied.Devices) > 0 {
			body["devices"] = denied.Devices
		} else {
			body["buildings"] = denied.Buildings
		}
		writeJSON(w, http.StatusForbidden, body)
	case errors.As(err, &invalid):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": invalid.Message, "field": invalid.Field})
	case isNotFound(err):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, models.ErrStoreUnavailable):
		a.log.Errorf("store unavailable: %s", err.Error())
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "Storage temporarily unavailable, please retry"})
	default:
		a.log.Errorf("request failed: %s", err.Error())
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func decodeBody(r *http.Request, into interface{}) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(into); err != nil {
		return &models.ValidationError{Field: "body", Message: fmt.Sprintf("failed to decode request body: %s", err.Error())}
	}
	return nil
}

func readPayload(r *http.Request) []byte {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return nil
	}
	return payload
}

func currentUser(r *http.Request) User {
	user, _ := UserFromContext(r.Context())
	return user
}

func (a *api) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":           "ok",
		"timestamp":        time.Now().UTC().Format(time.RFC3339),
		"uptime":           time.Since(a.started).Seconds(),
		"sseConnections":   a.registry.Count(),
		"connectedDevices": a.registry.ListConnected(),
	})
}

func (a *api) deviceConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := a.service.DeviceConfig(r.Context(), chi.URLParam(r, "deviceId"))
	if err != nil {
		a.writeError(w, err)
		return
	}

	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	writeJSON(w, http.StatusOK, cfg)
}

func (a *api) userInfo(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":        user,
		"permissions": user.Permission,
	})
}

//clearPermissionCache drops the caller's cached permission. District admins may
//name another user with the email query parameter.
func (a *api) clearPermissionCache(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	email := user.Email

	if other := r.URL.Query().Get("email"); other != "" && other != email {
		if !user.Permission.IsDistrict() {
			a.writeError(w, &models.AuthorizationError{Scope: models.ScopeTarget, Buildings: []string{}})
			return
		}
		email = other
	}

	a.resolver.Invalidate(r.Context(), email)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": fmt.Sprintf("Permission cache cleared for %s", email),
	})
}

func (a *api) sseStatus(w http.ResponseWriter, r *http.Request) {
	status, err := a.service.Status(r.Context(), currentUser(r))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (a *api) testPush(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceId")
	e := TestEvent("This is a test push from the admin interface", readPayload(r))

	success, err := a.service.PushToDevice(r.Context(), currentUser(r), deviceID, e)
	if err != nil {
		a.writeError(w, err)
		return
	}

	message := "Push sent successfully"
	if !success {
		message = "Device not connected"
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  success,
		"deviceId": deviceID,
		"message":  message,
	})
}

func (a *api) testPushAll(w http.ResponseWriter, r *http.Request) {
	e := TestEvent("This is a test push to all devices from admin interface", readPayload(r))

	results, err := a.service.PushToConnected(r.Context(), currentUser(r), e)
	if err != nil {
		a.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":          true,
		"results":          results,
		"totalDevices":     len(results),
		"successfulPushes": hub.Delivered(results),
	})
}

func (a *api) refreshOne(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceId")

	success, err := a.service.PushToDevice(r.Context(), currentUser(r), deviceID, hub.Refresh{})
	if err != nil {
		a.writeError(w, err)
		return
	}

	message := fmt.Sprintf("Refresh signal sent to %s", deviceID)
	if !success {
		message = fmt.Sprintf("Device %s not connected.", deviceID)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": success,
		"message": message,
	})
}

func (a *api) refresh(w http.ResponseWriter, r *http.Request) {
	req := struct {
		DeviceIDs []string `json:"deviceIds"`
	}{}
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, err)
		return
	}
	if len(req.DeviceIDs) == 0 {
		a.writeError(w, &models.ValidationError{Field: "deviceIds", Message: "deviceIds must list at least one device"})
		return
	}

	results, err := a.service.PushToDevices(r.Context(), currentUser(r), req.DeviceIDs, hub.Refresh{})
	if err != nil {
		a.writeError(w, err)
		return
	}

	pushed := hub.Delivered(results)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"results": results,
		"pushed":  pushed,
		"failed":  len(results) - pushed,
	})
}

func (a *api) refreshAll(w http.ResponseWriter, r *http.Request) {
	results, err := a.service.PushToConnected(r.Context(), currentUser(r), hub.Refresh{})
	if err != nil {
		a.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":         true,
		"devicesNotified": hub.Delivered(results),
		"totalDevices":    len(results),
	})
}

func (a *api) refreshBuilding(w http.ResponseWriter, r *http.Request) {
	building := chi.URLParam(r, "building")

	results, err := a.service.PushToBuilding(r.Context(), currentUser(r), building, hub.Refresh{})
	if err != nil {
		a.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":         true,
		"building":        building,
		"results":         results,
		"devicesNotified": hub.Delivered(results),
	})
}

func (a *api) listDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := a.service.ListDevices(r.Context(), currentUser(r))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

func (a *api) createDevice(w http.ResponseWriter, r *http.Request) {
	req := DeviceRequest{}
	req.Active = true
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, err)
		return
	}

	device, err := a.service.CreateDevice(r.Context(), currentUser(r), req)
	if err != nil {
		a.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"message": "Device added successfully",
		"device":  device,
	})
}

func (a *api) updateDevice(w http.ResponseWriter, r *http.Request) {
	patch := models.DevicePatch{}
	if err := decodeBody(r, &patch); err != nil {
		a.writeError(w, err)
		return
	}

	device, err := a.service.UpdateDevice(r.Context(), currentUser(r), chi.URLParam(r, "deviceId"), patch)
	if err != nil {
		a.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Device updated successfully",
		"device":  device,
	})
}

func (a *api) deleteDevice(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceId")

	if err := a.service.DeleteDevice(r.Context(), currentUser(r), deviceID); err != nil {
		a.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"message":  "Device deleted successfully",
		"deviceId": deviceID,
	})
}

func (a *api) listAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := a.service.ListAlerts(r.Context(), currentUser(r))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (a *api) createAlert(w http.ResponseWriter, r *http.Request) {
	req := struct {
		models.Alert
		Active *bool `json:"active"`
	}{}
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, err)
		return
	}

	alert := req.Alert
	alert.Active = req.Active == nil || *req.Active

	created, err := a.service.CreateAlert(r.Context(), currentUser(r), alert)
	if err != nil {
		a.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"message": "Alert created successfully",
		"alert":   created,
	})
}

func (a *api) updateAlert(w http.ResponseWriter, r *http.Request) {
	patch := models.AlertPatch{}
	if err := decodeBody(r, &patch); err != nil {
		a.writeError(w, err)
		return
	}

	alert, err := a.service.UpdateAlert(r.Context(), currentUser(r), chi.URLParam(r, "alertId"), patch)
	if err != nil {
		a.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Alert updated successfully",
		"alert":   alert,
	})
}

func (a *api) deleteAlert(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "alertId")

	if err := a.service.DeleteAlert(r.Context(), currentUser(r), alertID); err != nil {
		a.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Alert deleted successfully",
		"alertId": alertID,
	})
}

func (a *api) toggleAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := a.service.ToggleAlert(r.Context(), currentUser(r), chi.URLParam(r, "alertId"))
	if err != nil {
		a.writeError(w, err)
		return
	}

	state := "deactivated"
	if alert.Active {
		state = "activated"
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": fmt.Sprintf("Alert %s successfully", state),
		"alertId": alert.AlertID,
		"active":  alert.Active,
	})
}

func (a *api) deployAlert(w http.ResponseWriter, r *http.Request) {
	report, err := a.service.DeployAlert(r.Context(), currentUser(r), chi.URLParam(r, "alertId"))
	if err != nil {
		a.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":         true,
		"devicesNotified": report.DevicesNotified,
		"buildings":       report.Buildings,
		"alertId":         report.AlertID,
	})
}
