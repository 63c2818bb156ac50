package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/access"
	"github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/hub"
	"github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/infrastructure/logging"
	"github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/infrastructure/repositories/database"
	"github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/models"
	"github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/slides"
	"github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/targeting"
)

//ServiceOptions tunes the admin service
type ServiceOptions struct {
	StoreTimeout    time.Duration
	DefaultSlideID  string
	DefaultLocation string
}

//Service carries out admin operations: every call is authorized against the
//caller's permission before the store is touched, and affected displays are
//told to refresh once it has been.
type Service struct {
	store     database.Datastore
	hub       *hub.Hub
	engine    *targeting.Engine
	ids       *models.AlertIDGenerator
	messenger MessagingContext
	opts      ServiceOptions
	log       logging.Logger
	now       func() time.Time
}

//NewService wires the service. messenger may be nil when no message bus is configured.
func NewService(store database.Datastore, h *hub.Hub, messenger MessagingContext, opts ServiceOptions, log logging.Logger) *Service {
	return &Service{
		store:     store,
		hub:       h,
		engine:    targeting.NewEngine(store, h, log),
		ids:       models.NewAlertIDGenerator(nil),
		messenger: messenger,
		opts:      opts,
		log:       log,
		now:       time.Now,
	}
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.StoreTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opts.StoreTimeout)
}

//ListDevices returns the devices the user may see
func (s *Service) ListDevices(ctx context.Context, user User) ([]models.Device, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	devices, err := s.store.GetDevices(ctx)
	if err != nil {
		return nil, err
	}

	filtered := access.FilterDevices(devices, user.Permission)
	s.log.Infof("returning %d of %d devices to %s", len(filtered), len(devices), user.Email)

	return filtered, nil
}

//DeviceRequest is a device as submitted by the admin interface
type DeviceRequest struct {
	models.Device
	PresentationLink string `json:"presentationLink,omitempty"`
}

//CreateDevice adds a device to one of the user's buildings
func (s *Service) CreateDevice(ctx context.Context, user User, req DeviceRequest) (models.Device, error) {
	device := req.Device
	device.DeviceID = strings.TrimSpace(device.DeviceID)
	device.Building = strings.TrimSpace(device.Building)

	if device.DeviceID == "" {
		return models.Device{}, &models.ValidationError{Field: "deviceId", Message: "a device id is required"}
	}
	if device.Building == "" && !user.Permission.IsDistrict() {
		return models.Device{}, &models.ValidationError{Field: "building", Message: "a building is required"}
	}
	if device.Building != "" {
		if err := access.AuthorizeMutation(user.Permission, []string{device.Building}); err != nil {
			return models.Device{}, err
		}
	}

	device.SlideID = slides.Normalize(device.SlideID, req.PresentationLink)
	device = device.WithDefaults()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	created, err := s.store.CreateDevice(ctx, device)
	if err != nil {
		return models.Device{}, err
	}

	s.log.Infof("device %s added to building %s by %s", created.DeviceID, created.Building, user.Email)
	return created, nil
}

//UpdateDevice changes a device the user may access, also when it moves it to
//another building, and tells the device to reload its configuration.
func (s *Service) UpdateDevice(ctx context.Context, user User, deviceID string, patch models.DevicePatch) (models.Device, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	existing, err := s.store.GetDeviceFromID(ctx, deviceID)
	if err != nil {
		return models.Device{}, err
	}

	if err := access.AuthorizeCurrent(user.Permission, []string{existing.Building}); err != nil {
		return models.Device{}, err
	}
	if patch.Building != nil && *patch.Building != existing.Building {
		if err := access.AuthorizeMutation(user.Permission, []string{*patch.Building}); err != nil {
			return models.Device{}, err
		}
	}

	if patch.SlideID != nil || patch.PresentationLink != nil {
		slideID := slides.Normalize(deref(patch.SlideID), deref(patch.PresentationLink))
		if patch.SlideID != nil || slideID != "" {
			patch.SlideID = &slideID
		}
	}
	patch.PresentationLink = nil

	updated, err := s.store.UpdateDevice(ctx, deviceID, patch)
	if err != nil {
		return models.Device{}, err
	}

	s.log.Infof("device %s updated by %s", deviceID, user.Email)
	s.hub.PushToDevice(deviceID, hub.Refresh{})

	return updated, nil
}

//DeleteDevice removes a device the user may access
func (s *Service) DeleteDevice(ctx context.Context, user User, deviceID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	existing, err := s.store.GetDeviceFromID(ctx, deviceID)
	if err != nil {
		return err
	}

	if err := access.AuthorizeCurrent(user.Permission, []string{existing.Building}); err != nil {
		return err
	}

	if err := s.store.DeleteDevice(ctx, deviceID); err != nil {
		return err
	}

	s.log.Infof("device %s deleted by %s", deviceID, user.Email)
	return nil
}

//ListAlerts returns the global alerts and those touching the user's buildings
func (s *Service) ListAlerts(ctx context.Context, user User) ([]models.Alert, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	alerts, err := s.store.GetAlerts(ctx)
	if err != nil {
		return nil, err
	}

	return access.FilterAlerts(alerts, user.Permission), nil
}

//CreateAlert validates and stores a new alert and refreshes the displays it targets
func (s *Service) CreateAlert(ctx context.Context, user User, alert models.Alert) (models.Alert, error) {
	alert.SlideID = slides.Normalize(alert.SlideID, "")
	if alert.Priority == "" {
		alert.Priority = models.PriorityMedium
	}

	if err := alert.Validate(); err != nil {
		return models.Alert{}, err
	}
	if err := access.AuthorizeMutation(user.Permission, alert.Buildings); err != nil {
		return models.Alert{}, err
	}

	alert.AlertID = s.ids.Next()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	created, err := s.store.CreateAlert(ctx, alert)
	if err != nil {
		return models.Alert{}, err
	}

	s.log.Infof("alert %s created by %s", created.AlertID, user.Email)
	notified := s.refresh(ctx, nil, created.Buildings)
	s.publish(newAlertChanged(AlertCreated, created.AlertID, created.Buildings, created.Active, notified, user.Email, s.now()))

	return created, nil
}

//UpdateAlert changes an alert the user may access. Displays in both the
//previous and the new target buildings are refreshed.
func (s *Service) UpdateAlert(ctx context.Context, user User, alertID string, patch models.AlertPatch) (models.Alert, error) {
	if patch.Buildings != nil && len(*patch.Buildings) == 0 {
		return models.Alert{}, &models.ValidationError{Field: "buildings", Message: "at least one building is required"}
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	existing, err := s.store.GetAlertFromID(ctx, alertID)
	if err != nil {
		return models.Alert{}, err
	}

	if err := access.AuthorizeAlert(user.Permission, existing); err != nil {
		return models.Alert{}, err
	}
	if patch.Buildings != nil {
		if err := access.AuthorizeMutation(user.Permission, *patch.Buildings); err != nil {
			return models.Alert{}, err
		}
	}

	if patch.SlideID != nil {
		slideID := slides.Normalize(*patch.SlideID, "")
		patch.SlideID = &slideID
	}
	if err := patch.Apply(existing).ValidateContent(); err != nil {
		return models.Alert{}, err
	}

	updated, err := s.store.UpdateAlert(ctx, alertID, patch)
	if err != nil {
		return models.Alert{}, err
	}

	s.log.Infof("alert %s updated by %s", alertID, user.Email)
	notified := s.refresh(ctx, existing.Buildings, updated.Buildings)
	s.publish(newAlertChanged(AlertUpdated, alertID, updated.Buildings, updated.Active, notified, user.Email, s.now()))

	return updated, nil
}

//DeleteAlert removes an alert the user may access and refreshes the displays that showed it
func (s *Service) DeleteAlert(ctx context.Context, user User, alertID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	existing, err := s.store.GetAlertFromID(ctx, alertID)
	if err != nil {
		return err
	}

	if err := access.AuthorizeAlert(user.Permission, existing); err != nil {
		return err
	}

	if err := s.store.DeleteAlert(ctx, alertID); err != nil {
		return err
	}

	s.log.Infof("alert %s deleted by %s", alertID, user.Email)
	notified := s.refresh(ctx, existing.Buildings, nil)
	s.publish(newAlertChanged(AlertDeleted, alertID, existing.Buildings, false, notified, user.Email, s.now()))

	return nil
}

//ToggleAlert flips the active flag of an alert the user may access
func (s *Service) ToggleAlert(ctx context.Context, user User, alertID string) (models.Alert, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	existing, err := s.store.GetAlertFromID(ctx, alertID)
	if err != nil {
		return models.Alert{}, err
	}

	if err := access.AuthorizeAlert(user.Permission, existing); err != nil {
		return models.Alert{}, err
	}

	active := !existing.Active
	updated, err := s.store.UpdateAlert(ctx, alertID, models.AlertPatch{Active: &active})
	if err != nil {
		return models.Alert{}, err
	}

	s.log.Infof("alert %s toggled to active=%t by %s", alertID, active, user.Email)
	notified := s.refresh(ctx, existing.Buildings, nil)
	s.publish(newAlertChanged(AlertToggled, alertID, updated.Buildings, updated.Active, notified, user.Email, s.now()))

	return updated, nil
}

//DeployAlert pushes an active, unexpired alert straight to the displays it targets
func (s *Service) DeployAlert(ctx context.Context, user User, alertID string) (targeting.DeployReport, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	alert, err := s.store.GetAlertFromID(ctx, alertID)
	if err != nil {
		return targeting.DeployReport{}, err
	}

	if err := access.AuthorizeAlert(user.Permission, alert); err != nil {
		return targeting.DeployReport{}, err
	}
	if !alert.Active || alert.ExpiredAt(s.now()) {
		return targeting.DeployReport{}, &models.ValidationError{Field: "active", Message: fmt.Sprintf("alert %s is not active", alertID)}
	}

	report, err := s.engine.Deploy(ctx, alert)
	if err != nil {
		return targeting.DeployReport{}, err
	}

	s.publish(newAlertChanged(AlertDeployed, alertID, alert.Buildings, alert.Active, report.DevicesNotified, user.Email, s.now()))

	return report, nil
}

//refresh notifies displays after a mutation that has already been stored, so a
//failure here is logged rather than returned.
func (s *Service) refresh(ctx context.Context, before, after []string) int {
	results, err := s.engine.Refresh(ctx, before, after)
	if err != nil {
		s.log.Errorf("failed to refresh displays: %s", err.Error())
		return 0
	}
	return hub.Delivered(results)
}

func (s *Service) publish(msg *AlertChanged) {
	if s.messenger == nil {
		return
	}

	if err := s.messenger.PublishOnTopic(msg); err != nil {
		s.log.Warnf("failed to publish %s for alert %s: %s", msg.Action, msg.AlertID, err.Error())
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
