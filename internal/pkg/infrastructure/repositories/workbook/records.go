package workbook

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	signage "github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/models"
)

func (s *Store) decodeDevice(t *table, row []string) signage.Device {
	interval, err := strconv.Atoi(t.value(row, "refreshInterval"))
	if err != nil {
		interval = signage.DefaultRefreshInterval
	}

	return signage.Device{
		DeviceID:        t.value(row, "deviceId"),
		Name:            t.value(row, "displayname"),
		Building:        t.value(row, "building"),
		IPAddress:       t.value(row, "ipAddress"),
		Location:        t.value(row, "location"),
		Template:        t.value(row, "template"),
		Theme:           t.value(row, "theme"),
		SlideID:         t.value(row, "slideId"),
		RefreshInterval: interval,
		Coordinates:     t.value(row, "coordinates"),
		Notes:           t.value(row, "notes"),
		Active:          parseBool(t.value(row, "active"), true),
	}
}

func encodeDevice(d signage.Device) map[string]interface{} {
	return map[string]interface{}{
		"deviceid":        d.DeviceID,
		"ipaddress":       d.IPAddress,
		"location":        d.Location,
		"template":        d.Template,
		"theme":           d.Theme,
		"slideid":         d.SlideID,
		"refreshinterval": d.RefreshInterval,
		"coordinates":     d.Coordinates,
		"notes":           d.Notes,
		"building":        d.Building,
		"displayname":     d.Name,
		"active":          formatBool(d.Active),
	}
}

func (s *Store) decodeAlert(t *table, row []string) signage.Alert {
	a := signage.Alert{
		AlertID:   t.value(row, "alertId"),
		Name:      t.value(row, "name"),
		Type:      signage.AlertType(t.value(row, "type")),
		Priority:  signage.Priority(t.value(row, "priority")),
		Buildings: signage.ParseBuildings(t.value(row, "buildings")),
		Active:    parseBool(t.value(row, "active"), false),
		SlideID:   t.value(row, "slideId"),
		Title:     t.value(row, "title"),
		Text:      t.value(row, "text"),
		Icon:      t.value(row, "icon"),
		SRPAction: t.value(row, "srpAction"),
	}

	if raw := t.value(row, "expires"); raw != "" {
		for _, layout := range expiryLayouts {
			if expires, err := time.Parse(layout, raw); err == nil {
				a.Expires = &expires
				break
			}
		}
		if a.Expires == nil {
			s.log.Warnf("ignoring unparseable expiry %q on alert %s", raw, a.AlertID)
		}
	}

	return a
}

func encodeAlert(a signage.Alert) map[string]interface{} {
	expires := ""
	if a.Expires != nil {
		expires = a.Expires.UTC().Format(time.RFC3339)
	}

	return map[string]interface{}{
		"alertid":   a.AlertID,
		"name":      a.Name,
		"type":      string(a.Type),
		"priority":  string(a.Priority),
		"buildings": strings.Join(a.Buildings, ","),
		"active":    formatBool(a.Active),
		"expires":   expires,
		"slideid":   a.SlideID,
		"title":     a.Title,
		"text":      a.Text,
		"icon":      a.Icon,
		"srpaction": a.SRPAction,
	}
}

func (s *Store) GetDevices(ctx context.Context) ([]signage.Device, error) {
	devices := []signage.Device{}

	err := s.read(ctx, DisplaysSheet, func(t *table) error {
		for _, row := range t.rows {
			if t.value(row, "deviceId") == "" {
				continue
			}
			devices = append(devices, s.decodeDevice(t, row))
		}
		return nil
	})

	return devices, err
}

func (s *Store) GetDeviceFromID(ctx context.Context, deviceID string) (signage.Device, error) {
	var device signage.Device

	err := s.read(ctx, DisplaysSheet, func(t *table) error {
		i := t.find("deviceId", deviceID)
		if i < 0 {
			return signage.NotFoundf("device %s", deviceID)
		}
		device = s.decodeDevice(t, t.rows[i])
		return nil
	})

	return device, err
}

func (s *Store) CreateDevice(ctx context.Context, device signage.Device) (signage.Device, error) {
	err := s.write(ctx, DisplaysSheet, func(f *excelize.File, t *table) error {
		if t.column("deviceId") < 0 {
			return fmt.Errorf("deviceId column not found in sheet %s", t.sheet)
		}
		if t.find("deviceId", device.DeviceID) >= 0 {
			return &signage.ValidationError{Field: "deviceId", Message: fmt.Sprintf("device %s already exists", device.DeviceID)}
		}

		row := t.encode(encodeDevice(device), nil)
		return f.SetSheetRow(t.sheet, cellName(len(t.rows)), &row)
	})
	if err != nil {
		return signage.Device{}, err
	}

	s.log.Infof("added device %s to workbook", device.DeviceID)
	return device, nil
}

func (s *Store) UpdateDevice(ctx context.Context, deviceID string, patch signage.DevicePatch) (signage.Device, error) {
	var updated signage.Device

	err := s.write(ctx, DisplaysSheet, func(f *excelize.File, t *table) error {
		i := t.find("deviceId", deviceID)
		if i < 0 {
			return signage.NotFoundf("device %s", deviceID)
		}

		updated = patch.Apply(s.decodeDevice(t, t.rows[i]))
		row := t.encode(encodeDevice(updated), t.rows[i])
		return f.SetSheetRow(t.sheet, cellName(i), &row)
	})

	return updated, err
}

func (s *Store) DeleteDevice(ctx context.Context, deviceID string) error {
	return s.write(ctx, DisplaysSheet, func(f *excelize.File, t *table) error {
		i := t.find("deviceId", deviceID)
		if i < 0 {
			return signage.NotFoundf("device %s", deviceID)
		}
		return f.RemoveRow(t.sheet, i+2)
	})
}

func (s *Store) GetAlerts(ctx context.Context) ([]signage.Alert, error) {
	alerts := []signage.Alert{}

	err := s.read(ctx, AlertsSheet, func(t *table) error {
		for _, row := range t.rows {
			if t.value(row, "alertId") == "" && t.value(row, "name") == "" {
				continue
			}
			alerts = append(alerts, s.decodeAlert(t, row))
		}
		return nil
	})

	return alerts, err
}

func (s *Store) GetAlertFromID(ctx context.Context, alertID string) (signage.Alert, error) {
	var alert signage.Alert

	err := s.read(ctx, AlertsSheet, func(t *table) error {
		i := t.find("alertId", alertID)
		if i < 0 {
			return signage.NotFoundf("alert %s", alertID)
		}
		alert = s.decodeAlert(t, t.rows[i])
		return nil
	})

	return alert, err
}

func (s *Store) CreateAlert(ctx context.Context, alert signage.Alert) (signage.Alert, error) {
	err := s.write(ctx, AlertsSheet, func(f *excelize.File, t *table) error {
		if t.column("alertId") < 0 {
			return fmt.Errorf("alertId column not found in sheet %s", t.sheet)
		}

		row := t.encode(encodeAlert(alert), nil)
		return f.SetSheetRow(t.sheet, cellName(len(t.rows)), &row)
	})
	if err != nil {
		return signage.Alert{}, err
	}

	s.log.Infof("added alert %s to workbook", alert.AlertID)
	return alert, nil
}

func (s *Store) UpdateAlert(ctx context.Context, alertID string, patch signage.AlertPatch) (signage.Alert, error) {
	var updated signage.Alert

	err := s.write(ctx, AlertsSheet, func(f *excelize.File, t *table) error {
		i := t.find("alertId", alertID)
		if i < 0 {
			return signage.NotFoundf("alert %s", alertID)
		}

		updated = patch.Apply(s.decodeAlert(t, t.rows[i]))
		row := t.encode(encodeAlert(updated), t.rows[i])
		return f.SetSheetRow(t.sheet, cellName(i), &row)
	})

	return updated, err
}

func (s *Store) DeleteAlert(ctx context.Context, alertID string) error {
	return s.write(ctx, AlertsSheet, func(f *excelize.File, t *table) error {
		i := t.find("alertId", alertID)
		if i < 0 {
			return signage.NotFoundf("alert %s", alertID)
		}
		return f.RemoveRow(t.sheet, i+2)
	})
}
