package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/infrastructure/logging"
	signage "github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/models"
)

func TestThatCreatedDevicesCanBeRead(t *testing.T) {
	if db, ok := newDatabaseForTest(t); ok {
		ctx := context.Background()
		device := signage.Device{DeviceID: "ms-hall", Name: "Hallway", Building: "MS", RefreshInterval: 15, Active: true}

		if _, err := db.CreateDevice(ctx, device); err != nil {
			t.Fatalf("CreateDevice failed: %s", err.Error())
		}

		stored, err := db.GetDeviceFromID(ctx, "ms-hall")
		if err != nil {
			t.Fatalf("GetDeviceFromID failed: %s", err.Error())
		}
		if stored != device {
			t.Errorf("stored device differs: %+v != %+v", stored, device)
		}
	}
}

func TestThatDuplicateDevicesAreRejected(t *testing.T) {
	if db, ok := newDatabaseForTest(t); ok {
		ctx := context.Background()
		db.CreateDevice(ctx, signage.Device{DeviceID: "dup"})

		_, err := db.CreateDevice(ctx, signage.Device{DeviceID: "dup"})

		var invalid *signage.ValidationError
		if !errors.As(err, &invalid) {
			t.Errorf("expected a validation error, got %v", err)
		}
	}
}

func TestThatUnknownDeviceIsNotFound(t *testing.T) {
	if db, ok := newDatabaseForTest(t); ok {
		ctx := context.Background()

		if _, err := db.GetDeviceFromID(ctx, "ghost"); !errors.Is(err, signage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if err := db.DeleteDevice(ctx, "ghost"); !errors.Is(err, signage.ErrNotFound) {
			t.Errorf("expected ErrNotFound on delete, got %v", err)
		}
		if _, err := db.UpdateDevice(ctx, "ghost", signage.DevicePatch{}); !errors.Is(err, signage.ErrNotFound) {
			t.Errorf("expected ErrNotFound on update, got %v", err)
		}
	}
}

func TestThatUpdateDeviceOnlyChangesPatchedFields(t *testing.T) {
	if db, ok := newDatabaseForTest(t); ok {
		ctx := context.Background()
		db.CreateDevice(ctx, signage.Device{DeviceID: "se-lobby", Name: "Lobby", Building: "SE", Notes: "by the door"})

		building := "IS"
		updated, err := db.UpdateDevice(ctx, "se-lobby", signage.DevicePatch{Building: &building})
		if err != nil {
			t.Fatalf("UpdateDevice failed: %s", err.Error())
		}

		if updated.Building != "IS" || updated.Name != "Lobby" || updated.Notes != "by the door" {
			t.Errorf("unexpected update result %+v", updated)
		}

		stored, _ := db.GetDeviceFromID(ctx, "se-lobby")
		if stored != updated {
			t.Errorf("update was not persisted: %+v", stored)
		}
	}
}

func TestThatDeletedDeviceIdCanBeReused(t *testing.T) {
	if db, ok := newDatabaseForTest(t); ok {
		ctx := context.Background()
		db.CreateDevice(ctx, signage.Device{DeviceID: "hs-cafe", Building: "HS"})

		if err := db.DeleteDevice(ctx, "hs-cafe"); err != nil {
			t.Fatalf("DeleteDevice failed: %s", err.Error())
		}
		if _, err := db.CreateDevice(ctx, signage.Device{DeviceID: "hs-cafe", Building: "HS"}); err != nil {
			t.Errorf("re-creating a deleted device failed: %s", err.Error())
		}
	}
}

func TestGetDevicesKeepsInsertionOrder(t *testing.T) {
	if db, ok := newDatabaseForTest(t); ok {
		ctx := context.Background()
		for _, id := range []string{"c", "a", "b"} {
			db.CreateDevice(ctx, signage.Device{DeviceID: id})
		}

		devices, err := db.GetDevices(ctx)
		if err != nil {
			t.Fatalf("GetDevices failed: %s", err.Error())
		}

		ids := []string{}
		for _, d := range devices {
			ids = append(ids, d.DeviceID)
		}
		if strings.Join(ids, ",") != "c,a,b" {
			t.Errorf("unexpected device order %v", ids)
		}
	}
}

func TestThatAlertsRoundTripBuildingsAndExpiry(t *testing.T) {
	if db, ok := newDatabaseForTest(t); ok {
		ctx := context.Background()
		expires := time.Date(2024, 9, 2, 15, 0, 0, 0, time.UTC)
		alert := signage.Alert{
			AlertID:   "alert1",
			Name:      "Lockdown",
			Type:      signage.AlertTypeSRP,
			Priority:  signage.PriorityHigh,
			Buildings: []string{"MS", "HS"},
			Active:    true,
			Expires:   &expires,
			SRPAction: "lockdown",
		}

		if _, err := db.CreateAlert(ctx, alert); err != nil {
			t.Fatalf("CreateAlert failed: %s", err.Error())
		}

		stored, err := db.GetAlertFromID(ctx, "alert1")
		if err != nil {
			t.Fatalf("GetAlertFromID failed: %s", err.Error())
		}

		if strings.Join(stored.Buildings, ",") != "MS,HS" {
			t.Errorf("unexpected buildings %v", stored.Buildings)
		}
		if stored.Expires == nil || !stored.Expires.Equal(expires) {
			t.Errorf("unexpected expiry %v", stored.Expires)
		}
	}
}

func TestThatGlobalAlertsKeepAnEmptyBuildingList(t *testing.T) {
	if db, ok := newDatabaseForTest(t); ok {
		ctx := context.Background()
		db.CreateAlert(ctx, signage.Alert{AlertID: "global", Name: "Snow day", Active: true})

		alerts, _ := db.GetAlerts(ctx)
		if len(alerts) != 1 || !alerts[0].IsGlobal() {
			t.Errorf("expected a single global alert, got %+v", alerts)
		}
	}
}

func TestThatUpdateAlertCanClearExpiry(t *testing.T) {
	if db, ok := newDatabaseForTest(t); ok {
		ctx := context.Background()
		expires := time.Now().Add(time.Hour)
		db.CreateAlert(ctx, signage.Alert{AlertID: "a1", Name: "Drill", Buildings: []string{"SE"}, Expires: &expires})

		active := true
		updated, err := db.UpdateAlert(ctx, "a1", signage.AlertPatch{Active: &active, ClearExpires: true})
		if err != nil {
			t.Fatalf("UpdateAlert failed: %s", err.Error())
		}

		if !updated.Active || updated.Expires != nil {
			t.Errorf("unexpected update result %+v", updated)
		}
	}
}

func TestThatDeleteAlertRemovesIt(t *testing.T) {
	if db, ok := newDatabaseForTest(t); ok {
		ctx := context.Background()
		db.CreateAlert(ctx, signage.Alert{AlertID: "a2", Name: "Drill", Buildings: []string{"SE"}})

		if err := db.DeleteAlert(ctx, "a2"); err != nil {
			t.Fatalf("DeleteAlert failed: %s", err.Error())
		}
		if _, err := db.GetAlertFromID(ctx, "a2"); !errors.Is(err, signage.ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
	}
}

func newDatabaseForTest(t *testing.T) (Datastore, bool) {
	log := logging.NewNopLogger()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := NewDatabaseConnection(NewSQLiteConnector(dsn), log)

	if err != nil {
		t.Error(err.Error())
		return nil, false
	}

	return db, true
}
