package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/infrastructure/logging"
	"github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/infrastructure/repositories/models"
	signage "github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

//Datastore is an interface that is used to inject the record store into the service to improve testability
type Datastore interface {
	GetDevices(ctx context.Context) ([]signage.Device, error)
	GetDeviceFromID(ctx context.Context, deviceID string) (signage.Device, error)
	CreateDevice(ctx context.Context, device signage.Device) (signage.Device, error)
	UpdateDevice(ctx context.Context, deviceID string, patch signage.DevicePatch) (signage.Device, error)
	DeleteDevice(ctx context.Context, deviceID string) error

	GetAlerts(ctx context.Context) ([]signage.Alert, error)
	GetAlertFromID(ctx context.Context, alertID string) (signage.Alert, error)
	CreateAlert(ctx context.Context, alert signage.Alert) (signage.Alert, error)
	UpdateAlert(ctx context.Context, alertID string, patch signage.AlertPatch) (signage.Alert, error)
	DeleteAlert(ctx context.Context, alertID string) error
}

type myDB struct {
	impl *gorm.DB
	log  logging.Logger
}

//ConnectorFunc is used to inject a database connection method into NewDatabaseConnection
type ConnectorFunc func() (*gorm.DB, error)

//NewPostgreSQLConnector opens a connection to a postgresql database, retrying a few times while it starts up
func NewPostgreSQLConnector(dsn, host string, log logging.Logger) ConnectorFunc {
	const attempts = 5

	return func() (*gorm.DB, error) {
		var err error
		for i := 1; i <= attempts; i++ {
			log.Infof("Connecting to database host %s (attempt %d of %d) ...", host, i, attempts)

			var db *gorm.DB
			db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
				Logger: logger.Default.LogMode(logger.Warn),
			})
			if err == nil {
				return db, nil
			}

			log.Errorf("Failed to connect to database: %s", err.Error())
			time.Sleep(3 * time.Second)
		}

		return nil, fmt.Errorf("giving up on database host %s: %w", host, err)
	}
}

//NewSQLiteConnector opens a connection to a local sqlite database.
//Use "file::memory:?cache=shared" for a throwaway in-memory store.
func NewSQLiteConnector(dsn string) ConnectorFunc {
	return func() (*gorm.DB, error) {
		db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})

		if err == nil {
			db.Exec("PRAGMA foreign_keys = ON")
		}

		return db, err
	}
}

//NewDatabaseConnection initializes a new connection to the database and wraps it in a Datastore
func NewDatabaseConnection(connect ConnectorFunc, log logging.Logger) (Datastore, error) {
	impl, err := connect()
	if err != nil {
		return nil, err
	}

	if err := impl.AutoMigrate(&models.Device{}, &models.Alert{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &myDB{impl: impl, log: log}, nil
}

func (db *myDB) GetDevices(ctx context.Context) ([]signage.Device, error) {
	rows := []models.Device{}
	if err := db.impl.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, signage.StoreUnavailable(err)
	}

	devices := make([]signage.Device, 0, len(rows))
	for _, row := range rows {
		devices = append(devices, row.Display())
	}

	return devices, nil
}

func (db *myDB) GetDeviceFromID(ctx context.Context, deviceID string) (signage.Device, error) {
	row, err := db.deviceRow(ctx, db.impl, deviceID)
	if err != nil {
		return signage.Device{}, err
	}
	return row.Display(), nil
}

func (db *myDB) CreateDevice(ctx context.Context, device signage.Device) (signage.Device, error) {
	err := db.impl.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := db.deviceRow(ctx, tx, device.DeviceID); err == nil {
			return &signage.ValidationError{Field: "deviceId", Message: fmt.Sprintf("device %s already exists", device.DeviceID)}
		} else if !errors.Is(err, signage.ErrNotFound) {
			return err
		}

		row := models.NewDevice(device)
		return tx.Create(&row).Error
	})
	if err != nil {
		return signage.Device{}, signage.StoreUnavailable(err)
	}

	db.log.Infof("created device %s in building %s", device.DeviceID, device.Building)
	return device, nil
}

func (db *myDB) UpdateDevice(ctx context.Context, deviceID string, patch signage.DevicePatch) (signage.Device, error) {
	var updated signage.Device

	err := db.impl.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := db.deviceRow(ctx, tx, deviceID)
		if err != nil {
			return err
		}

		updated = patch.Apply(row.Display())
		row.Set(updated)
		return tx.Save(&row).Error
	})
	if err != nil {
		return signage.Device{}, signage.StoreUnavailable(err)
	}

	return updated, nil
}

func (db *myDB) DeleteDevice(ctx context.Context, deviceID string) error {
	result := db.impl.WithContext(ctx).Unscoped().Where("device_id = ?", deviceID).Delete(&models.Device{})
	if result.Error != nil {
		return signage.StoreUnavailable(result.Error)
	}
	if result.RowsAffected == 0 {
		return signage.NotFoundf("device %s", deviceID)
	}
	return nil
}

func (db *myDB) GetAlerts(ctx context.Context) ([]signage.Alert, error) {
	rows := []models.Alert{}
	if err := db.impl.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, signage.StoreUnavailable(err)
	}

	alerts := make([]signage.Alert, 0, len(rows))
	for _, row := range rows {
		alerts = append(alerts, row.Alert())
	}

	return alerts, nil
}

func (db *myDB) GetAlertFromID(ctx context.Context, alertID string) (signage.Alert, error) {
	row, err := db.alertRow(ctx, db.impl, alertID)
	if err != nil {
		return signage.Alert{}, err
	}
	return row.Alert(), nil
}

func (db *myDB) CreateAlert(ctx context.Context, alert signage.Alert) (signage.Alert, error) {
	row := models.NewAlert(alert)
	if err := db.impl.WithContext(ctx).Create(&row).Error; err != nil {
		return signage.Alert{}, signage.StoreUnavailable(err)
	}

	db.log.Infof("created alert %s", alert.AlertID)
	return row.Alert(), nil
}

func (db *myDB) UpdateAlert(ctx context.Context, alertID string, patch signage.AlertPatch) (signage.Alert, error) {
	var updated signage.Alert

	err := db.impl.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := db.alertRow(ctx, tx, alertID)
		if err != nil {
			return err
		}

		row.Set(patch.Apply(row.Alert()))
		if err := tx.Save(&row).Error; err != nil {
			return err
		}
		updated = row.Alert()
		return nil
	})
	if err != nil {
		return signage.Alert{}, signage.StoreUnavailable(err)
	}

	return updated, nil
}

func (db *myDB) DeleteAlert(ctx context.Context, alertID string) error {
	result := db.impl.WithContext(ctx).Unscoped().Where("alert_id = ?", alertID).Delete(&models.Alert{})
	if result.Error != nil {
		return signage.StoreUnavailable(result.Error)
	}
	if result.RowsAffected == 0 {
		return signage.NotFoundf("alert %s", alertID)
	}
	return nil
}

func (db *myDB) deviceRow(ctx context.Context, tx *gorm.DB, deviceID string) (models.Device, error) {
	row := models.Device{}
	err := tx.WithContext(ctx).Where("device_id = ?", deviceID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return row, signage.NotFoundf("device %s", deviceID)
	}
	return row, signage.StoreUnavailable(err)
}

func (db *myDB) alertRow(ctx context.Context, tx *gorm.DB, alertID string) (models.Alert, error) {
	row := models.Alert{}
	err := tx.WithContext(ctx).Where("alert_id = ?", alertID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return row, signage.NotFoundf("alert %s", alertID)
	}
	return row, signage.StoreUnavailable(err)
}
