package models

import (
	"gorm.io/gorm"

	signage "github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/models"
)

//Device is the database model to store displays in our database
type Device struct {
	gorm.Model
	DeviceID        string `gorm:"uniqueIndex"`
	Name            string
	Building        string `gorm:"index"`
	IPAddress       string
	Location        string
	Template        string
	Theme           string
	SlideID         string
	RefreshInterval int
	Coordinates     string
	Notes           string
	Active          bool
}

//NewDevice copies a display into its database representation
func NewDevice(d signage.Device) Device {
	row := Device{}
	row.Set(d)
	return row
}

//Set overwrites every stored attribute except the primary keys with the values in d
func (row *Device) Set(d signage.Device) {
	row.DeviceID = d.DeviceID
	row.Name = d.Name
	row.Building = d.Building
	row.IPAddress = d.IPAddress
	row.Location = d.Location
	row.Template = d.Template
	row.Theme = d.Theme
	row.SlideID = d.SlideID
	row.RefreshInterval = d.RefreshInterval
	row.Coordinates = d.Coordinates
	row.Notes = d.Notes
	row.Active = d.Active
}

//Display converts the stored row back into a display
func (row Device) Display() signage.Device {
	return signage.Device{
		DeviceID:        row.DeviceID,
		Name:            row.Name,
		Building:        row.Building,
		IPAddress:       row.IPAddress,
		Location:        row.Location,
		Template:        row.Template,
		Theme:           row.Theme,
		SlideID:         row.SlideID,
		RefreshInterval: row.RefreshInterval,
		Coordinates:     row.Coordinates,
		Notes:           row.Notes,
		Active:          row.Active,
	}
}
