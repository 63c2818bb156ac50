package models

import (
	"strings"
	"time"

	"gorm.io/gorm"

	signage "github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/models"
)

//Alert is the database model to store alerts. Target buildings are kept as a comma separated list.
type Alert struct {
	gorm.Model
	AlertID   string `gorm:"uniqueIndex"`
	Name      string
	Type      string
	Priority  string
	Buildings string
	Active    bool
	Expires   *time.Time
	SlideID   string
	Title     string
	Text      string
	Icon      string
	SRPAction string
}

//NewAlert copies an alert into its database representation
func NewAlert(a signage.Alert) Alert {
	row := Alert{}
	row.Set(a)
	return row
}

//Set overwrites every stored attribute except the primary keys with the values in a
func (row *Alert) Set(a signage.Alert) {
	row.AlertID = a.AlertID
	row.Name = a.Name
	row.Type = string(a.Type)
	row.Priority = string(a.Priority)
	row.Buildings = strings.Join(a.Buildings, ",")
	row.Active = a.Active
	row.Expires = a.Expires
	row.SlideID = a.SlideID
	row.Title = a.Title
	row.Text = a.Text
	row.Icon = a.Icon
	row.SRPAction = a.SRPAction
}

//Alert converts the stored row back into an alert
func (row Alert) Alert() signage.Alert {
	a := signage.Alert{
		AlertID:   row.AlertID,
		Name:      row.Name,
		Type:      signage.AlertType(row.Type),
		Priority:  signage.Priority(row.Priority),
		Buildings: signage.ParseBuildings(row.Buildings),
		Active:    row.Active,
		SlideID:   row.SlideID,
		Title:     row.Title,
		Text:      row.Text,
		Icon:      row.Icon,
		SRPAction: row.SRPAction,
	}
	if row.Expires != nil {
		expires := row.Expires.UTC()
		a.Expires = &expires
	}
	return a
}
