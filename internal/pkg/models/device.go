package models

//Device is a display that renders a slide deck and the alerts of its building
type Device struct {
	DeviceID        string `json:"deviceId"`
	Name            string `json:"name"`
	Building        string `json:"building"`
	IPAddress       string `json:"ipAddress"`
	Location        string `json:"location"`
	Template        string `json:"template"`
	Theme           string `json:"theme"`
	SlideID         string `json:"slideId"`
	RefreshInterval int    `json:"refreshInterval"`
	Coordinates     string `json:"coordinates"`
	Notes           string `json:"notes"`
	Active          bool   `json:"active"`
}

const (
	DefaultTemplate        = "standard"
	DefaultTheme           = "default"
	DefaultRefreshInterval = 15
)

//WithDefaults fills in the presentation fields that a freshly added device may omit
func (d Device) WithDefaults() Device {
	if d.Template == "" {
		d.Template = DefaultTemplate
	}
	if d.Theme == "" {
		d.Theme = DefaultTheme
	}
	if d.RefreshInterval <= 0 {
		d.RefreshInterval = DefaultRefreshInterval
	}
	if d.Name == "" {
		d.Name = d.DeviceID
	}
	return d
}

//DevicePatch carries the fields of an update request. Nil fields are left untouched.
type DevicePatch struct {
	Name             *string `json:"name,omitempty"`
	Building         *string `json:"building,omitempty"`
	IPAddress        *string `json:"ipAddress,omitempty"`
	Location         *string `json:"location,omitempty"`
	Template         *string `json:"template,omitempty"`
	Theme            *string `json:"theme,omitempty"`
	SlideID          *string `json:"slideId,omitempty"`
	PresentationLink *string `json:"presentationLink,omitempty"`
	RefreshInterval  *int    `json:"refreshInterval,omitempty"`
	Coordinates      *string `json:"coordinates,omitempty"`
	Notes            *string `json:"notes,omitempty"`
	Active           *bool   `json:"active,omitempty"`
}

//Apply returns a copy of d with every non-nil field of the patch written over it
func (p DevicePatch) Apply(d Device) Device {
	setString(&d.Name, p.Name)
	setString(&d.Building, p.Building)
	setString(&d.IPAddress, p.IPAddress)
	setString(&d.Location, p.Location)
	setString(&d.Template, p.Template)
	setString(&d.Theme, p.Theme)
	setString(&d.SlideID, p.SlideID)
	setString(&d.Coordinates, p.Coordinates)
	setString(&d.Notes, p.Notes)
	if p.RefreshInterval != nil {
		d.RefreshInterval = *p.RefreshInterval
	}
	if p.Active != nil {
		d.Active = *p.Active
	}
	return d
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}
