package models

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

//Priority orders alerts on a display. Unknown values rank as low.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

//Rank returns 3 for high, 2 for medium and 1 for anything else
func (p Priority) Rank() int {
	switch Priority(strings.ToLower(strings.TrimSpace(string(p)))) {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	default:
		return 1
	}
}

//AlertType selects which payload fields of an alert are meaningful
type AlertType string

const (
	AlertTypeSlide  AlertType = "slide"
	AlertTypeCustom AlertType = "custom"
	AlertTypeSRP    AlertType = "srp"
)

//Alert is a message shown on top of the regular slide deck of every display in its buildings
type Alert struct {
	AlertID   string     `json:"alertId"`
	Name      string     `json:"name"`
	Type      AlertType  `json:"type"`
	Priority  Priority   `json:"priority"`
	Buildings []string   `json:"buildings"`
	Active    bool       `json:"active"`
	Expires   *time.Time `json:"expires,omitempty"`

	SlideID   string `json:"slideId,omitempty"`
	Title     string `json:"title,omitempty"`
	Text      string `json:"text,omitempty"`
	Icon      string `json:"icon,omitempty"`
	SRPAction string `json:"srpAction,omitempty"`
}

//IsGlobal reports whether the alert targets every building
func (a Alert) IsGlobal() bool {
	return len(a.Buildings) == 0
}

//ExpiredAt reports whether the alert has an expiry at or before now
func (a Alert) ExpiredAt(now time.Time) bool {
	return a.Expires != nil && !a.Expires.After(now)
}

//Validate checks the fields required for the alert's type and its building targets
func (a Alert) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return &ValidationError{Field: "name", Message: "alert name is required"}
	}
	if len(a.Buildings) == 0 {
		return &ValidationError{Field: "buildings", Message: "at least one building is required"}
	}

	return a.validatePayload()
}

//ValidateContent is Validate without the building requirement. Alerts that
//predate it, such as global ones, can still be edited.
func (a Alert) ValidateContent() error {
	if strings.TrimSpace(a.Name) == "" {
		return &ValidationError{Field: "name", Message: "alert name is required"}
	}

	return a.validatePayload()
}

func (a Alert) validatePayload() error {
	switch a.Type {
	case AlertTypeSlide:
		if a.SlideID == "" {
			return &ValidationError{Field: "slideId", Message: "a slide id is required for slide alerts"}
		}
	case AlertTypeCustom:
		if a.Title == "" || a.Text == "" {
			return &ValidationError{Field: "text", Message: "title and text are required for custom alerts"}
		}
	case AlertTypeSRP:
		if a.SRPAction == "" {
			return &ValidationError{Field: "srpAction", Message: "a standard response protocol action is required"}
		}
	default:
		return &ValidationError{Field: "type", Message: fmt.Sprintf("unknown alert type: %q", a.Type)}
	}

	return nil
}

//AlertPatch carries the fields of an alert update request. Nil fields are left untouched.
type AlertPatch struct {
	Name      *string    `json:"name,omitempty"`
	Type      *AlertType `json:"type,omitempty"`
	Priority  *Priority  `json:"priority,omitempty"`
	Buildings *[]string  `json:"buildings,omitempty"`
	Active    *bool      `json:"active,omitempty"`
	Expires   *time.Time `json:"expires,omitempty"`
	// ClearExpires removes an existing expiry
	ClearExpires bool `json:"clearExpires,omitempty"`

	SlideID   *string `json:"slideId,omitempty"`
	Title     *string `json:"title,omitempty"`
	Text      *string `json:"text,omitempty"`
	Icon      *string `json:"icon,omitempty"`
	SRPAction *string `json:"srpAction,omitempty"`
}

//Apply returns a copy of a with every non-nil field of the patch written over it
func (p AlertPatch) Apply(a Alert) Alert {
	setString(&a.Name, p.Name)
	if p.Type != nil {
		a.Type = *p.Type
	}
	if p.Priority != nil {
		a.Priority = *p.Priority
	}
	if p.Buildings != nil {
		a.Buildings = append([]string{}, (*p.Buildings)...)
	}
	if p.Active != nil {
		a.Active = *p.Active
	}
	if p.ClearExpires {
		a.Expires = nil
	} else if p.Expires != nil {
		expires := *p.Expires
		a.Expires = &expires
	}
	setString(&a.SlideID, p.SlideID)
	setString(&a.Title, p.Title)
	setString(&a.Text, p.Text)
	setString(&a.Icon, p.Icon)
	setString(&a.SRPAction, p.SRPAction)
	return a
}

//AlertIDGenerator hands out timestamp derived alert ids that never repeat within a process
type AlertIDGenerator struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

//NewAlertIDGenerator creates a generator reading the given clock, or the wall clock if nil
func NewAlertIDGenerator(now func() time.Time) *AlertIDGenerator {
	if now == nil {
		now = time.Now
	}
	return &AlertIDGenerator{now: now}
}

//Next returns "alert" followed by the current unix millis, bumped when the clock has not advanced
func (g *AlertIDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := g.now().UnixMilli()
	if ms <= g.last {
		ms = g.last + 1
	}
	g.last = ms

	return fmt.Sprintf("alert%d", ms)
}

//ParseBuildings splits a comma separated list of building codes, dropping blanks
func ParseBuildings(s string) []string {
	buildings := []string{}
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			buildings = append(buildings, b)
		}
	}
	return buildings
}
