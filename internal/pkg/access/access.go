// Package access scopes device and alert records to what a resolved permission may see or change.
// Every function here is pure; callers always pass freshly read store records.
package access

import (
	"github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/models"
)

//CanAccessBuilding reports whether perm may act on the building
func CanAccessBuilding(perm models.Permission, building string) bool {
	if perm.IsDistrict() {
		return true
	}
	if perm.IsNone() {
		return false
	}
	return contains(perm.Buildings, building)
}

//FilterDevices returns the devices located in buildings perm can access
func FilterDevices(devices []models.Device, perm models.Permission) []models.Device {
	if perm.IsNone() {
		return []models.Device{}
	}
	if perm.IsDistrict() {
		return devices
	}

	filtered := []models.Device{}
	for _, d := range devices {
		if contains(perm.Buildings, d.Building) {
			filtered = append(filtered, d)
		}
	}
	return filtered
}

//FilterAlerts returns the global alerts plus those targeting a building perm can access
func FilterAlerts(alerts []models.Alert, perm models.Permission) []models.Alert {
	if perm.IsNone() {
		return []models.Alert{}
	}
	if perm.IsDistrict() {
		return alerts
	}

	filtered := []models.Alert{}
	for _, a := range alerts {
		if a.IsGlobal() || intersects(a.Buildings, perm.Buildings) {
			filtered = append(filtered, a)
		}
	}
	return filtered
}

//AuthorizeAlert checks that perm may change or deploy an existing alert. Every
//building the alert currently targets must be accessible. Global alerts reach
//every display and may only be changed by district admins.
func AuthorizeAlert(perm models.Permission, alert models.Alert) error {
	if alert.IsGlobal() && !perm.IsDistrict() {
		return &models.AuthorizationError{Scope: models.ScopeCurrent, Buildings: []string{}}
	}
	return AuthorizeCurrent(perm, alert.Buildings)
}

//AuthorizeMutation checks every target building and returns an *models.AuthorizationError
//naming the refused ones, or nil.
func AuthorizeMutation(perm models.Permission, targets []string) error {
	return authorize(perm, targets, models.ScopeTarget)
}

//AuthorizeCurrent is AuthorizeMutation for the buildings a record is in before the change
func AuthorizeCurrent(perm models.Permission, current []string) error {
	return authorize(perm, current, models.ScopeCurrent)
}

func authorize(perm models.Permission, buildings []string, scope models.AuthorizationScope) error {
	denied := []string{}
	for _, b := range buildings {
		if !CanAccessBuilding(perm, b) && !contains(denied, b) {
			denied = append(denied, b)
		}
	}

	if len(denied) > 0 {
		return &models.AuthorizationError{Scope: scope, Buildings: denied}
	}
	return nil
}

//DevicesInBuildings returns the devices whose building is listed, in store order
func DevicesInBuildings(devices []models.Device, buildings []string) []models.Device {
	matched := []models.Device{}
	if len(buildings) == 0 {
		return matched
	}

	for _, d := range devices {
		if contains(buildings, d.Building) {
			matched = append(matched, d)
		}
	}
	return matched
}

//DeviceIDs projects devices onto their ids
func DeviceIDs(devices []models.Device) []string {
	ids := make([]string, 0, len(devices))
	for _, d := range devices {
		ids = append(ids, d.DeviceID)
	}
	return ids
}

func contains(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

func intersects(a, b []string) bool {
	for _, v := range a {
		if contains(b, v) {
			return true
		}
	}
	return false
}
