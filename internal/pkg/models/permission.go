package models

//PermissionLevel is the breadth of access a user has been granted
type PermissionLevel string

const (
	LevelDistrict PermissionLevel = "district"
	LevelBuilding PermissionLevel = "building"
	LevelNone     PermissionLevel = "none"
)

//Permission is the resolved access object for one user
type Permission struct {
	Level     PermissionLevel `json:"level"`
	Buildings []string        `json:"buildings"`
}

//NoAccess returns the permission that denies everything
func NoAccess() Permission {
	return Permission{Level: LevelNone, Buildings: []string{}}
}

//DistrictAccess returns a permission covering every listed building
func DistrictAccess(allBuildings []string) Permission {
	return Permission{Level: LevelDistrict, Buildings: append([]string{}, allBuildings...)}
}

//BuildingAccess returns a building level permission, or NoAccess when no building matched
func BuildingAccess(buildings []string) Permission {
	if len(buildings) == 0 {
		return NoAccess()
	}
	return Permission{Level: LevelBuilding, Buildings: append([]string{}, buildings...)}
}

//IsDistrict reports whether the permission reaches every building
func (p Permission) IsDistrict() bool {
	return p.Level == LevelDistrict
}

//IsNone reports whether the permission denies everything
func (p Permission) IsNone() bool {
	return p.Level != LevelDistrict && p.Level != LevelBuilding
}
