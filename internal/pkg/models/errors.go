package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	//ErrNotFound is returned when a device or alert id is absent from the store
	ErrNotFound = errors.New("not found")
	//ErrStoreUnavailable wraps transient store failures. Callers may retry.
	ErrStoreUnavailable = errors.New("store unavailable")
)

//AuthorizationScope tells which side of a mutation was refused
type AuthorizationScope string

const (
	ScopeCurrent AuthorizationScope = "current"
	ScopeTarget  AuthorizationScope = "target"
)

//AuthorizationError lists the building codes, or the devices, a user may not act on
type AuthorizationError struct {
	Scope     AuthorizationScope
	Buildings []string
	Devices   []string
}

func (e *AuthorizationError) Error() string {
	if len(e.Devices) > 0 {
		return fmt.Sprintf("access denied on device(s): %s", strings.Join(e.Devices, ", "))
	}
	if e.Scope == ScopeCurrent && len(e.Buildings) == 0 {
		return "access denied on district-wide alert"
	}
	if e.Scope == ScopeCurrent {
		return fmt.Sprintf("access denied on current building(s): %s", strings.Join(e.Buildings, ", "))
	}
	return fmt.Sprintf("access denied on target building(s): %s", strings.Join(e.Buildings, ", "))
}

//ValidationError reports a missing or malformed field in a create or update request
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

//NotFoundf wraps ErrNotFound with a description of what was missing
func NotFoundf(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
}

//StoreUnavailable wraps err so that errors.Is(err, ErrStoreUnavailable) holds.
//Not found and validation errors are passed through unchanged.
func StoreUnavailable(err error) error {
	var invalid *ValidationError
	if err == nil || errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrNotFound) || errors.As(err, &invalid) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
