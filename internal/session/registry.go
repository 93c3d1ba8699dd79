// Package session is the registration point for Steam session providers.
// The Steam network protocol is not part of this module; a provider
// package calls Register from its init, in the style of database/sql
// drivers, and any binary that imports the provider gains live access.
package session

import (
	"errors"

	"github.com/depotvault/depotvault/internal/domain/port/driven"
)

var factory driven.SessionFactory

// Register installs the Steam session implementation. A later call
// replaces an earlier one.
func Register(f driven.SessionFactory) {
	factory = f
}

// Factory returns the registered provider, or an error when no provider
// package was linked into the binary.
func Factory() (driven.SessionFactory, error) {
	if factory == nil {
		return nil, errors.New("no steam session provider linked into this build")
	}
	return factory, nil
}
