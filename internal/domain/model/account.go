package model

import "time"

// AccountRecord is the persisted credential entry for one Steam account.
// Name is the unique key. Password is only populated transiently when an
// account arrives from an operator roster; it is never persisted.
// RefreshToken is stored encrypted at rest and held as plaintext only in
// memory between read and use.
type AccountRecord struct {
	Name         string
	Password     string
	RefreshToken string
	LastSeen     time.Time
}

// AccountInfo is the authoritative account state returned by a successful
// authentication: the (possibly rotated) refresh token and the set of
// depots the account currently licenses.
type AccountInfo struct {
	Name         string
	RefreshToken string
}
