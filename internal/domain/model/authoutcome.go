package model

// DenialReason identifies a platform-level authentication denial from
// which retrying with the same credentials cannot succeed.
type DenialReason string

const (
	DenialAccessDenied     DenialReason = "access_denied"
	DenialAccountDisabled  DenialReason = "account_disabled"
	DenialInvalidPassword  DenialReason = "invalid_password"
	DenialVerificationHold DenialReason = "verification_required"
)

// AuthOutcome is the tagged result of an authentication attempt. Exactly
// one of the three constructors applies: Success carries the authoritative
// account info, TerminalDenial carries a DenialReason from the fixed
// denial set, and TransientFailure carries any other error (network,
// protocol timeout, unexpected response).
type AuthOutcome struct {
	info   *AccountInfo
	reason DenialReason
	err    error
}

// AuthSuccess wraps a successful authentication.
func AuthSuccess(info AccountInfo) AuthOutcome {
	return AuthOutcome{info: &info}
}

// AuthTerminalDenial wraps a permanent platform denial.
func AuthTerminalDenial(reason DenialReason) AuthOutcome {
	return AuthOutcome{reason: reason}
}

// AuthTransientFailure wraps any non-terminal authentication error.
func AuthTransientFailure(err error) AuthOutcome {
	return AuthOutcome{err: err}
}

// Success returns the account info when the outcome is a success.
func (o AuthOutcome) Success() (AccountInfo, bool) {
	if o.info == nil {
		return AccountInfo{}, false
	}
	return *o.info, true
}

// Denied returns the denial reason when the outcome is a terminal denial.
func (o AuthOutcome) Denied() (DenialReason, bool) {
	return o.reason, o.reason != ""
}

// Failed returns the underlying error when the outcome is a transient
// failure.
func (o AuthOutcome) Failed() (error, bool) {
	return o.err, o.err != nil
}
