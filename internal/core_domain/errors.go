package core_domain

import "errors"

var (
	// ErrNotFound indicates that a requested resource was not found.
	ErrNotFound = errors.New("resource not found")
	// ErrClaimLost means the conditional pending->sending update affected zero rows.
	ErrClaimLost = errors.New("claim lost: record is no longer pending")
	// ErrRecipientInFlight means another record for the same recipient is sending or already sent.
	ErrRecipientInFlight = errors.New("recipient already has a message in flight")
	// ErrDailyCapReached means the lane's daily cap was used up by the time of the claim.
	ErrDailyCapReached = errors.New("daily cap reached")
	// ErrStatusConflict means a conditional status write found the record in another status.
	ErrStatusConflict = errors.New("status conflict")
	// ErrInvalidTransition is returned for state changes the lifecycle does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrNoCandidate indicates that no due pending record exists for the lane.
	ErrNoCandidate = errors.New("no due candidate")
	// ErrInvalidIdentity indicates the recipient cannot be addressed on the requested channel.
	ErrInvalidIdentity = errors.New("invalid recipient identity")
)
