package runner

import "errors"

// Domain exceptions the Runner surfaces as a login/payment button instead
// of advancing (§4.3, §7).
var (
	ErrPaidRequired    = errors.New("runner: paid entitlement required")
	ErrLoginRequired   = errors.New("runner: login required")
	ErrNoSuchBlock     = errors.New("runner: block index out of range")
	ErrRunLocked       = errors.New("runner: another run is already in flight for this user/outline")
)

// PaidException is raised when a _sys_pay button is pressed by a learner
// without an entitlement for the current Shifu.
type PaidException struct {
	ShifuBID string
}

func (e *PaidException) Error() string { return "runner: payment required for shifu " + e.ShifuBID }
func (e *PaidException) Unwrap() error { return ErrPaidRequired }

// UserNotLoginException is raised when a _sys_login button is pressed by a
// learner with no verified mobile credential.
type UserNotLoginException struct {
	UserBID string
}

func (e *UserNotLoginException) Error() string { return "runner: login required for user " + e.UserBID }
func (e *UserNotLoginException) Unwrap() error { return ErrLoginRequired }
