// Package services defines the business logic for try-on sessions, garments,
// the merchant profile, and history. This file centralizes common
// service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// These errors are intended for internal use by the service layer; translation
// into user-facing messages or HTTP status codes is performed at the handler
// layer.
package services

import "errors"

// Garment-related errors.
var (
	// ErrGarmentNotFound indicates that the requested garment does not exist
	// in the boutique's inventory.
	ErrGarmentNotFound = errors.New("garment not found")

	// ErrInvalidGarment is returned when garment fields fail validation
	// (missing name, missing image, negative price).
	ErrInvalidGarment = errors.New("invalid garment")
)

// Credit-related errors.
var (
	// ErrInsufficientCredits is returned when the boutique's balance is
	// exhausted. Submissions short-circuit before the generation pipeline.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrInvalidCreditAmount is returned when a credit top-up requests a
	// non-positive amount.
	ErrInvalidCreditAmount = errors.New("credit amount must be positive")
)

// Session-related errors.
var (
	// ErrSessionNotFound indicates that no try-on session exists for the
	// given identifier.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionBusy is returned when a photo is submitted while the session
	// is already processing. The in-flight attempt always wins.
	ErrSessionBusy = errors.New("session is already processing")

	// ErrInvalidTransition is returned when an operation is not permitted
	// from the session's current state.
	ErrInvalidTransition = errors.New("operation not allowed in current state")

	// ErrCancelTooEarly is returned when Cancel arrives before the grace
	// period has elapsed.
	ErrCancelTooEarly = errors.New("cancel not available yet")

	// ErrNoPhoto is returned when Retry is requested but the session holds no
	// captured photo to re-submit.
	ErrNoPhoto = errors.New("no photo captured")

	// ErrEmptyPhoto is returned when a photo submission carries no bytes.
	ErrEmptyPhoto = errors.New("photo is empty")
)
