package core

import "errors"

var (
	// ErrCredentialsMissing is returned when an authenticated exchange call
	// is attempted without configured access/secret keys.
	ErrCredentialsMissing = errors.New("upbit access/secret key not configured")

	// ErrParamsAndBody is returned when a request supplies both query
	// parameters and a JSON body.
	ErrParamsAndBody = errors.New("use either query params or body, not both")
)
