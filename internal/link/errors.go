package link

import "errors"

// Domain errors for the link package.
var (
	// ErrNoInterface is returned when no usable interface is up.
	ErrNoInterface = errors.New("link: no interface up")

	// ErrNoAddress is returned when the interface is up but has no address.
	ErrNoAddress = errors.New("link: interface has no address")

	// ErrProbeFailed is returned when the reachability probe cannot connect.
	ErrProbeFailed = errors.New("link: probe failed")
)
