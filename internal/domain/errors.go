package domain

import "errors"

var (
	// ErrNotFound is returned by lookups when the requested item does not exist.
	// Transport and permission failures never match it.
	ErrNotFound = errors.New("not found")

	// ErrUnresolved means no working versioned base URL could be found for a provider.
	ErrUnresolved = errors.New("versioned base url unresolved")

	// ErrTransport marks connection, timeout and undecodable-response failures.
	ErrTransport = errors.New("transport failure")

	// ErrConversion marks a record the converter could not turn into a Structure.
	ErrConversion = errors.New("conversion failure")

	// ErrUsage marks invalid arguments detected before any network call.
	ErrUsage = errors.New("usage error")
)
