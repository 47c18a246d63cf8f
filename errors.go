package sieve

import "errors"

var (
	// ErrConfig is returned for invalid or conflicting chain configuration.
	ErrConfig = errors.New("sieve: invalid configuration")

	// ErrFilterBuild is returned when a subscription is created with a nil
	// or malformed filter. Filter construction errors surface from
	// filter.Builder.Build directly.
	ErrFilterBuild = errors.New("sieve: invalid filter")

	// ErrChainNotConnected is returned when subscribing with a filter for
	// a chain the engine was not connected to.
	ErrChainNotConnected = errors.New("sieve: chain not connected")

	// ErrTransport indicates an unrecoverable RPC/WS failure; it terminates
	// subscription streams when a chain supervisor gives up.
	ErrTransport = errors.New("sieve: transport failure")

	// ErrDecode names the decode failure kind. Decode failures during
	// evaluation are recovered (the affected fields read as absent), and no
	// engine method returns this sentinel: signature registration errors
	// come back from the decoder unwrapped.
	ErrDecode = errors.New("sieve: decode failed")

	// ErrShutdown is returned when operating on a shut-down engine.
	ErrShutdown = errors.New("sieve: engine has been shut down")

	// ErrInvalidWindow is returned for a watch_within with a non-positive
	// window duration.
	ErrInvalidWindow = errors.New("sieve: window duration must be positive")
)
