package gateway

import "errors"

// Gateway error taxonomy. Resolution and index errors are fatal to the
// single request that triggered them and never affect other in-flight
// requests; retry policy belongs to the host player.
var (
	// ErrUnresolvableURL means an intercepted URL could not be mapped
	// back to an origin URL
	ErrUnresolvableURL = errors.New("cannot resolve intercepted URL to origin")

	// ErrTrackIndexOutOfRange means a synthetic subtitle playlist
	// referenced a track index outside the registered track list
	ErrTrackIndexOutOfRange = errors.New("subtitle track index out of range")

	// ErrBadSyntheticPath means a request under the synthetic subtitle
	// namespace did not match the track naming convention
	ErrBadSyntheticPath = errors.New("malformed synthetic subtitle path")
)
