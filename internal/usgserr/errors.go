// Package usgserr defines the shared error vocabulary for the pipeline.
// Stages wrap these sentinels with fmt.Errorf("...: %w", ...) so callers
// can classify failures with errors.Is without depending on message text.
package usgserr

import "errors"

var (
	// ErrInvalidInput marks a file that is missing, corrupt or unreadable.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDriverUnavailable marks a missing format encoder/decoder in the
	// underlying geospatial runtime.
	ErrDriverUnavailable = errors.New("driver unavailable")

	// ErrCRSTransform marks a failed coordinate conversion, typically an
	// unknown or unsupported authority code.
	ErrCRSTransform = errors.New("crs transformation failed")

	// ErrMerge marks a mosaic/merge that failed after its inputs were
	// deemed valid, or that was left with zero usable inputs.
	ErrMerge = errors.New("merge failed")

	// ErrAborted marks an operator-declined confirmation. Fatal for the
	// whole invocation.
	ErrAborted = errors.New("aborted by operator")

	// ErrProcessingEngine marks a point-cloud pipeline execution failure,
	// distinct from an invalid input file.
	ErrProcessingEngine = errors.New("processing engine failure")

	// ErrMissingMetadata marks an absent spatial or vertical reference.
	ErrMissingMetadata = errors.New("missing metadata")

	// Download-layer kinds, listed here so the whole tool shares one
	// taxonomy.
	ErrDiskSpace        = errors.New("insufficient disk space")
	ErrConnectionFailed = errors.New("connection failed")
	ErrTimeout          = errors.New("request timed out")
	ErrMalformedURL     = errors.New("malformed url")

	// ErrMissingConfigKey marks a required key absent from configuration.
	ErrMissingConfigKey = errors.New("missing config key")
)
