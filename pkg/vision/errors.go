package vision

import "errors"

// Sentinel errors for common error conditions.
var (
	// ErrNotLoaded is returned when the classifier resource is used
	// before it finished loading, or after its load failed.
	ErrNotLoaded = errors.New("vision: resource not loaded")

	// ErrEmptyFrame is returned when a stream has no frame to capture yet.
	ErrEmptyFrame = errors.New("vision: empty frame")

	// ErrClassifierNotFound is returned when the classifier file is missing.
	ErrClassifierNotFound = errors.New("vision: classifier file not found")

	// ErrInvalidClassifier is returned when the file exists but cannot be parsed.
	ErrInvalidClassifier = errors.New("vision: invalid classifier")

	// ErrForeignBuffer is returned when a buffer from another library is passed in.
	ErrForeignBuffer = errors.New("vision: buffer not created by this library")
)
