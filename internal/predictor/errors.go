package predictor

import "errors"

// InvalidImageMessage is the error text reported for undecodable payloads.
const InvalidImageMessage = "Invalid image data"

// invalidImageError signals a client payload that is not a decodable image.
type invalidImageError struct{ cause error }

func (e invalidImageError) Error() string { return InvalidImageMessage }
func (e invalidImageError) Unwrap() error { return e.cause }

// IsInvalidImage reports whether err indicates bad client input (return 400).
func IsInvalidImage(err error) bool {
	var e invalidImageError
	return errors.As(err, &e)
}

// modelUnavailableError wraps load and inference failures. It never reaches
// callers of Classify; the fallback answers instead.
type modelUnavailableError struct {
	path  string
	cause error
}

func (e modelUnavailableError) Error() string {
	return "model unavailable (" + e.path + "): " + e.cause.Error()
}
func (e modelUnavailableError) Unwrap() error { return e.cause }

// IsModelUnavailable reports whether err is a model load or inference failure.
func IsModelUnavailable(err error) bool {
	var e modelUnavailableError
	return errors.As(err, &e)
}
