package gemini

import "errors"

// Error definitions for the gemini package.
var (
	// ErrNoImage is reported when the API returned no usable image.
	ErrNoImage = errors.New("no image returned")
)
