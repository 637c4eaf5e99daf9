package brain

import "errors"

// ErrNoProvider indicates no configured provider is currently available
var ErrNoProvider = errors.New("brain: no completion provider available")
