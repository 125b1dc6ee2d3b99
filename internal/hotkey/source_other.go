//go:build !windows && !linux

package hotkey

import (
	"fmt"

	"github.com/rs/zerolog"
)

// NewSource is not supported on this platform.
func NewSource(chord Chord, log zerolog.Logger) (Source, error) {
	return nil, fmt.Errorf("global key events not supported on this platform")
}
