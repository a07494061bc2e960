package config

import (
	_ "embed"
)

//go:embed assets/fabrik.toml
var defaultsTOML []byte

// DefaultsTOML returns a copy of the embedded default settings payload.
func DefaultsTOML() []byte {
	out := make([]byte, len(defaultsTOML))
	copy(out, defaultsTOML)
	return out
}
