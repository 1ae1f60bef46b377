package config

import (
	"encoding/hex"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// hexPrefix marks a secret written as hex digits rather than text.
const hexPrefix = "hex:"

// Secret is a byte string read from YAML either as plain text
// ("12345678") or as hex prefixed with "hex:" ("hex:000102...").
type Secret []byte

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Secret) UnmarshalYAML(value *yaml.Node) error {
	var text string
	if err := value.Decode(&text); err != nil {
		return fmt.Errorf("%w: line %d: %v", ErrInvalidSecret, value.Line, err)
	}
	b, err := ParseSecret(text)
	if err != nil {
		return fmt.Errorf("%w (line %d)", err, value.Line)
	}
	*s = b
	return nil
}

// MarshalYAML implements yaml.Marshaler. Secrets are always written as hex.
func (s Secret) MarshalYAML() (interface{}, error) {
	if len(s) == 0 {
		return "", nil
	}
	return hexPrefix + hex.EncodeToString(s), nil
}

// ParseSecret decodes the textual form of a Secret.
func ParseSecret(text string) (Secret, error) {
	if !strings.HasPrefix(text, hexPrefix) {
		return Secret(text), nil
	}
	digits := strings.ReplaceAll(text[len(hexPrefix):], " ", "")
	b, err := hex.DecodeString(digits)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSecret, err)
	}
	return b, nil
}
