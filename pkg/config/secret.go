package config

import (
	"log/slog"

	"gopkg.in/yaml.v3"
)

// Secret holds a credential that must never reach logs or durable state.
// It redacts itself when formatted and satisfies pflag.Value so it can
// bind directly to a command-line flag.
type Secret struct {
	value []byte
}

// NewSecret wraps a raw credential value.
func NewSecret(v string) Secret { return Secret{value: []byte(v)} }

// Reveal returns the raw value for transient use as a process argument.
func (s *Secret) Reveal() string { return string(s.value) }

// Zero overwrites the stored value once it is no longer needed.
func (s *Secret) Zero() {
	for i := range s.value {
		s.value[i] = 0
	}
	s.value = nil
}

// Empty reports whether no value has been supplied.
func (s Secret) Empty() bool { return len(s.value) == 0 }

func (s Secret) String() string {
	if s.Empty() {
		return ""
	}
	return "[redacted]"
}

func (s *Secret) Set(v string) error {
	s.value = []byte(v)
	return nil
}

func (s Secret) Type() string { return "secret" }

func (s *Secret) UnmarshalText(text []byte) error {
	s.value = append([]byte(nil), text...)
	return nil
}

func (s *Secret) UnmarshalYAML(node *yaml.Node) error {
	var v string
	if err := node.Decode(&v); err != nil {
		return err
	}
	s.value = []byte(v)
	return nil
}

// LogValue keeps slog output redacted regardless of formatting verbs.
func (s Secret) LogValue() slog.Value { return slog.StringValue("[redacted]") }
