// Package model maps user-facing model selections to Groq model identifiers.
package model

import "strings"

// Model is a model selection offered to the user.
type Model int

const (
	Mixtral Model = iota
	Llama
	Gemma
)

// Model identifiers passed to the script.
const (
	MixtralID = "mixtral-8x7b-32768"
	LlamaID   = "llama3-8b-8192"
	GemmaID   = "gemma2-9b-it"
)

// Default is used for any selection that does not map to a known model.
const Default = Mixtral

var names = map[Model]string{
	Mixtral: "mixtral",
	Llama:   "llama",
	Gemma:   "gemma",
}

// All returns the selections in display order.
func All() []Model {
	return []Model{Mixtral, Llama, Gemma}
}

// ID returns the identifier the script expects. Unknown selections fall back
// to the first model rather than failing.
func (m Model) ID() string {
	switch m {
	case Mixtral:
		return MixtralID
	case Llama:
		return LlamaID
	case Gemma:
		return GemmaID
	default:
		return MixtralID
	}
}

func (m Model) String() string {
	if n, ok := names[m]; ok {
		return n
	}
	return names[Default]
}

// Parse resolves a selection name or a model identifier, case-insensitively.
// Empty or unrecognised input yields Default.
func Parse(s string) Model {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, m := range All() {
		if s == m.String() || s == m.ID() {
			return m
		}
	}
	return Default
}

// Known reports whether s names a selection or identifier.
func Known(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, m := range All() {
		if s == m.String() || s == m.ID() {
			return true
		}
	}
	return false
}
