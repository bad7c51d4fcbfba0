// Package api defines the JSON types and constants shared by the bridge
// server and its client.
package api

// TypeBridge identifies the service in status responses.
const TypeBridge = "groqbridge"

// Error codes returned in {"error": code, "message": ...} bodies.
const (
	ErrorValidation   = "validation_error"
	ErrorBusy         = "busy"
	ErrorPathNotFound = "path_not_found"
	ErrorNotFound     = "not_found"
	ErrorInProgress   = "invocation_in_progress"
)

// InvokeRequest is the body of POST /invoke. Model may be a selection name or
// a model ID; anything unrecognised uses the default model. Prompt may be
// empty.
type InvokeRequest struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model,omitempty"`
}

// ModelInfo describes one selectable model.
type ModelInfo struct {
	Name    string `json:"name"`
	ID      string `json:"id"`
	Default bool   `json:"default"`
}

// CurrentInvocation summarises the running invocation in status responses.
type CurrentInvocation struct {
	ID            string `json:"id"`
	StartedAt     string `json:"started_at"`
	Phase         string `json:"phase"`
	ModelID       string `json:"model_id"`
	PromptPreview string `json:"prompt_preview"`
}
