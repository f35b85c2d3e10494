// Package models contains data types and constants shared by the chat client.
package models

// Endpoint and model defaults used when the configuration leaves them empty.
const (
	DefaultEndpoint = "http://localhost:3000/api/chat"
	DefaultModel    = "z-ai/glm-4.5-air:free"
)

// Reply texts produced locally rather than by the remote endpoint
const (
	// FallbackReply replaces a reply that carried no choice content
	FallbackReply = "No response"

	// ErrorPrefix starts every assistant message that reports a failed request
	ErrorPrefix = "Error: "
)

// Headers sent with every completion request
func DefaultHeaders() map[string]string {
	return map[string]string{
		"Content-Type": "application/json",
		"Accept":       "application/json",
		"User-Agent":   "chatbox/0.1",
	}
}
