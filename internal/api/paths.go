package api

// GJSON paths for extracting values from completion responses.
const (
	// PathReplyContent is the first choice's message text
	PathReplyContent = "choices.0.message.content"

	// PathErrorMessage is the message of an OpenAI-style error object
	PathErrorMessage = "error.message"
)
