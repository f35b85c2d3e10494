package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	http "github.com/bogdanfinn/fhttp"
	openai "github.com/sashabaranov/go-openai"
	"github.com/tidwall/gjson"

	apierrors "github.com/diogo/chatbox/internal/errors"
	"github.com/diogo/chatbox/internal/models"
)

// maxResponseSize bounds how much of a response body is read
const maxResponseSize = 10 * 1024 * 1024

// Complete posts the full history to the endpoint and returns the first
// choice's content. A JSON reply without that field yields "" and no error.
func (c *Client) Complete(ctx context.Context, history []models.Message) (string, error) {
	if len(history) == 0 {
		return "", fmt.Errorf("history cannot be empty")
	}

	if c.IsClosed() {
		return "", fmt.Errorf("client is closed")
	}

	model := c.Model()
	payload, err := buildRequest(model, history)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range models.DefaultHeaders() {
		req.Header.Set(key, value)
	}

	c.logger.Debug("completion request", "endpoint", c.endpoint, "model", model, "messages", len(history))
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("completion request failed", "endpoint", c.endpoint, "error", err)
		return "", apierrors.NewNetworkErrorWithEndpoint("complete", c.endpoint, err)
	}
	defer func() {
		if resp.Body != nil {
			_ = resp.Body.Close()
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", apierrors.NewNetworkErrorWithEndpoint("read response", c.endpoint, err)
	}

	c.logger.Debug("completion response", "status", resp.StatusCode, "bytes", len(body), "took", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message := "completion request failed"
		if detail := gjson.GetBytes(body, PathErrorMessage); detail.Exists() && detail.String() != "" {
			message = detail.String()
		}
		c.logger.Warn("completion endpoint returned error status", "status", resp.StatusCode)
		return "", apierrors.NewAPIErrorWithBody(resp.StatusCode, c.endpoint, message, string(body))
	}

	return parseReply(body)
}

// buildRequest encodes {model, messages} with ids and local fields stripped
func buildRequest(model string, history []models.Message) ([]byte, error) {
	turns := models.Turns(history)
	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: make([]openai.ChatCompletionMessage, 0, len(turns)),
	}
	for _, turn := range turns {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    string(turn.Role),
			Content: turn.Content,
		})
	}
	return json.Marshal(req)
}

// parseReply extracts the reply text from a response body
func parseReply(body []byte) (string, error) {
	if !gjson.ValidBytes(body) {
		return "", apierrors.NewParseError("response body is not valid JSON", "")
	}

	content := gjson.GetBytes(body, PathReplyContent)
	if !content.Exists() || content.Type == gjson.Null {
		return "", nil
	}
	return content.String(), nil
}
