package watsonx

import (
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// chatRequest body of the text/chat endpoint. Messages use the OpenAI chat
// shape; project_id and model_id are watsonx specific.
type chatRequest struct {
	Messages    []openai.ChatCompletionMessage `json:"messages"`
	ProjectID   string                         `json:"project_id"`
	ModelID     string                         `json:"model_id"`
	MaxTokens   int                            `json:"max_tokens"`
	Temperature float64                        `json:"temperature"`
	TopP        float64                        `json:"top_p"`
}

type chatResponse struct {
	ID      string                        `json:"id"`
	ModelID string                        `json:"model_id"`
	Choices []openai.ChatCompletionChoice `json:"choices"`
	Usage   openai.Usage                  `json:"usage"`
}

// VisionError the inference call failed
type VisionError struct {
	StatusCode int    // 0 when no response was received
	Body       string // response body, if any
	Err        error
}

func (e *VisionError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("vision request failed: status %d: %v: %s", e.StatusCode, e.Err, e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("vision request failed: status %d: %s", e.StatusCode, e.Body)
	default:
		return fmt.Sprintf("vision request failed: %v", e.Err)
	}
}

func (e *VisionError) Unwrap() error { return e.Err }
