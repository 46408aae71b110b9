package watsonx

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"granite-vision-go/src/configs"
	"granite-vision-go/src/core/utils"

	"github.com/sashabaranov/go-openai"
)

var (
	ErrEmptyToken = errors.New("no access token")
	ErrEmptyImage = errors.New("image is empty")
	ErrNoChoices  = errors.New("response has no choices")
)

// TokenRefresher obtains a replacement token after a 401
type TokenRefresher interface {
	RefreshToken(ctx context.Context) (string, error)
}

// Config chat call settings
type Config struct {
	ChatURL          string
	ProjectID        string
	ModelID          string
	MaxTokens        int
	Temperature      float64
	TopP             float64
	Timeout          time.Duration
	StripBackslashes bool
}

// NewConfig combines the yaml settings with the account credentials
func NewConfig(w configs.WatsonxConfig, creds configs.Credentials) Config {
	return Config{
		ChatURL:          w.ChatURL,
		ProjectID:        creds.ProjectID,
		ModelID:          w.ModelID,
		MaxTokens:        w.MaxTokens,
		Temperature:      w.Temperature,
		TopP:             w.TopPOrDefault(),
		Timeout:          w.Timeout,
		StripBackslashes: w.StripBackslashes,
	}
}

// Client sends one image and prompt to the watsonx chat endpoint
type Client struct {
	config     Config
	refresher  TokenRefresher
	httpClient *http.Client
	logger     *utils.TaggedLogger
}

// NewClient creates the client. refresher may be nil, in which case a 401 is
// returned to the caller as is.
func NewClient(config Config, refresher TokenRefresher, logger *utils.Logger) *Client {
	if config.ChatURL == "" {
		config.ChatURL = configs.DefaultChatURL
	}
	if config.ModelID == "" {
		config.ModelID = configs.DefaultModelID
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = configs.DefaultMaxTokens
	}
	if config.Timeout == 0 {
		config.Timeout = configs.DefaultTimeout
	}
	return &Client{
		config:     config,
		refresher:  refresher,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger.WithTag("watsonx"),
	}
}

// ModelID model the client talks to
func (c *Client) ModelID() string {
	return c.config.ModelID
}

// DescribeImageFile reads path and calls DescribeImage
func (c *Client) DescribeImageFile(ctx context.Context, path, prompt, token string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &VisionError{Err: fmt.Errorf("read image: %w", err)}
	}
	return c.DescribeImage(ctx, data, prompt, token)
}

// DescribeImage submits the image with the prompt and returns the normalized
// answer. A 401 triggers exactly one re-authentication and one resubmission.
// Every failure is a *VisionError.
func (c *Client) DescribeImage(ctx context.Context, image []byte, prompt, token string) (string, error) {
	if token == "" {
		return "", &VisionError{Err: ErrEmptyToken}
	}
	if len(image) == 0 {
		return "", &VisionError{Err: ErrEmptyImage}
	}

	payload, err := json.Marshal(c.buildRequest(image, prompt))
	if err != nil {
		return "", &VisionError{Err: fmt.Errorf("encode request: %w", err)}
	}

	c.logger.Debug("sending chat request %v", map[string]interface{}{
		"model":      c.config.ModelID,
		"prompt":     prompt,
		"image_size": len(image),
	})
	status, body, err := c.post(ctx, payload, token)
	if err != nil {
		return "", &VisionError{Err: err}
	}

	if status == http.StatusUnauthorized && c.refresher != nil {
		c.logger.Info("access token expired, refreshing")
		newToken, err := c.refresher.RefreshToken(ctx)
		if err != nil {
			return "", &VisionError{
				StatusCode: status,
				Body:       string(body),
				Err:        fmt.Errorf("re-authenticate: %w", err),
			}
		}

		c.logger.Info("retrying chat request with new token")
		status, body, err = c.post(ctx, payload, newToken)
		if err != nil {
			return "", &VisionError{Err: err}
		}
	}

	if status != http.StatusOK {
		c.logger.Error("chat request failed (status %d): %s", status, string(body))
		return "", &VisionError{StatusCode: status, Body: string(body)}
	}

	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &VisionError{StatusCode: status, Body: string(body), Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(resp.Choices) == 0 {
		return "", &VisionError{StatusCode: status, Body: string(body), Err: ErrNoChoices}
	}

	c.logger.Info("chat response received %v", map[string]interface{}{
		"id":                resp.ID,
		"prompt_tokens":     resp.Usage.PromptTokens,
		"completion_tokens": resp.Usage.CompletionTokens,
	})

	return utils.NormalizeModelText(resp.Choices[0].Message.Content, c.config.StripBackslashes), nil
}

func (c *Client) buildRequest(image []byte, prompt string) chatRequest {
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(image)
	return chatRequest{
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: prompt,
					},
					{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: dataURL},
					},
				},
			},
		},
		ProjectID:   c.config.ProjectID,
		ModelID:     c.config.ModelID,
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
		TopP:        c.config.TopP,
	}
}

// post sends one attempt and returns status and body
func (c *Client) post(ctx context.Context, payload []byte, token string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.ChatURL, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}
