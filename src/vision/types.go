package vision

import "granite-vision-go/src/core/result"

const (
	statusSuccess = "success"
	statusError   = "error"
)

// StatusResponse reply of the authentication routes and of every error
type StatusResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	ExpiresAt string `json:"expires_at,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// ProcessResponse reply of /process_image
type ProcessResponse struct {
	Status      string             `json:"status"`
	RequestID   string             `json:"request_id"`
	Result      string             `json:"result"`
	ResultType  result.Kind        `json:"result_type"`
	ResultHTML  string             `json:"result_html,omitempty"`
	MermaidCode *string            `json:"mermaid_code"`
	CodeBlocks  []result.CodeBlock `json:"code_blocks"`
}

// HistoryItem one entry of /api/history
type HistoryItem struct {
	ID         string `json:"id"`
	Task       string `json:"task"`
	ResultType string `json:"result_type"`
	Result     string `json:"result"`
	DurationMS int64  `json:"duration_ms"`
	CreatedAt  string `json:"created_at"`
}

// HistoryDetail reply of /api/history/:id
type HistoryDetail struct {
	HistoryItem
	Prompt      string             `json:"prompt"`
	MermaidCode *string            `json:"mermaid_code"`
	CodeBlocks  []result.CodeBlock `json:"code_blocks"`
}
