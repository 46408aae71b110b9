// Package result turns the model's markdown answer into display data. All
// functions are pure and accept any string.
package result

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Task names as sent by the upload form
const (
	TaskOCR       = "OCR"
	TaskHTML      = "HTML Generation"
	TaskFlowchart = "Flowchart Analysis"
	TaskCode      = "Code Generation"
)

// Kind how the display should treat the text
type Kind string

const (
	KindText      Kind = "text"
	KindHTML      Kind = "html"
	KindFlowchart Kind = "flowchart"
	KindCode      Kind = "code"
)

const mermaidFence = "```mermaid"

var defaultPrompts = map[string]string{
	TaskOCR:       "You are an OCR engine, please extract full text from the page",
	TaskHTML:      "Generate an HTML file based on the screenshot image provided",
	TaskFlowchart: "Generate a flow chart based on the diagram in mermaid format",
	TaskCode:      "Generate code based on the diagram",
}

const describePrompt = "Describe this image in detail"

// fenced block: optional word tag, newline, body up to the next fence
var codeBlockPattern = regexp.MustCompile("(?s)```([\\p{L}\\p{N}_]*)\n(.*?)```")

// CodeBlock one fenced block
type CodeBlock struct {
	Language string `json:"language"`
	Code     string `json:"code"`
}

// Result interpreted answer
type Result struct {
	Text        string      `json:"result"`
	Kind        Kind        `json:"result_type"`
	MermaidCode *string     `json:"mermaid_code,omitempty"`
	CodeBlocks  []CodeBlock `json:"code_blocks,omitempty"`
}

// DefaultPrompt prompt used when the user gives none. Unknown tasks get a
// free-form description prompt.
func DefaultPrompt(task string) string {
	if p, ok := defaultPrompts[task]; ok {
		return p
	}
	return describePrompt
}

// ResolvePrompt prefers the custom prompt when it is not blank.
func ResolvePrompt(task, custom string) string {
	if strings.TrimSpace(custom) != "" {
		return custom
	}
	return DefaultPrompt(task)
}

// KindFor maps a task to its result kind.
func KindFor(task string) Kind {
	switch task {
	case TaskHTML:
		return KindHTML
	case TaskFlowchart:
		return KindFlowchart
	case TaskCode:
		return KindCode
	default:
		return KindText
	}
}

// ExtractMermaid returns the trimmed body of the first ```mermaid block. An
// unclosed block counts as absent.
func ExtractMermaid(text string) (string, bool) {
	start := strings.Index(text, mermaidFence)
	if start == -1 {
		return "", false
	}
	bodyStart := start + len(mermaidFence)
	end := strings.Index(text[bodyStart:], "```")
	if end == -1 {
		return "", false
	}
	return strings.TrimSpace(text[bodyStart : bodyStart+end]), true
}

// ExtractCodeBlocks returns every fenced block in order. Untagged blocks are
// reported as "text". The result is never nil.
func ExtractCodeBlocks(text string) []CodeBlock {
	blocks := []CodeBlock{}
	for _, m := range codeBlockPattern.FindAllStringSubmatch(text, -1) {
		language := strings.TrimSpace(m[1])
		if language == "" {
			language = "text"
		}
		blocks = append(blocks, CodeBlock{
			Language: language,
			Code:     strings.TrimSpace(m[2]),
		})
	}
	return blocks
}

// Interpret derives the display data for task from text.
func Interpret(task, text string) Result {
	r := Result{Text: text, Kind: KindFor(task)}
	switch r.Kind {
	case KindFlowchart:
		if code, ok := ExtractMermaid(text); ok {
			r.MermaidCode = &code
		}
	case KindCode:
		r.CodeBlocks = ExtractCodeBlocks(text)
	}
	return r
}

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// RenderMarkdown converts the answer to HTML for display. Raw HTML in the
// answer is not passed through.
func RenderMarkdown(text string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(text), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
