package result

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractMermaid(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   string
		wantOK bool
	}{
		{name: "embedded block", input: "abc```mermaid\nflowchart TD\nA-->B\n```def", want: "flowchart TD\nA-->B", wantOK: true},
		{name: "first block wins", input: "```mermaid\ngraph LR\n```\n```mermaid\nother\n```", want: "graph LR", wantOK: true},
		{name: "no marker", input: "flowchart TD\nA-->B", wantOK: false},
		{name: "plain fence only", input: "```\nA-->B\n```", wantOK: false},
		{name: "unclosed", input: "```mermaid\nA-->B", wantOK: false},
		{name: "empty body", input: "```mermaid```", want: "", wantOK: true},
		{name: "empty input", input: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractMermaid(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractCodeBlocks(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []CodeBlock
	}{
		{name: "tagged", input: "```python\nprint(1)\n```", want: []CodeBlock{{Language: "python", Code: "print(1)"}}},
		{name: "untagged", input: "```\nx\n```", want: []CodeBlock{{Language: "text", Code: "x"}}},
		{name: "no fences", input: "just prose", want: []CodeBlock{}},
		{name: "empty input", input: "", want: []CodeBlock{}},
		{
			name:  "several blocks with prose",
			input: "Here:\n```java\nclass A {}\n```\nand\n```go\nfunc main() {\n}\n```\nend",
			want: []CodeBlock{
				{Language: "java", Code: "class A {}"},
				{Language: "go", Code: "func main() {\n}"},
			},
		},
		{name: "tag without newline is not a block", input: "```python print(1)```", want: []CodeBlock{}},
		{name: "unclosed", input: "```js\nlet a = 1", want: []CodeBlock{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractCodeBlocks(tt.input)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractionIsIdempotent(t *testing.T) {
	text := "intro\n```mermaid\ngraph TD\nA-->B\n```\n```python\nprint(1)\n```"

	m1, ok1 := ExtractMermaid(text)
	m2, ok2 := ExtractMermaid(text)
	assert.Equal(t, ok1, ok2)
	assert.Equal(t, m1, m2)
	assert.Equal(t, ExtractCodeBlocks(text), ExtractCodeBlocks(text))
	assert.Equal(t, Interpret(TaskCode, text), Interpret(TaskCode, text))
}

func TestInterpret(t *testing.T) {
	text := "```mermaid\ngraph TD\n```"

	r := Interpret(TaskFlowchart, text)
	assert.Equal(t, KindFlowchart, r.Kind)
	require.NotNil(t, r.MermaidCode)
	assert.Equal(t, "graph TD", *r.MermaidCode)
	assert.Nil(t, r.CodeBlocks)

	r = Interpret(TaskFlowchart, "no diagram")
	assert.Nil(t, r.MermaidCode)

	r = Interpret(TaskCode, text)
	assert.Equal(t, KindCode, r.Kind)
	assert.Equal(t, []CodeBlock{{Language: "mermaid", Code: "graph TD"}}, r.CodeBlocks)
	assert.Nil(t, r.MermaidCode)

	r = Interpret(TaskHTML, "<html></html>")
	assert.Equal(t, Result{Text: "<html></html>", Kind: KindHTML}, r)

	for _, task := range []string{TaskOCR, "", "Something else"} {
		r = Interpret(task, text)
		assert.Equal(t, Result{Text: text, Kind: KindText}, r)
	}
}

func TestResolvePrompt(t *testing.T) {
	assert.Equal(t, "You are an OCR engine, please extract full text from the page", ResolvePrompt(TaskOCR, ""))
	assert.Equal(t, "Generate an HTML file based on the screenshot image provided", ResolvePrompt(TaskHTML, "  "))
	assert.Equal(t, "Generate a flow chart based on the diagram in mermaid format", ResolvePrompt(TaskFlowchart, ""))
	assert.Equal(t, "Generate code based on the diagram", ResolvePrompt(TaskCode, ""))
	assert.Equal(t, "Describe this image in detail", ResolvePrompt("anything", ""))
	assert.Equal(t, "Generate Java code", ResolvePrompt(TaskCode, "Generate Java code"))
}

func TestResolvePrompt_BlankCustomUsesTaskPrompt(t *testing.T) {
	for _, blank := range []string{"", " ", "\t\n", "   \n  "} {
		assert.Equal(t, "Generate code based on the diagram", ResolvePrompt(TaskCode, blank), "%q", blank)
	}
	assert.Equal(t, "  spaced  ", ResolvePrompt(TaskCode, "  spaced  "))
}

func TestRenderMarkdown(t *testing.T) {
	html, err := RenderMarkdown("# Title\n\n```python\nprint(1)\n```\n\n<script>alert(1)</script>")
	require.NoError(t, err)
	assert.Contains(t, html, "<h1>Title</h1>")
	assert.Contains(t, html, `<code class="language-python">print(1)`)
	assert.NotContains(t, html, "<script>")
}
