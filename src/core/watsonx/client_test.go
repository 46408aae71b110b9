package watsonx

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"granite-vision-go/src/core/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRefresher struct {
	calls int32
	token string
	err   error
}

func (f *fakeRefresher) RefreshToken(ctx context.Context) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.token, f.err
}

type chatReply struct {
	status int
	body   string
}

type tokenLog struct {
	mu     sync.Mutex
	tokens []string
}

func (l *tokenLog) add(token string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tokens = append(l.tokens, token)
}

func (l *tokenLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.tokens...)
}

// newChatServer replies in order and records the bearer token of every call.
func newChatServer(t *testing.T, replies ...chatReply) (*httptest.Server, *tokenLog) {
	t.Helper()
	tokens := &tokenLog{}
	var n int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		i := int(atomic.AddInt32(&n, 1)) - 1
		tokens.add(r.Header.Get("Authorization"))
		if i >= len(replies) {
			t.Errorf("unexpected chat call #%d", i+1)
			w.WriteHeader(http.StatusTeapot)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(replies[i].status)
		_, _ = w.Write([]byte(replies[i].body))
	}))
	t.Cleanup(srv.Close)
	return srv, tokens
}

func okBody(content string) string {
	b, _ := json.Marshal(map[string]interface{}{
		"id":       "chat-1",
		"model_id": "ibm/granite-vision-3-2-2b",
		"choices": []map[string]interface{}{
			{"index": 0, "message": map[string]interface{}{"role": "assistant", "content": content}, "finish_reason": "stop"},
		},
		"usage":      map[string]int{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		"created_at": "2025-01-01T00:00:00.000Z",
	})
	return string(b)
}

func newTestClient(url string, refresher TokenRefresher) *Client {
	return NewClient(Config{ChatURL: url, ProjectID: "project-1", TopP: 1}, refresher, utils.NewNopLogger())
}

func TestDescribeImage_RequestShape(t *testing.T) {
	image := []byte{0x89, 'P', 'N', 'G', 1, 2, 3}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))

		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var body struct {
			Messages []struct {
				Role    string `json:"role"`
				Content []struct {
					Type     string `json:"type"`
					Text     string `json:"text"`
					ImageURL struct {
						URL string `json:"url"`
					} `json:"image_url"`
				} `json:"content"`
			} `json:"messages"`
			ProjectID   string  `json:"project_id"`
			ModelID     string  `json:"model_id"`
			MaxTokens   int     `json:"max_tokens"`
			Temperature float64 `json:"temperature"`
			TopP        float64 `json:"top_p"`
		}
		require.NoError(t, json.Unmarshal(raw, &body))

		require.Len(t, body.Messages, 1)
		assert.Equal(t, "user", body.Messages[0].Role)
		require.Len(t, body.Messages[0].Content, 2)
		assert.Equal(t, "text", body.Messages[0].Content[0].Type)
		assert.Equal(t, "describe", body.Messages[0].Content[0].Text)
		assert.Equal(t, "image_url", body.Messages[0].Content[1].Type)
		assert.Equal(t, "data:image/png;base64,"+base64.StdEncoding.EncodeToString(image), body.Messages[0].Content[1].ImageURL.URL)
		assert.Equal(t, "project-1", body.ProjectID)
		assert.Equal(t, "ibm/granite-vision-3-2-2b", body.ModelID)
		assert.Equal(t, 900, body.MaxTokens)
		assert.Equal(t, 0.0, body.Temperature)
		assert.Equal(t, 1.0, body.TopP)

		_, _ = w.Write([]byte(okBody("fine")))
	}))
	defer srv.Close()

	text, err := newTestClient(srv.URL, nil).DescribeImage(context.Background(), image, "describe", "tok")
	require.NoError(t, err)
	assert.Equal(t, "fine", text)
}

func TestDescribeImage_NormalizesOnce(t *testing.T) {
	srv, _ := newChatServer(t, chatReply{http.StatusOK, okBody(`a\nb \d`)})

	text, err := newTestClient(srv.URL, nil).DescribeImage(context.Background(), []byte("img"), "p", "tok")
	require.NoError(t, err)
	assert.Equal(t, "a\nb \\d", text)

	srv2, _ := newChatServer(t, chatReply{http.StatusOK, okBody(`a\nb \d`)})
	client := NewClient(Config{ChatURL: srv2.URL, StripBackslashes: true}, nil, utils.NewNopLogger())
	text, err = client.DescribeImage(context.Background(), []byte("img"), "p", "tok")
	require.NoError(t, err)
	assert.Equal(t, "a\nb d", text)
}

func TestDescribeImage_RetriesOnceAfterRefresh(t *testing.T) {
	srv, tokens := newChatServer(t,
		chatReply{http.StatusUnauthorized, `{"errors":[{"code":"authentication_token_expired"}]}`},
		chatReply{http.StatusOK, okBody("second attempt")},
	)
	refresher := &fakeRefresher{token: "fresh"}

	text, err := newTestClient(srv.URL, refresher).DescribeImage(context.Background(), []byte("img"), "p", "stale")
	require.NoError(t, err)
	assert.Equal(t, "second attempt", text)
	assert.EqualValues(t, 1, atomic.LoadInt32(&refresher.calls))
	assert.Equal(t, []string{"Bearer stale", "Bearer fresh"}, tokens.all())
}

func TestDescribeImage_RefreshFailureStops(t *testing.T) {
	srv, tokens := newChatServer(t, chatReply{http.StatusUnauthorized, "expired"})
	refreshErr := errors.New("iam unavailable")
	refresher := &fakeRefresher{err: refreshErr}

	_, err := newTestClient(srv.URL, refresher).DescribeImage(context.Background(), []byte("img"), "p", "stale")

	var visionErr *VisionError
	require.True(t, errors.As(err, &visionErr))
	assert.Equal(t, http.StatusUnauthorized, visionErr.StatusCode)
	assert.ErrorIs(t, err, refreshErr)
	assert.Contains(t, err.Error(), "re-authenticate: iam unavailable")
	assert.Contains(t, err.Error(), "expired")
	assert.EqualValues(t, 1, atomic.LoadInt32(&refresher.calls))
	assert.Len(t, tokens.all(), 1)
}

func TestDescribeImage_SecondUnauthorizedIsFinal(t *testing.T) {
	srv, tokens := newChatServer(t,
		chatReply{http.StatusUnauthorized, "expired"},
		chatReply{http.StatusUnauthorized, "still expired"},
	)
	refresher := &fakeRefresher{token: "fresh"}

	_, err := newTestClient(srv.URL, refresher).DescribeImage(context.Background(), []byte("img"), "p", "stale")

	var visionErr *VisionError
	require.True(t, errors.As(err, &visionErr))
	assert.Equal(t, http.StatusUnauthorized, visionErr.StatusCode)
	assert.Equal(t, "still expired", visionErr.Body)
	assert.EqualValues(t, 1, atomic.LoadInt32(&refresher.calls))
	assert.Len(t, tokens.all(), 2)
}

func TestDescribeImage_Failures(t *testing.T) {
	tests := []struct {
		name    string
		reply   chatReply
		status  int
		wantErr error
	}{
		{name: "server error", reply: chatReply{http.StatusInternalServerError, "boom"}, status: http.StatusInternalServerError},
		{name: "bad request", reply: chatReply{http.StatusBadRequest, `{"errors":[]}`}, status: http.StatusBadRequest},
		{name: "no choices", reply: chatReply{http.StatusOK, `{"choices":[]}`}, status: http.StatusOK, wantErr: ErrNoChoices},
		{name: "not json", reply: chatReply{http.StatusOK, "<html>"}, status: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, tokens := newChatServer(t, tt.reply)
			refresher := &fakeRefresher{token: "fresh"}

			_, err := newTestClient(srv.URL, refresher).DescribeImage(context.Background(), []byte("img"), "p", "tok")

			var visionErr *VisionError
			require.True(t, errors.As(err, &visionErr))
			assert.Equal(t, tt.status, visionErr.StatusCode)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Len(t, tokens.all(), 1)
			assert.EqualValues(t, 0, atomic.LoadInt32(&refresher.calls))
		})
	}
}

func TestDescribeImage_RejectsMissingInput(t *testing.T) {
	client := newTestClient("http://127.0.0.1:1", nil)

	_, err := client.DescribeImage(context.Background(), []byte("img"), "p", "")
	assert.ErrorIs(t, err, ErrEmptyToken)

	_, err = client.DescribeImage(context.Background(), nil, "p", "tok")
	assert.ErrorIs(t, err, ErrEmptyImage)
}

func TestDescribeImageFile(t *testing.T) {
	srv, _ := newChatServer(t, chatReply{http.StatusOK, okBody("from file")})
	path := filepath.Join(t.TempDir(), "diagram.png")
	require.NoError(t, os.WriteFile(path, []byte("png bytes"), 0644))

	client := newTestClient(srv.URL, nil)
	text, err := client.DescribeImageFile(context.Background(), path, "p", "tok")
	require.NoError(t, err)
	assert.Equal(t, "from file", text)

	_, err = client.DescribeImageFile(context.Background(), filepath.Join(t.TempDir(), "missing.png"), "p", "tok")
	var visionErr *VisionError
	assert.True(t, errors.As(err, &visionErr))
}

func TestVisionError_Message(t *testing.T) {
	tests := []struct {
		name string
		err  *VisionError
		want string
	}{
		{"transport", &VisionError{Err: errors.New("dial tcp: refused")}, "vision request failed: dial tcp: refused"},
		{"status only", &VisionError{StatusCode: 500, Body: "boom"}, "vision request failed: status 500: boom"},
		{"status and cause", &VisionError{StatusCode: 401, Body: "expired", Err: errors.New("re-authenticate: iam unavailable")},
			"vision request failed: status 401: re-authenticate: iam unavailable: expired"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}
