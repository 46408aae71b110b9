package vision

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"granite-vision-go/src/configs"
	"granite-vision-go/src/core/auth"
	"granite-vision-go/src/core/history"
	"granite-vision-go/src/core/image"
	"granite-vision-go/src/core/result"
	"granite-vision-go/src/core/utils"
	"granite-vision-go/src/core/watsonx"
	"granite-vision-go/src/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	requestIDHeader = "X-Request-Id"
	// multipart overhead allowed on top of the image size limit
	formOverhead = 1 << 20
)

//go:embed web/index.html
var indexPage []byte

type DefaultVisionService struct {
	logger    *utils.Logger
	config    *configs.Config
	tokens    *auth.TokenHolder
	describer Describer
	validator *image.Validator
	history   *history.Store // nil when no database is configured
}

// NewDefaultVisionService constructor. store may be nil.
func NewDefaultVisionService(config *configs.Config, logger *utils.Logger, tokens *auth.TokenHolder, describer Describer, store *history.Store) *DefaultVisionService {
	return &DefaultVisionService{
		logger:    logger,
		config:    config,
		tokens:    tokens,
		describer: describer,
		validator: image.NewValidator(&config.Security, logger),
		history:   store,
	}
}

// Start implements VisionService
func (s *DefaultVisionService) Start(ctx context.Context, engine *gin.Engine, apiGroup *gin.RouterGroup) error {
	engine.GET("/", s.handleIndex)
	engine.POST("/authenticate", s.handleAuthenticate)
	engine.POST("/refresh_token", s.handleRefreshToken)
	engine.POST("/process_image", s.handleProcessImage)
	engine.POST("/download_result", s.handleDownloadResult)

	apiGroup.GET("/vision", s.handleStatus)
	apiGroup.GET("/history", s.handleHistory)
	apiGroup.GET("/history/:id", s.handleHistoryItem)

	s.logger.Info("vision routes registered")
	return nil
}

func (s *DefaultVisionService) handleIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", indexPage)
}

// handleStatus plain-text health check
func (s *DefaultVisionService) handleStatus(c *gin.Context) {
	state := "not authenticated"
	if s.tokens.Authenticated() {
		state = "authenticated"
	}
	c.String(http.StatusOK, fmt.Sprintf("Vision interface is running, model %s, %s", s.describer.ModelID(), state))
}

func (s *DefaultVisionService) handleAuthenticate(c *gin.Context) {
	if _, err := s.tokens.Acquire(c.Request.Context()); err != nil {
		s.logger.Warn("authentication failed: %v", err)
		s.respondError(c, http.StatusBadGateway, "Failed to authenticate. Check your API key in the .env file")
		return
	}
	c.JSON(http.StatusOK, s.tokenResponse("Successfully authenticated with IBM Cloud"))
}

func (s *DefaultVisionService) handleRefreshToken(c *gin.Context) {
	if _, err := s.tokens.RefreshToken(c.Request.Context()); err != nil {
		s.logger.Warn("token refresh failed: %v", err)
		s.respondError(c, http.StatusBadGateway, "Failed to refresh token")
		return
	}
	c.JSON(http.StatusOK, s.tokenResponse("Token refreshed successfully"))
}

func (s *DefaultVisionService) tokenResponse(message string) StatusResponse {
	resp := StatusResponse{Status: statusSuccess, Message: message}
	if exp, ok := s.tokens.ExpiresAt(); ok {
		resp.ExpiresAt = exp.UTC().Format(time.RFC3339)
	}
	return resp
}

// handleProcessImage multipart fields: image (file), task, prompt
func (s *DefaultVisionService) handleProcessImage(c *gin.Context) {
	requestID := uuid.NewString()
	c.Header(requestIDHeader, requestID)
	log := s.logger.WithTag(requestID)

	if !s.tokens.Authenticated() {
		s.respondError(c, http.StatusUnauthorized, "Not authenticated. Please authenticate first")
		return
	}

	data, err := s.readUpload(c)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(c, http.StatusRequestEntityTooLarge, "Image is too large")
			return
		}
		s.respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	info, err := s.validator.Validate(data)
	if err != nil {
		log.Warn("upload rejected: %v", err)
		s.respondError(c, http.StatusBadRequest, fmt.Sprintf("Invalid image: %v", err))
		return
	}

	task := c.DefaultPostForm("task", result.TaskOCR)
	prompt := result.ResolvePrompt(task, c.PostForm("prompt"))
	log.Info("processing image %v", map[string]interface{}{
		"task":   task,
		"format": info.Format,
		"size":   info.FileSize,
		"width":  info.Width,
		"height": info.Height,
	})

	started := time.Now()
	text, err := s.describer.DescribeImage(c.Request.Context(), data, prompt, s.tokens.Token())
	if err != nil {
		log.Error("vision request failed: %v", err)
		status := http.StatusBadGateway
		var visionErr *watsonx.VisionError
		if errors.As(err, &visionErr) && visionErr.StatusCode == http.StatusUnauthorized {
			status = http.StatusUnauthorized
		}
		s.respondError(c, status, "Failed to process the image")
		return
	}
	elapsed := time.Since(started)

	r := result.Interpret(task, text)
	resp := ProcessResponse{
		Status:      statusSuccess,
		RequestID:   requestID,
		Result:      r.Text,
		ResultType:  r.Kind,
		MermaidCode: r.MermaidCode,
		CodeBlocks:  r.CodeBlocks,
	}
	if r.Kind != result.KindHTML {
		if html, err := result.RenderMarkdown(r.Text); err == nil {
			resp.ResultHTML = html
		} else {
			log.Warn("markdown rendering failed: %v", err)
		}
	}

	if s.history != nil {
		_, err := s.history.Save(c.Request.Context(), history.Entry{
			RequestID:   requestID,
			Task:        task,
			Prompt:      prompt,
			ModelID:     s.describer.ModelID(),
			Result:      r,
			ImageFormat: info.Format,
			ImageSize:   info.FileSize,
			Duration:    elapsed,
		})
		if err != nil {
			log.Warn("history not saved: %v", err)
		}
	}

	log.Info("image processed in %s", elapsed)
	c.JSON(http.StatusOK, resp)
}

// readUpload reads the "image" file within the configured size limit
func (s *DefaultVisionService) readUpload(c *gin.Context) ([]byte, error) {
	limit := s.config.Security.MaxFileSize
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+formOverhead)

	header, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, err
		}
		return nil, errors.New("No image uploaded")
	}
	if header.Filename == "" {
		return nil, errors.New("No image selected")
	}
	if header.Size > limit {
		return nil, &http.MaxBytesError{Limit: limit}
	}

	file, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return data, nil
}

// handleDownloadResult form fields: result, task
func (s *DefaultVisionService) handleDownloadResult(c *gin.Context) {
	text := c.PostForm("result")
	filename := utils.DownloadFilename(c.DefaultPostForm("task", "result"))

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(text))
}

// handleHistory query: limit
func (s *DefaultVisionService) handleHistory(c *gin.Context) {
	if s.history == nil {
		s.respondError(c, http.StatusNotFound, "History is disabled, set DATABASE_URL to enable it")
		return
	}

	limit := s.config.Database.HistoryLimit
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 && v < limit {
		limit = v
	}

	records, err := s.history.Recent(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error("history query failed: %v", err)
		s.respondError(c, http.StatusInternalServerError, "Failed to load history")
		return
	}

	items := make([]HistoryItem, 0, len(records))
	for i := range records {
		items = append(items, newHistoryItem(&records[i]))
	}
	c.JSON(http.StatusOK, gin.H{"status": statusSuccess, "items": items})
}

// handleHistoryItem one record with its extracted diagram and code blocks
func (s *DefaultVisionService) handleHistoryItem(c *gin.Context) {
	if s.history == nil {
		s.respondError(c, http.StatusNotFound, "History is disabled, set DATABASE_URL to enable it")
		return
	}

	record, err := s.history.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.respondError(c, http.StatusNotFound, "No such history entry")
		return
	}
	if err != nil {
		s.logger.Error("history lookup failed: %v", err)
		s.respondError(c, http.StatusInternalServerError, "Failed to load history")
		return
	}

	detail := HistoryDetail{HistoryItem: newHistoryItem(record), Prompt: record.Prompt}
	if record.MermaidCode != "" {
		detail.MermaidCode = &record.MermaidCode
	}
	if len(record.CodeBlocks) > 0 {
		if err := json.Unmarshal(record.CodeBlocks, &detail.CodeBlocks); err != nil {
			s.logger.Warn("stored code blocks unreadable: %v", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": statusSuccess, "item": detail})
}

func newHistoryItem(r *models.ProcessRecord) HistoryItem {
	return HistoryItem{
		ID:         r.ID,
		Task:       r.Task,
		ResultType: r.ResultKind,
		Result:     r.Result,
		DurationMS: r.DurationMS,
		CreatedAt:  r.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (s *DefaultVisionService) respondError(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, StatusResponse{
		Status:    statusError,
		Message:   message,
		RequestID: c.Writer.Header().Get(requestIDHeader),
	})
}
