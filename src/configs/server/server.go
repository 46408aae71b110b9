package server

import (
	"context"
	"net/http"

	"granite-vision-go/src/configs"
	"granite-vision-go/src/core/utils"

	"github.com/gin-gonic/gin"
)

type DefaultCfgService struct {
	logger         *utils.Logger
	config         *configs.Config
	historyEnabled bool
}

// CfgView settings safe to show to a browser. Credentials and the database
// URL are never part of it.
type CfgView struct {
	ModelID               string   `json:"model_id"`
	ChatURL               string   `json:"chat_url"`
	MaxTokens             int      `json:"max_tokens"`
	Temperature           float64  `json:"temperature"`
	TopP                  float64  `json:"top_p"`
	IAMInsecureSkipVerify bool     `json:"iam_insecure_skip_verify"`
	StripBackslashes      bool     `json:"strip_backslashes"`
	MaxFileSize           int64    `json:"max_file_size"`
	MaxWidth              int      `json:"max_width"`
	MaxHeight             int      `json:"max_height"`
	AllowedFormats        []string `json:"allowed_formats"`
	HistoryEnabled        bool     `json:"history_enabled"`
}

func NewDefaultCfgService(config *configs.Config, logger *utils.Logger, historyEnabled bool) *DefaultCfgService {
	return &DefaultCfgService{
		logger:         logger,
		config:         config,
		historyEnabled: historyEnabled,
	}
}

// Start registers GET /api/cfg
func (s *DefaultCfgService) Start(ctx context.Context, engine *gin.Engine, apiGroup *gin.RouterGroup) error {
	apiGroup.GET("/cfg", s.handleGet)

	s.logger.Info("cfg routes registered")
	return nil
}

// View builds the sanitized settings
func (s *DefaultCfgService) View() CfgView {
	w := s.config.Watsonx
	sec := s.config.Security
	return CfgView{
		ModelID:               w.ModelID,
		ChatURL:               w.ChatURL,
		MaxTokens:             w.MaxTokens,
		Temperature:           w.Temperature,
		TopP:                  w.TopPOrDefault(),
		IAMInsecureSkipVerify: w.IAMInsecureSkipVerify,
		StripBackslashes:      w.StripBackslashes,
		MaxFileSize:           sec.MaxFileSize,
		MaxWidth:              sec.MaxWidth,
		MaxHeight:             sec.MaxHeight,
		AllowedFormats:        sec.AllowedFormats,
		HistoryEnabled:        s.historyEnabled,
	}
}

func (s *DefaultCfgService) handleGet(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"config": s.View(),
	})
}
