package server

import (
	"context"

	"github.com/gin-gonic/gin"
)

// CfgService exposes the effective runtime settings
type CfgService interface {
	Start(ctx context.Context, engine *gin.Engine, apiGroup *gin.RouterGroup) error
}
