package vision

import (
	"context"

	"github.com/gin-gonic/gin"
)

// VisionService registers the upload and authentication routes
type VisionService interface {
	Start(ctx context.Context, engine *gin.Engine, apiGroup *gin.RouterGroup) error
}

// Describer sends one image and prompt to the model
type Describer interface {
	DescribeImage(ctx context.Context, image []byte, prompt, token string) (string, error)
	ModelID() string
}
