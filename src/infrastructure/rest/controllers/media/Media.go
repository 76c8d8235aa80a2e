package media

import (
	"net/http"
	"strings"

	logger "go-wa-campaign-api/src/infrastructure/logger"

	"github.com/gin-gonic/gin"
)

// FileReader serves stored media by relative path
type FileReader interface {
	Read(relative string) ([]byte, string, error)
}

type IMediaController interface {
	Get(ctx *gin.Context)
}

type MediaController struct {
	files  FileReader
	Logger *logger.Logger
}

func NewMediaController(files FileReader, loggerInstance *logger.Logger) IMediaController {
	return &MediaController{files: files, Logger: loggerInstance}
}

// Get serves the file matched by the *path wildcard
func (c *MediaController) Get(ctx *gin.Context) {
	relative := strings.TrimPrefix(ctx.Param("path"), "/")
	if relative == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid media path"})
		return
	}
	data, contentType, err := c.files.Read(relative)
	if err != nil {
		_ = ctx.Error(err)
		return
	}
	ctx.Header("Cache-Control", "public, max-age=300")
	ctx.Data(http.StatusOK, contentType, data)
}
