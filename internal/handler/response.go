package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const codeOK = 0

type apiResponse struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    any            `json:"data,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

func Ok(c *gin.Context, data any, meta map[string]any) {
	c.JSON(http.StatusOK, apiResponse{
		Code:    codeOK,
		Message: "ok",
		Data:    data,
		Meta:    meta,
	})
}

// Error uses the HTTP status as the envelope code.
func Error(c *gin.Context, status int, message string, meta map[string]any) {
	c.JSON(status, apiResponse{
		Code:    status,
		Message: message,
		Meta:    meta,
	})
}

// listMeta describes a returned row list. source is SourceStore or SourceFallback.
func listMeta(timeframe, source string, count int) map[string]any {
	return map[string]any{
		"timeframe": timeframe,
		"source":    source,
		"count":     count,
	}
}
