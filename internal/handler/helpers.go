package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/CerberoGS/CATAI-sub000/internal/ai"
	"github.com/CerberoGS/CATAI-sub000/internal/middleware"
	"github.com/CerberoGS/CATAI-sub000/internal/pipeline"
	"github.com/CerberoGS/CATAI-sub000/internal/pkg/errcode"
	appErr "github.com/CerberoGS/CATAI-sub000/internal/pkg/errors"
	"github.com/CerberoGS/CATAI-sub000/internal/pkg/response"
)

func getUserID(c *gin.Context) string {
	value, _ := c.Get(middleware.ContextUserIDKey)
	userID, _ := value.(string)
	return userID
}

func parsePage(c *gin.Context, defaultLimit uint) (uint, uint) {
	limit := defaultLimit
	offset := uint(0)
	if value := c.Query("limit"); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 && parsed <= 200 {
			limit = uint(parsed)
		}
	}
	if value := c.Query("offset"); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed >= 0 {
			offset = uint(parsed)
		}
	}
	return limit, offset
}

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.String("request_id", c.GetString(middleware.ContextRequestIDKey)),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("user_id", getUserID(c)),
		zap.Error(err),
	)
	var pErr *pipeline.Error
	var aErr *ai.Error
	switch {
	case errors.Is(err, appErr.ErrUnauthorized):
		response.Error(c, errcode.ErrUnauthorized, "unauthorized")
	case errors.Is(err, appErr.ErrForbidden):
		response.Error(c, errcode.ErrForbidden, "forbidden")
	case errors.Is(err, appErr.ErrNotFound):
		response.Error(c, errcode.ErrNotFound, "not found")
	case errors.Is(err, appErr.ErrInvalid):
		response.Error(c, errcode.ErrInvalid, "invalid request")
	case errors.Is(err, appErr.ErrConflict):
		response.Error(c, errcode.ErrConflict, "conflict")
	case errors.Is(err, appErr.ErrTooMany):
		response.Error(c, errcode.ErrTooMany, "too many requests")
	case errors.Is(err, appErr.ErrFileTooLarge):
		response.Error(c, errcode.ErrFileTooLarge, "file too large")
	case errors.Is(err, appErr.ErrFileType):
		response.Error(c, errcode.ErrInvalidFile, "file type not allowed")
	case errors.Is(err, appErr.ErrNoAPIKey):
		response.Error(c, errcode.ErrNoAPIKey, "no api key configured")
	case errors.Is(err, ai.ErrUnavailable):
		response.Error(c, errcode.ErrAIUnavailable, "ai not configured")
	case errors.As(err, &pErr):
		if pErr.Kind == pipeline.KindRemoteRejected {
			response.Error(c, errcode.ErrExtractionRejected, pErr.Error())
			return
		}
		response.Error(c, errcode.ErrExtractionRetry, "extraction interrupted at "+pErr.Stage+", try again")
	case errors.As(err, &aErr):
		if aErr.Kind == ai.KindRejected {
			response.Error(c, errcode.ErrExtractionRejected, aErr.Error())
			return
		}
		response.Error(c, errcode.ErrExtractionRetry, "ai service unavailable, try again")
	default:
		response.Error(c, errcode.ErrInternal, "internal error")
	}
}
