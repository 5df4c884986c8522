package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/CerberoGS/CATAI-sub000/internal/pkg/errcode"
	"github.com/CerberoGS/CATAI-sub000/internal/pkg/response"
	"github.com/CerberoGS/CATAI-sub000/internal/service"
)

type SettingsHandler struct {
	settings *service.SettingsService
}

func NewSettingsHandler(settings *service.SettingsService) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

type apiKeyRequest struct {
	Provider string `json:"provider"`
	APIKey   string `json:"api_key"`
}

type promptRequest struct {
	Prompt string `json:"prompt"`
}

func (h *SettingsHandler) Get(c *gin.Context) {
	view, err := h.settings.Get(c.Request.Context(), getUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, view)
}

func (h *SettingsHandler) PutAPIKey(c *gin.Context) {
	var req apiKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if err := h.settings.SetAPIKey(c.Request.Context(), getUserID(c), req.Provider, req.APIKey); err != nil {
		handleError(c, err)
		return
	}
	response.OK(c)
}

func (h *SettingsHandler) DeleteAPIKey(c *gin.Context) {
	if err := h.settings.DeleteAPIKey(c.Request.Context(), getUserID(c), c.Param("provider")); err != nil {
		handleError(c, err)
		return
	}
	response.OK(c)
}

func (h *SettingsHandler) PutPrompt(c *gin.Context) {
	var req promptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if err := h.settings.SetPrompt(c.Request.Context(), getUserID(c), req.Prompt); err != nil {
		handleError(c, err)
		return
	}
	response.OK(c)
}
