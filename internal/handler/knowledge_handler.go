package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/CerberoGS/CATAI-sub000/internal/pkg/response"
	"github.com/CerberoGS/CATAI-sub000/internal/service"
)

type KnowledgeHandler struct {
	knowledge *service.KnowledgeService
}

func NewKnowledgeHandler(knowledge *service.KnowledgeService) *KnowledgeHandler {
	return &KnowledgeHandler{knowledge: knowledge}
}

func (h *KnowledgeHandler) List(c *gin.Context) {
	limit, offset := parsePage(c, 50)
	entries, err := h.knowledge.List(c.Request.Context(), getUserID(c), limit, offset)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, entries)
}

func (h *KnowledgeHandler) Get(c *gin.Context) {
	entry, err := h.knowledge.Get(c.Request.Context(), getUserID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, entry)
}

func (h *KnowledgeHandler) Delete(c *gin.Context) {
	if err := h.knowledge.Delete(c.Request.Context(), getUserID(c), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	response.OK(c)
}
