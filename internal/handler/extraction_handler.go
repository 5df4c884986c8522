package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/CerberoGS/CATAI-sub000/internal/model"
	"github.com/CerberoGS/CATAI-sub000/internal/pipeline"
	"github.com/CerberoGS/CATAI-sub000/internal/pkg/errcode"
	"github.com/CerberoGS/CATAI-sub000/internal/pkg/response"
	"github.com/CerberoGS/CATAI-sub000/internal/service"
)

type ExtractionHandler struct {
	extraction *service.ExtractionService
	direct     *service.DirectService
}

func NewExtractionHandler(extraction *service.ExtractionService, direct *service.DirectService) *ExtractionHandler {
	return &ExtractionHandler{extraction: extraction, direct: direct}
}

type extractResponse struct {
	DocumentID      string              `json:"document_id"`
	Status          pipeline.Status     `json:"status"`
	Answer          string              `json:"answer,omitempty"`
	ResultID        string              `json:"result_id,omitempty"`
	RunRef          string              `json:"run_ref,omitempty"`
	Reason          string              `json:"reason,omitempty"`
	Diagnosis       *pipeline.Diagnosis `json:"diagnosis,omitempty"`
	SuggestedAction string              `json:"suggested_action,omitempty"`
	Resumed         bool                `json:"resumed"`
}

func toExtractResponse(res *pipeline.Result) extractResponse {
	out := extractResponse{
		DocumentID: res.DocumentID,
		Status:     res.Status,
		Answer:     res.Answer,
		ResultID:   res.ResultID,
		RunRef:     res.RunRef,
		Reason:     res.Reason,
		Diagnosis:  res.Diagnosis,
		Resumed:    res.Resumed,
	}
	if res.Diagnosis != nil {
		out.SuggestedAction = res.Diagnosis.Action
		if out.Reason == "" {
			out.Reason = res.Diagnosis.Explanation
		}
	}
	return out
}

func (h *ExtractionHandler) Extract(c *gin.Context) {
	force, _ := strconv.ParseBool(c.DefaultQuery("force", "false"))
	res, err := h.extraction.Extract(c.Request.Context(), getUserID(c), c.Param("id"), force)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, toExtractResponse(res))
}

func (h *ExtractionHandler) ExtractDirect(c *gin.Context) {
	if h.direct == nil {
		response.Error(c, errcode.ErrAIUnavailable, "direct extraction not configured")
		return
	}
	res, err := h.direct.Extract(c.Request.Context(), getUserID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, toExtractResponse(res))
}

type resultResponse struct {
	*model.KnowledgeEntry
	HTML string `json:"html,omitempty"`
}

func (h *ExtractionHandler) Result(c *gin.Context) {
	entry, err := h.extraction.Result(c.Request.Context(), getUserID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	out := resultResponse{KnowledgeEntry: entry}
	if c.Query("format") == "html" {
		html, err := service.RenderHTML(entry.Content)
		if err != nil {
			handleError(c, err)
			return
		}
		out.HTML = html
	}
	response.Success(c, out)
}

func (h *ExtractionHandler) Diagnosis(c *gin.Context) {
	audit, err := h.extraction.Diagnose(c.Request.Context(), getUserID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, audit)
}
