package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ragcache/ragcache/internal/knowledge"
	"github.com/ragcache/ragcache/internal/log"
)

// maxPromptBody bounds the request body to keep a single request from
// holding a large buffer.
const maxPromptBody = 64 * 1024

// promptHandler answers prompts through the pipeline.
type promptHandler struct {
	pipeline Answerer
	logger   log.Logger
}

// PromptRequest is the body of POST /api/v1/prompt.
type PromptRequest struct {
	Prompt string `json:"prompt"`
}

// PromptResponse carries the pipeline's answer.
type PromptResponse struct {
	Answer string `json:"answer"`
}

func (h *promptHandler) answer(w http.ResponseWriter, r *http.Request) {
	var req PromptRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxPromptBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body", h.logger)
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "missing_prompt", "prompt is required", h.logger)
		return
	}

	answer, err := h.pipeline.Answer(r.Context(), req.Prompt)
	if err != nil {
		// Every pipeline failure is a server error; the message names the
		// stage that failed (the pipeline wraps each stage).
		if errors.Is(err, knowledge.ErrNoMatch) {
			writeError(w, http.StatusInternalServerError, "no_match", "no matching knowledge found", h.logger)
			return
		}
		h.logger.Error("answering prompt", "error", err)
		writeError(w, http.StatusInternalServerError, "pipeline_error", err.Error(), h.logger)
		return
	}

	writeJSON(w, http.StatusOK, PromptResponse{Answer: answer}, h.logger)
}
