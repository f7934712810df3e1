package handlers

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/pagerecon-go/internal/types"
)

// routeCommand routes API commands to their handlers. Requests are validated
// up front so handlers only ever see well-formed input.
func (h *Handler) routeCommand(w http.ResponseWriter, r *http.Request, req *types.Request, startTime time.Time) {
	if err := req.Validate(); err != nil {
		log.Warn().Err(err).Str("cmd", req.Cmd).Msg("Request validation failed")
		h.writeError(w, err.Error(), startTime)
		return
	}

	switch req.Cmd {
	case types.CmdAnalyzeRun:
		h.handleAnalyzeRun(w, r.Context(), req, startTime)
	case types.CmdAnalyzeLast:
		h.handleAnalyzeLast(w, req, startTime)
	case types.CmdSessionsCreate:
		h.handleSessionCreate(w, r.Context(), req, startTime)
	case types.CmdSessionsList:
		h.handleSessionList(w, req, startTime)
	case types.CmdSessionsDestroy:
		h.handleSessionDestroy(w, req, startTime)
	default:
		// Unreachable after Validate, kept for safety
		h.writeError(w, "Unknown command: "+req.Cmd, startTime)
	}
}
