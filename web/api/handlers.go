package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/templatedoctor/validation-orchestrator/internal/domain"
	"github.com/templatedoctor/validation-orchestrator/internal/githubhost"
	"github.com/templatedoctor/validation-orchestrator/internal/orchestrator"
)

// DispatchRequest is the body of POST /v4/validation-template.
type DispatchRequest struct {
	TargetRepoURL string   `json:"targetRepoUrl"`
	CallbackURL   string   `json:"callbackUrl,omitempty"`
	Validators    []string `json:"validators,omitempty"`
}

// DispatchResponse acknowledges an accepted dispatch.
type DispatchResponse struct {
	RunID   string `json:"runId"`
	Message string `json:"message"`
}

// StatusResponse is the API view of one run's present state. An
// uncorrelated run carries status "pending" and a null conclusion.
type StatusResponse struct {
	RunID       string  `json:"runId"`
	GithubRunID *int64  `json:"githubRunId,omitempty"`
	Status      string  `json:"status"`
	Conclusion  *string `json:"conclusion"`
	RunURL      string  `json:"runUrl,omitempty"`
	StartTime   *string `json:"startTime,omitempty"`
	EndTime     *string `json:"endTime,omitempty"`
}

// CancelRequest is the body of POST /v4/validation-cancel.
type CancelRequest struct {
	RunID       string `json:"runId"`
	GithubRunID int64  `json:"githubRunId,omitempty"`
}

// CancelResponse acknowledges a cancellation.
type CancelResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	RunID       string `json:"runId"`
	GithubRunID int64  `json:"githubRunId"`
}

// CallbackRequest is the push notification body from the CI system.
type CallbackRequest struct {
	RunID       string `json:"runId"`
	GithubRunID int64  `json:"githubRunId"`
	Status      string `json:"status,omitempty"`
	Result      string `json:"result,omitempty"`
}

// BatchStartRequest is the body of POST /v4/batch-scan-start.
type BatchStartRequest struct {
	Repos []string `json:"repos"`
	Mode  string   `json:"mode,omitempty"`
}

// BatchStartResponse acknowledges an accepted batch.
type BatchStartResponse struct {
	BatchID       string `json:"batchId"`
	AcceptedCount int    `json:"acceptedCount"`
}

// BatchStatusResponse is a whole-batch snapshot.
type BatchStatusResponse struct {
	BatchID   string             `json:"batchId"`
	Created   time.Time          `json:"created"`
	Mode      string             `json:"mode,omitempty"`
	Total     int                `json:"total"`
	Completed int                `json:"completed"`
	Items     []domain.BatchItem `json:"items"`
}

func statusToResponse(rep *orchestrator.StatusReport) StatusResponse {
	resp := StatusResponse{
		RunID:  rep.RunToken,
		Status: string(rep.Status),
		RunURL: rep.RunURL,
	}
	if rep.RemoteRunID != 0 {
		id := rep.RemoteRunID
		resp.GithubRunID = &id
	}
	if rep.Conclusion != domain.ConclusionNone {
		c := string(rep.Conclusion)
		resp.Conclusion = &c
	}
	if rep.StartedAt != nil {
		t := rep.StartedAt.Format(time.RFC3339)
		resp.StartTime = &t
	}
	if rep.UpdatedAt != nil {
		t := rep.UpdatedAt.Format(time.RFC3339)
		resp.EndTime = &t
	}
	return resp
}

func batchToResponse(b *domain.Batch) BatchStatusResponse {
	return BatchStatusResponse{
		BatchID:   b.ID,
		Created:   b.Created,
		Mode:      b.Mode,
		Total:     len(b.Items),
		Completed: b.Completed(),
		Items:     b.Items,
	}
}

// writeMappedError translates orchestrator and host errors into the
// client-visible status codes. A 401 from the host becomes a 502: a
// credential failure on our side is not the caller's 401.
func writeMappedError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orchestrator.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, orchestrator.ErrRunNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, githubhost.ErrUnauthorized):
		writeError(w, http.StatusBadGateway, "upstream rejected service credential")
	case errors.Is(err, githubhost.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, githubhost.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, githubhost.ErrConflict):
		writeError(w, http.StatusGone, "run already finished, cannot cancel")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) dispatchHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var req DispatchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		result, err := s.orch.Dispatch(r.Context(), orchestrator.DispatchRequest{
			TargetRepoURL: req.TargetRepoURL,
			CallbackURL:   req.CallbackURL,
			Validators:    req.Validators,
		})
		if err != nil {
			writeMappedError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, DispatchResponse{
			RunID:   result.RunToken,
			Message: "validation workflow dispatched",
		})
	}
}

func (s *Server) statusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		runID := r.URL.Query().Get("runId")
		if runID == "" {
			writeError(w, http.StatusBadRequest, "runId is required")
			return
		}

		var remoteID int64
		if raw := r.URL.Query().Get("githubRunId"); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				writeError(w, http.StatusBadRequest, "githubRunId must be numeric")
				return
			}
			remoteID = id
		}

		rep, err := s.orch.Status(r.Context(), runID, remoteID)
		if err != nil {
			writeMappedError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, statusToResponse(rep))
	}
}

func (s *Server) cancelHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var req CancelRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		result, err := s.orch.Cancel(r.Context(), req.RunID, req.GithubRunID)
		if err != nil {
			writeMappedError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, CancelResponse{
			Success:     true,
			Message:     fmt.Sprintf("cancellation requested for run %d", result.RemoteRunID),
			RunID:       result.RunToken,
			GithubRunID: result.RemoteRunID,
		})
	}
}

func (s *Server) callbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var req CallbackRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		err := s.orch.HandleCallback(r.Context(), orchestrator.Callback{
			RunToken:    req.RunID,
			RemoteRunID: req.GithubRunID,
			Status:      req.Status,
			Result:      req.Result,
		})
		if err != nil {
			writeMappedError(w, err)
			return
		}

		// Session hint so a client that navigated away can resume
		// polling without having retained the token itself.
		http.SetCookie(w, &http.Cookie{
			Name:     "td_runId",
			Value:    req.RunID,
			Path:     "/",
			MaxAge:   3600,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})

		s.Broadcast(SSEEvent{Type: "callback", Data: req})

		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

func (s *Server) batchStartHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var req BatchStartRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		batch, err := s.batches.Start(req.Repos, req.Mode)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		writeJSON(w, http.StatusAccepted, BatchStartResponse{
			BatchID:       batch.ID,
			AcceptedCount: len(batch.Items),
		})
	}
}

func (s *Server) batchStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		batchID := r.URL.Query().Get("batchId")
		if batchID == "" {
			writeError(w, http.StatusBadRequest, "batchId is required")
			return
		}

		batch, ok := s.batches.Status(batchID)
		if !ok {
			writeError(w, http.StatusNotFound, "batch not found")
			return
		}

		writeJSON(w, http.StatusOK, batchToResponse(batch))
	}
}

func (s *Server) pingHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "pong"})
	}
}

func (s *Server) healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
