package session

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prepdesk/exam-platform/internal/db/repository"
	"github.com/prepdesk/exam-platform/internal/identity"
	"github.com/prepdesk/exam-platform/internal/model"
	httperrors "github.com/prepdesk/exam-platform/pkg/http/errors"
)

// HTTPHandlers exposes the session lifecycle over the submission API
// boundary.
type HTTPHandlers struct {
	svc    *Service
	logger zerolog.Logger
}

func NewHTTPHandlers(svc *Service, logger zerolog.Logger) *HTTPHandlers {
	return &HTTPHandlers{svc: svc, logger: logger}
}

func testIDFromPath(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	return id, err == nil
}

// StartSession handles POST /v1/tests/{id}/session: load or resume.
func (h *HTTPHandlers) StartSession(w http.ResponseWriter, r *http.Request) {
	claims, ok := identity.FromContext(r.Context())
	if !ok {
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeAuthenticationRequired, "Authentication required")
		return
	}
	testID, ok := testIDFromPath(r)
	if !ok {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidTestID, "Invalid test id")
		return
	}

	resp, err := h.svc.Start(r.Context(), testID, claims.UserID)
	if err != nil {
		h.respondStartError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandlers) respondStartError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrAlreadyLocked):
		// Re-attempting a finished test is a redirect to results, not an
		// error dialog.
		httperrors.RespondErrorWithDetails(w, http.StatusConflict, httperrors.ErrCodeAlreadyLocked,
			"Test already submitted", map[string]interface{}{"redirect": "result"})
	case errors.Is(err, ErrWindowNotOpen):
		httperrors.RespondForbidden(w, httperrors.ErrCodeSessionNotStarted, "Scheduled window has not opened yet")
	case errors.Is(err, ErrWindowClosed):
		httperrors.RespondError(w, http.StatusGone, httperrors.ErrCodeSessionExpired, "Scheduled window has closed")
	case errors.Is(err, repository.ErrTestNotFound):
		httperrors.RespondNotFound(w, httperrors.ErrCodeTestNotFound, "Test not found")
	default:
		h.logger.Error().Err(err).Msg("start session failed")
		httperrors.RespondInternalError(w, "Could not start session")
	}
}

type saveAnswersRequest struct {
	Kind           model.Kind            `json:"kind"`
	Answers        []model.AttemptAnswer `json:"answers"`
	TabSwitchCount int                   `json:"tab_switch_count"`
}

// SaveAnswers handles PUT /v1/tests/{id}/session/answers: partial
// progress from the client loop.
func (h *HTTPHandlers) SaveAnswers(w http.ResponseWriter, r *http.Request) {
	claims, ok := identity.FromContext(r.Context())
	if !ok {
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeAuthenticationRequired, "Authentication required")
		return
	}
	testID, ok := testIDFromPath(r)
	if !ok {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidTestID, "Invalid test id")
		return
	}

	var req saveAnswersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Invalid request body")
		return
	}
	if req.Kind == "" {
		httperrors.RespondValidationError(w, httperrors.ErrCodeMissingField, "kind is required", "kind")
		return
	}

	err := h.svc.SaveAnswers(r.Context(), testID, claims.UserID, req.Kind, req.Answers, req.TabSwitchCount)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, map[string]bool{"saved": true})
	case errors.Is(err, ErrAlreadyLocked):
		httperrors.RespondConflict(w, httperrors.ErrCodeAlreadyLocked, "Attempt is already locked")
	case errors.Is(err, ErrSyncFailure):
		httperrors.RespondError(w, http.StatusServiceUnavailable, httperrors.ErrCodeSyncFailed, "Could not persist answers")
	default:
		h.logger.Error().Err(err).Msg("save answers failed")
		httperrors.RespondInternalError(w, "Could not persist answers")
	}
}

// Submit handles POST /v1/tests/{id}/submit: lock + evaluate.
func (h *HTTPHandlers) Submit(w http.ResponseWriter, r *http.Request) {
	claims, ok := identity.FromContext(r.Context())
	if !ok {
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeAuthenticationRequired, "Authentication required")
		return
	}
	testID, ok := testIDFromPath(r)
	if !ok {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidTestID, "Invalid test id")
		return
	}

	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Invalid request body")
		return
	}

	result, err := h.svc.Submit(r.Context(), testID, claims.UserID, req)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, result)
	case errors.Is(err, ErrStaleSubmission):
		httperrors.RespondConflict(w, httperrors.ErrCodeStaleSubmission, "Submission differs from the committed one")
	case errors.Is(err, repository.ErrTestNotFound):
		httperrors.RespondNotFound(w, httperrors.ErrCodeTestNotFound, "Test not found")
	default:
		h.logger.Error().Err(err).Msg("submit failed")
		httperrors.RespondError(w, http.StatusInternalServerError, httperrors.ErrCodeSubmitFailed, "Could not submit attempt")
	}
}

// GetResult handles GET /v1/tests/{id}/result.
func (h *HTTPHandlers) GetResult(w http.ResponseWriter, r *http.Request) {
	claims, ok := identity.FromContext(r.Context())
	if !ok {
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeAuthenticationRequired, "Authentication required")
		return
	}
	testID, ok := testIDFromPath(r)
	if !ok {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidTestID, "Invalid test id")
		return
	}

	result, err := h.svc.Result(r.Context(), testID, claims.UserID)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, result)
	case errors.Is(err, repository.ErrResultNotFound):
		httperrors.RespondNotFound(w, httperrors.ErrCodeResultNotReady, "Result not available yet")
	default:
		h.logger.Error().Err(err).Msg("get result failed")
		httperrors.RespondInternalError(w, "Could not load result")
	}
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
