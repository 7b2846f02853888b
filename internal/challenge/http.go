package challenge

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prepdesk/exam-platform/internal/db/repository"
	"github.com/prepdesk/exam-platform/internal/identity"
	"github.com/prepdesk/exam-platform/internal/model"
	"github.com/prepdesk/exam-platform/internal/selector"
	httperrors "github.com/prepdesk/exam-platform/pkg/http/errors"
)

// HTTPHandlers exposes challenge creation and acceptance.
type HTTPHandlers struct {
	svc    *Service
	logger zerolog.Logger
}

func NewHTTPHandlers(svc *Service, logger zerolog.Logger) *HTTPHandlers {
	return &HTTPHandlers{svc: svc, logger: logger}
}

type createRequest struct {
	OpponentID uuid.UUID          `json:"opponent_id"`
	Title      string             `json:"title"`
	Selections []selector.Request `json:"selections"`
	BudgetSec  int                `json:"budget_seconds"`
}

type createResponse struct {
	Challenge *model.Challenge `json:"challenge"`
	Test      *model.Test      `json:"test"`
}

// Create handles POST /v1/challenges.
func (h *HTTPHandlers) Create(w http.ResponseWriter, r *http.Request) {
	claims, ok := identity.FromContext(r.Context())
	if !ok {
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeAuthenticationRequired, "Authentication required")
		return
	}

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Invalid request body")
		return
	}
	if req.OpponentID == uuid.Nil {
		httperrors.RespondValidationError(w, httperrors.ErrCodeMissingField, "opponent_id is required", "opponent_id")
		return
	}

	c, test, err := h.svc.Create(r.Context(), claims.UserID, CreateRequest{
		OpponentID: req.OpponentID,
		Title:      req.Title,
		Selections: req.Selections,
		BudgetSec:  req.BudgetSec,
	})
	if err != nil {
		h.respondCreateError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, createResponse{Challenge: c, Test: test})
}

func (h *HTTPHandlers) respondCreateError(w http.ResponseWriter, err error) {
	var insufficient *selector.InsufficientError
	switch {
	case errors.Is(err, ErrSelfChallenge):
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Cannot challenge yourself")
	case errors.As(err, &insufficient):
		httperrors.RespondErrorWithDetails(w, http.StatusBadRequest, httperrors.ErrCodeInsufficientQuestions,
			"Not enough questions in the requested category", map[string]interface{}{
				"category":  insufficient.Category,
				"requested": insufficient.Requested,
				"available": insufficient.Available,
				"shortfall": insufficient.Shortfall(),
			})
	case errors.Is(err, selector.ErrEmptySelection):
		httperrors.RespondBadRequest(w, httperrors.ErrCodeEmptySelection, "Selection resolved to zero questions")
	default:
		h.logger.Error().Err(err).Msg("create challenge failed")
		httperrors.RespondError(w, http.StatusInternalServerError, httperrors.ErrCodeChallengeCreationFailed, "Could not create challenge")
	}
}

// Accept handles POST /v1/challenges/{id}/accept.
func (h *HTTPHandlers) Accept(w http.ResponseWriter, r *http.Request) {
	claims, ok := identity.FromContext(r.Context())
	if !ok {
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeAuthenticationRequired, "Authentication required")
		return
	}
	challengeID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Invalid challenge id")
		return
	}

	c, err := h.svc.Accept(r.Context(), challengeID, claims.UserID)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, c)
	case errors.Is(err, repository.ErrChallengeNotFound):
		httperrors.RespondNotFound(w, httperrors.ErrCodeChallengeNotFound, "Challenge not found")
	case errors.Is(err, ErrCannotAccept):
		httperrors.RespondConflict(w, httperrors.ErrCodeChallengeExpired, "Challenge is no longer open for acceptance")
	default:
		h.logger.Error().Err(err).Msg("accept challenge failed")
		httperrors.RespondInternalError(w, "Could not accept challenge")
	}
}

// GetChallenge handles GET /v1/challenges/{id}.
func (h *HTTPHandlers) GetChallenge(w http.ResponseWriter, r *http.Request) {
	claims, ok := identity.FromContext(r.Context())
	if !ok {
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeAuthenticationRequired, "Authentication required")
		return
	}
	challengeID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Invalid challenge id")
		return
	}

	c, err := h.svc.Get(r.Context(), challengeID)
	switch {
	case err == nil:
		if !c.Participant(claims.UserID) {
			httperrors.RespondForbidden(w, httperrors.ErrCodeNotAParticipant, "Not a participant of this challenge")
			return
		}
		respondJSON(w, http.StatusOK, c)
	case errors.Is(err, repository.ErrChallengeNotFound):
		httperrors.RespondNotFound(w, httperrors.ErrCodeChallengeNotFound, "Challenge not found")
	default:
		h.logger.Error().Err(err).Msg("get challenge failed")
		httperrors.RespondInternalError(w, "Could not load challenge")
	}
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
