package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"ai-reply-assistant/internal/domain"
	"ai-reply-assistant/internal/domain/model"
	"ai-reply-assistant/internal/infra/logging"
	redisinfra "ai-reply-assistant/internal/infra/redis"
	"ai-reply-assistant/internal/usecase"
)

const maxBodySize = 1 << 20

type triggerResponse struct {
	JobID     string `json:"job_id"`
	Duplicate bool   `json:"duplicate"`
}

type feedbackRequest struct {
	UserID string `json:"user_id"`
	Action string `json:"action"`
	Text   string `json:"text"`
}

type resendResponse struct {
	Channel  string `json:"channel"`
	Attempts int    `json:"attempts"`
}

// DeadLetter is the admin view of a dead-lettered job, without message text.
type DeadLetter struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	UserID     string    `json:"user_id"`
	ChannelID  string    `json:"channel_id"`
	Kind       string    `json:"kind"`
	Attempts   int       `json:"attempts"`
	LastError  string    `json:"last_error"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

func NewDeadLetter(j *model.GenerationJob) DeadLetter {
	return DeadLetter{
		ID:         j.ID,
		TenantID:   j.TenantID,
		UserID:     j.UserID,
		ChannelID:  j.ChannelID,
		Kind:       string(j.TriggerKind),
		Attempts:   j.Attempts,
		LastError:  j.LastError,
		EnqueuedAt: j.EnqueuedAt,
	}
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if s.opts.IngestKey != "" && r.Header.Get("X-Ingest-Key") != s.opts.IngestKey {
		writeError(w, http.StatusUnauthorized, "invalid ingest key")
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	ev, id, err := usecase.DecodeTrigger(body)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	job, err := s.ingest.BuildJob(ev, id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	if s.limiter != nil {
		ok, err := s.limiter.Allow(r.Context(), redisinfra.TriggerKey(job.TenantID, job.UserID), s.opts.TriggerRate, s.opts.TriggerWindow)
		switch {
		case err != nil:
			// fail open
			logging.With(r.Context(), s.log).Warn().Err(err).Msg("rate limiter unavailable")
		case !ok:
			w.Header().Set("Retry-After", strconv.Itoa(int(s.opts.TriggerWindow.Seconds())))
			writeError(w, http.StatusTooManyRequests, "rate limited")
			return
		}
	}

	stored, created, err := s.ingest.Ingest(r.Context(), ev, job.ID)
	if err != nil {
		if domain.IsValidation(err) {
			s.writeDomainError(w, r, err)
			return
		}
		logging.With(r.Context(), s.log).Error().Err(err).Str("job_id", job.ID).Msg("trigger not accepted")
		writeError(w, http.StatusServiceUnavailable, "queue unavailable")
		return
	}
	writeJSON(w, http.StatusAccepted, triggerResponse{JobID: stored.ID, Duplicate: !created})
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	err := s.operator.RecordFeedback(r.Context(), chi.URLParam(r, "id"), req.UserID, model.AuditAction(req.Action), req.Text)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleVoid(w http.ResponseWriter, r *http.Request) {
	if err := s.operator.Void(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResend(w http.ResponseWriter, r *http.Request) {
	out, err := s.operator.Resend(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resendResponse{Channel: string(out.Channel), Attempts: out.Attempts})
}

func (s *Server) handleDeadLetters(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be a number")
			return
		}
		limit = n
	}
	jobs, err := s.operator.ListDeadLetters(r.Context(), limit)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	items := make([]DeadLetter, 0, len(jobs))
	for _, j := range jobs {
		items = append(items, NewDeadLetter(j))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// writeDomainError maps the domain error taxonomy onto status codes.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var vErr *domain.ValidationError
	var dErr *domain.DeliveryFailure
	switch {
	case errors.As(err, &vErr):
		writeError(w, http.StatusBadRequest, vErr.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrVoided),
		errors.Is(err, domain.ErrQuotaExceeded):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &dErr):
		writeError(w, http.StatusBadGateway, dErr.Error())
	case domain.IsTransient(err):
		writeError(w, http.StatusServiceUnavailable, "temporarily unavailable")
	default:
		logging.With(r.Context(), s.log).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
