package api

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"mailroom/internal/csvparser"
	"mailroom/internal/db"
	"mailroom/internal/email"
	"mailroom/internal/models"
	"mailroom/internal/queue"
	"mailroom/internal/template"
)

// Handler exposes the enqueue contract, the tracking pixel and job
// inspection over HTTP.
type Handler struct {
	Enqueuer *queue.Enqueuer
	Tracker  *queue.Tracker
	Store    db.JobStore
	// Sandbox is non-nil only when the sandbox transport is active.
	Sandbox *email.Sandbox
	Log     *zap.Logger
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/send", h.Send)
	r.Post("/send/bulk", h.SendBulk)
	r.Get("/track/{trackingID}", h.Track)
	r.Get("/jobs/{jobID}", h.GetJob)
	r.Get("/sandbox/messages", h.SandboxMessages)

	return r
}

type sendRequest struct {
	To           string                 `json:"to"`
	From         string                 `json:"from,omitempty"`
	TemplateID   string                 `json:"templateId"`
	TemplateData map[string]interface{} `json:"templateData"`
	Priority     int                    `json:"priority,omitempty"`
	ScheduledFor *time.Time             `json:"scheduledFor,omitempty"`
}

func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	eq := queue.EnqueueRequest{
		To:           req.To,
		From:         req.From,
		TemplateID:   req.TemplateID,
		TemplateData: req.TemplateData,
		Priority:     req.Priority,
	}
	if req.ScheduledFor != nil {
		eq.ScheduledFor = *req.ScheduledFor
	}

	job, err := h.Enqueuer.Enqueue(r.Context(), eq)
	if err != nil {
		h.writeEnqueueError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, job)
}

// SendBulk enqueues one job per row of an uploaded CSV. The template id
// comes from the templateId query parameter; CSV columns other than Email
// become template data.
func (h *Handler) SendBulk(w http.ResponseWriter, r *http.Request) {
	templateID := r.URL.Query().Get("templateId")
	if templateID == "" {
		writeError(w, http.StatusBadRequest, "templateId query parameter is required")
		return
	}

	priority := 0
	if raw := r.URL.Query().Get("priority"); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "priority must be an integer")
			return
		}
		priority = p
	}

	body, err := h.bulkBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer body.Close()

	recipients, err := csvparser.ParseRecipients(body, 1000)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	jobIDs := make([]string, 0, len(recipients))
	for _, rec := range recipients {
		job, err := h.Enqueuer.Enqueue(r.Context(), queue.EnqueueRequest{
			To:           rec.Email,
			TemplateID:   templateID,
			TemplateData: rec.Data,
			Priority:     priority,
		})
		if err != nil {
			h.writeEnqueueError(w, err)
			return
		}
		jobIDs = append(jobIDs, job.ID)
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"enqueued": len(jobIDs),
		"jobIds":   jobIDs,
	})
}

func (h *Handler) bulkBody(r *http.Request) (io.ReadCloser, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, errors.New("multipart upload must contain a 'file' part")
		}
		return file, nil
	}
	return r.Body, nil
}

// trackingPixel is a 1x1 transparent GIF.
var trackingPixel = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

// Track serves the tracking pixel. It always answers 200 with the pixel,
// even for unknown tokens, so valid tracking ids cannot be probed.
func (h *Handler) Track(w http.ResponseWriter, r *http.Request) {
	trackingID := chi.URLParam(r, "trackingID")

	h.Tracker.RecordOpen(r.Context(), trackingID, models.OpenMeta{
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	})

	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	w.WriteHeader(http.StatusOK)
	w.Write(trackingPixel)
}

func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.Store.GetByID(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		h.Log.Error("job lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, job)
}

// SandboxMessages exposes the sandbox transport's retained messages. Only
// available in development; production deployments answer 404.
func (h *Handler) SandboxMessages(w http.ResponseWriter, r *http.Request) {
	if h.Sandbox == nil {
		writeError(w, http.StatusNotFound, "sandbox transport not active")
		return
	}
	writeJSON(w, http.StatusOK, h.Sandbox.Messages())
}

func (h *Handler) writeEnqueueError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, template.ErrUnknownTemplate),
		errors.Is(err, queue.ErrMissingRecipient):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.Log.Error("enqueue failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to enqueue email")
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
