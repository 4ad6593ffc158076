package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/audience-builder/internal/datanorm"
	"github.com/ignite/audience-builder/internal/pkg/httputil"
	"github.com/ignite/audience-builder/internal/upload"
)

// =============================================================================
// AUDIENCE UPLOAD HANDLERS
// =============================================================================
// Two-step flow: POST a CSV to get a session with validation results and a
// suggested column mapping, then confirm the session (optionally editing the
// mapping) to build the audience profile. POST /profile does both at once.

// FieldInfo describes one mappable customer field.
type FieldInfo struct {
	Key     datanorm.FieldKey `json:"key"`
	Pattern string            `json:"pattern"`
}

// UploadRequest is the JSON form of an upload. Multipart requests carry the
// same fields as form values next to the "file" part.
type UploadRequest struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
	upload.ConfirmRequest
}

// ObjectRequest names an object in the upload bucket.
type ObjectRequest struct {
	Key string `json:"key"`
}

// RegisterAudienceRoutes registers the upload routes on r.
func (h *Handlers) RegisterAudienceRoutes(r chi.Router) {
	r.Route("/audiences", func(r chi.Router) {
		r.Get("/fields", h.HandleGetFields)
		r.Post("/profile", h.HandleProfile)

		r.Route("/uploads", func(r chi.Router) {
			r.Post("/", h.HandleCreateUpload)
			r.Get("/s3", h.HandleListObjects)
			r.Post("/s3", h.HandleAnalyzeObject)
			r.Get("/{id}", h.HandleGetUpload)
			r.Post("/{id}/confirm", h.HandleConfirmUpload)
			r.Delete("/{id}", h.HandleDiscardUpload)
		})
	})
}

// HandleGetFields lists the fields columns can be mapped to.
// GET /api/audiences/fields
func (h *Handlers) HandleGetFields(w http.ResponseWriter, r *http.Request) {
	fields := make([]FieldInfo, 0, len(datanorm.FieldPatterns))
	for _, fp := range datanorm.FieldPatterns {
		fields = append(fields, FieldInfo{Key: fp.Field, Pattern: fp.Pattern.String()})
	}
	httputil.OK(w, map[string]any{
		"fields":    fields,
		"unmapped":  datanorm.NoColumn,
		"max_bytes": h.maxBytes,
	})
}

// HandleCreateUpload analyzes a CSV and opens an upload session.
// POST /api/audiences/uploads
// Accepts: multipart/form-data with "file" field OR application/json with
// "filename" and "content" fields.
func (h *Handlers) HandleCreateUpload(w http.ResponseWriter, r *http.Request) {
	req, body, size, ok := h.readUpload(w, r)
	if !ok {
		return
	}
	defer body.Close()

	summary, err := h.uploads.Analyze(r.Context(), req.Filename, body, size)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	httputil.Created(w, summary)
}

// HandleGetUpload returns the preview of a pending session.
// GET /api/audiences/uploads/{id}
func (h *Handlers) HandleGetUpload(w http.ResponseWriter, r *http.Request) {
	summary, err := h.uploads.Preview(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	httputil.OK(w, summary)
}

// HandleConfirmUpload maps the session's rows and builds the profile.
// POST /api/audiences/uploads/{id}/confirm
func (h *Handlers) HandleConfirmUpload(w http.ResponseWriter, r *http.Request) {
	var req upload.ConfirmRequest
	if r.ContentLength != 0 {
		if !httputil.Decode(w, r, &req, jsonOverhead) {
			return
		}
	}
	res, err := h.uploads.Confirm(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	httputil.OK(w, res)
}

// HandleDiscardUpload drops a pending session.
// DELETE /api/audiences/uploads/{id}
func (h *Handlers) HandleDiscardUpload(w http.ResponseWriter, r *http.Request) {
	if err := h.uploads.Discard(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, r, err)
		return
	}
	httputil.NoContent(w)
}

// HandleListObjects lists the CSV files waiting in the upload bucket.
// GET /api/audiences/uploads/s3
func (h *Handlers) HandleListObjects(w http.ResponseWriter, r *http.Request) {
	objects, err := h.uploads.ListObjects(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	httputil.OK(w, map[string]any{"objects": objects})
}

// HandleAnalyzeObject opens a session from a CSV in the upload bucket.
// POST /api/audiences/uploads/s3
func (h *Handlers) HandleAnalyzeObject(w http.ResponseWriter, r *http.Request) {
	var req ObjectRequest
	if !httputil.Decode(w, r, &req, jsonOverhead) {
		return
	}
	if strings.TrimSpace(req.Key) == "" {
		httputil.BadRequest(w, "key is required")
		return
	}
	summary, err := h.uploads.AnalyzeObject(r.Context(), req.Key)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	httputil.Created(w, summary)
}

// HandleProfile runs the whole pipeline on one request without a session.
// POST /api/audiences/profile
func (h *Handlers) HandleProfile(w http.ResponseWriter, r *http.Request) {
	req, body, size, ok := h.readUpload(w, r)
	if !ok {
		return
	}
	defer body.Close()

	res, err := h.uploads.Profile(r.Context(), req.Filename, body, size, req.ConfirmRequest)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	httputil.OK(w, res)
}

// readUpload extracts the CSV and request fields from a JSON or multipart
// request. On failure it writes the response and returns ok=false.
func (h *Handlers) readUpload(w http.ResponseWriter, r *http.Request) (UploadRequest, io.ReadCloser, int64, bool) {
	var req UploadRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if !httputil.Decode(w, r, &req, 2*h.maxBytes+jsonOverhead) {
			return req, nil, 0, false
		}
		if req.Content == "" {
			httputil.BadRequest(w, "content is required")
			return req, nil, 0, false
		}
		if req.Filename == "" {
			req.Filename = "upload.csv"
		}
		return req, io.NopCloser(strings.NewReader(req.Content)), int64(len(req.Content)), true
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+jsonOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondServiceError(w, r, upload.ErrFileTooLarge)
			return req, nil, 0, false
		}
		httputil.BadRequest(w, "expected multipart/form-data with a file field or a JSON body")
		return req, nil, 0, false
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.BadRequest(w, "file is required")
		return req, nil, 0, false
	}

	req.Filename = header.Filename
	req.AudienceName = r.FormValue("audience_name")
	req.IncludeCustomers = r.FormValue("include_customers") == "true"
	if raw := r.FormValue("mapping"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Mapping); err != nil {
			file.Close()
			httputil.BadRequest(w, "mapping must be a JSON object of field to column")
			return req, nil, 0, false
		}
	}
	return req, file, header.Size, true
}
