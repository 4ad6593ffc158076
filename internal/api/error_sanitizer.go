package api

import (
	"errors"
	"net/http"

	"github.com/ignite/audience-builder/internal/datanorm"
	"github.com/ignite/audience-builder/internal/pkg/httputil"
	"github.com/ignite/audience-builder/internal/pkg/logger"
	"github.com/ignite/audience-builder/internal/storage"
	"github.com/ignite/audience-builder/internal/upload"
)

// clientErrors maps service sentinels to their status and public code.
// 4xx messages are about the caller's input and are returned as-is.
var clientErrors = []struct {
	err    error
	status int
	code   string
}{
	{upload.ErrSessionNotFound, http.StatusNotFound, "session_not_found"},
	{upload.ErrSessionBusy, http.StatusConflict, "session_busy"},
	{storage.ErrObjectNotFound, http.StatusNotFound, "object_not_found"},
	{upload.ErrObjectStoreDisabled, http.StatusNotImplemented, "object_store_disabled"},
	{upload.ErrFileTooLarge, http.StatusRequestEntityTooLarge, "file_too_large"},
	{upload.ErrFileTooSmall, http.StatusBadRequest, "file_too_small"},
	{upload.ErrUnsupportedFileType, http.StatusBadRequest, "unsupported_file_type"},
	{datanorm.ErrUnsupportedFile, http.StatusBadRequest, "unsupported_file_type"},
	{upload.ErrInvalidMapping, http.StatusBadRequest, "invalid_mapping"},
	{datanorm.ErrCancelled, http.StatusRequestTimeout, "cancelled"},
}

// respondServiceError writes err with the status it maps to. Anything not
// recognized is logged and returned as a generic 500.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var fe *datanorm.FormatError
	if errors.As(err, &fe) {
		httputil.Problem(w, http.StatusUnprocessableEntity, "csv_format", fe.Error(), map[string]any{
			"reason": fe.Reason,
			"line":   fe.Line,
		})
		return
	}
	for _, ce := range clientErrors {
		if errors.Is(err, ce.err) {
			httputil.Problem(w, ce.status, ce.code, err.Error(), nil)
			return
		}
	}
	logger.Error("request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"error", err)
	httputil.Error(w, http.StatusInternalServerError, "internal server error")
}
