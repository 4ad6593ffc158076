package api

import (
	"github.com/ignite/audience-builder/internal/upload"
)

// jsonOverhead is allowed on top of the upload limit for JSON bodies that
// carry CSV text plus request fields.
const jsonOverhead = 64 << 10

// Handlers contains all HTTP handlers.
type Handlers struct {
	uploads  *upload.Service
	health   *HealthChecker
	maxBytes int64
}

// NewHandlers creates a new Handlers instance. maxBytes bounds request
// bodies and should match the upload service limit.
func NewHandlers(uploads *upload.Service, health *HealthChecker, maxBytes int64) *Handlers {
	if health == nil {
		health = NewHealthChecker(nil, nil)
	}
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	return &Handlers{uploads: uploads, health: health, maxBytes: maxBytes}
}
