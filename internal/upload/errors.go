package upload

import "errors"

// Sentinel errors for the upload service layer.
var (
	ErrSessionNotFound     = errors.New("upload session not found")
	ErrSessionBusy         = errors.New("upload session is already being confirmed")
	ErrUnsupportedFileType = errors.New("unsupported file type, expected .csv")
	ErrFileTooLarge        = errors.New("file exceeds the maximum upload size")
	ErrFileTooSmall        = errors.New("file is below the minimum upload size")
	ErrInvalidMapping      = errors.New("mapping names an unknown field")
	ErrObjectStoreDisabled = errors.New("object storage is not configured")
)
