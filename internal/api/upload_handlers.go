package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/onnwee/mingle/internal/image"
	"github.com/onnwee/mingle/internal/middleware"
	"github.com/onnwee/mingle/internal/upload"
)

// SignUploadRequest represents the request body for POST /uploads/sign.
type SignUploadRequest struct {
	ContentType string `json:"contentType"`
	SizeBytes   int64  `json:"sizeBytes"`
	EventID     *int64 `json:"eventId,omitempty"`
}

// SignUploadResponse represents the response for POST /uploads/sign.
type SignUploadResponse struct {
	URL       string `json:"url"`
	Key       string `json:"key"`
	ExpiresAt string `json:"expiresAt"` // ISO 8601 format
}

// UploadHandlers holds dependencies for upload HTTP handlers.
type UploadHandlers struct {
	uploadService *upload.Service
}

// NewUploadHandlers creates a new UploadHandlers instance.
func NewUploadHandlers(uploadService *upload.Service) *UploadHandlers {
	return &UploadHandlers{
		uploadService: uploadService,
	}
}

// SignUpload handles POST /uploads/sign - generates a pre-signed upload URL
// for an event image.
func (h *UploadHandlers) SignUpload(w http.ResponseWriter, r *http.Request) {
	var req SignUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	if req.ContentType == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "contentType is required")
		return
	}
	if req.SizeBytes <= 0 {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "sizeBytes must be positive")
		return
	}

	signedURL, err := h.uploadService.GenerateSignedURL(r.Context(), upload.SignedURLRequest{
		ContentType: req.ContentType,
		SizeBytes:   req.SizeBytes,
		EventID:     req.EventID,
	})
	if err != nil {
		switch err {
		case upload.ErrUnsupportedType:
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeUnsupportedType)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeUnsupportedType,
				"Unsupported content type. Allowed types: image/jpeg, image/png, image/webp")
		case upload.ErrFileTooLarge:
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "File size exceeds maximum allowed")
		case upload.ErrInvalidEventID:
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Invalid event ID")
		default:
			slog.ErrorContext(r.Context(), "failed to generate signed URL", "error", err)
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
			WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to generate signed URL")
		}
		return
	}

	response := SignUploadResponse{
		URL:       signedURL.URL,
		Key:       signedURL.Key,
		ExpiresAt: signedURL.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"), // ISO 8601
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}

// UploadImageResponse represents the response for POST /uploads/image.
type UploadImageResponse struct {
	Key string `json:"key"`
}

// maxImageFormBytes bounds multipart parsing; the service enforces the real
// per-file limit afterwards.
const maxImageFormBytes = 32 << 20

// UploadImage handles POST /uploads/image - server-side image upload.
// The image passes through the sanitizer, which strips EXIF metadata
// (GPS, camera details) before the bytes are stored.
func (h *UploadHandlers) UploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImageFormBytes)
	if err := r.ParseMultipartForm(maxImageFormBytes); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Expected multipart form with an image field")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "image field is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Failed to read image data")
		return
	}

	// Sniff the content type from the bytes rather than trusting the part header.
	contentType := http.DetectContentType(data)
	if err := upload.ValidateContentType(contentType); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeUnsupportedType)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeUnsupportedType,
			"Unsupported content type. Allowed types: image/jpeg, image/png, image/webp")
		return
	}
	if err := h.uploadService.ValidateFileSize(int64(len(data))); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "File size exceeds maximum allowed")
		return
	}

	var eventID *int64
	if raw := r.FormValue("event_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Invalid event ID")
			return
		}
		eventID = &id
	}

	// Strip EXIF but keep the original encoding; the object key extension
	// is derived from the sniffed content type.
	sanitized, err := image.ProcessWithConfig(bytes.NewReader(data), image.ProcessorConfig{
		Quality:       85,
		StripMetadata: true,
	})
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Image data could not be decoded")
		return
	}

	key, err := h.uploadService.UploadImage(r.Context(), sanitized, contentType, eventID)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to store uploaded image", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to store image")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(UploadImageResponse{Key: key}); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}
