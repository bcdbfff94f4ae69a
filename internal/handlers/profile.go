package handlers

import (
	"io"
	"net/http"
	"strings"

	"github.com/minii/backend/internal/avatars"
	"github.com/minii/backend/internal/logging"
)

// maxAvatarBytes bounds profile picture uploads.
const maxAvatarBytes = 1 << 20

// ProfileHandler implements profile picture uploads.
type ProfileHandler struct {
	Avatars  AvatarIngestor
	Statuses AvatarStatusUpdater
	Sessions SessionManager
}

// UploadPicture handles POST /api/v1/profile/picture. The image body is
// accepted immediately and persisted to object storage in the background;
// the account tracks pending/ready/failed status.
func (h ProfileHandler) UploadPicture(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	userID, ok := authenticatedUser(w, r, h.Sessions)
	if !ok {
		return
	}

	if h.Avatars == nil || h.Statuses == nil {
		logger.Error("avatar dependencies unavailable", "hasIngestor", h.Avatars != nil, "hasStatuses", h.Statuses != nil)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "profile services unavailable"})
		return
	}

	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "profile picture must be an image"})
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxAvatarBytes))
	if err != nil {
		logger.Warn("read avatar body", "error", err, "userId", userID)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "unable to read image body"})
		return
	}
	if len(data) == 0 {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "image body is empty"})
		return
	}

	if err := h.Statuses.MarkAvatarPending(ctx, userID); err != nil {
		logger.Error("mark avatar pending", "error", err, "userId", userID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to schedule upload"})
		return
	}

	if err := h.Avatars.Enqueue(ctx, avatars.Job{UserID: userID, ContentType: contentType, Data: data}); err != nil {
		logger.Error("enqueue avatar upload", "error", err, "userId", userID)
		respondJSON(ctx, w, http.StatusServiceUnavailable, map[string]string{"error": "upload queue is full, try again later"})
		return
	}

	respondJSON(ctx, w, http.StatusAccepted, successResponse{Success: true, Message: "Profile picture upload scheduled"})
}
