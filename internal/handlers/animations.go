package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/minii/backend/internal/animations"
	"github.com/minii/backend/internal/logging"
	"github.com/minii/backend/internal/models"
	"github.com/minii/backend/internal/repositories"
)

// AnimationHandler implements the animation exchange endpoints.
type AnimationHandler struct {
	Animations AnimationStore
	Sessions   SessionManager
}

// Send handles POST /api/v1/animations/send. Delivery requires an existing
// friendship with the target; the stored copy is stamped server-side.
func (h AnimationHandler) Send(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	senderID, ok := authenticatedUser(w, r, h.Sessions)
	if !ok {
		return
	}

	if h.Animations == nil {
		logger.Error("animation store unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "animation services unavailable"})
		return
	}

	var req sendAnimationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid send animation payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.TargetUid == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "targetUid is required"})
		return
	}

	if err := animations.Validate(req.AnimationData); err != nil {
		logger.Warn("invalid animation", "error", err, "senderId", senderID)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if err := h.Animations.Send(ctx, senderID, req.TargetUid, req.AnimationData); err != nil {
		if errors.Is(err, repositories.ErrForbidden) {
			respondJSON(ctx, w, http.StatusForbidden, map[string]string{"error": "Can only send animations to friends"})
			return
		}
		logger.Error("send animation", "error", err, "senderId", senderID, "targetId", req.TargetUid)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to send animation"})
		return
	}

	logger.Info("animation sent", "senderId", senderID, "targetId", req.TargetUid)
	respondJSON(ctx, w, http.StatusOK, successResponse{Success: true, Message: "Animation sent successfully"})
}

// SaveMine handles PUT /api/v1/animations/mine: it stores the caller's
// personal animation.
func (h AnimationHandler) SaveMine(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	userID, ok := authenticatedUser(w, r, h.Sessions)
	if !ok {
		return
	}

	if h.Animations == nil {
		logger.Error("animation store unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "animation services unavailable"})
		return
	}

	var req saveAnimationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid save animation payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if err := animations.Validate(req.AnimationData); err != nil {
		logger.Warn("invalid animation", "error", err, "userId", userID)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if err := h.Animations.SavePersonal(ctx, userID, req.AnimationData); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "Current user not found"})
			return
		}
		logger.Error("save personal animation", "error", err, "userId", userID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to save animation"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, successResponse{Success: true, Message: "Animation saved successfully"})
}

// List handles GET /api/v1/animations: the caller's personal animation plus
// animations received from current friends.
func (h AnimationHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	userID, ok := authenticatedUser(w, r, h.Sessions)
	if !ok {
		return
	}

	if h.Animations == nil {
		logger.Error("animation store unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "animation services unavailable"})
		return
	}

	personal, received, err := h.Animations.ForUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "Current user not found"})
			return
		}
		logger.Error("list animations", "error", err, "userId", userID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to load animations"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, allAnimationsResponse{Personal: personal, Friends: received})
}

type sendAnimationRequest struct {
	TargetUid     string           `json:"targetUid"`
	AnimationData models.Animation `json:"animationData"`
}

type saveAnimationRequest struct {
	AnimationData models.Animation `json:"animationData"`
}

type allAnimationsResponse struct {
	Personal *models.Animation                    `json:"personal"`
	Friends  map[string]models.ReceivedAnimation `json:"friends"`
}
