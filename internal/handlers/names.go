package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/minii/backend/internal/logging"
	"github.com/minii/backend/internal/repositories"
)

// Display name length bounds, applied after trimming.
const (
	minDisplayNameLength = 2
	maxDisplayNameLength = 20
)

// NameHandler implements the display-name reservation endpoints.
type NameHandler struct {
	Users        UserStore
	Names        NameStore
	Sessions     SessionManager
	ProfileCache ProfileInvalidator
}

// Check handles POST /api/v1/names/check requests. The answer is advisory:
// a later claim re-validates against the index.
func (h NameHandler) Check(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if _, ok := authenticatedUser(w, r, h.Sessions); !ok {
		return
	}

	if h.Names == nil {
		logger.Error("name store unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "name services unavailable"})
		return
	}

	var req displayNameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid name check payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	available, err := h.Names.CheckAvailable(ctx, nameKey(req.DisplayName))
	if err != nil {
		logger.Error("check display name", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "error checking display name availability"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]bool{"available": available})
}

// Set handles POST /api/v1/names requests: it claims the display name for the
// caller and reserves it in the index. A name can be claimed once; re-sending
// the name the caller already owns succeeds without changes.
func (h NameHandler) Set(w http.ResponseWriter, r *http.Request) {
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

	if h.Users == nil || h.Names == nil {
		logger.Error("name dependencies unavailable", "hasUsers", h.Users != nil, "hasNames", h.Names != nil)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "name services unavailable"})
		return
	}

	var req displayNameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid set name payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	// Length bounds count characters, not bytes, so multibyte names measure
	// the same as ASCII ones.
	cleanName := strings.TrimSpace(req.DisplayName)
	if utf8.RuneCountInString(cleanName) < minDisplayNameLength {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "display name must be at least 2 characters long"})
		return
	}
	if utf8.RuneCountInString(cleanName) > maxDisplayNameLength {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "display name must be 20 characters or less"})
		return
	}

	user, err := h.Users.FindByID(ctx, userID)
	if err != nil {
		logger.Error("set name user lookup failed", "error", err, "userId", userID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "unable to load account"})
		return
	}

	if user.DisplayNameSet {
		if strings.EqualFold(user.DisplayName, cleanName) {
			respondJSON(ctx, w, http.StatusOK, successResponse{Success: true, Message: "Display name set successfully"})
			return
		}
		respondJSON(ctx, w, http.StatusConflict, map[string]string{"error": "display name is already set and cannot be changed"})
		return
	}

	if err := h.Names.Claim(ctx, userID, cleanName, nameKey(cleanName)); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			logger.Warn("display name taken", "userId", userID, "displayName", cleanName)
			respondJSON(ctx, w, http.StatusConflict, map[string]string{"error": "Display name is already taken"})
			return
		}
		logger.Error("claim display name", "error", err, "userId", userID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to set display name"})
		return
	}

	if h.ProfileCache != nil {
		h.ProfileCache.Invalidate(userID)
	}

	logger.Info("display name set", "userId", userID, "displayName", cleanName)
	respondJSON(ctx, w, http.StatusOK, successResponse{Success: true, Message: "Display name set successfully"})
}

// nameKey lowercases a display name into its reservation index key.
func nameKey(displayName string) string {
	return strings.ToLower(strings.TrimSpace(displayName))
}

type displayNameRequest struct {
	DisplayName string `json:"displayName"`
}
