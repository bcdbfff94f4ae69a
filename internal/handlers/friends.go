package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/minii/backend/internal/logging"
	"github.com/minii/backend/internal/models"
	"github.com/minii/backend/internal/repositories"
)

// FriendHandler implements the friend request lifecycle and friendship
// management endpoints. Every operation acts on behalf of the authenticated
// caller only.
type FriendHandler struct {
	Friends  FriendStore
	Names    NameStore
	Profiles ProfileProvider
	Sessions SessionManager
	Limiter  RateLimiter
}

// Request handles POST /api/v1/friends/request. The target is addressed by
// display name and resolved through the reservation index.
func (h FriendHandler) Request(w http.ResponseWriter, r *http.Request) {
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

	if !allowRequest(h.Limiter, r, "friend-request") {
		respondJSON(ctx, w, http.StatusTooManyRequests, map[string]string{"error": "too many friend requests, slow down"})
		return
	}

	if h.Friends == nil || h.Names == nil {
		logger.Error("friend dependencies unavailable", "hasFriends", h.Friends != nil, "hasNames", h.Names != nil)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "friend services unavailable"})
		return
	}

	var req sendFriendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid friend request payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	key := nameKey(req.TargetDisplayName)
	if key == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "target display name is required"})
		return
	}

	targetID, err := h.Names.Resolve(ctx, key)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "User with this display name not found"})
			return
		}
		logger.Error("resolve display name", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "unable to resolve display name"})
		return
	}

	if targetID == senderID {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "Cannot send friend request to yourself"})
		return
	}

	rel, err := h.Friends.Relationships(ctx, senderID)
	if err != nil {
		logger.Error("load relationships", "error", err, "userId", senderID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "unable to load relationships"})
		return
	}
	if _, friends := rel.Friends[targetID]; friends {
		respondJSON(ctx, w, http.StatusConflict, map[string]string{"error": "Already friends with this user"})
		return
	}
	if _, pending := rel.Outgoing[targetID]; pending {
		respondJSON(ctx, w, http.StatusConflict, map[string]string{"error": "Friend request already sent"})
		return
	}

	becameFriends, err := h.Friends.CreateRequest(ctx, senderID, targetID)
	if err != nil {
		switch {
		case errors.Is(err, repositories.ErrConflict):
			respondJSON(ctx, w, http.StatusConflict, map[string]string{"error": "Friend request already sent"})
		case errors.Is(err, repositories.ErrNotFound):
			respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "User with this display name not found"})
		default:
			logger.Error("create friend request", "error", err, "senderId", senderID, "targetId", targetID)
			respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to send friend request"})
		}
		return
	}

	if becameFriends {
		logger.Info("mutual requests collapsed to friendship", "senderId", senderID, "targetId", targetID)
		respondJSON(ctx, w, http.StatusOK, successResponse{Success: true, Message: "You are now friends"})
		return
	}

	logger.Info("friend request sent", "senderId", senderID, "targetId", targetID)
	respondJSON(ctx, w, http.StatusOK, successResponse{Success: true, Message: "Friend request sent successfully"})
}

// Accept handles POST /api/v1/friends/accept. Accepting requires a pending
// request from the named requester.
func (h FriendHandler) Accept(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	accepterID, ok := authenticatedUser(w, r, h.Sessions)
	if !ok {
		return
	}

	requesterID, ok := h.decodeCounterpart(w, r, "requesterUid")
	if !ok {
		return
	}

	if err := h.Friends.AcceptRequest(ctx, accepterID, requesterID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "No pending friend request from this user"})
			return
		}
		logger.Error("accept friend request", "error", err, "accepterId", accepterID, "requesterId", requesterID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to accept friend request"})
		return
	}

	logger.Info("friend request accepted", "accepterId", accepterID, "requesterId", requesterID)
	respondJSON(ctx, w, http.StatusOK, successResponse{Success: true, Message: "Friend request accepted"})
}

// Reject handles POST /api/v1/friends/reject. Rejecting a request that no
// longer exists is a no-op.
func (h FriendHandler) Reject(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	rejecterID, ok := authenticatedUser(w, r, h.Sessions)
	if !ok {
		return
	}

	requesterID, ok := h.decodeCounterpart(w, r, "requesterUid")
	if !ok {
		return
	}

	if err := h.Friends.RejectRequest(ctx, rejecterID, requesterID); err != nil {
		logger.Error("reject friend request", "error", err, "rejecterId", rejecterID, "requesterId", requesterID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to reject friend request"})
		return
	}

	logger.Info("friend request rejected", "rejecterId", rejecterID, "requesterId", requesterID)
	respondJSON(ctx, w, http.StatusOK, successResponse{Success: true, Message: "Friend request rejected"})
}

// Remove handles POST /api/v1/friends/remove. Removal is symmetric and
// idempotent.
func (h FriendHandler) Remove(w http.ResponseWriter, r *http.Request) {
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

	friendID, ok := h.decodeCounterpart(w, r, "friendUid")
	if !ok {
		return
	}

	if err := h.Friends.RemoveFriend(ctx, userID, friendID); err != nil {
		logger.Error("remove friend", "error", err, "userId", userID, "friendId", friendID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to remove friend"})
		return
	}

	logger.Info("friendship removed", "userId", userID, "friendId", friendID)
	respondJSON(ctx, w, http.StatusOK, successResponse{Success: true, Message: "Friend removed successfully"})
}

// Details handles POST /api/v1/friends/details. Profile fields are returned
// only for uids related to the caller: friends, incoming-request senders, or
// outgoing-request targets.
func (h FriendHandler) Details(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	callerID, ok := authenticatedUser(w, r, h.Sessions)
	if !ok {
		return
	}

	if h.Friends == nil || h.Profiles == nil {
		logger.Error("friend detail dependencies unavailable", "hasFriends", h.Friends != nil, "hasProfiles", h.Profiles != nil)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "friend services unavailable"})
		return
	}

	var req friendDetailsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid friend details payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	rel, err := h.Friends.Relationships(ctx, callerID)
	if err != nil {
		logger.Error("load relationships", "error", err, "userId", callerID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "unable to load relationships"})
		return
	}

	details := make(map[string]models.FriendDetails)
	for _, uid := range req.FriendUids {
		if !relatedTo(rel, uid) {
			continue
		}

		profile, err := h.Profiles.FindProfile(ctx, uid)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				continue
			}
			logger.Error("load friend profile", "error", err, "friendId", uid)
			respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "unable to load friend details"})
			return
		}

		details[uid] = profile
	}

	respondJSON(ctx, w, http.StatusOK, friendDetailsResponse{FriendDetails: details})
}

func relatedTo(rel models.Relationships, uid string) bool {
	if _, ok := rel.Friends[uid]; ok {
		return true
	}
	if _, ok := rel.Incoming[uid]; ok {
		return true
	}
	_, ok := rel.Outgoing[uid]
	return ok
}

// decodeCounterpart reads the single-uid request body shared by the accept,
// reject, and remove endpoints.
func (h FriendHandler) decodeCounterpart(w http.ResponseWriter, r *http.Request, field string) (string, bool) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Friends == nil {
		logger.Error("friend store unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "friend services unavailable"})
		return "", false
	}

	var body map[string]string
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		logger.Warn("invalid friend payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return "", false
	}

	uid := body[field]
	if uid == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": field + " is required"})
		return "", false
	}

	return uid, true
}

type sendFriendRequest struct {
	TargetDisplayName string `json:"targetDisplayName"`
}

type friendDetailsRequest struct {
	FriendUids []string `json:"friendUids"`
}

type friendDetailsResponse struct {
	FriendDetails map[string]models.FriendDetails `json:"friendDetails"`
}
