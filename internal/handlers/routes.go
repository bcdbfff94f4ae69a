package handlers

import "net/http"

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{}
	auth := AuthHandler{Users: deps.Users, Sessions: deps.Sessions}
	names := NameHandler{Users: deps.Users, Names: deps.Names, Sessions: deps.Sessions, ProfileCache: deps.ProfileCache}
	friends := FriendHandler{
		Friends:  deps.Friends,
		Names:    deps.Names,
		Profiles: deps.Profiles,
		Sessions: deps.Sessions,
		Limiter:  deps.FriendRequestLimiter,
	}
	animations := AnimationHandler{Animations: deps.Animations, Sessions: deps.Sessions}
	profile := ProfileHandler{Avatars: deps.Avatars, Statuses: deps.AvatarStatuses, Sessions: deps.Sessions}

	mux.HandleFunc("/healthz", health.Handle)
	mux.HandleFunc("/api/v1/auth/login", auth.Login)
	mux.HandleFunc("/api/v1/auth/signup", auth.SignUp)
	mux.HandleFunc("/api/v1/auth/refresh", auth.Refresh)
	mux.HandleFunc("/api/v1/auth/password-reset", auth.RequestPasswordReset)
	mux.HandleFunc("/api/v1/auth/account", auth.DeleteAccount)
	mux.HandleFunc("/api/v1/names/check", names.Check)
	mux.HandleFunc("/api/v1/names", names.Set)
	mux.HandleFunc("/api/v1/friends/request", friends.Request)
	mux.HandleFunc("/api/v1/friends/accept", friends.Accept)
	mux.HandleFunc("/api/v1/friends/reject", friends.Reject)
	mux.HandleFunc("/api/v1/friends/remove", friends.Remove)
	mux.HandleFunc("/api/v1/friends/details", friends.Details)
	mux.HandleFunc("/api/v1/animations", animations.List)
	mux.HandleFunc("/api/v1/animations/mine", animations.SaveMine)
	mux.HandleFunc("/api/v1/animations/send", animations.Send)
	mux.HandleFunc("/api/v1/profile/picture", profile.UploadPicture)
}

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Users                UserStore
	Sessions             SessionManager
	Names                NameStore
	Friends              FriendStore
	Animations           AnimationStore
	Profiles             ProfileProvider
	ProfileCache         ProfileInvalidator
	Avatars              AvatarIngestor
	AvatarStatuses       AvatarStatusUpdater
	FriendRequestLimiter RateLimiter
}
