// Package httpapi exposes the REST API over the application services.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	app "github.com/breathtrack/backend/internal/app"
	"github.com/breathtrack/backend/internal/app/domain/achievement"
	"github.com/breathtrack/backend/internal/app/metrics"
	"github.com/breathtrack/backend/internal/app/services/auth"
	"github.com/breathtrack/backend/internal/app/services/sessions"
	"github.com/breathtrack/backend/internal/app/services/users"
	"github.com/breathtrack/backend/internal/app/storage"
	"github.com/breathtrack/backend/internal/middleware"
)

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app *app.Application
}

// NewHandler returns a mux exposing the REST API. authn guards the
// authenticated routes; a nil authn leaves them unguarded, which only tests
// should use.
func NewHandler(application *app.Application, authn *middleware.AuthMiddleware) http.Handler {
	h := &handler{app: application}

	guard := func(fn http.HandlerFunc) http.Handler {
		if authn == nil {
			return fn
		}
		return authn.Handler(fn)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.healthz)

	mux.HandleFunc("/api/v1/auth/register", h.register)
	mux.HandleFunc("/api/v1/auth/login", h.login)
	mux.HandleFunc("/api/v1/auth/refresh", h.refresh)
	mux.Handle("/api/v1/auth/logout", guard(h.logout))

	mux.Handle("/api/v1/users/me", guard(h.me))
	mux.Handle("/api/v1/users/me/", guard(h.meResources))
	mux.Handle("/api/v1/users/search", guard(h.searchUsers))

	mux.Handle("/api/v1/sessions", guard(h.sessionCollection))
	mux.Handle("/api/v1/sessions/", guard(h.sessionResources))

	mux.Handle("/api/v1/achievements", guard(h.achievementCollection))
	mux.Handle("/api/v1/achievements/", guard(h.achievementResources))

	mux.HandleFunc("/api/v1/leaderboards/", h.leaderboards)

	return mux
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- auth -------------------------------------------------------------------

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		Email    string `json:"email"`
		Username string `json:"username"`
		Password string `json:"password"`
		FullName string `json:"full_name"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	created, err := h.app.Auth.Register(r.Context(), payload.Email, payload.Username, payload.Password, payload.FullName)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	pair, u, err := h.app.Auth.Login(r.Context(), payload.Email, payload.Password)
	if err != nil {
		writeError(w, authStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tokens": pair, "user": u})
}

func (h *handler) refresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	pair, err := h.app.Auth.Refresh(r.Context(), payload.RefreshToken)
	if err != nil {
		writeError(w, authStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := h.app.Auth.Logout(r.Context(), middleware.UserID(r.Context())); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- users ------------------------------------------------------------------

func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	switch r.Method {
	case http.MethodGet:
		u, err := h.app.Users.GetProfile(r.Context(), userID)
		if err != nil {
			writeError(w, storeStatus(err), err)
			return
		}
		writeJSON(w, http.StatusOK, u)

	case http.MethodPatch:
		var payload users.ProfileUpdate
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		updated, err := h.app.Users.UpdateProfile(r.Context(), userID, payload)
		if err != nil {
			writeError(w, storeStatus(err), err)
			return
		}
		writeJSON(w, http.StatusOK, updated)

	case http.MethodDelete:
		if err := h.app.Users.Delete(r.Context(), userID); err != nil {
			writeError(w, storeStatus(err), err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) meResources(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	resource := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/users/me"), "/")

	switch resource {
	case "password":
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var payload struct {
			CurrentPassword string `json:"current_password"`
			NewPassword     string `json:"new_password"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := h.app.Users.UpdatePassword(r.Context(), userID, payload.CurrentPassword, payload.NewPassword); err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, users.ErrWrongPassword) {
				status = http.StatusForbidden
			}
			writeError(w, status, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case "avatar":
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var payload struct {
			AvatarURL string `json:"avatar_url"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		updated, err := h.app.Users.UpdateAvatar(r.Context(), userID, payload.AvatarURL)
		if err != nil {
			writeError(w, storeStatus(err), err)
			return
		}
		writeJSON(w, http.StatusOK, updated)

	case "verify":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if err := h.app.Users.VerifyEmail(r.Context(), userID); err != nil {
			writeError(w, storeStatus(err), err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case "deactivate", "activate":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		toggle := h.app.Users.Deactivate
		if resource == "activate" {
			toggle = h.app.Users.Activate
		}
		if err := toggle(r.Context(), userID); err != nil {
			writeError(w, storeStatus(err), err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *handler) searchUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	found, err := h.app.Users.Search(r.Context(), r.URL.Query().Get("q"), queryInt(r, "limit", 20))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, found)
}

// --- sessions ---------------------------------------------------------------

func (h *handler) sessionCollection(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	switch r.Method {
	case http.MethodPost:
		var payload sessions.CreateInput
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		result, err := h.app.Sessions.Create(r.Context(), userID, payload)
		if err != nil {
			writeError(w, storeStatus(err), err)
			return
		}
		metrics.RecordSession()
		for _, unlocked := range result.NewAchievements {
			metrics.RecordUnlock(string(unlocked.Achievement.Rarity))
		}
		writeJSON(w, http.StatusCreated, result)

	case http.MethodGet:
		h.listSessions(w, r, userID)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) listSessions(w http.ResponseWriter, r *http.Request, userID string) {
	query := r.URL.Query()

	// Date-range and technique filters bypass pagination.
	if query.Get("from") != "" || query.Get("to") != "" {
		from, err := parseDate(query.Get("from"), time.Time{})
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		to, err := parseDate(query.Get("to"), time.Now().UTC())
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		recs, err := h.app.Sessions.ByDateRange(r.Context(), userID, from, to)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sessions": emptyIfNil(recs)})
		return
	}
	if technique := query.Get("technique"); technique != "" {
		recs, err := h.app.Sessions.ByTechnique(r.Context(), userID, technique)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sessions": emptyIfNil(recs)})
		return
	}

	opts := storage.ListOptions{
		Offset:     queryInt(r, "offset", 0),
		Limit:      queryInt(r, "limit", 20),
		OrderBy:    query.Get("order_by"),
		Descending: query.Get("order") != "asc",
	}
	recs, total, err := h.app.Sessions.List(r.Context(), userID, opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": emptyIfNil(recs), "total": total})
}

func (h *handler) sessionResources(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/sessions"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch parts[0] {
	case "summary":
		h.withGet(w, r, func() (any, error) {
			return h.app.Sessions.GetSummary(r.Context(), userID)
		})
	case "progress":
		if len(parts) > 1 && parts[1] == "weekly" {
			h.withGet(w, r, func() (any, error) {
				return h.app.Sessions.GetWeeklyProgress(r.Context(), userID, queryInt(r, "weeks", 12))
			})
			return
		}
		h.withGet(w, r, func() (any, error) {
			return h.app.Sessions.GetProgress(r.Context(), userID, queryInt(r, "days", 30))
		})
	case "personal-bests":
		h.withGet(w, r, func() (any, error) {
			return h.app.Sessions.GetPersonalBests(r.Context(), userID)
		})
	case "mood":
		h.withGet(w, r, func() (any, error) {
			return h.app.Sessions.GetMoodCorrelation(r.Context(), userID)
		})
	default:
		h.sessionByID(w, r, userID, parts[0])
	}
}

func (h *handler) sessionByID(w http.ResponseWriter, r *http.Request, userID, sessionID string) {
	switch r.Method {
	case http.MethodGet:
		rec, err := h.app.Sessions.Get(r.Context(), userID, sessionID)
		if err != nil {
			writeError(w, storeStatus(err), err)
			return
		}
		writeJSON(w, http.StatusOK, rec)

	case http.MethodPatch:
		var payload sessions.UpdateInput
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		updated, err := h.app.Sessions.UpdateAnnotations(r.Context(), userID, sessionID, payload)
		if err != nil {
			writeError(w, storeStatus(err), err)
			return
		}
		writeJSON(w, http.StatusOK, updated)

	case http.MethodDelete:
		if err := h.app.Sessions.Delete(r.Context(), userID, sessionID); err != nil {
			writeError(w, storeStatus(err), err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// --- achievements -----------------------------------------------------------

func (h *handler) achievementCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		filter := storage.DefinitionFilter{
			ActiveOnly: r.URL.Query().Get("include_inactive") != "true",
			Category:   achievement.Category(r.URL.Query().Get("category")),
			Rarity:     achievement.Rarity(r.URL.Query().Get("rarity")),
		}
		defs, err := h.app.Achievements.Catalog(r.Context(), filter)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"achievements": emptyIfNil(defs)})

	case http.MethodPost:
		var payload achievement.Definition
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		created, err := h.app.Achievements.CreateDefinition(r.Context(), payload)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) achievementResources(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/achievements"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch parts[0] {
	case "me":
		h.withGet(w, r, func() (any, error) {
			return h.app.Achievements.ForUser(r.Context(), userID)
		})
		return
	case "stats":
		h.withGet(w, r, func() (any, error) {
			return h.app.Achievements.Stats(r.Context())
		})
		return
	case "check":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		awarded, err := h.app.Achievements.CheckAndUnlock(r.Context(), userID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		for _, unlocked := range awarded {
			metrics.RecordUnlock(string(unlocked.Achievement.Rarity))
		}
		writeJSON(w, http.StatusOK, map[string]any{"new_achievements": awarded})
		return
	}

	achievementID := parts[0]
	if len(parts) == 2 {
		switch parts[1] {
		case "activate", "deactivate":
			if r.Method != http.MethodPost {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if err := h.app.Achievements.SetActive(r.Context(), achievementID, parts[1] == "activate"); err != nil {
				writeError(w, storeStatus(err), err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		case "revoke":
			if r.Method != http.MethodPost {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if err := h.app.Achievements.Revoke(r.Context(), userID, achievementID); err != nil {
				writeError(w, storeStatus(err), err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
		return
	}

	switch r.Method {
	case http.MethodGet:
		def, err := h.app.Achievements.Get(r.Context(), achievementID)
		if err != nil {
			writeError(w, storeStatus(err), err)
			return
		}
		writeJSON(w, http.StatusOK, def)

	case http.MethodPut:
		var payload achievement.Definition
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		payload.ID = achievementID
		updated, err := h.app.Achievements.UpdateDefinition(r.Context(), payload)
		if err != nil {
			writeError(w, storeStatus(err), err)
			return
		}
		writeJSON(w, http.StatusOK, updated)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// --- leaderboards -----------------------------------------------------------

func (h *handler) leaderboards(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	board := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/leaderboards"), "/")
	limit := queryInt(r, "limit", 10)

	var (
		entries any
		err     error
	)
	switch board {
	case "retention":
		entries, err = h.app.Users.TopByRetention(r.Context(), limit)
	case "streak":
		entries, err = h.app.Users.TopByStreak(r.Context(), limit)
	case "sessions":
		entries, err = h.app.Users.MostActive(r.Context(), limit)
	case "points":
		entries, err = h.app.Users.TopByPoints(r.Context(), limit)
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"leaderboard": entries})
}

// --- helpers ----------------------------------------------------------------

func (h *handler) withGet(w http.ResponseWriter, r *http.Request, fetch func() (any, error)) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	data, err := fetch()
	if err != nil {
		writeError(w, storeStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func authStatus(err error) int {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrInactiveAccount):
		return http.StatusForbidden
	default:
		return http.StatusBadRequest
	}
}

func storeStatus(err error) int {
	if errors.Is(err, storage.ErrNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, storage.ErrDuplicate) {
		return http.StatusConflict
	}
	return http.StatusBadRequest
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func parseDate(raw string, fallback time.Time) (time.Time, error) {
	if raw == "" {
		return fallback, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", raw)
	}
	return t, nil
}

func emptyIfNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
