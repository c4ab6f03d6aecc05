package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/text/language"

	"github.com/homequote/api/internal/platform/auth"
	"github.com/homequote/api/internal/platform/httpx"
)

const maxRequestBodySize = 64 * 1024

var (
	errBodyTooLarge = errors.New("request body too large")
	errEmptyBody    = errors.New("request body is required")
)

var defaultLocale = language.English

// MeHandlers exposes the authenticated caller's identity.
type MeHandlers struct {
	authn *auth.Authenticator
}

// NewMeHandlers constructs handlers enforcing Firebase authentication.
func NewMeHandlers(authn *auth.Authenticator) *MeHandlers {
	return &MeHandlers{authn: authn}
}

// Routes wires the /me endpoints onto the provided router.
func (h *MeHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.getIdentity)
}

type mePayload struct {
	UID    string `json:"uid"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role"`
	Locale string `json:"locale"`
}

func (h *MeHandlers) getIdentity(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	role := identity.PrimaryRole()
	if role == "" {
		role = auth.RoleUser
	}
	writeJSONResponse(w, http.StatusOK, mePayload{
		UID:    identity.UID,
		Email:  identity.Email,
		Role:   role,
		Locale: resolveLocale(r.Header.Get("Accept-Language"), identity.Locale).String(),
	})
}

// resolveLocale prefers the highest weighted Accept-Language tag, then the token locale claim.
func resolveLocale(acceptLanguage, claimed string) language.Tag {
	if tags, _, err := language.ParseAcceptLanguage(acceptLanguage); err == nil {
		for _, tag := range tags {
			if tag != language.Und {
				return tag
			}
		}
	}
	if claimed = strings.TrimSpace(claimed); claimed != "" {
		if tag, err := language.Parse(strings.ReplaceAll(claimed, "_", "-")); err == nil {
			return tag
		}
	}
	return defaultLocale
}

func requireIdentity(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = maxRequestBodySize
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, errBodyTooLarge) {
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		return
	}
	httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
