package httpapi

import (
	"net/http"
	"time"

	"meetbook.org/internal/auth"
	"meetbook.org/internal/obs"
)

// SessionCookie is the cookie carrying the signed session handle.
const SessionCookie = "meetbook_session"

// requireSession resolves the session cookie to a user id, or redirects to
// /login. The resolved ids travel in the request context.
func (a *API) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := a.sessionFromRequest(r)
		if !ok {
			redirect(w, r, "/login")
			return
		}
		userID, err := a.auth.Authorize(r.Context(), sessionID)
		if err != nil {
			// The bare sentinel means unknown or expired; anything else wraps a store failure.
			if err != auth.ErrUnauthenticated { //nolint:errorlint
				obs.Logger().WarnContext(r.Context(), "session lookup failed", "error", err)
			}
			redirect(w, r, "/login")
			return
		}
		ctx := auth.ContextWithUser(r.Context(), userID)
		ctx = auth.ContextWithSession(ctx, sessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// sessionFromRequest decodes the cookie without consulting the session table.
func (a *API) sessionFromRequest(r *http.Request) (string, bool) {
	c, err := r.Cookie(SessionCookie)
	if err != nil || c.Value == "" {
		return "", false
	}
	sessionID, err := a.cookies.Decode(c.Value)
	if err != nil {
		return "", false
	}
	return sessionID, true
}

func (a *API) setSessionCookie(w http.ResponseWriter, sess auth.Session) error {
	token, err := a.cookies.Encode(sess)
	if err != nil {
		return err
	}
	maxAge := int(time.Until(sess.ExpiresAt).Seconds())
	if ttl := a.auth.SessionTTL(); maxAge <= 0 || maxAge > int(ttl.Seconds()) {
		maxAge = int(ttl.Seconds())
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   a.cookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
	return nil
}

func (a *API) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.cookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}
