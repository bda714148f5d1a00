package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"meetbook.org/internal/audit"
	"meetbook.org/internal/auth"
	"meetbook.org/internal/obs"
)

const (
	msgInvalidCredentials = "Invalid credentials"
	msgUsernameTaken      = "Username already exists"
	msgLogoutFailed       = "Failed to log out"
	msgInvalidSignup      = "Username and password are required"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (a *API) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeBody(r, &req, func(get func(string) string) {
		req.Username, req.Password = get("username"), get("password")
	}); err != nil {
		writeResult(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := a.auth.Register(r.Context(), req.Username, req.Password)
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrDuplicateUsername):
		obs.RecordAuth("signup", "duplicate")
		writeResult(w, http.StatusConflict, msgUsernameTaken)
		return
	case errors.Is(err, auth.ErrInvalidInput):
		obs.RecordAuth("signup", "invalid")
		writeResult(w, http.StatusBadRequest, msgInvalidSignup)
		return
	default:
		obs.RecordAuth("signup", "error")
		obs.Logger().ErrorContext(r.Context(), "signup failed", "error", err)
		writeResult(w, http.StatusInternalServerError, "Signup failed")
		return
	}

	obs.RecordAuth("signup", "ok")
	_ = audit.LogEvent(auth.ContextWithUser(r.Context(), user.ID), "auth.signup", map[string]any{
		"username": user.Username,
	})
	writeResult(w, http.StatusOK, "")
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeBody(r, &req, func(get func(string) string) {
		req.Username, req.Password = get("username"), get("password")
	}); err != nil {
		writeResult(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, err := a.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			if err != auth.ErrInvalidCredentials { //nolint:errorlint
				obs.Logger().ErrorContext(r.Context(), "login lookup failed", "error", err)
			}
			obs.RecordAuth("login", "invalid_credentials")
			writeResult(w, http.StatusUnauthorized, msgInvalidCredentials)
			return
		}
		obs.RecordAuth("login", "error")
		obs.Logger().ErrorContext(r.Context(), "login failed", "error", err)
		writeResult(w, http.StatusInternalServerError, "Login failed")
		return
	}
	if err := a.setSessionCookie(w, sess); err != nil {
		_ = a.auth.Logout(r.Context(), sess.ID)
		obs.RecordAuth("login", "error")
		obs.Logger().ErrorContext(r.Context(), "encode session cookie", "error", err)
		writeResult(w, http.StatusInternalServerError, "Login failed")
		return
	}

	obs.RecordAuth("login", "ok")
	_ = audit.LogEvent(auth.ContextWithUser(r.Context(), sess.UserID), "auth.login", nil)
	writeResult(w, http.StatusOK, "")
}

// handleLogout tears the session down. Requests without a valid cookie
// still get the redirect, like a session that is already gone.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := a.sessionFromRequest(r)
	if ok {
		ctx := r.Context()
		if userID, err := a.auth.Authorize(ctx, sessionID); err == nil {
			ctx = auth.ContextWithUser(ctx, userID)
		}
		if err := a.auth.Logout(ctx, sessionID); err != nil {
			obs.RecordAuth("logout", "error")
			obs.Logger().ErrorContext(ctx, "logout failed", "error", err)
			writeResult(w, http.StatusInternalServerError, msgLogoutFailed)
			return
		}
		_ = audit.LogEvent(ctx, "auth.logout", nil)
	}
	obs.RecordAuth("logout", "ok")
	a.clearSessionCookie(w)
	redirect(w, r, "/")
}

// decodeBody reads a JSON body into dst, or hands form values to fromForm.
func decodeBody(r *http.Request, dst any, fromForm func(get func(string) string)) error {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt == "application/json" {
		return decodeJSON(r, dst)
	}
	if err := r.ParseForm(); err != nil {
		return errors.New("invalid form body")
	}
	fromForm(r.PostForm.Get)
	return nil
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errors.New("request body too large")
		}
		return errors.New("invalid JSON body")
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}
