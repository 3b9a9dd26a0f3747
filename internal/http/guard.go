package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"carbontrack/internal/core"
	"carbontrack/internal/log"
)

const (
	sessionCookie = "carbontrack_session"
	themeCookie   = "carbontrack_theme"
)

type ctxKey int

const userKey ctxKey = iota

// currentUser returns the user the session guard attached to ctx.
func currentUser(ctx context.Context) (core.User, bool) {
	u, ok := ctx.Value(userKey).(core.User)
	return u, ok
}

func sessionToken(r *http.Request) string {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return ""
	}
	return c.Value
}

// requireSession redirects anonymous requests to /login.
func (s *Server) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return s.guard("/login", false, next)
}

// requireAdmin redirects anonymous requests to /admin-login and rejects
// signed-in users without the admin role.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return s.guard("/admin-login", true, next)
}

func (s *Server) guard(loginPath string, adminOnly bool, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		_, user, err := s.auth.Current(ctx, sessionToken(r))
		switch {
		case errors.Is(err, core.ErrNoSession):
			s.clearSessionCookie(w)
			redirect(w, r, loginPath)
			return
		case err != nil:
			log.FromContext(ctx).ErrorContext(ctx, "Session lookup failed",
				log.FieldError, err,
				log.FieldOperation, log.OpSession,
				"error_type", log.ErrorTypeAuth)
			InternalServerError(ctx, "Session lookup failed").Write(w)
			return
		}

		if adminOnly && user.Role != core.RoleAdmin {
			log.FromContext(ctx).WarnContext(ctx, "Admin route denied",
				log.FieldUserID, user.ID,
				log.FieldPath, r.URL.Path)
			ForbiddenError("Admin access required").Write(w)
			return
		}

		next(w, r.WithContext(context.WithValue(ctx, userKey, user)))
	}
}

func (s *Server) setSessionCookie(w http.ResponseWriter, sess core.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   s.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func themeFromRequest(r *http.Request) core.Theme {
	c, err := r.Cookie(themeCookie)
	if err != nil {
		return core.ThemeDark
	}
	return core.ParseTheme(c.Value)
}

func (s *Server) setThemeCookie(w http.ResponseWriter, t core.Theme) {
	http.SetCookie(w, &http.Cookie{
		Name:     themeCookie,
		Value:    string(t),
		Path:     "/",
		MaxAge:   int((365 * 24 * time.Hour).Seconds()),
		HttpOnly: true,
		Secure:   s.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}
