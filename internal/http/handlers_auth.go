package http

import (
	"errors"
	"net/http"

	"carbontrack/internal/core"
	"carbontrack/internal/log"
	"carbontrack/internal/services"
)

// authPage feeds the shared login/signup form template.
type authPage struct {
	Title      string
	Action     string
	Submit     string
	Email      string
	Error      string
	Theme      core.Theme
	AltHref    string
	AltText    string
	MinPassLen int
}

func loginPage(r *http.Request) authPage {
	return authPage{
		Title:   "Sign in",
		Action:  "/login",
		Submit:  "Sign in",
		Theme:   themeFromRequest(r),
		AltHref: "/signup",
		AltText: "Create an account",
	}
}

func adminLoginPage(r *http.Request) authPage {
	return authPage{
		Title:   "Admin sign in",
		Action:  "/admin-login",
		Submit:  "Sign in as admin",
		Theme:   themeFromRequest(r),
		AltHref: "/login",
		AltText: "Back to user sign in",
	}
}

func signupPage(r *http.Request) authPage {
	return authPage{
		Title:      "Create account",
		Action:     "/signup",
		Submit:     "Sign up",
		Theme:      themeFromRequest(r),
		AltHref:    "/login",
		AltText:    "Already registered? Sign in",
		MinPassLen: services.MinPasswordLength,
	}
}

// signedIn reports whether the request carries a valid session.
func (s *Server) signedIn(r *http.Request) (core.User, bool) {
	_, u, err := s.auth.Current(r.Context(), sessionToken(r))
	return u, err == nil
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.signedIn(r); ok {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	s.render(w, r, http.StatusOK, "auth", loginPage(r))
}

func (s *Server) handleAdminLoginPage(w http.ResponseWriter, r *http.Request) {
	if u, ok := s.signedIn(r); ok && u.Role == core.RoleAdmin {
		http.Redirect(w, r, "/admin", http.StatusSeeOther)
		return
	}
	s.render(w, r, http.StatusOK, "auth", adminLoginPage(r))
}

func (s *Server) handleSignupPage(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.signedIn(r); ok {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	s.render(w, r, http.StatusOK, "auth", signupPage(r))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	page := loginPage(r)
	email, password, ok := s.readCredentials(w, r, page)
	if !ok {
		return
	}
	page.Email = email

	sess, _, err := s.auth.Login(r.Context(), email, password)
	s.metrics.AuthEvent(log.OpLogin, err)
	switch {
	case errors.Is(err, core.ErrInvalidCredentials):
		page.Error = "Invalid email or password."
		s.render(w, r, http.StatusUnauthorized, "auth", page)
	case err != nil:
		s.authFailed(w, r, page, err)
	default:
		s.setSessionCookie(w, sess)
		redirect(w, r, "/")
	}
}

func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	page := adminLoginPage(r)
	email, password, ok := s.readCredentials(w, r, page)
	if !ok {
		return
	}
	page.Email = email

	sess, _, err := s.auth.AdminLogin(r.Context(), email, password)
	s.metrics.AuthEvent("admin_login", err)
	switch {
	case errors.Is(err, core.ErrInvalidCredentials):
		page.Error = "Invalid email or password."
		s.render(w, r, http.StatusUnauthorized, "auth", page)
	case errors.Is(err, core.ErrNotAdmin):
		page.Error = "This account does not have admin access."
		s.render(w, r, http.StatusForbidden, "auth", page)
	case err != nil:
		s.authFailed(w, r, page, err)
	default:
		s.setSessionCookie(w, sess)
		redirect(w, r, "/admin")
	}
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	page := signupPage(r)
	email, password, ok := s.readCredentials(w, r, page)
	if !ok {
		return
	}
	page.Email = email

	sess, _, err := s.auth.Signup(r.Context(), email, password)
	s.metrics.AuthEvent(log.OpSignup, err)
	switch {
	case errors.Is(err, core.ErrInvalidEmail):
		page.Error = "Enter a valid email address."
		s.render(w, r, http.StatusUnprocessableEntity, "auth", page)
	case errors.Is(err, core.ErrWeakPassword):
		page.Error = "Password must be at least 8 characters."
		s.render(w, r, http.StatusUnprocessableEntity, "auth", page)
	case errors.Is(err, core.ErrEmailTaken):
		page.Error = "An account with this email already exists."
		s.render(w, r, http.StatusConflict, "auth", page)
	case err != nil:
		s.authFailed(w, r, page, err)
	default:
		s.setSessionCookie(w, sess)
		redirect(w, r, "/")
	}
}

// handleLogout ends the session and returns to /login. A failed sign-out is
// logged and answered with 204 so the browser stays where it is.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	err := s.auth.SignOut(ctx, sessionToken(r))
	s.metrics.AuthEvent(log.OpLogout, err)
	if err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "Sign out failed",
			log.FieldError, err,
			log.FieldOperation, log.OpLogout)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.clearSessionCookie(w)
	redirect(w, r, "/login")
}

func (s *Server) handleLoginLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Login rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldPath, r.URL.Path)

	var page authPage
	switch r.URL.Path {
	case "/admin-login":
		page = adminLoginPage(r)
	case "/signup":
		page = signupPage(r)
	default:
		page = loginPage(r)
	}
	page.Error = "Too many attempts. Please wait a minute and try again."
	s.render(w, r, http.StatusTooManyRequests, "auth", page)
}

func (s *Server) readCredentials(w http.ResponseWriter, r *http.Request, page authPage) (email, password string, ok bool) {
	r.Body = http.MaxBytesReader(w, r.Body, 16<<10)
	if err := r.ParseForm(); err != nil {
		page.Error = "Invalid form submission."
		s.render(w, r, http.StatusBadRequest, "auth", page)
		return "", "", false
	}
	return sanitizeInput(r.PostForm.Get("email")), r.PostForm.Get("password"), true
}

func (s *Server) authFailed(w http.ResponseWriter, r *http.Request, page authPage, err error) {
	log.FromContext(r.Context()).ErrorContext(r.Context(), "Authentication backend error",
		log.FieldError, err,
		log.FieldPath, r.URL.Path,
		"error_type", log.ErrorTypeAuth)
	page.Error = "Something went wrong. Please try again."
	s.render(w, r, http.StatusInternalServerError, "auth", page)
}
