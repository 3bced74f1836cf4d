package services

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/osiprototype/backend/forms"
	"github.com/osiprototype/backend/repository"
)

func (s *Server) registerHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.page(w, r, http.StatusOK, "register", map[string]interface{}{
			"Form": forms.NewRegisterForm(nil),
		})
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}

	form := forms.NewRegisterForm(r.PostForm)
	ok, err := form.Validate(r.Context(), s.lookup)
	if err != nil {
		slog.Error("Registration validation failed", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if !ok {
		s.page(w, r, http.StatusOK, "register", map[string]interface{}{"Form": form})
		return
	}

	user, err := s.authService.Register(r.Context(), form)
	if errors.Is(err, repository.ErrDuplicateUser) {
		// lost a race with a concurrent registration; the second pass finds
		// the row that now holds the name or address
		if ok, verr := form.Validate(r.Context(), s.lookup); verr == nil && !ok {
			s.page(w, r, http.StatusOK, "register", map[string]interface{}{"Form": form})
			return
		}
	}
	if err != nil {
		slog.Error("Registration failed", "error", err, "username", form.Username)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	slog.Info("User registered", "user_id", user.ID, "role", user.Role)
	s.renderer.Flash(r, "success", "Thank you for registering. You can now log in.")
	http.Redirect(w, r, "/login/", http.StatusFound)
}

func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	next := safeNext(r.URL.Query().Get("next"))

	if r.Method != http.MethodPost {
		if s.authService.Authenticate(w, r) != nil {
			http.Redirect(w, r, next, http.StatusFound)
			return
		}
		s.page(w, r, http.StatusOK, "login", map[string]interface{}{
			"Form": forms.NewLoginForm(nil),
			"Next": next,
		})
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}

	form := forms.NewLoginForm(r.PostForm)
	data := map[string]interface{}{"Form": form, "Next": next}
	if !form.Validate() {
		s.page(w, r, http.StatusOK, "login", data)
		return
	}

	session, err := s.authService.Login(r.Context(), form.Username, form.Password)
	switch {
	case errors.Is(err, ErrUnknownUsername):
		form.Errors.Add("username", "Unknown username")
	case errors.Is(err, ErrInvalidPassword):
		form.Errors.Add("password", "Invalid password")
	case errors.Is(err, ErrInactiveUser):
		form.Errors.Add("username", "User not activated")
	case err != nil:
		slog.Error("Login failed", "error", err, "username", form.Username)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if form.Errors.Any() {
		s.page(w, r, http.StatusOK, "login", data)
		return
	}

	s.authService.SetAuthCookies(w, session)
	s.renderer.Flash(r, "info", "You are logged in.")
	http.Redirect(w, r, next, http.StatusFound)
}

func (s *Server) logoutHandler(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r.Context())
	if err := s.authService.Logout(r.Context(), user.ID); err != nil {
		slog.Error("Logout failed", "error", err, "user_id", user.ID)
	}

	s.authService.ClearAuthCookies(w)
	s.renderer.Flash(r, "info", "You are logged out.")
	http.Redirect(w, r, "/login/", http.StatusFound)
}

// safeNext keeps post-login redirects on this site.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/profile/"
	}
	return next
}
