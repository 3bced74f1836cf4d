package services

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/osiprototype/backend/forms"
	"github.com/osiprototype/backend/repository"
)

type editResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func (s *Server) profileHandler(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r.Context())
	s.page(w, r, http.StatusOK, "profile", map[string]interface{}{
		"ProfilePhoto": photoURL(user.ProfilePhoto),
	})
}

// editProfileHandler applies the submitted profile fields and answers in JSON.
// On failure the message is the first field error.
func (s *Server) editProfileHandler(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r.Context())

	if err := r.ParseForm(); err != nil {
		writeJSON(w, editResponse{Success: false, Message: "server error"})
		return
	}

	form := forms.NewEditForm(r.PostForm)
	ok, err := form.Validate(r.Context(), s.lookup, user.ID)
	if err != nil {
		slog.Error("Profile validation failed", "error", err, "user_id", user.ID)
		writeJSON(w, editResponse{Success: false, Message: "server error"})
		return
	}
	if !ok {
		message := form.Errors.First()
		if message == "" {
			message = "server error"
		}
		writeJSON(w, editResponse{Success: false, Message: message})
		return
	}

	if err := s.users.UpdateUserFields(r.Context(), user, form.Updates()); err != nil {
		if errors.Is(err, repository.ErrDuplicateUser) {
			if ok, verr := form.Validate(r.Context(), s.lookup, user.ID); verr == nil && !ok {
				writeJSON(w, editResponse{Success: false, Message: form.Errors.First()})
				return
			}
		}
		slog.Error("Failed to update profile", "error", err, "user_id", user.ID)
		writeJSON(w, editResponse{Success: false, Message: "server error"})
		return
	}

	writeJSON(w, editResponse{Success: true})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
