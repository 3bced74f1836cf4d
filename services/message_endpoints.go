package services

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/osiprototype/backend/forms"
	"github.com/osiprototype/backend/models"
	ws "github.com/osiprototype/backend/websocket"
)

const previewLength = 80

// messagesHandler lists the user's conversations and the people of the
// opposite role they can start one with.
func (s *Server) messagesHandler(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r.Context())

	threads, err := s.conversations.GetThreads(r.Context(), user.ID)
	if err != nil {
		http.Error(w, "Failed to load conversations", http.StatusInternalServerError)
		return
	}
	users, err := s.users.GetUsersByRole(r.Context(), user.CounterpartRole())
	if err != nil {
		http.Error(w, "Failed to load users", http.StatusInternalServerError)
		return
	}

	s.page(w, r, http.StatusOK, "threads", map[string]interface{}{
		"Threads": threads,
		"Users":   users,
	})
}

// messageThreadHandler shows the conversation with to_username and, on POST,
// sends a new message first. Messages addressed to the viewer are marked read
// only after the page has been rendered, so it still shows them as unread.
func (s *Server) messageThreadHandler(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r.Context())
	ctx := r.Context()

	toUser, err := s.users.GetUserByUsername(ctx, chi.URLParam(r, "to_username"))
	if err != nil {
		http.Error(w, "Failed to load user", http.StatusInternalServerError)
		return
	}
	if toUser == nil {
		http.NotFound(w, r)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}
	form := forms.NewMessageForm(r.PostForm)
	if r.Method == http.MethodPost && form.Validate() {
		message := &models.Message{
			FromUserID: user.ID,
			ToUserID:   toUser.ID,
			Body:       form.Body,
			IsUnread:   true,
		}
		if err := s.conversations.SaveMessage(ctx, message); err != nil {
			http.Error(w, "Failed to send message", http.StatusInternalServerError)
			return
		}
		s.renderer.Flash(r, "success", "Your message has been sent!")
		s.notifyRecipient(user, toUser, message)
	}

	messages, err := s.conversations.GetMessagesBetween(ctx, user.ID, toUser.ID)
	if err != nil {
		http.Error(w, "Failed to load messages", http.StatusInternalServerError)
		return
	}

	buf, err := s.renderer.Render(r, "messages", map[string]interface{}{
		"Messages": messages,
		"ToUser":   toUser,
		"Form":     form,
	})
	if err != nil {
		slog.Error("Template rendering failed", "error", err, "template", "messages")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var unread []string
	for _, m := range messages {
		if m.ToUserID == user.ID && m.IsUnread {
			unread = append(unread, m.ID)
		}
	}
	if len(unread) > 0 {
		if _, err := s.conversations.MarkRead(ctx, user.ID, unread); err != nil {
			slog.Error("Failed to mark messages read", "error", err, "user_id", user.ID)
		}
	}

	writeHTML(w, http.StatusOK, buf)
}

func (s *Server) notifyRecipient(from, to *models.User, message *models.Message) {
	if s.wsHub == nil {
		return
	}
	preview := []rune(message.Body)
	if len(preview) > previewLength {
		preview = preview[:previewLength]
	}
	s.wsHub.Notify(to.ID, ws.Event{
		Type:     "new_message",
		From:     from.Username,
		Preview:  string(preview),
		ThreadID: from.Username,
		SentAt:   time.Now(),
	})
}
