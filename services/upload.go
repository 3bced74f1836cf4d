package services

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

const photoURLPrefix = "/_uploads/photos/"

var (
	ErrUnsupportedPhoto = errors.New("unsupported photo type")
	ErrPhotoTooLarge    = errors.New("photo too large")
)

var photoExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
}

// PhotoStorage keeps uploaded profile photos on local disk.
type PhotoStorage struct {
	dir     string
	maxSize int64
}

func NewPhotoStorage(dir string, maxSize int64) (*PhotoStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return &PhotoStorage{dir: dir, maxSize: maxSize}, nil
}

// Save validates an uploaded image and writes it under a fresh name, which is
// returned.
func (p *PhotoStorage) Save(file multipart.File, header *multipart.FileHeader) (string, error) {
	if header.Size > p.maxSize {
		return "", ErrPhotoTooLarge
	}
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !photoExtensions[ext] {
		return "", ErrUnsupportedPhoto
	}

	data, err := io.ReadAll(io.LimitReader(file, p.maxSize+1))
	if err != nil {
		return "", fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(data)) > p.maxSize {
		return "", ErrPhotoTooLarge
	}
	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedPhoto, mtype.String())
	}

	name := uuid.NewString() + ext
	dst, err := os.OpenFile(filepath.Join(p.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create photo file: %w", err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("failed to write photo: %w", err)
	}

	slog.Info("Photo stored", "file", name, "type", mtype.String(), "size", len(data))
	return name, nil
}

// Handler serves stored photos below photoURLPrefix. Only named files are
// served, directory listings are not.
func (p *PhotoStorage) Handler() http.Handler {
	return http.StripPrefix(photoURLPrefix, http.FileServer(filesOnly{http.Dir(p.dir)}))
}

// filesOnly hides directories from http.FileServer.
type filesOnly struct {
	fs http.FileSystem
}

func (f filesOnly) Open(name string) (http.File, error) {
	file, err := f.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if info.IsDir() {
		file.Close()
		return nil, fs.ErrNotExist
	}
	return file, nil
}

func photoURL(name *string) string {
	if name == nil || *name == "" {
		return ""
	}
	return photoURLPrefix + *name
}

// uploadHandler stores the "photo" file as the current user's profile photo.
// It always ends on the profile page.
func (s *Server) uploadHandler(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r.Context())
	defer http.Redirect(w, r, "/profile/", http.StatusFound)

	r.Body = http.MaxBytesReader(w, r.Body, s.config.Uploads.MaxSize+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		slog.Warn("Failed to parse upload", "error", err, "user_id", user.ID)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.renderer.Flash(r, "error", "That photo is too large.")
			return
		}
		s.renderer.Flash(r, "error", "Please provide a photo!")
		return
	}

	file, header, err := r.FormFile("photo")
	if err != nil || header.Filename == "" {
		s.renderer.Flash(r, "error", "Please provide a photo!")
		return
	}
	defer file.Close()

	name, err := s.photos.Save(file, header)
	switch {
	case errors.Is(err, ErrUnsupportedPhoto):
		s.renderer.Flash(r, "error", "Only JPG, PNG and GIF images are allowed.")
		return
	case errors.Is(err, ErrPhotoTooLarge):
		s.renderer.Flash(r, "error", "That photo is too large.")
		return
	case err != nil:
		slog.Error("Failed to store photo", "error", err, "user_id", user.ID)
		s.renderer.Flash(r, "error", "Could not save your photo, please try again.")
		return
	}

	if err := s.users.UpdateProfilePhoto(r.Context(), user, name); err != nil {
		slog.Error("Failed to update profile photo", "error", err, "user_id", user.ID)
		s.renderer.Flash(r, "error", "Could not save your photo, please try again.")
		return
	}

	s.renderer.Flash(r, "success", "Photo saved.")
}
