package upload

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/anoupload/relay/internal/response"
	"github.com/anoupload/relay/internal/staging"
	"github.com/anoupload/relay/web"
)

// multipartOverhead is the slack allowed on top of the file limit for
// boundaries, part headers and other form fields.
const multipartOverhead = 1 << 20

// UploadResponse is returned after a successful upload.
type UploadResponse struct {
	FileURL string `json:"file_url"`
	Message string `json:"message"`
}

// FileEntry is one staged file in a listing.
type FileEntry struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

// FileList is the listing of the staging directory.
type FileList struct {
	Files []FileEntry `json:"files"`
}

// Handler holds HTTP handlers for upload endpoints.
type Handler struct {
	svc        *Service
	store      *staging.Store
	websiteURL string
	logger     *zap.Logger
}

// NewHandler creates a new upload Handler. websiteURL prefixes the links in
// the staging listing.
func NewHandler(svc *Service, store *staging.Store, websiteURL string, logger *zap.Logger) *Handler {
	return &Handler{
		svc:        svc,
		store:      store,
		websiteURL: strings.TrimRight(websiteURL, "/"),
		logger:     logger,
	}
}

// Register mounts the upload routes on r. uploadLimit, when non-nil, wraps
// only the upload endpoints.
func (h *Handler) Register(r chi.Router, uploadLimit func(http.Handler) http.Handler) {
	r.Get("/", h.Index)
	r.Get("/files", h.List)
	r.Get("/file_uploaded", h.FileUploaded)
	r.Get("/uploads/{filename}", h.Serve)
	r.Delete("/uploads/{filename}", h.Delete)

	r.Group(func(r chi.Router) {
		if uploadLimit != nil {
			r.Use(uploadLimit)
		}
		r.Post("/", h.Upload)
		r.Post("/upload", h.Upload)
	})
}

// Index serves the upload form.
func (h *Handler) Index(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(web.UploadForm())
}

// Upload godoc
//
//	@Summary		Upload a file
//	@Description	Stages the file, commits it to remote storage and returns its public URL.
//	@Tags			files
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file	formData	file	true	"File to relay"
//	@Success		200		{object}	UploadResponse
//	@Failure		400		{object}	response.ErrorBody
//	@Failure		413		{object}	response.ErrorBody
//	@Failure		429		{object}	response.ErrorBody
//	@Failure		500		{object}	response.ErrorBody
//	@Router			/upload [post]
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.svc.MaxSize()+multipartOverhead)

	mr, err := r.MultipartReader()
	if err != nil {
		response.FromError(w, h.svc.NoFile())
		return
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			response.FromError(w, h.svc.NoFile())
			return
		}
		if err != nil {
			response.FromError(w, capacityFromBody(fmt.Errorf("%w: %w", staging.ErrIncomplete, err)))
			return
		}

		if part.FormName() != "file" || part.FileName() == "" {
			_ = part.Close()
			continue
		}

		res, err := h.svc.HandleUpload(r.Context(), part.FileName(), part)
		_ = part.Close()
		if err != nil {
			response.FromError(w, err)
			return
		}

		response.OK(w, UploadResponse{FileURL: res.FileURL, Message: "File uploaded successfully"})
		return
	}
}

// Serve godoc
//
//	@Summary		Download a staged file
//	@Description	Streams a file that is still in the staging directory.
//	@Tags			files
//	@Produce		octet-stream
//	@Param			filename	path		string	true	"Staging name"
//	@Success		200			{file}		binary
//	@Failure		404			{object}	response.ErrorBody
//	@Router			/uploads/{filename} [get]
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	name, ok := filenameParam(r)
	if !ok {
		response.NotFound(w, "File not found.")
		return
	}

	f, info, err := h.store.Open(name)
	if err != nil {
		if !errors.Is(err, staging.ErrNotFound) && !errors.Is(err, staging.ErrInvalidName) {
			h.logger.Error("serve staged file", zap.String("file", name), zap.Error(err))
		}
		response.NotFound(w, "File not found.")
		return
	}
	defer f.Close()

	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// Delete godoc
//
//	@Summary		Delete a staged file
//	@Description	Removes a file from the staging directory. The remote copy is untouched.
//	@Tags			files
//	@Produce		json
//	@Param			filename	path		string	true	"Staging name"
//	@Success		200			{object}	response.MessageBody
//	@Failure		404			{object}	response.ErrorBody
//	@Failure		409			{object}	response.ErrorBody
//	@Failure		500			{object}	response.ErrorBody
//	@Router			/uploads/{filename} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	name, ok := filenameParam(r)
	if !ok {
		response.NotFound(w, "File not found.")
		return
	}

	err := h.store.Delete(name)
	switch {
	case err == nil:
		h.logger.Info("deleted staged file", zap.String("file", name))
		response.Message(w, fmt.Sprintf("File %s deleted successfully.", name))
	case errors.Is(err, staging.ErrNotFound), errors.Is(err, staging.ErrInvalidName):
		response.NotFound(w, "File not found.")
	case errors.Is(err, staging.ErrInUse):
		response.FromError(w, err)
	default:
		h.logger.Error("delete staged file", zap.String("file", name), zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "Error deleting file.")
	}
}

// List godoc
//
//	@Summary		List staged files
//	@Description	Lists files still held in the staging directory.
//	@Tags			files
//	@Produce		json
//	@Success		200	{object}	FileList
//	@Failure		500	{object}	response.ErrorBody
//	@Router			/files [get]
func (h *Handler) List(w http.ResponseWriter, _ *http.Request) {
	names, err := h.store.List()
	if err != nil {
		h.logger.Error("list staging dir", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "Error reading directory.")
		return
	}

	files := make([]FileEntry, 0, len(names))
	for _, name := range names {
		files = append(files, FileEntry{
			Filename: name,
			URL:      h.websiteURL + "/uploads/" + url.PathEscape(name),
		})
	}
	response.OK(w, FileList{Files: files})
}

// filenameParam returns the decoded {filename} segment. chi matches on
// URL.RawPath when it is set, so names with escaped characters such as "%2C"
// arrive still encoded; otherwise the segment is already decoded.
func filenameParam(r *http.Request) (string, bool) {
	name := chi.URLParam(r, "filename")
	if r.URL.RawPath == "" {
		return name, true
	}
	name, err := url.PathUnescape(name)
	if err != nil {
		return "", false
	}
	return name, true
}

// FileUploaded renders the confirmation page linking to file_url.
func (h *Handler) FileUploaded(w http.ResponseWriter, r *http.Request) {
	fileURL := r.URL.Query().Get("file_url")
	if fileURL == "" {
		response.NotFound(w, "File URL not found.")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := web.RenderUploaded(w, fileURL); err != nil {
		h.logger.Error("render uploaded page", zap.Error(err))
	}
}
