package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/farmlink/farmlink/internal/apperr"
	"github.com/farmlink/farmlink/internal/middleware"
	"github.com/farmlink/farmlink/internal/service"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// multipartOverhead covers boundaries and part headers on top of file bytes.
const multipartOverhead = 1 << 20

type UploadHandlers struct {
	uploads      *service.UploadService
	media        *service.MediaResolver
	maxBodyBytes int64
	cacheControl string
	logger       *logrus.Logger
}

func NewUploadHandlers(
	uploads *service.UploadService,
	media *service.MediaResolver,
	maxFiles int,
	maxFileSize int64,
	cacheMaxAge time.Duration,
	logger *logrus.Logger,
) *UploadHandlers {
	return &UploadHandlers{
		uploads:      uploads,
		media:        media,
		maxBodyBytes: int64(maxFiles)*maxFileSize + multipartOverhead,
		cacheControl: fmt.Sprintf("public, max-age=%d", int(cacheMaxAge.Seconds())),
		logger:       logger,
	}
}

type UploadResponse struct {
	Success   bool     `json:"success"`
	Message   string   `json:"message"`
	ImageURLs []string `json:"imageUrls"`
}

type InvalidPathResponse struct {
	Message string `json:"message"`
}

type FileNotFoundResponse struct {
	Message       string `json:"message"`
	RequestedFile string `json:"requestedFile"`
	SearchedPath  string `json:"searchedPath"`
}

func (h *UploadHandlers) UploadProductImages(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)

	mr, err := r.MultipartReader()
	if err != nil {
		respondWithError(w, h.logger, apperr.Wrap(apperr.KindValidation, "No files uploaded", err))
		return
	}

	saved, err := h.uploads.SaveProductImages(mr)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}

	media := h.media.ForRequest(r)
	urls := make([]string, 0, len(saved))
	for _, rel := range saved {
		urls = append(urls, media.UploadURL(rel))
	}

	respondWithJSON(w, http.StatusOK, UploadResponse{
		Success:   true,
		Message:   "Files uploaded successfully",
		ImageURLs: urls,
	})
}

// ServeProxy streams a stored upload with permissive cross-origin headers.
func (h *UploadHandlers) ServeProxy(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	filename := vars["filename"]

	middleware.SetMediaHeaders(w.Header())
	w.Header().Set("Cache-Control", h.cacheControl)

	path, err := h.uploads.ResolveProxyPath(vars["type"], filename)
	if err != nil {
		h.logger.WithField("path", r.URL.Path).Warn("Rejected proxy path")
		respondWithJSON(w, http.StatusBadRequest, InvalidPathResponse{Message: "Invalid file path"})
		return
	}

	f, err := os.Open(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			h.logger.WithError(err).WithField("path", path).Error("Failed to open upload")
		}
		h.respondFileNotFound(w, filename, path)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		h.respondFileNotFound(w, filename, path)
		return
	}

	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

func (h *UploadHandlers) respondFileNotFound(w http.ResponseWriter, filename, path string) {
	respondWithJSON(w, http.StatusNotFound, FileNotFoundResponse{
		Message:       "File not found",
		RequestedFile: filename,
		SearchedPath:  path,
	})
}
