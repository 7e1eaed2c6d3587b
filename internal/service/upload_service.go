package service

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/farmlink/farmlink/internal/apperr"
	"github.com/farmlink/farmlink/internal/config"
	"github.com/sirupsen/logrus"
)

const (
	ImagesField  = "images"
	productsDir  = "products"
	usersDir     = "users"
	sniffLen     = 512
	nameAttempts = 5
)

// allowedImageTypes maps accepted MIME types to the extension stored files get.
var allowedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/jpg":  ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

var ErrInvalidPath = errors.New("invalid file path")

const invalidTypeMessage = "Invalid file type. Only JPG, PNG, GIF and WEBP files are allowed"

// UploadService stores product images on local disk under root.
type UploadService struct {
	root        string
	publicDir   string
	maxFiles    int
	maxFileSize int64
	logger      *logrus.Logger
}

func NewUploadService(cfg *config.UploadConfig, logger *logrus.Logger) *UploadService {
	return &UploadService{
		root:        cfg.Root,
		publicDir:   cfg.PublicDir,
		maxFiles:    cfg.MaxFiles,
		maxFileSize: cfg.MaxFileSize,
		logger:      logger,
	}
}

func (s *UploadService) Root() string {
	return s.root
}

// EnsureDirs creates the upload and public directories.
func (s *UploadService) EnsureDirs() error {
	dirs := []string{
		filepath.Join(s.root, productsDir),
		filepath.Join(s.root, usersDir),
		filepath.Join(s.publicDir, "images"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// SaveProductImages streams every file part of mr to disk and returns the
// stored paths relative to the upload root. Either all files are kept or, on
// any error, none are.
func (s *UploadService) SaveProductImages(mr *multipart.Reader) (saved []string, err error) {
	var written []string
	defer func() {
		if err != nil {
			for _, path := range written {
				if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
					s.logger.WithError(rmErr).WithField("path", path).Warn("Failed to remove partial upload")
				}
			}
			saved = nil
		}
	}()

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, multipartError(err)
		}

		if part.FileName() == "" {
			// Plain form fields are ignored.
			_, _ = io.Copy(io.Discard, part)
			_ = part.Close()
			continue
		}

		if part.FormName() != ImagesField {
			_ = part.Close()
			return nil, apperr.Validation("Unexpected field")
		}

		if len(written) >= s.maxFiles {
			_ = part.Close()
			return nil, apperr.Validation("Too many files")
		}

		path, err := s.savePart(part)
		_ = part.Close()
		if path != "" {
			written = append(written, path)
		}
		if err != nil {
			return nil, err
		}
		saved = append(saved, productsDir+"/"+filepath.Base(path))
	}

	if len(saved) == 0 {
		return nil, apperr.Validation("No files uploaded")
	}

	s.logger.WithField("count", len(saved)).Info("Product images uploaded")
	return saved, nil
}

// savePart writes one part to disk. The returned path is set whenever a file
// was created, even if writing it then failed.
func (s *UploadService) savePart(part *multipart.Part) (string, error) {
	declared, _, err := mime.ParseMediaType(part.Header.Get("Content-Type"))
	if err != nil {
		return "", apperr.Validation(invalidTypeMessage)
	}
	ext, ok := allowedImageTypes[strings.ToLower(declared)]
	if !ok {
		return "", apperr.Validation(invalidTypeMessage)
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(part, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", multipartError(err)
	}
	head = head[:n]

	sniffed, _, _ := mime.ParseMediaType(http.DetectContentType(head))
	if _, ok := allowedImageTypes[sniffed]; !ok {
		return "", apperr.Validation(invalidTypeMessage)
	}
	if int64(n) > s.maxFileSize {
		return "", apperr.Validation("File too large")
	}

	f, path, err := s.createFile(ext)
	if err != nil {
		return "", apperr.Internal(err)
	}
	defer f.Close()

	if _, err := f.Write(head); err != nil {
		return path, apperr.Internal(fmt.Errorf("failed to write upload: %w", err))
	}

	remaining := s.maxFileSize - int64(n)
	copied, err := io.Copy(f, io.LimitReader(part, remaining+1))
	if err != nil {
		return path, multipartError(err)
	}
	if copied > remaining {
		return path, apperr.Validation("File too large")
	}

	return path, nil
}

func (s *UploadService) createFile(ext string) (*os.File, string, error) {
	dir := filepath.Join(s.root, productsDir)
	for i := 0; i < nameAttempts; i++ {
		name := fmt.Sprintf("product-%d-%d%s", time.Now().UnixMilli(), rand.Int63n(1e9), ext)
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return nil, "", fmt.Errorf("failed to create upload file: %w", err)
		}
		return f, path, nil
	}
	return nil, "", fmt.Errorf("failed to allocate a unique upload name in %s", dir)
}

// ResolveProxyPath maps a proxy request onto a file under the upload root.
// kind "users" selects the users directory; anything else selects products.
func (s *UploadService) ResolveProxyPath(kind, filename string) (string, error) {
	if filename == "" || strings.Contains(kind, "..") || strings.Contains(filename, "..") ||
		strings.ContainsAny(filename, `/\`) {
		return "", ErrInvalidPath
	}

	dir := productsDir
	if kind == usersDir {
		dir = usersDir
	}
	return filepath.Join(s.root, dir, filename), nil
}

func multipartError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return apperr.Wrap(apperr.KindValidation, "File too large", err)
	}
	return apperr.Wrap(apperr.KindValidation, "Malformed multipart body", err)
}
