package service

import (
	"net/http"
	"strings"

	"github.com/farmlink/farmlink/internal/models"
)

const uploadsSegment = "/uploads/"

// MediaResolver turns stored image references into URLs a client can fetch.
// Every rule resolves against a single base URL.
type MediaResolver struct {
	BaseURL      string
	DefaultImage string
}

func NewMediaResolver(baseURL, defaultImage string) *MediaResolver {
	return &MediaResolver{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		DefaultImage: defaultImage,
	}
}

// ForRequest returns a resolver bound to the request's own origin when no
// base URL is configured.
func (m *MediaResolver) ForRequest(r *http.Request) *MediaResolver {
	if m.BaseURL != "" {
		return m
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = strings.TrimSpace(strings.Split(proto, ",")[0])
	}

	return &MediaResolver{
		BaseURL:      scheme + "://" + r.Host,
		DefaultImage: m.DefaultImage,
	}
}

// UploadURL is the public URL of a stored upload, relative to the upload root.
func (m *MediaResolver) UploadURL(relPath string) string {
	return m.BaseURL + uploadsSegment + strings.TrimLeft(relPath, "/")
}

func (m *MediaResolver) Canonical(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	if idx := strings.Index(raw, uploadsSegment); idx >= 0 {
		return m.UploadURL(raw[idx+len(uploadsSegment):])
	}

	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") || strings.HasPrefix(raw, "data:") {
		return raw
	}

	if strings.HasPrefix(raw, "product-") && !strings.Contains(raw, "/") {
		return m.UploadURL("products/" + raw)
	}

	if !strings.HasPrefix(raw, "/") {
		raw = "/" + raw
	}
	return m.BaseURL + raw
}

// Images canonicalises images, falling back to the default image when none
// remain.
func (m *MediaResolver) Images(images []string) []string {
	out := make([]string, 0, len(images))
	for _, img := range images {
		if url := m.Canonical(img); url != "" {
			out = append(out, url)
		}
	}

	if len(out) == 0 && m.DefaultImage != "" {
		out = append(out, m.Canonical(m.DefaultImage))
	}
	return out
}

// Product returns a copy of p with canonical image URLs.
func (m *MediaResolver) Product(p models.Product) models.Product {
	p.Images = m.Images(p.Images)
	return p
}
