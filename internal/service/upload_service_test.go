package service

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"testing"

	"github.com/farmlink/farmlink/internal/apperr"
	"github.com/farmlink/farmlink/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type testPart struct {
	field       string
	filename    string
	contentType string
	data        []byte
}

func pngPart(size int) testPart {
	data := make([]byte, size)
	copy(data, pngHeader)
	return testPart{field: ImagesField, filename: "photo.png", contentType: "image/png", data: data}
}

func multipartReader(t *testing.T, parts ...testPart) *multipart.Reader {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, p.field, p.filename))
		h.Set("Content-Type", p.contentType)
		pw, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = pw.Write(p.data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return multipart.NewReader(&body, w.Boundary())
}

func newTestUploadService(t *testing.T) (*UploadService, string) {
	t.Helper()
	root := t.TempDir()
	svc := NewUploadService(&config.UploadConfig{
		Root:        filepath.Join(root, "uploads"),
		PublicDir:   filepath.Join(root, "public"),
		MaxFiles:    2,
		MaxFileSize: 1024,
	}, testLogger())
	require.NoError(t, svc.EnsureDirs())
	return svc, filepath.Join(root, "uploads", "products")
}

func storedFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestSaveProductImages(t *testing.T) {
	svc, dir := newTestUploadService(t)

	saved, err := svc.SaveProductImages(multipartReader(t, pngPart(600), pngPart(100)))
	require.NoError(t, err)
	require.Len(t, saved, 2)
	for _, rel := range saved {
		assert.Regexp(t, `^products/product-\d+-\d+\.png$`, rel)
	}
	assert.Len(t, storedFiles(t, dir), 2)

	data, err := os.ReadFile(filepath.Join(svc.Root(), saved[0]))
	require.NoError(t, err)
	assert.Len(t, data, 600)
}

func TestSaveProductImagesRejectsWithoutPersisting(t *testing.T) {
	fake := testPart{field: ImagesField, filename: "evil.png", contentType: "image/png", data: []byte("#!/bin/sh\necho hi\n")}
	text := testPart{field: ImagesField, filename: "notes.txt", contentType: "text/plain", data: []byte("hello")}
	other := pngPart(10)
	other.field = "avatar"

	tests := []struct {
		name    string
		parts   []testPart
		message string
	}{
		{"sniffed type mismatch", []testPart{pngPart(50), fake}, invalidTypeMessage},
		{"declared type", []testPart{text}, invalidTypeMessage},
		{"too large", []testPart{pngPart(50), pngPart(2048)}, "File too large"},
		{"too many", []testPart{pngPart(10), pngPart(10), pngPart(10)}, "Too many files"},
		{"unexpected field", []testPart{pngPart(10), other}, "Unexpected field"},
		{"empty", nil, "No files uploaded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, dir := newTestUploadService(t)

			saved, err := svc.SaveProductImages(multipartReader(t, tt.parts...))
			require.Error(t, err)
			assert.Nil(t, saved)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
			assert.Equal(t, tt.message, apperr.PublicMessage(err))
			assert.Empty(t, storedFiles(t, dir))
		})
	}
}

func TestResolveProxyPath(t *testing.T) {
	svc, _ := newTestUploadService(t)

	path, err := svc.ResolveProxyPath("products", "product-1-2.jpg")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(svc.Root(), "products", "product-1-2.jpg"), path)

	path, err = svc.ResolveProxyPath("users", "avatar.png")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(svc.Root(), "users", "avatar.png"), path)

	path, err = svc.ResolveProxyPath("anything", "x.png")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(svc.Root(), "products", "x.png"), path)

	for _, bad := range [][2]string{
		{"products", "../../etc/passwd"},
		{"..", "x.png"},
		{"products", "a/b.png"},
		{"products", `a\b.png`},
		{"products", ""},
	} {
		_, err := svc.ResolveProxyPath(bad[0], bad[1])
		assert.ErrorIs(t, err, ErrInvalidPath, "%v", bad)
	}
}
