package handlers

import (
	"net/http"
	"strings"
)

// StaticFiles serves dir under prefix without directory listings.
func StaticFiles(prefix, dir string) http.Handler {
	fs := http.StripPrefix(prefix, http.FileServer(http.Dir(dir)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			NotFound(w, r)
			return
		}
		fs.ServeHTTP(w, r)
	})
}
