package server

import (
	"io/fs"
	"net/http"
	"path"
	"strings"
)

// spaFileServer serves the embedded review UI. Paths naming an existing file
// are served as is. Client-side routes such as /forms/12/review get
// index.html, while a missing file with an extension is a plain 404 so broken
// asset links stay visible.
func spaFileServer(assets fs.FS) http.Handler {
	fileServer := http.FileServerFS(assets)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}

		name := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
		if name == "" {
			name = "index.html"
		}

		if _, err := fs.Stat(assets, name); err != nil {
			if path.Ext(name) != "" {
				http.NotFound(w, r)
				return
			}
			// The shell must not be cached; it names the hashed bundles.
			w.Header().Set("Cache-Control", "no-cache")
			r.URL.Path = "/"
		}

		fileServer.ServeHTTP(w, r)
	})
}
