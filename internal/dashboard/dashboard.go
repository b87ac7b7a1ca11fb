// Package dashboard serves the single-page operator view: the script
// library, live session output and the stop-all latch.
package dashboard

import (
	"embed"
	"net/http"
)

//go:embed index.html
var content embed.FS

// Handler serves the embedded page. The page itself holds no data; it calls
// the API with the token the operator enters.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		http.ServeFileFS(w, r, content, "index.html")
	})
}
