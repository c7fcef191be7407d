package webhook

import "net/http"

// Routes mounts the command endpoint at path and a liveness probe at /healthz.
func Routes(path string, h http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST "+path, h)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
