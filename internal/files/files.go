// Package files serves the alerts folder read-only so the messaging provider
// can fetch evidence images by URL.
package files

import (
	"io/fs"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	logx "alertbot/pkg/logx"
)

// Handler serves regular files under dir. Directories, dotfiles and anything
// that is not a regular file answer 404; there is no directory listing.
func Handler(dir string, log logx.Logger) http.Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "files"))
	fsrv := http.FileServer(noListFS{http.Dir(dir)})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if hasDotSegment(r.URL.Path) {
			http.NotFound(w, r)
			return
		}
		start := time.Now()
		fsrv.ServeHTTP(w, r)
		log.Debug("served", logx.String("path", r.URL.Path), logx.Duration("took", time.Since(start)))
	})
}

type noListFS struct{ fs http.FileSystem }

func (n noListFS) Open(name string) (http.File, error) {
	f, err := n.fs.Open(name)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil || !st.Mode().IsRegular() {
		_ = f.Close()
		return nil, fs.ErrNotExist
	}
	return f, nil
}

func hasDotSegment(p string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(p), "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}
