package dashboard

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zeusync/hubdash/internal/core/observability/log"
)

const indexFile = "index.html"

// Mount registers the web UI routes under the configured path.
func (d *Dashboard) Mount(r chi.Router) {
	base := strings.TrimSuffix(d.opts.Path, "/")
	routes := func(r chi.Router) {
		if d.opts.authEnabled() {
			r.Use(middleware.BasicAuth(Name, map[string]string{d.opts.User: d.opts.Pass}))
		}
		r.Get("/static/config.js", d.serveConfigJS)
		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			http.Redirect(w, req, base+"/"+indexFile, http.StatusFound)
		})
		if d.opts.StaticDir != "" {
			r.Handle("/static/*", http.StripPrefix(base, http.FileServer(http.Dir(d.opts.StaticDir))))
		}
		r.Get("/*", d.serveIndex)
	}

	if base == "" {
		r.Group(routes)
	} else {
		r.Route(base, routes)
	}
	d.logger.Info("Dashboard UI mounted", log.String("path", d.opts.Path), log.Bool("auth", d.opts.authEnabled()))
}

// serveConfigJS exposes the mount path to the web app as window.basePath.
func (d *Dashboard) serveConfigJS(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = fmt.Fprintf(w, "(function() { window.basePath = %s; })();", strconv.Quote(d.opts.Path))
}

// serveIndex answers every client-side route with the single page app entry.
func (d *Dashboard) serveIndex(w http.ResponseWriter, r *http.Request) {
	if d.opts.StaticDir == "" {
		http.Error(w, "dashboard UI not installed", http.StatusNotFound)
		return
	}
	f, err := os.Open(filepath.Join(d.opts.StaticDir, indexFile))
	if err != nil {
		d.logger.Warn("Index file unavailable", log.String("dir", d.opts.StaticDir), log.Error(err))
		http.Error(w, "dashboard UI not installed", http.StatusNotFound)
		return
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	http.ServeContent(w, r, indexFile, st.ModTime(), f)
}
