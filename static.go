package hydrant

import (
	"net/http"
	"path"
	"path/filepath"
	"strings"
)

// staticRelPath maps a request path to a relative file path inside the
// static directory. It refuses anything that could escape the
// directory: traversal segments, absolute paths, backslashes, NULs.
func (a *App) staticRelPath(urlPath string) (string, bool) {
	if a.staticFS == nil {
		return "", false
	}

	rel, ok := a.stripStaticPrefix(urlPath)
	if !ok || rel == "" {
		return "", false
	}
	if strings.IndexByte(rel, 0) != -1 || strings.Contains(rel, "\\") {
		return "", false
	}
	// "/static//etc/passwd" strips to "/etc/passwd".
	if strings.HasPrefix(rel, "/") {
		return "", false
	}
	// Reject dot-segments before Clean so traversal attempts are not
	// silently rewritten into valid paths.
	for _, seg := range strings.Split(rel, "/") {
		if seg == "." || seg == ".." {
			return "", false
		}
	}

	clean := path.Clean(rel)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") || strings.HasPrefix(clean, "/") {
		return "", false
	}
	if osPath := filepath.FromSlash(clean); filepath.IsAbs(osPath) || filepath.VolumeName(osPath) != "" {
		return "", false
	}
	return clean, true
}

// shouldServeStatic reports whether the path names an existing file in
// the static directory. Misses fall through to page rendering.
func (a *App) shouldServeStatic(urlPath string) bool {
	rel, ok := a.staticRelPath(urlPath)
	if !ok {
		return false
	}
	f, err := a.staticFS.Open(rel)
	if err != nil {
		return false
	}
	defer f.Close()
	info, err := f.Stat()
	return err == nil && !info.IsDir()
}

func (a *App) serveStatic(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	rel, ok := a.staticRelPath(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}
	f, err := a.staticFS.Open(rel)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Cache-Control", a.assetCacheControl(rel))
	http.ServeContent(w, r, rel, info.ModTime(), f)
}

// stripStaticPrefix removes the configured prefix from the URL path.
func (a *App) stripStaticPrefix(urlPath string) (string, bool) {
	prefix := a.staticPrefix
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	if prefix == "/" {
		return strings.TrimPrefix(urlPath, "/"), true
	}
	if !strings.HasPrefix(urlPath, prefix) {
		return "", false
	}
	return strings.TrimPrefix(urlPath, prefix), true
}

// assetCacheControl picks a Cache-Control value for a static asset.
// Fingerprinted bundles never change under the same name, so they are
// marked immutable. Dev mode disables caching entirely.
func (a *App) assetCacheControl(rel string) string {
	if a.cfg.DevMode {
		return "no-store, no-cache, must-revalidate"
	}
	if isFingerprinted(rel) {
		return "public, max-age=31536000, immutable"
	}
	return "public, max-age=3600, must-revalidate"
}

// isFingerprinted reports whether a file name carries a build hash,
// e.g. "vendor.4f9a02c1.js".
func isFingerprinted(rel string) bool {
	parts := strings.Split(path.Base(rel), ".")
	if len(parts) < 3 {
		return false
	}
	hash := parts[len(parts)-2]
	if len(hash) < 8 {
		return false
	}
	for _, c := range hash {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
