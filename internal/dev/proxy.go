package dev

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Front is the HTTP surface of the dev loop: the reload WebSocket, the
// metrics endpoint and a reverse proxy to the site server that injects
// the reload client script into HTML responses.
type Front struct {
	reload *ReloadServer
	target *url.URL
	logf   func(format string, args ...any)
	server *http.Server
}

// FrontOptions configures a Front.
type FrontOptions struct {
	// Addr is the address the front listens on.
	Addr string

	// Target is the site server base URL, e.g. "http://127.0.0.1:3000".
	Target string

	// Reload serves the reload WebSocket and is used for script
	// injection.
	Reload *ReloadServer

	// Logf receives diagnostic output. Nil discards it.
	Logf func(format string, args ...any)
}

// NewFront creates the dev HTTP front.
func NewFront(opts FrontOptions) (*Front, error) {
	target, err := url.Parse(opts.Target)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy target %q: %w", opts.Target, err)
	}
	logf := opts.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}

	f := &Front{
		reload: opts.Reload,
		target: target,
		logf:   logf,
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Route("/_sitewatch", func(r chi.Router) {
		if f.reload != nil {
			r.Get("/reload", f.reload.HandleWebSocket)
		}
		r.Handle("/metrics", promhttp.Handler())
	})
	r.NotFound(f.proxy().ServeHTTP)

	f.server = &http.Server{
		Addr:    opts.Addr,
		Handler: r,
	}
	return f, nil
}

// ListenAndServe serves until ctx is cancelled.
func (f *Front) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := f.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()
	f.logf("front: listening on %s", f.server.Addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = f.server.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

// proxy builds the reverse proxy to the site server.
func (f *Front) proxy() *httputil.ReverseProxy {
	proxy := httputil.NewSingleHostReverseProxy(f.target)

	proxy.ModifyResponse = func(resp *http.Response) error {
		if f.reload == nil {
			return nil
		}
		if !strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
			return nil
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		resp.Body.Close()

		injected := injectScript(string(body), ReloadClientScript)
		resp.Body = io.NopCloser(strings.NewReader(injected))
		resp.ContentLength = int64(len(injected))
		resp.Header.Set("Content-Length", fmt.Sprintf("%d", len(injected)))
		return nil
	}

	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		f.logf("front: proxy error: %v", err)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusBadGateway)
		script := ""
		if f.reload != nil {
			script = ReloadClientScript
		}
		fmt.Fprintf(w, notRunningPage, script)
	}

	return proxy
}

// injectScript inserts the reload client before </body>, falling back
// to </html> and then plain append.
func injectScript(html, script string) string {
	if idx := strings.LastIndex(html, "</body>"); idx != -1 {
		return html[:idx] + script + html[idx:]
	}
	if idx := strings.LastIndex(html, "</html>"); idx != -1 {
		return html[:idx] + script + html[idx:]
	}
	return html + script
}

const notRunningPage = `<!DOCTYPE html>
<html>
<head><title>sitewatch</title></head>
<body style="font-family: system-ui; padding: 40px; background: #1a1a1a; color: #fff;">
<h1 style="color: #ff5555;">Site Not Running</h1>
<p>The site server is not responding. This could mean:</p>
<ul>
<li>The site is still building</li>
<li>There was a build error (check your terminal)</li>
<li>The server crashed on startup</li>
</ul>
<p style="color: #888;">The page will reload automatically when the site is ready.</p>
%s
</body>
</html>`
