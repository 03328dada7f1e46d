package router

import (
	"log"
	"net/http"
	"strings"
	"time"
)

// ANSI colors for the request log
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
)

type HandlerFunc func(http.ResponseWriter, *http.Request)

// Router is a small method-aware mux with "*" path segments and colored
// request logging. Routes registered first win; a trailing "*" segment
// matches any number of remaining segments.
type Router struct {
	routes   []route
	mounts   map[string]http.Handler // prefix -> handler, checked first
	notFound HandlerFunc
}

type route struct {
	method   string
	segments []string
	handler  HandlerFunc
}

func New() *Router {
	return &Router{mounts: make(map[string]http.Handler)}
}

func (r *Router) GET(path string, h HandlerFunc)    { r.register(http.MethodGet, path, h) }
func (r *Router) POST(path string, h HandlerFunc)   { r.register(http.MethodPost, path, h) }
func (r *Router) PUT(path string, h HandlerFunc)    { r.register(http.MethodPut, path, h) }
func (r *Router) PATCH(path string, h HandlerFunc)  { r.register(http.MethodPatch, path, h) }
func (r *Router) DELETE(path string, h HandlerFunc) { r.register(http.MethodDelete, path, h) }

// Mount attaches an http.Handler under a path prefix (e.g. swagger UI)
func (r *Router) Mount(prefix string, h http.Handler) {
	r.mounts[prefix] = h
}

func (r *Router) register(method, path string, handler HandlerFunc) {
	r.routes = append(r.routes, route{
		method:   method,
		segments: strings.Split(strings.Trim(path, "/"), "/"),
		handler:  handler,
	})
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	start := time.Now()
	lrw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

	r.dispatch(lrw, req)

	log.Printf("%s[%s]%s %s%s%s %s %s%d%s %s(%v)%s",
		colorCyan, start.Format("2006-01-02 15:04:05"), colorReset,
		methodColor(req.Method), req.Method, colorReset,
		req.URL.Path,
		statusColor(lrw.statusCode), lrw.statusCode, colorReset,
		colorBlue, time.Since(start), colorReset,
	)
}

func (r *Router) dispatch(w http.ResponseWriter, req *http.Request) {
	for prefix, h := range r.mounts {
		if strings.HasPrefix(req.URL.Path, prefix) {
			h.ServeHTTP(w, req)
			return
		}
	}

	segments := strings.Split(strings.Trim(req.URL.Path, "/"), "/")
	pathKnown := false

	for _, rt := range r.routes {
		if !matchSegments(segments, rt.segments) {
			continue
		}

		pathKnown = true

		if rt.method == req.Method {
			rt.handler(w, req)
			return
		}
	}

	if pathKnown {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.notFound != nil {
		r.notFound(w, req)
		return
	}

	http.Error(w, "Not Found", http.StatusNotFound)
}

// matchSegments matches a request path against a route pattern. A "*"
// segment matches exactly one segment, except in the final position
// where it matches one or more remaining segments.
func matchSegments(path, pattern []string) bool {
	last := len(pattern) - 1

	if pattern[last] == "*" {
		if len(path) < len(pattern) {
			return false
		}
	} else if len(path) != len(pattern) {
		return false
	}

	for i, seg := range pattern {
		if seg == "*" {
			continue
		}

		if i >= len(path) || path[i] != seg {
			return false
		}
	}

	return true
}

// Start blocks serving HTTP on addr
func (r *Router) Start(addr string) {
	log.Printf("🚀 Server started on %shttp://localhost%s%s", colorGreen, addr, colorReset)
	log.Fatal(http.ListenAndServe(addr, r))
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusColor(code int) string {
	switch {
	case code >= 200 && code < 300:
		return colorGreen
	case code >= 300 && code < 400:
		return colorCyan
	case code >= 400 && code < 500:
		return colorYellow
	default:
		return colorRed
	}
}

func methodColor(method string) string {
	switch method {
	case http.MethodGet:
		return colorGreen
	case http.MethodPost:
		return colorBlue
	case http.MethodPut, http.MethodPatch:
		return colorYellow
	case http.MethodDelete:
		return colorRed
	default:
		return colorCyan
	}
}
