package alpaca

import (
	"io"
	"mime"
	"net/http"
	"sync"

	"github.com/hashicorp/go-metrics"
	log "github.com/sirupsen/logrus"
)

// MethodAny binds a route for every HTTP method.
const MethodAny = "*"

const (
	contentTypeJSON = "application/json"
	contentTypeText = "text/plain"
	contentTypeHTML = "text/html; charset=utf-8"

	maxBodySize = 1 << 20
)

// Exchange is the request/response capability a transport hands to a handler.
type Exchange interface {
	Method() string
	URI() string
	Args() Args

	// SendJSON sends a complete JSON document with status 200.
	SendJSON(body []byte) error
	// SendText sends a plain text body with the given status.
	SendText(status int, body string) error
	// BeginContent starts a streamed response with status 200.
	BeginContent(contentType string) ContentSession
}

// ContentSession streams a body fragment by fragment. End must be called once.
type ContentSession interface {
	Append(fragment string)
	End() error
}

// HandlerFunc handles a single matched request.
type HandlerFunc func(ex Exchange)

type route struct {
	path    string
	method  string
	handler HandlerFunc
}

// Router is an ordered table of (path, method) bindings. Paths match exactly.
// Handlers run one at a time, to completion, on the goroutine that serves
// the request.
type Router struct {
	mu     sync.Mutex
	routes []route

	logger log.FieldLogger
	msink  metrics.MetricSink
}

// NewRouter creates an empty route table.
func NewRouter(logger log.FieldLogger, sink metrics.MetricSink) *Router {
	if sink == nil {
		sink = metrics.Default()
	}
	return &Router{
		logger: logger,
		msink:  sink,
	}
}

// Bind registers a handler for an exact path and method. The first binding
// that matches a request wins.
func (r *Router) Bind(path, method string, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.routes = append(r.routes, route{path: path, method: method, handler: handler})
}

func (r *Router) match(path, method string) HandlerFunc {
	for _, rt := range r.routes {
		if rt.path != path {
			continue
		}
		if rt.method == MethodAny || rt.method == method {
			return rt.handler
		}
	}
	return nil
}

// Dispatch runs the handler bound to the exchange's URI and method, or sends
// a plain text 404 when nothing matches.
func (r *Router) Dispatch(ex Exchange) {
	r.mu.Lock()
	defer r.mu.Unlock()

	handler := r.match(ex.URI(), ex.Method())
	if handler == nil {
		r.logger.Warnf("URL not found: %s %s", ex.Method(), ex.URI())
		r.msink.IncrCounter(MetricNotFoundCount, 1)
		if err := ex.SendText(http.StatusNotFound, "Not found"); err != nil {
			r.logger.Debugf("Error writing response: %v", err)
		}
		return
	}

	r.logger.Debugf("%s %s", ex.Method(), ex.URI())
	handler(ex)
}

// ServeHTTP adapts net/http to the route table.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	ex, err := newHTTPExchange(w, req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	r.Dispatch(ex)
}

// httpExchange implements Exchange on top of net/http.
type httpExchange struct {
	w    http.ResponseWriter
	req  *http.Request
	args Args
}

func newHTTPExchange(w http.ResponseWriter, req *http.Request) (*httpExchange, error) {
	args := parseArgs(req.URL.RawQuery)

	if req.Body != nil && hasFormBody(req) {
		body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxBodySize))
		if err != nil {
			return nil, err
		}
		args = append(args, parseArgs(string(body))...)
	}

	return &httpExchange{w: w, req: req, args: args}, nil
}

// hasFormBody reports whether the request carries URL-encoded form data.
// Alpaca clients often omit the content type on PUT.
func hasFormBody(req *http.Request) bool {
	if req.Method != http.MethodPut && req.Method != http.MethodPost {
		return false
	}
	ct := req.Header.Get("Content-Type")
	if ct == "" {
		return true
	}
	mt, _, err := mime.ParseMediaType(ct)
	return err == nil && mt == "application/x-www-form-urlencoded"
}

func (e *httpExchange) Method() string { return e.req.Method }
func (e *httpExchange) URI() string    { return e.req.URL.Path }
func (e *httpExchange) Args() Args     { return e.args }

func (e *httpExchange) SendJSON(body []byte) error {
	e.w.Header().Set("Content-Type", contentTypeJSON)
	e.w.WriteHeader(http.StatusOK)
	_, err := e.w.Write(body)
	return err
}

func (e *httpExchange) SendText(status int, body string) error {
	e.w.Header().Set("Content-Type", contentTypeText)
	e.w.WriteHeader(status)
	_, err := io.WriteString(e.w, body)
	return err
}

func (e *httpExchange) BeginContent(contentType string) ContentSession {
	e.w.Header().Set("Content-Type", contentType)
	e.w.WriteHeader(http.StatusOK)
	return &httpContent{w: e.w}
}

type httpContent struct {
	w   http.ResponseWriter
	err error
}

func (c *httpContent) Append(fragment string) {
	if c.err != nil {
		return
	}
	_, c.err = io.WriteString(c.w, fragment)
}

func (c *httpContent) End() error {
	if c.err == nil {
		if f, ok := c.w.(http.Flusher); ok {
			f.Flush()
		}
	}
	return c.err
}
