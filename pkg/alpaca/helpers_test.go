package alpaca

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"alpacarelay/templates"

	"github.com/hashicorp/go-metrics"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

// fakeExchange records what a handler sends.
type fakeExchange struct {
	method string
	uri    string
	args   Args

	status      int
	contentType string
	body        strings.Builder
	ended       bool
}

func (e *fakeExchange) Method() string { return e.method }
func (e *fakeExchange) URI() string    { return e.uri }
func (e *fakeExchange) Args() Args     { return e.args }

func (e *fakeExchange) SendJSON(body []byte) error {
	e.status, e.contentType = http.StatusOK, contentTypeJSON
	e.body.Write(body)
	return nil
}

func (e *fakeExchange) SendText(status int, body string) error {
	e.status, e.contentType = status, contentTypeText
	e.body.WriteString(body)
	return nil
}

func (e *fakeExchange) BeginContent(contentType string) ContentSession {
	e.status, e.contentType = http.StatusOK, contentType
	return e
}

func (e *fakeExchange) Append(fragment string) { e.body.WriteString(fragment) }

func (e *fakeExchange) End() error {
	e.ended = true
	return nil
}

func (e *fakeExchange) envelope(t *testing.T) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(e.body.String()), &m))
	return m
}

type testEnv struct {
	router  *Router
	server  *Server
	counter *TransactionCounter
	sink    *metrics.InmemSink
}

func newTestEnv(t *testing.T, devices ...DeviceConfig) *testEnv {
	t.Helper()

	logger, _ := test.NewNullLogger()
	sink := metrics.NewInmemSink(time.Minute, time.Minute)

	tmpl, err := templates.LoadTemplates()
	require.NoError(t, err)

	counter := &TransactionCounter{}
	resp := NewResponder(counter, logger, sink)
	pages := NewPageRenderer(tmpl, "Test Server", logger)
	server := NewServer(ServerDescription{
		Name:                "Test Server",
		Manufacturer:        "My Company",
		ManufacturerVersion: "v1.0.0",
		Location:            "FR",
	}, resp, pages, logger)

	for _, cfg := range devices {
		dev, err := NewCommonDevice(cfg, 1, logger)
		require.NoError(t, err)
		require.NoError(t, server.AddDevice(dev))
	}

	router := NewRouter(logger, sink)
	server.AddRoutes(router)

	return &testEnv{router: router, server: server, counter: counter, sink: sink}
}

func (env *testEnv) do(method, target string, form url.Values) *httptest.ResponseRecorder {
	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}

	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, contentTypeJSON, rec.Header().Get("Content-Type"))

	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	return m
}

func counterValue(sink *metrics.InmemSink, key string) int {
	total := 0
	for _, intv := range sink.Data() {
		if sv, ok := intv.Counters[key]; ok {
			total += sv.Count
		}
	}
	return total
}
