package echoapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/trezcool/masomo-portals/core"
	"github.com/trezcool/masomo-portals/core/auth"
	"github.com/trezcool/masomo-portals/tests"
)

type testApp struct {
	srv    *Server
	deps   *testutil.Deps
	tokens *auth.MemoryTokenStore
}

func setup(t *testing.T, demo bool) *testApp {
	t.Helper()
	conf := core.NewTestConfig()
	conf.Debug = false
	conf.DemoMode = demo

	deps := testutil.NewDeps(conf)
	validate, translator := testutil.NewValidator()
	tokens := auth.NewMemoryTokenStore()
	srv := NewServer(ServerDeps{
		Conf:           conf,
		Logger:         testutil.NopLogger{},
		AuthSvc:        deps.Auth,
		TokenStore:     tokens,
		Validate:       validate,
		Translator:     translator,
		Registry:       prometheus.NewRegistry(),
		DisableReqLogs: true,
	})
	t.Cleanup(func() { _ = srv.Close() })
	return &testApp{srv: srv, deps: deps, tokens: tokens}
}

// browser replays the masomo_client cookie, the way a browser would.
type browser struct {
	t      *testing.T
	app    *testApp
	cookie *http.Cookie
}

func (a *testApp) newBrowser(t *testing.T) *browser {
	return &browser{t: t, app: a}
}

func (b *browser) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	b.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			b.t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if b.cookie != nil {
		req.AddCookie(b.cookie)
	}
	rec := httptest.NewRecorder()
	b.app.srv.ServeHTTP(rec, req)

	for _, c := range rec.Result().Cookies() {
		if c.Name == clientCookieName {
			b.cookie = c
		}
	}
	return rec
}

func (b *browser) get(path string) *httptest.ResponseRecorder {
	b.t.Helper()
	return b.do(http.MethodGet, path, nil)
}

func (b *browser) post(path string, body interface{}) *httptest.ResponseRecorder {
	b.t.Helper()
	return b.do(http.MethodPost, path, body)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
}

func decodeMap(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	decode(t, rec, &m)
	return m
}
