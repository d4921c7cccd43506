package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/roach88/flyter/internal/config"
	"github.com/roach88/flyter/internal/host"
	"github.com/roach88/flyter/internal/kv"
)

func TestMain(m *testing.M) {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	os.Exit(m.Run())
}

func newTestServer(t *testing.T, mutate func(*config.ServerConfig)) *Server {
	t.Helper()

	cfg := config.Default().Server
	cfg.RateLimit = config.RateLimitConfig{RPS: 1000, Burst: 1000}
	if mutate != nil {
		mutate(&cfg)
	}

	reg := prometheus.NewRegistry()
	h := host.New(kv.NewMemory(), host.WithMetrics(host.NewMetrics(reg)))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return New(h, cfg, reg)
}

type request struct {
	method  string
	path    string
	user    string
	body    string
	headers map[string]string
}

func (s *Server) do(r request) *fasthttp.RequestCtx {
	var ctx fasthttp.RequestCtx
	ctx.Request.Header.SetMethod(r.method)
	ctx.Request.SetRequestURI(r.path)
	if r.user != "" {
		ctx.Request.Header.Set(headerUserID, r.user)
	}
	for k, v := range r.headers {
		ctx.Request.Header.Set(k, v)
	}
	if r.body != "" {
		ctx.Request.SetBodyString(r.body)
	}
	s.Handler()(&ctx)
	return &ctx
}

func decode(t *testing.T, ctx *fasthttp.RequestCtx) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &out), "body: %s", ctx.Response.Body())
	return out
}

func TestScenarioOverHTTP(t *testing.T) {
	s := newTestServer(t, nil)

	ctx := s.do(request{method: "GET", path: "/v1/count"})
	require.Equal(t, 200, ctx.Response.StatusCode())
	assert.Equal(t, 0.0, decode(t, ctx)["count"])

	ctx = s.do(request{method: "POST", path: "/v1/flyts", user: "A", body: `{"recipient":"B","content":"hi"}`})
	require.Equal(t, 201, ctx.Response.StatusCode(), "%s", ctx.Response.Body())
	assert.Equal(t, 1.0, decode(t, ctx)["id"])
	assert.Equal(t, "/v1/flyts/1", string(ctx.Response.Header.Peek("Location")))

	ctx = s.do(request{method: "POST", path: "/v1/flyts/1/replies", user: "B", body: `{"content":"hey"}`})
	require.Equal(t, 201, ctx.Response.StatusCode(), "%s", ctx.Response.Body())
	assert.Equal(t, 2.0, decode(t, ctx)["id"])

	ctx = s.do(request{method: "GET", path: "/v1/flyts/2"})
	require.Equal(t, 200, ctx.Response.StatusCode())
	msg := decode(t, ctx)
	assert.Equal(t, "B", msg["sender"])
	assert.Equal(t, "A", msg["recipient"])
	assert.Equal(t, 1.0, msg["in_reply_to"])
	assert.Equal(t, "aGV5", msg["content"])
	assert.NotContains(t, msg, "sender_nickname")

	ctx = s.do(request{method: "POST", path: "/v1/flyts/1/replies", user: "C", body: `{"content":"me too"}`})
	assert.Equal(t, 403, ctx.Response.StatusCode())
	assert.Equal(t, "NOT_ADDRESSEE", decode(t, ctx)["code"])

	ctx = s.do(request{method: "GET", path: "/v1/count"})
	assert.Equal(t, 2.0, decode(t, ctx)["count"])

	for i := 0; i < 2; i++ {
		ctx = s.do(request{method: "POST", path: "/v1/flyts/2/likes", user: "C"})
		require.Equal(t, 200, ctx.Response.StatusCode())
	}
	ctx = s.do(request{method: "GET", path: "/v1/flyts/2/stats"})
	require.Equal(t, 200, ctx.Response.StatusCode())
	assert.Equal(t, 2.0, decode(t, ctx)["like_count"])
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t, nil)
	s.do(request{method: "POST", path: "/v1/flyts", user: "A", body: `{"recipient":"B","content":"hi"}`})

	tests := []struct {
		name   string
		req    request
		status int
		code   string
	}{
		{"get missing", request{method: "GET", path: "/v1/flyts/9"}, 404, "NOT_FOUND"},
		{"stats missing", request{method: "GET", path: "/v1/flyts/9/stats"}, 404, "NOT_FOUND"},
		{"like missing", request{method: "POST", path: "/v1/flyts/9/likes", user: "A"}, 404, "NOT_FOUND"},
		{"reply missing", request{method: "POST", path: "/v1/flyts/9/replies", user: "B", body: `{"content":"x"}`}, 404, "NO_SUCH_MESSAGE"},
		{"tip zero", request{method: "POST", path: "/v1/flyts/1/tips", user: "A", body: `{"amount":0}`}, 400, "INVALID_AMOUNT"},
		{"bad id", request{method: "GET", path: "/v1/flyts/abc"}, 400, "bad_request"},
		{"post anonymous", request{method: "POST", path: "/v1/flyts", body: `{"recipient":"B"}`}, 401, "unauthorized"},
		{"post no recipient", request{method: "POST", path: "/v1/flyts", user: "A", body: `{"content":"x"}`}, 400, "bad_request"},
		{"post bad json", request{method: "POST", path: "/v1/flyts", user: "A", body: `{`}, 400, "bad_request"},
		{"reply with recipient", request{method: "POST", path: "/v1/flyts/1/replies", user: "B", body: `{"recipient":"Z"}`}, 400, "bad_request"},
		{"both encodings", request{method: "POST", path: "/v1/flyts", user: "A", body: `{"recipient":"B","content":"x","content_base64":"eA=="}`}, 400, "bad_request"},
		{"wrong method", request{method: "GET", path: "/v1/flyts"}, 405, "method_not_allowed"},
		{"unknown route", request{method: "GET", path: "/v1/nope"}, 404, "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := s.do(tt.req)
			assert.Equal(t, tt.status, ctx.Response.StatusCode(), "%s", ctx.Response.Body())
			assert.Equal(t, tt.code, decode(t, ctx)["code"])
		})
	}
}

func TestBinaryContentAndNickname(t *testing.T) {
	s := newTestServer(t, nil)

	ctx := s.do(request{method: "POST", path: "/v1/flyts", user: "A",
		body: `{"recipient":"B","content_base64":"AP8=","nickname":"al"}`})
	require.Equal(t, 201, ctx.Response.StatusCode(), "%s", ctx.Response.Body())

	ctx = s.do(request{method: "GET", path: "/v1/flyts/1"})
	msg := decode(t, ctx)
	assert.Equal(t, "AP8=", msg["content"])
	assert.Equal(t, "al", msg["sender_nickname"])
	assert.Len(t, msg["digest"], 64)
}

func TestContentTooLarge(t *testing.T) {
	s := newTestServer(t, func(c *config.ServerConfig) { c.MaxContentBytes = 4 })

	ctx := s.do(request{method: "POST", path: "/v1/flyts", user: "A", body: `{"recipient":"B","content":"12345"}`})
	assert.Equal(t, 413, ctx.Response.StatusCode())

	ctx = s.do(request{method: "POST", path: "/v1/flyts", user: "A", body: `{"recipient":"B","content":"1234"}`})
	assert.Equal(t, 201, ctx.Response.StatusCode())
}

func TestETag(t *testing.T) {
	s := newTestServer(t, nil)
	s.do(request{method: "POST", path: "/v1/flyts", user: "A", body: `{"recipient":"B","content":"hi"}`})

	ctx := s.do(request{method: "GET", path: "/v1/flyts/1"})
	etag := string(ctx.Response.Header.Peek("ETag"))
	require.NotEmpty(t, etag)

	ctx = s.do(request{method: "GET", path: "/v1/flyts/1", headers: map[string]string{"If-None-Match": etag}})
	assert.Equal(t, 304, ctx.Response.StatusCode())
}

func TestSignedCallers(t *testing.T) {
	s := newTestServer(t, func(c *config.ServerConfig) { c.SigningKeys = []string{"old", "new"} })
	body := `{"recipient":"B","content":"hi"}`

	ctx := s.do(request{method: "POST", path: "/v1/flyts", user: "A", body: body})
	assert.Equal(t, 401, ctx.Response.StatusCode())

	ctx = s.do(request{method: "POST", path: "/v1/flyts", user: "A", body: body,
		headers: map[string]string{headerSignature: Sign("B", "new")}})
	assert.Equal(t, 401, ctx.Response.StatusCode(), "signature for another user")

	for _, key := range []string{"old", "new"} {
		ctx = s.do(request{method: "POST", path: "/v1/flyts", user: "A", body: body,
			headers: map[string]string{headerSignature: Sign("A", key)}})
		assert.Equal(t, 201, ctx.Response.StatusCode(), "key %s", key)
	}

	// Reads stay open to anonymous callers.
	ctx = s.do(request{method: "GET", path: "/v1/count"})
	assert.Equal(t, 200, ctx.Response.StatusCode())
}

func TestIdentityTooLong(t *testing.T) {
	s := newTestServer(t, nil)
	ctx := s.do(request{method: "GET", path: "/v1/count", user: strings.Repeat("x", maxIdentityLen+1)})
	assert.Equal(t, 400, ctx.Response.StatusCode())
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, func(c *config.ServerConfig) {
		c.RateLimit = config.RateLimitConfig{RPS: 0.001, Burst: 2}
	})

	for i := 0; i < 2; i++ {
		ctx := s.do(request{method: "GET", path: "/v1/count", user: "A"})
		require.Equal(t, 200, ctx.Response.StatusCode())
	}
	ctx := s.do(request{method: "GET", path: "/v1/count", user: "A"})
	assert.Equal(t, 429, ctx.Response.StatusCode())

	// Buckets are per caller.
	ctx = s.do(request{method: "GET", path: "/v1/count", user: "B"})
	assert.Equal(t, 200, ctx.Response.StatusCode())

	// Probes are never limited.
	ctx = s.do(request{method: "GET", path: "/healthz", user: "A"})
	assert.Equal(t, 200, ctx.Response.StatusCode())
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	s.do(request{method: "POST", path: "/v1/flyts", user: "A", body: `{"recipient":"B","content":"hi"}`})

	ln := fasthttputil.NewInmemoryListener()
	srv := &fasthttp.Server{Handler: s.Handler()}
	go func() { _ = srv.Serve(ln) }()
	defer ln.Close()

	client := &fasthttp.Client{Dial: func(string) (net.Conn, error) { return ln.Dial() }}
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI("http://flyter/metrics")
	require.NoError(t, client.DoTimeout(req, resp, 5*time.Second))
	assert.Equal(t, 200, resp.StatusCode())
	assert.Contains(t, string(resp.Body()), `flyter_calls_total{op="post",outcome="ok"} 1`)
	assert.Contains(t, string(resp.Body()), "flyter_messages 1")
}

func TestSign(t *testing.T) {
	sig := Sign("alice", "k")
	assert.Len(t, sig, 64)
	assert.True(t, verifySignature("alice", sig, []string{"x", "k"}))
	assert.False(t, verifySignature("bob", sig, []string{"k"}))
	assert.False(t, verifySignature("alice", sig, nil))
}
