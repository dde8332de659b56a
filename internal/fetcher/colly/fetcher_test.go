package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/forum-archiver/internal/crawler"
	"github.com/JakeFAU/forum-archiver/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.Init()
	m.Run()
}

func TestNewDefaults(t *testing.T) {
	t.Parallel()

	f := New(Config{UserAgent: "archiver-test"})
	if f.UserAgent() != "archiver-test" {
		t.Fatalf("expected configured user agent, got %q", f.UserAgent())
	}
	if f.baseCollector.UserAgent != "archiver-test" {
		t.Fatalf("expected collector user agent, got %q", f.baseCollector.UserAgent)
	}

	random := New(Config{})
	if random.UserAgent() == "" {
		t.Fatal("expected a random user agent when none is configured")
	}
	if !random.baseCollector.AllowURLRevisit || !random.baseCollector.ParseHTTPErrorResponse {
		t.Fatal("expected revisits and error responses to be enabled")
	}
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	req := crawler.FetchRequest{
		URL:     "http://facepunch.com/showthread.php?t=1",
		Headers: http.Header{"Referer": {"http://facepunch.com/showthread.php?t=1"}},
	}
	start := time.Unix(0, 0)
	var result crawler.FetchResponse
	var fetchErr error

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, req, start, &result, &fetchErr)
	if hooks.onRequest == nil || hooks.onResponse == nil || hooks.onError == nil {
		t.Fatal("expected hooks to be registered")
	}

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	if collyReq.Headers.Get("Referer") != "http://facepunch.com/showthread.php?t=1" {
		t.Fatalf("expected header propagation, got %+v", collyReq.Headers)
	}

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusServiceUnavailable,
		Body:       []byte("body"),
		Headers:    &http.Header{"X-Resp": {"ok"}},
		Request: &colly.Request{
			URL: mustParseURL(t, "http://facepunch.com/showthread.php?t=1"),
		},
	})
	if result.StatusCode != http.StatusServiceUnavailable || string(result.Body) != "body" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Headers.Get("X-Resp") != "ok" {
		t.Fatalf("expected headers copied, got %+v", result.Headers)
	}

	hooks.onError(nil, errors.New("boom"))
	if fetchErr == nil || fetchErr.Error() != "boom" {
		t.Fatalf("expected fetchErr set, got %v", fetchErr)
	}
}

func TestCopyHeadersHandlesNil(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	collyReq := &colly.Request{Headers: &http.Header{}}
	f.copyHeaders(crawler.FetchRequest{}, collyReq)
	if len(*collyReq.Headers) != 0 {
		t.Fatalf("expected no headers to be copied, got %+v", *collyReq.Headers)
	}
}

func TestFetchReturnsErrorStatusBodies(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("<title>Just a moment...</title>"))
	}))
	t.Cleanup(srv.Close)

	f := New(Config{UserAgent: "archiver-test"})
	resp, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: srv.URL + "/showthread.php?t=1"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, string(resp.Body), "Just a moment")

	// Revisiting the same URL must not be rejected.
	_, err = f.Fetch(context.Background(), crawler.FetchRequest{URL: srv.URL + "/showthread.php?t=1"})
	require.NoError(t, err)
}

func TestFetchSharesCookiesAndSendsHeaders(t *testing.T) {
	t.Parallel()

	var sawCookie atomic.Bool
	var referer atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/cdn-cgi/l/chk_jschl" {
			referer.Store(r.Header.Get("Referer"))
			http.SetCookie(w, &http.Cookie{Name: "cf_clearance", Value: "ok", Path: "/"})
			_, _ = w.Write([]byte("verified"))
			return
		}
		if c, err := r.Cookie("cf_clearance"); err == nil && c.Value == "ok" {
			sawCookie.Store(true)
		}
		if r.Header.Get("User-Agent") != "archiver-test" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte("thread"))
	}))
	t.Cleanup(srv.Close)

	f := New(Config{UserAgent: "archiver-test"})
	_, err := f.Fetch(context.Background(), crawler.FetchRequest{
		URL:     srv.URL + "/cdn-cgi/l/chk_jschl?jschl_vc=a&jschl_answer=1",
		Headers: http.Header{"Referer": {srv.URL + "/showthread.php?t=1"}},
	})
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/showthread.php?t=1", referer.Load())

	resp, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: srv.URL + "/showthread.php?t=1"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "thread", string(resp.Body))
	assert.True(t, sawCookie.Load(), "clearance cookie should be replayed")
}

func TestFetchWrapsTransportFailures(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	f := New(Config{Timeout: time.Second})
	_, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: addr + "/showthread.php?t=1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, crawler.ErrTransport)
	var transportErr *crawler.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Zero(t, transportErr.StatusCode)
}

func TestFetchWaitsOnThrottle(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)

	throttle := &countingThrottle{}
	f := New(Config{Throttle: throttle})
	_, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: srv.URL + "/a"})
	require.NoError(t, err)
	_, err = f.Fetch(context.Background(), crawler.FetchRequest{URL: srv.URL + "/b"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, throttle.calls.Load())

	throttle.fail = true
	_, err = f.Fetch(context.Background(), crawler.FetchRequest{URL: srv.URL + "/c"})
	require.Error(t, err)
}

func TestFetchHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := New(Config{})
	_, err := f.Fetch(ctx, crawler.FetchRequest{URL: "http://127.0.0.1:1/showthread.php?t=1"})
	require.Error(t, err)
}

type countingThrottle struct {
	calls atomic.Int32
	fail  bool
}

func (c *countingThrottle) Wait(_ context.Context, _ string) error {
	c.calls.Add(1)
	if c.fail {
		return errors.New("throttled")
	}
	return nil
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse url %q: %v", raw, err)
	}
	return u
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
