package devserver

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"wormchat/internal/transport"
)

func newTestServer(t *testing.T, cfg Config) (*Server, *transport.Client) {
	t.Helper()
	s := New(cfg)
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return s, transport.NewClient(transport.Config{BaseURL: srv.URL, APIKey: cfg.APIKey})
}

func TestServer_ConversationRoundTrip(t *testing.T) {
	s, client := newTestServer(t, Config{})
	ctx := context.Background()

	first, err := client.Send(ctx, transport.Request{MailAddress: "ada@example.com", ChatText: "hello"})
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)
	assert.Contains(t, first.OutputText, "### Turn 1")
	assert.Contains(t, first.OutputText, "> hello")

	second, err := client.Send(ctx, transport.Request{ID: first.ID, MailAddress: "ada@example.com", ChatText: "again"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "conversation id is kept")
	assert.Contains(t, second.OutputText, "### Turn 2")
	assert.Equal(t, 2, s.ConversationTurns(first.ID))
}

func TestServer_UnknownIDIsAdopted(t *testing.T) {
	s, client := newTestServer(t, Config{})

	resp, err := client.Send(context.Background(), transport.Request{ID: "restored-id", MailAddress: "ada@example.com", ChatText: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "restored-id", resp.ID)
	assert.Equal(t, 1, s.ConversationTurns("restored-id"))
}

func TestServer_ValidationReturnsDetailArray(t *testing.T) {
	_, client := newTestServer(t, Config{})

	tests := []struct {
		name string
		req  transport.Request
		want string
	}{
		{"missing both", transport.Request{}, "mailAddress is required, chatText is required"},
		{"bad email", transport.Request{MailAddress: "not-an-email", ChatText: "hi"}, "mailAddress must be a valid email address"},
		{"too long", transport.Request{MailAddress: "ada@example.com", ChatText: strings.Repeat("x", MaxChatTextRunes+1)}, "chatText must be at most 4000 characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Send(context.Background(), tt.req)
			var ve *transport.ValidationError
			require.True(t, errors.As(err, &ve), "got %T", err)
			assert.Equal(t, tt.want, ve.Error())
		})
	}
}

func TestServer_MaxLengthCountsRunes(t *testing.T) {
	_, client := newTestServer(t, Config{})

	_, err := client.Send(context.Background(), transport.Request{
		MailAddress: "ada@example.com",
		ChatText:    strings.Repeat("ワ", MaxChatTextRunes),
	})
	assert.NoError(t, err)
}

func TestServer_APIKey(t *testing.T) {
	s := New(Config{APIKey: "secret"})
	srv := httptest.NewServer(s)
	defer srv.Close()

	ok := transport.NewClient(transport.Config{BaseURL: srv.URL, APIKey: "secret"})
	_, err := ok.Send(context.Background(), transport.Request{MailAddress: "ada@example.com", ChatText: "hi"})
	require.NoError(t, err)

	bad := transport.NewClient(transport.Config{BaseURL: srv.URL, APIKey: "wrong"})
	_, err = bad.Send(context.Background(), transport.Request{MailAddress: "ada@example.com", ChatText: "hi"})
	var ue *transport.UnexpectedError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, http.StatusUnauthorized, ue.StatusCode)
}

func TestServer_ResponderFailureIs502(t *testing.T) {
	_, client := newTestServer(t, Config{
		Responder: ResponderFunc(func(context.Context, Turn) (string, error) {
			return "", errors.New("model unavailable")
		}),
	})

	_, err := client.Send(context.Background(), transport.Request{MailAddress: "ada@example.com", ChatText: "hi"})
	var ue *transport.UpstreamServiceError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, transport.MsgUpstreamFailure, err.Error())
}

func TestServer_MalformedBody(t *testing.T) {
	s := New(Config{})
	srv := httptest.NewServer(s)
	defer srv.Close()

	resp, err := http.Post(srv.URL+transport.PostPath, "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `["request body must be a JSON object"]`, string(body))
}

func TestServer_HealthAndMetrics(t *testing.T) {
	s := New(Config{})
	srv := httptest.NewServer(s)
	defer srv.Close()

	client := transport.NewClient(transport.Config{BaseURL: srv.URL})
	_, err := client.Send(context.Background(), transport.Request{MailAddress: "ada@example.com", ChatText: "hi"})
	require.NoError(t, err)
	_, _ = client.Send(context.Background(), transport.Request{MailAddress: "bad", ChatText: "hi"})

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	text := string(body)
	assert.Contains(t, text, `wormchat_stub_requests_total{status="200"} 1`)
	assert.Contains(t, text, `wormchat_stub_requests_total{status="400"} 1`)
	assert.Contains(t, text, "wormchat_stub_conversations_started_total 1")
	assert.Contains(t, text, "wormchat_stub_validation_failures_total 1")
}

func TestServer_CORSPreflight(t *testing.T) {
	s := New(Config{})
	srv := httptest.NewServer(s)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodOptions, srv.URL+transport.PostPath, nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "content-type,x-functions-key")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestServer_ListenAndServeStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()

	s := New(Config{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx, addr) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	http.DefaultClient.CloseIdleConnections()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}
