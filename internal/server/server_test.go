package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/BlackMission/idpauth/internal/domain"
	"github.com/BlackMission/idpauth/internal/metrics"
	"github.com/BlackMission/idpauth/pkg/testutil"
)

func testClient() *http.Client {
	return &http.Client{Transport: &http.Transport{DisableKeepAlives: true}, Timeout: 5 * time.Second}
}

func openTestChannel(t *testing.T) *Channel {
	t.Helper()
	ch, err := Open(context.Background(), Config{Host: "127.0.0.1", AuthDomain: "auth.example.com"}, Deps{})
	require.NoError(t, err)
	return ch
}

func closeChannel(t *testing.T, ch *Channel) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, ch.Close(ctx))
}

func TestOpen_HealthAndMessage(t *testing.T) {
	defer goleak.VerifyNone(t)

	ch := openTestChannel(t)
	defer closeChannel(t, ch)

	var got *domain.Message
	require.NoError(t, ch.Register(domain.AuthEventMessageType, func(_ context.Context, msg *domain.Message) (any, error) {
		got = msg
		return domain.NewAck(), nil
	}))

	client := testClient()
	defer client.CloseIdleConnections()

	resp, err := client.Get(ch.URL() + HealthPath)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, _ := json.Marshal(domain.Message{
		EventType: domain.AuthEventMessageType,
		AuthEvent: &domain.AuthEvent{EventID: "e1", Type: domain.SignInViaPopup, Outcome: domain.OutcomeSuccess},
	})
	resp, err = client.Post(ch.URL()+MessagePath, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ack domain.Ack
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ack))
	assert.Equal(t, "ACK", ack.Status)
	require.NotNil(t, got)
	assert.Equal(t, "e1", got.AuthEvent.EventID)
}

func TestOpen_PortInUse(t *testing.T) {
	defer goleak.VerifyNone(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	_, err = Open(context.Background(), Config{Host: "127.0.0.1", Port: port}, Deps{})
	assert.ErrorIs(t, err, domain.ErrChannelInit)
}

func TestOpen_CancelledContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Open(ctx, Config{Host: "127.0.0.1"}, Deps{})
	assert.True(t, errors.Is(err, domain.ErrChannelInit), "expected ErrChannelInit, got %v", err)
}

func TestClose_Idempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	ch := openTestChannel(t)
	closeChannel(t, ch)
	closeChannel(t, ch)
}

func TestHealthRoute(t *testing.T) {
	ch := New(Config{AuthDomain: "auth.example.com"}, Deps{})

	rr := testutil.DoRequest(t, ch.Handler(), http.MethodGet, HealthPath, nil)
	testutil.AssertStatus(t, rr, http.StatusOK)
}

func TestMessageRoute_UnregisteredType(t *testing.T) {
	ch := New(Config{AuthDomain: "auth.example.com"}, Deps{})

	rr := testutil.PostJSON(t, ch.Handler(), MessagePath, domain.Message{EventType: domain.AuthEventMessageType})
	testutil.AssertStatus(t, rr, http.StatusNotFound)
}

func TestMessageRoute_WrongMethod(t *testing.T) {
	ch := New(Config{AuthDomain: "auth.example.com"}, Deps{})

	rr := testutil.DoRequest(t, ch.Handler(), http.MethodGet, MessagePath, nil)
	testutil.AssertStatus(t, rr, http.StatusMethodNotAllowed)
}

func TestMetricsRoute(t *testing.T) {
	m, err := metrics.New(nil)
	require.NoError(t, err)
	m.EventRegistered(string(domain.SignInViaPopup))

	ch := New(Config{AuthDomain: "auth.example.com"}, Deps{Metrics: m})

	rr := testutil.DoRequest(t, ch.Handler(), http.MethodGet, MetricsPath, nil)
	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.Contains(t, rr.Body.String(), "idpauth_events_registered_total")
}

func TestMetricsRoute_Disabled(t *testing.T) {
	ch := New(Config{AuthDomain: "auth.example.com"}, Deps{})

	rr := testutil.DoRequest(t, ch.Handler(), http.MethodGet, MetricsPath, nil)
	testutil.AssertStatus(t, rr, http.StatusNotFound)
}

func TestCORS_WidgetOriginOnly(t *testing.T) {
	ch := New(Config{AuthDomain: "auth.example.com"}, Deps{})

	preflight := func(origin string) string {
		rr := testutil.DoRequest(t, ch.Handler(), http.MethodOptions, MessagePath, map[string]string{
			"Origin":                        origin,
			"Access-Control-Request-Method": http.MethodPost,
		})
		return rr.Header().Get("Access-Control-Allow-Origin")
	}

	assert.Equal(t, "https://auth.example.com", preflight("https://auth.example.com"))
	assert.Empty(t, preflight("https://evil.example.com"))
	assert.Empty(t, preflight("http://auth.example.com"))
}

func TestCORS_NoAuthDomainAllowsNothing(t *testing.T) {
	ch := New(Config{}, Deps{})

	rr := testutil.DoRequest(t, ch.Handler(), http.MethodOptions, MessagePath, map[string]string{
		"Origin":                        "https://anything.example.com",
		"Access-Control-Request-Method": http.MethodPost,
	})
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_AllowAuthDomain(t *testing.T) {
	ch := New(Config{AuthDomain: "auth.example.com"}, Deps{})
	ch.AllowAuthDomain("other.example.com")
	ch.AllowAuthDomain("other.example.com")
	ch.AllowAuthDomain("")

	preflight := func(origin string) string {
		rr := testutil.DoRequest(t, ch.Handler(), http.MethodOptions, MessagePath, map[string]string{
			"Origin":                        origin,
			"Access-Control-Request-Method": http.MethodPost,
		})
		return rr.Header().Get("Access-Control-Allow-Origin")
	}

	assert.Equal(t, "https://auth.example.com", preflight("https://auth.example.com"))
	assert.Equal(t, "https://other.example.com", preflight("https://other.example.com"))
	assert.Empty(t, preflight("https://evil.example.com"))
}
