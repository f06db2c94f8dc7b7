package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"puzzle-scoring-service/internal/app"
	"puzzle-scoring-service/internal/domain"
	"puzzle-scoring-service/internal/infra/memory"
	"puzzle-scoring-service/internal/logger"
	"puzzle-scoring-service/internal/metrics"
)

func TestWebSocketSubmitFlow(t *testing.T) {
	server, _ := newTestServer(t)

	u := "ws" + server.URL[len("http"):] + "/ws?userId=u1"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// The subscription is primed with the current standings.
	readNext(conn, t, "ranking")

	submit := map[string]any{
		"type": "submit",
		"payload": map[string]any{
			"challengeId": "velas",
			"answer":      "Diecisiete!",
			"elapsedMs":   60000,
		},
	}
	if err := conn.WriteJSON(submit); err != nil {
		t.Fatalf("write submit: %v", err)
	}

	var result map[string]any
	rankingSeen := false
	for i := 0; i < 4 && (result == nil || !rankingSeen); i++ {
		typ, payload := readNext(conn, t, "")
		switch typ {
		case "attemptResult":
			result = payload
		case "ranking":
			entries, _ := payload["entries"].([]any)
			rankingSeen = len(entries) > 0
		}
	}
	if result == nil || !rankingSeen {
		t.Fatalf("expected attemptResult and ranking, got result=%v ranking=%v", result, rankingSeen)
	}
	attempt := result["attempt"].(map[string]any)
	if attempt["correct"] != true || attempt["score"] != float64(48) {
		t.Fatalf("unexpected attempt: %v", attempt)
	}
	if result["remaining"] != float64(2) || result["solved"] != true {
		t.Fatalf("unexpected result: %v", result)
	}

	// A second submission is refused once solved.
	if err := conn.WriteJSON(submit); err != nil {
		t.Fatalf("write submit: %v", err)
	}
	for {
		typ, payload := readNext(conn, t, "")
		if typ == "ranking" {
			continue
		}
		if typ != "rejected" || payload["reason"] != string(domain.ReasonAlreadySolved) {
			t.Fatalf("expected already_solved rejection, got %s %v", typ, payload)
		}
		break
	}
}

func TestWebSocketRequiresUser(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIEndpoints(t *testing.T) {
	server, svc := newTestServer(t)
	ctx := context.Background()

	attempt, err := svc.Submit(ctx, "u2", "velas", "17", nil)
	require.NoError(t, err)
	_, err = svc.Submit(ctx, "u1", "velas", "18", nil)
	require.NoError(t, err)

	var page []domain.RankingEntry
	getJSON(t, server.URL+"/ranking?limit=2", http.StatusOK, &page)
	require.Len(t, page, 2)
	assert.Equal(t, domain.UserID("u2"), page[0].UserID)
	assert.Equal(t, 40, page[0].TotalScore)

	var pos positionResponse
	getJSON(t, server.URL+"/ranking/u2", http.StatusOK, &pos)
	assert.Equal(t, 1, pos.Position)
	getJSON(t, server.URL+"/ranking/ghost", http.StatusNotFound, nil)

	var status attemptStatusResponse
	getJSON(t, server.URL+"/users/u1/challenges/velas", http.StatusOK, &status)
	assert.Equal(t, 2, status.Remaining)
	assert.False(t, status.Solved)

	var rate successRateResponse
	getJSON(t, server.URL+"/challenges/velas/success-rate", http.StatusOK, &rate)
	assert.Equal(t, 50.0, rate.SuccessRate)
	getJSON(t, server.URL+"/challenges/nope/success-rate", http.StatusNotFound, nil)

	var progress domain.Progress
	getJSON(t, server.URL+"/progress", http.StatusOK, &progress)
	assert.Equal(t, 2, progress.Attempts)
	assert.Equal(t, 1, progress.Correct)

	var profile domain.Profile
	getJSON(t, server.URL+"/users/u2/profile", http.StatusOK, &profile)
	assert.Equal(t, 40, profile.TotalScore)

	resp := do(t, http.MethodDelete, server.URL+"/attempts/"+attempt.ID, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	getJSON(t, server.URL+"/users/u2/profile", http.StatusOK, &profile)
	assert.Equal(t, 0, profile.TotalScore)

	resp = do(t, http.MethodDelete, server.URL+"/attempts/"+attempt.ID, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, http.MethodDelete, server.URL+"/challenges/velas", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	getJSON(t, server.URL+"/users/u1/challenges/velas", http.StatusNotFound, nil)
}

func TestRegisterUserEndpoint(t *testing.T) {
	server, svc := newTestServer(t)

	resp := do(t, http.MethodPost, server.URL+"/users", `{"id":"u9","username":"nueve"}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	_, ok, err := svc.PositionOf(context.Background(), "u9")
	require.NoError(t, err)
	assert.True(t, ok)

	resp = do(t, http.MethodPost, server.URL+"/users", `{"id":""}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	server, svc := newTestServer(t)
	_, err := svc.Submit(context.Background(), "u1", "velas", "17", nil)
	require.NoError(t, err)

	resp := do(t, http.MethodGet, server.URL+"/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var body strings.Builder
	_, err = body.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, body.String(), "scoring_submissions_total")
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(domain.ErrEmptyAnswer))
	assert.Equal(t, http.StatusBadRequest, statusFor(domain.ErrInvalidElapsed))
	assert.Equal(t, http.StatusConflict, statusFor(domain.ErrQuotaExhausted))
	assert.Equal(t, http.StatusNotFound, statusFor(domain.ErrChallengeNotFound))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(domain.ErrLockTimeout))
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
}

func newTestServer(t *testing.T) (*httptest.Server, *app.Service) {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.PutChallenge(domain.Challenge{
		ID:          "velas",
		Title:       "Las velas",
		Answer:      "17",
		Points:      40,
		MaxAttempts: 3,
		Active:      true,
		Alternatives: []domain.AlternativeAnswer{
			{ID: "alt-1", Text: "diecisiete", Active: true},
		},
	}))
	for _, u := range []domain.UserID{"u1", "u2"} {
		require.NoError(t, store.CreateUser(ctx, domain.User{ID: u, Username: string(u)}))
	}

	reg := prometheus.NewRegistry()
	log := logger.Discard()
	svc := app.NewService(store, memory.NewChallengeRepository(store, time.Minute), memory.NewKeyLocker(), app.Options{
		Logger:  log,
		Metrics: metrics.New(reg),
	})

	server := httptest.NewServer(NewRouter(svc, reg, log))
	t.Cleanup(server.Close)
	return server, svc
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s", expect, msg.Type)
	}
	return msg.Type, msg.Payload
}

func getJSON(t *testing.T, url string, wantStatus int, out any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, wantStatus, resp.StatusCode, url)
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	return resp
}
