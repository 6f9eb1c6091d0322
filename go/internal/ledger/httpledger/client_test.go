package httpledger

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/apperr"
	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/ledger"
	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const player models.Participant = "0xabc"

func newServer(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return New(srv.URL, player, WithPollInterval(5*time.Millisecond), WithAPIKey("secret"))
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func TestConfig(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/config", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, `{"duration_seconds":30,"entry_fee":1000000000000000000,"max_multiplier_bp":20000}`)
	})
	c := newServer(t, mux)

	cfg, err := c.Config(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(30), cfg.DurationSeconds)
	assert.Equal(t, uint64(20000), cfg.MaxMultiplierBp)
	assert.Equal(t, "1000000000000000000", cfg.EntryFee.String())
}

func TestActiveSessionAndInfo(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/participants/{addr}/active-session", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "0xabc", r.PathValue("addr"))
		writeJSON(w, http.StatusOK, `{"session_id":42}`)
	})
	mux.HandleFunc("GET /v1/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"id":42,"participant":"0xabc","start_time":1767268800}`)
	})
	c := newServer(t, mux)

	id, err := c.ActiveSession(context.Background(), player)
	require.NoError(t, err)
	assert.Equal(t, models.SessionID(42), id)

	info, err := c.SessionInfo(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.SessionID(42), info.ID)
	assert.Equal(t, time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC), info.StartTime)
}

func TestBalance(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/participants/{addr}/balance", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"balance":2500000000000000000}`)
	})
	c := newServer(t, mux)

	bal, err := c.Balance(context.Background(), player)
	require.NoError(t, err)
	assert.Equal(t, "2500000000000000000", bal.String())
}

func TestSessionResult(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/sessions/{id}/result", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			writeJSON(w, http.StatusConflict, `{"code":"not_ended","message":"game still running"}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"won":true,"payout":1500000000000000000,"final_multiplier_bp":15000}`)
	})
	c := newServer(t, mux)

	_, err := c.SessionResult(context.Background(), 7)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ledger.ErrNotEnded))
	assert.Equal(t, apperr.KindTransient, apperr.KindOf(err))

	res, err := c.SessionResult(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, res.Won)
	assert.Equal(t, uint64(15000), res.FinalMultiplierBp)
	assert.Equal(t, "1500000000000000000", res.Payout.String())
}

func TestErrorClassification(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/sessions/{id}/result", func(w http.ResponseWriter, r *http.Request) {
		switch r.PathValue("id") {
		case "1":
			writeJSON(w, http.StatusConflict, `{"code":"conflict","message":"other"}`)
		case "2":
			writeJSON(w, http.StatusBadGateway, `upstream down`)
		default:
			writeJSON(w, http.StatusOK, `{"won":`)
		}
	})
	c := newServer(t, mux)

	_, err := c.SessionResult(context.Background(), 1)
	assert.Equal(t, apperr.KindRejected, apperr.KindOf(err))
	assert.False(t, errors.Is(err, ledger.ErrNotEnded))
	assert.Contains(t, err.Error(), "other")

	_, err = c.SessionResult(context.Background(), 2)
	assert.Equal(t, apperr.KindTransient, apperr.KindOf(err))

	_, err = c.SessionResult(context.Background(), 3)
	assert.Equal(t, apperr.KindFatal, apperr.KindOf(err))
}

func TestTransportFailureIsTransient(t *testing.T) {
	c := New("http://127.0.0.1:1", player, WithTimeout(time.Second))
	_, err := c.ActiveSession(context.Background(), player)
	require.Error(t, err)
	assert.Equal(t, apperr.KindTransient, apperr.KindOf(err))
}

func TestSubmitStartAndWait(t *testing.T) {
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/sessions", func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("Idempotency-Key"))
		var req struct {
			Participant string   `json:"participant"`
			EntryFee    *big.Int `json:"entry_fee"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "0xabc", req.Participant)
		assert.Equal(t, "1000", req.EntryFee.String())
		writeJSON(w, http.StatusAccepted, `{"action_id":"tx-1"}`)
	})
	mux.HandleFunc("GET /v1/actions/{id}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tx-1", r.PathValue("id"))
		if polls.Add(1) < 3 {
			writeJSON(w, http.StatusOK, `{"action_id":"tx-1","status":"pending"}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"action_id":"tx-1","status":"confirmed"}`)
	})
	c := newServer(t, mux)

	h, err := c.SubmitStart(context.Background(), big.NewInt(1000))
	require.NoError(t, err)
	assert.Equal(t, "tx-1", h.ID())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.Wait(ctx))
	assert.Equal(t, int32(3), polls.Load())
}

func TestSubmitRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/sessions", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, `{"code":"active_game","message":"player already has an active game"}`)
	})
	c := newServer(t, mux)

	_, err := c.SubmitStart(context.Background(), big.NewInt(1))
	require.Error(t, err)
	assert.Equal(t, apperr.KindRejected, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "already has an active game")
}

func TestEjectActionFails(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/sessions/eject", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusAccepted, `{"action_id":"tx-9"}`)
	})
	mux.HandleFunc("GET /v1/actions/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"action_id":"tx-9","status":"failed","reason":"reverted"}`)
	})
	c := newServer(t, mux)

	h, err := c.SubmitEject(context.Background())
	require.NoError(t, err)

	err = h.Wait(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperr.KindRejected, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "reverted")
}

func TestWaitHonoursContext(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/sessions/eject", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusAccepted, `{"action_id":"tx-2"}`)
	})
	mux.HandleFunc("GET /v1/actions/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"action_id":"tx-2","status":"pending"}`)
	})
	c := newServer(t, mux)

	h, err := c.SubmitEject(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h.Wait(ctx), context.DeadlineExceeded)
}
