// Package httpledger talks to the ledger's JSON gateway over HTTP.
package httpledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"time"

	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/apperr"
	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/ledger"
	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/models"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	codeNotEnded = "not_ended"

	ActionPending   = "pending"
	ActionConfirmed = "confirmed"
	ActionFailed    = "failed"

	DefaultPollInterval = time.Second
)

var _ ledger.ReadWriter = (*Client)(nil)

// Client implements ledger.ReadWriter for one participant.
type Client struct {
	*BaseClient
	participant  models.Participant
	clock        clockwork.Clock
	pollInterval time.Duration
}

type Option func(*Client)

// WithPollInterval sets how often ActionHandle.Wait checks the action status.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) { c.pollInterval = d }
}

func WithClock(clock clockwork.Clock) Option {
	return func(c *Client) { c.clock = clock }
}

func WithAPIKey(key string) Option {
	return func(c *Client) {
		if key != "" {
			c.SetHeader("Authorization", "Bearer "+key)
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.SetTimeout(d)
		}
	}
}

func New(baseURL string, participant models.Participant, opts ...Option) *Client {
	c := &Client{
		BaseClient:   NewBaseClient(baseURL),
		participant:  participant,
		clock:        clockwork.NewRealClock(),
		pollInterval: DefaultPollInterval,
	}
	c.SetHeader("Accept", "application/json")
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type configResponse struct {
	DurationSeconds uint64   `json:"duration_seconds"`
	EntryFee        *big.Int `json:"entry_fee"`
	MaxMultiplierBp uint64   `json:"max_multiplier_bp"`
}

type activeSessionResponse struct {
	SessionID models.SessionID `json:"session_id"`
}

type balanceResponse struct {
	Balance *big.Int `json:"balance"`
}

type sessionInfoResponse struct {
	ID          models.SessionID   `json:"id"`
	Participant models.Participant `json:"participant"`
	StartTime   int64              `json:"start_time"`
}

type startRequest struct {
	Participant models.Participant `json:"participant"`
	EntryFee    *big.Int           `json:"entry_fee"`
}

type ejectRequest struct {
	Participant models.Participant `json:"participant"`
}

type actionResponse struct {
	ActionID string `json:"action_id"`
	Status   string `json:"status,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// classify maps transport and status failures onto the error taxonomy:
// 4xx is Rejected, 5xx and transport faults are Transient.
func classify(op string, id models.SessionID, err error) error {
	var se *StatusError
	if errors.As(err, &se) {
		var body errorResponse
		msg := string(se.Body)
		if json.Unmarshal(se.Body, &body) == nil && body.Message != "" {
			msg = body.Message
		}
		cause := fmt.Errorf("status %d: %s", se.StatusCode, msg)
		if se.StatusCode >= http.StatusInternalServerError {
			return apperr.Transient(op, id, cause)
		}
		return apperr.Rejected(op, id, cause)
	}
	return apperr.Transient(op, id, err)
}

func decode(op string, id models.SessionID, data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return apperr.Fatal(op, id, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

func (c *Client) Config(ctx context.Context) (models.GameConfig, error) {
	const op = "read config"
	data, err := c.Get(ctx, "/v1/config")
	if err != nil {
		return models.GameConfig{}, classify(op, models.NoSession, err)
	}
	var resp configResponse
	if err := decode(op, models.NoSession, data, &resp); err != nil {
		return models.GameConfig{}, err
	}
	if resp.EntryFee == nil {
		return models.GameConfig{}, apperr.Fatal(op, models.NoSession, errors.New("entry fee missing"))
	}
	return models.GameConfig{
		DurationSeconds: resp.DurationSeconds,
		EntryFee:        resp.EntryFee,
		MaxMultiplierBp: resp.MaxMultiplierBp,
	}, nil
}

func (c *Client) ActiveSession(ctx context.Context, participant models.Participant) (models.SessionID, error) {
	const op = "read active session"
	data, err := c.Get(ctx, "/v1/participants/"+url.PathEscape(participant.String())+"/active-session")
	if err != nil {
		return models.NoSession, classify(op, models.NoSession, err)
	}
	var resp activeSessionResponse
	if err := decode(op, models.NoSession, data, &resp); err != nil {
		return models.NoSession, err
	}
	return resp.SessionID, nil
}

// Balance returns the participant's spendable ledger balance.
func (c *Client) Balance(ctx context.Context, participant models.Participant) (*big.Int, error) {
	const op = "read balance"
	data, err := c.Get(ctx, "/v1/participants/"+url.PathEscape(participant.String())+"/balance")
	if err != nil {
		return nil, classify(op, models.NoSession, err)
	}
	var resp balanceResponse
	if err := decode(op, models.NoSession, data, &resp); err != nil {
		return nil, err
	}
	if resp.Balance == nil {
		return nil, apperr.Fatal(op, models.NoSession, errors.New("balance missing"))
	}
	return resp.Balance, nil
}

func (c *Client) SessionInfo(ctx context.Context, id models.SessionID) (models.SessionInfo, error) {
	const op = "read session info"
	data, err := c.Get(ctx, "/v1/sessions/"+id.String())
	if err != nil {
		return models.SessionInfo{}, classify(op, id, err)
	}
	var resp sessionInfoResponse
	if err := decode(op, id, data, &resp); err != nil {
		return models.SessionInfo{}, err
	}
	return models.SessionInfo{
		ID:          resp.ID,
		Participant: resp.Participant,
		StartTime:   time.Unix(resp.StartTime, 0).UTC(),
	}, nil
}

// SessionResult returns an error matching ledger.ErrNotEnded while the
// ledger answers 409 with code "not_ended".
func (c *Client) SessionResult(ctx context.Context, id models.SessionID) (models.Result, error) {
	const op = "read session result"
	data, err := c.Get(ctx, "/v1/sessions/"+id.String()+"/result")
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusConflict {
			var body errorResponse
			if json.Unmarshal(se.Body, &body) == nil && body.Code == codeNotEnded {
				return models.Result{}, apperr.Transient(op, id, ledger.ErrNotEnded)
			}
		}
		return models.Result{}, classify(op, id, err)
	}
	var result models.Result
	if err := decode(op, id, data, &result); err != nil {
		return models.Result{}, err
	}
	return result, nil
}

func (c *Client) SubmitStart(ctx context.Context, entryFee *big.Int) (ledger.ActionHandle, error) {
	return c.submit(ctx, "submit start", "/v1/sessions", startRequest{Participant: c.participant, EntryFee: entryFee})
}

func (c *Client) SubmitEject(ctx context.Context) (ledger.ActionHandle, error) {
	return c.submit(ctx, "submit eject", "/v1/sessions/eject", ejectRequest{Participant: c.participant})
}

func (c *Client) submit(ctx context.Context, op, endpoint string, payload any) (ledger.ActionHandle, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, apperr.Fatal(op, models.NoSession, fmt.Errorf("failed to encode request: %w", err))
	}

	headers := map[string]string{"Idempotency-Key": uuid.NewString()}
	data, err := c.Post(ctx, endpoint, bytes.NewReader(body), headers)
	if err != nil {
		return nil, classify(op, models.NoSession, err)
	}

	var resp actionResponse
	if err := decode(op, models.NoSession, data, &resp); err != nil {
		return nil, err
	}
	if resp.ActionID == "" {
		return nil, apperr.Fatal(op, models.NoSession, errors.New("action id missing"))
	}

	log.Debug().
		Str("action_id", resp.ActionID).
		Str("participant", c.participant.String()).
		Str("op", op).
		Msg("action submitted")
	return &action{client: c, id: resp.ActionID, op: op}, nil
}

// actionStatus reads the current status of a submitted action.
func (c *Client) actionStatus(ctx context.Context, id string) (actionResponse, error) {
	data, err := c.Get(ctx, "/v1/actions/"+url.PathEscape(id))
	if err != nil {
		return actionResponse{}, err
	}
	var resp actionResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return actionResponse{}, fmt.Errorf("failed to decode action status: %w", err)
	}
	return resp, nil
}

type action struct {
	client *Client
	id     string
	op     string
}

func (a *action) ID() string { return a.id }

// Wait polls the action until it is confirmed or failed. Read errors are
// logged and retried; the caller bounds the wait through ctx.
func (a *action) Wait(ctx context.Context) error {
	ticker := a.client.clock.NewTicker(a.client.pollInterval)
	defer ticker.Stop()

	for {
		resp, err := a.client.actionStatus(ctx, a.id)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Debug().Err(err).Str("action_id", a.id).Msg("action status read failed, retrying")
		case resp.Status == ActionConfirmed:
			return nil
		case resp.Status == ActionFailed:
			reason := resp.Reason
			if reason == "" {
				reason = "action failed on ledger"
			}
			return apperr.Rejected(a.op, models.NoSession, errors.New(reason))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
		}
	}
}
