package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"voice-bridge/internal/audit"
	"voice-bridge/internal/bridge"
	"voice-bridge/internal/calls"
	"voice-bridge/internal/presenter"
	"voice-bridge/internal/reporting"
	"voice-bridge/internal/telephony"
	"voice-bridge/pkg/logger"
)

// CallControl is the bridge surface the API drives.
type CallControl interface {
	StartCall(ctx context.Context, destination string) (uuid.UUID, error)
	ReportIncomingCall(ctx context.Context, from string) (uuid.UUID, error)
	EndCall(ctx context.Context) error
	SetMuted(ctx context.Context, muted bool) error
	SetHeld(ctx context.Context, onHold bool) error
	SetSpeaker(on bool) error
	Snapshot() bridge.Snapshot
}

type CallHistory interface {
	Recent(ctx context.Context, limit int) ([]calls.Call, error)
	Get(ctx context.Context, id uuid.UUID) (calls.Call, error)
	Timeline(ctx context.Context, id uuid.UUID) ([]audit.Event, error)
}

type CallReports interface {
	CallsSummary(ctx context.Context, req reporting.CallsSummaryRequest) (reporting.CallsSummary, error)
}

type TokenIssuer interface {
	Issue(now time.Time, identity string) (string, error)
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call the bridge, return JSON.
type Handlers struct {
	Calls   CallControl
	History CallHistory
	Reports CallReports
	Tokens  TokenIssuer

	// CallerID is presented on PSTN legs dialed by the voice webhook.
	CallerID string
}

// --- Calls ---

type startCallRequest struct {
	To string `json:"to"`
}

type incomingCallRequest struct {
	From string `json:"from"`
}

type switchRequest struct {
	On *bool `json:"on"`
}

func (h Handlers) StartCall(c *gin.Context) {
	var req startCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	id, err := h.Calls.StartCall(c.Request.Context(), req.To)
	if err != nil {
		abortWithCallError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"call_id": id, "view": presenter.Render(h.Calls.Snapshot())})
}

// ReportIncomingCall presents an incoming call, standing in for a push notification.
func (h Handlers) ReportIncomingCall(c *gin.Context) {
	var req incomingCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.From) == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from required"})
		return
	}
	id, err := h.Calls.ReportIncomingCall(c.Request.Context(), req.From)
	if err != nil {
		abortWithCallError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"call_id": id})
}

func (h Handlers) ActiveCall(c *gin.Context) {
	c.JSON(http.StatusOK, presenter.Render(h.Calls.Snapshot()))
}

func (h Handlers) HangUp(c *gin.Context) {
	if err := h.Calls.EndCall(c.Request.Context()); err != nil {
		abortWithCallError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, presenter.Render(h.Calls.Snapshot()))
}

func (h Handlers) Mute(c *gin.Context) {
	h.toggle(c, func(ctx context.Context, on bool) error { return h.Calls.SetMuted(ctx, on) })
}

func (h Handlers) Hold(c *gin.Context) {
	h.toggle(c, func(ctx context.Context, on bool) error { return h.Calls.SetHeld(ctx, on) })
}

func (h Handlers) Speaker(c *gin.Context) {
	h.toggle(c, func(_ context.Context, on bool) error { return h.Calls.SetSpeaker(on) })
}

func (h Handlers) toggle(c *gin.Context, set func(context.Context, bool) error) {
	var req switchRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.On == nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "on (bool) required"})
		return
	}
	if err := set(c.Request.Context(), *req.On); err != nil {
		abortWithCallError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, presenter.Render(h.Calls.Snapshot()))
}

// --- History ---

const maxHistory = 200

func (h Handlers) ListCalls(c *gin.Context) {
	if h.History == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "journal not configured"})
		return
	}
	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxHistory)
	}
	out, err := h.History.Recent(c.Request.Context(), limit)
	if err != nil {
		logger.FromGin(c).Error("call history lookup failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "history lookup failed"})
		return
	}
	if out == nil {
		out = []calls.Call{}
	}
	c.JSON(http.StatusOK, gin.H{"calls": out})
}

func (h Handlers) GetCall(c *gin.Context) {
	if h.History == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "journal not configured"})
		return
	}
	id, err := uuid.Parse(c.Param("call_id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "call_id must be a uuid"})
		return
	}
	rec, err := h.History.Get(c.Request.Context(), id)
	if errors.Is(err, calls.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
		return
	}
	if err != nil {
		logger.FromGin(c).Error("call lookup failed", "call_id", id, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call lookup failed"})
		return
	}
	events, err := h.History.Timeline(c.Request.Context(), id)
	if err != nil {
		logger.FromGin(c).Warn("call timeline lookup failed", "call_id", id, "err", err)
	}
	if events == nil {
		events = []audit.Event{}
	}
	c.JSON(http.StatusOK, gin.H{"call": rec, "duration": rec.DurationSeconds(), "events": events})
}

// --- Reporting ---

// CallsSummary aggregates the journal over ?from=&to= (RFC 3339), defaulting to the last 24h.
func (h Handlers) CallsSummary(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	to := time.Now().UTC()
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be RFC 3339"})
			return
		}
		to = t
	}
	from := to.Add(-24 * time.Hour)
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be RFC 3339"})
			return
		}
		from = t
	}

	out, err := h.Reports.CallsSummary(c.Request.Context(), reporting.CallsSummaryRequest{
		Range:     reporting.TimeRange{From: from, To: to},
		Direction: c.Query("direction"),
	})
	if errors.Is(err, reporting.ErrInvalidRequest) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		logger.FromGin(c).Error("calls summary failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "summary failed"})
		return
	}
	c.JSON(http.StatusOK, out)
}

// --- Auth ---

type tokenRequest struct {
	Identity string `json:"identity"`
}

// IssueToken mints a voice access token for a client identity.
//
// NOTE: Development-only endpoint. Real deployments mint tokens behind their own login.
func (h Handlers) IssueToken(c *gin.Context) {
	if h.Tokens == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token minting not configured"})
		return
	}
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Identity) == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "identity required"})
		return
	}
	tok, err := h.Tokens.Issue(time.Now(), strings.TrimSpace(req.Identity))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": tok, "identity": strings.TrimSpace(req.Identity)})
}

// --- Voice application webhook ---

// VoiceWebhook answers the voice application's request for an outgoing client call with TwiML.
//
// NOTE: This endpoint should be protected by provider signature validation in production.
func (h Handlers) VoiceWebhook(c *gin.Context) {
	form, err := telephony.ParseVoiceWebhook(c.Request)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}
	log := logger.FromGin(c)
	log.Info("voice webhook", "call_sid", form.CallSid, "from", form.From, "to", form.To)
	log.Debug("voice webhook payload", "form", form.RawJSON())

	callerID := h.CallerID
	if callerID == "" {
		callerID = form.From
	}
	xml, err := telephony.RenderTwiML(form.DialDecision(callerID))
	if err != nil {
		log.Error("twiml render failed", "err", err)
		xml, _ = telephony.RenderTwiML(telephony.DialDecision{Action: telephony.DialActionReject})
	}
	c.Data(http.StatusOK, "application/xml; charset=utf-8", []byte(xml))
}

// abortWithCallError maps bridge errors to status codes.
func abortWithCallError(c *gin.Context, err error) {
	var nerr *bridge.NativeRequestError
	switch {
	case errors.Is(err, bridge.ErrNoActiveCall):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, bridge.ErrCallActive), errors.Is(err, bridge.ErrCallGroupBusy), errors.Is(err, bridge.ErrReservationLost):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &nerr):
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": err.Error(), "op": nerr.Op})
	default:
		logger.FromGin(c).Error("call operation failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call operation failed"})
	}
}
