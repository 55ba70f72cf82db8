package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice-bridge/internal/audit"
	"voice-bridge/internal/bridge"
	"voice-bridge/internal/calls"
	"voice-bridge/internal/presenter"
	"voice-bridge/internal/reporting"
)

type fakeCalls struct {
	snap     bridge.Snapshot
	err      error
	lastTo   string
	lastFrom string
	muted    *bool
	held     *bool
	speaker  *bool
	ended    bool
}

func (f *fakeCalls) StartCall(_ context.Context, to string) (uuid.UUID, error) {
	f.lastTo = to
	if f.err != nil {
		return uuid.Nil, f.err
	}
	f.snap = bridge.Snapshot{Phase: bridge.PhaseConnecting, CallID: uuid.New(), Destination: to}
	return f.snap.CallID, nil
}

func (f *fakeCalls) ReportIncomingCall(_ context.Context, from string) (uuid.UUID, error) {
	f.lastFrom = from
	if f.err != nil {
		return uuid.Nil, f.err
	}
	return uuid.New(), nil
}

func (f *fakeCalls) EndCall(context.Context) error {
	f.ended = true
	return f.err
}

func (f *fakeCalls) SetMuted(_ context.Context, v bool) error {
	f.muted = &v
	return f.err
}

func (f *fakeCalls) SetHeld(_ context.Context, v bool) error {
	f.held = &v
	return f.err
}

func (f *fakeCalls) SetSpeaker(v bool) error {
	f.speaker = &v
	return f.err
}

func (f *fakeCalls) Snapshot() bridge.Snapshot { return f.snap }

type fakeHistory struct {
	calls  map[uuid.UUID]calls.Call
	events []audit.Event
	limit  int
}

func (f *fakeHistory) Recent(_ context.Context, limit int) ([]calls.Call, error) {
	f.limit = limit
	var out []calls.Call
	for _, c := range f.calls {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeHistory) Get(_ context.Context, id uuid.UUID) (calls.Call, error) {
	c, ok := f.calls[id]
	if !ok {
		return calls.Call{}, calls.ErrNotFound
	}
	return c, nil
}

func (f *fakeHistory) Timeline(context.Context, uuid.UUID) ([]audit.Event, error) {
	return f.events, nil
}

type fakeIssuer struct{ identity string }

func (f *fakeIssuer) Issue(_ time.Time, identity string) (string, error) {
	f.identity = identity
	return "signed." + identity, nil
}

func newEngine(h Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/v1/calls", h.StartCall)
	r.POST("/v1/calls/incoming", h.ReportIncomingCall)
	r.GET("/v1/calls", h.ListCalls)
	r.GET("/v1/calls/summary", h.CallsSummary)
	r.GET("/v1/calls/:call_id", h.GetCall)
	r.GET("/v1/calls/active", h.ActiveCall)
	r.POST("/v1/calls/active/hangup", h.HangUp)
	r.POST("/v1/calls/active/mute", h.Mute)
	r.POST("/v1/calls/active/hold", h.Hold)
	r.POST("/v1/calls/active/speaker", h.Speaker)
	r.POST("/auth/token", h.IssueToken)
	r.POST("/webhooks/voice", h.VoiceWebhook)
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestStartCall(t *testing.T) {
	fc := &fakeCalls{}
	r := newEngine(Handlers{Calls: fc})

	w := do(r, http.MethodPost, "/v1/calls", `{"to":"+15551234567"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "+15551234567", fc.lastTo)

	var body struct {
		CallID uuid.UUID      `json:"call_id"`
		View   presenter.View `json:"view"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, fc.snap.CallID, body.CallID)
	assert.Equal(t, presenter.TitleRinging, body.View.ButtonTitle)

	w = do(r, http.MethodPost, "/v1/calls", `{`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCallErrorsMapToStatus(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{bridge.ErrCallActive, http.StatusConflict},
		{bridge.ErrCallGroupBusy, http.StatusConflict},
		{bridge.ErrReservationLost, http.StatusConflict},
		{bridge.ErrNoActiveCall, http.StatusNotFound},
		{&bridge.NativeRequestError{Op: "start_call", Err: errors.New("refused")}, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			r := newEngine(Handlers{Calls: &fakeCalls{err: tc.err}})
			w := do(r, http.MethodPost, "/v1/calls", `{"to":"+1555"}`)
			assert.Equal(t, tc.code, w.Code)
		})
	}
}

func TestActiveCallControls(t *testing.T) {
	fc := &fakeCalls{snap: bridge.Snapshot{Phase: bridge.PhaseConnected, CallID: uuid.New(), Muted: true}}
	r := newEngine(Handlers{Calls: fc})

	w := do(r, http.MethodGet, "/v1/calls/active", "")
	require.Equal(t, http.StatusOK, w.Code)
	var v presenter.View
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	assert.Equal(t, presenter.TitleHangUp, v.ButtonTitle)
	assert.True(t, v.MuteOn)

	assert.Equal(t, http.StatusAccepted, do(r, http.MethodPost, "/v1/calls/active/mute", `{"on":false}`).Code)
	require.NotNil(t, fc.muted)
	assert.False(t, *fc.muted)

	assert.Equal(t, http.StatusAccepted, do(r, http.MethodPost, "/v1/calls/active/hold", `{"on":true}`).Code)
	require.NotNil(t, fc.held)
	assert.True(t, *fc.held)

	assert.Equal(t, http.StatusAccepted, do(r, http.MethodPost, "/v1/calls/active/speaker", `{"on":true}`).Code)
	require.NotNil(t, fc.speaker)

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/v1/calls/active/mute", `{}`).Code)

	assert.Equal(t, http.StatusAccepted, do(r, http.MethodPost, "/v1/calls/active/hangup", "").Code)
	assert.True(t, fc.ended)
}

func TestReportIncomingCall(t *testing.T) {
	fc := &fakeCalls{}
	r := newEngine(Handlers{Calls: fc})

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/v1/calls/incoming", `{"from":" "}`).Code)
	assert.Equal(t, http.StatusAccepted, do(r, http.MethodPost, "/v1/calls/incoming", `{"from":"client:carol"}`).Code)
	assert.Equal(t, "client:carol", fc.lastFrom)
}

func TestCallHistory(t *testing.T) {
	id := uuid.New()
	h := &fakeHistory{
		calls:  map[uuid.UUID]calls.Call{id: {CallID: id, Status: calls.CallStatusCompleted}},
		events: []audit.Event{{CallID: id, Type: audit.EventTypeEnded}},
	}
	r := newEngine(Handlers{Calls: &fakeCalls{}, History: h})

	w := do(r, http.MethodGet, "/v1/calls?limit=1000", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, maxHistory, h.limit)
	assert.Contains(t, w.Body.String(), id.String())

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/v1/calls?limit=x", "").Code)

	w = do(r, http.MethodGet, "/v1/calls/"+id.String(), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"call_ended"`)

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/v1/calls/"+uuid.NewString(), "").Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/v1/calls/not-a-uuid", "").Code)
}

func TestCallsSummary(t *testing.T) {
	now := time.Now().UTC()
	repo := calls.NewMemoryRepo()
	require.NoError(t, repo.Save(context.Background(), calls.Call{CallID: uuid.New(), Direction: "outgoing", Status: calls.CallStatusCompleted, CreatedAt: now.Add(-time.Minute)}))
	r := newEngine(Handlers{Calls: &fakeCalls{}, Reports: reporting.NewService(repo)})

	w := do(r, http.MethodGet, "/v1/calls/summary", "")
	require.Equal(t, http.StatusOK, w.Code)
	var out reporting.CallsSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, 1, out.TotalCalls)
	assert.Equal(t, 1, out.CompletedCalls)

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/v1/calls/summary?from=yesterday", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/v1/calls/summary?direction=sideways", "").Code)

	past := url.Values{"from": {now.Add(-72 * time.Hour).Format(time.RFC3339)}, "to": {now.Add(-48 * time.Hour).Format(time.RFC3339)}}
	w = do(r, http.MethodGet, "/v1/calls/summary?"+past.Encode(), "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Zero(t, out.TotalCalls)
}

func TestIssueToken(t *testing.T) {
	iss := &fakeIssuer{}
	r := newEngine(Handlers{Calls: &fakeCalls{}, Tokens: iss})

	w := do(r, http.MethodPost, "/auth/token", `{"identity":" alice "}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", iss.identity)
	assert.Contains(t, w.Body.String(), "signed.alice")

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/auth/token", `{}`).Code)

	r = newEngine(Handlers{Calls: &fakeCalls{}})
	assert.Equal(t, http.StatusInternalServerError, do(r, http.MethodPost, "/auth/token", `{"identity":"a"}`).Code)
}

func TestVoiceWebhook(t *testing.T) {
	r := newEngine(Handlers{Calls: &fakeCalls{}, CallerID: "+15550000000"})

	post := func(form url.Values) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/webhooks/voice", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		r.ServeHTTP(w, req)
		return w
	}

	w := post(url.Values{"CallSid": {"CA1"}, "From": {"client:alice"}, "to": {"+1 (555) 123-4567"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/xml")
	assert.Contains(t, w.Body.String(), `callerId="+15550000000"`)
	assert.Contains(t, w.Body.String(), "<Number>+15551234567</Number>")

	w = post(url.Values{"CallSid": {"CA2"}, "From": {"client:alice"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<Say>Thanks for calling!</Say>")
}
