package telephony

import (
	"encoding/json"
	"net/http"
	"strings"
)

// VoiceWebhookForm captures the subset of voice application webhook fields we care about.
// The voice SDK's connect params arrive as extra form fields next to the standard ones.
// Ref: https://www.twilio.com/docs/voice/twiml
//
// Keep it minimal and provider-adapter-only.

type VoiceWebhookForm struct {
	CallSid        string
	AccountSid     string
	ApplicationSid string
	From           string
	Direction      string
	CallStatus     string
	ApiVersion     string

	// To is the connect param named by ParamTo.
	To string
}

func ParseVoiceWebhook(r *http.Request) (VoiceWebhookForm, error) {
	if err := r.ParseForm(); err != nil {
		return VoiceWebhookForm{}, err
	}
	f := VoiceWebhookForm{
		CallSid:        r.PostFormValue("CallSid"),
		AccountSid:     r.PostFormValue("AccountSid"),
		ApplicationSid: r.PostFormValue("ApplicationSid"),
		From:           strings.TrimSpace(r.PostFormValue("From")),
		Direction:      r.PostFormValue("Direction"),
		CallStatus:     r.PostFormValue("CallStatus"),
		ApiVersion:     r.PostFormValue("ApiVersion"),
		To:             normalizeDestination(r.PostFormValue(ParamTo)),
	}
	return f, nil
}

func normalizeDestination(s string) string {
	s = strings.TrimSpace(s)
	// Dialers sometimes keep formatting characters in numbers.
	if s != "" && !isClientOrSIP(s) {
		s = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(s)
	}
	return s
}

func isClientOrSIP(s string) bool {
	l := strings.ToLower(s)
	return strings.HasPrefix(l, "client:") || strings.HasPrefix(l, "sip:")
}

// RawJSON returns the form as JSON for debugging.
func (f VoiceWebhookForm) RawJSON() string {
	raw, _ := json.Marshal(f)
	return string(raw)
}

// DialDecision resolves what the voice application should do with an outgoing client call.
func (f VoiceWebhookForm) DialDecision(callerID string) DialDecision {
	if f.To == "" {
		return DialDecision{Action: DialActionGreet}
	}
	return DialDecision{Action: DialActionConnect, Target: f.To, CallerID: callerID}
}
