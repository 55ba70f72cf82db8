package telephony

import (
	"bytes"
	"encoding/xml"
	"errors"
	"strings"
)

// DialDecision is the provider-agnostic outcome of the voice webhook.
type DialDecision struct {
	Action   DialAction `json:"action"`
	Target   string     `json:"target,omitempty"`
	CallerID string     `json:"caller_id,omitempty"`
}

type DialAction string

const (
	DialActionConnect DialAction = "connect"
	DialActionGreet   DialAction = "greet"
	DialActionReject  DialAction = "reject"
)

const greeting = "Thanks for calling!"

// TwiML is a minimal markup response builder.
// It intentionally avoids any provider SDK dependency.

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlReject struct {
	XMLName xml.Name `xml:"Reject"`
	Reason  string   `xml:"reason,attr,omitempty"`
}

type twimlSay struct {
	XMLName xml.Name `xml:"Say"`
	Text    string   `xml:",chardata"`
}

type twimlDial struct {
	XMLName  xml.Name  `xml:"Dial"`
	CallerID string    `xml:"callerId,attr,omitempty"`
	Number   string    `xml:"Number,omitempty"`
	Client   string    `xml:"Client,omitempty"`
	Sip      *twimlSip `xml:"Sip,omitempty"`
}

type twimlSip struct {
	URI string `xml:",chardata"`
}

// RenderTwiML maps a DialDecision to TwiML.
func RenderTwiML(d DialDecision) (string, error) {
	var r twimlResponse

	switch d.Action {
	case DialActionReject:
		r.Verbs = append(r.Verbs, twimlReject{Reason: "rejected"})
	case DialActionGreet:
		r.Verbs = append(r.Verbs, twimlSay{Text: greeting})
	case DialActionConnect:
		target := strings.TrimSpace(d.Target)
		if target == "" {
			return "", errors.New("telephony: target required for connect action")
		}
		dial := twimlDial{CallerID: d.CallerID}
		lower := strings.ToLower(target)
		switch {
		case strings.HasPrefix(lower, "sip:"):
			dial.Sip = &twimlSip{URI: target}
		case strings.HasPrefix(lower, "client:"):
			dial.Client = target[len("client:"):]
		default:
			dial.Number = target
		}
		r.Verbs = append(r.Verbs, dial)
	default:
		return "", errors.New("telephony: unknown dial action")
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
