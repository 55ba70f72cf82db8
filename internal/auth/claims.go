package auth

import "github.com/golang-jwt/jwt/v5"

// contentType marks the token as a voice access token.
const contentType = "twilio-fpa;v=1"

// Claims are the only supported access token shape for this service.
// The voice SDK reads Grants; the bridge API reads the identity.
type Claims struct {
	jwt.RegisteredClaims

	Grants Grants `json:"grants"`
}

type Grants struct {
	Identity string      `json:"identity"`
	Voice    *VoiceGrant `json:"voice,omitempty"`
}

type VoiceGrant struct {
	Incoming *IncomingGrant `json:"incoming,omitempty"`
	Outgoing *OutgoingGrant `json:"outgoing,omitempty"`
}

type IncomingGrant struct {
	Allow bool `json:"allow"`
}

// OutgoingGrant names the voice application whose webhook handles outgoing calls.
type OutgoingGrant struct {
	ApplicationSID string            `json:"application_sid"`
	Params         map[string]string `json:"params,omitempty"`
}
