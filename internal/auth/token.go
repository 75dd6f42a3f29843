package auth

import (
	"time"

	"golang.org/x/oauth2"
)

// tokenExpiryMargin is the safety margin subtracted from a token's declared
// expiry. A token inside the margin is treated as expired so an in-flight
// request cannot race the real expiry.
const tokenExpiryMargin = 5 * time.Minute

// Record is the persisted token triple plus bookkeeping. The on-disk shape
// (epoch-second floats) is shared with the other Cybershuttle client tools,
// so it must stay round-trip stable.
type Record struct {
	// AccessToken is the bearer token used for authorization.
	AccessToken string `json:"access_token"`

	// RefreshToken is used to obtain new access tokens (optional).
	RefreshToken string `json:"refresh_token"`

	// ExpiresAt is the absolute expiry as epoch seconds. It is baked in at
	// issue time (now + server-declared lifetime) and never recomputed from
	// Timestamp after a reload.
	ExpiresAt float64 `json:"expires_at"`

	// Timestamp is when the record was persisted, epoch seconds. Diagnostic only.
	Timestamp float64 `json:"timestamp"`
}

// NewRecord builds a Record from an issued OAuth2 token.
func NewRecord(tok *oauth2.Token) Record {
	return Record{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    float64(tok.Expiry.UnixNano()) / float64(time.Second),
		Timestamp:    float64(time.Now().UnixNano()) / float64(time.Second),
	}
}

// Expiry returns the absolute expiry timestamp.
func (r Record) Expiry() time.Time {
	sec := int64(r.ExpiresAt)
	nsec := int64((r.ExpiresAt - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec)
}

// Usable reports whether the access token can still be used, applying the
// safety margin. A record without an access token is never usable.
func (r Record) Usable(now time.Time) bool {
	if r.AccessToken == "" || r.ExpiresAt == 0 {
		return false
	}
	return now.Add(tokenExpiryMargin).Before(r.Expiry())
}
