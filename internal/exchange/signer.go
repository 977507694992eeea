package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"bracketbot/pkg/types"
)

const recvWindowMS = 60000

// Signer produces MEXC's HMAC-SHA256 signature over a canonicalized,
// sorted query string. It holds no mutable state beyond the credentials
// it was constructed with, so a single Signer is safe to share across
// every request a process makes.
type Signer struct {
	creds types.Credentials
}

// NewSigner builds a Signer from credentials. Credentials are copied, not
// retained by reference, and are never logged by any method here.
func NewSigner(creds types.Credentials) *Signer {
	return &Signer{creds: creds}
}

// APIKey returns the public key for the X-MEXC-APIKEY header.
func (s *Signer) APIKey() string {
	return s.creds.APIKey
}

// Sign canonicalizes params (sorted by key ascending, joined as k=v with &),
// injects timestamp and recvWindow before computing the signature, and
// returns the full query string with signature appended last. Any deviation
// from this exact order produces a query string the exchange will reject
// with 401/400, not a local error — there is nothing to validate here.
func (s *Signer) Sign(params url.Values, now time.Time) string {
	p := cloneValues(params)
	p.Set("timestamp", strconv.FormatInt(now.UnixMilli(), 10))
	p.Set("recvWindow", strconv.Itoa(recvWindowMS))

	canonical := canonicalize(p)
	mac := hmac.New(sha256.New, []byte(s.creds.SecretKey))
	mac.Write([]byte(canonical))
	signature := hex.EncodeToString(mac.Sum(nil))

	return canonical + "&signature=" + signature
}

// canonicalize joins params sorted by key ascending as "k=v" pairs with "&".
// Values are taken as-is (single value per key, the only shape this client
// ever produces) rather than URL-encoded, matching the exact byte sequence
// MEXC signs over.
func canonicalize(p url.Values) string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+p.Get(k))
	}
	return strings.Join(parts, "&")
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vals := range v {
		cp := make([]string, len(vals))
		copy(cp, vals)
		out[k] = cp
	}
	return out
}
