package exchange

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"bracketbot/pkg/types"
)

func TestSignDeterministic(t *testing.T) {
	t.Parallel()

	s := NewSigner(types.Credentials{APIKey: "key", SecretKey: "secret"})
	now := time.UnixMilli(1_700_000_000_000)

	params := url.Values{}
	params.Set("symbol", "XRPUSDT")
	params.Set("side", "BUY")

	first := s.Sign(params, now)
	second := s.Sign(params, now)

	if first != second {
		t.Errorf("Sign is not deterministic: %q != %q", first, second)
	}
}

func TestSignParamOrderDoesNotMatter(t *testing.T) {
	t.Parallel()

	s := NewSigner(types.Credentials{APIKey: "key", SecretKey: "secret"})
	now := time.UnixMilli(1_700_000_000_000)

	a := url.Values{}
	a.Set("symbol", "XRPUSDT")
	a.Set("side", "BUY")
	a.Set("quantity", "5")

	b := url.Values{}
	b.Set("quantity", "5")
	b.Set("side", "BUY")
	b.Set("symbol", "XRPUSDT")

	if s.Sign(a, now) != s.Sign(b, now) {
		t.Errorf("signature depends on insertion order, should only depend on sorted keys")
	}
}

func TestSignAppendsTimestampAndRecvWindowBeforeSignature(t *testing.T) {
	t.Parallel()

	s := NewSigner(types.Credentials{APIKey: "key", SecretKey: "secret"})
	now := time.UnixMilli(1_700_000_000_000)

	out := s.Sign(url.Values{"symbol": {"XRPUSDT"}}, now)

	sigIdx := strings.Index(out, "&signature=")
	if sigIdx == -1 {
		t.Fatalf("output missing signature param: %q", out)
	}
	prefix := out[:sigIdx]
	if !strings.Contains(prefix, "recvWindow=60000") {
		t.Errorf("recvWindow must be signed over, got prefix %q", prefix)
	}
	if !strings.Contains(prefix, "timestamp=1700000000000") {
		t.Errorf("timestamp must be signed over, got prefix %q", prefix)
	}
	if strings.Contains(out[sigIdx+1:], "&") {
		t.Errorf("signature must be the last param")
	}
}

func TestSignDifferentSecretsDifferentSignatures(t *testing.T) {
	t.Parallel()

	now := time.UnixMilli(1_700_000_000_000)
	params := url.Values{"symbol": {"XRPUSDT"}}

	a := NewSigner(types.Credentials{APIKey: "k", SecretKey: "one"}).Sign(params, now)
	b := NewSigner(types.Credentials{APIKey: "k", SecretKey: "two"}).Sign(params, now)

	if a == b {
		t.Errorf("different secrets produced the same signature")
	}
}

func TestAPIKeyReturnsPublicKey(t *testing.T) {
	t.Parallel()
	s := NewSigner(types.Credentials{APIKey: "pub-key", SecretKey: "hidden"})
	if got := s.APIKey(); got != "pub-key" {
		t.Errorf("APIKey() = %q, want pub-key", got)
	}
}
