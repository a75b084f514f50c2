package verify

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hmacHeader(secret string, body []byte, ts int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, body)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestTimestampHMAC_Valid(t *testing.T) {
	now := time.Now()
	body := []byte(`{"id":"evt_1","type":"charge.succeeded"}`)
	v := TimestampHMAC{Secret: "shhh"}

	h := http.Header{}
	h.Set("X-Signature", hmacHeader("shhh", body, now.Unix()))

	assert.NoError(t, v.Verify(body, h, now))
}

func TestTimestampHMAC_MutatedSignatureRejected(t *testing.T) {
	now := time.Now()
	body := []byte(`{"id":"evt_1"}`)
	v := TimestampHMAC{Secret: "shhh"}

	sig := hmacHeader("shhh", body, now.Unix())
	// flip the last hex digit
	last := sig[len(sig)-1]
	flipped := byte('0')
	if last == '0' {
		flipped = '1'
	}
	h := http.Header{}
	h.Set("X-Signature", sig[:len(sig)-1]+string(flipped))

	err := v.Verify(body, h, now)
	require.Error(t, err)
	assert.Equal(t, CodeBadSignature, err.(*Failure).Code)
}

func TestTimestampHMAC_MutatedBodyRejected(t *testing.T) {
	now := time.Now()
	body := []byte(`{"id":"evt_1"}`)
	v := TimestampHMAC{Secret: "shhh"}

	h := http.Header{}
	h.Set("X-Signature", hmacHeader("shhh", body, now.Unix()))

	tampered := append([]byte{}, body...)
	tampered[len(tampered)-2] ^= 0x01

	err := v.Verify(tampered, h, now)
	require.Error(t, err)
	assert.Equal(t, CodeBadSignature, err.(*Failure).Code)
}

func TestTimestampHMAC_StaleTimestampRejected(t *testing.T) {
	now := time.Now()
	body := []byte(`{"id":"evt_1"}`)
	v := TimestampHMAC{Secret: "shhh", ToleranceSeconds: 300}

	old := now.Add(-10 * time.Minute).Unix()
	h := http.Header{}
	h.Set("X-Signature", hmacHeader("shhh", body, old))

	err := v.Verify(body, h, now)
	require.Error(t, err)
	assert.Equal(t, CodeStaleTimestamp, err.(*Failure).Code)
}

func TestTimestampHMAC_MissingHeaderRejected(t *testing.T) {
	v := TimestampHMAC{Secret: "shhh"}
	err := v.Verify([]byte("{}"), http.Header{}, time.Now())
	require.Error(t, err)
	assert.Equal(t, CodeMissingHeader, err.(*Failure).Code)
}

func TestTimestampHMAC_UnconfiguredSecretFailsClosed(t *testing.T) {
	v := TimestampHMAC{}
	h := http.Header{}
	h.Set("X-Signature", hmacHeader("anything", []byte("{}"), time.Now().Unix()))

	err := v.Verify([]byte("{}"), h, time.Now())
	require.Error(t, err)
	assert.True(t, IsNotConfigured(err))
}

func TestTimestampHMAC_MalformedHeaderRejected(t *testing.T) {
	v := TimestampHMAC{Secret: "shhh"}
	for _, raw := range []string{"t=123", "v1=deadbeef", "t=abc,v1=deadbeef", "garbage"} {
		h := http.Header{}
		h.Set("X-Signature", raw)
		err := v.Verify([]byte("{}"), h, time.Now())
		require.Error(t, err, "header %q", raw)
		assert.Equal(t, CodeBadSignature, err.(*Failure).Code, "header %q", raw)
	}
}

func ed25519Headers(t *testing.T, priv ed25519.PrivateKey, body []byte, ts int64) http.Header {
	t.Helper()
	message := fmt.Sprintf("%d.%s", ts, body)
	sig := ed25519.Sign(priv, []byte(message))
	h := http.Header{}
	h.Set("X-Timestamp", fmt.Sprintf("%d", ts))
	h.Set("X-Signature", base64.StdEncoding.EncodeToString(sig))
	return h
}

func TestEd25519_Valid(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	now := time.Now()
	body := []byte(`{"sid":"CA123","status":"completed"}`)
	v := Ed25519{PublicKey: pub}

	assert.NoError(t, v.Verify(body, ed25519Headers(t, priv, body, now.Unix()), now))
}

func TestEd25519_WrongKeyRejected(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	_, otherPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	now := time.Now()
	body := []byte(`{"sid":"CA123"}`)
	v := Ed25519{PublicKey: pub}

	err = v.Verify(body, ed25519Headers(t, otherPriv, body, now.Unix()), now)
	require.Error(t, err)
	assert.Equal(t, CodeBadSignature, err.(*Failure).Code)
}

func TestEd25519_StaleTimestampRejected(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	now := time.Now()
	body := []byte(`{"sid":"CA123"}`)
	v := Ed25519{PublicKey: pub}

	h := ed25519Headers(t, priv, body, now.Add(-20*time.Minute).Unix())
	err = v.Verify(body, h, now)
	require.Error(t, err)
	assert.Equal(t, CodeStaleTimestamp, err.(*Failure).Code)
}

func TestEd25519_MissingKeyFailsClosed(t *testing.T) {
	v := Ed25519{}
	err := v.Verify([]byte("{}"), http.Header{}, time.Now())
	require.Error(t, err)
	assert.True(t, IsNotConfigured(err))
}

func TestBearerToken(t *testing.T) {
	v := BearerToken{Token: "tok_secret"}

	h := http.Header{}
	h.Set("Authorization", "Bearer tok_secret")
	assert.NoError(t, v.Verify(nil, h, time.Now()))

	h.Set("Authorization", "Bearer tok_wrong")
	err := v.Verify(nil, h, time.Now())
	require.Error(t, err)
	assert.Equal(t, CodeBadSignature, err.(*Failure).Code)

	err = v.Verify(nil, http.Header{}, time.Now())
	require.Error(t, err)
	assert.Equal(t, CodeMissingHeader, err.(*Failure).Code)

	empty := BearerToken{}
	assert.True(t, IsNotConfigured(empty.Verify(nil, h, time.Now())))
}

func TestRegistry_UnknownSourceFailsClosed(t *testing.T) {
	r := NewRegistry()
	r.Register("payments", TimestampHMAC{Secret: "s"})

	err := r.Verify("telephony", []byte("{}"), http.Header{}, time.Now())
	require.Error(t, err)
	assert.True(t, IsNotConfigured(err))
}
