package twilio

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestVerifySignature_MissingHeaderIsRejected(t *testing.T) {
	assert.False(t, verifySignature("token", "https://example.com/voice", url.Values{}, ""))
}

func TestVerifySignature_WrongSignatureIsRejected(t *testing.T) {
	assert.False(t, verifySignature("token", "https://example.com/voice", url.Values{"CallSid": {"CA1"}}, "not-the-right-signature"))
}

func TestRequestTimestamp_MissingHeaderReturnsNotOK(t *testing.T) {
	r, _ := http.NewRequest(http.MethodPost, "https://example.com/voice", nil)
	_, ok := requestTimestamp(r)
	assert.False(t, ok)
}

func TestRequestTimestamp_ParsesUnixSeconds(t *testing.T) {
	r, _ := http.NewRequest(http.MethodPost, "https://example.com/voice", nil)
	r.Header.Set("X-Twilio-Timestamp", "1700000000")
	ts, ok := requestTimestamp(r)
	assert.True(t, ok)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), ts)
}

func TestVerifyTimestamp_WithinToleranceIsFresh(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	assert.True(t, verifyTimestamp(now.Add(-100*time.Second), now, 300*time.Second))
}

func TestVerifyTimestamp_OlderThanToleranceIsStale(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	assert.False(t, verifyTimestamp(now.Add(-400*time.Second), now, 300*time.Second))
}

func TestVerifyTimestamp_ClockSkewIntoFutureIsAlsoRejected(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	assert.False(t, verifyTimestamp(now.Add(400*time.Second), now, 300*time.Second))
}

func TestVerifyTimestamp_ZeroToleranceDisablesCheck(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	assert.True(t, verifyTimestamp(now.Add(-10*time.Hour), now, 0))
}
