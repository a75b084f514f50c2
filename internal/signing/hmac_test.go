package signing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSignAndVerify(t *testing.T) {
	payload := []byte(`{"event":"call.completed","data":{}}`)
	sig, ts := SignAt("whsec_test", payload, time.Unix(1700000000, 0))

	assert.Equal(t, int64(1700000000), ts)
	assert.True(t, Verify("whsec_test", payload, ts, sig))
	assert.False(t, Verify("whsec_other", payload, ts, sig))
	assert.False(t, Verify("whsec_test", []byte(`{"event":"x"}`), ts, sig))
	assert.False(t, Verify("whsec_test", payload, ts+1, sig))
}
