package notifier

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignature(t *testing.T) {
	body := []byte(`{"event":"claim_approved","timestamp":1700000000,"data":{"claim_id":"abc"}}`)

	got := Signature("whsec_test", 1700000000, body)

	mac := hmac.New(sha256.New, []byte("whsec_test"))
	mac.Write([]byte("1700000000."))
	mac.Write(body)
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), got)
}

func TestSignatureVariesWithInputs(t *testing.T) {
	body := []byte(`{"event":"x"}`)

	base := Signature("secret", 100, body)

	assert.NotEqual(t, base, Signature("other", 100, body), "secret must change the signature")
	assert.NotEqual(t, base, Signature("secret", 101, body), "timestamp must change the signature")
	assert.NotEqual(t, base, Signature("secret", 100, []byte(`{"event":"y"}`)), "body must change the signature")
}

func TestPayloadDataQuotesNonJSONBody(t *testing.T) {
	structured := payloadData(`{"claim_id":"c-42"}`)
	assert.Equal(t, json.RawMessage(`{"claim_id":"c-42"}`), structured)

	// A plain-text template body still produces a marshallable payload.
	plain := payloadData("Your payout is on its way.")
	envelope, err := json.Marshal(map[string]interface{}{"data": plain})
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":"Your payout is on its way."}`, string(envelope))
}
