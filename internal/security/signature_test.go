package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-hmac-secret-0123456789"

func TestSignatureRoundTrip(t *testing.T) {
	v := NewSignatureValidator(testSecret)

	ts := time.Now().Unix()
	msg := MintMessage("0x742d35Cc6634C0532925a3b0F26750C66d78EB66", "1000000000000000000", ts)

	sig, err := v.Sign(msg)
	require.NoError(t, err)

	assert.NoError(t, v.Verify(msg, ts, sig))
	assert.NoError(t, v.Verify(msg, ts, "0x"+sig), "0x prefix should be accepted")
}

func TestSignatureMismatch(t *testing.T) {
	v := NewSignatureValidator(testSecret)

	ts := time.Now().Unix()
	msg := MintMessage("0x742d35Cc6634C0532925a3b0F26750C66d78EB66", "1000", ts)
	sig, err := v.Sign(msg)
	require.NoError(t, err)

	tampered := MintMessage("0x742d35Cc6634C0532925a3b0F26750C66d78EB66", "2000", ts)
	assert.ErrorIs(t, v.Verify(tampered, ts, sig), ErrBadSignature)
	assert.ErrorIs(t, v.Verify(msg, ts, "not-hex"), ErrBadSignature)

	other := NewSignatureValidator("another-secret-0123456789")
	assert.ErrorIs(t, other.Verify(msg, ts, sig), ErrBadSignature)
}

func TestSignatureFreshnessWindow(t *testing.T) {
	v := NewSignatureValidator(testSecret)
	base := time.Unix(1_700_000_000, 0)
	v.now = func() time.Time { return base }

	for _, tc := range []struct {
		name string
		ts   int64
		err  error
	}{
		{"fresh", base.Unix(), nil},
		{"edge of window", base.Unix() - 60, nil},
		{"too old", base.Unix() - 61, ErrStaleTimestamp},
		{"future dated", base.Unix() + 61, ErrStaleTimestamp},
	} {
		t.Run(tc.name, func(t *testing.T) {
			msg := MintMessage("0x742d35Cc6634C0532925a3b0F26750C66d78EB66", "1", tc.ts)
			sig, err := v.Sign(msg)
			require.NoError(t, err)

			got := v.Verify(msg, tc.ts, sig)
			if tc.err == nil {
				assert.NoError(t, got)
			} else {
				assert.ErrorIs(t, got, tc.err)
			}
		})
	}
}

func TestSignatureWeakSecret(t *testing.T) {
	v := NewSignatureValidator("short")

	_, err := v.Sign("anything")
	assert.ErrorIs(t, err, ErrWeakSecret)
	assert.ErrorIs(t, v.Verify("anything", time.Now().Unix(), "00"), ErrWeakSecret)
}

func TestCanonicalMessages(t *testing.T) {
	assert.Equal(t, "0xabc|100|42", MintMessage("0xabc", "100", 42))
	assert.Equal(t, "0xabc|gold|3|42", AwardMessage("0xabc", "gold", "3", 42))
	assert.Equal(t, "0xabc|100|coffee|42", RedeemMessage("0xabc", "100", "coffee", 42))
}
