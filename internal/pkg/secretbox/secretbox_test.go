package secretbox

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSealOpenRoundTrip(t *testing.T) {
	box, err := New("server-secret")
	require.NoError(t, err)

	sealed, err := box.Seal("sk-test-123")
	require.NoError(t, err)
	require.NotContains(t, sealed, "sk-test-123")

	plain, err := box.Open(sealed)
	require.NoError(t, err)
	require.Equal(t, "sk-test-123", plain)
}

func TestOpenRejectsForeignKey(t *testing.T) {
	a, err := New("a")
	require.NoError(t, err)
	b, err := New("b")
	require.NoError(t, err)

	sealed, err := a.Seal("value")
	require.NoError(t, err)
	_, err = b.Open(sealed)
	require.ErrorIs(t, err, ErrOpen)

	_, err = b.Open("not base64 !!")
	require.ErrorIs(t, err, ErrOpen)
	_, err = b.Open("c2hvcnQ=")
	require.ErrorIs(t, err, ErrOpen)
}

func TestNewRequiresPassphrase(t *testing.T) {
	_, err := New("")
	require.Error(t, err)
}

func TestFingerprintStable(t *testing.T) {
	require.Equal(t, Fingerprint("k1"), Fingerprint("k1"))
	require.NotEqual(t, Fingerprint("k1"), Fingerprint("k2"))
}
