package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
)

func TestPrivateKeyStringIsMasked(t *testing.T) {
	raw, err := wgtypes.GeneratePrivateKey()
	require.NoError(t, err)

	k := PrivateKey(raw)
	assert.Equal(t, "******", k.String())

	text, err := k.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, raw.String(), string(text))
}

func TestPublicKeyStringIsNotMasked(t *testing.T) {
	raw, err := wgtypes.GeneratePrivateKey()
	require.NoError(t, err)
	pub := PublicKey(raw.PublicKey())
	assert.Equal(t, raw.PublicKey().String(), pub.String())
}

func TestPublicKeyTextRoundTrip(t *testing.T) {
	raw, err := wgtypes.GeneratePrivateKey()
	require.NoError(t, err)
	pub := PublicKey(raw.PublicKey())

	text, err := pub.MarshalText()
	require.NoError(t, err)

	var got PublicKey
	require.NoError(t, got.UnmarshalText(text))
	assert.Equal(t, pub, got)
}

func TestPrivateKeyDerivesPublicKey(t *testing.T) {
	raw, err := wgtypes.GeneratePrivateKey()
	require.NoError(t, err)
	priv := PrivateKey(raw)
	assert.Equal(t, PublicKey(raw.PublicKey()), priv.PublicKey())
}
