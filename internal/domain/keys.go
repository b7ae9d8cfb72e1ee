package domain

import (
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
)

// PublicKey identifies a WireGuard peer or network. Not secret: it is safe
// to log, compare, and use as a map key.
type PublicKey wgtypes.Key

// PrivateKey is the secret half of a WireGuard keypair. String masks the
// value for logs; the wire encoding (MarshalText/UnmarshalText) carries the
// real key, since the control-plane frames must transport it.
type PrivateKey wgtypes.Key

// PresharedKey is an optional additional peer secret. Masked the same way
// as PrivateKey.
type PresharedKey wgtypes.Key

// ParsePublicKey decodes a base64-encoded WireGuard key.
func ParsePublicKey(s string) (PublicKey, error) {
	k, err := wgtypes.ParseKey(s)
	return PublicKey(k), err
}

// ParsePrivateKey decodes a base64-encoded WireGuard key.
func ParsePrivateKey(s string) (PrivateKey, error) {
	k, err := wgtypes.ParseKey(s)
	return PrivateKey(k), err
}

// ParsePresharedKey decodes a base64-encoded WireGuard key.
func ParsePresharedKey(s string) (PresharedKey, error) {
	k, err := wgtypes.ParseKey(s)
	return PresharedKey(k), err
}

// NewPublicKey wraps a raw 32-byte WireGuard key, as returned by wgctrl's
// device/peer structs.
func NewPublicKey(b []byte) (PublicKey, error) {
	k, err := wgtypes.NewKey(b)
	return PublicKey(k), err
}

// NewPrivateKey wraps a raw 32-byte WireGuard key.
func NewPrivateKey(b []byte) (PrivateKey, error) {
	k, err := wgtypes.NewKey(b)
	return PrivateKey(k), err
}

// NewPresharedKey wraps a raw 32-byte WireGuard key.
func NewPresharedKey(b []byte) (PresharedKey, error) {
	k, err := wgtypes.NewKey(b)
	return PresharedKey(k), err
}

// String returns the base64 encoding of the public key. Public keys are not
// secret, so the full value is shown.
func (k PublicKey) String() string { return wgtypes.Key(k).String() }

// MarshalText implements encoding.TextMarshaler so PublicKey can be used as
// a map key in JSON (e.g. GatewayConfig.Peers).
func (k PublicKey) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *PublicKey) UnmarshalText(text []byte) error {
	parsed, err := ParsePublicKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// String masks the private key so it never leaks into logs accidentally.
func (k PrivateKey) String() string { return "******" }

// MarshalText encodes the real key, used when the struct holding this key
// is serialized to the control-plane wire form.
func (k PrivateKey) MarshalText() ([]byte, error) { return []byte(wgtypes.Key(k).String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *PrivateKey) UnmarshalText(text []byte) error {
	parsed, err := ParsePrivateKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// PublicKey derives the public key for this private key.
func (k PrivateKey) PublicKey() PublicKey {
	return PublicKey(wgtypes.Key(k).PublicKey())
}

// String masks the preshared key so it never leaks into logs accidentally.
func (k PresharedKey) String() string { return "******" }

// MarshalText encodes the real key, used on the control-plane wire form.
func (k PresharedKey) MarshalText() ([]byte, error) { return []byte(wgtypes.Key(k).String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *PresharedKey) UnmarshalText(text []byte) error {
	parsed, err := ParsePresharedKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
