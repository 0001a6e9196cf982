package grpcdriver

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/nacl/box"
)

// KeyPair is one identity's long-term Curve25519 keypair, analogous to
// ZeroMQ's CURVE mechanism. GenerateKeyPair creates one in memory; the
// generate-keys manage command reports only its public key, and no
// code in this module writes keypairs to disk.
type KeyPair struct {
	Public  *[32]byte
	Private *[32]byte
}

// GenerateKeyPair creates a new Curve25519 keypair for curve_encryption.
func GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("grpcdriver: generate keypair: %w", err)
	}
	return &KeyPair{Public: pub, Private: priv}, nil
}

// sealField seals plaintext to recipient's public key using an
// ephemeral sender key, anonymous sealed-box style.
func sealField(plaintext []byte, recipient *[32]byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, nil
	}
	sealed, err := box.SealAnonymous(nil, plaintext, recipient, rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("grpcdriver: seal: %w", err)
	}
	return sealed, nil
}

// openField opens a field sealed with sealField.
func openField(sealed []byte, pub, priv *[32]byte) ([]byte, error) {
	if len(sealed) == 0 {
		return nil, nil
	}
	plaintext, ok := box.OpenAnonymous(nil, sealed, pub, priv)
	if !ok {
		return nil, fmt.Errorf("grpcdriver: open: authentication failed")
	}
	return plaintext, nil
}

// sealFrame encrypts a Frame's payload fields in place for recipient.
func sealFrame(f *wireFrame, recipient *[32]byte) error {
	var err error
	if f.Data, err = sealField(f.Data, recipient); err != nil {
		return err
	}
	if f.Stdout, err = sealField(f.Stdout, recipient); err != nil {
		return err
	}
	if f.Stderr, err = sealField(f.Stderr, recipient); err != nil {
		return err
	}
	if f.Info, err = sealField(f.Info, recipient); err != nil {
		return err
	}
	return nil
}

// openFrame decrypts a Frame's payload fields in place.
func openFrame(f *wireFrame, pub, priv *[32]byte) error {
	var err error
	if f.Data, err = openField(f.Data, pub, priv); err != nil {
		return err
	}
	if f.Stdout, err = openField(f.Stdout, pub, priv); err != nil {
		return err
	}
	if f.Stderr, err = openField(f.Stderr, pub, priv); err != nil {
		return err
	}
	if f.Info, err = openField(f.Info, pub, priv); err != nil {
		return err
	}
	return nil
}
