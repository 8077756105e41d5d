package nanopub

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const keyBits = 2048

// ReadPrivateKey loads an RSA key stored either as PEM or as bare
// base64 DER, the format the nanopub tooling writes to id_rsa.
func ReadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	key, err := ParsePrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("private key %s: %w", path, err)
	}
	return key, nil
}

// ParsePrivateKey decodes PKCS#8 or PKCS#1 key material
func ParsePrivateKey(data []byte) (*rsa.PrivateKey, error) {
	der, err := decodeKeyMaterial(data)
	if err != nil {
		return nil, err
	}

	if k, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		rsaKey, ok := k.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("unsupported key type %T", k)
		}
		return rsaKey, nil
	}

	k, err := x509.ParsePKCS1PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse key: %w", err)
	}
	return k, nil
}

// PublicKeyString encodes the public half as base64 X.509 DER,
// the form embedded in npx:hasPublicKey
func PublicKeyString(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("marshal public key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(der), nil
}

// ParsePublicKeyString reverses PublicKeyString
func ParsePublicKeyString(s string) (*rsa.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	k, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	rsaKey, ok := k.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("unsupported public key type %T", k)
	}
	return rsaKey, nil
}

// GenerateKeys creates a new key pair and writes id_rsa and id_rsa.pub
// into dir. Existing keys are replaced only when overwrite is set.
func GenerateKeys(dir string, overwrite bool) (privPath, pubPath string, err error) {
	privPath = filepath.Join(dir, "id_rsa")
	pubPath = filepath.Join(dir, "id_rsa.pub")

	if !overwrite {
		for _, p := range []string{privPath, pubPath} {
			if _, statErr := os.Stat(p); statErr == nil {
				return "", "", fmt.Errorf("key already exists: %s", p)
			}
		}
	}

	key, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		return "", "", fmt.Errorf("generate key: %w", err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return "", "", fmt.Errorf("marshal private key: %w", err)
	}
	pub, err := PublicKeyString(&key.PublicKey)
	if err != nil {
		return "", "", err
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", "", fmt.Errorf("create key dir: %w", err)
	}
	if err := os.WriteFile(privPath, []byte(base64.StdEncoding.EncodeToString(privDER)), 0600); err != nil {
		return "", "", fmt.Errorf("write private key: %w", err)
	}
	if err := os.WriteFile(pubPath, []byte(pub), 0644); err != nil {
		return "", "", fmt.Errorf("write public key: %w", err)
	}

	return privPath, pubPath, nil
}

func decodeKeyMaterial(data []byte) ([]byte, error) {
	if block, _ := pem.Decode(data); block != nil {
		return block.Bytes, nil
	}

	raw := strings.Join(strings.Fields(string(data)), "")
	der, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("key is neither PEM nor base64 DER: %w", err)
	}
	return der, nil
}
