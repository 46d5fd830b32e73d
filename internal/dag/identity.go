package dag

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mr-tron/base58"
)

const didKeyPrefix = "did:key:z"

// ed25519Multicodec is the multicodec prefix for Ed25519 public keys (0xED01).
var ed25519Multicodec = []byte{0xed, 0x01}

// ErrBadSignature is returned when a commit signature does not verify.
var ErrBadSignature = errors.New("signature verification failed")

// Identity holds an Ed25519 keypair and the derived DID. Commits written by
// a signing-enabled repo carry the DID and a signature over their unsigned
// encoding.
type Identity struct {
	DID        string `json:"did"`
	PublicKey  string `json:"public_key"`  // base64-encoded 32 bytes
	PrivateKey string `json:"private_key"` // base64-encoded 32-byte seed
}

// DefaultIdentityPath returns ~/.config/mxvc/identity.json.
func DefaultIdentityPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "mxvc", "identity.json")
}

// LoadIdentity reads the identity file at path, generating one if missing.
// created reports whether a new key was written.
func LoadIdentity(path string) (id *Identity, created bool, err error) {
	if path == "" {
		return nil, false, fmt.Errorf("identity path not set")
	}

	data, err := os.ReadFile(path)
	if err == nil {
		var id Identity
		if err := json.Unmarshal(data, &id); err != nil {
			return nil, false, fmt.Errorf("parse identity: %w", err)
		}
		return &id, false, nil
	}
	if !os.IsNotExist(err) {
		return nil, false, fmt.Errorf("read identity: %w", err)
	}

	id, err = generateIdentity(path)
	if err != nil {
		return nil, false, err
	}
	return id, true, nil
}

// generateIdentity creates a new Ed25519 keypair and writes it to disk.
func generateIdentity(path string) (*Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}

	// ed25519.PrivateKey is 64 bytes (seed+public), we store just the 32-byte seed
	id := &Identity{
		DID:        encodeDIDKey(pub),
		PublicKey:  base64.StdEncoding.EncodeToString(pub),
		PrivateKey: base64.StdEncoding.EncodeToString(priv.Seed()),
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create identity dir: %w", err)
	}
	data, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal identity: %w", err)
	}
	if err := SafeWrite(path, data, 0600); err != nil {
		return nil, fmt.Errorf("write identity: %w", err)
	}
	return id, nil
}

// SigningKey expands the stored seed into a private key.
func (id *Identity) SigningKey() (ed25519.PrivateKey, error) {
	seed, err := base64.StdEncoding.DecodeString(id.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("private key seed is %d bytes, want %d", len(seed), ed25519.SeedSize)
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

// VerifyKey decodes the stored public key.
func (id *Identity) VerifyKey() (ed25519.PublicKey, error) {
	pub, err := base64.StdEncoding.DecodeString(id.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key is %d bytes, want %d", len(pub), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(pub), nil
}

// Sign signs data, returning a base64 signature.
func (id *Identity) Sign(data []byte) (string, error) {
	key, err := id.SigningKey()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ed25519.Sign(key, data)), nil
}

// VerifySignature checks a base64 signature made by the key behind did.
func VerifySignature(did string, data []byte, sig string) error {
	pub, err := DecodeDIDKey(did)
	if err != nil {
		return err
	}
	raw, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	if !ed25519.Verify(pub, data, raw) {
		return ErrBadSignature
	}
	return nil
}

// encodeDIDKey encodes a raw Ed25519 public key as did:key:z... using
// multicodec 0xED01 prefix and base58btc encoding.
func encodeDIDKey(publicKey []byte) string {
	prefixed := append(append([]byte{}, ed25519Multicodec...), publicKey...)
	return didKeyPrefix + base58.Encode(prefixed)
}

// DecodeDIDKey extracts the Ed25519 public key from a did:key string.
func DecodeDIDKey(did string) (ed25519.PublicKey, error) {
	if !strings.HasPrefix(did, didKeyPrefix) {
		return nil, fmt.Errorf("not an ed25519 did:key: %q", did)
	}
	payload := strings.TrimPrefix(did, didKeyPrefix)
	if payload == "" {
		return nil, fmt.Errorf("empty did:key payload")
	}
	decoded, err := base58.Decode(payload)
	if err != nil {
		return nil, fmt.Errorf("decode did:key: %w", err)
	}
	if !bytes.HasPrefix(decoded, ed25519Multicodec) {
		return nil, fmt.Errorf("did:key is not an ed25519 key")
	}
	pub := decoded[len(ed25519Multicodec):]
	if len(pub) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("did:key public key is %d bytes, want %d", len(pub), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(pub), nil
}
