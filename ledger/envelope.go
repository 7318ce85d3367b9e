package ledger

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cometbft/cometbft/crypto/ed25519"
	cmttypes "github.com/cometbft/cometbft/types"
	"github.com/google/uuid"
)

// Envelope is the signed transaction body broadcast to the chain
type Envelope struct {
	Method    Method          `json:"method"`
	Args      json.RawMessage `json:"args"`
	Nonce     string          `json:"nonce"`
	Signer    []byte          `json:"signer"`
	Signature []byte          `json:"signature"`
}

var ErrBadSignature = errors.New("invalid envelope signature")

// SigningBytes is the message covered by the signature: method, args and nonce
// joined by 0x00
func SigningBytes(method Method, args []byte, nonce string) []byte {
	msg := make([]byte, 0, len(method)+len(args)+len(nonce)+2)
	msg = append(msg, method...)
	msg = append(msg, 0x00)
	msg = append(msg, args...)
	msg = append(msg, 0x00)
	msg = append(msg, nonce...)
	return msg
}

// DecodeEnvelope parses raw transaction bytes
func DecodeEnvelope(tx []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(tx, &env); err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}
	if !env.Method.Valid() {
		return nil, fmt.Errorf("unknown method %q", env.Method)
	}
	if _, err := uuid.Parse(env.Nonce); err != nil {
		return nil, fmt.Errorf("invalid nonce: %w", err)
	}
	return &env, nil
}

// Verify checks the signature against the embedded public key
func (e *Envelope) Verify() error {
	if len(e.Signer) != ed25519.PubKeySize {
		return fmt.Errorf("%w: signer key is %d bytes", ErrBadSignature, len(e.Signer))
	}
	pub := ed25519.PubKey(e.Signer)
	if !pub.VerifySignature(SigningBytes(e.Method, e.Args, e.Nonce), e.Signature) {
		return ErrBadSignature
	}
	return nil
}

// DecodeArgs unmarshals the argument object
func (e *Envelope) DecodeArgs() (Args, error) {
	var args Args
	if err := json.Unmarshal(e.Args, &args); err != nil {
		return args, fmt.Errorf("decoding args: %w", err)
	}
	return args, nil
}

// SignerAddress is the lower-case hex address of the signing key
func (e *Envelope) SignerAddress() string {
	return strings.ToLower(ed25519.PubKey(e.Signer).Address().String())
}

// Signer signs envelopes with the service's ledger key
type Signer struct {
	key ed25519.PrivKey
}

func NewSigner(key ed25519.PrivKey) *Signer {
	return &Signer{key: key}
}

// GenerateSigner creates a signer with a fresh random key
func GenerateSigner() *Signer {
	return &Signer{key: ed25519.GenPrivKey()}
}

// ParseSigner loads a signer from a hex encoded private key
func ParseSigner(keyHex string) (*Signer, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(keyHex))
	if err != nil {
		return nil, fmt.Errorf("decoding signer key: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("signer key is %d bytes, want %d", len(raw), ed25519.PrivateKeySize)
	}
	return &Signer{key: ed25519.PrivKey(raw)}, nil
}

// KeyHex exports the private key, for keygen
func (s *Signer) KeyHex() string {
	return hex.EncodeToString(s.key.Bytes())
}

// Address is the lower-case hex ledger address of the signer
func (s *Signer) Address() string {
	return strings.ToLower(s.key.PubKey().Address().String())
}

// Seal builds and signs the envelope for call and returns the transaction bytes
func (s *Signer) Seal(call Call) (cmttypes.Tx, error) {
	if !call.Method.Valid() {
		return nil, fmt.Errorf("unknown method %q", call.Method)
	}
	args, err := json.Marshal(call.Args)
	if err != nil {
		return nil, fmt.Errorf("encoding args: %w", err)
	}
	nonce := uuid.NewString()
	sig, err := s.key.Sign(SigningBytes(call.Method, args, nonce))
	if err != nil {
		return nil, fmt.Errorf("signing %s: %w", call.Method, err)
	}
	env := Envelope{
		Method:    call.Method,
		Args:      args,
		Nonce:     nonce,
		Signer:    s.key.PubKey().Bytes(),
		Signature: sig,
	}
	return json.Marshal(env)
}

// TxHash is the lower-case hex CometBFT hash of tx
func TxHash(tx cmttypes.Tx) string {
	return hex.EncodeToString(tx.Hash())
}
