package types

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/tendermint/tendermint/crypto"
	"github.com/tendermint/tendermint/crypto/ed25519"
	"github.com/tendermint/tendermint/crypto/tmhash"
	"google.golang.org/protobuf/encoding/protowire"
)

var (
	// ErrUnauthenticated is returned when a transaction signature does not
	// resolve to a single signer.
	ErrUnauthenticated = errors.New("unauthenticated transaction")
	// ErrUnknownMsg is returned for messages this chain cannot dispatch.
	ErrUnknownMsg = errors.New("unknown message type")
	// ErrInvalidAmount is returned for zero-value transfers.
	ErrInvalidAmount = errors.New("invalid amount")
)

// Tx represents transaction.
type Tx []byte

// Txs represents a slice of transactions.
type Txs []Tx

// Hash computes the TMHASH hash of the wire encoded transaction.
func (tx Tx) Hash() Hash {
	return tmhash.Sum(tx)
}

// MsgType enumerates dispatchable messages.
type MsgType uint32

// Message types.
const (
	MsgTypeCreateClaim MsgType = iota + 1
	MsgTypeRevokeClaim
	MsgTypeTransfer
)

func (t MsgType) String() string {
	switch t {
	case MsgTypeCreateClaim:
		return "create_claim"
	case MsgTypeRevokeClaim:
		return "revoke_claim"
	case MsgTypeTransfer:
		return "transfer"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(t))
	}
}

// Msg is the action a transaction asks the chain to perform.
type Msg interface {
	Type() MsgType
	ValidateBasic() error

	marshal() []byte
}

// MsgCreateClaim claims ownership of Proof.
type MsgCreateClaim struct {
	Proof Proof `json:"proof"`
}

// MsgRevokeClaim releases ownership of Proof.
type MsgRevokeClaim struct {
	Proof Proof `json:"proof"`
}

// MsgTransfer moves free balance to another account.
type MsgTransfer struct {
	To     AccountID `json:"to"`
	Amount uint64    `json:"amount,string"`
}

func (MsgCreateClaim) Type() MsgType { return MsgTypeCreateClaim }
func (MsgRevokeClaim) Type() MsgType { return MsgTypeRevokeClaim }
func (MsgTransfer) Type() MsgType { return MsgTypeTransfer }

// ValidateBasic is a no-op; the proof is bounded when it is constructed.
func (m MsgCreateClaim) ValidateBasic() error { return nil }

// ValidateBasic is a no-op; the proof is bounded when it is constructed.
func (m MsgRevokeClaim) ValidateBasic() error { return nil }

// ValidateBasic checks the recipient and amount.
func (m MsgTransfer) ValidateBasic() error {
	if err := ValidateAccountID(m.To); err != nil {
		return err
	}
	if m.Amount == 0 {
		return fmt.Errorf("%w: zero transfer", ErrInvalidAmount)
	}
	return nil
}

func (m MsgCreateClaim) marshal() []byte { return appendBytesField(nil, 1, m.Proof) }
func (m MsgRevokeClaim) marshal() []byte { return appendBytesField(nil, 1, m.Proof) }

func (m MsgTransfer) marshal() []byte {
	b := appendBytesField(nil, 1, m.To)
	return appendVarintField(b, 2, m.Amount)
}

func decodeProofMsg(bz []byte, maxProofLen uint32) (Proof, error) {
	var (
		raw   []byte
		found bool
	)
	err := decodeFields(bz, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != 1 {
			return 0, nil
		}
		v, n, err := consumeBytes(typ, b)
		raw, found = v, true
		return n, err
	})
	if err != nil {
		return nil, err
	}
	if !found {
		raw = []byte{}
	}
	return NewProof(raw, maxProofLen)
}

func decodeMsg(t MsgType, bz []byte, maxProofLen uint32) (Msg, error) {
	switch t {
	case MsgTypeCreateClaim:
		proof, err := decodeProofMsg(bz, maxProofLen)
		if err != nil {
			return nil, err
		}
		return MsgCreateClaim{Proof: proof}, nil
	case MsgTypeRevokeClaim:
		proof, err := decodeProofMsg(bz, maxProofLen)
		if err != nil {
			return nil, err
		}
		return MsgRevokeClaim{Proof: proof}, nil
	case MsgTypeTransfer:
		var m MsgTransfer
		err := decodeFields(bz, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
			switch num {
			case 1:
				v, n, err := consumeBytes(typ, b)
				m.To = v
				return n, err
			case 2:
				v, n, err := consumeVarint(typ, b)
				m.Amount = v
				return n, err
			}
			return 0, nil
		})
		return m, err
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownMsg, uint32(t))
	}
}

// Body is the signed part of a transaction.
type Body struct {
	ChainID string
	// Nonce must equal the signer's account nonce at execution time.
	Nonce uint64
	Msg   Msg
}

// SignBytes returns the bytes covered by the signature.
func (b *Body) SignBytes() ([]byte, error) {
	if b.Msg == nil {
		return nil, errors.New("body without message")
	}
	var out []byte
	out = appendBytesField(out, 1, []byte(b.ChainID))
	out = appendVarintField(out, 2, b.Nonce)
	out = appendVarintField(out, 3, uint64(b.Msg.Type()))
	out = appendBytesField(out, 4, b.Msg.marshal())
	return out, nil
}

func (b *Body) decode(bz []byte, maxProofLen uint32) error {
	var (
		msgType MsgType
		payload []byte
	)
	err := decodeFields(bz, func(num protowire.Number, typ protowire.Type, data []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeBytes(typ, data)
			b.ChainID = string(v)
			return n, err
		case 2:
			v, n, err := consumeVarint(typ, data)
			b.Nonce = v
			return n, err
		case 3:
			v, n, err := consumeVarint(typ, data)
			msgType = MsgType(v)
			return n, err
		case 4:
			v, n, err := consumeBytes(typ, data)
			payload = v
			return n, err
		}
		return 0, nil
	})
	if err != nil {
		return err
	}
	b.Msg, err = decodeMsg(msgType, payload, maxProofLen)
	return err
}

// SignedTx is a Body with the signer's public key and signature.
type SignedTx struct {
	Body      Body
	PubKey    ed25519.PubKey
	Signature []byte
}

// SignTx signs body with an ed25519 private key.
func SignTx(priv crypto.PrivKey, body Body) (*SignedTx, error) {
	pub, ok := priv.PubKey().(ed25519.PubKey)
	if !ok {
		return nil, fmt.Errorf("unsupported key type %T", priv.PubKey())
	}
	signBytes, err := body.SignBytes()
	if err != nil {
		return nil, err
	}
	sig, err := priv.Sign(signBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return &SignedTx{Body: body, PubKey: pub, Signature: sig}, nil
}

// Signer verifies the signature and returns the signing account.
func (tx *SignedTx) Signer() (AccountID, error) {
	if len(tx.PubKey) != ed25519.PubKeySize {
		return nil, fmt.Errorf("%w: invalid public key length %d", ErrUnauthenticated, len(tx.PubKey))
	}
	signBytes, err := tx.Body.SignBytes()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if !tx.PubKey.VerifySignature(signBytes, tx.Signature) {
		return nil, fmt.Errorf("%w: signature verification failed", ErrUnauthenticated)
	}
	return tx.PubKey.Address(), nil
}

// MarshalBinary encodes SignedTx into its wire form.
func (tx *SignedTx) MarshalBinary() ([]byte, error) {
	body, err := tx.Body.SignBytes()
	if err != nil {
		return nil, err
	}
	var b []byte
	b = appendBytesField(b, 1, body)
	b = appendBytesField(b, 2, tx.PubKey)
	b = appendBytesField(b, 3, tx.Signature)
	return b, nil
}

// DecodeTx parses a wire encoded transaction. Proofs longer than maxProofLen
// are rejected here, so they never reach execution.
func DecodeTx(bz Tx, maxProofLen uint32) (*SignedTx, error) {
	var (
		tx   SignedTx
		body []byte
	)
	err := decodeFields(bz, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeBytes(typ, b)
			body = v
			return n, err
		case 2:
			v, n, err := consumeBytes(typ, b)
			tx.PubKey = v
			return n, err
		case 3:
			v, n, err := consumeBytes(typ, b)
			tx.Signature = v
			return n, err
		}
		return 0, nil
	})
	if err != nil {
		return nil, err
	}
	if err := tx.Body.decode(body, maxProofLen); err != nil {
		return nil, err
	}
	// Only the canonical encoding is accepted, so that a signature covers
	// exactly one transaction hash.
	canonical, err := tx.MarshalBinary()
	if err != nil || !bytes.Equal(canonical, bz) {
		return nil, fmt.Errorf("%w: non-canonical transaction", ErrInvalidEncoding)
	}
	return &tx, nil
}
