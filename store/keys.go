package store

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	ds "github.com/ipfs/go-datastore"
	"github.com/tendermint/tendermint/crypto/tmhash"

	"github.com/rollkit/poe/types"
)

const (
	// AppPrefix namespaces every key that belongs to application state.
	// Only keys under AppPrefix contribute to the state root.
	AppPrefix = "/app"

	// ChainPrefix namespaces blocks, chain state and the transaction index.
	ChainPrefix = "/chain"

	claimsPrefix   = "claims"
	accountsPrefix = "accounts"
	paramsKey      = "params"

	blockPrefix    = "b"
	indexPrefix    = "i"
	txResultPrefix = "t"
	statePrefix    = "s"
	heightKey      = "0"
)

// GenerateKey joins fields into a datastore key.
func GenerateKey(fields []string) string {
	return "/" + strings.Join(fields, "/")
}

// ClaimDigest returns the fixed-size digest claims are keyed by.
func ClaimDigest(proof types.Proof) []byte {
	return tmhash.Sum(proof)
}

func getClaimKey(proof types.Proof) ds.Key {
	return ds.NewKey(AppPrefix).ChildString(claimsPrefix).ChildString(hex.EncodeToString(ClaimDigest(proof)))
}

func getAccountKey(id types.AccountID) ds.Key {
	return ds.NewKey(AppPrefix).ChildString(accountsPrefix).ChildString(hex.EncodeToString(id))
}

func getParamsKey() ds.Key {
	return ds.NewKey(AppPrefix).ChildString(paramsKey)
}

func getBlockKey(height uint64) string {
	return GenerateKey([]string{blockPrefix, strconv.FormatUint(height, 10)})
}

func getIndexKey(hash types.Hash) string {
	return GenerateKey([]string{indexPrefix, hash.String()})
}

func getTxResultKey(hash types.Hash) string {
	return GenerateKey([]string{txResultPrefix, hash.String()})
}

func getStateKey() string {
	return GenerateKey([]string{statePrefix})
}

func getHeightKey() string {
	return GenerateKey([]string{heightKey})
}

const heightLength = 8

func encodeHeight(height uint64) []byte {
	heightBytes := make([]byte, heightLength)
	binary.BigEndian.PutUint64(heightBytes, height)
	return heightBytes
}

func decodeHeight(heightBytes []byte) (uint64, error) {
	if len(heightBytes) != heightLength {
		return 0, fmt.Errorf("invalid height length: %d (expected %d)", len(heightBytes), heightLength)
	}
	return binary.BigEndian.Uint64(heightBytes), nil
}
