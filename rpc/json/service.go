package json

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/gorilla/rpc/v2/json2"
	"github.com/tendermint/tendermint/libs/log"

	"github.com/rollkit/poe/rpc/client"
	"github.com/rollkit/poe/types"
)

// GetHTTPHandler returns handler configured to serve poe JSON-RPC API.
func GetHTTPHandler(l *client.Client, logger log.Logger) (http.Handler, error) {
	return newHandler(newService(l, logger), json2.NewCodec(), logger), nil
}

type method struct {
	m          reflect.Value
	argsType   reflect.Type
	returnType reflect.Type
	ws         bool
}

func newMethod(m interface{}) *method {
	mType := reflect.TypeOf(m)

	return &method{
		m:          reflect.ValueOf(m),
		argsType:   mType.In(1).Elem(),
		returnType: mType.Out(0).Elem(),
		ws:         mType.NumIn() == 3,
	}
}

type service struct {
	client  *client.Client
	methods map[string]*method
	logger  log.Logger
}

func newService(c *client.Client, l log.Logger) *service {
	s := service{
		client: c,
		logger: l,
	}
	s.methods = map[string]*method{
		"subscribe":       newMethod(s.Subscribe),
		"unsubscribe":     newMethod(s.Unsubscribe),
		"unsubscribe_all": newMethod(s.UnsubscribeAll),

		"health":              newMethod(s.Health),
		"status":              newMethod(s.Status),
		"genesis":             newMethod(s.Genesis),
		"params":              newMethod(s.Params),
		"block":               newMethod(s.Block),
		"block_by_hash":       newMethod(s.BlockByHash),
		"tx":                  newMethod(s.Tx),
		"num_unconfirmed_txs": newMethod(s.NumUnconfirmedTxs),

		"broadcast_tx_commit": newMethod(s.BroadcastTxCommit),
		"broadcast_tx_sync":   newMethod(s.BroadcastTxSync),
		"broadcast_tx_async":  newMethod(s.BroadcastTxAsync),

		"claim":           newMethod(s.Claim),
		"claims_by_owner": newMethod(s.ClaimsByOwner),
		"account":         newMethod(s.Account),
	}
	return &s
}

func (s *service) Subscribe(req *http.Request, args *subscribeArgs, wsConn *wsConn) (*emptyResult, error) {
	if wsConn == nil {
		return nil, errors.New("subscribe is only available over WebSocket")
	}
	addr := req.RemoteAddr
	out, err := s.client.Subscribe(req.Context(), addr, args.Query, 100)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	id := requestID(req.Context())
	go func() {
		for ev := range out {
			bz, err := json.Marshal(response{Version: "2.0", Result: ev, ID: id})
			if err != nil {
				s.logger.Error("failed to marshal event", "error", err)
				continue
			}
			if !wsConn.send(bz) {
				// connection is gone; drain until the subscription is cancelled
				for range out {
				}
				return
			}
		}
	}()

	return &emptyResult{}, nil
}

func (s *service) Unsubscribe(req *http.Request, args *unsubscribeArgs, wsConn *wsConn) (*emptyResult, error) {
	if err := s.client.Unsubscribe(context.Background(), req.RemoteAddr, args.Query); err != nil {
		return nil, fmt.Errorf("failed to unsubscribe: %w", err)
	}
	return &emptyResult{}, nil
}

func (s *service) UnsubscribeAll(req *http.Request, args *unsubscribeAllArgs, wsConn *wsConn) (*emptyResult, error) {
	if err := s.client.UnsubscribeAll(context.Background(), req.RemoteAddr); err != nil {
		return nil, fmt.Errorf("failed to unsubscribe: %w", err)
	}
	return &emptyResult{}, nil
}

// info API
func (s *service) Health(req *http.Request, args *healthArgs) (*client.ResultHealth, error) {
	return s.client.Health(req.Context())
}

func (s *service) Status(req *http.Request, args *statusArgs) (*client.ResultStatus, error) {
	return s.client.Status(req.Context())
}

func (s *service) Genesis(req *http.Request, args *genesisArgs) (*client.ResultGenesis, error) {
	return s.client.Genesis(req.Context())
}

func (s *service) Params(req *http.Request, args *paramsArgs) (*client.ResultParams, error) {
	return s.client.Params(req.Context())
}

func (s *service) Block(req *http.Request, args *blockArgs) (*client.ResultBlock, error) {
	return s.client.Block(req.Context(), &args.Height)
}

func (s *service) BlockByHash(req *http.Request, args *blockByHashArgs) (*client.ResultBlock, error) {
	hash, err := parseHex(args.Hash)
	if err != nil {
		return nil, err
	}
	return s.client.BlockByHash(req.Context(), hash)
}

func (s *service) Tx(req *http.Request, args *txArgs) (*client.ResultTx, error) {
	hash, err := parseHex(args.Hash)
	if err != nil {
		return nil, err
	}
	return s.client.Tx(req.Context(), hash)
}

func (s *service) NumUnconfirmedTxs(req *http.Request, args *numUnconfirmedTxsArgs) (*client.ResultUnconfirmedTxs, error) {
	return s.client.NumUnconfirmedTxs(req.Context())
}

// tx API
func (s *service) BroadcastTxCommit(req *http.Request, args *broadcastTxArgs) (*client.ResultBroadcastTxCommit, error) {
	return s.client.BroadcastTxCommit(req.Context(), args.Tx)
}

func (s *service) BroadcastTxSync(req *http.Request, args *broadcastTxArgs) (*client.ResultBroadcastTx, error) {
	return s.client.BroadcastTxSync(req.Context(), args.Tx)
}

func (s *service) BroadcastTxAsync(req *http.Request, args *broadcastTxArgs) (*client.ResultBroadcastTx, error) {
	return s.client.BroadcastTxAsync(req.Context(), args.Tx)
}

// claims API
func (s *service) Claim(req *http.Request, args *claimArgs) (*client.ResultClaim, error) {
	params, err := s.client.Params(req.Context())
	if err != nil {
		return nil, err
	}
	proof, err := types.ParseProof(args.Proof, params.Params.MaxProofLength)
	if err != nil {
		return nil, err
	}
	return s.client.Claim(req.Context(), proof)
}

func (s *service) ClaimsByOwner(req *http.Request, args *claimsByOwnerArgs) (*client.ResultClaims, error) {
	owner, err := types.ParseAccountID(args.Owner)
	if err != nil {
		return nil, err
	}
	return s.client.ClaimsByOwner(req.Context(), owner)
}

func (s *service) Account(req *http.Request, args *accountArgs) (*client.ResultAccount, error) {
	id, err := types.ParseAccountID(args.Address)
	if err != nil {
		return nil, err
	}
	return s.client.Account(req.Context(), id)
}

func parseHex(s string) ([]byte, error) {
	bz, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return bz, nil
}
