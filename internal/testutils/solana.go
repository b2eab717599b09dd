package testutils

import (
	"encoding/base64"
	"encoding/json"
	"sync"
	"testing"

	bin "github.com/gagliardetto/binary"
	sollib "github.com/gagliardetto/solana-go"
)

// SolanaRPC wraps an RPCServer with helpers for the Solana methods the deployer calls.
type SolanaRPC struct {
	*RPCServer

	// Signature is returned by every sendTransaction call.
	Signature sollib.Signature

	mu       sync.Mutex
	sent     []*sollib.Transaction
	accounts map[sollib.PublicKey]map[string]any
}

// Sent returns the decoded transactions received so far, in order.
func (s *SolanaRPC) Sent() []*sollib.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]*sollib.Transaction(nil), s.sent...)
}

// NewSolanaRPC starts a fake Solana node that hands out a blockhash, accepts every transaction
// and reports it as confirmed. Individual methods can be overridden with Handle.
func NewSolanaRPC(t *testing.T) *SolanaRPC {
	t.Helper()

	s := &SolanaRPC{
		RPCServer: NewRPCServer(t),
		Signature: sollib.Signature{1, 2, 3, 4},
	}

	s.HandleResult("getLatestBlockhash", map[string]any{
		"context": map[string]any{"slot": 1},
		"value": map[string]any{
			"blockhash":            sollib.Hash{9, 9, 9}.String(),
			"lastValidBlockHeight": 100,
		},
	})
	s.Handle("sendTransaction", func(params json.RawMessage) (any, *RPCError) {
		var args []json.RawMessage
		if err := json.Unmarshal(params, &args); err != nil || len(args) == 0 {
			return nil, &RPCError{Code: -32602, Message: "invalid params"}
		}

		var encoded string
		if err := json.Unmarshal(args[0], &encoded); err != nil {
			return nil, &RPCError{Code: -32602, Message: "invalid transaction encoding"}
		}

		raw, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, &RPCError{Code: -32602, Message: err.Error()}
		}

		tx, err := sollib.TransactionFromDecoder(bin.NewBinDecoder(raw))
		if err != nil {
			return nil, &RPCError{Code: -32602, Message: err.Error()}
		}

		s.mu.Lock()
		s.sent = append(s.sent, tx)
		s.mu.Unlock()

		return s.Signature.String(), nil
	})
	s.SetSignatureStatus("confirmed", nil)

	return s
}

// SetSignatureStatus makes getSignatureStatuses report status with the given error. An empty
// status reports the signature as unknown.
func (s *SolanaRPC) SetSignatureStatus(status string, txErr any) {
	var value any
	if status != "" {
		value = map[string]any{
			"slot":               1,
			"confirmations":      nil,
			"err":                txErr,
			"confirmationStatus": status,
		}
	}

	s.HandleResult("getSignatureStatuses", map[string]any{
		"context": map[string]any{"slot": 1},
		"value":   []any{value},
	})
}

// SetAccount serves data for every getAccountInfo call, owned by owner.
func (s *SolanaRPC) SetAccount(owner sollib.PublicKey, data []byte) {
	s.HandleResult("getAccountInfo", AccountInfo(owner, data))
}

// SetAccountFor serves data for getAccountInfo calls on pubkey only. Other accounts are
// reported missing unless set too.
func (s *SolanaRPC) SetAccountFor(pubkey, owner sollib.PublicKey, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.accounts == nil {
		s.accounts = make(map[sollib.PublicKey]map[string]any)
		s.Handle("getAccountInfo", s.accountInfo)
	}
	s.accounts[pubkey] = AccountInfo(owner, data)
}

func (s *SolanaRPC) accountInfo(params json.RawMessage) (any, *RPCError) {
	var args []json.RawMessage
	if err := json.Unmarshal(params, &args); err != nil || len(args) == 0 {
		return nil, &RPCError{Code: -32602, Message: "invalid params"}
	}

	var key string
	if err := json.Unmarshal(args[0], &key); err != nil {
		return nil, &RPCError{Code: -32602, Message: "invalid pubkey"}
	}
	pubkey, err := sollib.PublicKeyFromBase58(key)
	if err != nil {
		return nil, &RPCError{Code: -32602, Message: "invalid pubkey"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if info, ok := s.accounts[pubkey]; ok {
		return info, nil
	}

	return MissingAccount(), nil
}

// AccountInfo is a getAccountInfo result carrying data.
func AccountInfo(owner sollib.PublicKey, data []byte) map[string]any {
	return map[string]any{
		"context": map[string]any{"slot": 1},
		"value": map[string]any{
			"data":       []string{base64.StdEncoding.EncodeToString(data), "base64"},
			"executable": false,
			"lamports":   1461600,
			"owner":      owner.String(),
			"rentEpoch":  0,
			"space":      len(data),
		},
	}
}

// MissingAccount is a getAccountInfo result for an account that does not exist.
func MissingAccount() map[string]any {
	return map[string]any{
		"context": map[string]any{"slot": 1},
		"value":   nil,
	}
}
