// Package wallet wraps the coin daemon's account RPCs. Every failure comes
// back as a *GatewayError so callers never mistake an outage for an empty
// balance.
package wallet

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// RPC is the raw JSON-RPC surface of the daemon. *rpcclient.Client satisfies it.
type RPC interface {
	RawRequest(method string, params []json.RawMessage) (json.RawMessage, error)
}

// GatewayError reports a failed wallet operation.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("wallet %s failed: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// AddressInfo is the subset of validateaddress we act on.
type AddressInfo struct {
	IsValid bool   `json:"isvalid"`
	Address string `json:"address"`
	IsMine  bool   `json:"ismine"`
}

type Gateway struct {
	rpc RPC
}

func NewGateway(rpc RPC) *Gateway {
	return &Gateway{rpc: rpc}
}

// TotalBalance returns the wallet's balance across all accounts.
func (g *Gateway) TotalBalance(ctx context.Context) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := g.call(ctx, "getbalance", nil, &balance)
	return balance, err
}

// GetBalance returns the balance of account counting only funds with at least minConf confirmations.
func (g *Gateway) GetBalance(ctx context.Context, account string, minConf int) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := g.call(ctx, "getbalance", []interface{}{account, minConf}, &balance)
	return balance, err
}

// Move transfers amount between two accounts inside the wallet.
func (g *Gateway) Move(ctx context.Context, from, to string, amount decimal.Decimal) (bool, error) {
	var ok bool
	err := g.call(ctx, "move", []interface{}{from, to, amount}, &ok)
	return ok, err
}

// GetAccountAddress returns the receiving address of account, creating one if needed.
func (g *Gateway) GetAccountAddress(ctx context.Context, account string) (string, error) {
	var address string
	err := g.call(ctx, "getaccountaddress", []interface{}{account}, &address)
	return address, err
}

func (g *Gateway) ValidateAddress(ctx context.Context, address string) (AddressInfo, error) {
	var info AddressInfo
	err := g.call(ctx, "validateaddress", []interface{}{address}, &info)
	return info, err
}

// SendFrom pays amount from account to an external address and returns the transaction id.
func (g *Gateway) SendFrom(ctx context.Context, account, address string, amount decimal.Decimal) (string, error) {
	var txid string
	err := g.call(ctx, "sendfrom", []interface{}{account, address, amount}, &txid)
	return txid, err
}

type result struct {
	raw json.RawMessage
	err error
}

func (g *Gateway) call(ctx context.Context, method string, args []interface{}, out interface{}) error {
	params, err := encodeParams(args)
	if err != nil {
		return &GatewayError{Op: method, Err: err}
	}

	done := make(chan result, 1)
	go func() {
		raw, err := g.rpc.RawRequest(method, params)
		done <- result{raw: raw, err: err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		return &GatewayError{Op: method, Err: ctx.Err()}
	}
	if res.err != nil {
		return &GatewayError{Op: method, Err: res.err}
	}
	if len(res.raw) == 0 || string(res.raw) == "null" {
		return &GatewayError{Op: method, Err: fmt.Errorf("empty result")}
	}
	if err := json.Unmarshal(res.raw, out); err != nil {
		return &GatewayError{Op: method, Err: fmt.Errorf("decode result: %w", err)}
	}
	return nil
}

// encodeParams renders amounts as bare JSON numbers; the daemon rejects quoted amounts.
func encodeParams(args []interface{}) ([]json.RawMessage, error) {
	params := make([]json.RawMessage, 0, len(args))
	for _, a := range args {
		if d, ok := a.(decimal.Decimal); ok {
			params = append(params, json.RawMessage(d.String()))
			continue
		}
		b, err := json.Marshal(a)
		if err != nil {
			return nil, err
		}
		params = append(params, b)
	}
	return params, nil
}
