package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"creditvault/native/credit"
)

type openAccountRequest struct {
	Owner   string      `json:"owner"`
	Debt    string      `json:"debt"`
	Actions []rawAction `json:"actions"`
}

type accountResponse struct {
	Account         string `json:"account"`
	Owner           string `json:"owner"`
	Principal       string `json:"principal"`
	AccruedInterest string `json:"accruedInterest"`
	AccruedFees     string `json:"accruedFees"`
	TotalValue      string `json:"totalValue"`
	TWV             string `json:"twv"`
	Liquidatable    bool   `json:"liquidatable"`
}

type multicallRequest struct {
	Caller  string      `json:"caller"`
	AsBot   bool        `json:"asBot"`
	Actions []rawAction `json:"actions"`
}

type rawAction struct {
	Type   string          `json:"type"`
	Params json.RawMessage `json:"params"`
}

type closeRequest struct {
	Caller          string `json:"caller"`
	Kind            string `json:"kind"`
	To              string `json:"to"`
	SkipBits        []uint `json:"skipBits"`
	ConvertToNative bool   `json:"convertToNative"`
}

type closeResponse struct {
	RemainingFunds string `json:"remainingFunds"`
	Loss           string `json:"loss"`
}

type adminRequest struct {
	Caller string `json:"caller"`
}

type poolResponse struct {
	Available   string `json:"available"`
	Borrowed    string `json:"borrowed"`
	BorrowIndex string `json:"borrowIndex"`
}

func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, errors.New("amount is required")
	}
	out, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	return out, nil
}

func parseClosureKind(raw string) (credit.ClosureKind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "close":
		return credit.ClosureClose, nil
	case "liquidate":
		return credit.ClosureLiquidate, nil
	case "liquidate_expired", "liquidateexpired":
		return credit.ClosureLiquidateExpired, nil
	default:
		return 0, fmt.Errorf("unknown closure kind %q", raw)
	}
}

func decodeAddressField(raw json.RawMessage, field string) (common.Address, error) {
	var params map[string]string
	if err := json.Unmarshal(raw, &params); err != nil {
		return common.Address{}, err
	}
	value := params[field]
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("invalid %s address", field)
	}
	return common.HexToAddress(value), nil
}

// decodeActions maps the wire action list onto the engine's closed action
// set. Unknown types are rejected here so a malformed batch never reaches the
// engine.
func decodeActions(raws []rawAction) ([]credit.Action, error) {
	actions := make([]credit.Action, 0, len(raws))
	for _, raw := range raws {
		action, err := decodeAction(raw)
		if err != nil {
			return nil, err
		}
		actions = append(actions, action)
	}
	return actions, nil
}

func decodeAction(raw rawAction) (credit.Action, error) {
	switch strings.ToLower(strings.TrimSpace(raw.Type)) {
	case "addcollateral":
		var p struct {
			Token  string `json:"token"`
			Amount string `json:"amount"`
		}
		if err := json.Unmarshal(raw.Params, &p); err != nil {
			return nil, err
		}
		if !common.IsHexAddress(p.Token) {
			return nil, errors.New("invalid token address")
		}
		amount, err := parseAmount(p.Amount)
		if err != nil {
			return nil, err
		}
		return credit.AddCollateral{Token: common.HexToAddress(p.Token), Amount: amount}, nil
	case "increasedebt":
		var p struct {
			Amount string `json:"amount"`
		}
		if err := json.Unmarshal(raw.Params, &p); err != nil {
			return nil, err
		}
		amount, err := parseAmount(p.Amount)
		if err != nil {
			return nil, err
		}
		return credit.IncreaseDebt{Amount: amount}, nil
	case "decreasedebt":
		var p struct {
			Amount string `json:"amount"`
		}
		if err := json.Unmarshal(raw.Params, &p); err != nil {
			return nil, err
		}
		amount, err := parseAmount(p.Amount)
		if err != nil {
			return nil, err
		}
		return credit.DecreaseDebt{Amount: amount}, nil
	case "enabletoken":
		token, err := decodeAddressField(raw.Params, "token")
		if err != nil {
			return nil, err
		}
		return credit.EnableToken{Token: token}, nil
	case "disabletoken":
		token, err := decodeAddressField(raw.Params, "token")
		if err != nil {
			return nil, err
		}
		return credit.DisableToken{Token: token}, nil
	case "updatequota":
		var p struct {
			Token  string `json:"token"`
			Change string `json:"change"`
		}
		if err := json.Unmarshal(raw.Params, &p); err != nil {
			return nil, err
		}
		if !common.IsHexAddress(p.Token) {
			return nil, errors.New("invalid token address")
		}
		change, err := parseAmount(p.Change)
		if err != nil {
			return nil, err
		}
		return credit.UpdateQuota{Token: common.HexToAddress(p.Token), Change: change}, nil
	case "storeexpectedbalances":
		var p struct {
			Deltas []struct {
				Token  string `json:"token"`
				Amount string `json:"amount"`
			} `json:"deltas"`
		}
		if err := json.Unmarshal(raw.Params, &p); err != nil {
			return nil, err
		}
		deltas := make([]credit.BalanceDelta, 0, len(p.Deltas))
		for _, d := range p.Deltas {
			if !common.IsHexAddress(d.Token) {
				return nil, errors.New("invalid token address")
			}
			amount, err := parseAmount(d.Amount)
			if err != nil {
				return nil, err
			}
			deltas = append(deltas, credit.BalanceDelta{Token: common.HexToAddress(d.Token), Amount: amount})
		}
		return credit.StoreExpectedBalances{Deltas: deltas}, nil
	case "comparebalances":
		return credit.CompareBalances{}, nil
	case "setfullcheckparams":
		var p struct {
			CollateralHints    []uint `json:"collateralHints"`
			MinHealthFactorBps uint64 `json:"minHealthFactorBps"`
		}
		if err := json.Unmarshal(raw.Params, &p); err != nil {
			return nil, err
		}
		return credit.SetFullCheckParams{CollateralHints: p.CollateralHints, MinHealthFactorBps: p.MinHealthFactorBps}, nil
	case "revokeadapterallowances":
		var p struct {
			Revocations []struct {
				Spender string `json:"spender"`
				Token   string `json:"token"`
			} `json:"revocations"`
		}
		if err := json.Unmarshal(raw.Params, &p); err != nil {
			return nil, err
		}
		revs := make([]credit.Revocation, 0, len(p.Revocations))
		for _, r := range p.Revocations {
			if !common.IsHexAddress(r.Spender) || !common.IsHexAddress(r.Token) {
				return nil, errors.New("invalid revocation address")
			}
			revs = append(revs, credit.Revocation{
				Spender: common.HexToAddress(r.Spender),
				Token:   common.HexToAddress(r.Token),
			})
		}
		return credit.RevokeAdapterAllowances{Revocations: revs}, nil
	case "calladapter":
		var p struct {
			Target string `json:"target"`
			Input  string `json:"input"`
		}
		if err := json.Unmarshal(raw.Params, &p); err != nil {
			return nil, err
		}
		if !common.IsHexAddress(p.Target) {
			return nil, errors.New("invalid target address")
		}
		return credit.CallAdapter{
			Target: common.HexToAddress(p.Target),
			Input:  common.FromHex(p.Input),
		}, nil
	default:
		return nil, fmt.Errorf("unknown action type %q", raw.Type)
	}
}
