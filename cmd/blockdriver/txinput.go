package main

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/loopnode/dex-rollup-state/executor"
	"github.com/loopnode/dex-rollup-state/internal/field"
)

// txEnvelope is the on-disk shape of one transaction in a --block file: a
// type tag selecting which concrete executor.TxInput to decode Payload
// into, in the same vocabulary as the reference implementation's txType
// strings.
type txEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type blockFile struct {
	BlockIndex   uint64       `json:"blockIndex"`
	Transactions []txEnvelope `json:"transactions"`
}

func decodeBlockFile(data []byte) (uint64, []executor.TxInput, error) {
	var bf blockFile
	if err := json.Unmarshal(data, &bf); err != nil {
		return 0, nil, fmt.Errorf("parse block file: %w", err)
	}

	txs := make([]executor.TxInput, 0, len(bf.Transactions))
	for i, env := range bf.Transactions {
		tx, err := decodeTxInput(env)
		if err != nil {
			return 0, nil, fmt.Errorf("tx %d: %w", i, err)
		}
		txs = append(txs, tx)
	}
	return bf.BlockIndex, txs, nil
}

func decodeTxInput(env txEnvelope) (executor.TxInput, error) {
	switch env.Type {
	case "Noop":
		return executor.Noop{}, nil
	case "Transfer":
		var t transferJSON
		if err := json.Unmarshal(env.Payload, &t); err != nil {
			return nil, err
		}
		return t.toExecutor()
	case "Withdraw":
		var t withdrawJSON
		if err := json.Unmarshal(env.Payload, &t); err != nil {
			return nil, err
		}
		return t.toExecutor()
	case "Deposit":
		var t depositJSON
		if err := json.Unmarshal(env.Payload, &t); err != nil {
			return nil, err
		}
		return t.toExecutor()
	case "AccountUpdate":
		var t accountUpdateJSON
		if err := json.Unmarshal(env.Payload, &t); err != nil {
			return nil, err
		}
		return t.toExecutor()
	case "AmmUpdate":
		var t ammUpdateJSON
		if err := json.Unmarshal(env.Payload, &t); err != nil {
			return nil, err
		}
		return t.toExecutor()
	case "SignatureVerification":
		var t signatureVerificationJSON
		if err := json.Unmarshal(env.Payload, &t); err != nil {
			return nil, err
		}
		return &executor.SignatureVerification{AccountID: t.AccountID}, nil
	case "SpotTrade":
		var t spotTradeJSON
		if err := json.Unmarshal(env.Payload, &t); err != nil {
			return nil, err
		}
		return t.toExecutor()
	default:
		return nil, fmt.Errorf("unknown tx type %q", env.Type)
	}
}

type transferJSON struct {
	FromAccountID uint64 `json:"fromAccountID"`
	ToAccountID   uint64 `json:"toAccountID"`
	To            string `json:"to"`
	TokenID       uint32 `json:"tokenID"`
	Amount        string `json:"amount"`
	FeeTokenID    uint32 `json:"feeTokenID"`
	Fee           string `json:"fee"`
	StorageID     string `json:"storageID"`
	Type          uint8  `json:"type"`
}

func (t transferJSON) toExecutor() (executor.TxInput, error) {
	amount, err := parseU256(t.Amount)
	if err != nil {
		return nil, fmt.Errorf("amount: %w", err)
	}
	fee, err := parseU256(t.Fee)
	if err != nil {
		return nil, fmt.Errorf("fee: %w", err)
	}
	storageID, err := parseU256(t.StorageID)
	if err != nil {
		return nil, fmt.Errorf("storageID: %w", err)
	}
	return &executor.Transfer{
		FromAccountID: t.FromAccountID,
		ToAccountID:   t.ToAccountID,
		To:            common.HexToAddress(t.To),
		TokenID:       t.TokenID,
		Amount:        amount,
		FeeTokenID:    t.FeeTokenID,
		Fee:           fee,
		StorageID:     storageID,
		Type:          t.Type,
	}, nil
}

type withdrawJSON struct {
	AccountID  uint64 `json:"accountID"`
	TokenID    uint32 `json:"tokenID"`
	Amount     string `json:"amount"`
	FeeTokenID uint32 `json:"feeTokenID"`
	Fee        string `json:"fee"`
	StorageID  string `json:"storageID"`
	Type       uint8  `json:"type"`
}

func (t withdrawJSON) toExecutor() (executor.TxInput, error) {
	amount, err := parseU256(t.Amount)
	if err != nil {
		return nil, fmt.Errorf("amount: %w", err)
	}
	fee, err := parseU256(t.Fee)
	if err != nil {
		return nil, fmt.Errorf("fee: %w", err)
	}
	storageID, err := parseU256(t.StorageID)
	if err != nil {
		return nil, fmt.Errorf("storageID: %w", err)
	}
	return &executor.Withdraw{
		AccountID: t.AccountID, TokenID: t.TokenID, Amount: amount,
		FeeTokenID: t.FeeTokenID, Fee: fee, StorageID: storageID, Type: t.Type,
	}, nil
}

type depositJSON struct {
	AccountID uint64 `json:"accountID"`
	Owner     string `json:"owner"`
	TokenID   uint32 `json:"tokenID"`
	Amount    string `json:"amount"`
}

func (t depositJSON) toExecutor() (executor.TxInput, error) {
	amount, err := parseU256(t.Amount)
	if err != nil {
		return nil, fmt.Errorf("amount: %w", err)
	}
	return &executor.Deposit{
		AccountID: t.AccountID, Owner: common.HexToAddress(t.Owner),
		TokenID: t.TokenID, Amount: amount,
	}, nil
}

type accountUpdateJSON struct {
	AccountID  uint64 `json:"accountID"`
	Owner      string `json:"owner"`
	PublicKeyX string `json:"publicKeyX"`
	PublicKeyY string `json:"publicKeyY"`
	FeeTokenID uint32 `json:"feeTokenID"`
	Fee        string `json:"fee"`
	Type       uint8  `json:"type"`
}

func (t accountUpdateJSON) toExecutor() (executor.TxInput, error) {
	fee, err := parseU256(t.Fee)
	if err != nil {
		return nil, fmt.Errorf("fee: %w", err)
	}
	pkX, err := field.FromDecimalString(t.PublicKeyX)
	if err != nil {
		return nil, fmt.Errorf("publicKeyX: %w", err)
	}
	pkY, err := field.FromDecimalString(t.PublicKeyY)
	if err != nil {
		return nil, fmt.Errorf("publicKeyY: %w", err)
	}
	return &executor.AccountUpdate{
		AccountID: t.AccountID, Owner: common.HexToAddress(t.Owner),
		PublicKeyX: pkX, PublicKeyY: pkY,
		FeeTokenID: t.FeeTokenID, Fee: fee, Type: t.Type,
	}, nil
}

type ammUpdateJSON struct {
	AccountID   uint64 `json:"accountID"`
	TokenID     uint32 `json:"tokenID"`
	FeeBips     uint8  `json:"feeBips"`
	TokenWeight string `json:"tokenWeight"`
}

func (t ammUpdateJSON) toExecutor() (executor.TxInput, error) {
	weight, err := parseU256(t.TokenWeight)
	if err != nil {
		return nil, fmt.Errorf("tokenWeight: %w", err)
	}
	return &executor.AmmUpdate{
		AccountID: t.AccountID, TokenID: t.TokenID, FeeBips: t.FeeBips, TokenWeight: weight,
	}, nil
}

type signatureVerificationJSON struct {
	AccountID uint64 `json:"accountID"`
}

type orderJSON struct {
	StorageID      string `json:"storageID"`
	AccountID      uint64 `json:"accountID"`
	TokenS         uint32 `json:"tokenS"`
	TokenB         uint32 `json:"tokenB"`
	AmountS        string `json:"amountS"`
	AmountB        string `json:"amountB"`
	ValidUntil     uint32 `json:"validUntil"`
	FillAmountBorS bool   `json:"fillAmountBorS"`
	FeeBips        uint16 `json:"feeBips"`
}

func (o orderJSON) toExecutor() (*executor.Order, error) {
	storageID, err := parseU256(o.StorageID)
	if err != nil {
		return nil, fmt.Errorf("storageID: %w", err)
	}
	amountS, err := parseU256(o.AmountS)
	if err != nil {
		return nil, fmt.Errorf("amountS: %w", err)
	}
	amountB, err := parseU256(o.AmountB)
	if err != nil {
		return nil, fmt.Errorf("amountB: %w", err)
	}
	return &executor.Order{
		StorageID: storageID, AccountID: o.AccountID,
		TokenS: o.TokenS, TokenB: o.TokenB,
		AmountS: amountS, AmountB: amountB,
		ValidUntil: o.ValidUntil, FillAmountBorS: o.FillAmountBorS, FeeBips: o.FeeBips,
	}, nil
}

type spotTradeJSON struct {
	OrderA orderJSON `json:"orderA"`
	OrderB orderJSON `json:"orderB"`
}

func (t spotTradeJSON) toExecutor() (executor.TxInput, error) {
	a, err := t.OrderA.toExecutor()
	if err != nil {
		return nil, fmt.Errorf("orderA: %w", err)
	}
	b, err := t.OrderB.toExecutor()
	if err != nil {
		return nil, fmt.Errorf("orderB: %w", err)
	}
	return &executor.SpotTrade{OrderA: a, OrderB: b}, nil
}

func parseU256(s string) (*uint256.Int, error) {
	if s == "" {
		return new(uint256.Int), nil
	}
	i, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	v, overflow := uint256.FromBig(i)
	if overflow {
		return nil, fmt.Errorf("integer %q overflows uint256", s)
	}
	return v, nil
}
