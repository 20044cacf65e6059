// Package classify turns raw inbound stream payloads into a closed set of
// typed events. Everything downstream of this boundary operates on the typed
// set, never on raw payloads.
package classify

import (
	"encoding/json"
	"errors"
	"fmt"

	"pumpportal-archiver/internal/domain"
)

// Classification errors. Rejections are counted and dropped upstream, never
// fatal.
var (
	// ErrUnknownType is returned when the type discriminator is missing or
	// not one of create, buy, sell.
	ErrUnknownType = errors.New("unknown-type")

	// ErrInvalidField is returned when a required field is missing,
	// malformed, or a numeric field is negative.
	ErrInvalidField = errors.New("invalid-field")
)

// Event is the classified form of one inbound message. Token is non-nil only
// for creation events; Tx is always set. A creation event yields both a token
// row and an implicit creation-kind transaction row.
type Event struct {
	Token *domain.Token
	Tx    *domain.Transaction
}

// IsCreation reports whether the event marks a token's first appearance.
func (e *Event) IsCreation() bool {
	return e.Token != nil
}

// wireMessage mirrors the pumpportal payload shape. Numeric fields default
// to zero when absent, matching the feed's sparse encoding.
type wireMessage struct {
	TxType                string  `json:"txType"`
	Mint                  string  `json:"mint"`
	Signature             *string `json:"signature"`
	TraderPublicKey       *string `json:"traderPublicKey"`
	Name                  *string `json:"name"`
	Symbol                *string `json:"symbol"`
	URI                   *string `json:"uri"`
	InitialBuy            float64 `json:"initialBuy"`
	TokenAmount           float64 `json:"tokenAmount"`
	SolAmount             float64 `json:"solAmount"`
	NewTokenBalance       float64 `json:"newTokenBalance"`
	BondingCurveKey       *string `json:"bondingCurveKey"`
	VTokensInBondingCurve float64 `json:"vTokensInBondingCurve"`
	VSolInBondingCurve    float64 `json:"vSolInBondingCurve"`
	MarketCapSol          float64 `json:"marketCapSol"`
}

// Classify parses one raw frame and returns a typed event, or an error
// wrapping ErrUnknownType or ErrInvalidField. receivedAt is the Unix receive
// timestamp in seconds; the feed carries no event time of its own.
func Classify(raw []byte, receivedAt int64) (*Event, error) {
	var msg wireMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		// No parseable discriminator at all.
		return nil, fmt.Errorf("%w: %v", ErrUnknownType, err)
	}

	switch msg.TxType {
	case domain.TxTypeCreate, domain.TxTypeBuy, domain.TxTypeSell:
	default:
		return nil, fmt.Errorf("%w: txType %q", ErrUnknownType, msg.TxType)
	}

	if !ValidMint(msg.Mint) {
		return nil, fmt.Errorf("%w: mint %q", ErrInvalidField, msg.Mint)
	}

	for name, v := range map[string]float64{
		"initialBuy":   msg.InitialBuy,
		"tokenAmount":  msg.TokenAmount,
		"solAmount":    msg.SolAmount,
		"marketCapSol": msg.MarketCapSol,
	} {
		if v < 0 {
			return nil, fmt.Errorf("%w: negative %s", ErrInvalidField, name)
		}
	}

	ev := &Event{
		Tx: &domain.Transaction{
			Mint:                  msg.Mint,
			Timestamp:             receivedAt,
			TraderPublicKey:       msg.TraderPublicKey,
			Signature:             msg.Signature,
			TxType:                msg.TxType,
			TokenAmount:           msg.TokenAmount,
			SolAmount:             msg.SolAmount,
			NewTokenBalance:       msg.NewTokenBalance,
			BondingCurveKey:       msg.BondingCurveKey,
			VTokensInBondingCurve: msg.VTokensInBondingCurve,
			VSolInBondingCurve:    msg.VSolInBondingCurve,
			MarketCapSol:          msg.MarketCapSol,
		},
	}

	if msg.TxType == domain.TxTypeCreate {
		ev.Token = &domain.Token{
			Mint:                msg.Mint,
			Timestamp:           receivedAt,
			InitialSolLiquidity: msg.InitialBuy,
			Name:                msg.Name,
			Symbol:              msg.Symbol,
			URI:                 msg.URI,
		}
	}

	return ev, nil
}
