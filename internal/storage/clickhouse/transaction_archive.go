package clickhouse

import (
	"context"
	"fmt"

	"pumpportal-archiver/internal/domain"
	"pumpportal-archiver/internal/storage"
)

// TransactionArchive implements storage.TransactionArchive using ClickHouse.
// It mirrors flushed transaction rows into an analytics table; MergeTree does
// not enforce uniqueness, which matches the append-only contract.
type TransactionArchive struct {
	conn *Conn
}

// NewTransactionArchive creates a new TransactionArchive.
func NewTransactionArchive(conn *Conn) *TransactionArchive {
	return &TransactionArchive{conn: conn}
}

// Compile-time interface check.
var _ storage.TransactionArchive = (*TransactionArchive)(nil)

// AppendTransactions appends transaction rows via a native batch insert.
func (a *TransactionArchive) AppendTransactions(ctx context.Context, txs []*domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	batch, err := a.conn.PrepareBatch(ctx, `
		INSERT INTO raw_transactions (
			mint, timestamp, trader_public_key, signature, tx_type,
			token_amount, sol_amount, new_token_balance, bonding_curve_key,
			v_tokens_in_bonding_curve, v_sol_in_bonding_curve, market_cap_sol
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range txs {
		err = batch.Append(
			r.Mint, uint64(r.Timestamp), r.TraderPublicKey, r.Signature, r.TxType,
			r.TokenAmount, r.SolAmount, r.NewTokenBalance, r.BondingCurveKey,
			r.VTokensInBondingCurve, r.VSolInBondingCurve, r.MarketCapSol,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}
