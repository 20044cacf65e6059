package postgres

import (
	"context"
	"fmt"

	"pumpportal-archiver/internal/domain"
	"pumpportal-archiver/internal/storage"
)

// Gateway implements storage.Gateway using PostgreSQL.
type Gateway struct {
	pool *Pool
}

// NewGateway creates a new Gateway.
func NewGateway(pool *Pool) *Gateway {
	return &Gateway{pool: pool}
}

// Compile-time interface check.
var _ storage.Gateway = (*Gateway)(nil)

const insertTokenQuery = `
	INSERT INTO tokens (
		mint, timestamp, initial_sol_liquidity, name, symbol, uri
	) VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (mint) DO NOTHING
`

const insertTransactionQuery = `
	INSERT INTO raw_transactions (
		mint, timestamp, trader_public_key, signature, tx_type,
		token_amount, sol_amount, new_token_balance, bonding_curve_key,
		v_tokens_in_bonding_curve, v_sol_in_bonding_curve, market_cap_sol
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
`

// FlushBatch writes both buffers inside one transaction, all-or-nothing.
// Token rows are insert-if-absent (first creation event wins per mint);
// transaction rows are pure appends.
func (g *Gateway) FlushBatch(ctx context.Context, tokens []*domain.Token, txs []*domain.Transaction) error {
	if len(tokens) == 0 && len(txs) == 0 {
		return nil
	}

	tx, err := g.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, t := range tokens {
		_, err := tx.Exec(ctx, insertTokenQuery,
			t.Mint,
			t.Timestamp,
			t.InitialSolLiquidity,
			t.Name,
			t.Symbol,
			t.URI,
		)
		if err != nil {
			return fmt.Errorf("insert token %s: %w", t.Mint, err)
		}
	}

	for _, r := range txs {
		_, err := tx.Exec(ctx, insertTransactionQuery,
			r.Mint,
			r.Timestamp,
			r.TraderPublicKey,
			r.Signature,
			r.TxType,
			r.TokenAmount,
			r.SolAmount,
			r.NewTokenBalance,
			r.BondingCurveKey,
			r.VTokensInBondingCurve,
			r.VSolInBondingCurve,
			r.MarketCapSol,
		)
		if err != nil {
			return fmt.Errorf("insert transaction for %s: %w", r.Mint, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// LoadMints returns all mint values from the tokens table.
func (g *Gateway) LoadMints(ctx context.Context) ([]string, error) {
	rows, err := g.pool.Query(ctx, `SELECT mint FROM tokens`)
	if err != nil {
		return nil, fmt.Errorf("query mints: %w", err)
	}
	defer rows.Close()

	var mints []string
	for rows.Next() {
		var mint string
		if err := rows.Scan(&mint); err != nil {
			return nil, fmt.Errorf("scan mint: %w", err)
		}
		mints = append(mints, mint)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mints: %w", err)
	}
	return mints, nil
}

// StorageSize returns the combined on-disk size of both tables in bytes.
func (g *Gateway) StorageSize(ctx context.Context) (int64, error) {
	var size int64
	err := g.pool.QueryRow(ctx, `
		SELECT pg_total_relation_size('tokens') + pg_total_relation_size('raw_transactions')
	`).Scan(&size)
	if err != nil {
		return 0, fmt.Errorf("query storage size: %w", err)
	}
	return size, nil
}
