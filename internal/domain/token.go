package domain

// Token represents a launched asset, recorded once on its first observed
// creation event. Rows are immutable after insert.
type Token struct {
	Mint                string  // mint address (primary key)
	Timestamp           int64   // Unix timestamp of first observation, seconds
	InitialSolLiquidity float64 // SOL amount observed at creation (initialBuy)
	Name                *string // display name (nullable)
	Symbol              *string // ticker symbol (nullable)
	URI                 *string // metadata URI (nullable)
}
