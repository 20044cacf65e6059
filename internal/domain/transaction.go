package domain

// Transaction kinds as they appear on the wire.
const (
	TxTypeCreate = "create"
	TxTypeBuy    = "buy"
	TxTypeSell   = "sell"
)

// Transaction represents one trade or creation event tied to a token.
// The table is append-only; the upstream feed offers no idempotency key,
// so duplicates are permitted and left to consumers to resolve.
type Transaction struct {
	Mint                  string  // token mint address
	Timestamp             int64   // Unix timestamp at receive time, seconds
	TraderPublicKey       *string // trader wallet (nullable)
	Signature             *string // transaction signature (nullable)
	TxType                string  // create, buy, or sell
	TokenAmount           float64
	SolAmount             float64
	NewTokenBalance       float64
	BondingCurveKey       *string // bonding curve PDA (nullable)
	VTokensInBondingCurve float64 // virtual token reserves at event time
	VSolInBondingCurve    float64 // virtual SOL reserves at event time
	MarketCapSol          float64 // market cap snapshot in SOL
}
