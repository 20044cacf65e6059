package stream

// Outbound control methods understood by the upstream feed.
const (
	methodSubscribeNewToken   = "subscribeNewToken"
	methodSubscribeTokenTrade = "subscribeTokenTrade"
)

// subscribeRequest is the outbound control message shape. The global
// creation feed takes no keys; per-mint trade subscriptions list mints.
type subscribeRequest struct {
	Method string   `json:"method"`
	Keys   []string `json:"keys,omitempty"`
}
