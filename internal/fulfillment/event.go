package fulfillment

// Event is the provider's asynchronous payment confirmation. Delivery is
// at-least-once and possibly duplicated; the metadata is the session metadata
// attached at build time, echoed back verbatim.
type Event struct {
	ProviderRef    string        `json:"providerReference" binding:"required"`
	AmountCaptured int64         `json:"amountCaptured"`
	Currency       string        `json:"currency"`
	Metadata       EventMetadata `json:"metadata"`
}

type EventMetadata struct {
	UserID       string `json:"userId"`
	CartSnapshot string `json:"cartSnapshot"`
}
