package cart

import "time"

const (
	EventCartUpdated       = "CartUpdated"
	EventCartCleared       = "CartCleared"
	EventCheckoutCompleted = "CheckoutCompleted"
)

// CartUpdated is published after a snapshot write.
type CartUpdated struct {
	Profile   string    `json:"profile"`
	CartID    string    `json:"cart_id"`
	Version   int64     `json:"version"`
	Origin    string    `json:"origin"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CartCleared is published when a snapshot is removed outside a cart operation.
type CartCleared struct {
	Profile   string    `json:"profile"`
	Origin    string    `json:"origin"`
	ClearedAt time.Time `json:"cleared_at"`
}

type CheckoutCompleted struct {
	Profile        string    `json:"profile"`
	CartID         string    `json:"cart_id"`
	TransactionRef string    `json:"transaction_ref"`
	Email          string    `json:"email,omitempty"`
	Total          Money     `json:"total"`
	Lines          []Line    `json:"lines"`
	CompletedAt    time.Time `json:"completed_at"`
}
