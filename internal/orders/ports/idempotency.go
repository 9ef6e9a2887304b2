package ports

import "context"

// StoredResponse contains the response data to replay for a reused key.
type StoredResponse struct {
	StatusCode int
	Body       []byte
	OrderID    int64
}

// IdempotencyStore lets order creation be retried safely by clients.
// Get returns nil, nil when the key is unknown or has expired.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (*StoredResponse, error)
	Save(ctx context.Context, key string, response StoredResponse) error
}

// IdempotencyPurger drops expired keys and reports how many were removed.
type IdempotencyPurger interface {
	Purge(ctx context.Context) (int64, error)
}
