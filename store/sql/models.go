package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

// kvRecord backs the durable key-value partition shared by session state,
// onboarding entries, and rate-limit windows. Values are opaque blobs; the
// owning partition defines the payload format.
type kvRecord struct {
	bun.BaseModel `bun:"table:appstate_kv,alias:kv"`

	ID        string    `bun:"id,pk"`
	Key       string    `bun:"key,notnull,unique"`
	Value     []byte    `bun:"value,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
