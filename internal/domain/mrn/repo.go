package mrn

import "context"

// Allocator hands out the next sequence for a category. Implementations
// must serialize concurrent allocations for the same category while leaving
// other categories unblocked, and must never reuse a sequence value.
// Counter state belongs to the allocator alone; nothing else writes it.
type Allocator interface {
	Allocate(ctx context.Context, category Category) (*Allocation, error)
	Counters(ctx context.Context) ([]Counter, error)
}

// RecordRepository persists clinic records keyed by allocated MR IDs.
type RecordRepository interface {
	Create(ctx context.Context, r *Record) error
	GetByMrID(ctx context.Context, mrID string) (*Record, error)
	GetByAppointment(ctx context.Context, appointmentID int64) (*Record, error)
	UpdateStatus(ctx context.Context, mrID, status string) error
	Statistics(ctx context.Context) ([]CategoryStats, error)
}

// TxRunner executes fn inside a single storage transaction. The context
// passed to fn carries the transaction so repositories compose into one
// atomic unit (counter increment + record insert). The transaction is
// rolled back on error or panic, committed otherwise.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}
