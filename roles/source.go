package roles

import "context"

// Source is the data-store role lookup.
type Source interface {
	Roles(ctx context.Context, userID string) ([]string, error)
}

// SourceFunc adapts a function into a Source.
type SourceFunc func(ctx context.Context, userID string) ([]string, error)

func (f SourceFunc) Roles(ctx context.Context, userID string) ([]string, error) {
	return f(ctx, userID)
}

// Refresher renews the identity session used by the role store.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// RefresherFunc adapts a function into a Refresher.
type RefresherFunc func(ctx context.Context) error

func (f RefresherFunc) Refresh(ctx context.Context) error {
	return f(ctx)
}
