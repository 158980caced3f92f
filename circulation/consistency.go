package circulation

import "context"

// ConsistencyLevel defines which database a read may be served from.
type ConsistencyLevel int

const (
	// StrongConsistency reads from the primary database. This is the default and the only
	// level used by state transitions (borrow, return, add copies), which always run on the primary.
	StrongConsistency ConsistencyLevel = iota

	// EventualConsistency allows list queries to be served by a replica and to see slightly stale data.
	EventualConsistency
)

type contextKey string

// ConsistencyLevelKey is the context key used to store consistency level preferences.
const ConsistencyLevelKey contextKey = "circulation.consistency_level"

// WithStrongConsistency returns a context that routes list queries to the primary.
func WithStrongConsistency(ctx context.Context) context.Context {
	return context.WithValue(ctx, ConsistencyLevelKey, StrongConsistency)
}

// WithEventualConsistency returns a context that allows list queries to be served by a replica.
//
// Example usage:
//
//	ctx = circulation.WithEventualConsistency(ctx)
//	overdue, err := engine.ListOverdueLoans(ctx)
func WithEventualConsistency(ctx context.Context) context.Context {
	return context.WithValue(ctx, ConsistencyLevelKey, EventualConsistency)
}

// GetConsistencyLevel extracts the consistency level from the context, defaulting to StrongConsistency.
func GetConsistencyLevel(ctx context.Context) ConsistencyLevel {
	if level, ok := ctx.Value(ConsistencyLevelKey).(ConsistencyLevel); ok {
		return level
	}

	return StrongConsistency
}

// String provides a string representation of ConsistencyLevel for logging and debugging.
func (c ConsistencyLevel) String() string {
	switch c {
	case StrongConsistency:
		return "strong"
	case EventualConsistency:
		return "eventual"
	default:
		return "unknown"
	}
}
