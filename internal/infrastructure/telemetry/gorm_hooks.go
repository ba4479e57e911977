package telemetry

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
)

type stmtKey struct{}

// WithQueryStartTime stamps ctx with the start of a statement.
func WithQueryStartTime(ctx context.Context) context.Context {
	return context.WithValue(ctx, stmtKey{}, time.Now())
}

// queryElapsed is the time since WithQueryStartTime, false if ctx was never
// stamped.
func queryElapsed(ctx context.Context) (time.Duration, bool) {
	start, ok := ctx.Value(stmtKey{}).(time.Time)
	if !ok {
		return 0, false
	}
	return time.Since(start), true
}

func stampStart(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		ctx = context.Background()
	}
	db.Statement.Context = WithQueryStartTime(ctx)
}

// hookStatements registers stampStart before, and after(op) after, each kind
// of gorm statement. The after hooks are ordered ahead of otelgorm's so the
// statement span is still open when they run. An empty op means the
// statement kind is only known from its SQL.
func hookStatements(db *gorm.DB, prefix string, after func(op string) func(*gorm.DB)) error {
	cb := db.Callback()
	type register = func(string, func(*gorm.DB)) error
	hooks := []struct {
		kind, op      string
		before, after register
	}{
		{"create", "INSERT", cb.Create().Before("gorm:create").Register,
			cb.Create().After("gorm:create").Before("otel:after:create").Register},
		{"query", "SELECT", cb.Query().Before("gorm:query").Register,
			cb.Query().After("gorm:query").Before("otel:after:query").Register},
		{"update", "UPDATE", cb.Update().Before("gorm:update").Register,
			cb.Update().After("gorm:update").Before("otel:after:update").Register},
		{"delete", "DELETE", cb.Delete().Before("gorm:delete").Register,
			cb.Delete().After("gorm:delete").Before("otel:after:delete").Register},
		{"row", "", cb.Row().Before("gorm:row").Register,
			cb.Row().After("gorm:row").Before("otel:after:row").Register},
		{"raw", "", cb.Raw().Before("gorm:raw").Register,
			cb.Raw().After("gorm:raw").Before("otel:after:raw").Register},
	}
	for _, h := range hooks {
		if err := h.before(prefix+":before_"+h.kind, stampStart); err != nil {
			return err
		}
		if err := h.after(prefix+":after_"+h.kind, after(h.op)); err != nil {
			return err
		}
	}
	return nil
}

// detectOperationType classifies raw SQL by its leading keyword.
func detectOperationType(sql string) string {
	head, _, _ := strings.Cut(strings.TrimSpace(sql), " ")
	switch op := strings.ToUpper(head); op {
	case "SELECT", "INSERT", "UPDATE", "DELETE":
		return op
	}
	return "OTHER"
}
