package warehouse

import (
	"context"

	"github.com/jackc/pgx/v5/pgconn"
)

// MockExecer is a test double for Execer that records statements.
type MockExecer struct {
	Tag  string // command tag returned on success, e.g. "DELETE 3"
	Err  error
	Stmt []string
}

func (m *MockExecer) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	m.Stmt = append(m.Stmt, sql)
	if m.Err != nil {
		return pgconn.CommandTag{}, m.Err
	}
	return pgconn.NewCommandTag(m.Tag), nil
}
