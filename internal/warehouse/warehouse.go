// Package warehouse loads job output into Amazon Redshift over the
// PostgreSQL wire protocol.
package warehouse

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Execer runs a statement that returns no rows.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Settings describes a warehouse connection.
type Settings struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
}

// ConnString returns a postgres:// URL for s.
func (s Settings) ConnString() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(s.User, s.Password),
		Host:   net.JoinHostPort(s.Host, strconv.Itoa(s.Port)),
		Path:   "/" + s.Database,
	}
	if s.SSLMode != "" {
		u.RawQuery = "sslmode=" + url.QueryEscape(s.SSLMode)
	}
	return u.String()
}

// Credentials authorize the warehouse to read from object storage. A role
// takes precedence over keys.
type Credentials struct {
	AccessKey    string
	SecretKey    string
	SessionToken string
	IAMRole      string
}

func (c Credentials) clause() (string, error) {
	if c.IAMRole != "" {
		return "IAM_ROLE " + quoteLiteral(c.IAMRole), nil
	}
	if c.AccessKey == "" || c.SecretKey == "" {
		return "", fmt.Errorf("no storage credentials for COPY")
	}
	v := "aws_access_key_id=" + c.AccessKey + ";aws_secret_access_key=" + c.SecretKey
	if c.SessionToken != "" {
		v += ";token=" + c.SessionToken
	}
	return "CREDENTIALS " + quoteLiteral(v), nil
}

// Redshift runs the table maintenance and load statements of the pipeline.
type Redshift struct {
	db     Execer
	table  string
	logger *slog.Logger
	pool   *pgxpool.Pool
}

// New wraps an existing connection.
func New(db Execer, table string, logger *slog.Logger) *Redshift {
	if logger == nil {
		logger = slog.Default()
	}
	return &Redshift{db: db, table: table, logger: logger}
}

// Connect opens a connection pool. Redshift does not support the extended
// protocol's statement caching, so statements are sent as simple queries.
func Connect(ctx context.Context, s Settings, table string, logger *slog.Logger) (*Redshift, error) {
	cfg, err := pgxpool.ParseConfig(s.ConnString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}
	cfg.MaxConns = 1
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to Redshift: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging Redshift at %s: %w", s.Host, err)
	}
	r := New(pool, table, logger)
	r.pool = pool
	return r, nil
}

// Close releases the connection pool, if any.
func (r *Redshift) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}

func (r *Redshift) ident() string {
	return pgx.Identifier(strings.Split(r.table, ".")).Sanitize()
}

// CreateTable creates the load table.
func (r *Redshift) CreateTable(ctx context.Context) error {
	sql := fmt.Sprintf(`CREATE TABLE %s (
  request_date    VARCHAR(10) NOT NULL,
  destination     VARCHAR(1000) NOT NULL,
  days_advance    INTEGER NOT NULL,
  hotels_returned INTEGER NOT NULL
)`, r.ident())
	if _, err := r.db.Exec(ctx, sql); err != nil {
		return fmt.Errorf("creating table %s: %w", r.table, err)
	}
	r.logger.Info("table created", "table", r.table)
	return nil
}

// CopyFromStorage bulk-loads pipe-delimited files whose keys start with
// source, tolerating up to maxError rejected rows.
func (r *Redshift) CopyFromStorage(ctx context.Context, source string, creds Credentials, maxError int) (int64, error) {
	auth, err := creds.clause()
	if err != nil {
		return 0, err
	}
	sql := fmt.Sprintf("COPY %s FROM %s %s DELIMITER '|' MAXERROR %d",
		r.ident(), quoteLiteral(source), auth, maxError)

	r.logger.Info("copying output into warehouse", "table", r.table, "source", source, "max_error", maxError)
	tag, err := r.db.Exec(ctx, sql)
	if err != nil {
		return 0, fmt.Errorf("copying %s into %s: %w", source, r.table, err)
	}
	return tag.RowsAffected(), nil
}

// DeleteRows removes every row of the table.
func (r *Redshift) DeleteRows(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, "DELETE FROM "+r.ident())
	if err != nil {
		return 0, fmt.Errorf("deleting rows of %s: %w", r.table, err)
	}
	return tag.RowsAffected(), nil
}

// DropTable removes the table.
func (r *Redshift) DropTable(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, "DROP TABLE "+r.ident()); err != nil {
		return fmt.Errorf("dropping table %s: %w", r.table, err)
	}
	return nil
}

// Vacuum reclaims space and re-sorts the database.
func (r *Redshift) Vacuum(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	return nil
}

// Analyze refreshes planner statistics.
func (r *Redshift) Analyze(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, "ANALYZE"); err != nil {
		return fmt.Errorf("analyze: %w", err)
	}
	return nil
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
