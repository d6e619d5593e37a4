package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"

	"github.com/andybasham/aiagent/pkg/config"
	"github.com/andybasham/aiagent/pkg/endpoint"
)

// tunnelNet is the driver network name registered for SSH-forwarded
// connections.
const tunnelNet = "ssh+tcp"

// Querier is the statement surface the executor and the seed engine run
// against. db selects the default schema for the statement; an empty db
// leaves the connection on whatever the script chooses itself.
type Querier interface {
	Exec(ctx context.Context, db, stmt string) error
	Count(ctx context.Context, db, query string) (int, error)
}

// Client is a single administrative MySQL connection, optionally tunneled
// through the destination's SSH session. It is held by the SQL executor
// alone and never shared with file workers.
type Client struct {
	db      *sql.DB
	conn    *sql.Conn
	current string // schema bound by the last USE, "" when unknown
	logger  zerolog.Logger
}

// Connect opens the administrative connection. When tun is non-nil the TCP
// stream rides the SSH session to reach the server's loopback.
func Connect(ctx context.Context, cfg *config.DatabaseConfig, tun endpoint.Tunneler, logger zerolog.Logger) (*Client, error) {
	mysqlCfg := mysql.NewConfig()
	mysqlCfg.User = cfg.AdminUsername
	mysqlCfg.Passwd = cfg.AdminPassword
	mysqlCfg.Addr = net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))
	mysqlCfg.Net = "tcp"
	mysqlCfg.Timeout = 30 * time.Second
	mysqlCfg.AllowNativePasswords = true

	if tun != nil {
		mysqlCfg.Net = tunnelNet
		mysql.RegisterDialContext(tunnelNet, func(ctx context.Context, addr string) (net.Conn, error) {
			return tun.DialContext(ctx, "tcp", addr)
		})
	}

	db, err := sql.Open("mysql", mysqlCfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database handle: %w", err)
	}
	db.SetMaxOpenConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", mysqlCfg.Addr, err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", mysqlCfg.Addr, err)
	}

	logger.Debug().Str("addr", mysqlCfg.Addr).Bool("tunneled", tun != nil).Msg("Database connected")
	return &Client{db: db, conn: conn, logger: logger}, nil
}

func (c *Client) use(ctx context.Context, db string) error {
	if db == "" {
		// The script manages its own USE statements; our notion of the
		// bound schema is stale from here on.
		c.current = ""
		return nil
	}
	if db == c.current {
		return nil
	}
	if _, err := c.conn.ExecContext(ctx, fmt.Sprintf("USE `%s`", db)); err != nil {
		return err
	}
	c.current = db
	return nil
}

// Exec runs one statement against the given schema.
func (c *Client) Exec(ctx context.Context, db, stmt string) error {
	if err := c.use(ctx, db); err != nil {
		return err
	}
	_, err := c.conn.ExecContext(ctx, stmt)
	return err
}

// Count runs a query expected to return a single integer column, used by
// seed existence checks.
func (c *Client) Count(ctx context.Context, db, query string) (int, error) {
	if err := c.use(ctx, db); err != nil {
		return 0, err
	}
	var n int
	if err := c.conn.QueryRowContext(ctx, query).Scan(&n); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, err
	}
	return n, nil
}

// Close releases the connection and the handle.
func (c *Client) Close() error {
	if err := c.conn.Close(); err != nil {
		c.db.Close()
		return err
	}
	return c.db.Close()
}
