package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
)

type pingConn struct{ failPing bool }

func (c *pingConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("not implemented") }
func (c *pingConn) Close() error                        { return nil }
func (c *pingConn) Begin() (driver.Tx, error)           { return nil, errors.New("not implemented") }
func (c *pingConn) Ping(context.Context) error {
	if c.failPing {
		return errors.New("ping fail")
	}
	return nil
}

type pingDriver struct{ conn *pingConn }

func (d pingDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

var stubSeq atomic.Int64

func newPingDB(t *testing.T, failPing bool) *sql.DB {
	t.Helper()
	name := fmt.Sprintf("stubpg-%d", stubSeq.Add(1))
	sql.Register(name, pingDriver{conn: &pingConn{failPing: failPing}})
	db, err := sql.Open(name, "stub")
	if err != nil {
		t.Fatalf("open stub: %v", err)
	}
	return db
}

func TestOpenUsesDefaultDSNAndPings(t *testing.T) {
	var gotDriver, gotDSN string
	restore := OverrideSQLOpen(func(driverName, dsn string) (*sql.DB, error) {
		gotDriver, gotDSN = driverName, dsn
		return newPingDB(t, false), nil
	})
	defer restore()

	db, err := Open(context.Background(), "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if gotDriver != DriverName {
		t.Fatalf("expected driver %s, got %s", DriverName, gotDriver)
	}
	if gotDSN != defaultDSN {
		t.Fatalf("expected default dsn, got %s", gotDSN)
	}
}

func TestOpenPropagatesPingFailure(t *testing.T) {
	restore := OverrideSQLOpen(func(string, string) (*sql.DB, error) {
		return newPingDB(t, true), nil
	})
	defer restore()

	if _, err := Open(context.Background(), "postgres://example"); err == nil {
		t.Fatalf("expected ping failure")
	}
}

func TestOpenPropagatesOpenFailure(t *testing.T) {
	restore := OverrideSQLOpen(func(string, string) (*sql.DB, error) {
		return nil, errors.New("boom")
	})
	defer restore()

	if _, err := Open(context.Background(), "postgres://example"); err == nil {
		t.Fatalf("expected open failure")
	}
}
