// Package pgstub is a database/sql driver standing in for Postgres in
// snapshot store tests. It keeps one name-keyed table and recognises only
// the statements the store issues: CREATE TABLE, the upsert, the delete by
// name, and the full select.
package pgstub

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"skylink/pkg/errors"
)

var seq atomic.Int64

// Conn is the single connection every stub database hands out. Tests seed
// Rows directly and flip the Fail switches to drive error paths.
type Conn struct {
	// Statements lists every Exec in order.
	Statements []string
	// Rows maps snapshot name to JSON payload.
	Rows map[string][]byte

	FailPing   bool
	FailBegin  bool
	FailCommit bool
	FailWrites bool
	FailReads  bool
}

// Open registers a fresh driver and returns a database backed by it.
func Open() (*sql.DB, *Conn) {
	conn := &Conn{Rows: make(map[string][]byte)}
	name := "pgstub" + strconv.FormatInt(seq.Add(1), 10)
	sql.Register(name, connector{conn})
	db, err := sql.Open(name, "")
	if err != nil {
		panic(err)
	}
	return db, conn
}

type connector struct{ conn *Conn }

func (c connector) Open(string) (driver.Conn, error) { return c.conn, nil }

func verb(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}

// Prepare implements driver.Conn. Statements run through ExecContext and
// QueryContext instead.
func (c *Conn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("pgstub: prepared statements unsupported")
}

// Close implements driver.Conn.
func (c *Conn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *Conn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// BeginTx implements driver.ConnBeginTx.
func (c *Conn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	if c.FailBegin {
		return nil, errors.New("pgstub: begin refused")
	}
	return tx{c}, nil
}

// Ping implements driver.Pinger.
func (c *Conn) Ping(context.Context) error {
	if c.FailPing {
		return errors.New("pgstub: server unreachable")
	}
	return nil
}

// ExecContext implements driver.ExecerContext.
func (c *Conn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.Statements = append(c.Statements, query)
	switch verb(query) {
	case "CREATE":
		return driver.RowsAffected(0), nil
	case "INSERT":
		if c.FailWrites {
			return nil, errors.New("pgstub: write refused")
		}
		if len(args) != 2 {
			return nil, errors.Newf("pgstub: upsert wants 2 args, got %d", len(args))
		}
		name, _ := args[0].Value.(string)
		payload, _ := args[1].Value.([]byte)
		c.Rows[name] = append([]byte(nil), payload...)
		return driver.RowsAffected(1), nil
	case "DELETE":
		if c.FailWrites {
			return nil, errors.New("pgstub: write refused")
		}
		if len(args) != 1 {
			return nil, errors.Newf("pgstub: delete wants 1 arg, got %d", len(args))
		}
		name, _ := args[0].Value.(string)
		if _, ok := c.Rows[name]; !ok {
			return driver.RowsAffected(0), nil
		}
		delete(c.Rows, name)
		return driver.RowsAffected(1), nil
	default:
		return nil, errors.Newf("pgstub: unsupported statement %q", query)
	}
}

// QueryContext implements driver.QueryerContext.
func (c *Conn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	if verb(query) != "SELECT" {
		return nil, errors.Newf("pgstub: unsupported query %q", query)
	}
	if c.FailReads {
		return nil, errors.New("pgstub: read refused")
	}
	names := make([]string, 0, len(c.Rows))
	for name := range c.Rows {
		names = append(names, name)
	}
	sort.Strings(names)
	r := &rows{}
	for _, name := range names {
		r.data = append(r.data, [2]driver.Value{name, c.Rows[name]})
	}
	return r, nil
}

type tx struct{ c *Conn }

func (t tx) Commit() error {
	if t.c.FailCommit {
		return errors.New("pgstub: commit refused")
	}
	return nil
}

func (t tx) Rollback() error { return nil }

type rows struct {
	data [][2]driver.Value
	next int
}

func (r *rows) Columns() []string { return []string{"name", "payload"} }

func (r *rows) Close() error { return nil }

func (r *rows) Next(dest []driver.Value) error {
	if r.next >= len(r.data) {
		return io.EOF
	}
	dest[0], dest[1] = r.data[r.next][0], r.data[r.next][1]
	r.next++
	return nil
}
