package outbox

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"

	"gitea.xscloud.ru/xscloud/reporter/pkg/infrastructure/mysql"
)

type execCall struct {
	query string
	args  []interface{}
}

// fakeDB imitates the outbox tables: committed rows, rows of transactions in
// progress and the tracked event id.
type fakeDB struct {
	mu          sync.Mutex
	committed   []storedEvent
	uncommitted []storedEvent
	tracked     *uint64
	execs       []execCall
}

type fakeClient struct {
	db                 *fakeDB
	includeUncommitted bool
}

func (c *fakeClient) QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error) {
	return nil, nil
}

func (c *fakeClient) QueryRowContext(context.Context, string, ...interface{}) *sql.Row {
	return nil
}

func (c *fakeClient) ExecContext(_ context.Context, query string, args ...interface{}) (sql.Result, error) {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()

	c.db.execs = append(c.db.execs, execCall{query: strings.TrimSpace(query), args: args})
	if strings.Contains(query, "tracked_event") {
		id := args[1].(uint64)
		c.db.tracked = &id
	}
	return nil, nil
}

func (c *fakeClient) SelectContext(_ context.Context, dest interface{}, _ string, args ...interface{}) error {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()

	rows := append([]storedEvent(nil), c.db.committed...)
	if c.includeUncommitted {
		rows = append(rows, c.db.uncommitted...)
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].EventID < rows[j].EventID
	})

	lastTracked := args[0].(uint64)
	result := dest.(*[]storedEvent)
	for _, row := range rows {
		if row.EventID > lastTracked {
			*result = append(*result, row)
		}
	}
	return nil
}

func (c *fakeClient) GetContext(_ context.Context, dest interface{}, _ string, _ ...interface{}) error {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()

	switch d := dest.(type) {
	case *sql.NullInt32:
		*d = sql.NullInt32{Int32: 1, Valid: true}
	case *uint64:
		if c.db.tracked == nil {
			return sql.ErrNoRows
		}
		*d = *c.db.tracked
	}
	return nil
}

type fakeTx struct {
	*fakeClient
}

func (tx fakeTx) Commit() error {
	return nil
}

func (tx fakeTx) Rollback() error {
	return nil
}

type fakeConn struct {
	*fakeClient
}

func (conn fakeConn) BeginTransaction(_ context.Context, opts *sql.TxOptions) (mysql.Transaction, error) {
	uncommitted := opts != nil && opts.Isolation == sql.LevelReadUncommitted
	return fakeTx{fakeClient: &fakeClient{db: conn.db, includeUncommitted: uncommitted}}, nil
}

func (conn fakeConn) Close() error {
	return nil
}

type fakePool struct {
	db *fakeDB
}

func (p fakePool) TransactionalConnection(context.Context) (mysql.TransactionalConnection, error) {
	return fakeConn{fakeClient: &fakeClient{db: p.db}}, nil
}
