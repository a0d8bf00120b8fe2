package mysql

import (
	"context"
	"database/sql"
	"strings"
	"sync"
)

type fakeClient struct {
	mu       sync.Mutex
	queries  []string
	lockFree bool
}

func (c *fakeClient) QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error) {
	return nil, nil
}

func (c *fakeClient) QueryRowContext(context.Context, string, ...interface{}) *sql.Row {
	return nil
}

func (c *fakeClient) ExecContext(_ context.Context, query string, _ ...interface{}) (sql.Result, error) {
	c.record(query)
	return nil, nil
}

func (c *fakeClient) SelectContext(_ context.Context, _ interface{}, query string, _ ...interface{}) error {
	c.record(query)
	return nil
}

func (c *fakeClient) GetContext(_ context.Context, dest interface{}, query string, _ ...interface{}) error {
	c.record(query)
	result, ok := dest.(*sql.NullInt32)
	if !ok {
		return nil
	}
	switch {
	case strings.Contains(query, "GET_LOCK"):
		*result = sql.NullInt32{Int32: boolToInt32(c.lockFree), Valid: true}
	case strings.Contains(query, "RELEASE_LOCK"):
		*result = sql.NullInt32{Int32: 1, Valid: true}
	}
	return nil
}

func (c *fakeClient) record(query string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries = append(c.queries, strings.TrimSpace(query))
}

func (c *fakeClient) Queries() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.queries...)
}

func boolToInt32(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

type fakeTransaction struct {
	*fakeClient
	committed  int
	rolledBack int
}

func (tx *fakeTransaction) Commit() error {
	tx.committed++
	return nil
}

func (tx *fakeTransaction) Rollback() error {
	tx.rolledBack++
	return nil
}

type fakeConnection struct {
	*fakeClient
	transactions []*fakeTransaction
	closed       int
}

func (conn *fakeConnection) BeginTransaction(context.Context, *sql.TxOptions) (Transaction, error) {
	tx := &fakeTransaction{fakeClient: conn.fakeClient}
	conn.transactions = append(conn.transactions, tx)
	return tx, nil
}

func (conn *fakeConnection) Close() error {
	conn.closed++
	return nil
}

type fakePool struct {
	client      *fakeClient
	connections []*fakeConnection
}

func newFakePool() *fakePool {
	return &fakePool{client: &fakeClient{lockFree: true}}
}

func (p *fakePool) TransactionalConnection(context.Context) (TransactionalConnection, error) {
	conn := &fakeConnection{fakeClient: p.client}
	p.connections = append(p.connections, conn)
	return conn, nil
}
