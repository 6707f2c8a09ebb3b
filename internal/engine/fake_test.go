package engine

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"db-sync/internal/database"
	"db-sync/internal/dialect"
	"db-sync/internal/retry"
	"db-sync/internal/schema"
)

// fakeTable is an in-memory relation. Rows are aligned to cols.
type fakeTable struct {
	cols  []string
	types []string
	pk    string
	rows  [][]any
}

func (t *fakeTable) index(col string) int {
	for i, c := range t.cols {
		if strings.EqualFold(c, col) {
			return i
		}
	}
	return -1
}

func (t *fakeTable) keys() []int64 {
	idx := t.index(t.pk)
	out := make([]int64, 0, len(t.rows))
	for _, r := range t.rows {
		out = append(out, r[idx].(int64))
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// fakeDB understands exactly the SQL the engine generates for the mysql
// and postgres dialects against simple templates.
type fakeDB struct {
	name   string
	d      dialect.Dialect
	policy retry.Policy

	mu      sync.Mutex
	tables  map[string]*fakeTable
	pkErr   error
	pingErr error
	// failFetch makes the n-th source read (1-based) fail; 0 disables it
	failFetch int
	fetches   int
	// rowErr is consulted before every INSERT or DELETE
	rowErr  func(args []any) error
	begins  int
	execs   []string
	queries []string
}

func newFakeDB(name, driver string) *fakeDB {
	d, err := dialect.GetDialect(driver)
	if err != nil {
		panic(err)
	}
	return &fakeDB{
		name:   name,
		d:      d,
		policy: retry.Policy{MaxRetries: 3, BaseDelay: time.Millisecond},
		tables: map[string]*fakeTable{},
	}
}

func (f *fakeDB) addTable(name, pk string, cols, types []string) *fakeTable {
	t := &fakeTable{cols: cols, types: types, pk: pk}
	f.tables[name] = t
	return t
}

func (f *fakeDB) table(name string) (*fakeTable, error) {
	t, ok := f.tables[name]
	if !ok {
		return nil, fmt.Errorf("table %s does not exist", name)
	}
	return t, nil
}

var (
	reSelect = regexp.MustCompile(`(?i)^SELECT\s+(.+?)\s+FROM\s+([\w.]+)`)
	reAfter  = regexp.MustCompile(`(\w+) > (?:\?|\$1)`)
	reFlag   = regexp.MustCompile(`(\w+) = (?:1|TRUE)\b`)
	reOrder  = regexp.MustCompile(`ORDER BY (\w+) ASC`)
	reLimit  = regexp.MustCompile(`LIMIT (\d+)`)
	reOffset = regexp.MustCompile(`OFFSET (\d+)`)
	reInsert = regexp.MustCompile(`^INSERT INTO ([\w.]+) \(([^)]+)\) VALUES`)
	reDelete = regexp.MustCompile(`^DELETE FROM ([\w.]+) WHERE (\w+) = `)
)

func flagged(v any) bool {
	s := fmt.Sprint(v)
	return s == "1" || s == "true"
}

func (f *fakeDB) Name() string              { return f.name }
func (f *fakeDB) Dialect() dialect.Dialect  { return f.d }
func (f *fakeDB) RetryPolicy() retry.Policy { return f.policy }

func (f *fakeDB) Ping(ctx context.Context) error { return f.pingErr }

func (f *fakeDB) selectColumns(t *fakeTable, list string) ([]string, error) {
	if strings.TrimSpace(list) == "*" {
		return t.cols, nil
	}
	var out []string
	for _, c := range strings.Split(list, ",") {
		c = strings.TrimSpace(c)
		if t.index(c) < 0 {
			return nil, fmt.Errorf("unknown column %s", c)
		}
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeDB) QueryWithRetry(ctx context.Context, query string, args ...any) (*database.ResultSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	f.fetches++
	if f.failFetch > 0 && f.fetches == f.failFetch {
		return nil, errors.New("server closed the connection")
	}

	m := reSelect.FindStringSubmatch(query)
	if m == nil {
		return nil, fmt.Errorf("unsupported query %q", query)
	}
	t, err := f.table(m[2])
	if err != nil {
		return nil, err
	}
	cols, err := f.selectColumns(t, m[1])
	if err != nil {
		return nil, err
	}

	rows := append([][]any(nil), t.rows...)
	if a := reAfter.FindStringSubmatch(query); a != nil {
		idx := t.index(a[1])
		rows = filter(rows, func(r []any) bool { return compareKeys(r[idx], args[0]) > 0 })
	}
	if fl := reFlag.FindStringSubmatch(query); fl != nil {
		idx := t.index(fl[1])
		rows = filter(rows, func(r []any) bool { return flagged(r[idx]) })
	}
	if o := reOrder.FindStringSubmatch(query); o != nil {
		idx := t.index(o[1])
		sort.SliceStable(rows, func(i, j int) bool { return compareKeys(rows[i][idx], rows[j][idx]) < 0 })
	}
	if o := reOffset.FindStringSubmatch(query); o != nil {
		n, _ := strconv.Atoi(o[1])
		rows = rows[min(n, len(rows)):]
	}
	if l := reLimit.FindStringSubmatch(query); l != nil {
		n, _ := strconv.Atoi(l[1])
		rows = rows[:min(n, len(rows))]
	}

	rs := &database.ResultSet{Columns: cols}
	for _, r := range rows {
		out := make([]any, len(cols))
		for i, c := range cols {
			out[i] = r[t.index(c)]
		}
		rs.Rows = append(rs.Rows, out)
	}
	return rs, nil
}

func filter(rows [][]any, keep func([]any) bool) [][]any {
	var out [][]any
	for _, r := range rows {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func (f *fakeDB) Begin(ctx context.Context) (database.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.begins++
	return &fakeTx{db: f}, nil
}

func (f *fakeDB) RowCount(ctx context.Context, table, where string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.table(table)
	if err != nil {
		return 0, err
	}
	if where == "" {
		return int64(len(t.rows)), nil
	}
	fl := reFlag.FindStringSubmatch(where)
	if fl == nil {
		return 0, fmt.Errorf("unsupported condition %q", where)
	}
	idx := t.index(fl[1])
	return int64(len(filter(t.rows, func(r []any) bool { return flagged(r[idx]) }))), nil
}

func (f *fakeDB) TableExists(ctx context.Context, table string) (bool, error) {
	_, ok := f.tables[table]
	return ok, nil
}

func (f *fakeDB) ColumnExists(ctx context.Context, table, column string) (bool, error) {
	t, err := f.table(table)
	if err != nil {
		return false, err
	}
	return t.index(column) >= 0, nil
}

func (f *fakeDB) PrimaryKeyColumns(ctx context.Context, table string) ([]string, error) {
	if f.pkErr != nil {
		return nil, f.pkErr
	}
	t, err := f.table(table)
	if err != nil {
		return nil, err
	}
	if t.pk == "" {
		return nil, nil
	}
	return []string{t.pk}, nil
}

func (f *fakeDB) TableSchema(ctx context.Context, table string) (*schema.Table, error) {
	t, err := f.table(table)
	if err != nil {
		return nil, err
	}
	out := &schema.Table{Name: table}
	for i, c := range t.cols {
		col := schema.NewColumn(c, t.types[i], !strings.EqualFold(c, t.pk))
		col.IsPK = strings.EqualFold(c, t.pk)
		out.Columns = append(out.Columns, col)
	}
	return out, nil
}

func (f *fakeDB) QueryColumnMetadata(ctx context.Context, query string) ([]*schema.Column, error) {
	m := reSelect.FindStringSubmatch(query)
	if m == nil {
		return nil, fmt.Errorf("syntax error in %q", query)
	}
	t, err := f.table(m[2])
	if err != nil {
		return nil, err
	}
	cols, err := f.selectColumns(t, m[1])
	if err != nil {
		return nil, err
	}
	out := make([]*schema.Column, len(cols))
	for i, c := range cols {
		out[i] = schema.NewColumn(c, t.types[t.index(c)], !strings.EqualFold(c, t.pk))
	}
	return out, nil
}

type staged struct {
	table  string
	row    []any
	delete bool
	key    any
}

// fakeTx stages writes and applies them on commit.
type fakeTx struct {
	db   *fakeDB
	ops  []staged
	done bool
}

func (tx *fakeTx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	f := tx.db
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execs = append(f.execs, query)

	if strings.HasPrefix(query, "SAVEPOINT") || strings.HasPrefix(query, "ROLLBACK TO") || strings.HasPrefix(query, "RELEASE") {
		return 0, nil
	}
	if f.rowErr != nil {
		if err := f.rowErr(args); err != nil {
			return 0, err
		}
	}

	if m := reInsert.FindStringSubmatch(query); m != nil {
		t, err := f.table(m[1])
		if err != nil {
			return 0, err
		}
		row := make([]any, len(t.cols))
		for i, c := range strings.Split(m[2], ",") {
			idx := t.index(strings.TrimSpace(c))
			if idx < 0 {
				return 0, fmt.Errorf("unknown column %s", c)
			}
			row[idx] = args[i]
		}
		if t.pk != "" {
			key := row[t.index(t.pk)]
			if tx.exists(t, m[1], key) {
				return 0, fmt.Errorf("duplicate key %v", key)
			}
		}
		tx.ops = append(tx.ops, staged{table: m[1], row: row})
		return 1, nil
	}

	if m := reDelete.FindStringSubmatch(query); m != nil {
		t, err := f.table(m[1])
		if err != nil {
			return 0, err
		}
		if !tx.exists(t, m[1], args[0]) {
			return 0, nil
		}
		tx.ops = append(tx.ops, staged{table: m[1], delete: true, key: args[0]})
		return 1, nil
	}
	return 0, fmt.Errorf("unsupported statement %q", query)
}

// exists looks at committed rows and at the writes staged so far.
func (tx *fakeTx) exists(t *fakeTable, table string, key any) bool {
	idx := t.index(t.pk)
	found := false
	for _, r := range t.rows {
		if compareKeys(r[idx], key) == 0 {
			found = true
		}
	}
	for _, op := range tx.ops {
		if op.table != table {
			continue
		}
		if op.delete && compareKeys(op.key, key) == 0 {
			found = false
		}
		if !op.delete && compareKeys(op.row[idx], key) == 0 {
			found = true
		}
	}
	return found
}

func (tx *fakeTx) Commit() error {
	f := tx.db
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, op := range tx.ops {
		t := f.tables[op.table]
		if op.delete {
			idx := t.index(t.pk)
			t.rows = filter(t.rows, func(r []any) bool { return compareKeys(r[idx], op.key) != 0 })
			continue
		}
		t.rows = append(t.rows, op.row)
	}
	tx.ops = nil
	tx.done = true
	return nil
}

func (tx *fakeTx) Rollback() error {
	tx.ops = nil
	tx.done = true
	return nil
}
