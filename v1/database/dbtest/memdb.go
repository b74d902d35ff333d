package dbtest

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/Aleph-Alpha/persistor/v1/database"
)

// Op names an operation for failure injection.
type Op string

const (
	OpSelect Op = "select"
	OpCount  Op = "count"
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
	OpDDL    Op = "ddl"
)

// Injector returns a non-nil error to make an operation on table fail.
type Injector func(op Op, table string) error

type memTable struct {
	columns []database.ColumnDef
	info    map[string]database.ColumnInfo
	rows    []database.Row
	indexes map[string]database.IndexSpec
	serial  int64
}

func (t *memTable) clone() *memTable {
	out := &memTable{
		columns: append([]database.ColumnDef(nil), t.columns...),
		info:    map[string]database.ColumnInfo{},
		indexes: map[string]database.IndexSpec{},
		serial:  t.serial,
	}
	for k, v := range t.info {
		out.info[k] = v
	}
	for k, v := range t.indexes {
		out.indexes[k] = v
	}
	for _, r := range t.rows {
		out.rows = append(out.rows, copyRow(r))
	}
	return out
}

func copyRow(r database.Row) database.Row {
	out := make(database.Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// MemDB is an in-memory relational database.
type MemDB struct {
	mu         sync.Mutex
	tables     map[string]*memTable
	statements []string
	inject     Injector
}

// NewMemDB creates an empty database.
func NewMemDB() *MemDB {
	return &MemDB{tables: map[string]*memTable{}}
}

// Client returns a client bound to the database.
func (db *MemDB) Client() database.Client {
	return &MemClient{db: db}
}

// Inject installs a failure injector; nil removes it.
func (db *MemDB) Inject(fn Injector) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.inject = fn
}

// Statements returns the rendered statements executed so far.
func (db *MemDB) Statements() []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	return append([]string(nil), db.statements...)
}

// StatementsWithPrefix returns the executed statements starting with prefix.
func (db *MemDB) StatementsWithPrefix(prefix string) []string {
	var out []string
	for _, s := range db.Statements() {
		if strings.HasPrefix(s, prefix) {
			out = append(out, s)
		}
	}
	return out
}

// ResetLog forgets the executed statements.
func (db *MemDB) ResetLog() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.statements = nil
}

// Rows returns a copy of the rows of table.
func (db *MemDB) Rows(table string) []database.Row {
	db.mu.Lock()
	defer db.mu.Unlock()
	t, ok := db.tables[table]
	if !ok {
		return nil
	}
	out := make([]database.Row, len(t.rows))
	for i, r := range t.rows {
		out[i] = copyRow(r)
	}
	return out
}

// Indexes returns the names of the indexes of table.
func (db *MemDB) Indexes(table string) []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []string
	if t, ok := db.tables[table]; ok {
		for name := range t.indexes {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Comment returns the comment of a column.
func (db *MemDB) Comment(table, column string) string {
	db.mu.Lock()
	defer db.mu.Unlock()
	if t, ok := db.tables[table]; ok {
		return t.info[column].Comment
	}
	return ""
}

// SetColumnType overrides the reported type of a column, to simulate drift.
func (db *MemDB) SetColumnType(table, column, typ string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if t, ok := db.tables[table]; ok {
		info := t.info[column]
		info.Type = typ
		t.info[column] = info
	}
}

func (db *MemDB) begin(op Op, table, statement string) (*memTable, error) {
	db.statements = append(db.statements, statement)
	if db.inject != nil {
		if err := db.inject(op, table); err != nil {
			return nil, err
		}
	}
	t, ok := db.tables[table]
	if !ok && op != OpDDL {
		return nil, fmt.Errorf("relation %q does not exist", table)
	}
	return t, nil
}

// MemClient implements database.Client and database.Migrator over a MemDB.
type MemClient struct {
	db *MemDB
}

var (
	_ database.Client   = (*MemClient)(nil)
	_ database.Migrator = (*MemClient)(nil)
)

func (c *MemClient) Dialect() database.Dialect { return Dialect{} }

func (c *MemClient) Schema() database.Migrator { return c }

func (c *MemClient) Select(_ context.Context, stmt *database.SelectStatement) ([]database.Row, error) {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()

	sql := selectStatement(stmt)
	base, err := c.db.begin(OpSelect, stmt.Table, sql)
	if err != nil {
		return nil, err
	}
	var joined []*memTable
	for _, j := range stmt.Joins {
		t, ok := c.db.tables[j.Table]
		if !ok {
			return nil, fmt.Errorf("relation %q does not exist", j.Table)
		}
		joined = append(joined, t)
	}

	var contexts []database.Row
	for _, row := range base.rows {
		ctx := database.Row{}
		for k, v := range row {
			ctx[stmt.Table+"."+k] = v
			ctx[k] = v
		}
		for i, j := range stmt.Joins {
			parent := ctx[j.ParentTable+"."+j.ParentColumn]
			for _, candidate := range joined[i].rows {
				if parent != nil && database.Equal(candidate[j.Column], parent) {
					for k, v := range candidate {
						ctx[j.Alias+"."+k] = v
					}
					break
				}
			}
		}
		ok, err := eval(stmt.Where, ctx)
		if err != nil {
			return nil, err
		}
		if ok {
			contexts = append(contexts, ctx)
		}
	}
	contexts = page(stmt.Criteria, contexts)

	out := make([]database.Row, 0, len(contexts))
	for _, ctx := range contexts {
		row := database.Row{}
		if len(stmt.Columns) == 0 {
			for k, v := range ctx {
				if !strings.Contains(k, ".") {
					row[k] = v
				}
			}
		}
		for _, col := range stmt.Columns {
			name := col.As
			if name == "" {
				name = col.Column
			}
			row[name] = ctx[col.Table+"."+col.Column]
		}
		out = append(out, row)
	}
	return out, nil
}

func page(c database.Criteria, rows []database.Row) []database.Row {
	if len(c.OrderBy) > 0 {
		sort.SliceStable(rows, func(i, j int) bool {
			for _, o := range c.OrderBy {
				a, b := lookup(rows[i], o.Column), lookup(rows[j], o.Column)
				cmp := compareNullsFirst(a, b)
				if cmp == 0 {
					continue
				}
				if o.Desc {
					return cmp > 0
				}
				return cmp < 0
			}
			return false
		})
	}
	if c.Offset > 0 {
		if c.Offset >= len(rows) {
			return nil
		}
		rows = rows[c.Offset:]
	}
	if c.Limit > 0 && c.Limit < len(rows) {
		rows = rows[:c.Limit]
	}
	return rows
}

func compareNullsFirst(a, b interface{}) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	cmp, _ := database.Compare3(a, b)
	return cmp
}

func lookup(ctx database.Row, col database.Column) interface{} {
	if col.Table != "" {
		if v, ok := ctx[col.Table+"."+col.Name]; ok {
			return v
		}
	}
	return ctx[col.Name]
}

func eval(c database.Condition, ctx database.Row) (bool, error) {
	switch c.Op {
	case "":
		return true, nil
	case database.OpAnd, database.OpOr:
		for _, child := range c.Conditions {
			ok, err := eval(child, ctx)
			if err != nil {
				return false, err
			}
			if c.Op == database.OpOr && ok {
				return true, nil
			}
			if c.Op == database.OpAnd && !ok {
				return false, nil
			}
		}
		return c.Op == database.OpAnd, nil
	case database.OpRaw:
		return false, fmt.Errorf("raw conditions are not supported in memory: %s", c.SQL)
	}

	v := lookup(ctx, c.Column)
	switch c.Op {
	case database.OpIsNull:
		return v == nil, nil
	case database.OpNotNull:
		return v != nil, nil
	}
	if v == nil {
		return false, nil
	}
	switch c.Op {
	case database.OpIn, database.OpNotIn:
		values, _ := c.Value.([]interface{})
		found := false
		for _, candidate := range values {
			if database.Equal(v, candidate) {
				found = true
				break
			}
		}
		return found == (c.Op == database.OpIn), nil
	case database.OpRegex, database.OpIRegex:
		pattern := fmt.Sprint(c.Value)
		if c.Op == database.OpIRegex {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false, err
		}
		return re.MatchString(fmt.Sprint(v)), nil
	}
	if c.Value == nil {
		return false, nil
	}
	switch c.Op {
	case database.OpEq:
		return database.Equal(v, c.Value), nil
	case database.OpNe:
		return !database.Equal(v, c.Value), nil
	}
	cmp, ok := database.Compare3(v, c.Value)
	if !ok {
		return false, fmt.Errorf("cannot compare %s (%T) with %T", c.Column, v, c.Value)
	}
	switch c.Op {
	case database.OpGt:
		return cmp > 0, nil
	case database.OpGte:
		return cmp >= 0, nil
	case database.OpLt:
		return cmp < 0, nil
	case database.OpLte:
		return cmp <= 0, nil
	}
	return false, fmt.Errorf("unsupported operator %s", c.Op)
}

func (c *MemClient) matching(table string, t *memTable, where database.Condition) ([]int, error) {
	var idx []int
	for i, row := range t.rows {
		ctx := database.Row{}
		for k, v := range row {
			ctx[k] = v
			ctx[table+"."+k] = v
		}
		ok, err := eval(where, ctx)
		if err != nil {
			return nil, err
		}
		if ok {
			idx = append(idx, i)
		}
	}
	return idx, nil
}

func (c *MemClient) Count(_ context.Context, criteria database.Criteria) (int64, error) {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()

	sql := countStatement(criteria)
	t, err := c.db.begin(OpCount, criteria.Table, sql)
	if err != nil {
		return 0, err
	}
	idx, err := c.matching(criteria.Table, t, criteria.Where)
	return int64(len(idx)), err
}

func checkColumns(table string, t *memTable, values database.Row) error {
	for k := range values {
		if _, ok := t.info[k]; !ok {
			return fmt.Errorf("column %q of relation %q does not exist", k, table)
		}
	}
	return nil
}

func (c *MemClient) Insert(_ context.Context, table string, values database.Row) error {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()

	sql := insertStatement(table, values)
	t, err := c.db.begin(OpInsert, table, sql)
	if err != nil {
		return err
	}
	if err := checkColumns(table, t, values); err != nil {
		return err
	}
	row := copyRow(values)
	for _, col := range t.columns {
		switch col.Kind {
		case database.ColumnKey:
			for _, existing := range t.rows {
				if database.Equal(existing[col.Name], row[col.Name]) {
					return fmt.Errorf("%w: %s=%v", database.ErrDuplicateKey, col.Name, row[col.Name])
				}
			}
		case database.ColumnIncrements:
			if row[col.Name] == nil {
				t.serial++
				row[col.Name] = t.serial
			} else if n, ok := row[col.Name].(int64); ok && n > t.serial {
				t.serial = n
			}
		}
	}
	t.rows = append(t.rows, row)
	return nil
}

func (c *MemClient) Update(_ context.Context, table string, values database.Row, where database.Condition) (int64, error) {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()

	sql := updateStatement(table, values, where)
	t, err := c.db.begin(OpUpdate, table, sql)
	if err != nil {
		return 0, err
	}
	if err := checkColumns(table, t, values); err != nil {
		return 0, err
	}
	idx, err := c.matching(table, t, where)
	if err != nil {
		return 0, err
	}
	for _, i := range idx {
		for k, v := range values {
			t.rows[i][k] = v
		}
	}
	return int64(len(idx)), nil
}

func (c *MemClient) Increment(_ context.Context, table, column string, where database.Condition) (int64, error) {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()

	sql := incrementStatement(table, column, where)
	t, err := c.db.begin(OpUpdate, table, sql)
	if err != nil {
		return 0, err
	}
	idx, err := c.matching(table, t, where)
	if err != nil {
		return 0, err
	}
	for _, i := range idx {
		switch n := t.rows[i][column].(type) {
		case int64:
			t.rows[i][column] = n + 1
		case int:
			t.rows[i][column] = int64(n) + 1
		case float64:
			t.rows[i][column] = n + 1
		case nil:
			t.rows[i][column] = int64(1)
		}
	}
	return int64(len(idx)), nil
}

func (c *MemClient) Delete(_ context.Context, criteria database.Criteria) (int64, error) {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()

	sql := deleteStatement(criteria)
	t, err := c.db.begin(OpDelete, criteria.Table, sql)
	if err != nil {
		return 0, err
	}
	idx, err := c.matching(criteria.Table, t, criteria.Where)
	if err != nil {
		return 0, err
	}
	drop := map[int]bool{}
	for _, i := range idx {
		drop[i] = true
	}
	kept := t.rows[:0]
	for i, row := range t.rows {
		if !drop[i] {
			kept = append(kept, row)
		}
	}
	t.rows = kept
	return int64(len(idx)), nil
}

// Transaction snapshots every table and restores the snapshot when fn fails.
func (c *MemClient) Transaction(ctx context.Context, fn func(tx database.Client) error) error {
	c.db.mu.Lock()
	snapshot := make(map[string]*memTable, len(c.db.tables))
	for name, t := range c.db.tables {
		snapshot[name] = t.clone()
	}
	c.db.statements = append(c.db.statements, "BEGIN")
	c.db.mu.Unlock()

	if err := fn(&MemClient{db: c.db}); err != nil {
		c.db.mu.Lock()
		c.db.tables = snapshot
		c.db.statements = append(c.db.statements, "ROLLBACK")
		c.db.mu.Unlock()
		return err
	}

	c.db.mu.Lock()
	c.db.statements = append(c.db.statements, "COMMIT")
	c.db.mu.Unlock()
	return nil
}

func (c *MemClient) HasTable(_ context.Context, table string) (bool, error) {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	_, ok := c.db.tables[table]
	return ok, nil
}

func (c *MemClient) Columns(_ context.Context, table string) (map[string]database.ColumnInfo, error) {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	t, ok := c.db.tables[table]
	if !ok {
		return nil, fmt.Errorf("relation %q does not exist", table)
	}
	out := make(map[string]database.ColumnInfo, len(t.info))
	for k, v := range t.info {
		out[k] = v
	}
	return out, nil
}

func (c *MemClient) CreateTable(_ context.Context, table string, columns []database.ColumnDef) error {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()

	if _, err := c.db.begin(OpDDL, table, database.RenderCreateTable(Dialect{}, table, columns)); err != nil {
		return err
	}
	if _, ok := c.db.tables[table]; ok {
		return fmt.Errorf("relation %q already exists", table)
	}
	t := &memTable{info: map[string]database.ColumnInfo{}, indexes: map[string]database.IndexSpec{}}
	for _, col := range columns {
		t.columns = append(t.columns, col)
		t.info[col.Name] = database.ColumnInfo{Name: col.Name, Type: Dialect{}.ColumnType(col.Kind)}
	}
	c.db.tables[table] = t
	return nil
}

func (c *MemClient) AddColumns(_ context.Context, table string, columns []database.ColumnDef) error {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()

	t, err := c.db.begin(OpDDL, table, database.RenderAddColumns(Dialect{}, table, columns))
	if err != nil {
		return err
	}
	if t == nil {
		return fmt.Errorf("relation %q does not exist", table)
	}
	for _, col := range columns {
		if _, ok := t.info[col.Name]; ok {
			return fmt.Errorf("column %q of relation %q already exists", col.Name, table)
		}
		t.columns = append(t.columns, col)
		t.info[col.Name] = database.ColumnInfo{Name: col.Name, Type: Dialect{}.ColumnType(col.Kind)}
	}
	return nil
}

func (c *MemClient) DropTable(_ context.Context, table string) error {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()

	if _, err := c.db.begin(OpDDL, table, "DROP TABLE IF EXISTS "+Dialect{}.Quote(table)); err != nil {
		return err
	}
	delete(c.db.tables, table)
	return nil
}

func (c *MemClient) CommentOnColumn(_ context.Context, table, column, comment string) error {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()

	sql, _ := Dialect{}.CommentSQL(table, column, comment)
	t, err := c.db.begin(OpDDL, table, sql)
	if err != nil {
		return err
	}
	if t == nil {
		return fmt.Errorf("relation %q does not exist", table)
	}
	info, ok := t.info[column]
	if !ok {
		return fmt.Errorf("column %q of relation %q does not exist", column, table)
	}
	info.Comment = comment
	t.info[column] = info
	return nil
}

func (c *MemClient) CreateIndex(_ context.Context, table string, index database.IndexSpec) error {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()

	t, err := c.db.begin(OpDDL, table, database.RenderCreateIndex(Dialect{}, table, index))
	if err != nil {
		return err
	}
	if t == nil {
		return fmt.Errorf("relation %q does not exist", table)
	}
	if _, ok := t.indexes[index.Name]; ok {
		return fmt.Errorf("relation %q already exists", index.Name)
	}
	t.indexes[index.Name] = index
	return nil
}

func (c *MemClient) DropIndex(_ context.Context, table string, index database.IndexSpec) error {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()

	t, err := c.db.begin(OpDDL, table, Dialect{}.DropIndexSQL(table, index))
	if err != nil {
		return err
	}
	if t == nil {
		return fmt.Errorf("relation %q does not exist", table)
	}
	if _, ok := t.indexes[index.Name]; !ok {
		return fmt.Errorf("index %q does not exist", index.Name)
	}
	delete(t.indexes, index.Name)
	return nil
}
