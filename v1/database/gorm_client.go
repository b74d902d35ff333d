package database

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormClient implements Client and Migrator on top of gorm. Reads and writes
// go through gorm's chainable API with conditions translated into gorm
// clauses; only the DDL is rendered by the dialect and run with Exec.
type GormClient struct {
	db        func() *gorm.DB
	dialect   Dialect
	translate func(error) error
}

// NewGormClient creates a client. db is called for every statement so a
// reconnecting owner can swap the connection underneath; translate maps driver
// errors onto the package sentinels.
func NewGormClient(db func() *gorm.DB, dialect Dialect, translate func(error) error) *GormClient {
	if translate == nil {
		translate = func(err error) error { return err }
	}
	return &GormClient{db: db, dialect: dialect, translate: translate}
}

func (c *GormClient) conn(ctx context.Context) *gorm.DB {
	return c.db().WithContext(ctx)
}

func (c *GormClient) exec(ctx context.Context, sql string, args []interface{}) (int64, error) {
	res := c.conn(ctx).Exec(sql, args...)
	if res.Error != nil {
		return 0, c.translate(res.Error)
	}
	return res.RowsAffected, nil
}

// Dialect returns the SQL dialect.
func (c *GormClient) Dialect() Dialect {
	return c.dialect
}

func gormColumn(col Column) clause.Column {
	return clause.Column{Table: col.Table, Name: col.Name}
}

// expression translates cond into a gorm clause. The zero Condition
// translates to nil.
func (c *GormClient) expression(cond Condition) clause.Expression {
	col := gormColumn(cond.Column)
	switch cond.Op {
	case "":
		return nil
	case OpAnd, OpOr:
		exprs := make([]clause.Expression, 0, len(cond.Conditions))
		for _, child := range cond.Conditions {
			if e := c.expression(child); e != nil {
				exprs = append(exprs, e)
			}
		}
		switch {
		case len(exprs) == 0:
			return nil
		case len(exprs) == 1:
			return exprs[0]
		case cond.Op == OpAnd:
			return clause.And(exprs...)
		}
		return clause.Or(exprs...)
	case OpEq:
		return clause.Eq{Column: col, Value: cond.Value}
	case OpNe:
		return clause.Neq{Column: col, Value: cond.Value}
	case OpGt:
		return clause.Gt{Column: col, Value: cond.Value}
	case OpGte:
		return clause.Gte{Column: col, Value: cond.Value}
	case OpLt:
		return clause.Lt{Column: col, Value: cond.Value}
	case OpLte:
		return clause.Lte{Column: col, Value: cond.Value}
	case OpIn, OpNotIn:
		values, _ := cond.Value.([]interface{})
		if len(values) == 0 {
			// IN () matches nothing, NOT IN () everything
			if cond.Op == OpIn {
				return clause.Expr{SQL: "1 = 0"}
			}
			return clause.Expr{SQL: "1 = 1"}
		}
		in := clause.IN{Column: col, Values: values}
		if cond.Op == OpNotIn {
			return clause.Not(in)
		}
		return in
	case OpIsNull:
		return clause.Eq{Column: col, Value: nil}
	case OpNotNull:
		return clause.Neq{Column: col, Value: nil}
	case OpRegex, OpIRegex:
		op := c.dialect.RegexOperator(cond.Op == OpIRegex)
		return clause.Expr{SQL: "? " + op + " ?", Vars: []interface{}{col, cond.Value}}
	case OpRaw:
		return clause.Expr{SQL: cond.SQL, Vars: cond.Args}
	}
	return clause.Expr{SQL: "? " + string(cond.Op) + " ?", Vars: []interface{}{col, cond.Value}}
}

// where narrows db to the rows matching cond. Statements without a
// condition are allowed to touch every row.
func (c *GormClient) where(db *gorm.DB, cond Condition) *gorm.DB {
	expr := c.expression(cond)
	if expr == nil {
		return db.Session(&gorm.Session{AllowGlobalUpdate: true})
	}
	return db.Where(expr)
}

// criteria applies table, filter, order and paging.
func (c *GormClient) criteria(db *gorm.DB, criteria Criteria) *gorm.DB {
	db = c.where(db.Table(criteria.Table), criteria.Where)
	for _, o := range criteria.OrderBy {
		db = db.Order(clause.OrderByColumn{Column: gormColumn(o.Column), Desc: o.Desc})
	}
	if criteria.Limit > 0 {
		db = db.Limit(criteria.Limit)
	}
	if criteria.Offset > 0 {
		db = db.Offset(criteria.Offset)
	}
	return db
}

// query builds the SELECT of stmt without running it.
func (c *GormClient) query(ctx context.Context, stmt *SelectStatement) *gorm.DB {
	db := c.criteria(c.conn(ctx), stmt.Criteria)
	if len(stmt.Columns) > 0 {
		cols := make([]clause.Column, len(stmt.Columns))
		for i, col := range stmt.Columns {
			cols[i] = clause.Column{Table: col.Table, Name: col.Column, Alias: col.As}
		}
		db = db.Clauses(clause.Select{Columns: cols})
	}
	for _, j := range stmt.Joins {
		db = db.Joins("LEFT JOIN ? ON ? = ?",
			clause.Table{Name: j.Table, Alias: j.Alias},
			gormColumn(Col(j.Alias, j.Column)),
			gormColumn(Col(j.ParentTable, j.ParentColumn)))
	}
	return db
}

// Select runs a SELECT.
func (c *GormClient) Select(ctx context.Context, stmt *SelectStatement) ([]Row, error) {
	var rows []map[string]interface{}
	if err := c.query(ctx, stmt).Find(&rows).Error; err != nil {
		return nil, c.translate(err)
	}
	return rows, nil
}

// Count counts matching rows. Order and paging are ignored.
func (c *GormClient) Count(ctx context.Context, criteria Criteria) (int64, error) {
	var count int64
	db := c.criteria(c.conn(ctx), Criteria{Table: criteria.Table, Where: criteria.Where})
	if err := db.Count(&count).Error; err != nil {
		return 0, c.translate(err)
	}
	return count, nil
}

// Insert adds one row.
func (c *GormClient) Insert(ctx context.Context, table string, values Row) error {
	if err := c.conn(ctx).Table(table).Create(values).Error; err != nil {
		return c.translate(err)
	}
	return nil
}

// Update changes matching rows.
func (c *GormClient) Update(ctx context.Context, table string, values Row, where Condition) (int64, error) {
	res := c.where(c.conn(ctx).Table(table), where).Updates(values)
	if res.Error != nil {
		return 0, c.translate(res.Error)
	}
	return res.RowsAffected, nil
}

// Increment adds one to column on matching rows.
func (c *GormClient) Increment(ctx context.Context, table, name string, where Condition) (int64, error) {
	res := c.where(c.conn(ctx).Table(table), where).
		UpdateColumn(name, gorm.Expr("? + 1", clause.Column{Name: name}))
	if res.Error != nil {
		return 0, c.translate(res.Error)
	}
	return res.RowsAffected, nil
}

// Delete removes matching rows.
func (c *GormClient) Delete(ctx context.Context, criteria Criteria) (int64, error) {
	res := c.where(c.conn(ctx).Table(criteria.Table), criteria.Where).Delete(map[string]interface{}{})
	if res.Error != nil {
		return 0, c.translate(res.Error)
	}
	return res.RowsAffected, nil
}

// Transaction runs fn in a gorm transaction bound to one connection.
func (c *GormClient) Transaction(ctx context.Context, fn func(tx Client) error) error {
	return c.conn(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormClient{
			db:        func() *gorm.DB { return tx },
			dialect:   c.dialect,
			translate: c.translate,
		})
	})
}

// Schema returns the migrator bound to the same connection.
func (c *GormClient) Schema() Migrator {
	return c
}

// HasTable reports whether table exists.
func (c *GormClient) HasTable(ctx context.Context, table string) (bool, error) {
	return c.conn(ctx).Migrator().HasTable(table), nil
}

// Columns introspects the columns of table.
func (c *GormClient) Columns(ctx context.Context, table string) (map[string]ColumnInfo, error) {
	types, err := c.conn(ctx).Migrator().ColumnTypes(table)
	if err != nil {
		return nil, c.translate(err)
	}
	out := make(map[string]ColumnInfo, len(types))
	for _, t := range types {
		info := ColumnInfo{Name: t.Name(), Type: t.DatabaseTypeName()}
		if comment, ok := t.Comment(); ok {
			info.Comment = comment
		}
		out[info.Name] = info
	}
	return out, nil
}

// CreateTable creates table.
func (c *GormClient) CreateTable(ctx context.Context, table string, columns []ColumnDef) error {
	_, err := c.exec(ctx, RenderCreateTable(c.dialect, table, columns), nil)
	return err
}

// AddColumns adds columns to table.
func (c *GormClient) AddColumns(ctx context.Context, table string, columns []ColumnDef) error {
	if len(columns) == 0 {
		return nil
	}
	_, err := c.exec(ctx, RenderAddColumns(c.dialect, table, columns), nil)
	return err
}

// DropTable drops table if it exists.
func (c *GormClient) DropTable(ctx context.Context, table string) error {
	return c.translate(c.conn(ctx).Migrator().DropTable(table))
}

// CommentOnColumn documents a column where the dialect supports it.
func (c *GormClient) CommentOnColumn(ctx context.Context, table, column, comment string) error {
	sql, ok := c.dialect.CommentSQL(table, column, comment)
	if !ok {
		return nil
	}
	_, err := c.exec(ctx, sql, nil)
	return err
}

// CreateIndex creates an index.
func (c *GormClient) CreateIndex(ctx context.Context, table string, index IndexSpec) error {
	_, err := c.exec(ctx, RenderCreateIndex(c.dialect, table, index), nil)
	return err
}

// DropIndex drops an index.
func (c *GormClient) DropIndex(ctx context.Context, table string, index IndexSpec) error {
	_, err := c.exec(ctx, c.dialect.DropIndexSQL(table, index), nil)
	return err
}
