package persistor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Aleph-Alpha/persistor/v1/database"
	"github.com/Aleph-Alpha/persistor/v1/model"
)

// indexHistoryTable keeps one row per change of the declared indexes, each
// holding the full snapshot of the declarations at that time.
const indexHistoryTable = "index_schema_history"

// IndexSnapshot maps template names to their declared indexes.
type IndexSnapshot map[string]TableIndexes

// TableIndexes is the index declaration of one template.
type TableIndexes struct {
	Indexes []model.Index `json:"indexes"`
}

type indexChanges struct {
	add    []model.Index
	change []model.Index
	drop   []model.Index
}

func (c indexChanges) empty() bool {
	return len(c.add) == 0 && len(c.change) == 0 && len(c.drop) == 0
}

// indexName derives the physical name of an index from its table and
// columns.
func indexName(table string, idx model.Index) string {
	name := "idx_" + table
	for _, col := range idx.Def.Columns {
		name += "_" + col
	}
	return strings.ToLower(name)
}

// ownIndexes returns the indexes declared by t's own schema entry.
func ownIndexes(t *model.Template) []model.Index {
	if t.Schema == nil || (t.Parent != nil && t.Schema == t.Parent.Schema) {
		return nil
	}
	return t.Schema.Indexes
}

func findIndex(list []model.Index, name string) (model.Index, bool) {
	for _, idx := range list {
		if idx.Name == name {
			return idx, true
		}
	}
	return model.Index{}, false
}

func sameIndex(a, b model.Index) bool {
	ja, errA := toJSON(a)
	jb, errB := toJSON(b)
	return errA == nil && errB == nil && ja == jb
}

// diffIndexes compares the declared indexes of every template of root's
// hierarchy with the last snapshot. Entries are merged across the hierarchy
// by physical index name, the first declaration winning.
func diffIndexes(snapshot IndexSnapshot, root *model.Template, table string) indexChanges {
	var out indexChanges
	seen := map[string]map[string]bool{"add": {}, "change": {}, "drop": {}}
	keep := func(op string, list *[]model.Index, idx model.Index) {
		name := indexName(table, idx)
		if seen[op][name] {
			return
		}
		seen[op][name] = true
		*list = append(*list, idx)
	}

	for _, t := range root.Descendants() {
		mem := ownIndexes(t)
		stored := snapshot[t.Name].Indexes
		for _, idx := range mem {
			prev, ok := findIndex(stored, idx.Name)
			switch {
			case !ok:
				keep("add", &out.add, idx)
			case !sameIndex(idx, prev):
				keep("change", &out.change, idx)
			}
		}
		for _, idx := range stored {
			if _, ok := findIndex(mem, idx.Name); !ok {
				keep("drop", &out.drop, idx)
			}
		}
	}
	return out
}

func indexSpec(table string, idx model.Index) (database.IndexSpec, error) {
	if idx.Def.Type != model.IndexTypeUnique && idx.Def.Type != model.IndexTypeIndex {
		return database.IndexSpec{}, fmt.Errorf(`%w: index type can be only "unique" or "index"`, ErrConfiguration)
	}
	return database.IndexSpec{
		Name:    indexName(table, idx),
		Columns: idx.Def.Columns,
		Unique:  idx.Def.Type == model.IndexTypeUnique,
	}, nil
}

// loadIndexHistory returns the latest snapshot and its sequence number,
// creating the history table on first use.
func (p *Persistor) loadIndexHistory(ctx context.Context, client database.Client) (IndexSnapshot, int64, error) {
	migrator := client.Schema()
	exists, err := migrator.HasTable(ctx, indexHistoryTable)
	if err != nil {
		return nil, 0, err
	}
	if !exists {
		err := migrator.CreateTable(ctx, indexHistoryTable, []database.ColumnDef{
			{Name: "sequence_id", Kind: database.ColumnIncrements},
			{Name: "schema", Kind: database.ColumnText},
			{Name: "created_at", Kind: database.ColumnTimestamp},
			{Name: "updated_at", Kind: database.ColumnTimestamp},
		})
		if err != nil {
			return nil, 0, err
		}
		p.schemaChange(indexHistoryTable, "create_table")
	}

	rows, err := client.Select(ctx, &database.SelectStatement{
		Criteria: database.Criteria{
			Table:   indexHistoryTable,
			OrderBy: []database.Order{{Column: database.Col(indexHistoryTable, "sequence_id"), Desc: true}},
			Limit:   1,
		},
		Columns: []database.SelectColumn{
			{Table: indexHistoryTable, Column: "sequence_id"},
			{Table: indexHistoryTable, Column: "schema"},
		},
	})
	if err != nil {
		return nil, 0, err
	}
	snapshot := IndexSnapshot{}
	if len(rows) == 0 {
		return snapshot, 0, nil
	}
	if raw := asString(rows[0]["schema"]); raw != "" {
		if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
			return nil, 0, fmt.Errorf("invalid %s row: %w", indexHistoryTable, err)
		}
	}
	return snapshot, asInt64(rows[0]["sequence_id"]), nil
}

// synchronizeIndexes applies the index changes of root's hierarchy inside
// one transaction and records the new snapshot when anything changed.
func (p *Persistor) synchronizeIndexes(ctx context.Context, client database.Client, root *model.Template, table string) error {
	snapshot, seq, err := p.loadIndexHistory(ctx, client)
	if err != nil {
		return err
	}
	changes := diffIndexes(snapshot, root, table)
	if changes.empty() {
		return nil
	}
	p.debug("sync", "synchronizeIndexes", map[string]interface{}{
		"table": table, "add": len(changes.add), "change": len(changes.change), "delete": len(changes.drop),
	})

	next := IndexSnapshot{}
	for name, entry := range snapshot {
		next[name] = entry
	}
	for _, t := range root.Descendants() {
		next[t.Name] = TableIndexes{Indexes: ownIndexes(t)}
	}
	encoded, err := toJSON(next)
	if err != nil {
		return err
	}

	// the snapshot commits or rolls back together with the index DDL
	err = client.Transaction(ctx, func(tx database.Client) error {
		m := tx.Schema()
		for _, idx := range changes.add {
			spec, err := indexSpec(table, idx)
			if err != nil {
				return err
			}
			if err := m.CreateIndex(ctx, table, spec); err != nil {
				return err
			}
		}
		for _, idx := range changes.change {
			spec, err := indexSpec(table, idx)
			if err != nil {
				return err
			}
			if err := m.DropIndex(ctx, table, spec); err != nil {
				return err
			}
			if err := m.CreateIndex(ctx, table, spec); err != nil {
				return err
			}
		}
		for _, idx := range changes.drop {
			spec, err := indexSpec(table, idx)
			if err != nil {
				return err
			}
			if err := m.DropIndex(ctx, table, spec); err != nil {
				return err
			}
		}
		now := time.Now().UTC()
		return tx.Insert(ctx, indexHistoryTable, database.Row{
			"sequence_id": seq + 1,
			"schema":      encoded,
			"created_at":  now,
			"updated_at":  now,
		})
	})
	if err != nil {
		return err
	}
	for range changes.add {
		p.schemaChange(table, "index_add")
	}
	for range changes.change {
		p.schemaChange(table, "index_change")
	}
	for range changes.drop {
		p.schemaChange(table, "index_drop")
	}
	return nil
}

// IndexHistory returns the latest index snapshot recorded in the database
// of tmpl.
func (p *Persistor) IndexHistory(ctx context.Context, tmpl *model.Template) (IndexSnapshot, int64, error) {
	h, err := p.handleFor(tmpl.Root())
	if err != nil {
		return nil, 0, err
	}
	if h.IsDocumentStore() {
		return nil, 0, fmt.Errorf("%w: %s is not stored in a relational database", ErrConfiguration, tmpl.Name)
	}
	return p.loadIndexHistory(ctx, h.SQL)
}
