package persistor

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Aleph-Alpha/persistor/v1/database"
	"github.com/Aleph-Alpha/persistor/v1/model"
)

var notPersistent = regexp.MustCompile(`(?i)not persistent`)

// columnSpec is one column a table needs for its template hierarchy.
type columnSpec struct {
	def  database.ColumnDef
	prop *model.Property
	// target is set for foreign keys.
	target *model.Template
}

// desiredColumns lists the columns of the table of root: the fixed
// _id, _template and __version__ columns followed by one column per
// persisted property of the whole hierarchy.
func desiredColumns(root *model.Template) ([]columnSpec, error) {
	cols := []columnSpec{
		{def: database.ColumnDef{Name: "_id", Kind: database.ColumnKey}},
		{def: database.ColumnDef{Name: "_template", Kind: database.ColumnString}},
		{def: database.ColumnDef{Name: "__version__", Kind: database.ColumnBigInt}},
	}
	seen := map[string]bool{"_id": true, "_template": true, "__version__": true}

	for _, prop := range root.PropertiesRecursive() {
		if !prop.Persisted() {
			continue
		}
		spec := columnSpec{prop: prop, def: database.ColumnDef{Name: prop.Name}}
		switch prop.Type {
		case model.TypeRefArray:
			if prop.Target.HasTable() {
				continue
			}
			spec.def.Kind = database.ColumnText
		case model.TypeRef:
			if !prop.Target.HasTable() {
				spec.def.Kind = database.ColumnText
				break
			}
			ref := parentRefIn(root, prop.Name)
			if ref == nil || ref.ID == "" {
				return nil, fmt.Errorf("%w: %s.%s is missing a parents schema entry", ErrConfiguration, root.Name, prop.Name)
			}
			spec.def = database.ColumnDef{Name: ref.ID, Kind: database.ColumnString}
			spec.target = prop.Target
		case model.TypeNumber:
			spec.def.Kind = database.ColumnDouble
		case model.TypeDate:
			spec.def.Kind = database.ColumnTimestamp
		case model.TypeBoolean:
			spec.def.Kind = database.ColumnBoolean
		default:
			spec.def.Kind = database.ColumnText
		}
		if seen[spec.def.Name] {
			continue
		}
		seen[spec.def.Name] = true
		cols = append(cols, spec)
	}
	return cols, nil
}

// compatible reports whether an existing column of type dbType can hold
// values of kind.
func compatible(kind database.ColumnKind, dbType string) bool {
	t := strings.ToLower(dbType)
	has := func(parts ...string) bool {
		for _, part := range parts {
			if strings.Contains(t, part) {
				return true
			}
		}
		return false
	}
	switch kind {
	case database.ColumnText:
		return has("text", "char", "json")
	case database.ColumnKey, database.ColumnString:
		return has("char", "text")
	case database.ColumnDouble:
		return has("double", "float", "real", "numeric", "decimal")
	case database.ColumnBoolean:
		return has("bool", "tinyint", "bit")
	case database.ColumnTimestamp:
		return has("timestamp", "datetime")
	case database.ColumnBigInt, database.ColumnIncrements:
		return has("int", "serial")
	}
	return false
}

// SynchronizeTable makes the table of tmpl's hierarchy match its templates:
// it creates the table or adds missing columns, refreshes column comments
// and applies index changes. Each hierarchy is synchronized once per
// persistor unless force is set. notify, when set, receives a description
// of every structural change before it is applied.
func (p *Persistor) SynchronizeTable(ctx context.Context, tmpl *model.Template, notify func(message string), force bool) (err error) {
	if tmpl.Subset() != nil {
		return nil
	}
	root := tmpl.Root()
	if !root.HasTable() {
		return p.logFailure("sync", "synchronizeKnexTableFromTemplate",
			fmt.Errorf("%w: %s is missing a schema entry", ErrConfiguration, root.Name),
			map[string]interface{}{"template": root.Name})
	}
	table := tableName(root)

	if !force && p.isSynced(root.Name) {
		return nil
	}

	ctx, end := p.operation(ctx, "synchronize", table)
	defer func() { end(err, 0) }()

	h, err := p.handleFor(root)
	if err != nil {
		return p.logFailure("sync", "synchronizeKnexTableFromTemplate", err, map[string]interface{}{"template": root.Name})
	}
	if h.IsDocumentStore() {
		return nil
	}

	unlock, err := p.locker.Lock(ctx, "persistor:sync:"+h.Alias+"/"+table)
	if err != nil {
		return p.logFailure("sync", "lock", err, map[string]interface{}{"table": table})
	}
	defer unlock()

	if !force && p.isSynced(root.Name) {
		return nil
	}

	if err := p.syncTable(ctx, h.SQL, root, table, notify); err != nil {
		return p.logFailure("sync", "synchronizeKnexTableFromTemplate", err, map[string]interface{}{"template": root.Name, "table": table})
	}

	// every table of a database shares one index history
	unlockHistory, err := p.locker.Lock(ctx, "persistor:sync:"+h.Alias+"/"+indexHistoryTable)
	if err != nil {
		return p.logFailure("sync", "lock", err, map[string]interface{}{"table": indexHistoryTable})
	}
	err = p.synchronizeIndexes(ctx, h.SQL, root, table)
	unlockHistory()
	if err != nil {
		return p.logFailure("sync", "synchronizeIndexes", err, map[string]interface{}{"template": root.Name, "table": table})
	}

	p.syncMu.Lock()
	p.synced[root.Name] = true
	p.syncMu.Unlock()
	return nil
}

func (p *Persistor) isSynced(name string) bool {
	p.syncMu.Lock()
	defer p.syncMu.Unlock()
	return p.synced[name]
}

func (p *Persistor) syncTable(ctx context.Context, client database.Client, root *model.Template, table string, notify func(string)) error {
	cols, err := desiredColumns(root)
	if err != nil {
		return err
	}
	migrator := client.Schema()

	exists, err := migrator.HasTable(ctx, table)
	if err != nil {
		return err
	}
	if !exists {
		if notify != nil {
			notify(fmt.Sprintf("A new table, %s, has been added\n", table))
		}
		defs := make([]database.ColumnDef, len(cols))
		for i, c := range cols {
			defs[i] = c.def
		}
		if err := migrator.CreateTable(ctx, table, defs); err != nil {
			return err
		}
		p.schemaChange(table, "create_table")
		p.debug("sync", "createTable", map[string]interface{}{"table": table, "columns": len(defs)})
	} else if err := p.addColumns(ctx, migrator, table, cols, notify); err != nil {
		return err
	}

	p.addComments(ctx, migrator, root, table, cols)
	return nil
}

// addColumns adds the columns the table lacks. A column whose type no
// longer fits its property stops the synchronization.
func (p *Persistor) addColumns(ctx context.Context, migrator database.Migrator, table string, cols []columnSpec, notify func(string)) error {
	existing, err := migrator.Columns(ctx, table)
	if err != nil {
		return err
	}
	var added []database.ColumnDef
	var announced []string
	for _, c := range cols {
		info, ok := existing[c.def.Name]
		if !ok {
			added = append(added, c.def)
			if c.prop != nil && c.prop.Type != model.TypeArray && c.prop.Type != model.TypeRefArray {
				announced = append(announced, c.def.Name)
			}
			continue
		}
		if c.prop != nil && !compatible(c.def.Kind, info.Type) {
			return fmt.Errorf("%w: Changing the type of %s on %s, changing types for the fields is not allowed, please use scripts to make these changes",
				ErrTypeDrift, c.prop.Name, table)
		}
	}
	if len(added) == 0 {
		return nil
	}
	if notify != nil && len(announced) > 0 {
		notify("Following fields are being added to " + table + " table: \n " + strings.Join(announced, ","))
	}
	if err := migrator.AddColumns(ctx, table, added); err != nil {
		return err
	}
	for range added {
		p.schemaChange(table, "add_column")
	}
	p.debug("sync", "addColumns", map[string]interface{}{"table": table, "columns": len(added)})
	return nil
}

// addComments documents every column of the table. Only comments that
// changed are written and failures are logged, never returned.
func (p *Persistor) addComments(ctx context.Context, migrator database.Migrator, root *model.Template, table string, cols []columnSpec) {
	existing, err := migrator.Columns(ctx, table)
	if err != nil {
		p.logger.Warn("sync.addComments", err, logFields("sync", "addComments", map[string]interface{}{"table": table}))
		return
	}
	byName := map[string]columnSpec{}
	for _, c := range cols {
		byName[c.def.Name] = c
	}

	for _, name := range sortedColumnNames(existing) {
		var comment string
		spec, known := byName[name]
		switch {
		case name == "__version__":
			continue
		case name == "_id":
			comment = "primary key"
		case name == "_template":
			comment = templateNames(root)
		case !known:
			p.logger.Info("sync.discoverColumns", nil, logFields("sync", "discoverColumns", map[string]interface{}{
				"message": "Extra column " + name + " on " + table,
			}))
			comment = "now obsolete"
		case spec.target != nil:
			comment = "foreign key for " + spec.target.Table
			if desc := describeProperty(root, spec.prop); desc != "" {
				comment += ", " + desc
			}
		default:
			comment = describeProperty(root, spec.prop)
		}
		if comment == "" || comment == existing[name].Comment {
			continue
		}
		if err := migrator.CommentOnColumn(ctx, table, name, comment); err != nil {
			p.logger.Warn("sync.commentOn", err, logFields("sync", "commentOn", map[string]interface{}{"table": table, "column": name}))
			continue
		}
		p.schemaChange(table, "comment")
	}
}

func sortedColumnNames(cols map[string]database.ColumnInfo) []string {
	names := make([]string, 0, len(cols))
	for name := range cols {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// templateNames lists the templates that may own a row, as "values: A, B".
func templateNames(root *model.Template) string {
	var names []string
	for _, t := range root.Descendants() {
		names = append(names, t.Name)
	}
	return "values: " + strings.Join(names, ", ")
}

// describeProperty builds the column comment of prop from its declared
// comment, its sensitivity and the values allowed anywhere in the hierarchy.
func describeProperty(root *model.Template, prop *model.Property) string {
	if prop == nil {
		return ""
	}
	var comment string
	if prop.Comment != "" {
		comment = prop.Comment + "; "
	}
	if prop.SensitiveData {
		comment += ";;sensitiveData;;"
	}

	seen := map[string]bool{}
	var values []string
	for _, t := range root.Descendants() {
		declared, ok := t.Property(prop.Name)
		if !ok {
			continue
		}
		for _, v := range declared.Values {
			if !seen[v] {
				seen[v] = true
				values = append(values, v)
			}
		}
	}
	if len(values) > 0 {
		comment += "values: " + strings.Join(values, ", ")
	}
	return comment
}

// SyncAllTables synchronizes the table of every stored template hierarchy.
func (p *Persistor) SyncAllTables(ctx context.Context) error {
	roots := map[string]*model.Template{}
	var order []*model.Template
	for _, t := range p.registry.Templates() {
		if t.Schema == nil || notPersistent.MatchString(t.Schema.DocumentOf) || t.Subset() != nil {
			continue
		}
		root := t.Root()
		if !root.HasTable() || !p.dbs.IsRelational(root.Table) {
			continue
		}
		if _, ok := roots[root.Name]; ok {
			continue
		}
		roots[root.Name] = root
		order = append(order, root)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.concurrency())
	for _, root := range order {
		g.Go(func() error {
			return p.SynchronizeTable(gctx, root, nil, false)
		})
	}
	return g.Wait()
}

// DropTable drops the table or collection of tmpl's hierarchy.
func (p *Persistor) DropTable(ctx context.Context, tmpl *model.Template) error {
	root := tmpl.Root()
	h, err := p.handleFor(root)
	if err != nil {
		return p.logFailure("api", "dropKnexTable", err, map[string]interface{}{"template": root.Name})
	}
	if h.IsDocumentStore() {
		err = h.Docs.DropCollection(ctx, database.Dealias(root.Collection))
	} else {
		err = h.SQL.Schema().DropTable(ctx, tableName(root))
	}
	if err != nil {
		return p.logFailure("api", "dropKnexTable", err, map[string]interface{}{"template": root.Name})
	}
	p.syncMu.Lock()
	delete(p.synced, root.Name)
	p.syncMu.Unlock()
	p.schemaChange(tableName(root), "drop_table")
	return nil
}
