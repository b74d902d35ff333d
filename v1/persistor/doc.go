// Package persistor stores template object graphs in relational databases
// and document stores behind one API.
//
// Relational templates are flattened into one table per template hierarchy.
// One-to-one references become foreign key columns and one-to-many
// references are resolved through the children's foreign key. Objects
// without a table of their own are stored as JSON in their owner's column.
// Document templates are written as whole documents. Their embedded objects
// share the document's version, and other documents are referenced by id.
//
// Every row and document carries a __version__ counter. Updates are guarded
// by the version an object was loaded with, so a concurrent change surfaces
// as ErrUpdateConflict instead of being overwritten.
//
// Basic Usage:
//
//	p := persistor.New(templates, dbs, persistor.Config{}).WithLogger(log)
//
//	order, err := p.FetchByID(ctx, orderTemplate, id, persistor.FetchOptions{
//		Fetch: model.Cascade{"customer": model.FetchAll(), "items": model.FetchAll()},
//	})
//	if err != nil {
//		return err
//	}
//
//	order.Set("total", 45.0)
//	txn := persistor.NewTransaction()
//	p.SetDirty(order, txn)
//	if err := p.Commit(ctx, txn, persistor.CommitOptions{NotifyChanges: true}); err != nil {
//		if persistor.IsRetryable(err) {
//			// reload and try again
//		}
//		return err
//	}
//
// Schema Synchronization:
//
// Tables are created, extended and commented the first time a template is
// used, or all at once with SyncAllTables. Columns are never dropped or
// retyped; a column whose type no longer fits fails with ErrTypeDrift.
// Declared indexes are diffed against the snapshot kept in the
// index_schema_history table. Set Config.NoLazySync to manage tables
// yourself.
//
// Change Tracking:
//
// Templates whose schema entry enables change tracking remember their
// loaded values. A commit with NotifyChanges reports what changed to the
// transaction's PostSave hook and to the ChangePublisher, if one is set.
//
// FX Integration:
//
//	app := fx.New(
//		logger.FXModule,
//		persistor.FXModule,
//		fx.Provide(loadConfig, buildTemplates),
//	)
package persistor
