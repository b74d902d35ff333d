package persistor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/Aleph-Alpha/persistor/v1/database"
	"github.com/Aleph-Alpha/persistor/v1/database/dbtest"
	"github.com/Aleph-Alpha/persistor/v1/model"
)

// placeOrder commits a new order for Ann with two items.
func placeOrder(t *testing.T, r *relational) *model.Object {
	t.Helper()

	customer := model.NewObject(r.customer).Set("name", "Ann").Set("status", "open")
	order := model.NewObject(r.order).
		Set("total", 30.0).
		Set("placed", time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)).
		Set("customer", customer)
	order.Append("items",
		model.NewObject(r.item).Set("sku", "A").Set("qty", 1.0),
		model.NewObject(r.item).Set("sku", "B").Set("qty", 2.0),
	)

	txn := NewTransaction()
	r.p.SetDirty(order, txn)
	require.NoError(t, r.p.Commit(context.Background(), txn, CommitOptions{}))
	return order
}

func skus(objs []*model.Object) []string {
	var out []string
	for _, o := range objs {
		out = append(out, o.String("sku"))
	}
	return out
}

func TestCommitWritesReachableObjects(t *testing.T) {
	r := newRelational(t, shopOptions{})
	order := placeOrder(t, r)

	require.NotEmpty(t, order.ID)
	assert.Equal(t, int64(1), order.Version)
	assert.False(t, order.IsDirty())

	customer := order.Ref("customer")
	require.NotEmpty(t, customer.ID)
	assert.Equal(t, int64(1), customer.Version)

	rows := r.db.Rows("orders")
	require.Len(t, rows, 1)
	assert.Equal(t, customer.ID, rows[0]["customer_id"])
	assert.Equal(t, "Order", rows[0]["_template"])
	assert.Equal(t, int64(1), rows[0]["__version__"])

	items := r.db.Rows("order_item")
	require.Len(t, items, 2)
	for _, row := range items {
		assert.Equal(t, order.ID, row["order_id"])
	}
	for _, item := range order.Refs("items") {
		assert.Same(t, order, item.Ref("order"))
	}
}

func TestFetchByIDCascades(t *testing.T) {
	r := newRelational(t, shopOptions{})
	order := placeOrder(t, r)
	ctx := context.Background()

	loaded, err := r.p.FetchByID(ctx, r.order, order.ID, FetchOptions{
		Fetch: model.Cascade{"customer": model.FetchAll(), "items": model.FetchAll()},
	})
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.NotSame(t, order, loaded)

	assert.Equal(t, 30.0, loaded.Number("total"))
	assert.True(t, loaded.Time("placed").Equal(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)))
	assert.Equal(t, int64(1), loaded.Version)

	require.NotNil(t, loaded.Ref("customer"))
	assert.Equal(t, "Ann", loaded.Ref("customer").String("name"))
	assert.True(t, loaded.Persistor("customer").IsFetched)

	items := loaded.Refs("items")
	assert.ElementsMatch(t, []string{"A", "B"}, skus(items))
	for _, item := range items {
		assert.Same(t, loaded, item.Ref("order"), "identity map shares the parent")
	}

	// the customer was joined, not queried on its own
	selects := r.db.StatementsWithPrefix("SELECT")
	for _, s := range selects {
		assert.NotContains(t, s, `FROM "customer"`)
	}
}

func TestFetchWithoutCascadeKeepsForeignKey(t *testing.T) {
	r := newRelational(t, shopOptions{})
	order := placeOrder(t, r)

	loaded, err := r.p.FetchByID(context.Background(), r.order, order.ID, FetchOptions{})
	require.NoError(t, err)

	assert.Nil(t, loaded.Ref("customer"))
	state := loaded.Persistor("customer")
	assert.False(t, state.IsFetched)
	assert.Equal(t, order.Ref("customer").ID, state.ID)
	assert.Empty(t, loaded.Refs("items"))

	require.NoError(t, r.p.FetchProperty(context.Background(), loaded, "customer", nil))
	require.NotNil(t, loaded.Ref("customer"))
	assert.Equal(t, "Ann", loaded.Ref("customer").String("name"))

	require.NoError(t, r.p.FetchProperty(context.Background(), loaded, "items", nil))
	assert.ElementsMatch(t, []string{"A", "B"}, skus(loaded.Refs("items")))
}

func TestFetchByIDMissing(t *testing.T) {
	r := newRelational(t, shopOptions{})
	obj, err := r.p.FetchByID(context.Background(), r.order, "nope", FetchOptions{})
	require.NoError(t, err)
	assert.Nil(t, obj)
}

func TestVersionIncreasesWithEverySave(t *testing.T) {
	r := newRelational(t, shopOptions{})
	order := placeOrder(t, r)
	ctx := context.Background()

	for want := int64(2); want <= 4; want++ {
		order.Set("total", float64(want)*10)
		require.NoError(t, r.p.Save(ctx, order, nil))
		assert.Equal(t, want, order.Version)
		assert.Equal(t, want, r.db.Rows("orders")[0]["__version__"])
	}
	assert.Equal(t, 40.0, r.db.Rows("orders")[0]["total"])
}

func TestUpdateConflict(t *testing.T) {
	r := newRelational(t, shopOptions{})
	order := placeOrder(t, r)
	ctx := context.Background()

	stale, err := r.p.FetchByID(ctx, r.order, order.ID, FetchOptions{})
	require.NoError(t, err)
	fresh, err := r.p.FetchByID(ctx, r.order, order.ID, FetchOptions{})
	require.NoError(t, err)

	fresh.Set("total", 1.0)
	require.NoError(t, r.p.Save(ctx, fresh, nil))

	t.Run("without handler", func(t *testing.T) {
		stale.Set("total", 2.0)
		txn := NewTransaction()
		r.p.SetDirty(stale, txn)
		err := r.p.Commit(ctx, txn, CommitOptions{})

		require.ErrorIs(t, err, ErrUpdateConflict)
		assert.True(t, IsRetryable(err))
		assert.Equal(t, int64(1), stale.Version)
		assert.Equal(t, 1.0, r.db.Rows("orders")[0]["total"])
		assert.Contains(t, r.db.Statements(), "ROLLBACK")
	})

	t.Run("with handler", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		collector := NewMockCollector(ctrl)
		collector.EXPECT().IncrementConflicts("Order").Times(1)
		collector.EXPECT().RecordSchemaChange(gomock.Any(), gomock.Any()).AnyTimes()
		collector.EXPECT().ObserveIdentityMap(gomock.Any(), gomock.Any()).AnyTimes()
		r.p.WithCollector(collector)
		defer r.p.WithCollector(nil)

		var conflicted []*model.Object
		txn := NewTransaction()
		txn.OnUpdateConflict = func(obj *model.Object) { conflicted = append(conflicted, obj) }
		r.p.SetDirty(stale, txn)

		err := r.p.Commit(ctx, txn, CommitOptions{})
		require.ErrorIs(t, err, ErrUpdateConflict)
		assert.True(t, txn.UpdateConflict())
		require.Len(t, conflicted, 1)
		assert.Same(t, stale, conflicted[0])
	})
}

func TestDeadlockBecomesUpdateConflict(t *testing.T) {
	r := newRelational(t, shopOptions{})
	order := placeOrder(t, r)

	r.db.Inject(func(op dbtest.Op, table string) error {
		if op == dbtest.OpUpdate && table == "orders" {
			return database.ErrDeadlock
		}
		return nil
	})
	defer r.db.Inject(nil)

	order.Set("total", 99.0)
	txn := NewTransaction()
	r.p.SetDirty(order, txn)
	err := r.p.Commit(context.Background(), txn, CommitOptions{})

	require.ErrorIs(t, err, ErrUpdateConflict)
	assert.ErrorIs(t, err, database.ErrDeadlock)
	assert.Equal(t, 30.0, r.db.Rows("orders")[0]["total"])
}

func TestCommitRollsBackEveryWrite(t *testing.T) {
	r := newRelational(t, shopOptions{})
	require.NoError(t, r.p.SyncAllTables(context.Background()))

	boom := errors.New("disk full")
	r.db.Inject(func(op dbtest.Op, table string) error {
		if op == dbtest.OpInsert && table == "order_item" {
			return boom
		}
		return nil
	})
	defer r.db.Inject(nil)

	order := model.NewObject(r.order).Set("total", 1.0)
	order.Append("items", model.NewObject(r.item).Set("sku", "X"))
	txn := NewTransaction()
	r.p.SetDirty(order, txn)

	err := r.p.Commit(context.Background(), txn, CommitOptions{})
	require.ErrorIs(t, err, boom)
	assert.Empty(t, r.db.Rows("orders"))
	assert.Empty(t, r.db.Rows("order_item"))
}

func TestRolledBackCommitCanBeRetried(t *testing.T) {
	r := newRelational(t, shopOptions{})
	order := placeOrder(t, r)
	ctx := context.Background()

	boom := errors.New("deadlock victim")
	r.db.Inject(func(op dbtest.Op, table string) error {
		if op == dbtest.OpInsert && table == "order_item" {
			return boom
		}
		return nil
	})
	defer r.db.Inject(nil)

	order.Set("total", 45.0)
	item := model.NewObject(r.item).Set("sku", "C").Set("qty", 3.0)
	order.Append("items", item)
	txn := NewTransaction()
	r.p.SetDirty(order, txn)

	require.ErrorIs(t, r.p.Commit(ctx, txn, CommitOptions{}), boom)
	assert.Equal(t, int64(1), order.Version)
	assert.Equal(t, int64(0), item.Version)
	assert.Equal(t, int64(1), r.db.Rows("orders")[0]["__version__"])
	assert.Len(t, r.db.Rows("order_item"), 2)
	assert.True(t, order.IsDirty())
	assert.Contains(t, txn.Dirty(), order)

	r.db.Inject(nil)
	require.NoError(t, r.p.Commit(ctx, txn, CommitOptions{}))
	assert.Equal(t, int64(2), order.Version)
	assert.Equal(t, int64(2), r.db.Rows("orders")[0]["__version__"])
	assert.Equal(t, 45.0, r.db.Rows("orders")[0]["total"])
	assert.Equal(t, int64(1), item.Version)
	assert.Len(t, r.db.Rows("order_item"), 3)
	assert.Empty(t, txn.Dirty())
}

func TestPrunesOrphanedChildren(t *testing.T) {
	r := newRelational(t, shopOptions{})
	order := placeOrder(t, r)
	ctx := context.Background()

	loaded, err := r.p.FetchByID(ctx, r.order, order.ID, FetchOptions{Fetch: model.Cascade{"items": model.FetchAll()}})
	require.NoError(t, err)

	var kept []*model.Object
	for _, item := range loaded.Refs("items") {
		if item.String("sku") == "A" {
			kept = append(kept, item)
		}
	}
	loaded.Set("items", kept)
	require.NoError(t, r.p.Save(ctx, loaded, nil))

	rows := r.db.Rows("order_item")
	require.Len(t, rows, 1)
	assert.Equal(t, "A", rows[0]["sku"])
}

func TestUnfetchedChildrenAreNeverPruned(t *testing.T) {
	r := newRelational(t, shopOptions{})
	order := placeOrder(t, r)
	ctx := context.Background()

	loaded, err := r.p.FetchByID(ctx, r.order, order.ID, FetchOptions{})
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		loaded.Set("total", float64(i))
		require.NoError(t, r.p.Save(ctx, loaded, nil))
	}
	assert.Len(t, r.db.Rows("order_item"), 2)
}

func TestSubtypesShareTheRootTable(t *testing.T) {
	r := newRelational(t, shopOptions{})
	ctx := context.Background()

	txn := NewTransaction()
	r.p.SetDirty(model.NewObject(r.customer).Set("name", "Ann"), txn)
	r.p.SetDirty(model.NewObject(r.vip).Set("name", "Bob").Set("discount", 0.1), txn)
	require.NoError(t, r.p.Commit(ctx, txn, CommitOptions{}))

	all, err := r.p.FetchByQuery(ctx, r.customer, Query{}, FetchOptions{Sort: model.Sort{model.Asc("name")}})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Customer", all[0].Template().Name)
	assert.Equal(t, "VipCustomer", all[1].Template().Name)
	assert.Equal(t, 0.1, all[1].Number("discount"))

	vips, err := r.p.FetchByQuery(ctx, r.vip, Query{}, FetchOptions{})
	require.NoError(t, err)
	require.Len(t, vips, 1)
	assert.Equal(t, "Bob", vips[0].String("name"))

	n, err := r.p.CountByQuery(ctx, r.customer, Query{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	n, err = r.p.CountByQuery(ctx, r.vip, Query{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestFetchByQueryFiltersSortsAndPages(t *testing.T) {
	r := newRelational(t, shopOptions{})
	ctx := context.Background()

	txn := NewTransaction()
	for _, name := range []string{"Dan", "Cid", "Ann", "Bob"} {
		r.p.SetDirty(model.NewObject(r.customer).Set("name", name).Set("status", "open"), txn)
	}
	r.p.SetDirty(model.NewObject(r.customer).Set("name", "Eve").Set("status", "closed"), txn)
	require.NoError(t, r.p.Commit(ctx, txn, CommitOptions{}))

	tests := []struct {
		name  string
		query Query
		opts  FetchOptions
		want  []string
	}{
		{
			name:  "filter and sort",
			query: Where(model.Filter{"status": "open"}),
			opts:  FetchOptions{Sort: model.Sort{model.Asc("name")}},
			want:  []string{"Ann", "Bob", "Cid", "Dan"},
		},
		{
			name:  "descending page",
			query: Where(model.Filter{"status": "open"}),
			opts:  FetchOptions{Sort: model.Sort{model.Desc("name")}, Limit: 2, Offset: 1},
			want:  []string{"Cid", "Bob"},
		},
		{
			name:  "operators",
			query: Where(model.Filter{"name": model.Filter{"$in": []interface{}{"Eve", "Ann"}}}),
			opts:  FetchOptions{Sort: model.Sort{model.Asc("name")}},
			want:  []string{"Ann", "Eve"},
		},
		{
			name: "chained condition",
			query: Query{Chain: func(table string) database.Condition {
				return database.Compare(database.Col(table, "name"), database.OpGt, "Cid")
			}},
			opts: FetchOptions{Sort: model.Sort{model.Asc("name")}},
			want: []string{"Dan", "Eve"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			objs, err := r.p.FetchByQuery(ctx, r.customer, tt.query, tt.opts)
			require.NoError(t, err)
			var names []string
			for _, o := range objs {
				names = append(names, o.String("name"))
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestProjectionReadsRequestedColumns(t *testing.T) {
	r := newRelational(t, shopOptions{})
	ctx := context.Background()
	require.NoError(t, r.p.Save(ctx, model.NewObject(r.customer).Set("name", "Ann").Set("email", "ann@example.com"), nil))

	objs, err := r.p.FetchByQuery(ctx, r.customer, Query{}, FetchOptions{
		Projection: map[string][]string{"Customer": {"name"}},
	})
	require.NoError(t, err)
	require.Len(t, objs, 1)
	assert.Equal(t, "Ann", objs[0].String("name"))
	assert.False(t, objs[0].Has("email"))
}

func TestDeleteAndDeleteByQuery(t *testing.T) {
	r := newRelational(t, shopOptions{})
	order := placeOrder(t, r)
	ctx := context.Background()

	n, err := r.p.DeleteByQuery(ctx, r.item, Where(model.Filter{"sku": "A"}), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Len(t, r.db.Rows("order_item"), 1)

	txn := NewTransaction()
	_, err = r.p.DeleteByID(ctx, r.item, order.Refs("items")[1].ID, txn)
	require.NoError(t, err)
	r.p.SetAsDeleted(order, txn)
	require.NoError(t, r.p.Commit(ctx, txn, CommitOptions{}))

	assert.Empty(t, r.db.Rows("order_item"))
	assert.Empty(t, r.db.Rows("orders"))
	assert.True(t, order.IsDeleted())

	customer := order.Ref("customer")
	require.NoError(t, r.p.Delete(ctx, customer, nil))
	assert.Empty(t, r.db.Rows("customer"))
}

func TestTouchRefreshAndStaleness(t *testing.T) {
	r := newRelational(t, shopOptions{})
	order := placeOrder(t, r)
	ctx := context.Background()

	other, err := r.p.FetchByID(ctx, r.order, order.ID, FetchOptions{})
	require.NoError(t, err)

	require.NoError(t, r.p.Touch(ctx, order, nil))
	assert.Equal(t, int64(2), order.Version)
	assert.Equal(t, int64(2), r.db.Rows("orders")[0]["__version__"])

	stale, err := r.p.IsStale(ctx, order)
	require.NoError(t, err)
	assert.False(t, stale)
	stale, err = r.p.IsStale(ctx, other)
	require.NoError(t, err)
	assert.True(t, stale)

	order.Set("total", 75.0)
	require.NoError(t, r.p.Save(ctx, order, nil))

	require.NoError(t, r.p.Refresh(ctx, other))
	assert.Equal(t, int64(3), other.Version)
	assert.Equal(t, 75.0, other.Number("total"))

	_, err = r.p.DeleteByID(ctx, r.order, order.ID, nil)
	require.NoError(t, err)
	stale, err = r.p.IsStale(ctx, other)
	require.NoError(t, err)
	assert.True(t, stale, "a deleted object is stale")
	assert.ErrorIs(t, r.p.Refresh(ctx, other), database.ErrRecordNotFound)
}

func TestTouchTopInTransaction(t *testing.T) {
	r := newRelational(t, shopOptions{})
	order := placeOrder(t, r)

	txn := NewTransaction()
	require.NoError(t, r.p.Touch(context.Background(), order, txn))
	assert.Equal(t, int64(1), order.Version)
	require.NoError(t, r.p.Commit(context.Background(), txn, CommitOptions{}))
	assert.Equal(t, int64(2), order.Version)
}

func TestEmbeddedObjectsSurviveCycles(t *testing.T) {
	r := newRelational(t, shopOptions{})
	ctx := context.Background()

	first := model.NewObject(r.note).Set("text", "first")
	second := model.NewObject(r.note).Set("text", "second").Set("next", first)
	first.Set("next", second)
	order := model.NewObject(r.order).Set("total", 5.0).Set("note", first)
	require.NoError(t, r.p.Save(ctx, order, nil))

	loaded, err := r.p.FetchByID(ctx, r.order, order.ID, FetchOptions{})
	require.NoError(t, err)
	note := loaded.Ref("note")
	require.NotNil(t, note)
	assert.Equal(t, "first", note.String("text"))
	require.NotNil(t, note.Ref("next"))
	assert.Equal(t, "second", note.Ref("next").String("text"))
	assert.Nil(t, note.Ref("next").Ref("next"))
}

func TestChangeTracking(t *testing.T) {
	r := newRelational(t, shopOptions{})
	order := placeOrder(t, r)
	ctx := context.Background()

	ctrl := gomock.NewController(t)
	publisher := NewMockChangePublisher(ctrl)
	r.p.WithPublisher(publisher)

	loaded, err := r.p.FetchByID(ctx, r.order, order.ID, FetchOptions{})
	require.NoError(t, err)
	loaded.Set("total", 45.0)

	var seen ChangeTracking
	txn := NewTransaction()
	txn.PostSave = func(_ context.Context, _ *Transaction, changes ChangeTracking) error {
		seen = changes
		return nil
	}
	r.p.SetDirty(loaded, txn)

	publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, changes ChangeTracking) error {
			assert.Equal(t, 1, changes.Len())
			return nil
		})
	require.NoError(t, r.p.Commit(ctx, txn, CommitOptions{NotifyChanges: true}))

	require.Len(t, seen["Order"], 1)
	rec := seen["Order"][0]
	assert.Equal(t, "orders", rec.Table)
	assert.Equal(t, order.ID, rec.PrimaryKey)
	assert.Equal(t, ActionUpdate, rec.Action)
	assert.Equal(t, []PropertyChanges{
		{Name: "total", OriginalValue: 30.0, NewValue: 45.0, ColumnName: "total"},
	}, rec.Properties)
	assert.Equal(t, seen, txn.Changes())

	// templates without change tracking are not reported
	assert.NotContains(t, seen, "OrderItem")
}

func TestChangeTrackingReportsForeignKeys(t *testing.T) {
	r := newRelational(t, shopOptions{})
	order := placeOrder(t, r)
	ctx := context.Background()

	loaded, err := r.p.FetchByID(ctx, r.order, order.ID, FetchOptions{})
	require.NoError(t, err)
	bob := model.NewObject(r.customer).Set("name", "Bob")
	loaded.Set("customer", bob)

	txn := NewTransaction()
	r.p.SetDirty(loaded, txn)
	require.NoError(t, r.p.Commit(ctx, txn, CommitOptions{NotifyChanges: true}))

	changes := txn.Changes()["Order"]
	require.Len(t, changes, 1)
	assert.Equal(t, []PropertyChanges{{
		Name:          "customer",
		OriginalValue: order.Ref("customer").ID,
		NewValue:      bob.ID,
		ColumnName:    "customer_id",
	}}, changes[0].Properties)
	assert.Len(t, r.db.Rows("customer"), 2)
}

func TestInsertsAreReportedWithoutProperties(t *testing.T) {
	r := newRelational(t, shopOptions{})
	txn := NewTransaction()
	order := model.NewObject(r.order).Set("total", 1.0)
	r.p.SetDirty(order, txn)
	require.NoError(t, r.p.Commit(context.Background(), txn, CommitOptions{NotifyChanges: true}))

	changes := txn.Changes()["Order"]
	require.Len(t, changes, 1)
	assert.Equal(t, ActionInsert, changes[0].Action)
	assert.Empty(t, changes[0].Properties)
}

func TestSessionDefaultTransaction(t *testing.T) {
	r := newRelational(t, shopOptions{})
	ctx := context.Background()
	session := r.p.NewSession()

	ann := model.NewObject(r.customer).Set("name", "Ann")
	session.SetDirty(ann, nil)
	assert.Len(t, session.Current().Dirty(), 1)
	require.NoError(t, session.End(ctx))
	assert.Len(t, r.db.Rows("customer"), 1)

	txn := session.BeginTransaction()
	assert.NotSame(t, txn, session.Current())
	session.SetAsDeleted(ann, txn)
	assert.Empty(t, session.Current().Deleted())
	require.NoError(t, session.Commit(ctx, txn, CommitOptions{}))
	assert.Empty(t, r.db.Rows("customer"))

	hooked := false
	session.Begin().PostSave = func(context.Context, *Transaction, ChangeTracking) error {
		hooked = true
		return nil
	}
	session.SetDirty(model.NewObject(r.customer).Set("name", "Bob"), nil)
	require.NoError(t, session.SaveAll(ctx))
	assert.True(t, hooked)
	assert.Len(t, r.db.Rows("customer"), 1)
}

func TestPreSaveFailureAbortsCommit(t *testing.T) {
	r := newRelational(t, shopOptions{})
	boom := errors.New("not today")

	txn := NewTransaction()
	txn.PreSave = func(context.Context, *Transaction) error { return boom }
	r.p.SetDirty(model.NewObject(r.customer).Set("name", "Ann"), txn)

	require.ErrorIs(t, r.p.Commit(context.Background(), txn, CommitOptions{}), boom)
	assert.Empty(t, r.db.Rows("customer"))
}

func TestTableAndKeyNames(t *testing.T) {
	r := newRelational(t, shopOptions{})

	assert.Equal(t, "orders", r.p.GetTableName(r.order))
	assert.Equal(t, "customer", r.p.GetTableName(r.vip))
	assert.Equal(t, "customer_id", r.p.GetParentKey(r.order, "customer"))
	assert.Equal(t, "order_id", r.p.GetChildKey(r.order, "items"))
	assert.Equal(t, "", r.p.GetParentKey(r.order, "note"))
}

func TestFailuresAreLogged(t *testing.T) {
	ctrl := gomock.NewController(t)
	logger := NewMockLogger(ctrl)
	logger.EXPECT().Debug(gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes()
	logger.EXPECT().Error("api.getFromPersistWithId", gomock.Any(), gomock.Any()).
		Do(func(_ string, err error, _ ...map[string]interface{}) {
			assert.ErrorIs(t, err, ErrConfiguration)
		})

	stray := model.NewTemplate("Stray").Prop("x", model.TypeString)
	reg := model.NewRegistry()
	require.NoError(t, reg.Register(stray))
	require.NoError(t, reg.Prepare())

	dbs := database.NewRegistry()
	dbs.Set(database.Handle{Type: database.TypePostgres, SQL: dbtest.NewMemDB().Client()})
	p := New(reg, dbs, Config{}).WithLogger(logger)

	_, err := p.FetchByID(context.Background(), stray, "1", FetchOptions{})
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestNoLazySync(t *testing.T) {
	s := newShop(t, shopOptions{})
	db := dbtest.NewMemDB()
	dbs := database.NewRegistry()
	dbs.Set(database.Handle{Type: database.TypePostgres, SQL: db.Client()})
	p := New(s.reg, dbs, Config{NoLazySync: true})

	_, err := p.FetchByID(context.Background(), s.customer, "1", FetchOptions{})
	require.Error(t, err)
	assert.Empty(t, db.StatementsWithPrefix("CREATE"))
}
