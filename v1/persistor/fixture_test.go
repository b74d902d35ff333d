package persistor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Aleph-Alpha/persistor/v1/database"
	"github.com/Aleph-Alpha/persistor/v1/database/dbtest"
	"github.com/Aleph-Alpha/persistor/v1/model"
)

type shopOptions struct {
	customerIndexes []model.Index
	withPhone       bool
}

// shop is the relational test model: customers (with a VIP subtype), their
// orders, the order items and free-form notes stored as JSON.
type shop struct {
	reg *model.Registry

	customer *model.Template
	vip      *model.Template
	order    *model.Template
	item     *model.Template
	note     *model.Template
}

func newShop(t *testing.T, opts shopOptions) *shop {
	t.Helper()

	customer := model.NewTemplate("Customer").
		Prop("name", model.TypeString, model.Comment("full name")).
		Prop("status", model.TypeString, model.Values("open", "closed")).
		Prop("email", model.TypeString, model.Sensitive())
	if opts.withPhone {
		customer.Prop("phone", model.TypeString)
	}
	vip := customer.Extend("VipCustomer").Prop("discount", model.TypeNumber)
	order := model.NewTemplate("Order").
		Prop("total", model.TypeNumber).
		Prop("placed", model.TypeDate).
		Ref("customer", "Customer").
		RefArray("items", "OrderItem").
		Ref("note", "Note")
	item := model.NewTemplate("OrderItem").
		Prop("sku", model.TypeString).
		Prop("qty", model.TypeNumber).
		Ref("order", "Order")
	note := model.NewTemplate("Note").
		Prop("text", model.TypeString).
		Ref("next", "Note")

	reg := model.NewRegistry()
	require.NoError(t, reg.Register(customer, order, item, note))
	reg.SetSchema(map[string]*model.Entry{
		"Customer": {Table: "customer", Indexes: opts.customerIndexes},
		"Order": {
			Table:                "orders",
			Parents:              map[string]*model.ParentRef{"customer": {ID: "customer_id"}},
			Children:             map[string]*model.ChildRef{"items": {ID: "order_id", PruneOrphans: true}},
			EnableChangeTracking: true,
		},
		"OrderItem": {
			Table:   "order_item",
			Parents: map[string]*model.ParentRef{"order": {ID: "order_id"}},
		},
	})
	require.NoError(t, reg.Prepare())

	return &shop{reg: reg, customer: customer, vip: vip, order: order, item: item, note: note}
}

type relational struct {
	*shop
	db *dbtest.MemDB
	p  *Persistor
}

func newRelational(t *testing.T, opts shopOptions) *relational {
	t.Helper()
	s := newShop(t, opts)
	db := dbtest.NewMemDB()
	return &relational{shop: s, db: db, p: persistorOver(s, db)}
}

// persistorOver builds a persistor with its own sync state over db.
func persistorOver(s *shop, db *dbtest.MemDB) *Persistor {
	return persistorWith(s.reg, db.Client())
}

// persistorWith builds a persistor storing the templates of reg through
// client.
func persistorWith(reg *model.Registry, client database.Client) *Persistor {
	dbs := database.NewRegistry()
	dbs.Set(database.Handle{Type: database.TypePostgres, SQL: client})
	return New(reg, dbs, Config{})
}

// billing is the document test model: invoices embedding their lines and
// billing address, each referring to a customer document.
type billing struct {
	reg *model.Registry

	invoice  *model.Template
	line     *model.Template
	address  *model.Template
	customer *model.Template

	store *dbtest.MemStore
	p     *Persistor
}

func newBilling(t *testing.T) *billing {
	t.Helper()

	invoice := model.NewTemplate("Invoice").
		Prop("number", model.TypeString).
		Prop("issued", model.TypeDate).
		Prop("paid", model.TypeBoolean).
		RefArray("lines", "Line").
		Ref("address", "Address").
		Ref("customer", "Client")
	line := model.NewTemplate("Line").
		Prop("sku", model.TypeString).
		Prop("amount", model.TypeNumber)
	address := model.NewTemplate("Address").Prop("city", model.TypeString)
	client := model.NewTemplate("Client").Prop("name", model.TypeString)

	reg := model.NewRegistry()
	require.NoError(t, reg.Register(invoice, line, address, client))
	reg.SetSchema(map[string]*model.Entry{
		"Invoice": {
			DocumentOf: "docs/invoices",
			Parents:    map[string]*model.ParentRef{"customer": {ID: "customer_id"}},
		},
		"Line":    {SubDocumentOf: "docs/invoices"},
		"Address": {SubDocumentOf: "docs/invoices"},
		"Client":  {DocumentOf: "docs/clients"},
	})
	require.NoError(t, reg.Prepare())

	store := dbtest.NewMemStore()
	dbs := database.NewRegistry()
	dbs.Set(database.Handle{Alias: "docs", Type: database.TypeMongo, Docs: store})

	return &billing{
		reg:      reg,
		invoice:  invoice,
		line:     line,
		address:  address,
		customer: client,
		store:    store,
		p:        New(reg, dbs, Config{}),
	}
}
