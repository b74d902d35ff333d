// Package model describes persistable object graphs: templates, their declared
// properties, the schema entries that map them to tables or collections, and
// the runtime Object instances the persistor materializes and saves.
//
// A Template is declared with the builder methods and registered in a
// Registry. Registry.Prepare resolves every relationship once, classifying each
// property into a closed Kind, so the mappers never re-inspect property types
// per row:
//
//	reg := model.NewRegistry()
//	customer := model.NewTemplate("Customer").Prop("name", model.TypeString)
//	order := model.NewTemplate("Order").
//	    Prop("total", model.TypeNumber).
//	    Ref("customer", "Customer").
//	    RefArray("items", "OrderItem")
//	item := model.NewTemplate("OrderItem").Ref("order", "Order")
//	reg.Register(customer, order, item)
//	reg.SetSchema(map[string]*model.Entry{
//	    "Customer":  {Table: "customer"},
//	    "Order":     {Table: "orders", Parents: map[string]*model.ParentRef{"customer": {ID: "customer_id"}},
//	                 Children: map[string]*model.ChildRef{"items": {ID: "order_id"}}},
//	    "OrderItem": {Table: "order_item", Parents: map[string]*model.ParentRef{"order": {ID: "order_id"}}},
//	})
//	if err := reg.Prepare(); err != nil { ... }
//
// Schema entries may also be loaded from a JSON-with-comments file with
// LoadSchemaFile.
package model
