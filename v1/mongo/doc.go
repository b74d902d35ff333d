// Package mongo connects the persistor to MongoDB through the official driver.
//
// Store implements database.DocumentStore. Results are normalized to plain
// Go values: documents become map[string]interface{}, arrays []interface{},
// ObjectIDs their hex string and int32 widens to int64.
package mongo
