// Package redis provides the Redis client behind the persistor's schema
// synchronisation lock.
//
// Several processes sharing a database must not alter the same table at the
// same time. Locker implements persistor.SyncLocker with one Redis key per
// table: SET NX with a random token takes the lock, a background refresh
// keeps it alive while the holder works and a compare-and-delete script
// releases it.
//
// # Direct Usage (Without FX)
//
//	client, err := redis.NewClient(redis.Config{Host: "localhost", Port: 6379})
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	p := persistor.New(templates, dbs, persistor.Config{}).
//		WithSyncLocker(redis.NewLocker(client))
//
// # FX Module Integration
//
//	app := fx.New(
//		logger.FXModule,
//		redis.FXModule,
//		persistor.FXModule,
//		fx.Provide(func() redis.Config { return loadRedisConfig() }),
//	)
//
// Setting Config.ClusterAddrs to more than one address connects to a Redis
// Cluster instead of a single server.
package redis
