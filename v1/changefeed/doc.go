// Package changefeed publishes the change tracking records of committed
// persistor transactions to Kafka or RabbitMQ.
//
// Every changed object becomes one JSON message:
//
//	{
//	  "source": "billing",
//	  "template": "Order",
//	  "table": "orders",
//	  "primaryKey": "65f1c0...",
//	  "action": "update",
//	  "properties": [{"name": "total", "originalValue": 30, "newValue": 45, "columnName": "total"}],
//	  "committedAt": "2024-03-01T10:00:00Z"
//	}
//
// Kafka messages are keyed by "<template>/<primary key>", so the changes of
// one object arrive in order. RabbitMQ messages are routed with
// "<RoutingKey>.<template>" on a topic exchange.
//
// A Feed is a persistor.ChangePublisher:
//
//	feed, err := changefeed.New(changefeed.Config{
//		Transport: changefeed.TransportKafka,
//		Source:    "billing",
//		Kafka:     changefeed.KafkaConfig{Brokers: []string{"kafka:9092"}, Topic: "changes"},
//	})
//	if err != nil {
//		return err
//	}
//	defer feed.Close()
//
//	p.WithPublisher(feed)
package changefeed
