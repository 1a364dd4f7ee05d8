// Package servicebus provides reliable publish/subscribe messaging over a transactional
// queue transport.
//
// Works both as a library for embedding in your application AND as a standalone service
// with a REST API (cmd/servicebus-server).
//
// # Features
//
//   - Publisher: sends one message to every destination queue whose name matches a
//     wildcard pattern (`*` any run of characters, `?` exactly one, case-insensitive)
//   - Configurable behavior when nothing matches: fail, ignore, or route to an error queue
//   - Subscriber: at-least-once consumption, one message at a time, in queue order
//   - Failure policy: tolerate N consecutive failures, then dead-letter, pause or stop
//   - Transactional sends: none, self-contained, or enlisted in an ambient *sql.Tx
//   - Pluggable transports: adapters/memory (in-process) and adapters/relica (MySQL,
//     PostgreSQL, SQLite via the Relica query builder)
//   - Options Pattern with validated settings
//   - Pluggable Logger, with a zap adapter in the logging package
//   - Embedded Migrations for the SQL transport
//
// # Quick Start
//
// Apply the migrations and build a transport:
//
//	import (
//	    "database/sql"
//	    "github.com/coregx/servicebus"
//	    "github.com/coregx/servicebus/adapters/relica"
//	    _ "github.com/mattn/go-sqlite3"
//	)
//
//	db, _ := sql.Open("sqlite3", "servicebus.db?_busy_timeout=5000")
//	if err := servicebus.ApplyMigrations(ctx, db, "sqlite3", ""); err != nil {
//	    log.Fatal(err)
//	}
//
//	transport, _ := relica.NewTransport(db, "sqlite3")
//
// Publish to every matching queue:
//
//	publisher, _ := servicebus.NewPublisher[OrderPlaced](ctx, transport, "orders",
//	    servicebus.WithExtraQueues("orders.audit", "billing"),
//	    servicebus.WithPublisherAutoCreateLocalQueues(),
//	)
//
//	err := publisher.SendTo(ctx, order, "order.placed", "orders*")
//
// Consume with retries and a dead-letter queue:
//
//	subscriber, _ := servicebus.NewSubscriber(ctx, transport, "orders",
//	    func(ctx context.Context, o OrderPlaced) error {
//	        return billing.Charge(ctx, o)
//	    },
//	    servicebus.WithMaxAttempts(3),
//	    servicebus.WithErrorQueue("orders.failed"),
//	)
//
//	if err := subscriber.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer subscriber.Stop()
//
// # Subscriber lifecycle
//
//	Stopped --Start--> Starting --> Started --Stop--> Stopping --> Stopped
//	                                  |  ^
//	              failure + pause     v  | pause elapsed or Start
//	                                Paused
//
// A handler error (or panic) counts as a failure of the current message. The message is
// presented again until the failure count reaches the configured attempts; then the
// subscriber dead-letters it (error queue), pauses (pause on error) or stops.
//
// # Queue paths
//
// Bare names are private local queues: "orders" is `.\private$\orders`. Paths naming
// another machine (`server\private$\orders`, `orders@server`) are used as given and are
// never created automatically.
//
// # Error Handling
//
// All errors are *Error values carrying a code:
//
//	if servicebus.HasCode(err, servicebus.ErrCodePatternMismatch) {
//	    // no destination matched
//	}
//
// # Architecture
//
// The library is organized into layers:
//
//   - Root package: Publisher, Subscriber, SubscriptionManager, provisioning, settings
//   - model/: Queue, Message and Permission records
//   - retry/: Failure policy and backoff schedule
//   - adapters/: Transport implementations (memory, relica)
//   - logging/: zap adapter for Logger
//   - cmd/servicebus-server/: Standalone HTTP server
package servicebus
