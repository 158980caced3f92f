// Package adapters provide database adapter implementations for the PostgreSQL circulation engine.
//
// This package implements the adapter pattern to support multiple PostgreSQL database libraries:
// pgx.Pool, sql.DB, and sqlx.DB. All adapters provide equivalent functionality through
// a common DBAdapter interface, including READ COMMITTED transactions, so the engine works
// with any supported database connection type.
//
// Only the pgx adapter supports a replica pool. It serves plain queries from the replica when
// the context asks for eventual consistency; transactions always run on the primary.
package adapters
