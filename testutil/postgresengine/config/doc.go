// Package config provides PostgreSQL database configuration for circulation engine testing.
//
// This package contains factory functions for creating database connections
// using the engine's supported PostgreSQL adapters (pgx.Pool, sql.DB, sqlx.DB)
// with pre-configured test database DSNs, for a single node and for a primary/replica pair.
package config
