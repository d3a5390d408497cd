// Package postgres persists viewer settings in PostgreSQL.
//
// Connections go through pgxpool, the schema is managed by tern migrations embedded in the
// binary, and queries are traced into Prometheus.
package postgres
