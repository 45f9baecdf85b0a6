// Package db embeds the database schema.
package db

import _ "embed"

// Schema contains the DDL statements for the fleet, coupon, cart, booking and
// API key tables. Every statement is idempotent.
//
//go:embed migrations/001_schema.sql
var Schema string
