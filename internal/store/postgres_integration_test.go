//go:build postgres_integration

package store

import (
    "context"
    "os"
    "testing"
)

// Runs the shared store tests against a real Postgres:
//
//	DATABASE_URL=postgres://... go test -tags postgres_integration ./internal/store
func TestPostgresConformance(t *testing.T) {
    dsn := os.Getenv("DATABASE_URL")
    if dsn == "" { t.Skip("DATABASE_URL not set; skipping integration test") }
    p, err := OpenPostgres(context.Background(), dsn)
    if err != nil { t.Fatalf("OpenPostgres: %v", err) }
    defer p.Close()
    if err := p.Ping(context.Background()); err != nil { t.Fatalf("Ping: %v", err) }
    if err := p.Migrate(context.Background()); err != nil { t.Fatalf("Migrate: %v", err) }
    if _, _, err := p.ListScenarios(context.Background(), "", 1); err != nil { t.Fatalf("ListScenarios: %v", err) }
}
