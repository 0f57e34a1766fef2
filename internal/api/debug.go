package api

import (
    "encoding/json"
    "net/http"
    "runtime"
    "time"

    "dronenav/internal/buildinfo"
)

// DebugJSON reports build info and the effective configuration without
// secrets.
func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
    c := s.Cfg
    _, redisBroker := s.Broker.(*RedisBroker)
    info := map[string]any{
        "build":      buildinfo.Info(),
        "time":       time.Now().UTC().Format(time.RFC3339),
        "goroutines": runtime.NumGoroutine(),
        "config": map[string]any{
            "port":               c.Server.Port,
            "rateRps":            c.Server.RateRPS,
            "rateBurst":          c.Server.RateBurst,
            "databaseDriver":     c.Database.Driver,
            "hasPostgresUrl":     c.Database.Postgres.URL != "",
            "redisBroker":        redisBroker,
            "webhookMaxAttempts": c.Webhooks.MaxAttempts,
            "runLog":             s.RunLog != nil,
            "engine":             c.Engine,
        },
    }
    w.Header().Set("Content-Type", "application/json")
    _ = json.NewEncoder(w).Encode(info)
}
