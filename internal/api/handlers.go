package api

import (
    "bytes"
    "context"
    "encoding/json"
    "io"
    "mime"
    "net/http"
    "strconv"
    "time"

    "github.com/go-chi/chi/v5"

    "dronenav/internal/geom"
    "dronenav/internal/model"
    "dronenav/internal/opt"
    "dronenav/internal/scenario"
    "dronenav/internal/store"
    "dronenav/internal/webhooks"
)

const maxScenarioBytes = 8 << 20

// CreateScenarioHandler handles POST /v1/scenarios. The body is a JSON,
// YAML or text scenario by Content-Type; ?generate=1 or ?standard=N builds
// one instead.
func (s *Server) CreateScenarioHandler(w http.ResponseWriter, r *http.Request) {
    q := r.URL.Query()
    var (
        sc  model.Scenario
        err error
    )
    switch {
    case q.Get("standard") != "":
        n, _ := strconv.Atoi(q.Get("standard"))
        sc, err = scenario.Standard(n)
    case q.Get("generate") != "":
        sc, err = generateFromQuery(q.Get)
    default:
        sc, err = decodeScenarioBody(r)
    }
    if err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid scenario", err.Error(), r.URL.Path)
        return
    }
    if err := sc.Validate(); err != nil {
        writeProblem(w, http.StatusUnprocessableEntity, "Invalid scenario", err.Error(), r.URL.Path)
        return
    }
    rec, err := s.Store.CreateScenario(r.Context(), q.Get("name"), sc)
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "Create scenario failed", err.Error(), r.URL.Path)
        return
    }
    s.Pub.Emit(r.Context(), webhooks.EventScenarioCreated, map[string]any{"scenarioId": rec.ID, "name": rec.Name})
    writeJSON(w, http.StatusCreated, rec)
}

func generateFromQuery(get func(string) string) (model.Scenario, error) {
    num := func(key string, def int) int {
        if n, err := strconv.Atoi(get(key)); err == nil { return n }
        return def
    }
    dim := func(key string, def float64) float64 {
        if f, err := strconv.ParseFloat(get(key), 64); err == nil { return f }
        return def
    }
    seed, _ := strconv.ParseInt(get("seed"), 10, 64)
    cfg := scenario.GenConfig{
        Name:       get("name"),
        Seed:       seed,
        Vehicles:   num("vehicles", 5),
        Deliveries: num("deliveries", 20),
        Zones:      num("zones", 2),
        Width:      dim("width", 100),
        Height:     dim("height", 100),
    }
    if get("startX") != "" || get("startY") != "" {
        cfg.Start = &geom.Point{X: dim("startX", 0), Y: dim("startY", 0)}
    }
    if v := get("referenceTime"); v != "" {
        t, err := model.ParseTimeOfDay(v)
        if err != nil { return model.Scenario{}, err }
        cfg.ReferenceTime = t
    } else {
        cfg.ReferenceTime = model.Clock(10, 0, 0)
    }
    return scenario.Generate(cfg)
}

func decodeScenarioBody(r *http.Request) (model.Scenario, error) {
    body, err := io.ReadAll(io.LimitReader(r.Body, maxScenarioBytes))
    if err != nil { return model.Scenario{}, err }
    ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
    switch ct {
    case "application/yaml", "application/x-yaml", "text/yaml":
        return scenario.ReadYAML(bytes.NewReader(body))
    case "text/plain":
        return scenario.Read(bytes.NewReader(body))
    }
    return scenario.DecodeJSON(body)
}

func (s *Server) ListScenariosHandler(w http.ResponseWriter, r *http.Request) {
    cursor, limit := page(r)
    items, next, err := s.Store.ListScenarios(r.Context(), cursor, limit)
    if err != nil { writeProblem(w, http.StatusInternalServerError, "List scenarios failed", err.Error(), r.URL.Path); return }
    writeList(w, items, next)
}

func (s *Server) GetScenarioHandler(w http.ResponseWriter, r *http.Request) {
    rec, err := s.Store.GetScenario(r.Context(), chi.URLParam(r, "id"))
    if err != nil { writeStoreError(w, r, "Get scenario failed", err); return }
    writeJSON(w, http.StatusOK, rec)
}

func (s *Server) DeleteScenarioHandler(w http.ResponseWriter, r *http.Request) {
    if err := s.Store.DeleteScenario(r.Context(), chi.URLParam(r, "id")); err != nil {
        writeStoreError(w, r, "Delete scenario failed", err)
        return
    }
    w.WriteHeader(http.StatusNoContent)
}

// ExportScenarioHandler handles GET /v1/scenarios/{id}/export?format=text|yaml|json
func (s *Server) ExportScenarioHandler(w http.ResponseWriter, r *http.Request) {
    rec, err := s.Store.GetScenario(r.Context(), chi.URLParam(r, "id"))
    if err != nil { writeStoreError(w, r, "Get scenario failed", err); return }
    var buf bytes.Buffer
    switch format := r.URL.Query().Get("format"); format {
    case "", "text":
        w.Header().Set("Content-Type", "text/plain; charset=utf-8")
        err = scenario.Write(&buf, rec.Scenario)
    case "yaml":
        w.Header().Set("Content-Type", "application/yaml")
        err = scenario.WriteYAML(&buf, rec.Scenario)
    case "json":
        w.Header().Set("Content-Type", "application/json")
        err = json.NewEncoder(&buf).Encode(rec.Scenario)
    default:
        writeProblem(w, http.StatusBadRequest, "Invalid format", "format must be text, yaml or json", r.URL.Path)
        return
    }
    if err != nil { writeProblem(w, http.StatusInternalServerError, "Export failed", err.Error(), r.URL.Path); return }
    w.WriteHeader(http.StatusOK)
    _, _ = w.Write(buf.Bytes())
}

// PlanHandler handles POST /v1/plan. The run executes in the background
// and 202 is returned, unless ?wait=true asks for the finished run.
func (s *Server) PlanHandler(w http.ResponseWriter, r *http.Request) {
    var req model.PlanRequest
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if err := validatePlanRequest(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid plan request", err.Error(), r.URL.Path)
        return
    }
    rec, err := s.Store.GetScenario(r.Context(), req.ScenarioID)
    if err != nil { writeStoreError(w, r, "Get scenario failed", err); return }

    run, err := s.Store.CreateRun(r.Context(), model.Run{ScenarioID: rec.ID, Algorithm: req.Algorithm, Seed: req.Seed})
    if err != nil { writeProblem(w, http.StatusInternalServerError, "Create run failed", err.Error(), r.URL.Path); return }
    s.Broker.Publish(run.ID, SSEEvent{Type: EventRunStarted, Data: map[string]any{"runId": run.ID, "scenarioId": rec.ID, "algorithm": run.Algorithm}})

    if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
        run = s.execute(r.Context(), run, rec, req)
        writeJSON(w, http.StatusOK, run)
        return
    }
    s.runs.Add(1)
    go func() {
        defer s.runs.Done()
        s.execute(s.ctx, run, rec, req)
    }()
    w.Header().Set("Location", "/v1/runs/"+run.ID)
    writeJSON(w, http.StatusAccepted, run)
}

func (s *Server) ListRunsHandler(w http.ResponseWriter, r *http.Request) {
    cursor, limit := page(r)
    items, next, err := s.Store.ListRuns(r.Context(), r.URL.Query().Get("scenarioId"), cursor, limit)
    if err != nil { writeProblem(w, http.StatusInternalServerError, "List runs failed", err.Error(), r.URL.Path); return }
    writeList(w, items, next)
}

func (s *Server) GetRunHandler(w http.ResponseWriter, r *http.Request) {
    run, err := s.Store.GetRun(r.Context(), chi.URLParam(r, "id"))
    if err != nil { writeStoreError(w, r, "Get run failed", err); return }
    writeJSON(w, http.StatusOK, run)
}

// CompareHandler handles GET /v1/compare?scenarioId= with the latest summary
// of every engine run on that scenario.
func (s *Server) CompareHandler(w http.ResponseWriter, r *http.Request) {
    id := r.URL.Query().Get("scenarioId")
    if id == "" { writeProblem(w, http.StatusBadRequest, "Missing scenarioId", "", r.URL.Path); return }
    writeJSON(w, http.StatusOK, map[string]any{"scenarioId": id, "algorithms": opt.GetMetrics(id)})
}

// EngineConfigHandler returns the engine defaults applied to plan requests.
func (s *Server) EngineConfigHandler(w http.ResponseWriter, r *http.Request) {
    e := s.Cfg.Engine
    writeJSON(w, http.StatusOK, map[string]any{
        "algorithms":    opt.Algorithms,
        "referenceTime": e.ReferenceTime,
        "genetic": model.GeneticParams{
            Population:    e.Population,
            Generations:   e.Generations,
            CrossoverRate: e.CrossoverRate,
            MutationRate:  e.MutationRate,
            Workers:       e.Workers,
        },
    })
}

func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodPost:
        var req model.SubscriptionRequest
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        if err := validateSubscription(&req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid subscription", err.Error(), r.URL.Path)
            return
        }
        sub, err := s.Store.CreateSubscription(r.Context(), req)
        if err != nil { writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path); return }
        writeJSON(w, http.StatusCreated, sub)
    case http.MethodGet:
        cursor, limit := page(r)
        items, next, err := s.Store.ListSubscriptions(r.Context(), cursor, limit)
        if err != nil { writeProblem(w, http.StatusInternalServerError, "List subscriptions failed", err.Error(), r.URL.Path); return }
        writeList(w, items, next)
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

func (s *Server) DeleteSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
    if err := s.Store.DeleteSubscription(r.Context(), chi.URLParam(r, "id")); err != nil {
        writeStoreError(w, r, "Delete subscription failed", err)
        return
    }
    w.WriteHeader(http.StatusNoContent)
}

// Admin: webhook deliveries list and retry
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
    status := r.URL.Query().Get("status")
    switch status {
    case "", store.DeliveryPending, store.DeliveryRetry, store.DeliveryDelivered, store.DeliveryFailed:
    default:
        writeProblem(w, http.StatusBadRequest, "Invalid status", status, r.URL.Path)
        return
    }
    cursor, limit := page(r)
    items, next, err := s.Store.ListWebhookDeliveries(r.Context(), status, cursor, limit)
    if err != nil { writeProblem(w, http.StatusInternalServerError, "List deliveries failed", err.Error(), r.URL.Path); return }
    writeList(w, items, next)
}

func (s *Server) WebhookDeliveryRetryHandler(w http.ResponseWriter, r *http.Request) {
    if err := s.Store.RetryWebhookDelivery(r.Context(), chi.URLParam(r, "id")); err != nil {
        writeStoreError(w, r, "Retry delivery failed", err)
        return
    }
    writeJSON(w, http.StatusAccepted, map[string]int{"accepted": 1})
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, 200, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
    ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
    defer cancel()
    if err := s.Store.Ping(ctx); err != nil { writeProblem(w, 503, "Not Ready", err.Error(), r.URL.Path); return }
    type pinger interface{ Ping(ctx context.Context) error }
    if p, ok := s.Broker.(pinger); ok {
        if err := p.Ping(ctx); err != nil { writeProblem(w, 503, "Not Ready", "broker: "+err.Error(), r.URL.Path); return }
    }
    writeJSON(w, 200, map[string]string{"status": "ready"})
}
