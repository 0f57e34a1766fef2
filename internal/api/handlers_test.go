package api

import (
    "bytes"
    "context"
    "encoding/json"
    "net/http"
    "net/http/httptest"
    "strings"
    "sync"
    "testing"
    "time"

    "github.com/gorilla/websocket"

    "dronenav/internal/config"
    "dronenav/internal/model"
    "dronenav/internal/store"
)

func newTestServer(t *testing.T) *Server {
    t.Helper()
    cfg := config.Defaults()
    cfg.Server.RateRPS = 1000
    cfg.Server.RateBurst = 1000
    cfg.Engine.Population = 10
    cfg.Engine.Generations = 5
    s := NewServer(cfg, store.NewMemory(), NewBroker())
    t.Cleanup(s.Shutdown)
    return s
}

func do(t *testing.T, h http.Handler, method, path string, body []byte, ct string) *httptest.ResponseRecorder {
    t.Helper()
    req := httptest.NewRequest(method, path, bytes.NewReader(body))
    if ct != "" { req.Header.Set("Content-Type", ct) }
    rr := httptest.NewRecorder()
    h.ServeHTTP(rr, req)
    return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
    t.Helper()
    if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil { t.Fatalf("decode %s: %v", rr.Body.String(), err) }
}

func createStandard(t *testing.T, h http.Handler) model.ScenarioRecord {
    t.Helper()
    rr := do(t, h, http.MethodPost, "/v1/scenarios?standard=1", nil, "")
    if rr.Code != http.StatusCreated { t.Fatalf("create standard: %d %s", rr.Code, rr.Body.String()) }
    var rec model.ScenarioRecord
    decode(t, rr, &rec)
    return rec
}

const smallScenario = `{"name":"small","referenceTime":"10:00","vehicles":[{"id":1,"maxPayload":5,"energyCapacity":10000,"speed":10,"start":{"x":0,"y":0}}],
"deliveries":[{"id":1,"position":{"x":10,"y":0},"mass":1,"priority":3,"window":{"start":"09:00","end":"11:00"}},
{"id":2,"position":{"x":20,"y":0},"mass":9,"priority":5,"window":{"start":"09:00","end":"11:00"}}],"zones":[]}`

func TestHealthReady(t *testing.T) {
    s := newTestServer(t)
    h := s.Routes()
    if rr := do(t, h, http.MethodGet, "/healthz", nil, ""); rr.Code != 200 { t.Fatalf("health: got %d", rr.Code) }
    if rr := do(t, h, http.MethodGet, "/readyz", nil, ""); rr.Code != 200 { t.Fatalf("ready: got %d", rr.Code) }
    if rr := do(t, h, http.MethodGet, "/metrics", nil, ""); rr.Code != 200 { t.Fatalf("metrics: got %d", rr.Code) }
    if rr := do(t, h, http.MethodGet, "/debug/vars", nil, ""); rr.Code != 200 { t.Fatalf("debug: got %d", rr.Code) }
}

func TestOpenAPIJSON(t *testing.T) {
    s := newTestServer(t)
    rr := do(t, s.Routes(), http.MethodGet, "/openapi.json", nil, "")
    if rr.Code != 200 { t.Fatalf("openapi: %d %s", rr.Code, rr.Body.String()) }
    var doc map[string]any
    decode(t, rr, &doc)
    paths, _ := doc["paths"].(map[string]any)
    if _, ok := paths["/v1/plan"]; !ok { t.Fatalf("openapi missing /v1/plan") }
}

func TestScenarioLifecycle(t *testing.T) {
    s := newTestServer(t)
    h := s.Routes()
    rr := do(t, h, http.MethodPost, "/v1/scenarios", []byte(smallScenario), "application/json")
    if rr.Code != http.StatusCreated { t.Fatalf("create: %d %s", rr.Code, rr.Body.String()) }
    var rec model.ScenarioRecord
    decode(t, rr, &rec)
    if rec.Name != "small" || len(rec.Scenario.Deliveries) != 2 { t.Fatalf("unexpected record: %+v", rec) }

    rr = do(t, h, http.MethodGet, "/v1/scenarios/"+rec.ID, nil, "")
    if rr.Code != 200 { t.Fatalf("get: %d", rr.Code) }

    rr = do(t, h, http.MethodGet, "/v1/scenarios", nil, "")
    var list struct{ Items []model.ScenarioRecord `json:"items"` }
    decode(t, rr, &list)
    if len(list.Items) != 1 { t.Fatalf("list: got %d items", len(list.Items)) }

    rr = do(t, h, http.MethodGet, "/v1/scenarios/"+rec.ID+"/export?format=text", nil, "")
    if rr.Code != 200 || !strings.Contains(rr.Body.String(), "## DELIVERIES") { t.Fatalf("export text: %d %s", rr.Code, rr.Body.String()) }
    // the exported text re-imports
    rr = do(t, h, http.MethodPost, "/v1/scenarios?name=copy", rr.Body.Bytes(), "text/plain")
    if rr.Code != http.StatusCreated { t.Fatalf("reimport: %d %s", rr.Code, rr.Body.String()) }

    rr = do(t, h, http.MethodGet, "/v1/scenarios/"+rec.ID+"/export?format=yaml", nil, "")
    if rr.Code != 200 || !strings.Contains(rr.Body.String(), "vehicles:") { t.Fatalf("export yaml: %d", rr.Code) }
    rr = do(t, h, http.MethodGet, "/v1/scenarios/"+rec.ID+"/export?format=xml", nil, "")
    if rr.Code != http.StatusBadRequest { t.Fatalf("export xml: %d", rr.Code) }

    if rr := do(t, h, http.MethodDelete, "/v1/scenarios/"+rec.ID, nil, ""); rr.Code != http.StatusNoContent { t.Fatalf("delete: %d", rr.Code) }
    if rr := do(t, h, http.MethodGet, "/v1/scenarios/"+rec.ID, nil, ""); rr.Code != http.StatusNotFound { t.Fatalf("get deleted: %d", rr.Code) }
}

func TestScenarioRejected(t *testing.T) {
    s := newTestServer(t)
    h := s.Routes()
    bad := strings.Replace(smallScenario, `"priority":3`, `"priority":9`, 1)
    rr := do(t, h, http.MethodPost, "/v1/scenarios", []byte(bad), "application/json")
    if rr.Code != http.StatusBadRequest { t.Fatalf("bad priority: %d", rr.Code) }
    if ct := rr.Header().Get("Content-Type"); ct != "application/problem+json" { t.Fatalf("content type %q", ct) }
    rr = do(t, h, http.MethodPost, "/v1/scenarios?standard=7", nil, "")
    if rr.Code != http.StatusBadRequest { t.Fatalf("unknown standard: %d", rr.Code) }
}

func TestScenarioGenerate(t *testing.T) {
    s := newTestServer(t)
    rr := do(t, s.Routes(), http.MethodPost, "/v1/scenarios?generate=1&seed=5&vehicles=3&deliveries=7&zones=1", nil, "")
    if rr.Code != http.StatusCreated { t.Fatalf("generate: %d %s", rr.Code, rr.Body.String()) }
    var rec model.ScenarioRecord
    decode(t, rr, &rec)
    if len(rec.Scenario.Vehicles) != 3 || len(rec.Scenario.Deliveries) != 7 || len(rec.Scenario.Zones) != 1 {
        t.Fatalf("generated sizes: %d %d %d", len(rec.Scenario.Vehicles), len(rec.Scenario.Deliveries), len(rec.Scenario.Zones))
    }
}

func TestPlanWaitAllAlgorithms(t *testing.T) {
    s := newTestServer(t)
    h := s.Routes()
    rec := createStandard(t, h)
    for _, algo := range []string{"router", "csp", "genetic"} {
        body, _ := json.Marshal(model.PlanRequest{ScenarioID: rec.ID, Algorithm: algo, Seed: 1})
        rr := do(t, h, http.MethodPost, "/v1/plan?wait=true", body, "application/json")
        if rr.Code != 200 { t.Fatalf("%s: %d %s", algo, rr.Code, rr.Body.String()) }
        var run model.Run
        decode(t, rr, &run)
        if run.Status != model.RunCompleted || run.Result == nil { t.Fatalf("%s: run %+v", algo, run) }
        if run.Result.Algorithm != algo { t.Fatalf("%s: result algorithm %q", algo, run.Result.Algorithm) }
        seen := map[int]bool{}
        for _, ids := range run.Result.Routes {
            for _, id := range ids {
                if seen[id] { t.Fatalf("%s: delivery %d assigned twice", algo, id) }
                seen[id] = true
            }
        }
    }

    rr := do(t, h, http.MethodGet, "/v1/compare?scenarioId="+rec.ID, nil, "")
    var cmp struct{ Algorithms map[string]json.RawMessage `json:"algorithms"` }
    decode(t, rr, &cmp)
    if len(cmp.Algorithms) != 3 { t.Fatalf("compare: %s", rr.Body.String()) }

    rr = do(t, h, http.MethodGet, "/v1/runs?scenarioId="+rec.ID, nil, "")
    var runs struct{ Items []model.Run `json:"items"` }
    decode(t, rr, &runs)
    if len(runs.Items) != 3 { t.Fatalf("runs: %d", len(runs.Items)) }
}

func TestPlanValidation(t *testing.T) {
    s := newTestServer(t)
    h := s.Routes()
    rec := createStandard(t, h)
    cases := []struct {
        body string
        code int
    }{
        {`{"scenarioId":"` + rec.ID + `","algorithm":"alns"}`, http.StatusBadRequest},
        {`{"scenarioId":"` + rec.ID + `","algorithm":"csp","referenceTime":"25:00"}`, http.StatusBadRequest},
        {`{"scenarioId":"` + rec.ID + `","algorithm":"genetic","genetic":{"mutationRate":2}}`, http.StatusBadRequest},
        {`{"algorithm":"csp"}`, http.StatusBadRequest},
        {`{"scenarioId":"missing","algorithm":"csp"}`, http.StatusNotFound},
        {`{`, http.StatusBadRequest},
    }
    for _, c := range cases {
        rr := do(t, h, http.MethodPost, "/v1/plan", []byte(c.body), "application/json")
        if rr.Code != c.code { t.Fatalf("%s: got %d want %d (%s)", c.body, rr.Code, c.code, rr.Body.String()) }
    }
}

func TestExecuteBadReferenceTimeFailsRun(t *testing.T) {
    s := newTestServer(t)
    rec := createStandard(t, s.Routes())
    ctx := context.Background()
    run, err := s.Store.CreateRun(ctx, model.Run{ScenarioID: rec.ID, Algorithm: "csp"})
    if err != nil { t.Fatalf("create run: %v", err) }

    got := s.execute(ctx, run, rec, model.PlanRequest{ScenarioID: rec.ID, Algorithm: "csp", ReferenceTime: "noon"})
    if got.Status != model.RunFailed { t.Fatalf("status = %s", got.Status) }
    if !strings.Contains(got.Error, "referenceTime") { t.Fatalf("error = %q", got.Error) }
    if got.Result != nil { t.Fatalf("result = %+v, want none", got.Result) }
    stored, err := s.Store.GetRun(ctx, run.ID)
    if err != nil { t.Fatalf("get run: %v", err) }
    if stored.Status != model.RunFailed { t.Fatalf("stored status = %s", stored.Status) }
}

func TestPlanRateLimited(t *testing.T) {
    s := newTestServer(t)
    s.Cfg.Server.RateRPS = 0.001
    s.Cfg.Server.RateBurst = 1
    h := s.Routes()
    body := []byte(`{"scenarioId":"missing","algorithm":"csp"}`)
    if rr := do(t, h, http.MethodPost, "/v1/plan", body, "application/json"); rr.Code != http.StatusNotFound { t.Fatalf("first: %d", rr.Code) }
    if rr := do(t, h, http.MethodPost, "/v1/plan", body, "application/json"); rr.Code != http.StatusTooManyRequests { t.Fatalf("second: %d", rr.Code) }
}

// sseRecorder is a minimal ResponseWriter that implements http.Flusher
// and captures writes for SSE tests.
type sseRecorder struct {
    mu   sync.Mutex
    hdr  http.Header
    buf  bytes.Buffer
    code int
}

func (r *sseRecorder) Header() http.Header { if r.hdr == nil { r.hdr = http.Header{} }; return r.hdr }
func (r *sseRecorder) WriteHeader(c int) { r.code = c }
func (r *sseRecorder) Write(p []byte) (int, error) { r.mu.Lock(); defer r.mu.Unlock(); return r.buf.Write(p) }
func (r *sseRecorder) Flush() {}
func (r *sseRecorder) String() string { r.mu.Lock(); defer r.mu.Unlock(); return r.buf.String() }

func TestRunEventsSSE(t *testing.T) {
    s := newTestServer(t)
    h := s.Routes()
    rec := createStandard(t, h)
    body, _ := json.Marshal(model.PlanRequest{ScenarioID: rec.ID, Algorithm: "genetic", Seed: 3})
    rr := do(t, h, http.MethodPost, "/v1/plan", body, "application/json")
    if rr.Code != http.StatusAccepted { t.Fatalf("plan: %d %s", rr.Code, rr.Body.String()) }
    var run model.Run
    decode(t, rr, &run)

    ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()
    req := httptest.NewRequest(http.MethodGet, "/v1/runs/"+run.ID+"/events/stream", nil).WithContext(ctx)
    out := &sseRecorder{}
    done := make(chan struct{})
    go func() {
        h.ServeHTTP(out, req)
        close(done)
    }()
    select {
    case <-done:
    case <-ctx.Done():
        t.Fatalf("stream did not end after the run finished. Body: %s", out.String())
    }
    if !strings.Contains(out.String(), "event: run.completed") {
        t.Fatalf("SSE did not contain run.completed. Body: %s", out.String())
    }

    if rr := do(t, h, http.MethodGet, "/v1/runs/missing/events/stream", nil, ""); rr.Code != http.StatusNotFound {
        t.Fatalf("missing run stream: %d", rr.Code)
    }
}

func TestRunEventsWebSocket(t *testing.T) {
    s := newTestServer(t)
    srv := httptest.NewServer(s.Routes())
    defer srv.Close()
    h := s.Routes()
    rec := createStandard(t, h)
    body, _ := json.Marshal(model.PlanRequest{ScenarioID: rec.ID, Algorithm: "csp"})
    rr := do(t, h, http.MethodPost, "/v1/plan?wait=1", body, "application/json")
    var run model.Run
    decode(t, rr, &run)

    url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/runs/" + run.ID + "/ws"
    conn, _, err := websocket.DefaultDialer.Dial(url, nil)
    if err != nil { t.Fatalf("dial: %v", err) }
    defer conn.Close()
    _ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
    var msg wsMessage
    if err := conn.ReadJSON(&msg); err != nil { t.Fatalf("read: %v", err) }
    var evt SSEEvent
    if err := json.Unmarshal(msg.Payload, &evt); err != nil { t.Fatalf("payload: %v", err) }
    if msg.Type != "event" || evt.Type != EventRunCompleted { t.Fatalf("unexpected message %s %+v", msg.Type, evt) }
}

func TestSubscriptionsAndDeliveries(t *testing.T) {
    s := newTestServer(t)
    h := s.Routes()
    rr := do(t, h, http.MethodPost, "/v1/subscriptions", []byte(`{"url":"http://example.test/hook","events":["plan.completed"],"secret":"k"}`), "application/json")
    if rr.Code != http.StatusCreated { t.Fatalf("subscribe: %d %s", rr.Code, rr.Body.String()) }
    if strings.Contains(rr.Body.String(), `"k"`) { t.Fatalf("secret leaked: %s", rr.Body.String()) }
    var sub model.Subscription
    decode(t, rr, &sub)

    if rr := do(t, h, http.MethodPost, "/v1/subscriptions", []byte(`{"url":"ftp://x","events":["plan.completed"]}`), "application/json"); rr.Code != 400 {
        t.Fatalf("bad url: %d", rr.Code)
    }
    if rr := do(t, h, http.MethodPost, "/v1/subscriptions", []byte(`{"url":"http://x","events":["route.advanced"]}`), "application/json"); rr.Code != 400 {
        t.Fatalf("bad event: %d", rr.Code)
    }

    rec := createStandard(t, h)
    body, _ := json.Marshal(model.PlanRequest{ScenarioID: rec.ID, Algorithm: "csp"})
    if rr := do(t, h, http.MethodPost, "/v1/plan?wait=true", body, "application/json"); rr.Code != 200 { t.Fatalf("plan: %d", rr.Code) }

    rr = do(t, h, http.MethodGet, "/v1/admin/webhook-deliveries?status=pending", nil, "")
    var list struct{ Items []store.WebhookDelivery `json:"items"` }
    decode(t, rr, &list)
    if len(list.Items) != 1 || list.Items[0].EventType != "plan.completed" { t.Fatalf("deliveries: %s", rr.Body.String()) }

    rr = do(t, h, http.MethodPost, "/v1/admin/webhook-deliveries/"+list.Items[0].ID+"/retry", nil, "")
    if rr.Code != http.StatusAccepted { t.Fatalf("retry: %d", rr.Code) }
    if rr := do(t, h, http.MethodGet, "/v1/admin/webhook-deliveries?status=bogus", nil, ""); rr.Code != 400 { t.Fatalf("bad status: %d", rr.Code) }

    if rr := do(t, h, http.MethodDelete, "/v1/subscriptions/"+sub.ID, nil, ""); rr.Code != http.StatusNoContent { t.Fatalf("unsubscribe: %d", rr.Code) }
    if rr := do(t, h, http.MethodDelete, "/v1/subscriptions/"+sub.ID, nil, ""); rr.Code != http.StatusNotFound { t.Fatalf("unsubscribe again: %d", rr.Code) }
}
