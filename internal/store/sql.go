package store

import (
    "context"
    "database/sql"
    "embed"
    "encoding/json"
    "errors"
    "fmt"
    "io/fs"
    "sort"
    "strings"
    "time"

    _ "github.com/jackc/pgx/v5/stdlib"
    _ "modernc.org/sqlite"

    "dronenav/internal/model"
)

//go:embed migrations
var migrationsFS embed.FS

// SQL is a Store over database/sql. Timestamps are stored as unix
// milliseconds so both drivers compare them the same way.
type SQL struct {
    db      *sql.DB
    dialect Dialect
}

// OpenSQLite opens (creating if needed) a sqlite file and migrates it.
func OpenSQLite(ctx context.Context, path string) (*SQL, error) {
    dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
    db, err := sql.Open("sqlite", dsn)
    if err != nil { return nil, fmt.Errorf("open sqlite: %w", err) }
    db.SetMaxOpenConns(1)
    return open(ctx, db, sqliteDialect{})
}

// OpenPostgres connects through the pgx stdlib driver and migrates.
func OpenPostgres(ctx context.Context, dsn string) (*SQL, error) {
    db, err := sql.Open("pgx", dsn)
    if err != nil { return nil, fmt.Errorf("open postgres: %w", err) }
    return open(ctx, db, postgresDialect{})
}

func open(ctx context.Context, db *sql.DB, d Dialect) (*SQL, error) {
    s := &SQL{db: db, dialect: d}
    if err := db.PingContext(ctx); err != nil {
        db.Close()
        return nil, fmt.Errorf("ping %s: %w", d.Name(), err)
    }
    if err := s.Migrate(ctx); err != nil {
        db.Close()
        return nil, fmt.Errorf("migrate %s: %w", d.Name(), err)
    }
    return s, nil
}

func (s *SQL) Dialect() Dialect { return s.dialect }
func (s *SQL) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *SQL) Close() error { return s.db.Close() }

// Migrate applies every embedded migration for the dialect that has not
// been recorded in schema_migrations, in file name order.
func (s *SQL) Migrate(ctx context.Context) error {
    if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY, applied_at BIGINT NOT NULL)`); err != nil {
        return err
    }
    dir := "migrations/" + s.dialect.Name()
    entries, err := fs.ReadDir(migrationsFS, dir)
    if err != nil { return err }
    names := []string{}
    for _, e := range entries {
        if strings.HasSuffix(e.Name(), ".sql") { names = append(names, e.Name()) }
    }
    sort.Strings(names)
    for _, name := range names {
        var applied string
        err := s.db.QueryRowContext(ctx, s.q(`SELECT version FROM schema_migrations WHERE version=?`), name).Scan(&applied)
        if err == nil { continue }
        if !errors.Is(err, sql.ErrNoRows) { return err }
        body, err := migrationsFS.ReadFile(dir + "/" + name)
        if err != nil { return err }
        tx, err := s.db.BeginTx(ctx, nil)
        if err != nil { return err }
        if _, err := tx.ExecContext(ctx, string(body)); err != nil {
            _ = tx.Rollback()
            return fmt.Errorf("%s: %w", name, err)
        }
        if _, err := tx.ExecContext(ctx, s.q(`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`), name, time.Now().UnixMilli()); err != nil {
            _ = tx.Rollback()
            return err
        }
        if err := tx.Commit(); err != nil { return err }
    }
    return nil
}

func (s *SQL) q(query string) string { return rebind(s.dialect, query) }

func millis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

func nullMillis(t *time.Time) any {
    if t == nil { return nil }
    return t.UnixMilli()
}

func timePtr(v sql.NullInt64) *time.Time {
    if !v.Valid { return nil }
    t := fromMillis(v.Int64)
    return &t
}

// Scenarios

func (s *SQL) CreateScenario(ctx context.Context, name string, sc model.Scenario) (model.ScenarioRecord, error) {
    if name == "" { name = sc.Name }
    body, err := json.Marshal(sc)
    if err != nil { return model.ScenarioRecord{}, err }
    rec := model.ScenarioRecord{ID: newID(), Name: name, CreatedAt: time.Now().UTC().Truncate(time.Millisecond), Scenario: sc.Clone()}
    _, err = s.db.ExecContext(ctx, s.q(`INSERT INTO scenarios (id, name, created_at, body) VALUES (?,?,?,?)`), rec.ID, rec.Name, millis(rec.CreatedAt), string(body))
    if err != nil { return model.ScenarioRecord{}, err }
    return rec, nil
}

func scanScenario(row interface{ Scan(...any) error }) (model.ScenarioRecord, error) {
    var rec model.ScenarioRecord
    var created int64
    var body string
    if err := row.Scan(&rec.ID, &rec.Name, &created, &body); err != nil { return rec, err }
    rec.CreatedAt = fromMillis(created)
    if err := json.Unmarshal([]byte(body), &rec.Scenario); err != nil { return rec, fmt.Errorf("scenario %s: %w", rec.ID, err) }
    rec.Scenario.Reset()
    return rec, nil
}

func (s *SQL) GetScenario(ctx context.Context, id string) (model.ScenarioRecord, error) {
    row := s.db.QueryRowContext(ctx, s.q(`SELECT id, name, created_at, body FROM scenarios WHERE id=?`), id)
    rec, err := scanScenario(row)
    if errors.Is(err, sql.ErrNoRows) { return model.ScenarioRecord{}, ErrNotFound }
    return rec, err
}

func (s *SQL) ListScenarios(ctx context.Context, cursor string, limit int) ([]model.ScenarioRecord, string, error) {
    limit = clampLimit(limit)
    rows, err := s.db.QueryContext(ctx, s.q(`SELECT id, name, created_at, body FROM scenarios WHERE id > ? ORDER BY id LIMIT ?`), cursor, limit+1)
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []model.ScenarioRecord{}
    for rows.Next() {
        rec, err := scanScenario(rows)
        if err != nil { return nil, "", err }
        out = append(out, rec)
    }
    if err := rows.Err(); err != nil { return nil, "", err }
    next := ""
    if len(out) > limit {
        out = out[:limit]
        next = out[limit-1].ID
    }
    return out, next, nil
}

func (s *SQL) DeleteScenario(ctx context.Context, id string) error {
    res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM scenarios WHERE id=?`), id)
    if err != nil { return err }
    return affected(res)
}

func affected(res sql.Result) error {
    n, err := res.RowsAffected()
    if err != nil { return err }
    if n == 0 { return ErrNotFound }
    return nil
}

// Runs

func resultJSON(r *model.PlanResult) (any, error) {
    if r == nil { return nil, nil }
    b, err := json.Marshal(r)
    if err != nil { return nil, err }
    return string(b), nil
}

func (s *SQL) CreateRun(ctx context.Context, run model.Run) (model.Run, error) {
    run.ID = newID()
    if run.CreatedAt.IsZero() { run.CreatedAt = time.Now().UTC() }
    run.CreatedAt = run.CreatedAt.Truncate(time.Millisecond)
    if run.Status == "" { run.Status = model.RunRunning }
    res, err := resultJSON(run.Result)
    if err != nil { return model.Run{}, err }
    _, err = s.db.ExecContext(ctx, s.q(`INSERT INTO runs (id, scenario_id, algorithm, seed, status, error, created_at, finished_at, result) VALUES (?,?,?,?,?,?,?,?,?)`),
        run.ID, run.ScenarioID, run.Algorithm, run.Seed, run.Status, run.Error, millis(run.CreatedAt), nullMillis(run.FinishedAt), res)
    if err != nil { return model.Run{}, err }
    return run, nil
}

func (s *SQL) UpdateRun(ctx context.Context, run model.Run) error {
    res, err := resultJSON(run.Result)
    if err != nil { return err }
    r, err := s.db.ExecContext(ctx, s.q(`UPDATE runs SET status=?, error=?, finished_at=?, result=? WHERE id=?`),
        run.Status, run.Error, nullMillis(run.FinishedAt), res, run.ID)
    if err != nil { return err }
    return affected(r)
}

const runColumns = `id, scenario_id, algorithm, seed, status, error, created_at, finished_at, result`

func scanRun(row interface{ Scan(...any) error }) (model.Run, error) {
    var r model.Run
    var created int64
    var finished sql.NullInt64
    var result sql.NullString
    if err := row.Scan(&r.ID, &r.ScenarioID, &r.Algorithm, &r.Seed, &r.Status, &r.Error, &created, &finished, &result); err != nil {
        return r, err
    }
    r.CreatedAt = fromMillis(created)
    r.FinishedAt = timePtr(finished)
    if result.Valid && result.String != "" {
        var pr model.PlanResult
        if err := json.Unmarshal([]byte(result.String), &pr); err != nil { return r, fmt.Errorf("run %s: %w", r.ID, err) }
        r.Result = &pr
    }
    return r, nil
}

func (s *SQL) GetRun(ctx context.Context, id string) (model.Run, error) {
    r, err := scanRun(s.db.QueryRowContext(ctx, s.q(`SELECT `+runColumns+` FROM runs WHERE id=?`), id))
    if errors.Is(err, sql.ErrNoRows) { return model.Run{}, ErrNotFound }
    return r, err
}

func (s *SQL) ListRuns(ctx context.Context, scenarioID, cursor string, limit int) ([]model.Run, string, error) {
    limit = clampLimit(limit)
    q := `SELECT ` + runColumns + ` FROM runs WHERE id > ?`
    args := []any{cursor}
    if scenarioID != "" {
        q += ` AND scenario_id = ?`
        args = append(args, scenarioID)
    }
    q += ` ORDER BY id LIMIT ?`
    args = append(args, limit+1)
    rows, err := s.db.QueryContext(ctx, s.q(q), args...)
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []model.Run{}
    for rows.Next() {
        r, err := scanRun(rows)
        if err != nil { return nil, "", err }
        out = append(out, r)
    }
    if err := rows.Err(); err != nil { return nil, "", err }
    next := ""
    if len(out) > limit {
        out = out[:limit]
        next = out[limit-1].ID
    }
    return out, next, nil
}

// Subscriptions

func (s *SQL) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
    events, err := json.Marshal(req.Events)
    if err != nil { return model.Subscription{}, err }
    sub := model.Subscription{ID: newID(), URL: req.URL, Events: append([]string(nil), req.Events...), Secret: req.Secret}
    _, err = s.db.ExecContext(ctx, s.q(`INSERT INTO subscriptions (id, url, events, secret) VALUES (?,?,?,?)`), sub.ID, sub.URL, string(events), sub.Secret)
    if err != nil { return model.Subscription{}, err }
    return sub, nil
}

func (s *SQL) querySubscriptions(ctx context.Context, query string, args ...any) ([]model.Subscription, error) {
    rows, err := s.db.QueryContext(ctx, s.q(query), args...)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Subscription{}
    for rows.Next() {
        var sub model.Subscription
        var events string
        if err := rows.Scan(&sub.ID, &sub.URL, &events, &sub.Secret); err != nil { return nil, err }
        if err := json.Unmarshal([]byte(events), &sub.Events); err != nil { return nil, fmt.Errorf("subscription %s: %w", sub.ID, err) }
        out = append(out, sub)
    }
    return out, rows.Err()
}

func (s *SQL) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
    all, err := s.querySubscriptions(ctx, `SELECT id, url, events, secret FROM subscriptions ORDER BY id`)
    if err != nil { return nil, err }
    var out []model.Subscription
    for _, sub := range all {
        for _, e := range sub.Events { if e == eventType { out = append(out, sub); break } }
    }
    return out, nil
}

func (s *SQL) ListSubscriptions(ctx context.Context, cursor string, limit int) ([]model.Subscription, string, error) {
    limit = clampLimit(limit)
    out, err := s.querySubscriptions(ctx, `SELECT id, url, events, secret FROM subscriptions WHERE id > ? ORDER BY id LIMIT ?`, cursor, limit+1)
    if err != nil { return nil, "", err }
    next := ""
    if len(out) > limit {
        out = out[:limit]
        next = out[limit-1].ID
    }
    return out, next, nil
}

func (s *SQL) DeleteSubscription(ctx context.Context, id string) error {
    res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM subscriptions WHERE id=?`), id)
    if err != nil { return err }
    return affected(res)
}

// Webhook deliveries

func (s *SQL) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
    id := newID()
    dk := computeDedupKey(payload)
    res, err := s.db.ExecContext(ctx, s.q(`INSERT INTO webhook_deliveries (id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at, dedup_key)
        VALUES (?,?,?,?,?,?,?,0,?,?)
        ON CONFLICT (event_type, url, dedup_key) DO NOTHING`), id, subscriptionID, eventType, url, secret, payload, DeliveryPending, millis(time.Now()), dk)
    if err != nil { return "", err }
    if n, _ := res.RowsAffected(); n == 0 {
        var existing string
        err := s.db.QueryRowContext(ctx, s.q(`SELECT id FROM webhook_deliveries WHERE event_type=? AND url=? AND dedup_key=?`), eventType, url, dk).Scan(&existing)
        return existing, err
    }
    return id, nil
}

const deliveryColumns = `id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at, last_error, response_code, latency_ms, delivered_at`

func scanDelivery(row interface{ Scan(...any) error }) (WebhookDelivery, error) {
    var d WebhookDelivery
    var next, delivered sql.NullInt64
    if err := row.Scan(&d.ID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts,
        &next, &d.LastError, &d.ResponseCode, &d.LatencyMs, &delivered); err != nil {
        return d, err
    }
    d.NextAttemptAt = timePtr(next)
    d.DeliveredAt = timePtr(delivered)
    return d, nil
}

func (s *SQL) queryDeliveries(ctx context.Context, query string, args ...any) ([]WebhookDelivery, error) {
    rows, err := s.db.QueryContext(ctx, s.q(query), args...)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []WebhookDelivery{}
    for rows.Next() {
        d, err := scanDelivery(rows)
        if err != nil { return nil, err }
        out = append(out, d)
    }
    return out, rows.Err()
}

func (s *SQL) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
    return s.queryDeliveries(ctx, `SELECT `+deliveryColumns+` FROM webhook_deliveries
        WHERE status IN ('pending','retry') AND next_attempt_at <= ? ORDER BY next_attempt_at, id LIMIT ?`, millis(time.Now()), clampLimit(limit))
}

func (s *SQL) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
    var res sql.Result
    var err error
    if success {
        res, err = s.db.ExecContext(ctx, s.q(`UPDATE webhook_deliveries SET attempts=attempts+1, status=?, delivered_at=?, next_attempt_at=NULL, response_code=?, latency_ms=? WHERE id=?`),
            DeliveryDelivered, millis(time.Now()), responseCode, latencyMs, id)
    } else {
        if nextAttemptAt == nil { t := time.Now().Add(time.Minute); nextAttemptAt = &t }
        res, err = s.db.ExecContext(ctx, s.q(`UPDATE webhook_deliveries SET attempts=attempts+1, status=?, last_error=?, next_attempt_at=?, response_code=?, latency_ms=? WHERE id=?`),
            DeliveryRetry, lastError, millis(*nextAttemptAt), responseCode, latencyMs, id)
    }
    if err != nil { return err }
    return affected(res)
}

func (s *SQL) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
    res, err := s.db.ExecContext(ctx, s.q(`UPDATE webhook_deliveries SET attempts=attempts+1, status=?, last_error=?, next_attempt_at=NULL, response_code=?, latency_ms=? WHERE id=?`),
        DeliveryFailed, lastError, responseCode, latencyMs, id)
    if err != nil { return err }
    return affected(res)
}

func (s *SQL) ListWebhookDeliveries(ctx context.Context, status, cursor string, limit int) ([]WebhookDelivery, string, error) {
    limit = clampLimit(limit)
    q := `SELECT ` + deliveryColumns + ` FROM webhook_deliveries WHERE id > ?`
    args := []any{cursor}
    if status != "" {
        q += ` AND status = ?`
        args = append(args, status)
    }
    q += ` ORDER BY id LIMIT ?`
    args = append(args, limit+1)
    out, err := s.queryDeliveries(ctx, q, args...)
    if err != nil { return nil, "", err }
    next := ""
    if len(out) > limit {
        out = out[:limit]
        next = out[limit-1].ID
    }
    return out, next, nil
}

func (s *SQL) RetryWebhookDelivery(ctx context.Context, id string) error {
    res, err := s.db.ExecContext(ctx, s.q(`UPDATE webhook_deliveries SET status=?, next_attempt_at=? WHERE id=?`), DeliveryPending, millis(time.Now()), id)
    if err != nil { return err }
    return affected(res)
}
