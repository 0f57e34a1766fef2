package store

import (
    "context"
    "path/filepath"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "dronenav/internal/geom"
    "dronenav/internal/model"
)

func sampleScenario() model.Scenario {
    return model.Scenario{
        Name:          "sample",
        ReferenceTime: model.Clock(10, 0, 0),
        Vehicles: []model.Vehicle{
            {ID: 1, MaxPayload: 5, EnergyCapacity: 10000, Speed: 10, Start: geom.Point{X: 0, Y: 0}},
        },
        Deliveries: []model.DeliveryPoint{
            {ID: 1, Position: geom.Point{X: 10, Y: 0}, Mass: 1, Priority: 3, Window: model.Window{Start: model.Clock(9, 0, 0), End: model.Clock(11, 0, 0)}},
        },
    }
}

// forEachStore runs fn against the memory store and a fresh sqlite file.
func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
    t.Run("memory", func(t *testing.T) { fn(t, NewMemory()) })
    t.Run("sqlite", func(t *testing.T) {
        s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "test.db"))
        require.NoError(t, err)
        t.Cleanup(func() { s.Close() })
        fn(t, s)
    })
}

func TestScenarioCRUD(t *testing.T) {
    forEachStore(t, func(t *testing.T, s Store) {
        ctx := context.Background()
        rec, err := s.CreateScenario(ctx, "", sampleScenario())
        require.NoError(t, err)
        assert.Equal(t, "sample", rec.Name)
        assert.NotEmpty(t, rec.ID)

        got, err := s.GetScenario(ctx, rec.ID)
        require.NoError(t, err)
        assert.Equal(t, rec.ID, got.ID)
        require.Len(t, got.Scenario.Vehicles, 1)
        assert.Equal(t, 10000, got.Scenario.Vehicles[0].EnergyCapacity)
        assert.Equal(t, model.Clock(10, 0, 0), got.Scenario.ReferenceTime)
        require.Len(t, got.Scenario.Deliveries, 1)
        assert.Equal(t, 3, got.Scenario.Deliveries[0].Priority)

        require.NoError(t, s.DeleteScenario(ctx, rec.ID))
        _, err = s.GetScenario(ctx, rec.ID)
        assert.ErrorIs(t, err, ErrNotFound)
        assert.ErrorIs(t, s.DeleteScenario(ctx, rec.ID), ErrNotFound)
    })
}

func TestListScenariosPaginates(t *testing.T) {
    forEachStore(t, func(t *testing.T, s Store) {
        ctx := context.Background()
        var ids []string
        for i := 0; i < 5; i++ {
            rec, err := s.CreateScenario(ctx, "s", sampleScenario())
            require.NoError(t, err)
            ids = append(ids, rec.ID)
        }
        var seen []string
        cursor := ""
        for {
            page, next, err := s.ListScenarios(ctx, cursor, 2)
            require.NoError(t, err)
            for _, r := range page { seen = append(seen, r.ID) }
            if next == "" { break }
            cursor = next
        }
        assert.Equal(t, ids, seen)
    })
}

func TestRunLifecycle(t *testing.T) {
    forEachStore(t, func(t *testing.T, s Store) {
        ctx := context.Background()
        run, err := s.CreateRun(ctx, model.Run{ScenarioID: "sc-1", Algorithm: "csp", Seed: 7})
        require.NoError(t, err)
        assert.Equal(t, model.RunRunning, run.Status)

        fin := time.Now().UTC()
        run.Status = model.RunCompleted
        run.FinishedAt = &fin
        run.Result = &model.PlanResult{Algorithm: "csp", Routes: map[int][]int{1: {1}}, Stats: map[string]float64{"completionPct": 100}}
        require.NoError(t, s.UpdateRun(ctx, run))

        got, err := s.GetRun(ctx, run.ID)
        require.NoError(t, err)
        assert.Equal(t, model.RunCompleted, got.Status)
        assert.Equal(t, int64(7), got.Seed)
        require.NotNil(t, got.FinishedAt)
        require.NotNil(t, got.Result)
        assert.Equal(t, []int{1}, got.Result.Routes[1])
        assert.Equal(t, 100.0, got.Result.Stats["completionPct"])

        _, err = s.CreateRun(ctx, model.Run{ScenarioID: "sc-2", Algorithm: "router"})
        require.NoError(t, err)
        runs, _, err := s.ListRuns(ctx, "sc-1", "", 10)
        require.NoError(t, err)
        require.Len(t, runs, 1)
        assert.Equal(t, run.ID, runs[0].ID)

        assert.ErrorIs(t, s.UpdateRun(ctx, model.Run{ID: "missing"}), ErrNotFound)
    })
}

func TestSubscriptionsForEvent(t *testing.T) {
    forEachStore(t, func(t *testing.T, s Store) {
        ctx := context.Background()
        a, err := s.CreateSubscription(ctx, model.SubscriptionRequest{URL: "http://a", Events: []string{"run.completed"}, Secret: "k"})
        require.NoError(t, err)
        _, err = s.CreateSubscription(ctx, model.SubscriptionRequest{URL: "http://b", Events: []string{"run.failed"}})
        require.NoError(t, err)

        subs, err := s.GetSubscriptionsForEvent(ctx, "run.completed")
        require.NoError(t, err)
        require.Len(t, subs, 1)
        assert.Equal(t, a.ID, subs[0].ID)
        assert.Equal(t, "k", subs[0].Secret)

        all, _, err := s.ListSubscriptions(ctx, "", 0)
        require.NoError(t, err)
        assert.Len(t, all, 2)

        require.NoError(t, s.DeleteSubscription(ctx, a.ID))
        subs, err = s.GetSubscriptionsForEvent(ctx, "run.completed")
        require.NoError(t, err)
        assert.Empty(t, subs)
    })
}

func TestWebhookDeliveryFlow(t *testing.T) {
    forEachStore(t, func(t *testing.T, s Store) {
        ctx := context.Background()
        payload := []byte(`{"id":"evt-1","type":"run.completed"}`)
        id, err := s.EnqueueWebhook(ctx, "sub", "run.completed", "http://a", "k", payload)
        require.NoError(t, err)
        dup, err := s.EnqueueWebhook(ctx, "sub", "run.completed", "http://a", "k", payload)
        require.NoError(t, err)
        assert.Equal(t, id, dup)

        due, err := s.FetchDueWebhookDeliveries(ctx, 10)
        require.NoError(t, err)
        require.Len(t, due, 1)
        assert.Equal(t, payload, due[0].Payload)
        assert.Equal(t, "k", due[0].Secret)

        later := time.Now().Add(time.Hour)
        require.NoError(t, s.MarkWebhookDelivery(ctx, id, false, &later, "boom", 500, 12))
        due, err = s.FetchDueWebhookDeliveries(ctx, 10)
        require.NoError(t, err)
        assert.Empty(t, due)

        retry, _, err := s.ListWebhookDeliveries(ctx, DeliveryRetry, "", 10)
        require.NoError(t, err)
        require.Len(t, retry, 1)
        assert.Equal(t, 1, retry[0].Attempts)
        assert.Equal(t, "boom", retry[0].LastError)
        assert.Equal(t, 500, retry[0].ResponseCode)

        require.NoError(t, s.RetryWebhookDelivery(ctx, id))
        due, err = s.FetchDueWebhookDeliveries(ctx, 10)
        require.NoError(t, err)
        require.Len(t, due, 1)

        require.NoError(t, s.MarkWebhookDelivery(ctx, id, true, nil, "", 200, 3))
        done, _, err := s.ListWebhookDeliveries(ctx, DeliveryDelivered, "", 10)
        require.NoError(t, err)
        require.Len(t, done, 1)
        assert.NotNil(t, done[0].DeliveredAt)
        assert.Equal(t, 2, done[0].Attempts)

        id2, err := s.EnqueueWebhook(ctx, "sub", "run.failed", "http://a", "", []byte(`{"id":"evt-2"}`))
        require.NoError(t, err)
        require.NoError(t, s.FailWebhookDelivery(ctx, id2, "gone", 410, 1))
        failed, _, err := s.ListWebhookDeliveries(ctx, DeliveryFailed, "", 10)
        require.NoError(t, err)
        require.Len(t, failed, 1)
        assert.Equal(t, id2, failed[0].ID)
    })
}

func TestComputeDedupKey(t *testing.T) {
    assert.Equal(t, "evt-9", computeDedupKey([]byte(`{"id":"evt-9"}`)))
    a := computeDedupKey([]byte(`{"x":1}`))
    assert.Len(t, a, 16)
    assert.Equal(t, a, computeDedupKey([]byte(`{"x":1}`)))
    assert.NotEqual(t, a, computeDedupKey([]byte(`{"x":2}`)))
}

func TestRebind(t *testing.T) {
    q := `SELECT a FROM t WHERE b=? AND c=?`
    assert.Equal(t, q, rebind(sqliteDialect{}, q))
    assert.Equal(t, `SELECT a FROM t WHERE b=$1 AND c=$2`, rebind(postgresDialect{}, q))
}

func TestMigrateIsIdempotent(t *testing.T) {
    s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "m.db"))
    require.NoError(t, err)
    defer s.Close()
    require.NoError(t, s.Migrate(context.Background()))
    var n int
    require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&n))
    assert.Equal(t, 1, n)
}
