package api

import (
    "context"
    "fmt"
    "time"

    "dronenav/internal/logger"
    "dronenav/internal/metrics"
    "dronenav/internal/model"
    "dronenav/internal/opt"
    "dronenav/internal/webhooks"
)

// planOptions merges the request over the configured engine defaults.
func (s *Server) planOptions(run model.Run, req model.PlanRequest) (opt.PlanOptions, error) {
    e := s.Cfg.Engine
    g := opt.GeneticConfig{
        Population:    e.Population,
        Generations:   e.Generations,
        CrossoverRate: e.CrossoverRate,
        MutationRate:  e.MutationRate,
        Workers:       e.Workers,
        Seed:          req.Seed,
    }
    if p := req.Genetic; p != nil {
        if p.Population > 0 { g.Population = p.Population }
        if p.Generations > 0 { g.Generations = p.Generations }
        if p.CrossoverRate > 0 { g.CrossoverRate = p.CrossoverRate }
        if p.MutationRate > 0 { g.MutationRate = p.MutationRate }
        if p.Workers > 0 { g.Workers = p.Workers }
    }
    o := opt.PlanOptions{Genetic: g}
    if req.ReferenceTime != "" {
        t, err := model.ParseTimeOfDay(req.ReferenceTime)
        if err != nil { return opt.PlanOptions{}, fmt.Errorf("referenceTime: %w", err) }
        o.ReferenceTime = &t
    }
    o.Progress = func(rep opt.GenerationReport) {
        s.Broker.Publish(run.ID, SSEEvent{Type: EventRunProgress, Data: map[string]any{
            "runId":       run.ID,
            "generation":  rep.Generation,
            "bestFitness": rep.BestFitness,
            "meanFitness": rep.MeanFitness,
        }})
    }
    return o, nil
}

// execute runs the engine and records the outcome everywhere it is
// observed: the store, the event stream, webhooks, metrics and the run log.
func (s *Server) execute(ctx context.Context, run model.Run, rec model.ScenarioRecord, req model.PlanRequest) model.Run {
    log := logger.L().With("run", run.ID, "scenario", rec.ID, "algorithm", run.Algorithm)
    log.Info("plan started")
    start := time.Now()
    var res model.PlanResult
    o, err := s.planOptions(run, req)
    if err == nil {
        res, err = opt.Plan(ctx, run.Algorithm, rec.Scenario, o)
    }
    fin := time.Now().UTC()
    run.FinishedAt = &fin

    evt := SSEEvent{Data: map[string]any{"runId": run.ID, "scenarioId": rec.ID, "algorithm": run.Algorithm}}
    if err != nil {
        run.Status = model.RunFailed
        run.Error = err.Error()
        evt.Type = EventRunFailed
        evt.Data["error"] = run.Error
        log.Warn("plan failed", "err", err)
    } else {
        run.Status = model.RunCompleted
        run.Result = &res
        evt.Type = EventRunCompleted
        evt.Data["stats"] = res.Stats
        evt.Data["unassigned"] = len(res.Unassigned)
        opt.RecordMetrics(rec.ID, res)
        log.Info("plan completed", "duration_ms", res.DurationMs, "unassigned", len(res.Unassigned))
    }
    metrics.ObservePlan(run.Algorithm, run.Status, time.Since(start).Seconds(), res.Stats["completionPct"])

    // the request context may already be gone; persist regardless
    bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
    defer cancel()
    if err := s.Store.UpdateRun(bg, run); err != nil {
        log.Error("run update failed", "err", err)
    }
    s.Broker.Publish(run.ID, evt)
    if run.Status == model.RunCompleted {
        s.Pub.Emit(bg, webhooks.EventPlanCompleted, evt.Data)
    } else {
        s.Pub.Emit(bg, webhooks.EventPlanFailed, evt.Data)
    }
    if s.RunLog != nil {
        if err := s.RunLog.WriteRun(run); err != nil { log.Warn("run log write failed", "err", err) }
    }
    return run
}
