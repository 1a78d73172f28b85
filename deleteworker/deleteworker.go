// Package deleteworker drains the flow_delete_requests queue: a bulk
// "delete all segments of a flow in a timerange" job too large to perform
// synchronously within an API request is instead claimed here, run to
// completion, and its outcome recorded back onto the FlowDeleteRequest row.
// The claim/run/finish lifecycle mirrors the way this codebase's own
// background jobs are structured (see xact/xs/tcb.go's Run/Finish/AddErr),
// adapted from a cluster xaction to a single-process poll loop.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package deleteworker

import (
	"context"
	"sync"
	"time"

	"github.com/bbc/tams-core/cmn/nlog"
	"github.com/bbc/tams-core/core"
	"github.com/bbc/tams-core/core/timerange"
	"github.com/bbc/tams-core/refengine"
	"github.com/bbc/tams-core/repos"
)

// Worker polls for pending FlowDeleteRequests and drives them to
// completed/failed. Run one instance per process; ClaimNextPending's
// read-then-write isn't a true compare-and-swap, so concurrent workers can
// race (see repos.FlowDeleteRequestRepo.ClaimNextPending).
type Worker struct {
	ID       string
	Requests *repos.FlowDeleteRequestRepo
	Engine   *refengine.Engine
	Interval time.Duration

	wg     sync.WaitGroup
	cancel context.CancelFunc
	errs   []error
	mu     sync.Mutex
}

func New(id string, requests *repos.FlowDeleteRequestRepo, engine *refengine.Engine, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Worker{ID: id, Requests: requests, Engine: engine, Interval: interval}
}

// Run starts the poll loop in a goroutine and returns immediately; call
// Stop to request a graceful shutdown.
func (w *Worker) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.wg.Add(1)
	go w.loop(ctx)
}

// Stop cancels the poll loop, waits for the in-flight claim (if any) to
// finish its current iteration, then reverts any request this worker still
// held as in_progress back to pending so another worker can resume it.
func (w *Worker) Stop(ctx context.Context) {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	if terr := w.Requests.RevertToPending(ctx, w.ID); terr != nil {
		nlog.Errorf("deleteworker %s: revert to pending on shutdown: %v", w.ID, terr)
	}
}

func (w *Worker) loop(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Worker) tick(ctx context.Context) {
	req, terr := w.Requests.ClaimNextPending(ctx, w.ID)
	if terr != nil {
		w.addErr(terr)
		nlog.Errorf("deleteworker %s: claim: %v", w.ID, terr)
		return
	}
	if req == nil {
		return
	}
	nlog.Infof("deleteworker %s: claimed %s (flow=%s range=%s)", w.ID, req.ID, req.FlowID, req.Timerange)
	w.process(ctx, req)
}

func (w *Worker) process(ctx context.Context, req *core.FlowDeleteRequest) {
	tr, terr := timerange.Parse(req.Timerange)
	if terr != nil {
		w.fail(ctx, req, terr.Error())
		return
	}
	n, _, terr := w.Engine.DeleteSegments(ctx, req.FlowID, tr)
	if terr != nil {
		w.fail(ctx, req, terr.Error())
		return
	}
	req.Status = core.DeleteStatusCompleted
	req.SegmentsDeleted = n
	req.Updated = time.Now()
	if terr := w.Requests.Update(ctx, req); terr != nil {
		w.addErr(terr)
		nlog.Errorf("deleteworker %s: finalize %s: %v", w.ID, req.ID, terr)
	}
}

func (w *Worker) fail(ctx context.Context, req *core.FlowDeleteRequest, msg string) {
	req.Status = core.DeleteStatusFailed
	req.Error = msg
	req.Updated = time.Now()
	if terr := w.Requests.Update(ctx, req); terr != nil {
		w.addErr(terr)
	}
	nlog.Errorf("deleteworker %s: %s failed: %s", w.ID, req.ID, msg)
}

func (w *Worker) addErr(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.errs = append(w.errs, err)
}

// Errs returns every error recorded since the worker started, for health
// checks to surface.
func (w *Worker) Errs() []error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]error(nil), w.errs...)
}
