// Package sync drives a group's local copy from its last watermark to the
// newest available remote message.
package sync

import (
	"context"
	"sort"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"github.com/spaceisawaste/groupme-backup/internal/groupme"
	"github.com/spaceisawaste/groupme-backup/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Sync run types recorded in sync_logs.
const (
	TypeFull        = "full"
	TypeIncremental = "incremental"
)

// Source is the remote message source the engine consumes.
type Source interface {
	GetGroup(ctx context.Context, groupID string) (*groupme.Group, error)
	Messages(ctx context.Context, groupID string, q groupme.MessageQuery) ([]groupme.Message, error)
}

// Reporter receives progress callbacks during a run. Calls happen between
// pages on the syncing goroutine.
type Reporter interface {
	SyncStarted(groupID, name, syncType string)
	PageSynced(groupID string, pageSize, totalWritten int)
}

// Result summarizes one sync run for one group.
type Result struct {
	GroupID   string
	GroupName string
	RunID     string
	Type      string
	Fetched   int
	Written   int
	Watermark string
	Err       error
}

// Engine orchestrates fetch/write cycles against the source and the store.
// Safe for concurrent use across distinct groups; runs for the same group
// are serialized.
type Engine struct {
	source   Source
	db       *store.DB
	pageSize int
	logger   *zap.Logger
	reporter Reporter

	mu         gosync.Mutex
	groupLocks map[string]*gosync.Mutex
}

// New creates a sync engine. reporter may be nil.
func New(source Source, db *store.DB, pageSize int, logger *zap.Logger, reporter Reporter) *Engine {
	return &Engine{
		source:     source,
		db:         db,
		pageSize:   pageSize,
		logger:     logger,
		reporter:   reporter,
		groupLocks: make(map[string]*gosync.Mutex),
	}
}

// Sync runs one full traversal for a group: load watermark, pick strategy,
// then fetch/write pages in ascending id order until caught up. The watermark
// advances only after a page is durably written, so an aborted run resumes
// exactly where the last committed page left off.
func (e *Engine) Sync(ctx context.Context, groupID string) Result {
	lock := e.lockFor(groupID)
	lock.Lock()
	defer lock.Unlock()

	res := Result{GroupID: groupID, RunID: uuid.NewString()}
	startedAt := time.Now().Unix()
	log := e.logger.With(zap.String("group_id", groupID), zap.String("run_id", res.RunID))

	// Refresh group metadata; creates the group on first encounter.
	remote, err := e.source.GetGroup(ctx, groupID)
	if err != nil {
		res.Err = err
		e.finish(log, &res, startedAt)
		return res
	}
	if err := e.db.UpsertGroup(groupFromRemote(remote)); err != nil {
		res.Err = err
		e.finish(log, &res, startedAt)
		return res
	}
	res.GroupName = remote.Name

	group, err := e.db.GetGroup(groupID)
	if err != nil {
		res.Err = err
		e.finish(log, &res, startedAt)
		return res
	}

	cursor := "0"
	res.Type = TypeFull
	if group.LastSyncedMessageID.Valid {
		cursor = group.LastSyncedMessageID.String
		res.Type = TypeIncremental
		res.Watermark = cursor
	}
	log.Info("sync started", zap.String("type", res.Type), zap.String("cursor", cursor))
	if e.reporter != nil {
		e.reporter.SyncStarted(groupID, remote.Name, res.Type)
	}

	for {
		page, err := e.source.Messages(ctx, groupID, groupme.MessageQuery{
			AfterID: cursor,
			Limit:   e.pageSize,
		})
		if err != nil {
			res.Err = err
			e.finish(log, &res, startedAt)
			return res
		}
		if len(page) == 0 {
			break
		}
		res.Fetched += len(page)

		batch := batchFromRemote(groupID, page)
		// Identifiers are the authoritative order key; timestamps can
		// collide at second resolution.
		sort.Slice(batch, func(i, j int) bool { return idLess(batch[i].ID, batch[j].ID) })

		if err := e.db.UpsertMessageBatch(batch); err != nil {
			res.Err = err
			e.finish(log, &res, startedAt)
			return res
		}

		newest := batch[len(batch)-1].ID
		if err := e.db.UpdateWatermark(groupID, newest); err != nil {
			res.Err = err
			e.finish(log, &res, startedAt)
			return res
		}
		res.Written += len(batch)
		res.Watermark = newest
		cursor = newest

		log.Debug("page written", zap.Int("page_size", len(batch)), zap.String("watermark", newest))
		if e.reporter != nil {
			e.reporter.PageSynced(groupID, len(batch), res.Written)
		}

		if len(page) < e.pageSize {
			break
		}
	}

	e.finish(log, &res, startedAt)
	return res
}

// SyncAll runs the per-group state machine for each group with bounded
// parallelism. A failure in one group never aborts the others; per-group
// outcomes land in the returned results.
func (e *Engine) SyncAll(ctx context.Context, groupIDs []string, concurrency int) []Result {
	if concurrency < 1 {
		concurrency = 1
	}
	results := make([]Result, len(groupIDs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, id := range groupIDs {
		i, id := i, id
		g.Go(func() error {
			results[i] = e.Sync(ctx, id)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// finish records the sync log row and logs the outcome. The watermark is
// whatever the last durable write left; failures never move it.
func (e *Engine) finish(log *zap.Logger, res *Result, startedAt int64) {
	entry := &store.SyncLog{
		RunID:           res.RunID,
		GroupID:         res.GroupID,
		StartedAt:       startedAt,
		CompletedAt:     time.Now().Unix(),
		SyncType:        res.Type,
		MessagesFetched: res.Fetched,
		MessagesWritten: res.Written,
		Status:          "completed",
	}
	if res.Err != nil {
		entry.Status = "failed"
		entry.ErrorMessage = res.Err.Error()
	}
	if err := e.db.RecordSyncLog(entry); err != nil {
		log.Warn("failed to record sync log", zap.Error(err))
	}

	if res.Err != nil {
		log.Error("sync failed",
			zap.Int("fetched", res.Fetched),
			zap.Int("written", res.Written),
			zap.Error(res.Err),
		)
		return
	}
	log.Info("sync completed",
		zap.String("type", res.Type),
		zap.Int("fetched", res.Fetched),
		zap.Int("written", res.Written),
		zap.String("watermark", res.Watermark),
	)
}

func (e *Engine) lockFor(groupID string) *gosync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.groupLocks[groupID]
	if !ok {
		l = &gosync.Mutex{}
		e.groupLocks[groupID] = l
	}
	return l
}

// idLess orders decimal message id strings numerically.
func idLess(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}
