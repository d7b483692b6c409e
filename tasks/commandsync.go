package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hiyocord/hiyocord-nexus/discord"
	"github.com/hiyocord/hiyocord-nexus/interfaces"
	"github.com/hiyocord/hiyocord-nexus/metrics"
	"go.uber.org/atomic"
)

const (
	DefaultQueueSize      = 64
	DefaultDeadLetterSize = 100
	DefaultSyncTimeout    = 30 * time.Second
)

var (
	ErrQueueFull   = errors.New("command sync queue is full")
	ErrQueueClosed = errors.New("command sync queue is closed")
)

// CommandRegistrar replaces command sets on Discord.
type CommandRegistrar interface {
	PutGlobalCommands(ctx context.Context, applicationID string, commands []interfaces.Command) error
	PutGuildCommands(ctx context.Context, applicationID, guildID string, commands []interfaces.Command) error
}

// Task is one requested command re-registration.
type Task struct {
	ID         string
	Reason     string
	EnqueuedAt time.Time

	done chan struct{}
	err  error
}

// Done is closed once the task completed or was dead-lettered.
func (t *Task) Done() <-chan struct{} { return t.done }

// Err returns the sync failure, valid after Done is closed.
func (t *Task) Err() error { return t.err }

// Wait blocks until the task finishes or ctx is done.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Task) finish(err error) {
	t.err = err
	close(t.done)
}

// DeadLetter records a task whose sync failed.
type DeadLetter struct {
	TaskID   string    `json:"task_id"`
	Reason   string    `json:"reason"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}

type CommandSyncConfig struct {
	ApplicationID  string
	QueueSize      int
	DeadLetterSize int
	SyncTimeout    time.Duration
}

// CommandSyncQueue re-registers Discord commands after manifests change.
//
// Every sync publishes the complete command state computed from all stored
// manifests, so tasks queued while a sync is running are coalesced into the
// next run. A failed run is not retried; its tasks are dead-lettered and the
// next successful run repairs Discord's state.
type CommandSyncQueue struct {
	cfg       CommandSyncConfig
	manifests interfaces.ManifestRepository
	registrar CommandRegistrar
	log       *slog.Logger

	queue     chan *Task
	closeOnce sync.Once
	closed    chan struct{}
	stopped   chan struct{}
	running   atomic.Bool

	// guilds that currently hold commands published by this process
	syncedGuilds map[string]bool

	dlMu        sync.Mutex
	deadLetters []DeadLetter

	completed    atomic.Int64
	deadLettered atomic.Int64
}

func NewCommandSyncQueue(cfg CommandSyncConfig, manifests interfaces.ManifestRepository, registrar CommandRegistrar, log *slog.Logger) *CommandSyncQueue {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.DeadLetterSize <= 0 {
		cfg.DeadLetterSize = DefaultDeadLetterSize
	}
	if cfg.SyncTimeout <= 0 {
		cfg.SyncTimeout = DefaultSyncTimeout
	}

	return &CommandSyncQueue{
		cfg:          cfg,
		manifests:    manifests,
		registrar:    registrar,
		log:          log,
		queue:        make(chan *Task, cfg.QueueSize),
		closed:       make(chan struct{}),
		stopped:      make(chan struct{}),
		syncedGuilds: make(map[string]bool),
	}
}

// Enqueue schedules a sync and returns immediately.
func (q *CommandSyncQueue) Enqueue(reason string) (*Task, error) {
	task := &Task{
		ID:         uuid.NewString(),
		Reason:     reason,
		EnqueuedAt: time.Now(),
		done:       make(chan struct{}),
	}

	select {
	case <-q.closed:
		return nil, ErrQueueClosed
	default:
	}

	select {
	case q.queue <- task:
		metrics.SetCommandSyncQueueDepth(len(q.queue))
		q.log.Debug("Command sync enqueued", slog.String("taskID", task.ID), slog.String("reason", reason))
		return task, nil
	default:
		return nil, ErrQueueFull
	}
}

// Run processes tasks until ctx is cancelled or Close is called. Tasks
// still queued at that point are dead-lettered.
func (q *CommandSyncQueue) Run(ctx context.Context) {
	q.running.Store(true)
	defer close(q.stopped)
	defer q.closeOnce.Do(func() { close(q.closed) })

	for {
		select {
		case <-ctx.Done():
			q.abandon(ctx.Err())
			return
		case <-q.closed:
			q.abandon(ErrQueueClosed)
			return
		case task := <-q.queue:
			batch := append([]*Task{task}, q.drain()...)
			metrics.SetCommandSyncQueueDepth(len(q.queue))
			q.process(ctx, batch)
		}
	}
}

// Close stops Run and waits for it to return.
func (q *CommandSyncQueue) Close() {
	q.closeOnce.Do(func() { close(q.closed) })
	if q.running.Load() {
		<-q.stopped
	}
}

func (q *CommandSyncQueue) drain() []*Task {
	var tasks []*Task
	for {
		select {
		case task := <-q.queue:
			tasks = append(tasks, task)
		default:
			return tasks
		}
	}
}

func (q *CommandSyncQueue) abandon(cause error) {
	for _, task := range q.drain() {
		q.deadLetter(task, fmt.Errorf("command sync abandoned: %w", cause))
	}
	metrics.SetCommandSyncQueueDepth(len(q.queue))
}

func (q *CommandSyncQueue) process(ctx context.Context, batch []*Task) {
	syncCtx, cancel := context.WithTimeout(ctx, q.cfg.SyncTimeout)
	defer cancel()

	start := time.Now()
	err := q.sync(syncCtx)
	for _, task := range batch {
		if err != nil {
			q.deadLetter(task, err)
			continue
		}
		q.completed.Inc()
		metrics.RecordCommandSync(metrics.OutcomeCompleted)
		task.finish(nil)
	}

	if err != nil {
		q.log.Error("Command sync failed", "err", err, slog.Int("tasks", len(batch)))
		return
	}
	q.log.Info("Commands synced", slog.Int("tasks", len(batch)), slog.Duration("duration", time.Since(start)))
}

func (q *CommandSyncQueue) deadLetter(task *Task, err error) {
	q.dlMu.Lock()
	q.deadLetters = append(q.deadLetters, DeadLetter{
		TaskID:   task.ID,
		Reason:   task.Reason,
		Error:    err.Error(),
		FailedAt: time.Now(),
	})
	if over := len(q.deadLetters) - q.cfg.DeadLetterSize; over > 0 {
		q.deadLetters = q.deadLetters[over:]
	}
	metrics.SetCommandSyncDeadLetters(len(q.deadLetters))
	q.dlMu.Unlock()

	q.deadLettered.Inc()
	metrics.RecordCommandSync(metrics.OutcomeDeadLettered)
	task.finish(err)
}

// sync publishes the global set and every guild set. Guilds that held
// commands after an earlier sync but have none now get an empty list.
func (q *CommandSyncQueue) sync(ctx context.Context) error {
	all, err := q.manifests.FindAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load manifests: %w", err)
	}
	sets := discord.BuildCommandSets(all)

	if err := q.registrar.PutGlobalCommands(ctx, q.cfg.ApplicationID, sets.Global); err != nil {
		return fmt.Errorf("failed to register global commands: %w", err)
	}

	var errs []error
	for _, guildID := range sets.GuildIDs() {
		if err := q.registrar.PutGuildCommands(ctx, q.cfg.ApplicationID, guildID, sets.Guilds[guildID]); err != nil {
			errs = append(errs, fmt.Errorf("guild %s: %w", guildID, err))
			continue
		}
		q.syncedGuilds[guildID] = true
	}
	for guildID := range q.syncedGuilds {
		if _, ok := sets.Guilds[guildID]; ok {
			continue
		}
		if err := q.registrar.PutGuildCommands(ctx, q.cfg.ApplicationID, guildID, []interfaces.Command{}); err != nil {
			errs = append(errs, fmt.Errorf("guild %s: %w", guildID, err))
			continue
		}
		delete(q.syncedGuilds, guildID)
	}
	return errors.Join(errs...)
}

// DeadLetters returns a copy of the most recent dead-lettered tasks.
func (q *CommandSyncQueue) DeadLetters() []DeadLetter {
	q.dlMu.Lock()
	defer q.dlMu.Unlock()
	return append([]DeadLetter(nil), q.deadLetters...)
}

type Stats struct {
	Pending      int   `json:"pending"`
	Completed    int64 `json:"completed"`
	DeadLettered int64 `json:"dead_lettered"`
}

func (q *CommandSyncQueue) Stats() Stats {
	return Stats{
		Pending:      len(q.queue),
		Completed:    q.completed.Load(),
		DeadLettered: q.deadLettered.Load(),
	}
}
