// Package pomodoro runs focus sessions: alternating work and break phases for
// a configured number of cycles, mirrored into the store and announced to the
// user's conversation.
package pomodoro

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"focusbot/internal/db/models"
	"focusbot/internal/logger"
	"focusbot/internal/metrics"
	"focusbot/internal/notify"
	"focusbot/internal/schedule"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"go.uber.org/zap"
)

type Phase string

const (
	PhaseWork  Phase = "work"
	PhaseBreak Phase = "break"
)

type Config struct {
	WorkMinutes  int
	BreakMinutes int
	Cycles       int
}

// normalized replaces non-positive values with the defaults.
func (c Config) normalized() Config {
	if c.WorkMinutes <= 0 {
		c.WorkMinutes = models.DefaultWorkMinutes
	}
	if c.BreakMinutes <= 0 {
		c.BreakMinutes = models.DefaultBreakMinutes
	}
	if c.Cycles <= 0 {
		c.Cycles = models.DefaultCycles
	}
	return c
}

// Conversation is where session messages go.
type Conversation interface {
	Reply(ctx context.Context, text string, opts notify.Options) error
}

type senderConversation struct {
	sender notify.Sender
	userID string
}

func (c senderConversation) Reply(ctx context.Context, text string, opts notify.Options) error {
	return c.sender.SendMessageToUser(ctx, c.userID, text, opts)
}

// SenderConversation replies to userID through sender.
func SenderConversation(sender notify.Sender, userID string) Conversation {
	return senderConversation{sender: sender, userID: userID}
}

// Snapshot is a point-in-time view of a running session.
type Snapshot struct {
	UserID       string
	SessionID    uuid.UUID
	TaskTitle    string
	Phase        Phase
	Cycle        int
	Cycles       int
	WorkMinutes  int
	BreakMinutes int
	StartedAt    time.Time
	PhaseEndsAt  time.Time
}

// RenderFunc draws the timer screen whenever a phase begins.
type RenderFunc func(ctx context.Context, conv Conversation, s Snapshot) error

type Store interface {
	CreatePomodoroSession(ctx context.Context, platformID string, session *models.PomodoroSession) error
	UpdatePomodoroSession(ctx context.Context, id uuid.UUID, patch models.PomodoroPatch) error
	CompletePomodoroSession(ctx context.Context, id uuid.UUID) error
	DeactivatePomodoroSession(ctx context.Context, id uuid.UUID) error
	DeactivateStalePomodoroSessions(ctx context.Context) (int64, error)
}

type Option func(*Manager)

func WithRenderer(fn RenderFunc) Option {
	return func(m *Manager) {
		m.render = fn
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(m *Manager) {
		m.metrics = r
	}
}

// Manager owns the running sessions, at most one per user.
type Manager struct {
	store   Store
	sched   schedule.Scheduler
	log     *zap.Logger
	render  RenderFunc
	metrics metrics.Recorder

	mu       sync.Mutex
	sessions map[string]*runState
}

// runState is the in-memory side of a session. Transitions and Stop
// serialize on mu; once done is set nothing else is sent or persisted.
type runState struct {
	mu     sync.Mutex
	done   bool
	userID string
	conv   Conversation
	task   *models.Task
	cfg    Config
	id     uuid.UUID
	cycle  int
	phase  Phase
	start  time.Time
	ends   time.Time
	timer  schedule.Handle
	snap   atomic.Pointer[Snapshot]
}

func NewManager(store Store, sched schedule.Scheduler, log *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		sched:    sched,
		log:      log,
		metrics:  metrics.Nop{},
		sessions: make(map[string]*runState),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Reconcile deactivates session rows left active by a previous process.
// Those sessions are not resumed.
func (m *Manager) Reconcile(ctx context.Context) error {
	n, err := m.store.DeactivateStalePomodoroSessions(ctx)
	if err != nil {
		return goerr.Wrap(err, "failed to reconcile pomodoro sessions")
	}
	if n > 0 {
		m.log.Info("deactivated stale pomodoro sessions", zap.Int64("count", n))
	}
	return nil
}

// Start replaces any running session of userID with a new one and enters its
// first work phase. task may be nil.
func (m *Manager) Start(ctx context.Context, userID string, conv Conversation, task *models.Task, cfg Config) error {
	m.Stop(ctx, userID, false)

	// Transitions outlive the request that started the session.
	ctx = context.WithoutCancel(ctx)
	cfg = cfg.normalized()

	row := &models.PomodoroSession{
		WorkMinutes:  cfg.WorkMinutes,
		BreakMinutes: cfg.BreakMinutes,
		Cycles:       cfg.Cycles,
		CurrentCycle: 1,
	}
	if task != nil && task.ID != uuid.Nil {
		id := task.ID
		row.TaskID = &id
	}
	if err := m.store.CreatePomodoroSession(ctx, userID, row); err != nil {
		return goerr.Wrap(err, "failed to create pomodoro session", goerr.V("user_id", userID))
	}

	rs := &runState{
		userID: userID,
		conv:   conv,
		task:   task,
		cfg:    cfg,
		id:     row.ID,
		cycle:  1,
		start:  m.sched.Now(),
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	m.mu.Lock()
	prev := m.sessions[userID]
	m.sessions[userID] = rs
	m.mu.Unlock()

	// A concurrent Start for the same user got in between.
	if prev != nil {
		m.halt(ctx, prev, false)
	}

	m.log.Info("pomodoro started",
		zap.String("user_id", userID),
		zap.String("session_id", rs.id.String()),
		zap.Int("work_minutes", cfg.WorkMinutes),
		zap.Int("break_minutes", cfg.BreakMinutes),
		zap.Int("cycles", cfg.Cycles),
	)
	m.enterWork(ctx, rs)
	return nil
}

// Stop cancels the user's session. It reports whether one was running.
func (m *Manager) Stop(ctx context.Context, userID string, notifyUser bool) bool {
	m.mu.Lock()
	rs, ok := m.sessions[userID]
	if ok {
		delete(m.sessions, userID)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	return m.halt(ctx, rs, notifyUser)
}

// halt ends rs unless a transition already finished it.
func (m *Manager) halt(ctx context.Context, rs *runState, notifyUser bool) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.done {
		return false
	}
	rs.done = true
	m.sched.Cancel(rs.timer)

	if err := m.store.DeactivatePomodoroSession(ctx, rs.id); err != nil {
		m.log.Error("failed to deactivate pomodoro session", append(logger.ErrFields(err),
			zap.String("user_id", rs.userID))...)
	}
	m.log.Info("pomodoro stopped", zap.String("user_id", rs.userID), zap.Int("cycle", rs.cycle))

	if notifyUser {
		m.reply(ctx, rs, "⏹️ Pomodoro stopped.", notify.FormatPlain)
	}
	return true
}

// Get returns the running session of userID.
func (m *Manager) Get(userID string) (Snapshot, bool) {
	m.mu.Lock()
	rs, ok := m.sessions[userID]
	m.mu.Unlock()

	if !ok {
		return Snapshot{}, false
	}
	snap := rs.snap.Load()
	if snap == nil {
		return Snapshot{}, false
	}
	return *snap, true
}

// Active reports how many sessions are running.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// after schedules next to run under rs.mu once d has elapsed, unless the
// session ended first.
func (m *Manager) after(ctx context.Context, rs *runState, d time.Duration, next func(context.Context, *runState)) {
	rs.ends = m.sched.Now().Add(d)
	rs.timer = m.sched.After(d, func() {
		rs.mu.Lock()
		defer rs.mu.Unlock()
		if rs.done {
			return
		}
		next(ctx, rs)
	})
}

func (m *Manager) enterWork(ctx context.Context, rs *runState) {
	rs.phase = PhaseWork
	m.after(ctx, rs, time.Duration(rs.cfg.WorkMinutes)*time.Minute, m.enterBreak)
	m.phaseStarted(ctx, rs)
}

func (m *Manager) enterBreak(ctx context.Context, rs *runState) {
	rs.phase = PhaseBreak
	m.after(ctx, rs, time.Duration(rs.cfg.BreakMinutes)*time.Minute, m.finishCycle)
	m.phaseStarted(ctx, rs)
}

func (m *Manager) finishCycle(ctx context.Context, rs *runState) {
	completed := rs.cycle
	rs.cycle++

	next := rs.cycle
	if err := m.store.UpdatePomodoroSession(ctx, rs.id, models.PomodoroPatch{CurrentCycle: &next}); err != nil {
		m.log.Error("failed to update pomodoro session", append(logger.ErrFields(err),
			zap.String("user_id", rs.userID))...)
	}

	if rs.cycle > rs.cfg.Cycles {
		m.complete(ctx, rs)
		return
	}

	m.reply(ctx, rs, fmt.Sprintf("✅ *Cycle %d complete!*\n\nStarting cycle %d/%d.", completed, rs.cycle, rs.cfg.Cycles),
		notify.FormatMarkdown)
	m.enterWork(ctx, rs)
}

func (m *Manager) complete(ctx context.Context, rs *runState) {
	rs.done = true

	m.mu.Lock()
	if m.sessions[rs.userID] == rs {
		delete(m.sessions, rs.userID)
	}
	m.mu.Unlock()

	if err := m.store.CompletePomodoroSession(ctx, rs.id); err != nil {
		m.log.Error("failed to complete pomodoro session", append(logger.ErrFields(err),
			zap.String("user_id", rs.userID))...)
	}
	m.metrics.PomodoroCompleted()
	m.log.Info("pomodoro completed", zap.String("user_id", rs.userID), zap.Int("cycles", rs.cfg.Cycles))

	m.reply(ctx, rs, "✅ *Pomodoro complete!*\n\nGreat work, all cycles are done.", notify.FormatMarkdown)
}

func (m *Manager) phaseStarted(ctx context.Context, rs *runState) {
	snap := rs.snapshot()
	rs.snap.Store(&snap)
	m.metrics.PomodoroPhase(string(rs.phase))

	if m.render == nil {
		return
	}
	if err := m.render(ctx, rs.conv, snap); err != nil {
		m.log.Warn("failed to render timer", append(logger.ErrFields(err),
			zap.String("user_id", rs.userID))...)
	}
}

func (m *Manager) reply(ctx context.Context, rs *runState, text string, format notify.Format) {
	if rs.conv == nil {
		return
	}
	if err := rs.conv.Reply(ctx, text, notify.Options{Format: format}); err != nil {
		m.log.Error("failed to send pomodoro message", append(logger.ErrFields(err),
			zap.String("user_id", rs.userID))...)
	}
}

func (rs *runState) snapshot() Snapshot {
	s := Snapshot{
		UserID:       rs.userID,
		SessionID:    rs.id,
		Phase:        rs.phase,
		Cycle:        rs.cycle,
		Cycles:       rs.cfg.Cycles,
		WorkMinutes:  rs.cfg.WorkMinutes,
		BreakMinutes: rs.cfg.BreakMinutes,
		StartedAt:    rs.start,
		PhaseEndsAt:  rs.ends,
	}
	if rs.task != nil {
		s.TaskTitle = rs.task.Title
	}
	return s
}
