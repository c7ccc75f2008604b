package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"focusbot/internal/db/models"
	"focusbot/internal/logger"

	"go.uber.org/zap"
)

type FlowKind int

const (
	FlowNone FlowKind = iota
	FlowTask
	FlowEvent
)

type Step int

const (
	StepTitle Step = iota
	StepDescription
	StepDue
	StepDatetime
	StepReminder
)

type TaskDraft struct {
	Title       string
	Description string
}

type EventDraft struct {
	Title string
	At    time.Time
}

// Flow is a multi-step DM dialog in progress. Exactly one of Task and Event
// is set, matching Kind.
type Flow struct {
	Kind  FlowKind
	Step  Step
	Task  *TaskDraft
	Event *EventDraft
}

// SessionStore keeps at most one flow per user. Flows live in memory only.
// Changes to one user's flow are serialized by a per-user lock; flows of
// different users advance in parallel.
type SessionStore struct {
	mu    sync.Mutex
	flows map[string]*Flow
	locks map[string]*sync.Mutex
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		flows: make(map[string]*Flow),
		locks: make(map[string]*sync.Mutex),
	}
}

func (s *SessionStore) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

func (s *SessionStore) SetSession(userID string, f *Flow) {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.flows[userID] = f
}

// GetSession returns a copy of the user's flow.
func (s *SessionStore) GetSession(userID string) (Flow, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.flows[userID]
	if !ok {
		return Flow{}, false
	}
	return f.clone(), true
}

func (s *SessionStore) ClearSession(userID string) {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.flows, userID)
}

// Update runs fn on the user's flow while holding the user's lock. The flow
// is removed when fn reports done. Update reports false when the user has no
// flow.
func (s *SessionStore) Update(userID string, fn func(f *Flow) (done bool)) bool {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	f, ok := s.flows[userID]
	s.mu.Unlock()
	if !ok {
		return false
	}

	if fn(f) {
		s.mu.Lock()
		delete(s.flows, userID)
		s.mu.Unlock()
	}
	return true
}

func (f *Flow) clone() Flow {
	c := *f
	if f.Task != nil {
		t := *f.Task
		c.Task = &t
	}
	if f.Event != nil {
		e := *f.Event
		c.Event = &e
	}
	return c
}

func (b *Bot) startTaskFlow(userID string) string {
	b.flows.SetSession(userID, &Flow{Kind: FlowTask, Step: StepTitle, Task: &TaskDraft{}})
	return "📝 New task. Send me its title (or `cancel`)."
}

func (b *Bot) startEventFlow(userID string) string {
	b.flows.SetSession(userID, &Flow{Kind: FlowEvent, Step: StepTitle, Event: &EventDraft{}})
	return "📆 New event. Send me its title (or `cancel`)."
}

// HandleText advances the user's flow with a DM. It reports false when the
// user has no flow, so the message is ignored.
func (b *Bot) HandleText(ctx context.Context, userID, text string) (string, bool) {
	text = strings.TrimSpace(text)

	var reply string
	handled := true
	found := b.flows.Update(userID, func(flow *Flow) bool {
		if text == "" {
			return false
		}
		if strings.EqualFold(text, "cancel") {
			reply = "Cancelled."
			return true
		}

		switch flow.Kind {
		case FlowTask:
			var done bool
			reply, done = b.advanceTask(ctx, userID, flow, text)
			return done
		case FlowEvent:
			var done bool
			reply, done = b.advanceEvent(ctx, userID, flow, text)
			return done
		default:
			handled = false
			return true
		}
	})
	if !found {
		return "", false
	}
	return reply, handled
}

func (b *Bot) advanceTask(ctx context.Context, userID string, flow *Flow, text string) (string, bool) {
	switch flow.Step {
	case StepTitle:
		flow.Task.Title = text
		flow.Step = StepDescription
		return "Add a description, or send `-` to skip.", false

	case StepDescription:
		if text != "-" {
			flow.Task.Description = text
		}
		flow.Step = StepDue
		return "When is it due? For example `25.11.2025 18:00`, or `-` for no due date.", false

	case StepDue:
		task := &models.Task{Title: flow.Task.Title, Description: flow.Task.Description}
		loc := b.userLocation(ctx, userID)
		if text != "-" {
			due, err := parseDate(text, loc)
			if err != nil {
				return "I could not read that date. Try `25.11.2025 18:00`.", false
			}
			task.DueDate = &due
		}

		if err := b.store.UpsertTask(ctx, userID, task); err != nil {
			b.log.Error("failed to save task", append(logger.ErrFields(err), zap.String("user_id", userID))...)
			return "Error: could not save the task, please try again.", false
		}
		return "✅ " + describeSavedTask(task, loc), true
	}

	return "", true
}

func (b *Bot) advanceEvent(ctx context.Context, userID string, flow *Flow, text string) (string, bool) {
	loc := b.userLocation(ctx, userID)

	switch flow.Step {
	case StepTitle:
		flow.Event.Title = text
		flow.Step = StepDatetime
		return "When does it start? For example `25.11.2025 10:30`.", false

	case StepDatetime:
		at, err := parseDate(text, loc)
		if err != nil {
			return "I could not read that date. Try `25.11.2025 10:30`.", false
		}
		flow.Event.At = at
		flow.Step = StepReminder
		return "How many minutes before should I remind you? `0` turns the reminder off.", false

	case StepReminder:
		minutes, err := strconv.Atoi(text)
		if err != nil || minutes < 0 {
			return "Send a whole number of minutes, for example `15`.", false
		}

		event := &models.Event{Title: flow.Event.Title, At: flow.Event.At}
		if minutes > 0 {
			event.ReminderMinutes = &minutes
		}
		if err := b.saveEvent(ctx, userID, event); err != nil {
			return "Error: could not save the event, please try again.", false
		}
		return "✅ " + describeSavedEvent(event, loc), true
	}

	return "", true
}

func describeSavedTask(t *models.Task, loc *time.Location) string {
	if t.DueDate == nil {
		return fmt.Sprintf("Task \"%s\" saved.", t.Title)
	}
	return fmt.Sprintf("Task \"%s\" saved, due %s.", t.Title, t.DueDate.In(loc).Format(displayLayout))
}

func describeSavedEvent(e *models.Event, loc *time.Location) string {
	s := fmt.Sprintf("Event \"%s\" created for %s.", e.Title, e.At.In(loc).Format(displayLayout))
	if e.ReminderMinutes != nil {
		s += fmt.Sprintf(" I will remind you %d min before.", *e.ReminderMinutes)
	}
	return s
}
