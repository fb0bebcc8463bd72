// Package chat drives conversations: it owns the active session, streams
// completions to the caller and commits finished turns to history.
package chat

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/shibayu36/personachat/config"
	"github.com/shibayu36/personachat/llm"
	"github.com/shibayu36/personachat/logging"
	"github.com/shibayu36/personachat/memory"
	"github.com/shibayu36/personachat/persona"
)

var (
	ErrNoActiveSession     = errors.New("no active conversation")
	ErrEngineNotConfigured = errors.New("completion backend is not configured")
	ErrInvalidTitle        = errors.New("title must not be empty")
)

// ErrorPrefix starts every in-band error fragment.
const ErrorPrefix = "[error] "

// Engine is the completion backend used by the orchestrator.
type Engine interface {
	Stream(ctx context.Context, messages []memory.Message, p llm.Params) iter.Seq2[string, error]
	Complete(ctx context.Context, messages []memory.Message, p llm.Params) (string, error)
	Title(ctx context.Context, model, userText, reply string) (string, error)
}

// EngineFactory builds an engine for a configured backend.
type EngineFactory func(cfg config.Config) Engine

// Personas resolves persona ids.
type Personas interface {
	Load(name string) (persona.Persona, error)
}

// Store persists conversation documents.
type Store interface {
	Save(c *memory.Conversation) error
	Load(id string) (*memory.Conversation, error)
	Delete(id string) (bool, error)
	ListSummaries() ([]memory.Summary, error)
}

type Orchestrator struct {
	personas  Personas
	store     Store
	newEngine EngineFactory
	newID     func() string
	log       *logrus.Entry

	mu     sync.RWMutex
	cfg    config.Config
	engine Engine
}

func NewOrchestrator(personas Personas, store Store, newEngine EngineFactory) *Orchestrator {
	return &Orchestrator{
		personas:  personas,
		store:     store,
		newEngine: newEngine,
		newID:     func() string { return uuid.NewString()[:8] },
		log:       logging.NewLogger("chat"),
		cfg:       config.Default(),
	}
}

// Configure installs new backend settings and rebuilds the engine.
// An unconfigured record leaves the orchestrator without an engine.
func (o *Orchestrator) Configure(cfg config.Config) {
	var engine Engine
	if cfg.Configured() && o.newEngine != nil {
		engine = o.newEngine(cfg)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.cfg = cfg
	o.engine = engine
}

// Settings returns the current backend settings.
func (o *Orchestrator) Settings() config.Config {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.cfg
}

func (o *Orchestrator) current() (Engine, config.Config) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.engine, o.cfg
}

type StartResult struct {
	Greeting string
	ID       string
	Messages []memory.Message
	Model    string
}

// StartNew creates a conversation seeded by a persona and makes it the active one.
// It is not persisted until its first exchange completes.
func (o *Orchestrator) StartNew(ctx context.Context, sess *Session, personaID string) (*StartResult, error) {
	p, err := o.personas.Load(personaID)
	if err != nil {
		return nil, err
	}

	cfg := o.Settings()
	conv := &memory.Conversation{
		ID:         o.newID(),
		Title:      memory.UntitledTitle,
		PromptFile: personaID,
		Model:      cfg.Model,
		Messages:   []memory.Message{{Role: memory.RoleSystem, Content: p.System}},
	}

	sess.mu.Lock()
	sess.conv = conv
	sess.mu.Unlock()

	logging.FromContext(ctx, o.log).WithFields(logrus.Fields{
		"conversation_id": conv.ID,
		"persona":         personaID,
	}).Info("started conversation")

	return &StartResult{
		Greeting: p.Greeting,
		ID:       conv.ID,
		Messages: append([]memory.Message(nil), conv.Messages...),
		Model:    conv.Model,
	}, nil
}

// Load makes a stored conversation the active one.
// On failure the active conversation is left as it was.
func (o *Orchestrator) Load(ctx context.Context, sess *Session, id string) (*memory.Conversation, error) {
	conv, err := o.store.Load(id)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	sess.conv = conv
	sess.mu.Unlock()

	logging.FromContext(ctx, o.log).WithField("conversation_id", id).Info("loaded conversation")
	return conv.Clone(), nil
}

// History lists stored conversations, most recent first.
func (o *Orchestrator) History(ctx context.Context) ([]memory.Summary, error) {
	return o.store.ListSummaries()
}

// SubmitTurn sends text as the next user turn of the active conversation.
//
// The returned sequence yields the reply as it arrives and may be ranged
// over once. When it is exhausted the assistant turn is appended and the
// conversation saved; after the first exchange a title is derived. Backend
// failures end the sequence with one ErrorPrefix fragment and nothing is
// saved. If the consumer stops early nothing is saved either. In both cases
// the user turn stays in memory and is replaced by the next submission.
func (o *Orchestrator) SubmitTurn(ctx context.Context, sess *Session, text string) (iter.Seq[string], error) {
	if sess.ActiveID() == "" {
		return nil, ErrNoActiveSession
	}

	engine, cfg := o.current()
	if engine == nil {
		return single(errorFragment(fmt.Errorf("%w: save an API key and base URL in settings", ErrEngineNotConfigured))), nil
	}

	var used atomic.Bool
	return func(yield func(string) bool) {
		if used.Swap(true) {
			return
		}

		sess.mu.Lock()
		defer sess.mu.Unlock()

		conv := sess.conv
		if conv == nil {
			yield(errorFragment(ErrNoActiveSession))
			return
		}
		log := logging.FromContext(ctx, o.log).WithField("conversation_id", conv.ID)

		appendUserTurn(conv, text)
		params := llm.Params{
			Model:       effectiveModel(conv, cfg),
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		}
		messages := append([]memory.Message(nil), conv.Messages...)

		reply, ok := o.generate(ctx, log, engine, cfg.Stream, messages, params, yield)
		if !ok {
			return
		}

		conv.Messages = append(conv.Messages, memory.Message{Role: memory.RoleAssistant, Content: reply})
		if err := o.store.Save(conv); err != nil {
			log.WithError(err).Error("failed to save conversation")
			yield(errorFragment(err))
			return
		}
		log.WithField("turns", len(conv.Messages)).Info("turn committed")

		if len(conv.Messages) == 3 && conv.Title == memory.UntitledTitle {
			if err := o.deriveTitle(ctx, engine, conv, params.Model, text, reply); err != nil {
				log.WithError(err).Debug("title not derived")
			}
		}
	}, nil
}

// generate runs one completion, yielding its text. It reports false when the
// call failed or the consumer stopped, in which case nothing may be committed.
func (o *Orchestrator) generate(
	ctx context.Context,
	log *logrus.Entry,
	engine Engine,
	stream bool,
	messages []memory.Message,
	params llm.Params,
	yield func(string) bool,
) (string, bool) {
	if !stream {
		reply, err := engine.Complete(ctx, messages, params)
		if err != nil {
			o.reportFailure(ctx, log, err, yield)
			return "", false
		}
		return reply, yield(reply)
	}

	var full strings.Builder
	for fragment, err := range engine.Stream(ctx, messages, params) {
		if err != nil {
			o.reportFailure(ctx, log, err, yield)
			return "", false
		}
		full.WriteString(fragment)
		if !yield(fragment) {
			log.Info("consumer stopped, turn discarded")
			return "", false
		}
	}
	return full.String(), true
}

func (o *Orchestrator) reportFailure(ctx context.Context, log *logrus.Entry, err error, yield func(string) bool) {
	if ctx.Err() != nil {
		log.WithError(err).Info("request cancelled, turn discarded")
		return
	}
	log.WithError(err).Warn("completion failed")
	yield(errorFragment(err))
}

func (o *Orchestrator) deriveTitle(ctx context.Context, engine Engine, conv *memory.Conversation, model, userText, reply string) error {
	title, err := engine.Title(ctx, model, userText, reply)
	if err != nil {
		return err
	}

	prev := conv.Title
	conv.Title = title
	if err := o.store.Save(conv); err != nil {
		conv.Title = prev
		return err
	}
	logging.FromContext(ctx, o.log).WithFields(logrus.Fields{
		"conversation_id": conv.ID,
		"title":           title,
	}).Info("title derived")
	return nil
}

// SettingsInput carries the optional fields of UpdateSettings.
type SettingsInput struct {
	Model     *string
	PersonaID *string
}

// SettingsResult is the updated conversation and, after a persona switch,
// a unified diff of the system prompt.
type SettingsResult struct {
	Conversation *memory.Conversation
	PromptDiff   string
}

// UpdateSettings changes the model override and/or persona of the active
// conversation and saves it. A persona switch replaces only the system turn.
// A user turn still waiting for a reply is kept in memory but not saved.
func (o *Orchestrator) UpdateSettings(ctx context.Context, sess *Session, in SettingsInput) (*SettingsResult, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.conv == nil {
		return nil, ErrNoActiveSession
	}
	next := sess.conv.Clone()
	log := logging.FromContext(ctx, o.log).WithField("conversation_id", next.ID)

	var diff string
	if in.PersonaID != nil {
		p, err := o.personas.Load(*in.PersonaID)
		if err != nil {
			return nil, err
		}
		var old string
		if next.HasSystemTurn() {
			old = next.Messages[0].Content
		}
		next.SetSystemPrompt(p.System)
		diff = promptDiff(next.PromptFile, *in.PersonaID, old, p.System)
		next.PromptFile = *in.PersonaID
	}
	if in.Model != nil {
		next.Model = strings.TrimSpace(*in.Model)
	}

	saved := answeredOnly(next)
	if err := o.store.Save(saved); err != nil {
		return nil, err
	}
	next.UpdatedAt = saved.UpdatedAt
	sess.conv = next

	log.WithFields(logrus.Fields{
		"persona": next.PromptFile,
		"model":   next.Model,
	}).Info("settings updated")
	if diff != "" {
		log.WithField("diff", diff).Info("system prompt replaced")
	}
	return &SettingsResult{Conversation: next.Clone(), PromptDiff: diff}, nil
}

// Rename sets a conversation's title and keeps the active copy in step.
// The active conversation can be renamed before it is first saved.
func (o *Orchestrator) Rename(ctx context.Context, sess *Session, id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrInvalidTitle
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	active := sess.isActive(id)
	stored, err := o.store.Load(id)
	switch {
	case errors.Is(err, memory.ErrNotFound) && active:
		// not saved yet
	case err != nil:
		return err
	default:
		stored.Title = title
		if err := o.store.Save(stored); err != nil {
			return err
		}
	}

	if active {
		sess.conv.Title = title
	}
	logging.FromContext(ctx, o.log).WithFields(logrus.Fields{
		"conversation_id": id,
		"title":           title,
	}).Info("conversation renamed")
	return nil
}

// Delete removes a conversation. Deleting the active one clears the session.
func (o *Orchestrator) Delete(ctx context.Context, sess *Session, id string) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	removed, err := o.store.Delete(id)
	if err != nil {
		return err
	}
	active := sess.isActive(id)
	if !removed && !active {
		return memory.ErrNotFound
	}
	if active {
		sess.conv = nil
	}

	logging.FromContext(ctx, o.log).WithFields(logrus.Fields{
		"conversation_id": id,
		"was_active":      active,
	}).Info("conversation deleted")
	return nil
}

// appendUserTurn adds a user turn, replacing a trailing user turn that never got a reply.
func appendUserTurn(conv *memory.Conversation, text string) {
	if n := len(conv.Messages); n > 0 && conv.Messages[n-1].Role == memory.RoleUser {
		conv.Messages[n-1].Content = text
		return
	}
	conv.Messages = append(conv.Messages, memory.Message{Role: memory.RoleUser, Content: text})
}

// answeredOnly returns conv without a trailing user turn that never got a reply.
func answeredOnly(conv *memory.Conversation) *memory.Conversation {
	n := len(conv.Messages)
	if n == 0 || conv.Messages[n-1].Role != memory.RoleUser {
		return conv
	}
	c := conv.Clone()
	c.Messages = c.Messages[:n-1]
	return c
}

func effectiveModel(conv *memory.Conversation, cfg config.Config) string {
	if conv.Model != "" {
		return conv.Model
	}
	return cfg.Model
}

func errorFragment(err error) string {
	return ErrorPrefix + err.Error()
}

func single(s string) iter.Seq[string] {
	return func(yield func(string) bool) {
		yield(s)
	}
}
