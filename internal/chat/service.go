package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode"

	"github.com/suPer8Hu/chatcore/internal/ai"
	"github.com/suPer8Hu/chatcore/internal/cancel"
	"github.com/suPer8Hu/chatcore/internal/chatctx"
	"github.com/suPer8Hu/chatcore/internal/common"
	"github.com/suPer8Hu/chatcore/internal/models"
)

const (
	defaultTopicName = "New Topic"
	// a topic is named once it has a question and an answer
	namingThreshold = 2
)

// Attachments is the slice of the attachment store the service needs. Every
// stored message holds one reference per attached file.
type Attachments interface {
	AcquireMany(ctx context.Context, ids []string) error
	ReleaseMany(ctx context.Context, ids []string) error
}

// Service is the completion orchestrator and owner of assistant, topic and
// message state.
type Service struct {
	repo     *Repo
	registry *ai.Registry
	files    Attachments
	bus      cancel.Bus
	namer    Namer
	logger   *slog.Logger

	mu     sync.Mutex
	active map[string]int
	subs   map[int]func(Event)
	nextID int
}

func NewService(repo *Repo, registry *ai.Registry, files Attachments, bus cancel.Bus, logger *slog.Logger) *Service {
	if bus == nil {
		bus = cancel.NewMemory()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		registry: registry,
		files:    files,
		bus:      bus,
		logger:   logger,
		active:   make(map[string]int),
		subs:     make(map[int]func(Event)),
	}
}

// SetNamer installs the title-naming scheduler. Without one, topics keep
// their default title.
func (s *Service) SetNamer(n Namer) { s.namer = n }

func (s *Service) Registry() *ai.Registry { return s.registry }

// Subscribe registers a listener for lifecycle events. Listeners must not block.
func (s *Service) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Service) publish(ev Event) {
	s.mu.Lock()
	fns := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (s *Service) begin(surface string) {
	s.mu.Lock()
	s.active[surface]++
	s.mu.Unlock()
}

func (s *Service) end(surface string) {
	s.mu.Lock()
	if s.active[surface] <= 1 {
		delete(s.active, surface)
	} else {
		s.active[surface]--
	}
	s.mu.Unlock()
}

// Streaming reports whether a completion is running on the surface.
func (s *Service) Streaming(surface string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[surface] > 0
}

// Send stores the user message, streams the assistant reply and returns the
// final assistant message. Provider failures and cancellation end up in the
// message status, not in the returned error; the error covers validation
// and storage problems.
func (s *Service) Send(ctx context.Context, req SendRequest, observe func(Event)) (*models.Message, error) {
	if observe == nil {
		observe = func(Event) {}
	}
	if strings.TrimSpace(req.Content) == "" && len(req.Files) == 0 {
		return nil, ErrEmptyMessage
	}

	topic, err := s.repo.GetTopic(ctx, req.TopicID)
	if err != nil {
		return nil, err
	}
	assistant, err := s.repo.GetAssistant(ctx, topic.AssistantID)
	if err != nil {
		return nil, err
	}
	provider, ref, err := s.registry.Resolve(assistant.ModelRef())
	if err != nil {
		return nil, err
	}
	run := *assistant
	run.ProviderID, run.Model = ref.Provider, ref.ID

	userMsg, err := s.newMessage(topic, models.RoleUser, models.StatusSuccess)
	if err != nil {
		return nil, err
	}
	userMsg.Content = req.Content
	userMsg.Files = req.Files
	if err := s.acquire(ctx, userMsg.FileIDs()); err != nil {
		return nil, err
	}
	if err := s.repo.InsertMessage(ctx, userMsg); err != nil {
		if rerr := s.release(context.WithoutCancel(ctx), userMsg.FileIDs()); rerr != nil {
			s.logger.Warn("attachment rollback failed", "topic_id", topic.ID, "err", rerr)
		}
		return nil, err
	}

	history, err := s.repo.ListMessages(ctx, topic.ID)
	if err != nil {
		return nil, err
	}

	reply, err := s.newMessage(topic, models.RoleAssistant, models.StatusPending)
	if err != nil {
		return nil, err
	}
	if err := s.repo.InsertMessage(ctx, reply); err != nil {
		return nil, err
	}

	surface := req.surface()
	if err := s.bus.Reset(ctx, surface); err != nil {
		s.logger.Warn("cancel flag reset failed", "surface", surface, "err", err)
	}
	s.begin(surface)
	defer s.end(surface)

	contextCount := run.Settings.EffectiveContextCount()
	window := chatctx.Filter(chatctx.Window(history, contextCount))
	observe(Event{Kind: EventEstimate, TopicID: topic.ID, Estimate: &Estimate{
		Tokens:       chatctx.EstimateMessages(window),
		ContextCount: contextCount,
	}})

	tok := &stopLatch{inner: cancel.NewToken(ctx, s.bus, surface)}
	var text strings.Builder
	var usage *models.Usage
	streamErr := provider.Completions(ctx, ai.CompletionRequest{
		Messages:  history,
		Assistant: run,
		Cancel:    tok,
	}, func(ch ai.Chunk) {
		if ch.Usage != nil {
			u := *ch.Usage
			usage = &u
		}
		if ch.Text == "" {
			return
		}
		text.WriteString(ch.Text)
		observe(Event{Kind: EventChunk, TopicID: topic.ID, Text: ch.Text, Usage: ch.Usage})
	})

	reply.Content = text.String()
	switch {
	case streamErr != nil && ctx.Err() == nil:
		reply.Status = models.StatusError
		msg := streamErr.Error()
		reply.Error = &msg
	case tok.stopped || ctx.Err() != nil:
		reply.Status = models.StatusPaused
	default:
		reply.Status = models.StatusSuccess
		if usage == nil {
			usage = &models.Usage{}
		}
		reply.Usage = usage
	}

	// the caller may have gone away; the outcome is still recorded
	if err := s.repo.FinishMessage(context.WithoutCancel(ctx), reply); err != nil {
		return reply, fmt.Errorf("save reply: %w", err)
	}

	switch reply.Status {
	case models.StatusError:
		s.logger.Warn("completion failed", "topic_id", topic.ID, "provider", ref.Provider, "model", ref.ID, "err", streamErr)
		observe(Event{Kind: EventError, TopicID: topic.ID, Message: reply, Error: *reply.Error})
	case models.StatusPaused:
		s.logger.Info("completion paused", "topic_id", topic.ID, "chars", len(reply.Content))
		observe(Event{Kind: EventDone, TopicID: topic.ID, Message: reply})
		s.publish(Event{Kind: EventPaused, TopicID: topic.ID, Message: reply})
	default:
		s.logger.Info("completion finished", "topic_id", topic.ID, "provider", ref.Provider, "model", ref.ID,
			"total_tokens", reply.Usage.TotalTokens)
		observe(Event{Kind: EventDone, TopicID: topic.ID, Message: reply, Usage: reply.Usage})
		s.maybeName(ctx, topic)
	}
	return reply, nil
}

// stopLatch remembers whether the provider actually saw a cancel request, so a
// pause that arrives after the stream ended does not relabel the reply.
type stopLatch struct {
	inner   ai.Canceler
	stopped bool
}

func (l *stopLatch) IsCancelRequested() bool {
	if l.stopped {
		return true
	}
	l.stopped = l.inner.IsCancelRequested()
	return l.stopped
}

// SendStream runs Send in the background and delivers its events on a channel
// that is closed when the stream ends.
func (s *Service) SendStream(ctx context.Context, req SendRequest) <-chan Event {
	out := make(chan Event, 16)
	go func() {
		defer close(out)
		_, err := s.Send(ctx, req, func(ev Event) {
			select {
			case out <- ev:
			case <-ctx.Done():
			}
		})
		if err != nil {
			select {
			case out <- Event{Kind: EventError, TopicID: req.TopicID, Error: err.Error()}:
			case <-ctx.Done():
			}
		}
	}()
	return out
}

func (s *Service) newMessage(topic *models.Topic, role models.Role, status models.MessageStatus) (*models.Message, error) {
	id, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	return &models.Message{
		ID:          id,
		Role:        role,
		Type:        models.MessageText,
		AssistantID: topic.AssistantID,
		TopicID:     topic.ID,
		Status:      status,
	}, nil
}

func (s *Service) maybeName(ctx context.Context, topic *models.Topic) {
	if s.namer == nil || topic.Named {
		return
	}
	n, err := s.repo.CountMessages(ctx, topic.ID)
	if err != nil || n < namingThreshold {
		return
	}
	if err := s.namer.Enqueue(context.WithoutCancel(ctx), TitleJob{TopicID: topic.ID}); err != nil {
		s.logger.Warn("enqueue title job failed", "topic_id", topic.ID, "err", err)
	}
}

// Pause requests cancellation of the stream on a surface. Pausing a finished
// stream is a no-op: the flag is reset before the next one starts.
func (s *Service) Pause(ctx context.Context, surface string) error {
	return s.bus.RequestCancel(ctx, surface)
}

// NewContext starts a fresh context window in the topic. While a stream is
// running it only pauses that stream.
func (s *Service) NewContext(ctx context.Context, topicID string) (*models.Message, error) {
	topic, err := s.repo.GetTopic(ctx, topicID)
	if err != nil {
		return nil, err
	}
	if s.Streaming(topic.ID) {
		return nil, s.Pause(ctx, topic.ID)
	}
	divider, err := s.newMessage(topic, models.RoleUser, models.StatusSuccess)
	if err != nil {
		return nil, err
	}
	divider.Type = models.MessageClear
	if err := s.repo.InsertMessage(ctx, divider); err != nil {
		return nil, err
	}
	s.publish(Event{Kind: EventNewContext, TopicID: topic.ID, Message: divider})
	return divider, nil
}

// ClearTopic removes every message of the topic and releases their attachments.
func (s *Service) ClearTopic(ctx context.Context, topicID string) error {
	topic, err := s.repo.GetTopic(ctx, topicID)
	if err != nil {
		return err
	}
	if err := s.clearMessages(ctx, topic.ID); err != nil {
		return err
	}
	s.publish(Event{Kind: EventCleared, TopicID: topic.ID})
	return nil
}

func (s *Service) clearMessages(ctx context.Context, topicID string) error {
	if s.Streaming(topicID) {
		_ = s.Pause(ctx, topicID)
	}
	msgs, err := s.repo.ListMessages(ctx, topicID)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteTopicMessages(ctx, topicID); err != nil {
		return err
	}
	var ids []string
	for _, m := range msgs {
		ids = append(ids, m.FileIDs()...)
	}
	return s.release(ctx, ids)
}

func (s *Service) acquire(ctx context.Context, ids []string) error {
	if s.files == nil || len(ids) == 0 {
		return nil
	}
	if err := s.files.AcquireMany(ctx, ids); err != nil {
		return fmt.Errorf("acquire attachments: %w", err)
	}
	return nil
}

func (s *Service) release(ctx context.Context, ids []string) error {
	if s.files == nil || len(ids) == 0 {
		return nil
	}
	if err := s.files.ReleaseMany(ctx, ids); err != nil {
		return fmt.Errorf("release attachments: %w", err)
	}
	return nil
}

func (s *Service) DeleteTopic(ctx context.Context, topicID string) error {
	if _, err := s.repo.GetTopic(ctx, topicID); err != nil {
		return err
	}
	if err := s.clearMessages(ctx, topicID); err != nil {
		return err
	}
	return s.repo.DeleteTopic(ctx, topicID)
}

func (s *Service) DeleteAssistant(ctx context.Context, assistantID string) error {
	if _, err := s.repo.GetAssistant(ctx, assistantID); err != nil {
		return err
	}
	topics, err := s.repo.ListTopics(ctx, assistantID)
	if err != nil {
		return err
	}
	var errs []error
	for _, t := range topics {
		if err := s.DeleteTopic(ctx, t.ID); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	return s.repo.DeleteAssistant(ctx, assistantID)
}

func (s *Service) DeleteMessage(ctx context.Context, id string) error {
	m, err := s.repo.GetMessage(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteMessage(ctx, id); err != nil {
		return err
	}
	return s.release(ctx, m.FileIDs())
}

// NameTopic summarizes the topic into a display title.
func (s *Service) NameTopic(ctx context.Context, topicID string) error {
	topic, err := s.repo.GetTopic(ctx, topicID)
	if err != nil {
		return err
	}
	assistant, err := s.repo.GetAssistant(ctx, topic.AssistantID)
	if err != nil {
		return err
	}
	msgs, err := s.repo.ListMessages(ctx, topic.ID)
	if err != nil {
		return err
	}
	provider, ref, err := s.registry.Resolve(s.registry.Defaults().TopicNaming, assistant.ModelRef())
	if err != nil {
		return err
	}
	run := *assistant
	run.ProviderID, run.Model = ref.Provider, ref.ID

	raw, err := provider.Summarize(ctx, msgs, run)
	if err != nil {
		return err
	}
	title := SanitizeTitle(raw)
	if title == "" {
		return nil
	}
	if err := s.repo.RenameTopic(ctx, topic.ID, title); err != nil {
		return err
	}
	s.publish(Event{Kind: EventTitle, TopicID: topic.ID, Title: title})
	return nil
}

// SanitizeTitle strips quotes, punctuation and surrounding space from a summary.
func SanitizeTitle(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return -1
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

func translatePrompt(lang string) string {
	return fmt.Sprintf("You are a translation expert. Translate the user's text into %s. "+
		"Reply with the translation only, without explanations.", lang)
}

// Translate translates free text with the translate default model.
func (s *Service) Translate(ctx context.Context, text, lang string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyMessage
	}
	provider, ref, err := s.registry.Resolve(s.registry.Defaults().Translate)
	if err != nil {
		return "", err
	}
	a := models.Assistant{
		Prompt:     translatePrompt(lang),
		ProviderID: ref.Provider,
		Model:      ref.ID,
		Settings:   models.DefaultAssistantSettings(),
	}
	return provider.Translate(ctx, models.Message{Role: models.RoleUser, Type: models.MessageText, Content: text}, a)
}

// Suggestions never fails: an unsupported or failing backend yields none.
func (s *Service) Suggestions(ctx context.Context, topicID string) []ai.Suggestion {
	topic, err := s.repo.GetTopic(ctx, topicID)
	if err != nil {
		return []ai.Suggestion{}
	}
	assistant, err := s.repo.GetAssistant(ctx, topic.AssistantID)
	if err != nil {
		return []ai.Suggestion{}
	}
	provider, ref, err := s.registry.Resolve(assistant.ModelRef())
	if err != nil {
		return []ai.Suggestion{}
	}
	msgs, err := s.repo.ListMessages(ctx, topic.ID)
	if err != nil {
		return []ai.Suggestion{}
	}
	run := *assistant
	run.ProviderID, run.Model = ref.Provider, ref.ID
	out, err := provider.Suggestions(ctx, msgs, run)
	if err != nil {
		s.logger.Debug("suggestions unavailable", "topic_id", topic.ID, "err", err)
		return []ai.Suggestion{}
	}
	return out
}

// GenerateText is a one-off call with the default chat model.
func (s *Service) GenerateText(ctx context.Context, prompt, content string) (string, error) {
	provider, _, err := s.registry.Resolve()
	if err != nil {
		return "", err
	}
	return provider.GenerateText(ctx, prompt, content)
}

// Assistants and topics

func (s *Service) CreateAssistant(ctx context.Context, a *models.Assistant) error {
	id, err := common.NewULID()
	if err != nil {
		return err
	}
	a.ID = id
	if strings.TrimSpace(a.Name) == "" {
		a.Name = "Assistant"
	}
	if a.Settings == (models.AssistantSettings{}) {
		a.Settings = models.DefaultAssistantSettings()
	}
	return s.repo.CreateAssistant(ctx, a)
}

func (s *Service) GetAssistant(ctx context.Context, id string) (*models.Assistant, error) {
	return s.repo.GetAssistant(ctx, id)
}

func (s *Service) ListAssistants(ctx context.Context) ([]models.Assistant, error) {
	return s.repo.ListAssistants(ctx)
}

func (s *Service) UpdateAssistant(ctx context.Context, a *models.Assistant) error {
	return s.repo.UpdateAssistant(ctx, a)
}

func (s *Service) CreateTopic(ctx context.Context, assistantID, name string) (*models.Topic, error) {
	if _, err := s.repo.GetAssistant(ctx, assistantID); err != nil {
		return nil, err
	}
	id, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	t := &models.Topic{ID: id, AssistantID: assistantID, Name: strings.TrimSpace(name)}
	if t.Name == "" {
		t.Name = defaultTopicName
	} else {
		t.Named = true
	}
	if err := s.repo.CreateTopic(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) ListTopics(ctx context.Context, assistantID string) ([]models.Topic, error) {
	return s.repo.ListTopics(ctx, assistantID)
}

func (s *Service) ListMessages(ctx context.Context, topicID string) ([]models.Message, error) {
	if _, err := s.repo.GetTopic(ctx, topicID); err != nil {
		return nil, err
	}
	return s.repo.ListMessages(ctx, topicID)
}
