// Package chatctx assembles the bounded, role-tagged context sent with one
// completion request from a topic's full message history.
package chatctx

import (
	"context"
	"log/slog"
	"strings"

	"github.com/suPer8Hu/chatcore/internal/files"
	"github.com/suPer8Hu/chatcore/internal/models"
)

type PartType string

const (
	PartText   PartType = "text"
	PartBinary PartType = "binary"
	// PartFile carries attachment metadata only; providers may ignore it.
	PartFile PartType = "file"
)

type Part struct {
	Type PartType
	Text string
	Data string // base64 payload for PartBinary
	MIME string
	File *models.FileRecord
}

// Turn is one role-tagged entry of a GenerationRequest.
type Turn struct {
	Role  models.Role
	Parts []Part
}

func (t Turn) Text() string {
	var b strings.Builder
	for _, p := range t.Parts {
		if p.Type == PartText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

func (t Turn) Binaries() []Part {
	var out []Part
	for _, p := range t.Parts {
		if p.Type == PartBinary {
			out = append(out, p)
		}
	}
	return out
}

// Context is the assembled request. Current is the last user turn; History is
// everything before it, for backends that model chats as stateful sessions.
type Context struct {
	History []Turn
	Current *Turn
	// Messages is the filtered window the turns were built from.
	Messages []models.Message
}

// Turns returns History followed by Current, for stateless backends.
func (c *Context) Turns() []Turn {
	out := make([]Turn, 0, len(c.History)+1)
	out = append(out, c.History...)
	if c.Current != nil {
		out = append(out, *c.Current)
	}
	return out
}

// Capabilities is what the target provider can accept inline.
type Capabilities struct {
	// InlineFiles lets non-image attachments be sent as binary parts.
	InlineFiles bool
}

// Resolver gives the builder read access to the attachment store.
type Resolver interface {
	Resolve(ctx context.Context, id string) (*models.FileRecord, error)
	ReadBase64(ctx context.Context, rec models.FileRecord) (files.Blob, error)
}

type Builder struct {
	files  Resolver
	logger *slog.Logger
}

func NewBuilder(files Resolver, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{files: files, logger: logger}
}

// Window keeps the last contextCount+1 messages; the extra slot is the message
// being sent. A negative contextCount keeps everything.
func Window(messages []models.Message, contextCount int) []models.Message {
	if contextCount < 0 || len(messages) <= contextCount+1 {
		return messages
	}
	return messages[len(messages)-(contextCount+1):]
}

// Filter drops messages that must never reach a model: anything up to and
// including the last context divider, errored messages, and blank messages
// without attachments.
func Filter(messages []models.Message) []models.Message {
	start := 0
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Type == models.MessageClear {
			start = i + 1
			break
		}
	}

	out := make([]models.Message, 0, len(messages)-start)
	for _, m := range messages[start:] {
		if m.Status == models.StatusError {
			continue
		}
		if strings.TrimSpace(m.Content) == "" && len(m.Files) == 0 {
			continue
		}
		out = append(out, m)
	}
	return out
}

// Build windows, filters and resolves the history into a Context.
func (b *Builder) Build(ctx context.Context, messages []models.Message, contextCount int, caps Capabilities) (*Context, error) {
	kept := Filter(Window(messages, contextCount))

	turns := make([]Turn, 0, len(kept))
	for _, m := range kept {
		parts, err := b.Parts(ctx, m, caps)
		if err != nil {
			return nil, err
		}
		turns = append(turns, Turn{Role: m.Role, Parts: parts})
	}

	out := &Context{Messages: kept}
	last := -1
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == models.RoleUser {
			last = i
			break
		}
	}
	if last < 0 {
		out.History = turns
		return out, nil
	}
	cur := turns[last]
	out.Current = &cur
	out.History = turns[:last]
	return out, nil
}

// Parts converts one message into content parts. Only the first attachment is
// inlined (images always, other kinds when caps allow); the rest travel as metadata.
func (b *Builder) Parts(ctx context.Context, m models.Message, caps Capabilities) ([]Part, error) {
	parts := []Part{{Type: PartText, Text: m.Content}}
	for i := range m.Files {
		f := m.Files[i]
		if i > 0 || (!f.IsImage() && !caps.InlineFiles) {
			parts = append(parts, Part{Type: PartFile, File: &f})
			continue
		}
		bin, ok, err := b.inline(ctx, f)
		if err != nil {
			return nil, err
		}
		if !ok {
			parts = append(parts, Part{Type: PartFile, File: &f})
			continue
		}
		parts = append(parts, bin)
	}
	return parts, nil
}

func (b *Builder) inline(ctx context.Context, f models.FileRecord) (Part, bool, error) {
	if b.files == nil {
		return Part{}, false, nil
	}
	rec, err := b.files.Resolve(ctx, f.ID)
	if err != nil {
		b.logger.Warn("attachment unavailable, sending text only", "id", f.ID, "err", err)
		return Part{}, false, nil
	}
	blob, err := b.files.ReadBase64(ctx, *rec)
	if err != nil {
		if ctx.Err() != nil {
			return Part{}, false, ctx.Err()
		}
		b.logger.Warn("attachment read failed, sending text only", "id", f.ID, "err", err)
		return Part{}, false, nil
	}
	return Part{Type: PartBinary, Data: blob.Data, MIME: blob.MIME, File: rec}, true, nil
}
