package models

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

type MessageStatus string

const (
	StatusPending MessageStatus = "pending"
	StatusSuccess MessageStatus = "success"
	StatusError   MessageStatus = "error"
	StatusPaused  MessageStatus = "paused"
)

type MessageType string

const (
	MessageText MessageType = "text"
	// MessageClear marks a context divider; nothing before it reaches the model.
	MessageClear MessageType = "clear"
)

const (
	DefaultContextCount = 5
	DefaultTemperature  = 0.7
	// MaxContextCount is the largest window the settings UI offers; it means unlimited.
	MaxContextCount = 20
)

// Usage is the common token accounting triple. Missing fields are zero, never omitted.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type AssistantSettings struct {
	Temperature  float64 `gorm:"not null;default:0.7" json:"temperature"`
	MaxTokens    int     `gorm:"not null;default:0" json:"max_tokens"`
	ContextCount int     `gorm:"not null;default:5" json:"context_count"`
}

func DefaultAssistantSettings() AssistantSettings {
	return AssistantSettings{Temperature: DefaultTemperature, ContextCount: DefaultContextCount}
}

// EffectiveContextCount maps the UI maximum to an unbounded window (-1).
func (s AssistantSettings) EffectiveContextCount() int {
	if s.ContextCount >= MaxContextCount {
		return -1
	}
	if s.ContextCount < 0 {
		return 0
	}
	return s.ContextCount
}

type Assistant struct {
	ID         string            `gorm:"primaryKey;size:26" json:"id"`
	Name       string            `gorm:"type:varchar(128);not null" json:"name"`
	Prompt     string            `gorm:"type:text" json:"prompt"`
	ProviderID string            `gorm:"type:varchar(64)" json:"provider_id"`
	Model      string            `gorm:"type:varchar(128)" json:"model"`
	Settings   AssistantSettings `gorm:"embedded;embeddedPrefix:settings_" json:"settings"`
	Topics     []Topic           `gorm:"foreignKey:AssistantID" json:"topics,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

func (Assistant) TableName() string { return "assistants" }

// ModelRef returns the assistant's model override, empty when it follows the default.
func (a Assistant) ModelRef() ModelRef {
	return ModelRef{Provider: a.ProviderID, ID: a.Model}
}

type Topic struct {
	ID          string    `gorm:"primaryKey;size:26" json:"id"`
	AssistantID string    `gorm:"size:26;index;not null" json:"assistant_id"`
	Name        string    `gorm:"type:varchar(255);not null" json:"name"`
	Named       bool      `gorm:"not null;default:false" json:"named"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Topic) TableName() string { return "topics" }

type Message struct {
	ID          string        `gorm:"primaryKey;size:26" json:"id"`
	Role        Role          `gorm:"type:varchar(16);not null" json:"role"`
	Type        MessageType   `gorm:"type:varchar(16);not null;default:text" json:"type"`
	Content     string        `gorm:"type:text;not null" json:"content"`
	Files       []FileRecord  `gorm:"serializer:json" json:"files,omitempty"`
	AssistantID string        `gorm:"size:26;index;not null" json:"assistant_id"`
	TopicID     string        `gorm:"size:26;index:idx_msg_topic_created,priority:1;not null" json:"topic_id"`
	Status      MessageStatus `gorm:"type:varchar(16);not null" json:"status"`
	Usage       *Usage        `gorm:"serializer:json" json:"usage,omitempty"`
	Error       *string       `gorm:"type:text" json:"error,omitempty"`
	CreatedAt   time.Time     `gorm:"index:idx_msg_topic_created,priority:2" json:"created_at"`
}

func (Message) TableName() string { return "messages" }

// FileIDs returns the content ids of the message's attachments, in order.
func (m Message) FileIDs() []string {
	ids := make([]string, 0, len(m.Files))
	for _, f := range m.Files {
		ids = append(ids, f.ID)
	}
	return ids
}
