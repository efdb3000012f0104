package chat

import (
	"context"
	"errors"

	"github.com/suPer8Hu/chatcore/internal/models"
	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// Assistants

func (r *Repo) CreateAssistant(ctx context.Context, a *models.Assistant) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *Repo) GetAssistant(ctx context.Context, id string) (*models.Assistant, error) {
	var a models.Assistant
	if err := r.db.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

func (r *Repo) ListAssistants(ctx context.Context) ([]models.Assistant, error) {
	var out []models.Assistant
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) UpdateAssistant(ctx context.Context, a *models.Assistant) error {
	res := r.db.WithContext(ctx).Model(&models.Assistant{}).Where("id = ?", a.ID).
		Select("name", "prompt", "provider_id", "model",
			"settings_temperature", "settings_max_tokens", "settings_context_count").
		Updates(a)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repo) DeleteAssistant(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&models.Assistant{}, "id = ?", id).Error
}

// Topics

func (r *Repo) CreateTopic(ctx context.Context, t *models.Topic) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *Repo) GetTopic(ctx context.Context, id string) (*models.Topic, error) {
	var t models.Topic
	if err := r.db.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (r *Repo) ListTopics(ctx context.Context, assistantID string) ([]models.Topic, error) {
	var out []models.Topic
	if err := r.db.WithContext(ctx).
		Where("assistant_id = ?", assistantID).
		Order("id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// RenameTopic sets the display title and marks the topic as named.
func (r *Repo) RenameTopic(ctx context.Context, id, name string) error {
	res := r.db.WithContext(ctx).Model(&models.Topic{}).
		Where("id = ?", id).
		Updates(map[string]any{"name": name, "named": true})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repo) DeleteTopic(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&models.Topic{}, "id = ?", id).Error
}

// Messages

func (r *Repo) InsertMessage(ctx context.Context, m *models.Message) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *Repo) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	var m models.Message
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

// ListMessages returns a topic's messages oldest first. ULIDs sort by creation.
func (r *Repo) ListMessages(ctx context.Context, topicID string) ([]models.Message, error) {
	var out []models.Message
	if err := r.db.WithContext(ctx).
		Where("topic_id = ?", topicID).
		Order("id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) CountMessages(ctx context.Context, topicID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("topic_id = ? AND type = ?", topicID, models.MessageText).
		Count(&n).Error
	return n, err
}

// FinishMessage writes the terminal state of a generated message.
func (r *Repo) FinishMessage(ctx context.Context, m *models.Message) error {
	return r.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ?", m.ID).
		Select("content", "status", "usage", "error").
		Updates(m).Error
}

func (r *Repo) DeleteMessage(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&models.Message{}, "id = ?", id).Error
}

func (r *Repo) DeleteTopicMessages(ctx context.Context, topicID string) error {
	return r.db.WithContext(ctx).Where("topic_id = ?", topicID).Delete(&models.Message{}).Error
}
