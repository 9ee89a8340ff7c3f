package session

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Session struct {
	ID           string         `gorm:"primaryKey;type:varchar(191)" json:"id"`
	UserID       string         `gorm:"type:varchar(128);not null;index:idx_squad_session_key,priority:1" json:"userId"`
	ChatID       string         `gorm:"type:varchar(128);not null;default:'';index:idx_squad_session_key,priority:2" json:"chatId,omitempty"`
	CurrentAgent string         `gorm:"type:varchar(32)" json:"currentAgent,omitempty"`
	LastActivity time.Time      `gorm:"not null;index" json:"lastActivity"`
	IsActive     bool           `gorm:"not null;index:idx_squad_session_key,priority:3" json:"isActive"`
	MessageCount int64          `gorm:"not null;default:0" json:"messageCount"`
	Preferences  map[string]any `gorm:"serializer:json;type:text" json:"preferences,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`

	// Ephemeral sessions exist only for the current turn because the store
	// was unavailable. They are never written.
	Ephemeral bool `gorm:"-" json:"ephemeral,omitempty"`
}

func (Session) TableName() string { return "squad_sessions" }

type Message struct {
	ID        uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID string         `gorm:"type:varchar(191);not null;index" json:"sessionId"`
	Role      string         `gorm:"type:varchar(16);not null" json:"role"`
	Content   string         `gorm:"type:text;not null" json:"content"`
	Metadata  map[string]any `gorm:"serializer:json;type:text" json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

func (Message) TableName() string { return "squad_messages" }

// Models lists the tables owned by this package, for AutoMigrate.
func Models() []any { return []any{&Session{}, &Message{}} }

type ContextMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Context is the recent conversation handed to the classifier and agents.
type Context struct {
	SessionID      string           `json:"sessionId"`
	RecentMessages []ContextMessage `json:"recentMessages"`
	CurrentTopic   string           `json:"currentTopic,omitempty"`
	Preferences    map[string]any   `json:"preferences,omitempty"`
}

// HasHistory reports whether the session already holds any message.
func (c Context) HasHistory() bool { return len(c.RecentMessages) > 0 }

// Turn is one user message and the reply it produced.
type Turn struct {
	UserText      string
	AssistantText string
	Agent         string
	ReceivedAt    time.Time
	Metadata      map[string]any
}
