// Package session manages conversation sessions: append-only message
// history, resumption, cross-session search, and markdown export.
package session

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a message.
type Role string

// Message author roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is a single conversation turn. Messages are append-only; once
// written they are never edited or removed.
type Message struct {
	// Role is the message author.
	Role Role `json:"role"`

	// Content is the message text.
	Content string `json:"content"`

	// PlanID links the message to a workflow plan it triggered, if any.
	PlanID string `json:"plan_id,omitempty"`

	// Timestamp is when the message was appended.
	Timestamp time.Time `json:"timestamp"`
}

// Session is a conversation with its full ordered history.
type Session struct {
	// ID uniquely identifies the session.
	ID string `json:"id"`

	// Title is a short human-readable label, derived from the first user
	// message when not set explicitly.
	Title string `json:"title,omitempty"`

	// Context holds the session's current client/project references,
	// carried across turns and resolved into intent parameters when an
	// utterance omits them.
	Context map[string]string `json:"context,omitempty"`

	// Messages holds the ordered, append-only history.
	Messages []Message `json:"messages"`

	// CreatedAt is when the session was started.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the last message was appended.
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists sessions. Implementations live under storage/.
type Store interface {
	// PutSession stores or replaces a session.
	PutSession(ctx context.Context, s *Session) error

	// GetSession retrieves a session by ID. Returns storage.ErrNotFound
	// when the session does not exist.
	GetSession(ctx context.Context, id string) (*Session, error)

	// ListSessions returns all sessions.
	ListSessions(ctx context.Context) ([]*Session, error)
}

// SearchResult is one message matching a search query.
type SearchResult struct {
	// SessionID is the containing session.
	SessionID string `json:"session_id"`

	// SessionTitle is the containing session's title.
	SessionTitle string `json:"session_title,omitempty"`

	// Message is the matching message.
	Message Message `json:"message"`
}

// Manager provides session operations over a Store.
type Manager struct {
	store Store
}

// NewManager creates a session manager.
func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// Start creates and persists a new empty session.
func (m *Manager) Start(ctx context.Context, title string) (*Session, error) {
	now := time.Now()
	s := &Session{
		ID:        uuid.New().String(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.PutSession(ctx, s); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return s, nil
}

// Append adds a message to the session and persists it. The first user
// message titles an untitled session.
func (m *Manager) Append(ctx context.Context, sessionID string, msg Message) (*Session, error) {
	s, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	s.Messages = append(s.Messages, msg)
	s.UpdatedAt = msg.Timestamp

	if s.Title == "" && msg.Role == RoleUser {
		s.Title = deriveTitle(msg.Content)
	}

	if err := m.store.PutSession(ctx, s); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	return s, nil
}

// SetContext replaces the session's context references and persists them.
func (m *Manager) SetContext(ctx context.Context, sessionID string, refs map[string]string) (*Session, error) {
	s, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s.Context = refs
	s.UpdatedAt = time.Now()
	if err := m.store.PutSession(ctx, s); err != nil {
		return nil, fmt.Errorf("set context: %w", err)
	}
	return s, nil
}

// Resume loads a session with its full history.
func (m *Manager) Resume(ctx context.Context, sessionID string) (*Session, error) {
	return m.store.GetSession(ctx, sessionID)
}

// List returns all sessions ordered by most recent activity.
func (m *Manager) List(ctx context.Context) ([]*Session, error) {
	sessions, err := m.store.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	return sessions, nil
}

// SearchSession returns the session's messages containing the query,
// case-insensitively, in original order. An empty roleFilter matches every
// role.
func (m *Manager) SearchSession(ctx context.Context, sessionID, query string, roleFilter Role) ([]Message, error) {
	s, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	query = strings.ToLower(strings.TrimSpace(query))
	var matches []Message
	for _, msg := range s.Messages {
		if roleFilter != "" && msg.Role != roleFilter {
			continue
		}
		if query == "" || strings.Contains(strings.ToLower(msg.Content), query) {
			matches = append(matches, msg)
		}
	}
	return matches, nil
}

// Search returns messages containing the query, case-insensitively, across
// all sessions. Results order by message time, newest first.
func (m *Manager) Search(ctx context.Context, query string) ([]SearchResult, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil, nil
	}

	sessions, err := m.store.ListSessions(ctx)
	if err != nil {
		return nil, err
	}

	var results []SearchResult
	for _, s := range sessions {
		for _, msg := range s.Messages {
			if strings.Contains(strings.ToLower(msg.Content), query) {
				results = append(results, SearchResult{
					SessionID:    s.ID,
					SessionTitle: s.Title,
					Message:      msg,
				})
			}
		}
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Message.Timestamp.After(results[j].Message.Timestamp)
	})
	return results, nil
}

// Export renders the session as a markdown transcript.
func (m *Manager) Export(ctx context.Context, sessionID string) (string, error) {
	s, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	title := s.Title
	if title == "" {
		title = s.ID
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "Session `%s`, started %s.\n", s.ID, s.CreatedAt.Format(time.RFC3339))

	for _, msg := range s.Messages {
		fmt.Fprintf(&b, "\n## %s (%s)\n\n%s\n",
			roleHeading(msg.Role),
			msg.Timestamp.Format("2006-01-02 15:04"),
			msg.Content)
	}

	return b.String(), nil
}

// deriveTitle produces a short title from the first user message.
func deriveTitle(content string) string {
	title := strings.TrimSpace(content)
	if idx := strings.IndexByte(title, '\n'); idx >= 0 {
		title = title[:idx]
	}
	const maxTitle = 60
	if len(title) > maxTitle {
		title = strings.TrimSpace(title[:maxTitle]) + "…"
	}
	return title
}

func roleHeading(r Role) string {
	switch r {
	case RoleUser:
		return "User"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}
