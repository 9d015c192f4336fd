// Package notify persists in-app notifications and mirrors them to chat sinks.
package notify

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"trackline/internal/domain"
	"trackline/internal/repo"
)

// Store is the persistence the dispatcher needs.
type Store interface {
	InsertNotification(ctx context.Context, tx *sql.Tx, n domain.Notification) error
	GetUser(ctx context.Context, id string) (domain.User, error)
}

var _ Store = repo.Repo{}

// Message is what a sink delivers.
type Message struct {
	Notification domain.Notification
	Recipient    domain.User
	// URL is the absolute form of the notification link, empty without a base URL.
	URL string
}

// Text renders the message as a single chat line.
func (m Message) Text() string {
	var b strings.Builder
	name := m.Recipient.Username
	if name == "" {
		name = m.Notification.UserID
	}
	fmt.Fprintf(&b, "@%s: %s", name, m.Notification.Message)
	if m.URL != "" {
		fmt.Fprintf(&b, " (%s)", m.URL)
	}
	return b.String()
}

// Sink delivers notifications outside the store.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, m Message) error
}

// Dispatcher writes the in-app row, then fans out to sinks. Sink failures are
// logged and never fail Send.
type Dispatcher struct {
	Store   Store
	Sinks   []Sink
	BaseURL string
	Logger  *slog.Logger
	Now     func() time.Time
}

func (d Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d Dispatcher) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func (d Dispatcher) Send(ctx context.Context, n domain.Notification) (domain.Notification, error) {
	if n.UserID == "" {
		return n, errors.New("notification recipient required")
	}
	if strings.TrimSpace(n.Message) == "" {
		return n, errors.New("notification message required")
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt == "" {
		n.CreatedAt = d.now().UTC().Format(time.RFC3339)
	}
	if n.Kind == "" {
		n.Kind = "info"
	}
	if err := d.Store.InsertNotification(ctx, nil, n); err != nil {
		return n, fmt.Errorf("insert notification: %w", err)
	}
	if len(d.Sinks) == 0 {
		return n, nil
	}
	msg := Message{Notification: n}
	if u, err := d.Store.GetUser(ctx, n.UserID); err == nil {
		msg.Recipient = u
	}
	if d.BaseURL != "" && n.Link != "" {
		msg.URL = strings.TrimRight(d.BaseURL, "/") + n.Link
	}
	for _, s := range d.Sinks {
		if err := s.Deliver(ctx, msg); err != nil {
			d.logger().Warn("notification sink failed", "sink", s.Name(), "notification", n.ID, "err", err)
		}
	}
	return n, nil
}
