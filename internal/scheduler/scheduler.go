// Package scheduler runs periodic maintenance jobs for the server.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"trackline/internal/domain"
	"trackline/internal/rules"
)

// KindOverdue tags notifications raised by the overdue sweep.
const KindOverdue = "overdue"

// SpecParser accepts five or six field expressions and descriptors such as
// "@every 15m".
var SpecParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

type Store interface {
	ListOverdueIssues(ctx context.Context, cutoff string) ([]domain.Issue, error)
	HasUnreadNotification(ctx context.Context, userID, issueID, kind string) (bool, error)
}

type Scheduler struct {
	Store    Store
	Notifier rules.Notifier
	Logger   *slog.Logger
	Now      func() time.Time

	cron *cron.Cron
}

func New(store Store, notifier rules.Notifier, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{Store: store, Notifier: notifier, Logger: logger, Now: time.Now}
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Start schedules the overdue sweep on spec and starts the cron loop.
func (s *Scheduler) Start(spec string) error {
	logger := cronLogger{s.Logger}
	c := cron.New(
		cron.WithParser(SpecParser),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(spec, func() {
		if _, err := s.SweepOverdue(context.Background()); err != nil {
			s.Logger.Warn("overdue sweep failed", "err", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule overdue sweep %q: %w", spec, err)
	}
	s.cron = c
	c.Start()
	return nil
}

// Stop halts the cron loop and waits for a running job.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// SweepOverdue notifies the assignee of every overdue unfinished issue unless
// an earlier overdue notification for it is still unread. It returns the
// number of notifications sent.
func (s *Scheduler) SweepOverdue(ctx context.Context) (int, error) {
	issues, err := s.Store.ListOverdueIssues(ctx, s.now().UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("list overdue issues: %w", err)
	}
	sent := 0
	for _, is := range issues {
		if is.AssigneeID == nil {
			continue
		}
		pending, err := s.Store.HasUnreadNotification(ctx, *is.AssigneeID, is.ID, KindOverdue)
		if err != nil {
			return sent, err
		}
		if pending {
			continue
		}
		due := ""
		if is.DueDate != nil {
			due = *is.DueDate
		}
		issueID := is.ID
		_, err = s.Notifier.Send(ctx, domain.Notification{
			UserID:  *is.AssigneeID,
			IssueID: &issueID,
			Kind:    KindOverdue,
			Message: fmt.Sprintf("Issue %q is overdue (due %s)", is.Title, due),
			Link:    rules.IssueLink(is.ID),
		})
		if err != nil {
			s.Logger.Warn("overdue notification failed", "issue", is.ID, "err", err)
			continue
		}
		sent++
	}
	if sent > 0 {
		s.Logger.Info("overdue sweep", "notified", sent)
	}
	return sent, nil
}

// cronLogger adapts slog to cron's logger.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}
