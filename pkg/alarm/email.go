package alarm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/EnkiSilicium/artisan-hub/pkg/jobqueue"
	"github.com/EnkiSilicium/artisan-hub/pkg/logger"
)

type Config struct {
	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
	From     string
	To       string
}

// EmailNotifier mails the on-call address when a publish job exhausts its
// attempt budget. Notification failures are logged, never propagated: the
// job is already parked and the alarm must not disturb queue processing.
type EmailNotifier struct {
	dialer *gomail.Dialer
	from   string
	to     string
	log    *logger.Logger
}

func NewEmailNotifier(cfg Config, log *logger.Logger) *EmailNotifier {
	return &EmailNotifier{
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass),
		from:   cfg.From,
		to:     cfg.To,
		log:    log.WithComponent("alarm"),
	}
}

func (n *EmailNotifier) PublishExhausted(ctx context.Context, job *jobqueue.PublishJob, cause error) {
	var ids []string
	for _, id := range job.OutboxIDs {
		ids = append(ids, id.String())
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", n.to)
	m.SetHeader("Subject", fmt.Sprintf("outbox publish exhausted: %d events stuck", len(job.OutboxIDs)))
	m.SetBody("text/plain", fmt.Sprintf(
		"A publish job exhausted its attempt budget at %s.\n\n"+
			"Attempts: %d\nCause: %v\nOutbox rows: %s\n\n"+
			"The job is parked on the exhausted list; the outbox rows remain in the database.",
		time.Now().UTC().Format(time.RFC3339), job.Attempt, cause, strings.Join(ids, ", ")))

	if err := n.dialer.DialAndSend(m); err != nil {
		n.log.Error(err, "failed to send exhaustion alarm", "outbox_ids", len(job.OutboxIDs))
		return
	}
	n.log.Info("exhaustion alarm sent", "to", n.to, "outbox_ids", len(job.OutboxIDs))
}

// LogNotifier is the fallback when no SMTP endpoint is configured.
type LogNotifier struct {
	log *logger.Logger
}

func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{log: log.WithComponent("alarm")}
}

func (n *LogNotifier) PublishExhausted(ctx context.Context, job *jobqueue.PublishJob, cause error) {
	n.log.Error(cause, "ALARM: publish job exhausted, operator intervention required",
		"attempts", job.Attempt, "outbox_ids", len(job.OutboxIDs))
}
