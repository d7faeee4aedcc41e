package audit

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CoinSchool/app/models"
	"github.com/ManuelReschke/CoinSchool/app/repository"
)

const writeTimeout = 3 * time.Second

// Recorder appends security log rows. Writes are best-effort: failures are
// logged and never reach the caller.
type Recorder struct {
	logs repository.SecurityLogRepository
}

func NewRecorder(logs repository.SecurityLogRepository) *Recorder {
	return &Recorder{logs: logs}
}

func (r *Recorder) Record(ctx context.Context, entry *models.SecurityLog) {
	if r == nil || r.logs == nil || entry == nil {
		return
	}

	// the request context may already be done when the audit write runs
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	if err := r.logs.Create(writeCtx, entry); err != nil {
		userID := ""
		if entry.UserID != nil {
			userID = *entry.UserID
		}
		log.Errorw("[Audit] failed to write security log",
			"event_type", entry.EventType,
			"user_id", userID,
			"error", err,
		)
	}
}
