package licensing

import (
	"context"

	"github.com/HoangDuong1310/licensegate/internal/models"
	"github.com/google/uuid"
)

// record appends a usage ledger entry. Ledger writes are best-effort:
// a failure is logged and never surfaces to the caller of the protocol
// operation that produced the entry. The write uses a context detached
// from the caller's cancellation so an aborted request still leaves an
// audit trail.
func (s *Service) record(ctx context.Context, keyID uuid.UUID, action models.UsageAction, success bool, hwid, errorMessage string, meta models.DeviceMeta) {
	entry := models.NewKeyUsageLog(keyID, action, success)
	entry.HWID = hwid
	entry.ErrorMessage = errorMessage
	entry.IPAddress = meta.IPAddress
	entry.UserAgent = meta.UserAgent

	if err := s.store.RecordUsage(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Error().
			Err(err).
			Str("key_id", keyID.String()).
			Str("action", string(action)).
			Msg("failed to record usage ledger entry")
	}
}
