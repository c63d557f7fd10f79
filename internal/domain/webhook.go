package domain

import (
	"time"

	"github.com/google/uuid"
)

type StatusChangedWebhook struct {
	ReportID  uuid.UUID    `json:"report_id"`
	OwnerID   string       `json:"owner_id"`
	From      ReportStatus `json:"from"`
	To        ReportStatus `json:"to"`
	ChangedBy string       `json:"changed_by"`
	ChangedAt time.Time    `json:"changed_at"`
}
