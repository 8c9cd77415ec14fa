// internal/app/features/push/types.go
package push

import (
	"time"

	"github.com/dalemusser/stashgate/internal/domain/models"
)

// pushPayload is the JSON contract for incoming push messages.
// All fields are optional; a payload without a title produces no notice.
type pushPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url"`
}

// noticeVM is the JSON shape delivered to waiting page clients.
type noticeVM struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body,omitempty"`
	URL       string    `json:"url,omitempty"`
	Icon      string    `json:"icon"`
	Badge     string    `json:"badge"`
	Vibration []int     `json:"vibration,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func toVM(n models.Notice) noticeVM {
	return noticeVM{
		ID:        n.NoticeID,
		Title:     n.Title,
		Body:      n.Body,
		URL:       n.TargetURL,
		Icon:      n.Icon,
		Badge:     n.Badge,
		Vibration: n.Vibration,
		CreatedAt: n.CreatedAt,
	}
}

// waitResponse is the long-poll response.
type waitResponse struct {
	Notices []noticeVM `json:"notices"`
	Now     time.Time  `json:"now"`
}

// clickResponse tells the clicking page what to do next: focus an already
// open client, open a new page, or nothing.
type clickResponse struct {
	Action   string `json:"action"` // "focus", "open", or "none"
	ClientID string `json:"client_id,omitempty"`
	URL      string `json:"url,omitempty"`
}
