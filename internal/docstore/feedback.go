package docstore

import (
	"fmt"

	"github.com/Agnikulu/veritas/internal/models"
)

// InsertFeedback appends a user feedback row.
func (s *Store) InsertFeedback(fb models.Feedback) error {
	_, err := s.db.Exec(`
		INSERT INTO feedback (feedback_id, received_at, claim_text, verdict_returned, comment, screenshot_url)
		VALUES (?, ?, ?, ?, ?, ?)`,
		fb.FeedbackID, formatTime(fb.ReceivedAt), fb.ClaimText, string(fb.VerdictReturned),
		nullableString(fb.Comment), nullableString(fb.ScreenshotURL),
	)
	if err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}
	return nil
}
