package handler

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/Shivanand-hulikatti/activity-waitlist/internal/model"
)

const (
	attendeeSheet = "Attendees"
	waitlistSheet = "Waitlist"
	timeLayout    = "2006-01-02 15:04:05"
)

// RosterWorkbook renders the roster as an XLSX workbook with one sheet for
// bookings and one for the waitlist in queue order.
func RosterWorkbook(roster *model.Roster) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", attendeeSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(waitlistSheet); err != nil {
		return nil, err
	}

	attendees := [][]any{{"User ID", "Email", "Status", "Joined At", "Cancelled At", "Payment ID", "Amount"}}
	for _, b := range roster.Bookings {
		attendees = append(attendees, []any{
			b.UserID, b.UserEmail, string(b.Status), b.JoinedAt.UTC().Format(timeLayout),
			formatTime(b.CancelledAt), b.PaymentID, float64(b.AmountCents) / 100,
		})
	}
	if err := writeRows(f, attendeeSheet, attendees); err != nil {
		return nil, err
	}

	// Only WAITING rows have a queue position; offers and closed entries
	// leave the column blank.
	waiting := [][]any{{"Position", "User ID", "Email", "Status", "Enqueued At", "Offer Expires At"}}
	position := 0
	for _, w := range roster.Waitlist {
		var pos any = ""
		if w.Status == model.WaitlistWaiting {
			position++
			pos = position
		}
		waiting = append(waiting, []any{
			pos, w.UserID, w.UserEmail, string(w.Status),
			w.EnqueuedAt.UTC().Format(timeLayout), formatTime(w.ExpiresAt),
		})
	}
	if err := writeRows(f, waitlistSheet, waiting); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(timeLayout)
}
