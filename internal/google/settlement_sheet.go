// Package google mirrors settlements into a Google Sheet for bookkeeping.
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"cuebook/internal/events"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

var settlementHeader = []interface{}{
	"Booking", "Club", "Player", "Account", "Kind", "Amount",
	"Minutes", "Check-in", "Check-out", "Auto", "Recorded at",
}

// SettlementSheet appends one row per settled booking. It is an outbox sink
// for booking_completed and booking_cancelled events.
type SettlementSheet struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
	loc           *time.Location
	now           func() time.Time
}

func NewSettlementSheet(ctx context.Context, credentialsFile, spreadsheetID, sheetName string, loc *time.Location) (*SettlementSheet, error) {
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %w", err)
	}
	return newSettlementSheet(srv, spreadsheetID, sheetName, loc), nil
}

func newSettlementSheet(srv *sheets.Service, spreadsheetID, sheetName string, loc *time.Location) *SettlementSheet {
	if sheetName == "" {
		sheetName = "Settlements"
	}
	if loc == nil {
		loc = time.UTC
	}
	return &SettlementSheet{
		service:       srv,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		loc:           loc,
		now:           time.Now,
	}
}

// EnsureHeader writes the header row when the sheet is empty.
func (s *SettlementSheet) EnsureHeader(ctx context.Context) error {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.sheetName+"!A1:K1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("unable to read sheet header: %w", err)
	}
	if len(resp.Values) > 0 {
		return nil
	}

	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, s.sheetName+"!A1",
		&sheets.ValueRange{Values: [][]interface{}{settlementHeader}}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("unable to write sheet header: %w", err)
	}
	return nil
}

func (s *SettlementSheet) Name() string { return "sheets" }

func (s *SettlementSheet) Accepts(eventType string) bool {
	return eventType == events.EventBookingCompleted || eventType == events.EventBookingCancelled
}

func (s *SettlementSheet) Deliver(ctx context.Context, _ string, payload []byte) error {
	var p events.SettlementPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode settlement: %w", err)
	}
	if p.Kind == "none" {
		return nil
	}

	valueRange := &sheets.ValueRange{Values: [][]interface{}{s.row(p)}}
	_, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, s.sheetName+"!A:K", valueRange).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("unable to append settlement row: %w", err)
	}
	return nil
}

func (s *SettlementSheet) row(p events.SettlementPayload) []interface{} {
	return []interface{}{
		p.BookingID,
		p.ClubID,
		p.PlayerID,
		p.AccountID,
		p.Kind,
		p.Amount,
		p.DurationMinutes,
		s.format(p.CheckInTime),
		s.format(p.CheckOutTime),
		p.Auto,
		s.now().In(s.loc).Format("2006-01-02 15:04:05"),
	}
}

func (s *SettlementSheet) format(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.In(s.loc).Format("2006-01-02 15:04")
}
