package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"cuebook/internal/domain"
	"cuebook/internal/models"

	"github.com/rs/zerolog"
)

const (
	defaultRevenueDays = 30
	maxRevenueDays     = 366
	topCustomerCount   = 5
)

// DashboardService aggregates completed bookings for club owners.
type DashboardService struct {
	store  domain.Store
	loc    *time.Location
	logger *zerolog.Logger
	now    func() time.Time
}

func NewDashboardService(store domain.Store, loc *time.Location, logger *zerolog.Logger) *DashboardService {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &DashboardService{store: store, loc: loc, logger: logger, now: time.Now}
}

func (s *DashboardService) Revenue(ctx context.Context, clubID, actorID int64, q domain.RevenueQuery) (*models.RevenueReport, error) {
	club, err := s.store.GetClub(ctx, clubID)
	if err != nil {
		return nil, err
	}
	if club.OwnerID != actorID {
		return nil, fmt.Errorf("user %d on club %d revenue: %w", actorID, clubID, domain.ErrForbidden)
	}

	period := q.Period
	if period == "" {
		period = models.PeriodDay
	}
	if period != models.PeriodDay && period != models.PeriodWeek && period != models.PeriodMonth {
		return nil, fmt.Errorf("%w: period must be day, week or month", domain.ErrInvalidInput)
	}

	from, to, err := s.revenueRange(q)
	if err != nil {
		return nil, err
	}

	bookings, err := s.store.ListCompletedBookings(ctx, clubID, from, to.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}

	report := &models.RevenueReport{
		ClubID:      clubID,
		Period:      period,
		From:        from.Format(models.DateLayout),
		To:          to.Format(models.DateLayout),
		GeneratedAt: s.now(),
	}

	index := make(map[string]int)
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		label := bucketLabel(day, period)
		if _, ok := index[label]; !ok {
			index[label] = len(report.Buckets)
			report.Buckets = append(report.Buckets, models.RevenueBucket{Label: label})
		}
	}

	customers := make(map[int64]*models.CustomerRevenue)
	for _, b := range bookings {
		if b.CheckOutTime == nil {
			continue
		}
		report.TotalRevenue += b.TotalAmount
		report.CompletedBookings++
		if b.IsWalkIn {
			report.WalkIns++
		}

		if i, ok := index[bucketLabel(b.CheckOutTime.In(s.loc), period)]; ok {
			report.Buckets[i].Revenue += b.TotalAmount
			report.Buckets[i].Bookings++
		}

		c, ok := customers[b.PlayerID]
		if !ok {
			c = &models.CustomerRevenue{PlayerID: b.PlayerID}
			customers[b.PlayerID] = c
		}
		c.Bookings++
		c.Revenue += b.TotalAmount
	}
	report.UniqueCustomers = len(customers)

	top := make([]models.CustomerRevenue, 0, len(customers))
	for _, c := range customers {
		top = append(top, *c)
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Revenue != top[j].Revenue {
			return top[i].Revenue > top[j].Revenue
		}
		return top[i].PlayerID < top[j].PlayerID
	})
	if len(top) > topCustomerCount {
		top = top[:topCustomerCount]
	}
	for i := range top {
		if u, err := s.store.GetUser(ctx, top[i].PlayerID); err == nil {
			top[i].Name = u.Name
		}
	}
	report.TopCustomers = top

	return report, nil
}

// revenueRange resolves the inclusive local day range of a query. Without
// bounds it covers the last 30 days including today.
func (s *DashboardService) revenueRange(q domain.RevenueQuery) (time.Time, time.Time, error) {
	local := s.now().In(s.loc)
	to := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
	if q.To != "" {
		t, err := time.ParseInLocation(models.DateLayout, q.To, s.loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: to must be YYYY-MM-DD", domain.ErrInvalidInput)
		}
		to = t
	}
	from := to.AddDate(0, 0, -(defaultRevenueDays - 1))
	if q.From != "" {
		t, err := time.ParseInLocation(models.DateLayout, q.From, s.loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: from must be YYYY-MM-DD", domain.ErrInvalidInput)
		}
		from = t
	}
	if from.After(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: from is after to", domain.ErrInvalidInput)
	}
	if !to.Before(from.AddDate(0, 0, maxRevenueDays)) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: range exceeds %d days", domain.ErrInvalidInput, maxRevenueDays)
	}
	return from, to, nil
}

func bucketLabel(t time.Time, period string) string {
	switch period {
	case models.PeriodWeek:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%d-W%02d", year, week)
	case models.PeriodMonth:
		return t.Format("2006-01")
	default:
		return t.Format(models.DateLayout)
	}
}
