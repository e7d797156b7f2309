package api

import (
	"fmt"
	"net/http"

	"cuebook/internal/domain"
	"cuebook/internal/export"
	"cuebook/internal/models"

	"github.com/labstack/echo/v4"
)

type availabilityParams struct {
	ClubID    int64   `param:"id" validate:"gt=0"`
	Date      string  `query:"date" validate:"required,datetime=2006-01-02"`
	StartHour float64 `query:"start_hour" validate:"gte=0,lte=24"`
	EndHour   float64 `query:"end_hour" validate:"gt=0,lte=24"`
	TableType string  `query:"table_type" validate:"omitempty,oneof=pool carom snooker"`
}

type bookingBody struct {
	ClubID    int64   `json:"club_id" validate:"required,gt=0"`
	TableType string  `json:"table_type" validate:"required,oneof=pool carom snooker"`
	Date      string  `json:"date" validate:"required,datetime=2006-01-02"`
	StartHour float64 `json:"start_hour" validate:"gte=0,lt=24"`
	EndHour   float64 `json:"end_hour" validate:"gt=0,lte=24"`
	Note      string  `json:"note" validate:"max=500"`
}

func (b bookingBody) request(playerID int64) domain.BookingRequest {
	return domain.BookingRequest{
		PlayerID:  playerID,
		ClubID:    b.ClubID,
		TableType: b.TableType,
		Date:      b.Date,
		StartHour: b.StartHour,
		EndHour:   b.EndHour,
		Note:      b.Note,
	}
}

type walkInBody struct {
	TableID  int64  `json:"table_id" validate:"required,gt=0"`
	PlayerID int64  `json:"player_id" validate:"gte=0"`
	Note     string `json:"note" validate:"max=500"`
}

type withdrawBody struct {
	Amount int64 `json:"amount" validate:"required,gt=0"`
}

type webhookBody struct {
	OrderCode string `json:"order_code" validate:"required"`
	Status    string `json:"status" validate:"required"`
}

type revenueParams struct {
	ClubID int64  `param:"id" validate:"gt=0"`
	Period string `query:"period" validate:"omitempty,oneof=day week month"`
	From   string `query:"from" validate:"omitempty,datetime=2006-01-02"`
	To     string `query:"to" validate:"omitempty,datetime=2006-01-02"`
}

func (s *HTTPServer) handleAvailability(c echo.Context) error {
	var p availabilityParams
	if err := bindAndValidate(c, &p); err != nil {
		return err
	}
	result, err := s.svc.Bookings.CheckAvailability(c.Request().Context(), domain.AvailabilityQuery{
		ClubID:    p.ClubID,
		Date:      p.Date,
		StartHour: p.StartHour,
		EndHour:   p.EndHour,
		TableType: p.TableType,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"club_id":    p.ClubID,
		"date":       p.Date,
		"start_hour": p.StartHour,
		"end_hour":   p.EndHour,
		"types":      result,
	})
}

func (s *HTTPServer) handleCreateBooking(c echo.Context) error {
	var body bookingBody
	if err := bindAndValidate(c, &body); err != nil {
		return err
	}
	b, err := s.svc.Bookings.CreateBooking(c.Request().Context(), body.request(userID(c)))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, b)
}

func (s *HTTPServer) handleListBookings(c echo.Context) error {
	list, err := s.svc.Bookings.ListMyBookings(c.Request().Context(), userID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"bookings": list})
}

func (s *HTTPServer) handleGetBooking(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	b, err := s.svc.Bookings.GetBooking(c.Request().Context(), id, userID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, b)
}

func (s *HTTPServer) handleCancel(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	res, err := s.svc.Bookings.CancelBooking(c.Request().Context(), id, userID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (s *HTTPServer) handleCheckIn(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	b, err := s.svc.Bookings.CheckIn(c.Request().Context(), id, userID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, b)
}

func (s *HTTPServer) handleCheckOut(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	b, err := s.svc.Bookings.CheckOut(c.Request().Context(), id, userID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, b)
}

func (s *HTTPServer) handleEndPlay(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	res, err := s.svc.Bookings.EndPlay(c.Request().Context(), id, userID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (s *HTTPServer) handlePreviewEndPlay(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	res, err := s.svc.Bookings.PreviewEndPlay(c.Request().Context(), id, userID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (s *HTTPServer) handleWalkIn(c echo.Context) error {
	clubID, err := pathID(c)
	if err != nil {
		return err
	}
	var body walkInBody
	if err := bindAndValidate(c, &body); err != nil {
		return err
	}
	b, err := s.svc.Bookings.OpenNow(c.Request().Context(), domain.WalkInRequest{
		ActorID:  userID(c),
		ClubID:   clubID,
		TableID:  body.TableID,
		PlayerID: body.PlayerID,
		Note:     body.Note,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, b)
}

func (s *HTTPServer) handlePreparePayment(c echo.Context) error {
	var body bookingBody
	if err := bindAndValidate(c, &body); err != nil {
		return err
	}
	ctx := c.Request().Context()
	uid := userID(c)

	if s.svc.Limits != nil {
		allowed, err := s.svc.Limits.CheckRateLimit(ctx, fmt.Sprintf("payments:%d", uid), paymentPrepareLimit, paymentPrepareWindow)
		if err != nil {
			s.log.Warn().Err(err).Int64("user_id", uid).Msg("payment rate limit check failed")
		} else if !allowed {
			return echo.NewHTTPError(http.StatusTooManyRequests, "too many payment attempts")
		}
	}

	p, err := s.svc.Payments.PreparePayment(ctx, body.request(uid))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

func (s *HTTPServer) handlePaymentWebhook(c echo.Context) error {
	var body webhookBody
	if err := bindAndValidate(c, &body); err != nil {
		return err
	}
	b, err := s.svc.Payments.ConfirmPayment(c.Request().Context(), domain.PaymentConfirmation{
		OrderCode: body.OrderCode,
		Status:    body.Status,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"order_code": body.OrderCode, "booking": b})
}

func (s *HTTPServer) handleWallet(c echo.Context) error {
	w, err := s.svc.Wallets.GetWallet(c.Request().Context(), userID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, w)
}

func (s *HTTPServer) handleLedger(c echo.Context) error {
	entries, err := s.svc.Wallets.ListLedger(c.Request().Context(), userID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"entries": entries})
}

func (s *HTTPServer) handleWithdraw(c echo.Context) error {
	var body withdrawBody
	if err := bindAndValidate(c, &body); err != nil {
		return err
	}
	w, err := s.svc.Wallets.Withdraw(c.Request().Context(), userID(c), body.Amount)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, w)
}

func (s *HTTPServer) revenue(c echo.Context) (*models.RevenueReport, error) {
	var p revenueParams
	if err := bindAndValidate(c, &p); err != nil {
		return nil, err
	}
	report, err := s.svc.Dashboard.Revenue(c.Request().Context(), p.ClubID, userID(c), domain.RevenueQuery{
		Period: p.Period,
		From:   p.From,
		To:     p.To,
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (s *HTTPServer) handleRevenue(c echo.Context) error {
	report, err := s.revenue(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}

func (s *HTTPServer) handleRevenueExport(c echo.Context) error {
	report, err := s.revenue(c)
	if err != nil {
		return err
	}
	if s.svc.ExportDir != "" {
		path, err := export.SaveRevenueWorkbook(s.svc.ExportDir, report)
		if err != nil {
			return err
		}
		s.log.Info().Str("path", path).Int64("club_id", report.ClubID).Msg("revenue export saved")
		c.Response().Header().Set(echo.HeaderContentType, export.ContentType)
		return c.Attachment(path, export.FileName(report))
	}

	buf, err := export.RevenueWorkbook(report)
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", export.FileName(report)))
	return c.Blob(http.StatusOK, export.ContentType, buf.Bytes())
}

func (s *HTTPServer) handleFailedOutbox(c echo.Context) error {
	if s.svc.Outbox == nil {
		return echo.NewHTTPError(http.StatusNotFound, "outbox not configured")
	}
	tasks, err := s.svc.Outbox.Failed(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"tasks": tasks})
}
