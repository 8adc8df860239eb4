package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/iliyamo/showtime-booking/internal/model"
)

// Notifier receives booking events after they are committed.  Delivery is
// fire-and-forget: errors are logged and never change the operation result.
type Notifier interface {
	BookingConfirmed(ctx context.Context, b *model.Booking, show *model.Showtime) error
	BookingCancelled(ctx context.Context, b *model.Booking, reason string) error
}

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) BookingConfirmed(context.Context, *model.Booking, *model.Showtime) error {
	return nil
}

func (NopNotifier) BookingCancelled(context.Context, *model.Booking, string) error { return nil }

func (e *Engine) notifyConfirmed(ctx context.Context, b *model.Booking) {
	show, err := e.catalog.Showtime(ctx, b.ShowtimeID)
	if err != nil {
		show = &model.Showtime{ID: b.ShowtimeID}
	}
	if err := e.notifier.BookingConfirmed(ctx, b, show); err != nil {
		e.log.Warn("publish booking.confirmed failed", zap.String("booking_id", b.ID), zap.Error(err))
	}
}

func (e *Engine) notifyCancelled(ctx context.Context, b *model.Booking, reason string) {
	if err := e.notifier.BookingCancelled(ctx, b, reason); err != nil {
		e.log.Warn("publish booking.cancelled failed", zap.String("booking_id", b.ID), zap.Error(err))
	}
}
