// Package worker holds the background loops that run alongside the API
// server.
package worker

import (
	"context"
	"log"
	"time"

	"github.com/adith23/parking-automation-app/internal/service"
)

// Sweeper periodically expires pending bookings whose hold window has
// lapsed. It is the liveness guarantee that no abandoned reservation
// permanently starves a slot: even if the lock's TTL already freed the
// mutex, the booking row and the reserved slot still need cleaning up.
type Sweeper struct {
	bookingSvc *service.BookingService
	interval   time.Duration
}

func NewSweeper(bookingSvc *service.BookingService, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{bookingSvc: bookingSvc, interval: interval}
}

// Run blocks until the context is canceled, sweeping once per interval.
// A failed sweep is logged and retried on the next tick.
func (s *Sweeper) Run(ctx context.Context) {
	log.Printf("Sweeper: expiring stale bookings every %s", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Sweeper: context canceled, stopping")
			return
		case <-ticker.C:
			count, err := s.bookingSvc.CleanupExpiredBookings(ctx)
			if err != nil {
				log.Printf("Sweeper: sweep failed: %v", err)
				continue
			}
			if count > 0 {
				log.Printf("Sweeper: expired %d booking(s)", count)
			}
		}
	}
}
