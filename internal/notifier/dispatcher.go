// Package notifier is the delivery pipeline: it polls for detections
// still owed a notification and pushes the rendered message to every
// configured recipient.
package notifier

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"anpr-gate-service/internal/domain/detection"
	"anpr-gate-service/internal/imaging"
)

// Store is the slice of the detection store the dispatcher needs.
type Store interface {
	ListUndelivered(ctx context.Context) ([]detection.Record, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, reason string) error
	RecordDelivery(ctx context.Context, id string, chatID int64) error
	DeliveredRecipients(ctx context.Context, id string) ([]int64, error)
}

// Sender delivers one photo message to one recipient. Implementations
// must bound each call with their own timeout.
type Sender interface {
	SendPhoto(chatID int64, photo []byte, caption string) error
}

type ComposeFunc func(src []byte, plateBox, vehicleBox *detection.BoundingBox) ([]byte, error)

type Config struct {
	Recipients          []int64
	PollInterval        time.Duration
	CycleTimeout        time.Duration
	ConfidenceThreshold float64
}

// Dispatcher runs the notification loop. One goroutine executes cycles
// back to back, so a cycle can never overlap its predecessor and no
// record is picked up by two cycles at once.
type Dispatcher struct {
	store    Store
	sender   Sender
	compose  ComposeFunc
	readFile func(string) ([]byte, error)
	cfg      Config
	log      zerolog.Logger
}

func NewDispatcher(store Store, sender Sender, cfg Config, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		store:    store,
		sender:   sender,
		compose:  imaging.Compose,
		readFile: os.ReadFile,
		cfg:      cfg,
		log:      log.With().Str("component", "notifier").Logger(),
	}
}

// Run polls until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	d.log.Info().
		Dur("poll_interval", d.cfg.PollInterval).
		Int("recipients", len(d.cfg.Recipients)).
		Msg("starting notification dispatcher")
	if len(d.cfg.Recipients) == 0 {
		d.log.Warn().Msg("no recipients configured, detections will not be delivered")
	}

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		d.runCycle(ctx)
		select {
		case <-ctx.Done():
			d.log.Info().Msg("notification dispatcher stopped")
			return
		case <-ticker.C:
		}
	}
}

// runCycle delivers every undelivered record, oldest first. A cycle
// that hits its deadline abandons the remaining records; they stay
// eligible for the next cycle.
func (d *Dispatcher) runCycle(ctx context.Context) {
	if len(d.cfg.Recipients) == 0 {
		return
	}

	cctx := ctx
	cancel := func() {}
	if d.cfg.CycleTimeout > 0 {
		cctx, cancel = context.WithTimeout(ctx, d.cfg.CycleTimeout)
	}
	defer cancel()

	records, err := d.store.ListUndelivered(cctx)
	if err != nil {
		d.log.Error().Err(err).Msg("failed to list undelivered detections")
		return
	}
	if len(records) == 0 {
		return
	}
	d.log.Info().Int("count", len(records)).Msg("found undelivered detections")

	for i := range records {
		if cctx.Err() != nil {
			d.log.Warn().
				Int("remaining", len(records)-i).
				Msg("cycle deadline reached, abandoning remaining deliveries")
			return
		}
		d.deliver(cctx, &records[i])
	}
}

// deliver attempts every recipient that has not already received this
// record. The record goes Sent only when all recipients have a
// delivery marker; any failure leaves it Failed for the next cycle.
func (d *Dispatcher) deliver(ctx context.Context, rec *detection.Record) {
	delivered, err := d.store.DeliveredRecipients(ctx, rec.ID)
	if err != nil {
		d.log.Error().Err(err).Str("detection_id", rec.ID).Msg("failed to load delivery markers")
		return
	}
	deliveredSet := make(map[int64]bool, len(delivered))
	for _, chatID := range delivered {
		deliveredSet[chatID] = true
	}

	photo, err := d.renderPhoto(rec)
	if err != nil {
		d.log.Error().Err(err).Str("detection_id", rec.ID).Msg("failed to render notification image")
		d.markFailed(ctx, rec.ID, fmt.Sprintf("render image: %v", err))
		return
	}
	caption := RenderCaption(rec, d.cfg.ConfidenceThreshold)

	var failures int
	for _, chatID := range d.cfg.Recipients {
		if deliveredSet[chatID] {
			continue
		}
		if ctx.Err() != nil {
			// Deadline mid-record: leave the state untouched so the
			// next cycle resumes where this one stopped.
			return
		}

		if err := d.sender.SendPhoto(chatID, photo, caption); err != nil {
			failures++
			d.log.Error().
				Err(err).
				Str("detection_id", rec.ID).
				Int64("chat_id", chatID).
				Msg("delivery failed")
			continue
		}

		if err := d.store.RecordDelivery(ctx, rec.ID, chatID); err != nil {
			d.log.Error().
				Err(err).
				Str("detection_id", rec.ID).
				Int64("chat_id", chatID).
				Msg("failed to record delivery marker")
		}
	}

	if failures > 0 {
		d.markFailed(ctx, rec.ID, fmt.Sprintf("%d of %d recipient deliveries failed", failures, len(d.cfg.Recipients)))
		return
	}

	if err := d.store.MarkSent(ctx, rec.ID); err != nil {
		d.log.Error().Err(err).Str("detection_id", rec.ID).Msg("failed to mark detection sent")
		return
	}
	d.log.Info().Str("detection_id", rec.ID).Msg("detection delivered to all recipients")
}

func (d *Dispatcher) renderPhoto(rec *detection.Record) ([]byte, error) {
	src, err := d.readFile(rec.ImagePath)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return d.compose(src, rec.PlateBBox, rec.VehicleBBox)
}

func (d *Dispatcher) markFailed(ctx context.Context, id, reason string) {
	if err := d.store.MarkFailed(ctx, id, reason); err != nil {
		d.log.Error().Err(err).Str("detection_id", id).Msg("failed to mark detection failed")
	}
}
