package notif

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"dealroom/internal/common"
	"dealroom/internal/config"
)

// Dispatcher delivers email side effects after a negotiation state
// transition commits. Delivery is best-effort: failures are retried a
// bounded number of times, then logged and dropped. A mail-provider
// outage can never fail the command that queued the event.
type Dispatcher struct {
	email      common.EmailService
	events     chan common.EmailEvent
	maxRetries int
	retryDelay time.Duration
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	log        *slog.Logger
}

func NewDispatcher(cfg *config.Config, email common.EmailService, log *slog.Logger) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())

	d := &Dispatcher{
		email:      email,
		events:     make(chan common.EmailEvent, cfg.Notification.ChannelBufferSize),
		maxRetries: cfg.Notification.MaxRetries,
		retryDelay: time.Duration(cfg.Notification.RetryDelaySeconds) * time.Second,
		ctx:        ctx,
		cancel:     cancel,
		log:        log,
	}

	for i := 0; i < cfg.Notification.Workers; i++ {
		d.wg.Add(1)
		go d.processEvents()
	}

	return d
}

// NotifyAsync enqueues an email event without blocking. When the queue
// is full the event is dropped and logged.
func (d *Dispatcher) NotifyAsync(event common.EmailEvent) {
	select {
	case d.events <- event:
	case <-d.ctx.Done():
	default:
		d.log.Warn("notification channel full, dropping event",
			"to", event.To, "template", event.Template)
	}
}

func (d *Dispatcher) processEvents() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.events:
			d.deliver(event)
		case <-d.ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) deliver(event common.EmailEvent) {
	body := Render(event.Template, event.Context)

	var err error
	for attempt := 0; attempt <= d.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(d.retryDelay):
			case <-d.ctx.Done():
				return
			}
		}
		if err = d.email.SendEmail(event.To, event.Subject, body); err == nil {
			return
		}
	}

	d.log.Error("email delivery failed, giving up",
		"to", event.To, "template", event.Template, "error", err)
}

// Shutdown stops the workers. Queued events that no worker picked up
// before the stop are dropped.
func (d *Dispatcher) Shutdown() {
	d.cancel()
	d.wg.Wait()
	d.log.Info("dispatcher shutdown complete")
}
