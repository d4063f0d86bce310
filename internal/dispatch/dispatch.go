package dispatch

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"opsalert/internal/domain"
)

const defaultSendTimeout = 10 * time.Second

// Sender delivers one alert to one channel.
// Params: context bound by the dispatcher timeout and full alert payload.
// Returns: delivery error; retry policy is the sender's own concern.
type Sender interface {
	Channel() domain.AlertChannel
	Deliver(ctx context.Context, alert domain.Alert) error
}

// Dispatcher fans one alert out to all of its channels concurrently.
// Params: sender registry keyed by channel and per-send timeout.
// Returns: fire-and-forget delivery relative to the caller.
type Dispatcher struct {
	senders map[domain.AlertChannel]Sender
	timeout time.Duration
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// New builds a dispatcher from registered senders.
// Params: sender list, per-send timeout (0 selects the default), and logger.
// Returns: configured dispatcher; later registrations of the same channel win.
func New(senders []Sender, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	registry := make(map[domain.AlertChannel]Sender, len(senders))
	for _, sender := range senders {
		registry[sender.Channel()] = sender
	}
	return &Dispatcher{
		senders: registry,
		timeout: timeout,
		logger:  logger,
	}
}

// Send launches one delivery goroutine per alert channel.
// Params: alert with its channel set copied at trigger time.
// Returns: immediately after launch; failures are logged per channel and
// never affect other channels or ledger state.
func (d *Dispatcher) Send(alert domain.Alert) {
	for _, channel := range alert.Channels {
		sender, ok := d.senders[channel]
		if !ok {
			if d.logger != nil {
				d.logger.Warn("alert channel is not configured", "channel", string(channel), "alert_id", alert.ID)
			}
			continue
		}
		d.wg.Add(1)
		go d.deliver(sender, alert.Clone())
	}
}

// deliver runs one channel send with a bounded context.
// Params: sender and detached alert copy.
// Returns: outcome logged; errors stay isolated to the channel.
func (d *Dispatcher) deliver(sender Sender, alert domain.Alert) {
	defer d.wg.Done()
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := sender.Deliver(ctx, alert); err != nil {
		if d.logger != nil {
			d.logger.Error("alert delivery failed",
				"channel", string(sender.Channel()),
				"alert_id", alert.ID,
				"error", err.Error())
		}
		return
	}
	if d.logger != nil {
		d.logger.Debug("alert delivered", "channel", string(sender.Channel()), "alert_id", alert.ID)
	}
}

// Wait blocks until all launched deliveries finish.
// Params: none.
// Returns: after in-flight sends drain; used on shutdown and in tests.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Channels returns the registered channel keys.
// Params: none.
// Returns: deterministic sorted channel list.
func (d *Dispatcher) Channels() []domain.AlertChannel {
	out := make([]domain.AlertChannel, 0, len(d.senders))
	for channel := range d.senders {
		out = append(out, channel)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
