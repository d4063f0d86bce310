package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"opsalert/internal/domain"
)

type recordingSender struct {
	channel domain.AlertChannel
	err     error
	delay   time.Duration

	mu    sync.Mutex
	calls []domain.Alert
}

func (s *recordingSender) Channel() domain.AlertChannel { return s.channel }

func (s *recordingSender) Deliver(ctx context.Context, alert domain.Alert) error {
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.delay):
		}
	}
	s.mu.Lock()
	s.calls = append(s.calls, alert)
	s.mu.Unlock()
	return s.err
}

func (s *recordingSender) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func testAlert(channels ...domain.AlertChannel) domain.Alert {
	return domain.Alert{
		ID:       "alert/high_error_rate/error/1/abcd",
		RuleName: "high_error_rate",
		Level:    domain.LevelError,
		Channels: channels,
	}
}

func TestSendDeliversToAllChannels(t *testing.T) {
	t.Parallel()

	email := &recordingSender{channel: domain.ChannelEmail}
	webhook := &recordingSender{channel: domain.ChannelWebhook}
	dispatcher := New([]Sender{email, webhook}, time.Second, nil)

	dispatcher.Send(testAlert(domain.ChannelEmail, domain.ChannelWebhook))
	dispatcher.Wait()

	if email.callCount() != 1 || webhook.callCount() != 1 {
		t.Fatalf("expected one delivery per channel, got %d/%d", email.callCount(), webhook.callCount())
	}
}

func TestSendIsolatesFailingChannel(t *testing.T) {
	t.Parallel()

	failing := &recordingSender{channel: domain.ChannelEmail, err: errors.New("smtp down")}
	webhook := &recordingSender{channel: domain.ChannelWebhook}
	chat := &recordingSender{channel: domain.ChannelChat}
	dispatcher := New([]Sender{failing, webhook, chat}, time.Second, nil)

	dispatcher.Send(testAlert(domain.ChannelEmail, domain.ChannelWebhook, domain.ChannelChat))
	dispatcher.Wait()

	if webhook.callCount() != 1 || chat.callCount() != 1 {
		t.Fatalf("expected healthy channels to deliver, got %d/%d", webhook.callCount(), chat.callCount())
	}
	if failing.callCount() != 1 {
		t.Fatalf("expected failing channel to be attempted once, got %d", failing.callCount())
	}
}

func TestSendSkipsUnregisteredChannel(t *testing.T) {
	t.Parallel()

	webhook := &recordingSender{channel: domain.ChannelWebhook}
	dispatcher := New([]Sender{webhook}, time.Second, nil)

	dispatcher.Send(testAlert(domain.ChannelEmail, domain.ChannelWebhook))
	dispatcher.Wait()

	if webhook.callCount() != 1 {
		t.Fatalf("expected registered channel delivery, got %d", webhook.callCount())
	}
}

func TestSendDoesNotBlockOnSlowChannel(t *testing.T) {
	t.Parallel()

	slow := &recordingSender{channel: domain.ChannelWebhook, delay: 500 * time.Millisecond}
	dispatcher := New([]Sender{slow}, time.Second, nil)

	started := time.Now()
	dispatcher.Send(testAlert(domain.ChannelWebhook))
	if elapsed := time.Since(started); elapsed > 100*time.Millisecond {
		t.Fatalf("Send blocked for %v", elapsed)
	}
	dispatcher.Wait()
}

func TestDeliveryTimeoutCancelsContext(t *testing.T) {
	t.Parallel()

	slow := &recordingSender{channel: domain.ChannelWebhook, delay: time.Second}
	dispatcher := New([]Sender{slow}, 20*time.Millisecond, nil)

	dispatcher.Send(testAlert(domain.ChannelWebhook))
	dispatcher.Wait()

	if slow.callCount() != 0 {
		t.Fatalf("expected timed-out delivery to abort, got %d calls", slow.callCount())
	}
}

func TestChannelsListsRegistrations(t *testing.T) {
	t.Parallel()

	dispatcher := New([]Sender{
		&recordingSender{channel: domain.ChannelWebhook},
		&recordingSender{channel: domain.ChannelEmail},
	}, time.Second, nil)

	channels := dispatcher.Channels()
	if len(channels) != 2 || channels[0] != domain.ChannelEmail || channels[1] != domain.ChannelWebhook {
		t.Fatalf("unexpected channel list: %#v", channels)
	}
}
