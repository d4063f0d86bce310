package domain

import (
	"fmt"
	"strings"
	"time"
)

// AlertLevel is the closed severity vocabulary used across the engine.
// Params: info/warning/error/critical constants.
// Returns: ordered severity for alerts and rules.
type AlertLevel string

const (
	// LevelInfo marks informational alerts.
	LevelInfo AlertLevel = "info"
	// LevelWarning marks degraded-but-working conditions.
	LevelWarning AlertLevel = "warning"
	// LevelError marks failing conditions that need attention.
	LevelError AlertLevel = "error"
	// LevelCritical marks conditions that need immediate attention.
	LevelCritical AlertLevel = "critical"
)

// Levels returns all severity values in ascending order.
// Params: none.
// Returns: ordered level slice.
func Levels() []AlertLevel {
	return []AlertLevel{LevelInfo, LevelWarning, LevelError, LevelCritical}
}

// ParseLevel normalizes and validates one severity string.
// Params: raw level value from config or query.
// Returns: validated level or error.
func ParseLevel(raw string) (AlertLevel, error) {
	level := AlertLevel(strings.ToLower(strings.TrimSpace(raw)))
	switch level {
	case LevelInfo, LevelWarning, LevelError, LevelCritical:
		return level, nil
	default:
		return "", fmt.Errorf("unsupported alert level %q", raw)
	}
}

// Rank maps severity to an ordering weight.
// Params: none.
// Returns: weight usable for minimum-level filters.
func (l AlertLevel) Rank() int {
	switch l {
	case LevelInfo:
		return 0
	case LevelWarning:
		return 1
	case LevelError:
		return 2
	case LevelCritical:
		return 3
	default:
		return -1
	}
}

// AlertChannel is the closed delivery channel vocabulary.
// Params: channel key constants.
// Returns: channel identity for rules and dispatcher registration.
type AlertChannel string

const (
	// ChannelEmail identifies SMTP delivery.
	ChannelEmail AlertChannel = "email"
	// ChannelChat identifies chat bot delivery.
	ChannelChat AlertChannel = "chat"
	// ChannelWebhook identifies generic HTTP webhook delivery.
	ChannelWebhook AlertChannel = "webhook"
	// ChannelArchive identifies local database archive delivery.
	ChannelArchive AlertChannel = "archive"
	// ChannelTracker identifies error-tracker capture delivery.
	ChannelTracker AlertChannel = "tracker"
	// ChannelStream identifies message stream publish delivery.
	ChannelStream AlertChannel = "stream"
)

// Channels returns all channel values in stable order.
// Params: none.
// Returns: ordered channel slice.
func Channels() []AlertChannel {
	return []AlertChannel{
		ChannelEmail,
		ChannelChat,
		ChannelWebhook,
		ChannelArchive,
		ChannelTracker,
		ChannelStream,
	}
}

// ParseChannel normalizes and validates one channel string.
// Params: raw channel value from config.
// Returns: validated channel or error.
func ParseChannel(raw string) (AlertChannel, error) {
	channel := AlertChannel(strings.ToLower(strings.TrimSpace(raw)))
	switch channel {
	case ChannelEmail, ChannelChat, ChannelWebhook, ChannelArchive, ChannelTracker, ChannelStream:
		return channel, nil
	default:
		return "", fmt.Errorf("unsupported alert channel %q", raw)
	}
}

// Alert is one recorded instance of a rule condition being satisfied.
// Params: identity, severity, content, channel set, and lifecycle markers.
// Returns: mutable lifecycle record owned by the ledger.
type Alert struct {
	ID            string            `json:"id"`
	RuleName      string            `json:"rule_name"`
	Level         AlertLevel        `json:"level"`
	Service       string            `json:"service"`
	Title         string            `json:"title"`
	Message       string            `json:"message"`
	Details       map[string]string `json:"details,omitempty"`
	Channels      []AlertChannel    `json:"channels"`
	Timestamp     time.Time         `json:"timestamp"`
	Resolved      bool              `json:"resolved"`
	ResolvedAt    *time.Time        `json:"resolved_at,omitempty"`
	ResolvedBy    string            `json:"resolved_by,omitempty"`
	Escalated     bool              `json:"escalated"`
	EscalatedFrom string            `json:"escalated_from,omitempty"`
}

// Clone returns a detached copy with duplicated maps/slices.
// Params: none.
// Returns: copy safe to hand outside the ledger lock.
func (a Alert) Clone() Alert {
	out := a
	if a.Details != nil {
		out.Details = make(map[string]string, len(a.Details))
		for key, value := range a.Details {
			out.Details[key] = value
		}
	}
	out.Channels = append([]AlertChannel(nil), a.Channels...)
	if a.ResolvedAt != nil {
		resolvedAt := *a.ResolvedAt
		out.ResolvedAt = &resolvedAt
	}
	return out
}

// HasChannel reports whether the alert targets one channel.
// Params: channel key.
// Returns: true when channel is in the alert channel set.
func (a Alert) HasChannel(channel AlertChannel) bool {
	for _, candidate := range a.Channels {
		if candidate == channel {
			return true
		}
	}
	return false
}
