// Package session runs the conversation itself: the turn loop between
// the two personas, topic changes, comment injection, periodic
// re-introductions and the stall watchdog that keeps an unattended
// stream alive.
package session

import "time"

// Owner selection modes for topic-change lines.
const (
	OwnerModeProb      = "prob"
	OwnerModeAlternate = "alternate"
)

// Config tunes the pacing and cadence of a conversation.
type Config struct {
	// StreamMode keeps sessions running without a turn limit.
	StreamMode bool

	// Turns bounds a non-stream session.
	Turns int

	// TopicInterval is how many turns pass between topic changes.
	TopicInterval int

	// CallNameProb is the chance a reply addresses the partner by name.
	CallNameProb float64

	// Pacing model for waiting out the synthesized speech.
	BaseWait  time.Duration
	PerChar   time.Duration
	PunctWait time.Duration
	MaxWait   time.Duration

	// StallAfter is how long without progress before a restart is
	// requested.
	StallAfter time.Duration

	// RestartWait is the cooldown between sessions.
	RestartWait time.Duration

	// ResetInterval re-introduces the personas for new viewers. Zero
	// disables it; it only fires in stream mode.
	ResetInterval time.Duration

	// OwnerMode decides who announces a topic change, OwnerModeProb or
	// OwnerModeAlternate. AWeight is the first persona's share in prob
	// mode.
	OwnerMode string
	AWeight   float64

	// MaxRunTime force-ends a non-stream run even if the loop hangs.
	MaxRunTime time.Duration
}

// DefaultConfig returns the tuning that holds up in live streams.
func DefaultConfig() Config {
	return Config{
		StreamMode:    false,
		Turns:         20,
		TopicInterval: 3,
		CallNameProb:  0.2,
		BaseWait:      800 * time.Millisecond,
		PerChar:       170 * time.Millisecond,
		PunctWait:     180 * time.Millisecond,
		MaxWait:       60 * time.Second,
		StallAfter:    45 * time.Second,
		RestartWait:   2 * time.Second,
		ResetInterval: 30 * time.Minute,
		OwnerMode:     OwnerModeProb,
		AWeight:       0.5,
		MaxRunTime:    10 * time.Minute,
	}
}

// PaceFor estimates how long the presentation backend needs to speak
// text, so the next line does not cut it off.
func (c Config) PaceFor(text string) time.Duration {
	runes := []rune(text)
	punct := 0
	for _, r := range runes {
		switch r {
		case '。', '！', '？':
			punct++
		}
	}
	d := c.BaseWait + time.Duration(len(runes))*c.PerChar + time.Duration(punct)*c.PunctWait
	if d > c.MaxWait {
		d = c.MaxWait
	}
	return d
}
