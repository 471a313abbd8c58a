// Package overlay serves the on-stream topic caption. OBS points a
// browser source at /overlay; the page polls /topic for the current
// state and animates changes.
package overlay

import (
	"sync"
	"time"
)

// Snapshot is the overlay state as served on /topic. Field names are
// part of the contract with overlay.js.
type Snapshot struct {
	Topic     string  `json:"topic"`
	Source    string  `json:"source"`
	TopicTemp float64 `json:"topicTemp"`
	SessionNo int     `json:"sessionNo"`
	Turn      int     `json:"turn"`
	UpdatedAt int64   `json:"updatedAt"`
}

// State holds the current overlay snapshot. The session loop writes,
// the HTTP handler reads.
type State struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewState returns a State with the given default topic temperature.
func NewState(defaultTemp float64) *State {
	s := &State{now: time.Now}
	s.snap = Snapshot{
		Source:    "INIT",
		TopicTemp: defaultTemp,
		UpdatedAt: s.now().UnixMilli(),
	}
	return s
}

// SetTopic publishes a topic change. The update timestamp triggers the
// page's change animation.
func (s *State) SetTopic(topic, source string, temp float64, sessionNo, turn int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Topic = topic
	s.snap.Source = source
	if temp > 0 {
		s.snap.TopicTemp = temp
	}
	s.snap.SessionNo = sessionNo
	s.snap.Turn = turn
	s.snap.UpdatedAt = s.now().UnixMilli()
}

// SetTurn bumps only the turn counter without touching the topic.
func (s *State) SetTurn(sessionNo, turn int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.SessionNo = sessionNo
	s.snap.Turn = turn
}

// Snapshot returns a copy of the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}
