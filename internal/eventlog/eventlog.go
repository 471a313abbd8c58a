// Package eventlog appends session records to JSONL files so a run can
// be reviewed after the stream: one file of spoken lines, one of topic
// changes. Write failures never interrupt the conversation.
package eventlog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	// UtteranceFile collects every spoken line.
	UtteranceFile = "duel_log.jsonl"
	// EventFile collects topic changes.
	EventFile = "duel_events.jsonl"
)

// Meta annotates special utterances.
type Meta struct {
	Reset  bool   `json:"reset,omitempty"`
	Topic  string `json:"topic,omitempty"`
	Source string `json:"source,omitempty"`
}

// Utterance is one spoken line as it went to the presentation backend.
type Utterance struct {
	TS        int64   `json:"ts"`
	RunID     string  `json:"runId"`
	SessionNo int     `json:"sessionNo"`
	Turn      int     `json:"turn"`
	Who       string  `json:"who"`
	Name      string  `json:"name"`
	Emotion   string  `json:"emotion"`
	Temp      float64 `json:"temp"`
	Text      string  `json:"text"`
	Meta      *Meta   `json:"meta,omitempty"`
}

// Event is a non-utterance record, currently only topic changes.
type Event struct {
	TS        int64   `json:"ts"`
	RunID     string  `json:"runId"`
	Kind      string  `json:"kind"`
	SessionNo int     `json:"sessionNo"`
	Turn      int     `json:"turn"`
	Topic     string  `json:"topic"`
	Source    string  `json:"source"`
	Temp      float64 `json:"temp"`
}

// Log owns the two JSONL files of one process run. All records carry
// the same run ID so overlapping runs in a shared directory stay
// distinguishable.
type Log struct {
	mu         sync.Mutex
	runID      string
	utterPath  string
	eventsPath string
	now        func() time.Time
}

// New creates a Log writing into dir (empty means the working
// directory).
func New(dir string) *Log {
	return &Log{
		runID:      uuid.NewString(),
		utterPath:  filepath.Join(dir, UtteranceFile),
		eventsPath: filepath.Join(dir, EventFile),
		now:        time.Now,
	}
}

// RunID returns the identifier stamped on every record.
func (l *Log) RunID() string {
	return l.runID
}

// Utterance records one spoken line. The timestamp and run ID are
// filled in here.
func (l *Log) Utterance(u Utterance) {
	u.TS = l.now().UnixMilli()
	u.RunID = l.runID
	l.append(l.utterPath, u)
}

// TopicChange records a topic switch.
func (l *Log) TopicChange(sessionNo, turn int, topic, source string, temp float64) {
	l.append(l.eventsPath, Event{
		TS:        l.now().UnixMilli(),
		RunID:     l.runID,
		Kind:      "topic",
		SessionNo: sessionNo,
		Turn:      turn,
		Topic:     topic,
		Source:    source,
		Temp:      temp,
	})
}

func (l *Log) append(path string, v any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, err := json.Marshal(v)
	if err != nil {
		log.Debug().Err(err).Str("path", path).Msg("Event log encode failed")
		return
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		log.Debug().Err(err).Str("path", path).Msg("Event log open failed")
		return
	}
	defer func() {
		_ = f.Close()
	}()
	if _, err := f.Write(append(b, '\n')); err != nil {
		log.Debug().Err(err).Str("path", path).Msg("Event log write failed")
	}
}
