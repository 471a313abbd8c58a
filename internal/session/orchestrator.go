package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"

	"github.com/daikw/aituberduel/internal/eventlog"
	"github.com/daikw/aituberduel/internal/llm"
	"github.com/daikw/aituberduel/internal/overlay"
	"github.com/daikw/aituberduel/internal/persona"
	"github.com/daikw/aituberduel/internal/textnorm"
	"github.com/daikw/aituberduel/internal/topic"
)

// ErrStallRestart is returned by a session that noticed the watchdog's
// restart flag.
var ErrStallRestart = errors.New("conversation stalled")

// historyKeepTurns bounds each persona's history to the last N turns
// besides the system prompt.
const historyKeepTurns = 8

// openerTemplate is the scripted first line of every session.
const openerTemplate = "[neutral]それじゃあおはなししよう。%sについてどう思う？"

// rewriteInstruction forces a Japanese redo of a reply that drifted
// into another language.
const rewriteInstruction = "英語は禁止。日本語だけで、同じ内容を短く言い直して。"

// topicChangeTemplates phrase a topic switch in the middle of a
// conversation.
var topicChangeTemplates = []string{
	"話変わるけどいい？%sってどう？",
	"ちょっと話題変えたいんだけど、%sはどう思う？",
	"今の流れで聞いてみたいんだけど、%sってどう思う？",
	"そういえばさ、%sの話してもいい？",
	"少し切り替えたいんだけど、%sどうかな？",
	"そういえば%sの話、してもいい？",
	"急だけどさ、%sってどう？",
	"ふと思い出したんだけど、%sってどう思う？",
	"%sの話、今しても平気？",
}

// resetTemplates re-open the conversation after a periodic
// re-introduction.
var resetTemplates = []string{
	"じゃあ話題も軽く変えるね。%sってどう？",
	"仕切り直して、%sの話しよ？",
	"改めていこう。%sって最近どう思う？",
	"流れ変えて、%sについて聞かせて？",
}

// Generator produces a reply from a message history.
type Generator interface {
	Chat(ctx context.Context, label, model string, messages []llm.Message, temperature float64) (string, error)
}

// Dispatcher delivers a finalized line to a presentation backend.
type Dispatcher interface {
	Speak(ctx context.Context, label, text string) error
}

// Injector swaps a scripted line for a viewer comment now and then.
type Injector interface {
	MaybeInject(defaultLine string) string
}

// Speaker binds a persona to its backend connection and per-session
// conversation state.
type Speaker struct {
	Persona  persona.Persona
	Dispatch Dispatcher

	history []llm.Message
	norm    *textnorm.Normalizer
	paint   func(a ...interface{}) string
}

// NewSpeaker wires a persona to its dispatcher. The color marks the
// speaker's lines in the console log.
func NewSpeaker(p persona.Persona, d Dispatcher, c *color.Color) *Speaker {
	return &Speaker{
		Persona:  p,
		Dispatch: d,
		norm:     textnorm.New(textnorm.DefaultMaxChars),
		paint:    c.SprintFunc(),
	}
}

func (s *Speaker) resetHistory() {
	s.history = []llm.Message{{Role: llm.RoleSystem}}
}

// trimHistory keeps the system prompt plus the most recent turns.
func (s *Speaker) trimHistory() {
	keep := historyKeepTurns * 2
	if extra := len(s.history) - 1 - keep; extra > 0 {
		s.history = append(s.history[:1], s.history[1+extra:]...)
	}
}

// Orchestrator runs conversation sessions.
type Orchestrator struct {
	cfg      Config
	gen      Generator
	a, b     *Speaker
	picker   *topic.Picker
	injector Injector
	state    *overlay.State
	events   *eventlog.Log
	clock    *Clock

	// Swappable in tests.
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
	randFloat func() float64
	randIndex func(n int) int

	lastTopicBy   string
	lastResetBy   string
	lastResetBody string
}

// NewOrchestrator assembles a conversation runner from its parts.
func NewOrchestrator(cfg Config, gen Generator, a, b *Speaker, picker *topic.Picker, injector Injector, state *overlay.State, events *eventlog.Log, clock *Clock) *Orchestrator {
	return &Orchestrator{
		cfg:         cfg,
		gen:         gen,
		a:           a,
		b:           b,
		picker:      picker,
		injector:    injector,
		state:       state,
		events:      events,
		clock:       clock,
		now:         time.Now,
		sleep:       sleepCtx,
		randFloat:   rand.Float64,
		randIndex:   rand.Intn,
		lastTopicBy: "B",
		lastResetBy: "A",
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunSession plays one conversation. It returns nil when a bounded
// session finishes normally, ErrStallRestart when the watchdog fired,
// and other errors when a backend stayed down through its retries.
func (o *Orchestrator) RunSession(ctx context.Context, sessionNo int) error {
	o.a.resetHistory()
	o.b.resetHistory()

	var transcript []topic.Line
	var usedTopics []string
	skipNextB := false
	lastIntro := o.now()

	init := o.picker.Initial()
	currentTopic := init.Topic
	usedTopics = append(usedTopics, currentTopic)
	log.Info().Int("session", sessionNo).Str("topic", currentTopic).Str("source", string(init.Source)).Msg("Session started")
	o.state.SetTopic(currentTopic, string(init.Source), init.Temp, sessionNo, 0)
	o.events.TopicChange(sessionNo, 0, currentTopic, string(init.Source), init.Temp)
	overlay.TopicChanges.WithLabelValues(string(init.Source)).Inc()

	last := fmt.Sprintf(openerTemplate, currentTopic)
	if err := o.say(ctx, o.a, last, sessionNo, 0, nil); err != nil {
		return err
	}
	transcript = append(transcript, topic.Line{Who: o.a.Persona.Name, Text: last})

	for i := 1; o.cfg.StreamMode || i <= o.cfg.Turns; i++ {
		o.a.trimHistory()
		o.b.trimHistory()

		inputForA := last

		if skipNextB {
			// One-shot skip so the topic owner does not speak twice in
			// a row.
			skipNextB = false
		} else {
			b, err := o.generate(ctx, o.b, last)
			if err != nil {
				return err
			}
			if err := o.say(ctx, o.b, b, sessionNo, i, nil); err != nil {
				return err
			}
			transcript = append(transcript, topic.Line{Who: o.b.Persona.Name, Text: b})
			last = b
			inputForA = b
		}

		a, err := o.generate(ctx, o.a, inputForA)
		if err != nil {
			return err
		}
		if err := o.say(ctx, o.a, a, sessionNo, i, nil); err != nil {
			return err
		}
		transcript = append(transcript, topic.Line{Who: o.a.Persona.Name, Text: a})
		last = a

		o.state.SetTurn(sessionNo, i)
		overlay.Turns.Inc()

		if o.resetDue(lastIntro) {
			lastIntro = o.now()
			line, owner, err := o.resetSegment(ctx, sessionNo, i, &currentTopic, transcript, &usedTopics)
			if err != nil {
				return err
			}
			transcript = append(transcript, topic.Line{Who: owner.Persona.Name, Text: line})
			last = line
			if o.clock.RestartRequested() {
				return ErrStallRestart
			}
			// The reset already redirected the conversation, so the
			// regular topic change is skipped this turn.
			continue
		}

		if i%o.cfg.TopicInterval == 0 {
			line, owner, err := o.topicSegment(ctx, sessionNo, i, &currentTopic, transcript, &usedTopics)
			if err != nil {
				return err
			}
			transcript = append(transcript, topic.Line{Who: owner.Persona.Name, Text: line})
			last = line
			if owner == o.b {
				skipNextB = true
			}
		}

		if o.clock.RestartRequested() {
			return ErrStallRestart
		}
	}

	log.Info().Int("session", sessionNo).Msg("Conversation finished")
	return nil
}

func (o *Orchestrator) resetDue(lastIntro time.Time) bool {
	return o.cfg.StreamMode && o.cfg.ResetInterval > 0 && o.now().Sub(lastIntro) >= o.cfg.ResetInterval
}

// topicSegment changes the subject every few turns: a new topic is
// picked, published, and announced by one of the personas. A queued
// viewer comment can replace the scripted announcement.
func (o *Orchestrator) topicSegment(ctx context.Context, sessionNo, turn int, currentTopic *string, transcript []topic.Line, usedTopics *[]string) (string, *Speaker, error) {
	next := o.picker.Next(ctx, transcript, *currentTopic, *usedTopics)
	*currentTopic = next.Topic
	*usedTopics = append(*usedTopics, next.Topic)

	log.Info().
		Int("session", sessionNo).
		Int("turn", turn).
		Str("topic", next.Topic).
		Str("source", string(next.Source)).
		Float64("temp", next.Temp).
		Msg("Topic changed")
	o.state.SetTopic(next.Topic, string(next.Source), next.Temp, sessionNo, turn)
	o.events.TopicChange(sessionNo, turn, next.Topic, string(next.Source), next.Temp)
	overlay.TopicChanges.WithLabelValues(string(next.Source)).Inc()

	tpl := topicChangeTemplates[o.randIndex(len(topicChangeTemplates))]
	line := "[neutral]" + fmt.Sprintf(tpl, next.Topic)
	if injected := o.injector.MaybeInject(line); injected != line {
		line = injected
		overlay.CommentInjections.Inc()
	}
	line = textnorm.NormalizeEmotion(line, textnorm.TagNeutral)

	owner := o.pickTopicOwner()
	if err := o.say(ctx, owner, line, sessionNo, turn, nil); err != nil {
		return "", nil, err
	}
	return line, owner, nil
}

// resetSegment re-introduces the personas for viewers who joined
// mid-stream, then redirects to a fresh topic in one line.
func (o *Orchestrator) resetSegment(ctx context.Context, sessionNo, turn int, currentTopic *string, transcript []topic.Line, usedTopics *[]string) (string, *Speaker, error) {
	next := o.picker.Next(ctx, transcript, *currentTopic, *usedTopics)
	*currentTopic = next.Topic
	*usedTopics = append(*usedTopics, next.Topic)

	o.state.SetTopic(next.Topic, string(next.Source), next.Temp, sessionNo, turn)
	o.events.TopicChange(sessionNo, turn, next.Topic, string(next.Source), next.Temp)
	overlay.TopicChanges.WithLabelValues(string(next.Source)).Inc()

	owner := o.pickResetOwner()
	line := o.makeResetLine(owner, next.Topic)
	log.Info().
		Int("session", sessionNo).
		Int("turn", turn).
		Str("speaker", owner.Persona.Tag()).
		Msg("Re-introduction")

	meta := &eventlog.Meta{Reset: true, Topic: next.Topic, Source: string(next.Source)}
	if err := o.say(ctx, owner, line, sessionNo, turn, meta); err != nil {
		return "", nil, err
	}
	return line, owner, nil
}

// makeResetLine joins the owner's fixed self-introduction with a topic
// redirect, keeping exactly one emotion tag.
func (o *Orchestrator) makeResetLine(owner *Speaker, t string) string {
	intro := owner.Persona.Intro
	if intro == "" {
		intro = "[neutral]改めてよろしくね！"
	}
	intro = textnorm.NormalizeEmotion(intro, textnorm.TagNeutral)

	body := o.resetBody(t)
	tag, introBody, ok := textnorm.SplitTag(intro)
	var line string
	if ok {
		line = "[" + tag + "]" + strings.TrimSpace(introBody) + " " + body
	} else {
		line = "[neutral]" + intro + " " + body
	}
	line = textnorm.NormalizeEmotion(line, textnorm.TagNeutral)
	return owner.norm.NormalizeEnding(owner.norm.NormalizeStarter(line))
}

func (o *Orchestrator) resetBody(t string) string {
	for range [4]struct{}{} {
		line := fmt.Sprintf(resetTemplates[o.randIndex(len(resetTemplates))], t)
		if line != o.lastResetBody {
			o.lastResetBody = line
			return line
		}
	}
	return fmt.Sprintf("じゃあ話題も変えるね。%sってどう？", t)
}

func (o *Orchestrator) pickTopicOwner() *Speaker {
	if o.cfg.OwnerMode == OwnerModeAlternate {
		if o.lastTopicBy == "A" {
			o.lastTopicBy = "B"
			return o.b
		}
		o.lastTopicBy = "A"
		return o.a
	}
	if o.randFloat() < o.cfg.AWeight {
		return o.a
	}
	return o.b
}

// pickResetOwner strictly alternates, so both personas get to
// re-introduce themselves. The opener counts as A's introduction, so
// the first reset belongs to B.
func (o *Orchestrator) pickResetOwner() *Speaker {
	if o.lastResetBy == "A" {
		o.lastResetBy = "B"
		return o.b
	}
	o.lastResetBy = "A"
	return o.a
}

// generate asks the backend for the speaker's next line and cleans it
// up. The model never sees emotion tags; history keeps only untagged
// bodies.
func (o *Orchestrator) generate(ctx context.Context, sp *Speaker, input string) (string, error) {
	callName := o.randFloat() < o.cfg.CallNameProb
	sp.history[0] = llm.Message{Role: llm.RoleSystem, Content: sp.Persona.SystemPrompt(callName)}
	sp.history = append(sp.history, llm.Message{Role: llm.RoleUser, Content: textnorm.StripTag(input)})

	label := "chat " + sp.Persona.Tag()
	out, err := o.gen.Chat(ctx, label, sp.Persona.Model, sp.history, sp.Persona.Temperature)
	if err != nil {
		return "", err
	}
	out = sp.norm.Clip(out)

	if !textnorm.IsJapanese(out) {
		sp.history = append(sp.history, llm.Message{Role: llm.RoleUser, Content: rewriteInstruction})
		out, err = o.gen.Chat(ctx, label+" rewrite", sp.Persona.Model, sp.history, sp.Persona.Temperature)
		if err != nil {
			return "", err
		}
		out = sp.norm.Clip(out)
	}

	out = textnorm.NormalizeEmotion(out, sp.Persona.FallbackTag())
	out = sp.norm.NormalizeStarter(out)
	out = sp.norm.NormalizeEnding(out)

	sp.history = append(sp.history, llm.Message{Role: llm.RoleAssistant, Content: textnorm.StripTag(out)})
	o.clock.Mark()
	return out, nil
}

// say logs, dispatches and records one line, then waits out the speech.
func (o *Orchestrator) say(ctx context.Context, sp *Speaker, text string, sessionNo, turn int, meta *eventlog.Meta) error {
	log.Info().
		Str("speaker", sp.paint(sp.Persona.Tag())).
		Str("emotion", string(sp.Persona.Emotion)).
		Float64("temp", sp.Persona.Temperature).
		Str("text", text).
		Msg("Say")

	if err := sp.Dispatch.Speak(ctx, "send "+sp.Persona.Tag(), text); err != nil {
		return err
	}
	o.events.Utterance(eventlog.Utterance{
		SessionNo: sessionNo,
		Turn:      turn,
		Who:       sp.Persona.ID,
		Name:      sp.Persona.Name,
		Emotion:   string(sp.Persona.Emotion),
		Temp:      sp.Persona.Temperature,
		Text:      text,
		Meta:      meta,
	})
	o.clock.Mark()
	return o.sleep(ctx, o.cfg.PaceFor(text))
}
