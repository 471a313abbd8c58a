package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daikw/aituberduel/internal/comment"
	"github.com/daikw/aituberduel/internal/eventlog"
	"github.com/daikw/aituberduel/internal/llm"
	"github.com/daikw/aituberduel/internal/overlay"
	"github.com/daikw/aituberduel/internal/persona"
	"github.com/daikw/aituberduel/internal/topic"
)

type fakeGen struct {
	mu       sync.Mutex
	reply    string
	replies  []string // consumed first, in order
	failures int
	calls    int
}

func (g *fakeGen) Chat(_ context.Context, _, _ string, _ []llm.Message, _ float64) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.failures > 0 {
		g.failures--
		return "", errors.New("backend down")
	}
	if len(g.replies) > 0 {
		r := g.replies[0]
		g.replies = g.replies[1:]
		return r, nil
	}
	return g.reply, nil
}

type sayRec struct {
	id   string
	text string
}

type recorder struct {
	mu   sync.Mutex
	says []sayRec
	// onSay runs after each recorded line, with the running count.
	onSay func(n int)
}

func (r *recorder) add(id, text string) {
	r.mu.Lock()
	r.says = append(r.says, sayRec{id: id, text: text})
	n := len(r.says)
	cb := r.onSay
	r.mu.Unlock()
	if cb != nil {
		cb(n)
	}
}

func (r *recorder) all() []sayRec {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sayRec(nil), r.says...)
}

type fakeDispatch struct {
	id  string
	rec *recorder
}

func (d *fakeDispatch) Speak(_ context.Context, _, text string) error {
	d.rec.add(d.id, text)
	return nil
}

type testRig struct {
	orch  *Orchestrator
	gen   *fakeGen
	rec   *recorder
	queue *comment.Queue
	clock *Clock
}

func newRig(t *testing.T, cfg Config, rate float64) *testRig {
	t.Helper()

	pa, pb := persona.DefaultPair()
	rec := &recorder{}
	a := NewSpeaker(pa, &fakeDispatch{id: "A", rec: rec}, color.New(color.FgHiMagenta))
	b := NewSpeaker(pb, &fakeDispatch{id: "B", rec: rec}, color.New(color.FgHiCyan))

	gen := &fakeGen{reply: "[happy]それ分かるよ、昨日も似たことがあったし。そっちはどう？"}
	queue := comment.NewQueue()
	clock := NewClock()

	orch := NewOrchestrator(
		cfg,
		gen,
		a, b,
		topic.New(nil, "test-model", false, 0),
		comment.NewInjector(queue, rate),
		overlay.NewState(topic.DefaultTemp),
		eventlog.New(t.TempDir()),
		clock,
	)
	orch.sleep = func(context.Context, time.Duration) error { return nil }
	orch.randFloat = func() float64 { return 0.9 }
	orch.randIndex = func(int) int { return 0 }

	return &testRig{orch: orch, gen: gen, rec: rec, queue: queue, clock: clock}
}

func TestRunSession_FiniteConversationFlow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Turns = 3
	rig := newRig(t, cfg, 0)

	require.NoError(t, rig.orch.RunSession(context.Background(), 1))

	says := rig.rec.all()
	require.Len(t, says, 8)

	assert.Equal(t, "A", says[0].id)
	assert.Contains(t, says[0].text, "それじゃあおはなししよう。")

	// Three turns of B then A.
	for i := 1; i <= 6; i += 2 {
		assert.Equal(t, "B", says[i].id)
		assert.Equal(t, "A", says[i+1].id)
	}

	// randFloat 0.9 puts the topic change on the second persona.
	assert.Equal(t, "B", says[7].id)
	assert.Contains(t, says[7].text, "話変わるけどいい？")
	assert.True(t, strings.HasPrefix(says[7].text, "[neutral]"))
}

func TestRunSession_TopicOwnerBSkipsNextBTurn(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Turns = 4
	rig := newRig(t, cfg, 0)

	require.NoError(t, rig.orch.RunSession(context.Background(), 1))

	says := rig.rec.all()
	require.Len(t, says, 9)
	assert.Equal(t, "B", says[7].id)
	// Turn 4 has no B line because B just announced the topic.
	assert.Equal(t, "A", says[8].id)
}

func TestRunSession_InjectsQueuedCommentAtTopicChange(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Turns = 3
	rig := newRig(t, cfg, 1.0)
	rig.queue.Push("猫の話して")
	rig.queue.Push("眠い")

	require.NoError(t, rig.orch.RunSession(context.Background(), 1))

	says := rig.rec.all()
	require.Len(t, says, 8)
	assert.Equal(t, "[neutral]コメントで「猫の話して」って流れてたけど、どう思う？", says[7].text)
	assert.Equal(t, 1, rig.queue.Len())
}

func TestGenerate_NonJapaneseReplyGetsOneRewrite(t *testing.T) {
	rig := newRig(t, DefaultConfig(), 0)
	rig.orch.a.resetHistory()
	rig.gen.replies = []string{
		"Sure, let me think about that one for a moment.",
		"[happy]昨日の配信の話、すごく面白かったよ。",
	}

	out, err := rig.orch.generate(context.Background(), rig.orch.a, "[happy]最近どう？")
	require.NoError(t, err)

	assert.Equal(t, 2, rig.gen.calls)
	assert.Equal(t, "[happy]昨日の配信の話、すごく面白かったよ。", out)
	// The redo instruction went into the history before the second call.
	require.GreaterOrEqual(t, len(rig.orch.a.history), 3)
	assert.Equal(t, llm.RoleUser, rig.orch.a.history[2].Role)
	assert.Equal(t, "英語は禁止。日本語だけで、同じ内容を短く言い直して。", rig.orch.a.history[2].Content)
}

func TestRunSession_SecondNonJapaneseReplyDispatchedAsIs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Turns = 1
	rig := newRig(t, cfg, 0)
	rig.gen.replies = []string{
		"I would rather keep talking in English.",
		"Still English, no matter what you say.",
	}

	require.NoError(t, rig.orch.RunSession(context.Background(), 1))

	says := rig.rec.all()
	require.Len(t, says, 3)
	// B burned both scripted replies: the original and its one rewrite.
	// The rewrite is kept even though it is still not Japanese; A's line
	// then comes from the default reply, so three calls in total.
	assert.Equal(t, 3, rig.gen.calls)
	assert.Equal(t, "B", says[1].id)
	assert.Equal(t, "[relaxed]Still English, no matter what you say.", says[1].text)
}

func TestRunSession_StallFlagSurfaces(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Turns = 10
	rig := newRig(t, cfg, 0)
	rig.clock.RequestRestart()

	err := rig.orch.RunSession(context.Background(), 1)
	require.ErrorIs(t, err, ErrStallRestart)
}

func TestRunSession_GeneratorFailureEndsSession(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Turns = 3
	rig := newRig(t, cfg, 0)
	rig.gen.failures = 100

	err := rig.orch.RunSession(context.Background(), 1)
	require.Error(t, err)
	// Only the scripted opener made it out.
	assert.Len(t, rig.rec.all(), 1)
}

func TestRunSession_StreamModeReintroduction(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StreamMode = true
	cfg.ResetInterval = time.Nanosecond
	rig := newRig(t, cfg, 0)
	rig.rec.onSay = func(n int) {
		if n >= 4 {
			rig.clock.RequestRestart()
		}
	}

	err := rig.orch.RunSession(context.Background(), 1)
	require.ErrorIs(t, err, ErrStallRestart)

	says := rig.rec.all()
	require.Len(t, says, 4)
	// The first re-introduction belongs to the second persona.
	assert.Equal(t, "B", says[3].id)
	assert.True(t, strings.HasPrefix(says[3].text, "[relaxed]"))
	assert.Contains(t, says[3].text, "改めて、真冬だよ")
	assert.Contains(t, says[3].text, "じゃあ話題も軽く変えるね。")
}

func TestPickResetOwner_AlternatesStartingWithB(t *testing.T) {
	rig := newRig(t, DefaultConfig(), 0)

	assert.Same(t, rig.orch.b, rig.orch.pickResetOwner())
	assert.Same(t, rig.orch.a, rig.orch.pickResetOwner())
	assert.Same(t, rig.orch.b, rig.orch.pickResetOwner())
}

func TestMakeResetLine_SingleTagAndTopic(t *testing.T) {
	rig := newRig(t, DefaultConfig(), 0)

	line := rig.orch.makeResetLine(rig.orch.a, "夏祭りの思い出")

	assert.True(t, strings.HasPrefix(line, "[happy]"))
	assert.Contains(t, line, "改めて、マヌカだよ")
	assert.Contains(t, line, "夏祭りの思い出")
	assert.Equal(t, 1, strings.Count(line, "["))
}

func TestResetBody_AvoidsImmediateRepeat(t *testing.T) {
	rig := newRig(t, DefaultConfig(), 0)

	first := rig.orch.resetBody("ゲーム")
	second := rig.orch.resetBody("ゲーム")

	assert.Equal(t, "じゃあ話題も軽く変えるね。ゲームってどう？", first)
	// With the draw pinned, the fallback phrasing breaks the repeat.
	assert.Equal(t, "じゃあ話題も変えるね。ゲームってどう？", second)
}

func TestPaceFor(t *testing.T) {
	cfg := DefaultConfig()

	got := cfg.PaceFor("こんにちは。")
	assert.Equal(t, 800*time.Millisecond+6*170*time.Millisecond+180*time.Millisecond, got)

	long := strings.Repeat("あ", 1000)
	assert.Equal(t, cfg.MaxWait, cfg.PaceFor(long))
}

func TestTrimHistory_KeepsSystemAndRecentTurns(t *testing.T) {
	pa, _ := persona.DefaultPair()
	sp := NewSpeaker(pa, nil, color.New(color.FgHiMagenta))
	sp.resetHistory()
	sp.history[0] = llm.Message{Role: llm.RoleSystem, Content: "system"}
	for i := 0; i < 20; i++ {
		sp.history = append(sp.history, llm.Message{Role: llm.RoleUser, Content: strings.Repeat("x", i+1)})
	}

	sp.trimHistory()

	require.Len(t, sp.history, 1+historyKeepTurns*2)
	assert.Equal(t, llm.RoleSystem, sp.history[0].Role)
	// The oldest non-system entries were dropped.
	assert.Equal(t, strings.Repeat("x", 5), sp.history[1].Content)
}

func TestSupervisor_RestartsUntilCleanFinish(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Turns = 2
	cfg.RestartWait = time.Millisecond
	rig := newRig(t, cfg, 0)
	// First session dies on its first generation, the second one runs
	// through.
	rig.gen.failures = 1

	sup := NewSupervisor(rig.orch, rig.clock, cfg)
	require.NoError(t, sup.Run(context.Background()))

	says := rig.rec.all()
	openers := 0
	for _, s := range says {
		if strings.Contains(s.text, "それじゃあおはなししよう。") {
			openers++
		}
	}
	assert.Equal(t, 2, openers)
}

func TestSupervisor_ContextCancelStops(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StreamMode = true
	rig := newRig(t, cfg, 0)

	ctx, cancel := context.WithCancel(context.Background())
	rig.rec.onSay = func(n int) {
		if n >= 3 {
			cancel()
		}
	}
	rig.orch.sleep = sleepCtx
	rig.orch.cfg.BaseWait = 0
	rig.orch.cfg.PerChar = 0
	rig.orch.cfg.PunctWait = 0

	sup := NewSupervisor(rig.orch, rig.clock, rig.orch.cfg)
	require.NoError(t, sup.Run(ctx))
}
