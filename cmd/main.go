package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/daikw/aituberduel/internal/comment"
	"github.com/daikw/aituberduel/internal/dispatch"
	"github.com/daikw/aituberduel/internal/eventlog"
	"github.com/daikw/aituberduel/internal/llm"
	"github.com/daikw/aituberduel/internal/overlay"
	"github.com/daikw/aituberduel/internal/persona"
	"github.com/daikw/aituberduel/internal/session"
	"github.com/daikw/aituberduel/internal/topic"
)

var (
	version  = "dev"
	revision = "none"
)

func main() {
	// Setup logger
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	app := &cli.Command{
		Name:  "aituberduel",
		Usage: "Run an unattended two-persona AITuber conversation",
		Description: `aituberduel keeps two AITuberKit characters talking to each other:
it generates their lines with a local LLM, rotates topics, reacts to
YouTube live comments, and restarts the conversation whenever it stalls.`,
		Version: fmt.Sprintf("%s (rev: %s)", version, revision),
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"V"},
				Usage:   "Enable verbose logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Start the conversation, overlay and comment poller",
				Action: run,
				Flags:  runFlags(),
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			if c.Bool("verbose") {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			} else {
				zerolog.SetGlobalLevel(zerolog.InfoLevel)
			}
			return ctx, nil
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Fatal().Err(err).Msg("Failed to run application")
	}
}

func runFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "stream",
			Usage: "Stream mode: run without a turn limit",
		},
		&cli.IntFlag{
			Name:  "turns",
			Usage: "Number of turns in a non-stream session",
			Value: 20,
		},
		&cli.StringFlag{
			Name:  "personas",
			Usage: "YAML file overriding the default persona pair",
		},
		&cli.StringFlag{
			Name:    "llm-base",
			Usage:   "Base URL of the OpenAI-compatible generation API",
			Value:   llm.DefaultBaseURL,
			Sources: cli.EnvVars("LLM_BASE_URL"),
		},
		&cli.BoolFlag{
			Name:  "topic-brain",
			Usage: "Generate topics with the LLM instead of the static list",
			Value: true,
		},
		&cli.Float64Flag{
			Name:  "topic-temp",
			Usage: "Sampling temperature for topic generation",
			Value: topic.DefaultTemp,
		},
		&cli.StringFlag{
			Name:  "owner-mode",
			Usage: "Who announces topic changes: prob or alternate",
			Value: session.OwnerModeProb,
		},
		&cli.IntFlag{
			Name:  "overlay-port",
			Usage: "Port of the OBS topic overlay",
			Value: overlay.DefaultPort,
		},
		&cli.StringFlag{
			Name:  "overlay-title",
			Usage: "Caption label shown on the overlay",
			Value: "現在の話題",
		},
		&cli.Float64Flag{
			Name:  "comment-rate",
			Usage: "Probability that a topic change picks up a live comment",
			Value: comment.DefaultRate,
		},
		&cli.StringFlag{
			Name:    "api-key",
			Usage:   "YouTube Data API key for live comments",
			Sources: cli.EnvVars("YT_API_KEY"),
		},
		&cli.StringFlag{
			Name:    "video-id",
			Usage:   "YouTube video ID of the running stream",
			Sources: cli.EnvVars("YT_VIDEO_ID"),
		},
		&cli.StringFlag{
			Name:  "log-dir",
			Usage: "Directory for the JSONL conversation logs",
			Value: ".",
		},
	}
}

func run(ctx context.Context, c *cli.Command) error {
	cfg := session.DefaultConfig()
	cfg.StreamMode = c.Bool("stream")
	cfg.Turns = int(c.Int("turns"))
	cfg.OwnerMode = c.String("owner-mode")
	if cfg.OwnerMode != session.OwnerModeProb && cfg.OwnerMode != session.OwnerModeAlternate {
		return fmt.Errorf("unknown owner mode: %s", cfg.OwnerMode)
	}

	pa, pb, err := persona.LoadPair(c.String("personas"))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if !cfg.StreamMode {
		// Bounded runs end on time even if the loop wedges below the
		// stall detector.
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.MaxRunTime)
		defer cancel()
	}

	gen := llm.NewClient(c.String("llm-base"))
	speakerA := session.NewSpeaker(pa, dispatch.New(pa.DispatchBase, pa.ClientID), color.New(color.FgHiMagenta))
	speakerB := session.NewSpeaker(pb, dispatch.New(pb.DispatchBase, pb.ClientID), color.New(color.FgHiCyan))

	topicTemp := c.Float64("topic-temp")
	picker := topic.New(gen, pb.Model, c.Bool("topic-brain"), topicTemp)

	queue := comment.NewQueue()
	injector := comment.NewInjector(queue, c.Float64("comment-rate"))
	poller := comment.NewPoller(c.String("api-key"), c.String("video-id"), queue)

	state := overlay.NewState(topicTemp)
	overlayCfg := overlay.DefaultConfig(topicTemp)
	overlayCfg.Port = int(c.Int("overlay-port"))
	overlayCfg.Title = c.String("overlay-title")
	overlaySrv, err := overlay.NewServer(overlayCfg, state)
	if err != nil {
		return err
	}

	events := eventlog.New(c.String("log-dir"))
	log.Info().Str("runId", events.RunID()).Msg("Starting duel")

	clock := session.NewClock()
	orch := session.NewOrchestrator(cfg, gen, speakerA, speakerB, picker, injector, state, events, clock)
	sup := session.NewSupervisor(orch, clock, cfg)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return overlaySrv.Run(ctx) })
	g.Go(func() error { return poller.Run(ctx) })
	g.Go(func() error {
		session.Monitor(ctx, clock, cfg.StallAfter)
		return nil
	})
	g.Go(func() error {
		// A finished supervisor ends the background tasks too.
		defer cancel()
		return sup.Run(ctx)
	})

	return g.Wait()
}
