package comment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	defaultAPIBase = "https://www.googleapis.com/youtube/v3"

	// PollInterval is the steady-state wait between chat page fetches.
	// Long enough to stay far under the API quota.
	PollInterval = 60 * time.Second

	// errorWait is the pause after a failed fetch before trying again.
	errorWait = 30 * time.Second

	// seenMax bounds the duplicate-ID set. The set is simply cleared
	// when it grows past this; a brief window of re-queued comments is
	// acceptable.
	seenMax = 2000
)

// Poller tails a YouTube live chat and feeds sanitized messages into a
// Queue.
type Poller struct {
	apiKey  string
	videoID string
	queue   *Queue

	apiBase    string
	httpClient *http.Client
	seen       map[string]struct{}
	interval   time.Duration
	errWait    time.Duration
}

// NewPoller creates a poller for the given video's live chat. An empty
// apiKey or videoID yields a poller whose Run is a no-op.
func NewPoller(apiKey, videoID string, q *Queue) *Poller {
	return &Poller{
		apiKey:     apiKey,
		videoID:    videoID,
		queue:      q,
		apiBase:    defaultAPIBase,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		seen:       make(map[string]struct{}),
		interval:   PollInterval,
		errWait:    errorWait,
	}
}

// Run polls the live chat until the context is cancelled. Comments are
// strictly optional, so configuration gaps and an offline stream log a
// warning and return nil instead of failing the whole program.
func (p *Poller) Run(ctx context.Context) error {
	if p.apiKey == "" {
		log.Warn().Msg("Live comments disabled: API key is missing")
		return nil
	}
	if p.videoID == "" {
		log.Warn().Msg("Live comments disabled: video ID is missing")
		return nil
	}

	chatID, err := p.activeLiveChatID(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Live comments disabled: chat lookup failed")
		return nil
	}
	if chatID == "" {
		log.Warn().Msg("Live comments disabled: no active chat, stream may be offline")
		return nil
	}
	log.Info().Str("liveChatId", chatID).Msg("Live chat polling started")

	// Warmup: fetch one page only to advance the token past the chat
	// backlog, so the session reacts to comments from now on.
	var token string
	if warm, err := p.listMessages(ctx, chatID, ""); err != nil {
		log.Warn().Err(err).Msg("Live chat warmup failed")
	} else {
		token = warm.NextPageToken
		wait := time.Duration(warm.PollingIntervalMillis) * time.Millisecond
		if warm.PollingIntervalMillis == 0 {
			wait = 5 * time.Second
		}
		if wait < time.Second {
			wait = time.Second
		}
		log.Debug().
			Int("skipped", len(warm.Items)).
			Dur("wait", wait).
			Msg("Live chat warmup done")
		if err := sleep(ctx, wait); err != nil {
			return nil
		}
	}

	for {
		page, err := p.listMessages(ctx, chatID, token)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warn().Err(err).Msg("Live chat poll failed")
			if err := sleep(ctx, p.errWait); err != nil {
				return nil
			}
			continue
		}
		if page.NextPageToken != "" {
			token = page.NextPageToken
		}

		added := 0
		for _, it := range page.Items {
			if it.ID == "" {
				continue
			}
			if _, ok := p.seen[it.ID]; ok {
				continue
			}
			p.seen[it.ID] = struct{}{}

			text := Sanitize(it.Snippet.DisplayMessage)
			if text == "" {
				continue
			}
			p.queue.Push(text)
			added++
			if added == 1 {
				log.Debug().
					Str("author", it.AuthorDetails.DisplayName).
					Str("text", text).
					Msg("New live comment")
			}
		}
		if len(p.seen) > seenMax {
			p.seen = make(map[string]struct{})
		}
		log.Debug().
			Int("items", len(page.Items)).
			Int("added", added).
			Int("queue", p.queue.Len()).
			Msg("Live chat polled")

		if err := sleep(ctx, p.interval); err != nil {
			return nil
		}
	}
}

type videosResponse struct {
	Items []struct {
		LiveStreamingDetails struct {
			ActiveLiveChatID string `json:"activeLiveChatId"`
		} `json:"liveStreamingDetails"`
	} `json:"items"`
}

type chatPage struct {
	NextPageToken         string     `json:"nextPageToken"`
	PollingIntervalMillis int        `json:"pollingIntervalMillis"`
	Items                 []chatItem `json:"items"`
}

type chatItem struct {
	ID      string `json:"id"`
	Snippet struct {
		DisplayMessage string `json:"displayMessage"`
	} `json:"snippet"`
	AuthorDetails struct {
		DisplayName string `json:"displayName"`
	} `json:"authorDetails"`
}

func (p *Poller) activeLiveChatID(ctx context.Context) (string, error) {
	q := url.Values{}
	q.Set("part", "liveStreamingDetails")
	q.Set("id", p.videoID)
	q.Set("key", p.apiKey)

	var resp videosResponse
	if err := p.getJSON(ctx, p.apiBase+"/videos?"+q.Encode(), &resp); err != nil {
		return "", fmt.Errorf("videos.list: %w", err)
	}
	if len(resp.Items) == 0 {
		return "", nil
	}
	return resp.Items[0].LiveStreamingDetails.ActiveLiveChatID, nil
}

func (p *Poller) listMessages(ctx context.Context, chatID, pageToken string) (*chatPage, error) {
	q := url.Values{}
	q.Set("liveChatId", chatID)
	q.Set("part", "snippet,authorDetails")
	q.Set("maxResults", "200")
	q.Set("key", p.apiKey)
	if pageToken != "" {
		q.Set("pageToken", pageToken)
	}

	var page chatPage
	if err := p.getJSON(ctx, p.apiBase+"/liveChat/messages?"+q.Encode(), &page); err != nil {
		return nil, fmt.Errorf("liveChatMessages.list: %w", err)
	}
	return &page, nil
}

func (p *Poller) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(excerpt))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
