// ABOUTME: Activity producer reading recent channel history from the Slack Web API
// ABOUTME: Resolves user names through a cached users.info lookup and sanitizes message text

package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/2389/coven-board/internal/redact"
)

const (
	defaultSlackAPI     = "https://slack.com/api"
	slackHistoryLimit   = 10
	slackMessageMaxRune = 200
	slackRequestTimeout = 5 * time.Second
)

// SlackConfig configures the Slack producer.
type SlackConfig struct {
	Token    string
	Channels []string
	// ChannelAgents maps a channel ID to the agent that relays through it.
	ChannelAgents map[string]string
	// RelayName is the display name of the bot that posts on behalf of agents.
	RelayName string
	// BaseURL overrides the Web API root; used by tests.
	BaseURL string
	// RequestsPerSecond bounds calls to the Web API. Zero means 1.
	RequestsPerSecond float64
}

// SlackSource reports recent messages from the configured channels.
type SlackSource struct {
	cfg     SlackConfig
	client  *http.Client
	limiter *rate.Limiter
	names   []string

	mu    sync.Mutex
	users map[string]string // user ID -> display name
}

// NewSlackSource creates a Slack producer. A nil client uses a client with a 5s timeout.
func NewSlackSource(cfg SlackConfig, client *http.Client) *SlackSource {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultSlackAPI
	}
	if cfg.RelayName == "" {
		cfg.RelayName = "CC-Bridge"
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 1
	}
	if client == nil {
		client = &http.Client{Timeout: slackRequestTimeout}
	}

	seen := make(map[string]bool)
	var names []string
	for _, name := range cfg.ChannelAgents {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)

	return &SlackSource{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		names:   names,
		users:   make(map[string]string),
	}
}

// Name implements Source.
func (s *SlackSource) Name() string { return "slack" }

type slackMessage struct {
	TS         string `json:"ts"`
	User       string `json:"user"`
	Text       string `json:"text"`
	BotProfile *struct {
		Name string `json:"name"`
	} `json:"bot_profile"`
}

type slackHistoryResponse struct {
	OK       bool           `json:"ok"`
	Error    string         `json:"error"`
	Messages []slackMessage `json:"messages"`
}

type slackUserResponse struct {
	OK   bool `json:"ok"`
	User struct {
		RealName string `json:"real_name"`
		Profile  struct {
			DisplayName string `json:"display_name"`
		} `json:"profile"`
	} `json:"user"`
}

// Poll implements Source. A channel that fails is skipped; the error for the
// last failing channel is returned only when no channel succeeded.
func (s *SlackSource) Poll(ctx context.Context) ([]Event, error) {
	var (
		events  []Event
		lastErr error
		okCount int
	)
	for _, channel := range s.cfg.Channels {
		msgs, err := s.history(ctx, channel)
		if err != nil {
			lastErr = err
			continue
		}
		okCount++
		for _, m := range msgs {
			events = append(events, s.toEvent(ctx, channel, m))
		}
	}
	if okCount == 0 && lastErr != nil {
		return nil, lastErr
	}
	return events, nil
}

func (s *SlackSource) toEvent(ctx context.Context, channel string, m slackMessage) Event {
	display := "unknown"
	if m.User != "" {
		fallback := ""
		if m.BotProfile != nil {
			fallback = m.BotProfile.Name
		}
		display = s.resolveUser(ctx, m.User, fallback)
	} else if m.BotProfile != nil && m.BotProfile.Name != "" {
		display = m.BotProfile.Name
	}

	return Event{
		Type:      TypeSlack,
		Agent:     s.inferAgent(display, channel, m.Text),
		Message:   truncateRunes(redact.String(m.Text), slackMessageMaxRune),
		Timestamp: parseSlackTS(m.TS),
		Key:       "slack:" + channel + ":" + m.TS,
	}
}

// inferAgent attributes relay-bot messages to the agent they were relayed for.
// Messages from anyone else keep their display name.
func (s *SlackSource) inferAgent(display, channel, text string) string {
	if display != s.cfg.RelayName {
		return display
	}
	for _, name := range s.names {
		if strings.Contains(text, name+" (via ") {
			return name
		}
	}
	if name, ok := s.cfg.ChannelAgents[channel]; ok {
		return name
	}
	for _, name := range s.names {
		if strings.Contains(text, name) {
			return name
		}
	}
	return display
}

func (s *SlackSource) history(ctx context.Context, channel string) ([]slackMessage, error) {
	q := url.Values{}
	q.Set("channel", channel)
	q.Set("limit", strconv.Itoa(slackHistoryLimit))

	var resp slackHistoryResponse
	if err := s.get(ctx, "conversations.history", q, &resp); err != nil {
		return nil, fmt.Errorf("history for %s: %w", channel, err)
	}
	if !resp.OK {
		return nil, fmt.Errorf("history for %s: slack error %q", channel, resp.Error)
	}
	return resp.Messages, nil
}

// resolveUser maps a user ID to a display name. Failed lookups cache the
// fallback so a missing user is only queried once.
func (s *SlackSource) resolveUser(ctx context.Context, userID, fallback string) string {
	s.mu.Lock()
	name, ok := s.users[userID]
	s.mu.Unlock()
	if ok {
		return name
	}

	name = fallback
	if name == "" {
		name = userID
	}
	q := url.Values{}
	q.Set("user", userID)
	var resp slackUserResponse
	if err := s.get(ctx, "users.info", q, &resp); err == nil && resp.OK {
		switch {
		case resp.User.Profile.DisplayName != "":
			name = resp.User.Profile.DisplayName
		case resp.User.RealName != "":
			name = resp.User.RealName
		default:
			name = userID
		}
	}

	s.mu.Lock()
	s.users[userID] = name
	s.mu.Unlock()
	return name
}

func (s *SlackSource) get(ctx context.Context, method string, q url.Values, out any) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.BaseURL+"/"+method+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.Token)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %d", method, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decoding response: %w", method, err)
	}
	return nil
}

// parseSlackTS converts a Slack "seconds.micros" timestamp. Unparseable values yield the zero time.
func parseSlackTS(ts string) time.Time {
	f, err := strconv.ParseFloat(ts, 64)
	if err != nil || f <= 0 {
		return time.Time{}
	}
	sec := int64(f)
	nsec := int64((f - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
