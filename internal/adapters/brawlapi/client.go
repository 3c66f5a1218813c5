// Package brawlapi fetches club rosters, player statistics and the global
// leaderboard from the upstream game API.
package brawlapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/okian/clubwatch/internal/domain/model"
	"github.com/okian/clubwatch/pkg/logger"
	"github.com/okian/clubwatch/pkg/metrics"
	"golang.org/x/time/rate"
)

// Client defaults.
const (
	DefaultBaseURL = "https://api.brawlstars.com/v1/"
	DefaultTimeout = 10 * time.Second
	DefaultRPS     = 10
	DefaultBurst   = 5

	rankedBattleType = "soloRanked"
	maxErrorBody     = 512
)

var (
	// ErrMissingField reports a response without a required field.
	ErrMissingField = errors.New("missing required field")
	// ErrEmptyRanking reports a global ranking without entries.
	ErrEmptyRanking = errors.New("empty global ranking")
	// ErrEmptyRoster reports a club member list without entries.
	ErrEmptyRoster = model.ErrEmptyRoster
)

// Client is a rate-limited upstream API client.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     logger.Logger
}

// NewClient creates a new Client with configuration options.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(DefaultRPS), DefaultBurst),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Get().Named("brawlapi")
	}
	return c
}

// FetchRoster returns the current members of the club.
func (c *Client) FetchRoster(ctx context.Context, clubTag string) (model.RosterSnapshot, error) {
	tag := model.NormalizeTag(clubTag)
	target := "clubs/" + escapeTag(tag) + "/members"

	var resp clubMembersResponse
	if err := c.get(ctx, "club_members", target, &resp); err != nil {
		return model.RosterSnapshot{}, err
	}

	if resp.Items == nil {
		return model.RosterSnapshot{}, &model.FetchError{
			Target: target,
			Err:    fmt.Errorf("club members: %w (items)", ErrMissingField),
		}
	}
	items := *resp.Items
	if len(items) == 0 {
		return model.RosterSnapshot{}, &model.FetchError{Target: target, Err: ErrEmptyRoster}
	}

	snap := model.RosterSnapshot{Members: make([]model.MemberRef, 0, len(items))}
	for i, m := range items {
		if m.Tag == "" || m.Name == "" {
			return model.RosterSnapshot{}, &model.FetchError{
				Target: target,
				Err:    fmt.Errorf("member %d: %w (tag, name)", i, ErrMissingField),
			}
		}
		snap.Members = append(snap.Members, model.MemberRef{
			ID:          model.NormalizeTag(m.Tag),
			DisplayName: m.Name,
			Role:        m.Role,
		})
	}
	return snap, nil
}

// FetchMemberStats returns the per-brawler trophies of one member plus its
// current ranked value when the battlelog contains a ranked battle.
func (c *Client) FetchMemberStats(ctx context.Context, id string) (model.MemberStatSnapshot, error) {
	tag := model.NormalizeTag(id)
	target := "players/" + escapeTag(tag)

	var p playerResponse
	if err := c.get(ctx, "players", target, &p); err != nil {
		return model.MemberStatSnapshot{}, err
	}
	if p.Tag == "" || p.Name == "" {
		return model.MemberStatSnapshot{}, &model.FetchError{
			Target: target,
			Err:    fmt.Errorf("player: %w (tag, name)", ErrMissingField),
		}
	}

	snap := model.MemberStatSnapshot{
		ID:          tag,
		DisplayName: p.Name,
		IconID:      p.Icon.ID,
		Dimensions:  make(map[string]int, len(p.Brawlers)),
	}
	for _, b := range p.Brawlers {
		if b.Name == "" {
			continue
		}
		snap.Dimensions[b.Name] = b.Trophies
	}

	value, ok, err := c.fetchRanked(ctx, tag)
	if err != nil {
		// Ranked is optional; the trophy snapshot is still usable.
		c.logger.Debug(ctx, "battlelog unavailable",
			logger.String("member", tag),
			logger.Error(err),
		)
		return snap, nil
	}
	snap.Ranked, snap.HasRanked = value, ok
	return snap, nil
}

// fetchRanked scans the battlelog for the newest solo ranked battle and
// returns the member's own brawler trophies in it.
func (c *Client) fetchRanked(ctx context.Context, tag string) (int, bool, error) {
	var log battlelogResponse
	if err := c.get(ctx, "battlelog", "players/"+escapeTag(tag)+"/battlelog", &log); err != nil {
		return 0, false, err
	}
	for _, entry := range log.Items {
		if entry.Battle == nil || entry.Battle.Type != rankedBattleType {
			continue
		}
		for _, team := range entry.Battle.Teams {
			for _, pl := range team {
				if model.NormalizeTag(pl.Tag) == tag {
					return pl.Brawler.Trophies, true, nil
				}
			}
		}
	}
	return 0, false, nil
}

// FetchGlobalLeaderValue returns the trophy count of the top player in the
// global ranking.
func (c *Client) FetchGlobalLeaderValue(ctx context.Context) (int, error) {
	const target = "rankings/global/players"

	var r rankingsResponse
	if err := c.get(ctx, "rankings", target, &r); err != nil {
		return 0, err
	}
	if len(r.Items) == 0 {
		return 0, &model.FetchError{Target: target, Err: ErrEmptyRanking}
	}
	top := r.Items[0]
	if top.Trophies > 0 {
		return top.Trophies, nil
	}
	if top.Tag == "" {
		return 0, &model.FetchError{Target: target, Err: fmt.Errorf("leader: %w (tag)", ErrMissingField)}
	}

	var p playerResponse
	if err := c.get(ctx, "players", "players/"+escapeTag(model.NormalizeTag(top.Tag)), &p); err != nil {
		return 0, err
	}
	return p.Trophies, nil
}

// get performs a throttled GET of path relative to the base URL and decodes
// the JSON body into out. Every failure is returned as *model.FetchError.
func (c *Client) get(ctx context.Context, endpoint, path string, out interface{}) error {
	if err := c.wait(ctx); err != nil {
		return &model.FetchError{Target: path, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(c.baseURL, "/")+"/"+path, nil)
	if err != nil {
		return &model.FetchError{Target: path, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordUpstreamRequest(endpoint, "error", msSince(start))
		return &model.FetchError{Target: path, Err: err}
	}
	defer resp.Body.Close()
	metrics.RecordUpstreamRequest(endpoint, strconv.Itoa(resp.StatusCode), msSince(start))

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &model.FetchError{
			Target: path,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("upstream: %s", strings.TrimSpace(string(body))),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &model.FetchError{Target: path, Status: resp.StatusCode, Err: fmt.Errorf("decode: %w", err)}
	}
	return nil
}

// wait blocks until the limiter grants one request or ctx is done.
func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	r := c.limiter.Reserve()
	if !r.OK() {
		return errors.New("rate: cannot reserve token")
	}
	delay := r.Delay()
	if delay == 0 {
		return nil
	}
	metrics.RecordRateLimitWait()
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	}
}

// escapeTag percent-encodes a tag for use as a path segment ("#" -> "%23").
func escapeTag(tag string) string {
	return url.PathEscape(tag)
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}
