package forward

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"relaybot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func mb(n int64) int64 { return n * domain.MiB }

func att(name string, size int64) domain.Attachment {
	return domain.Attachment{ID: name, Filename: name, ContentType: "image/png", Size: size}
}

func newRule(id, src, dst string) domain.ForwardingRule {
	return domain.ForwardingRule{
		ID:                   id,
		GuildID:              "g1",
		SourceChannelID:      src,
		DestinationChannelID: dst,
		Active:               true,
	}
}

// --- fakeStore ---

type fakeStore struct {
	rules      []domain.ForwardingRule
	settings   map[string]domain.GuildSettings
	rulesErr   error
	deactivate []string
	mu         sync.Mutex
}

func (s *fakeStore) RulesForSource(_ context.Context, channelID string) ([]domain.ForwardingRule, error) {
	if s.rulesErr != nil {
		return nil, s.rulesErr
	}
	var out []domain.ForwardingRule
	for _, r := range s.rules {
		if r.SourceChannelID == channelID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) GuildSettings(_ context.Context, guildID string) (domain.GuildSettings, error) {
	if st, ok := s.settings[guildID]; ok {
		return st, nil
	}
	return domain.GuildSettings{}, domain.ErrNotFound
}

func (s *fakeStore) DeactivateRule(_ context.Context, ruleID, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deactivate = append(s.deactivate, ruleID)
	return nil
}

// --- fakeSender ---

type sendCall struct {
	Destination string
	Attachments int
	Text        string
	Embeds      int
	Identity    *domain.Identity
}

type fakeSender struct {
	mu       sync.Mutex
	calls    []sendCall
	override bool
	maxBytes int64
	// script returns the error for the n-th call (0-based) to a destination.
	script func(destination string, n int, p domain.OutboundPayload) error
	delay  map[string]time.Duration
}

func (s *fakeSender) Send(ctx context.Context, p domain.OutboundPayload) error {
	s.mu.Lock()
	n := 0
	for _, c := range s.calls {
		if c.Destination == p.DestinationChannelID {
			n++
		}
	}
	s.calls = append(s.calls, sendCall{
		Destination: p.DestinationChannelID,
		Attachments: len(p.Attachments),
		Text:        p.Text,
		Embeds:      len(p.Embeds),
		Identity:    p.Identity,
	})
	d := s.delay[p.DestinationChannelID]
	s.mu.Unlock()

	if d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.script != nil {
		return s.script(p.DestinationChannelID, n, p)
	}
	return nil
}

func (s *fakeSender) SupportsIdentityOverride() bool { return s.override }
func (s *fakeSender) MaxRequestBytes() int64         { return s.maxBytes }

func (s *fakeSender) callsTo(destination string) []sendCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sendCall
	for _, c := range s.calls {
		if c.Destination == destination {
			out = append(out, c)
		}
	}
	return out
}

// --- fakeReach ---

type fakeReach struct {
	unreachable map[string]bool
	calls       int
	mu          sync.Mutex
}

func (r *fakeReach) Reachable(_ context.Context, channelID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return !r.unreachable[channelID]
}

// --- fakeCapacity ---

type fakeCapacity struct {
	tiers map[string]int
	err   error
}

func (c *fakeCapacity) CapacityProfile(_ context.Context, guildID string) (domain.GuildCapacityProfile, error) {
	if c.err != nil {
		return domain.GuildCapacityProfile{}, c.err
	}
	return domain.NewCapacityProfile(guildID, c.tiers[guildID], domain.DefaultCapacityLimits()), nil
}

// --- fakeQuota ---

type fakeQuota struct {
	mu   sync.Mutex
	used map[string]int
}

func (q *fakeQuota) Reserve(_ context.Context, guildID string, limit int) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.used == nil {
		q.used = make(map[string]int)
	}
	if q.used[guildID] >= limit {
		return false, nil
	}
	q.used[guildID]++
	return true, nil
}

func (q *fakeQuota) Release(_ context.Context, guildID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.used[guildID] > 0 {
		q.used[guildID]--
	}
	return nil
}

func (q *fakeQuota) usage(guildID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.used[guildID]
}
