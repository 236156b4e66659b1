package security

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/clawsync/clawsync/internal/config"
	clawErrors "github.com/clawsync/clawsync/internal/errors"
	"github.com/clawsync/clawsync/internal/skill"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (f *fakeLimiter) CheckAndIncrement(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	f.keys = append(f.keys, key)
	return f.allow, f.err
}

type failingLookup struct{ err error }

func (f failingLookup) GetSkillByName(ctx context.Context, name string) (*skill.Skill, error) {
	return nil, f.err
}

func webhookSkill(url string, extra string) skill.Skill {
	cfg := `{"url":"` + url + `"` + extra + `}`
	return skill.Skill{
		Name:     "Get Weather!",
		Type:     skill.TypeWebhook,
		Config:   json.RawMessage(cfg),
		Status:   skill.StatusActive,
		Approved: true,
	}
}

func newChecker(t *testing.T, cfg config.SecurityConfig, lookup skill.Lookup, lim *fakeLimiter) *Checker {
	t.Helper()
	c, err := NewChecker(cfg, lookup, lim)
	require.NoError(t, err)
	return c
}

func TestCheck_PassesWithEmptyAllowlist(t *testing.T) {
	lim := &fakeLimiter{allow: true}
	c := newChecker(t, config.SecurityConfig{SkillRateLimitPerMinute: 10}, nil, lim)

	res := c.Check(context.Background(), webhookSkill("http://good.example/hook", ""), json.RawMessage(`{"input":"x"}`))
	assert.True(t, res.Allowed)
	assert.Equal(t, CodePassed, res.Code)
	assert.Equal(t, []string{"skill:Get Weather!"}, lim.keys)
}

func TestCheck_DomainAllowlists(t *testing.T) {
	tests := []struct {
		name      string
		agentWide []string
		skillList string
		url       string
		allowed   bool
	}{
		{"agent allowlist match", []string{"good.example"}, "", "http://good.example/hook", true},
		{"agent allowlist subdomain", []string{"*.good.example"}, "", "https://api.good.example/x", true},
		{"agent allowlist miss", []string{"good.example"}, "", "http://evil.example/hook", false},
		{"skill allowlist miss", nil, `,"allowedDomains":["other.example"]`, "http://good.example/hook", false},
		{"both must pass", []string{"good.example"}, `,"allowedDomains":["good.example"]`, "http://good.example/hook", true},
		{"skill ok agent denies", []string{"corp.example"}, `,"allowedDomains":["good.example"]`, "http://good.example/hook", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newChecker(t, config.SecurityConfig{DomainAllowlist: tt.agentWide}, nil, &fakeLimiter{allow: true})
			res := c.Check(context.Background(), webhookSkill(tt.url, tt.skillList), nil)
			assert.Equal(t, tt.allowed, res.Allowed, res.Reason)
			if !tt.allowed {
				assert.Equal(t, CodeBlocked, res.Code)
				assert.Contains(t, res.Reason, "allowlist")
			}
		})
	}
}

func TestCheck_MalformedConfigDenies(t *testing.T) {
	lim := &fakeLimiter{allow: true}
	c := newChecker(t, config.SecurityConfig{}, nil, lim)

	s := webhookSkill("x", "")
	s.Config = json.RawMessage(`{"url": "http://good.example"`)

	res := c.Check(context.Background(), s, nil)
	assert.False(t, res.Allowed)
	assert.Contains(t, res.Reason, "invalid skill configuration")
	assert.Empty(t, lim.keys, "rate limit is not consumed for denied config")
}

func TestCheck_StatusRecheck(t *testing.T) {
	reg := skill.NewMemoryRegistry()
	s := webhookSkill("http://good.example/hook", "")
	disabled := s
	disabled.Status = skill.StatusDisabled
	reg.PutSkill(disabled)

	c := newChecker(t, config.SecurityConfig{}, reg, &fakeLimiter{allow: true})
	res := c.Check(context.Background(), s, nil)
	assert.False(t, res.Allowed)
	assert.Contains(t, res.Reason, "not active")

	unapproved := s
	unapproved.Approved = false
	reg.PutSkill(unapproved)
	res = c.Check(context.Background(), s, nil)
	assert.Contains(t, res.Reason, "not approved")

	res = c.Check(context.Background(), skill.Skill{Name: "ghost", Type: skill.TypeCode, Status: skill.StatusActive, Approved: true}, nil)
	assert.False(t, res.Allowed)
	assert.Contains(t, res.Reason, "no longer registered")
}

func TestCheck_LookupFailureDenies(t *testing.T) {
	c := newChecker(t, config.SecurityConfig{}, failingLookup{err: errors.New("db locked")}, &fakeLimiter{allow: true})
	res := c.Check(context.Background(), webhookSkill("http://good.example", ""), nil)
	assert.False(t, res.Allowed)
	assert.Contains(t, res.Reason, "unable to verify")
}

func TestCheck_ContentRestrictions(t *testing.T) {
	c := newChecker(t, config.SecurityConfig{
		BlockedPatterns: []string{`(?i)drop\s+table`},
		MaxInputBytes:   32,
	}, nil, &fakeLimiter{allow: true})

	s := skill.Skill{Name: "echo", Type: skill.TypeCode, Status: skill.StatusActive, Approved: true}

	res := c.Check(context.Background(), s, json.RawMessage(`{"query":"DROP TABLE users"}`))
	assert.False(t, res.Allowed)
	assert.Equal(t, "Input contains restricted content", res.Reason)

	res = c.Check(context.Background(), s, json.RawMessage(`{"query":"this input is definitely longer than thirty two bytes"}`))
	assert.False(t, res.Allowed)
	assert.Contains(t, res.Reason, "exceeds")

	res = c.Check(context.Background(), s, json.RawMessage(`{"query":"hi"}`))
	assert.True(t, res.Allowed)
}

func TestCheck_RateLimit(t *testing.T) {
	s := skill.Skill{Name: "echo", Type: skill.TypeCode, Status: skill.StatusActive, Approved: true}

	c := newChecker(t, config.SecurityConfig{}, nil, &fakeLimiter{allow: false})
	res := c.Check(context.Background(), s, nil)
	assert.False(t, res.Allowed)
	assert.Contains(t, res.Reason, "Rate limit exceeded")

	c = newChecker(t, config.SecurityConfig{}, nil, &fakeLimiter{err: context.DeadlineExceeded})
	res = c.Check(context.Background(), s, nil)
	assert.False(t, res.Allowed)
	assert.Contains(t, res.Reason, "rate limit unavailable")
}

func TestCheckMCP(t *testing.T) {
	lim := &fakeLimiter{allow: true}
	c := newChecker(t, config.SecurityConfig{BlockedPatterns: []string{"secret"}}, nil, lim)
	srv := skill.MCPServer{Name: "search", URL: "http://mcp.example", Enabled: true, Approved: true}

	assert.True(t, c.CheckMCP(context.Background(), srv, "search", json.RawMessage(`{"q":"go"}`)).Allowed)
	assert.Equal(t, []string{"mcp:search"}, lim.keys)

	assert.False(t, c.CheckMCP(context.Background(), srv, "search", json.RawMessage(`{"q":"secret"}`)).Allowed)

	off := srv
	off.Enabled = false
	assert.False(t, c.CheckMCP(context.Background(), off, "search", nil).Allowed)

	noURL := srv
	noURL.URL = ""
	assert.False(t, c.CheckMCP(context.Background(), noURL, "search", nil).Allowed)
}

func TestNewChecker_InvalidPattern(t *testing.T) {
	_, err := NewChecker(config.SecurityConfig{BlockedPatterns: []string{"("}}, nil, nil)
	assert.ErrorIs(t, err, clawErrors.ErrConfiguration)
}

func TestResultErr(t *testing.T) {
	assert.NoError(t, Pass().Err())
	assert.ErrorIs(t, Block("nope").Err(), clawErrors.ErrDenied)
}

func TestDomainAllowed(t *testing.T) {
	list := NormalizeDomains([]string{" Good.Example ", "https://api.other.example/path", "*.wild.example", ""})
	assert.Equal(t, []string{"good.example", "api.other.example", "wild.example"}, list)

	assert.True(t, DomainAllowed(list, "good.example"))
	assert.True(t, DomainAllowed(list, "a.b.good.example"))
	assert.True(t, DomainAllowed(list, "x.wild.example"))
	assert.False(t, DomainAllowed(list, "notgood.example"))
	assert.False(t, DomainAllowed(list, "other.example"))
	assert.True(t, DomainAllowed(nil, "anything.example"))
}

func TestCheckMCP_ReReadsServerState(t *testing.T) {
	reg := skill.NewMemoryRegistry()
	snapshot := skill.MCPServer{ID: "s1", Name: "search", URL: "http://mcp.example", Enabled: true, Approved: true}
	reg.PutServer(snapshot)
	lim := &fakeLimiter{allow: true}
	c := newChecker(t, config.SecurityConfig{}, reg, lim)

	assert.True(t, c.CheckMCP(context.Background(), snapshot, "search", nil).Allowed)

	disabled := snapshot
	disabled.Enabled = false
	reg.PutServer(disabled)

	res := c.CheckMCP(context.Background(), snapshot, "search", nil)
	assert.False(t, res.Allowed)
	assert.Equal(t, "MCP server search is not enabled and approved", res.Reason)

	res = c.CheckMCP(context.Background(), skill.MCPServer{Name: "gone", URL: "http://gone.example", Enabled: true, Approved: true}, "x", nil)
	assert.False(t, res.Allowed)
	assert.Equal(t, "MCP server gone is no longer registered", res.Reason)
	assert.Equal(t, []string{"mcp:search"}, lim.keys)
}
