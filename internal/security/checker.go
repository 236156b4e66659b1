// Package security implements the gate every tool invocation passes before it
// executes.
package security

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/clawsync/clawsync/internal/config"
	clawErrors "github.com/clawsync/clawsync/internal/errors"
	"github.com/clawsync/clawsync/internal/ratelimit"
	"github.com/clawsync/clawsync/internal/skill"
)

const (
	CodePassed  = "passed"
	CodeBlocked = "blocked"
)

// Result is the outcome of one gate evaluation.
type Result struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Code    string `json:"code"`
}

func Pass() Result {
	return Result{Allowed: true, Code: CodePassed}
}

func Block(reason string) Result {
	return Result{Allowed: false, Reason: reason, Code: CodeBlocked}
}

// Err converts a denial into an ErrDenied error, nil when allowed.
func (r Result) Err() error {
	if r.Allowed {
		return nil
	}
	return clawErrors.Denied(r.Reason)
}

// Gate is what the tool pipeline depends on.
type Gate interface {
	Check(ctx context.Context, s skill.Skill, input json.RawMessage) Result
	CheckMCP(ctx context.Context, srv skill.MCPServer, toolName string, input json.RawMessage) Result
}

// Checker evaluates, in order: skill status re-check, config validity,
// domain allowlists, content restrictions and the rate limit. The first
// failing check decides the result.
type Checker struct {
	lookup        skill.Lookup
	servers       skill.ServerLookup
	limiter       ratelimit.Limiter
	allowlist     []string
	blocked       []*regexp.Regexp
	maxInputBytes int
	skillLimit    int
	window        time.Duration
}

// NewChecker builds a Checker. lookup may be nil, in which case the skill
// passed to Check is trusted as current. When lookup also implements
// skill.ServerLookup, CheckMCP re-reads servers the same way.
func NewChecker(cfg config.SecurityConfig, lookup skill.Lookup, limiter ratelimit.Limiter) (*Checker, error) {
	blocked := make([]*regexp.Regexp, 0, len(cfg.BlockedPatterns))
	for _, p := range cfg.BlockedPatterns {
		if strings.TrimSpace(p) == "" {
			continue
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, clawErrors.WrapWithCategory(err, fmt.Sprintf("blocked pattern %q", p), clawErrors.ErrConfiguration)
		}
		blocked = append(blocked, re)
	}

	if limiter == nil {
		limiter = ratelimit.NewTokenBuckets()
	}

	servers, _ := lookup.(skill.ServerLookup)

	return &Checker{
		lookup:        lookup,
		servers:       servers,
		limiter:       limiter,
		allowlist:     NormalizeDomains(cfg.DomainAllowlist),
		blocked:       blocked,
		maxInputBytes: cfg.MaxInputBytes,
		skillLimit:    cfg.SkillRateLimitPerMinute,
		window:        time.Minute,
	}, nil
}

// Allowlist returns the agent-wide domain allowlist. Empty means unrestricted.
func (c *Checker) Allowlist() []string {
	return append([]string(nil), c.allowlist...)
}

func (c *Checker) Check(ctx context.Context, s skill.Skill, input json.RawMessage) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Security check panicked", "skill", s.Name, "panic", r)
			res = Block("security check failed")
		}
	}()

	current, res, ok := c.current(ctx, s)
	if !ok {
		return res
	}

	cfg, err := skill.DecodeConfig(current)
	if err != nil {
		return Block(fmt.Sprintf("invalid skill configuration: %v", err))
	}

	if wh, ok := cfg.(skill.WebhookConfig); ok {
		host, err := wh.Host()
		if err != nil {
			return Block(fmt.Sprintf("invalid skill configuration: %v", err))
		}
		if !DomainAllowed(NormalizeDomains(wh.AllowedDomains), host) {
			return Block(fmt.Sprintf("Domain %s is not in the skill allowlist", host))
		}
		if !DomainAllowed(c.allowlist, host) {
			return Block(fmt.Sprintf("Domain %s is not in the allowlist", host))
		}
	}

	if r, blocked := c.checkContent(input); blocked {
		return r
	}

	allowed, err := c.limiter.CheckAndIncrement(ctx, "skill:"+current.Name, c.skillLimit, c.window)
	if err != nil {
		return Block(fmt.Sprintf("rate limit unavailable: %v", err))
	}
	if !allowed {
		return Block(fmt.Sprintf("Rate limit exceeded for skill %s", current.Name))
	}

	return Pass()
}

func (c *Checker) CheckMCP(ctx context.Context, srv skill.MCPServer, toolName string, input json.RawMessage) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("MCP security check panicked", "server", srv.Name, "tool", toolName, "panic", r)
			res = Block("security check failed")
		}
	}()

	if c.servers != nil {
		fresh, err := c.servers.GetServerByName(ctx, srv.Name)
		switch {
		case clawErrors.IsCategory(err, clawErrors.ErrNotFound):
			return Block(fmt.Sprintf("MCP server %s is no longer registered", srv.Name))
		case err != nil:
			return Block(fmt.Sprintf("unable to verify MCP server %s: %v", srv.Name, err))
		case fresh != nil:
			srv = *fresh
		}
	}

	if !srv.Enabled || !srv.Approved {
		return Block(fmt.Sprintf("MCP server %s is not enabled and approved", srv.Name))
	}
	if strings.TrimSpace(srv.URL) == "" {
		return Block(fmt.Sprintf("MCP server %s has no url", srv.Name))
	}

	if r, blocked := c.checkContent(input); blocked {
		return r
	}

	limit := srv.RateLimitPerMinute
	if limit == 0 {
		limit = config.DefaultMCPRateLimitPerMinute
	}
	allowed, err := c.limiter.CheckAndIncrement(ctx, "mcp:"+srv.Name, limit, c.window)
	if err != nil {
		return Block(fmt.Sprintf("rate limit unavailable: %v", err))
	}
	if !allowed {
		return Block(fmt.Sprintf("Rate limit exceeded for MCP server %s", srv.Name))
	}

	return Pass()
}

// current re-reads the skill so status changes since assembly are honored.
func (c *Checker) current(ctx context.Context, s skill.Skill) (skill.Skill, Result, bool) {
	if c.lookup != nil {
		fresh, err := c.lookup.GetSkillByName(ctx, s.Name)
		switch {
		case clawErrors.IsCategory(err, clawErrors.ErrNotFound):
			return s, Block(fmt.Sprintf("Skill %s is no longer registered", s.Name)), false
		case err != nil:
			return s, Block(fmt.Sprintf("unable to verify skill %s: %v", s.Name, err)), false
		case fresh != nil:
			s = *fresh
		}
	}

	if s.Status != skill.StatusActive {
		return s, Block(fmt.Sprintf("Skill %s is not active", s.Name)), false
	}
	if !s.Approved {
		return s, Block(fmt.Sprintf("Skill %s is not approved", s.Name)), false
	}
	return s, Result{}, true
}

func (c *Checker) checkContent(input json.RawMessage) (Result, bool) {
	if c.maxInputBytes > 0 && len(input) > c.maxInputBytes {
		return Block(fmt.Sprintf("Input exceeds %d bytes", c.maxInputBytes)), true
	}
	for _, re := range c.blocked {
		if re.Match(input) {
			return Block("Input contains restricted content"), true
		}
	}
	return Result{}, false
}

// NormalizeDomains lower-cases entries and strips schemes, paths and "*." prefixes.
func NormalizeDomains(domains []string) []string {
	out := make([]string, 0, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if strings.Contains(d, "://") {
			if u, err := url.Parse(d); err == nil {
				d = u.Hostname()
			}
		}
		d = strings.TrimPrefix(d, "*.")
		d = strings.TrimPrefix(d, ".")
		if d != "" {
			out = append(out, d)
		}
	}
	return out
}

// DomainAllowed reports whether host equals or is a subdomain of an allowlist
// entry. An empty allowlist allows every host.
func DomainAllowed(allowlist []string, host string) bool {
	if len(allowlist) == 0 {
		return true
	}
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	for _, d := range allowlist {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
