// Package resolver implements the tracker-CNAME lookup gateway. It asks the
// configured DNS servers for a request host's canonical name and tests it
// against the known tracker-infrastructure suffix. Resolution failure is
// never a block: the tracker check fails open.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/miekg/dns"

	"github.com/probegate/probegate/internal/guard/common/log"
	"github.com/probegate/probegate/internal/guard/common/utils"
	"github.com/probegate/probegate/internal/guard/domain"
)

// Error message constants for consistent error handling
const (
	errNoServersProvided = "no DNS servers provided"
	errServerFailed      = "server %s: %w"
	errAllServersFailed  = "all %d DNS servers failed"
)

// Exchanger performs one DNS round trip. Injected for testing; the default
// implementation wraps miekg/dns.Client.
type Exchanger interface {
	Exchange(ctx context.Context, msg *dns.Msg, server string) (*dns.Msg, error)
}

// clientExchanger adapts dns.Client to the Exchanger seam.
type clientExchanger struct {
	client *dns.Client
}

func (c *clientExchanger) Exchange(ctx context.Context, msg *dns.Msg, server string) (*dns.Msg, error) {
	r, _, err := c.client.ExchangeContext(ctx, msg, server)
	return r, err
}

// Tracker resolves canonical names and classifies tracker-cloaked hosts.
// A small LRU keeps the session's recent conclusions so repeated requests
// to the same host skip the network.
type Tracker struct {
	servers []string
	timeout time.Duration
	suffix  string
	ex      Exchanger
	cache   *lru.Cache[string, bool]
	logger  log.Logger
}

// Options defines configuration parameters for the tracker resolver.
type Options struct {
	// required parameters
	Servers       []string
	TrackerSuffix string
	// optional parameters
	Timeout   time.Duration
	CacheSize int
	Logger    log.Logger
	// Exchanger can be injected for testing purposes.
	Exchanger Exchanger
}

// New creates a tracker resolver with the specified options.
// Returns an error if the server list or tracker suffix is empty.
// Sets default timeout to 5 seconds and a default cache of 512 hosts.
func New(opts Options) (*Tracker, error) {
	if len(opts.Servers) == 0 {
		return nil, errors.New(errNoServersProvided)
	}
	if opts.TrackerSuffix == "" {
		return nil, errors.New("tracker suffix is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 512
	}
	if opts.Logger == nil {
		opts.Logger = log.GetLogger()
	}
	if opts.Exchanger == nil {
		opts.Exchanger = &clientExchanger{client: &dns.Client{Timeout: opts.Timeout}}
	}
	cache, err := lru.New[string, bool](opts.CacheSize)
	if err != nil {
		return nil, err
	}
	return &Tracker{
		servers: opts.Servers,
		timeout: opts.Timeout,
		suffix:  utils.CanonicalHostName(opts.TrackerSuffix),
		ex:      opts.Exchanger,
		cache:   cache,
		logger:  opts.Logger,
	}, nil
}

// ensureContextDeadline ensures the context has a deadline, adding the
// resolver's default timeout if needed.
func (t *Tracker) ensureContextDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); !ok {
		return context.WithTimeout(ctx, t.timeout)
	}
	return ctx, nil
}

// LookupCNAME returns the canonical name for hostname, or "" when the host
// has no CNAME record. Servers are tried in order until one responds.
func (t *Tracker) LookupCNAME(ctx context.Context, hostname string) (string, error) {
	ctx, cancel := t.ensureContextDeadline(ctx)
	if cancel != nil {
		defer cancel()
	}

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(hostname), dns.TypeCNAME)
	msg.RecursionDesired = true

	var lastErr error
	for _, server := range t.servers {
		reply, err := t.ex.Exchange(ctx, msg, server)
		if err != nil {
			lastErr = fmt.Errorf(errServerFailed, server, err)
			continue
		}
		for _, rr := range reply.Answer {
			if cname, ok := rr.(*dns.CNAME); ok {
				return cname.Target, nil
			}
		}
		return "", nil // answered, no CNAME
	}
	return "", fmt.Errorf("%w: "+errAllServersFailed+": %v", domain.ErrResolver, len(t.servers), lastErr)
}

// IsTracker reports whether hostname's canonical name lands on the tracker
// suffix. Lookup failure and missing CNAMEs both answer false; only
// definite conclusions are cached.
func (t *Tracker) IsTracker(ctx context.Context, hostname string) bool {
	cn := utils.CanonicalHostName(hostname)
	if cn == "" {
		return false
	}
	if hit, ok := t.cache.Get(cn); ok {
		return hit
	}

	target, err := t.LookupCNAME(ctx, cn)
	if err != nil {
		t.logger.Debug(map[string]any{"host": cn, "error": err}, "CNAME lookup failed; treating as non-tracker")
		return false
	}

	isTracker := false
	if target != "" {
		canonical := utils.CanonicalHostName(target)
		apex := utils.GetApexDomain(canonical)
		// Match on the registrable domain or a label boundary, so
		// "cdn.online-metrix.net" is a tracker and the lookalike
		// "evil-online-metrix.net" is not.
		isTracker = canonical == t.suffix || apex == t.suffix ||
			strings.HasSuffix(canonical, "."+t.suffix)
		if isTracker {
			t.logger.Info(map[string]any{
				"host":  cn,
				"cname": canonical,
				"apex":  apex,
			}, "Tracker-cloaked host identified")
		}
	}
	t.cache.Add(cn, isTracker)
	return isTracker
}

// CacheLen reports how many hosts have cached conclusions.
func (t *Tracker) CacheLen() int { return t.cache.Len() }
