// Package sub resolves a public subscription uuid to a live panel
// subscription URL by probing the stored candidates.
package sub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Saivel1/panelsync/internal/store"
)

var (
	// ErrNotFound means no link record exists for the uuid.
	ErrNotFound = errors.New("subscription not found")

	// ErrAllUnavailable means every candidate panel URL failed its probe.
	ErrAllUnavailable = errors.New("no panel available")
)

// Options controls probe behavior.
type Options struct {
	// ProbeTimeout bounds one probe GET. Default 3s.
	ProbeTimeout time.Duration

	// ProbeAttempts is the per-candidate attempt budget for transient
	// failures. Default 3.
	ProbeAttempts int

	// ProbeDelay is the base of the growing retry delay. Default 500ms.
	ProbeDelay time.Duration
}

// Resolver probes the candidate subscription URLs of a link record and
// picks the first live one. Candidate order is slot order, so when both
// panels answer, the choice is deterministic.
type Resolver struct {
	links  store.LinkStore
	opts   Options
	http   *http.Client
	logger *slog.Logger
}

// New creates a resolver.
func New(links store.LinkStore, opts Options, logger *slog.Logger) *Resolver {
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 3 * time.Second
	}
	if opts.ProbeAttempts <= 0 {
		opts.ProbeAttempts = 3
	}
	if opts.ProbeDelay <= 0 {
		opts.ProbeDelay = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		links:  links,
		opts:   opts,
		http:   &http.Client{Timeout: opts.ProbeTimeout},
		logger: logger,
	}
}

// Resolve returns the subscription URL of the first live panel holding the
// uuid's account.
func (r *Resolver) Resolve(ctx context.Context, uuid string) (string, error) {
	return r.resolve(ctx, uuid, "")
}

// ResolveInfo is Resolve for the subscription info endpoint, which lives
// under an /info suffix on the panels.
func (r *Resolver) ResolveInfo(ctx context.Context, uuid string) (string, error) {
	return r.resolve(ctx, uuid, "/info")
}

func (r *Resolver) resolve(ctx context.Context, uuid, suffix string) (string, error) {
	rec, err := r.links.GetLinkByUUID(ctx, uuid)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}

	var candidates []string
	for _, u := range []string{rec.Panel1URL, rec.Panel2URL} {
		if u != "" {
			candidates = append(candidates, u)
		}
	}
	if len(candidates) == 0 {
		return "", ErrNotFound
	}

	// Probe everything at once and wait for all results. Picking the first
	// candidate that answered early would make the outcome depend on panel
	// latency; waiting keeps it a pure function of availability and order.
	// Probes always target the base link; the suffix is applied to the
	// winner only, so a broken info endpoint cannot fail over a live panel.
	alive := make([]bool, len(candidates))
	var wg sync.WaitGroup
	for i, candidate := range candidates {
		wg.Add(1)
		go func(i int, candidate string) {
			defer wg.Done()
			alive[i] = r.probe(ctx, candidate)
		}(i, candidate)
	}
	wg.Wait()

	for i, candidate := range candidates {
		if alive[i] {
			return candidate + suffix, nil
		}
	}
	return "", ErrAllUnavailable
}

// probe reports whether a candidate URL answers with a success status.
// Transport errors and 5xx answers are retried on a growing delay; any
// other status means the panel is up but the account is not served there,
// which no retry will fix.
func (r *Resolver) probe(ctx context.Context, target string) bool {
	for attempt := 0; attempt < r.opts.ProbeAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return false
			case <-time.After(r.retryDelay(attempt)):
			}
		}

		status, err := r.probeOnce(ctx, target)
		if err != nil {
			r.logger.Debug("probe transport error", "url", target, "attempt", attempt+1, "error", err)
			continue
		}
		switch {
		case status == http.StatusOK || status == http.StatusCreated:
			return true
		case status >= 500:
			r.logger.Debug("probe server error", "url", target, "status", status, "attempt", attempt+1)
			continue
		default:
			return false
		}
	}
	return false
}

// retryDelay is the wait before retry number n (1-based): n * base, so the
// first retry waits base and the second 2*base.
func (r *Resolver) retryDelay(n int) time.Duration {
	return time.Duration(n) * r.opts.ProbeDelay
}

func (r *Resolver) probeOnce(ctx context.Context, target string) (int, error) {
	probeCtx, cancel := context.WithTimeout(ctx, r.opts.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, target, nil)
	if err != nil {
		return 0, fmt.Errorf("build probe request: %w", err)
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}
