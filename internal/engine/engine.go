// package engine answers lookup, reverse, favorites and personal requests by fanning them out to
// the sources of a profile, then merging, formatting, annotating and paginating the results.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/dird/internal/formatter"
	"github.com/desertthunder/dird/internal/metrics"
	"github.com/desertthunder/dird/internal/models"
	"github.com/desertthunder/dird/internal/shared"
	"github.com/desertthunder/dird/internal/sources"
	"golang.org/x/sync/errgroup"
)

const defaultSourceTimeout = 5 * time.Second

// Source operations, as labeled in metrics and logs.
const (
	opSearch     = "search"
	opFirstMatch = "first_match"
	opList       = "list"
	opAll        = "all"
)

// Registry serves the current generation of loaded sources.
type Registry interface {
	Current() *sources.Generation
}

// FavoriteStore reads the favorites of a user.
type FavoriteStore interface {
	List(ctx context.Context, owner string) ([]models.Favorite, error)
	Keys(ctx context.Context, owner string) (map[models.FavoriteKey]bool, error)
}

// Request identifies the caller and the profile of a request.
type Request struct {
	Profile    string
	TenantUUID string
	UserUUID   string
	Token      string
	External   map[string]string
	// Limit caps the number of results; nil returns everything from Offset.
	Limit  *int
	Offset int
}

func (r Request) args() sources.Args {
	return sources.Args{
		UserUUID:   r.UserUUID,
		TenantUUID: r.TenantUUID,
		Token:      r.Token,
		External:   r.External,
	}
}

// Engine runs directory requests against a [Registry].
//
// Source failures never fail a request: a source that errors, times out or has an open circuit
// contributes nothing and is logged and counted.
type Engine struct {
	registry       Registry
	favorites      FavoriteStore
	logger         *log.Logger
	metrics        *metrics.Metrics
	sourceTimeout  time.Duration
	maxConcurrency int
}

// New creates an engine. A nil logger logs to stderr; nil metrics are not recorded.
func New(registry Registry, favorites FavoriteStore, cfg shared.EngineConfig, logger *log.Logger, m *metrics.Metrics) *Engine {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	timeout := cfg.SourceTimeout
	if timeout <= 0 {
		timeout = defaultSourceTimeout
	}
	return &Engine{
		registry:       registry,
		favorites:      favorites,
		logger:         shared.WithLogger(logger, "component", "engine"),
		metrics:        m,
		sourceTimeout:  timeout,
		maxConcurrency: cfg.MaxConcurrency,
	}
}

// contribution is what one source returned for a request.
type contribution struct {
	source   string
	contacts []models.Contact
}

// Lookup searches term in the lookup sources of the profile.
func (e *Engine) Lookup(ctx context.Context, req Request, term string, progress chan<- ProgressUpdate) (*models.LookupResult, error) {
	g := e.registry.Current()
	profile, err := g.Profile(req.TenantUUID, req.Profile)
	if err != nil {
		return nil, err
	}
	display := e.display(g, profile)
	srcs := g.ForProfile(profile, models.ServiceLookup, req.TenantUUID)
	timeout := e.timeout(profile, models.ServiceLookup)
	args := req.args()

	sendProgress(progress, pendingUpdate(profile.Name, len(srcs)))
	contributions := e.fanOut(ctx, g, srcs, opSearch, timeout, progress, func(ctx context.Context, src sources.Source) ([]models.Contact, error) {
		return src.Search(ctx, term, args)
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	contacts := merge(contributions)
	sendProgress(progress, mergedUpdate(len(contacts)))

	keys := e.favoriteKeys(ctx, req.UserUUID)
	results := annotate(contacts, display, keys)
	sendProgress(progress, annotatedUpdate(len(keys)))

	result := paginate(display, results, req.Offset, req.Limit)
	sendProgress(progress, paginatedUpdate(len(result.Results), result.Total))
	sendProgress(progress, doneUpdate(result))
	return result, nil
}

// Reverse resolves exten with the reverse sources of the profile, in declared order.
// The first source with a match wins; nil means no source matched.
func (e *Engine) Reverse(ctx context.Context, req Request, exten string) (*models.ReverseResult, error) {
	g := e.registry.Current()
	profile, err := g.Profile(req.TenantUUID, req.Profile)
	if err != nil {
		return nil, err
	}
	return e.reverse(ctx, g, profile, req, exten)
}

// ReverseMany resolves each of extens like [Engine.Reverse] and returns the matches in extens order.
func (e *Engine) ReverseMany(ctx context.Context, req Request, extens []string) ([]models.ReverseResult, error) {
	g := e.registry.Current()
	profile, err := g.Profile(req.TenantUUID, req.Profile)
	if err != nil {
		return nil, err
	}

	var results []models.ReverseResult
	for _, exten := range extens {
		r, err := e.reverse(ctx, g, profile, req, exten)
		if err != nil {
			return nil, err
		}
		if r != nil {
			results = append(results, *r)
		}
	}
	return results, nil
}

func (e *Engine) reverse(ctx context.Context, g *sources.Generation, profile *models.Profile, req Request, exten string) (*models.ReverseResult, error) {
	display := e.display(g, profile)
	timeout := e.timeout(profile, models.ServiceReverse)
	args := req.args()

	for _, src := range g.ForProfile(profile, models.ServiceReverse, req.TenantUUID) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		contact, err := call(ctx, e, g, src, opFirstMatch, timeout, func(ctx context.Context) (*models.Contact, error) {
			return src.FirstMatch(ctx, exten, args)
		})
		if err != nil || contact == nil {
			continue
		}

		keys := e.favoriteKeys(ctx, req.UserUUID)
		formatted := formatter.FormatResult(*contact, display, keys[favoriteKey(*contact)])
		formatted.Fields = contact.Fields
		return &models.ReverseResult{
			FormattedResult: formatted,
			Display:         contact.Fields["reverse"],
			Exten:           exten,
		}, nil
	}
	return nil, ctx.Err()
}

// Favorites resolves the caller's favorites through the favorites sources of the profile.
// Favorites of a source that is missing or failing are left out.
func (e *Engine) Favorites(ctx context.Context, req Request, progress chan<- ProgressUpdate) (*models.LookupResult, error) {
	g := e.registry.Current()
	profile, err := g.Profile(req.TenantUUID, req.Profile)
	if err != nil {
		return nil, err
	}
	display := e.display(g, profile)

	var favorites []models.Favorite
	if req.UserUUID != "" && e.favorites != nil {
		favorites, err = e.favorites.List(ctx, req.UserUUID)
		if err != nil {
			return nil, fmt.Errorf("failed to list favorites: %w", err)
		}
	}

	ids := make(map[string][]string)
	for _, f := range favorites {
		ids[f.Source] = append(ids[f.Source], f.ContactID)
	}

	var srcs []sources.Source
	for _, src := range g.ForProfile(profile, models.ServiceFavorites, req.TenantUUID) {
		if len(ids[src.Name()]) > 0 {
			srcs = append(srcs, src)
		}
	}

	args := req.args()
	timeout := e.timeout(profile, models.ServiceFavorites)
	sendProgress(progress, pendingUpdate(profile.Name, len(srcs)))
	contributions := e.fanOut(ctx, g, srcs, opList, timeout, progress, func(ctx context.Context, src sources.Source) ([]models.Contact, error) {
		return src.List(ctx, ids[src.Name()], args)
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	contacts := merge(contributions)
	sendProgress(progress, mergedUpdate(len(contacts)))

	keys := make(map[models.FavoriteKey]bool, len(favorites))
	for _, f := range favorites {
		keys[f.Key()] = true
	}
	results := annotate(contacts, display, keys)
	sendProgress(progress, annotatedUpdate(len(results)))

	result := paginate(display, results, req.Offset, req.Limit)
	sendProgress(progress, doneUpdate(result))
	return result, nil
}

// Personal lists every personal contact of the caller with the display of the profile.
// Personal contacts come from the personal sources among the lookup sources of the profile.
func (e *Engine) Personal(ctx context.Context, req Request) (*models.LookupResult, error) {
	g := e.registry.Current()
	profile, err := g.Profile(req.TenantUUID, req.Profile)
	if err != nil {
		return nil, err
	}
	display := e.display(g, profile)
	timeout := e.timeout(profile, models.ServiceLookup)
	args := req.args()

	var contributions []contribution
	for _, src := range g.ForProfile(profile, models.ServiceLookup, req.TenantUUID) {
		lister, ok := src.(sources.Lister)
		if !ok || g.Backend(src.Name()) != sources.BackendPersonal {
			continue
		}
		contacts, err := call(ctx, e, g, src, opAll, timeout, func(ctx context.Context) ([]models.Contact, error) {
			return lister.All(ctx, args)
		})
		if err != nil {
			continue
		}
		contributions = append(contributions, contribution{source: src.Name(), contacts: contacts})
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	keys := e.favoriteKeys(ctx, req.UserUUID)
	results := annotate(merge(contributions), display, keys)
	return paginate(display, results, req.Offset, req.Limit), nil
}

// fanOut runs op on every source concurrently and returns the contributions in srcs order.
// Failed sources contribute nothing.
func (e *Engine) fanOut(
	ctx context.Context, g *sources.Generation, srcs []sources.Source, op string, timeout time.Duration,
	progress chan<- ProgressUpdate, fn func(ctx context.Context, src sources.Source) ([]models.Contact, error),
) []contribution {
	contributions := make([]contribution, len(srcs))
	total := len(srcs)

	var eg errgroup.Group
	if e.maxConcurrency > 0 {
		eg.SetLimit(e.maxConcurrency)
	}

	var finished atomic.Int32
	for i, src := range srcs {
		eg.Go(func() error {
			contacts, err := call(ctx, e, g, src, op, timeout, func(ctx context.Context) ([]models.Contact, error) {
				return fn(ctx, src)
			})
			step := int(finished.Add(1))
			sendProgress(progress, sourceDoneUpdate(step, total, src.Name(), len(contacts), err))
			if err == nil {
				contributions[i] = contribution{source: src.Name(), contacts: contacts}
			}
			return nil
		})
	}
	_ = eg.Wait()
	return contributions
}

// call runs fn against src with a deadline. fn runs in its own goroutine so that a backend
// ignoring its context cannot hold the request past the deadline; its late result is discarded.
func call[T any](
	ctx context.Context, e *Engine, g *sources.Generation, src sources.Source, op string, timeout time.Duration,
	fn func(ctx context.Context) (T, error),
) (T, error) {
	type outcome struct {
		value T
		err   error
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	name := src.Name()
	backend := g.Backend(name)
	start := time.Now()
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				ch <- outcome{err: fmt.Errorf("source panicked: %v", p)}
			}
		}()
		v, err := fn(ctx)
		ch <- outcome{value: v, err: err}
	}()

	var o outcome
	select {
	case o = <-ch:
	case <-ctx.Done():
		o.err = ctx.Err()
	}
	elapsed := time.Since(start)

	switch {
	case o.err == nil:
		e.metrics.ObserveSource(name, backend, op, metrics.OutcomeSuccess, elapsed)
	case errors.Is(o.err, context.DeadlineExceeded):
		e.logger.Warn("source timed out", "source", name, "backend", backend, "operation", op, "timeout", timeout)
		e.metrics.ObserveSource(name, backend, op, metrics.OutcomeTimeout, elapsed)
	case errors.Is(o.err, context.Canceled):
		e.logger.Debug("source call cancelled", "source", name, "operation", op)
		e.metrics.ObserveSource(name, backend, op, metrics.OutcomeError, elapsed)
	case sources.IsRejected(o.err):
		e.logger.Warn("source circuit open", "source", name, "backend", backend, "operation", op)
		e.metrics.ObserveSource(name, backend, op, metrics.OutcomeRejected, elapsed)
	default:
		e.logger.Error("source failed", "source", name, "backend", backend, "operation", op, "error", o.err)
		e.metrics.ObserveSource(name, backend, op, metrics.OutcomeError, elapsed)
	}
	return o.value, o.err
}

func (e *Engine) display(g *sources.Generation, profile *models.Profile) *models.Display {
	if profile.Display == "" {
		return nil
	}
	d, ok := g.Display(profile.Display)
	if !ok {
		e.logger.Warn("profile references an unknown display", "profile", profile.Name, "display", profile.Display)
		return nil
	}
	return d
}

func (e *Engine) timeout(profile *models.Profile, service string) time.Duration {
	if t := profile.Services[service].Timeout; t > 0 {
		return t
	}
	return e.sourceTimeout
}

// favoriteKeys returns the caller's favorites. A failing store only costs the annotation.
func (e *Engine) favoriteKeys(ctx context.Context, user string) map[models.FavoriteKey]bool {
	if user == "" || e.favorites == nil {
		return nil
	}
	keys, err := e.favorites.Keys(ctx, user)
	if err != nil {
		e.logger.Warn("failed to load favorites", "user", user, "error", err)
		return nil
	}
	return keys
}

func favoriteKey(c models.Contact) models.FavoriteKey {
	return models.FavoriteKey{Source: c.Source, ContactID: c.ID}
}

// merge flattens contributions in order. Contacts of one source sharing a unique id are merged
// into the first; contacts of different sources are never merged.
func merge(contributions []contribution) []models.Contact {
	var contacts []models.Contact
	for _, c := range contributions {
		seen := make(map[string]bool, len(c.contacts))
		for _, contact := range c.contacts {
			if contact.ID != "" {
				if seen[contact.ID] {
					continue
				}
				seen[contact.ID] = true
			}
			contacts = append(contacts, contact)
		}
	}
	return contacts
}

func annotate(contacts []models.Contact, display *models.Display, favorites map[models.FavoriteKey]bool) []models.FormattedResult {
	results := make([]models.FormattedResult, 0, len(contacts))
	for _, c := range contacts {
		favorite := c.ID != "" && favorites[favoriteKey(c)]
		results = append(results, formatter.FormatResult(c, display, favorite))
	}
	return results
}

// paginate slices results to [offset, offset+limit) and fills in the neighbouring offsets,
// which are nil at the boundaries.
func paginate(display *models.Display, results []models.FormattedResult, offset int, limit *int) *models.LookupResult {
	total := len(results)
	start, end, next, previous := window(total, offset, limit)

	result := &models.LookupResult{
		ColumnHeaders:  []string{},
		ColumnTypes:    []string{},
		Results:        results[start:end],
		Total:          total,
		Offset:         start,
		NextOffset:     next,
		PreviousOffset: previous,
	}
	if display != nil {
		result.ColumnHeaders = display.Headers()
		result.ColumnTypes = display.Types()
	}
	return result
}

func window(total, offset int, limit *int) (start, end int, next, previous *int) {
	if offset < 0 {
		offset = 0
	}
	start = min(offset, total)
	end = total
	if limit != nil && *limit >= 0 {
		end = min(start+*limit, total)
		if end > start && end < total {
			n := end
			next = &n
		}
	}

	// An empty window has no neighbours to step to.
	if start > 0 && (limit == nil || *limit > 0) {
		p := 0
		if limit != nil && *limit >= 0 {
			p = max(start-*limit, 0)
		}
		previous = &p
	}
	return start, end, next, previous
}
