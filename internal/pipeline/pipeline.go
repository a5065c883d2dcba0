package pipeline

import (
	"context"
	"runtime"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/iamwavecut/ngprep/internal/db"
	"github.com/iamwavecut/ngprep/internal/observability"
	"github.com/iamwavecut/ngprep/internal/utils/text"
)

const (
	defaultChunkSize = 256
	tracerName       = "github.com/iamwavecut/ngprep/internal/pipeline"
)

// Pipeline wraps text.Normalize with a memory tier, an optional persistent
// store, bounded batch concurrency and metrics. It never changes results.
type Pipeline struct {
	store     db.Client
	memory    *lru.Cache[string, string]
	workers   int
	chunkSize int
	skipEmpty bool
	metrics   *observability.Metrics
	tracer    trace.Tracer
	l         *log.Entry
}

type Option func(*Pipeline)

func WithStore(store db.Client) Option {
	return func(p *Pipeline) {
		p.store = store
	}
}

// WithMemorySize enables the in-memory LRU tier, zero disables it.
func WithMemorySize(size int) Option {
	return func(p *Pipeline) {
		if size <= 0 {
			p.memory = nil
			return
		}
		cache, err := lru.New[string, string](size)
		if err != nil {
			p.l.WithError(err).Warn("cant create memory cache")
			return
		}
		p.memory = cache
	}
}

func WithWorkers(workers int) Option {
	return func(p *Pipeline) {
		if workers > 0 {
			p.workers = workers
		}
	}
}

func WithMetrics(metrics *observability.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = metrics
	}
}

// WithSkipEmpty drops empty results from line-oriented output.
func WithSkipEmpty(skip bool) Option {
	return func(p *Pipeline) {
		p.skipEmpty = skip
	}
}

func WithChunkSize(size int) Option {
	return func(p *Pipeline) {
		if size > 0 {
			p.chunkSize = size
		}
	}
}

func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		workers:   runtime.GOMAXPROCS(0),
		chunkSize: defaultChunkSize,
		tracer:    otel.Tracer(tracerName),
		l:         log.WithField("context", "pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Normalize returns text.Normalize(input), served from cache when possible.
func (p *Pipeline) Normalize(ctx context.Context, input any) string {
	out, _ := p.normalize(ctx, input)
	return out
}

func (p *Pipeline) normalize(ctx context.Context, input any) (string, bool) {
	ctx, span := p.tracer.Start(ctx, "normalize")
	defer span.End()
	defer p.metrics.StartNormalize()()

	s, ok := input.(string)
	if !ok {
		span.SetAttributes(attribute.String("outcome", observability.OutcomeInvalid))
		p.metrics.RecordNormalized(observability.OutcomeInvalid)
		return "", false
	}
	span.SetAttributes(attribute.Int("input.bytes", len(s)))

	var key string
	if p.memory != nil || p.store != nil {
		key = db.CacheKey(s)
	}
	out, hit := p.lookup(ctx, key)
	if !hit {
		out = text.NormalizeString(s)
		p.remember(ctx, key, out)
	}

	outcome := observability.OutcomeOK
	if out == "" {
		outcome = observability.OutcomeEmpty
	}
	span.SetAttributes(attribute.String("outcome", outcome), attribute.Bool("cache.hit", hit))
	p.metrics.RecordNormalized(outcome)
	return out, hit
}

func (p *Pipeline) lookup(ctx context.Context, key string) (string, bool) {
	if key == "" {
		return "", false
	}
	if p.memory != nil {
		if out, ok := p.memory.Get(key); ok {
			p.metrics.RecordCacheLookup(observability.TierMemory, observability.ResultHit)
			return out, true
		}
		p.metrics.RecordCacheLookup(observability.TierMemory, observability.ResultMiss)
	}
	if p.store == nil {
		return "", false
	}
	out, ok, err := p.store.GetNormalized(ctx, key)
	switch {
	case err != nil:
		p.metrics.RecordCacheLookup(observability.TierStore, observability.ResultErr)
		p.l.WithError(err).Warn("cant read normalized cache")
		return "", false
	case !ok:
		p.metrics.RecordCacheLookup(observability.TierStore, observability.ResultMiss)
		return "", false
	}
	p.metrics.RecordCacheLookup(observability.TierStore, observability.ResultHit)
	if p.memory != nil {
		p.memory.Add(key, out)
	}
	return out, true
}

func (p *Pipeline) remember(ctx context.Context, key, out string) {
	if key == "" {
		return
	}
	if p.memory != nil {
		p.memory.Add(key, out)
	}
	if p.store != nil {
		if err := p.store.SetNormalized(ctx, key, out); err != nil {
			p.l.WithError(err).Warn("cant write normalized cache")
		}
	}
}

// NormalizeBatch normalizes inputs concurrently, output order follows input order.
func (p *Pipeline) NormalizeBatch(ctx context.Context, inputs []any) ([]string, error) {
	out, _, err := p.batch(ctx, inputs)
	return out, err
}

func (p *Pipeline) batch(ctx context.Context, inputs []any) ([]string, int, error) {
	out := make([]string, len(inputs))
	var hits atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, in := range inputs {
		if gctx.Err() != nil {
			break
		}
		i, in := i, in
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, hit := p.normalize(gctx, in)
			if hit {
				hits.Add(1)
			}
			out[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	return out, int(hits.Load()), nil
}
