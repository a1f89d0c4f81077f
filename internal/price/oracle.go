package price

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/camuig/paper-trader/internal/logger"
)

// ErrUnavailable is returned when every provider failed and no fresh cached
// price exists. Callers treat it as transient and retry on the next pass.
var ErrUnavailable = errors.New("price unavailable")

// Provider is one source of the current price.
type Provider interface {
	Name() string
	Price(ctx context.Context) (float64, error)
}

type Quote struct {
	Price  float64   `json:"price"`
	Source string    `json:"source"`
	At     time.Time `json:"at"`
	Cached bool      `json:"cached"`
}

// Cache holds the last known price for a limited time.
type Cache struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	quote *Quote
}

func NewCache(ttl time.Duration) *Cache {
	return &Cache{ttl: ttl, now: time.Now}
}

func (c *Cache) Store(q Quote) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quote = &q
}

// Fresh returns the cached quote if it is younger than the TTL.
func (c *Cache) Fresh() (Quote, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.quote == nil || c.now().Sub(c.quote.At) > c.ttl {
		return Quote{}, false
	}
	q := *c.quote
	q.Cached = true
	return q, true
}

// Oracle returns the current price from the first provider that answers,
// falling back to the cache when all of them fail.
type Oracle struct {
	providers []Provider
	timeout   time.Duration
	cache     *Cache
	logger    *logger.Logger
	now       func() time.Time
}

func NewOracle(providers []Provider, cache *Cache, timeout time.Duration, log *logger.Logger) *Oracle {
	return &Oracle{
		providers: providers,
		timeout:   timeout,
		cache:     cache,
		logger:    log,
		now:       time.Now,
	}
}

func (o *Oracle) CurrentPrice(ctx context.Context) (float64, error) {
	q, err := o.Quote(ctx)
	if err != nil {
		return 0, err
	}
	return q.Price, nil
}

func (o *Oracle) Quote(ctx context.Context) (Quote, error) {
	var errs []error
	for _, p := range o.providers {
		v, err := o.fetch(ctx, p)
		if err != nil {
			o.logger.Warn("price provider failed", "provider", p.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			continue
		}
		q := Quote{Price: v, Source: p.Name(), At: o.now()}
		o.cache.Store(q)
		return q, nil
	}

	if q, ok := o.cache.Fresh(); ok {
		o.logger.Warn("all price providers failed, serving cached price",
			"price", q.Price, "source", q.Source, "age", o.now().Sub(q.At).String())
		return q, nil
	}

	return Quote{}, fmt.Errorf("%w: %w", ErrUnavailable, errors.Join(errs...))
}

func (o *Oracle) fetch(ctx context.Context, p Provider) (float64, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	v, err := p.Price(ctx)
	if err != nil {
		return 0, err
	}
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("implausible price %v", v)
	}
	return v, nil
}
