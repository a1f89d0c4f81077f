package price

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camuig/paper-trader/internal/logger"
)

type fakeProvider struct {
	name  string
	price float64
	err   error
	delay time.Duration
	calls int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Price(ctx context.Context) (float64, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	return f.price, f.err
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestOracle(c *clock, ttl time.Duration, providers ...Provider) *Oracle {
	cache := NewCache(ttl)
	cache.now = c.now
	o := NewOracle(providers, cache, 50*time.Millisecond, logger.Discard())
	o.now = c.now
	return o
}

func TestOracleUsesFirstHealthyProvider(t *testing.T) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	primary := &fakeProvider{name: "primary", err: errors.New("boom")}
	secondary := &fakeProvider{name: "secondary", price: 2400.5}
	tertiary := &fakeProvider{name: "tertiary", price: 1}

	o := newTestOracle(c, time.Minute, primary, secondary, tertiary)
	q, err := o.Quote(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2400.5, q.Price)
	assert.Equal(t, "secondary", q.Source)
	assert.False(t, q.Cached)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 0, tertiary.calls)
}

func TestOracleTimesOutSlowProvider(t *testing.T) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	slow := &fakeProvider{name: "slow", price: 1, delay: time.Second}
	fast := &fakeProvider{name: "fast", price: 2500}

	p, err := newTestOracle(c, time.Minute, slow, fast).CurrentPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2500.0, p)
}

func TestOracleRejectsImplausiblePrice(t *testing.T) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	zero := &fakeProvider{name: "zero", price: 0}
	good := &fakeProvider{name: "good", price: 3000}

	q, err := newTestOracle(c, time.Minute, zero, good).Quote(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "good", q.Source)
}

func TestOracleServesFreshCacheWhenAllFail(t *testing.T) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	p := &fakeProvider{name: "only", price: 2400}
	o := newTestOracle(c, time.Minute, p)

	_, err := o.Quote(context.Background())
	require.NoError(t, err)

	p.err = errors.New("down")
	c.t = c.t.Add(30 * time.Second)
	q, err := o.Quote(context.Background())
	require.NoError(t, err)
	assert.True(t, q.Cached)
	assert.Equal(t, 2400.0, q.Price)

	c.t = c.t.Add(31 * time.Second)
	_, err = o.Quote(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestOracleUnavailableWithoutCache(t *testing.T) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	o := newTestOracle(c, time.Minute,
		&fakeProvider{name: "a", err: errors.New("a down")},
		&fakeProvider{name: "b", err: errors.New("b down")},
	)

	_, err := o.CurrentPrice(context.Background())
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "a down")
	assert.Contains(t, err.Error(), "b down")
}

func TestCachesAreIndependent(t *testing.T) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	first := newTestOracle(c, time.Minute, &fakeProvider{name: "p", price: 10})
	second := newTestOracle(c, time.Minute, &fakeProvider{name: "p", err: errors.New("down")})

	_, err := first.Quote(context.Background())
	require.NoError(t, err)
	_, err = second.Quote(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}
