package gpufft

import (
	"errors"
	"sync"

	"golang.org/x/sync/singleflight"
)

// PlanCache reuses compiled plans for equal transform descriptions.
// Concurrent requests for a missing plan compile it once.
type PlanCache struct {
	opts  []CompileOption
	group singleflight.Group

	mu     sync.Mutex
	plans  map[string]*Plan
	closed bool
}

// NewPlanCache returns an empty cache compiling with opts.
func NewPlanCache(opts ...CompileOption) *PlanCache {
	return &PlanCache{
		opts:  opts,
		plans: make(map[string]*Plan),
	}
}

var errCacheClosed = errorf(KindPlanNotReady, "plan cache", "closed")

func (c *PlanCache) lookup(key string) (*Plan, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, errCacheClosed
	}

	return c.plans[key], nil
}

// Get returns the cached plan for spec, compiling it on first use.
func (c *PlanCache) Get(spec TransformSpec) (*Plan, error) {
	if err := spec.Validate(); err != nil {
		return nil, newError(KindInvalidArgument, "compile", err)
	}

	key := spec.key()
	if p, err := c.lookup(key); p != nil || err != nil {
		return p, err
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		if p, err := c.lookup(key); p != nil || err != nil {
			return p, err
		}

		p, err := Compile(spec, c.opts...)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		defer c.mu.Unlock()

		if c.closed {
			_ = p.Destroy()
			return nil, errCacheClosed
		}

		c.plans[key] = p

		return p, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*Plan), nil
}

// Len returns the number of cached plans.
func (c *PlanCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.plans)
}

// Close destroys every cached plan and empties the cache. Get fails after
// Close, and plans compiled by calls racing Close are destroyed.
func (c *PlanCache) Close() error {
	c.mu.Lock()
	c.closed = true
	plans := c.plans
	c.plans = make(map[string]*Plan)
	c.mu.Unlock()

	var errs []error
	for _, p := range plans {
		errs = append(errs, p.Destroy())
	}

	return errors.Join(errs...)
}
