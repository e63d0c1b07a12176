// Package consul adapts the Consul catalog and KV store to the reconciler:
// it lists tagged service instances, long-polls for changes and writes the
// completion notification key.
package consul

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/go-logr/logr"
	"github.com/hashicorp/consul/api"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/yuriy-kovalchuk/yk-dns-sync/internal/source"
)

// NotifyValue is written to the notification key after a pass changed something.
const NotifyValue = "ping"

// DefaultBackoff paces retries of a failing watch.
var DefaultBackoff = wait.Backoff{
	Duration: time.Second,
	Factor:   2.0,
	Jitter:   0.1,
	Steps:    1 << 30,
	Cap:      time.Minute,
}

// Client wraps a Consul API client scoped to one datacenter.
type Client struct {
	api        *api.Client
	datacenter string
	log        logr.Logger

	// Backoff paces watch retries after errors.
	Backoff wait.Backoff
	// WaitTime bounds each blocking query; zero uses the agent default.
	WaitTime time.Duration
}

// New creates a client for the agent at address. An empty datacenter uses the agent's own.
func New(log logr.Logger, address, datacenter string) (*Client, error) {
	cfg := api.DefaultConfig()
	if address != "" {
		cfg.Address = address
	}
	cfg.Datacenter = datacenter
	c, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("consul: create client: %w", err)
	}
	return &Client{api: c, datacenter: datacenter, log: log, Backoff: DefaultBackoff}, nil
}

// ValidateDatacenter checks the configured datacenter is known to the cluster
// and returns it. An empty datacenter resolves to the agent's datacenter.
func (c *Client) ValidateDatacenter(ctx context.Context) (string, error) {
	if c.datacenter == "" {
		self, err := c.api.Agent().Self()
		if err != nil {
			return "", fmt.Errorf("consul: query agent: %w", err)
		}
		dc, _ := self["Config"]["Datacenter"].(string)
		if dc == "" {
			return "", fmt.Errorf("consul: agent reported no datacenter")
		}
		return dc, nil
	}

	dcs, err := c.api.Catalog().Datacenters()
	if err != nil {
		return "", fmt.Errorf("consul: list datacenters: %w", err)
	}
	if !slices.Contains(dcs, c.datacenter) {
		return "", fmt.Errorf("consul: unknown datacenter %q (known: %v)", c.datacenter, dcs)
	}
	return c.datacenter, nil
}

func (c *Client) query(ctx context.Context, index uint64) *api.QueryOptions {
	q := &api.QueryOptions{Datacenter: c.datacenter, WaitIndex: index, WaitTime: c.WaitTime}
	return q.WithContext(ctx)
}

// Services returns the names of every registered service in sorted order.
func (c *Client) Services(ctx context.Context) ([]string, error) {
	services, _, err := c.api.Catalog().Services(c.query(ctx, 0))
	if err != nil {
		return nil, fmt.Errorf("consul: list services: %w", err)
	}
	names := make([]string, 0, len(services))
	for name := range services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Instances returns the registered instances of service.
func (c *Client) Instances(ctx context.Context, service string) ([]source.Instance, error) {
	entries, _, err := c.api.Catalog().Service(service, "", c.query(ctx, 0))
	if err != nil {
		return nil, fmt.Errorf("consul: list instances of %s: %w", service, err)
	}
	out := make([]source.Instance, 0, len(entries))
	for _, e := range entries {
		out = append(out, source.Instance{
			Service:     e.ServiceName,
			Address:     e.ServiceAddress,
			NodeAddress: e.Address,
			Tags:        e.ServiceTags,
		})
	}
	return out, nil
}

// Notify writes NotifyValue to key so that peers watching it run their own pass.
func (c *Client) Notify(ctx context.Context, key string) error {
	w := (&api.WriteOptions{Datacenter: c.datacenter}).WithContext(ctx)
	if _, err := c.api.KV().Put(&api.KVPair{Key: key, Value: []byte(NotifyValue)}, w); err != nil {
		return fmt.Errorf("consul: notify %s: %w", key, err)
	}
	return nil
}

// WatchServices calls fire every time the service catalog index moves. It
// returns when ctx is done or fire fails.
func (c *Client) WatchServices(ctx context.Context, fire func(context.Context) error) error {
	return c.watch(ctx, "services", func(q *api.QueryOptions) (uint64, error) {
		_, meta, err := c.api.Catalog().Services(q)
		if err != nil {
			return 0, err
		}
		return meta.LastIndex, nil
	}, fire)
}

// WatchKey calls fire every time the index of key moves, including when the
// key does not exist yet.
func (c *Client) WatchKey(ctx context.Context, key string, fire func(context.Context) error) error {
	return c.watch(ctx, key, func(q *api.QueryOptions) (uint64, error) {
		_, meta, err := c.api.KV().Get(key, q)
		if err != nil {
			return 0, err
		}
		return meta.LastIndex, nil
	}, fire)
}

func (c *Client) watch(ctx context.Context, name string, query func(*api.QueryOptions) (uint64, error), fire func(context.Context) error) error {
	log := c.log.WithValues("watch", name)
	backoff := c.Backoff
	var seen, index uint64
	first := true

	for ctx.Err() == nil {
		next, err := query(c.query(ctx, index))
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			delay := backoff.Step()
			log.Error(err, "blocking query failed, backing off", "delay", delay)
			select {
			case <-ctx.Done():
			case <-time.After(delay):
			}
			continue
		}
		backoff = c.Backoff

		changed := first || next != seen
		index = waitIndex(seen, next)
		if !changed {
			seen = next
			continue
		}
		log.V(1).Info("index changed", "from", seen, "to", next)
		first = false
		seen = next
		if err := fire(ctx); err != nil {
			return err
		}
	}
	return nil
}

// waitIndex returns the index to block on after a response carrying next. An
// index that went backwards restarts from zero and a zero index is clamped to one.
func waitIndex(prev, next uint64) uint64 {
	switch {
	case next < prev:
		return 0
	case next == 0:
		return 1
	default:
		return next
	}
}
