// Package pubsub wraps the Pub/Sub v2 client shared by the outbox relay and the
// live feed. Topic and subscription names may be short IDs or full resource
// names; both resolve against the configured project.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/auctionhouse-backend/pkg/config"
	"github.com/angelmondragon/auctionhouse-backend/pkg/logger"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNotInitialized    = errors.New("pubsub client not initialized")
)

type Client struct {
	client         *pubsub.Client
	projectID      string
	maxOutstanding int

	// resources the process depends on, checked by Ping
	topics        []string
	subscriptions []string
	liveFeed      string

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

// NewClient dials Pub/Sub and fails when a configured topic or subscription
// is missing.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}

	psClient, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := newClient(psClient, projectID, cfg)
	if err := c.Ping(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"project_id":    projectID,
			"topics":        c.topics,
			"subscriptions": c.subscriptions,
		}), "pubsub client initialized")
	}
	return c, nil
}

func newClient(psClient *pubsub.Client, projectID string, cfg config.PubSubConfig) *Client {
	c := &Client{
		client:         psClient,
		projectID:      projectID,
		maxOutstanding: cfg.ReceiveMaxOutstanding,
		publishers:     map[string]*pubsub.Publisher{},
	}
	c.topics = c.resolve("topics", cfg.AuctionTopic, cfg.OrdersTopic)
	c.subscriptions = c.resolve("subscriptions", cfg.AuctionSubscription, cfg.OrdersSubscription, cfg.LiveFeedSubscription)
	c.liveFeed = resourceName(projectID, "subscriptions", cfg.LiveFeedSubscription)
	return c
}

// resolve maps names to resource names, skipping blanks and duplicates.
func (c *Client) resolve(kind string, names ...string) []string {
	out := make([]string, 0, len(names))
	seen := map[string]bool{}
	for _, name := range names {
		full := resourceName(c.projectID, kind, name)
		if full == "" || seen[full] {
			continue
		}
		seen[full] = true
		out = append(out, full)
	}
	return out
}

// LiveFeedSubscription returns the subscriber the live feed fans out from,
// or nil when none is configured.
func (c *Client) LiveFeedSubscription() *pubsub.Subscriber {
	if c == nil || c.client == nil || c.liveFeed == "" {
		return nil
	}
	sub := c.client.Subscriber(c.liveFeed)
	if c.maxOutstanding > 0 {
		sub.ReceiveSettings.MaxOutstandingMessages = c.maxOutstanding
	}
	return sub
}

// Publisher returns the cached publisher for a topic. Ordering is enabled so
// messages sharing an ordering key (the auction id) arrive in order.
func (c *Client) Publisher(topic string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	full := resourceName(c.projectID, "topics", topic)
	if full == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	pub, ok := c.publishers[full]
	if !ok {
		pub = c.client.Publisher(full)
		pub.EnableMessageOrdering = true
		c.publishers[full] = pub
	}
	return pub
}

// Ping confirms every configured topic and subscription exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	for _, topic := range c.topics {
		_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: topic})
		if err := describe("topic", topic, err); err != nil {
			return err
		}
	}
	for _, sub := range c.subscriptions {
		_, err := c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: sub})
		if err := describe("subscription", sub, err); err != nil {
			return err
		}
	}
	return nil
}

func describe(kind, name string, err error) error {
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("%s %q does not exist", kind, name)
	default:
		return fmt.Errorf("checking %s %q: %w", kind, name, err)
	}
}

// Close stops cached publishers, flushing pending messages, then releases the client.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	c.mu.Lock()
	for name, pub := range c.publishers {
		pub.Stop()
		delete(c.publishers, name)
	}
	c.mu.Unlock()
	return c.client.Close()
}

func resourceName(projectID, kind, name string) string {
	n := strings.TrimSpace(name)
	switch {
	case n == "":
		return ""
	case strings.HasPrefix(n, "projects/") && strings.Contains(n, "/"+kind+"/"):
		return n
	case projectID == "":
		return ""
	}
	return "projects/" + projectID + "/" + kind + "/" + n
}
