package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"github.com/cribnosh/cribnosh-backend/pkg/config"
	"github.com/cribnosh/cribnosh-backend/pkg/logger"
	"go.uber.org/multierr"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type resourceKind string

const (
	kindTopic        resourceKind = "topics"
	kindSubscription resourceKind = "subscriptions"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNotInitialized    = errors.New("pubsub client not initialized")
)

// Client wraps a Pub/Sub v2 client bound to one project. Subscriptions handed
// out by the client are remembered so Ping can verify they still exist.
type Client struct {
	client  *pubsub.Client
	project string
	cfg     config.PubSubConfig

	mu      sync.Mutex
	watched []string
}

// NewClient connects to Pub/Sub and fails when the domain topic is missing.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	if project == "" {
		return nil, errProjectIDRequired
	}

	psClient, err := pubsub.NewClient(ctx, project, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{client: psClient, project: project, cfg: cfg}

	if err := c.checkTopic(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "topic", c.resourceName(kindTopic, cfg.DomainTopic)), "pubsub client initialized")
	}
	return c, nil
}

// clientOptions prefers inline credentials over a key file; with neither the
// client falls back to application default credentials.
func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	switch {
	case strings.TrimSpace(gcp.CredentialsJSON) != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(gcp.CredentialsJSON))}
	case strings.TrimSpace(gcp.ApplicationCredentials) != "":
		return []option.ClientOption{option.WithCredentialsFile(gcp.ApplicationCredentials)}
	}
	return nil
}

// resourceName expands a short ID into projects/<project>/<kind>/<id>. Fully
// qualified names of the same kind pass through unchanged.
func (c *Client) resourceName(kind resourceKind, name string) string {
	n := strings.TrimSpace(name)
	if n == "" || c == nil {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/"+string(kind)+"/") {
		return n
	}
	if c.project == "" {
		return ""
	}
	return "projects/" + c.project + "/" + string(kind) + "/" + n
}

func (c *Client) checkTopic(ctx context.Context) error {
	topic := c.resourceName(kindTopic, c.cfg.DomainTopic)
	if topic == "" {
		return errors.New("pubsub domain topic is required")
	}
	_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: topic})
	return describe("topic", topic, err)
}

func (c *Client) checkSubscription(ctx context.Context, name string) error {
	_, err := c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: name})
	return describe("subscription", name, err)
}

func describe(what, name string, err error) error {
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("%s %q does not exist", what, name)
	default:
		return fmt.Errorf("checking %s %q: %w", what, name, err)
	}
}

// Subscription returns a subscriber for a subscription ID or full resource
// name, or nil when the name is blank.
func (c *Client) Subscription(name string) *pubsub.Subscriber {
	if c == nil || c.client == nil {
		return nil
	}
	full := c.resourceName(kindSubscription, name)
	if full == "" {
		return nil
	}
	c.mu.Lock()
	if !containsName(c.watched, full) {
		c.watched = append(c.watched, full)
	}
	c.mu.Unlock()
	return c.client.Subscriber(full)
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func (c *Client) NotificationsSubscription() *pubsub.Subscriber {
	return c.Subscription(c.cfg.NotificationsSubscription)
}

func (c *Client) ChangeFeedSubscription() *pubsub.Subscriber {
	return c.Subscription(c.cfg.ChangeFeedSubscription)
}

func (c *Client) WebhooksSubscription() *pubsub.Subscriber {
	return c.Subscription(c.cfg.WebhooksSubscription)
}

// Publisher returns a publisher for a topic ID or full resource name.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	full := c.resourceName(kindTopic, name)
	if full == "" {
		return nil
	}
	return c.client.Publisher(full)
}

// Ping checks the domain topic and every subscription handed out so far.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	errs := c.checkTopic(ctx)

	c.mu.Lock()
	watched := append([]string(nil), c.watched...)
	c.mu.Unlock()
	for _, name := range watched {
		errs = multierr.Append(errs, c.checkSubscription(ctx, name))
	}
	return errs
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
