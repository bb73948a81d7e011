package pubsub

import (
	"context"
	"errors"
	"testing"

	"github.com/cribnosh/cribnosh-backend/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestResourceName(t *testing.T) {
	c := &Client{project: "cribnosh-dev"}
	cases := []struct {
		name string
		kind resourceKind
		in   string
		want string
	}{
		{"short subscription", kindSubscription, " notif-sub ", "projects/cribnosh-dev/subscriptions/notif-sub"},
		{"qualified subscription", kindSubscription, "projects/other/subscriptions/x", "projects/other/subscriptions/x"},
		{"short topic", kindTopic, "domain-events", "projects/cribnosh-dev/topics/domain-events"},
		{"qualified topic", kindTopic, "projects/other/topics/y", "projects/other/topics/y"},
		{"subscription path used as topic", kindTopic, "projects/other/subscriptions/x", "projects/cribnosh-dev/topics/projects/other/subscriptions/x"},
		{"blank", kindTopic, "  ", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, c.resourceName(tc.kind, tc.in))
		})
	}

	var nilClient *Client
	assert.Empty(t, nilClient.resourceName(kindTopic, "x"))
	assert.Empty(t, (&Client{}).resourceName(kindTopic, "x"))
}

func TestDescribe(t *testing.T) {
	require.NoError(t, describe("topic", "t", nil))

	err := describe("subscription", "s", status.Error(codes.NotFound, "gone"))
	require.EqualError(t, err, `subscription "s" does not exist`)

	cause := status.Error(codes.Unavailable, "down")
	err = describe("topic", "t", cause)
	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), `checking topic "t"`)
}

func TestZeroClient(t *testing.T) {
	var c *Client
	assert.Nil(t, c.Subscription("x"))
	assert.Nil(t, c.Publisher("x"))
	assert.NoError(t, c.Close())
	assert.True(t, errors.Is(c.Ping(context.Background()), errNotInitialized))
}

func TestNewClientRequiresProject(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{ProjectID: " "}, config.PubSubConfig{}, nil)
	assert.ErrorIs(t, err, errProjectIDRequired)
}

func TestClientOptionsPrefersInlineCredentials(t *testing.T) {
	assert.Empty(t, clientOptions(config.GCPConfig{ProjectID: "p"}))
	assert.Len(t, clientOptions(config.GCPConfig{CredentialsJSON: `{"type":"service_account"}`, ApplicationCredentials: "/tmp/key.json"}), 1)
	assert.Len(t, clientOptions(config.GCPConfig{ApplicationCredentials: "/tmp/key.json"}), 1)
}
