package pubsub

import (
	"testing"

	"github.com/canopyhq/canopy-backend/pkg/config"
	"github.com/stretchr/testify/require"
)

func TestResourceName(t *testing.T) {
	require.Equal(t, "projects/p1/topics/sales", resourceName("p1", "topics", "sales"))
	require.Equal(t, "projects/p1/subscriptions/sync", resourceName("p1", "subscriptions", " sync "))
	require.Equal(t, "projects/other/topics/t", resourceName("p1", "topics", "projects/other/topics/t"))
	require.Empty(t, resourceName("p1", "topics", ""))
	require.Empty(t, resourceName("", "topics", "sales"))
}

func TestClientOptions(t *testing.T) {
	require.Empty(t, clientOptions(config.GCPConfig{ProjectID: "p"}))
	require.Len(t, clientOptions(config.GCPConfig{CredentialsJSON: `{"type":"service_account"}`}), 1)
	require.Len(t, clientOptions(config.GCPConfig{ApplicationCredentials: "/tmp/creds.json"}), 1)
}

func TestNilClientHandles(t *testing.T) {
	var c *Client
	require.Nil(t, c.Publisher("sales"))
	require.Nil(t, c.Subscription("sync"))
	require.NoError(t, c.Close())
	require.Error(t, c.Ping(nil))
}
