package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JakeFAU/social-harvester/internal/crawler"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func TestNotifierPublishesEnvelope(t *testing.T) {
	ctx := context.Background()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(ctx, "harvester-test", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	_, err = client.CreateTopic(ctx, "notifications")
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0).UTC()
	n, err := New(client, "notifications", fixedClock{now: now})
	require.NoError(t, err)
	t.Cleanup(n.Stop)

	require.NoError(t, n.Send(ctx, "Go Engineer at Acme", "@gojobs"))

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "@gojobs", msgs[0].Attributes["destination"])

	var env Envelope
	require.NoError(t, json.Unmarshal(msgs[0].Data, &env))
	require.Equal(t, Envelope{Destination: "@gojobs", Message: "Go Engineer at Acme", SentAt: now}, env)
}

func TestNotifierMissingTopicFails(t *testing.T) {
	ctx := context.Background()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(ctx, "harvester-test", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	n, err := New(client, "does-not-exist", nil)
	require.NoError(t, err)
	t.Cleanup(n.Stop)

	err = n.Send(ctx, "m", "d")
	require.True(t, errors.Is(err, crawler.ErrNotifierFailed), "got %v", err)
}

func TestNewValidates(t *testing.T) {
	_, err := New(nil, "t", nil)
	require.Error(t, err)
}
