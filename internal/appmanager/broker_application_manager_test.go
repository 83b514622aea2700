package appmanager

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/RezaEskandarii/tide/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingBroker struct {
	routingKeys []string
	messages    [][]byte
	err         error
}

func (b *recordingBroker) Publish(ctx context.Context, routingKey string, message []byte) error {
	if b.err != nil {
		return b.err
	}
	b.routingKeys = append(b.routingKeys, routingKey)
	b.messages = append(b.messages, message)
	return nil
}

func (b *recordingBroker) Close() error { return nil }

func decode(t *testing.T, raw []byte) Command {
	t.Helper()
	var cmd Command
	require.NoError(t, json.Unmarshal(raw, &cmd))
	return cmd
}

func newManager(b *recordingBroker) *BrokerApplicationManager {
	m := NewBrokerApplicationManager(b, "tide.commands")
	m.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }
	return m
}

func TestBrokerApplicationManager_Commands(t *testing.T) {
	b := &recordingBroker{}
	m := newManager(b)
	var _ ApplicationManager = m
	ctx := context.Background()

	require.NoError(t, m.Add(ctx, types.Application{"id": "A", "image": "busybox"}))
	require.NoError(t, m.DeployContainer(ctx, "A", DeployOptions{"host": "n1"}))
	require.NoError(t, m.Remove(ctx, "A"))

	require.Len(t, b.messages, 3)
	assert.Equal(t, []string{"tide.commands", "tide.commands", "tide.commands"}, b.routingKeys)

	add := decode(t, b.messages[0])
	assert.Equal(t, ActionAdd, add.Action)
	assert.Equal(t, "A", add.ApplicationID)
	assert.Equal(t, "busybox", add.Application["image"])
	assert.Equal(t, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), add.IssuedAt)

	deploy := decode(t, b.messages[1])
	assert.Equal(t, ActionDeploy, deploy.Action)
	assert.Equal(t, "n1", deploy.Options["host"])

	remove := decode(t, b.messages[2])
	assert.Equal(t, ActionRemove, remove.Action)
	assert.Nil(t, remove.Application)
}

func TestBrokerApplicationManager_AddRequiresID(t *testing.T) {
	b := &recordingBroker{}
	err := newManager(b).Add(context.Background(), types.Application{"image": "busybox"})
	assert.Error(t, err)
	assert.Empty(t, b.messages)
}

func TestBrokerApplicationManager_PublishError(t *testing.T) {
	b := &recordingBroker{err: assert.AnError}
	err := newManager(b).Remove(context.Background(), "A")
	assert.ErrorContains(t, err, "failed to publish remove command for A")
}
