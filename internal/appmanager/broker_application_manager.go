package appmanager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/RezaEskandarii/tide/internal/message_broaker"
	"github.com/RezaEskandarii/tide/types"
)

const (
	ActionAdd    = "add"
	ActionRemove = "remove"
	ActionDeploy = "deploy_container"
)

// Command is the message the container runtime consumes.
type Command struct {
	Action        string            `json:"action"`
	ApplicationID string            `json:"application_id"`
	Application   types.Application `json:"application,omitempty"`
	Options       DeployOptions     `json:"options,omitempty"`
	IssuedAt      time.Time         `json:"issued_at"`
}

// BrokerApplicationManager publishes lifecycle commands over a MessageBroker.
// A nil error means the command was accepted by the broker, not that the runtime applied it.
type BrokerApplicationManager struct {
	broker     message_broaker.MessageBroker
	routingKey string
	now        func() time.Time
}

func NewBrokerApplicationManager(broker message_broaker.MessageBroker, routingKey string) *BrokerApplicationManager {
	return &BrokerApplicationManager{
		broker:     broker,
		routingKey: routingKey,
		now:        time.Now,
	}
}

func (m *BrokerApplicationManager) Add(ctx context.Context, app types.Application) error {
	id := app.ID()
	if id == "" {
		return errors.New("application id is required")
	}
	return m.publish(ctx, Command{Action: ActionAdd, ApplicationID: id, Application: app})
}

func (m *BrokerApplicationManager) Remove(ctx context.Context, appID string) error {
	return m.publish(ctx, Command{Action: ActionRemove, ApplicationID: appID})
}

func (m *BrokerApplicationManager) DeployContainer(ctx context.Context, appID string, opts DeployOptions) error {
	return m.publish(ctx, Command{Action: ActionDeploy, ApplicationID: appID, Options: opts})
}

func (m *BrokerApplicationManager) publish(ctx context.Context, cmd Command) error {
	cmd.IssuedAt = m.now().UTC()
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to marshal %s command: %w", cmd.Action, err)
	}
	if err := m.broker.Publish(ctx, m.routingKey, payload); err != nil {
		return fmt.Errorf("failed to publish %s command for %s: %w", cmd.Action, cmd.ApplicationID, err)
	}
	return nil
}
