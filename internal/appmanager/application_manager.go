package appmanager

import (
	"context"

	"github.com/RezaEskandarii/tide/types"
)

// DeployOptions are passed through to the container runtime untouched.
type DeployOptions map[string]any

// ApplicationManager owns the container application lifecycle on the cluster.
type ApplicationManager interface {
	// Add creates (or replaces) the application definition.
	Add(ctx context.Context, app types.Application) error

	// Remove tears down the application and its containers. Removing an unknown
	// application is not an error.
	Remove(ctx context.Context, appID string) error

	// DeployContainer requests one more container of the application.
	DeployContainer(ctx context.Context, appID string, opts DeployOptions) error
}
