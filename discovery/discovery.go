package discovery

import (
	"context"
	"errors"

	apperrors "github.com/kbukum/resilix/errors"
)

// Common discovery errors.
var (
	ErrServiceNotFound    = errors.New("service not found")
	ErrNoHealthyEndpoints = errors.New("no healthy endpoints found")
)

// FromLookup converts a Lookup or Failover error for service into an
// AppError for callers that report failures across a service boundary.
func FromLookup(err error, service string) *apperrors.AppError {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrServiceNotFound):
		return apperrors.NotFound("service", service).WithCause(err)
	case errors.Is(err, ErrNoHealthyEndpoints):
		return apperrors.ServiceUnavailable(service).WithCause(err)
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.Timeout("lookup " + service).WithCause(err)
	default:
		return apperrors.ConnectionFailed(service).WithCause(err)
	}
}

// Backend is a membership store: nodes join and leave named clusters, and
// GetCluster returns a snapshot of one cluster.
type Backend interface {
	// Join adds ip:port to the cluster name. It reports whether membership
	// changed; backends decide whether re-joining counts as a change.
	Join(ctx context.Context, name, ip string, port int, opts ...JoinOption) (bool, error)

	// Leave removes ip:port from the cluster name and reports whether it was a member.
	Leave(ctx context.Context, name, ip string, port int) (bool, error)

	// GetCluster returns a fresh snapshot of the cluster, or nil when the
	// name is unknown. Callers own the snapshot and may consume it.
	GetCluster(ctx context.Context, name string) (*Cluster, error)
}

// JoinOptions carries backend-specific registration settings.
type JoinOptions struct {
	// Weight biases selection where the backend supports it.
	Weight int
	// Tags label the registration.
	Tags []string
	// Metadata is copied onto the node.
	Metadata map[string]string
	// ID overrides the backend's registration ID.
	ID string
}

// JoinOption configures a Join call.
type JoinOption func(*JoinOptions)

// WithWeight sets the node weight.
func WithWeight(w int) JoinOption {
	return func(o *JoinOptions) { o.Weight = w }
}

// WithTags sets registration tags.
func WithTags(tags ...string) JoinOption {
	return func(o *JoinOptions) { o.Tags = append(o.Tags, tags...) }
}

// WithMetadata adds a metadata entry.
func WithMetadata(key, value string) JoinOption {
	return func(o *JoinOptions) {
		if o.Metadata == nil {
			o.Metadata = make(map[string]string)
		}
		o.Metadata[key] = value
	}
}

// WithID sets the registration ID.
func WithID(id string) JoinOption {
	return func(o *JoinOptions) { o.ID = id }
}

// ApplyJoinOptions folds opts into JoinOptions with a default weight of 1.
func ApplyJoinOptions(opts ...JoinOption) JoinOptions {
	o := JoinOptions{Weight: 1}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Weight <= 0 {
		o.Weight = 1
	}
	return o
}
