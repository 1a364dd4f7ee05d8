package servicebus

import (
	"context"
	"errors"
	"fmt"
	"os/user"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/coregx/servicebus/model"
)

// Well-known principals granted access to newly created queues.
const (
	PrincipalAdministrators = "Administrators"
	PrincipalEveryone       = "Everyone"
)

// QueueOptions describes a queue to create or retrieve.
type QueueOptions struct {
	Path               string // Full queue path (see FormatPath)
	Transactional      bool   // Require a transactional queue
	ExclusiveRead      bool   // Open with the exclusive-read lock
	UseConnectionCache bool   // Allow the transport to cache the connection
	Description        string // Queue label applied after open
	MaxSizeKB          int64  // Maximum queue size applied after open, 0 keeps the current value
}

// Validate checks the queue options.
func (o QueueOptions) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.Path, validation.Required, validation.Length(1, MaxPathLength)),
		validation.Field(&o.MaxSizeKB, validation.Min(int64(0))),
	)
}

// QueueOption configures QueueOptions.
type QueueOption func(*QueueOptions) error

// AsTransactional requires the queue to be transactional.
func AsTransactional() QueueOption {
	return func(o *QueueOptions) error {
		o.Transactional = true
		return nil
	}
}

// WithExclusiveReadAccess opens the queue with the exclusive-read lock.
func WithExclusiveReadAccess() QueueOption {
	return func(o *QueueOptions) error {
		o.ExclusiveRead = true
		return nil
	}
}

// UseConnectionCache lets the transport cache the connection of the handle.
func UseConnectionCache() QueueOption {
	return func(o *QueueOptions) error {
		o.UseConnectionCache = true
		return nil
	}
}

// WithDescription sets the queue label.
func WithDescription(description string) QueueOption {
	return func(o *QueueOptions) error {
		o.Description = description
		return nil
	}
}

// WithMaxQueueSize caps the total body size stored in the queue.
func WithMaxQueueSize(maxSizeKB int64) QueueOption {
	return func(o *QueueOptions) error {
		if maxSizeKB < 0 {
			return fmt.Errorf("max queue size cannot be negative")
		}
		o.MaxSizeKB = maxSizeKB
		return nil
	}
}

// NewQueueOptions formats name into a path and applies opts.
func NewQueueOptions(name string, opts ...QueueOption) (QueueOptions, error) {
	if strings.TrimSpace(name) == "" {
		return QueueOptions{}, NewError(ErrCodeValidation, "queue name is required")
	}

	o := QueueOptions{Path: FormatPath(name)}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return QueueOptions{}, NewErrorWithCause(ErrCodeConfiguration, "failed to apply queue option", err)
		}
	}

	if err := o.Validate(); err != nil {
		return QueueOptions{}, NewErrorWithCause(ErrCodeValidation, "invalid queue options", err)
	}

	return o, nil
}

// CreateQueue creates a new queue and opens it.
// Fails with ErrCodeQueueExists if the queue already exists.
//
// Example:
//
//	h, err := servicebus.CreateQueue(ctx, transport, "orders",
//	    servicebus.AsTransactional(),
//	    servicebus.WithDescription("Order events"),
//	)
func CreateQueue(ctx context.Context, t Transport, name string, opts ...QueueOption) (*QueueHandle, error) {
	return createOrRetrieve(ctx, t, name, false, opts)
}

// TryCreateQueue creates the queue unless it exists, then opens it.
func TryCreateQueue(ctx context.Context, t Transport, name string, opts ...QueueOption) (*QueueHandle, error) {
	return createOrRetrieve(ctx, t, name, true, opts)
}

// RetrieveQueue opens an existing queue.
// Fails with ErrCodeQueueNotFound if the queue does not exist.
func RetrieveQueue(ctx context.Context, t Transport, name string, opts ...QueueOption) (*QueueHandle, error) {
	o, err := NewQueueOptions(name, opts...)
	if err != nil {
		return nil, err
	}

	exists, err := t.Exists(ctx, o.Path)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, NewError(ErrCodeQueueNotFound, fmt.Sprintf("unable to locate queue: %s", o.Path))
	}

	return openExisting(ctx, t, o)
}

func createOrRetrieve(ctx context.Context, t Transport, name string, tryCreate bool, opts []QueueOption) (*QueueHandle, error) {
	o, err := NewQueueOptions(name, opts...)
	if err != nil {
		return nil, err
	}

	exists, err := t.Exists(ctx, o.Path)
	if err != nil {
		return nil, err
	}

	if exists && !tryCreate {
		return nil, NewError(ErrCodeQueueExists,
			fmt.Sprintf("unable to create queue %s: queue already exists", o.Path))
	}

	if !exists {
		if err := createNew(ctx, t, o); err != nil {
			return nil, err
		}
	}

	return openExisting(ctx, t, o)
}

// createNew creates the queue and grants the default access rights.
func createNew(ctx context.Context, t Transport, o QueueOptions) error {
	h, err := t.Create(ctx, o.Path, o.Transactional)
	if err != nil {
		return err
	}

	acl := []struct {
		principal string
		rights    model.AccessRights
	}{
		{currentPrincipal(), model.RightFullControl},
		{PrincipalAdministrators, model.RightFullControl},
		{PrincipalEveryone, model.RightGenericRead | model.RightGenericWrite},
	}

	for _, entry := range acl {
		if entry.principal == "" {
			continue
		}
		if err := t.SetPermissions(ctx, h, entry.principal, entry.rights); err != nil {
			_ = t.Close(ctx, h)
			return err
		}
	}

	return t.Close(ctx, h)
}

// openExisting opens the queue, checks it against the options and applies
// the configurable properties.
func openExisting(ctx context.Context, t Transport, o QueueOptions) (*QueueHandle, error) {
	h, err := t.Open(ctx, o.Path, o.ExclusiveRead, o.UseConnectionCache)
	if err != nil {
		return nil, err
	}

	if o.Transactional && !h.Transactional {
		_ = t.Close(ctx, h)
		return nil, NewError(ErrCodeQueueConflict,
			fmt.Sprintf("queue %s is non-transactional but a transactional queue is required", o.Path))
	}

	if strings.TrimSpace(o.Description) == "" && o.MaxSizeKB <= 0 {
		return h, nil
	}

	props := QueueProperties{Label: h.Label, MaxSizeKB: h.MaxSizeKB}
	if strings.TrimSpace(o.Description) != "" {
		props.Label = o.Description
	}
	if o.MaxSizeKB > 0 {
		props.MaxSizeKB = o.MaxSizeKB
	}

	if err := t.Configure(ctx, h, props); err != nil {
		_ = t.Close(ctx, h)
		return nil, err
	}

	return h, nil
}

// currentPrincipal returns the OS account running the process.
func currentPrincipal() string {
	u, err := user.Current()
	if err != nil {
		return ""
	}
	return u.Username
}

// acquireQueue opens the queue an engine is bound to. Missing private queues are
// created when autoCreate is set.
func acquireQueue(ctx context.Context, t Transport, name string, autoCreate bool, opts ...QueueOption) (*QueueHandle, error) {
	path := FormatPath(name)
	if autoCreate && IsPrivatePath(path) {
		return TryCreateQueue(ctx, t, path, opts...)
	}
	return RetrieveQueue(ctx, t, path, opts...)
}

// closeHandles closes every non-nil handle and joins the errors.
func closeHandles(ctx context.Context, t Transport, handles ...*QueueHandle) error {
	var errs []error
	for _, h := range handles {
		if h == nil {
			continue
		}
		if err := t.Close(ctx, h); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
