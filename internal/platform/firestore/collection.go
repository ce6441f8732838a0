package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

// Collection stores documents of type T, encoded with firestore struct tags.
type Collection[T any] struct {
	client *Client
	name   string

	txAttempts int
	txTimeout  time.Duration
}

func NewCollection[T any](client *Client, name string) *Collection[T] {
	return &Collection[T]{client: client, name: strings.TrimSpace(name), txAttempts: 5, txTimeout: 10 * time.Second}
}

func (c *Collection[T]) op(action string) string { return c.name + "." + action }

func (c *Collection[T]) doc(id string) (*firestore.DocumentRef, error) {
	if strings.TrimSpace(id) == "" {
		return nil, &Error{op: c.op("doc"), err: errors.New("document id is required")}
	}
	fs, err := c.client.raw()
	if err != nil {
		return nil, WrapError(c.op("connect"), err)
	}
	return fs.Collection(c.name).Doc(id), nil
}

// Create fails with a conflict when id already exists.
func (c *Collection[T]) Create(ctx context.Context, id string, value T) error {
	ref, err := c.doc(id)
	if err != nil {
		return err
	}
	_, err = ref.Create(ctx, value)
	return WrapError(c.op("create"), err)
}

func (c *Collection[T]) Get(ctx context.Context, id string) (T, error) {
	var out T
	ref, err := c.doc(id)
	if err != nil {
		return out, err
	}
	snap, err := ref.Get(ctx)
	if err != nil {
		return out, WrapError(c.op("get"), err)
	}
	if err := snap.DataTo(&out); err != nil {
		return out, fmt.Errorf("%s: decode %s: %w", c.op("get"), id, err)
	}
	return out, nil
}

// FindOne returns the id and data of the first document whose field equals value.
func (c *Collection[T]) FindOne(ctx context.Context, field string, value any) (string, T, error) {
	var out T
	fs, err := c.client.raw()
	if err != nil {
		return "", out, WrapError(c.op("connect"), err)
	}
	iter := fs.Collection(c.name).Where(field, "==", value).Limit(1).Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return "", out, NotFound(c.op("find"), fmt.Sprintf("no document with %s=%v", field, value))
	}
	if err != nil {
		return "", out, WrapError(c.op("find"), err)
	}
	if err := snap.DataTo(&out); err != nil {
		return "", out, fmt.Errorf("%s: decode %s: %w", c.op("find"), snap.Ref.ID, err)
	}
	return snap.Ref.ID, out, nil
}

// Replace reads the current document and writes merge(current) in one transaction. merge may
// run more than once when the transaction is retried. A missing document is not found.
func (c *Collection[T]) Replace(ctx context.Context, id string, merge func(current T) T) error {
	ref, err := c.doc(id)
	if err != nil {
		return err
	}
	fs, err := c.client.raw()
	if err != nil {
		return WrapError(c.op("connect"), err)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.txTimeout)
		defer cancel()
	}
	err = fs.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var current T
		if err := snap.DataTo(&current); err != nil {
			return fmt.Errorf("decode %s: %w", id, err)
		}
		return tx.Set(ref, merge(current))
	}, firestore.MaxAttempts(c.txAttempts))
	return WrapError(c.op("replace"), err)
}
