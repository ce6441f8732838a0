// Package firestore opens the Firestore client and exposes typed collections whose errors
// satisfy repositories.RepositoryError.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/spikeboom/love-cosmetics-website-sub000/internal/platform/config"
)

// ErrClosed is returned once Close has been called.
var ErrClosed = errors.New("firestore: client is closed")

// Client owns the Firestore connection shared by every collection.
type Client struct {
	fs *firestore.Client

	mu     sync.RWMutex
	closed bool
}

type openSettings struct {
	dialTimeout time.Duration
	clientOpts  []option.ClientOption
}

type OpenOption func(*openSettings)

func WithDialTimeout(d time.Duration) OpenOption {
	return func(s *openSettings) {
		if d > 0 {
			s.dialTimeout = d
		}
	}
}

func WithClientOptions(opts ...option.ClientOption) OpenOption {
	return func(s *openSettings) { s.clientOpts = append(s.clientOpts, opts...) }
}

// Open dials Firestore. The project falls back to GOOGLE_CLOUD_PROJECT and the emulator
// host to FIRESTORE_EMULATOR_HOST; with an emulator the connection is unauthenticated.
func Open(ctx context.Context, cfg config.FirestoreConfig, opts ...OpenOption) (*Client, error) {
	s := openSettings{dialTimeout: 10 * time.Second}
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}

	project := firstSet(cfg.ProjectID, os.Getenv("GOOGLE_CLOUD_PROJECT"))
	if project == "" {
		return nil, errors.New("firestore: project id is required")
	}
	clientOpts := append([]option.ClientOption(nil), s.clientOpts...)
	if host := firstSet(cfg.EmulatorHost, os.Getenv("FIRESTORE_EMULATOR_HOST")); host != "" {
		clientOpts = append(clientOpts,
			option.WithEndpoint(host),
			option.WithoutAuthentication(),
			option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}

	dialCtx, cancel := context.WithTimeout(ctx, s.dialTimeout)
	defer cancel()
	fs, err := firestore.NewClient(dialCtx, project, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("firestore: create client: %w", err)
	}
	return &Client{fs: fs}, nil
}

func (c *Client) raw() (*firestore.Client, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, ErrClosed
	}
	return c.fs, nil
}

// Ping reads a sentinel document. NotFound still proves the database answered.
func (c *Client) Ping(ctx context.Context) error {
	fs, err := c.raw()
	if err != nil {
		return err
	}
	_, err = fs.Collection("_health").Doc("ping").Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil
	}
	return WrapError("firestore.ping", err)
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.fs.Close()
}

func firstSet(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
