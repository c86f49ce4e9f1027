package caldav

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"

	"github.com/ldi/tasksync/pkg/models"
)

// Registry caches one connected Client per account.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client

	http   *http.Client
	logger *log.Logger
}

// NewRegistry creates a registry. httpClient may be nil; redirects are always
// handled by the Client, never by the transport.
func NewRegistry(httpClient *http.Client, logger *log.Logger) *Registry {
	hc := &http.Client{}
	if httpClient != nil {
		copied := *httpClient
		hc = &copied
	}
	hc.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Registry{
		clients: make(map[string]*Client),
		http:    hc,
		logger:  logger,
	}
}

// Connect resolves the account's principal and calendar home, verifies the
// principal and caches the resulting client, replacing any previous one.
func (r *Registry) Connect(ctx context.Context, acct *models.Account) (*Client, error) {
	l, err := layoutFor(acct.ServerType)
	if err != nil {
		return nil, err
	}

	c := &Client{
		accountID:  acct.ID,
		serverURL:  acct.ServerURL,
		username:   acct.Username,
		password:   acct.Password,
		token:      acct.Token,
		serverType: acct.ServerType,
		http:       r.http,
		logger:     r.logger,
	}
	if c.serverType == "" {
		c.serverType = models.ServerTypeGeneric
	}

	c.principalURL, c.calendarHome, err = l.locate(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("failed to connect account %s: %w", acct.ID, err)
	}
	if err := c.verifyPrincipal(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect account %s: %w", acct.ID, err)
	}

	r.mu.Lock()
	r.clients[acct.ID] = c
	r.mu.Unlock()

	r.logger.Printf("connected account %s (%s) principal=%s home=%s", acct.ID, c.serverType, c.principalURL, c.calendarHome)
	return c, nil
}

// Client returns the cached client for accountID.
func (r *Registry) Client(accountID string) (*Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[accountID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotConnected, accountID)
	}
	return c, nil
}

// Invalidate drops the cached client for accountID.
func (r *Registry) Invalidate(accountID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, accountID)
}

// Reconnect discards the cached client and connects again.
func (r *Registry) Reconnect(ctx context.Context, acct *models.Account) (*Client, error) {
	r.Invalidate(acct.ID)
	return r.Connect(ctx, acct)
}
