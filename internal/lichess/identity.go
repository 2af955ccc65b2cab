package lichess

import (
	"context"
	"sync"
)

// AccountFetcher is satisfied by *Client.
type AccountFetcher interface {
	Account(ctx context.Context) (*Account, error)
}

// Identity resolves the bot's own account once. A failed lookup is not
// cached, so the next caller retries.
type Identity struct {
	fetcher AccountFetcher

	mu   sync.Mutex
	acct *Account
}

func NewIdentity(f AccountFetcher) *Identity {
	return &Identity{fetcher: f}
}

func (i *Identity) Get(ctx context.Context) (Account, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.acct != nil {
		return *i.acct, nil
	}
	acct, err := i.fetcher.Account(ctx)
	if err != nil {
		return Account{}, err
	}
	i.acct = acct
	return *acct, nil
}

// ID returns the cached account id, or "" before the first successful Get.
func (i *Identity) ID() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.acct == nil {
		return ""
	}
	return i.acct.ID
}
