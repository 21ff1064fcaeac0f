package auth

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/dmitrijs2005/tenantkeeper/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"
)

type keySetOptions struct {
	URL    string
	Client *http.Client
	// FetchTimeout bounds one download, including the wait for an
	// unknown-kid refresh slot.
	FetchTimeout time.Duration
	// RefreshInterval schedules background refreshes. Zero disables them.
	RefreshInterval time.Duration
	// MinRefreshInterval spaces refreshes triggered by unknown kids.
	MinRefreshInterval time.Duration
}

// keySet is the issuer's remote JWK set. The first download happens in
// newKeySet; a token with an unknown kid refreshes the set at most once per
// MinRefreshInterval, and throttled lookups keep the cached keys.
type keySet struct {
	keyfunc keyfunc.Keyfunc
	cancel  context.CancelFunc

	mu      sync.Mutex
	lastErr error
}

// trackedStorage clears the recorded fetch failure whenever a download
// replaces the cached keys.
type trackedStorage struct {
	jwkset.Storage
	ks *keySet
}

func (s trackedStorage) KeyReplaceAll(ctx context.Context, given []jwkset.JWK) error {
	if err := s.Storage.KeyReplaceAll(ctx, given); err != nil {
		return err
	}
	s.ks.setErr(ctx, nil)
	return nil
}

func newKeySet(o keySetOptions) (*keySet, error) {
	ctx, cancel := context.WithCancel(context.Background())
	k := &keySet{cancel: cancel}

	remote, err := jwkset.NewStorageFromHTTP(o.URL, jwkset.HTTPClientStorageOptions{
		Client:                    o.Client,
		Ctx:                       ctx,
		HTTPTimeout:               o.FetchTimeout,
		NoErrorReturnFirstHTTPReq: true,
		RefreshErrorHandler:       k.setErr,
		RefreshInterval:           o.RefreshInterval,
		Storage:                   trackedStorage{Storage: jwkset.NewMemoryStorage(), ks: k},
	})
	if err != nil {
		cancel()
		return nil, err
	}

	storage, err := jwkset.NewHTTPClient(jwkset.HTTPClientOptions{
		HTTPURLs:          map[string]jwkset.Storage{o.URL: remote},
		RateLimitWaitMax:  o.FetchTimeout,
		RefreshUnknownKID: rate.NewLimiter(rate.Every(o.MinRefreshInterval), 1),
	})
	if err != nil {
		cancel()
		return nil, err
	}

	k.keyfunc, err = keyfunc.New(keyfunc.Options{Ctx: ctx, Storage: storage})
	if err != nil {
		cancel()
		return nil, err
	}
	return k, nil
}

func (k *keySet) setErr(_ context.Context, err error) {
	k.mu.Lock()
	k.lastErr = err
	k.mu.Unlock()
}

func (k *keySet) fetchErr() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.lastErr
}

// Keyfunc resolves the verification key for a token. A lookup that fails
// while the last download failed reports KeySetUnavailable.
func (k *keySet) Keyfunc(ctx context.Context) jwt.Keyfunc {
	resolve := k.keyfunc.KeyfuncCtx(ctx)
	return func(t *jwt.Token) (any, error) {
		key, err := resolve(t)
		if err == nil {
			return key, nil
		}
		if fetchErr := k.fetchErr(); fetchErr != nil {
			return nil, common.Wrap(common.KindKeySetUnavailable, "signing key set unavailable", fetchErr)
		}
		kid, _ := t.Header[jwkset.HeaderKID].(string)
		return nil, common.Wrap(common.KindSignatureInvalid, fmt.Sprintf("no usable signing key %q", kid), err)
	}
}

// Close stops background refreshes.
func (k *keySet) Close() {
	k.cancel()
}
