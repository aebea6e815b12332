// Package auth acquires bearer tokens for an Entra-protected store API via
// the device code flow.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/AzureAD/microsoft-authentication-library-for-go/apps/cache"
	"github.com/AzureAD/microsoft-authentication-library-for-go/apps/public"
)

// DefaultAuthority is used when the config names no tenant-specific one.
const DefaultAuthority = "https://login.microsoftonline.com/common"

// Token is an OAuth2 access token.
type Token struct {
	AccessToken string
	ExpiresOn   time.Time
}

// DeviceCode authenticates via the device code flow, keeping tokens in an
// on-disk MSAL cache so repeated invocations stay silent.
type DeviceCode struct {
	client public.Client
	scopes []string

	mu          sync.Mutex
	cachedToken *Token
}

// NewDeviceCode creates a device code authenticator. clientID is required;
// an empty authority falls back to DefaultAuthority.
func NewDeviceCode(clientID, authority string, scopes []string) (*DeviceCode, error) {
	if clientID == "" {
		return nil, errors.New("auth: client_id is required")
	}
	if authority == "" {
		authority = DefaultAuthority
	}

	opts := []public.Option{public.WithAuthority(authority)}

	cacheFile, err := cacheFilePath()
	if err != nil {
		slog.Warn("could not determine token cache path", "error", err)
	} else {
		opts = append(opts, public.WithCache(&tokenCacheAccessor{path: cacheFile}))
	}

	client, err := public.New(clientID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create MSAL client: %w", err)
	}

	return &DeviceCode{
		client: client,
		scopes: scopes,
	}, nil
}

// GetToken acquires an access token, reusing cached credentials when valid.
func (d *DeviceCode) GetToken(ctx context.Context) (*Token, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cachedToken != nil && time.Now().Add(5*time.Minute).Before(d.cachedToken.ExpiresOn) {
		return d.cachedToken, nil
	}

	accounts, err := d.client.Accounts(ctx)
	if err != nil {
		slog.Debug("could not get cached accounts", "error", err)
	}

	for _, acct := range accounts {
		result, err := d.client.AcquireTokenSilent(ctx, d.scopes, public.WithSilentAccount(acct))
		if err == nil {
			d.cachedToken = &Token{
				AccessToken: result.AccessToken,
				ExpiresOn:   result.ExpiresOn,
			}
			return d.cachedToken, nil
		}
		slog.Debug("silent auth failed for account", "account", acct.PreferredUsername, "error", err)
	}

	slog.Info("no cached credentials, starting device code flow")
	token, err := d.acquireByDeviceCode(ctx)
	if err != nil {
		return nil, err
	}

	d.cachedToken = token
	return token, nil
}

// Bearer returns just the access token string, for store request headers.
func (d *DeviceCode) Bearer(ctx context.Context) (string, error) {
	token, err := d.GetToken(ctx)
	if err != nil {
		return "", err
	}
	return token.AccessToken, nil
}

// acquireByDeviceCode performs the interactive flow.
func (d *DeviceCode) acquireByDeviceCode(ctx context.Context) (*Token, error) {
	dc, err := d.client.AcquireTokenByDeviceCode(ctx, d.scopes)
	if err != nil {
		return nil, fmt.Errorf("start device code flow: %w", err)
	}

	fmt.Fprintf(os.Stderr, "\n"+
		"To sign in, use a web browser to open the page %s\n"+
		"and enter the code %s to authenticate.\n\n",
		dc.Result.VerificationURL,
		dc.Result.UserCode)

	result, err := dc.AuthenticationResult(ctx)
	if err != nil {
		return nil, fmt.Errorf("device code auth: %w", err)
	}

	return &Token{
		AccessToken: result.AccessToken,
		ExpiresOn:   result.ExpiresOn,
	}, nil
}

// tokenCacheAccessor implements cache.ExportReplace for MSAL token caching.
type tokenCacheAccessor struct {
	path string
}

func (t *tokenCacheAccessor) Replace(ctx context.Context, cache cache.Unmarshaler, hints cache.ReplaceHints) error {
	data, err := os.ReadFile(t.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	return cache.Unmarshal(data)
}

func (t *tokenCacheAccessor) Export(ctx context.Context, cache cache.Marshaler, hints cache.ExportHints) error {
	data, err := cache.Marshal()
	if err != nil {
		return err
	}

	dir := filepath.Dir(t.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	return os.WriteFile(t.path, data, 0600)
}

// cacheFilePath returns the path for the token cache file.
func cacheFilePath() (string, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, "calweave", "msal_token_cache.json"), nil
}
