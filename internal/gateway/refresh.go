package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/felixgeelhaar/coffeeclub/internal/securestore"
)

// ErrNoRefreshToken is returned when a refresh is needed but none is stored.
var ErrNoRefreshToken = errors.New("gateway: no refresh token stored")

// refresh exchanges the stored refresh token for a new pair and returns the
// new access token. Concurrent callers share one exchange. A caller whose
// stale token has already been replaced gets the replacement without
// another round trip.
func (c *Client) refresh(ctx context.Context, stale string) (string, error) {
	if c.tokens == nil {
		return "", ErrNoRefreshToken
	}

	// The exchange outlives any single caller so waiters are not failed by
	// the first caller's cancellation. The HTTP client timeout still bounds it.
	ch := c.refreshGroup.DoChan("refresh", func() (any, error) {
		token, err := c.exchange(context.WithoutCancel(ctx), stale)
		c.observer.ObserveRefresh(err)
		return token, err
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (c *Client) exchange(ctx context.Context, stale string) (string, error) {
	current, ok, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return "", fmt.Errorf("gateway: read access token: %w", err)
	}
	if ok && current != "" && current != stale && !TokenExpired(current, c.now()) {
		return current, nil
	}

	refreshToken, ok, err := c.tokens.RefreshToken(ctx)
	if err != nil {
		return "", fmt.Errorf("gateway: read refresh token: %w", err)
	}
	if !ok || refreshToken == "" {
		return "", ErrNoRefreshToken
	}

	payload, err := json.Marshal(map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return "", err
	}

	resp, reqID, err := c.send(ctx, http.MethodPost, c.refreshPath, payload, "")
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", readHTTPError(resp, reqID)
	}

	var pair securestore.TokenPair
	err = json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&pair)
	resp.Body.Close()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if pair.AccessToken == "" {
		return "", fmt.Errorf("%w: refresh returned an empty access token", ErrDecode)
	}
	if pair.RefreshToken == "" {
		// Some backends rotate only the access token.
		pair.RefreshToken = refreshToken
	}

	if err := c.tokens.SaveTokens(ctx, pair); err != nil {
		return "", fmt.Errorf("gateway: save refreshed tokens: %w", err)
	}

	c.logger.InfoContext(ctx, "access token refreshed")
	return pair.AccessToken, nil
}
