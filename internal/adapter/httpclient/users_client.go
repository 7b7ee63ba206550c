package httpclient

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/aq2208/orders-service/internal/adapter/cache"
	"github.com/aq2208/orders-service/internal/apperr"
	domain "github.com/aq2208/orders-service/internal/entity"
	"github.com/aq2208/orders-service/internal/resilience"
)

// UsersClient verifies user existence against the users microservice.
// Reads are cache-aside: a hit short-circuits the network entirely; only a
// successful remote lookup is written back (failures are never cached).
type UsersClient struct {
	http     *http.Client
	baseURL  string
	pipeline *resilience.Pipeline
	cache    cache.Store
	ttl      time.Duration
	log      *slog.Logger
}

func NewUsersClient(hc *http.Client, baseURL string, p *resilience.Pipeline, store cache.Store, ttl time.Duration, log *slog.Logger) *UsersClient {
	return &UsersClient{
		http:     hc,
		baseURL:  baseURL,
		pipeline: p,
		cache:    store,
		ttl:      ttl,
		log:      log.With("component", "users-client"),
	}
}

func (c *UsersClient) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	key := cache.UserKey(userID)

	if raw, ok, err := c.cache.Get(ctx, key); err != nil {
		c.log.Warn("cache read failed, falling back to remote", "user_id", userID, "error", err)
	} else if ok {
		var u domain.User
		if jsonErr := json.Unmarshal([]byte(raw), &u); jsonErr == nil {
			return &u, nil
		}
		// Corrupt entry: treat as a miss.
	}

	var user *domain.User
	err := c.pipeline.Execute(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/gateway/users/"+userID, nil)
		if err != nil {
			return err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return resilience.StatusErr(resp.StatusCode)
		}

		var env envelope[domain.User]
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			return apperr.Wrap(apperr.KindUnexpected, "users API returned an unreadable body", err)
		}
		if !env.IsSuccess || env.Data == nil {
			return &apperr.Error{
				Kind:    apperr.KindUnexpected,
				Message: nonEmpty(env.Message, "users API returned an empty response"),
				Errors:  env.Errors,
			}
		}
		user = env.Data
		return nil
	})
	if err != nil {
		c.log.Warn("user lookup failed", "user_id", userID,
			"kind", apperr.KindOf(err).String(), "error", err.Error())
		return nil, err
	}

	if b, err := json.Marshal(user); err == nil {
		if err := c.cache.Set(ctx, key, string(b), c.ttl); err != nil {
			c.log.Warn("cache write failed", "user_id", userID, "error", err)
		}
	}
	return user, nil
}

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}
