package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/CerberoGS/CATAI-sub000/internal/ai"
	appErr "github.com/CerberoGS/CATAI-sub000/internal/pkg/errors"
	"github.com/CerberoGS/CATAI-sub000/internal/pkg/secretbox"
)

const (
	clientCacheSize = 256
	clientCacheTTL  = 30 * time.Minute
)

// ClientResolver picks the assistant client for a user: the user's own key
// when one is stored, otherwise the server client.
type ClientResolver struct {
	settings *SettingsService
	provider string
	args     interface{}
	fallback ai.IAssistantClient
	cache    *expirable.LRU[string, ai.IAssistantClient]
	build    func(name string, args interface{}) (ai.IAssistantClient, error)
}

func NewClientResolver(settings *SettingsService, provider string, args interface{}, fallback ai.IAssistantClient) *ClientResolver {
	return &ClientResolver{
		settings: settings,
		provider: provider,
		args:     args,
		fallback: fallback,
		cache:    expirable.NewLRU[string, ai.IAssistantClient](clientCacheSize, nil, clientCacheTTL),
		build:    ai.NewAssistantClient,
	}
}

func (r *ClientResolver) ClientFor(ctx context.Context, userID string) (ai.IAssistantClient, error) {
	apiKey, err := r.settings.APIKey(ctx, userID, r.provider)
	if err != nil {
		if errors.Is(err, appErr.ErrNotFound) {
			return r.serverClient()
		}
		if errors.Is(err, secretbox.ErrOpen) {
			logutil.GetLogger(ctx).Warn("stored api key unreadable, using server key",
				zap.String("user_id", userID), zap.String("provider", r.provider))
			return r.serverClient()
		}
		return nil, err
	}
	cacheKey := userID + ":" + secretbox.Fingerprint(apiKey)
	if client, ok := r.cache.Get(cacheKey); ok {
		return client, nil
	}
	args, err := withAPIKey(r.args, apiKey)
	if err != nil {
		return nil, err
	}
	client, err := r.build(r.provider, args)
	if err != nil {
		return nil, fmt.Errorf("build %s client: %w", r.provider, err)
	}
	r.cache.Add(cacheKey, client)
	return client, nil
}

func (r *ClientResolver) serverClient() (ai.IAssistantClient, error) {
	if r.fallback == nil {
		return nil, appErr.ErrNoAPIKey
	}
	return r.fallback, nil
}

// withAPIKey copies the provider config and swaps in apiKey.
func withAPIKey(args interface{}, apiKey string) (map[string]interface{}, error) {
	out := map[string]interface{}{}
	if args != nil {
		raw, err := json.Marshal(args)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, err
		}
		if out == nil {
			out = map[string]interface{}{}
		}
	}
	out["api_key"] = apiKey
	return out, nil
}
