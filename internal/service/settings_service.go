package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/CerberoGS/CATAI-sub000/internal/model"
	appErr "github.com/CerberoGS/CATAI-sub000/internal/pkg/errors"
	"github.com/CerberoGS/CATAI-sub000/internal/pkg/secretbox"
	"github.com/CerberoGS/CATAI-sub000/internal/repo"
)

const maxPromptChars = 4000

var keyProviders = map[string]struct{}{
	"openai":     {},
	"gemini":     {},
	"openrouter": {},
}

type SettingsView struct {
	Providers        []string `json:"providers"`
	ExtractionPrompt string   `json:"extraction_prompt"`
}

type SettingsService struct {
	settings *repo.SettingsRepo
	box      *secretbox.Box
}

func NewSettingsService(settings *repo.SettingsRepo, box *secretbox.Box) *SettingsService {
	return &SettingsService{settings: settings, box: box}
}

func normalizeProvider(provider string) (string, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if _, ok := keyProviders[provider]; !ok {
		return "", appErr.ErrInvalid
	}
	return provider, nil
}

func (s *SettingsService) SetAPIKey(ctx context.Context, userID, provider, apiKey string) error {
	provider, err := normalizeProvider(provider)
	if err != nil {
		return err
	}
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return appErr.ErrInvalid
	}
	sealed, err := s.box.Seal(apiKey)
	if err != nil {
		return err
	}
	now := time.Now().Unix()
	return s.settings.UpsertKey(ctx, &model.UserAPIKey{
		UserID:   userID,
		Provider: provider,
		KeyEnc:   sealed,
		Ctime:    now,
		Mtime:    now,
	})
}

func (s *SettingsService) DeleteAPIKey(ctx context.Context, userID, provider string) error {
	provider, err := normalizeProvider(provider)
	if err != nil {
		return err
	}
	return s.settings.DeleteKey(ctx, userID, provider)
}

// APIKey returns the user's plaintext key for provider, or ErrNotFound.
func (s *SettingsService) APIKey(ctx context.Context, userID, provider string) (string, error) {
	key, err := s.settings.GetKey(ctx, userID, provider)
	if err != nil {
		return "", err
	}
	return s.box.Open(key.KeyEnc)
}

func (s *SettingsService) Get(ctx context.Context, userID string) (*SettingsView, error) {
	providers, err := s.settings.ListKeyProviders(ctx, userID)
	if err != nil {
		return nil, err
	}
	prompt, err := s.Prompt(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &SettingsView{Providers: providers, ExtractionPrompt: prompt}, nil
}

func (s *SettingsService) SetPrompt(ctx context.Context, userID, prompt string) error {
	prompt = strings.TrimSpace(prompt)
	if utf8.RuneCountInString(prompt) > maxPromptChars {
		return appErr.ErrInvalid
	}
	return s.settings.UpsertPrompt(ctx, userID, prompt)
}

// Prompt returns the user's custom extraction prompt, empty when unset.
func (s *SettingsService) Prompt(ctx context.Context, userID string) (string, error) {
	settings, err := s.settings.GetSettings(ctx, userID)
	if err != nil {
		if errors.Is(err, appErr.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return settings.ExtractionPrompt, nil
}
