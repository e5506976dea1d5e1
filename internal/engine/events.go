package engine

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"

	"assetline/internal/apperr"
	"assetline/internal/domain"
	"assetline/internal/events"
	"assetline/internal/repo"
)

// ListEvents returns the caller's event log.
func (e Engine) ListEvents(ctx context.Context, userID string, f repo.EventFilters) ([]domain.Event, error) {
	if err := requireCaller(userID); err != nil {
		return nil, err
	}
	f.UserID = userID
	var res []domain.Event
	err := e.read(ctx, "list events", func(tx *sql.Tx) error {
		var err error
		res, err = e.Repo.ListEvents(ctx, tx, f)
		return err
	})
	return res, err
}

// CreateAPIKey issues a key for userID. The plaintext is returned once and
// only its hash is stored.
func (e Engine) CreateAPIKey(ctx context.Context, userID, name string) (domain.APIKey, string, error) {
	if err := requireCaller(userID); err != nil {
		return domain.APIKey{}, "", err
	}
	plain := "al_" + strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
	key := domain.APIKey{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      strings.TrimSpace(name),
		KeyHash:   repo.HashAPIKey(plain),
		CreatedAt: e.nowString(),
	}
	err := e.write(ctx, "create api key", nil, func(tx *sql.Tx) error {
		if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.APIKeyCreated, userID, "api_key", key.ID, userID, events.EventPayload{"name": key.Name})
	})
	if err != nil {
		return domain.APIKey{}, "", err
	}
	return key, plain, nil
}

func (e Engine) ListAPIKeys(ctx context.Context, userID string) ([]domain.APIKey, error) {
	if err := requireCaller(userID); err != nil {
		return nil, err
	}
	keys, err := e.Repo.ListAPIKeys(ctx, userID)
	if err != nil {
		return nil, e.normalize("list api keys", err)
	}
	return keys, nil
}

func (e Engine) RevokeAPIKey(ctx context.Context, userID, id string) error {
	if err := requireCaller(userID); err != nil {
		return err
	}
	if err := e.Repo.DeleteAPIKey(ctx, userID, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return apperr.NotFound("api key %s not found", id)
		}
		return e.normalize("revoke api key", err)
	}
	return nil
}

// ResolveAPIKey maps a presented key onto its owner.
func (e Engine) ResolveAPIKey(ctx context.Context, key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", apperr.New(apperr.KindUnauthenticated, "api key required")
	}
	k, err := e.Repo.GetAPIKeyByHash(ctx, repo.HashAPIKey(key))
	if errors.Is(err, repo.ErrNotFound) {
		return "", apperr.New(apperr.KindUnauthenticated, "invalid api key")
	}
	if err != nil {
		return "", e.normalize("resolve api key", err)
	}
	return k.UserID, nil
}
