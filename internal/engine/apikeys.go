package engine

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"time"

	"servicehub/internal/domain"
	"servicehub/internal/engine/auth"
	"servicehub/internal/events"
	"servicehub/internal/repo"
)

// CreateAPIKey issues a key for a registered participant. The plain key is
// returned once; only its hash is stored.
func (e Engine) CreateAPIKey(ctx context.Context, actorID, name string) (string, domain.APIKey, error) {
	if actorID == "" {
		return "", domain.APIKey{}, auth.ErrActorRequired
	}
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", domain.APIKey{}, err
	}
	plain := "shk_" + hex.EncodeToString(raw)
	key := domain.APIKey{
		ID:        newID(""),
		ActorID:   actorID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(plain),
		CreatedAt: e.now().Format(time.RFC3339),
	}
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := e.Repo.UserRole(ctx, tx, actorID); err != nil {
			if errors.Is(err, repo.ErrNotFound) && e.Config.IsCatalogAdmin(actorID) {
				err = nil
			}
			if err != nil {
				return err
			}
		}
		if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, "api_key.created", events.KindAPIKey, key.ID, actorID, events.EventPayload{"name": name})
	})
	if err != nil {
		return "", domain.APIKey{}, err
	}
	return plain, key, nil
}

func (e Engine) ListAPIKeys(ctx context.Context, actorID string) ([]domain.APIKey, error) {
	if actorID == "" {
		return nil, auth.ErrActorRequired
	}
	return e.Repo.ListAPIKeys(ctx, actorID)
}

// RevokeAPIKey deletes one of the actor's keys.
func (e Engine) RevokeAPIKey(ctx context.Context, id, actorID string) error {
	keys, err := e.ListAPIKeys(ctx, actorID)
	if err != nil {
		return err
	}
	owned := false
	for _, k := range keys {
		if k.ID == id {
			owned = true
			break
		}
	}
	if !owned {
		return repo.ErrNotFound
	}
	return e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.DeleteAPIKey(ctx, tx, id); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, "api_key.revoked", events.KindAPIKey, id, actorID, nil)
	})
}
