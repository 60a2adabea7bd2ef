package store

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/capitalize-ai/funnel-platform/internal/model"
)

const kindSession = "session"

// PutSession writes a chat session record.
func (s *Store) PutSession(ctx context.Context, sess *model.ChatSession) error {
	return s.putJSON(ctx, key(kindSession, sess.TenantID, sess.ID), sess)
}

// GetSession reads one chat session for the tenant.
func (s *Store) GetSession(ctx context.Context, tenantID, id string) (*model.ChatSession, error) {
	var sess model.ChatSession
	if err := s.getJSON(ctx, key(kindSession, tenantID, id), &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// ListSessions returns every chat session for the tenant, newest first.
func (s *Store) ListSessions(ctx context.Context, tenantID string) ([]model.ChatSession, error) {
	var out []model.ChatSession
	err := s.scanJSON(ctx, keyPrefix(kindSession, tenantID), func(val []byte) error {
		var sess model.ChatSession
		if err := json.Unmarshal(val, &sess); err != nil {
			return err
		}
		out = append(out, sess)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out, nil
}

// UpdateSession applies fn to the stored session inside one transaction and
// writes the result back.
func (s *Store) UpdateSession(ctx context.Context, tenantID, id string, fn func(*model.ChatSession) error) (*model.ChatSession, error) {
	var sess model.ChatSession
	err := s.updateJSON(ctx, key(kindSession, tenantID, id), &sess, func() error {
		return fn(&sess)
	})
	if err != nil {
		return nil, err
	}
	return &sess, nil
}
