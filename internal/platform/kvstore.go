package platform

import (
	"context"
	"fmt"
	"strconv"
)

// KeyValueStore is a small persistent map kept as workspace-level tags. All
// entries of one store share the tag kind "kv:<identifier>"; the tag name is
// the key and the tag value holds the entry.
type KeyValueStore struct {
	client *Client
	kind   string
}

func (c *Client) KeyValueStore(identifier string) *KeyValueStore {
	return &KeyValueStore{client: c, kind: "kv:" + identifier}
}

func (s *KeyValueStore) Kind() string { return s.kind }

func (s *KeyValueStore) query(key string) string {
	return fmt.Sprintf("kind %s and name %s", strconv.Quote(s.kind), strconv.Quote(key))
}

// Get returns the value stored under key. ok is false when the key is absent.
func (s *KeyValueStore) Get(ctx context.Context, key string) (map[string]any, bool, error) {
	tags, err := s.client.QueryTags(ctx, s.query(key))
	if err != nil {
		return nil, false, err
	}
	if len(tags) == 0 {
		return nil, false, nil
	}
	return tags[0].Value, true, nil
}

// Set replaces the value stored under key.
func (s *KeyValueStore) Set(ctx context.Context, key string, value map[string]any) error {
	if err := s.Delete(ctx, key); err != nil {
		return err
	}
	_, err := s.client.CreateTag(ctx, Tag{Kind: s.kind, Name: key, Value: value})
	return err
}

func (s *KeyValueStore) Delete(ctx context.Context, key string) error {
	tags, err := s.client.QueryTags(ctx, s.query(key))
	if err != nil {
		return err
	}
	for _, t := range tags {
		if err := s.client.DeleteTag(ctx, t.ID); err != nil {
			return err
		}
	}
	return nil
}

// Reset removes every entry of the store.
func (s *KeyValueStore) Reset(ctx context.Context) error {
	tags, err := s.client.QueryTags(ctx, fmt.Sprintf("kind %s", strconv.Quote(s.kind)))
	if err != nil {
		return err
	}
	for _, t := range tags {
		if err := s.client.DeleteTag(ctx, t.ID); err != nil {
			return err
		}
	}
	return nil
}
