package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/PLUTO-NIX/slack-to-obsidian/internal/models"
)

const (
	// KeyPrefix is shared by every todo record key
	KeyPrefix = "todo:"
	// WrittenTTL is the lifetime of a record once the client has written it
	WrittenTTL = 7 * 24 * time.Hour
	// MetaStatus is the metadata tag mirroring the record status
	MetaStatus = "status"
)

// MakeKey builds the record key for a Slack message
func MakeKey(channelID, messageTs string) string {
	return KeyPrefix + channelID + ":" + messageTs
}

// Entry is a stored record together with its key
type Entry struct {
	Key  string
	Todo *models.Todo
}

// TodoStore reads and writes todo records on a KV
type TodoStore struct {
	kv KV
}

// NewTodoStore creates a todo store backed by kv
func NewTodoStore(kv KV) *TodoStore {
	return &TodoStore{kv: kv}
}

// Ping checks the underlying KV
func (s *TodoStore) Ping(ctx context.Context) error {
	return s.kv.Ping(ctx)
}

// Put stores todo under key. Written records expire after WrittenTTL, all
// other statuses are kept indefinitely.
func (s *TodoStore) Put(ctx context.Context, key string, todo *models.Todo) error {
	if todo == nil {
		return fmt.Errorf("cannot store nil todo under %s", key)
	}

	value, err := json.Marshal(todo)
	if err != nil {
		return fmt.Errorf("failed to encode todo %s: %w", key, err)
	}

	var ttl time.Duration
	if todo.Status == models.TodoStatusWritten {
		ttl = WrittenTTL
	}

	meta := map[string]string{MetaStatus: string(todo.Status)}
	if err := s.kv.Put(ctx, key, value, ttl, meta); err != nil {
		return fmt.Errorf("failed to store todo: %w", err)
	}
	return nil
}

// Get returns the record under key, or nil when there is none
func (s *TodoStore) Get(ctx context.Context, key string) (*models.Todo, error) {
	value, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load todo: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var todo models.Todo
	if err := json.Unmarshal(value, &todo); err != nil {
		return nil, fmt.Errorf("failed to decode todo %s: %w", key, err)
	}
	return &todo, nil
}

// ListPending returns every record whose status is pending or updated.
// Keys tagged with another status are skipped without a fetch. Untagged keys
// are fetched and judged by the record itself, as is every tagged candidate,
// so a stale tag never leaks a written record.
func (s *TodoStore) ListPending(ctx context.Context) ([]Entry, error) {
	keys, err := s.kv.List(ctx, KeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list todos: %w", err)
	}

	entries := make([]Entry, 0, len(keys))
	for _, k := range keys {
		if status, tagged := k.Meta[MetaStatus]; tagged && !models.TodoStatus(status).IsPending() {
			continue
		}

		todo, err := s.Get(ctx, k.Name)
		if err != nil {
			return nil, err
		}
		if todo == nil || !todo.Status.IsPending() {
			continue
		}
		entries = append(entries, Entry{Key: k.Name, Todo: todo})
	}
	return entries, nil
}

// BackfillMetadata rewrites every record stored without a status tag so
// later listings can filter it without a fetch. It returns the number of
// records rewritten.
func (s *TodoStore) BackfillMetadata(ctx context.Context) (int, error) {
	keys, err := s.kv.List(ctx, KeyPrefix)
	if err != nil {
		return 0, fmt.Errorf("failed to list todos: %w", err)
	}

	count := 0
	for _, k := range keys {
		if _, tagged := k.Meta[MetaStatus]; tagged {
			continue
		}

		todo, err := s.Get(ctx, k.Name)
		if err != nil {
			return count, err
		}
		if todo == nil {
			continue
		}
		if err := s.Put(ctx, k.Name, todo); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}
