package pollstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	cursorKeyPrefix = "orchard:poll:cursor:"
	eventKeyPrefix  = "orchard:poll:event:"

	// Cursors outlive several poll cycles; captured events only need to
	// survive the editor's listen window.
	cursorTTL = 7 * 24 * time.Hour
	eventTTL  = 15 * time.Minute
)

type RedisStorage struct {
	client redis.UniversalClient
}

func NewRedisStorage(ctx context.Context, url string) (*RedisStorage, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	err = client.Ping(ctx).Err()
	if err != nil {
		return nil, err
	}

	return &RedisStorage{client: client}, nil
}

func (s *RedisStorage) FilterNew(ctx context.Context, cursor string, itemIDs []string) ([]string, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}

	key := cursorKeyPrefix + cursor

	members := make([]any, len(itemIDs))
	for i, id := range itemIDs {
		members[i] = id
	}

	seen, err := s.client.SMIsMember(ctx, key, members...).Result()
	if err != nil {
		return nil, err
	}

	var fresh []string

	for i, isMember := range seen {
		if !isMember {
			fresh = append(fresh, itemIDs[i])
		}
	}

	if len(fresh) == 0 {
		return nil, nil
	}

	freshMembers := make([]any, len(fresh))
	for i, id := range fresh {
		freshMembers[i] = id
	}

	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, key, freshMembers...)
	pipe.Expire(ctx, key, cursorTTL)

	_, err = pipe.Exec(ctx)
	if err != nil {
		return nil, err
	}

	return fresh, nil
}

func (s *RedisStorage) CaptureEvent(ctx context.Context, key string, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return s.client.Set(ctx, eventKeyPrefix+key, data, eventTTL).Err()
}

func (s *RedisStorage) TakeEvent(ctx context.Context, key string) (map[string]any, error) {
	data, err := s.client.GetDel(ctx, eventKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}

		return nil, err
	}

	var payload map[string]any

	err = json.Unmarshal(data, &payload)
	if err != nil {
		return nil, err
	}

	return payload, nil
}

func (s *RedisStorage) Close() error {
	return s.client.Close()
}
