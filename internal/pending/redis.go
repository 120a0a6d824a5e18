// internal/pending/redis.go
package pending

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rovshanmuradov/topup-shop-bot/internal/chat"
)

const keyPrefix = "pending:"

// Redis keeps the tracker state in Redis so a restart does not orphan
// "please wait" messages. Every key expires after ttl.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedis(rdb *redis.Client, ttl time.Duration) *Redis {
	return &Redis{rdb: rdb, ttl: ttl}
}

// NewRedisClient connects and pings the server.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return rdb, nil
}

func waitKey(userID int64) string      { return keyPrefix + "wait:" + strconv.FormatInt(userID, 10) }
func ownerKey(paymentID string) string { return keyPrefix + "owner:" + paymentID }
func adminKey(paymentID string) string { return keyPrefix + "admin:" + paymentID }

func (r *Redis) SetWait(ctx context.Context, userID int64, ref chat.MessageRef) error {
	return r.rdb.Set(ctx, waitKey(userID), encodeRef(ref), r.ttl).Err()
}

func (r *Redis) TakeWait(ctx context.Context, userID int64) (chat.MessageRef, bool, error) {
	val, err := r.rdb.GetDel(ctx, waitKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return chat.MessageRef{}, false, nil
	}
	if err != nil {
		return chat.MessageRef{}, false, err
	}
	ref, err := decodeRef(val)
	if err != nil {
		return chat.MessageRef{}, false, err
	}
	return ref, true, nil
}

func (r *Redis) SetOwner(ctx context.Context, paymentID string, userID int64) error {
	return r.rdb.Set(ctx, ownerKey(paymentID), userID, r.ttl).Err()
}

func (r *Redis) TakeOwner(ctx context.Context, paymentID string) (int64, bool, error) {
	val, err := r.rdb.GetDel(ctx, ownerKey(paymentID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	userID, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("bad owner value %q: %w", val, err)
	}
	return userID, true, nil
}

func (r *Redis) AddAdminMessage(ctx context.Context, paymentID string, ref chat.MessageRef) error {
	key := adminKey(paymentID)
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, encodeRef(ref))
		pipe.Expire(ctx, key, r.ttl)
		return nil
	})
	return err
}

func (r *Redis) TakeAdminMessages(ctx context.Context, paymentID string) ([]chat.MessageRef, error) {
	key := adminKey(paymentID)
	var lrange *redis.StringSliceCmd
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		lrange = pipe.LRange(ctx, key, 0, -1)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return nil, err
	}

	refs := make([]chat.MessageRef, 0, len(lrange.Val()))
	for _, v := range lrange.Val() {
		ref, err := decodeRef(v)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func encodeRef(ref chat.MessageRef) string {
	return strconv.FormatInt(ref.ChatID, 10) + ":" + strconv.Itoa(ref.MessageID)
}

func decodeRef(s string) (chat.MessageRef, error) {
	chatPart, msgPart, ok := strings.Cut(s, ":")
	if !ok {
		return chat.MessageRef{}, fmt.Errorf("bad message reference %q", s)
	}
	chatID, err := strconv.ParseInt(chatPart, 10, 64)
	if err != nil {
		return chat.MessageRef{}, fmt.Errorf("bad chat id in %q: %w", s, err)
	}
	msgID, err := strconv.Atoi(msgPart)
	if err != nil {
		return chat.MessageRef{}, fmt.Errorf("bad message id in %q: %w", s, err)
	}
	return chat.MessageRef{ChatID: chatID, MessageID: msgID}, nil
}
