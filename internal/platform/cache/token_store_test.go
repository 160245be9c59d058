package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *TokenStore) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewTokenStore(client, ttl)
}

func TestTokenStore_IssueAndConsume(t *testing.T) {
	_, store := setupTestStore(t, time.Hour)
	ctx := context.Background()
	accountID := uuid.New()

	token, err := store.Issue(ctx, accountID)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	got, err := store.Consume(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, accountID, got)
}

func TestTokenStore_SingleUse(t *testing.T) {
	_, store := setupTestStore(t, time.Hour)
	ctx := context.Background()

	token, err := store.Issue(ctx, uuid.New())
	require.NoError(t, err)
	_, err = store.Consume(ctx, token)
	require.NoError(t, err)

	_, err = store.Consume(ctx, token)
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestTokenStore_Expires(t *testing.T) {
	mr, store := setupTestStore(t, time.Minute)
	ctx := context.Background()

	token, err := store.Issue(ctx, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, time.Minute, mr.TTL(verificationPrefix+token))

	mr.FastForward(2 * time.Minute)

	_, err = store.Consume(ctx, token)
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestTokenStore_UnknownToken(t *testing.T) {
	_, store := setupTestStore(t, time.Hour)
	_, err := store.Consume(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestTokenStore_CorruptValue(t *testing.T) {
	mr, store := setupTestStore(t, time.Hour)
	require.NoError(t, mr.Set(verificationPrefix+"bad", "not-a-uuid"))

	_, err := store.Consume(context.Background(), "bad")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTokenNotFound)
}

func TestNewClient_BadURL(t *testing.T) {
	_, err := NewClient(context.Background(), "::not a url")
	assert.Error(t, err)
}

func TestNewClient_Miniredis(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewClient(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	defer client.Close()
	assert.NoError(t, client.Ping(context.Background()).Err())
}
