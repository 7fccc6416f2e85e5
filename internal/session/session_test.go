package session

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/dental-agenda/pkg/logging"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	return token
}

func TestSessionTokenAndUserID(t *testing.T) {
	ctx := context.Background()
	sess := New(NewMemoryStore(Record{}), logging.Discard())

	_, err := sess.Token(ctx)
	require.ErrorIs(t, err, ErrNoSession)
	_, err = sess.UserID(ctx)
	require.ErrorIs(t, err, ErrNoSession)

	require.NoError(t, sess.Login(ctx, "opaque-token", 12))
	token, err := sess.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "opaque-token", token)
	id, err := sess.UserID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)
}

func TestSessionUserIDFromClaim(t *testing.T) {
	ctx := context.Background()
	sess := New(NewMemoryStore(Record{Token: signedToken(t, jwt.MapClaims{"user_id": 33})}), logging.Discard())

	id, err := sess.UserID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(33), id)
}

func TestSessionUserIDMissing(t *testing.T) {
	ctx := context.Background()
	sess := New(NewMemoryStore(Record{Token: "not-a-jwt"}), logging.Discard())
	_, err := sess.UserID(ctx)
	require.ErrorIs(t, err, ErrNoUserID)
}

func TestLoginRejectsBlankToken(t *testing.T) {
	sess := New(NewMemoryStore(Record{}), logging.Discard())
	require.ErrorIs(t, sess.Login(context.Background(), "  ", 1), ErrNoSession)
}

func TestExpireClearsAndNotifies(t *testing.T) {
	ctx := context.Background()
	sess := New(NewMemoryStore(Record{Token: "tok", UserID: 1}), logging.Discard())

	var fired, removed atomic.Int32
	sess.OnUnauthorized(func() { fired.Add(1) })
	unsubscribe := sess.OnUnauthorized(func() { removed.Add(1) })
	unsubscribe()

	require.NoError(t, sess.Expire(ctx))
	assert.Equal(t, int32(1), fired.Load())
	assert.Equal(t, int32(0), removed.Load())

	_, err := sess.Token(ctx)
	require.ErrorIs(t, err, ErrNoSession)
}

func TestLogoutDoesNotNotify(t *testing.T) {
	ctx := context.Background()
	sess := New(NewMemoryStore(Record{Token: "tok"}), logging.Discard())
	fired := false
	sess.OnUnauthorized(func() { fired = true })

	require.NoError(t, sess.Logout(ctx))
	assert.False(t, fired)
	_, err := sess.Token(ctx)
	require.ErrorIs(t, err, ErrNoSession)
}

func TestRedisStoreRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ctx := context.Background()

	store := NewRedisStore(client, "front-desk", time.Hour)
	rec, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, rec)

	require.NoError(t, store.Save(ctx, Record{Token: "tok", UserID: 5}))
	assert.True(t, mr.Exists("agenda:session:front-desk"))
	assert.Equal(t, time.Hour, mr.TTL("agenda:session:front-desk"))

	rec, err = store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, Record{Token: "tok", UserID: 5}, *rec)

	// A second store on the same profile sees the same login.
	shared := New(NewRedisStore(client, "front-desk", 0), logging.Discard())
	token, err := shared.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok", token)

	require.NoError(t, shared.Expire(ctx))
	assert.False(t, mr.Exists("agenda:session:front-desk"))
}

func TestRedisStoreCorruptValue(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	require.NoError(t, mr.Set("agenda:session:default", "{not json"))

	_, err := NewRedisStore(client, "", 0).Load(context.Background())
	require.Error(t, err)
}

func TestUserIDFromToken(t *testing.T) {
	id, err := UserIDFromToken(signedToken(t, jwt.MapClaims{"user_id": "44"}))
	require.NoError(t, err)
	assert.Equal(t, int64(44), id)

	_, err = UserIDFromToken(signedToken(t, jwt.MapClaims{"sub": "x"}))
	require.ErrorIs(t, err, ErrNoUserID)
}

func TestContextHelpers(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	sess := New(NewMemoryStore(Record{Token: "tok"}), logging.Discard())
	ctx := WithContext(context.Background(), sess)
	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Same(t, sess, got)
}
