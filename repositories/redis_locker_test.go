package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestRedisLocker_AcquireAndRelease(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	db, mock := redismock.NewClientMock()
	locker := NewRedisLocker(db, "worker-1", time.Minute, nil)

	mock.ExpectSetNX("import-lock:doc", "worker-1", time.Minute).SetVal(true)
	mock.ExpectEvalSha(releaseScript.Hash(), []string{"import-lock:doc"}, "worker-1").SetVal(int64(1))

	unlock, err := locker.Lock(context.TODO(), "doc")
	require.NoError(t, err)
	unlock()

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestRedisLocker_WaitsForHolder(t *testing.T) {
	db, mock := redismock.NewClientMock()
	locker := NewRedisLocker(db, "worker-1", time.Minute, nil)
	locker.interval = time.Millisecond

	mock.ExpectSetNX("import-lock:doc", "worker-1", time.Minute).SetVal(false)
	mock.ExpectSetNX("import-lock:doc", "worker-1", time.Minute).SetVal(false)
	mock.ExpectSetNX("import-lock:doc", "worker-1", time.Minute).SetVal(true)
	mock.ExpectEvalSha(releaseScript.Hash(), []string{"import-lock:doc"}, "worker-1").SetVal(int64(1))

	unlock, err := locker.Lock(context.TODO(), "doc")
	require.NoError(t, err)
	unlock()

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestRedisLocker_ContextDone(t *testing.T) {
	db, mock := redismock.NewClientMock()
	locker := NewRedisLocker(db, "worker-1", time.Minute, nil)
	locker.interval = time.Hour

	mock.ExpectSetNX("import-lock:doc", "worker-1", time.Minute).SetVal(false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := locker.Lock(ctx, "doc")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRedisLocker_Error(t *testing.T) {
	db, mock := redismock.NewClientMock()
	locker := NewRedisLocker(db, "worker-1", time.Minute, nil)

	mock.ExpectSetNX("import-lock:doc", "worker-1", time.Minute).SetErr(errors.New("redis error"))

	_, err := locker.Lock(context.TODO(), "doc")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "redis lock failure")
}

func TestRedisLocker_RenewEveryThirdOfTTL(t *testing.T) {
	db, _ := redismock.NewClientMock()
	assert.Equal(t, 40*time.Second, NewRedisLocker(db, "worker-1", 2*time.Minute, nil).renewEvery)
	assert.Equal(t, lockPollInterval, NewRedisLocker(db, "worker-1", 0, nil).renewEvery)
}

func TestRedisLocker_Renew(t *testing.T) {
	db, mock := redismock.NewClientMock()
	locker := NewRedisLocker(db, "worker-1", time.Minute, nil)

	mock.ExpectEvalSha(renewScript.Hash(), []string{"import-lock:doc"}, "worker-1", int64(60000)).SetVal(int64(1))
	assert.NoError(t, locker.renew("import-lock:doc"))

	// another worker owns the key now
	mock.ExpectEvalSha(renewScript.Hash(), []string{"import-lock:doc"}, "worker-1", int64(60000)).SetVal(int64(0))
	assert.ErrorContains(t, locker.renew("import-lock:doc"), "no longer held")

	mock.ExpectEvalSha(renewScript.Hash(), []string{"import-lock:doc"}, "worker-1", int64(60000)).SetErr(errors.New("redis error"))
	assert.ErrorContains(t, locker.renew("import-lock:doc"), "redis lock renew failure")

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestRedisLocker_UnlockIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	db, mock := redismock.NewClientMock()
	locker := NewRedisLocker(db, "worker-1", time.Minute, nil)

	mock.ExpectSetNX("import-lock:doc", "worker-1", time.Minute).SetVal(true)
	mock.ExpectEvalSha(releaseScript.Hash(), []string{"import-lock:doc"}, "worker-1").SetVal(int64(1))

	unlock, err := locker.Lock(context.TODO(), "doc")
	require.NoError(t, err)
	unlock()
	unlock()

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestNewRedisClient(t *testing.T) {
	client := NewRedisClient("localhost:6379")
	assert.NotNil(t, client)
	client.Close()
}
