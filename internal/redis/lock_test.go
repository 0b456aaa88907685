package redisclient

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func testLocker(t *testing.T, ttl time.Duration) (Locker, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisDoctorLocker(client, ttl), client
}

func TestWithDoctorLockRunsCriticalSection(t *testing.T) {
	locker, _ := testLocker(t, 5*time.Second)

	ran := false
	err := locker.WithDoctorLock(context.Background(), uuid.New(), func(ctx context.Context) error {
		ran = true
		return nil
	})

	require.NoError(t, err)
	require.True(t, ran)
}

func TestWithDoctorLockRejectsConcurrentHolder(t *testing.T) {
	locker, _ := testLocker(t, 5*time.Second)
	doctorID := uuid.New()

	inside := make(chan struct{})
	release := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = locker.WithDoctorLock(context.Background(), doctorID, func(ctx context.Context) error {
			close(inside)
			<-release
			return nil
		})
	}()

	<-inside
	err := locker.WithDoctorLock(context.Background(), doctorID, func(ctx context.Context) error {
		t.Error("critical section must not run while lock is held")
		return nil
	})
	require.ErrorIs(t, err, ErrLockNotAcquired)

	close(release)
	wg.Wait()
}

func TestWithDoctorLockIsReleasedAfterFn(t *testing.T) {
	locker, _ := testLocker(t, 5*time.Second)
	doctorID := uuid.New()

	for i := 0; i < 3; i++ {
		err := locker.WithDoctorLock(context.Background(), doctorID, func(ctx context.Context) error {
			return nil
		})
		require.NoError(t, err)
	}
}

func TestWithDoctorLockIndependentDoctors(t *testing.T) {
	locker, _ := testLocker(t, 5*time.Second)

	inside := make(chan struct{})
	release := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = locker.WithDoctorLock(context.Background(), uuid.New(), func(ctx context.Context) error {
			close(inside)
			<-release
			return nil
		})
	}()

	<-inside
	// A different doctor's schedule is not blocked.
	err := locker.WithDoctorLock(context.Background(), uuid.New(), func(ctx context.Context) error {
		return nil
	})
	require.NoError(t, err)

	close(release)
	wg.Wait()
}

func TestWithDoctorLockDoesNotStealExpiredLock(t *testing.T) {
	locker, client := testLocker(t, 50*time.Millisecond)
	doctorID := uuid.New()

	// Simulate another holder acquiring the key after our token expired: the
	// scripted release must leave a foreign token in place.
	err := locker.WithDoctorLock(context.Background(), doctorID, func(ctx context.Context) error {
		return client.Set(ctx, "lock:doctor:"+doctorID.String(), "foreign-token", 0).Err()
	})
	require.NoError(t, err)

	val, err := client.Get(context.Background(), "lock:doctor:"+doctorID.String()).Result()
	require.NoError(t, err)
	require.Equal(t, "foreign-token", val)
}

func TestWithDoctorLockPropagatesFnError(t *testing.T) {
	locker, _ := testLocker(t, 5*time.Second)
	doctorID := uuid.New()

	wantErr := context.Canceled
	err := locker.WithDoctorLock(context.Background(), doctorID, func(ctx context.Context) error {
		return wantErr
	})
	require.ErrorIs(t, err, wantErr)

	// The lock is released on the error path too.
	err = locker.WithDoctorLock(context.Background(), doctorID, func(ctx context.Context) error {
		return nil
	})
	require.NoError(t, err)
}
