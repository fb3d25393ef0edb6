package ringbuf

import (
	"math/rand"
	"testing"
	"time"

	"codeberg.org/mutker/acmonitor/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRing_PushRead(t *testing.T) {
	r := New[int](4, Reject)

	for i := 0; i < 3; i++ {
		require.NoError(t, r.Push(i*10))
	}

	assert.Equal(t, 3, r.Len())
	assert.Equal(t, 4, r.Cap())
	assert.False(t, r.Full())

	for i := 0; i < 3; i++ {
		v, err := r.Read(i)
		require.NoError(t, err)
		assert.Equal(t, i*10, v)
	}

	_, err := r.Read(3)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrOutOfRange))

	_, err = r.Read(-1)
	assert.True(t, errors.HasCode(err, ErrOutOfRange))
}

func TestRing_OverwriteEvictsOldest(t *testing.T) {
	const capacity = 5
	r := New[int](capacity, Overwrite)

	for i := 0; i <= capacity; i++ {
		require.NoError(t, r.Push(i))
	}

	assert.Equal(t, capacity, r.Len())
	for i := 0; i < capacity; i++ {
		v, err := r.Read(i)
		require.NoError(t, err)
		assert.Equal(t, i+1, v, "element 0 must have been evicted")
	}
}

func TestRing_RejectWhenFull(t *testing.T) {
	fullCalls := 0
	r := New[int](3, Reject, OnFull(func(count int) {
		fullCalls++
		assert.Equal(t, 3, count)
	}))

	for i := 0; i < 3; i++ {
		require.NoError(t, r.Push(i))
	}
	assert.Equal(t, 1, fullCalls)

	for i := 0; i < 5; i++ {
		err := r.Push(99)
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, ErrCapacity))
	}
	assert.Equal(t, 1, fullCalls, "full diagnostic is raised per transition, not per rejected push")

	for i := 0; i < 3; i++ {
		v, err := r.Read(i)
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}

	// Leaving and re-entering the full state raises it again.
	require.NoError(t, r.Delete(1))
	require.NoError(t, r.Push(3))
	assert.Equal(t, 2, fullCalls)
}

func TestRing_DeleteTooMany(t *testing.T) {
	r := New[int](4, Overwrite)
	require.NoError(t, r.Push(1))
	require.NoError(t, r.Push(2))

	err := r.Delete(3)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrOutOfRange))
	assert.Equal(t, 2, r.Len(), "failed delete must not mutate")

	v, err := r.Read(0)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	require.NoError(t, r.Delete(2))
	assert.Equal(t, 0, r.Len())
}

func TestRing_LockTimeout(t *testing.T) {
	r := New[int](2, Overwrite, WithWait(5*time.Millisecond), WithDeleteWait(5*time.Millisecond))
	require.NoError(t, r.Push(7))

	require.True(t, r.mu.TryLock(0))

	err := r.Push(8)
	assert.True(t, errors.HasCode(err, ErrTimeout))

	_, err = r.Read(0)
	assert.True(t, errors.HasCode(err, ErrTimeout))

	err = r.Delete(1)
	assert.True(t, errors.HasCode(err, ErrTimeout))

	_, err = r.ConsumeWhile(func(int) bool { return true })
	assert.True(t, errors.HasCode(err, ErrTimeout))

	err = r.SnapshotInto(make([]int, 1))
	assert.True(t, errors.HasCode(err, ErrTimeout))

	r.mu.Unlock()

	assert.Equal(t, 1, r.Len())
	v, err := r.Read(0)
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestRing_SnapshotWraps(t *testing.T) {
	r := New[int](4, Overwrite)
	for i := 1; i <= 6; i++ {
		require.NoError(t, r.Push(i))
	}

	dst := make([]int, 4)
	require.NoError(t, r.SnapshotInto(dst))
	assert.Equal(t, []int{3, 4, 5, 6}, dst)
	assert.Equal(t, 4, r.Len(), "snapshot is non-destructive")

	err := r.SnapshotInto(make([]int, 5))
	assert.True(t, errors.HasCode(err, ErrBadBuffer))
}

func TestRing_ConsumeWhile(t *testing.T) {
	r := New[int](8, Overwrite)
	for i := 0; i < 6; i++ {
		require.NoError(t, r.Push(i))
	}

	n, err := r.ConsumeWhile(func(v int) bool { return v < 4 })
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, 2, r.Len())

	v, err := r.Read(0)
	require.NoError(t, err)
	assert.Equal(t, 4, v, "rejected element stays queued")
}

func TestRing_RandomOperationsMatchModel(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for _, policy := range []Policy{Overwrite, Reject} {
		for capacity := 1; capacity <= 9; capacity++ {
			r := New[int](capacity, policy)
			var model []int
			next := 0

			for step := 0; step < 500; step++ {
				if rng.Intn(3) > 0 {
					err := r.Push(next)
					switch {
					case len(model) < capacity:
						require.NoError(t, err)
						model = append(model, next)
					case policy == Overwrite:
						require.NoError(t, err)
						model = append(model[1:], next)
					default:
						assert.True(t, errors.HasCode(err, ErrCapacity))
					}
					next++
				} else {
					qty := rng.Intn(capacity + 2)
					err := r.Delete(qty)
					if qty > len(model) {
						assert.True(t, errors.HasCode(err, ErrOutOfRange))
					} else {
						require.NoError(t, err)
						model = model[qty:]
					}
				}

				require.Equal(t, len(model), r.Len())
				require.LessOrEqual(t, r.Len(), capacity)
				require.GreaterOrEqual(t, r.Len(), 0)
				for i, want := range model {
					got, err := r.Read(i)
					require.NoError(t, err)
					require.Equal(t, want, got)
				}
			}
		}
	}
}

func TestMutex_UnlockUnlockedPanics(t *testing.T) {
	m := NewMutex()
	assert.Panics(t, func() { m.Unlock() })

	require.True(t, m.TryLock(time.Millisecond))
	assert.False(t, m.TryLock(time.Millisecond))
	m.Unlock()
	assert.True(t, m.TryLock(0))
}
