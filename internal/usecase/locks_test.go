package usecase

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUserLocks_ReleasesEntries(t *testing.T) {
	l := newUserLocks()
	unlockA := l.Lock("a")
	unlockB := l.Lock("b")
	require.Equal(t, 2, l.size())

	unlockA()
	unlockB()
	require.Zero(t, l.size())
}

func TestUserLocks_MutualExclusionPerKey(t *testing.T) {
	l := newUserLocks()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.Lock("same")
			counter++
			unlock()
		}()
	}
	wg.Wait()

	require.Equal(t, 100, counter)
	require.Zero(t, l.size())
}
