package containers

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestEnsureRunningCoalescesConcurrentCallers exercises the singleflight
// coalescing that EnsureRunning relies on, without touching the real
// docker binary: it drives N concurrent callers through the same
// Manager.startSf key and asserts the guarded section ran exactly once
// and every caller observed the same result (spec.md invariant 4).
func TestEnsureRunningCoalescesConcurrentCallers(t *testing.T) {
	m := NewManager()
	var calls int32
	var wg sync.WaitGroup
	release := make(chan struct{})
	results := make([]string, 20)

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, _, _ := m.startSf.Do("ws-1", func() (any, error) {
				atomic.AddInt32(&calls, 1)
				<-release
				return "cloudide-ws-ws-1", nil
			})
			results[i] = v.(string)
		}(i)
	}

	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, r := range results {
		assert.Equal(t, "cloudide-ws-ws-1", r)
	}
}

func TestEnsureRunningKeysByWorkspaceID(t *testing.T) {
	m := NewManager()
	var callsA, callsB int32

	va, _, _ := m.startSf.Do("ws-a", func() (any, error) {
		atomic.AddInt32(&callsA, 1)
		return "a", nil
	})
	vb, _, _ := m.startSf.Do("ws-b", func() (any, error) {
		atomic.AddInt32(&callsB, 1)
		return "b", nil
	})

	assert.Equal(t, "a", va)
	assert.Equal(t, "b", vb)
	assert.Equal(t, int32(1), atomic.LoadInt32(&callsA))
	assert.Equal(t, int32(1), atomic.LoadInt32(&callsB))
}

func TestShellQuoteEscapesSingleQuotes(t *testing.T) {
	assert.Equal(t, `'/workspaces/a'"'"'b'`, shellQuote("/workspaces/a'b"))
}

func TestExecPrefix(t *testing.T) {
	prefix := ExecPrefix("abc-123")
	assert.Equal(t, []string{"docker", "exec", "-it", "cloudide-ws-abc-123"}, prefix)
}

func TestLooksLikeSeccompFailure(t *testing.T) {
	assert.True(t, looksLikeSeccompFailure([]byte("Error: SECCOMP profile not found")))
	assert.False(t, looksLikeSeccompFailure([]byte("Error: no such image")))
}
