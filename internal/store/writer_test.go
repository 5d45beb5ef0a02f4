package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionName(t *testing.T) {
	started := time.Date(2025, 7, 1, 9, 5, 3, 0, time.Local)
	assert.Equal(t, "session_20250701_090503_github", SessionName("github", started))
	assert.Equal(t, "session_20250701_090503_a-b", SessionName("a/b", started))
	assert.Equal(t, "session_20250701_090503_unknown", SessionName("", started))
}

func TestCreate_AppendAndRead(t *testing.T) {
	dataDir := t.TempDir()
	started := time.Date(2025, 7, 1, 9, 5, 3, 0, time.Local)

	w, err := Create(dataDir, "github", started)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dataDir, "session_20250701_090503_github"), w.Session().Dir)

	_, err = w.Append(DirectionRequest, `{"id":1,"method":"tools/list"}`)
	require.NoError(t, err)
	_, err = w.Append(DirectionResponse, "not json")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	reqs, corrupt, err := ReadPartition(w.Path(DirectionRequest))
	require.NoError(t, err)
	assert.Zero(t, corrupt)
	require.Len(t, reqs, 1)
	assert.Equal(t, "tools/list", reqs[0].Method)

	resps, _, err := ReadPartition(w.Path(DirectionResponse))
	require.NoError(t, err)
	require.Len(t, resps, 1)
	assert.False(t, resps[0].IsJSON)
	assert.Equal(t, "not json", resps[0].RawMessage)
}

func TestWriter_AppendAfterClose(t *testing.T) {
	w, err := Create(t.TempDir(), "svc", time.Now())
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = w.Append(DirectionRequest, "late")
	assert.True(t, errors.Is(err, ErrClosed))
}

func TestWriter_ConcurrentAppendsStayWhole(t *testing.T) {
	w, err := Create(t.TempDir(), "svc", time.Now())
	require.NoError(t, err)

	const workers, perWorker = 8, 50
	payload := strings.Repeat("x", 2048)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				line := fmt.Sprintf(`{"id":"%d-%d","method":"ping","params":{"pad":"%s"}}`, i, j, payload)
				if _, err := w.Append(DirectionRequest, line); err != nil {
					t.Error(err)
					return
				}
			}
		}(i)
	}
	wg.Wait()
	require.NoError(t, w.Close())

	recs, corrupt, err := ReadPartition(w.Path(DirectionRequest))
	require.NoError(t, err)
	assert.Zero(t, corrupt)
	assert.Len(t, recs, workers*perWorker)
}

func TestCreate_ReusesExistingDirectory(t *testing.T) {
	dataDir := t.TempDir()
	started := time.Now()

	w1, err := Create(dataDir, "svc", started)
	require.NoError(t, err)
	_, err = w1.Append(DirectionRequest, "first")
	require.NoError(t, err)
	require.NoError(t, w1.Close())

	w2, err := Create(dataDir, "svc", started)
	require.NoError(t, err)
	_, err = w2.Append(DirectionRequest, "second")
	require.NoError(t, err)
	require.NoError(t, w2.Close())

	data, err := os.ReadFile(w2.Path(DirectionRequest))
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "\n"))
}
