package service

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/lstlabs/vaultgate/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournalWritesJSONL(t *testing.T) {
	dir := t.TempDir()
	svc, err := NewJournalService(dir, 16, 16, nil, nil)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		svc.Emit(model.NewEvent(model.EventDepositAccepted, "op", map[string]string{
			"n": strconv.Itoa(i),
		}))
	}
	svc.Close()

	files, err := filepath.Glob(filepath.Join(dir, "journal-*.jsonl"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	f, err := os.Open(files[0])
	require.NoError(t, err)
	defer f.Close()

	lines := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e model.Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		assert.Equal(t, model.EventDepositAccepted, e.Type)
		lines++
	}
	assert.Equal(t, 5, lines)
}

func TestJournalListFromRing(t *testing.T) {
	dir := t.TempDir()
	svc, err := NewJournalService(dir, 16, 16, nil, nil)
	require.NoError(t, err)
	defer svc.Close()

	svc.Emit(model.NewEvent(model.EventDepositAccepted, "op", nil))
	svc.Emit(model.NewEvent(model.EventUnstakeRequested, "op", nil))
	svc.Emit(model.NewEvent(model.EventDepositAccepted, "op", nil))

	all := mustList(t, svc, "", 10)
	require.Len(t, all, 3)
	assert.Equal(t, model.EventDepositAccepted, all[0].Type, "newest first")

	deposits := mustList(t, svc, string(model.EventDepositAccepted), 10)
	assert.Len(t, deposits, 2)
}

func TestEventRingOverwritesOldest(t *testing.T) {
	r := newEventRing(3)
	var ids []string
	for i := 0; i < 5; i++ {
		e := model.NewEvent(model.EventRateUpdated, "", nil)
		ids = append(ids, e.ID)
		r.Add(e)
	}

	out := r.List("", 10)
	require.Len(t, out, 3)
	assert.Equal(t, ids[4], out[0].ID)
	assert.Equal(t, ids[3], out[1].ID)
	assert.Equal(t, ids[2], out[2].ID)
}

func mustList(t *testing.T, svc *JournalService, eventType string, limit int) []*model.Event {
	t.Helper()
	out, err := svc.List(context.Background(), eventType, limit, nil, nil)
	require.NoError(t, err)
	return out
}
