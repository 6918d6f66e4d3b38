package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func sampleRun(id string, started time.Time) Run {
	return Run{
		ID:              id,
		Started:         started,
		Finished:        started.Add(90 * time.Second),
		DataDir:         "/data/karts",
		ArtifactPath:    "/model/kart.kart",
		Labels:          []string{"Cheep_Charge", "B_Dasher", "Flame_Flyer"},
		TrainSamples:    24,
		ValSamples:      6,
		EpochsRun:       5,
		BestEpoch:       2,
		StoppedEarly:    true,
		FinalLoss:       0.4,
		FinalAccuracy:   0.8,
		BestValLoss:     0.5,
		BestValAccuracy: 0.83,
		History:         json.RawMessage(`{"epochs":[]}`),
	}
}

func TestRecordAndGetRun(t *testing.T) {
	l := openTemp(t)
	ctx := context.Background()
	want := sampleRun("r1", time.Unix(1700000000, 0))
	require.NoError(t, l.RecordRun(ctx, want))

	got, err := l.GetRun(ctx, "r1")
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("run mismatch (-want +got):\n%s", diff)
	}

	_, err = l.GetRun(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRecordRun_Validation(t *testing.T) {
	l := openTemp(t)
	ctx := context.Background()
	assert.Error(t, l.RecordRun(ctx, Run{}))

	r := sampleRun("dup", time.Unix(1, 0))
	require.NoError(t, l.RecordRun(ctx, r))
	assert.Error(t, l.RecordRun(ctx, r), "duplicate id")
}

func TestListRuns_NewestFirst(t *testing.T) {
	l := openTemp(t)
	ctx := context.Background()
	base := time.Unix(1700000000, 0)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, l.RecordRun(ctx, sampleRun(id, base.Add(time.Duration(i)*time.Hour))))
	}
	runs, err := l.ListRuns(ctx, 0)
	require.NoError(t, err)
	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"c", "b", "a"}, ids)

	runs, err = l.ListRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestEvaluations(t *testing.T) {
	l := openTemp(t)
	ctx := context.Background()
	id1, err := l.RecordEvaluation(ctx, Evaluation{At: time.Unix(10, 0), ArtifactPath: "a.kart", DataDir: "d", Samples: 9, Loss: 0.3, Accuracy: 0.9})
	require.NoError(t, err)
	_, err = l.RecordEvaluation(ctx, Evaluation{At: time.Unix(20, 0), ArtifactPath: "b.kart", DataDir: "d", Samples: 3, Loss: 1, Accuracy: 0.33})
	require.NoError(t, err)

	all, err := l.ListEvaluations(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "b.kart", all[0].ArtifactPath)

	only, err := l.ListEvaluations(ctx, "a.kart")
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.Equal(t, id1, only[0].ID)
	assert.Equal(t, 9, only[0].Samples)
}

func TestOpenReappliesSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	l, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, l.RecordRun(context.Background(), sampleRun("keep", time.Unix(5, 0))))
	require.NoError(t, l.Close())

	l, err = Open(path)
	require.NoError(t, err)
	defer l.Close()
	runs, err := l.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	v, dirty, err := l.SchemaVersion()
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(2), v)
}
