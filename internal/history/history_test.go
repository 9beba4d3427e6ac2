package history

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu      sync.Mutex
	records []Record
	delay   time.Duration
	failN   int
}

func (m *memStore) Save(_ context.Context, rec Record) error {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failN > 0 {
		m.failN--
		return errors.New("disk full")
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *memStore) all() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Record(nil), m.records...)
}

func sampleRecord(id string) Record {
	return Record{
		SessionID: id,
		Mode:      "standard",
		Provider:  "local:global",
		Outcome:   OutcomeDelivered,
		StartedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		TimingsMS: map[string]int64{"transcribe": 120, "transform": 300},
		TotalMS:   420,
		Input:     Text("mail me at jane@example.com"),
		Output:    Text("call 555-123-4567"),
		Error:     Text("none"),
	}
}

func shutdown(t *testing.T, l *Logger) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, l.Shutdown(ctx))
}

func TestSilentPersistsNothing(t *testing.T) {
	store := &memStore{}
	l := NewLogger(store, nil, Settings{Level: LevelSilent}, nil)
	l.Enqueue(sampleRecord("a"))
	shutdown(t, l)
	require.Empty(t, store.all())
}

func TestStatsOnlyNullsText(t *testing.T) {
	store := &memStore{}
	l := NewLogger(store, nil, Settings{Level: LevelStatsOnly, Scrub: true}, nil)
	l.Enqueue(sampleRecord("a"))
	shutdown(t, l)

	recs := store.all()
	require.Len(t, recs, 1)
	require.Nil(t, recs[0].Input)
	require.Nil(t, recs[0].Output)
	require.Nil(t, recs[0].Error)
	require.Equal(t, int64(420), recs[0].TotalMS)
	require.Equal(t, int64(120), recs[0].TimingsMS["transcribe"])
	require.NotEmpty(t, recs[0].ID)
}

func TestBalancedRedactsInput(t *testing.T) {
	store := &memStore{}
	l := NewLogger(store, nil, Settings{Level: LevelBalanced, Scrub: true}, nil)
	l.Enqueue(sampleRecord("a"))
	shutdown(t, l)

	rec := store.all()[0]
	require.Equal(t, Redacted, *rec.Input)
	require.Equal(t, "call [PHONE]", *rec.Output)
}

func TestFullKeepsTextAndScrubs(t *testing.T) {
	store := &memStore{}
	l := NewLogger(store, nil, Settings{Level: LevelFull, Scrub: true}, nil)
	l.Enqueue(sampleRecord("a"))
	shutdown(t, l)

	rec := store.all()[0]
	require.Equal(t, "mail me at [EMAIL]", *rec.Input)
	require.Equal(t, "call [PHONE]", *rec.Output)
}

func TestFullWithoutScrubKeepsVerbatim(t *testing.T) {
	store := &memStore{}
	l := NewLogger(store, nil, Settings{Level: LevelFull}, nil)
	l.Enqueue(sampleRecord("a"))
	shutdown(t, l)

	require.Equal(t, "mail me at jane@example.com", *store.all()[0].Input)
}

func TestSettingsChangeAppliesToLaterRecords(t *testing.T) {
	store := &memStore{}
	l := NewLogger(store, nil, Settings{Level: LevelFull}, nil)
	l.Enqueue(sampleRecord("a"))
	l.SetSettings(Settings{Level: LevelSilent})
	l.Enqueue(sampleRecord("b"))
	shutdown(t, l)

	recs := store.all()
	require.Len(t, recs, 1)
	require.Equal(t, "a", recs[0].SessionID)
	require.Equal(t, LevelSilent, l.Settings().Level)
}

func TestShutdownDrainsEveryRecordInOrder(t *testing.T) {
	store := &memStore{delay: time.Millisecond}
	l := NewLogger(store, nil, Settings{Level: LevelStatsOnly}, nil)
	for i := 0; i < 50; i++ {
		l.Enqueue(sampleRecord(fmt.Sprintf("s%02d", i)))
	}
	shutdown(t, l)

	recs := store.all()
	require.Len(t, recs, 50)
	for i, rec := range recs {
		require.Equal(t, fmt.Sprintf("s%02d", i), rec.SessionID)
	}
	require.Zero(t, l.Pending())
}

func TestEnqueueAfterShutdownIsDropped(t *testing.T) {
	store := &memStore{}
	l := NewLogger(store, nil, Settings{Level: LevelFull}, nil)
	shutdown(t, l)
	l.Enqueue(sampleRecord("late"))
	require.Empty(t, store.all())
	require.NoError(t, l.Shutdown(context.Background()))
}

func TestStoreFailureDoesNotStopWorker(t *testing.T) {
	store := &memStore{failN: 1}
	l := NewLogger(store, nil, Settings{Level: LevelFull}, nil)
	l.Enqueue(sampleRecord("a"))
	l.Enqueue(sampleRecord("b"))
	shutdown(t, l)

	recs := store.all()
	require.Len(t, recs, 1)
	require.Equal(t, "b", recs[0].SessionID)
}

func TestConcurrentEnqueue(t *testing.T) {
	store := &memStore{}
	l := NewLogger(store, nil, Settings{Level: LevelStatsOnly}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l.Enqueue(sampleRecord(fmt.Sprint(i)))
		}(i)
	}
	wg.Wait()
	shutdown(t, l)
	require.Len(t, store.all(), 20)
}

func TestMetricsLogKeepsLatestSamples(t *testing.T) {
	fs := afero.NewMemMapFs()
	m := NewMetricsLog(fs, "/state/voxd/metrics.json", 3)
	for i := 0; i < 5; i++ {
		require.NoError(t, m.Append(Sample{SessionID: fmt.Sprint(i), TotalMS: int64(i)}))
	}

	samples, err := m.Samples()
	require.NoError(t, err)
	require.Len(t, samples, 3)
	require.Equal(t, "2", samples[0].SessionID)
	require.Equal(t, "4", samples[2].SessionID)

	exists, err := afero.Exists(fs, "/state/voxd/metrics.json.tmp")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestMetricsLogRecoversFromCorruptFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/m.json", []byte("{not json"), 0o600))
	m := NewMetricsLog(fs, "/m.json", 10)
	require.NoError(t, m.Append(Sample{SessionID: "x"}))

	samples, err := m.Samples()
	require.NoError(t, err)
	require.Len(t, samples, 1)
}

func TestLoggerWritesMetricsSample(t *testing.T) {
	fs := afero.NewMemMapFs()
	m := NewMetricsLog(fs, "/metrics.json", 10)
	l := NewLogger(&memStore{}, m, Settings{Level: LevelSilent}, nil)
	l.Enqueue(sampleRecord("silent"))
	l.SetSettings(Settings{Level: LevelStatsOnly})
	l.Enqueue(sampleRecord("kept"))
	shutdown(t, l)

	samples, err := m.Samples()
	require.NoError(t, err)
	require.Len(t, samples, 1)
	require.Equal(t, "kept", samples[0].SessionID)
	require.Equal(t, int64(300), samples[0].TimingsMS["transform"])
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	first := sampleRecord("one")
	first.ID = "r1"
	first.Input = nil
	second := sampleRecord("two")
	second.ID = "r2"
	second.StartedAt = first.StartedAt.Add(time.Minute)
	second.ErrorCode = "BACKEND_TRANSIENT"

	require.NoError(t, store.Save(ctx, first))
	require.NoError(t, store.Save(ctx, second))

	recs, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, "two", recs[0].SessionID)
	require.Equal(t, "BACKEND_TRANSIENT", recs[0].ErrorCode)
	require.Nil(t, recs[1].Input)
	require.Equal(t, "call 555-123-4567", *recs[1].Output)
	require.Equal(t, int64(300), recs[1].TimingsMS["transform"])
	require.True(t, recs[1].StartedAt.Equal(first.StartedAt))

	recs, err = store.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("stats-only")
	require.NoError(t, err)
	require.Equal(t, LevelStatsOnly, lvl)

	lvl, err = ParseLevel(" FULL ")
	require.NoError(t, err)
	require.Equal(t, LevelFull, lvl)

	_, err = ParseLevel("loud")
	require.Error(t, err)
}

func TestScrub(t *testing.T) {
	require.Equal(t, "write [EMAIL] or [PHONE]", Scrub("write a.b+c@mail.example.org or +1 (555) 123-4567"))
	require.Equal(t, "nothing here", Scrub("nothing here"))
}

func TestPersistenceErrorUnwraps(t *testing.T) {
	cause := errors.New("locked")
	err := &PersistenceError{Op: "save", Err: cause}
	require.ErrorIs(t, err, cause)
	require.Equal(t, "history save: locked", err.Error())
}
