package notes

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func TestFileSinkAppendsTimestampedEntries(t *testing.T) {
	fs := afero.NewMemMapFs()
	sink := NewFileSink(fs, "/data/voxd/notes.md")
	sink.now = func() time.Time { return time.Date(2026, 3, 4, 9, 5, 0, 0, time.UTC) }

	path, err := sink.Append(context.Background(), "  buy milk \n")
	require.NoError(t, err)
	require.Equal(t, "/data/voxd/notes.md", path)

	_, err = sink.Append(context.Background(), "call bob")
	require.NoError(t, err)

	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	require.Equal(t, "## 2026-03-04 09:05\n\nbuy milk\n\n## 2026-03-04 09:05\n\ncall bob\n\n", string(data))
}

func TestFileSinkRejectsEmptyNote(t *testing.T) {
	sink := NewFileSink(afero.NewMemMapFs(), "/notes.md")

	_, err := sink.Append(context.Background(), " \n\t")
	require.ErrorIs(t, err, ErrEmptyNote)
}

func TestFileSinkReadOnlyFsFails(t *testing.T) {
	sink := NewFileSink(afero.NewReadOnlyFs(afero.NewMemMapFs()), "/notes.md")

	_, err := sink.Append(context.Background(), "note")
	require.Error(t, err)
}

type flakySink struct {
	failures int
	calls    int
}

func (f *flakySink) Append(_ context.Context, _ string) (string, error) {
	f.calls++
	if f.calls <= f.failures {
		return "", errors.New("disk busy")
	}
	return "/notes.md", nil
}

func TestRetryingSinkRecoversFromTransientFailures(t *testing.T) {
	flaky := &flakySink{failures: 2}
	sink := NewRetryingSink(flaky, 3, time.Millisecond, nil)

	path, err := sink.Append(context.Background(), "note")
	require.NoError(t, err)
	require.Equal(t, "/notes.md", path)
	require.Equal(t, 3, flaky.calls)
}

func TestRetryingSinkGivesUpAfterMaxTries(t *testing.T) {
	flaky := &flakySink{failures: 10}
	sink := NewRetryingSink(flaky, 2, time.Millisecond, nil)

	_, err := sink.Append(context.Background(), "note")
	require.Error(t, err)
	require.Contains(t, err.Error(), "disk busy")
	require.Equal(t, 2, flaky.calls)
}

func TestRetryingSinkDoesNotRetryEmptyNote(t *testing.T) {
	inner := NewFileSink(afero.NewMemMapFs(), "/notes.md")
	sink := NewRetryingSink(inner, 5, time.Millisecond, nil)

	_, err := sink.Append(context.Background(), "   ")
	require.ErrorIs(t, err, ErrEmptyNote)
}
