package artifacts_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"teanga/internal/artifacts"
	"teanga/internal/services"
	"teanga/internal/store"
	"teanga/internal/testsupport"
)

const episodeID = "rnag_barrscealta_20251017_1100"

func newStores(t *testing.T) (*artifacts.Store, *store.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	testsupport.NewEpisode(t, st, episodeID)
	return artifacts.NewStore(cfg, st, nil), st
}

func publish(t *testing.T, st *store.Store, stepName string, names ...string) {
	t.Helper()
	finished := time.Now().UTC()
	if err := st.CompleteStep(context.Background(), &store.StepRecord{
		EpisodeID:         episodeID,
		StepName:          stepName,
		Attempt:           1,
		Status:            store.StepSucceeded,
		ProducedArtifacts: names,
		StartedAt:         finished.Add(-time.Second),
		FinishedAt:        &finished,
	}); err != nil {
		t.Fatalf("CompleteStep failed: %v", err)
	}
}

func TestWriteThenExists(t *testing.T) {
	arts, st := newStores(t)
	ctx := context.Background()

	artifact, err := arts.Write(ctx, episodeID, artifacts.OriginalAudio, "download", func(w io.Writer) error {
		_, err := w.Write([]byte("audio-bytes"))
		return err
	})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if artifact.SizeBytes != int64(len("audio-bytes")) {
		t.Fatalf("unexpected size %d", artifact.SizeBytes)
	}
	if !strings.HasPrefix(artifact.Checksum, "sha256:") {
		t.Fatalf("unexpected checksum %q", artifact.Checksum)
	}

	// Not yet published: invisible to readers.
	ok, err := arts.Exists(ctx, episodeID, artifacts.OriginalAudio)
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if ok {
		t.Fatal("expected staged artifact to read as absent")
	}

	publish(t, st, "download", artifacts.OriginalAudio)

	ok, err = arts.Exists(ctx, episodeID, artifacts.OriginalAudio)
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !ok {
		t.Fatal("expected published artifact to exist")
	}

	data, got, err := arts.ReadFile(ctx, episodeID, artifacts.OriginalAudio)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "audio-bytes" {
		t.Fatalf("unexpected content %q", data)
	}
	if got.Checksum != artifact.Checksum {
		t.Fatalf("checksum drifted: %q vs %q", got.Checksum, artifact.Checksum)
	}
}

func TestWriteAtRecordsCustomPath(t *testing.T) {
	arts, st := newStores(t)
	ctx := context.Background()

	artifact, err := arts.WriteAt(ctx, episodeID, artifacts.OriginalAudio, "download", "media/original_audio.m4a", func(w io.Writer) error {
		_, err := w.Write([]byte("aac-bytes"))
		return err
	})
	if err != nil {
		t.Fatalf("WriteAt failed: %v", err)
	}
	if artifact.Path != "media/original_audio.m4a" {
		t.Fatalf("unexpected path %q", artifact.Path)
	}
	publish(t, st, "download", artifacts.OriginalAudio)

	ok, err := arts.Exists(ctx, episodeID, artifacts.OriginalAudio)
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v; want published", ok, err)
	}

	path, err := arts.PublishedPath(ctx, episodeID, artifacts.OriginalAudio)
	if err != nil {
		t.Fatalf("PublishedPath failed: %v", err)
	}
	if path != filepath.Join(arts.EpisodeDir(episodeID), "media/original_audio.m4a") {
		t.Fatalf("unexpected resolved path %q", path)
	}

	data, _, err := arts.ReadFile(ctx, episodeID, artifacts.OriginalAudio)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "aac-bytes" {
		t.Fatalf("unexpected content %q", data)
	}
}

func TestWriteAtRejectsEscapingPath(t *testing.T) {
	arts, _ := newStores(t)

	_, err := arts.WriteAt(context.Background(), episodeID, artifacts.OriginalAudio, "download", "../outside.mp3", func(w io.Writer) error {
		return nil
	})
	if err == nil {
		t.Fatal("expected path escape to be rejected")
	}
}

func TestPublishedPathUnpublishedIsNotFound(t *testing.T) {
	arts, _ := newStores(t)

	_, err := arts.PublishedPath(context.Background(), episodeID, artifacts.OriginalAudio)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestWriteProducerErrorLeavesNothing(t *testing.T) {
	arts, st := newStores(t)
	ctx := context.Background()

	boom := errors.New("producer exploded")
	if _, err := arts.Write(ctx, episodeID, artifacts.OriginalAudio, "download", func(w io.Writer) error {
		if _, err := w.Write([]byte("partial")); err != nil {
			return err
		}
		return boom
	}); !errors.Is(err, boom) {
		t.Fatalf("expected producer error, got %v", err)
	}

	mediaDir := filepath.Join(arts.EpisodeDir(episodeID), "media")
	entries, err := os.ReadDir(mediaDir)
	if err != nil && !os.IsNotExist(err) {
		t.Fatalf("read media dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no files after failed write, found %v", entries)
	}

	row, err := st.GetArtifact(ctx, episodeID, artifacts.OriginalAudio)
	if err != nil {
		t.Fatalf("GetArtifact failed: %v", err)
	}
	if row != nil {
		t.Fatalf("expected no index row after failed write, got %#v", row)
	}
}

func TestWriteCancellationLeavesNothing(t *testing.T) {
	arts, st := newStores(t)
	ctx, cancel := context.WithCancel(context.Background())

	_, err := arts.Write(ctx, episodeID, artifacts.OriginalAudio, "download", func(w io.Writer) error {
		if _, err := w.Write([]byte("partial")); err != nil {
			return err
		}
		cancel()
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	mediaDir := filepath.Join(arts.EpisodeDir(episodeID), "media")
	entries, readErr := os.ReadDir(mediaDir)
	if readErr != nil && !os.IsNotExist(readErr) {
		t.Fatalf("read media dir: %v", readErr)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no files after canceled write, found %v", entries)
	}

	row, err := st.GetArtifact(context.Background(), episodeID, artifacts.OriginalAudio)
	if err != nil {
		t.Fatalf("GetArtifact failed: %v", err)
	}
	if row != nil {
		t.Fatalf("expected no index row after canceled write, got %#v", row)
	}
}

func TestWriteReplacePreservesOldOnFailure(t *testing.T) {
	arts, st := newStores(t)
	ctx := context.Background()

	if _, err := arts.Write(ctx, episodeID, artifacts.OriginalAudio, "download", func(w io.Writer) error {
		_, err := w.Write([]byte("first version"))
		return err
	}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	publish(t, st, "download", artifacts.OriginalAudio)

	boom := errors.New("network died")
	if _, err := arts.Write(ctx, episodeID, artifacts.OriginalAudio, "download", func(w io.Writer) error {
		if _, err := w.Write([]byte("second ver")); err != nil {
			return err
		}
		return boom
	}); !errors.Is(err, boom) {
		t.Fatalf("expected producer error, got %v", err)
	}

	data, _, err := arts.ReadFile(ctx, episodeID, artifacts.OriginalAudio)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "first version" {
		t.Fatalf("expected prior content intact, got %q", data)
	}
}

func TestConcurrentWriteSingleWinner(t *testing.T) {
	arts, _ := newStores(t)
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		_, err := arts.Write(ctx, episodeID, artifacts.OriginalAudio, "download", func(w io.Writer) error {
			close(started)
			<-release
			_, err := w.Write([]byte("winner"))
			return err
		})
		done <- err
	}()

	<-started
	_, err := arts.Write(ctx, episodeID, artifacts.OriginalAudio, "download", func(w io.Writer) error {
		_, err := w.Write([]byte("loser"))
		return err
	})
	if !errors.Is(err, services.ErrConcurrentWrite) {
		t.Fatalf("expected concurrent write error, got %v", err)
	}
	if services.Kind(err) != services.KindConcurrentWrite {
		t.Fatalf("expected conflict kind, got %s", services.Kind(err))
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("winner write failed: %v", err)
	}

	// The lock is free again after the winner finishes.
	if _, err := arts.Write(ctx, episodeID, artifacts.OriginalAudio, "download", func(w io.Writer) error {
		_, err := w.Write([]byte("rewrite"))
		return err
	}); err != nil {
		t.Fatalf("expected lock released, got %v", err)
	}
}

func TestReaderUnpublishedIsNotFound(t *testing.T) {
	arts, _ := newStores(t)

	_, _, err := arts.Reader(context.Background(), episodeID, artifacts.Subtitles)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestExistsDetectsCorruption(t *testing.T) {
	arts, st := newStores(t)
	ctx := context.Background()

	if _, err := arts.Write(ctx, episodeID, artifacts.RawTranscript, "transcribe", func(w io.Writer) error {
		_, err := w.Write([]byte(`{"segments":[]}`))
		return err
	}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	publish(t, st, "transcribe", artifacts.RawTranscript)

	path, err := arts.Path(episodeID, artifacts.RawTranscript)
	if err != nil {
		t.Fatalf("Path failed: %v", err)
	}
	if err := os.WriteFile(path, []byte("tampered"), 0o644); err != nil {
		t.Fatalf("tamper failed: %v", err)
	}

	ok, err := arts.Exists(ctx, episodeID, artifacts.RawTranscript)
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if ok {
		t.Fatal("expected corrupted artifact to read as absent")
	}

	if _, _, err := arts.Reader(ctx, episodeID, artifacts.RawTranscript); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found for corrupted artifact, got %v", err)
	}
}

func TestCleanStalePartials(t *testing.T) {
	arts, _ := newStores(t)

	mediaDir := filepath.Join(arts.EpisodeDir(episodeID), "media")
	if err := os.MkdirAll(mediaDir, 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}

	stale := filepath.Join(mediaDir, "original_audio.mp3.partial.abc123")
	fresh := filepath.Join(mediaDir, "original_audio.mp3.partial.def456")
	for _, path := range []string{stale, fresh} {
		if err := os.WriteFile(path, []byte("half-written"), 0o644); err != nil {
			t.Fatalf("write temp failed: %v", err)
		}
	}
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatalf("chtimes failed: %v", err)
	}

	result := artifacts.CleanStalePartials(filepath.Dir(arts.EpisodeDir(episodeID)), time.Hour, nil)
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected cleanup errors: %v", result.Errors)
	}
	if len(result.Removed) != 1 || result.Removed[0] != stale {
		t.Fatalf("unexpected removals: %v", result.Removed)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("expected fresh partial kept: %v", err)
	}
}
