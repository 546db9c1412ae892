package tapalign

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/beatlab/tapalign/internal/audio"
)

const testRate = 44100

// writeMusicFixture renders stand-in music with a sidecar beat annotation
// and returns the music path.
func writeMusicFixture(t *testing.T, dir string, durSec float64, beats []float64) string {
	t.Helper()
	n := int(durSec * float64(testRate))
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = 0.05 * math.Sin(2*math.Pi*330*float64(i)/float64(testRate))
	}
	musicPath := filepath.Join(dir, "music_1.wav")
	if err := audio.WriteWAV(musicPath, samples, testRate); err != nil {
		t.Fatalf("writing music fixture: %v", err)
	}

	var annotation string
	for _, b := range beats {
		annotation += fmt.Sprintf("%.2f\n", b)
	}
	if err := os.WriteFile(musicPath+".onsets.txt", []byte(annotation), 0o644); err != nil {
		t.Fatal(err)
	}
	return musicPath
}

// writeTapRecording renders taps at the given times over the descriptor's
// duration.
func writeTapRecording(t *testing.T, desc *StimulusDescriptor, tapTimes []float64) string {
	t.Helper()
	samples := make([]float64, int(desc.Duration*float64(testRate)))
	burstLen := int(0.020 * testRate)
	for _, tap := range tapTimes {
		start := int(tap * testRate)
		for i := 0; i < burstLen && start+i < len(samples); i++ {
			decay := 1.0 - float64(i)/float64(burstLen)
			samples[start+i] += 0.8 * decay * math.Sin(2*math.Pi*200*float64(i)/float64(testRate))
		}
	}
	path := filepath.Join(t.TempDir(), "recording.wav")
	if err := audio.WriteWAV(path, samples, testRate); err != nil {
		t.Fatalf("writing recording fixture: %v", err)
	}
	return path
}

func newTestService(t *testing.T) Service {
	t.Helper()
	svc, err := NewService(
		WithDBPath(filepath.Join(t.TempDir(), "test.sqlite3")),
		WithTempDir(t.TempDir()),
	)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	t.Cleanup(func() {
		svc.Close()
	})
	return svc
}

func TestPrepareStimulus(t *testing.T) {
	svc := newTestService(t)
	musicPath := writeMusicFixture(t, t.TempDir(), 4.0, []float64{0.5, 1.0, 1.5, 2.0, 2.5, 3.0})

	desc, err := svc.PrepareStimulus(context.Background(), "music_1", musicPath)
	if err != nil {
		t.Fatalf("PrepareStimulus failed: %v", err)
	}

	if desc.Name != "music_1" {
		t.Errorf("Expected name music_1, got %q", desc.Name)
	}
	if len(desc.Onsets) != 6 {
		t.Errorf("Expected 6 expected onsets, got %d", len(desc.Onsets))
	}
	if len(desc.Markers) != 6 {
		t.Errorf("Expected 6 markers, got %d", len(desc.Markers))
	}
	for i := 1; i < len(desc.Onsets); i++ {
		if desc.Onsets[i] <= desc.Onsets[i-1] {
			t.Fatal("Expected onsets strictly increasing")
		}
	}
}

func TestPrepareStimulusCached(t *testing.T) {
	svc := newTestService(t)
	dir := t.TempDir()
	musicPath := writeMusicFixture(t, dir, 4.0, []float64{0.5, 1.0, 1.5, 2.0})

	d1, err := svc.PrepareStimulus(context.Background(), "music_1", musicPath)
	if err != nil {
		t.Fatalf("first PrepareStimulus failed: %v", err)
	}

	// Remove the source: a cache hit must not touch it.
	if err := os.Remove(musicPath); err != nil {
		t.Fatal(err)
	}

	d2, err := svc.PrepareStimulus(context.Background(), "music_1", musicPath)
	if err != nil {
		t.Fatalf("cached PrepareStimulus failed: %v", err)
	}

	if len(d1.Onsets) != len(d2.Onsets) {
		t.Fatalf("Cached descriptor differs: %d vs %d onsets", len(d1.Onsets), len(d2.Onsets))
	}
	for i := range d1.Onsets {
		if d1.Onsets[i] != d2.Onsets[i] {
			t.Errorf("Onset %d differs after cache hit: %v vs %v", i, d1.Onsets[i], d2.Onsets[i])
		}
	}
}

func TestPrepareStimulusBadSource(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.PrepareStimulus(context.Background(), "ghost", filepath.Join(t.TempDir(), "ghost.wav"))
	if err == nil {
		t.Fatal("Expected error for missing source audio")
	}
}

func TestExportStimulusArtifacts(t *testing.T) {
	svc := newTestService(t)
	musicPath := writeMusicFixture(t, t.TempDir(), 4.0, []float64{0.5, 1.0, 1.5, 2.0})

	ctx := context.Background()
	desc, err := svc.PrepareStimulus(ctx, "music_1", musicPath)
	if err != nil {
		t.Fatalf("PrepareStimulus failed: %v", err)
	}

	outDir := t.TempDir()
	wavOut := filepath.Join(outDir, "music_1.wav")
	infoOut := filepath.Join(outDir, "music_1.json")

	if err := svc.ExportStimulusAudio(ctx, "music_1", wavOut); err != nil {
		t.Fatalf("ExportStimulusAudio failed: %v", err)
	}
	if err := svc.ExportStimulusInfo(ctx, "music_1", infoOut); err != nil {
		t.Fatalf("ExportStimulusInfo failed: %v", err)
	}

	samples, sr, err := audio.ReadWAV(wavOut)
	if err != nil {
		t.Fatalf("Exported stimulus audio unreadable: %v", err)
	}
	if sr != desc.SampleRate {
		t.Errorf("Expected exported rate %d, got %d", desc.SampleRate, sr)
	}
	wantLen := int(desc.Duration * float64(desc.SampleRate))
	if len(samples) != wantLen {
		t.Errorf("Expected %d exported samples, got %d", wantLen, len(samples))
	}

	loaded, err := LoadDescriptor(infoOut)
	if err != nil {
		t.Fatalf("LoadDescriptor failed: %v", err)
	}
	if len(loaded.Onsets) != len(desc.Onsets) {
		t.Fatalf("Descriptor round trip lost onsets: %d vs %d", len(loaded.Onsets), len(desc.Onsets))
	}
	for i := range desc.Onsets {
		if loaded.Onsets[i] != desc.Onsets[i] {
			t.Errorf("Onset %d: expected %v, got %v", i, desc.Onsets[i], loaded.Onsets[i])
		}
	}
}

func TestExportUnpreparedStimulus(t *testing.T) {
	svc := newTestService(t)
	if err := svc.ExportStimulusInfo(context.Background(), "never-prepared", filepath.Join(t.TempDir(), "x.json")); err == nil {
		t.Error("Expected error exporting an unprepared stimulus")
	}
}

func TestAnalyzeRecordingPasses(t *testing.T) {
	svc := newTestService(t)
	musicPath := writeMusicFixture(t, t.TempDir(), 4.0, []float64{0.5, 1.0, 1.5, 2.0})

	ctx := context.Background()
	desc, err := svc.PrepareStimulus(ctx, "music_1", musicPath)
	if err != nil {
		t.Fatalf("PrepareStimulus failed: %v", err)
	}

	// Tap slightly late on every expected beat
	taps := make([]float64, len(desc.Onsets))
	for i, o := range desc.Onsets {
		taps[i] = o + 0.02
	}
	rec := writeTapRecording(t, desc, taps)

	verdict, err := svc.AnalyzeRecording(ctx, rec, desc)
	if err != nil {
		t.Fatalf("AnalyzeRecording failed: %v", err)
	}

	if verdict.Failed {
		t.Fatalf("Expected passing verdict, got reason %q (stats %+v)", verdict.Reason, verdict.Stats)
	}
	if verdict.Stats.Matched != len(desc.Onsets) {
		t.Errorf("Expected %d matches, got %+v", len(desc.Onsets), verdict.Stats)
	}
	if len(verdict.Matches) != len(desc.Onsets) {
		t.Errorf("Verdict matches length %d != expected onsets %d", len(verdict.Matches), len(desc.Onsets))
	}
}

func TestAnalyzeRecordingNoTaps(t *testing.T) {
	svc := newTestService(t)
	musicPath := writeMusicFixture(t, t.TempDir(), 4.0, []float64{0.5, 1.0, 1.5, 2.0})

	ctx := context.Background()
	desc, err := svc.PrepareStimulus(ctx, "music_1", musicPath)
	if err != nil {
		t.Fatalf("PrepareStimulus failed: %v", err)
	}

	rec := writeTapRecording(t, desc, nil)
	verdict, err := svc.AnalyzeRecording(ctx, rec, desc)
	if err != nil {
		t.Fatalf("AnalyzeRecording failed: %v", err)
	}

	if !verdict.Failed || verdict.Reason != ReasonNoTapsDetected {
		t.Errorf("Expected no_taps_detected, got failed=%v reason=%q", verdict.Failed, verdict.Reason)
	}
	if verdict.Stats.Misses != len(desc.Onsets) {
		t.Errorf("Expected every expected onset missed, got %+v", verdict.Stats)
	}
}

func TestAnalyzeRecordingInvalidDescriptor(t *testing.T) {
	svc := newTestService(t)

	bad := &StimulusDescriptor{
		Name:     "bad",
		Duration: 5.0,
		Onsets:   []float64{2.0, 1.0},
	}
	if _, err := svc.AnalyzeRecording(context.Background(), "whatever.wav", bad); err == nil {
		t.Error("Expected error for descriptor with non-increasing onsets")
	}

	if _, err := svc.AnalyzeRecording(context.Background(), "whatever.wav", nil); err == nil {
		t.Error("Expected error for nil descriptor")
	}
}

func TestListStimuli(t *testing.T) {
	svc := newTestService(t)
	dir := t.TempDir()
	musicPath := writeMusicFixture(t, dir, 4.0, []float64{0.5, 1.0, 1.5, 2.0})

	if _, err := svc.PrepareStimulus(context.Background(), "music_1", musicPath); err != nil {
		t.Fatalf("PrepareStimulus failed: %v", err)
	}

	names, err := svc.ListStimuli()
	if err != nil {
		t.Fatalf("ListStimuli failed: %v", err)
	}
	if len(names) != 1 || names[0] != "music_1" {
		t.Errorf("Expected [music_1], got %v", names)
	}
}
