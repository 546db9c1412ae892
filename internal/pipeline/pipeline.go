package pipeline

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/beatlab/tapalign/internal/align"
	"github.com/beatlab/tapalign/internal/audio"
	"github.com/beatlab/tapalign/internal/onset"
	"github.com/beatlab/tapalign/internal/plot"
	"github.com/beatlab/tapalign/internal/stimulus"
	"github.com/beatlab/tapalign/pkg/logger"
)

// Config wires the per-stage tunables together.
type Config struct {
	SampleRate    int     // analysis rate recordings are converted to
	TempDir       string  // scratch space for converted recordings
	ClipThreshold float64 // normalized amplitude treated as clipped
	MaxClipRatio  float64 // recording is unusable above this clipped fraction
	PlotDir       string  // diagnostic plots, empty disables plotting
	Onset         onset.Config
	Align         align.Config
}

func DefaultConfig() Config {
	return Config{
		SampleRate:    44100,
		TempDir:       "/tmp",
		ClipThreshold: 0.999,
		MaxClipRatio:  0.03,
		Onset:         onset.DefaultConfig(),
		Align:         align.DefaultConfig(),
	}
}

// detectFn is the onset detector the pipeline calls; a variable so tests
// can fault-inject the stage boundary.
var detectFn = onset.Detect

// Pipeline runs the per-trial analysis: decode the recording, detect tap
// onsets, score them against the stimulus beat grid.
type Pipeline struct {
	cfg Config
	log *logger.Logger
}

func New(cfg Config, log *logger.Logger) *Pipeline {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Pipeline{cfg: cfg, log: log}
}

// Analyze scores one submitted recording against its stimulus descriptor.
//
// Per-trial failures are data, never errors: an unreadable recording, a
// clipped recording, too few taps, and any unexpected internal failure
// (including a panic in the lower stages) all come back as a failed
// verdict with an enumerated reason. A single bad recording must never
// abort the surrounding experiment session.
func (p *Pipeline) Analyze(ctx context.Context, recordingPath string, desc *stimulus.Descriptor) (v *align.Verdict) {
	analysisID := uuid.NewString()

	defer func() {
		if r := recover(); r != nil {
			p.log.Errorf("analysis %s panicked: %v", analysisID, r)
			v = align.FailedVerdict(align.ReasonAnalysisException, desc.Onsets)
		}
		if v != nil {
			v.AnalysisID = analysisID
		}
	}()

	p.log.Debugf("analysis %s: recording %s against stimulus %q", analysisID, recordingPath, desc.Name)

	samples, sampleRate, err := p.load(ctx, recordingPath)
	if err != nil {
		p.log.Warnf("analysis %s: cannot decode recording: %v", analysisID, err)
		return align.FailedVerdict(align.ReasonDecodeFailure, desc.Onsets)
	}

	clip := audio.MeasureClipping(samples, p.cfg.ClipThreshold)
	if clip.Ratio > p.cfg.MaxClipRatio {
		p.log.Warnf("analysis %s: recording clipped (%.1f%% of samples)", analysisID, clip.Ratio*100)
		return align.FailedVerdict(align.ReasonClipping, desc.Onsets)
	}

	taps := detectFn(samples, sampleRate, p.cfg.Onset)
	p.log.Infof("analysis %s: detected %d tap onsets against %d expected", analysisID, len(taps), len(desc.Onsets))

	v = align.Score(taps, desc, p.cfg.Align)

	if p.cfg.PlotDir != "" {
		plotPath := filepath.Join(p.cfg.PlotDir, analysisID+".png")
		if err := plot.Render(plotPath, samples, sampleRate, taps); err != nil {
			p.log.Warnf("analysis %s: plot failed: %v", analysisID, err)
		}
	}

	return v
}

// load decodes the recording into mono float64 samples. WAV input is read
// directly; anything else (the browser records webm/ogg) goes through
// ffmpeg first.
func (p *Pipeline) load(ctx context.Context, path string) ([]float64, int, error) {
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		return audio.ReadWAV(path)
	}

	wavPath, err := audio.ConvertToMonoWAV(ctx, path, p.cfg.TempDir, audio.ConvertWAVConfig{
		SampleRate: p.cfg.SampleRate,
	})
	if err != nil {
		return nil, 0, err
	}
	return audio.ReadWAV(wavPath)
}
