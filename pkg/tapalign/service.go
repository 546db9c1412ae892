package tapalign

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/beatlab/tapalign/internal/audio"
	"github.com/beatlab/tapalign/internal/pipeline"
	"github.com/beatlab/tapalign/internal/stimulus"
	"github.com/beatlab/tapalign/internal/storage"
	"github.com/beatlab/tapalign/pkg/logger"
)

// Service is the two-call contract the host experiment platform sees:
// PrepareStimulus during asset generation, AnalyzeRecording once per
// submitted recording. The export methods feed the host's separate audio
// and info asset generators from one cached preparation.
type Service interface {
	PrepareStimulus(ctx context.Context, name, audioPath string) (*StimulusDescriptor, error)
	ExportStimulusAudio(ctx context.Context, name, path string) error
	ExportStimulusInfo(ctx context.Context, name, path string) error
	AnalyzeRecording(ctx context.Context, recordingPath string, desc *StimulusDescriptor) (*AlignmentVerdict, error)
	ListStimuli() ([]string, error)
	Close() error
}

// prepared is one in-memory cache entry. The waveform may be nil when the
// descriptor was restored from the durable cache; preparation is
// deterministic, so it can be rebuilt from the source on demand.
type prepared struct {
	waveform []float64
	desc     *stimulus.Descriptor
}

type tapService struct {
	mu       sync.RWMutex
	prepared map[string]*prepared

	store *storage.DBClient
	pipe  *pipeline.Pipeline
	log   *logger.Logger
	cfg   *Config
}

func NewService(opts ...Option) (Service, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}
	cfg.Pipeline.TempDir = cfg.TempDir
	cfg.Pipeline.PlotDir = cfg.PlotDir

	var store *storage.DBClient
	if cfg.DBPath != "" {
		var err error
		store, err = storage.NewDBClient(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create stimulus store: %w", err)
		}
	}

	return &tapService{
		prepared: make(map[string]*prepared),
		store:    store,
		pipe:     pipeline.New(cfg.Pipeline, cfg.Logger),
		log:      cfg.Logger,
		cfg:      cfg,
	}, nil
}

// PrepareStimulus prepares a stimulus, or returns the cached preparation.
// Stimuli are immutable for the lifetime of a deployment, so cache entries
// are never invalidated. Concurrent calls for the same name may prepare
// twice; both produce the same result, so the duplicate work is harmless.
func (s *tapService) PrepareStimulus(ctx context.Context, name, audioPath string) (*StimulusDescriptor, error) {
	s.mu.RLock()
	entry, ok := s.prepared[name]
	s.mu.RUnlock()
	if ok {
		return descriptorFromInternal(entry.desc), nil
	}

	// Durable cache: descriptor only; the waveform is rebuilt when an
	// audio export asks for it.
	if s.store != nil {
		desc, err := s.store.GetDescriptor(name)
		if err != nil {
			s.log.Warnf("stimulus store lookup for %q failed: %v", name, err)
		} else if desc != nil {
			s.log.Debugf("stimulus %q restored from store", name)
			s.remember(name, &prepared{desc: desc})
			return descriptorFromInternal(desc), nil
		}
	}

	s.log.Infof("Preparing stimulus %q from %s", name, audioPath)
	waveform, desc, err := stimulus.Prepare(name, audioPath, s.cfg.Stimulus)
	if err != nil {
		return nil, err
	}
	s.log.Infof("Prepared stimulus %q: %.2fs, %d expected onsets, %d markers",
		name, desc.Duration, len(desc.Onsets), len(desc.Markers))

	if s.store != nil {
		if err := s.store.SaveDescriptor(desc); err != nil {
			s.log.Warnf("persisting stimulus %q failed: %v", name, err)
		}
	}
	s.remember(name, &prepared{waveform: waveform, desc: desc})

	return descriptorFromInternal(desc), nil
}

func (s *tapService) remember(name string, p *prepared) {
	s.mu.Lock()
	if existing, ok := s.prepared[name]; !ok || existing.waveform == nil {
		s.prepared[name] = p
	}
	s.mu.Unlock()
}

// ExportStimulusAudio writes the prepared stimulus waveform as a 16-bit
// PCM WAV file.
func (s *tapService) ExportStimulusAudio(ctx context.Context, name, path string) error {
	entry, err := s.waveformFor(ctx, name)
	if err != nil {
		return err
	}
	return audio.WriteWAV(path, entry.waveform, entry.desc.SampleRate)
}

// ExportStimulusInfo writes the stimulus descriptor as its structured
// text record.
func (s *tapService) ExportStimulusInfo(ctx context.Context, name, path string) error {
	s.mu.RLock()
	entry, ok := s.prepared[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("stimulus %q has not been prepared", name)
	}
	return entry.desc.Save(path)
}

// waveformFor returns a cache entry that is guaranteed to carry the
// rendered waveform, re-preparing from the source when the entry was
// restored descriptor-only.
func (s *tapService) waveformFor(ctx context.Context, name string) (*prepared, error) {
	s.mu.RLock()
	entry, ok := s.prepared[name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("stimulus %q has not been prepared", name)
	}
	if entry.waveform != nil {
		return entry, nil
	}

	s.log.Debugf("re-rendering waveform for stimulus %q from %s", name, entry.desc.SourceAudio)
	waveform, desc, err := stimulus.Prepare(name, entry.desc.SourceAudio, s.cfg.Stimulus)
	if err != nil {
		return nil, err
	}
	full := &prepared{waveform: waveform, desc: desc}
	s.remember(name, full)
	return full, nil
}

// AnalyzeRecording scores one recording against its stimulus descriptor.
// The returned error covers only caller mistakes (an invalid descriptor);
// every per-trial condition comes back inside the verdict.
func (s *tapService) AnalyzeRecording(ctx context.Context, recordingPath string, desc *StimulusDescriptor) (*AlignmentVerdict, error) {
	if desc == nil {
		return nil, fmt.Errorf("nil stimulus descriptor")
	}
	internal, err := descriptorToInternal(desc)
	if err != nil {
		return nil, fmt.Errorf("invalid stimulus descriptor: %w", err)
	}

	v := s.pipe.Analyze(ctx, recordingPath, internal)
	return verdictFromInternal(v), nil
}

// ListStimuli returns the names of all stimuli in the durable cache.
func (s *tapService) ListStimuli() ([]string, error) {
	if s.store == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		names := make([]string, 0, len(s.prepared))
		for name := range s.prepared {
			names = append(names, name)
		}
		sort.Strings(names)
		return names, nil
	}
	return s.store.ListStimuli()
}

func (s *tapService) Close() error {
	return s.store.Close()
}
