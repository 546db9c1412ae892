package audio

import (
	"fmt"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/beatlab/tapalign/pkg/utils"
)

// WriteWAV encodes mono float64 samples in [-1, 1] as a 16-bit PCM WAV
// file. The file is written to a temp path and renamed into place so a
// partially written stimulus is never observed.
func WriteWAV(path string, samples []float64, sampleRate int) error {
	tmpPath := path + ".tmp.wav"
	defer os.Remove(tmpPath)

	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating WAV file: %w", err)
	}

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)

	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: 1,
			SampleRate:  sampleRate,
		},
		Data:           make([]int, len(samples)),
		SourceBitDepth: 16,
	}
	for i, s := range samples {
		// round to nearest, truncation would cost a full LSB of accuracy
		v := int(math.Round(s * 32767.0))
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		buf.Data[i] = v
	}

	if err := enc.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("writing PCM data: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("finalizing WAV file: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	return utils.MoveFile(tmpPath, path)
}
