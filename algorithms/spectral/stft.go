package spectral

import (
	"fmt"
	"runtime"
	"sync"
)

// STFT provides Short-Time Fourier Transform functionality
type STFT struct {
	fft     *FFT
	workers int
}

// STFTResult holds a power spectrogram
type STFTResult struct {
	Power          [][]float64 `json:"power"`           // Time x Frequency |X|^2 matrix
	TimeFrames     int         `json:"time_frames"`     // Number of time frames
	FreqBins       int         `json:"freq_bins"`       // Number of frequency bins
	SampleRate     int         `json:"sample_rate"`     // Sample rate
	WindowSize     int         `json:"window_size"`     // FFT window size
	HopSize        int         `json:"hop_size"`        // Hop size between frames
	FreqResolution float64     `json:"freq_resolution"` // Frequency resolution (Hz/bin)
	TimeResolution float64     `json:"time_resolution"` // Time resolution (seconds/frame)
}

// Window interface for windowing functions
type Window interface {
	ApplyTo(dst, signal []float64) error
	Size() int
}

// NewSTFT creates a new STFT calculator. workers <= 0 picks a count from
// the frame total, 1 runs sequentially.
func NewSTFT(workers int) *STFT {
	return &STFT{
		fft:     NewFFT(),
		workers: workers,
	}
}

// CenterPad returns the signal with windowSize/2 zeros on both sides, so
// that frame t is centred on sample t*hop.
func CenterPad(signal []float64, windowSize int) []float64 {
	pad := windowSize / 2
	padded := make([]float64, len(signal)+2*pad)
	copy(padded[pad:], signal)
	return padded
}

// CenteredFrameCount is the number of frames a centred analysis yields
func CenteredFrameCount(signalLength, windowSize, hopSize int) int {
	padded := signalLength + 2*(windowSize/2)
	if padded < windowSize || hopSize <= 0 {
		return 0
	}
	return 1 + (padded-windowSize)/hopSize
}

// PowerSpectrogram computes a centred, zero padded power spectrogram.
func (s *STFT) PowerSpectrogram(signal []float64, hopSize int, sampleRate int, window Window) (*STFTResult, error) {
	if len(signal) == 0 {
		return nil, fmt.Errorf("empty signal")
	}
	if window == nil {
		return nil, fmt.Errorf("window is required")
	}

	windowSize := window.Size()
	if windowSize <= 0 {
		return nil, fmt.Errorf("window size must be positive")
	}
	if hopSize <= 0 {
		return nil, fmt.Errorf("hop size must be positive")
	}

	padded := CenterPad(signal, windowSize)
	numFrames := CenteredFrameCount(len(signal), windowSize, hopSize)
	if numFrames <= 0 {
		return nil, fmt.Errorf("signal too short for given window size and hop size")
	}

	freqBins := windowSize/2 + 1
	power := make([][]float64, numFrames)

	numWorkers := s.workerCount(numFrames)
	jobs := make(chan int, numFrames)

	var wg sync.WaitGroup
	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			// Reuse frame buffer for this worker
			frameBuffer := make([]float64, windowSize)

			for frameIdx := range jobs {
				start := frameIdx * hopSize
				// Window size always matches, so ApplyTo cannot fail here
				_ = window.ApplyTo(frameBuffer, padded[start:start+windowSize])
				power[frameIdx] = s.fft.PowerSpectrum(frameBuffer)
			}
		}()
	}

	for frameIdx := range numFrames {
		jobs <- frameIdx
	}
	close(jobs)
	wg.Wait()

	return &STFTResult{
		Power:          power,
		TimeFrames:     numFrames,
		FreqBins:       freqBins,
		SampleRate:     sampleRate,
		WindowSize:     windowSize,
		HopSize:        hopSize,
		FreqResolution: float64(sampleRate) / float64(windowSize),
		TimeResolution: float64(hopSize) / float64(sampleRate),
	}, nil
}

// workerCount determines the number of workers based on workload
func (s *STFT) workerCount(numFrames int) int {
	if s.workers > 0 {
		return min(s.workers, numFrames)
	}

	numCPU := runtime.NumCPU()

	// For small workloads, don't over-parallelize
	if numFrames < 100 {
		return max(1, min(numCPU/2, numFrames))
	}
	if numFrames < 1000 {
		return min(numCPU, 8)
	}
	return numCPU
}
