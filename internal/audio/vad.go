package audio

// AnalysisRate is the sample rate frames are analysed at
const AnalysisRate = 8000

// VADConfig holds configuration for Voice Activity Detection
type VADConfig struct {
	EnergyThreshold float64 // RMS energy threshold for speech detection
	SilenceFrames   int     // Number of consecutive silence frames to mark as end of speech
	FrameSize       int     // Number of samples per frame (160 at 8kHz = 20ms)
}

// DefaultVADConfig returns a default VAD configuration
func DefaultVADConfig() *VADConfig {
	return &VADConfig{
		EnergyThreshold: 500.0,
		SilenceFrames:   10, // 200ms of silence (10 frames * 20ms)
		FrameSize:       160,
	}
}

// SilenceConfig returns a detector configuration for deciding whether a whole
// recording is silent: any 20ms frame above threshold counts as speech.
func SilenceConfig(threshold float64) *VADConfig {
	cfg := DefaultVADConfig()
	cfg.EnergyThreshold = threshold
	return cfg
}

// VADDetector performs Voice Activity Detection
type VADDetector struct {
	config         *VADConfig
	silenceCounter int
	isSpeaking     bool
}

// NewVADDetector creates a new VAD detector
func NewVADDetector(config *VADConfig) *VADDetector {
	if config == nil {
		config = DefaultVADConfig()
	}
	return &VADDetector{config: config}
}

// ProcessFrame processes an audio frame and returns whether speech is detected
// Returns: (isSpeaking, speechStarted, speechEnded)
func (v *VADDetector) ProcessFrame(samples []int16) (bool, bool, bool) {
	rms := CalculateRMS(samples)
	frameHasSpeech := rms > v.config.EnergyThreshold

	var speechStarted, speechEnded bool

	if frameHasSpeech {
		v.silenceCounter = 0
		if !v.isSpeaking {
			speechStarted = true
			v.isSpeaking = true
		}
	} else {
		v.silenceCounter++
		if v.isSpeaking && v.silenceCounter >= v.config.SilenceFrames {
			speechEnded = true
			v.isSpeaking = false
			v.silenceCounter = 0
		}
	}

	return v.isSpeaking, speechStarted, speechEnded
}

// Reset resets the VAD detector state
func (v *VADDetector) Reset() {
	v.silenceCounter = 0
	v.isSpeaking = false
}

// IsSpeaking returns whether speech is currently detected
func (v *VADDetector) IsSpeaking() bool {
	return v.isSpeaking
}

// ContainsSpeech runs mono samples at sampleRate through the detector frame
// by frame and reports whether any frame started speech. A trailing partial
// frame is analysed as-is.
func (v *VADDetector) ContainsSpeech(samples []int16, sampleRate int) bool {
	v.Reset()
	samples = resample(samples, sampleRate, AnalysisRate)

	frame := v.config.FrameSize
	if frame <= 0 {
		frame = len(samples)
	}
	for start := 0; start < len(samples); start += frame {
		end := start + frame
		if end > len(samples) {
			end = len(samples)
		}
		if _, started, _ := v.ProcessFrame(samples[start:end]); started {
			return true
		}
	}
	return false
}

// DetectSilence detects if audio samples represent silence
// Uses a simple energy threshold
func DetectSilence(samples []int16, threshold float64) bool {
	return CalculateRMS(samples) < threshold
}
