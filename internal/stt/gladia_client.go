package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-assistant/internal/audio"
	"github.com/lexiqai/voice-assistant/internal/config"
	"github.com/lexiqai/voice-assistant/internal/jsonvalue"
	"github.com/lexiqai/voice-assistant/internal/observability"
	"github.com/lexiqai/voice-assistant/internal/resilience"
)

const gladiaProvider = "gladia"

// Job statuses reported by the transcription endpoint
const (
	gladiaStatusDone  = "done"
	gladiaStatusError = "error"
)

// gladiaRequest is the job submission payload. Only language detection and
// audio enhancement are enabled.
type gladiaRequest struct {
	AudioURL                 string `json:"audio_url"`
	Sentences                bool   `json:"sentences"`
	Subtitles                bool   `json:"subtitles"`
	Moderation               bool   `json:"moderation"`
	Diarization              bool   `json:"diarization"`
	Translation              bool   `json:"translation"`
	AudioToLLM               bool   `json:"audio_to_llm"`
	DisplayMode              bool   `json:"display_mode"`
	Summarization            bool   `json:"summarization"`
	AudioEnhancer            bool   `json:"audio_enhancer"`
	Chapterization           bool   `json:"chapterization"`
	CustomSpelling           bool   `json:"custom_spelling"`
	DetectLanguage           bool   `json:"detect_language"`
	NameConsistency          bool   `json:"name_consistency"`
	SentimentAnalysis        bool   `json:"sentiment_analysis"`
	DiarizationEnhanced      bool   `json:"diarization_enhanced"`
	PunctuationEnhanced      bool   `json:"punctuation_enhanced"`
	EnableCodeSwitching      bool   `json:"enable_code_switching"`
	NamedEntityRecognition   bool   `json:"named_entity_recognition"`
	SpeakerReidentification  bool   `json:"speaker_reidentification"`
	AccurateWordsTimestamps  bool   `json:"accurate_words_timestamps"`
	SkipChannelDeduplication bool   `json:"skip_channel_deduplication"`
	StructuredDataExtraction bool   `json:"structured_data_extraction"`
}

// GladiaClient implements Transcriber against Gladia's v2 pre-recorded API:
// upload the file, submit a job for the returned URL, then poll the job.
type GladiaClient struct {
	apiKey       string
	baseURL      string
	pollInterval time.Duration
	maxPolls     int
	httpClient   *http.Client
	logger       zerolog.Logger
}

// NewGladiaClient creates a new Gladia transcription client
func NewGladiaClient(cfg *config.Config, logger zerolog.Logger) *GladiaClient {
	maxPolls := cfg.TranscriptionMaxPolls
	if maxPolls <= 0 {
		maxPolls = 60
	}
	return &GladiaClient{
		apiKey:       cfg.GladiaAPIKey,
		baseURL:      strings.TrimRight(cfg.GladiaBaseURL, "/"),
		pollInterval: config.Millis(cfg.TranscriptionPollMs),
		maxPolls:     maxPolls,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		logger:       logger.With().Str("component", "stt").Str("provider", gladiaProvider).Logger(),
	}
}

// Transcribe uploads audioPath and waits for the finished transcript
func (g *GladiaClient) Transcribe(ctx context.Context, audioPath string) (Transcript, error) {
	start := time.Now()
	t, err := g.transcribe(ctx, audioPath)

	outcome := "success"
	if err != nil {
		outcome = KindOf(err).String()
	}
	observability.RecordProviderCall(gladiaProvider, outcome, time.Since(start))
	return t, err
}

func (g *GladiaClient) transcribe(ctx context.Context, audioPath string) (Transcript, error) {
	audioURL, err := g.upload(ctx, audioPath)
	if err != nil {
		return Transcript{}, err
	}

	jobID, err := g.submit(ctx, audioURL)
	if err != nil {
		return Transcript{}, err
	}
	g.logger.Debug().Str("job_id", jobID).Msg("Transcription job submitted")

	doc, err := g.poll(ctx, jobID)
	if err != nil {
		return Transcript{}, err
	}

	t := gladiaExtractor.extract(doc)
	if t.Text == "" {
		return Transcript{}, &Error{Kind: KindEmptyTranscript, Provider: gladiaProvider, Message: "job " + jobID + " finished without a transcript"}
	}

	g.logger.Info().
		Str("job_id", jobID).
		Str("language", t.Language).
		Str("transcript_path", t.TranscriptPath).
		Str("language_path", t.LanguagePath).
		Msg("Transcription completed")
	return t, nil
}

// upload sends the file as multipart part "audio" and returns the hosted URL
func (g *GladiaClient) upload(ctx context.Context, audioPath string) (string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return "", &Error{Kind: KindInput, Provider: gladiaProvider, Message: "cannot read audio file", Err: err}
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="audio"; filename=%q`, filepath.Base(audioPath)))
		header.Set("Content-Type", audio.FormatFromName(audioPath).ContentType())
		part, err := mw.CreatePart(header)
		if err == nil {
			_, err = io.Copy(part, f)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v2/upload", pr)
	if err != nil {
		pr.CloseWithError(err)
		return "", &Error{Kind: KindUpload, Provider: gladiaProvider, Message: "building request", Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("x-gladia-key", g.apiKey)

	doc, err := g.doJSON(req)
	// Unblock the writer goroutine if the request ended early
	pr.Close()
	if err != nil {
		return "", &Error{Kind: KindUpload, Provider: gladiaProvider, Message: "upload failed", Err: err}
	}

	audioURL, _ := doc.Get("audio_url").Str()
	if audioURL == "" {
		return "", &Error{Kind: KindUpload, Provider: gladiaProvider, Message: "response carried no audio_url"}
	}
	return audioURL, nil
}

// submit requests a transcription job for audioURL and returns its id
func (g *GladiaClient) submit(ctx context.Context, audioURL string) (string, error) {
	body, err := json.Marshal(gladiaRequest{
		AudioURL:       audioURL,
		AudioEnhancer:  true,
		DetectLanguage: true,
	})
	if err != nil {
		return "", &Error{Kind: KindSubmission, Provider: gladiaProvider, Message: "encoding request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v2/transcription", bytes.NewReader(body))
	if err != nil {
		return "", &Error{Kind: KindSubmission, Provider: gladiaProvider, Message: "building request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-gladia-key", g.apiKey)

	doc, err := g.doJSON(req)
	if err != nil {
		return "", &Error{Kind: KindSubmission, Provider: gladiaProvider, Message: "submission failed", Err: err}
	}

	jobID := doc.Get("id").Text()
	if jobID == "" {
		return "", &Error{Kind: KindSubmission, Provider: gladiaProvider, Message: "response carried no job id"}
	}
	return jobID, nil
}

// poll fetches the job until it finishes, fails, or maxPolls fetches have
// been made. A failed fetch counts as one non-terminal poll.
func (g *GladiaClient) poll(ctx context.Context, jobID string) (*jsonvalue.Value, error) {
	url := g.baseURL + "/v2/transcription/" + jobID

	for attempt := 1; attempt <= g.maxPolls; attempt++ {
		doc, err := g.fetchJob(ctx, url)
		if err != nil {
			g.logger.Warn().Err(err).Str("job_id", jobID).Int("poll", attempt).Msg("Error checking transcription")
		} else {
			status := doc.Get("status").Text()
			switch {
			case status == gladiaStatusDone:
				return doc, nil
			case status == gladiaStatusError || truthy(doc.Get("error_code")):
				code := doc.Get("error_code").Text()
				if code == "" {
					code = "unknown error"
				}
				return nil, &Error{Kind: KindJobFailed, Provider: gladiaProvider, Message: fmt.Sprintf("job %s failed: %s", jobID, code)}
			}
			g.logger.Debug().Str("job_id", jobID).Str("status", status).Int("poll", attempt).Int("max_polls", g.maxPolls).Msg("Transcription in progress")
		}

		if attempt == g.maxPolls {
			break
		}
		if err := resilience.Sleep(ctx, g.pollInterval); err != nil {
			return nil, &Error{Kind: KindTimeout, Provider: gladiaProvider, Message: "polling cancelled", Err: err}
		}
	}

	return nil, &Error{Kind: KindTimeout, Provider: gladiaProvider, Message: fmt.Sprintf("job %s not finished after %d polls", jobID, g.maxPolls)}
}

func (g *GladiaClient) fetchJob(ctx context.Context, url string) (*jsonvalue.Value, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-gladia-key", g.apiKey)
	return g.doJSON(req)
}

// doJSON executes req and parses a 2xx JSON body
func (g *GladiaClient) doJSON(req *http.Request) (*jsonvalue.Value, error) {
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("gladia API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return jsonvalue.Decode(resp.Body)
}

// truthy mirrors how the API signals an error code: any non-empty, non-zero value
func truthy(v *jsonvalue.Value) bool {
	switch v.Kind() {
	case jsonvalue.Null:
		return false
	case jsonvalue.Bool, jsonvalue.Number, jsonvalue.String:
		text := v.Text()
		return text != "" && text != "false" && text != "0"
	}
	return v.Len() > 0
}
