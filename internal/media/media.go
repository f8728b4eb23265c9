// Package media acquires the audio track of a video/podcast URL and turns
// it into text. Acquisition shells out to yt-dlp; transcription goes to an
// OpenAI-compatible audio endpoint. Both are fallible, retryable black
// boxes from the pipeline's point of view.
package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperifyio/gocollect/internal/llm"
	"github.com/hyperifyio/gocollect/internal/retry"
)

// Audio describes a downloaded audio track.
type Audio struct {
	Path     string
	Title    string
	Author   string
	Duration float64 // seconds; zero when unknown
}

// Fetcher downloads the audio track of a media URL into dir.
type Fetcher interface {
	Fetch(ctx context.Context, url, dir string) (Audio, error)
}

// Transcriber converts a local audio file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// YTDLP fetches audio via the yt-dlp binary.
type YTDLP struct {
	// Binary defaults to "yt-dlp" on PATH.
	Binary string
	// AudioQuality is yt-dlp's 0 (best) to 10 (worst) scale.
	AudioQuality int
}

func (y *YTDLP) binary() string {
	if y.Binary != "" {
		return y.Binary
	}
	return "yt-dlp"
}

// Fetch probes metadata first, then extracts the audio track as mp3 into
// dir. Challenge-page and permission failures are permanent: re-running
// yt-dlp against the same wall cannot succeed, and the extraction chain
// degrades to the generic page strategy instead.
func (y *YTDLP) Fetch(ctx context.Context, url, dir string) (Audio, error) {
	meta := y.probe(ctx, url)

	outTemplate := filepath.Join(dir, "%(id)s.%(ext)s")
	args := []string{
		"-x", "--audio-format", "mp3",
		"--audio-quality", strconv.Itoa(y.AudioQuality),
		"-o", outTemplate,
		"--no-warnings", "--no-playlist",
		url,
	}
	cmd := exec.CommandContext(ctx, y.binary(), args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := stderr.String()
		wrapped := fmt.Errorf("yt-dlp: %w: %s", err, firstLine(msg))
		if isPermissionFailure(msg) {
			return Audio{}, retry.Permanent(wrapped)
		}
		return Audio{}, wrapped
	}

	path, err := newestMP3(dir)
	if err != nil {
		return Audio{}, err
	}
	meta.Path = path
	log.Debug().Str("path", path).Str("title", meta.Title).Msg("audio downloaded")
	return meta, nil
}

// probe asks yt-dlp for title/uploader/duration without downloading.
// Failures leave the fields empty; the transcript still carries the content.
func (y *YTDLP) probe(ctx context.Context, url string) Audio {
	cmd := exec.CommandContext(ctx, y.binary(),
		"--no-download", "--no-warnings",
		"--print", "%(title)s\n%(uploader)s\n%(duration)s",
		url,
	)
	out, err := cmd.Output()
	if err != nil {
		log.Warn().Err(err).Str("url", url).Msg("media metadata probe failed")
		return Audio{}
	}
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	var a Audio
	if len(lines) > 0 && lines[0] != "NA" {
		a.Title = lines[0]
	}
	if len(lines) > 1 && lines[1] != "NA" {
		a.Author = lines[1]
	}
	if len(lines) > 2 && lines[2] != "NA" {
		if d, err := strconv.ParseFloat(lines[2], 64); err == nil {
			a.Duration = d
		}
	}
	return a
}

func isPermissionFailure(stderr string) bool {
	s := strings.ToLower(stderr)
	for _, marker := range []string{"sign in", "login required", "403", "private video", "members-only", "geo restricted"} {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func newestMP3(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	var newest string
	var newestMod int64
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".mp3") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if mod := info.ModTime().UnixNano(); newest == "" || mod > newestMod {
			newest = filepath.Join(dir, e.Name())
			newestMod = mod
		}
	}
	if newest == "" {
		return "", fmt.Errorf("no audio file found after download")
	}
	return newest, nil
}

// OpenAITranscriber sends the audio file to an OpenAI-compatible
// /audio/transcriptions endpoint.
type OpenAITranscriber struct {
	Client llm.Transcriber
	Model  string
}

func (t *OpenAITranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	model := t.Model
	if model == "" {
		model = openai.Whisper1
	}
	resp, err := t.Client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    model,
		FilePath: audioPath,
	})
	if err != nil {
		if llm.IsQuotaError(err) {
			return "", retry.Permanent(fmt.Errorf("transcription quota exceeded: %w", err))
		}
		return "", fmt.Errorf("transcription: %w", err)
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", fmt.Errorf("transcription returned empty text")
	}
	return text, nil
}
