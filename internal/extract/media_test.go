package extract

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperifyio/gocollect/internal/media"
	"github.com/hyperifyio/gocollect/internal/retry"
)

type fakeFetcher struct {
	audio media.Audio
	err   error
}

func (f *fakeFetcher) Fetch(ctx context.Context, url, dir string) (media.Audio, error) {
	return f.audio, f.err
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, path string) (string, error) {
	return f.text, f.err
}

type fakeChat struct {
	content string
	err     error
}

func (f *fakeChat) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{
		{Message: openai.ChatCompletionMessage{Content: f.content}},
	}}, nil
}

func audioFile(t *testing.T) media.Audio {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "ep1.mp3")
	if err := os.WriteFile(path, []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	return media.Audio{Path: path, Title: "Episode 1", Author: "Host"}
}

func TestMediaExtractor_FullFlow(t *testing.T) {
	a := audioFile(t)
	e := &MediaExtractor{
		Fetcher:     &fakeFetcher{audio: a},
		Transcriber: &fakeTranscriber{text: "raw transcript words"},
		Chat:        &fakeChat{content: "## Formatted\n\nClean prose."},
		Model:       "test-model",
		Retry:       retry.Policy{MaxAttempts: 1},
	}
	rec, err := e.Extract(context.Background(), "https://youtu.be/abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Title != "Episode 1" || rec.Author != "Host" {
		t.Fatalf("metadata: %+v", rec)
	}
	if !strings.Contains(rec.Body, "Clean prose.") {
		t.Fatalf("body = %q", rec.Body)
	}
	if _, err := os.Stat(a.Path); !os.IsNotExist(err) {
		t.Fatal("audio file should be removed after transcription")
	}
}

func TestMediaExtractor_ReformatFailureKeepsRawTranscript(t *testing.T) {
	e := &MediaExtractor{
		Fetcher:     &fakeFetcher{audio: audioFile(t)},
		Transcriber: &fakeTranscriber{text: "raw transcript words"},
		Chat:        &fakeChat{err: errors.New("model down")},
		Model:       "test-model",
		Retry:       retry.Policy{MaxAttempts: 1},
	}
	rec, err := e.Extract(context.Background(), "https://youtu.be/abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Body != "raw transcript words" {
		t.Fatalf("body = %q", rec.Body)
	}
}

func TestMediaExtractor_FetchFailurePropagates(t *testing.T) {
	e := &MediaExtractor{
		Fetcher: &fakeFetcher{err: retry.Permanent(errors.New("sign in required"))},
		Retry:   retry.Policy{MaxAttempts: 3, BaseDelay: 1},
	}
	if _, err := e.Extract(context.Background(), "https://youtu.be/abc"); err == nil {
		t.Fatal("expected fetch error")
	}
}

func TestMediaExtractor_TitleFallsBackToTranscript(t *testing.T) {
	a := audioFile(t)
	a.Title = ""
	a.Author = ""
	e := &MediaExtractor{
		Fetcher:     &fakeFetcher{audio: a},
		Transcriber: &fakeTranscriber{text: "welcome back to the show everyone today we talk about compilers and more"},
		Retry:       retry.Policy{MaxAttempts: 1},
	}
	rec, err := e.Extract(context.Background(), "https://youtu.be/abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Title == "" || len(strings.Fields(rec.Title)) > 12 {
		t.Fatalf("title = %q", rec.Title)
	}
}
