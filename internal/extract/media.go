package extract

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperifyio/gocollect/internal/llm"
	"github.com/hyperifyio/gocollect/internal/media"
	"github.com/hyperifyio/gocollect/internal/retry"
)

const reformatSystemPrompt = `You reformat raw speech transcripts into clean, readable prose.
Keep the original language of the transcript. Organize the content into
paragraphs with markdown headings where natural topic breaks occur. Remove
filler words and false starts. Do not summarize, translate, or add content.`

// MediaExtractor downloads a media URL's audio track, transcribes it and
// reformats the transcript into structured prose. A terminal failure here
// does not end the run by itself: the chain degrades to the generic page
// strategy on the same URL.
type MediaExtractor struct {
	Fetcher     media.Fetcher
	Transcriber media.Transcriber
	Chat        llm.Client
	Model       string
	// WorkDir receives the downloaded audio; the file is removed as soon
	// as transcription finishes.
	WorkDir string
	Retry   retry.Policy
}

func (e *MediaExtractor) Extract(ctx context.Context, url string) (*ContentRecord, error) {
	audio, err := retry.Do(ctx, e.Retry, "audio fetch", func(ctx context.Context) (media.Audio, error) {
		return e.Fetcher.Fetch(ctx, url, e.WorkDir)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch audio %s: %w", url, err)
	}
	defer func() {
		if audio.Path != "" {
			_ = os.Remove(audio.Path)
		}
	}()

	transcript, err := retry.Do(ctx, e.Retry, "transcribe", func(ctx context.Context) (string, error) {
		return e.Transcriber.Transcribe(ctx, audio.Path)
	})
	if err != nil {
		return nil, fmt.Errorf("transcribe %s: %w", url, err)
	}

	body := e.reformat(ctx, transcript, audio.Title)

	title := audio.Title
	if title == "" {
		title = firstWords(transcript, 12)
	}
	return &ContentRecord{
		Title:  title,
		Author: audio.Author,
		Body:   body,
	}, nil
}

// reformat asks the model to turn the raw transcript into structured prose.
// On any failure the raw transcript is kept: a rough transcript beats
// losing the run.
func (e *MediaExtractor) reformat(ctx context.Context, transcript, title string) string {
	if e.Chat == nil || e.Model == "" {
		return transcript
	}
	user := "Title: " + title + "\n\nTranscript:\n" + transcript
	resp, err := retry.Do(ctx, e.Retry, "reformat transcript", func(ctx context.Context) (openai.ChatCompletionResponse, error) {
		resp, err := e.Chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: e.Model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: reformatSystemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: user},
			},
			Temperature: 0,
		})
		if err != nil && llm.IsQuotaError(err) {
			return resp, retry.Permanent(err)
		}
		return resp, err
	})
	if err != nil || len(resp.Choices) == 0 {
		log.Warn().Err(err).Msg("transcript reformat failed; keeping raw transcript")
		return transcript
	}
	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return transcript
	}
	return out
}

func firstWords(s string, n int) string {
	fields := strings.Fields(s)
	if len(fields) > n {
		fields = fields[:n]
	}
	return strings.Join(fields, " ")
}
