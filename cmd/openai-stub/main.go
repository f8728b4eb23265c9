// openai-stub is a local OpenAI-compatible server for exercising gocollect
// without a real backend. It answers chat completions (classification and
// transcript reformatting), embeddings and audio transcriptions with
// deterministic canned data.
package main

import (
	"encoding/json"
	"hash/fnv"
	"log"
	"net/http"
	"os"
	"strings"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

type embeddingRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"`
}

func main() {
	model := os.Getenv("MODEL_ID")
	if strings.TrimSpace(model) == "" {
		model = "test-model"
	}
	addr := os.Getenv("ADDR")
	if strings.TrimSpace(addr) == "" {
		addr = ":8081"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"id": model, "object": "model"}},
		})
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		first, last := "", ""
		if len(req.Messages) > 0 {
			first = strings.TrimSpace(req.Messages[0].Content)
			last = strings.TrimSpace(req.Messages[len(req.Messages)-1].Content)
		}
		var content string
		switch {
		case strings.Contains(first, "filing assistant"):
			// Pick the first listed directory so runs are reproducible.
			choice := map[string]string{"directory": "", "confidence": "low", "reason": "stub"}
			for _, line := range strings.Split(last, "\n") {
				if name, ok := strings.CutPrefix(strings.TrimSpace(line), "- "); ok {
					choice["directory"] = name
					choice["confidence"] = "high"
					break
				}
			}
			b, _ := json.Marshal(choice)
			content = string(b)
		case strings.Contains(first, "reformat raw speech transcripts"):
			content = "## 内容\n\n" + last
		default:
			http.Error(w, "unexpected system prompt", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": content}},
			},
		})
	})
	mux.HandleFunc("/v1/embeddings", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var req embeddingRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		var inputs []string
		switch v := req.Input.(type) {
		case string:
			inputs = []string{v}
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok {
					inputs = append(inputs, s)
				}
			}
		}
		data := make([]map[string]any, len(inputs))
		for i, in := range inputs {
			data[i] = map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": vectorFor(in),
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data})
	})
	mux.HandleFunc("/v1/audio/transcriptions", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"text": "这是一个用于本地测试的固定转写文本。",
		})
	})

	log.Printf("openai-stub listening on %s (model=%s)", addr, model)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal(err)
	}
}

// vectorFor hashes the input into a small deterministic unit-ish vector so
// identical strings always match themselves with score 1.
func vectorFor(s string) []float32 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	seed := h.Sum64()
	vec := make([]float32, 8)
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(seed%1000) / 1000.0
	}
	return vec
}
