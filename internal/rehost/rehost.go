// Package rehost downloads the images referenced by extracted content,
// uploads them to blob storage under deterministic date-partitioned paths
// and rewrites the content body to point at their CDN URLs. Failures are
// per-image: a dropped image degrades the document, never the run.
package rehost

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/gocollect/internal/extract"
	"github.com/hyperifyio/gocollect/internal/fetch"
	"github.com/hyperifyio/gocollect/internal/retry"
)

// BlobStore is the durable storage the pipeline uploads into. Put to an
// existing path must be treated as success by callers; Exists lets them
// skip the upload entirely.
type BlobStore interface {
	Exists(ctx context.Context, path string) (bool, error)
	Put(ctx context.Context, path string, data []byte) error
}

// CDNURLFunc maps a blob path to its public CDN URL. Pure, no network.
type CDNURLFunc func(path string) string

// Rehoster runs the download/upload/rewrite pipeline.
type Rehoster struct {
	Client *fetch.Client
	Store  BlobStore
	CDNURL CDNURLFunc
	// WorkDir receives downloaded image files; the pipeline owner removes
	// it at run end.
	WorkDir string
	// Workers bounds the download/upload pool. Zero means 4.
	Workers int
	// MaxImageBytes drops oversized downloads. Zero means 20 MiB.
	MaxImageBytes int64
	Retry         retry.Policy

	// now is replaceable for deterministic path tests.
	now func() time.Time
}

// Rehost processes images concurrently and returns the survivors in their
// original order. Failed images are dropped, not errors: the caller's body
// keeps their original URLs.
func (r *Rehoster) Rehost(ctx context.Context, images []extract.ImageRef) []extract.ImageRef {
	if len(images) == 0 {
		return nil
	}
	workers := r.Workers
	if workers <= 0 {
		workers = 4
	}

	results := make([]*extract.ImageRef, len(images))
	locks := &keyedMutex{locks: make(map[string]*sync.Mutex)}

	var wg sync.WaitGroup
	pool, err := ants.NewPool(workers)
	if err != nil {
		log.Warn().Err(err).Msg("worker pool unavailable; rehosting serially")
	} else {
		defer pool.Release()
	}
	for i := range images {
		i := i
		wg.Add(1)
		task := func() {
			defer wg.Done()
			ref, err := r.rehostOne(ctx, images[i], locks)
			if err != nil {
				log.Warn().Str("url", images[i].OriginalURL).Err(err).Msg("image dropped")
				return
			}
			results[i] = ref
		}
		if pool == nil || pool.Submit(task) != nil {
			task()
		}
	}
	wg.Wait()

	out := make([]extract.ImageRef, 0, len(images))
	for _, ref := range results {
		if ref != nil {
			out = append(out, *ref)
		}
	}
	log.Info().Int("total", len(images)).Int("rehosted", len(out)).Msg("image rehosting done")
	return out
}

func (r *Rehoster) rehostOne(ctx context.Context, ref extract.ImageRef, locks *keyedMutex) (*extract.ImageRef, error) {
	maxBytes := r.MaxImageBytes
	if maxBytes <= 0 {
		maxBytes = 20 << 20
	}
	type download struct {
		data []byte
		ct   string
	}
	dl, err := retry.Do(ctx, r.Retry, "download image", func(ctx context.Context) (download, error) {
		// The image's own URL as Referer defeats referrer-based
		// hot-link protection on hosts like mmbiz.qpic.cn.
		data, ct, err := r.Client.Get(ctx, ref.OriginalURL, fetch.Options{
			Referer:          ref.OriginalURL,
			Accept:           "image/avif,image/webp,image/apng,image/*,*/*;q=0.8",
			MaxBytes:         maxBytes,
			AllowContentType: fetch.IsImageContentType,
		})
		return download{data: data, ct: ct}, err
	})
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}

	blobPath := r.blobPath(ref.OriginalURL, dl.ct)
	if r.WorkDir != "" {
		local := filepath.Join(r.WorkDir, path.Base(blobPath))
		if err := os.WriteFile(local, dl.data, 0o644); err == nil {
			ref.LocalPath = local
		}
	}

	// Concurrent uploads to the same path race only up to this gate; the
	// loser sees Exists==true and skips.
	unlock := locks.lock(blobPath)
	defer unlock()

	exists, err := retry.Do(ctx, r.Retry, "blob exists", func(ctx context.Context) (bool, error) {
		return r.Store.Exists(ctx, blobPath)
	})
	if err != nil {
		discardLocal(&ref)
		return nil, fmt.Errorf("exists %s: %w", blobPath, err)
	}
	if !exists {
		if _, err := retry.Do(ctx, r.Retry, "blob put", func(ctx context.Context) (struct{}, error) {
			return struct{}{}, r.Store.Put(ctx, blobPath, dl.data)
		}); err != nil {
			discardLocal(&ref)
			return nil, fmt.Errorf("put %s: %w", blobPath, err)
		}
	} else {
		log.Debug().Str("path", blobPath).Msg("blob already stored; skipping upload")
	}

	ref.HostedURL = r.CDNURL(blobPath)
	return &ref, nil
}

// discardLocal removes the downloaded copy of an image that is being
// dropped; such images never reach the run-end work-dir cleanup.
func discardLocal(ref *extract.ImageRef) {
	if ref.LocalPath == "" {
		return
	}
	if err := os.Remove(ref.LocalPath); err != nil {
		log.Warn().Err(err).Str("path", ref.LocalPath).Msg("failed to remove local image copy")
	}
	ref.LocalPath = ""
}

// blobPath derives a deterministic date-partitioned path from the image
// URL so repeated runs in the same month reuse the stored object.
func (r *Rehoster) blobPath(originalURL, contentType string) string {
	nowFn := r.now
	if nowFn == nil {
		nowFn = time.Now
	}
	t := nowFn().UTC()
	sum := md5.Sum([]byte(originalURL))
	name := hex.EncodeToString(sum[:])[:12] + imageExt(originalURL, contentType)
	return fmt.Sprintf("images/%04d/%02d/%s", t.Year(), int(t.Month()), name)
}

var knownImageExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true, ".bmp": true,
}

func imageExt(rawURL, contentType string) string {
	if u, err := url.Parse(rawURL); err == nil {
		if ext := strings.ToLower(path.Ext(u.Path)); knownImageExts[ext] {
			if ext == ".jpeg" {
				return ".jpg"
			}
			return ext
		}
	}
	switch {
	case strings.Contains(contentType, "png"):
		return ".png"
	case strings.Contains(contentType, "gif"):
		return ".gif"
	case strings.Contains(contentType, "webp"):
		return ".webp"
	default:
		return ".jpg"
	}
}

// RewriteBody replaces every occurrence of each surviving image's original
// URL with its hosted URL. Dropped images keep their original URL in the
// body; the content degrades, it is not scrubbed.
func RewriteBody(body string, images []extract.ImageRef) string {
	for _, ref := range images {
		if ref.HostedURL == "" {
			continue
		}
		body = strings.ReplaceAll(body, ref.OriginalURL, ref.HostedURL)
	}
	return body
}

// keyedMutex serializes work per blob path.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()
	m.Lock()
	return m.Unlock
}
