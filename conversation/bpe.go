package conversation

import (
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// maxBPEFile caps a downloaded rank file; cl100k_base is about 1.7MB.
const maxBPEFile = 16 << 20

// defaultBPETimeout bounds the rank file download when none is configured.
const defaultBPETimeout = 30 * time.Second

// bpeLoader fetches tiktoken rank files with a bounded HTTP client and keeps
// a copy in cacheDir. It implements tiktoken.BpeLoader.
type bpeLoader struct {
	client   *http.Client
	cacheDir string
}

func newBPELoader(timeout time.Duration, cacheDir string) *bpeLoader {
	if timeout <= 0 {
		timeout = defaultBPETimeout
	}
	return &bpeLoader{client: &http.Client{Timeout: timeout}, cacheDir: cacheDir}
}

func (l *bpeLoader) LoadTiktokenBpe(src string) (map[string]int, error) {
	data, err := l.read(src)
	if err != nil {
		return nil, err
	}
	return parseBPE(data)
}

func (l *bpeLoader) read(src string) ([]byte, error) {
	if !strings.HasPrefix(src, "http://") && !strings.HasPrefix(src, "https://") {
		return os.ReadFile(src)
	}

	var cachePath string
	if l.cacheDir != "" {
		cachePath = filepath.Join(l.cacheDir, fmt.Sprintf("%x", sha1.Sum([]byte(src))))
		if data, err := os.ReadFile(cachePath); err == nil {
			return data, nil
		}
	}

	resp, err := l.client.Get(src)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", src, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: %s", src, resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBPEFile))
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", src, err)
	}

	if cachePath != "" {
		// A failed cache write only costs a download next time.
		if err := os.MkdirAll(l.cacheDir, 0o700); err == nil {
			tmp := cachePath + ".tmp"
			if os.WriteFile(tmp, data, 0o600) == nil {
				_ = os.Rename(tmp, cachePath)
			}
		}
	}
	return data, nil
}

// parseBPE reads "<base64 token> <rank>" lines.
func parseBPE(data []byte) (map[string]int, error) {
	ranks := make(map[string]int)
	for i, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		tok, rank, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("rank file line %d: missing rank", i+1)
		}
		b, err := base64.StdEncoding.DecodeString(tok)
		if err != nil {
			return nil, fmt.Errorf("rank file line %d: %w", i+1, err)
		}
		n, err := strconv.Atoi(strings.TrimSpace(rank))
		if err != nil {
			return nil, fmt.Errorf("rank file line %d: %w", i+1, err)
		}
		ranks[string(b)] = n
	}
	return ranks, nil
}
