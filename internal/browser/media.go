package browser

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

const maxMediaBytes = 15 << 20

var mediaClient = &http.Client{Timeout: 30 * time.Second}

// downloadMedia fetches each URL into dir and returns the files that were
// saved. Failed downloads are logged and left out.
func downloadMedia(ctx context.Context, logger *zap.Logger, urls []string, dir string) []string {
	var files []string
	for i, u := range urls {
		file, err := fetchMedia(ctx, u, dir, i)
		if err != nil {
			logger.Warn("Failed to download media, posting without it", zap.String("url", u), zap.Error(err))
			continue
		}
		files = append(files, file)
	}
	return files
}

func fetchMedia(ctx context.Context, rawURL, dir string, n int) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := mediaClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	name := filepath.Join(dir, fmt.Sprintf("media_%d%s", n, mediaExt(rawURL, resp.Header.Get("Content-Type"))))
	f, err := os.Create(name)
	if err != nil {
		return "", err
	}
	written, copyErr := io.Copy(f, io.LimitReader(resp.Body, maxMediaBytes+1))
	if err := f.Close(); err != nil && copyErr == nil {
		copyErr = err
	}
	if copyErr != nil {
		return "", copyErr
	}
	if written > maxMediaBytes {
		return "", fmt.Errorf("media exceeds %d bytes", maxMediaBytes)
	}
	return name, nil
}

// mediaExt prefers the content type, then the platform's format query
// parameter, then the URL path.
func mediaExt(rawURL, contentType string) string {
	if ct, _, err := mime.ParseMediaType(contentType); err == nil {
		switch ct {
		case "image/jpeg":
			return ".jpg"
		case "image/png":
			return ".png"
		case "image/gif":
			return ".gif"
		case "image/webp":
			return ".webp"
		case "video/mp4":
			return ".mp4"
		}
	}
	base := rawURL
	if i := strings.IndexAny(base, "?#"); i >= 0 {
		if q := base[i:]; strings.Contains(q, "format=") {
			format := q[strings.Index(q, "format=")+len("format="):]
			if j := strings.IndexAny(format, "&#"); j >= 0 {
				format = format[:j]
			}
			if format != "" {
				return "." + format
			}
		}
		base = base[:i]
	}
	if ext := path.Ext(base); ext != "" && len(ext) <= 5 {
		return ext
	}
	return ".jpg"
}
