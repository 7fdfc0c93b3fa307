package s2grid

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

const fetchUserAgent = "s2grid/1.0"

// Fetcher resolves the pipeline's input sources. Supported schemes are
// http(s)://, s3://bucket/key, file://, and bare local paths. When a cache
// directory is set, downloads are reused across runs by URL basename.
type Fetcher struct {
	httpClient *http.Client
	cacheDir   string
	retries    int
}

func NewFetcher(timeout time.Duration, cacheDir string) *Fetcher {
	httpClient := &http.Client{}
	httpClient.Timeout = timeout
	httpClient.Transport = &http.Transport{
		MaxIdleConnsPerHost: 4,
	}

	return &Fetcher{
		httpClient: httpClient,
		cacheDir:   cacheDir,
		retries:    5,
	}
}

// Fetch returns the contents of the given source.
func (f *Fetcher) Fetch(source string) ([]byte, error) {
	switch {
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		return f.cached(source, f.fetchHTTP)
	case strings.HasPrefix(source, "s3://"):
		return f.cached(source, f.fetchS3)
	case strings.HasPrefix(source, "file://"):
		return os.ReadFile(strings.TrimPrefix(source, "file://"))
	default:
		return os.ReadFile(source)
	}
}

// cached wraps a remote fetch with the download cache: a file named after
// the URL basename is reused if present and written after a successful
// download.
func (f *Fetcher) cached(source string, fetch func(string) ([]byte, error)) ([]byte, error) {
	if f.cacheDir == "" {
		return fetch(source)
	}

	name, err := sourceBasename(source)
	if err != nil {
		return nil, err
	}
	cachePath := filepath.Join(f.cacheDir, name)

	if data, err := os.ReadFile(cachePath); err == nil {
		slog.Info("already exists; skip downloading", "path", cachePath)
		return data, nil
	}

	data, err := fetch(source)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(f.cacheDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory, %w", err)
	}
	if err := os.WriteFile(cachePath, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write cache file %s, %w", cachePath, err)
	}
	slog.Info("downloaded", "source", source, "path", cachePath, "bytes", len(data))

	return data, nil
}

func (f *Fetcher) fetchHTTP(source string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to create HTTP request for %s, %w", source, err)
	}
	req.Header.Add("User-Agent", fetchUserAgent)

	resp, err := f.doWithRetry(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body from %s, %w", source, err)
	}

	return data, nil
}

// doWithRetry retries 5xx responses with exponential backoff, starting at
// 500ms and capped at 30s. Any other non-200 status fails immediately.
func (f *Fetcher) doWithRetry(req *http.Request) (*http.Response, error) {
	sleep := 500 * time.Millisecond

	for i := 0; i < f.retries; i++ {
		resp, err := f.httpClient.Do(req)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode == http.StatusOK {
			return resp, nil
		}

		status := resp.Status
		resp.Body.Close()

		if resp.StatusCode >= 500 && resp.StatusCode < 600 {
			time.Sleep(sleep)
			sleep *= 2
			if sleep > 30*time.Second {
				sleep = 30 * time.Second
			}
			continue
		}

		return nil, fmt.Errorf("failed to GET %s: %s", req.URL, status)
	}

	return nil, fmt.Errorf("ran out of HTTP GET retries for %s", req.URL)
}

func (f *Fetcher) fetchS3(source string) ([]byte, error) {
	u, err := url.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("invalid s3 URL %s, %w", source, err)
	}
	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")

	sess, err := session.NewSessionWithOptions(session.Options{
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session, %w", err)
	}

	downloader := s3manager.NewDownloader(sess)

	buf := &aws.WriteAtBuffer{}
	_, err = downloader.Download(buf, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("unable to download s3://%s/%s, %w", bucket, key, err)
	}

	return buf.Bytes(), nil
}

func sourceBasename(source string) (string, error) {
	u, err := url.Parse(source)
	if err != nil {
		return "", fmt.Errorf("invalid source URL %s, %w", source, err)
	}

	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "", fmt.Errorf("source URL %s has no usable basename", source)
	}

	return name, nil
}
