package background

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/flanksource/certify/api"
	commonshttp "github.com/flanksource/commons/http"
)

// AppwriteConfig holds the credentials of an Appwrite storage bucket.
type AppwriteConfig struct {
	Endpoint  string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	ProjectID string `json:"projectId,omitempty" yaml:"projectId,omitempty"`
	APIKey    string `json:"-" yaml:"apiKey,omitempty"`
	BucketID  string `json:"bucketId,omitempty" yaml:"bucketId,omitempty"`
}

// AppwriteConfigFromEnv reads APPWRITE_ENDPOINT, APPWRITE_PROJECT_ID, APPWRITE_API_KEY and APPWRITE_BUCKET_ID.
func AppwriteConfigFromEnv() AppwriteConfig {
	return AppwriteConfig{
		Endpoint:  os.Getenv("APPWRITE_ENDPOINT"),
		ProjectID: os.Getenv("APPWRITE_PROJECT_ID"),
		APIKey:    os.Getenv("APPWRITE_API_KEY"),
		BucketID:  os.Getenv("APPWRITE_BUCKET_ID"),
	}
}

// Merge fills empty fields of c from other.
func (c AppwriteConfig) Merge(other AppwriteConfig) AppwriteConfig {
	if c.Endpoint == "" {
		c.Endpoint = other.Endpoint
	}
	if c.ProjectID == "" {
		c.ProjectID = other.ProjectID
	}
	if c.APIKey == "" {
		c.APIKey = other.APIKey
	}
	if c.BucketID == "" {
		c.BucketID = other.BucketID
	}
	return c
}

// IsEmpty is true when nothing is configured.
func (c AppwriteConfig) IsEmpty() bool {
	return c == AppwriteConfig{}
}

// Validate lists every missing setting in a single error.
func (c AppwriteConfig) Validate() error {
	var missing []string
	if c.Endpoint == "" {
		missing = append(missing, "APPWRITE_ENDPOINT")
	}
	if c.ProjectID == "" {
		missing = append(missing, "APPWRITE_PROJECT_ID")
	}
	if c.APIKey == "" {
		missing = append(missing, "APPWRITE_API_KEY")
	}
	if c.BucketID == "" {
		missing = append(missing, "APPWRITE_BUCKET_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing Appwrite configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// AppwriteStore downloads files from an Appwrite storage bucket over its REST API.
type AppwriteStore struct {
	config AppwriteConfig
	client *commonshttp.Client
}

// NewAppwriteStore validates the config and returns a store whose client carries the
// project and key headers on every request.
func NewAppwriteStore(config AppwriteConfig) (*AppwriteStore, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.Endpoint = strings.TrimSuffix(config.Endpoint, "/")
	client := commonshttp.NewClient().
		BaseURL(config.Endpoint).
		UserAgent("certify").
		Header("X-Appwrite-Project", config.ProjectID).
		Header("X-Appwrite-Key", config.APIKey).
		Timeout(30*time.Second).
		Retry(2, time.Second, 2.0)
	// verify server certificates, the client skips verification without a TLS config
	if _, err := client.TLSConfig(commonshttp.TLSConfig{}); err != nil {
		return nil, err
	}
	return &AppwriteStore{config: config, client: client}, nil
}

// Download fetches the file contents, a 404 is reported as api.ErrNotFound.
func (s *AppwriteStore) Download(ctx context.Context, id string) ([]byte, error) {
	path := fmt.Sprintf("/storage/buckets/%s/files/%s/download", url.PathEscape(s.config.BucketID), url.PathEscape(id))

	resp, err := s.client.R(ctx).Get(path)
	if err != nil {
		return nil, fmt.Errorf("appwrite download %s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("appwrite file %s: %w", id, api.ErrNotFound)
	}
	if !resp.IsOK() {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("appwrite download %s: HTTP %d: %s", id, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return io.ReadAll(resp.Body)
}
