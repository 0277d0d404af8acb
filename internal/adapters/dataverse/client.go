// Package dataverse implements ports.Repository against the Dataverse native API.
package dataverse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	logadapter "github.com/bft-labs/virusscan/internal/adapters/log"
	"github.com/bft-labs/virusscan/internal/domain"
	"github.com/bft-labs/virusscan/internal/ports"
)

const (
	// DefaultBaseURL is used when no base URL is configured.
	DefaultBaseURL = "http://localhost:8080"

	apiKeyHeader = "X-Dataverse-key"

	infoVersionEndpoint = "/api/info/version"
	statusOK            = "OK"
	maxErrorBody        = 4096
)

// Client talks to a Dataverse installation.
type Client struct {
	baseURL string
	apiKey  string
	client  ports.HTTPClient
	logger  ports.Logger
}

// NewClient creates a Dataverse client. An empty baseURL falls back to DefaultBaseURL.
func NewClient(baseURL, apiKey string, client ports.HTTPClient, logger ports.Logger) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid dataverse url %q", domain.ErrInvalidConfig, baseURL)
	}
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = logadapter.NewNoopLogger()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
		logger:  logger,
	}, nil
}

// envelope is the wrapper every native API response uses.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type fileMetadata struct {
	Label    string `json:"label"`
	DataFile struct {
		ID       int64  `json:"id"`
		Filename string `json:"filename"`
		Filesize int64  `json:"filesize"`
	} `json:"dataFile"`
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("dataverse %s %s returned %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// CheckConnection verifies the API answers the version endpoint with status OK.
func (c *Client) CheckConnection(ctx context.Context) error {
	var env envelope
	if err := c.getJSON(ctx, infoVersionEndpoint, nil, &env); err != nil {
		return err
	}
	if env.Status != statusOK {
		return fmt.Errorf("dataverse version endpoint returned status %q", env.Status)
	}
	return nil
}

// ListFiles returns the files of a dataset version. datasetID is either a
// database id or a persistent identifier such as "doi:10.5072/FK2/ABC".
func (c *Client) ListFiles(ctx context.Context, datasetID, version string) ([]domain.DatasetFile, error) {
	path, query := datasetPath(datasetID)
	path += "/versions/" + url.PathEscape(version) + "/files"

	var env envelope
	if err := c.getJSON(ctx, path, query, &env); err != nil {
		return nil, err
	}

	var metas []fileMetadata
	if err := json.Unmarshal(env.Data, &metas); err != nil {
		return nil, fmt.Errorf("decode file list: %w", err)
	}

	files := make([]domain.DatasetFile, 0, len(metas))
	for _, m := range metas {
		label := m.Label
		if label == "" {
			label = m.DataFile.Filename
		}
		files = append(files, domain.DatasetFile{
			ID:    m.DataFile.ID,
			Label: label,
			Size:  m.DataFile.Filesize,
		})
	}
	return files, nil
}

// OpenFile streams the content of a data file. The caller closes the reader.
func (c *Client) OpenFile(ctx context.Context, fileID int64) (io.ReadCloser, error) {
	path := "/api/access/datafile/" + strconv.FormatInt(fileID, 10)
	resp, err := c.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// ResumeWorkflow posts the step result for a paused workflow invocation.
func (c *Client) ResumeWorkflow(ctx context.Context, invocationID string, result domain.WorkflowResult) error {
	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal workflow result: %w", err)
	}

	path := "/api/workflows/" + url.PathEscape(invocationID)
	resp, err := c.do(ctx, http.MethodPost, path, nil, bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	c.logger.Debug("workflow resumed",
		ports.String("invocation_id", invocationID),
		ports.String("status", string(result.Status)),
	)
	return nil
}

func datasetPath(datasetID string) (string, url.Values) {
	if _, err := strconv.ParseInt(datasetID, 10, 64); err == nil {
		return "/api/datasets/" + datasetID, nil
	}
	return "/api/datasets/:persistentId", url.Values{"persistentId": {datasetID}}
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, v any) error {
	resp, err := c.do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// do sends a request and returns the response for 2xx statuses. Any other
// status is turned into a *StatusError and the body is closed.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Response, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	if resp.StatusCode/100 != 2 {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{
			Method: method,
			Path:   path,
			Code:   resp.StatusCode,
			Body:   strings.TrimSpace(string(respBody)),
		}
	}
	return resp, nil
}
