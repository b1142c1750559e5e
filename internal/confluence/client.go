// Package confluence implements the remote document gateway against the
// Confluence REST API (v1 content endpoints, cloud and server).
package confluence

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	stdsync "sync"
	"time"

	"github.com/confhub/confsync/internal/config"
	"github.com/confhub/confsync/internal/sync"
)

const (
	apiTimeout      = 30 * time.Second
	downloadTimeout = 120 * time.Second
	pageLimit       = 50
)

// Client talks to the Confluence REST API. It implements sync.Gateway.
type Client struct {
	baseURL  string
	username string
	token    string
	api      *http.Client
	download *http.Client
	limit    int
	retry    RetryConfig
	logger   *log.Logger

	mu        stdsync.Mutex
	downloads map[string]string // attachment ID -> download path
}

var _ sync.Gateway = (*Client)(nil)

// NewClient builds a client from loaded credentials. Downloads get a
// longer timeout than API calls since attachments can be large.
func NewClient(creds config.Credentials, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(os.Stderr, "[api] ", log.LstdFlags)
	}
	return &Client{
		baseURL:   strings.TrimRight(creds.BaseURL, "/"),
		username:  creds.Username,
		token:     creds.APIToken,
		api:       &http.Client{Timeout: apiTimeout},
		download:  &http.Client{Timeout: downloadTimeout},
		limit:     pageLimit,
		retry:     DefaultRetryConfig(),
		logger:    logger,
		downloads: make(map[string]string),
	}
}

type pageResponse struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Version struct {
		Number int `json:"number"`
	} `json:"version"`
	Body struct {
		Storage struct {
			Value string `json:"value"`
		} `json:"storage"`
	} `json:"body"`
}

type childPageList struct {
	Results []struct {
		ID string `json:"id"`
	} `json:"results"`
}

type attachmentResult struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Extensions struct {
		MediaType string `json:"mediaType"`
	} `json:"extensions"`
	Links struct {
		Download string `json:"download"`
	} `json:"_links"`
}

type attachmentList struct {
	Results []attachmentResult `json:"results"`
}

type updateRequest struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Title   string `json:"title"`
	Version struct {
		Number int `json:"number"`
	} `json:"version"`
	Body struct {
		Storage struct {
			Value          string `json:"value"`
			Representation string `json:"representation"`
		} `json:"storage"`
	} `json:"body"`
}

// GetDocument fetches a page with its storage body and version, then
// lists its child pages and attachments. One gateway call, several HTTP
// requests.
func (c *Client) GetDocument(ctx context.Context, id string) (*sync.Document, error) {
	var page pageResponse
	query := url.Values{"expand": {"body.storage,version"}}
	if err := c.getJSON(ctx, "get page "+id, "/rest/api/content/"+id, query, &page); err != nil {
		return nil, err
	}

	childIDs, err := c.childPages(ctx, id)
	if err != nil {
		return nil, err
	}
	atts, err := c.attachments(ctx, id)
	if err != nil {
		return nil, err
	}

	doc := &sync.Document{
		ID:       page.ID,
		Title:    page.Title,
		Version:  page.Version.Number,
		Content:  page.Body.Storage.Value,
		ChildIDs: childIDs,
	}
	for _, a := range atts {
		doc.Attachments = append(doc.Attachments, sync.Attachment{
			ID:        a.ID,
			Filename:  a.Title,
			MediaType: a.Extensions.MediaType,
		})
	}
	return doc, nil
}

// UpdateDocument fetches the current title and version, then PUTs the
// new storage body as version current+1. The remote answers 409 when
// someone else got there first.
func (c *Client) UpdateDocument(ctx context.Context, id, content string) (int, error) {
	var current pageResponse
	query := url.Values{"expand": {"version"}}
	if err := c.getJSON(ctx, "get page "+id, "/rest/api/content/"+id, query, &current); err != nil {
		return 0, err
	}

	payload := updateRequest{ID: id, Type: "page", Title: current.Title}
	payload.Version.Number = current.Version.Number + 1
	payload.Body.Storage.Value = content
	payload.Body.Storage.Representation = "storage"

	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal update for %s: %w", id, err)
	}

	op := "update page " + id
	var updated pageResponse
	err = withRetry(ctx, c.retry, func() error {
		req, err := c.newRequest(ctx, http.MethodPut, "/rest/api/content/"+id, nil, bytes.NewReader(body))
		if err != nil {
			return err
		}
		resp, err := c.api.Do(req)
		if err != nil {
			return retryable(&sync.TransportError{Op: op, Err: err})
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return c.statusError(op, resp)
		}
		if err := json.NewDecoder(resp.Body).Decode(&updated); err != nil {
			return fmt.Errorf("%s: decode response: %w", op, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	c.logger.Printf("updated page %s to v%d", id, updated.Version.Number)
	return updated.Version.Number, nil
}

// GetAttachment downloads one attachment. Download paths are cached from
// attachment listings; an unseen ID costs one extra metadata request.
func (c *Client) GetAttachment(ctx context.Context, id, attachmentID string) ([]byte, error) {
	c.mu.Lock()
	download := c.downloads[attachmentID]
	c.mu.Unlock()

	if download == "" {
		var att attachmentResult
		if err := c.getJSON(ctx, "get attachment "+attachmentID, "/rest/api/content/"+attachmentID, nil, &att); err != nil {
			return nil, err
		}
		if att.Links.Download == "" {
			return nil, &sync.TransportError{
				Op:  "get attachment " + attachmentID,
				Err: errors.New("response carries no download link"),
			}
		}
		download = att.Links.Download
		c.mu.Lock()
		c.downloads[attachmentID] = download
		c.mu.Unlock()
	}

	op := "download attachment " + attachmentID
	target := download
	if !strings.HasPrefix(target, "http") {
		target = c.baseURL + target
	}

	var data []byte
	err := withRetry(ctx, c.retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		req.SetBasicAuth(c.username, c.token)
		resp, err := c.download.Do(req)
		if err != nil {
			return retryable(&sync.TransportError{Op: op, Err: err})
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return c.statusError(op, resp)
		}
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return retryable(&sync.TransportError{Op: op, Err: err})
		}
		data = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (c *Client) childPages(ctx context.Context, id string) ([]string, error) {
	var ids []string
	for start := 0; ; start += c.limit {
		var list childPageList
		query := url.Values{
			"start": {strconv.Itoa(start)},
			"limit": {strconv.Itoa(c.limit)},
		}
		if err := c.getJSON(ctx, "list children of "+id, "/rest/api/content/"+id+"/child/page", query, &list); err != nil {
			return nil, err
		}
		for _, r := range list.Results {
			ids = append(ids, r.ID)
		}
		if len(list.Results) < c.limit {
			return ids, nil
		}
	}
}

func (c *Client) attachments(ctx context.Context, id string) ([]attachmentResult, error) {
	var all []attachmentResult
	for start := 0; ; start += c.limit {
		var list attachmentList
		query := url.Values{
			"start": {strconv.Itoa(start)},
			"limit": {strconv.Itoa(c.limit)},
		}
		if err := c.getJSON(ctx, "list attachments of "+id, "/rest/api/content/"+id+"/child/attachment", query, &list); err != nil {
			return nil, err
		}
		all = append(all, list.Results...)
		if len(list.Results) < c.limit {
			break
		}
	}

	c.mu.Lock()
	for _, a := range all {
		if a.Links.Download != "" {
			c.downloads[a.ID] = a.Links.Download
		}
	}
	c.mu.Unlock()
	return all, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.username, c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) getJSON(ctx context.Context, op, path string, query url.Values, out any) error {
	return withRetry(ctx, c.retry, func() error {
		req, err := c.newRequest(ctx, http.MethodGet, path, query, nil)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		resp, err := c.api.Do(req)
		if err != nil {
			return retryable(&sync.TransportError{Op: op, Err: err})
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return c.statusError(op, resp)
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s: decode response: %w", op, err)
		}
		return nil
	})
}

// statusError maps an HTTP failure onto the engine's error taxonomy.
// Rate limits and server errors come back retryable; client errors
// never do.
func (c *Client) statusError(op string, resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%s: %s (check %s and %s): %w",
			op, resp.Status, config.EnvUsername, config.EnvAPIToken, sync.ErrAccessDenied)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, sync.ErrNotFound)
	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("%s: %w", op, sync.ErrVersionConflict)
	case resp.StatusCode == http.StatusTooManyRequests:
		return retryable(&sync.TransportError{
			Op:     op,
			Status: resp.StatusCode,
			Err:    errors.New("rate limited by the remote, lower the worker count"),
		})
	case resp.StatusCode >= 500:
		return retryable(&sync.TransportError{
			Op:     op,
			Status: resp.StatusCode,
			Err:    errors.New(resp.Status),
		})
	default:
		return &sync.TransportError{Op: op, Status: resp.StatusCode, Err: errors.New(resp.Status)}
	}
}
