package ledger

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/orkutrevival/backend/internal/config"
	"github.com/orkutrevival/backend/internal/logger"
	"github.com/orkutrevival/backend/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

var (
	ErrFileNotFound = errors.New("file not found")
	ErrBadToken     = errors.New("github token is invalid or lacks permissions")
	ErrForbidden    = errors.New("no permission to access the github repository")
	ErrRepoNotFound = errors.New("github repository or file not found")
	ErrConflict     = errors.New("file changed since it was read")
	ErrRejected     = errors.New("github rejected the request")
)

// GitHubError is a non-2xx answer from the contents API
type GitHubError struct {
	Status  int
	Message string
	Err     error
}

func (e *GitHubError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("github: %s (status %d): %s", e.Err, e.Status, e.Message)
	}
	return fmt.Sprintf("github: %s (status %d)", e.Err, e.Status)
}

func (e *GitHubError) Unwrap() error {
	return e.Err
}

// FileContent is a decoded file from the contents API
type FileContent struct {
	SHA     string
	Content []byte
}

// CommitResult describes a successful write
type CommitResult struct {
	CommitURL string `json:"commitUrl"`
	SHA       string `json:"sha"`
	CommitSHA string `json:"commitSha"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// ContentsClient reads and writes single files through the GitHub contents API
type ContentsClient struct {
	http   *resty.Client
	owner  string
	repo   string
	branch string
}

type contentsResponse struct {
	SHA      string `json:"sha"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

type putRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha,omitempty"`
	Branch  string `json:"branch,omitempty"`
}

type putResponse struct {
	Content struct {
		SHA string `json:"sha"`
	} `json:"content"`
	Commit struct {
		SHA     string `json:"sha"`
		HTMLURL string `json:"html_url"`
	} `json:"commit"`
}

type apiError struct {
	Message string `json:"message"`
}

// NewContentsClient builds a client authenticated with cfg.Token. Outgoing
// requests are traced.
func NewContentsClient(cfg config.GitHubConfig) *ContentsClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = "https://api.github.com"
	}

	transport := &oauth2.Transport{
		Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token, TokenType: "Bearer"}),
		Base:   telemetry.NewInstrumentedTransport(nil),
	}

	client := resty.NewWithClient(&http.Client{Transport: transport}).
		SetBaseURL(strings.TrimRight(apiURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/vnd.github+json").
		SetHeader("X-GitHub-Api-Version", "2022-11-28").
		SetHeader("User-Agent", "orkut-backend")

	client.OnAfterResponse(func(c *resty.Client, resp *resty.Response) error {
		logger.Log.Debug("GitHub response",
			zap.String("method", resp.Request.Method),
			zap.String("url", resp.Request.URL),
			zap.Int("status", resp.StatusCode()),
			zap.Duration("duration", resp.Time()))
		return nil
	})

	return &ContentsClient{
		http:   client,
		owner:  cfg.Owner,
		repo:   cfg.Repo,
		branch: cfg.Branch,
	}
}

func (c *ContentsClient) contentsURL(path string) string {
	return "/repos/{owner}/{repo}/contents/" + strings.TrimLeft(path, "/")
}

func (c *ContentsClient) request(ctx context.Context) *resty.Request {
	return c.http.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"owner": c.owner, "repo": c.repo}).
		SetError(&apiError{})
}

// GetFile fetches and decodes path. A missing file returns ErrFileNotFound.
func (c *ContentsClient) GetFile(ctx context.Context, path string) (*FileContent, error) {
	ctx, span := telemetry.TraceExternalCall(ctx, "github", "get_contents",
		attribute.String("github.repo", c.owner+"/"+c.repo),
		attribute.String("github.path", path))
	defer span.End()

	var body contentsResponse
	req := c.request(ctx).SetResult(&body)
	if c.branch != "" {
		req.SetQueryParam("ref", c.branch)
	}

	resp, err := req.Get(c.contentsURL(path))
	if err != nil {
		telemetry.RecordExternalCallError(span, err, 0)
		return nil, fmt.Errorf("github request failed: %w", err)
	}
	if resp.IsError() {
		apiErr := mapStatus(resp, true)
		telemetry.RecordExternalCallError(span, apiErr, resp.StatusCode())
		return nil, apiErr
	}

	raw := strings.NewReplacer("\n", "", "\r", "").Replace(body.Content)
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return &FileContent{SHA: body.SHA, Content: decoded}, nil
}

// PutFile creates or replaces path. sha must be the blob sha the content
// was derived from, or empty to create the file; a stale sha returns
// ErrConflict.
func (c *ContentsClient) PutFile(ctx context.Context, path string, content []byte, sha, message string) (*CommitResult, error) {
	ctx, span := telemetry.TraceExternalCall(ctx, "github", "put_contents",
		attribute.String("github.repo", c.owner+"/"+c.repo),
		attribute.String("github.path", path))
	defer span.End()

	var body putResponse
	resp, err := c.request(ctx).
		SetBody(putRequest{
			Message: message,
			Content: base64.StdEncoding.EncodeToString(content),
			SHA:     sha,
			Branch:  c.branch,
		}).
		SetResult(&body).
		Put(c.contentsURL(path))
	if err != nil {
		telemetry.RecordExternalCallError(span, err, 0)
		return nil, fmt.Errorf("github request failed: %w", err)
	}
	if resp.IsError() {
		apiErr := mapStatus(resp, false)
		telemetry.RecordExternalCallError(span, apiErr, resp.StatusCode())
		return nil, apiErr
	}

	return &CommitResult{
		CommitURL: body.Commit.HTMLURL,
		SHA:       body.Content.SHA,
		CommitSHA: body.Commit.SHA,
		Message:   message,
	}, nil
}

// mapStatus turns an error response into a GitHubError. On reads a 404 is
// a missing file; on writes it means the repository is unreachable.
func mapStatus(resp *resty.Response, read bool) error {
	msg := ""
	if e, ok := resp.Error().(*apiError); ok && e != nil {
		msg = e.Message
	}

	var kind error
	switch resp.StatusCode() {
	case http.StatusUnauthorized:
		kind = ErrBadToken
	case http.StatusForbidden:
		kind = ErrForbidden
	case http.StatusNotFound:
		if read {
			kind = ErrFileNotFound
		} else {
			kind = ErrRepoNotFound
		}
	case http.StatusConflict:
		kind = ErrConflict
	case http.StatusUnprocessableEntity:
		// 422 also covers bad branches and malformed content; only a sha
		// mismatch is worth re-reading the file for
		if strings.Contains(strings.ToLower(msg), "sha") {
			kind = ErrConflict
		} else {
			kind = ErrRejected
		}
	default:
		kind = errors.New("unexpected response")
	}
	return &GitHubError{Status: resp.StatusCode(), Message: msg, Err: kind}
}
