// Package issue fetches GitHub issues for triage and caches them on disk so
// repeated runs against the same issue stay offline.
package issue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// ErrNotFound reports an issue the API does not know about.
var ErrNotFound = errors.New("issue not found")

// maxResponseSize bounds a single API response body.
const maxResponseSize = 8 << 20

// Ref identifies one issue.
type Ref struct {
	Owner  string
	Repo   string
	Number int
}

func (r Ref) String() string {
	return fmt.Sprintf("%s/%s#%d", r.Owner, r.Repo, r.Number)
}

// ParseRef accepts "owner/repo#123" or a full issue URL such as
// "https://github.com/owner/repo/issues/123".
func ParseRef(s string) (Ref, error) {
	s = strings.TrimSpace(s)

	if strings.Contains(s, "://") {
		return parseRefURL(s)
	}

	ownerRepo, num, ok := strings.Cut(s, "#")
	if !ok {
		return Ref{}, fmt.Errorf("invalid issue reference %q: want owner/repo#number", s)
	}
	owner, repo, ok := strings.Cut(ownerRepo, "/")
	if !ok || owner == "" || repo == "" {
		return Ref{}, fmt.Errorf("invalid issue reference %q: want owner/repo#number", s)
	}
	number, err := strconv.Atoi(num)
	if err != nil || number <= 0 {
		return Ref{}, fmt.Errorf("invalid issue number in %q", s)
	}
	return Ref{Owner: owner, Repo: repo, Number: number}, nil
}

func parseRefURL(s string) (Ref, error) {
	// https://github.com/<owner>/<repo>/issues/<number>
	_, rest, ok := strings.Cut(s, "://")
	if !ok {
		return Ref{}, fmt.Errorf("invalid issue URL %q", s)
	}
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) != 5 || parts[3] != "issues" {
		return Ref{}, fmt.Errorf("invalid issue URL %q", s)
	}
	number, err := strconv.Atoi(parts[4])
	if err != nil || number <= 0 {
		return Ref{}, fmt.Errorf("invalid issue number in %q", s)
	}
	return Ref{Owner: parts[1], Repo: parts[2], Number: number}, nil
}

// Comment is one issue comment.
type Comment struct {
	Author string
	Body   string
}

// Issue is the triage-relevant slice of a GitHub issue.
type Issue struct {
	Ref       Ref
	Title     string
	Body      string
	State     string
	Author    string
	Labels    []string
	Comments  []Comment
	FetchedAt time.Time
}

// Snippets returns the fenced code blocks from the issue body and comments,
// body first.
func (i *Issue) Snippets() []Snippet {
	snippets := ExtractSnippets(i.Body)
	for _, c := range i.Comments {
		snippets = append(snippets, ExtractSnippets(c.Body)...)
	}
	return snippets
}

// Client fetches issues from the GitHub REST API.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
	cache   *Cache
}

// NewClient builds a Client. cache may be nil to disable caching; token may
// be empty for anonymous access to public repositories.
func NewClient(baseURL, token string, cache *Cache) *Client {
	return &Client{
		http:    &http.Client{Timeout: 30 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		cache:   cache,
	}
}

// Fetch returns the issue for ref, from cache when a fresh entry exists.
func (c *Client) Fetch(ctx context.Context, ref Ref) (*Issue, error) {
	if c.cache != nil {
		if raw, ok := c.cache.Get(ref); ok {
			return parseIssue(ref, raw)
		}
	}

	issueJSON, err := c.getJSON(ctx, fmt.Sprintf("%s/repos/%s/%s/issues/%d", c.baseURL, ref.Owner, ref.Repo, ref.Number))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", ref, err)
	}
	commentsJSON, err := c.getJSON(ctx, fmt.Sprintf("%s/repos/%s/%s/issues/%d/comments?per_page=100", c.baseURL, ref.Owner, ref.Repo, ref.Number))
	if err != nil {
		return nil, fmt.Errorf("fetch %s comments: %w", ref, err)
	}

	raw, err := assembleRaw(ref, issueJSON, commentsJSON)
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		stamped, err := c.cache.Put(ref, raw)
		if err != nil {
			return nil, fmt.Errorf("cache %s: %w", ref, err)
		}
		raw = stamped
	}
	return parseIssue(ref, raw)
}

func (c *Client) getJSON(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return body, nil
	case http.StatusNotFound:
		return nil, ErrNotFound
	default:
		msg := gjson.GetBytes(body, "message").String()
		return nil, fmt.Errorf("github api: %s (%s)", resp.Status, msg)
	}
}

// parseIssue extracts the triage-relevant fields from a cached document.
func parseIssue(ref Ref, raw []byte) (*Issue, error) {
	doc := gjson.ParseBytes(raw)
	issueNode := doc.Get("issue")
	if !issueNode.Exists() {
		return nil, fmt.Errorf("cache entry for %s has no issue document", ref)
	}

	issue := &Issue{
		Ref:    ref,
		Title:  issueNode.Get("title").String(),
		Body:   issueNode.Get("body").String(),
		State:  issueNode.Get("state").String(),
		Author: issueNode.Get("user.login").String(),
	}
	for _, label := range issueNode.Get("labels.#.name").Array() {
		issue.Labels = append(issue.Labels, label.String())
	}
	for _, comment := range doc.Get("comments").Array() {
		issue.Comments = append(issue.Comments, Comment{
			Author: comment.Get("user.login").String(),
			Body:   comment.Get("body").String(),
		})
	}
	if ts := doc.Get("meta.fetchedAt").String(); ts != "" {
		if at, err := time.Parse(time.RFC3339, ts); err == nil {
			issue.FetchedAt = at
		}
	}
	return issue, nil
}
