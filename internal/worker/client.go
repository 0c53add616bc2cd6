package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/google/uuid"

	"easel/internal/workflow"
)

// ErrNoOutputs indicates a finished job whose history carries no image
// outputs.
var ErrNoOutputs = errors.New("job history contains no image outputs")

// Client talks to one worker node's HTTP surface. All methods perform a
// single network call and are independently failable.
type Client struct {
	endpoint string
	http     *http.Client
}

func NewClient(endpoint string, timeout time.Duration) *Client {
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
	}
}

type submitRequest struct {
	Prompt   json.RawMessage `json:"prompt"`
	ClientID string          `json:"client_id,omitempty"`
}

type submitResponse struct {
	PromptID string `json:"prompt_id"`
}

// SubmitJob POSTs a job description and returns the worker-assigned task id.
func (c *Client) SubmitJob(ctx context.Context, desc json.RawMessage, clientID string) (string, error) {
	body, err := json.Marshal(submitRequest{Prompt: desc, ClientID: clientID})
	if err != nil {
		return "", fmt.Errorf("marshal submit request: %w", err)
	}

	data, err := c.post(ctx, "/prompt", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("submit job: %w", err)
	}

	var resp submitResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("parse submit response: %w", err)
	}
	if resp.PromptID == "" {
		return "", fmt.Errorf("submit response carried no task id")
	}
	return resp.PromptID, nil
}

type imageRef struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
}

type nodeOutput struct {
	Images []imageRef `json:"images"`
}

type historyEntry struct {
	Outputs map[string]nodeOutput `json:"outputs"`
}

// FetchOutputs queries the worker's execution history and returns the
// path of the first image output produced by the job. Only the first
// image among possibly several outputs is taken.
func (c *Client) FetchOutputs(ctx context.Context, workerTaskID string) (string, error) {
	data, err := c.get(ctx, "/history/"+workerTaskID, nil)
	if err != nil {
		return "", fmt.Errorf("fetch history: %w", err)
	}

	var history map[string]historyEntry
	if err := json.Unmarshal(data, &history); err != nil {
		return "", fmt.Errorf("parse history: %w", err)
	}

	entry, ok := history[workerTaskID]
	if !ok {
		return "", ErrNoOutputs
	}
	// Deterministic node order: map iteration would make the pick random
	// when several nodes produced images.
	nodes := make([]string, 0, len(entry.Outputs))
	for node := range entry.Outputs {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)
	for _, node := range nodes {
		out := entry.Outputs[node]
		if len(out.Images) == 0 {
			continue
		}
		img := out.Images[0]
		path := img.Filename
		if img.Subfolder != "" {
			path = img.Subfolder + "/" + img.Filename
		}
		return path, nil
	}
	return "", ErrNoOutputs
}

// FetchArtifact retrieves the raw bytes of a named artifact.
func (c *Client) FetchArtifact(ctx context.Context, path string) ([]byte, error) {
	q := url.Values{"filename": {path}}
	data, err := c.get(ctx, "/view", q)
	if err != nil {
		return nil, fmt.Errorf("fetch artifact: %w", err)
	}
	return data, nil
}

type uploadResponse struct {
	Name      string `json:"name"`
	Subfolder string `json:"subfolder"`
}

// UploadInput uploads caller-provided bytes (e.g. a reference image for
// image-to-image jobs) and returns the path the worker assigned.
func (c *Client) UploadInput(ctx context.Context, image []byte) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", uuid.New().String()+".png")
	if err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}

	data, err := c.post(ctx, "/upload/image", mw.FormDataContentType(), &buf)
	if err != nil {
		return "", fmt.Errorf("upload input: %w", err)
	}

	var resp uploadResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("parse upload response: %w", err)
	}
	path := resp.Name
	if resp.Subfolder != "" {
		path = resp.Subfolder + "/" + resp.Name
	}
	return path, nil
}

// DeleteRemoteFile submits the clean-file maintenance job for a temporary
// input or output file on the worker. Best effort: callers log failures
// and never escalate them.
func (c *Client) DeleteRemoteFile(ctx context.Context, kind workflow.FileKind, path string) error {
	desc, err := workflow.CleanFile(kind, path)
	if err != nil {
		return fmt.Errorf("build clean-file job: %w", err)
	}
	// No client_id here: the cleanup job's events are of no interest.
	body, err := json.Marshal(submitRequest{Prompt: desc})
	if err != nil {
		return fmt.Errorf("marshal clean-file request: %w", err)
	}
	if _, err := c.post(ctx, "/prompt", "application/json", bytes.NewReader(body)); err != nil {
		return fmt.Errorf("delete remote file: %w", err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	u := "http://" + c.endpoint + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *Client) post(ctx context.Context, path, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+c.endpoint+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("worker returned %d: %s", resp.StatusCode, data)
	}
	return data, nil
}
