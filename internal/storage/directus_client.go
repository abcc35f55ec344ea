// Package storage provides the blob-store collaborator the engine hands
// raw submitted documents to, and reads them back from.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// DirectusResponse is the envelope every Directus REST response wraps its
// payload in.
type DirectusResponse struct {
	Data json.RawMessage `json:"data"`
}

// DirectusClient is a minimal REST client for a Directus CMS instance:
// item CRUD against arbitrary collections, plus file upload/download.
type DirectusClient struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewDirectusClient constructs a client with a sane request timeout.
func NewDirectusClient(baseURL, apiKey string) *DirectusClient {
	return &DirectusClient{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// PostItem creates an item in collection and returns the decoded record.
func (c *DirectusClient) PostItem(ctx context.Context, collection string, data any) (map[string]interface{}, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshaling item: %w", err)
	}

	url := fmt.Sprintf("%s/items/%s", c.BaseURL, collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("POST failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var directusResp DirectusResponse
	if err := json.NewDecoder(resp.Body).Decode(&directusResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	var result map[string]interface{}
	if len(directusResp.Data) > 0 {
		if err := json.Unmarshal(directusResp.Data, &result); err != nil {
			return nil, fmt.Errorf("unmarshaling item: %w", err)
		}
	}
	return result, nil
}

// PatchItem updates fields of an existing item in collection by id.
func (c *DirectusClient) PatchItem(ctx context.Context, collection, id string, data any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling update: %w", err)
	}

	url := fmt.Sprintf("%s/items/%s/%s", c.BaseURL, collection, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("PATCH request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("PATCH failed with status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// UploadFileParams describes a file to upload via UploadFile.
type UploadFileParams struct {
	Filename    string
	Content     []byte
	FolderID    string
	Title       string
	ContentType string
}

// UploadFileResult is the subset of a Directus file record this client cares about.
type UploadFileResult struct {
	ID string `json:"id"`
}

// UploadFile multipart-POSTs content to Directus's /files endpoint.
func (c *DirectusClient) UploadFile(ctx context.Context, params UploadFileParams) (UploadFileResult, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if params.FolderID != "" {
		if err := w.WriteField("folder", params.FolderID); err != nil {
			return UploadFileResult{}, fmt.Errorf("writing folder field: %w", err)
		}
	}
	if params.Title != "" {
		if err := w.WriteField("title", params.Title); err != nil {
			return UploadFileResult{}, fmt.Errorf("writing title field: %w", err)
		}
	}

	part, err := w.CreateFormFile("file", params.Filename)
	if err != nil {
		return UploadFileResult{}, fmt.Errorf("creating form file: %w", err)
	}
	if _, err := part.Write(params.Content); err != nil {
		return UploadFileResult{}, fmt.Errorf("writing file content: %w", err)
	}
	if err := w.Close(); err != nil {
		return UploadFileResult{}, fmt.Errorf("closing multipart writer: %w", err)
	}

	url := fmt.Sprintf("%s/files", c.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return UploadFileResult{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.Client.Do(req)
	if err != nil {
		return UploadFileResult{}, fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return UploadFileResult{}, fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var directusResp DirectusResponse
	if err := json.NewDecoder(resp.Body).Decode(&directusResp); err != nil {
		return UploadFileResult{}, fmt.Errorf("decoding response: %w", err)
	}

	var result UploadFileResult
	if err := json.Unmarshal(directusResp.Data, &result); err != nil {
		return UploadFileResult{}, fmt.Errorf("unmarshaling upload result: %w", err)
	}
	return result, nil
}

// DownloadFile fetches a file's raw content by id.
func (c *DirectusClient) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	url := fmt.Sprintf("%s/assets/%s", c.BaseURL, fileID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("GET failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	return content, nil
}
