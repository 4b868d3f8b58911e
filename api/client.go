package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"Bt1QPlayer/logger"
)

// Client 1QFM服务端API客户端，覆盖取流、收藏和歌单接口。
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	creds CredentialProvider
}

// NewClient 创建新的API客户端
func NewClient(baseURL string, creds CredentialProvider) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: time.Second * 10,
		},
		creds: creds,
	}
}

// SetTimeout 设置请求超时时间
func (c *Client) SetTimeout(timeout time.Duration) {
	c.HTTPClient.Timeout = timeout
}

// authorize 获取令牌并附加到请求头，过期令牌在本地直接拒绝
func (c *Client) authorize(ctx context.Context, req *http.Request) error {
	token, err := c.creds.Token(ctx)
	if err != nil {
		return err
	}
	if err := checkTokenExpiry(token); err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := c.authorize(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// do 发送请求并检查状态码，2xx 以外视为失败
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d from %s: %s", resp.StatusCode, req.URL.Path, string(body))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// streamURLResponse 取流接口响应
type streamURLResponse struct {
	URL string `json:"url"`
}

// ResolveStreamURL 解析歌曲的已鉴权媒体地址
func (c *Client) ResolveStreamURL(ctx context.Context, songID string) (string, error) {
	path := fmt.Sprintf("/api/songs/%s/stream", url.PathEscape(songID))
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", err
	}

	var out streamURLResponse
	if err := c.do(req, &out); err != nil {
		logger.Warn("解析流地址失败", logger.String("songId", songID), logger.ErrorField(err))
		return "", fmt.Errorf("failed to resolve stream url for song %s: %w", songID, err)
	}
	if out.URL == "" {
		return "", fmt.Errorf("empty stream url for song %s", songID)
	}
	return out.URL, nil
}

// Favorite 收藏歌曲
func (c *Client) Favorite(ctx context.Context, songID string) error {
	req, err := c.newRequest(ctx, http.MethodPost, "/api/favorites", map[string]string{"songId": songID})
	if err != nil {
		return err
	}
	if err := c.do(req, nil); err != nil {
		return fmt.Errorf("failed to favorite song %s: %w", songID, err)
	}
	return nil
}

// Unfavorite 取消收藏
func (c *Client) Unfavorite(ctx context.Context, songID string) error {
	path := "/api/favorites/" + url.PathEscape(songID)
	req, err := c.newRequest(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	if err := c.do(req, nil); err != nil {
		return fmt.Errorf("failed to unfavorite song %s: %w", songID, err)
	}
	return nil
}

// CreatePlaylist 创建歌单
func (c *Client) CreatePlaylist(ctx context.Context, playlist map[string]any) error {
	req, err := c.newRequest(ctx, http.MethodPost, "/api/playlists", playlist)
	if err != nil {
		return err
	}
	if err := c.do(req, nil); err != nil {
		return fmt.Errorf("failed to create playlist: %w", err)
	}
	return nil
}

// UpdatePlaylist 更新歌单
func (c *Client) UpdatePlaylist(ctx context.Context, id string, playlist map[string]any) error {
	path := "/api/playlists/" + url.PathEscape(id)
	req, err := c.newRequest(ctx, http.MethodPut, path, playlist)
	if err != nil {
		return err
	}
	if err := c.do(req, nil); err != nil {
		return fmt.Errorf("failed to update playlist %s: %w", id, err)
	}
	return nil
}

// DeletePlaylist 删除歌单
func (c *Client) DeletePlaylist(ctx context.Context, id string) error {
	path := "/api/playlists/" + url.PathEscape(id)
	req, err := c.newRequest(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	if err := c.do(req, nil); err != nil {
		return fmt.Errorf("failed to delete playlist %s: %w", id, err)
	}
	return nil
}
