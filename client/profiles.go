package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrProfileNotFound 资料服务中没有该 uid
var ErrProfileNotFound = errors.New("client: profile not found")

const (
	DefaultUsername = "Villager"
	DefaultAvatar   = "ArabCharacter_idle.png"
)

// Profile 远端成员的展示资料
type Profile struct {
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

// AnonymousProfile 没有 uid 的成员使用的默认资料
func AnonymousProfile() Profile {
	return Profile{Username: DefaultUsername, Avatar: DefaultAvatar}
}

func (p Profile) withDefaults() Profile {
	if strings.TrimSpace(p.Username) == "" {
		p.Username = DefaultUsername
	}
	if strings.TrimSpace(p.Avatar) == "" {
		p.Avatar = DefaultAvatar
	}
	return p
}

// CharacterType 从头像文件名得到角色类型，如 "KnightCharacter_idle.png" -> "KnightCharacter"
func CharacterType(avatar string) string {
	if avatar == "" {
		avatar = DefaultAvatar
	}
	key, _, _ := strings.Cut(avatar, ".")
	return strings.Replace(key, "_idle", "", 1)
}

// ProfileFetcher 按 uid 查询资料；不存在时返回 ErrProfileNotFound
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, uid string) (Profile, error)
}

// HTTPProfileFetcher 通过服务端 /profiles/{uid} 接口读写资料
type HTTPProfileFetcher struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPProfileFetcher(baseURL string, timeout time.Duration) *HTTPProfileFetcher {
	return &HTTPProfileFetcher{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: timeout},
	}
}

func (f *HTTPProfileFetcher) FetchProfile(ctx context.Context, uid string) (Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.profileURL(uid), nil)
	if err != nil {
		return Profile{}, fmt.Errorf("build profile request: %w", err)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return Profile{}, fmt.Errorf("fetch profile %q: %w", uid, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return Profile{}, ErrProfileNotFound
	default:
		return Profile{}, fmt.Errorf("fetch profile %q: unexpected status %d", uid, resp.StatusCode)
	}
	var p Profile
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return Profile{}, fmt.Errorf("decode profile %q: %w", uid, err)
	}
	return p.withDefaults(), nil
}

// PutProfile 写入自己的资料
func (f *HTTPProfileFetcher) PutProfile(ctx context.Context, uid string, p Profile) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, f.profileURL(uid), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build profile request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.Client.Do(req)
	if err != nil {
		return fmt.Errorf("put profile %q: %w", uid, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("put profile %q: unexpected status %d", uid, resp.StatusCode)
	}
	return nil
}

func (f *HTTPProfileFetcher) profileURL(uid string) string {
	return f.BaseURL + "/profiles/" + url.PathEscape(uid)
}
