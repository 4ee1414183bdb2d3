package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ServiceTokenPath は認証サービスのサービストークン発行エンドポイント。
const ServiceTokenPath = "/service-auth/token"

// HeaderServiceSecret はサービス間共有鍵を送るHTTPヘッダーキー。
const HeaderServiceSecret = "X-Service-Secret"

// renewBefore は有効期限のこの時間前にトークンを再取得する。
const renewBefore = 30 * time.Second

// ServiceTokenResponse はサービストークン発行エンドポイントの応答。
type ServiceTokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

// ServiceTokenSource は認証サービスから service 信頼タグの内部トークンを取得してキャッシュする。
// 並行に呼び出しても再取得は1回にまとめられる。
type ServiceTokenSource struct {
	client *Client
	secret string
	now    func() time.Time

	group singleflight.Group

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewServiceTokenSource は認証サービスのベースURLと共有鍵からトークンソースを生成する。
func NewServiceTokenSource(authURL, secret string, opts ...ClientOption) *ServiceTokenSource {
	return &ServiceTokenSource{
		client: New(authURL, opts...),
		secret: secret,
		now:    time.Now,
	}
}

// Token はキャッシュ済みのトークンを返す。期限が近い場合は再取得する。
func (s *ServiceTokenSource) Token(ctx context.Context) (string, error) {
	if tok, ok := s.cached(); ok {
		return tok, nil
	}

	// 取得は待機中の全呼び出しで共有するため、呼び出し元のキャンセルから切り離す。
	ch := s.group.DoChan("token", func() (any, error) {
		if tok, ok := s.cached(); ok {
			return tok, nil
		}
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultTimeout)
		defer cancel()
		return s.fetch(fetchCtx)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// Invalidate はキャッシュを破棄する。転送先が401を返した場合などに使用する。
func (s *ServiceTokenSource) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.expiresAt = time.Time{}
}

func (s *ServiceTokenSource) cached() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" || !s.now().Before(s.expiresAt.Add(-renewBefore)) {
		return "", false
	}
	return s.token, true
}

func (s *ServiceTokenSource) fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.client.baseURL+ServiceTokenPath, nil)
	if err != nil {
		return "", fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	req.Header.Set(HeaderServiceSecret, s.secret)
	req.Header.Set("Accept", "application/json")

	var out ServiceTokenResponse
	if err := s.client.do(req, &out); err != nil {
		return "", fmt.Errorf("サービストークンの取得に失敗: %w", err)
	}
	if out.Token == "" {
		return "", errors.New("サービストークンが空です")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = out.Token
	s.expiresAt = s.now().Add(time.Duration(out.ExpiresIn) * time.Second)
	return out.Token, nil
}
