// Package portal はNTU出勤ポータルとのHTTPセッションを扱う。
// ブラウザのログインリダイレクトチェーンを再現し、ログイン確認・打刻・打刻記録の取得を行う。
package portal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"

	"github.com/hitoshi/autosign/internal/model"
)

const (
	// DefaultPortalURL は出勤ポータルのベースURL。
	DefaultPortalURL = "https://my.ntu.edu.tw"
	// DefaultLoginURL はシングルサインオンのログインサーバーのベースURL。
	DefaultLoginURL = "https://web2.cc.ntu.edu.tw"
	// DefaultUserAgent はデスクトップ版Chromeを模したUser-Agent。
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36"

	// maxBodySize はレスポンスボディの読み取り上限。
	maxBodySize = 2 << 20
	// maxFollowRedirects はfollowRedirectsを指定したHopで辿るリダイレクトの上限。
	maxFollowRedirects = 10
)

// Endpoints はポータルとログインサーバーのベースURL。
type Endpoints struct {
	PortalURL string
	LoginURL  string
}

// DefaultEndpoints は本番のエンドポイントを返す。
func DefaultEndpoints() Endpoints {
	return Endpoints{PortalURL: DefaultPortalURL, LoginURL: DefaultLoginURL}
}

func (e Endpoints) normalized() Endpoints {
	if e.PortalURL == "" {
		e.PortalURL = DefaultPortalURL
	}
	if e.LoginURL == "" {
		e.LoginURL = DefaultLoginURL
	}
	e.PortalURL = strings.TrimRight(e.PortalURL, "/")
	e.LoginURL = strings.TrimRight(e.LoginURL, "/")
	return e
}

// RedirectValidator はLocationヘッダーの遷移先を検証する。
type RedirectValidator interface {
	ValidateRedirect(target *url.URL) error
}

// StatusRecorder はHTTPステータスコードを記録する。
type StatusRecorder interface {
	RecordHTTPStatus(statusCode int)
}

// Options はClientの生成オプション。
type Options struct {
	// HTTPClient は通信に使うクライアント。nilの場合はTimeoutのみ設定したクライアントを使う。
	// 渡されたクライアントはコピーして使い、呼び出し側のインスタンスは変更しない。
	HTTPClient *http.Client
	Timeout    time.Duration
	Endpoints  Endpoints
	UserAgent  string
	// RequestInterval はHop間の最小間隔。0の場合は待機しない。
	RequestInterval time.Duration
	RedirectGuard   RedirectValidator
	Metrics         StatusRecorder
	Logger          *slog.Logger
}

// Client は1つの認証ライフサイクルに紐づくポータルセッション。
// 1回の打刻試行ごとに生成し、使用後は必ずCloseする。
type Client struct {
	creds      model.Credentials
	httpClient *http.Client
	endpoints  Endpoints
	userAgent  string
	limiter    *rate.Limiter
	guard      RedirectValidator
	metrics    StatusRecorder
	logger     *slog.Logger

	closeOnce sync.Once
}

// New は新しいCookie Jarを持つClientを生成する。
// 自動リダイレクトは無効化し、各Hopで遷移先を明示的に辿る。
func New(creds model.Credentials, opts Options) (*Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("cookie jarの作成に失敗: %w", err)
	}

	var hc http.Client
	if opts.HTTPClient != nil {
		hc = *opts.HTTPClient
	}
	if opts.Timeout > 0 {
		hc.Timeout = opts.Timeout
	}
	hc.Jar = jar
	hc.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RequestInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(opts.RequestInterval), 1)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		creds:      creds,
		httpClient: &hc,
		endpoints:  opts.Endpoints.normalized(),
		userAgent:  userAgent,
		limiter:    limiter,
		guard:      opts.RedirectGuard,
		metrics:    opts.Metrics,
		logger:     logger,
	}, nil
}

// Close はアイドル接続を閉じ、Cookie Jarを破棄する。複数回呼び出してもよい。
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.httpClient.CloseIdleConnections()
		c.httpClient.Jar = nil
	})
	return nil
}

// hop はリダイレクトチェーンの1リクエスト分の記述子。
// ヘッダーはHopごとに完結し、前のHopの状態を引き継がない。
type hop struct {
	name          string
	method        string
	url           string
	referer       string
	origin        string
	contentType   string
	requestedWith string
	form          url.Values
	// wantLocation がtrueの場合、Locationヘッダーが必須となる。
	wantLocation bool
	// followRedirects がtrueの場合、3xx応答のLocationをGETで辿り、最終応答を結果とする。
	// 途中の応答が設定したCookieもJarに保存される。
	followRedirects bool
}

// hopResult はHopの実行結果。
type hopResult struct {
	status   int
	body     []byte
	location string // wantLocationの場合のみ、解決済みの絶対URL
}

// do は1つのHopを実行する。2xx/3xx以外のステータス、期待したLocationの欠落、
// 許可されない遷移先は通信失敗として返す。
func (c *Client) do(ctx context.Context, h hop) (*hopResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, model.NewTransportError(h.name, err)
	}

	req, err := c.newRequest(ctx, h, h.method, h.url)
	if err != nil {
		return nil, err
	}

	resp, err := c.send(req, h.name)
	if err != nil {
		return nil, err
	}
	for redirects := 0; h.followRedirects && isRedirect(resp.StatusCode); redirects++ {
		next, err := c.redirectTarget(req, resp, h.name)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}
		if redirects >= maxFollowRedirects {
			return nil, model.NewTransportError(h.name, fmt.Errorf("stopped after %d redirects", maxFollowRedirects))
		}

		req, err = c.newRequest(ctx, hop{name: h.name, referer: h.referer}, http.MethodGet, next.String())
		if err != nil {
			return nil, err
		}
		if resp, err = c.send(req, h.name); err != nil {
			return nil, err
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return nil, model.NewTransportError(h.name,
			fmt.Errorf("%s %s returned status %d", req.Method, req.URL.Path, resp.StatusCode))
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, model.NewTransportError(h.name, fmt.Errorf("レスポンス読み取りに失敗: %w", err))
	}

	result := &hopResult{status: resp.StatusCode, body: respBody}
	if !h.wantLocation {
		return result, nil
	}

	target, err := c.redirectTarget(req, resp, h.name)
	if err != nil {
		return nil, err
	}
	result.location = target.String()
	return result, nil
}

// newRequest はHopの記述子からリクエストを組み立てる。ヘッダーは記述子の値だけを設定する。
func (c *Client) newRequest(ctx context.Context, h hop, method, rawURL string) (*http.Request, error) {
	var body io.Reader
	if h.form != nil {
		body = strings.NewReader(h.form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, model.NewTransportError(h.name, fmt.Errorf("リクエスト作成に失敗: %w", err))
	}

	req.Host = req.URL.Host
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Connection", "keep-alive")
	if h.referer != "" {
		req.Header.Set("Referer", h.referer)
	}
	if h.origin != "" {
		req.Header.Set("Origin", h.origin)
	}
	if h.contentType != "" {
		req.Header.Set("Content-Type", h.contentType)
	}
	if h.requestedWith != "" {
		req.Header.Set("X-Requested-With", h.requestedWith)
	}
	return req, nil
}

// send はリクエストを送信し、ステータスを記録する。
func (c *Client) send(req *http.Request, name string) (*http.Response, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, model.NewTransportError(name, err)
	}

	if c.metrics != nil {
		c.metrics.RecordHTTPStatus(resp.StatusCode)
	}

	c.logger.Debug("hop completed",
		slog.String("hop", name),
		slog.String("method", req.Method),
		slog.String("host", req.URL.Host),
		slog.Int("http_status", resp.StatusCode),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return resp, nil
}

// redirectTarget はLocationヘッダーをリクエストURL基準で解決し、遷移先を検証する。
func (c *Client) redirectTarget(req *http.Request, resp *http.Response, name string) (*url.URL, error) {
	loc := resp.Header.Get("Location")
	if loc == "" {
		return nil, model.NewTransportError(name, errors.New("missing Location header"))
	}
	target, err := req.URL.Parse(loc)
	if err != nil {
		return nil, model.NewTransportError(name, fmt.Errorf("invalid Location %q: %w", loc, err))
	}
	if c.guard != nil {
		if err := c.guard.ValidateRedirect(target); err != nil {
			return nil, model.NewTransportError(name, err)
		}
	}
	return target, nil
}

func isRedirect(status int) bool {
	return status >= 300 && status < 400
}
