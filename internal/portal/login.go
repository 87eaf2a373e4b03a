package portal

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/PuerkitoBio/goquery"

	"github.com/hitoshi/autosign/internal/model"
)

const (
	attendPath = "/attend/ssi.aspx"
	loginPath  = "/p/s/login2/p1.php"

	// submitLabel はログインフォームの送信ボタンの値（「登入」）。
	submitLabel = "登入"

	formContentType = "application/x-www-form-urlencoded"
)

// Login はログインリダイレクトチェーンを実行する。
// Cookie取得、SSOへのリダイレクト、認証情報のPOST、ポータルへの戻りの順に辿る。
// 途中のHopが失敗した時点で通信失敗を返し、リトライはしない。
func (c *Client) Login(ctx context.Context) error {
	portalURL := c.endpoints.PortalURL
	loginURL := c.endpoints.LoginURL
	attendURL := portalURL + attendPath
	loginFormURL := loginURL + loginPath

	// Cookie取得。トップページのリダイレクト先が設定するCookieも収集する
	if _, err := c.do(ctx, hop{
		name:            "login.seed",
		method:          http.MethodGet,
		url:             portalURL + "/",
		followRedirects: true,
	}); err != nil {
		return err
	}

	// ログインページへの遷移を要求
	res, err := c.do(ctx, hop{
		name:         "login.start",
		method:       http.MethodGet,
		url:          attendURL + "?type=login",
		referer:      attendURL,
		wantLocation: true,
	})
	if err != nil {
		return err
	}

	// SSOへの中継
	res, err = c.do(ctx, hop{
		name:         "login.relay",
		method:       http.MethodGet,
		url:          res.location,
		referer:      attendURL,
		wantLocation: true,
	})
	if err != nil {
		return err
	}

	// ログインフォームの表示
	if _, err := c.do(ctx, hop{
		name:    "login.form",
		method:  http.MethodGet,
		url:     res.location,
		referer: attendURL,
	}); err != nil {
		return err
	}

	// 認証情報の送信
	res, err = c.do(ctx, hop{
		name:        "login.submit",
		method:      http.MethodPost,
		url:         loginFormURL,
		referer:     loginFormURL,
		origin:      loginURL,
		contentType: formContentType,
		form: url.Values{
			"user":   {c.creds.Username},
			"pass":   {c.creds.Password},
			"Submit": {submitLabel},
		},
		wantLocation: true,
	})
	if err != nil {
		return err
	}

	// ポータルへの戻り
	res, err = c.do(ctx, hop{
		name:         "login.callback",
		method:       http.MethodPost,
		url:          res.location,
		referer:      loginFormURL,
		wantLocation: true,
	})
	if err != nil {
		return err
	}

	// 出勤システムへの最終遷移
	if _, err := c.do(ctx, hop{
		name:    "login.finish",
		method:  http.MethodGet,
		url:     res.location,
		referer: loginFormURL,
	}); err != nil {
		return err
	}

	c.logger.Debug("login chain completed")
	return nil
}

// VerifyLogin は出勤ページに出勤・退勤ボタンが表示されているかでログイン状態を確認する。
// 未ログイン時にログインページへリダイレクトされた場合も、辿った先のページで判定する。
// 未ログインは想定内の状態のためfalseを返し、エラーは通信失敗の場合のみ返す。
func (c *Client) VerifyLogin(ctx context.Context) (bool, error) {
	res, err := c.do(ctx, hop{
		name:            "verify",
		method:          http.MethodGet,
		url:             c.endpoints.PortalURL + attendPath,
		referer:         c.endpoints.LoginURL + loginPath,
		followRedirects: true,
	})
	if err != nil {
		return false, err
	}

	ok, err := hasSignButtons(res.body)
	if err != nil {
		return false, model.NewProtocolError("verify", string(res.body), err)
	}
	return ok, nil
}

// hasSignButtons は出勤ページのボタン領域に btSign と btSign2 の2つのリンクだけがあるかを判定する。
func hasSignButtons(page []byte) (bool, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return false, fmt.Errorf("HTMLのパースに失敗: %w", err)
	}

	container := doc.Find("div.jumbotron.mid.bc.jumbotronfix").First()
	if container.Length() == 0 {
		return false, nil
	}

	links := container.Find("a")
	if links.Length() != 2 {
		return false, nil
	}
	return links.Eq(0).AttrOr("id", "") == "btSign" && links.Eq(1).AttrOr("id", "") == "btSign2", nil
}
