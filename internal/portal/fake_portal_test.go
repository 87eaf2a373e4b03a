package portal

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/hitoshi/autosign/internal/model"
	"github.com/hitoshi/autosign/internal/security"
)

const (
	testUser = "r12345678"
	testPass = "s3cret"

	attendPageWithButtons = `<html><body>
<div class="jumbotron mid bc jumbotronfix">
  <a id="btSign" href="#">簽到</a>
  <a id="btSign2" href="#">簽退</a>
</div></body></html>`

	attendPageLoggedOut = `<html><body><div class="jumbotron">請先登入</div></body></html>`
)

// recordedRequest はフェイクサーバーが受信したリクエストの記録。
type recordedRequest struct {
	Method string
	Path   string
	Host   string
	Header http.Header
	Form   url.Values
}

// fakePortal はポータルとSSOログインサーバーを模したテスト用サーバー。
type fakePortal struct {
	t      *testing.T
	portal *httptest.Server
	login  *httptest.Server

	mu       sync.Mutex
	requests []recordedRequest
	signs    []url.Values

	// signHandler は打刻APIへのn回目（0始まり）の呼び出しに対するレスポンスボディを返す。
	signHandler func(n int, form url.Values) string
	// recordsBody は打刻記録APIのレスポンスボディ。
	recordsBody string
	// startLocation が空の場合、ログイン開始HopでLocationを返さない。
	startLocation string
	// seedStatus はCookie取得Hopのステータス。
	seedStatus int
	// seedRedirect が空でない場合、トップページはそのパスへ302で転送する。
	seedRedirect string
	// verifyRedirect がtrueの場合、未ログインの出勤ページはログインページへ302で転送する。
	verifyRedirect bool
}

func newFakePortal(t *testing.T) *fakePortal {
	t.Helper()

	f := &fakePortal{
		t:             t,
		startLocation: "/attend/relay.aspx",
		seedStatus:    http.StatusOK,
		signHandler: func(int, url.Values) string {
			return `[{"t":1,"msg":"ok"}]`
		},
		recordsBody: `[]`,
	}

	f.login = httptest.NewServer(http.HandlerFunc(f.serveLogin))
	f.portal = httptest.NewServer(http.HandlerFunc(f.servePortal))
	t.Cleanup(func() {
		f.portal.Close()
		f.login.Close()
	})
	return f
}

func (f *fakePortal) record(r *http.Request) url.Values {
	_ = r.ParseForm()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, recordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Host:   r.Host,
		Header: r.Header.Clone(),
		Form:   r.PostForm,
	})
	return r.PostForm
}

func (f *fakePortal) servePortal(w http.ResponseWriter, r *http.Request) {
	form := f.record(r)

	switch r.URL.Path {
	case "/":
		if f.seedRedirect != "" {
			w.Header().Set("Location", f.seedRedirect)
			w.WriteHeader(http.StatusFound)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "seed", Value: "1", Path: "/"})
		w.WriteHeader(f.seedStatus)

	case "/portal/index.aspx":
		http.SetCookie(w, &http.Cookie{Name: "seed", Value: "redirected", Path: "/"})
		w.Write([]byte(`<html>portal</html>`))

	case "/attend/ssi.aspx":
		if r.URL.Query().Get("type") == "login" {
			if f.startLocation != "" {
				w.Header().Set("Location", f.startLocation)
			}
			w.WriteHeader(http.StatusFound)
			return
		}
		if c, err := r.Cookie("auth"); err == nil && c.Value == "ok" {
			w.Write([]byte(attendPageWithButtons))
			return
		}
		if f.verifyRedirect {
			w.Header().Set("Location", f.login.URL+"/p/s/login2/p1.php")
			w.WriteHeader(http.StatusFound)
			return
		}
		w.Write([]byte(attendPageLoggedOut))

	case "/attend/relay.aspx":
		w.Header().Set("Location", f.login.URL+"/p/s/login2/p1.php")
		w.WriteHeader(http.StatusFound)

	case "/attend/callback.aspx":
		http.SetCookie(w, &http.Cookie{Name: "auth", Value: "ok", Path: "/"})
		w.Header().Set("Location", "/attend/ssi.aspx?type=done")
		w.WriteHeader(http.StatusFound)

	case "/attend/ajax/signInR2.ashx":
		if c, err := r.Cookie("auth"); err != nil || c.Value != "ok" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		switch form.Get("type") {
		case "6":
			f.mu.Lock()
			n := len(f.signs)
			f.signs = append(f.signs, form)
			f.mu.Unlock()
			w.Write([]byte(f.signHandler(n, form)))
		case "4":
			w.Write([]byte(f.recordsBody))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}

	default:
		http.NotFound(w, r)
	}
}

func (f *fakePortal) serveLogin(w http.ResponseWriter, r *http.Request) {
	form := f.record(r)

	if r.URL.Path != "/p/s/login2/p1.php" {
		http.NotFound(w, r)
		return
	}
	if r.Method == http.MethodGet {
		w.Write([]byte(`<form method="post"><input name="user"><input name="pass"></form>`))
		return
	}
	if form.Get("user") != testUser || form.Get("pass") != testPass {
		// 認証失敗時はリダイレクトせずにフォームを再表示する
		w.Write([]byte(`<p>帳號或密碼錯誤</p>`))
		return
	}
	w.Header().Set("Location", f.portal.URL+"/attend/callback.aspx")
	w.WriteHeader(http.StatusFound)
}

func (f *fakePortal) client(t *testing.T, creds model.Credentials) *Client {
	t.Helper()
	c, err := New(creds, Options{
		HTTPClient: f.portal.Client(),
		Endpoints: Endpoints{
			PortalURL: f.portal.URL,
			LoginURL:  f.login.URL,
		},
		RedirectGuard: security.NewRedirectGuard(f.portal.URL, f.login.URL),
		Logger:        slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func (f *fakePortal) signForms() []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]url.Values, len(f.signs))
	copy(out, f.signs)
	return out
}

func (f *fakePortal) recorded() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]recordedRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

func validCreds() model.Credentials {
	return model.Credentials{Username: testUser, Password: testPass}
}
