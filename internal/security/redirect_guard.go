// Package security はポータルとの通信およびリモート由来テキストの安全性を扱う。
package security

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// allowedSchemes はリダイレクト先として許可するURLスキーム。
var allowedSchemes = []string{"http", "https"}

// blockedNetworks は許可リスト外のホストに対してブロックするネットワーク範囲。
var blockedNetworks []net.IPNet

func init() {
	cidrs := []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
		// クラウドメタデータIP (169.254.169.254) を含む
		"169.254.0.0/16",
		"0.0.0.0/8",
		"::1/128",
		"fe80::/10",
		"fc00::/7",
	}
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blockedNetworks: %s: %v", cidr, err))
		}
		blockedNetworks = append(blockedNetworks, *network)
	}
}

// RedirectGuard はログインチェーンで受け取ったLocationヘッダーの遷移先を検証する。
// 許可ホストが設定されている場合はそのホストのみを許可する。
type RedirectGuard struct {
	allowedHosts map[string]struct{}
}

// NewRedirectGuard は許可ホストを指定してRedirectGuardを生成する。
// hostsにはホスト名またはURLを指定できる。空の場合はプライベートアドレス以外を許可する。
func NewRedirectGuard(hosts ...string) *RedirectGuard {
	g := &RedirectGuard{allowedHosts: make(map[string]struct{}, len(hosts))}
	for _, h := range hosts {
		if h == "" {
			continue
		}
		if u, err := url.Parse(h); err == nil && u.Hostname() != "" {
			h = u.Hostname()
		}
		g.allowedHosts[strings.ToLower(h)] = struct{}{}
	}
	return g
}

// ValidateRedirect はリダイレクト先URLを検証し、許可されない場合はエラーを返す。
func (g *RedirectGuard) ValidateRedirect(target *url.URL) error {
	if target == nil {
		return fmt.Errorf("empty redirect target")
	}

	scheme := strings.ToLower(target.Scheme)
	if !isAllowedScheme(scheme) {
		return fmt.Errorf("disallowed scheme: %s (allowed: %v)", scheme, allowedSchemes)
	}

	host := strings.ToLower(target.Hostname())
	if host == "" {
		return fmt.Errorf("empty host in redirect: %s", target.String())
	}

	if len(g.allowedHosts) > 0 {
		if _, ok := g.allowedHosts[host]; !ok {
			return fmt.Errorf("redirect to unexpected host: %s", host)
		}
		return nil
	}

	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return fmt.Errorf("blocked IP address: %s", ip.String())
		}
		return nil
	}
	if host == "localhost" {
		return fmt.Errorf("blocked host: %s", host)
	}
	return nil
}

// NewPortalHTTPClient はポータル通信用のHTTPクライアントを生成する。
// safeurlによりプライベートIP・ループバック・メタデータIPへの接続がDialerレベルで拒否される。
// Cookie JarとCheckRedirectは呼び出し側で設定する。
func NewPortalHTTPClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(80, 443).
		Build()

	return safeurl.Client(config).Client
}

func isAllowedScheme(scheme string) bool {
	for _, allowed := range allowedSchemes {
		if strings.EqualFold(scheme, allowed) {
			return true
		}
	}
	return false
}

func isBlockedIP(ip net.IP) bool {
	for _, network := range blockedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
