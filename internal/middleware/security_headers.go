package middleware

import "net/http"

// opsResponseHeaders は運用エンドポイントのすべての応答に付与するヘッダー。
// 応答はJSONかPrometheusのテキストのみで、予定一覧は打刻のたびに変わるためキャッシュさせない。
var opsResponseHeaders = map[string]string{
	"X-Content-Type-Options":  "nosniff",
	"X-Frame-Options":         "DENY",
	"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
	"Referrer-Policy":         "no-referrer",
	"Cache-Control":           "no-store",
}

// NewSecurityHeadersMiddleware は運用エンドポイント向けの固定ヘッダーを付与するミドルウェアを返す。
func NewSecurityHeadersMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for k, v := range opsResponseHeaders {
				h.Set(k, v)
			}
			next.ServeHTTP(w, r)
		})
	}
}
