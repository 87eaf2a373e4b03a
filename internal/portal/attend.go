package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/hitoshi/autosign/internal/model"
)

const (
	signAPIPath = "/attend/ajax/signInR2.ashx"

	// signRequestType は打刻リクエストのtype値。
	signRequestType = "6"
	// recordsRequestType は直近の打刻記録取得のtype値。
	recordsRequestType = "4"
	// recordsWindowDays は取得する打刻記録の日数。
	recordsWindowDays = "7"

	ajaxContentType = "application/x-www-form-urlencoded; charset=UTF-8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Sign は出勤または退勤の打刻を送信し、結果を返す。
// 退勤が残業申請を理由に拒否された場合に限り、残業フラグを立てて1回だけ再送信し、その結果を返す。
func (c *Client) Sign(ctx context.Context, kind model.ActionKind) (*model.SignResult, error) {
	if kind != model.SignIn && kind != model.SignOut {
		return nil, fmt.Errorf("unknown action: %v", kind)
	}

	result, err := c.submitSign(ctx, kind, false)
	if err != nil {
		return nil, err
	}

	if kind == model.SignOut && !result.Succeeded() && NeedsOvertimeApplication(result.Message) {
		c.logger.Info("残業申請が必要なため残業フラグ付きで再送信します",
			slog.String("action", kind.String()),
			slog.Int("status", result.Status),
			slog.String("message", result.Message),
		)
		return c.submitSign(ctx, kind, true)
	}

	return result, nil
}

func (c *Client) submitSign(ctx context.Context, kind model.ActionKind, overtime bool) (*model.SignResult, error) {
	otA := "0"
	if overtime {
		otA = "1"
	}

	res, err := c.do(ctx, c.ajaxHop("sign", url.Values{
		"type": {signRequestType},
		"otA":  {otA},
		"t":    {strconv.Itoa(kind.Code())},
	}))
	if err != nil {
		return nil, err
	}
	if res.status >= 300 {
		return nil, model.NewTransportError("sign", fmt.Errorf("unexpected redirect (status %d)", res.status))
	}

	return ParseSignResult(res.body)
}

// CheckRecords は直近7日間の打刻記録を取得する。
func (c *Client) CheckRecords(ctx context.Context) ([]model.AttendanceRecord, error) {
	res, err := c.do(ctx, c.ajaxHop("records", url.Values{
		"type": {recordsRequestType},
		"day":  {recordsWindowDays},
	}))
	if err != nil {
		return nil, err
	}
	if res.status >= 300 {
		return nil, model.NewTransportError("records", fmt.Errorf("unexpected redirect (status %d)", res.status))
	}

	return ParseRecords(res.body)
}

func (c *Client) ajaxHop(name string, form url.Values) hop {
	portalURL := c.endpoints.PortalURL
	return hop{
		name:          name,
		method:        http.MethodPost,
		url:           portalURL + signAPIPath,
		referer:       portalURL + attendPath,
		origin:        portalURL,
		contentType:   ajaxContentType,
		requestedWith: "XMLHttpRequest",
		form:          form,
	}
}

// ParseSignResult は打刻APIのレスポンス（JSON配列）の先頭要素をSignResultに変換する。
// tは数値または数値文字列を受け付け、msgとdは任意とする。
func ParseSignResult(body []byte) (*model.SignResult, error) {
	raw := string(body)

	var items []json.RawMessage
	if err := json.Unmarshal(trimPayload(body), &items); err != nil {
		return nil, model.NewProtocolError("sign", raw, fmt.Errorf("レスポンスJSONのパースに失敗: %w", err))
	}
	if len(items) == 0 {
		return nil, model.NewProtocolError("sign", raw, errors.New("empty result array"))
	}

	dec := json.NewDecoder(bytes.NewReader(items[0]))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil || fields == nil {
		if err == nil {
			err = errors.New("result is not an object")
		}
		return nil, model.NewProtocolError("sign", raw, fmt.Errorf("結果オブジェクトのパースに失敗: %w", err))
	}

	t, ok := fields["t"]
	if !ok {
		return nil, model.NewProtocolError("sign", raw, errors.New("missing key \"t\""))
	}
	status, err := toInt(t)
	if err != nil {
		return nil, model.NewProtocolError("sign", raw, fmt.Errorf("invalid \"t\": %w", err))
	}

	return &model.SignResult{
		Status:    status,
		Message:   stringField(fields, "msg"),
		Timestamp: stringField(fields, "d"),
		Fields:    fields,
		Raw:       raw,
	}, nil
}

// ParseRecords は打刻記録APIのレスポンス（JSON配列）を変換する。
func ParseRecords(body []byte) ([]model.AttendanceRecord, error) {
	var records []model.AttendanceRecord
	if err := json.Unmarshal(trimPayload(body), &records); err != nil {
		return nil, model.NewProtocolError("records", string(body), fmt.Errorf("打刻記録のパースに失敗: %w", err))
	}
	return records, nil
}

func trimPayload(body []byte) []byte {
	body = bytes.TrimSpace(body)
	body = bytes.TrimPrefix(body, utf8BOM)
	return bytes.TrimSpace(body)
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), nil
		}
		f, err := n.Float64()
		if err != nil || f != float64(int(f)) {
			return 0, fmt.Errorf("not an integer: %s", n)
		}
		return int(f), nil
	case string:
		return strconv.Atoi(strings.TrimSpace(n))
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

func stringField(fields map[string]any, key string) string {
	v, ok := fields[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
