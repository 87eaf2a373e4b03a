package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// SuccessStatus は打刻成功を示すtフィールドの値。
const SuccessStatus = 1

// SignResult はポータルの打刻APIが返す結果オブジェクト。
type SignResult struct {
	Status    int            // t
	Message   string         // msg
	Timestamp string         // d（存在する場合のみ）
	Fields    map[string]any // 結果オブジェクト全体
	Raw       string         // レスポンスボディ
}

// Succeeded は打刻が成功したかを返す。
func (r *SignResult) Succeeded() bool {
	return r != nil && r.Status == SuccessStatus
}

// String は通知本文に埋め込む結果オブジェクトの表現を返す。
// キー順を固定して同一結果から常に同一文字列を生成する。
func (r *SignResult) String() string {
	if r == nil {
		return "{}"
	}
	if len(r.Fields) == 0 {
		return fmt.Sprintf("{t: %d, msg: %s}", r.Status, r.Message)
	}
	keys := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("{")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		v, err := json.Marshal(r.Fields[k])
		if err != nil {
			v = []byte(fmt.Sprint(r.Fields[k]))
		}
		fmt.Fprintf(&b, "%q: %s", k, v)
	}
	b.WriteString("}")
	return b.String()
}

// ErrorResult は例外的な失敗を {t: -1, msg: cause} 形式の結果に変換する。
func ErrorResult(cause string) *SignResult {
	return &SignResult{
		Status:  -1,
		Message: cause,
		Fields: map[string]any{
			"t":   -1,
			"msg": cause,
		},
	}
}

// AttendanceRecord は直近の打刻記録1件を表す。
// 日付は "YYYY-MM-DD"、時刻は "HH:MM:SS" 形式。
type AttendanceRecord struct {
	SignDate  string `json:"signdate"`
	StartTime string `json:"startdate"`
	EndTime   string `json:"enddate"`
}
