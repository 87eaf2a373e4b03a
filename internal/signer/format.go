package signer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hitoshi/autosign/internal/model"
)

// failureCause は通知タイトルに使う失敗原因を返す。
// ポータルが拒否した場合はそのメッセージ、それ以外はエラー文字列。
func failureCause(out model.Outcome) string {
	var se *model.SignError
	if errors.As(out.Err, &se) && se.Message != "" {
		return se.Message
	}
	if out.Err != nil {
		return out.Err.Error()
	}
	return "Unknown error"
}

// formatFailure は失敗通知のタイトルと本文を組み立てる。
// 本文にはポータルが返した診断情報（d, msg）と調査用の生レスポンスを含める。
func (r *Runner) formatFailure(out model.Outcome) (title, body string) {
	cause := r.sanitize(failureCause(out))

	result := out.Result
	if out.Kind != model.OutcomeDomainFailure || result == nil {
		errResult := model.ErrorResult(cause)
		if result != nil {
			errResult.Raw = result.Raw
		}
		result = errResult
	}

	var b strings.Builder
	fmt.Fprintf(&b, "NTU Auto Signing failed: %s\n\n", cause)
	if result.Timestamp != "" {
		fmt.Fprintf(&b, "Timestamp: %s\n", r.sanitize(result.Timestamp))
	}
	if _, ok := result.Fields["msg"]; ok {
		fmt.Fprintf(&b, "System Message: %s\n", r.sanitize(result.Message))
	}
	response := result.Raw
	if response == "" {
		response = result.String()
	}
	fmt.Fprintf(&b, "Response: %s", response)

	return fmt.Sprintf("%s %s", r.config.TitlePrefix, cause), b.String()
}

func (r *Runner) sanitize(s string) string {
	if r.sanitizer == nil {
		return s
	}
	return r.sanitizer.Sanitize(s)
}
