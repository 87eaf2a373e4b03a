package model

import (
	"errors"
	"fmt"
)

// FailureKind は打刻処理の失敗分類。
type FailureKind int

const (
	// FailureTransport はHTTPステータス異常、タイムアウト、Location欠落などの通信失敗。
	FailureTransport FailureKind = iota + 1
	// FailureAuth はログイン確認で未ログインと判定された失敗。
	FailureAuth
	// FailureProtocol はレスポンスJSONの形式不正や必須キー欠落。
	FailureProtocol
	// FailureDomain はポータルが打刻を拒否した（t != 1）。
	FailureDomain
)

// String はログ出力用の分類名を返す。
func (k FailureKind) String() string {
	switch k {
	case FailureTransport:
		return "transport"
	case FailureAuth:
		return "auth"
	case FailureProtocol:
		return "protocol"
	case FailureDomain:
		return "domain"
	default:
		return "unknown"
	}
}

// LoginFailedMessage はログイン確認失敗時の原因メッセージ。
const LoginFailedMessage = "Login failed: check username/password"

// SignError は分類付きの打刻エラー。
type SignError struct {
	Kind    FailureKind
	Op      string      // 失敗した操作（login, verify, sign, records など）
	Message string      // 人間向けの原因
	Result  *SignResult // ポータルが返した結果（存在する場合）
	Err     error       // 下位エラー
}

// Error はerrorインターフェースを実装する。
func (e *SignError) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s failure", e.Op, e.Kind)
	}
}

// Unwrap は下位エラーを返す。
func (e *SignError) Unwrap() error {
	return e.Err
}

// NewTransportError は通信失敗エラーを生成する。
func NewTransportError(op string, err error) *SignError {
	return &SignError{Kind: FailureTransport, Op: op, Err: err}
}

// NewProtocolError はレスポンス形式不正エラーを生成する。
// payloadは調査用にそのまま保持する。
func NewProtocolError(op string, payload string, err error) *SignError {
	return &SignError{
		Kind:   FailureProtocol,
		Op:     op,
		Result: &SignResult{Status: -1, Raw: payload},
		Err:    err,
	}
}

// NewAuthError はログイン失敗エラーを生成する。
func NewAuthError() *SignError {
	return &SignError{Kind: FailureAuth, Op: "verify", Message: LoginFailedMessage}
}

// NewDomainError はポータルによる打刻拒否エラーを生成する。
func NewDomainError(result *SignResult) *SignError {
	msg := "Unknown error"
	if result != nil && result.Message != "" {
		msg = result.Message
	}
	return &SignError{Kind: FailureDomain, Op: "sign", Message: msg, Result: result}
}

// KindOf はエラーの失敗分類を返す。SignError以外は通信失敗として扱う。
func KindOf(err error) FailureKind {
	var se *SignError
	if errors.As(err, &se) {
		return se.Kind
	}
	return FailureTransport
}

// OutcomeKind は1回の実行結果の分類。
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeAuthFailure
	OutcomeTransportFailure
	OutcomeProtocolFailure
	OutcomeDomainFailure
)

// String はメトリクスのラベル値に使う名前を返す。
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeAuthFailure:
		return "auth_failure"
	case OutcomeTransportFailure:
		return "transport_failure"
	case OutcomeProtocolFailure:
		return "protocol_failure"
	case OutcomeDomainFailure:
		return "domain_failure"
	default:
		return "unknown"
	}
}

// Outcome はAction Runnerの1回の実行結果。
type Outcome struct {
	Kind   OutcomeKind
	Action ActionKind
	Result *SignResult
	Err    error
}

// OK は成功したかを返す。
func (o Outcome) OK() bool {
	return o.Kind == OutcomeSuccess
}

// OutcomeFromError はエラーの分類からOutcomeを組み立てる。
func OutcomeFromError(action ActionKind, err error) Outcome {
	o := Outcome{Action: action, Err: err}
	var se *SignError
	if errors.As(err, &se) {
		o.Result = se.Result
	}
	switch KindOf(err) {
	case FailureAuth:
		o.Kind = OutcomeAuthFailure
	case FailureProtocol:
		o.Kind = OutcomeProtocolFailure
	case FailureDomain:
		o.Kind = OutcomeDomainFailure
	default:
		o.Kind = OutcomeTransportFailure
	}
	return o
}
