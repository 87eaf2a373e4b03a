package portal

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/autosign/internal/model"
)

func loggedInClient(t *testing.T, f *fakePortal) *Client {
	t.Helper()
	c := f.client(t, validCreds())
	require.NoError(t, c.Login(context.Background()))
	return c
}

func TestSign_SignInSuccess(t *testing.T) {
	f := newFakePortal(t)
	c := loggedInClient(t, f)

	result, err := c.Sign(context.Background(), model.SignIn)
	require.NoError(t, err)
	assert.True(t, result.Succeeded())
	assert.Equal(t, "ok", result.Message)

	forms := f.signForms()
	require.Len(t, forms, 1)
	assert.Equal(t, "6", forms[0].Get("type"))
	assert.Equal(t, "0", forms[0].Get("otA"))
	assert.Equal(t, "1", forms[0].Get("t"))

	reqs := f.recorded()
	last := reqs[len(reqs)-1]
	assert.Equal(t, "XMLHttpRequest", last.Header.Get("X-Requested-With"))
	assert.Equal(t, "application/x-www-form-urlencoded; charset=UTF-8", last.Header.Get("Content-Type"))
	assert.Equal(t, f.portal.URL, last.Header.Get("Origin"))
	assert.Equal(t, f.portal.URL+"/attend/ssi.aspx", last.Header.Get("Referer"))
}

func TestSign_SignInFailureIsNotRetried(t *testing.T) {
	f := newFakePortal(t)
	f.signHandler = func(int, url.Values) string {
		return `[{"t":0,"msg":"請先申請加班"}]`
	}
	c := loggedInClient(t, f)

	result, err := c.Sign(context.Background(), model.SignIn)
	require.NoError(t, err)
	assert.False(t, result.Succeeded())
	assert.Len(t, f.signForms(), 1, "出勤にはリトライ規則がない")
}

func TestSign_SignOutOvertimeRetriesOnce(t *testing.T) {
	f := newFakePortal(t)
	f.signHandler = func(n int, form url.Values) string {
		if form.Get("otA") == "1" {
			return `[{"t":1,"msg":"簽退成功","d":"2025/04/18 18:06:51"}]`
		}
		return `[{"t":3,"msg":"超過下班時間，請先申請加班"}]`
	}
	c := loggedInClient(t, f)

	result, err := c.Sign(context.Background(), model.SignOut)
	require.NoError(t, err)
	assert.True(t, result.Succeeded())
	assert.Equal(t, "2025/04/18 18:06:51", result.Timestamp)

	forms := f.signForms()
	require.Len(t, forms, 2)
	assert.Equal(t, "0", forms[0].Get("otA"))
	assert.Equal(t, "1", forms[1].Get("otA"))
	assert.Equal(t, "2", forms[1].Get("t"))
}

func TestSign_SignOutOvertimeRetryReturnsSecondResultEvenOnFailure(t *testing.T) {
	f := newFakePortal(t)
	f.signHandler = func(n int, form url.Values) string {
		return `[{"t":0,"msg":"請先申請加班"}]`
	}
	c := loggedInClient(t, f)

	result, err := c.Sign(context.Background(), model.SignOut)
	require.NoError(t, err)
	assert.False(t, result.Succeeded())
	assert.Len(t, f.signForms(), 2, "リトライは1回だけ")
}

func TestSign_SignOutSuccessWithMarkerIsNotRetried(t *testing.T) {
	f := newFakePortal(t)
	f.signHandler = func(int, url.Values) string {
		return `[{"t":1,"msg":"簽退成功（加班）"}]`
	}
	c := loggedInClient(t, f)

	result, err := c.Sign(context.Background(), model.SignOut)
	require.NoError(t, err)
	assert.True(t, result.Succeeded())
	assert.Len(t, f.signForms(), 1)
}

func TestSign_SignOutOtherRejectionIsNotRetried(t *testing.T) {
	f := newFakePortal(t)
	f.signHandler = func(int, url.Values) string {
		return `[{"t":0,"msg":"error"}]`
	}
	c := loggedInClient(t, f)

	result, err := c.Sign(context.Background(), model.SignOut)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Status)
	assert.Len(t, f.signForms(), 1)
}

func TestSign_MalformedResponseIsProtocolFailure(t *testing.T) {
	f := newFakePortal(t)
	f.signHandler = func(int, url.Values) string {
		return `<html>Session expired</html>`
	}
	c := loggedInClient(t, f)

	_, err := c.Sign(context.Background(), model.SignIn)
	require.Error(t, err)
	assert.Equal(t, model.FailureProtocol, model.KindOf(err))

	var se *model.SignError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, `<html>Session expired</html>`, se.Result.Raw)
}

func TestSign_WithoutSessionIsTransportFailure(t *testing.T) {
	f := newFakePortal(t)
	c := f.client(t, validCreds())

	_, err := c.Sign(context.Background(), model.SignIn)
	require.Error(t, err)
	assert.Equal(t, model.FailureTransport, model.KindOf(err))
}

func TestSign_UnknownAction(t *testing.T) {
	f := newFakePortal(t)
	c := f.client(t, validCreds())

	_, err := c.Sign(context.Background(), model.ActionKind(9))
	assert.Error(t, err)
	assert.Empty(t, f.recorded())
}

func TestCheckRecords(t *testing.T) {
	f := newFakePortal(t)
	f.recordsBody = `[
		{"signdate":"2025-04-18","startdate":"08:52:52","enddate":"18:06:51"},
		{"signdate":"2025-04-17","startdate":"09:10:00","enddate":null}
	]`
	c := loggedInClient(t, f)

	records, err := c.CheckRecords(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, model.AttendanceRecord{SignDate: "2025-04-18", StartTime: "08:52:52", EndTime: "18:06:51"}, records[0])
	assert.Equal(t, "", records[1].EndTime)

	reqs := f.recorded()
	last := reqs[len(reqs)-1]
	assert.Equal(t, "4", last.Form.Get("type"))
	assert.Equal(t, "7", last.Form.Get("day"))
}

func TestParseSignResult(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantMsg    string
		wantErr    bool
	}{
		{"数値のt", `[{"t":1,"msg":"ok"}]`, 1, "ok", false},
		{"文字列のt", `[{"t":"0","msg":"error"}]`, 0, "error", false},
		{"前後の空白とBOM", "\n\ufeff [{\"t\":1}] \r\n", 1, "", false},
		{"先頭要素のみ使う", `[{"t":2,"msg":"a"},{"t":1,"msg":"b"}]`, 2, "a", false},
		{"tの欠落", `[{"msg":"ok"}]`, 0, "", true},
		{"空配列", `[]`, 0, "", true},
		{"JSONでない", `Internal Server Error`, 0, "", true},
		{"オブジェクトでない要素", `[1]`, 0, "", true},
		{"null要素", `[null]`, 0, "", true},
		{"整数でないt", `[{"t":1.5}]`, 0, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSignResult([]byte(tt.body))
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, model.FailureProtocol, model.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantMsg, got.Message)
			assert.Equal(t, tt.body, got.Raw)
		})
	}
}

func TestParseRecords_Malformed(t *testing.T) {
	_, err := ParseRecords([]byte(`{"t":-1}`))
	require.Error(t, err)
	assert.Equal(t, model.FailureProtocol, model.KindOf(err))
}
