// Package handler は運用向けHTTPエンドポイント（ヘルスチェック、メトリクス、予定一覧）を提供する。
package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/hitoshi/autosign/internal/model"
	"github.com/hitoshi/autosign/internal/timetable"
)

// ScheduleSnapshotter は現在の計画サイクルで未実行の打刻予定を返す。
type ScheduleSnapshotter interface {
	Snapshot() []model.ScheduledEvent
}

// ScheduledEventResponse は打刻予定1件のレスポンス表現。
type ScheduledEventResponse struct {
	At     string `json:"at"`
	Action string `json:"action"`
}

// OpsHandler は運用エンドポイントのHTTPハンドラー。
type OpsHandler struct {
	schedule ScheduleSnapshotter
}

// NewOpsHandler はOpsHandlerを生成する。
func NewOpsHandler(schedule ScheduleSnapshotter) *OpsHandler {
	return &OpsHandler{schedule: schedule}
}

// Health はプロセスの生存を返す。
// GET /health
func (h *OpsHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Schedule は未実行の打刻予定を時刻順に返す。時刻はUTC+8のRFC3339形式。
// GET /schedule
func (h *OpsHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	events := h.schedule.Snapshot()

	resp := make([]ScheduledEventResponse, 0, len(events))
	for _, ev := range events {
		resp = append(resp, ScheduledEventResponse{
			At:     ev.At.In(timetable.Location()).Format(time.RFC3339),
			Action: ev.Kind.String(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
