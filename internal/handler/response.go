package handler

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/todoman/internal/middleware"
	"github.com/hitoshi/todoman/internal/model"
)

// dataEnvelope は成功レスポンスの統一フォーマット。
// 失敗時のErrorEnvelopeと対になる。
type dataEnvelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

// writeDataResponse は成功エンベロープでJSONレスポンスを書き込む。
func writeDataResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(dataEnvelope{
		Success: true,
		Data:    data,
	})
}

// writeAPIError はAPIErrorのカテゴリに応じたステータスコードで
// エラーエンベロープを書き込む。
func writeAPIError(w http.ResponseWriter, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, middleware.StatusForAPIError(apiErr), apiErr)
}

// writeInvalidBodyError はリクエストボディ解析失敗のレスポンスを書き込む。
func writeInvalidBodyError(w http.ResponseWriter) {
	writeAPIError(w, &model.APIError{
		Code:     "INVALID_REQUEST",
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	})
}
