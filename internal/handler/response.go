// Package handler はHTTP APIのハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/intellizapp/resumefy/internal/evolution"
	"github.com/intellizapp/resumefy/internal/model"
)

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
}

// successResponse は統一成功フォーマットのレスポンス。
type successResponse struct {
	Success    bool        `json:"success"`
	Message    string      `json:"message,omitempty"`
	Data       any         `json:"data,omitempty"`
	Pagination *pagination `json:"pagination,omitempty"`
}

// pagination はページ付き一覧レスポンスのメタ情報。
type pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

func newPagination(page, limit, total int) *pagination {
	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	return &pagination{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
	}
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Success: false,
		Code:    apiErr.Code,
		Message: apiErr.Message,
		Action:  apiErr.Action,
	})
}

// writeSuccess は統一成功フォーマットでレスポンスを書き込む。
func writeSuccess(w http.ResponseWriter, statusCode int, resp successResponse) {
	resp.Success = true
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}

// writeUnauthorized は未認証エラーレスポンスを書き込む。
func writeUnauthorized(w http.ResponseWriter) {
	writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
}

// writeInvalidBody はJSONボディ解析失敗のレスポンスを書き込む。
func writeInvalidBody(w http.ResponseWriter) {
	writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
// ゲートウェイの種別付きエラーはタイムアウト/一般エラーに翻訳する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	var gwErr *evolution.Error
	if errors.As(err, &gwErr) {
		if gwErr.Kind == evolution.ErrKindTimeout {
			writeAPIErrorResponse(w, http.StatusGatewayTimeout, model.NewGatewayTimeoutError())
			return
		}
		slog.Error("gateway error", slog.String("error", gwErr.Error()))
		writeAPIErrorResponse(w, http.StatusBadGateway, &model.APIError{
			Code:     model.ErrCodeGatewayError,
			Message:  "WhatsAppゲートウェイとの通信に失敗しました。",
			Category: "gateway",
			Action:   "しばらく待ってから再度お試しください。",
		})
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case model.ErrCodeUnauthorized, model.ErrCodeSessionExpired, model.ErrCodeInvalidCredentials:
		return http.StatusUnauthorized
	case model.ErrCodeDuplicateEmail, model.ErrCodeDuplicateGroup, model.ErrCodeTransferRequired:
		return http.StatusConflict
	case model.ErrCodeGroupLimit:
		return http.StatusForbidden
	case model.ErrCodeGroupNotFound, model.ErrCodeUserNotFound,
		model.ErrCodeChatSessionNotFound, model.ErrCodeInstanceNotFound:
		return http.StatusNotFound
	case model.ErrCodeGatewayTimeout:
		return http.StatusGatewayTimeout
	case model.ErrCodeGatewayError:
		return http.StatusBadGateway
	case model.ErrCodeWebhookUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
