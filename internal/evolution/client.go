// Package evolution はWhatsAppゲートウェイ（Evolution API）との連携を提供する。
// インスタンスの接続状態確認、グループ一覧の取得、テキスト送信を含む。
package evolution

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/intellizapp/resumefy/internal/model"
)

const (
	// statusTimeout は接続状態確認のタイムアウト。
	statusTimeout = 15 * time.Second
	// groupFetchTimeout はグループ一括取得のタイムアウト。
	// ゲートウェイのこの操作は既知の遅さがあるため長めに取る。
	groupFetchTimeout = 180 * time.Second
	// sendTimeout はメッセージ送信のタイムアウト。
	sendTimeout = 30 * time.Second
)

// InstanceStatus はゲートウェイインスタンスの接続状態。
type InstanceStatus struct {
	Connected bool   `json:"connected"`
	State     string `json:"state"`
	Instance  string `json:"instance"`
}

// GatewayMetrics はゲートウェイ呼び出しの計測インターフェース。
// 実体はmetrics.Collector。
type GatewayMetrics interface {
	RecordGatewayStatus(statusCode int)
	RecordGatewayLatency(duration time.Duration)
}

type noopGatewayMetrics struct{}

func (noopGatewayMetrics) RecordGatewayStatus(int)            {}
func (noopGatewayMetrics) RecordGatewayLatency(time.Duration) {}

// Client はEvolution APIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    GatewayMetrics
	baseURL    string
	apiKey     string
}

// NewClient はClient の新しいインスタンスを生成する。
// httpClientにはタイムアウトを設定しない。操作ごとのタイムアウトは
// 各メソッドがcontextで制御する。metricsがnilの場合は計測しない。
func NewClient(httpClient *http.Client, logger *slog.Logger, metrics GatewayMetrics, baseURL, apiKey string) *Client {
	if metrics == nil {
		metrics = noopGatewayMetrics{}
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		metrics:    metrics,
		baseURL:    baseURL,
		apiKey:     apiKey,
	}
}

// Status はインスタンスの接続状態を取得する。
// ゲートウェイがインスタンスを知らない場合（404）はエラーではなく
// state="not_found"として返す。
func (c *Client) Status(ctx context.Context, instancia string) (*InstanceStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()

	body, statusCode, err := c.doGET(ctx, fmt.Sprintf("/instance/connectionState/%s", url.PathEscape(instancia)))
	if err != nil {
		return nil, err
	}
	if statusCode == http.StatusNotFound {
		return &InstanceStatus{Connected: false, State: "not_found", Instance: instancia}, nil
	}
	if statusCode != http.StatusOK {
		return nil, newGatewayStatusError(statusCode)
	}

	var payload struct {
		Instance struct {
			InstanceName string `json:"instanceName"`
			State        string `json:"state"`
		} `json:"instance"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &Error{Kind: ErrKindMalformed, Err: fmt.Errorf("接続状態レスポンスのパースに失敗しました: %w", err)}
	}

	return &InstanceStatus{
		Connected: payload.Instance.State == "open",
		State:     payload.Instance.State,
		Instance:  instancia,
	}, nil
}

// FetchGroups はインスタンスに紐づくWhatsAppグループの一覧を取得する。
func (c *Client) FetchGroups(ctx context.Context, instancia string) ([]*model.CandidatoGrupo, error) {
	ctx, cancel := context.WithTimeout(ctx, groupFetchTimeout)
	defer cancel()

	body, statusCode, err := c.doGET(ctx, fmt.Sprintf("/group/fetchAllGroups/%s?getParticipants=false", url.PathEscape(instancia)))
	if err != nil {
		return nil, err
	}
	if statusCode == http.StatusNotFound {
		return nil, model.NewInstanceNotFoundError(instancia)
	}
	if statusCode != http.StatusOK {
		return nil, newGatewayStatusError(statusCode)
	}

	var payload []struct {
		ID      string `json:"id"`
		Subject string `json:"subject"`
		Desc    string `json:"desc"`
		Size    int    `json:"size"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &Error{Kind: ErrKindMalformed, Err: fmt.Errorf("グループ一覧レスポンスのパースに失敗しました: %w", err)}
	}

	candidatos := make([]*model.CandidatoGrupo, 0, len(payload))
	for _, g := range payload {
		candidatos = append(candidatos, &model.CandidatoGrupo{
			NomeGrupo:      g.Subject,
			GrupoIDExterno: g.ID,
			Participantes:  g.Size,
			Descricao:      g.Desc,
		})
	}
	return candidatos, nil
}

// SendText はグループへテキストメッセージを送信する。
func (c *Client) SendText(ctx context.Context, instancia, grupoIDExterno, texto string) error {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	reqBody, err := json.Marshal(map[string]any{
		"number": grupoIDExterno,
		"text":   texto,
	})
	if err != nil {
		return fmt.Errorf("リクエストボディの生成に失敗しました: %w", err)
	}

	endpoint := fmt.Sprintf("%s/message/sendText/%s", c.baseURL, url.PathEscape(instancia))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuth(req)

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.RecordGatewayLatency(time.Since(started))
	if err != nil {
		return wrapTransportError(err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	c.metrics.RecordGatewayStatus(resp.StatusCode)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		c.logger.Error("ゲートウェイへのメッセージ送信に失敗しました",
			slog.Int("http_status", resp.StatusCode),
			slog.String("instancia", instancia),
		)
		return newGatewayStatusError(resp.StatusCode)
	}
	return nil
}

// doGET はGETリクエストを実行し、ボディとステータスコードを返す。
// トランスポートレベルの失敗はErrorに包んで返す。
func (c *Client) doGET(ctx context.Context, path string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	c.setAuth(req)

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.RecordGatewayLatency(time.Since(started))
	if err != nil {
		c.logger.Error("ゲートウェイの呼び出しに失敗しました",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil, 0, wrapTransportError(err)
	}
	defer resp.Body.Close()
	c.metrics.RecordGatewayStatus(resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, &Error{Kind: ErrKindTransient, Err: fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)}
	}
	return body, resp.StatusCode, nil
}

func (c *Client) setAuth(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}
}

// wrapTransportError はトランスポート層のエラーを種別付きで包む。
// タイムアウトは呼び出し側が別のリトライ方針を適用するため区別する。
func wrapTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: ErrKindTimeout, Err: err}
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: ErrKindTimeout, Err: err}
	}
	return &Error{Kind: ErrKindTransient, Err: err}
}

func newGatewayStatusError(statusCode int) error {
	kind := ErrKindTerminal
	if statusCode >= 500 {
		kind = ErrKindTransient
	}
	return &Error{
		Kind: kind,
		Err:  fmt.Errorf("ゲートウェイがステータス %d を返しました", statusCode),
	}
}
