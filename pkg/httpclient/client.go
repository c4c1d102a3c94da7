package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/nao1215/relay/pkg/logger"
)

// credentialParam は認証情報を付与するクエリパラメータ名。
const credentialParam = "key"

// DefaultMaxResponseBytes は上流レスポンスとして読み込む最大サイズ（20MiB）。
const DefaultMaxResponseBytes int64 = 20 << 20

var (
	// ErrTransport は上流への送信またはレスポンスの読み取りに失敗したことを表す。
	ErrTransport = errors.New("上流APIとの通信に失敗")
	// ErrInvalidJSON は上流のレスポンスがJSONとして不正であることを表す。
	ErrInvalidJSON = errors.New("上流APIのレスポンスがJSONではありません")
	// ErrResponseTooLarge は上流のレスポンスが読み込み上限を超えたことを表す。
	ErrResponseTooLarge = errors.New("上流APIのレスポンスが大きすぎます")
)

// Client は上流APIへの転送用HTTPクライアント。
type Client struct {
	// httpClient は内部で使用するHTTPクライアント。
	httpClient *http.Client
	// endpoint は認証情報を付与済みの転送先URL。
	endpoint string
	// redacted はログ出力用に認証情報を伏せた転送先URL。
	redacted string
	// maxResponseBytes は読み込むレスポンスボディの上限。
	maxResponseBytes int64
}

// Response は上流APIのレスポンス。
type Response struct {
	// StatusCode は上流が返したHTTPステータスコード。
	StatusCode int
	// Body は上流が返したJSONボディ（加工なし）。
	Body json.RawMessage
}

// New は新しい転送用HTTPクライアントを生成する。
// endpointに既存のクエリがあれば保持し、apiKeyを "key" パラメータとして追加する。
func New(endpoint, apiKey string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("転送先URLの解析に失敗: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("転送先URLが絶対URLではありません: %q", endpoint)
	}
	if apiKey == "" {
		return nil, errors.New("認証情報が空です")
	}

	q := u.Query()
	q.Set(credentialParam, apiKey)
	u.RawQuery = q.Encode()
	full := u.String()

	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		httpClient:       &http.Client{Timeout: timeout},
		endpoint:         full,
		redacted:         logger.RedactURL(full),
		maxResponseBytes: DefaultMaxResponseBytes,
	}, nil
}

// Endpoint はログ出力用に認証情報を伏せた転送先URLを返す。
func (c *Client) Endpoint() string {
	return c.redacted
}

// PostJSON はbodyをそのまま上流にPOSTし、JSONレスポンスを返す。
// 上流のステータスコードが2xx以外でも、ボディがJSONであればエラーにしない。
func (c *Client) PostJSON(ctx context.Context, body json.RawMessage) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, unwrapURLError(err))
	}
	defer resp.Body.Close()

	// 上限を1バイト超えて読めたら超過とみなす
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: レスポンスの読み取りに失敗: %w", ErrTransport, err)
	}
	if int64(len(respBody)) > c.maxResponseBytes {
		return nil, fmt.Errorf("%w: 上限 %d バイト", ErrResponseTooLarge, c.maxResponseBytes)
	}

	if !json.Valid(respBody) {
		return nil, fmt.Errorf("%w: status=%d, content-type=%q", ErrInvalidJSON, resp.StatusCode, resp.Header.Get("Content-Type"))
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       respBody,
	}, nil
}

// unwrapURLError は *url.Error から内側のエラーを取り出す。
// *url.Error のメッセージには認証情報を含むURLがそのまま入るため、ログに残さない。
func unwrapURLError(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return fmt.Errorf("%s: %w", uerr.Op, uerr.Err)
	}
	return err
}
