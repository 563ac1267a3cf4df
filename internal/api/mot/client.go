package mot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ErrNoHistory 牌照没有 MOT 记录
var ErrNoHistory = fmt.Errorf("no mot history")

// Client MOT 检测历史客户端
type Client struct {
	httpClient *http.Client
	host       string
	apiKey     string
}

// NewClient 创建 MOT 客户端
func NewClient(host, apiKey string) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		host:   host,
		apiKey: apiKey,
	}
}

// VehicleHistory MOT 历史条目（接口按牌照返回数组，首条为当前车辆）
type VehicleHistory struct {
	Registration      string    `json:"registration"`
	Make              string    `json:"make"`
	Model             string    `json:"model"`
	FirstUsedDate     string    `json:"firstUsedDate"`
	FuelType          string    `json:"fuelType"`
	PrimaryColour     string    `json:"primaryColour"`
	MotTestExpiryDate string    `json:"motTestExpiryDate"`
	MotTests          []MotTest `json:"motTests"`
}

// MotTest 单次检测记录
type MotTest struct {
	CompletedDate  string `json:"completedDate"`
	TestResult     string `json:"testResult"`
	ExpiryDate     string `json:"expiryDate"`
	OdometerValue  string `json:"odometerValue"`
	OdometerUnit   string `json:"odometerUnit"`
	MotTestNumber  string `json:"motTestNumber"`
}

// History 按牌照获取 MOT 历史
func (c *Client) History(ctx context.Context, registration string) (*VehicleHistory, error) {
	apiURL := fmt.Sprintf("%s/trade/vehicles/mot-tests/?registration=%s",
		c.host, url.QueryEscape(registration))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create history request: %w", err)
	}

	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mot history request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// 正常
	case http.StatusNotFound:
		return nil, ErrNoHistory
	default:
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("mot history failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var history []VehicleHistory
	if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}

	if len(history) == 0 {
		return nil, ErrNoHistory
	}

	return &history[0], nil
}
