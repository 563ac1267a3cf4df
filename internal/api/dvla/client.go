package dvla

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrVehicleNotFound 牌照查不到车辆
var ErrVehicleNotFound = fmt.Errorf("vehicle not found")

// Client DVLA 车辆查询 (Vehicle Enquiry Service) 客户端
type Client struct {
	httpClient *http.Client
	host       string
	apiKey     string
}

// NewClient 创建 DVLA 客户端
func NewClient(host, apiKey string) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		host:   host,
		apiKey: apiKey,
	}
}

// VehicleEnquiry DVLA 车辆查询响应
type VehicleEnquiry struct {
	RegistrationNumber string `json:"registrationNumber"`
	Make               string `json:"make"`
	Colour             string `json:"colour"`
	YearOfManufacture  int    `json:"yearOfManufacture"`
	EngineCapacity     int    `json:"engineCapacity"`
	FuelType           string `json:"fuelType"`
	TaxStatus          string `json:"taxStatus"`
	TaxDueDate         string `json:"taxDueDate"`
	MotStatus          string `json:"motStatus"`
	MotExpiryDate      string `json:"motExpiryDate"`
	MonthOfFirstReg    string `json:"monthOfFirstRegistration"`
}

type enquiryError struct {
	Errors []struct {
		Status string `json:"status"`
		Code   string `json:"code"`
		Title  string `json:"title"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

// Lookup 按牌照查询车辆信息
func (c *Client) Lookup(ctx context.Context, registration string) (*VehicleEnquiry, error) {
	payload, err := json.Marshal(map[string]string{"registrationNumber": registration})
	if err != nil {
		return nil, fmt.Errorf("marshal enquiry: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.host+"/vehicle-enquiry/v1/vehicles", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create enquiry request: %w", err)
	}

	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vehicle enquiry request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// 正常
	case http.StatusNotFound:
		return nil, ErrVehicleNotFound
	default:
		body, _ := io.ReadAll(resp.Body)
		var apiErr enquiryError
		if json.Unmarshal(body, &apiErr) == nil && len(apiErr.Errors) > 0 {
			return nil, fmt.Errorf("vehicle enquiry failed: %s", apiErr.Errors[0].Detail)
		}
		return nil, fmt.Errorf("vehicle enquiry failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var enquiry VehicleEnquiry
	if err := json.NewDecoder(resp.Body).Decode(&enquiry); err != nil {
		return nil, fmt.Errorf("decode enquiry: %w", err)
	}

	return &enquiry, nil
}
