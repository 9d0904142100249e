package mazda

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mazda-bridge-backend/config"
)

const (
	resultCodeOK = "200S00"

	// Application error codes returned inside an otherwise successful
	// HTTP response.
	errorCodeTokenExpired      = 600002
	errorCodeRequestInProgress = 920000

	userAgent  = "MyMazda-Android/8.5.2"
	appVersion = "8.5.2"
	appOS      = "Android"
)

// regionEndpoint maps a Mazda region code to its API hosts.
type regionEndpoint struct {
	baseURL  string
	usherURL string
}

var regionEndpoints = map[string]regionEndpoint{
	"MNAO": {"https://0cxo7m58.mazda.com/prod/", "https://ptznwbh8.mazda.com/appapi/v1/"},
	"MME":  {"https://e9stj7g7.mazda.com/prod/", "https://rz97suam.mazda.com/appapi/v1/"},
	"MJO":  {"https://wcs9p6wj.mazda.com/prod/", "https://c5ulfwxr.mazda.com/appapi/v1/"},
}

// Client talks to the Mazda Connected Services API for one account. It is
// safe for use from multiple goroutines; the access token is guarded.
type Client struct {
	email    string
	password string
	baseURL  string
	usherURL string
	deviceID string
	http     *http.Client
	log      zerolog.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewClient creates a client for the configured account. The device
// identifier is generated once per process, mirroring the mobile app's
// per-install identity.
func NewClient(cfg *config.MazdaConfig, logger zerolog.Logger) (*Client, error) {
	base, usher := cfg.BaseURL, cfg.UsherURL
	if base == "" || usher == "" {
		ep, ok := regionEndpoints[cfg.Region]
		if !ok {
			return nil, fmt.Errorf("unknown region %q", cfg.Region)
		}
		if base == "" {
			base = ep.baseURL
		}
		if usher == "" {
			usher = ep.usherURL
		}
	}

	return &Client{
		email:    cfg.Email,
		password: cfg.Password,
		baseURL:  base,
		usherURL: usher,
		deviceID: uuid.NewString(),
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: logger,
	}, nil
}

type apiEnvelope struct {
	ResultCode string `json:"resultCode"`
	ErrorCode  int    `json:"errorCode"`
	Message    string `json:"message"`
}

type loginResponse struct {
	Status string `json:"status"`
	Data   struct {
		AccessToken           string `json:"accessToken"`
		AccessTokenExpiration int64  `json:"accessTokenExpirationTs"`
	} `json:"data"`
}

type vehicleListResponse struct {
	apiEnvelope
	VecBaseInfos []struct {
		ID          json.Number `json:"id"`
		VIN         string      `json:"vin"`
		Nickname    string      `json:"nickname"`
		ModelYear   string      `json:"modelYear"`
		CarlineName string      `json:"carlineName"`
		IsElectric  bool        `json:"isElectric"`
	} `json:"vecBaseInfos"`
}

type statusResponse struct {
	apiEnvelope
	AlertInfos  []alertInfo  `json:"alertInfos"`
	RemoteInfos []remoteInfo `json:"remoteInfos"`
}

type evStatusResponse struct {
	apiEnvelope
	ResultData []evResultData `json:"resultData"`
}

type commandResponse struct {
	apiEnvelope
	VisitNo string `json:"visitNo"`
}

type commandStatusResponse struct {
	apiEnvelope
	CommandStatus string `json:"commandStatus"`
}

// Authenticate performs the password login flow and stores the returned
// access token. It is also called implicitly when no valid token exists.
func (c *Client) Authenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loginLocked(ctx)
}

func (c *Client) loginLocked(ctx context.Context) error {
	c.log.Info().Str("email", c.email).Msg("logging in to Mazda Connected Services")

	body := map[string]any{
		"appId":      "MazdaApp",
		"deviceId":   c.deviceID,
		"locale":     "en-US",
		"password":   c.password,
		"sdkVersion": appVersion,
		"userId":     c.email,
		"userIdType": "email",
	}

	var resp loginResponse
	if err := c.postJSON(ctx, c.usherURL+"user/login", "", body, &resp); err != nil {
		return err
	}

	switch resp.Status {
	case "OK":
	case "INVALID_CREDENTIAL":
		return &AuthError{Reason: "invalid email or password"}
	case "USER_LOCKED":
		return &AuthError{Reason: "account is locked"}
	default:
		return &AuthError{Reason: "login failed with status " + resp.Status}
	}

	c.accessToken = resp.Data.AccessToken
	c.tokenExpiry = time.Unix(resp.Data.AccessTokenExpiration, 0)
	c.log.Info().Time("token_expiry", c.tokenExpiry).Msg("login succeeded")
	return nil
}

// token returns a valid access token, logging in first when the cached
// one is missing or expired.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accessToken == "" || !time.Now().Before(c.tokenExpiry) {
		if err := c.loginLocked(ctx); err != nil {
			return "", err
		}
	}
	return c.accessToken, nil
}

// GetVehicles fetches the vehicle list for the account.
func (c *Client) GetVehicles(ctx context.Context) ([]Vehicle, error) {
	var resp vehicleListResponse
	if err := c.apiRequest(ctx, "remoteServices/getVecBaseInfos/v4", map[string]any{
		"internaluserid": "__INTERNAL_ID__",
	}, &resp); err != nil {
		return nil, err
	}

	vehicles := make([]Vehicle, 0, len(resp.VecBaseInfos))
	for _, v := range resp.VecBaseInfos {
		vehicles = append(vehicles, Vehicle{
			ID:          v.ID.String(),
			VIN:         v.VIN,
			Nickname:    v.Nickname,
			ModelYear:   v.ModelYear,
			CarlineName: v.CarlineName,
			IsElectric:  v.IsElectric,
		})
	}
	return vehicles, nil
}

// GetVehicleStatus fetches the lightweight status (doors, fuel, position)
// for one vehicle and maps it into a snapshot.
func (c *Client) GetVehicleStatus(ctx context.Context, vehicleID string) (*StatusSnapshot, error) {
	var resp statusResponse
	if err := c.apiRequest(ctx, "remoteServices/getVehicleStatus/v4", map[string]any{
		"internaluserid": "__INTERNAL_ID__",
		"internalvin":    vehicleID,
		"limit":          1,
		"offset":         0,
		"vecinfotype":    "0",
	}, &resp); err != nil {
		return nil, err
	}

	if len(resp.AlertInfos) == 0 || len(resp.RemoteInfos) == 0 {
		return nil, fmt.Errorf("status response for vehicle %s is missing alertInfos or remoteInfos", vehicleID)
	}
	snap := parseStatus(vehicleID, resp.AlertInfos[0], resp.RemoteInfos[0])
	return &snap, nil
}

// GetEVVehicleStatus fetches the battery, charging and climate state for
// an electric vehicle.
func (c *Client) GetEVVehicleStatus(ctx context.Context, vehicleID string) (*EVSnapshot, error) {
	var resp evStatusResponse
	if err := c.apiRequest(ctx, "remoteServices/getEVVehicleStatus/v4", map[string]any{
		"internaluserid": "__INTERNAL_ID__",
		"internalvin":    vehicleID,
		"limit":          1,
		"offset":         0,
		"vecinfotype":    "0",
	}, &resp); err != nil {
		return nil, err
	}

	if len(resp.ResultData) == 0 {
		return nil, fmt.Errorf("ev status response for vehicle %s is missing resultData", vehicleID)
	}
	snap := parseEV(vehicleID, resp.ResultData[0])
	return &snap, nil
}

// GetHealthReport fetches the maintenance report (oil, battery, TPMS) for
// one vehicle.
func (c *Client) GetHealthReport(ctx context.Context, vehicleID string) (*HealthSnapshot, error) {
	var resp statusResponse
	if err := c.apiRequest(ctx, "remoteServices/getHealthReport/v4", map[string]any{
		"internaluserid": "__INTERNAL_ID__",
		"internalvin":    vehicleID,
		"limit":          1,
		"offset":         0,
	}, &resp); err != nil {
		return nil, err
	}

	if len(resp.RemoteInfos) == 0 {
		return nil, fmt.Errorf("health report for vehicle %s is missing remoteInfos", vehicleID)
	}
	snap := parseHealth(vehicleID, resp.RemoteInfos[0])
	return &snap, nil
}

var commandURIs = map[CommandKind]string{
	CommandLockDoors:       "remoteServices/doorLock/v4",
	CommandUnlockDoors:     "remoteServices/doorUnlock/v4",
	CommandStartEngine:     "remoteServices/engineStart/v4",
	CommandStopEngine:      "remoteServices/engineStop/v4",
	CommandHazardLightsOn:  "remoteServices/lightOn/v4",
	CommandHazardLightsOff: "remoteServices/lightOff/v4",
	CommandSendPOI:         "remoteServices/sendPOI/v4",
	CommandStartCharging:   "remoteServices/chargeStart/v4",
	CommandStopCharging:    "remoteServices/chargeStop/v4",
	CommandHVACOn:          "remoteServices/hvacOn/v4",
	CommandHVACOff:         "remoteServices/hvacOff/v4",
}

// SendCommand issues a remote command and returns the server-issued
// tracking identifier (visitNo). An empty identifier means the API
// accepted the command without one.
func (c *Client) SendCommand(ctx context.Context, vehicleID string, kind CommandKind, poi *POI) (string, error) {
	uri, ok := commandURIs[kind]
	if !ok {
		return "", &ValidationError{Reason: fmt.Sprintf("unknown command kind %q", kind)}
	}

	body := map[string]any{
		"internaluserid": "__INTERNAL_ID__",
		"internalvin":    vehicleID,
	}
	if kind == CommandSendPOI {
		if poi == nil {
			return "", &ValidationError{Reason: "send_poi requires a destination"}
		}
		if poi.Name == "" {
			return "", &ValidationError{Reason: "poi name must not be empty"}
		}
		if poi.Latitude < -90 || poi.Latitude > 90 {
			return "", &ValidationError{Reason: fmt.Sprintf("latitude %v out of range", poi.Latitude)}
		}
		if poi.Longitude < -180 || poi.Longitude > 180 {
			return "", &ValidationError{Reason: fmt.Sprintf("longitude %v out of range", poi.Longitude)}
		}
		body["placemarkinfos"] = []map[string]any{poiPlacemark(*poi)}
	}

	var resp commandResponse
	if err := c.apiRequestWith(ctx, uri, body, &resp, kind); err != nil {
		return "", err
	}
	return resp.VisitNo, nil
}

// GetCommandStatus queries the completion state of a previously issued
// command by its visitNo.
func (c *Client) GetCommandStatus(ctx context.Context, vehicleID, visitNo string) (CommandState, error) {
	var resp commandStatusResponse
	if err := c.apiRequest(ctx, "remoteServices/getVehicleCommandStatus/v4", map[string]any{
		"internaluserid": "__INTERNAL_ID__",
		"internalvin":    vehicleID,
		"visitNo":        visitNo,
	}, &resp); err != nil {
		return CommandStateUnknown, err
	}
	return mapCommandStatus(resp.CommandStatus), nil
}

// mapCommandStatus folds the upstream status strings into the four states
// the bridge exposes. Anything unrecognized is unknown, not an error.
func mapCommandStatus(s string) CommandState {
	switch s {
	case "ACCEPTED", "PENDING", "RUNNING":
		return CommandStatePending
	case "SUCCESS", "SUCCEEDED", "COMPLETED":
		return CommandStateSucceeded
	case "FAILED", "ERROR", "TIMEOUT":
		return CommandStateFailed
	}
	return CommandStateUnknown
}

// apiRequest performs an authenticated POST against the main API and
// checks the application result code.
func (c *Client) apiRequest(ctx context.Context, uri string, body map[string]any, out interface{ envelope() apiEnvelope }) error {
	return c.apiRequestWith(ctx, uri, body, out, "")
}

func (c *Client) apiRequestWith(ctx context.Context, uri string, body map[string]any, out interface{ envelope() apiEnvelope }, cmd CommandKind) error {
	tok, err := c.token(ctx)
	if err != nil {
		return err
	}

	if err := c.postJSON(ctx, c.baseURL+uri, tok, body, out); err != nil {
		return err
	}

	env := out.envelope()
	switch {
	case env.ErrorCode == errorCodeTokenExpired:
		c.invalidateToken()
		return &AuthError{Reason: "access token expired"}
	case env.ErrorCode == errorCodeRequestInProgress:
		return fmt.Errorf("another request for this vehicle is already in progress upstream")
	case env.ResultCode != resultCodeOK:
		if cmd != "" {
			return &CommandRejectedError{Kind: cmd, ResultCode: env.ResultCode}
		}
		return fmt.Errorf("request to %s returned result code %s", uri, env.ResultCode)
	}
	return nil
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.accessToken = ""
	c.mu.Unlock()
}

// postJSON performs one HTTP round trip. Network and server-side failures
// come back as plain wrapped errors, which the retry policy treats as
// transient; 401/403 map to AuthError and 400 to ValidationError.
func (c *Client) postJSON(ctx context.Context, url, token string, body, out any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("app-version", appVersion)
	req.Header.Set("app-os", appOS)
	req.Header.Set("device-id", c.deviceID)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &AuthError{Reason: fmt.Sprintf("server returned status %d", resp.StatusCode)}
	case resp.StatusCode == http.StatusBadRequest:
		return &ValidationError{Reason: fmt.Sprintf("server returned status %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("received non-200 status code: %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to unmarshal api response: %w", err)
	}
	return nil
}

func (e apiEnvelope) envelope() apiEnvelope { return e }
