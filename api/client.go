// client.go - Hauptmodul des Embedr API-Clients.
// Dieses Modul enthaelt die Client-Struktur, Basis-Methoden und die
// API-Methoden fuer Predict, Sessions und Version.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"runtime"

	"github.com/embedr/embedr/envconfig"
	"github.com/embedr/embedr/version"
)

// Client encapsulates client state for interacting with the embedr
// service. Use [ClientFromEnvironment] to create new Clients.
type Client struct {
	base *url.URL
	http *http.Client
}

func checkError(resp *http.Response, body []byte) error {
	if resp.StatusCode < http.StatusBadRequest {
		return nil
	}

	apiError := StatusError{StatusCode: resp.StatusCode, Status: resp.Status}

	err := json.Unmarshal(body, &apiError)
	if err != nil {
		// Use the full body as the message if we fail to decode a response.
		apiError.ErrorMessage = string(body)
	}

	return apiError
}

// ClientFromEnvironment creates a new [Client] using configuration from
// the environment variable EMBEDR_HOST, which points to the network host
// and port on which the embedr service is listening. The format of this
// variable is:
//
//	<scheme>://<host>:<port>
//
// If the variable is not specified, a default host and port will be used.
func ClientFromEnvironment() (*Client, error) {
	return &Client{
		base: envconfig.Host(),
		http: http.DefaultClient,
	}, nil
}

func NewClient(base *url.URL, http *http.Client) *Client {
	return &Client{
		base: base,
		http: http,
	}
}

func (c *Client) do(ctx context.Context, method, path string, reqData, respData any) error {
	var reqBody io.Reader

	switch reqData := reqData.(type) {
	case io.Reader:
		// reqData is already an io.Reader
		reqBody = reqData
	case nil:
		// noop
	default:
		data, err := json.Marshal(reqData)
		if err != nil {
			return err
		}

		reqBody = bytes.NewReader(data)
	}

	requestURL := c.base.JoinPath(path)

	request, err := http.NewRequestWithContext(ctx, method, requestURL.String(), reqBody)
	if err != nil {
		return err
	}

	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")
	request.Header.Set("User-Agent", fmt.Sprintf("embedr/%s (%s %s) Go/%s", version.Version, runtime.GOARCH, runtime.GOOS, runtime.Version()))

	respObj, err := c.http.Do(request)
	if err != nil {
		return err
	}
	defer respObj.Body.Close()

	respBody, err := io.ReadAll(respObj.Body)
	if err != nil {
		return err
	}

	if err := checkError(respObj, respBody); err != nil {
		return err
	}

	if len(respBody) > 0 && respData != nil {
		if err := json.Unmarshal(respBody, respData); err != nil {
			return err
		}
	}
	return nil
}

// Heartbeat checks whether the server is reachable.
func (c *Client) Heartbeat(ctx context.Context) error {
	if err := c.do(ctx, http.MethodHead, "/", nil, nil); err != nil {
		return fmt.Errorf("could not connect to a running embedr instance: %w", err)
	}
	return nil
}

// Version returns the server version.
func (c *Client) Version(ctx context.Context) (string, error) {
	var resp VersionResponse
	if err := c.do(ctx, http.MethodGet, "/api/version", nil, &resp); err != nil {
		return "", err
	}
	return resp.Version, nil
}

// Predict scores target points against a context in one stateless call.
func (c *Client) Predict(ctx context.Context, req *PredictRequest) (*PredictResponse, error) {
	var resp PredictResponse
	if err := c.do(ctx, http.MethodPost, "/api/predict", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateSession opens an inference session with fixed capacity.
func (c *Client) CreateSession(ctx context.Context, req *CreateSessionRequest) (*SessionResponse, error) {
	var resp SessionResponse
	if err := c.do(ctx, http.MethodPost, "/api/sessions", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListSessions lists all open sessions.
func (c *Client) ListSessions(ctx context.Context) (*ListSessionsResponse, error) {
	var resp ListSessionsResponse
	if err := c.do(ctx, http.MethodGet, "/api/sessions", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Observe appends observations to a session's context.
func (c *Client) Observe(ctx context.Context, sessionID string, req *ObserveRequest) (*SessionResponse, error) {
	var resp SessionResponse
	if err := c.do(ctx, http.MethodPost, "/api/sessions/"+sessionID+"/observe", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SessionPredict scores fresh targets against a session's context.
func (c *Client) SessionPredict(ctx context.Context, sessionID string, req *SessionPredictRequest) (*PredictResponse, error) {
	var resp PredictResponse
	if err := c.do(ctx, http.MethodPost, "/api/sessions/"+sessionID+"/predict", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteSession closes a session and drops its cache.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodDelete, "/api/sessions/"+sessionID, nil, nil)
}

// CreateStudy stores a study.
func (c *Client) CreateStudy(ctx context.Context, study *Study) error {
	return c.do(ctx, http.MethodPost, "/api/studies", study, nil)
}

// GetStudy loads a stored study with all observations.
func (c *Client) GetStudy(ctx context.Context, name string) (*Study, error) {
	var study Study
	if err := c.do(ctx, http.MethodGet, "/api/studies/"+name, nil, &study); err != nil {
		return nil, err
	}
	return &study, nil
}

// ListStudies lists all stored studies without observations.
func (c *Client) ListStudies(ctx context.Context) (*ListStudiesResponse, error) {
	var resp ListStudiesResponse
	if err := c.do(ctx, http.MethodGet, "/api/studies", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteStudy removes a stored study and its observations.
func (c *Client) DeleteStudy(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/api/studies/"+name, nil, nil)
}
