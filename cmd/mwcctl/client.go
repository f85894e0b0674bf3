package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// apiClient talks to the HTTP API of a mwcd node.
type apiClient struct {
	serverURL  string
	httpClient *http.Client
	nextID     uint64
}

func newAPIClient(serverURL string, timeout time.Duration) *apiClient {
	return &apiClient{
		serverURL:  strings.TrimSuffix(serverURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		nextID:     1,
	}
}

// apiError is an error answered by the node.
type apiError struct {
	StatusCode int
	Message    string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Message)
}

// get requests a v1 route and returns the JSON it's answered with.
func (c *apiClient) get(path string) (json.RawMessage, error) {
	response, err := c.httpClient.Get(c.serverURL + path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to reach %s", c.serverURL)
	}
	defer response.Body.Close()
	body, err := ioutil.ReadAll(response.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read the response")
	}
	if response.StatusCode != http.StatusOK {
		errResponse := &struct {
			ErrorMessage string `json:"errorMessage"`
		}{}
		err := json.Unmarshal(body, errResponse)
		if err != nil || errResponse.ErrorMessage == "" {
			return nil, &apiError{StatusCode: response.StatusCode, Message: string(body)}
		}
		return nil, &apiError{StatusCode: response.StatusCode, Message: errResponse.ErrorMessage}
	}
	return body, nil
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      uint64      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// call calls a JSON-RPC method of the v2 endpoint and returns its result.
func (c *apiClient) call(method string, params interface{}) (json.RawMessage, error) {
	request := &rpcRequest{JSONRPC: "2.0", ID: c.nextID, Method: method, Params: params}
	c.nextID++
	requestBytes, err := json.Marshal(request)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	response, err := c.httpClient.Post(c.serverURL+"/v2", "application/json", bytes.NewReader(requestBytes))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to reach %s", c.serverURL)
	}
	defer response.Body.Close()

	rpcResp := &rpcResponse{}
	err = json.NewDecoder(response.Body).Decode(rpcResp)
	if err != nil {
		return nil, &apiError{StatusCode: response.StatusCode, Message: "malformed JSON-RPC response"}
	}
	if rpcResp.Error != nil {
		return nil, &apiError{
			StatusCode: response.StatusCode,
			Message:    fmt.Sprintf("%s (code %d)", rpcResp.Error.Message, rpcResp.Error.Code),
		}
	}
	return rpcResp.Result, nil
}

func prettify(raw json.RawMessage) (string, error) {
	var buf bytes.Buffer
	err := json.Indent(&buf, raw, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "the node answered with invalid JSON")
	}
	return buf.String(), nil
}
