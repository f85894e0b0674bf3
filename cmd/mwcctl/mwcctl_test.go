package main

import (
	"bytes"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestBlockPath(t *testing.T) {
	tests := []struct {
		id            string
		compact       bool
		includeProof  bool
		noMerkleProof bool
		expectedPath  string
	}{
		{id: "12", expectedPath: "/v1/blocks/12"},
		{id: "12", compact: true, expectedPath: "/v1/blocks/12?compact"},
		{id: "ab", includeProof: true, noMerkleProof: true, expectedPath: "/v1/blocks/ab?include_proof&no_merkle_proof"},
	}
	for i, test := range tests {
		path := blockPath(test.id, test.compact, test.includeProof, test.noMerkleProof)
		if path != test.expectedPath {
			t.Fatalf("TestBlockPath: test #%d: expected %s, got %s", i, test.expectedPath, path)
		}
	}
}

func TestReadHexArg(t *testing.T) {
	dir, err := ioutil.TempDir("", "TestReadHexArg")
	if err != nil {
		t.Fatalf("TestReadHexArg: TempDir: %s", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "block.hex")
	err = ioutil.WriteFile(path, []byte("00ff\n"), 0600)
	if err != nil {
		t.Fatalf("TestReadHexArg: WriteFile: %s", err)
	}
	for _, arg := range []string{"00ff", "@" + path} {
		blockHex, err := readHexArg(arg)
		if err != nil {
			t.Fatalf("TestReadHexArg: %s: %s", arg, err)
		}
		if blockHex != "00ff" {
			t.Fatalf("TestReadHexArg: %s: unexpected hex %q", arg, blockHex)
		}
	}
	_, err = readHexArg("@" + filepath.Join(dir, "missing"))
	if err == nil {
		t.Fatalf("TestReadHexArg: expected an error for a missing file")
	}
}

func TestAPIClient(t *testing.T) {
	var lastRequest map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v1/status":
			w.Write([]byte(`{"network":"floonet"}`))
		case r.Method == http.MethodGet:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"errorCode":404,"errorMessage":"no block at height 7"}`))
		case r.URL.Path == "/v2":
			lastRequest = nil
			json.NewDecoder(r.Body).Decode(&lastRequest)
			if lastRequest["method"] == "get_tip" {
				w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"height":5}}`))
				return
			}
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"jsonrpc":"2.0","id":2,"error":{"code":-32602,"message":"invalid params"}}`))
		}
	}))
	defer server.Close()

	c := newAPIClient(server.URL+"/", time.Second)
	status, err := c.get("/v1/status")
	if err != nil {
		t.Fatalf("TestAPIClient: get: %s", err)
	}
	if string(status) != `{"network":"floonet"}` {
		t.Fatalf("TestAPIClient: unexpected status %s", status)
	}

	_, err = c.get("/v1/headers/7")
	apiErr, ok := err.(*apiError)
	if !ok || apiErr.StatusCode != http.StatusNotFound || apiErr.Message != "no block at height 7" {
		t.Fatalf("TestAPIClient: unexpected error %v", err)
	}

	tip, err := c.call("get_tip", nil)
	if err != nil {
		t.Fatalf("TestAPIClient: call: %s", err)
	}
	if string(tip) != `{"height":5}` {
		t.Fatalf("TestAPIClient: unexpected tip %s", tip)
	}
	if lastRequest["jsonrpc"] != "2.0" {
		t.Fatalf("TestAPIClient: unexpected request %v", lastRequest)
	}

	_, err = c.call("get_kernel", map[string]interface{}{"excess": "00"})
	apiErr, ok = err.(*apiError)
	if !ok || apiErr.StatusCode != http.StatusBadRequest || !strings.Contains(apiErr.Message, "-32602") {
		t.Fatalf("TestAPIClient: unexpected error %v", err)
	}
	params, ok := lastRequest["params"].(map[string]interface{})
	if !ok || params["excess"] != "00" || lastRequest["id"] != float64(2) {
		t.Fatalf("TestAPIClient: unexpected request %v", lastRequest)
	}
}

func TestPrintResult(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	err := printResult(rootCmd, []byte(`{"height":5}`), nil)
	if err != nil {
		t.Fatalf("TestPrintResult: %s", err)
	}
	if out.String() != "{\n  \"height\": 5\n}\n" {
		t.Fatalf("TestPrintResult: unexpected output %q", out.String())
	}
	err = printResult(rootCmd, []byte(`{`), nil)
	if err == nil {
		t.Fatalf("TestPrintResult: expected an error for invalid JSON")
	}
}
