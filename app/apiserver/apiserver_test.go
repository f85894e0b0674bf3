package apiserver

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mwcnet/mwcd/domain/chain"
	"github.com/mwcnet/mwcd/domain/chainconfig"
	"github.com/mwcnet/mwcd/domain/consensus/model"
	"github.com/mwcnet/mwcd/domain/consensus/utils/serialization"
	"github.com/mwcnet/mwcd/domain/consensus/utils/transactionhelper"
	"github.com/mwcnet/mwcd/domain/global"
	"github.com/mwcnet/mwcd/domain/mining"
	"github.com/mwcnet/mwcd/infrastructure/db/database/ldb"
)

type chainSubmitter struct {
	chain *chain.Chain
}

func (s *chainSubmitter) SubmitBlock(block *model.Block) error {
	_, err := s.chain.ProcessBlock(block, chain.OptionsNone)
	return err
}

type testServer struct {
	t      *testing.T
	chain  *chain.Chain
	miner  *mining.Miner
	server *Server
	blocks []*model.Block
	coins  []*transactionhelper.Coin
}

// setupServer returns a server over an automated testing chain with three
// mined blocks.
func setupServer(t *testing.T, testName string) (ts *testServer, teardown func()) {
	path, err := ioutil.TempDir("", testName)
	if err != nil {
		t.Fatalf("%s: TempDir: %s", testName, err)
	}
	db, err := ldb.NewLevelDB(filepath.Join(path, "db"), 8)
	if err != nil {
		t.Fatalf("%s: NewLevelDB: %s", testName, err)
	}
	running := global.NewRunningFlag()
	c, err := chain.New(&chain.Config{
		DataDir:  path,
		Database: db,
		Params:   chainconfig.AutomatedTestingParams,
		Running:  running,
	})
	if err != nil {
		t.Fatalf("%s: chain.New: %s", testName, err)
	}
	miner := mining.NewMiner(c, mining.NewTemplateGenerator(c, nil), running, testName)

	ts = &testServer{
		t:      t,
		chain:  c,
		miner:  miner,
		server: New(&Config{Listen: "127.0.0.1:0"}, c, &chainSubmitter{chain: c}),
	}
	for i := 0; i < 3; i++ {
		block, coin, err := miner.MineOnHead(nil)
		if err != nil {
			t.Fatalf("%s: MineOnHead: %s", testName, err)
		}
		ts.blocks = append(ts.blocks, block)
		ts.coins = append(ts.coins, coin)
	}
	return ts, func() {
		err := c.Close()
		if err != nil {
			t.Fatalf("%s: Close: %s", testName, err)
		}
		os.RemoveAll(path)
	}
}

func (ts *testServer) get(url string, response interface{}) int {
	recorder := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, url, nil))
	if response != nil {
		err := json.Unmarshal(recorder.Body.Bytes(), response)
		if err != nil {
			ts.t.Fatalf("GET %s: invalid JSON response %q: %s", url, recorder.Body.String(), err)
		}
	}
	return recorder.Code
}

func (ts *testServer) call(method string, params interface{}, result interface{}) (int, *RPCError) {
	request := map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": method}
	if params != nil {
		request["params"] = params
	}
	body, err := json.Marshal(request)
	if err != nil {
		ts.t.Fatalf("%s: Marshal: %s", method, err)
	}
	recorder := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/v2", bytes.NewReader(body)))

	response := &struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      json.RawMessage `json:"id"`
		Result  json.RawMessage `json:"result"`
		Error   *RPCError       `json:"error"`
	}{}
	err = json.Unmarshal(recorder.Body.Bytes(), response)
	if err != nil {
		ts.t.Fatalf("%s: invalid JSON response %q: %s", method, recorder.Body.String(), err)
	}
	if response.JSONRPC != "2.0" || string(response.ID) != "1" {
		ts.t.Fatalf("%s: unexpected envelope %q", method, recorder.Body.String())
	}
	if response.Error == nil && result != nil {
		err = json.Unmarshal(response.Result, result)
		if err != nil {
			ts.t.Fatalf("%s: invalid result %q: %s", method, response.Result, err)
		}
	}
	return recorder.Code, response.Error
}

func TestGetStatus(t *testing.T) {
	ts, teardown := setupServer(t, "TestGetStatus")
	defer teardown()

	status := &StatusPrintable{}
	code := ts.get("/v1/status", status)
	if code != http.StatusOK {
		t.Fatalf("TestGetStatus: unexpected status %d", code)
	}
	if status.Network != "automatedtests" || status.Tip.Height != 3 || status.HeaderTip.Height != 3 {
		t.Fatalf("TestGetStatus: unexpected status %+v", status)
	}
	if status.Tip.LastBlockPushed != ts.blocks[2].Hash().String() {
		t.Fatalf("TestGetStatus: tip is %s, expected %s", status.Tip.LastBlockPushed, ts.blocks[2].Hash())
	}
}

func TestGetHeader(t *testing.T) {
	ts, teardown := setupServer(t, "TestGetHeader")
	defer teardown()

	block := ts.blocks[1]
	hash := block.Hash().String()
	tests := []struct {
		id             string
		expectedStatus int
	}{
		{id: "2", expectedStatus: http.StatusOK},
		{id: hash, expectedStatus: http.StatusOK},
		{id: strings.ToUpper(hash), expectedStatus: http.StatusOK},
		{id: ts.coins[1].Commitment.String(), expectedStatus: http.StatusOK},
		{id: "99", expectedStatus: http.StatusNotFound},
		{id: strings.Repeat("ab", 32), expectedStatus: http.StatusNotFound},
		{id: "not-a-block", expectedStatus: http.StatusBadRequest},
	}
	for i, test := range tests {
		header := &BlockHeaderPrintable{}
		code := ts.get("/v1/headers/"+test.id, header)
		if code != test.expectedStatus {
			t.Fatalf("TestGetHeader: test #%d (%s): expected status %d, got %d", i, test.id,
				test.expectedStatus, code)
		}
		if code != http.StatusOK {
			continue
		}
		if header.Hash != hash || header.Height != 2 || header.Previous != ts.blocks[0].Hash().String() {
			t.Fatalf("TestGetHeader: test #%d (%s): unexpected header %+v", i, test.id, header)
		}
		if header.EdgeBits != block.Header.PoW.EdgeBits ||
			len(header.CuckooSolution) != len(block.Header.PoW.Nonces) {
			t.Fatalf("TestGetHeader: test #%d (%s): unexpected proof of work", i, test.id)
		}
	}
}

func TestGetBlock(t *testing.T) {
	ts, teardown := setupServer(t, "TestGetBlock")
	defer teardown()

	coin := ts.coins[2]
	block := &BlockPrintable{}
	code := ts.get("/v1/blocks/3", block)
	if code != http.StatusOK {
		t.Fatalf("TestGetBlock: unexpected status %d", code)
	}
	if len(block.Outputs) != 1 || len(block.Kernels) != 1 || len(block.Inputs) != 0 {
		t.Fatalf("TestGetBlock: unexpected body %+v", block)
	}
	output := block.Outputs[0]
	if output.Commit != coin.Commitment.String() || output.Spent || output.OutputType != "Coinbase" {
		t.Fatalf("TestGetBlock: unexpected output %+v", output)
	}
	if output.BlockHeight == nil || *output.BlockHeight != 3 || output.MMRIndex == 0 {
		t.Fatalf("TestGetBlock: unexpected output location %+v", output)
	}
	if output.MerkleProof == nil || output.Proof != nil {
		t.Fatalf("TestGetBlock: expected a Merkle proof and no range proof")
	}
	if block.Kernels[0].Features != "Coinbase" {
		t.Fatalf("TestGetBlock: unexpected kernel %+v", block.Kernels[0])
	}

	block = &BlockPrintable{}
	ts.get("/v1/blocks/3?no_merkle_proof&include_proof", block)
	output = block.Outputs[0]
	if output.MerkleProof != nil || output.Proof == nil {
		t.Fatalf("TestGetBlock: the query flags weren't honored")
	}
	if *output.Proof != hex.EncodeToString(ts.blocks[2].Body.Outputs[0].Proof) {
		t.Fatalf("TestGetBlock: unexpected range proof")
	}

	compact := &CompactBlockPrintable{}
	ts.get("/v1/blocks/"+ts.blocks[2].Hash().String()+"?compact", compact)
	if len(compact.OutFull) != 1 || len(compact.KernFull) != 1 || len(compact.KernIDs) != 0 {
		t.Fatalf("TestGetBlock: unexpected compact block %+v", compact)
	}

	errResponse := &errorResponse{}
	code = ts.get("/v1/blocks/3?foo", errResponse)
	if code != http.StatusBadRequest || errResponse.ErrorMessage != "unsupported query parameter: foo" {
		t.Fatalf("TestGetBlock: unexpected response to an unknown flag: %d %+v", code, errResponse)
	}
}

func TestGetOutput(t *testing.T) {
	ts, teardown := setupServer(t, "TestGetOutput")
	defer teardown()

	output := &OutputPrintable{}
	code := ts.get("/v1/outputs/"+ts.coins[0].Commitment.String()+"?include_proof", output)
	if code != http.StatusOK {
		t.Fatalf("TestGetOutput: unexpected status %d", code)
	}
	if output.Spent || output.BlockHeight == nil || *output.BlockHeight != 1 || output.Proof == nil {
		t.Fatalf("TestGetOutput: unexpected output %+v", output)
	}

	_, unknownCoin, err := ts.miner.MineBlock(ts.blocks[2].Header, nil)
	if err != nil {
		t.Fatalf("TestGetOutput: MineBlock: %s", err)
	}
	code = ts.get("/v1/outputs/"+unknownCoin.Commitment.String(), nil)
	if code != http.StatusNotFound {
		t.Fatalf("TestGetOutput: expected status %d for an unknown output, got %d", http.StatusNotFound, code)
	}
	code = ts.get("/v1/outputs/1234", nil)
	if code != http.StatusBadRequest {
		t.Fatalf("TestGetOutput: expected status %d for an invalid commitment, got %d",
			http.StatusBadRequest, code)
	}
}

func TestJSONRPC(t *testing.T) {
	ts, teardown := setupServer(t, "TestJSONRPC")
	defer teardown()

	tip := &TipPrintable{}
	code, rpcErr := ts.call("get_tip", nil, tip)
	if code != http.StatusOK || rpcErr != nil || tip.Height != 3 {
		t.Fatalf("TestJSONRPC: get_tip: unexpected response %d %+v %+v", code, rpcErr, tip)
	}

	hash := ts.blocks[0].Hash().String()
	locators := []map[string]interface{}{
		{"height": 1},
		{"hash": hash},
		{"commit": ts.coins[0].Commitment.String()},
	}
	for i, locator := range locators {
		header := &BlockHeaderPrintable{}
		code, rpcErr := ts.call("get_header", locator, header)
		if code != http.StatusOK || rpcErr != nil || header.Hash != hash {
			t.Fatalf("TestJSONRPC: get_header #%d: unexpected response %d %+v %+v", i, code, rpcErr, header)
		}
	}

	block := &BlockPrintable{}
	code, rpcErr = ts.call("get_block", map[string]interface{}{"height": 2, "include_proof": true}, block)
	if code != http.StatusOK || rpcErr != nil || block.Header.Height != 2 || block.Outputs[0].Proof == nil {
		t.Fatalf("TestJSONRPC: get_block: unexpected response %d %+v", code, rpcErr)
	}

	kernel := ts.blocks[1].Body.Kernels[0]
	located := &LocatedTxKernelPrintable{}
	code, rpcErr = ts.call("get_kernel", map[string]interface{}{"excess": kernel.Excess.String()}, located)
	if code != http.StatusOK || rpcErr != nil || located.Height != 2 ||
		located.TxKernel.Excess != kernel.Excess.String() {
		t.Fatalf("TestJSONRPC: get_kernel: unexpected response %d %+v %+v", code, rpcErr, located)
	}

	output := &OutputPrintable{}
	code, rpcErr = ts.call("get_output", map[string]interface{}{"commit": ts.coins[2].Commitment.String()}, output)
	if code != http.StatusOK || rpcErr != nil || output.MerkleProof == nil {
		t.Fatalf("TestJSONRPC: get_output: unexpected response %d %+v %+v", code, rpcErr, output)
	}

	failures := []struct {
		method         string
		params         interface{}
		expectedStatus int
		expectedCode   int
	}{
		{method: "get_header", params: map[string]interface{}{}, expectedStatus: http.StatusBadRequest,
			expectedCode: ErrCodeInvalidParams},
		{method: "get_header", params: map[string]interface{}{"height": 1, "hash": hash},
			expectedStatus: http.StatusBadRequest, expectedCode: ErrCodeInvalidParams},
		{method: "get_header", params: map[string]interface{}{"hash": "xyz"},
			expectedStatus: http.StatusBadRequest, expectedCode: ErrCodeInvalidParams},
		{method: "get_header", params: map[string]interface{}{"height": 1, "bogus": true},
			expectedStatus: http.StatusBadRequest, expectedCode: ErrCodeInvalidParams},
		{method: "get_header", params: map[string]interface{}{"height": 42},
			expectedStatus: http.StatusNotFound, expectedCode: ErrCodeNotFound},
		{method: "get_output", params: map[string]interface{}{}, expectedStatus: http.StatusBadRequest,
			expectedCode: ErrCodeInvalidParams},
		{method: "submit_block", params: map[string]interface{}{"block": "00"},
			expectedStatus: http.StatusBadRequest, expectedCode: ErrCodeInvalidParams},
		{method: "get_mempool", expectedStatus: http.StatusNotFound, expectedCode: ErrCodeMethodNotFound},
	}
	for i, test := range failures {
		code, rpcErr := ts.call(test.method, test.params, nil)
		if code != test.expectedStatus || rpcErr == nil || rpcErr.Code != test.expectedCode {
			t.Fatalf("TestJSONRPC: failure #%d (%s): expected %d/%d, got %d/%+v", i, test.method,
				test.expectedStatus, test.expectedCode, code, rpcErr)
		}
	}
}

func TestSubmitBlock(t *testing.T) {
	ts, teardown := setupServer(t, "TestSubmitBlock")
	defer teardown()

	head, err := ts.chain.HeadHeader()
	if err != nil {
		t.Fatalf("TestSubmitBlock: HeadHeader: %s", err)
	}
	block, _, err := ts.miner.MineBlock(head, nil)
	if err != nil {
		t.Fatalf("TestSubmitBlock: MineBlock: %s", err)
	}
	blockBytes, err := serialization.ToBytes(block, serialization.CurrentProtocolVersion)
	if err != nil {
		t.Fatalf("TestSubmitBlock: ToBytes: %s", err)
	}

	bad := block.Header.Clone()
	bad.Nonce++
	badBlock := &model.Block{Header: bad, Body: block.Body}
	badBytes, err := serialization.ToBytes(badBlock, serialization.CurrentProtocolVersion)
	if err != nil {
		t.Fatalf("TestSubmitBlock: ToBytes: %s", err)
	}
	code, rpcErr := ts.call("submit_block", map[string]interface{}{"block": hex.EncodeToString(badBytes)}, nil)
	if code != http.StatusBadRequest || rpcErr == nil {
		t.Fatalf("TestSubmitBlock: expected a block with an invalid PoW to be rejected, got %d", code)
	}

	result := &SubmitBlockResult{}
	code, rpcErr = ts.call("submit_block", map[string]interface{}{"block": hex.EncodeToString(blockBytes)}, result)
	if code != http.StatusOK || rpcErr != nil || result.Hash != block.Hash().String() {
		t.Fatalf("TestSubmitBlock: unexpected response %d %+v", code, rpcErr)
	}
	tip, err := ts.chain.Head()
	if err != nil {
		t.Fatalf("TestSubmitBlock: Head: %s", err)
	}
	if !tip.LastBlockHash.Equal(block.Hash()) {
		t.Fatalf("TestSubmitBlock: the submitted block isn't the head")
	}
}

func TestStartStop(t *testing.T) {
	ts, teardown := setupServer(t, "TestStartStop")
	defer teardown()

	err := ts.server.Start()
	if err != nil {
		t.Fatalf("TestStartStop: Start: %s", err)
	}
	response, err := http.Get(fmt.Sprintf("http://%s/v1/status", ts.server.Addr()))
	if err != nil {
		t.Fatalf("TestStartStop: Get: %s", err)
	}
	response.Body.Close()
	if response.StatusCode != http.StatusOK {
		t.Fatalf("TestStartStop: unexpected status %d", response.StatusCode)
	}
	if response.Header.Get("X-Request-ID") == "" {
		t.Fatalf("TestStartStop: the response has no request ID")
	}
	err = ts.server.Stop()
	if err != nil {
		t.Fatalf("TestStartStop: Stop: %s", err)
	}
}
