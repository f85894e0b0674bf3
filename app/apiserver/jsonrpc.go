package apiserver

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/mwcnet/mwcd/domain/consensus/model"
	"github.com/mwcnet/mwcd/domain/consensus/secp"
	"github.com/mwcnet/mwcd/domain/consensus/utils/hashes"
	"github.com/pkg/errors"
)

const (
	jsonRPCVersion = "2.0"

	// maxRequestSize bounds the body of a JSON-RPC request. The largest
	// request is a hex encoded block.
	maxRequestSize = 16 * 1024 * 1024
)

// JSON-RPC 2.0 error codes.
const (
	ErrCodeParse          = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternal       = -32603
	ErrCodeNotFound       = -32001
	ErrCodeUnavailable    = -32002
)

// RPCRequest is a JSON-RPC 2.0 request.
type RPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id"`
}

// RPCError is the error object of a failed JSON-RPC call.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// RPCResponse is a JSON-RPC 2.0 response. Exactly one of Result and Error
// is set.
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// BlockLocatorParams identify a block by exactly one of its height, its
// hash, or the commitment of an unspent output it created.
type BlockLocatorParams struct {
	Height *uint64 `json:"height"`
	Hash   *string `json:"hash" validate:"omitempty,len=64,hexadecimal"`
	Commit *string `json:"commit" validate:"omitempty,len=66,hexadecimal"`
}

// GetBlockParams are the params of get_block.
type GetBlockParams struct {
	BlockLocatorParams
	Compact       bool `json:"compact"`
	IncludeProof  bool `json:"include_proof"`
	NoMerkleProof bool `json:"no_merkle_proof"`
}

// GetOutputParams are the params of get_output.
type GetOutputParams struct {
	Commit        string `json:"commit" validate:"required,len=66,hexadecimal"`
	IncludeProof  bool   `json:"include_proof"`
	NoMerkleProof bool   `json:"no_merkle_proof"`
}

// GetKernelParams are the params of get_kernel. A nil MaxHeight means the
// head.
type GetKernelParams struct {
	Excess    string  `json:"excess" validate:"required,len=66,hexadecimal"`
	MinHeight *uint64 `json:"min_height"`
	MaxHeight *uint64 `json:"max_height"`
}

// SubmitBlockParams are the params of submit_block.
type SubmitBlockParams struct {
	Block string `json:"block" validate:"required,hexadecimal"`
}

// SubmitBlockResult is the result of submit_block.
type SubmitBlockResult struct {
	Hash string `json:"hash"`
}

type rpcHandler func(s *Server, params json.RawMessage) (interface{}, error)

var rpcHandlers map[string]rpcHandler

func init() {
	rpcHandlers = map[string]rpcHandler{
		"get_status":   handleGetStatus,
		"get_tip":      handleGetTip,
		"get_header":   handleGetHeader,
		"get_block":    handleGetBlock,
		"get_output":   handleGetOutput,
		"get_kernel":   handleGetKernel,
		"submit_block": handleSubmitBlock,
	}
}

var paramsValidator = validator.New()

// parseParams decodes params into target and validates it. Missing params
// are decoded as an empty object.
func parseParams(params json.RawMessage, target interface{}) error {
	if len(params) == 0 || bytes.Equal(params, []byte("null")) {
		params = []byte("{}")
	}
	decoder := json.NewDecoder(bytes.NewReader(params))
	decoder.DisallowUnknownFields()
	err := decoder.Decode(target)
	if err != nil {
		return newArgumentError("invalid params: %s", err)
	}
	err = paramsValidator.Struct(target)
	if err != nil {
		return newArgumentError("invalid params: %s", err)
	}
	return nil
}

func (s *Server) jsonRPCHandler(w http.ResponseWriter, r *http.Request) {
	response := &RPCResponse{JSONRPC: jsonRPCVersion, ID: json.RawMessage("null")}

	request := &RPCRequest{}
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestSize))
	err := decoder.Decode(request)
	if err != nil {
		response.Error = &RPCError{Code: ErrCodeParse, Message: err.Error()}
		sendJSON(w, http.StatusBadRequest, response)
		return
	}
	if len(request.ID) != 0 {
		response.ID = request.ID
	}
	if request.JSONRPC != jsonRPCVersion {
		response.Error = &RPCError{Code: ErrCodeInvalidRequest, Message: "jsonrpc must be \"2.0\""}
		sendJSON(w, http.StatusBadRequest, response)
		return
	}
	handler, ok := rpcHandlers[request.Method]
	if !ok {
		response.Error = &RPCError{Code: ErrCodeMethodNotFound, Message: "method not found: " + request.Method}
		sendJSON(w, http.StatusNotFound, response)
		return
	}

	log.Debugf("[%s] JSON-RPC method %s", requestID(r.Context()), request.Method)
	result, err := handler(s, request.Params)
	if err != nil {
		hErr := toHandlerError(err)
		response.Error = &RPCError{Code: rpcErrorCode(hErr.Code), Message: hErr.Message}
		sendJSON(w, hErr.Code, response)
		return
	}
	response.Result = result
	sendJSON(w, http.StatusOK, response)
}

func rpcErrorCode(httpStatus int) int {
	switch httpStatus {
	case http.StatusBadRequest:
		return ErrCodeInvalidParams
	case http.StatusNotFound:
		return ErrCodeNotFound
	case http.StatusServiceUnavailable:
		return ErrCodeUnavailable
	default:
		return ErrCodeInternal
	}
}

func (s *Server) resolveLocator(params *BlockLocatorParams) (*model.BlockHeader, error) {
	set := 0
	for _, isSet := range []bool{params.Height != nil, params.Hash != nil, params.Commit != nil} {
		if isSet {
			set++
		}
	}
	if set != 1 {
		return nil, newArgumentError("exactly one of height, hash and commit is required")
	}

	switch {
	case params.Height != nil:
		return headerByHeight(s.chain, *params.Height)
	case params.Hash != nil:
		hash, err := hashes.FromString(*params.Hash)
		if err != nil {
			return nil, newArgumentError("invalid block hash %s", *params.Hash)
		}
		return headerByHash(s.chain, hash)
	default:
		commitment, err := secp.CommitmentFromString(*params.Commit)
		if err != nil {
			return nil, newArgumentError("invalid output commitment %s", *params.Commit)
		}
		return headerByCommitment(s.chain, &commitment)
	}
}

func handleGetStatus(s *Server, params json.RawMessage) (interface{}, error) {
	err := parseParams(params, &struct{}{})
	if err != nil {
		return nil, err
	}
	return s.status()
}

func handleGetTip(s *Server, params json.RawMessage) (interface{}, error) {
	err := parseParams(params, &struct{}{})
	if err != nil {
		return nil, err
	}
	head, err := s.chain.Head()
	if err != nil {
		return nil, err
	}
	return newTipPrintable(head), nil
}

func handleGetHeader(s *Server, params json.RawMessage) (interface{}, error) {
	locator := &BlockLocatorParams{}
	err := parseParams(params, locator)
	if err != nil {
		return nil, err
	}
	header, err := s.resolveLocator(locator)
	if err != nil {
		return nil, err
	}
	return newBlockHeaderPrintable(header), nil
}

func handleGetBlock(s *Server, params json.RawMessage) (interface{}, error) {
	getBlockParams := &GetBlockParams{}
	err := parseParams(params, getBlockParams)
	if err != nil {
		return nil, err
	}
	header, err := s.resolveLocator(&getBlockParams.BlockLocatorParams)
	if err != nil {
		return nil, err
	}
	return s.blockPrintable(header, getBlockParams.Compact, getBlockParams.IncludeProof,
		!getBlockParams.NoMerkleProof)
}

func handleGetOutput(s *Server, params json.RawMessage) (interface{}, error) {
	getOutputParams := &GetOutputParams{}
	err := parseParams(params, getOutputParams)
	if err != nil {
		return nil, err
	}
	commitment, err := secp.CommitmentFromString(getOutputParams.Commit)
	if err != nil {
		return nil, newArgumentError("invalid output commitment %s", getOutputParams.Commit)
	}
	return s.outputPrintable(&commitment, getOutputParams.IncludeProof, !getOutputParams.NoMerkleProof)
}

func handleGetKernel(s *Server, params json.RawMessage) (interface{}, error) {
	getKernelParams := &GetKernelParams{}
	err := parseParams(params, getKernelParams)
	if err != nil {
		return nil, err
	}
	excess, err := secp.CommitmentFromString(getKernelParams.Excess)
	if err != nil {
		return nil, newArgumentError("invalid kernel excess %s", getKernelParams.Excess)
	}
	var minHeight, maxHeight uint64
	if getKernelParams.MinHeight != nil {
		minHeight = *getKernelParams.MinHeight
	}
	if getKernelParams.MaxHeight != nil {
		maxHeight = *getKernelParams.MaxHeight
		if maxHeight < minHeight {
			return nil, newArgumentError("max_height is below min_height")
		}
	}
	location, err := s.chain.GetKernel(&excess, minHeight, maxHeight)
	if err != nil {
		return nil, err
	}
	return newLocatedTxKernelPrintable(location), nil
}

func handleSubmitBlock(s *Server, params json.RawMessage) (interface{}, error) {
	submitBlockParams := &SubmitBlockParams{}
	err := parseParams(params, submitBlockParams)
	if err != nil {
		return nil, err
	}
	if s.submitter == nil {
		return nil, newHandlerError(http.StatusServiceUnavailable, "block submission is disabled")
	}
	blockBytes, err := hex.DecodeString(submitBlockParams.Block)
	if err != nil {
		return nil, newArgumentError("invalid block hex: %s", err)
	}
	block, err := model.BlockFromBytes(blockBytes)
	if err != nil {
		return nil, newArgumentError("malformed block: %s", errors.Cause(err))
	}
	err = s.submitter.SubmitBlock(block)
	if err != nil {
		return nil, err
	}
	return &SubmitBlockResult{Hash: block.Hash().String()}, nil
}
