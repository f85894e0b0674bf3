package apiserver

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/mwcnet/mwcd/domain/consensus/model"
	"github.com/mwcnet/mwcd/domain/consensus/secp"
	"github.com/mwcnet/mwcd/domain/consensus/txhashset"
)

const (
	flagCompact       = "compact"
	flagNoMerkleProof = "no_merkle_proof"
	flagIncludeProof  = "include_proof"
)

// parseFlags returns the query parameters of r, which are all expected to
// be among supported. Flags carry no value: their presence sets them.
func parseFlags(r *http.Request, supported ...string) (map[string]bool, error) {
	flags := make(map[string]bool)
	for name := range r.URL.Query() {
		isSupported := false
		for _, supportedName := range supported {
			if name == supportedName {
				isSupported = true
				break
			}
		}
		if !isSupported {
			return nil, newArgumentError("unsupported query parameter: %s", name)
		}
		flags[name] = true
	}
	return flags, nil
}

func (s *Server) getStatusHandler(r *http.Request) (interface{}, error) {
	_, err := parseFlags(r)
	if err != nil {
		return nil, err
	}
	return s.status()
}

func (s *Server) status() (*StatusPrintable, error) {
	head, err := s.chain.Head()
	if err != nil {
		return nil, err
	}
	headerHead, err := s.chain.HeaderHead()
	if err != nil {
		return nil, err
	}
	tail, err := s.chain.Tail()
	if err != nil {
		return nil, err
	}
	return &StatusPrintable{
		Network:    s.chain.Params().ChainType.String(),
		Tip:        newTipPrintable(head),
		HeaderTip:  newTipPrintable(headerHead),
		TailHeight: tail.Height,
		Orphans:    s.chain.OrphansLen(),
	}, nil
}

func (s *Server) getHeaderHandler(r *http.Request) (interface{}, error) {
	_, err := parseFlags(r)
	if err != nil {
		return nil, err
	}
	header, err := resolveHeader(s.chain, mux.Vars(r)["id"])
	if err != nil {
		return nil, err
	}
	return newBlockHeaderPrintable(header), nil
}

func (s *Server) getBlockHandler(r *http.Request) (interface{}, error) {
	flags, err := parseFlags(r, flagCompact, flagNoMerkleProof, flagIncludeProof)
	if err != nil {
		return nil, err
	}
	header, err := resolveHeader(s.chain, mux.Vars(r)["id"])
	if err != nil {
		return nil, err
	}
	return s.blockPrintable(header, flags[flagCompact], flags[flagIncludeProof], !flags[flagNoMerkleProof])
}

func (s *Server) blockPrintable(header *model.BlockHeader, compact bool, includeProof bool,
	includeMerkleProof bool) (interface{}, error) {

	block, err := blockOfHeader(s.chain, header)
	if err != nil {
		return nil, err
	}
	var printable interface{}
	err = s.chain.WithReadView(func(view *txhashset.ReadView) error {
		builder := &outputPrintableBuilder{chain: s.chain, view: view}
		var err error
		if compact {
			printable, err = builder.buildCompactBlock(block)
		} else {
			printable, err = builder.buildBlock(block, includeProof, includeMerkleProof)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return printable, nil
}

func (s *Server) getOutputHandler(r *http.Request) (interface{}, error) {
	flags, err := parseFlags(r, flagIncludeProof, flagNoMerkleProof)
	if err != nil {
		return nil, err
	}
	commitString := mux.Vars(r)["commit"]
	commitment, err := secp.CommitmentFromString(commitString)
	if err != nil {
		return nil, newArgumentError("invalid output commitment %s", commitString)
	}
	return s.outputPrintable(&commitment, flags[flagIncludeProof], !flags[flagNoMerkleProof])
}

func (s *Server) outputPrintable(commitment *secp.Commitment, includeProof bool,
	includeMerkleProof bool) (*OutputPrintable, error) {

	output, _, err := s.chain.GetUnspent(commitment)
	if err != nil {
		return nil, err
	}
	var printable *OutputPrintable
	err = s.chain.WithReadView(func(view *txhashset.ReadView) error {
		builder := &outputPrintableBuilder{chain: s.chain, view: view}
		var err error
		printable, err = builder.build(output, includeProof, includeMerkleProof)
		return err
	})
	if err != nil {
		return nil, err
	}
	return printable, nil
}
