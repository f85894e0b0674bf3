package main

import (
	"fmt"
	"io/ioutil"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	timeout   time.Duration

	compact       bool
	includeProof  bool
	noMerkleProof bool
	minHeight     uint64
	maxHeight     uint64
)

var rootCmd = &cobra.Command{
	Use:           "mwcctl",
	Short:         "Query and feed a mwcd node through its HTTP API",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the node status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := client().get("/v1/status")
		return printResult(cmd, result, err)
	},
}

var tipCmd = &cobra.Command{
	Use:   "tip",
	Short: "Print the head of the chain",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := client().call("get_tip", nil)
		return printResult(cmd, result, err)
	},
}

var headerCmd = &cobra.Command{
	Use:   "header <hash|height|commitment>",
	Short: "Print a block header",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := client().get("/v1/headers/" + url.PathEscape(args[0]))
		return printResult(cmd, result, err)
	},
}

var blockCmd = &cobra.Command{
	Use:   "block <hash|height|commitment>",
	Short: "Print a block",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := client().get(blockPath(args[0], compact, includeProof, noMerkleProof))
		return printResult(cmd, result, err)
	},
}

var outputCmd = &cobra.Command{
	Use:   "output <commitment>",
	Short: "Print an unspent output",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		params := map[string]interface{}{
			"commit":          args[0],
			"include_proof":   includeProof,
			"no_merkle_proof": noMerkleProof,
		}
		result, err := client().call("get_output", params)
		return printResult(cmd, result, err)
	},
}

var kernelCmd = &cobra.Command{
	Use:   "kernel <excess>",
	Short: "Find a kernel by its excess",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		params := map[string]interface{}{"excess": args[0]}
		if cmd.Flags().Changed("min-height") {
			params["min_height"] = minHeight
		}
		if cmd.Flags().Changed("max-height") {
			params["max_height"] = maxHeight
		}
		result, err := client().call("get_kernel", params)
		return printResult(cmd, result, err)
	},
}

var submitBlockCmd = &cobra.Command{
	Use:   "submitblock <hex|@file>",
	Short: "Submit a serialized block, given as hex or as a file holding the hex",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		blockHex, err := readHexArg(args[0])
		if err != nil {
			return err
		}
		result, err := client().call("submit_block", map[string]interface{}{"block": blockHex})
		return printResult(cmd, result, err)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "http://127.0.0.1:3413",
		"URL of the node's HTTP API")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Timeout of each request")

	blockCmd.Flags().BoolVar(&compact, "compact", false, "Print the compact form of the block")
	blockCmd.Flags().BoolVar(&includeProof, "include-proof", false, "Include the rangeproofs of the outputs")
	blockCmd.Flags().BoolVar(&noMerkleProof, "no-merkle-proof", false,
		"Don't include Merkle proofs of the coinbase outputs")

	outputCmd.Flags().BoolVar(&includeProof, "include-proof", false, "Include the rangeproof of the output")
	outputCmd.Flags().BoolVar(&noMerkleProof, "no-merkle-proof", false,
		"Don't include the Merkle proof of a coinbase output")

	kernelCmd.Flags().Uint64Var(&minHeight, "min-height", 0, "Lowest height to search from")
	kernelCmd.Flags().Uint64Var(&maxHeight, "max-height", 0, "Highest height to search up to")

	rootCmd.AddCommand(statusCmd, tipCmd, headerCmd, blockCmd, outputCmd, kernelCmd, submitBlockCmd)
}

func client() *apiClient {
	return newAPIClient(serverURL, timeout)
}

func blockPath(id string, compact bool, includeProof bool, noMerkleProof bool) string {
	var flags []string
	if compact {
		flags = append(flags, "compact")
	}
	if includeProof {
		flags = append(flags, "include_proof")
	}
	if noMerkleProof {
		flags = append(flags, "no_merkle_proof")
	}
	path := "/v1/blocks/" + url.PathEscape(id)
	if len(flags) > 0 {
		path += "?" + strings.Join(flags, "&")
	}
	return path
}

func readHexArg(arg string) (string, error) {
	if !strings.HasPrefix(arg, "@") {
		return arg, nil
	}
	content, err := ioutil.ReadFile(strings.TrimPrefix(arg, "@"))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(content)), nil
}

func printResult(cmd *cobra.Command, result []byte, err error) error {
	if err != nil {
		return err
	}
	pretty, err := prettify(result)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), pretty)
	return nil
}
