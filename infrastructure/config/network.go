package config

import (
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/mwcnet/mwcd/domain/chainconfig"
	"github.com/pkg/errors"
)

// NetworkFlags holds the network configuration, that is which network is selected.
type NetworkFlags struct {
	Floonet  bool `long:"floonet" description:"Use the public test network"`
	Usernet  bool `long:"usernet" description:"Use a local user testing network"`
	AutoTest bool `long:"autotest" description:"Use the automated testing network, with tiny proof of work graphs"`

	ActiveNetParams *chainconfig.Params `validate:"-"`
}

// ResolveNetwork parses the network command line argument and sets ActiveNetParams accordingly.
// It returns error if more than one network was selected, nil otherwise.
func (networkFlags *NetworkFlags) ResolveNetwork(parser *flags.Parser) error {
	// Default network is mainnet.
	networkFlags.ActiveNetParams = chainconfig.MainnetParams
	numNets := 0
	if networkFlags.Floonet {
		numNets++
		networkFlags.ActiveNetParams = chainconfig.FloonetParams
	}
	if networkFlags.Usernet {
		numNets++
		networkFlags.ActiveNetParams = chainconfig.UserTestingParams
	}
	if networkFlags.AutoTest {
		numNets++
		networkFlags.ActiveNetParams = chainconfig.AutomatedTestingParams
	}
	if numNets > 1 {
		err := errors.New("multiple network parameters (floonet, usernet, autotest) cannot be used " +
			"together, please choose only one network")
		if parser != nil {
			fmt.Fprintln(os.Stderr, err)
			parser.WriteHelp(os.Stderr)
		}
		return err
	}
	return nil
}

// NetParams returns the parameters of the selected network.
func (networkFlags *NetworkFlags) NetParams() *chainconfig.Params {
	return networkFlags.ActiveNetParams
}
