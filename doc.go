/*
Mwcd is a Mimblewimble full node chain engine written in Go.

It validates and applies blocks to a chain state made of three Merkle
Mountain Ranges (outputs, rangeproofs and kernels), follows the chain with
the most work across forks, and serves the chain over an HTTP API.

Usage:

	mwcd [OPTIONS]

For an up-to-date help message:

	mwcd --help

The long form of all option flags (except -C) can be specified in a
configuration file that is automatically parsed when mwcd starts up. By
default, the configuration file is located at ~/.mwcd/mwcd.conf. The -C
(--configfile) flag can be used to override this location.
*/
package main
