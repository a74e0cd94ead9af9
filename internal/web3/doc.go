// Package web3 houses blockchain connectivity primitives shared by the
// session layer: the network catalogue that maps a network name to a chain ID
// and RPC endpoint, the Endpoint value handed to connection providers, and the
// Provider and AccountSource contracts implemented by the ethereum package.
package web3
