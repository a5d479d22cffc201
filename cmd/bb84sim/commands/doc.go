// Package commands defines the bb84sim CLI.
//
// Commands
//
//   - run     Simulate one BB84 run and print every qubit
//   - serve   Serve sessions over HTTP and websockets
//   - replay  Print a recording made with run --record
//   - bench   Sweep parameters and print one CSV line per combination
//
// # Configuration
//
// Defaults come from BB84_* environment variables, optionally loaded from a
// .env file, and are overridden by flags.
package commands
