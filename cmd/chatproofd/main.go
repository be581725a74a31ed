// chatproofd - chat history checkpointing with on-demand proofs
//
// chatproofd watches a Telegram chat, seals its messages into hashed
// checkpoints whenever the chat goes quiet, and answers "/prove <text>"
// with the matching messages and a link to the prover's artifact.
//
//	chatproofd run          Run the bot
//	chatproofd log          Show journaled checkpoints and proofs
//	chatproofd config       Print the effective configuration
//	chatproofd version      Print version information
package main

import (
	"fmt"
	"os"
)

// Set at build time with -ldflags "-X main.version=...".
var (
	version = "dev"
	commit  = "none"
)

func main() {
	cmd := NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(GetExitCode(err))
	}
}
