package main

import (
	"fmt"

	"github.com/artpar/amodule/adapters/hasher"
	"github.com/spf13/cobra"
)

var hashKeyCmd = &cobra.Command{
	Use:   "hash-key [key]",
	Short: "Hash an API key for auth.api_key_hash",
	Long: `Print the bcrypt hash of an API key.

A new key is generated when none is given. Put the hash in auth.api_key_hash
(or AMODULE_API_KEY_HASH) and hand the key to clients.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHashKey,
}

func init() {
	rootCmd.AddCommand(hashKeyCmd)
}

func runHashKey(cmd *cobra.Command, args []string) error {
	var key string
	if len(args) == 1 {
		key = args[0]
	} else {
		k, err := hasher.NewKey()
		if err != nil {
			return err
		}
		key = k
	}

	hash, err := hasher.NewBcrypt(0).Hash(key)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "key:  %s\n", key)
	fmt.Fprintf(out, "hash: %s\n", hash)
	return nil
}
