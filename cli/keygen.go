package cli

import (
	"fmt"

	"github.com/ahmadzakiakmal/scrumchain/ledger"
	"github.com/spf13/cobra"
)

func NewKeygenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a ledger signer key",
		Long: `Prints a new ed25519 private key for ledger.signer_key and the address
it signs as. Teams registered with this key list the address as a member.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			signer := ledger.GenerateSigner()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "signer_key = %q\n", signer.KeyHex())
			fmt.Fprintf(out, "address    = %q\n", signer.Address())
			return nil
		},
	}
}
