package commands

import (
	"fmt"

	"academia-backend/lib/serviceutil"
	"academia-backend/lib/timezone"
	"academia-backend/lib/token"

	"github.com/spf13/cobra"
)

var tokenSecret *string

func init() {
	tokenSecret = tokenCmd.Flags().String("secret", "", "The jwt secret the server signs with.")
	rootCmd.AddCommand(tokenCmd)
}

var tokenCmd = &cobra.Command{
	Use:   "token --secret <secret> <token>",
	Short: "Verifies a session token and prints its owner and remaining lifetime.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		issuer := token.NewIssuer(*tokenSecret)
		owner, err := issuer.Verify(args[0])
		if err != nil {
			serviceutil.Fatal("token is invalid", err)
		}
		fmt.Printf("owner: %s\n", owner)
		fmt.Printf("days remaining: %d\n", issuer.DaysRemaining(args[0], timezone.Now()))
	},
}
