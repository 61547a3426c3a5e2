// issue-token prints a signed bearer token for local testing of the admin API.
// It signs with JWT_SECRET, the same secret the server validates with.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mmdatafocus/orderdesk_backend/utils"
)

func main() {
	id := flag.Int("id", 1, "User id carried in the token")
	role := flag.String("role", utils.RoleAdmin, "Role claim; \"admin\" grants the admin API")
	flag.Parse()

	if *id <= 0 {
		fmt.Fprintln(os.Stderr, "--id must be positive")
		os.Exit(1)
	}
	token, err := utils.JwtGenerate(*id, *role)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to sign token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
