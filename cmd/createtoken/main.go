package main

import (
	"fmt"
	"os"

	"github.com/bastelix/sommerfest-quiz-sub007/security"
)

func main() {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET is required")
		os.Exit(1)
	}

	token, err := security.CreateAdminToken(&security.AdminIdentity{
		Subject: "cli",
	}, secret, 3600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
