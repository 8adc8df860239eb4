// Command devtoken prints a signed access token for local testing of the
// booking API.  The secret defaults to JWT_SECRET from the environment or
// a .env file.
//
//	go run ./cmd/devtoken -sub u-1 -role CUSTOMER
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/iliyamo/showtime-booking/internal/middleware"
	"github.com/iliyamo/showtime-booking/internal/utils"
)

func main() {
	_ = godotenv.Load()

	sub := flag.String("sub", "dev-user", "subject (user id) claim")
	role := flag.String("role", middleware.RoleCustomer, "role claim: CUSTOMER, ADMIN or PAYMENT")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	secret := flag.String("secret", os.Getenv("JWT_SECRET"), "HS256 signing secret")
	flag.Parse()

	switch *role {
	case middleware.RoleCustomer, middleware.RoleAdmin, middleware.RolePayment:
	default:
		log.Fatalf("unknown role %q", *role)
	}

	tok, err := utils.NewAccessToken(*secret, *sub, *role, *ttl)
	if err != nil {
		log.Fatalf("sign token: %v", err)
	}
	fmt.Println(tok.Token)
}
