//go:build ignore

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/hugh/chimeo/internal/app"
	"github.com/hugh/chimeo/internal/auth"
	"github.com/hugh/chimeo/internal/database/models"
	"github.com/hugh/chimeo/internal/requests"
	"github.com/hugh/chimeo/pkg/config"
	"github.com/hugh/chimeo/pkg/util"
	"github.com/joho/godotenv"
)

var demoOrganizations = []requests.SubmitInput{
	{
		ContactName:      "Springfield Fire Department",
		ContactEmail:     "chief@springfield-fd.example.org",
		OrganizationName: "Springfield Fire Department",
		OrganizationType: models.OrganizationTypeGovernment,
		Address:          "100 W Monroe St",
		City:             "Springfield",
		State:            "IL",
		Zip:              "62701",
	},
	{
		ContactName:      "Grace Community Church",
		ContactEmail:     "office@gracecommunity.example.org",
		OrganizationName: "Grace Community Church",
		OrganizationType: models.OrganizationTypeChurch,
		City:             "Springfield",
		State:            "IL",
		Zip:              "62704",
	},
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Server.Env, "chimeo-seed")
	ctx := context.Background()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("failed to initialize: %v", err)
	}
	defer a.Close()

	email := os.Getenv("ADMIN_EMAIL")
	password := os.Getenv("ADMIN_PASSWORD")
	name := os.Getenv("ADMIN_NAME")

	if email == "" {
		email = "admin@example.com"
	}
	if password == "" {
		password = "admin123!"
	}
	if name == "" {
		name = "Platform Admin"
	}

	admin, err := a.Auth.GetUserByEmail(ctx, email)
	switch {
	case errors.Is(err, auth.ErrUserNotFound):
		resp, err := a.Auth.Register(ctx, auth.RegisterInput{Email: email, Password: password, Name: name})
		if err != nil {
			log.Fatalf("failed to create admin user: %v", err)
		}
		admin = resp.User
		fmt.Printf("Admin user created: %s\n", admin.Email)
	case err != nil:
		log.Fatalf("failed to look up admin user: %v", err)
	default:
		fmt.Printf("Admin user already exists: %s\n", email)
	}

	if err := a.DB.Model(admin).Update("is_platform_admin", true).Error; err != nil {
		log.Fatalf("failed to promote admin: %v", err)
	}

	for _, input := range demoOrganizations {
		req, err := a.Requests.Submit(ctx, input)
		if err != nil {
			log.Fatalf("failed to submit %s: %v", input.OrganizationName, err)
		}
		res, err := a.Requests.Review(ctx, req.ID, admin.ID, requests.DecisionApprove, "seeded")
		if err != nil {
			log.Fatalf("failed to approve %s: %v", input.OrganizationName, err)
		}
		fmt.Printf("Organization: %s (%s)\n", res.Organization.Name, res.Organization.ID)
		if res.SetupToken != "" {
			fmt.Printf("  setup token for %s: %s\n", input.ContactEmail, res.SetupToken)
		}
	}
}
