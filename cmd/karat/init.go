package main

import (
	"context"
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	"math/big"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/karat/internal/config"
	"github.com/erazemk/karat/internal/db"
	"github.com/erazemk/karat/internal/model"
	"github.com/erazemk/karat/internal/store"
)

const generatedPasswordLength = 16

func runInit(args []string) error {
	var tenantName, adminUser string
	cfg, err := loadConfig("init", args, func(fs *flag.FlagSet, _ *config.Config) {
		fs.StringVar(&tenantName, "tenant", "", "tenant (shop) name (required)")
		fs.StringVar(&adminUser, "user", "admin", "admin username")
	})
	if err != nil {
		return err
	}
	if tenantName == "" {
		return errors.New("-tenant is required")
	}

	log, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	database, err := db.Open(cfg.Database.Driver, cfg.Database.DSN, db.Options{})
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.EnsureSchema(database); err != nil {
		return err
	}
	log.Info("database ready", zap.String("driver", cfg.Database.Driver))

	password, err := initTenant(context.Background(), database, tenantName, adminUser)
	if err != nil {
		return err
	}
	log.Info("tenant initialized", zap.String("tenant", tenantName), zap.String("admin", adminUser))

	printInitResult(tenantName, adminUser, password)
	return nil
}

// initTenant creates the tenant if needed and gives it an admin account
// with a generated password. A tenant that already has an admin is left
// untouched.
func initTenant(ctx context.Context, database *sqlx.DB, tenantName, adminUser string) (string, error) {
	tenant, err := store.GetTenantByName(ctx, database, tenantName)
	switch {
	case errors.Is(err, model.ErrNotFound):
		tenant, err = store.CreateTenant(ctx, database, tenantName)
		if err != nil {
			return "", fmt.Errorf("creating tenant: %w", err)
		}
	case err != nil:
		return "", err
	default:
		admins, err := store.CountAdmins(ctx, database, tenant.ID)
		if err != nil {
			return "", err
		}
		if admins > 0 {
			return "", fmt.Errorf("tenant %q is already initialized", tenantName)
		}
	}

	password, err := generatePassword(generatedPasswordLength)
	if err != nil {
		return "", fmt.Errorf("generating password: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}

	if _, err := store.CreateUser(ctx, database, tenant.ID, adminUser, string(hash), model.RoleAdmin); err != nil {
		return "", fmt.Errorf("creating admin user: %w", err)
	}
	return password, nil
}

func printInitResult(tenant, username, password string) {
	fmt.Printf("Tenant: %s\n", tenant)
	fmt.Println()
	fmt.Println("Admin account created:")
	fmt.Printf("  Username: %s\n", username)
	fmt.Printf("  Password: %s\n", password)
	fmt.Println()
	fmt.Println("Save this password, it cannot be recovered.")
	fmt.Println("The admin can change it after logging in.")
}

// generatePassword creates a random password of the given length.
func generatePassword(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%&*"
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		result[i] = charset[n.Int64()]
	}
	return string(result), nil
}
