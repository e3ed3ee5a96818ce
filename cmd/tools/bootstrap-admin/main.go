// Command bootstrap-admin creates (or promotes) the first administrator
// account. If the login name already exists the account is granted the admin
// role and, when -password is supplied, has its credential reset.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"cineshelf/internal/accounts"
	"cineshelf/internal/models"
	"cineshelf/internal/storage"
)

func main() {
	dataFile := flag.String("data", "data/cineshelf.json", "path to the JSON dataset")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("CINESHELF_POSTGRES_DSN"), "postgres connection string (takes precedence over -data)")
	loginName := flag.String("login", "", "administrator login name (required)")
	email := flag.String("email", "", "administrator email (required for new accounts)")
	displayName := flag.String("display-name", "", "administrator display name")
	password := flag.String("password", os.Getenv("CINESHELF_ADMIN_PASSWORD"), "administrator password")
	flag.Parse()

	if *loginName == "" {
		fmt.Fprintln(os.Stderr, "-login is required")
		os.Exit(2)
	}
	if err := run(*dataFile, *postgresDSN, *loginName, *email, *displayName, *password); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(dataFile, postgresDSN, loginName, email, displayName, password string) error {
	var repo storage.Repository
	if postgresDSN != "" {
		pg, err := storage.NewPostgresRepository(context.Background(), postgresDSN,
			storage.WithPostgresApplicationName("cineshelf-bootstrap"))
		if err != nil {
			return err
		}
		defer pg.Close()
		repo = pg
	} else {
		jsonRepo, err := storage.NewStorage(dataFile)
		if err != nil {
			return err
		}
		repo = jsonRepo
	}

	if existing, ok := repo.FindAccountByLogin(loginName); ok {
		return promote(repo, existing, password)
	}

	if email == "" {
		return errors.New("-email is required when creating a new account")
	}
	if password == "" {
		return errors.New("-password (or CINESHELF_ADMIN_PASSWORD) is required when creating a new account")
	}
	account, err := repo.CreateAccount(storage.CreateAccountParams{
		LoginName:   loginName,
		DisplayName: displayName,
		Email:       email,
		Password:    password,
		Roles:       []string{accounts.RoleAdmin},
	})
	if err != nil {
		return err
	}
	fmt.Printf("created administrator %s (%s)\n", account.LoginName, account.ID)
	return nil
}

func promote(repo storage.Repository, account models.Account, password string) error {
	if !account.HasRole(accounts.RoleAdmin) {
		roles := append(append([]string(nil), account.Roles...), accounts.RoleAdmin)
		if _, err := repo.UpdateAccount(account.ID, storage.AccountUpdate{Roles: &roles}); err != nil {
			return err
		}
		fmt.Printf("granted admin role to %s\n", account.LoginName)
	}
	if password != "" {
		if err := repo.SetAccountPassword(account.ID, password); err != nil {
			return err
		}
		fmt.Printf("reset password for %s\n", account.LoginName)
	}
	return nil
}
