package main

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/qoldau/qoldau/internal/routing"
	"github.com/qoldau/qoldau/internal/storage/sqlite"
	"github.com/qoldau/qoldau/internal/types"
)

// seedFile is the bootstrap document: routing queues are always created,
// the file adds categories and admin accounts on top.
type seedFile struct {
	Departments []string `yaml:"departments"`
	Categories  []struct {
		Name        string `yaml:"name"`
		Description string `yaml:"description"`
	} `yaml:"categories"`
	Admins []struct {
		Email    string `yaml:"email"`
		Name     string `yaml:"name"`
		Phone    string `yaml:"phone"`
		Password string `yaml:"password"`
	} `yaml:"admins"`
}

var seedPath string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Bootstrap departments, categories and admin users",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var seed seedFile
		if seedPath != "" {
			raw, err := os.ReadFile(seedPath)
			if err != nil {
				return err
			}
			if err := yaml.Unmarshal(raw, &seed); err != nil {
				return fmt.Errorf("parse %s: %w", seedPath, err)
			}
		}

		store, err := sqlite.Open(ctx, cfg.DB.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		for _, q := range routing.AllQueues {
			if _, err := store.GetOrCreateDepartment(ctx, string(q)); err != nil {
				return err
			}
		}
		for _, name := range seed.Departments {
			if _, err := store.GetOrCreateDepartment(ctx, name); err != nil {
				return err
			}
		}
		for _, c := range seed.Categories {
			if _, err := store.GetOrCreateCategory(ctx, c.Name); err != nil {
				return err
			}
		}
		if _, err := store.GetOrCreateDefaultModel(ctx); err != nil {
			return err
		}

		for _, a := range seed.Admins {
			u := &types.User{
				ID:        uuid.NewString(),
				Email:     a.Email,
				Name:      a.Name,
				Phone:     a.Phone,
				Role:      types.RoleAdmin,
				CreatedAt: time.Now().UTC(),
			}
			if a.Password != "" {
				hash, err := bcrypt.GenerateFromPassword([]byte(a.Password), bcrypt.DefaultCost)
				if err != nil {
					return err
				}
				u.PasswordHash = string(hash)
			}
			if _, err := store.UpsertUserByEmail(ctx, u); err != nil {
				return fmt.Errorf("seed admin %s: %w", a.Email, err)
			}
		}

		fmt.Printf("seeded %d queues, %d extra departments, %d categories, %d admins\n",
			len(routing.AllQueues), len(seed.Departments), len(seed.Categories), len(seed.Admins))
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVarP(&seedPath, "file", "f", "", "YAML seed file (queues are created even without one)")
	rootCmd.AddCommand(seedCmd)
}
