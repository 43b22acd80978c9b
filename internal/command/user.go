package command

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mynul56/smart-parking-ai/internal/domain"
	"github.com/mynul56/smart-parking-ai/internal/service"
)

var newUser struct {
	email    string
	password string
	name     string
	role     string
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Account management",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an account with an explicit role",
	Long: `Create an account. Public registration always yields the "user" role,
so staff and admin accounts are provisioned with this command.`,
	RunE: createUser,
}

func init() {
	f := userCreateCmd.Flags()
	f.StringVar(&newUser.email, "email", "", "login email")
	f.StringVar(&newUser.password, "password", "", "password (min 6 characters)")
	f.StringVar(&newUser.name, "name", "", "display name")
	f.StringVar(&newUser.role, "role", string(domain.RoleStaff), "admin, staff or user")
	_ = userCreateCmd.MarkFlagRequired("email")
	_ = userCreateCmd.MarkFlagRequired("password")

	userCmd.AddCommand(userCreateCmd)
	rootCmd.AddCommand(userCmd)
}

func createUser(cmd *cobra.Command, _ []string) error {
	role := domain.UserRole(newUser.role)
	switch role {
	case domain.RoleAdmin, domain.RoleStaff, domain.RoleUser:
	default:
		return fmt.Errorf("unknown role %q", newUser.role)
	}
	if len(newUser.password) < 6 {
		return fmt.Errorf("password must be at least 6 characters")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	store, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.close()

	name := newUser.name
	if name == "" {
		name = newUser.email
	}
	auth := service.NewAuthService(store.users, cfg.JWTSecret, cfg.JWTExpiration)
	user, err := auth.CreateUser(ctx, domain.RegisterUserDTO{Email: newUser.email, Password: newUser.password, Name: name}, role)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created %s %s (id %d)\n", user.Role, user.Email, user.ID)
	return nil
}
