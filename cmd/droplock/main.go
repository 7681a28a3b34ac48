package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"droplock/internal/app"
	"droplock/internal/config"
	"droplock/internal/database"
	"droplock/internal/droplock"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

// exitCode maps the error taxonomy to distinct process exit codes.
func exitCode(err error) int {
	switch {
	case errors.Is(err, droplock.ErrUnauthorized):
		return 3
	case errors.Is(err, droplock.ErrNotFound):
		return 4
	case errors.Is(err, droplock.ErrConflict):
		return 5
	case errors.Is(err, droplock.ErrValidation):
		return 6
	case errors.Is(err, droplock.ErrTransport):
		return 7
	default:
		return 1
	}
}

// newApp reads the config and creates a DropLockApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "SetState").
func newApp(operation string) (*app.DropLockApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewDropLockApp(cfg, defaults["session_path"], operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// withActor opens the app, resolves the signed-in operator and runs fn.
func withActor(operation string, fn func(a *app.DropLockApp, uid string) error) error {
	a, err := newApp(operation)
	if err != nil {
		return err
	}
	defer a.Close()

	uid, err := a.Actor()
	if err != nil {
		return err
	}
	return fn(a, uid)
}

// readSecret prompts on stderr and reads without echo from a terminal,
// or one line from piped stdin.
func readSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading input: %w", err)
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// readNewSecret asks twice and requires both entries to match.
func readNewSecret(what string) (string, error) {
	first, err := readSecret(fmt.Sprintf("New %s: ", what))
	if err != nil {
		return "", err
	}
	second, err := readSecret(fmt.Sprintf("Confirm %s: ", what))
	if err != nil {
		return "", err
	}
	if first != second {
		return "", fmt.Errorf("%w: %s entries do not match", droplock.ErrValidation, what)
	}
	return first, nil
}

var rootCmd = &cobra.Command{
	Use:          "droplock",
	Short:        "DropLock smart locker admin console",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		fmt.Println("Next: droplock db migrate && droplock bootstrap")
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir:        %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:         %s\n", cfg.LogDir)
		fmt.Printf("Log Level:       %s\n", cfg.LogLevel)
		fmt.Printf("Database:        %s %s\n", cfg.Database.Type, cfg.Database.DataDir)
		fmt.Printf("Signals:         %s\n", cfg.Signals.Type)
		fmt.Printf("Transitions:     %s\n", cfg.Transitions)
		fmt.Printf("Session TTL:     %s\n", cfg.SessionTTL)
		fmt.Printf("Email Settings:  %s\n", cfg.EmailSettingsPath)
		fmt.Printf("Alert Recipient: %s\n", app.AlertRecipientFromEnv(cfg.AlertRecipient))
		fmt.Printf("Vault:           %s\n", cfg.Archive.Vault.Type)
		fmt.Printf("MQTT Broker:     %s (prefix %s)\n", cfg.MQTT.Broker, cfg.MQTT.TopicPrefix)
		return nil
	},
}

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the locker store",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("getting defaults: %w", err)
		}
		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("reading config: %w", err)
		}
		if err := app.MigrateDatabase(cfg); err != nil {
			return err
		}
		fmt.Println("Database is up to date.")
		return nil
	},
}

var dbSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the store schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		schema, err := database.ExtractSchema()
		if err != nil {
			return err
		}
		fmt.Print(schema)
		return nil
	},
}

// auth commands
var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Create the first superAdmin",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		name, _ := cmd.Flags().GetString("name")

		a, err := newApp("Bootstrap")
		if err != nil {
			return err
		}
		defer a.Close()

		password, err := readNewSecret("password")
		if err != nil {
			return err
		}
		uid, err := a.Bootstrap(email, password, name)
		if err != nil {
			return err
		}
		fmt.Printf("Owner created: %s (%s)\n", email, uid)
		return nil
	},
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to the console",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")

		a, err := newApp("Login")
		if err != nil {
			return err
		}
		defer a.Close()

		password, err := readSecret("Password: ")
		if err != nil {
			return err
		}
		profile, err := a.Login(email, password)
		if err != nil {
			return err
		}
		fmt.Printf("Signed in as %s (%s)\n", profile.Email, profile.Role)
		if !a.MailEnabled() {
			fmt.Println("Warning: email settings not loaded, alert emails are disabled.")
		}
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Logout")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Logout(); err != nil {
			return err
		}
		fmt.Println("Signed out.")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in operator",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Whoami")
		if err != nil {
			return err
		}
		defer a.Close()

		p, err := a.Whoami()
		if err != nil {
			return err
		}
		sector := p.SectorID
		if sector == "" {
			sector = "(all)"
		}
		fmt.Printf("UID:    %s\n", p.UID)
		fmt.Printf("Email:  %s\n", p.Email)
		fmt.Printf("Name:   %s\n", p.DisplayName)
		fmt.Printf("Role:   %s\n", p.Role)
		fmt.Printf("Sector: %s\n", sector)
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// db subcommands
	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbSchemaCmd)

	bootstrapCmd.Flags().String("email", "", "Owner email")
	bootstrapCmd.Flags().String("name", "", "Owner display name")
	bootstrapCmd.MarkFlagRequired("email")
	loginCmd.Flags().String("email", "", "Account email")
	loginCmd.MarkFlagRequired("email")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(bootstrapCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
}
