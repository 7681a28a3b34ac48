package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"droplock/internal/app"
	"droplock/internal/droplock"
	"droplock/internal/report"
)

// accountRequest reads the shared provisioning flags. An empty temp
// password is generated.
func accountRequest(cmd *cobra.Command) (droplock.AccountRequest, error) {
	email, _ := cmd.Flags().GetString("email")
	sector, _ := cmd.Flags().GetString("sector")
	name, _ := cmd.Flags().GetString("name")
	password, _ := cmd.Flags().GetString("temp-password")
	if password == "" {
		var err error
		if password, err = droplock.GenerateTempPassword(); err != nil {
			return droplock.AccountRequest{}, err
		}
	}
	return droplock.AccountRequest{Email: email, TempPassword: password, SectorID: sector, DisplayName: name}, nil
}

// admins command
var adminsCmd = &cobra.Command{
	Use:   "admins",
	Short: "Manage admin accounts (superAdmin only)",
}

var adminsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List admin and device profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withActor("ListAdmins", func(a *app.DropLockApp, uid string) error {
			profiles, err := a.Provisioner().ListAdminProfiles(uid)
			if err != nil {
				return err
			}
			if len(profiles) == 0 {
				fmt.Println("No profiles.")
				return nil
			}
			rows := make([][]string, 0, len(profiles))
			for _, p := range profiles {
				sector := p.SectorID
				if sector == "" {
					sector = "-"
				}
				rows = append(rows, []string{p.UID, p.Email, p.DisplayName, string(p.Role), sector, string(p.Status)})
			}
			report.NewRenderer(os.Stdout, nil).Table([]string{"UID", "EMAIL", "NAME", "ROLE", "SECTOR", "STATUS"}, rows)
			return nil
		})
	},
}

var adminsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Provision a sector admin",
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := accountRequest(cmd)
		if err != nil {
			return err
		}
		return withActor("ProvisionAdmin", func(a *app.DropLockApp, uid string) error {
			newUID, err := a.Provisioner().ProvisionAdmin(uid, req)
			if err != nil {
				return err
			}
			fmt.Printf("Admin created: %s (%s)\n", req.Email, newUID)
			fmt.Printf("Temporary password: %s\n", req.TempPassword)
			return nil
		})
	},
}

func setStatusCmd(use, short, status string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " UID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor("SetAdminStatus", func(a *app.DropLockApp, uid string) error {
				if err := a.Provisioner().SetAdminStatus(uid, args[0], status); err != nil {
					return err
				}
				fmt.Printf("%s is now %s.\n", args[0], status)
				return nil
			})
		},
	}
}

var adminsResetPasswordCmd = &cobra.Command{
	Use:   "reset-password UID",
	Short: "Issue a new temporary password",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withActor("ResetAdminPassword", func(a *app.DropLockApp, uid string) error {
			password, err := a.Provisioner().ResetAdminPassword(uid, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Temporary password for %s: %s\n", args[0], password)
			return nil
		})
	},
}

// devices command
var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "Manage device accounts (superAdmin only)",
}

var devicesCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Provision a locker device account",
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := accountRequest(cmd)
		if err != nil {
			return err
		}
		return withActor("ProvisionDevice", func(a *app.DropLockApp, uid string) error {
			newUID, err := a.Provisioner().ProvisionDevice(uid, req)
			if err != nil {
				return err
			}
			fmt.Printf("Device created: %s (%s)\n", req.Email, newUID)
			fmt.Printf("Temporary password: %s\n", req.TempPassword)
			return nil
		})
	},
}

// ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run the MQTT device bridge until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Ingest")
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return a.Ingest(ctx)
	},
}

// archive command
var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Encrypted snapshots of the store",
}

var archiveKeygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate the snapshot key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ArchiveKeygen")
		if err != nil {
			return err
		}
		defer a.Close()

		arch, err := a.Archiver(cmd.Context())
		if err != nil {
			return err
		}
		passphrase, err := readNewSecret("passphrase")
		if err != nil {
			return err
		}
		if err := arch.Keygen(passphrase); err != nil {
			return err
		}
		fmt.Println("Snapshot keys generated. Keep the passphrase safe: snapshots cannot be restored without it.")
		return nil
	},
}

var archivePushCmd = &cobra.Command{
	Use:   "push",
	Short: "Snapshot the store into the vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ArchivePush")
		if err != nil {
			return err
		}
		defer a.Close()

		arch, err := a.Archiver(cmd.Context())
		if err != nil {
			return err
		}
		name, err := arch.Push()
		if err != nil {
			return err
		}
		fmt.Printf("Snapshot %s stored.\n", name)
		return nil
	},
}

var archiveListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ArchiveList")
		if err != nil {
			return err
		}
		defer a.Close()

		arch, err := a.Archiver(cmd.Context())
		if err != nil {
			return err
		}
		names, err := arch.List()
		if err != nil {
			return err
		}
		if len(names) == 0 {
			fmt.Println("No snapshots.")
			return nil
		}
		for _, n := range names {
			fmt.Println(n)
		}
		return nil
	},
}

var archiveRestoreCmd = &cobra.Command{
	Use:   "restore NAME DEST",
	Short: "Decrypt a snapshot into a new database file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ArchiveRestore")
		if err != nil {
			return err
		}
		defer a.Close()

		arch, err := a.Archiver(cmd.Context())
		if err != nil {
			return err
		}
		passphrase, err := readSecret("Passphrase: ")
		if err != nil {
			return err
		}
		if err := arch.Restore(args[0], passphrase, args[1]); err != nil {
			return err
		}
		fmt.Printf("Snapshot %s restored to %s\n", args[0], args[1])
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{adminsCreateCmd, devicesCreateCmd} {
		c.Flags().String("email", "", "Account email")
		c.Flags().String("sector", "", "Sector the account belongs to")
		c.Flags().String("name", "", "Display name")
		c.Flags().String("temp-password", "", "Temporary password (generated when empty)")
		c.MarkFlagRequired("email")
		c.MarkFlagRequired("sector")
	}

	adminsCmd.AddCommand(adminsListCmd)
	adminsCmd.AddCommand(adminsCreateCmd)
	adminsCmd.AddCommand(setStatusCmd("disable", "Disable an admin", string(droplock.ProfileDisabled)))
	adminsCmd.AddCommand(setStatusCmd("enable", "Re-enable an admin", string(droplock.ProfileActive)))
	adminsCmd.AddCommand(adminsResetPasswordCmd)
	rootCmd.AddCommand(adminsCmd)

	devicesCmd.AddCommand(devicesCreateCmd)
	rootCmd.AddCommand(devicesCmd)

	rootCmd.AddCommand(ingestCmd)

	archiveCmd.AddCommand(archiveKeygenCmd)
	archiveCmd.AddCommand(archivePushCmd)
	archiveCmd.AddCommand(archiveListCmd)
	archiveCmd.AddCommand(archiveRestoreCmd)
	rootCmd.AddCommand(archiveCmd)
}
