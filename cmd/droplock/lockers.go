package main

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"droplock/internal/app"
	"droplock/internal/droplock"
	"droplock/internal/report"
)

// resolveSector returns the --sector flag, or the admin's own sector
// when the flag is empty. SuperAdmins must name one.
func resolveSector(cmd *cobra.Command, a *app.DropLockApp, uid string) (string, error) {
	sector, _ := cmd.Flags().GetString("sector")
	if sector != "" {
		return sector, nil
	}
	p, err := a.Service().Gate().AssertConsoleAccess(uid)
	if err != nil {
		return "", err
	}
	if p.SectorID == "" {
		return "", fmt.Errorf("%w: --sector is required", droplock.ErrValidation)
	}
	return p.SectorID, nil
}

// dashboard command
var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Show sector metrics and raise alerts for new conditions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withActor("Dashboard", func(a *app.DropLockApp, uid string) error {
			sector, err := resolveSector(cmd, a, uid)
			if err != nil {
				return err
			}
			d, err := a.Service().Dashboard(uid, sector)
			if err != nil {
				return err
			}

			r := report.NewRenderer(os.Stdout, a.Location(d.Config.Timezone))
			fmt.Printf("Sector %s (heartbeat timeout %ds)\n\n", d.SectorID, d.Config.HeartbeatTimeoutSec)
			r.Metrics(d.Metrics)
			fmt.Println()
			r.Lockers(d.Views)
			if len(d.NewAlerts) > 0 {
				fmt.Printf("\nRaised %d new alert(s): %s\n", len(d.NewAlerts), strings.Join(d.NewAlerts, ", "))
			}
			return nil
		})
	},
}

// sectors command
var sectorsCmd = &cobra.Command{
	Use:   "sectors",
	Short: "Manage sectors",
}

var sectorsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List visible sectors",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withActor("ListSectors", func(a *app.DropLockApp, uid string) error {
			sectors, err := a.Service().ListSectors(uid)
			if err != nil {
				return err
			}
			if len(sectors) == 0 {
				fmt.Println("No sectors.")
				return nil
			}
			rows := make([][]string, 0, len(sectors))
			for _, s := range sectors {
				rows = append(rows, []string{
					s.ID, strconv.Itoa(s.Config.HeartbeatTimeoutSec), strconv.Itoa(s.Config.OpenPulseMs),
					s.Config.Timezone, strconv.Itoa(len(s.AdminUIDs)), strconv.Itoa(len(s.DeviceUIDs)),
				})
			}
			report.NewRenderer(os.Stdout, nil).Table(
				[]string{"SECTOR", "HEARTBEAT TIMEOUT", "OPEN PULSE MS", "TIMEZONE", "ADMINS", "DEVICES"}, rows)
			return nil
		})
	},
}

var sectorsShowCmd = &cobra.Command{
	Use:   "show SECTOR",
	Short: "Show one sector",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withActor("GetSector", func(a *app.DropLockApp, uid string) error {
			s, err := a.Service().GetSector(uid, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Sector:            %s\n", s.ID)
			fmt.Printf("Heartbeat timeout: %ds\n", s.Config.HeartbeatTimeoutSec)
			fmt.Printf("Open pulse:        %dms\n", s.Config.OpenPulseMs)
			fmt.Printf("Timezone:          %s\n", s.Config.Timezone)
			fmt.Printf("Admins:            %s\n", strings.Join(s.AdminUIDs, ", "))
			fmt.Printf("Devices:           %s\n", strings.Join(s.DeviceUIDs, ", "))
			return nil
		})
	},
}

var sectorsCreateCmd = &cobra.Command{
	Use:   "create SECTOR",
	Short: "Create a sector with default settings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withActor("CreateSector", func(a *app.DropLockApp, uid string) error {
			if err := a.Service().CreateSector(uid, args[0]); err != nil {
				return err
			}
			fmt.Printf("Sector %s created.\n", args[0])
			return nil
		})
	},
}

var sectorsConfigCmd = &cobra.Command{
	Use:   "config SECTOR",
	Short: "Update sector device settings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var update droplock.SectorConfigUpdate
		if cmd.Flags().Changed("heartbeat-timeout") {
			v, _ := cmd.Flags().GetInt("heartbeat-timeout")
			update.HeartbeatTimeoutSec = &v
		}
		if cmd.Flags().Changed("open-pulse-ms") {
			v, _ := cmd.Flags().GetInt("open-pulse-ms")
			update.OpenPulseMs = &v
		}
		if cmd.Flags().Changed("timezone") {
			v, _ := cmd.Flags().GetString("timezone")
			update.Timezone = &v
		}

		return withActor("UpdateSectorConfig", func(a *app.DropLockApp, uid string) error {
			if err := a.Service().UpdateSectorConfig(uid, args[0], update); err != nil {
				return err
			}
			fmt.Printf("Sector %s updated.\n", args[0])
			return nil
		})
	},
}

// lockers command
var lockersCmd = &cobra.Command{
	Use:   "lockers",
	Short: "Manage lockers",
}

var lockersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List lockers in a sector",
	RunE: func(cmd *cobra.Command, args []string) error {
		var filter droplock.LockerFilter
		filter.Booked, _ = cmd.Flags().GetBool("booked")
		filter.Maintenance, _ = cmd.Flags().GetBool("maintenance")
		filter.Tampered, _ = cmd.Flags().GetBool("tampered")
		filter.Offline, _ = cmd.Flags().GetBool("offline")
		export, _ := cmd.Flags().GetString("export")

		return withActor("ListLockers", func(a *app.DropLockApp, uid string) error {
			sector, err := resolveSector(cmd, a, uid)
			if err != nil {
				return err
			}
			views, cfg, err := a.Lockers(uid, sector, filter)
			if err != nil {
				return err
			}

			switch export {
			case "":
				report.NewRenderer(os.Stdout, a.Location(cfg.Timezone)).Lockers(views)
				return nil
			case "csv":
				return report.WriteLockersCSV(os.Stdout, views)
			case "yaml":
				return report.WriteLockersYAML(os.Stdout, views)
			default:
				return fmt.Errorf("%w: --export must be csv or yaml", droplock.ErrValidation)
			}
		})
	},
}

var lockersSetStateCmd = &cobra.Command{
	Use:   "set-state SECTOR LOCKER STATE",
	Short: "Set a locker's state (AVAILABLE, RESERVED, OCCUPIED, MAINTENANCE)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		state, err := droplock.ParseLockerState(strings.ToUpper(args[2]))
		if err != nil {
			return err
		}
		return withActor("SetState", func(a *app.DropLockApp, uid string) error {
			if err := a.Service().AdminSetState(uid, args[0], args[1], state); err != nil {
				return err
			}
			fmt.Printf("%s/%s set to %s\n", args[0], args[1], state)
			return nil
		})
	},
}

var lockersOpenCmd = &cobra.Command{
	Use:   "open SECTOR LOCKER",
	Short: "Send a remote OPEN command",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		reason, _ := cmd.Flags().GetString("reason")
		return withActor("RequestOpen", func(a *app.DropLockApp, uid string) error {
			cmdID, err := a.Service().AdminRequestOpen(uid, args[0], args[1], reason)
			if err != nil {
				return err
			}
			fmt.Printf("OPEN requested (%s)\n", cmdID)
			return nil
		})
	},
}

var lockersCreateCmd = &cobra.Command{
	Use:   "create SECTOR LOCKER",
	Short: "Register a locker",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withActor("CreateLocker", func(a *app.DropLockApp, uid string) error {
			if err := a.Service().CreateLocker(uid, args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("%s/%s created\n", args[0], args[1])
			return nil
		})
	},
}

var lockersDeleteCmd = &cobra.Command{
	Use:   "delete SECTOR LOCKER",
	Short: "Remove an unbooked locker",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withActor("DeleteLocker", func(a *app.DropLockApp, uid string) error {
			if err := a.Service().DeleteLocker(uid, args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("%s/%s deleted\n", args[0], args[1])
			return nil
		})
	},
}

var lockersBookCmd = &cobra.Command{
	Use:   "book SECTOR LOCKER [BOOKING]",
	Short: "Assign or clear a locker's active booking",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		clearBooking, _ := cmd.Flags().GetBool("clear")
		booking := ""
		switch {
		case clearBooking && len(args) == 3:
			return fmt.Errorf("%w: give a booking id or --clear, not both", droplock.ErrValidation)
		case !clearBooking && len(args) == 2:
			return fmt.Errorf("%w: booking id required unless --clear", droplock.ErrValidation)
		case !clearBooking:
			booking = args[2]
		}

		return withActor("SetActiveBooking", func(a *app.DropLockApp, uid string) error {
			if err := a.Service().SetActiveBooking(uid, args[0], args[1], booking); err != nil {
				return err
			}
			if booking == "" {
				fmt.Printf("%s/%s booking cleared\n", args[0], args[1])
			} else {
				fmt.Printf("%s/%s booked to %s\n", args[0], args[1], booking)
			}
			return nil
		})
	},
}

var lockersEventsCmd = &cobra.Command{
	Use:   "events SECTOR LOCKER",
	Short: "Show a locker's audit events",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withActor("LockerEvents", func(a *app.DropLockApp, uid string) error {
			events, err := a.Service().LockerEvents(uid, args[0], args[1])
			if err != nil {
				return err
			}
			if len(events) == 0 {
				fmt.Println("No events.")
				return nil
			}
			r := report.NewRenderer(os.Stdout, nil)
			rows := make([][]string, 0, len(events))
			for _, e := range events {
				rows = append(rows, []string{r.FormatTS(&e.Timestamp), e.Type, e.ActorUID, stateOf(e.Before), stateOf(e.After)})
			}
			r.Table([]string{"TIME", "TYPE", "ACTOR", "BEFORE", "AFTER"}, rows)
			return nil
		})
	},
}

func stateOf(snap map[string]any) string {
	if snap == nil {
		return "-"
	}
	if s, ok := snap["state"].(string); ok {
		return s
	}
	return "-"
}

var lockersCommandsCmd = &cobra.Command{
	Use:   "commands SECTOR LOCKER",
	Short: "Show commands sent to a locker",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withActor("LockerCommands", func(a *app.DropLockApp, uid string) error {
			cmds, err := a.Service().LockerCommands(uid, args[0], args[1])
			if err != nil {
				return err
			}
			if len(cmds) == 0 {
				fmt.Println("No commands.")
				return nil
			}
			r := report.NewRenderer(os.Stdout, nil)
			rows := make([][]string, 0, len(cmds))
			for _, c := range cmds {
				rows = append(rows, []string{r.FormatTS(&c.TS), c.ID, c.Cmd, c.ActorUID})
			}
			r.Table([]string{"TIME", "ID", "COMMAND", "ACTOR"}, rows)
			return nil
		})
	},
}

// alerts command
var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Review and resolve alerts",
}

var alertsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List alerts, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		statusFlag, _ := cmd.Flags().GetString("status")
		var status droplock.AlertStatus
		if statusFlag != "" {
			var err error
			if status, err = droplock.ParseAlertStatus(strings.ToUpper(statusFlag)); err != nil {
				return err
			}
		}
		return withActor("ListAlerts", func(a *app.DropLockApp, uid string) error {
			alerts, err := a.Service().ListAlerts(uid, status)
			if err != nil {
				return err
			}
			report.NewRenderer(os.Stdout, nil).Alerts(alerts)
			return nil
		})
	},
}

var alertsAckCmd = &cobra.Command{
	Use:   "ack ID",
	Short: "Acknowledge an alert",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withActor("AckAlert", func(a *app.DropLockApp, uid string) error {
			if err := a.Service().AckAlert(uid, args[0]); err != nil {
				return err
			}
			fmt.Printf("Alert %s acknowledged.\n", args[0])
			return nil
		})
	},
}

var alertsCloseCmd = &cobra.Command{
	Use:   "close ID",
	Short: "Close an alert",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withActor("CloseAlert", func(a *app.DropLockApp, uid string) error {
			if err := a.Service().CloseAlert(uid, args[0]); err != nil {
				return err
			}
			fmt.Printf("Alert %s closed.\n", args[0])
			return nil
		})
	},
}

// bookings command
var bookingsCmd = &cobra.Command{
	Use:   "bookings",
	Short: "Inspect booking audit logs",
}

var bookingsLogCmd = &cobra.Command{
	Use:   "log BOOKING",
	Short: "Show a booking's events",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withActor("BookingLog", func(a *app.DropLockApp, uid string) error {
			events, err := a.Service().BookingLog(uid, args[0])
			if err != nil {
				return err
			}
			if len(events) == 0 {
				fmt.Println("No events.")
				return nil
			}
			r := report.NewRenderer(os.Stdout, nil)
			rows := make([][]string, 0, len(events))
			for _, e := range events {
				rows = append(rows, []string{r.FormatTS(&e.TS), e.Type, e.ActorUID, formatData(e.Data)})
			}
			r.Table([]string{"TIME", "TYPE", "ACTOR", "DATA"}, rows)
			return nil
		})
	},
}

func formatData(data map[string]any) string {
	if len(data) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, data[k]))
	}
	return strings.Join(parts, " ")
}

func init() {
	dashboardCmd.Flags().String("sector", "", "Sector id (defaults to your own)")
	rootCmd.AddCommand(dashboardCmd)

	sectorsConfigCmd.Flags().Int("heartbeat-timeout", 0, "Seconds of silence before a locker is offline")
	sectorsConfigCmd.Flags().Int("open-pulse-ms", 0, "Lock actuator pulse length in milliseconds")
	sectorsConfigCmd.Flags().String("timezone", "", "IANA timezone for display")
	sectorsCmd.AddCommand(sectorsListCmd)
	sectorsCmd.AddCommand(sectorsShowCmd)
	sectorsCmd.AddCommand(sectorsCreateCmd)
	sectorsCmd.AddCommand(sectorsConfigCmd)
	rootCmd.AddCommand(sectorsCmd)

	lockersListCmd.Flags().String("sector", "", "Sector id (defaults to your own)")
	lockersListCmd.Flags().Bool("booked", false, "Only lockers with an active booking")
	lockersListCmd.Flags().Bool("maintenance", false, "Only lockers in MAINTENANCE")
	lockersListCmd.Flags().Bool("tampered", false, "Only lockers reporting tamper")
	lockersListCmd.Flags().Bool("offline", false, "Only offline lockers")
	lockersListCmd.Flags().String("export", "", "Write csv or yaml instead of a table")
	lockersOpenCmd.Flags().String("reason", "", "Reason recorded with the booking event")
	lockersBookCmd.Flags().Bool("clear", false, "Clear the active booking")
	lockersCmd.AddCommand(lockersListCmd)
	lockersCmd.AddCommand(lockersSetStateCmd)
	lockersCmd.AddCommand(lockersOpenCmd)
	lockersCmd.AddCommand(lockersCreateCmd)
	lockersCmd.AddCommand(lockersDeleteCmd)
	lockersCmd.AddCommand(lockersBookCmd)
	lockersCmd.AddCommand(lockersEventsCmd)
	lockersCmd.AddCommand(lockersCommandsCmd)
	rootCmd.AddCommand(lockersCmd)

	alertsListCmd.Flags().String("status", "", "Filter by OPEN, ACKED or CLOSED")
	alertsCmd.AddCommand(alertsListCmd)
	alertsCmd.AddCommand(alertsAckCmd)
	alertsCmd.AddCommand(alertsCloseCmd)
	rootCmd.AddCommand(alertsCmd)

	bookingsCmd.AddCommand(bookingsLogCmd)
	rootCmd.AddCommand(bookingsCmd)
}
