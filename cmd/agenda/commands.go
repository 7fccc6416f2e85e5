package main

import (
	"bufio"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wolfman30/dental-agenda/internal/agenda"
	"github.com/wolfman30/dental-agenda/internal/appointments"
	"github.com/wolfman30/dental-agenda/internal/render"
	"github.com/wolfman30/dental-agenda/internal/schedule"
	"github.com/wolfman30/dental-agenda/internal/session"
)

func showCmd(c *cli) *cobra.Command {
	var view, date string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the agenda grid",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := schedule.ParseView(view)
			if err != nil {
				return err
			}
			opts := []agenda.Option{agenda.WithView(v)}
			if date != "" {
				anchor, err := appointments.ParseDate(date)
				if err != nil {
					return fmt.Errorf("--date: %w", err)
				}
				opts = append(opts, agenda.WithAnchor(anchor))
			}

			ag := c.newAgenda(cmd.OutOrStdout(), opts...)
			defer ag.Close()
			if err := ag.Load(cmd.Context()); err != nil {
				return err
			}
			return render.Grid(cmd.OutOrStdout(), ag.Grid())
		},
	}
	cmd.Flags().StringVar(&view, "view", "weekly", "daily, weekly or monthly")
	cmd.Flags().StringVar(&date, "date", "", "anchor date (YYYY-MM-DD), defaults to today")
	return cmd
}

func bookCmd(c *cli) *cobra.Command {
	var (
		date, at, name, notes string
		patientID             int64
	)
	cmd := &cobra.Command{
		Use:   "book",
		Short: "Book an appointment in a free slot",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := appointments.ParseDate(date)
			if err != nil {
				return fmt.Errorf("--date: %w", err)
			}
			t, err := appointments.ParseTimeOfDay(at)
			if err != nil {
				return fmt.Errorf("--time: %w", err)
			}
			mode := agenda.ModeRegistered
			if patientID == 0 && strings.TrimSpace(name) != "" {
				mode = agenda.ModeAdHoc
			}

			ctx := cmd.Context()
			ag := c.newAgenda(cmd.OutOrStdout(), agenda.WithAnchor(d))
			defer ag.Close()
			if err := ag.OpenForm(ctx, d, t); err != nil {
				return err
			}
			if err := ag.SetPatientMode(mode); err != nil {
				return err
			}
			if err := ag.SelectPatient(patientID); err != nil {
				return err
			}
			if err := ag.SetAdHocName(name); err != nil {
				return err
			}
			if err := ag.SetNotes(notes); err != nil {
				return err
			}
			return ag.SubmitForm(ctx)
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "appointment date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&at, "time", "", "slot start (HH:MM)")
	cmd.Flags().Int64Var(&patientID, "patient", 0, "registered patient id")
	cmd.Flags().StringVar(&name, "name", "", "name of a patient who is not registered")
	cmd.Flags().StringVar(&notes, "notes", "", "free-text notes")
	_ = cmd.MarkFlagRequired("date")
	_ = cmd.MarkFlagRequired("time")
	cmd.MarkFlagsMutuallyExclusive("patient", "name")
	return cmd
}

func statusCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "status ID STATUS",
		Short: "Change an appointment's status",
		Long:  "STATUS is one of pending, confirmed, cancelled or rescheduled.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			status, err := appointments.ParseStatus(args[1])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			ag := c.newAgenda(cmd.OutOrStdout())
			defer ag.Close()
			if err := ag.Load(ctx); err != nil {
				return err
			}
			if err := ag.OpenDetail(id); err != nil {
				return err
			}
			if err := ag.SelectStatus(status); err != nil {
				return err
			}
			return ag.SaveStatus(ctx)
		},
	}
}

func deleteCmd(c *cli) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete an appointment after confirmation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			ag := c.newAgenda(out)
			defer ag.Close()
			if err := ag.Load(ctx); err != nil {
				return err
			}
			if err := ag.OpenDetail(id); err != nil {
				return err
			}
			if err := ag.RequestDelete(); err != nil {
				return err
			}

			if !yes {
				detail, _ := ag.Detail()
				if err := render.Appointment(out, detail.Appointment, detail.Patient); err != nil {
					return err
				}
				fmt.Fprint(out, "Delete this appointment? [y/N] ")
				answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				switch strings.ToLower(strings.TrimSpace(answer)) {
				case "y", "yes":
				default:
					fmt.Fprintln(out, "Kept the appointment.")
					return ag.CancelDelete()
				}
			}
			return ag.ConfirmDelete(ctx)
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func patientsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "patients",
		Short: "List registered patients",
		RunE: func(cmd *cobra.Command, args []string) error {
			patients, err := c.client.ListPatients(cmd.Context())
			if err != nil {
				return err
			}
			slices.SortFunc(patients, func(a, b appointments.Patient) int {
				return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
			})
			return render.Patients(cmd.OutOrStdout(), patients)
		},
	}
}

func loginCmd(c *cli) *cobra.Command {
	var (
		token  string
		userID int64
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the access token used for the clinic API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := c.sess.Login(ctx, token, userID); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if _, err := c.sess.UserID(ctx); errors.Is(err, session.ErrNoUserID) {
				fmt.Fprintln(out, "Warning: no user id stored; booking will fail until one is given with --user-id.")
			}
			if !c.persistent {
				fmt.Fprintln(out, "Warning: REDIS_ADDR is not set, so the session ends with this command.")
			}
			fmt.Fprintln(out, "Logged in.")
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "bearer token issued by the clinic API")
	cmd.Flags().Int64Var(&userID, "user-id", 0, "user id, when the token carries none")
	_ = cmd.MarkFlagRequired("token")
	return cmd
}

func logoutCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.sess.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		},
	}
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid appointment id %q", raw)
	}
	return id, nil
}
