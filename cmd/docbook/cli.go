package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/docbook/docbook/internal/booking"
	"github.com/docbook/docbook/internal/client"
	"github.com/docbook/docbook/internal/config"
	"github.com/docbook/docbook/internal/platform/auth"
	"github.com/docbook/docbook/internal/platform/db"
	"github.com/docbook/docbook/internal/slots"
	"github.com/docbook/docbook/internal/store"
)

// clientEnv is what every client-side command needs.
type clientEnv struct {
	cfg     *config.Config
	loc     *time.Location
	logger  zerolog.Logger
	session booking.Session
	api     *client.Client
	store   *store.Store
}

type clientFlags struct {
	api     string
	token   string
	user    string
	role    string
	verbose bool
}

func (f *clientFlags) register(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.StringVar(&f.api, "api", "", "API base URL (default API_URL)")
	pf.StringVar(&f.token, "token", "", "Bearer token")
	pf.StringVar(&f.user, "user", "", "User id (default: token subject)")
	pf.StringVar(&f.role, "role", "", "Role: user or admin (default: token role)")
	pf.BoolVarP(&f.verbose, "verbose", "v", false, "Log API calls")
}

// sessionFrom builds the session from flags. Claims are read from the token
// without verification; the server verifies it.
func sessionFrom(f *clientFlags) (booking.Session, error) {
	sess := booking.Session{UserID: f.user, Role: f.role, Token: f.token}
	if f.token != "" {
		claims := &auth.Claims{}
		if _, _, err := jwt.NewParser().ParseUnverified(f.token, claims); err != nil {
			return booking.Session{}, fmt.Errorf("read token: %w", err)
		}
		if sess.UserID == "" {
			sess.UserID = claims.Subject
		}
		if sess.Role == "" {
			sess.Role = claims.Role
		}
	}
	if sess.Role != auth.RoleAdmin {
		sess.Role = auth.RoleUser
	}
	return sess, nil
}

func clientLogger(w io.Writer, verbose bool) zerolog.Logger {
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w}).Level(level).With().Timestamp().Logger()
}

func newClientEnv(cmd *cobra.Command, f *clientFlags) (*clientEnv, error) {
	cfg, err := config.LoadClient()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	sess, err := sessionFrom(f)
	if err != nil {
		return nil, err
	}
	logger := clientLogger(cmd.ErrOrStderr(), f.verbose)

	base := f.api
	if base == "" {
		base = cfg.APIURL
	}
	api, err := client.New(base,
		client.WithTimeout(cfg.ClientTimeout),
		client.WithToken(sess.Token),
		client.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	return &clientEnv{cfg: cfg, loc: loc, logger: logger, session: sess, api: api, store: store.New()}, nil
}

func (env *clientEnv) resolver() *booking.Resolver {
	return booking.NewResolver(env.api, env.loc, env.logger)
}

func (env *clientEnv) writer() *booking.Writer {
	return booking.NewWriter(env.api, env.store, env.loc, env.logger, booking.WithLeadTime(env.cfg.CancelLeadTime))
}

func required(cmd *cobra.Command, names ...string) error {
	var missing []string
	for _, n := range names {
		if v, _ := cmd.Flags().GetString(n); strings.TrimSpace(v) == "" {
			missing = append(missing, "--"+n)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("required flag(s) not set: %s", strings.Join(missing, ", "))
	}
	return nil
}

func addClientCommands(root *cobra.Command) {
	flags := &clientFlags{}
	group := []*cobra.Command{
		doctorsCmd(flags),
		slotsCmd(flags),
		bookCmd(flags),
		cancelCmd(flags),
		appointmentsCmd(flags),
		adminCmd(flags),
	}
	for _, c := range group {
		flags.register(c)
		root.AddCommand(c)
	}
}

func doctorsCmd(flags *clientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "doctors",
		Short: "List doctors and their open days",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newClientEnv(cmd, flags)
			if err != nil {
				return err
			}
			docs, err := env.store.LoadDoctors(cmd.Context(), env.api)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tSPECIALTY\tFEE\tOPEN DAYS")
			for _, d := range docs {
				days := make([]string, 0, len(d.Availability))
				for _, a := range d.Availability {
					days = append(days, a.In(env.loc).Format("2006-01-02"))
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%s\n", d.ID, d.Name, d.Specialty, d.Fee, strings.Join(days, ","))
			}
			return tw.Flush()
		},
	}
}

func printPartition(w io.Writer, doctorName string, p booking.Partition) {
	fmt.Fprintf(w, "Doctor: %s\nDate:   %s\n", doctorName, p.Date)
	booked := make(map[string]bool, len(p.Booked))
	for _, l := range p.Booked {
		booked[l] = true
	}
	unchecked := make(map[string]bool, len(p.Unchecked))
	for _, l := range p.Unchecked {
		unchecked[l] = true
	}
	for _, l := range slots.Catalogue() {
		state := "available"
		switch {
		case booked[l]:
			state = "booked"
		case unchecked[l]:
			state = "available (unchecked)"
		}
		fmt.Fprintf(w, "  %s  %s\n", l, state)
	}
	if p.Degraded {
		fmt.Fprintln(w, "warning: availability could not be checked; the slot is rechecked before booking")
	}
}

func slotsCmd(flags *clientFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Show available and booked slots of a doctor on a date",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := required(cmd, "doctor", "date"); err != nil {
				return err
			}
			doctorID, _ := cmd.Flags().GetString("doctor")
			date, _ := cmd.Flags().GetString("date")

			env, err := newClientEnv(cmd, flags)
			if err != nil {
				return err
			}
			doc, err := env.api.GetDoctor(cmd.Context(), doctorID)
			if err != nil {
				return err
			}
			p, err := env.resolver().Resolve(cmd.Context(), doc.ID, doc.Availability, date)
			if err != nil {
				return err
			}
			printPartition(cmd.OutOrStdout(), doc.Name, p)
			return nil
		},
	}
	cmd.Flags().String("doctor", "", "Doctor id")
	cmd.Flags().String("date", "", "Calendar date YYYY-MM-DD")
	return cmd
}

func bookCmd(flags *clientFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "book",
		Short: "Book a slot",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := required(cmd, "doctor", "date", "time"); err != nil {
				return err
			}
			get := func(name string) string {
				v, _ := cmd.Flags().GetString(name)
				return v
			}

			env, err := newClientEnv(cmd, flags)
			if err != nil {
				return err
			}
			if !env.session.Authenticated() {
				return fmt.Errorf("%w: sign in with --token or --user", booking.ErrNoIdentity)
			}
			doc, err := env.api.GetDoctor(cmd.Context(), get("doctor"))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			flow := booking.NewFlow(env.resolver(), env.writer(), env.session, doc.ID, doc.Availability)
			p, err := flow.SelectDate(cmd.Context(), get("date"))
			if err != nil {
				return err
			}
			if err := flow.SelectSlot(get("time")); err != nil {
				printPartition(out, doc.Name, p)
				return err
			}
			conf, err := flow.Submit(cmd.Context(), booking.Details{
				PatientName:  get("name"),
				PatientEmail: get("email"),
				PatientPhone: get("phone"),
				Reason:       get("reason"),
			})
			if errors.Is(err, booking.ErrSlotTaken) {
				fmt.Fprintf(out, "The %s slot was just taken. Pick another one:\n", get("time"))
				if refreshed, ok := flow.Partition(); ok {
					printPartition(out, doc.Name, refreshed)
				}
				return err
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Booked %s with %s on %s at %s (%s).\n",
				conf.Appointment.ID, doc.Name, conf.Date, conf.Time, conf.Appointment.Status)
			return nil
		},
	}
	cmd.Flags().String("doctor", "", "Doctor id")
	cmd.Flags().String("date", "", "Calendar date YYYY-MM-DD")
	cmd.Flags().String("time", "", "Slot label HH:MM")
	cmd.Flags().String("name", "", "Patient name")
	cmd.Flags().String("email", "", "Patient email")
	cmd.Flags().String("phone", "", "Patient phone")
	cmd.Flags().String("reason", "", "Reason for the visit")
	return cmd
}

func cancelCmd(flags *clientFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel an appointment",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := required(cmd, "id"); err != nil {
				return err
			}
			id, _ := cmd.Flags().GetString("id")
			env, err := newClientEnv(cmd, flags)
			if err != nil {
				return err
			}
			appt, err := env.writer().Cancel(cmd.Context(), env.session, id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Appointment %s on %s at %s is %s.\n", appt.ID, appt.Date, appt.Time, appt.Status)
			return nil
		},
	}
	cmd.Flags().String("id", "", "Appointment id")
	return cmd
}

func printAppointments(w io.Writer, list []client.Appointment) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDOCTOR\tUSER\tDATE\tTIME\tSTATUS\tPATIENT")
	for _, a := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", a.ID, a.DoctorID, a.UserID, a.Date, a.Time, a.Status, a.PatientName)
	}
	return tw.Flush()
}

func appointmentsCmd(flags *clientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "appointments",
		Short: "List the signed-in user's appointments",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newClientEnv(cmd, flags)
			if err != nil {
				return err
			}
			if !env.session.Authenticated() {
				return fmt.Errorf("%w: sign in with --token or --user", booking.ErrNoIdentity)
			}
			list, err := env.store.LoadUserAppointments(cmd.Context(), env.api, env.session.UserID)
			if err != nil {
				return err
			}
			return printAppointments(cmd.OutOrStdout(), list)
		},
	}
}

func adminCmd(flags *clientFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administrative commands",
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "Page through all appointments, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, _ := cmd.Flags().GetString("status")
			limit, _ := cmd.Flags().GetInt("limit")
			lastDoc, _ := cmd.Flags().GetString("last-doc")

			env, err := newClientEnv(cmd, flags)
			if err != nil {
				return err
			}
			page, err := env.api.AdminAppointments(cmd.Context(), client.AdminQuery{Status: status, Limit: limit, LastDoc: lastDoc})
			if err != nil {
				return err
			}
			for _, a := range page.Appointments {
				env.store.Upsert(a)
			}
			out := cmd.OutOrStdout()
			if err := printAppointments(out, page.Appointments); err != nil {
				return err
			}
			if page.HasMore {
				fmt.Fprintf(out, "more: --last-doc %s\n", page.LastDoc)
			}
			return nil
		},
	}
	list.Flags().String("status", "", "Filter by status")
	list.Flags().Int("limit", 0, "Page size")
	list.Flags().String("last-doc", "", "Cursor from the previous page")

	reschedule := &cobra.Command{
		Use:   "reschedule",
		Short: "Move an appointment to another date and slot",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := required(cmd, "id", "date", "time"); err != nil {
				return err
			}
			id, _ := cmd.Flags().GetString("id")
			date, _ := cmd.Flags().GetString("date")
			label, _ := cmd.Flags().GetString("time")

			env, err := newClientEnv(cmd, flags)
			if err != nil {
				return err
			}
			if !env.session.Authenticated() {
				return fmt.Errorf("%w: sign in with --token or --user", booking.ErrNoIdentity)
			}
			day, err := slots.ParseDate(date, env.loc)
			if err != nil {
				return err
			}
			at, err := slots.Instant(day, label, env.loc)
			if err != nil {
				return err
			}

			appt, err := env.api.GetAppointment(cmd.Context(), id)
			if err != nil {
				return err
			}
			appt.Date, appt.Time, appt.DateTime = day, label, at
			updated, err := env.api.UpdateAppointment(cmd.Context(), *appt)
			if client.IsConflict(err) {
				return fmt.Errorf("%w: %s at %s", booking.ErrSlotTaken, day, label)
			}
			if err != nil {
				return err
			}
			env.store.Upsert(*updated)
			fmt.Fprintf(cmd.OutOrStdout(), "Appointment %s moved to %s at %s (%s).\n", updated.ID, updated.Date, updated.Time, updated.Status)
			return nil
		},
	}
	reschedule.Flags().String("id", "", "Appointment id")
	reschedule.Flags().String("date", "", "New date (YYYY-MM-DD)")
	reschedule.Flags().String("time", "", "New slot label (HH:MM)")

	cmd.AddCommand(list, reschedule)
	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an HS256 bearer token with AUTH_SIGNING_KEY",
		RunE: func(cmd *cobra.Command, args []string) error {
			sub, _ := cmd.Flags().GetString("sub")
			role, _ := cmd.Flags().GetString("role")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			cfg, err := config.LoadClient()
			if err != nil {
				return err
			}
			if cfg.AuthSigningKey == "" {
				return fmt.Errorf("AUTH_SIGNING_KEY is not set")
			}
			tok, err := auth.IssueToken([]byte(cfg.AuthSigningKey), cfg.AuthIssuer, sub, role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().String("sub", "", "Subject (user id)")
	cmd.Flags().String("role", auth.RoleUser, "Role: user or admin")
	cmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
	return cmd
}

func printMigrationStatus(w io.Writer, schema string, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "Migration status for schema: %s\n", schema)
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}
