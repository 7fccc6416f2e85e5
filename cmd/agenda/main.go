package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/wolfman30/dental-agenda/internal/agenda"
	"github.com/wolfman30/dental-agenda/internal/app/bootstrap"
	"github.com/wolfman30/dental-agenda/internal/appointments"
	appconfig "github.com/wolfman30/dental-agenda/internal/config"
	"github.com/wolfman30/dental-agenda/internal/schedule"
	"github.com/wolfman30/dental-agenda/internal/session"
	"github.com/wolfman30/dental-agenda/pkg/logging"
)

func main() {
	root := newRootCmd(&cli{})
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", appointments.MessageFor(err))
		os.Exit(1)
	}
}

// cli carries the dependencies shared by every subcommand. Fields set
// before Execute are kept, which is how tests inject config and a clock.
type cli struct {
	cfg    *appconfig.Config
	now    func() time.Time
	logger *logging.Logger

	slots      schedule.SlotConfig
	sess       *session.Session
	persistent bool
	client     *appointments.Client
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "agenda",
		Short:         "Dental clinic appointment agenda",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.init(cmd.Context(), cmd.ErrOrStderr())
		},
	}

	root.AddCommand(serveCmd(c))
	root.AddCommand(devAPICmd(c))
	root.AddCommand(showCmd(c))
	root.AddCommand(bookCmd(c))
	root.AddCommand(statusCmd(c))
	root.AddCommand(deleteCmd(c))
	root.AddCommand(patientsCmd(c))
	root.AddCommand(loginCmd(c))
	root.AddCommand(logoutCmd(c))
	return root
}

func (c *cli) init(ctx context.Context, errOut io.Writer) error {
	if c.cfg == nil {
		// A missing .env is normal outside development.
		_ = godotenv.Load()
		c.cfg = appconfig.Load()
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.logger == nil {
		c.logger = logging.NewWithWriter(c.cfg.LogLevel, c.cfg.LogFormat, errOut)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	slots, err := bootstrap.BuildSlotConfig(c.cfg)
	if err != nil {
		return err
	}
	c.slots = slots

	redisClient := bootstrap.BuildRedisClient(ctx, c.cfg, c.logger, true)
	store, persistent := bootstrap.BuildSessionStore(c.cfg, redisClient)
	c.sess = session.New(store, c.logger)
	c.persistent = persistent
	c.sess.OnUnauthorized(func() {
		fmt.Fprintln(errOut, "Session expired. Run `agenda login` again.")
	})

	c.client = bootstrap.BuildAPIClient(c.cfg, c.sess, c.logger, nil)
	return nil
}

// newAgenda builds a view-model for one command run.
func (c *cli) newAgenda(out io.Writer, opts ...agenda.Option) *agenda.Agenda {
	base := []agenda.Option{
		agenda.WithClock(c.now),
		agenda.WithLogger(c.logger),
		agenda.WithSlots(c.slots),
		agenda.WithNotifier(cliNotifier{out: out, logger: c.logger}),
	}
	return agenda.New(c.client, c.sess, append(base, opts...)...)
}

// cliNotifier prints success notices. Failures come back as errors from the
// command, so they are only logged here.
type cliNotifier struct {
	out    io.Writer
	logger *logging.Logger
}

func (n cliNotifier) Success(msg string) { fmt.Fprintln(n.out, msg) }

func (n cliNotifier) Failure(msg string) { n.logger.Debug("agenda failure notice", "message", msg) }
