package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/dukerupert/emerald/internal/app"
	"github.com/dukerupert/emerald/internal/auth"
	"github.com/dukerupert/emerald/internal/backup"
	"github.com/dukerupert/emerald/internal/config"
	"github.com/dukerupert/emerald/internal/logging"
	"github.com/dukerupert/emerald/internal/model"
	"github.com/dukerupert/emerald/internal/push"
	"github.com/dukerupert/emerald/internal/rewards"
)

func main() {
	if err := newCLI(os.Stdout, os.Stderr).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "emeraldctl:", err)
		os.Exit(1)
	}
}

// newCLI builds the command tree. opts are applied to every service the
// commands open, after the configured defaults.
func newCLI(out, errOut io.Writer, opts ...rewards.Option) *cli.App {
	r := runner{opts: opts}
	return &cli.App{
		Name:      "emeraldctl",
		Usage:     "review withdrawals and inspect the rewards database",
		Writer:    out,
		ErrWriter: errOut,
		Commands: []*cli.Command{
			{
				Name:  "pending",
				Usage: "list withdrawal requests awaiting review",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "status", Value: "pending", Usage: "pending, approved, rejected or all"},
				},
				Action: r.withService(func(c *cli.Context, svc *rewards.Service) error {
					requests, err := svc.ListAllWithdrawals(c.Context, c.String("status"))
					if err != nil {
						return err
					}
					printWithdrawals(c.App.Writer, requests)
					return nil
				}),
			},
			{
				Name:      "approve",
				Usage:     "approve a request and attach the redeem code",
				ArgsUsage: "<id|reference>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "code", Required: true, Usage: "gift card redeem code"},
					&cli.StringFlag{Name: "note", Usage: "note shown to the requester"},
				},
				Action: r.withService(func(c *cli.Context, svc *rewards.Service) error {
					return resolve(c, svc, model.StatusApproved)
				}),
			},
			{
				Name:      "reject",
				Usage:     "reject a request",
				ArgsUsage: "<id|reference>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "note", Usage: "reason shown to the requester"},
				},
				Action: r.withService(func(c *cli.Context, svc *rewards.Service) error {
					return resolve(c, svc, model.StatusRejected)
				}),
			},
			{
				Name:  "stats",
				Usage: "show dashboard totals",
				Action: r.withService(func(c *cli.Context, svc *rewards.Service) error {
					o, err := svc.Overview(c.Context)
					if err != nil {
						return err
					}
					w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
					fmt.Fprintf(w, "users\t%d\n", o.TotalUsers)
					fmt.Fprintf(w, "pending points\t%d\n", o.PendingPoints)
					fmt.Fprintf(w, "approved\t%d\n", o.ApprovedCount)
					fmt.Fprintf(w, "points in circulation\t%d\n", o.TotalPointsSystem)
					return w.Flush()
				}),
			},
			{
				Name:  "accounts",
				Usage: "list accounts by balance",
				Action: r.withService(func(c *cli.Context, svc *rewards.Service) error {
					accounts, err := svc.ListAccounts(c.Context)
					if err != nil {
						return err
					}
					w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
					fmt.Fprintln(w, "ID\tEMAIL\tPOINTS\tADMIN")
					for _, a := range accounts {
						fmt.Fprintf(w, "%s\t%s\t%d\t%t\n", a.ID, a.Email, a.PointBalance, a.IsAdmin)
					}
					return w.Flush()
				}),
			},
			{
				Name:  "backup",
				Usage: "encrypted database snapshots",
				Subcommands: []*cli.Command{
					{
						Name:   "run",
						Usage:  "take and upload a snapshot now",
						Action: r.withBackups(runBackup),
					},
					{
						Name:   "list",
						Usage:  "list stored snapshots",
						Action: r.withBackups(listBackups),
					},
					{
						Name:      "fetch",
						Usage:     "download and decrypt a snapshot to a file",
						ArgsUsage: "<key> <output.db>",
						Action: r.withBackups(func(c *cli.Context, m *backup.Manager) error {
							if c.NArg() != 2 {
								return errors.New("fetch needs a key and an output path")
							}
							if err := m.Fetch(c.Context, c.Args().Get(0), c.Args().Get(1)); err != nil {
								return err
							}
							fmt.Fprintln(c.App.Writer, "wrote", c.Args().Get(1))
							return nil
						}),
					},
				},
			},
			{
				Name:      "token",
				Usage:     "issue an identity token for local testing",
				ArgsUsage: "<subject>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email"},
					&cli.StringFlag{Name: "name"},
					&cli.DurationFlag{Name: "ttl", Value: 24 * time.Hour},
				},
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return errors.New("token needs exactly one subject")
					}
					cfg, err := config.Load()
					if err != nil {
						return err
					}
					if cfg.JWTSecret == "" {
						return errors.New("EMERALD_JWT_SECRET is not set")
					}
					tok, err := auth.NewVerifier(cfg.JWTSecret).Issue(model.Identity{
						Subject: c.Args().First(),
						Name:    c.String("name"),
						Email:   c.String("email"),
					}, c.Duration("ttl"))
					if err != nil {
						return err
					}
					fmt.Fprintln(c.App.Writer, tok)
					return nil
				},
			},
			{
				Name:  "vapid-keys",
				Usage: "generate a VAPID key pair for web push",
				Action: func(c *cli.Context) error {
					pub, priv, err := push.GenerateVAPIDKeys()
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "EMERALD_VAPID_PUBLIC_KEY=%s\nEMERALD_VAPID_PRIVATE_KEY=%s\n", pub, priv)
					return nil
				},
			},
		},
	}
}

type runner struct {
	opts []rewards.Option
}

func (r runner) open(c *cli.Context) (*app.App, config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, cfg, nil, err
	}
	logger := logging.New(c.App.ErrWriter, cfg.LogLevel, cfg.LogFormat)
	a, err := app.Open(c.Context, cfg, logger, r.opts...)
	return a, cfg, logger, err
}

// withService opens the database for the duration of one command, with the
// same cache and notifiers the server uses.
func (r runner) withService(fn func(c *cli.Context, svc *rewards.Service) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		a, _, _, err := r.open(c)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(c, a.Service)
	}
}

// withBackups opens the database and the snapshot manager for one command.
func (r runner) withBackups(fn func(c *cli.Context, m *backup.Manager) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		a, cfg, logger, err := r.open(c)
		if err != nil {
			return err
		}
		defer a.Close()

		m, err := a.Backups(cfg.Backup, logger)
		if err != nil {
			return err
		}
		return fn(c, m)
	}
}

func runBackup(c *cli.Context, m *backup.Manager) error {
	snap, err := m.Run(c.Context)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "uploaded %s (%d bytes)\n", snap.Key, snap.Size)
	return nil
}

func listBackups(c *cli.Context, m *backup.Manager) error {
	snaps, err := m.List(c.Context)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tBYTES\tCREATED")
	for _, s := range snaps {
		fmt.Fprintf(w, "%s\t%d\t%s\n", s.Key, s.Size, s.CreatedAt.Format(time.DateTime))
	}
	return w.Flush()
}

func resolve(c *cli.Context, svc *rewards.Service, status model.RequestStatus) error {
	if c.NArg() != 1 {
		return fmt.Errorf("%s needs exactly one request id", c.Command.Name)
	}
	id, err := svc.ParseWithdrawalID(c.Context, c.Args().First())
	if err != nil {
		return err
	}

	w, err := svc.ResolveWithdrawal(c.Context, id, rewards.Decision{
		Status:     status,
		RedeemCode: c.String("code"),
		AdminNote:  c.String("note"),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "%s %s (%d points)\n", w.Reference, w.Status, w.PointsRequested)
	return nil
}

func printWithdrawals(out io.Writer, requests []model.WithdrawalRequest) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "REFERENCE\tACCOUNT\tEMAIL\tPOINTS\tAMOUNT\tSTATUS\tCREATED")
	for _, r := range requests {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			r.Reference, r.AccountID, r.ContactEmail, r.PointsRequested,
			r.AmountInCurrency.StringFixed(2), r.Status, r.CreatedAt.Format(time.DateTime))
	}
	w.Flush()
}
