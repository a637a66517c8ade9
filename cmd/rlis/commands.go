package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	jsoniter "github.com/json-iterator/go"
	replayservice "github.com/samfeast/RLI-RLIS-v2/app/modules/replays/application"
	replaytypes "github.com/samfeast/RLI-RLIS-v2/app/modules/replays/domain/types"
	replayexport "github.com/samfeast/RLI-RLIS-v2/app/modules/replays/infrastructure/export"
	replaytime "github.com/samfeast/RLI-RLIS-v2/app/modules/replays/time_utils"
	"github.com/urfave/cli/v2"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var timeParser = replaytime.NewTimeParser()

// gameIDFlags are shared by the commands that address one series, either by id
// or by the orgs, tier and mode it was played in.
func gameIDFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Int64Flag{Name: "game-id", Usage: "series game id"},
		&cli.StringFlag{Name: "org-a", Usage: "first org, with --org-b, --tier and --mode instead of --game-id"},
		&cli.StringFlag{Name: "org-b", Usage: "second org"},
		&cli.StringFlag{Name: "tier", Usage: "tier name"},
		&cli.IntFlag{Name: "mode", Usage: "players per side"},
	}
}

func resolveGameID(c *cli.Context, env *cliEnv) (int64, error) {
	if id := c.Int64("game-id"); id != 0 {
		return id, nil
	}
	if c.String("org-a") == "" || c.String("org-b") == "" || c.String("tier") == "" || c.Int("mode") == 0 {
		return 0, fmt.Errorf("either --game-id or all of --org-a, --org-b, --tier and --mode are required")
	}
	league, err := env.league(c)
	if err != nil {
		return 0, err
	}
	return league.GameID(c.String("org-a"), c.String("org-b"), c.String("tier"), c.Int("mode"))
}

func parseTimeFlag(c *cli.Context, name string) (*time.Time, error) {
	v := c.String(name)
	if v == "" {
		return nil, nil
	}
	t, err := timeParser.Parse(v, c.String("tz"), replaytime.RealClock{})
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", name, err)
	}
	return &t, nil
}

func altPlayerFromFlags(c *cli.Context) *replaytypes.PlayerIdentity {
	if c.String("alt-name") == "" && c.String("alt-id") == "" {
		return nil
	}
	return &replaytypes.PlayerIdentity{
		Name:       c.String("alt-name"),
		Platform:   c.String("alt-platform"),
		PlatformID: c.String("alt-id"),
	}
}

var altPlayerFlags = []cli.Flag{
	&cli.StringFlag{Name: "alt-name", Usage: "stand-in player name"},
	&cli.StringFlag{Name: "alt-platform", Value: "epic", Usage: "stand-in platform"},
	&cli.StringFlag{Name: "alt-id", Usage: "stand-in platform id"},
}

func enqueueCommand(env *cliEnv) *cli.Command {
	flags := append(gameIDFlags(),
		&cli.StringFlag{Name: "replay", Usage: "replay id or link; skips the archive search"},
		&cli.StringFlag{Name: "start", Usage: `window start, e.g. "2025-03-14 19:00" or "yesterday at 7pm"`},
		&cli.StringFlag{Name: "end", Usage: "window end"},
		&cli.StringFlag{Name: "tz", Usage: "timezone for --start and --end (abbreviation or IANA name)"},
		&cli.StringFlag{Name: "winner", Usage: "winning org override, with --loser"},
		&cli.StringFlag{Name: "loser", Usage: "losing org override"},
	)
	flags = append(flags, altPlayerFlags...)

	return &cli.Command{
		Name:  "enqueue",
		Usage: "queue a reported series for reconciliation",
		Flags: flags,
		Action: func(c *cli.Context) error {
			gameID, err := resolveGameID(c, env)
			if err != nil {
				return err
			}
			start, err := parseTimeFlag(c, "start")
			if err != nil {
				return err
			}
			end, err := parseTimeFlag(c, "end")
			if err != nil {
				return err
			}
			svc, err := env.service(c)
			if err != nil {
				return err
			}
			job, err := svc.Enqueue(c.Context, replayservice.EnqueueRequest{
				GameID:     gameID,
				ReplayID:   c.String("replay"),
				Start:      start,
				End:        end,
				WinningOrg: c.String("winner"),
				LosingOrg:  c.String("loser"),
				AltPlayer:  altPlayerFromFlags(c),
			})
			if err != nil {
				return err
			}
			return printJSON(c.App.Writer, job)
		},
	}
}

func reportCommand(env *cliEnv) *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{Name: "winner", Required: true, Usage: "winning org"},
		&cli.StringFlag{Name: "loser", Required: true, Usage: "losing org"},
		&cli.StringFlag{Name: "tier", Required: true},
		&cli.IntFlag{Name: "mode", Required: true, Usage: "players per side"},
		&cli.IntFlag{Name: "loser-wins", Value: -1, Usage: "games won by the losing org, if reported"},
		&cli.IntFlag{Name: "played-previously", Usage: "series the two orgs played earlier the same day"},
		&cli.StringSliceFlag{Name: "winning-player", Usage: "winning roster name (repeatable)"},
		&cli.StringSliceFlag{Name: "losing-player", Usage: "losing roster name (repeatable)"},
		&cli.StringFlag{Name: "reported-at", Usage: "when the result was reported, defaults to now"},
		&cli.StringFlag{Name: "tz", Usage: "timezone for --reported-at"},
	}
	flags = append(flags, altPlayerFlags...)

	return &cli.Command{
		Name:  "report",
		Usage: "record a reported series result and queue it",
		Flags: flags,
		Action: func(c *cli.Context) error {
			reportedAt, err := parseTimeFlag(c, "reported-at")
			if err != nil {
				return err
			}
			report := replayservice.SeriesReport{
				WinningOrg:       c.String("winner"),
				LosingOrg:        c.String("loser"),
				Tier:             c.String("tier"),
				Mode:             c.Int("mode"),
				PlayedPreviously: c.Int("played-previously"),
				WinningPlayers:   c.StringSlice("winning-player"),
				LosingPlayers:    c.StringSlice("losing-player"),
				AltPlayer:        altPlayerFromFlags(c),
			}
			if n := c.Int("loser-wins"); n >= 0 {
				report.GamesWonByLoser = &n
			}
			if reportedAt != nil {
				report.ReportedAt = *reportedAt
			}

			svc, err := env.service(c)
			if err != nil {
				return err
			}
			job, err := svc.ReportSeries(c.Context, report)
			if err != nil {
				return err
			}
			return printJSON(c.App.Writer, job)
		},
	}
}

func reconcileCommand(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:  "reconcile",
		Usage: "process the next queued job",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "all", Usage: "keep going until the queue is empty or the archive rate limits"},
		},
		Action: func(c *cli.Context) error {
			svc, err := env.service(c)
			if err != nil {
				return err
			}
			for {
				report, err := svc.ReconcileNext(c.Context)
				if err != nil {
					return err
				}
				if err := printJSON(c.App.Writer, report); err != nil {
					return err
				}
				if !c.Bool("all") || report.Outcome == replaytypes.OutcomeQueueEmpty || report.Outcome == replaytypes.OutcomeRateLimited {
					return nil
				}
			}
		},
	}
}

func publishCommand(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:  "publish",
		Usage: "publish the oldest reconciled series",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "all", Usage: "publish every pending series"},
		},
		Action: func(c *cli.Context) error {
			svc, err := env.service(c)
			if err != nil {
				return err
			}
			for {
				summary, err := svc.PublishNext(c.Context)
				if err != nil {
					return err
				}
				if summary == nil {
					fmt.Fprintln(c.App.Writer, "nothing to publish")
					return nil
				}
				if err := printJSON(c.App.Writer, summary); err != nil {
					return err
				}
				if !c.Bool("all") {
					return nil
				}
			}
		},
	}
}

func queueCommand(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:  "queue",
		Usage: "inspect the reconciliation queue",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "list pending jobs, next to run first",
				Action: func(c *cli.Context) error {
					svc, err := env.service(c)
					if err != nil {
						return err
					}
					jobs, err := svc.ListQueue(c.Context)
					if err != nil {
						return err
					}
					return writeQueue(c.App.Writer, jobs)
				},
			},
		},
	}
}

func writeQueue(w io.Writer, jobs []replaytypes.Job) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PRIORITY\tGAME\tSOURCE\tDETAIL\tENQUEUED")
	for _, job := range jobs {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\n",
			job.Priority, job.GameID, job.Source(), jobDetail(job), job.EnqueuedAt.UTC().Format(time.RFC3339))
	}
	return tw.Flush()
}

func jobDetail(job replaytypes.Job) string {
	var parts []string
	if job.ReplayID != nil {
		parts = append(parts, "replay="+*job.ReplayID)
	}
	if job.Start != nil && job.End != nil {
		parts = append(parts, fmt.Sprintf("window=%s..%s", job.Start.Format(time.RFC3339), job.End.Format(time.RFC3339)))
	}
	if job.WinningOrg != nil && job.LosingOrg != nil {
		parts = append(parts, fmt.Sprintf("override=%s>%s", *job.WinningOrg, *job.LosingOrg))
	}
	if job.AltPlayer != nil {
		parts = append(parts, "alt="+job.AltPlayer.Name)
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, " ")
}

func exportCommand(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "write verified game and player stats to an xlsx workbook",
		Flags: []cli.Flag{
			&cli.Int64SliceFlag{Name: "game-id", Usage: "series to export (repeatable)"},
			&cli.StringFlag{Name: "tier", Usage: "export every series of this tier"},
			&cli.StringFlag{Name: "out", Value: "stats.xlsx", Usage: "output file, - for stdout"},
		},
		Action: func(c *cli.Context) error {
			ids := c.Int64Slice("game-id")
			if len(ids) == 0 && c.String("tier") == "" {
				return fmt.Errorf("--game-id or --tier is required")
			}
			svc, err := env.service(c)
			if err != nil {
				return err
			}
			export, err := svc.ExportStats(c.Context, c.String("tier"), ids)
			if err != nil {
				return err
			}

			out := c.String("out")
			if out == "-" {
				return replayexport.WriteWorkbook(c.App.Writer, export)
			}
			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", out, err)
			}
			if err := replayexport.WriteWorkbook(f, export); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(c.App.ErrWriter, "wrote %d games and %d player rows to %s\n", len(export.Games), len(export.Players), out)
			return nil
		},
	}
}

func playersCommand(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:  "players",
		Usage: "manage the player registry",
		Subcommands: []*cli.Command{
			{
				Name:  "add",
				Usage: "register a stand-in so the engine can name them",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "discord-id", Required: true},
					&cli.StringFlag{Name: "name", Required: true},
					&cli.StringFlag{Name: "platform", Value: "epic"},
					&cli.StringFlag{Name: "platform-id", Required: true},
					&cli.StringFlag{Name: "tier"},
					&cli.StringFlag{Name: "org"},
				},
				Action: func(c *cli.Context) error {
					svc, err := env.service(c)
					if err != nil {
						return err
					}
					if err := svc.RegisterSub(c.Context, replayservice.SubRegistration{
						DiscordID:  c.String("discord-id"),
						Name:       c.String("name"),
						Platform:   c.String("platform"),
						PlatformID: c.String("platform-id"),
						Tier:       c.String("tier"),
						Org:        c.String("org"),
					}); err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "registered %s\n", c.String("name"))
					return nil
				},
			},
		},
	}
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
