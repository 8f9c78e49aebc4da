// Command chatctl runs operator tasks directly against the database.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/Harsh4r0ra/chat-cli/internal/backend"
	"github.com/Harsh4r0ra/chat-cli/internal/config"
	"github.com/Harsh4r0ra/chat-cli/internal/db"
	clog "github.com/Harsh4r0ra/chat-cli/internal/log"
	"github.com/Harsh4r0ra/chat-cli/internal/realtime"
	"github.com/Harsh4r0ra/chat-cli/internal/service"

	"github.com/fatih/color"
)

var (
	okColor   = color.New(color.FgGreen)
	errColor  = color.New(color.FgRed, color.Bold)
	headColor = color.New(color.FgCyan, color.Bold)
	warnColor = color.New(color.FgYellow)
)

const usage = `usage: chatctl <command> [args]

commands:
  setup-admin <email>                 make the account with this email an admin
  fix-profiles                        create missing user profiles
  seed-rooms                          insert the default rooms
  stats                               print user and message counts
  users                               list user profiles
  block <user-id> [reason]            block a user
  unblock <user-id>                   unblock a user
  timeout <user-id> <seconds> <reason>
  untimeout <user-id>
  create-room [-private] [-description d] <name> <display name>
  delete-room -yes <name>
  grant [-write] [-revoke] <username> <room>
  cleanup [-hours n]                  delete messages older than n hours`

var errUsage = errors.New(usage)

func main() {
	cfg := config.Load()
	clog.Init(cfg.Env, cfg.LogFile)
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	gdb, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		errColor.Fprintln(os.Stderr, "db connect:", err)
		os.Exit(1)
	}
	if err := db.Migrate(gdb); err != nil {
		errColor.Fprintln(os.Stderr, "db migrate:", err)
		os.Exit(1)
	}
	var store backend.Store = db.NewStore(gdb)

	// running servers see the changes when they share a bridge
	broker := realtime.NewBroker()
	defer broker.Close()
	attachBridge(cfg, broker, os.Stderr)
	store = realtime.Notify(store, broker)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := run(ctx, service.NewAdminConsole(store), os.Stdout, os.Args[1:]); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, usage)
			os.Exit(2)
		}
		errColor.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// attachBridge connects broker to the configured bridge. A failure is reported
// on w and the command still runs, but running servers will not see its
// changes until they reload.
func attachBridge(cfg config.Config, broker *realtime.Broker, w io.Writer) bool {
	var (
		b   realtime.Bridge
		err error
	)
	switch cfg.RealtimeBroker {
	case "redis":
		b, err = realtime.NewRedisBridge(cfg.RedisURL)
	case "nats":
		b, err = realtime.NewNATSBridge(cfg.NATSURL)
	default:
		return true
	}
	if err != nil {
		warnColor.Fprintf(w, "warning: %s bridge unavailable, running servers will not be notified: %v\n", cfg.RealtimeBroker, err)
		return false
	}
	broker.Attach(b)
	return true
}

func run(ctx context.Context, admin *service.AdminConsole, out io.Writer, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]
	need := func(n int) error {
		if len(rest) < n {
			return errUsage
		}
		return nil
	}

	switch cmd {
	case "setup-admin":
		if err := need(1); err != nil {
			return err
		}
		p, err := admin.PromoteEmail(ctx, rest[0])
		if err != nil {
			return err
		}
		okColor.Fprintf(out, "%s (%s) is now an admin\n", p.Username, p.Email)

	case "fix-profiles":
		n, err := admin.FixProfiles(ctx)
		if err != nil {
			return err
		}
		okColor.Fprintf(out, "created %d missing profiles\n", n)

	case "seed-rooms":
		n, err := admin.SeedRooms(ctx)
		if err != nil {
			return err
		}
		okColor.Fprintf(out, "inserted %d rooms\n", n)

	case "stats":
		st, err := admin.Stats(ctx)
		if err != nil {
			return err
		}
		headColor.Fprintln(out, "Stats")
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintf(tw, "total users\t%d\n", st.TotalUsers)
		fmt.Fprintf(tw, "active users (24h)\t%d\n", st.ActiveUsers)
		fmt.Fprintf(tw, "messages\t%d\n", st.TotalMessages)
		fmt.Fprintf(tw, "blocked users\t%d\n", st.BlockedUsers)
		return tw.Flush()

	case "users":
		users, err := admin.ListProfiles(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		headColor.Fprintln(tw, "ID\tUSERNAME\tEMAIL\tSTATUS")
		now := time.Now()
		for _, u := range users {
			status := "active"
			switch {
			case u.IsBlocked:
				status = "blocked"
			case u.TimedOut(now):
				status = fmt.Sprintf("timed out (%dm)", service.RemainingMinutes(*u.TimeoutUntil, now))
			case u.IsAdmin:
				status = "admin"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", u.ID, u.Username, u.Email, status)
		}
		return tw.Flush()

	case "block":
		if err := need(1); err != nil {
			return err
		}
		p, err := admin.Block(ctx, rest[0], strings.Join(rest[1:], " "))
		if err != nil {
			return err
		}
		okColor.Fprintf(out, "blocked %s\n", p.Username)

	case "unblock":
		if err := need(1); err != nil {
			return err
		}
		p, err := admin.Unblock(ctx, rest[0])
		if err != nil {
			return err
		}
		okColor.Fprintf(out, "unblocked %s\n", p.Username)

	case "timeout":
		if err := need(3); err != nil {
			return err
		}
		secs, err := strconv.Atoi(rest[1])
		if err != nil {
			return fmt.Errorf("seconds: %w", err)
		}
		p, err := admin.Timeout(ctx, rest[0], secs, strings.Join(rest[2:], " "))
		if err != nil {
			return err
		}
		okColor.Fprintf(out, "timed out %s for %d minutes\n", p.Username, secs/60)

	case "untimeout":
		if err := need(1); err != nil {
			return err
		}
		p, err := admin.RemoveTimeout(ctx, rest[0])
		if err != nil {
			return err
		}
		okColor.Fprintf(out, "removed timeout of %s\n", p.Username)

	case "create-room":
		fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		private := fs.Bool("private", false, "")
		desc := fs.String("description", "", "")
		if err := fs.Parse(rest); err != nil || fs.NArg() < 2 {
			return errUsage
		}
		room, err := admin.CreateRoom(ctx, service.RoomSpec{
			Name:        fs.Arg(0),
			DisplayName: strings.Join(fs.Args()[1:], " "),
			Description: *desc,
			IsPublic:    !*private,
		}, "")
		if err != nil {
			return err
		}
		okColor.Fprintf(out, "created room #%s\n", room.Name)

	case "delete-room":
		fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		yes := fs.Bool("yes", false, "")
		if err := fs.Parse(rest); err != nil || fs.NArg() < 1 {
			return errUsage
		}
		if err := admin.DeleteRoom(ctx, fs.Arg(0), *yes); err != nil {
			if errors.Is(err, service.ErrConfirmationRequired) {
				return fmt.Errorf("%w: pass -yes to delete #%s", err, fs.Arg(0))
			}
			return err
		}
		okColor.Fprintf(out, "deleted room #%s\n", fs.Arg(0))

	case "grant":
		fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		write := fs.Bool("write", false, "")
		revoke := fs.Bool("revoke", false, "")
		if err := fs.Parse(rest); err != nil || fs.NArg() < 2 {
			return errUsage
		}
		if *revoke {
			if err := admin.RevokeAccess(ctx, fs.Arg(0), fs.Arg(1)); err != nil {
				return err
			}
			okColor.Fprintf(out, "revoked %s from #%s\n", fs.Arg(0), fs.Arg(1))
			return nil
		}
		if _, err := admin.GrantAccess(ctx, fs.Arg(0), fs.Arg(1), true, *write); err != nil {
			return err
		}
		mode := "read"
		if *write {
			mode = "read/write"
		}
		okColor.Fprintf(out, "granted %s %s access to #%s\n", fs.Arg(0), mode, fs.Arg(1))

	case "cleanup":
		fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		hours := fs.Int("hours", 24, "")
		if err := fs.Parse(rest); err != nil || *hours <= 0 {
			return errUsage
		}
		n, err := admin.Cleanup(ctx, time.Duration(*hours)*time.Hour)
		if err != nil {
			return err
		}
		okColor.Fprintf(out, "Cleanup complete: %d old messages deleted.\n", n)

	default:
		return errUsage
	}
	return nil
}
