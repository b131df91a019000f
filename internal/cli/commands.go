// Package cli implements the interactive operator console: live session
// and room tables, moderation commands, and config updates.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"

	"github.com/bluefox-project/bluefox/internal/config"
	"github.com/bluefox-project/bluefox/internal/db"
	"github.com/bluefox-project/bluefox/internal/events"
	"github.com/bluefox-project/bluefox/internal/lobby"
	"github.com/bluefox-project/bluefox/internal/network"
)

// CLI provides an interactive command-line interface.
type CLI struct {
	cfg      *config.Config
	eventBus *events.EventBus
	svc      *lobby.Service
	conns    *network.ConnectionRegistry
	mdb      *db.ModerationDatabase
}

// NewCLI creates a new CLI handler.
func NewCLI(cfg *config.Config, eventBus *events.EventBus, svc *lobby.Service,
	conns *network.ConnectionRegistry, mdb *db.ModerationDatabase) *CLI {
	return &CLI{
		cfg:      cfg,
		eventBus: eventBus,
		svc:      svc,
		conns:    conns,
		mdb:      mdb,
	}
}

// Start begins the interactive CLI loop.
func (c *CLI) Start(ctx context.Context) {
	fmt.Println("\nBluefox CLI ready. Type 'help' for available commands.")
	fmt.Println("─────────────────────────────────────────────────────")

	reader := newLineReader()
	defer reader.Close()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := reader.ReadLine("bluefox> ")
		if err != nil {
			if err == io.EOF {
				return
			}
			continue
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		if err := c.execute(ctx, cmd, args); err != nil {
			fmt.Printf("Error: %v\n", err)
		}
	}
}

// execute processes a single CLI command.
func (c *CLI) execute(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help", "h", "?":
		c.printHelp()
	case "status", "s":
		c.printStatus()
	case "sessions":
		c.printSessions()
	case "rooms":
		c.printRooms()
	case "kick":
		return c.cmdKick(ctx, args)
	case "close":
		return c.cmdClose(ctx, args)
	case "bans":
		return c.cmdBans()
	case "ban":
		return c.cmdBan(ctx, args)
	case "unban":
		return c.cmdUnban(ctx, args)
	case "setconfig":
		return c.cmdSetConfig(args)
	case "quit", "exit", "q":
		fmt.Println("Shutting down Bluefox...")
		c.eventBus.Emit(ctx, events.Event{
			Type:   events.EventShutdown,
			Source: "cli",
		})
	default:
		fmt.Printf("Unknown command: '%s'. Type 'help' for available commands.\n", cmd)
	}
	return nil
}

// printHelp displays available commands.
func (c *CLI) printHelp() {
	fmt.Println("\n╔══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                     Bluefox CLI Commands                     ║")
	fmt.Println("╠══════════════════════════════════════════════════════════════╣")
	fmt.Println("║  status              Show server counters                    ║")
	fmt.Println("║  sessions            List live sessions                      ║")
	fmt.Println("║  rooms               List rooms                              ║")
	fmt.Println("║  kick <session> [r]  Force-disconnect a session              ║")
	fmt.Println("║  close <room> [r]    Force-close a room                      ║")
	fmt.Println("║  bans                List bans                               ║")
	fmt.Println("║  ban <prov> <id> [r] Ban an account                          ║")
	fmt.Println("║  unban <prov> <id>   Lift a ban                              ║")
	fmt.Println("║  setconfig <k> <v>   Update a configuration value            ║")
	fmt.Println("║  quit                Shutdown Bluefox                        ║")
	fmt.Println("║  help                Show this help message                  ║")
	fmt.Println("╚══════════════════════════════════════════════════════════════╝")
	fmt.Println()
}

// printStatus shows the top-level counters.
func (c *CLI) printStatus() {
	srv := c.cfg.GetServerData()
	fmt.Printf("\n  Server:          %s (%s)\n", srv.Name, srv.Region)
	fmt.Printf("  TCP port:        %d\n", srv.TCPPort)
	fmt.Printf("  HTTP port:       %d\n", srv.HTTPPort)
	fmt.Printf("  Sessions:        %d\n", c.svc.Sessions().Count())
	fmt.Printf("  TCP connections: %d\n", c.conns.Count())
	fmt.Printf("  Rooms:           %d\n", c.svc.Rooms().Count())
	fmt.Println()
}

// printSessions displays the session table.
func (c *CLI) printSessions() {
	fmt.Println()

	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"Session", "Player", "Client IP", "Room", "Queue", "Idle"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)

	for _, sess := range c.svc.Sessions().Snapshot() {
		player := "-"
		if p := sess.Player(); p != nil {
			player = p.String()
		}
		room := "-"
		if id := sess.RoomID(); id != 0 {
			room = fmt.Sprintf("%d", id)
		}
		idle := time.Since(sess.LastActivity()).Round(time.Second)

		tw.Append([]string{
			sess.ID(),
			player,
			sess.ClientIP(),
			room,
			fmt.Sprintf("%d", sess.QueueLen()),
			idle.String(),
		})
	}

	tw.Render()
	fmt.Println()
}

// printRooms displays the room table.
func (c *CLI) printRooms() {
	fmt.Println()

	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"ID", "Name", "Group", "State", "Users", "Ready", "Owner"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)

	for _, rm := range c.svc.Rooms().Snapshot() {
		info := rm.Info()
		tw.Append([]string{
			fmt.Sprintf("%d", info.ID),
			info.Name,
			info.GroupID,
			info.State.String(),
			fmt.Sprintf("%d/%d", info.UserCount, info.MaxUsers),
			fmt.Sprintf("%d", info.ReadyCount),
			info.Owner,
		})
	}

	tw.Render()
	fmt.Println()
}

func (c *CLI) cmdKick(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: kick <session_id> [reason]")
	}
	sessionID := args[0]
	reason := strings.Join(args[1:], " ")

	if !c.svc.KickSession(ctx, sessionID, reason) {
		return fmt.Errorf("session not found: %s", sessionID)
	}
	c.conns.Unregister(sessionID)

	log.Info().Str("session", sessionID).Msg("CLI: session kicked")
	fmt.Printf("Session %s kicked\n", sessionID)
	return nil
}

func (c *CLI) cmdClose(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: close <room_id> [reason]")
	}
	roomID, err := strconv.ParseInt(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid room id: %s", args[0])
	}
	reason := strings.Join(args[1:], " ")

	if !c.svc.CloseRoom(ctx, int32(roomID), reason) {
		return fmt.Errorf("room not found: %d", roomID)
	}

	log.Info().Int64("room", roomID).Msg("CLI: room closed")
	fmt.Printf("Room %d closed\n", roomID)
	return nil
}

func (c *CLI) cmdBans() error {
	bans, err := c.mdb.ListBans()
	if err != nil {
		return err
	}
	if len(bans) == 0 {
		fmt.Println("No bans recorded")
		return nil
	}

	fmt.Println()

	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"Provider", "Player", "Reason", "Actor", "Created", "Expires"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)

	for _, b := range bans {
		expires := "never"
		if b.ExpiresAt != nil {
			expires = b.ExpiresAt.Format(time.RFC3339)
		}
		tw.Append([]string{
			b.Provider,
			b.PlayerID,
			b.Reason,
			b.Actor,
			b.CreatedAt.Format(time.RFC3339),
			expires,
		})
	}

	tw.Render()
	fmt.Println()
	return nil
}

func (c *CLI) cmdBan(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: ban <provider> <player_id> [reason]")
	}
	provider, playerID := args[0], args[1]
	reason := strings.Join(args[2:], " ")

	if err := c.mdb.AddBan(provider, playerID, reason, "cli", nil); err != nil {
		return err
	}

	c.eventBus.Emit(ctx, events.Event{
		Type:   events.EventBanAdded,
		Source: "cli",
		Payload: events.ModerationPayload{
			Target: provider + ":" + playerID,
			Reason: reason,
			Actor:  "cli",
		},
	})

	fmt.Printf("Banned %s:%s\n", provider, playerID)
	return nil
}

func (c *CLI) cmdUnban(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: unban <provider> <player_id>")
	}
	provider, playerID := args[0], args[1]

	removed, err := c.mdb.RemoveBan(provider, playerID)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("no ban found for %s:%s", provider, playerID)
	}

	c.eventBus.Emit(ctx, events.Event{
		Type:   events.EventBanRemoved,
		Source: "cli",
		Payload: events.ModerationPayload{
			Target: provider + ":" + playerID,
			Actor:  "cli",
		},
	})

	fmt.Printf("Unbanned %s:%s\n", provider, playerID)
	return nil
}

func (c *CLI) cmdSetConfig(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: setconfig <key> <value>")
	}

	key := args[0]
	value := strings.Join(args[1:], " ")

	if err := c.cfg.UpdateServerField(key, value); err != nil {
		return err
	}

	if err := c.cfg.Save(); err != nil {
		return err
	}

	fmt.Printf("Config updated: %s = %s\n", key, value)
	return nil
}

// lineReader is a simple cross-platform line reader.
type lineReader struct {
	scanner *bufio.Scanner
}

func newLineReader() *lineReader {
	return &lineReader{scanner: bufio.NewScanner(os.Stdin)}
}

func (lr *lineReader) ReadLine(prompt string) (string, error) {
	fmt.Print(prompt)
	if !lr.scanner.Scan() {
		if err := lr.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return lr.scanner.Text(), nil
}

func (lr *lineReader) Close() error {
	return nil
}
