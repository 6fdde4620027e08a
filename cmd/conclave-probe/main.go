// ABOUTME: Diagnostic tool for watching and poking a conclave multicast group.
// ABOUTME: Usage: conclave-probe [-group addr] [-iface name] listen | send <text...>

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/2389/conclave/internal/config"
	"github.com/2389/conclave/internal/transport"
	"github.com/2389/conclave/internal/wire"
)

func main() {
	group := flag.String("group", config.DefaultGroup, "multicast group host:port")
	iface := flag.String("iface", "", "network interface name or local IP")
	sender := flag.String("as", "probe", "sender id for send")
	turn := flag.Uint("turn", 0, "send as a debate turn with this sequence")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: conclave-probe [flags] listen | send <text...>")
		flag.PrintDefaults()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	var err error
	switch flag.Arg(0) {
	case "listen":
		err = runListen(ctx, *group, *iface)
	case "send":
		text := strings.Join(flag.Args()[1:], " ")
		err = runSend(ctx, *group, *iface, *sender, text, uint32(*turn))
	default:
		err = fmt.Errorf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.Fatal(err)
	}
}

// quietLogger keeps transport chatter off the dump output.
func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func runListen(ctx context.Context, group, iface string) error {
	conn, err := transport.Join(ctx, group, iface, quietLogger())
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Fprintf(os.Stderr, "listening on %s (ctrl-c to stop)\n", group)

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	return conn.ReceiveLoop(ctx, func(payload []byte, from net.Addr) {
		env, err := wire.Decode(payload)
		if err != nil {
			fmt.Printf("%s  malformed %d bytes from %s: %v\n",
				time.Now().Format("15:04:05"), len(payload), from, err)
			return
		}
		line := fmt.Sprintf("%s  %-11s %s",
			env.CreatedAt.Local().Format("15:04:05"), env.Kind, env.SenderID)
		if env.HasTurn {
			line += fmt.Sprintf(" [turn %d]", env.TurnSeq)
		}
		if env.Content != "" {
			line += ": " + env.Content
		}
		fmt.Println(line)
	})
}

func runSend(ctx context.Context, group, iface, sender, text string, turn uint32) error {
	if text == "" {
		return fmt.Errorf("send wants some text")
	}

	conn, err := transport.Join(ctx, group, iface, quietLogger())
	if err != nil {
		return err
	}
	defer conn.Close()

	var env wire.Envelope
	if turn > 0 {
		env = wire.NewDebateTurn(sender, text, turn)
	} else {
		env = wire.NewChat(sender, text)
	}
	payload, err := wire.Encode(env)
	if err != nil {
		return err
	}
	if err := conn.Send(payload); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "sent %s as %s (%d bytes)\n", env.Kind, sender, len(payload))
	return nil
}
