// Command relayctl sends one request to a relay endpoint and prints the reply.
//
//	relayctl --pubsub nats --nats-url nats://localhost:4222 CACHE_LOOKUP '{"guildID":"1","type":"roles"}'
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/drblury/guildrelay/internal/runtime"
	configpkg "github.com/drblury/guildrelay/internal/runtime/config"
	handlerpkg "github.com/drblury/guildrelay/internal/runtime/handlers"
	"github.com/drblury/guildrelay/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/guildrelay/internal/runtime/logging"
	"github.com/drblury/guildrelay/transport"
	_ "github.com/drblury/guildrelay/transport/transports"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "relayctl:", err)
		os.Exit(1)
	}
}

func run() error {
	fs := pflag.NewFlagSet("relayctl", pflag.ExitOnError)
	flags := configpkg.NewFlags(fs)
	timeout := fs.Duration("timeout", 10*time.Second, "how long to wait for the reply")
	nonce := fs.String("nonce", "", "request nonce (random when empty)")
	noReply := fs.Bool("no-reply", false, "publish without waiting for a reply")
	_ = fs.Parse(os.Args[1:])

	if fs.NArg() < 1 {
		return errors.New("usage: relayctl [flags] CHANNEL [JSON]")
	}
	channel := fs.Arg(0)
	var data jsoncodec.RawMessage
	if fs.NArg() > 1 {
		data = jsoncodec.RawMessage(fs.Arg(1))
		var probe any
		if err := jsoncodec.Unmarshal(data, &probe); err != nil {
			return fmt.Errorf("request data is not JSON: %w", err)
		}
	}
	if *nonce == "" {
		*nonce = uuid.NewString()
	}

	cfg, err := configpkg.LoadWithFlags(flags)
	if err != nil {
		return err
	}
	zl, err := loggingpkg.NewZap("warn")
	if err != nil {
		return err
	}
	logger := loggingpkg.NewZapServiceLogger(zl)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	tr, err := transport.Build(ctx, cfg, loggingpkg.NewWatermillAdapter(logger))
	if err != nil {
		return err
	}
	defer func() { _ = tr.Close() }()

	replyChannel, _ := handlerpkg.ReplyChannel(*nonce)
	var replies <-chan *message.Message
	if !*noReply {
		// Subscribe first so a fast reply is not missed.
		replies, err = tr.Subscriber.Subscribe(ctx, replyChannel)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", replyChannel, err)
		}
	}

	if err := runtime.PublishRequest(ctx, tr.Publisher, channel, *nonce, data); err != nil {
		return fmt.Errorf("publish request: %w", err)
	}
	fmt.Fprintf(os.Stderr, "sent %s nonce=%s\n", channel, *nonce)
	if *noReply {
		return nil
	}

	select {
	case msg, ok := <-replies:
		if !ok {
			return errors.New("reply subscription closed")
		}
		msg.Ack()
		fmt.Println(string(msg.Payload))
		return nil
	case <-time.After(*timeout):
		return fmt.Errorf("no reply on %s within %s", replyChannel, *timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
