package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"

	"rtsdk/client"
	"rtsdk/common/logger"
	"rtsdk/config"
	"rtsdk/protocol"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(args []string) (config.ClientConfig, string, string, error) {
	var configPath, room, status string
	flags := pflag.NewFlagSet("rtsdk", pflag.ContinueOnError)
	flags.StringVarP(&configPath, "config", "c", "", "config file (yaml, json or toml)")
	flags.String("server", "", "websocket endpoint, e.g. wss://chat.example.com/ws")
	flags.StringVar(&room, "room", "", "thread to join once connected")
	flags.StringVar(&status, "status", "", "presence status to announce (online, do-not-disturb)")
	flags.BoolP("verbose", "v", false, "debug logging")
	if err := flags.Parse(args); err != nil {
		return config.ClientConfig{}, "", "", err
	}

	v := config.NewViper()
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return config.ClientConfig{}, "", "", errors.Wrapf(err, "read config %s", configPath)
		}
	}
	if err := v.BindPFlag("serverUrl", flags.Lookup("server")); err != nil {
		return config.ClientConfig{}, "", "", err
	}
	if err := v.BindPFlag("verbose", flags.Lookup("verbose")); err != nil {
		return config.ClientConfig{}, "", "", err
	}
	cfg, err := config.FromViper(v)
	return cfg, room, status, err
}

func run(args []string) error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "load .env")
	}
	cfg, room, status, err := loadConfig(args)
	if err != nil {
		return err
	}
	log := logger.New(os.Stdout, "[rtsdk]", cfg.Verbose)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider, release, err := buildProvider(ctx, cfg.Credential, log)
	if err != nil {
		return err
	}
	defer release()

	c := client.New(cfg, provider, client.WithLogger(log))
	state := c.Activate(ctx, client.Handlers{
		OnMessage: func(e protocol.MessageEvent) {
			log.Printf("message %s in %s from %s: %s", e.Message.ID, e.ThreadID, e.Message.SenderID, e.Message.Content)
		},
		OnTypingStarted: func(e protocol.TypingEvent) { log.Printf("%s is typing in %s", e.UserID, e.ThreadID) },
		OnTypingStopped: func(e protocol.TypingEvent) { log.Debugf("%s stopped typing in %s", e.UserID, e.ThreadID) },
		OnMessageRead: func(e protocol.ReadEvent) {
			log.Printf("%s read %s", e.UserID, e.MessageID)
		},
		OnThreadUpdated: func(e protocol.ThreadUpdatedEvent) {
			log.Printf("thread %s updated (%d fields)", e.ThreadID, len(e.Changes))
		},
		OnReactionAdded: func(e protocol.ReactionEvent) {
			log.Printf("%s reacted %s to %s", e.UserID, e.Emoji, e.MessageID)
		},
		OnReactionRemoved: func(e protocol.ReactionEvent) {
			log.Printf("%s removed %s from %s", e.UserID, e.Emoji, e.MessageID)
		},
		OnPresenceChanged: func(e protocol.PresenceEvent) { log.Printf("%s is %s", e.UserID, e.Status) },
	})
	dispose := state.On(func(s client.State) {
		if s.Connected {
			log.Printf("connected")
		} else if s.LastError != nil {
			log.Warnf("offline: %s", s.LastError.Error())
		}
	})
	defer dispose()
	if err := state.Get().LastError; errors.Is(err, client.ErrCredentialUnavailable) {
		c.Deactivate()
		return err
	}

	if room != "" {
		c.JoinRoom(room)
	}
	if status != "" {
		presence, err := client.ParsePresenceStatus(status)
		if err != nil {
			c.Deactivate()
			return err
		}
		announce := func(s client.State) {
			if s.Connected {
				c.SendPresenceSet(presence)
			}
		}
		defer state.On(announce)()
		announce(state.Get())
	}

	<-ctx.Done()
	log.Printf("shutting down")
	if room != "" {
		c.LeaveRoom(room)
	}
	c.Deactivate()
	return nil
}
