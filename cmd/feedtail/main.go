package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ironflex/backend/internal/feed"
	"ironflex/backend/internal/feed/client"
	"ironflex/backend/pkg/logger"
)

// printing echoes every live event before the reconciler applies it
type printing struct {
	inner feed.FeedSubscription
}

func (p printing) Subscribe(ctx context.Context, handle func(feed.Event)) (func(), error) {
	return p.inner.Subscribe(ctx, func(ev feed.Event) {
		switch ev.Type {
		case feed.EventInsert:
			if ev.Message != nil {
				printMessage(*ev.Message)
			}
		case feed.EventDelete:
			fmt.Printf("-- deleted %s\n", ev.ID)
		}
		handle(ev)
	})
}

func printMessage(m feed.Message) {
	media := ""
	if len(m.MediaRefs) > 0 {
		media = fmt.Sprintf(" [%d media]", len(m.MediaRefs))
	}
	reply := ""
	if m.ReplyRef != nil {
		reply = fmt.Sprintf(" (re %s: %q)", m.ReplyRef.AuthorName, m.ReplyRef.Excerpt)
	}
	fmt.Printf("%s %-16s %s%s%s\n", m.CreatedAt.Local().Format("15:04:05"), m.AuthorName, m.Body, reply, media)
}

func main() {
	server := flag.String("server", "http://localhost:8081", "Base URL of the backend")
	token := flag.String("token", os.Getenv("IRONFLEX_TOKEN"), "Bearer token (defaults to $IRONFLEX_TOKEN)")
	send := flag.String("send", "", "Post a message and exit")
	media := flag.String("media", "", "Comma-separated media refs to attach with -send")
	pages := flag.Int("history", 0, "Number of older pages to load before tailing")
	pageSize := flag.Int("page-size", feed.DefaultPageSize, "Messages per page")
	follow := flag.Bool("follow", true, "Keep tailing live events")
	verbose := flag.Bool("v", false, "Log client diagnostics")
	flag.Parse()

	logCfg := logger.DefaultConfig()
	logCfg.JSON = false
	if !*verbose {
		logCfg.Level = string(logger.LevelError)
	}
	log := logger.New(logCfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := client.NewStore(*server, client.StoreOptions{Token: *token, Logger: log})

	// anonymous readers never send, so they need no author
	var me feed.Author
	if *token != "" {
		var err error
		if me, err = store.Me(ctx); err != nil {
			fatal(fmt.Errorf("resolve account: %w", err))
		}
	} else if *send != "" {
		fatal(errors.New("-send requires -token"))
	}
	rec := feed.NewReconciler(store, me, feed.WithPageSize(*pageSize))

	if *send != "" {
		composer := &feed.Composer{}
		composer.SetText(*send)
		for _, ref := range strings.Split(*media, ",") {
			if ref = strings.TrimSpace(ref); ref == "" {
				continue
			}
			if err := composer.AttachMedia(ref); err != nil {
				fatal(err)
			}
		}
		msg, err := rec.Send(ctx, composer)
		if err != nil {
			fatal(err)
		}
		fmt.Printf("sent %s\n", msg.ID)
		return
	}

	if err := rec.InitialLoad(ctx); err != nil {
		fatal(err)
	}
	for i := 0; i < *pages && rec.HasMoreOlder(); i++ {
		if _, err := rec.LoadOlder(ctx); err != nil {
			fatal(err)
		}
	}
	for _, m := range rec.Messages() {
		printMessage(m)
	}
	if !*follow {
		return
	}

	wsURL := strings.Replace(strings.TrimRight(*server, "/"), "http", "ws", 1) + "/api/v1/ws/conversation"
	sub := client.NewSubscription(wsURL, client.SubscriptionOptions{
		Token:  *token,
		Logger: log,
		OnReconnect: func() {
			// events may have been missed while disconnected
			reloadCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			if err := rec.InitialLoad(reloadCtx); err != nil {
				log.LogError(err, "reload after reconnect failed")
			}
		},
	})

	release, err := rec.Attach(ctx, printing{inner: sub})
	if err != nil {
		fatal(err)
	}
	defer release()

	<-ctx.Done()
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "feedtail:", err)
	os.Exit(1)
}
