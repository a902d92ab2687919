package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"runtime/debug"

	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog"

	"github.com/fitsession/fitsession-go/auth"
	"github.com/fitsession/fitsession-go/credstore"
	"github.com/fitsession/fitsession-go/credstore/filekv"
	"github.com/fitsession/fitsession-go/credstore/rediskv"
	"github.com/fitsession/fitsession-go/internal/config"
	"github.com/fitsession/fitsession-go/pipeline"
	"github.com/fitsession/fitsession-go/transport"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatalf("Error: %s\n", err)
	}
}

func run(args []string) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	displayAppname(c.GetAppName())

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	if c.GetEnv() != "DEV" {
		logger = logger.Level(zerolog.WarnLevel)
	}

	ctx := context.Background()

	kv, err := openBackend(ctx, c)
	if err != nil {
		return fmt.Errorf("open credential backend: %w", err)
	}
	store := credstore.New(kv)

	transportClient := transport.New(
		c.GetAPIBaseURL(),
		transport.WithTimeout(c.GetRequestTimeout()),
		transport.WithLogger(logger),
	)

	pipe, err := pipeline.New(transportClient, store,
		pipeline.WithLogger(logger),
		pipeline.WithLoginRedirect(func() error {
			fmt.Fprintln(os.Stderr, "Session expired. Run `fitsession login` to sign in again.")
			return nil
		}),
	)
	if err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}

	manager, err := auth.NewManager(pipe, store, auth.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("session manager: %w", err)
	}
	manager.Hydrate(ctx)

	if len(args) == 0 {
		usage()
		return nil
	}
	return dispatch(ctx, manager, args[0], args[1:])
}

func dispatch(ctx context.Context, manager *auth.Manager, command string, args []string) error {
	switch command {
	case "login":
		if len(args) < 2 {
			return errors.New("usage: fitsession login <email> <password> [--remember]")
		}
		remember := len(args) > 2 && args[2] == "--remember"
		user, err := manager.Login(ctx, args[0], args[1], remember)
		if err != nil {
			return fmt.Errorf("login: %w", err)
		}
		fmt.Printf("Logged in as %s (%s)\n", user.Username, user.Email)
		return nil

	case "whoami":
		if !manager.State().Authenticated() {
			return auth.ErrNotAuthenticated
		}
		user, source, err := manager.GetProfile(ctx)
		if err != nil {
			return fmt.Errorf("whoami: %w", err)
		}
		fmt.Printf("%s <%s> role=%s\n", user.Username, user.Email, user.Role)
		if source == auth.ProfileSourceCache {
			fmt.Println("(served from local cache; API unreachable)")
		}
		return nil

	case "logout":
		if err := manager.Logout(ctx); err != nil {
			return fmt.Errorf("logout: %w", err)
		}
		fmt.Println("Logged out")
		return nil

	case "emails":
		emails, err := manager.RememberedEmails(ctx)
		if err != nil {
			return fmt.Errorf("emails: %w", err)
		}
		for _, email := range emails {
			fmt.Println(email)
		}
		return nil

	case "forget-email":
		if len(args) < 1 {
			return errors.New("usage: fitsession forget-email <email>")
		}
		if err := manager.ForgetEmail(ctx, args[0]); err != nil {
			return fmt.Errorf("forget-email: %w", err)
		}
		return nil

	default:
		usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

// openBackend picks the credential backend: Redis when configured, otherwise
// the encrypted local file.
func openBackend(ctx context.Context, c config.Config) (credstore.KV, error) {
	if addr := c.GetRedisAddr(); addr != "" {
		return rediskv.Connect(ctx, addr, c.GetRedisPassword(), c.GetRedisDB())
	}
	return filekv.Open(c.GetCredentialFile(), c.GetCredentialPassphrase())
}

func usage() {
	fmt.Println("Commands: login, whoami, logout, emails, forget-email")
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
