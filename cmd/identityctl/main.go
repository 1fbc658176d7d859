package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/goliatone/go-errors"
	identity "github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/activitymap"
	"github.com/goliatone/go-identity/repository"
	"github.com/goliatone/go-identity/workflow"
	"github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-print"
	"github.com/prometheus/client_golang/prometheus"
)

const usage = `usage: identityctl [flags] <command> [args]

commands:
  init-state <username>   create the identity state of a known account
  lock <username>         lock an account (see -for)
  unlock <username>       unlock an account
  submit-lock <username>  hand a lock request to the workflow executor
  issue-code <username>   issue a confirmation code
  questions               list the primary security questions
  claims <username>       list the identity claims of an account
`

func main() {
	var (
		configPath = flag.String("config", "identity.yaml", "configuration file")
		dsn        = flag.String("dsn", "file:identity.db?cache=shared", "sqlite dsn")
		tenantID   = flag.Int("tenant", identity.DefaultTenantID, "tenant id")
		domain     = flag.String("domain", identity.DefaultUserStoreDomain, "user store domain")
		users      = flag.String("users", "", "comma separated users known to the local user store")
		lockFor    = flag.Duration("for", 0, "lock duration, zero locks until unlocked")
	)
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	lgr := glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(glog.Debug),
		glog.WithName("identityctl"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(errors.ToSlogAttributes),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, lgr, *configPath, *dsn)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer app.close()

	store := newLocalUserStore(*tenantID, *domain, strings.Split(*users, ","))
	ctx = identity.WithTenantID(ctx, *tenantID)
	ctx = identity.WithActor(ctx, identity.ActorRef{ID: os.Getenv("USER"), Type: "operator"})

	out, err := app.run(ctx, store, *lockFor, flag.Args())
	if err != nil {
		var rich *errors.Error
		if errors.As(err, &rich) {
			fmt.Fprintln(os.Stderr, print.MaybePrettyJSON(rich))
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
	fmt.Println(print.MaybePrettyJSON(out))
}

type app struct {
	engine  *identity.Engine
	closeDB func() error
}

func newApp(ctx context.Context, lgr *glog.BaseLogger, configPath, dsn string) (*app, error) {
	cfg, err := identity.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	repo, db, err := repository.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}

	metrics, err := identity.NewMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	counter, err := workflow.NewDispatchCounter(prometheus.DefaultRegisterer)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	dispatcher := workflow.NewDispatcher(
		workflow.WithDispatchCounter(counter),
		workflow.WithDispatcherLoggerProvider(lgr),
	)
	dispatcher.Register(workflow.NewRemoteExecutor(cfg.RemoteExecutorParams(),
		workflow.WithExecutorLoggerProvider(lgr),
	))

	activityLogger := lgr.GetLogger("activity")
	sink := activitymap.Sink(func(_ context.Context, record activitymap.Normalized) error {
		activityLogger.Info("activity", "verb", record.Verb, "object", record.ObjectID, "actor", record.ActorID)
		return nil
	})

	opts, err := identity.ConfigOptions(cfg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	opts = append(opts,
		identity.WithLoggerProvider(lgr),
		identity.WithMetrics(metrics),
		identity.WithActivitySink(sink),
		identity.WithWorkflowDispatcher(dispatcher),
	)

	return &app{
		engine:  identity.NewEngine(repo, opts...),
		closeDB: db.Close,
	}, nil
}

func (a *app) close() {
	_ = a.closeDB()
}

// initState creates the identity state of username. An existing state is
// left untouched.
func (a *app) initState(ctx context.Context, users identity.UserStore, username string) (*identity.IdentityState, error) {
	known, err := users.IsExistingUser(ctx, identity.AddDomainToName(username, users.DomainName()))
	if err != nil {
		return nil, err
	}
	if !known {
		return nil, fmt.Errorf("user %q is not in the local user store", username)
	}

	_, err = a.engine.GetUserIdentityClaims(ctx, username, users)
	switch {
	case err == nil:
		return nil, fmt.Errorf("identity state for %q already exists", username)
	case !identity.IsKind(err, identity.ErrNoIdentityRecord):
		return nil, err
	}

	return a.engine.StoreUserIdentityState(ctx, &identity.IdentityState{Username: username}, users)
}

func (a *app) run(ctx context.Context, users identity.UserStore, lockFor time.Duration, args []string) (any, error) {
	command, rest := args[0], args[1:]

	username := ""
	if len(rest) > 0 {
		username = rest[0]
	}
	needUser := func() error {
		if username == "" {
			return fmt.Errorf("%s needs a username", command)
		}
		return nil
	}

	switch command {
	case "init-state":
		if err := needUser(); err != nil {
			return nil, err
		}
		return a.initState(ctx, users, username)
	case "lock":
		if err := needUser(); err != nil {
			return nil, err
		}
		return a.engine.LockAccount(ctx, username, users,
			identity.WithUnlockAfter(lockFor),
			identity.WithTransitionReason("identityctl"),
		)
	case "unlock":
		if err := needUser(); err != nil {
			return nil, err
		}
		return a.engine.UnlockAccount(ctx, username, users, identity.WithTransitionReason("identityctl"))
	case "submit-lock":
		if err := needUser(); err != nil {
			return nil, err
		}
		id, err := a.engine.SubmitLockRequest(ctx, username, users, identity.LockStatusLocked)
		return map[string]string{"request_id": id}, err
	case "issue-code":
		if err := needUser(); err != nil {
			return nil, err
		}
		var resp *identity.IssueRecoveryResponse
		err := identity.NewIssueRecoveryHandler(a.engine).Execute(ctx, identity.IssueRecoveryMessage{
			Username:   username,
			TenantID:   users.TenantID(),
			Kind:       identity.MetadataConfirmationCode,
			OnResponse: func(r *identity.IssueRecoveryResponse) { resp = r },
		})
		return resp, err
	case "questions":
		return a.engine.GetPrimaryQuestions(ctx, users.TenantID())
	case "claims":
		if err := needUser(); err != nil {
			return nil, err
		}
		return a.engine.GetUserIdentityClaims(ctx, username, users)
	default:
		return nil, fmt.Errorf("unknown command %q", command)
	}
}
