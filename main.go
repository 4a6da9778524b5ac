package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/config"
	"github.com/go-kratos/kratos/v2/config/file"
	"github.com/go-kratos/kratos/v2/log"
	"golang.org/x/text/language"

	api "github.com/omalloc/ember/api/todo"
	"github.com/omalloc/ember/conf"
	"github.com/omalloc/ember/storage"
	"github.com/omalloc/ember/todo"
	"github.com/omalloc/ember/transport"
)

var (
	flagConf string = "configs/config.yaml"

	id, _   = os.Hostname()
	name    = "ember"
	version = "v0.1.0"
)

func init() {
	flag.StringVar(&flagConf, "conf", "configs/config.yaml", "config path, eg: -conf config.yaml")
}

func main() {
	flag.Parse()

	c := config.New(config.WithSource(file.NewSource(flagConf)))
	defer c.Close()

	if err := c.Load(); err != nil {
		panic(err)
	}

	var bc conf.Bootstrap
	if err := c.Scan(&bc); err != nil {
		panic(err)
	}

	logger := newLogger(&bc.Logging)
	log.SetLogger(logger)

	app, cleanup, err := newApp(&bc, logger)
	if err != nil {
		panic(err)
	}
	defer cleanup()

	if err := app.Run(); err != nil {
		panic(err)
	}
}

func newLogger(c *conf.Logging) log.Logger {
	kv := []any{
		"ts", log.Timestamp(time.DateTime),
		"service.id", id,
		"service.name", name,
		"service.version", version,
	}
	if c.Caller {
		kv = append(kv, "caller", log.DefaultCaller)
	}

	logger := log.With(log.NewStdLogger(os.Stdout), kv...)
	if c.Level != "" {
		logger = log.NewFilter(logger, log.FilterLevel(log.ParseLevel(c.Level)))
	}
	return logger
}

func newApp(bc *conf.Bootstrap, logger log.Logger) (*kratos.App, func(), error) {
	kv, err := storage.New(&bc.Storage)
	if err != nil {
		return nil, nil, err
	}

	codec, err := todo.CodecByName(bc.Storage.Codec)
	if err != nil {
		_ = kv.Close()
		return nil, nil, err
	}

	locale, err := language.Parse(bc.Store.Locale)
	if err != nil {
		locale = language.Und
	}

	helper := log.NewHelper(logger)
	store, err := todo.New(kv,
		todo.WithCodec(codec),
		todo.WithKey(bc.Storage.Key),
		todo.WithDeleteDelay(bc.Store.DeleteDelayDuration()),
		todo.WithLocale(locale),
		todo.WithLogger(logger),
		todo.WithCommitHook(func(res api.Result, err error) {
			if err != nil {
				helper.Warnf("deletion committed in memory only (%d tasks): %v", len(res.Tasks), err)
			}
		}),
	)
	if err != nil {
		_ = kv.Close()
		return nil, nil, err
	}

	httpSrv := transport.NewHTTPServer(transport.Option{
		Addr:    bc.Server.HTTP.Addr,
		Timeout: bc.Server.HTTP.TimeoutDuration(),
		Logger:  logger,
	}, store)

	app := kratos.New(
		kratos.ID(id),
		kratos.Name(name),
		kratos.Version(version),
		kratos.Metadata(map[string]string{}),
		kratos.Logger(logger),
		kratos.Server(
			store,
			httpSrv,
		),
		kratos.AfterStart(func(_ context.Context) error {
			log.Infof("%s started", name)
			return nil
		}),
	)

	cleanup := func() {
		if err := store.Close(); err != nil {
			helper.Errorf("failed to close storage: %v", err)
		}
	}
	return app, cleanup, nil
}
