package main

import (
	"flag"
	"fmt"
	golog "log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/boltdb/bolt"
	"github.com/google/gops/agent"
	"github.com/nicolagi/blogd/posts"
	"github.com/nicolagi/blogd/server"
	"github.com/nicolagi/blogd/storage"
	log "github.com/sirupsen/logrus"
)

func main() {
	defaultConfigFile := os.ExpandEnv("$HOME/lib/blog/blogserver.config")
	configFile := flag.String("config", defaultConfigFile, "location of configuration file")
	flag.Parse()

	explicit := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			explicit = true
		}
	})
	config, err := loadConfig(*configFile, explicit)
	if err != nil {
		log.WithFields(log.Fields{
			"err":  err,
			"path": *configFile,
		}).Fatal("Could not load configuration")
	}
	config.applyDefaultsForMissingProperties()

	if config.Debug {
		log.SetLevel(log.DebugLevel)
	}

	cleanup := redirectLogging(config)
	defer cleanup()

	if err := agent.Listen(agent.Options{
		ShutdownCleanup: true,
	}); err != nil {
		log.WithField("err", err).Warn("Could not start gops agent")
	} else {
		defer agent.Close()
	}

	backend, closeBackend, key, err := openBackend(config)
	if err != nil {
		log.WithFields(log.Fields{
			"err":  err,
			"type": config.Posts.Type,
		}).Fatal("Could not open posts storage")
	}
	defer closeBackend()

	var postsOpts []posts.Option
	if config.OpenWrites {
		log.Warn("Saves are not password protected")
	} else {
		password, fallback := config.password(os.Getenv)
		if fallback {
			log.Warn("ADMIN_PASSWORD is not set, using the default password")
		}
		postsOpts = append(postsOpts, posts.WithPassword(password))
	}

	root := os.ExpandEnv(config.Root)
	srv := server.New(
		server.WithAddress(config.Address),
		server.WithRoot(root),
		server.WithPosts(posts.New(backend, key, postsOpts...)),
		server.WithMaxBodySize(maxBodySize(config)),
	)
	addr, err := srv.Listen()
	if err != nil {
		log.WithField("err", err).Fatal("Could not listen")
	}
	log.WithFields(log.Fields{
		"addr":  addr,
		"root":  root,
		"posts": config.Posts.Type,
	}).Info("Listening")

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-c
		log.WithField("signal", sig).Info("Shutting down server")
		if err := srv.Shutdown(); err != nil {
			log.WithField("err", err).Warn("Could not shut down the server cleanly")
		}
	}()

	if err := srv.Serve(); err != nil {
		log.WithField("err", err).Error("Could not serve")
	}
}

func maxBodySize(c *config) int64 {
	if c.MaxBodySize > 0 {
		return c.MaxBodySize
	}
	return server.DefaultMaxBodySize
}

// openBackend returns the store holding the posts document, a function to
// release it, and the key the document is kept under.
func openBackend(c *config) (store storage.Store, closer func(), key string, err error) {
	closer = func() {}
	pathname := os.ExpandEnv(c.Posts.Path)
	switch c.Posts.Type {
	case "disk":
		log.Infof("Will store posts on disk at %s", pathname)
		return storage.NewDiskStore(filepath.Dir(pathname)), closer, filepath.Base(pathname), nil
	case "bolt":
		if err := os.MkdirAll(filepath.Dir(pathname), 0700); err != nil {
			return nil, nil, "", fmt.Errorf("could not ensure directory for %q exists: %w", pathname, err)
		}
		db, err := bolt.Open(pathname, 0600, nil)
		if err != nil {
			return nil, nil, "", fmt.Errorf("could not open database %q: %w", pathname, err)
		}
		store, err := storage.NewBoltStore(db)
		if err != nil {
			_ = db.Close()
			return nil, nil, "", fmt.Errorf("could not instantiate boltdb store at %q: %w", pathname, err)
		}
		log.Infof("Will store posts in boltdb database %s", pathname)
		return store, func() {
			if err := db.Close(); err != nil {
				log.Warnf("Could not close boltdb database: %v", err)
			}
		}, posts.DefaultKey, nil
	case "s3":
		if c.Posts.Bucket == "" {
			return nil, nil, "", fmt.Errorf("s3 storage needs a bucket")
		}
		opts := []storage.S3Option{
			storage.WithProfile(c.Posts.Profile),
			storage.WithPrefix(c.Posts.Prefix),
			storage.WithRequestsPerSecond(c.Posts.RequestsPerSecond),
		}
		if c.Posts.Region != "" {
			opts = append(opts, storage.WithRegion(c.Posts.Region))
		}
		if c.Posts.Endpoint != "" {
			opts = append(opts, storage.WithEndpoint(c.Posts.Endpoint))
		}
		log.Infof("Will store posts in S3 bucket %s", c.Posts.Bucket)
		return storage.NewS3(c.Posts.Bucket, opts...), closer, posts.DefaultKey, nil
	default:
		return nil, nil, "", fmt.Errorf("%q: unknown posts storage type", c.Posts.Type)
	}
}

func redirectLogging(c *config) (cleanup func()) {
	golog.SetOutput(log.StandardLogger().Writer())
	if c.LogPath == "" {
		return func() {}
	}
	pathname := os.ExpandEnv(c.LogPath)
	logger := log.WithField("pathname", pathname)
	f, err := os.OpenFile(pathname, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0600)
	if err != nil {
		logger.WithField("err", err).Fatal("Could not open log file")
	}
	logger.Info("Further log lines go to the log file")
	log.SetOutput(f)
	return func() {
		if err := f.Close(); err != nil {
			// Can't use the logger here!
			_, _ = fmt.Fprintf(os.Stderr, "Could not close log file cleanly %q: %v", pathname, err)
		}
	}
}
