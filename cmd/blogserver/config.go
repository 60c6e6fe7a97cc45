package main

import (
	"errors"
	"os"

	"github.com/rogpeppe/rjson"
)

const fallbackPassword = "admin"

type config struct {
	Address       string `json:"address"`
	Root          string `json:"root"`
	Debug         bool   `json:"debug"`
	LogPath       string `json:"log_path"`
	MaxBodySize   int64  `json:"max_body_size"`
	AdminPassword string `json:"admin_password"`

	// Accept saves without a password.
	OpenWrites bool `json:"open_writes"`

	Posts struct {
		Type string `json:"type"`

		// Properties for "disk" and "bolt" types.
		Path string `json:"path"`

		// Properties for "s3" type.
		Bucket            string  `json:"bucket"`
		Prefix            string  `json:"prefix"`
		Region            string  `json:"region"`
		Profile           string  `json:"profile"`
		Endpoint          string  `json:"endpoint"`
		RequestsPerSecond float64 `json:"requests_per_second"`
	} `json:"posts"`
}

// loadConfig reads the configuration at pathname. If the file does not exist
// and mustExist is false, the zero configuration is returned.
func loadConfig(pathname string, mustExist bool) (*config, error) {
	f, err := os.Open(pathname)
	if errors.Is(err, os.ErrNotExist) && !mustExist {
		return &config{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()
	var c *config
	err = rjson.NewDecoder(f).Decode(&c)
	if err == nil && c == nil {
		c = &config{}
	}
	return c, err
}

func (c *config) applyDefaultsForMissingProperties() {
	if c.Address == "" {
		c.Address = ":5000"
	}
	if c.Root == "" {
		c.Root = "."
	}
	if c.Posts.Type == "" {
		c.Posts.Type = "disk"
	}
	if c.Posts.Path == "" {
		switch c.Posts.Type {
		case "bolt":
			c.Posts.Path = "blog_posts.db"
		default:
			c.Posts.Path = "blog_posts.json"
		}
	}
}

// password returns the admin password and whether it came from the
// fallback. The environment wins over the configuration file.
func (c *config) password(getenv func(string) string) (password string, fallback bool) {
	if p := getenv("ADMIN_PASSWORD"); p != "" {
		return p, false
	}
	if c.AdminPassword != "" {
		return c.AdminPassword, false
	}
	return fallbackPassword, true
}
