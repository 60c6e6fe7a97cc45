// Command blogctl reads and writes the posts document of a running
// blogserver.
package main // import "github.com/nicolagi/blogd/cmd/blogctl"

import (
	"os"
)

func main() {
	if err := newRootCommand(os.Getenv).Execute(); err != nil {
		os.Exit(1)
	}
}
