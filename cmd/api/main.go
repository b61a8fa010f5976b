//	@title			Post Service API
//	@version		1.0
//	@description	Posts with photo attachments backed by PostgreSQL and S3-compatible object storage.
//
//	@host		localhost:8080
//	@BasePath	/
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Optional JWT Bearer token. Its subject becomes the post owner. Format: **Bearer {token}**

package main

import (
	"fmt"
	"os"

	"github.com/skillbox/postservice/internal/config"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cfg := config.Load()

	if err := newRootCmd(cfg).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
