// Command folio manages schema-driven record databases.
package main

import (
	"os"

	"github.com/mesh-intelligence/folio/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
