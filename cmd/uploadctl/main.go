// Command uploadctl validates local files and uploads them through the
// configured adapter.
package main

import (
	"os"

	"github.com/JonMunkholm/uploadkit/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
