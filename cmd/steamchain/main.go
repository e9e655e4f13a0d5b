// steamchain runs langchain-style models, memory, loaders and indexes on a
// hosted platform workspace.
package main

import (
	"github.com/alecthomas/kong"
)

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("steamchain"),
		kong.Description("Language model tooling backed by a platform workspace"),
		kong.UsageOnError(),
	)
	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
