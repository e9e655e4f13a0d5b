package main

import (
	"os"

	"steamchain/internal/renderer"
	"steamchain/internal/splitter"
)

// SplitCmd shows how a Python file is chunked for embedding.
type SplitCmd struct {
	File     string `arg:"" type:"existingfile" help:"Python source file"`
	MaxLines int    `default:"50" help:"Files with at most this many lines are kept whole"`
}

// Run executes the split command.
func (c *SplitCmd) Run(cli *CLI) error {
	src, err := os.ReadFile(c.File)
	if err != nil {
		return err
	}
	segments, err := splitter.NewPython(splitter.WithMaxFileLines(c.MaxLines)).SplitText(string(src))
	if err != nil {
		return err
	}
	return cli.print(renderer.Segments(c.File, segments))
}
