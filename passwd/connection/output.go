package connection

import (
	"bufio"
	"errors"
	"io"
	"strings"

	"golang.org/x/sync/errgroup"
)

// collect drains stdout and stderr concurrently into result. Each stream has
// its own goroutine, so a child that fills one pipe cannot block on the other.
// Additional tasks (e.g. feeding stdin) run in the same group.
func collect(result *Result, stdout, stderr io.Reader, tasks ...func() error) error {
	var g errgroup.Group

	for _, task := range tasks {
		g.Go(task)
	}

	var outLines, errLines []string
	g.Go(func() error {
		return readLines(stdout, func(line string) { outLines = append(outLines, line) })
	})
	g.Go(func() error {
		return readLines(stderr, func(line string) { errLines = append(errLines, line) })
	})

	err := g.Wait()
	result.Stdout = append(result.Stdout, outLines...)
	result.Stderr = append(result.Stderr, errLines...)
	return err
}

// readLines calls fn for every line of r with the line terminator removed.
// Lines are not length limited.
func readLines(r io.Reader, fn func(string)) error {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			fn(strings.TrimRight(line, "\r\n"))
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
