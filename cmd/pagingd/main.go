// Command pagingd runs the call coordinator: it listens for paging audio,
// routes it to networked speakers, and saves each call as a recording.
package main

import "github.com/fieldops/pagingcore/cmd/pagingd/cmd"

func main() {
	cmd.Execute()
}
