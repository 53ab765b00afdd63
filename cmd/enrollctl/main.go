// Command enrollctl runs operator tasks against the enrollment store and search index.
package main

import "enrollment/internal/cli"

func main() {
	cli.Execute()
}
