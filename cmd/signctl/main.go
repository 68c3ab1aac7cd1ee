// Command signctl is the operator CLI for the signing service.
package main

import "github.com/irportal/anchorsign/internal/cli"

func main() {
	cli.Execute()
}
