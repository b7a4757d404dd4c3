// sshbridge connects to configured SSH hosts with trust-on-first-use host
// key verification, layered authentication and jump-host chaining, and keeps
// per-host port forwards alive for the life of the connection.
package main

import "sshBridge/internal/cli"

func main() {
	cli.Execute()
}
