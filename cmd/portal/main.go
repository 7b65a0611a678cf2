// Portal is the sign-in CLI: password, then a texted code, then the role's landing destination.
// Configuration comes from the environment or a .env file; see internal/config.
package main

import "backoffice/portal/internal/cli"

func main() {
	cli.Execute()
}
