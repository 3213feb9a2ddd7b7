// dtectl opera el servicio de DTE desde la terminal: migraciones, CAF, documentos y certificados.
package main

import (
	"fmt"
	"os"

	"github.com/jhoicas/dte-sii/cmd/dtectl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
