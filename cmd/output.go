// File: cmd/output.go
package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v2"
)

// writeStructured marshals v as JSON or YAML according to format.
func writeStructured(w io.Writer, format string, v interface{}) error {
	var data []byte
	var err error
	if format == "json" {
		data, err = json.MarshalIndent(v, "", "  ")
		data = append(data, '\n')
	} else {
		data, err = yaml.Marshal(v)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}

	_, err = w.Write(data)
	return err
}

// printErrorSummary lists non-fatal errors the same way for every command.
func printErrorSummary(w io.Writer, errs []string) {
	if len(errs) == 0 {
		return
	}
	fmt.Fprintln(w, "\nSummary of errors:")
	for _, e := range errs {
		fmt.Fprintln(w, "-", e)
	}
}
