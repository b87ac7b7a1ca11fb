package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/holla2040/droidscript/internal/script/validate"
)

type fileValidation struct {
	File string `json:"file"`
	*validate.ValidationResult
}

func newValidateCmd(a *app) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "validate <script>...",
		Short: "Check scripts for syntax errors without running them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			var results []fileValidation
			failed := 0
			for _, path := range args {
				res, err := validate.ValidateFile(path)
				if err != nil {
					return err
				}
				if !res.Valid {
					failed++
				}
				results = append(results, fileValidation{File: path, ValidationResult: res})
			}

			if jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(results); err != nil {
					return err
				}
			} else {
				for _, r := range results {
					fmt.Fprintf(out, "%s: %s (%d statements)\n", r.File, r.Message, r.Statements)
					for _, e := range r.Errors {
						fmt.Fprintf(out, "  %d:%d %s: %s\n", e.Line, e.Column, e.Severity, e.Message)
						if e.Context != "" {
							fmt.Fprintf(out, "      %s\n", e.Context)
						}
					}
				}
			}
			if failed > 0 {
				return exitCode(1)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print results as JSON")
	return cmd
}
