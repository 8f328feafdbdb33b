package cmd

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/habedi/fintrack/pkg/clierr"
	"github.com/habedi/fintrack/pkg/validation"
	"github.com/spf13/cobra"
)

// requestCmd sends an arbitrary authenticated request and prints the response.
func requestCmd(a *app) *cobra.Command {
	var data string

	cmd := &cobra.Command{
		Use:   "request METHOD PATH",
		Short: "Send an authenticated request to the API",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			method, path := strings.ToUpper(args[0]), args[1]
			if err := validation.ValidateHTTPMethod(method); err != nil {
				return clierr.New(clierr.Validation, err.Error(), err)
			}
			if err := validation.ValidateRequestPath(path); err != nil {
				return clierr.New(clierr.Validation, err.Error(), err)
			}
			if data != "" && !json.Valid([]byte(data)) {
				return clierr.New(clierr.Validation, "--data must be valid JSON", nil)
			}

			status, body, err := a.api.Raw(cmd.Context(), method, path, []byte(data))
			if err != nil {
				return err
			}
			cmd.Println("Status:", status)

			var pretty bytes.Buffer
			if json.Indent(&pretty, body, "", "  ") == nil {
				cmd.Println(pretty.String())
			} else {
				cmd.Println(string(body))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON request body")
	return cmd
}
