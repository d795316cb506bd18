package main

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
)

var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Record activities and check the remote mirror through the API",
}

var activityStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the remote write attempt counter",
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := call(newAPIClient().R(), http.MethodGet, "/user-activity")
		if err != nil {
			return err
		}
		if output == "json" {
			return printJSON(result)
		}
		fmt.Printf("Attempts: %s/%s\n", str(result, "currentAttempts"), str(result, "maxAttempts"))
		fmt.Println(str(result, "message"))
		return nil
	},
}

var activityRecordCmd = &cobra.Command{
	Use:   "record <user-id> <action>",
	Short: "Record one activity",
	Long: `Record one activity. Data is passed as key=value pairs.

Examples:
  orkut activity record 42 profile_view --data target=17
  orkut activity record 42 login --key login-42-2024-01-01`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		pairs, _ := cmd.Flags().GetStringSlice("data")
		key, _ := cmd.Flags().GetString("key")

		data := map[string]interface{}{}
		for _, pair := range pairs {
			k, v, ok := strings.Cut(pair, "=")
			if !ok {
				return fmt.Errorf("invalid data %q, expected key=value", pair)
			}
			data[k] = v
		}

		body := map[string]interface{}{"userId": args[0], "action": args[1], "data": data}
		if key != "" {
			body["idempotencyKey"] = key
		}

		result, err := call(newAPIClient().R().SetBody(body), http.MethodPost, "/user-activity")
		if err != nil {
			return err
		}
		if output == "json" {
			return printJSON(result)
		}
		fmt.Printf("Recorded (mode: %s)\n", str(result, "mode"))
		if gh, ok := result["githubResult"].(map[string]interface{}); ok {
			fmt.Printf("Commit: %s\n", str(gh, "commitUrl"))
		}
		return nil
	},
}

var activityResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the attempt counter through the API",
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := call(newAPIClient().R(), http.MethodPost, "/user-activity-reset")
		if err != nil {
			return err
		}
		if output == "json" {
			return printJSON(result)
		}
		fmt.Println(str(result, "message"))
		return nil
	},
}

func init() {
	activityCmd.AddCommand(activityStatusCmd)
	activityCmd.AddCommand(activityRecordCmd)
	activityCmd.AddCommand(activityResetCmd)

	activityRecordCmd.Flags().StringSlice("data", nil, "Data as key=value (comma-separated or repeated)")
	activityRecordCmd.Flags().String("key", "", "Idempotency key")
}
