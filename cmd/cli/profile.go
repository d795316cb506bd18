package main

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "View and edit your profile",
}

var getProfileCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Show your profile, or another member's with an id",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireToken(); err != nil {
			return err
		}
		path := "/profiles/me"
		if len(args) == 1 {
			path = "/profiles/" + args[0]
		}

		result, err := call(newAPIClient().R(), http.MethodGet, path)
		if err != nil {
			return err
		}
		if output == "json" {
			return printJSON(result)
		}

		profile, _ := result["profile"].(map[string]interface{})
		fmt.Println("Profile:")
		fmt.Printf("  Username:     %s\n", str(profile, "username"))
		fmt.Printf("  Display name: %s\n", str(profile, "display_name"))
		if bio := str(profile, "bio"); bio != "" {
			fmt.Printf("  Bio:          %s\n", bio)
		}
		if v := str(result, "friends_count"); v != "" {
			fmt.Printf("  Friends:      %s\n", v)
		}
		if v := str(result, "friendship_status"); v != "" {
			fmt.Printf("  Friendship:   %s\n", v)
		}
		if str(result, "is_admin") == "true" {
			fmt.Println("  Administrator")
		}
		return nil
	},
}

var updateProfileCmd = &cobra.Command{
	Use:   "update",
	Short: "Change fields of your profile",
	Long: `Change fields of your profile. Only the flags you pass are sent.

Examples:
  orkut profile update --bio "Saudades do Orkut"
  orkut profile update --display-name "Ana" --location "Recife"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireToken(); err != nil {
			return err
		}
		body := map[string]interface{}{}
		for _, flag := range []string{"display-name", "bio", "location", "relationship", "photo-url"} {
			if cmd.Flags().Changed(flag) {
				v, _ := cmd.Flags().GetString(flag)
				body[strings.ReplaceAll(flag, "-", "_")] = v
			}
		}
		if len(body) == 0 {
			return fmt.Errorf("nothing to update")
		}

		result, err := call(newAPIClient().R().SetBody(body), http.MethodPut, "/profiles/me")
		if err != nil {
			return err
		}
		if output == "json" {
			return printJSON(result)
		}
		fmt.Println("Profile updated")
		return nil
	},
}

func init() {
	profileCmd.AddCommand(getProfileCmd)
	profileCmd.AddCommand(updateProfileCmd)

	updateProfileCmd.Flags().String("display-name", "", "Display name")
	updateProfileCmd.Flags().String("bio", "", "About me")
	updateProfileCmd.Flags().String("location", "", "City")
	updateProfileCmd.Flags().String("relationship", "", "Relationship status")
	updateProfileCmd.Flags().String("photo-url", "", "Photo URL")
}
